// Package executor runs batches of keyed jobs on a bounded worker pool.
//
// Jobs that share a key run one at a time in submission order. Jobs with
// different keys run in parallel, up to MaxConcurrent at once. The import
// commit uses the account ID as the key, so two credits for the same member
// never race while distinct members are credited concurrently.
//
// A job that has started always runs to completion or to its own timeout:
// cancelling the batch context only prevents jobs that have not started.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clubejota/clube/internal/infra/observability"
)

// ErrSkipped is the result of a job that never started because the batch
// was cancelled or aborted first.
var ErrSkipped = errors.New("executor: job not started")

// Job is one unit of work.
type Job struct {
	Key string
	Run func(ctx context.Context) error
}

// Result reports what happened to the job at the same index.
type Result struct {
	Index    int           `json:"index"`
	Key      string        `json:"key"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Started reports whether the job ran at all.
func (r Result) Started() bool { return !errors.Is(r.Err, ErrSkipped) }

// Config controls executor behavior.
type Config struct {
	MaxConcurrent  int           // Maximum keys worked on at once (default: 4)
	DefaultTimeout time.Duration // Per-job timeout (default: 30s)
}

// DefaultConfig returns safe executor defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:  4,
		DefaultTimeout: 30 * time.Second,
	}
}

// Executor manages job execution.
type Executor struct {
	mu        sync.RWMutex
	config    Config
	sem       chan struct{} // Concurrency semaphore
	active    int
	completed int64
	failed    int64
	log       *slog.Logger
}

// New creates an executor.
func New(cfg Config, logger *slog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		config: cfg,
		sem:    make(chan struct{}, cfg.MaxConcurrent),
		log:    logger.With("component", "executor"),
	}
}

// Run executes jobs and blocks until every started job has finished.
// When abort is non-nil and returns true for a job's error, jobs that have
// not started yet are skipped. Results are indexed like jobs.
func (e *Executor) Run(ctx context.Context, jobs []Job, abort func(error) bool) []Result {
	results := make([]Result, len(jobs))
	for i, j := range jobs {
		results[i] = Result{Index: i, Key: j.Key, Err: ErrSkipped}
	}

	// Group job indexes by key, keeping first-appearance order.
	var (
		order []string
		lanes = make(map[string][]int)
	)
	for i, j := range jobs {
		if _, ok := lanes[j.Key]; !ok {
			order = append(order, j.Key)
		}
		lanes[j.Key] = append(lanes[j.Key], i)
	}

	var (
		stopped atomic.Bool
		wg      sync.WaitGroup
	)
	for _, key := range order {
		lane := lanes[key]
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case e.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-e.sem }()

			for _, idx := range lane {
				if stopped.Load() || ctx.Err() != nil {
					return
				}
				res := e.execute(ctx, jobs[idx])
				res.Index = idx
				results[idx] = res
				if res.Err != nil && abort != nil && abort(res.Err) {
					if stopped.CompareAndSwap(false, true) {
						e.log.Warn("batch aborted", "key", key, "error", res.Err)
					}
				}
			}
		}()
	}
	wg.Wait()
	return results
}

// execute runs one job with its own timeout, detached from the batch
// context's cancellation.
func (e *Executor) execute(ctx context.Context, job Job) Result {
	e.mu.Lock()
	e.active++
	e.mu.Unlock()
	observability.ExecutorActive.Inc()

	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
		observability.ExecutorActive.Dec()
	}()

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.DefaultTimeout)
	defer cancel()

	start := time.Now()
	err := job.Run(jobCtx)
	res := Result{Key: job.Key, Err: err, Duration: time.Since(start)}

	e.mu.Lock()
	if err != nil {
		e.failed++
	} else {
		e.completed++
	}
	e.mu.Unlock()
	return res
}

// Stats returns executor statistics.
type Stats struct {
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	MaxSlots  int   `json:"max_slots"`
	FreeSlots int   `json:"free_slots"`
}

// Stats returns current executor statistics.
func (e *Executor) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Stats{
		Active:    e.active,
		Completed: e.completed,
		Failed:    e.failed,
		MaxSlots:  e.config.MaxConcurrent,
		FreeSlots: e.config.MaxConcurrent - e.active,
	}
}
