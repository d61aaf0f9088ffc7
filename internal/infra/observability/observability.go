// Package observability holds the club's Prometheus metrics and a small
// in-memory span tracer used to time import commits and ledger calls.
//
// Metrics are registered on the default registry through promauto and served
// by the API at /metrics. Spans are kept in a ring buffer for inspection;
// nothing is exported to an external collector.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans
// ═══════════════════════════════════════════════════════════════════════════

// Span is one timed unit of work.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer records finished spans in a bounded ring buffer.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
	now      func() time.Time
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 1_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 1_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
		now:      time.Now,
	}
}

// StartSpan begins a span. The returned context carries the span as parent
// for nested StartSpan calls. A nil tracer is valid and records nothing.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) (context.Context, *Span) {
	if t == nil || !t.enabled {
		return ctx, &Span{Operation: operation}
	}

	traceID, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		traceID = uuid.NewString()
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	parent, _ := ctx.Value(spanIDKey).(string)

	span := &Span{
		TraceID:   traceID,
		SpanID:    uuid.NewString(),
		ParentID:  parent,
		Operation: operation,
		StartTime: t.now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
	return context.WithValue(ctx, spanIDKey, span.SpanID), span
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if t == nil || !t.enabled || span == nil {
		return
	}

	span.EndTime = t.now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: overwrite oldest if at capacity
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "clube-trace-id"
	spanIDKey  contextKey = "clube-span-id"
)

// WithTraceID returns a context whose spans share traceID, typically the
// HTTP request ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Ledger ─────────────────────────────────────────────────────────────────

// LedgerOperations counts ledger mutations by operation and outcome
// ("ok" or the rejected precondition).
var LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clube",
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Ledger mutations by operation and outcome.",
}, []string{"op", "outcome"})

// LedgerAmount sums credited and debited amounts in BRL.
var LedgerAmount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clube",
	Subsystem: "ledger",
	Name:      "amount_brl_total",
	Help:      "Total amount moved through the ledger by kind.",
}, []string{"kind"})

// ActiveMembers tracks the number of active members seen at the last listing.
var ActiveMembers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "clube",
	Subsystem: "ledger",
	Name:      "active_members",
	Help:      "Active members at the last member listing.",
})

// LegacyOwnerReads counts history reads served from the deprecated owner column.
var LegacyOwnerReads = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "clube",
	Subsystem: "ledger",
	Name:      "legacy_owner_reads_total",
	Help:      "Transaction listings answered by the legacy owner column.",
})

// ─── Tiers ──────────────────────────────────────────────────────────────────

// TierPromotions counts announced promotions by target tier.
var TierPromotions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clube",
	Subsystem: "tier",
	Name:      "promotions_total",
	Help:      "Promotion events announced, by target tier.",
}, []string{"tier"})

// ─── Import ─────────────────────────────────────────────────────────────────

// ImportRows counts import rows by phase and result
// (resolved, unresolved, skipped, succeeded, failed).
var ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clube",
	Subsystem: "import",
	Name:      "rows_total",
	Help:      "Reconciliation import rows by phase and result.",
}, []string{"phase", "result"})

// ImportCommits counts commit runs by outcome (complete, partial, fatal).
var ImportCommits = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clube",
	Subsystem: "import",
	Name:      "commits_total",
	Help:      "Import commit runs by outcome.",
}, []string{"outcome"})

// ImportCommitDuration tracks how long a commit run takes.
var ImportCommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "clube",
	Subsystem: "import",
	Name:      "commit_duration_seconds",
	Help:      "Wall time of an import commit run.",
	Buckets:   prometheus.DefBuckets,
})

// ─── Executor ───────────────────────────────────────────────────────────────

// ExecutorActive tracks jobs currently running in the keyed executor.
var ExecutorActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "clube",
	Subsystem: "executor",
	Name:      "active_jobs",
	Help:      "Jobs currently running.",
})

// ─── Traces ─────────────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "clube",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "clube",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})
