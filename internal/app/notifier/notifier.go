// Package notifier announces tier promotions exactly once per rise.
//
// The last tier announced to each member is kept in durable tier memory,
// separate from the account's live tier, and advanced with compare-and-swap.
// Concurrent observers and process restarts therefore never repeat an
// announcement.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clubejota/clube/internal/app/tier"
	"github.com/clubejota/clube/internal/domain"
	"github.com/clubejota/clube/internal/infra/observability"
)

// maxSwapAttempts bounds the retry loop when another observer keeps
// advancing the same account's memory.
const maxSwapAttempts = 5

// Notifier is the TierChangeNotifier.
type Notifier struct {
	memory domain.TierMemory
	tiers  *tier.Engine
	log    *slog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	subs []func(domain.PromotionEvent)
}

// New creates a notifier over the given tier memory.
func New(memory domain.TierMemory, tiers *tier.Engine, logger *slog.Logger) *Notifier {
	if tiers == nil {
		tiers = tier.MustDefault()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		memory: memory,
		tiers:  tiers,
		log:    logger.With("component", "notifier"),
		now:    time.Now,
	}
}

// Subscribe registers fn to receive every promotion. Callbacks run
// synchronously on the goroutine that observed the change.
func (n *Notifier) Subscribe(fn func(domain.PromotionEvent)) {
	n.mu.Lock()
	n.subs = append(n.subs, fn)
	n.mu.Unlock()
}

// ShouldPromote reports whether moving from previous to next is a rise.
// The first observation (known == false) only establishes a baseline.
func ShouldPromote(tiers *tier.Engine, previous domain.Tier, known bool, next domain.Tier) bool {
	return known && tiers.Rank(next) > tiers.Rank(previous)
}

// Observe records current as the account's known tier and returns the
// promotion event when it ranks strictly above the remembered one. Drops and
// first sightings update the memory silently.
func (n *Notifier) Observe(ctx context.Context, accountID string, current domain.Tier) (*domain.PromotionEvent, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		previous, known, err := n.memory.LastKnownTier(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("read tier memory: %w", err)
		}
		if known && previous == current {
			return nil, nil
		}
		swapped, err := n.memory.SwapTier(ctx, accountID, previous, known, current)
		if err != nil {
			return nil, fmt.Errorf("advance tier memory: %w", err)
		}
		if !swapped {
			// Another observer moved the memory first; judge against its value.
			continue
		}
		if !ShouldPromote(n.tiers, previous, known, current) {
			if known {
				n.log.Debug("tier memory moved without promotion", "account", accountID, "from", previous, "to", current)
			}
			return nil, nil
		}

		ev := domain.PromotionEvent{AccountID: accountID, From: previous, To: current, At: n.now().UTC()}
		observability.TierPromotions.WithLabelValues(string(current)).Inc()
		n.log.Info("member promoted", "account", accountID, "from", previous, "to", current)
		n.dispatch(ev)
		return &ev, nil
	}
	return nil, fmt.Errorf("tier memory for %s kept changing after %d attempts", accountID, maxSwapAttempts)
}

func (n *Notifier) dispatch(ev domain.PromotionEvent) {
	n.mu.RLock()
	subs := make([]func(domain.PromotionEvent), len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
