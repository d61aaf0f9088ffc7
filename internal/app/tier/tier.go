// Package tier maps cumulative qualifying activity to a membership tier.
//
// Thresholds are policy, passed in at construction:
//
//	bronze [0,3)  silver [3,6)  gold [6,∞)
//
// The engine is pure and total: every non-negative count maps to exactly one
// tier. It never looks at balances.
package tier

import (
	"fmt"

	"github.com/clubejota/clube/internal/domain"
)

// Threshold is an inclusive lower bound on qualifying activity for a tier.
type Threshold struct {
	MinCount int         `toml:"min_count" json:"min_count"`
	Tier     domain.Tier `toml:"name" json:"tier"`
}

// DefaultThresholds returns the club's standard policy.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{MinCount: 0, Tier: domain.TierBronze},
		{MinCount: 3, Tier: domain.TierSilver},
		{MinCount: 6, Tier: domain.TierGold},
	}
}

// Engine evaluates tiers against an ordered threshold list.
type Engine struct {
	thresholds []Threshold
	rank       map[domain.Tier]int
}

// NewEngine validates thresholds and builds an engine.
// The first threshold must start at 0, counts must strictly increase and
// labels must be unique.
func NewEngine(thresholds []Threshold) (*Engine, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("%w: no tier thresholds", domain.ErrInvalidPolicy)
	}
	if thresholds[0].MinCount != 0 {
		return nil, fmt.Errorf("%w: first tier must start at 0, got %d", domain.ErrInvalidPolicy, thresholds[0].MinCount)
	}

	rank := make(map[domain.Tier]int, len(thresholds))
	for i, th := range thresholds {
		if th.Tier == "" {
			return nil, fmt.Errorf("%w: tier %d has no name", domain.ErrInvalidPolicy, i)
		}
		if _, dup := rank[th.Tier]; dup {
			return nil, fmt.Errorf("%w: duplicate tier %q", domain.ErrInvalidPolicy, th.Tier)
		}
		if i > 0 && th.MinCount <= thresholds[i-1].MinCount {
			return nil, fmt.Errorf("%w: tier %q threshold %d not above %d",
				domain.ErrInvalidPolicy, th.Tier, th.MinCount, thresholds[i-1].MinCount)
		}
		rank[th.Tier] = i + 1
	}

	own := make([]Threshold, len(thresholds))
	copy(own, thresholds)
	return &Engine{thresholds: own, rank: rank}, nil
}

// MustDefault returns an engine over DefaultThresholds.
func MustDefault() *Engine {
	e, err := NewEngine(DefaultThresholds())
	if err != nil {
		panic(err)
	}
	return e
}

// TierFor returns the tier for a qualifying activity count.
// Negative counts are treated as 0.
func (e *Engine) TierFor(count int) domain.Tier {
	for i := len(e.thresholds) - 1; i >= 0; i-- {
		if count >= e.thresholds[i].MinCount {
			return e.thresholds[i].Tier
		}
	}
	return e.thresholds[0].Tier
}

// Base returns the entry tier.
func (e *Engine) Base() domain.Tier { return e.thresholds[0].Tier }

// Rank returns the tier's position in the policy (1 = lowest).
// Unknown tiers rank 0, below every configured tier.
func (e *Engine) Rank(t domain.Tier) int { return e.rank[t] }

// Next returns the tier after t and the activity count needed to reach it.
// ok is false at the top tier.
func (e *Engine) Next(t domain.Tier) (next domain.Tier, minCount int, ok bool) {
	r := e.rank[t]
	if r == 0 || r >= len(e.thresholds) {
		return "", 0, false
	}
	th := e.thresholds[r]
	return th.Tier, th.MinCount, true
}

// Thresholds returns a copy of the policy.
func (e *Engine) Thresholds() []Threshold {
	out := make([]Threshold, len(e.thresholds))
	copy(out, e.thresholds)
	return out
}
