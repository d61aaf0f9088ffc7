package notifier

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubejota/clube/internal/app/ledger"
	"github.com/clubejota/clube/internal/app/tier"
	"github.com/clubejota/clube/internal/domain"
	"github.com/clubejota/clube/internal/infra/sqlite"
)

// ═══════════════════════════════════════════════════════════════════════════
// Tier Change Notifier Tests
// ═══════════════════════════════════════════════════════════════════════════

func openDB(t *testing.T, dir string) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(dir)
	require.NoError(t, err)
	return db
}

// ─── Pure Detector ──────────────────────────────────────────────────────────

func TestShouldPromote(t *testing.T) {
	tiers := tier.MustDefault()
	tests := []struct {
		name     string
		previous domain.Tier
		known    bool
		next     domain.Tier
		want     bool
	}{
		{"first observation", "", false, domain.TierGold, false},
		{"bronze to silver", domain.TierBronze, true, domain.TierSilver, true},
		{"bronze to gold", domain.TierBronze, true, domain.TierGold, true},
		{"unchanged", domain.TierSilver, true, domain.TierSilver, false},
		{"decrease", domain.TierGold, true, domain.TierBronze, false},
		{"unknown previous", domain.Tier("platinum"), true, domain.TierBronze, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldPromote(tiers, tt.previous, tt.known, tt.next))
		})
	}
}

// ─── Durable Memory ─────────────────────────────────────────────────────────

func TestObserve_BaselineThenPromotion(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	n := New(db, nil, nil)
	ctx := context.Background()

	ev, err := n.Observe(ctx, "ana", domain.TierBronze)
	require.NoError(t, err)
	assert.Nil(t, ev, "first sighting is a baseline")

	ev, err = n.Observe(ctx, "ana", domain.TierSilver)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.TierBronze, ev.From)
	assert.Equal(t, domain.TierSilver, ev.To)

	ev, err = n.Observe(ctx, "ana", domain.TierSilver)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestObserve_DecreaseIsSilent(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	n := New(db, nil, nil)
	ctx := context.Background()

	_, _ = n.Observe(ctx, "ana", domain.TierGold)
	ev, err := n.Observe(ctx, "ana", domain.TierBronze)
	require.NoError(t, err)
	assert.Nil(t, ev)

	got, ok, err := db.LastKnownTier(ctx, "ana")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.TierBronze, got)
}

func TestObserve_ConcurrentObserversAnnounceOnce(t *testing.T) {
	db := openDB(t, t.TempDir())
	defer db.Close()
	n := New(db, nil, nil)
	ctx := context.Background()

	var fired atomic.Int32
	n.Subscribe(func(domain.PromotionEvent) { fired.Add(1) })
	_, err := n.Observe(ctx, "ana", domain.TierBronze)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := n.Observe(ctx, "ana", domain.TierSilver)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fired.Load())
}

// ─── Across Restarts ────────────────────────────────────────────────────────

func TestPromotionFiresOnceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	var events []domain.PromotionEvent

	boot := func() (*sqlite.DB, *ledger.Ledger) {
		db := openDB(t, dir)
		n := New(db, nil, nil)
		n.Subscribe(func(ev domain.PromotionEvent) { events = append(events, ev) })
		l, err := ledger.New(ledger.DefaultConfig(), ledger.Deps{
			Store: db, Directory: db, Gate: ledger.NewStaticGate("admin"), Observer: n,
		})
		require.NoError(t, err)
		return db, l
	}

	db, l := boot()
	require.NoError(t, db.UpsertProfile(ctx, domain.Profile{AccountID: "ana", Email: "ana@clube.com"}))
	_, err := l.Activate(ctx, "ana", "admin") // remembers bronze
	require.NoError(t, err)
	_, err = l.Credit(ctx, "ana", decimal.NewFromInt(30), "", domain.SourceManual, "admin", decimal.Zero)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := l.Debit(ctx, "ana", decimal.NewFromInt(1), "presença", true, "admin")
		require.NoError(t, err)
	}
	require.Len(t, events, 1)
	require.NoError(t, db.Close())

	db, l = boot()
	defer db.Close()
	acct, err := l.GetSummary(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, domain.TierSilver, acct.Tier)

	require.Len(t, events, 1, "restart must not re-announce")
	assert.Equal(t, domain.TierSilver, events[0].To)
	assert.Equal(t, "ana", events[0].AccountID)
}
