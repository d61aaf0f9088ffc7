package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubejota/clube/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// SQLite Persistence Tests
// ═══════════════════════════════════════════════════════════════════════════

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seedMember(t *testing.T, db *DB, id, email, name string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.UpsertProfile(ctx, domain.Profile{AccountID: id, Email: email, FullName: name}))
	seed := domain.ShadowAccount(id)
	seed.UpdatedAt = t0
	_, err := db.EnsureAccount(ctx, seed)
	require.NoError(t, err)
	_, err = db.Mutate(ctx, id, func(a *domain.MemberAccount) (*domain.Transaction, error) {
		a.IsMember = true
		since := t0
		a.MemberSince = &since
		return nil, nil
	})
	require.NoError(t, err)
}

// ─── Schema ─────────────────────────────────────────────────────────────────

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.UpsertProfile(context.Background(), domain.Profile{AccountID: "a1", Email: "a@x.com"}))
	require.NoError(t, db.Close())

	// Migrations are idempotent and data survives a restart.
	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()
	p, err := db.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", p.Email)
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.Ping(context.Background()))
}

// ─── Account Summaries ──────────────────────────────────────────────────────

func TestGetAccount_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetAccount(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestEnsureAccount_DoesNotOverwrite(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedMember(t, db, "a1", "a@x.com", "Ana")

	got, err := db.EnsureAccount(ctx, domain.ShadowAccount("a1"))
	require.NoError(t, err)
	assert.True(t, got.IsMember, "existing summary must survive a second seed")
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, "Ana", got.FullName)
}

func TestMutate_PersistsSummaryAndTransaction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedMember(t, db, "a1", "a@x.com", "Ana")

	acct, err := db.Mutate(ctx, "a1", func(a *domain.MemberAccount) (*domain.Transaction, error) {
		a.Balance = a.Balance.Add(dec("110"))
		a.TotalCredits = a.TotalCredits.Add(dec("110"))
		at := t0.Add(time.Hour)
		a.LastCreditAt = &at
		a.UpdatedAt = at
		return &domain.Transaction{
			ID: "tx-1", Kind: domain.KindCredit, Amount: dec("110"),
			BaseAmount: dec("100"), CashbackAmount: dec("10"),
			Description: "test", Source: domain.SourceManual, CreatedBy: "admin", CreatedAt: at,
		}, nil
	})
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(dec("110")))

	stored, err := db.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, stored.Balance.Equal(dec("110")))
	assert.Equal(t, acct.Version, stored.Version)
	require.NotNil(t, stored.LastCreditAt)
	assert.True(t, stored.LastCreditAt.Equal(t0.Add(time.Hour)))

	txs, err := db.ListTransactions(ctx, domain.TransactionQuery{AccountID: "a1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "tx-1", txs[0].ID)
	assert.True(t, txs[0].CashbackAmount.Equal(dec("10")))
	assert.Equal(t, domain.SourceManual, txs[0].Source)
}

func TestMutate_ErrorWritesNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedMember(t, db, "a1", "a@x.com", "Ana")
	before, _ := db.GetAccount(ctx, "a1")

	boom := errors.New("boom")
	_, err := db.Mutate(ctx, "a1", func(a *domain.MemberAccount) (*domain.Transaction, error) {
		a.Balance = dec("999")
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	after, _ := db.GetAccount(ctx, "a1")
	assert.True(t, after.Balance.Equal(before.Balance))
	assert.Equal(t, before.Version, after.Version)
}

func TestMutate_FailedAppendRollsBackSummary(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedMember(t, db, "a1", "a@x.com", "Ana")

	credit := func(id string) domain.MutateFunc {
		return func(a *domain.MemberAccount) (*domain.Transaction, error) {
			a.Balance = a.Balance.Add(dec("5"))
			a.TotalCredits = a.TotalCredits.Add(dec("5"))
			return &domain.Transaction{ID: id, Kind: domain.KindCredit, Amount: dec("5"),
				Source: domain.SourceManual, CreatedAt: t0}, nil
		}
	}
	_, err := db.Mutate(ctx, "a1", credit("dup"))
	require.NoError(t, err)
	// Same primary key: the insert fails, so the summary update must not stick.
	_, err = db.Mutate(ctx, "a1", credit("dup"))
	require.Error(t, err)

	acct, _ := db.GetAccount(ctx, "a1")
	assert.True(t, acct.Balance.Equal(dec("5")), "balance = %s", acct.Balance)
}

func TestMutate_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Mutate(context.Background(), "ghost", func(a *domain.MemberAccount) (*domain.Transaction, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestMutate_ConcurrentSameAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedMember(t, db, "a1", "a@x.com", "Ana")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.Mutate(ctx, "a1", func(a *domain.MemberAccount) (*domain.Transaction, error) {
				a.QualifyingActivityCount++
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acct, err := db.GetAccount(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 20, acct.QualifyingActivityCount)
}

func TestListMembers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedMember(t, db, "b", "b@x.com", "Bruno")
	seedMember(t, db, "a", "a@x.com", "ana")
	require.NoError(t, db.UpsertProfile(ctx, domain.Profile{AccountID: "c", Email: "c@x.com", FullName: "Carla"}))
	_, err := db.EnsureAccount(ctx, domain.ShadowAccount("c"))
	require.NoError(t, err)

	members, err := db.ListMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2, "shadow non-members are not listed")
	assert.Equal(t, "a", members[0].AccountID)
	assert.Equal(t, "b", members[1].AccountID)
}

// ─── Transaction History ────────────────────────────────────────────────────

func TestListTransactions_OrderAndCursor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedMember(t, db, "a1", "a@x.com", "Ana")

	// Two rows share a timestamp; the id breaks the tie.
	for _, r := range []struct {
		id string
		at time.Time
	}{
		{"01", t0}, {"02", t0.Add(time.Minute)}, {"03", t0.Add(time.Minute)}, {"04", t0.Add(2 * time.Minute)},
	} {
		_, err := db.Mutate(ctx, "a1", func(a *domain.MemberAccount) (*domain.Transaction, error) {
			return &domain.Transaction{ID: r.id, Kind: domain.KindCredit, Amount: dec("1"),
				Source: domain.SourceManual, CreatedAt: r.at}, nil
		})
		require.NoError(t, err)
	}

	page, err := db.ListTransactions(ctx, domain.TransactionQuery{AccountID: "a1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "04", page[0].ID)
	assert.Equal(t, "03", page[1].ID)

	last := page[1]
	page, err = db.ListTransactions(ctx, domain.TransactionQuery{
		AccountID: "a1", Limit: 10,
		After: &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID},
	})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "02", page[0].ID)
	assert.Equal(t, "01", page[1].ID)
}

func TestListTransactions_LegacyOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.ImportLegacyTransaction(ctx, domain.Transaction{
		ID: "old-1", AccountID: "a1", Kind: domain.KindDebit, Amount: dec("3"),
		Source: domain.SourceManual, CreatedAt: t0,
	}))

	canonical, err := db.ListTransactions(ctx, domain.TransactionQuery{AccountID: "a1"})
	require.NoError(t, err)
	assert.Empty(t, canonical)

	legacy, err := db.ListTransactions(ctx, domain.TransactionQuery{AccountID: "a1", Owner: domain.OwnerLegacy})
	require.NoError(t, err)
	require.Len(t, legacy, 1)
	assert.Equal(t, "a1", legacy[0].AccountID)
}

// ─── Directory ──────────────────────────────────────────────────────────────

func TestResolveByEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertProfile(ctx, domain.Profile{AccountID: "a1", Email: "Ana@Example.com", FullName: "Ana"}))
	require.NoError(t, db.UpsertProfile(ctx, domain.Profile{AccountID: "a2", Email: "ana@example.com", FullName: "Ana 2"}))

	got, err := db.ResolveByEmail(ctx, "  ANA@example.COM ")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].AccountID)

	_, err = db.ResolveByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestDirectoryGet_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestUpsertProfile_RequiresID(t *testing.T) {
	db := newTestDB(t)
	assert.Error(t, db.UpsertProfile(context.Background(), domain.Profile{Email: "x@y.z"}))
}

// ─── Tier Memory ────────────────────────────────────────────────────────────

func TestTierMemory_CompareAndSwap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, ok, err := db.LastKnownTier(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, ok)

	swapped, err := db.SwapTier(ctx, "a1", "", false, domain.TierBronze)
	require.NoError(t, err)
	assert.True(t, swapped)

	// A second baseline attempt loses.
	swapped, err = db.SwapTier(ctx, "a1", "", false, domain.TierGold)
	require.NoError(t, err)
	assert.False(t, swapped)

	swapped, err = db.SwapTier(ctx, "a1", domain.TierBronze, true, domain.TierSilver)
	require.NoError(t, err)
	assert.True(t, swapped)

	// Stale expectation loses.
	swapped, err = db.SwapTier(ctx, "a1", domain.TierBronze, true, domain.TierSilver)
	require.NoError(t, err)
	assert.False(t, swapped)

	tier, ok, err := db.LastKnownTier(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.TierSilver, tier)
}
