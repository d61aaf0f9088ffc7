package domain

import "context"

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// AccountDirectory resolves member identities. The ledger never creates
// identities; only the directory does.
type AccountDirectory interface {
	// ResolveByEmail returns every profile registered under the email
	// (trimmed, case-insensitive). ErrAccountNotFound when there is none.
	ResolveByEmail(ctx context.Context, email string) ([]Profile, error)

	// Get returns a profile by account ID, or ErrAccountNotFound.
	Get(ctx context.Context, accountID string) (Profile, error)
}

// MutateFunc edits an account summary in place and returns the transaction
// to append alongside it (nil for none). Returning an error discards both.
type MutateFunc func(acct *MemberAccount) (*Transaction, error)

// LedgerStore is the persistent store for account summaries and their
// append-only transaction history.
type LedgerStore interface {
	// GetAccount returns the stored summary, or ErrAccountNotFound when no
	// record exists yet. Never writes.
	GetAccount(ctx context.Context, accountID string) (MemberAccount, error)

	// EnsureAccount seeds a shadow record if none exists and returns the
	// stored summary.
	EnsureAccount(ctx context.Context, seed MemberAccount) (MemberAccount, error)

	// Mutate performs an atomic read-modify-write of one account summary
	// together with at most one transaction append. Readers observe both
	// writes or neither.
	Mutate(ctx context.Context, accountID string, fn MutateFunc) (MemberAccount, error)

	// ListMembers returns every active member, ordered by name.
	ListMembers(ctx context.Context) ([]MemberAccount, error)

	// ListTransactions returns one page of history.
	ListTransactions(ctx context.Context, q TransactionQuery) ([]Transaction, error)
}

// TierMemory durably remembers the last tier announced per account,
// independent of the account's live tier field.
type TierMemory interface {
	// LastKnownTier returns the remembered tier; ok is false on first observation.
	LastKnownTier(ctx context.Context, accountID string) (tier Tier, ok bool, err error)

	// SwapTier replaces the remembered tier only if it still equals old
	// (or, when hadOld is false, only if nothing is remembered yet).
	// Returns false when another observer got there first.
	SwapTier(ctx context.Context, accountID string, old Tier, hadOld bool, next Tier) (bool, error)
}

// AuthorizationGate decides whether an actor may run administrative
// ledger operations.
type AuthorizationGate interface {
	CanAdminister(ctx context.Context, actorID string) (bool, error)
}
