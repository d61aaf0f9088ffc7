package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Transaction Types ──────────────────────────────────────────────────────
// Transactions are append-only: never mutated, never deleted, never re-parented.

// TransactionKind is the ledger side of a transaction.
type TransactionKind string

const (
	KindCredit TransactionKind = "credit"
	KindDebit  TransactionKind = "debit"
)

// Source records where a transaction originated.
type Source string

const (
	SourceManual Source = "manual"
	SourceImport Source = "import"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceManual || s == SourceImport
}

// Transaction is a single immutable ledger record.
// For credits Amount = BaseAmount + CashbackAmount.
type Transaction struct {
	ID             string          `json:"id"`
	AccountID      string          `json:"account_id"`
	Kind           TransactionKind `json:"kind"`
	Amount         decimal.Decimal `json:"amount"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	CashbackAmount decimal.Decimal `json:"cashback_amount"`
	IsQualifying   bool            `json:"is_qualifying,omitempty"`
	Description    string          `json:"description"`
	Source         Source          `json:"source"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ─── Transaction Queries ────────────────────────────────────────────────────

// OwnerField selects which stored column identifies a transaction's owner.
type OwnerField int

const (
	// OwnerCanonical is the current account_id column.
	OwnerCanonical OwnerField = iota
	// OwnerLegacy is the deprecated alias written by older clients.
	OwnerLegacy
)

// String names the owner field for logs.
func (f OwnerField) String() string {
	if f == OwnerLegacy {
		return "legacy_owner_id"
	}
	return "account_id"
}

// Cursor is a keyset position in newest-first order.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// TransactionQuery selects one page of an account's history, newest first.
// Ties on CreatedAt are broken by ID descending.
type TransactionQuery struct {
	AccountID string
	Owner     OwnerField
	Limit     int
	After     *Cursor // exclusive; nil starts from the newest
}
