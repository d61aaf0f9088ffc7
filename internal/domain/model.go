// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture; it depends on nothing
// but the decimal type used for money.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Tier Types ─────────────────────────────────────────────────────────────

// Tier is a member's loyalty rank, derived from qualifying activity.
type Tier string

const (
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// String returns the tier label.
func (t Tier) String() string { return string(t) }

// ─── Account Types ──────────────────────────────────────────────────────────

// MemberAccount is one member's ledger summary.
// Invariant: Balance == TotalCredits - TotalDebits, Balance >= 0.
type MemberAccount struct {
	AccountID               string          `json:"account_id"`
	Email                   string          `json:"email,omitempty"`
	FullName                string          `json:"full_name,omitempty"`
	IsMember                bool            `json:"is_member"`
	Tier                    Tier            `json:"tier"`
	Balance                 decimal.Decimal `json:"balance"`
	TotalCredits            decimal.Decimal `json:"total_credits"`
	TotalDebits             decimal.Decimal `json:"total_debits"`
	QualifyingActivityCount int             `json:"qualifying_activity_count"`
	MemberSince             *time.Time      `json:"member_since,omitempty"`
	LastCreditAt            *time.Time      `json:"last_credit_at,omitempty"`
	Version                 int64           `json:"version"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// ShadowAccount returns the non-member default for an account that has
// never been touched by the ledger.
func ShadowAccount(accountID string) MemberAccount {
	return MemberAccount{
		AccountID:    accountID,
		Tier:         TierBronze,
		Balance:      decimal.Zero,
		TotalCredits: decimal.Zero,
		TotalDebits:  decimal.Zero,
	}
}

// BalanceConsistent reports whether the balance identity holds.
func (a MemberAccount) BalanceConsistent() bool {
	return a.Balance.Equal(a.TotalCredits.Sub(a.TotalDebits)) && !a.Balance.IsNegative()
}

// Profile is an identity record owned by the account directory.
type Profile struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
}

// ─── Promotion Events ───────────────────────────────────────────────────────

// PromotionEvent is raised once per account per tier rise.
type PromotionEvent struct {
	AccountID string    `json:"account_id"`
	From      Tier      `json:"from"`
	To        Tier      `json:"to"`
	At        time.Time `json:"at"`
}
