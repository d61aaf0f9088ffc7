package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Account Tests ──────────────────────────────────────────────────────────

func TestShadowAccount(t *testing.T) {
	a := ShadowAccount("acct-1")
	assert.Equal(t, "acct-1", a.AccountID)
	assert.False(t, a.IsMember)
	assert.Equal(t, TierBronze, a.Tier)
	assert.True(t, a.Balance.IsZero())
	assert.Nil(t, a.MemberSince)
	assert.True(t, a.BalanceConsistent())
}

func TestBalanceConsistent(t *testing.T) {
	tests := []struct {
		name     string
		balance  string
		credits  string
		debits   string
		expected bool
	}{
		{"zero", "0", "0", "0", true},
		{"credits minus debits", "80.50", "110", "29.50", true},
		{"drifted", "100", "110", "0", false},
		{"negative", "-10", "0", "10", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := MemberAccount{
				Balance:      decimal.RequireFromString(tt.balance),
				TotalCredits: decimal.RequireFromString(tt.credits),
				TotalDebits:  decimal.RequireFromString(tt.debits),
			}
			assert.Equal(t, tt.expected, a.BalanceConsistent())
		})
	}
}

// ─── Money Tests ────────────────────────────────────────────────────────────

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"100,00", "100"},
		{"1.234,56", "1234.56"},
		{"R$ 50,10", "50.1"},
		{"  7,5 ", "7.5"},
		{"1.000.000,01", "1000000.01"},
		{"-3,00", "-3"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "R$", "12,3,4"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseAmount(in)
			assert.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("0.01")))
	assert.ErrorIs(t, ValidateAmount(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, ValidateAmount(decimal.RequireFromString("-1")), ErrInvalidAmount)
	assert.ErrorIs(t, ValidateAmount(decimal.RequireFromString("1.001")), ErrInvalidAmount)
}

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"0", "R$ 0,00"},
		{"110", "R$ 110,00"},
		{"1234.5", "R$ 1.234,50"},
		{"1000000.01", "R$ 1.000.000,01"},
		{"-10", "-R$ 10,00"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBRL(decimal.RequireFromString(tt.amount)))
		})
	}
}

// ─── Error Tests ────────────────────────────────────────────────────────────

func TestSentinelErrors_DistinctMessages(t *testing.T) {
	errs := []error{
		ErrNotMember, ErrAlreadyMember, ErrInsufficientBalance, ErrInvalidAmount,
		ErrAccountNotFound, ErrNotAuthorized, ErrImportFormat, ErrPartialImport,
		ErrStoreUnavailable, ErrInvalidPolicy,
	}
	seen := make(map[string]bool)
	for _, err := range errs {
		msg := err.Error()
		assert.NotEmpty(t, msg)
		assert.False(t, seen[msg], "duplicate message %q", msg)
		seen[msg] = true
	}
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(fmt.Errorf("credit acct-1: %w", ErrNotMember)))
	assert.True(t, IsRejection(ErrInsufficientBalance))
	assert.False(t, IsRejection(ErrStoreUnavailable))
	assert.False(t, IsRejection(errors.New("disk I/O error")))
	assert.False(t, IsRejection(nil))
}

func TestFormatError(t *testing.T) {
	err := error(&FormatError{Missing: []string{"E-mail", "Valor Líquido"}})
	assert.ErrorIs(t, err, ErrImportFormat)
	assert.Contains(t, err.Error(), "E-mail, Valor Líquido")
}

func TestPartialImportError(t *testing.T) {
	err := error(&PartialImportError{Rows: []RowError{{Row: 3, Reason: "not a member"}}})
	assert.ErrorIs(t, err, ErrPartialImport)
	var pe *PartialImportError
	require.ErrorAs(t, err, &pe)
	assert.Len(t, pe.Rows, 1)
}

func TestSourceValid(t *testing.T) {
	assert.True(t, SourceManual.Valid())
	assert.True(t, SourceImport.Valid())
	assert.False(t, Source("api").Valid())
}

func TestOwnerFieldString(t *testing.T) {
	assert.Equal(t, "account_id", OwnerCanonical.String())
	assert.Equal(t, "legacy_owner_id", OwnerLegacy.String())
}
