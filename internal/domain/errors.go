package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency. Each message names
// the precondition that failed, since each calls for a different fix.

var (
	// Membership errors
	ErrNotMember     = errors.New("account is not an active member")
	ErrAlreadyMember = errors.New("account is already an active member")

	// Amount errors
	ErrInsufficientBalance = errors.New("insufficient balance: debit exceeds current balance")
	ErrInvalidAmount       = errors.New("invalid amount: must be a positive value in centavos")

	// Identity errors
	ErrAccountNotFound = errors.New("account not found in directory")
	ErrNotAuthorized   = errors.New("actor is not allowed to administer the club")

	// Import errors
	ErrImportFormat  = errors.New("import format error")
	ErrPartialImport = errors.New("import partially failed")

	// Infrastructure errors
	ErrStoreUnavailable = errors.New("persistent store unavailable")

	// Policy errors
	ErrInvalidPolicy = errors.New("invalid loyalty policy")
)

// IsRejection reports whether err is a precondition failure on a single
// operation, as opposed to an infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrNotMember, ErrAlreadyMember, ErrInsufficientBalance,
		ErrInvalidAmount, ErrAccountNotFound, ErrNotAuthorized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// FormatError reports required columns missing from an import header.
type FormatError struct {
	Missing []string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: missing required column(s) %s", ErrImportFormat, strings.Join(e.Missing, ", "))
}

// Unwrap lets errors.Is match ErrImportFormat.
func (e *FormatError) Unwrap() error { return ErrImportFormat }

// RowError is one failed line of an import commit.
type RowError struct {
	Row       int    `json:"row"`
	Email     string `json:"email"`
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

// PartialImportError aggregates the failed rows of a best-effort commit.
type PartialImportError struct {
	Rows []RowError
}

func (e *PartialImportError) Error() string {
	return fmt.Sprintf("%s: %d row(s) failed", ErrPartialImport, len(e.Rows))
}

// Unwrap lets errors.Is match ErrPartialImport.
func (e *PartialImportError) Unwrap() error { return ErrPartialImport }
