// Package cashback computes the bonus added on top of credited amounts.
package cashback

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/clubejota/clube/internal/domain"
)

// DefaultRate is the club's standard cashback (10%).
var DefaultRate = decimal.RequireFromString("0.10")

// Calculator holds the configured default rate.
type Calculator struct {
	rate decimal.Decimal
}

// New returns a calculator with the given default rate. Rates must be >= 0.
func New(rate decimal.Decimal) (Calculator, error) {
	if err := ValidateRate(rate); err != nil {
		return Calculator{}, err
	}
	return Calculator{rate: rate}, nil
}

// Rate returns the configured default rate.
func (c Calculator) Rate() decimal.Decimal { return c.rate }

// Split applies the default rate.
func (c Calculator) Split(base decimal.Decimal) (cashback, total decimal.Decimal, err error) {
	return SplitAt(base, c.rate)
}

// ValidateRate rejects negative rates.
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() {
		return fmt.Errorf("%w: cashback rate %s is negative", domain.ErrInvalidPolicy, rate)
	}
	return nil
}

// Cashback returns base*rate rounded half-to-even to the currency minor unit.
func Cashback(base, rate decimal.Decimal) (decimal.Decimal, error) {
	if !base.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: base amount %s", domain.ErrInvalidAmount, base)
	}
	if err := ValidateRate(rate); err != nil {
		return decimal.Zero, err
	}
	return base.Mul(rate).RoundBank(domain.MinorUnitPlaces), nil
}

// Total returns base + Cashback(base, rate).
func Total(base, rate decimal.Decimal) (decimal.Decimal, error) {
	cb, err := Cashback(base, rate)
	if err != nil {
		return decimal.Zero, err
	}
	return base.Add(cb), nil
}

// SplitAt returns both the cashback and the total credit.
func SplitAt(base, rate decimal.Decimal) (cashback, total decimal.Decimal, err error) {
	cashback, err = Cashback(base, rate)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return cashback, base.Add(cashback), nil
}
