package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitPlaces is the number of decimal places of the account currency (BRL).
const MinorUnitPlaces = 2

// ValidateAmount checks that amt is positive and fits the currency minor unit.
func ValidateAmount(amt decimal.Decimal) error {
	if !amt.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amt.String())
	}
	if !amt.Equal(amt.Truncate(MinorUnitPlaces)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amt.String(), MinorUnitPlaces)
	}
	return nil
}

// ParseAmount parses a Brazilian-formatted amount such as "R$ 1.234,56".
// Dots are thousands separators and the comma is the decimal separator.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	return d, nil
}

// FormatBRL renders an amount as "R$ 1.234,56".
func FormatBRL(amt decimal.Decimal) string {
	sign := ""
	if amt.IsNegative() {
		sign = "-"
		amt = amt.Neg()
	}
	fixed := amt.StringFixedBank(MinorUnitPlaces)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%sR$ %s,%s", sign, b.String(), frac)
}
