// Package money holds the single conversion boundary between decimal
// currency amounts and integer minor units (cents). Every calculation in
// the checkout path works on int64 minor units; decimals appear only at
// input and display edges.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxChargeCents is the largest amount the payment processor accepts
// (eight digits of minor units).
const MaxChargeCents int64 = 99_999_999

var (
	ErrNegative  = errors.New("money: negative amount")
	ErrPrecision = errors.New("money: more than 2 fractional digits")
)

var hundred = decimal.NewFromInt(100)

// ToCents converts a decimal amount to minor units, rounding half away from zero.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromCents converts minor units back to a 2-place decimal.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ParseCents parses a non-negative decimal string such as "50.00".
func ParseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, ErrNegative
	}
	if !d.Equal(d.Round(2)) {
		return 0, ErrPrecision
	}
	return ToCents(d), nil
}

// Format renders cents for display, e.g. "$100.00 MXN".
func Format(cents int64, currency string) string {
	return fmt.Sprintf("$%s %s", FromCents(cents).StringFixed(2), strings.ToUpper(currency))
}

// MulCents multiplies a non-negative unit price by a quantity. ok is false
// on overflow or negative input.
func MulCents(unit int64, qty int) (int64, bool) {
	if unit < 0 || qty < 0 {
		return 0, false
	}
	q := int64(qty)
	if q != 0 && unit > math.MaxInt64/q {
		return 0, false
	}
	return unit * q, true
}

// AddCents adds two non-negative amounts. ok is false on overflow.
func AddCents(a, b int64) (int64, bool) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}
