package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in integer minor units (cents) of the settlement
// currency. All arithmetic stays on integers; derived quantities such as
// fees and commissions are rounded half-up exactly once, never chained.
type Money int64

// Zero is the additive identity.
const Zero Money = 0

// FromCents wraps a raw minor-unit amount.
func FromCents(v int64) Money {
	return Money(v)
}

// Cents returns the raw minor-unit amount.
func (m Money) Cents() int64 {
	return int64(m)
}

func (m Money) Add(other Money) Money {
	return m + other
}

func (m Money) Sub(other Money) Money {
	return m - other
}

// MulInt multiplies by a unitless quantity (e.g. a line item count).
func (m Money) MulInt(q int64) Money {
	return Money(int64(m) * q)
}

func (m Money) IsNegative() bool {
	return m < 0
}

// ApplyRate multiplies by a fractional rate (e.g. 0.03) and rounds half-up
// to the nearest minor unit. Amounts handled here are non-negative, so
// decimal's round-half-away-from-zero is round-half-up.
func (m Money) ApplyRate(rate decimal.Decimal) Money {
	v := decimal.New(int64(m), 0).Mul(rate).Round(0)
	return Money(v.IntPart())
}

// ApplyPercent applies an integer percentage in [0,100], rounding half-up.
func (m Money) ApplyPercent(pct int64) Money {
	return m.ApplyRate(decimal.New(pct, -2))
}

// String formats the amount as a decimal major-unit string ("103.00").
// Formatting belongs at presentation boundaries only.
func (m Money) String() string {
	return decimal.New(int64(m), -2).StringFixed(2)
}

// Parse converts a decimal major-unit string ("103.00") into Money.
// Fractions finer than one minor unit are rejected.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("parse amount %q: sub-cent precision", s)
	}
	return Money(shifted.IntPart()), nil
}
