// Package types provides common type aliases and money policy helpers.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoney creates a Money value from a float.
// WARNING: Use NewMoneyFromString for precise values.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Money rounding policy for valuations.
//
// Amounts are rounded to 2 decimal places every time a value crosses a layer
// boundary (unit cost × quantity, location splits), and portfolio-level totals
// are rounded to whole units of the base currency. Rounding lives here, in one
// place, so repeated runs over identical input stay bit-identical.

// MoneyScale is the scale used for layer-level amounts.
const MoneyScale int32 = 2

// RoundMoney rounds an amount to the layer-boundary scale (2 decimals).
func RoundMoney(m Money) Money {
	return m.Round(MoneyScale)
}

// RoundWholeMoney rounds an amount to whole currency units. Used only for
// portfolio-level totals.
func RoundWholeMoney(m Money) Money {
	return m.Round(0)
}

// MulRound multiplies quantity by unit amount and applies layer rounding.
func MulRound(qty int, unit Money) Money {
	return RoundMoney(unit.Mul(decimal.NewFromInt(int64(qty))))
}
