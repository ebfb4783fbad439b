package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// MinUnit is the smallest amount that can be moved (one cent)
	MinUnit = decimal.New(1, -2)

	// DailyLimit is the ceiling on the sum of a sender's completed transfers per calendar day
	DailyLimit = decimal.NewFromInt(5000)

	moneyEpsilon = decimal.New(1, -3)
)

// Money is an immutable, strictly positive monetary value.
// It is never persisted on its own; stores write the raw decimal.
type Money struct {
	value decimal.Decimal
}

// NewMoney validates value and returns a Money.
// Fails with ErrInvalidAmount when value <= 0 or value < MinUnit.
func NewMoney(value decimal.Decimal) (Money, error) {
	if value.LessThanOrEqual(decimal.Zero) {
		return Money{}, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	if value.LessThan(MinUnit) {
		return Money{}, fmt.Errorf("%w: minimum transfer amount is %s", ErrInvalidAmount, MinUnit.StringFixed(2))
	}
	return Money{value: value}, nil
}

// NewMoneyFromFloat builds a Money from a float64
func NewMoneyFromFloat(value float64) (Money, error) {
	return NewMoney(decimal.NewFromFloat(value))
}

// MoneyFromMinorUnits builds a Money from a whole number of cents
func MoneyFromMinorUnits(cents int64) (Money, error) {
	return NewMoney(decimal.New(cents, -2))
}

// MustMoney is NewMoney for literals known to be valid. It panics otherwise.
func MustMoney(value string) Money {
	m, err := NewMoney(decimal.RequireFromString(value))
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal returns the underlying decimal value
func (m Money) Decimal() decimal.Decimal {
	return m.value
}

// ExceedsLimit reports whether the amount is strictly greater than threshold
func (m Money) ExceedsLimit(threshold decimal.Decimal) bool {
	return m.value.GreaterThan(threshold)
}

// ExceedsDailyLimit reports whether the amount alone is above DailyLimit
func (m Money) ExceedsDailyLimit() bool {
	return m.ExceedsLimit(DailyLimit)
}

// IsValidForTransfer reports whether MinUnit <= amount <= DailyLimit
func (m Money) IsValidForTransfer() bool {
	return m.value.GreaterThanOrEqual(MinUnit) && !m.ExceedsDailyLimit()
}

// ToMinorUnits converts the amount to whole cents, rounding half away from zero
func (m Money) ToMinorUnits() int64 {
	return m.value.Shift(2).Round(0).IntPart()
}

// Add returns the sum of both amounts as a new Money
func (m Money) Add(other Money) Money {
	return Money{value: m.value.Add(other.value)}
}

// Equals compares with a 0.001 tolerance so values that went through
// binary floating point still compare equal
func (m Money) Equals(other Money) bool {
	return m.value.Sub(other.value).Abs().LessThan(moneyEpsilon)
}

// String renders the amount with two decimals
func (m Money) String() string {
	return m.value.StringFixed(2)
}
