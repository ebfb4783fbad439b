package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var balanceEpsilon = decimal.New(1, -2)

// AccountBalance is an immutable, non-negative balance owned by one account.
// Subtract and Add return new values; persisting them is the caller's job.
type AccountBalance struct {
	value decimal.Decimal
}

// NewAccountBalance fails with ErrInvalidBalance when value is negative
func NewAccountBalance(value decimal.Decimal) (AccountBalance, error) {
	if value.IsNegative() {
		return AccountBalance{}, fmt.Errorf("%w: balance cannot be negative", ErrInvalidBalance)
	}
	return AccountBalance{value: value}, nil
}

// ZeroBalance returns an empty balance
func ZeroBalance() AccountBalance {
	return AccountBalance{value: decimal.Zero}
}

// Decimal returns the underlying decimal value
func (b AccountBalance) Decimal() decimal.Decimal {
	return b.value
}

// CanAfford reports whether the balance covers amount
func (b AccountBalance) CanAfford(amount Money) bool {
	return b.value.GreaterThanOrEqual(amount.Decimal())
}

// Subtract debits amount. It refuses to produce a negative balance even if
// the caller already checked CanAfford.
func (b AccountBalance) Subtract(amount Money) (AccountBalance, error) {
	next := b.value.Sub(amount.Decimal())
	if next.IsNegative() {
		return AccountBalance{}, fmt.Errorf("%w: resulting balance cannot be negative", ErrInvalidBalance)
	}
	return AccountBalance{value: next}, nil
}

// Add credits amount
func (b AccountBalance) Add(amount Money) AccountBalance {
	return AccountBalance{value: b.value.Add(amount.Decimal())}
}

// IsZero reports whether the balance is exactly zero
func (b AccountBalance) IsZero() bool {
	return b.value.IsZero()
}

// Equals compares balances to the cent
func (b AccountBalance) Equals(other AccountBalance) bool {
	return b.value.Sub(other.value).Abs().LessThan(balanceEpsilon)
}

// String renders the balance with two decimals
func (b AccountBalance) String() string {
	return b.value.StringFixed(2)
}
