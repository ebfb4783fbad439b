package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBalance(t *testing.T, value string) AccountBalance {
	t.Helper()
	b, err := NewAccountBalance(decimal.RequireFromString(value))
	require.NoError(t, err)
	return b
}

func TestNewAccountBalance(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "Zero balance should pass", value: "0"},
		{name: "Positive balance should pass", value: "1000.50"},
		{name: "Negative balance should fail", value: "-0.01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAccountBalance(decimal.RequireFromString(tt.value))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBalance)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAccountBalance_CanAfford(t *testing.T) {
	b := mustBalance(t, "100.00")

	assert.True(t, b.CanAfford(MustMoney("99.99")))
	assert.True(t, b.CanAfford(MustMoney("100.00")))
	assert.False(t, b.CanAfford(MustMoney("100.01")))
}

func TestAccountBalance_Subtract(t *testing.T) {
	b := mustBalance(t, "50.00")

	next, err := b.Subtract(MustMoney("20.00"))
	require.NoError(t, err)
	assert.Equal(t, "30.00", next.String())
	assert.Equal(t, "50.00", b.String(), "original balance must not change")

	drained, err := b.Subtract(MustMoney("50.00"))
	require.NoError(t, err)
	assert.True(t, drained.IsZero())

	_, err = b.Subtract(MustMoney("100.00"))
	assert.ErrorIs(t, err, ErrInvalidBalance)
	assert.Contains(t, err.Error(), "resulting balance cannot be negative")
}

func TestAccountBalance_Add(t *testing.T) {
	b := ZeroBalance()
	next := b.Add(MustMoney("10.10"))

	assert.Equal(t, "10.10", next.String())
	assert.True(t, b.IsZero())
	assert.False(t, next.IsZero())
}

func TestAccountBalance_Equals(t *testing.T) {
	assert.True(t, mustBalance(t, "10.001").Equals(mustBalance(t, "10.00")))
	assert.False(t, mustBalance(t, "10.01").Equals(mustBalance(t, "10.00")))
}
