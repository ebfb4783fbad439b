package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/simaogato/fundsflow-backend/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantBusy bool
	}{
		{name: "Lock not available", err: &pq.Error{Code: "55P03"}, wantBusy: true},
		{name: "Deadlock detected", err: fmt.Errorf("failed to lock accounts: %w", &pq.Error{Code: "40P01"}), wantBusy: true},
		{name: "Serialization failure", err: &pq.Error{Code: "40001"}, wantBusy: true},
		{name: "Statement timeout", err: &pq.Error{Code: "57014"}, wantBusy: true},
		{name: "Context deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), wantBusy: true},
		{name: "Already busy", err: domain.ErrBusy, wantBusy: true},
		{name: "Check violation", err: &pq.Error{Code: "23514"}},
		{name: "Business rejection", err: domain.ErrInsufficientFunds},
		{name: "Plain error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.wantBusy, errors.Is(got, domain.ErrBusy))
			assert.ErrorIs(t, got, tt.err, "the original error must stay inspectable")
		})
	}

	assert.NoError(t, classify(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestTxFrom(t *testing.T) {
	_, ok := TxFrom(context.Background())
	assert.False(t, ok)

	ctx := WithTx(context.Background(), nil)
	_, ok = TxFrom(ctx)
	assert.False(t, ok, "a nil transaction is never stored")

	tx := &sql.Tx{}
	got, ok := TxFrom(WithTx(context.Background(), tx))
	assert.True(t, ok)
	assert.Same(t, tx, got)
}
