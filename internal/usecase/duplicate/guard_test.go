package duplicate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/simaogato/fundsflow-backend/internal/adapter/repository/memory"
	"github.com/simaogato/fundsflow-backend/internal/domain"
)

type failingLedger struct {
	domain.LedgerStore
}

func (failingLedger) ExistsSimilarSince(context.Context, domain.SimilarTransferQuery, time.Time) (bool, error) {
	return false, errors.New("db down")
}

func TestGuard_Check(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 7, 17, 10, 0, 0, 0, time.UTC)

	store := memory.NewStore()
	rec, err := domain.NewTransferRecord(domain.NewTransferRecordParams{
		SenderID:   1,
		ReceiverID: 2,
		Amount:     domain.MustMoney("100.00"),
		Type:       domain.TransactionTypeTransfer,
		Reference:  domain.NewReference(created),
		CreatedAt:  created,
	})
	assert.NoError(t, err)
	_, err = store.Insert(ctx, rec)
	assert.NoError(t, err)

	query := domain.SimilarTransferQuery{
		SenderID:   1,
		ReceiverID: 2,
		Amount:     decimal.RequireFromString("100.00"),
		Type:       domain.TransactionTypeTransfer,
	}

	tests := []struct {
		name    string
		at      time.Time
		query   domain.SimilarTransferQuery
		wantDup bool
	}{
		{name: "Same transfer one minute later", at: created.Add(time.Minute), query: query, wantDup: true},
		{name: "Same transfer exactly five minutes later", at: created.Add(5 * time.Minute), query: query, wantDup: true},
		{name: "Same transfer six minutes later", at: created.Add(6 * time.Minute), query: query},
		{name: "Different amount", at: created.Add(time.Minute), query: domain.SimilarTransferQuery{
			SenderID: 1, ReceiverID: 2, Amount: decimal.RequireFromString("100.01"), Type: domain.TransactionTypeTransfer,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGuard(store).Check(ctx, tt.query, tt.at)
			if tt.wantDup {
				assert.ErrorIs(t, err, domain.ErrDuplicateTransaction)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGuard_Check_LedgerError(t *testing.T) {
	g := NewGuard(failingLedger{})
	err := g.Check(context.Background(), domain.SimilarTransferQuery{SenderID: 1, ReceiverID: 2}, time.Now())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrDuplicateTransaction)
}
