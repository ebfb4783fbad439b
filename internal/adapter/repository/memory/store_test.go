package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/fundsflow-backend/internal/domain"
)

var day = time.Date(2025, 7, 17, 10, 0, 0, 0, time.UTC)

func seedAccount(t *testing.T, s *Store, email, balance string) *domain.Account {
	t.Helper()
	b, err := domain.NewAccountBalance(decimal.RequireFromString(balance))
	require.NoError(t, err)
	a := &domain.Account{Name: email, Email: email, Balance: b}
	require.NoError(t, s.Create(context.Background(), a))
	return a
}

func newRecord(t *testing.T, sender, receiver int64, amount string, createdAt time.Time) *domain.TransferRecord {
	t.Helper()
	r, err := domain.NewTransferRecord(domain.NewTransferRecordParams{
		SenderID:   sender,
		ReceiverID: receiver,
		Amount:     domain.MustMoney(amount),
		Type:       domain.TransactionTypeTransfer,
		Reference:  domain.NewReference(createdAt),
		CreatedAt:  createdAt,
	})
	require.NoError(t, err)
	return r
}

func TestStore_RunInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAccount(t, s, "alice@example.com", "100.00")

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		accounts, err := s.LockAndFetch(ctx, []int64{a.ID})
		require.NoError(t, err)
		require.Len(t, accounts, 1)

		require.NoError(t, s.SaveBalance(ctx, a.ID, domain.ZeroBalance()))
		rec, err := s.Insert(ctx, newRecord(t, a.ID, 99, "10.00", day))
		require.NoError(t, err)
		require.NoError(t, s.UpdateStatus(ctx, rec.ID, domain.StatusCompleted, day))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", got.Balance.String())
	assert.Empty(t, s.Records())
}

func TestStore_RunInTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAccount(t, s, "alice@example.com", "100.00")

	var ref string
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.LockAndFetch(ctx, []int64{a.ID}); err != nil {
			return err
		}
		b, _ := domain.NewAccountBalance(decimal.RequireFromString("40"))
		if err := s.SaveBalance(ctx, a.ID, b); err != nil {
			return err
		}
		rec, err := s.Insert(ctx, newRecord(t, a.ID, 99, "60.00", day))
		if err != nil {
			return err
		}
		ref = rec.Reference
		return nil
	})
	require.NoError(t, err)

	got, _ := s.GetByID(ctx, a.ID)
	assert.Equal(t, "40.00", got.Balance.String())

	rec, err := s.GetByReference(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)
	assert.True(t, rec.IsPending())
}

func TestStore_LockAndFetch_RequiresUnitOfWork(t *testing.T) {
	s := NewStore()
	_, err := s.LockAndFetch(context.Background(), []int64{1})
	assert.Error(t, err)
}

func TestStore_LockAndFetch_SkipsMissingRows(t *testing.T) {
	s := NewStore()
	a := seedAccount(t, s, "alice@example.com", "1.00")

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		accounts, err := s.LockAndFetch(ctx, []int64{42, a.ID, a.ID})
		require.NoError(t, err)
		require.Len(t, accounts, 1)
		assert.Equal(t, a.ID, accounts[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_LockTimeoutReturnsBusy(t *testing.T) {
	s := NewStore(WithLockTimeout(50 * time.Millisecond))
	a := seedAccount(t, s, "alice@example.com", "1.00")

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.RunInTx(context.Background(), func(ctx context.Context) error {
			if _, err := s.LockAndFetch(ctx, []int64{a.ID}); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := s.LockAndFetch(ctx, []int64{a.ID})
		return err
	})
	close(done)
	assert.ErrorIs(t, err, domain.ErrBusy)
}

func TestStore_LocksReleasedAfterUnit(t *testing.T) {
	s := NewStore(WithLockTimeout(50 * time.Millisecond))
	a := seedAccount(t, s, "alice@example.com", "1.00")

	for i := 0; i < 3; i++ {
		err := s.RunInTx(context.Background(), func(ctx context.Context) error {
			_, err := s.LockAndFetch(ctx, []int64{a.ID})
			return err
		})
		require.NoError(t, err)
	}
}

func TestStore_GetByReferenceForUpdate_RequiresUnitOfWork(t *testing.T) {
	s := NewStore()
	rec, err := s.Insert(context.Background(), newRecord(t, 1, 2, "5.00", day))
	require.NoError(t, err)

	_, err = s.GetByReferenceForUpdate(context.Background(), rec.Reference)
	assert.Error(t, err)
}

func TestStore_GetByReferenceForUpdate_NotFound(t *testing.T) {
	s := NewStore()
	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := s.GetByReferenceForUpdate(ctx, "TXN-missing")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrTransferNotFound)
}

func TestStore_GetByReferenceForUpdate_HoldsRecordLock(t *testing.T) {
	s := NewStore(WithLockTimeout(50 * time.Millisecond))
	rec, err := s.Insert(context.Background(), newRecord(t, 1, 2, "5.00", day))
	require.NoError(t, err)

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.RunInTx(context.Background(), func(ctx context.Context) error {
			if _, err := s.GetByReferenceForUpdate(ctx, rec.Reference); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked

	// Record locks do not collide with the account that shares the id.
	err = s.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := s.LockAndFetch(ctx, []int64{rec.ID})
		return err
	})
	require.NoError(t, err)

	err = s.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := s.GetByReferenceForUpdate(ctx, rec.Reference)
		return err
	})
	close(done)
	assert.ErrorIs(t, err, domain.ErrBusy)
}

func TestStore_SumCompletedTransfersForDay(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	dayStart := time.Date(2025, 7, 17, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	completed := func(sender int64, amount string, at time.Time) {
		rec, err := s.Insert(ctx, newRecord(t, sender, 2, amount, at))
		require.NoError(t, err)
		require.NoError(t, s.UpdateStatus(ctx, rec.ID, domain.StatusCompleted, at))
	}

	completed(1, "100.00", dayStart)
	completed(1, "250.50", dayEnd.Add(-time.Nanosecond))
	completed(1, "999.00", dayEnd)                     // next day
	completed(1, "999.00", dayStart.Add(-time.Second)) // previous day
	completed(3, "999.00", day)                        // other sender

	_, err := s.Insert(ctx, newRecord(t, 1, 2, "999.00", day)) // still pending
	require.NoError(t, err)

	total, err := s.SumCompletedTransfersForDay(ctx, 1, dayStart, dayEnd)
	require.NoError(t, err)
	assert.Equal(t, "350.50", total.StringFixed(2))

	empty, err := s.SumCompletedTransfersForDay(ctx, 7, dayStart, dayEnd)
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}

func TestStore_ExistsSimilarSince(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, err := s.Insert(ctx, newRecord(t, 1, 2, "100.00", day))
	require.NoError(t, err)

	base := domain.SimilarTransferQuery{
		SenderID:   1,
		ReceiverID: 2,
		Amount:     decimal.RequireFromString("100"),
		Type:       domain.TransactionTypeTransfer,
	}

	tests := []struct {
		name   string
		mutate func(q *domain.SimilarTransferQuery)
		since  time.Time
		want   bool
	}{
		{name: "Exact match inside window", mutate: func(q *domain.SimilarTransferQuery) {}, since: day.Add(-time.Minute), want: true},
		{name: "Match at window boundary", mutate: func(q *domain.SimilarTransferQuery) {}, since: day, want: true},
		{name: "Record older than window", mutate: func(q *domain.SimilarTransferQuery) {}, since: day.Add(time.Second), want: false},
		{name: "Different amount", mutate: func(q *domain.SimilarTransferQuery) { q.Amount = decimal.RequireFromString("100.01") }, since: day.Add(-time.Minute)},
		{name: "Different receiver", mutate: func(q *domain.SimilarTransferQuery) { q.ReceiverID = 3 }, since: day.Add(-time.Minute)},
		{name: "Reversed direction", mutate: func(q *domain.SimilarTransferQuery) { q.SenderID, q.ReceiverID = 2, 1 }, since: day.Add(-time.Minute)},
		{name: "Different type", mutate: func(q *domain.SimilarTransferQuery) { q.Type = domain.TransactionTypeDeposit }, since: day.Add(-time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := base
			tt.mutate(&q)
			got, err := s.ExistsSimilarSince(ctx, q, tt.since)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_UpdateDetails(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	rec, err := s.Insert(ctx, newRecord(t, 1, 2, "5.00", day))
	require.NoError(t, err)

	updated := rec.WithMetadata(map[string]any{"channel": "api"}, day.Add(time.Minute))
	require.NoError(t, s.UpdateDetails(ctx, &updated))

	got, err := s.GetByReference(ctx, rec.Reference)
	require.NoError(t, err)
	assert.Equal(t, "api", got.Metadata["channel"])
	assert.Equal(t, day.Add(time.Minute), got.UpdatedAt)

	_, err = s.GetByReference(ctx, "TXN-MISSING-1")
	assert.ErrorIs(t, err, domain.ErrTransferNotFound)
}

func TestStore_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := seedAccount(t, s, "alice@example.com", "1.00")
	assert.Equal(t, int64(1), a.ID)

	got, err := s.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	err = s.Create(ctx, &domain.Account{Email: "alice@example.com"})
	assert.Error(t, err)

	require.NoError(t, s.SoftDelete(ctx, a.ID))
	got, err = s.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())

	_, err = s.GetByID(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
