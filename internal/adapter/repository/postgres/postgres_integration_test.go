//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/simaogato/fundsflow-backend/internal/adapter/repository/memory"
	"github.com/simaogato/fundsflow-backend/internal/domain"
	"github.com/simaogato/fundsflow-backend/internal/usecase/dailylimit"
	"github.com/simaogato/fundsflow-backend/internal/usecase/duplicate"
	"github.com/simaogato/fundsflow-backend/internal/usecase/transfer"
)

type PostgresSuite struct {
	suite.Suite

	ctx       context.Context
	container *tcpostgres.PostgresContainer
	db        *DB

	uow      *UnitOfWork
	accounts domain.AccountStore
	ledger   domain.LedgerStore
	service  *transfer.TransferService
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcpostgres.Run(s.ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("fundsflow"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = NewDB(connStr)
	s.Require().NoError(err)
	s.Require().NoError(s.db.Migrate())
	s.Require().NoError(s.db.Migrate(), "migrating twice is a no-op")
}

func (s *PostgresSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		s.NoError(s.container.Terminate(s.ctx))
	}
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.db.ExecContext(s.ctx, `TRUNCATE transfers, accounts RESTART IDENTITY CASCADE`)
	s.Require().NoError(err)

	s.uow = NewUnitOfWork(s.db)
	s.uow.LockTimeout = 500 * time.Millisecond
	s.accounts = NewAccountRepository(s.db)
	s.ledger = NewTransactionRepository(s.db)

	tracker := dailylimit.NewTracker(s.ledger, memory.NewCache(nil))
	s.service = transfer.NewTransferService(s.uow, s.accounts, s.ledger, tracker, duplicate.NewGuard(s.ledger))
}

func (s *PostgresSuite) createAccount(email, balance string) *domain.Account {
	b, err := domain.NewAccountBalance(decimal.RequireFromString(balance))
	s.Require().NoError(err)
	a := &domain.Account{Name: email, Email: email, Balance: b}
	s.Require().NoError(s.accounts.Create(s.ctx, a))
	return a
}

func (s *PostgresSuite) balanceOf(id int64) string {
	a, err := s.accounts.GetByID(s.ctx, id)
	s.Require().NoError(err)
	return a.Balance.String()
}

func (s *PostgresSuite) countTransfers() int {
	var n int
	s.Require().NoError(s.db.QueryRowContext(s.ctx, `SELECT COUNT(*) FROM transfers`).Scan(&n))
	return n
}

func (s *PostgresSuite) send(from, to *domain.Account, amount string) (*domain.TransferRecord, error) {
	return s.service.Transfer(s.ctx, transfer.TransferInput{
		SenderID:   from.ID,
		ReceiverID: to.ID,
		Amount:     decimal.RequireFromString(amount),
	})
}

func (s *PostgresSuite) TestTransfer_EndToEnd() {
	alice := s.createAccount("alice@example.com", "1000.00")
	bob := s.createAccount("bob@example.com", "0.00")

	rec, err := s.service.Transfer(s.ctx, transfer.TransferInput{
		SenderID:   alice.ID,
		ReceiverID: bob.ID,
		Amount:     decimal.RequireFromString("250.25"),
		Metadata:   map[string]any{"channel": "api"},
	})
	s.Require().NoError(err)

	s.Equal("749.75", s.balanceOf(alice.ID))
	s.Equal("250.25", s.balanceOf(bob.ID))

	stored, err := s.ledger.GetByReference(s.ctx, rec.Reference)
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, stored.Status)
	s.Equal("api", stored.Metadata["channel"])
	s.Nil(stored.Description)

	described, err := s.service.UpdateDescription(s.ctx, rec.Reference, "dinner")
	s.Require().NoError(err)
	s.Equal("dinner", *described.Description)

	total, err := s.ledger.SumCompletedTransfersForDay(s.ctx, alice.ID,
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	s.Require().NoError(err)
	s.Equal("250.25", total.StringFixed(2))
}

func (s *PostgresSuite) TestTransfer_RejectionsLeaveNoState() {
	alice := s.createAccount("alice@example.com", "10000.00")
	bob := s.createAccount("bob@example.com", "50.00")

	_, err := s.send(bob, alice, "100.00")
	s.ErrorIs(err, domain.ErrInsufficientFunds)

	_, err = s.send(alice, bob, "5500.00")
	s.ErrorIs(err, domain.ErrDailyLimitExceeded)

	_, err = s.send(alice, &domain.Account{ID: 999}, "1.00")
	s.ErrorIs(err, domain.ErrAccountNotFound)

	s.Equal("10000.00", s.balanceOf(alice.ID))
	s.Equal("50.00", s.balanceOf(bob.ID))
	s.Zero(s.countTransfers())
}

func (s *PostgresSuite) TestTransfer_LimitAndDuplicate() {
	alice := s.createAccount("alice@example.com", "10000.00")
	bob := s.createAccount("bob@example.com", "0.00")
	carol := s.createAccount("carol@example.com", "0.00")

	_, err := s.send(alice, bob, "3000.00")
	s.Require().NoError(err)

	_, err = s.send(alice, bob, "3000.00")
	s.ErrorIs(err, domain.ErrDuplicateTransaction)

	_, err = s.send(alice, carol, "2000.00")
	s.Require().NoError(err)

	_, err = s.send(alice, carol, "0.01")
	s.ErrorIs(err, domain.ErrDailyLimitExceeded)
	s.Equal(2, s.countTransfers())
}

func (s *PostgresSuite) TestTransfer_SoftDeletedAccount() {
	alice := s.createAccount("alice@example.com", "100.00")
	bob := s.createAccount("bob@example.com", "0.00")
	s.Require().NoError(s.accounts.(*accountRepository).SoftDelete(s.ctx, bob.ID))

	_, err := s.send(alice, bob, "10.00")
	s.ErrorIs(err, domain.ErrAccountNotFound)
}

func (s *PostgresSuite) TestTransfer_OppositeDirectionsDoNotDeadlock() {
	alice := s.createAccount("alice@example.com", "1000.00")
	bob := s.createAccount("bob@example.com", "1000.00")
	s.uow.LockTimeout = 5 * time.Second

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		amount := fmt.Sprintf("2.%02d", i)
		g.Go(func() error {
			_, err := s.send(alice, bob, amount)
			return err
		})
		g.Go(func() error {
			_, err := s.send(bob, alice, amount)
			return err
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal("1000.00", s.balanceOf(alice.ID))
	s.Equal("1000.00", s.balanceOf(bob.ID))
	s.Equal(20, s.countTransfers())
}

func (s *PostgresSuite) TestTransfer_BusyWhenRowLocked() {
	alice := s.createAccount("alice@example.com", "100.00")
	bob := s.createAccount("bob@example.com", "0.00")

	holder, err := s.db.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	_, err = holder.ExecContext(s.ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, bob.ID)
	s.Require().NoError(err)

	_, err = s.send(alice, bob, "10.00")
	s.Require().NoError(holder.Rollback())

	s.ErrorIs(err, domain.ErrBusy)
	s.Equal("100.00", s.balanceOf(alice.ID))
	s.Zero(s.countTransfers())
}

func (s *PostgresSuite) TestSchemaConstraints() {
	alice := s.createAccount("alice@example.com", "10.00")

	_, err := s.db.ExecContext(s.ctx, `UPDATE accounts SET balance = -1 WHERE id = $1`, alice.ID)
	s.Error(err, "balance must never go negative")

	_, err = s.db.ExecContext(s.ctx, `
		INSERT INTO transfers (sender_id, receiver_id, amount, reference)
		VALUES ($1, $1, 1, 'TXN-SELF-1')`, alice.ID)
	s.Error(err, "sender and receiver must differ")

	bob := s.createAccount("bob@example.com", "0.00")
	_, err = s.db.ExecContext(s.ctx, `
		INSERT INTO transfers (sender_id, receiver_id, amount, reference)
		VALUES ($1, $2, 0, 'TXN-ZERO-1')`, alice.ID, bob.ID)
	s.Error(err, "amount must be positive")
}

func (s *PostgresSuite) TestLockAndFetch_RequiresUnitOfWork() {
	_, err := s.accounts.LockAndFetch(s.ctx, []int64{1})
	s.Error(err)
}

func (s *PostgresSuite) TestGetByReferenceForUpdate_RequiresUnitOfWork() {
	_, err := s.ledger.GetByReferenceForUpdate(s.ctx, "TXN-ANY-1")
	s.Error(err)
}

func (s *PostgresSuite) TestEnrichment_ConcurrentMetadataKeepsEveryKey() {
	alice := s.createAccount("alice@example.com", "100.00")
	bob := s.createAccount("bob@example.com", "0.00")
	rec, err := s.send(alice, bob, "10.00")
	s.Require().NoError(err)
	s.uow.LockTimeout = 5 * time.Second

	const writers = 8
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		key := fmt.Sprintf("k%d", i)
		g.Go(func() error {
			_, err := s.service.AddMetadata(s.ctx, rec.Reference, map[string]any{key: "v"})
			return err
		})
	}
	s.Require().NoError(g.Wait())

	stored, err := s.ledger.GetByReference(s.ctx, rec.Reference)
	s.Require().NoError(err)
	s.Len(stored.Metadata, writers)
}
