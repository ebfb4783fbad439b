package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/simaogato/fundsflow-backend/internal/domain"
)

const (
	defaultTxTimeout   = 10 * time.Second
	defaultLockTimeout = 5 * time.Second
)

// PostgreSQL error codes that mean "try again later"
const (
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeQueryCanceled        = "57014"
	codeUniqueViolation      = "23505"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// TxFrom extracts a SQL transaction from context if present.
func TxFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the transaction carried by ctx, or the pool
func (db *DB) conn(ctx context.Context) querier {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db.DB
}

// UnitOfWork implements domain.UnitOfWork on a PostgreSQL transaction.
// Row lock waits are bounded by LockTimeout through SET LOCAL lock_timeout;
// the whole unit is bounded by TxTimeout unless ctx already has a deadline.
type UnitOfWork struct {
	db          *DB
	TxTimeout   time.Duration
	LockTimeout time.Duration
}

// NewUnitOfWork creates a UnitOfWork with default timeouts
func NewUnitOfWork(db *DB) *UnitOfWork {
	return &UnitOfWork{
		db:          db,
		TxTimeout:   defaultTxTimeout,
		LockTimeout: defaultLockTimeout,
	}
}

// RunInTx runs fn inside one transaction. Nested calls join the outer one.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: transaction aborted: %v", domain.ErrBusy, err)
	}

	timeout := u.TxTimeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	lockTimeout := u.LockTimeout
	if lockTimeout == 0 {
		lockTimeout = defaultLockTimeout
	}
	// SET does not accept bind parameters
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())); err != nil {
		return classify(fmt.Errorf("failed to set lock timeout: %w", err))
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// classify marks lock, deadlock and timeout failures as domain.ErrBusy
func classify(err error) error {
	if err == nil || errors.Is(err, domain.ErrBusy) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", domain.ErrBusy, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure, codeQueryCanceled:
			return fmt.Errorf("%w: %w", domain.ErrBusy, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == codeUniqueViolation
	}
	return false
}
