package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AccountStore defines the persistence operations on accounts.
// Implementations take part in the unit of work carried by ctx.
type AccountStore interface {
	// LockAndFetch takes exclusive row locks on every id, always in ascending
	// id order, and returns the rows that exist (soft-deleted rows included).
	// Must be called inside UnitOfWork.RunInTx.
	LockAndFetch(ctx context.Context, ids []int64) ([]*Account, error)

	// SaveBalance persists a new balance for the account
	SaveBalance(ctx context.Context, accountID int64, balance AccountBalance) error

	// GetByID retrieves an account without locking it
	GetByID(ctx context.Context, id int64) (*Account, error)

	// GetByEmail retrieves an account by its unique email
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Create inserts an account and sets its ID
	Create(ctx context.Context, account *Account) error
}

// SimilarTransferQuery identifies transfers considered equivalent for
// duplicate detection. Description and metadata are deliberately absent.
type SimilarTransferQuery struct {
	SenderID   int64
	ReceiverID int64
	Amount     decimal.Decimal
	Type       TransactionType
}

// LedgerStore defines the persistence operations on transfer records
type LedgerStore interface {
	// Insert persists a new record and returns it with its assigned ID
	Insert(ctx context.Context, record *TransferRecord) (*TransferRecord, error)

	// UpdateStatus sets the status and updated_at of a record
	UpdateStatus(ctx context.Context, id int64, status TransactionStatus, at time.Time) error

	// SumCompletedTransfersForDay sums completed transfers sent by senderID
	// with created_at in [dayStart, dayEnd)
	SumCompletedTransfersForDay(ctx context.Context, senderID int64, dayStart, dayEnd time.Time) (decimal.Decimal, error)

	// ExistsSimilarSince reports whether a record matching q, in any status,
	// was created at or after since
	ExistsSimilarSince(ctx context.Context, q SimilarTransferQuery, since time.Time) (bool, error)

	// GetByReference retrieves a record by its reference
	GetByReference(ctx context.Context, reference string) (*TransferRecord, error)

	// GetByReferenceForUpdate is GetByReference plus an exclusive lock on the
	// record held until the unit of work ends. Must be called inside
	// UnitOfWork.RunInTx.
	GetByReferenceForUpdate(ctx context.Context, reference string) (*TransferRecord, error)

	// UpdateDetails persists description, metadata and updated_at of a record
	UpdateDetails(ctx context.Context, record *TransferRecord) error
}

// Cache is the key/value capability used for derived, recomputable data
type Cache interface {
	// Get returns the value and true on a hit
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// UnitOfWork runs fn as one all-or-nothing unit.
// Stores called with the ctx handed to fn join the unit; if fn returns an
// error every write made through them is rolled back.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
