package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/fundsflow-backend/internal/domain"
)

const transferColumns = `id, sender_id, receiver_id, amount, type, status, reference, description, metadata, created_at, updated_at`

// transactionRepository implements domain.LedgerStore
type transactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) domain.LedgerStore {
	return &transactionRepository{db: db}
}

// Insert persists a new transfer record and returns it with its ID
func (r *transactionRepository) Insert(ctx context.Context, record *domain.TransferRecord) (*domain.TransferRecord, error) {
	metadata, err := encodeMetadata(record.Metadata)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO transfers (sender_id, receiver_id, amount, type, status, reference, description, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	stored := *record
	err = r.db.conn(ctx).QueryRowContext(ctx, query,
		record.SenderID,
		record.ReceiverID,
		record.Amount.Decimal().StringFixed(2),
		string(record.Type),
		string(record.Status),
		record.Reference,
		record.Description,
		metadata,
		record.CreatedAt,
		record.UpdatedAt,
	).Scan(&stored.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to insert transfer: reference %q already exists: %w", record.Reference, err)
		}
		return nil, fmt.Errorf("failed to insert transfer: %w", err)
	}
	return &stored, nil
}

// UpdateStatus only moves records out of pending
func (r *transactionRepository) UpdateStatus(ctx context.Context, id int64, status domain.TransactionStatus, at time.Time) error {
	query := `
		UPDATE transfers
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.db.conn(ctx).ExecContext(ctx, query, id, string(status), at)
	if err != nil {
		return fmt.Errorf("failed to update transfer status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update transfer status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to update transfer %d: %w", id, domain.ErrInvalidStatusTransition)
	}
	return nil
}

// UpdateDetails persists description, metadata and updated_at
func (r *transactionRepository) UpdateDetails(ctx context.Context, record *domain.TransferRecord) error {
	metadata, err := encodeMetadata(record.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE transfers
		SET description = $2, metadata = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.conn(ctx).ExecContext(ctx, query, record.ID, record.Description, metadata, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update transfer details: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update transfer details: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to update transfer %d: %w", record.ID, domain.ErrTransferNotFound)
	}
	return nil
}

// SumCompletedTransfersForDay sums completed transfers in [dayStart, dayEnd)
func (r *transactionRepository) SumCompletedTransfersForDay(ctx context.Context, senderID int64, dayStart, dayEnd time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM transfers
		WHERE sender_id = $1
		  AND type = 'transfer'
		  AND status = 'completed'
		  AND created_at >= $2
		  AND created_at < $3
	`

	var totalStr string
	if err := r.db.conn(ctx).QueryRowContext(ctx, query, senderID, dayStart, dayEnd).Scan(&totalStr); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum daily transfers: %w", err)
	}

	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse daily total: %w", err)
	}
	return total, nil
}

// ExistsSimilarSince looks for an equivalent record in any status
func (r *transactionRepository) ExistsSimilarSince(ctx context.Context, q domain.SimilarTransferQuery, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM transfers
			WHERE sender_id = $1
			  AND receiver_id = $2
			  AND amount = $3::numeric
			  AND type = $4
			  AND created_at >= $5
		)
	`

	var exists bool
	err := r.db.conn(ctx).QueryRowContext(ctx, query,
		q.SenderID,
		q.ReceiverID,
		q.Amount.String(),
		string(q.Type),
		since,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for similar transfers: %w", err)
	}
	return exists, nil
}

// GetByReference retrieves a transfer record by its reference
func (r *transactionRepository) GetByReference(ctx context.Context, reference string) (*domain.TransferRecord, error) {
	return r.getByReference(ctx, reference, false)
}

// GetByReferenceForUpdate retrieves a transfer record and locks its row
// until the surrounding transaction ends
func (r *transactionRepository) GetByReferenceForUpdate(ctx context.Context, reference string) (*domain.TransferRecord, error) {
	if _, ok := TxFrom(ctx); !ok {
		return nil, fmt.Errorf("failed to lock transfer: not inside a unit of work")
	}
	return r.getByReference(ctx, reference, true)
}

func (r *transactionRepository) getByReference(ctx context.Context, reference string, forUpdate bool) (*domain.TransferRecord, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE reference = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		id, senderID, receiverID int64
		amountStr, typ, status   string
		ref                      string
		description              sql.NullString
		metadata                 []byte
		createdAt, updatedAt     time.Time
	)
	err := r.db.conn(ctx).QueryRowContext(ctx, query, reference).Scan(
		&id, &senderID, &receiverID, &amountStr, &typ, &status, &ref,
		&description, &metadata, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transfer %q: %w", reference, domain.ErrTransferNotFound)
		}
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}

	rawAmount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	amount, err := domain.NewMoney(rawAmount)
	if err != nil {
		return nil, err
	}

	var desc *string
	if description.Valid {
		desc = &description.String
	}
	meta, err := decodeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	return domain.NewTransferRecord(domain.NewTransferRecordParams{
		ID:          id,
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Amount:      amount,
		Type:        domain.TransactionType(typ),
		Status:      domain.TransactionStatus(status),
		Reference:   ref,
		Description: desc,
		Metadata:    meta,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	})
}

// encodeMetadata returns an untyped nil for an empty map so the column
// stays NULL
func encodeMetadata(metadata map[string]any) (any, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return metadata, nil
}
