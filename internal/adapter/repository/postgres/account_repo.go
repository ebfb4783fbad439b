package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/simaogato/fundsflow-backend/internal/domain"
)

const accountColumns = `id, name, email, balance, created_at, updated_at, deleted_at`

// accountRepository implements domain.AccountStore
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) domain.AccountStore {
	return &accountRepository{db: db}
}

// LockAndFetch locks the rows with SELECT ... FOR UPDATE. ORDER BY id makes
// PostgreSQL take the row locks in ascending id order.
func (r *accountRepository) LockAndFetch(ctx context.Context, ids []int64) ([]*domain.Account, error) {
	tx, ok := TxFrom(ctx)
	if !ok {
		return nil, errors.New("failed to lock accounts: not inside a unit of work")
	}

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`

	rows, err := tx.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	return accounts, nil
}

// SaveBalance persists a new balance
func (r *accountRepository) SaveBalance(ctx context.Context, accountID int64, balance domain.AccountBalance) error {
	query := `
		UPDATE accounts
		SET balance = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.conn(ctx).ExecContext(ctx, query, accountID, balance.Decimal().StringFixed(2))
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to update balance of account %d: %w", accountID, domain.ErrAccountNotFound)
	}
	return nil
}

// GetByID retrieves an account by ID
func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %d: %w", id, domain.ErrAccountNotFound)
		}
		return nil, err
	}
	return account, nil
}

// GetByEmail retrieves an account by email
func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	account, err := scanAccount(r.db.conn(ctx).QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %q: %w", email, domain.ErrAccountNotFound)
		}
		return nil, err
	}
	return account, nil
}

// Create inserts a new account and sets its ID and timestamps
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (name, email, balance)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.db.conn(ctx).QueryRowContext(ctx, query,
		account.Name,
		account.Email,
		account.Balance.Decimal().StringFixed(2),
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create account: email %q already exists: %w", account.Email, err)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		account    domain.Account
		balanceStr string
		deletedAt  sql.NullTime
	)
	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&balanceStr,
		&account.CreatedAt,
		&account.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	raw, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	account.Balance, err = domain.NewAccountBalance(raw)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		account.DeletedAt = &t
	}
	return &account, nil
}

// SoftDelete marks an account deleted
func (r *accountRepository) SoftDelete(ctx context.Context, id int64) error {
	_, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE accounts SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
