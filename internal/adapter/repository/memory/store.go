// Package memory provides in-process implementations of the domain ports.
// Store is the test double the engine tests run against; Cache also backs
// the server when no Redis URL is configured.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/fundsflow-backend/internal/domain"
)

const defaultLockTimeout = 5 * time.Second

// Store keeps accounts and transfer records in memory. It implements
// domain.AccountStore, domain.LedgerStore and domain.UnitOfWork.
//
// Row locks are per-row semaphores held until RunInTx returns; every
// write made inside RunInTx is recorded in an undo log and reverted if the
// unit fails.
type Store struct {
	mu          sync.Mutex
	accounts    map[int64]domain.Account
	emails      map[string]int64
	records     map[int64]domain.TransferRecord
	references  map[string]int64
	nextAccount int64
	nextRecord  int64

	locksMu sync.Mutex
	locks   map[rowKey]chan struct{}

	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithLockTimeout bounds how long LockAndFetch waits for a row lock
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock sets the clock used for account timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store
func NewStore(opts ...Option) *Store {
	s := &Store{
		accounts:    make(map[int64]domain.Account),
		emails:      make(map[string]int64),
		records:     make(map[int64]domain.TransferRecord),
		references:  make(map[string]int64),
		locks:       make(map[rowKey]chan struct{}),
		lockTimeout: defaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type txKey struct{}

type txState struct {
	undo []func()
	held []rowKey
}

// rowKey identifies a lockable row
type rowKey struct {
	table string
	id    int64
}

func txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// RunInTx runs fn as one unit. Nested calls join the outer unit.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBusy, err)
	}

	st := &txState{}
	err := fn(context.WithValue(ctx, txKey{}, st))

	if err != nil {
		s.mu.Lock()
		for i := len(st.undo) - 1; i >= 0; i-- {
			st.undo[i]()
		}
		s.mu.Unlock()
	}
	s.release(st)
	return err
}

// record registers an undo step; s.mu must be held
func (s *Store) record(ctx context.Context, undo func()) {
	if st := txFrom(ctx); st != nil {
		st.undo = append(st.undo, undo)
	}
}

func (s *Store) lockFor(key rowKey) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

func (s *Store) acquire(ctx context.Context, st *txState, key rowKey) error {
	if slices.Contains(st.held, key) {
		return nil
	}
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case s.lockFor(key) <- struct{}{}:
		st.held = append(st.held, key)
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: lock timeout on %s %d", domain.ErrBusy, key.table, key.id)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrBusy, ctx.Err())
	}
}

func (s *Store) release(st *txState) {
	for i := len(st.held) - 1; i >= 0; i-- {
		<-s.lockFor(st.held[i])
	}
	st.held = nil
}

// LockAndFetch implements domain.AccountStore
func (s *Store) LockAndFetch(ctx context.Context, ids []int64) ([]*domain.Account, error) {
	st := txFrom(ctx)
	if st == nil {
		return nil, fmt.Errorf("failed to lock accounts: not inside a unit of work")
	}

	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	for _, id := range ordered {
		if err := s.acquire(ctx, st, rowKey{table: "accounts", id: id}); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := make([]*domain.Account, 0, len(ordered))
	for _, id := range ordered {
		if a, ok := s.accounts[id]; ok {
			accounts = append(accounts, &a)
		}
	}
	return accounts, nil
}

// SaveBalance implements domain.AccountStore
func (s *Store) SaveBalance(ctx context.Context, accountID int64, balance domain.AccountBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("failed to update balance of account %d: %w", accountID, domain.ErrAccountNotFound)
	}
	next := prev
	next.Balance = balance
	next.UpdatedAt = s.now()
	s.accounts[accountID] = next
	s.record(ctx, func() { s.accounts[accountID] = prev })
	return nil
}

// GetByID implements domain.AccountStore
func (s *Store) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, domain.ErrAccountNotFound)
	}
	return &a, nil
}

// GetByEmail implements domain.AccountStore
func (s *Store) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, fmt.Errorf("account %q: %w", email, domain.ErrAccountNotFound)
	}
	a := s.accounts[id]
	return &a, nil
}

// Create implements domain.AccountStore
func (s *Store) Create(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[account.Email]; taken {
		return fmt.Errorf("failed to create account: email %q already exists", account.Email)
	}
	if account.ID == 0 {
		s.nextAccount++
		account.ID = s.nextAccount
	} else if _, taken := s.accounts[account.ID]; taken {
		return fmt.Errorf("failed to create account: id %d already exists", account.ID)
	} else if account.ID > s.nextAccount {
		s.nextAccount = account.ID
	}

	now := s.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = account.CreatedAt
	}

	id, email := account.ID, account.Email
	s.accounts[id] = *account
	s.emails[email] = id
	s.record(ctx, func() {
		delete(s.accounts, id)
		delete(s.emails, email)
	})
	return nil
}

// SoftDelete marks an account deleted
func (s *Store) SoftDelete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return fmt.Errorf("account %d: %w", id, domain.ErrAccountNotFound)
	}
	at := s.now()
	a.DeletedAt = &at
	s.accounts[id] = a
	return nil
}

// Insert implements domain.LedgerStore
func (s *Store) Insert(ctx context.Context, record *domain.TransferRecord) (*domain.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.references[record.Reference]; taken {
		return nil, fmt.Errorf("failed to insert transfer: reference %q already exists", record.Reference)
	}

	s.nextRecord++
	stored := *record
	stored.ID = s.nextRecord
	stored.Metadata = maps.Clone(record.Metadata)

	id, ref := stored.ID, stored.Reference
	s.records[id] = stored
	s.references[ref] = id
	s.record(ctx, func() {
		delete(s.records, id)
		delete(s.references, ref)
	})

	out := stored
	out.Metadata = maps.Clone(stored.Metadata)
	return &out, nil
}

// UpdateStatus implements domain.LedgerStore
func (s *Store) UpdateStatus(ctx context.Context, id int64, status domain.TransactionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[id]
	if !ok {
		return fmt.Errorf("failed to update transfer %d: %w", id, domain.ErrTransferNotFound)
	}
	next := prev
	next.Status = status
	next.UpdatedAt = at
	s.records[id] = next
	s.record(ctx, func() { s.records[id] = prev })
	return nil
}

// UpdateDetails implements domain.LedgerStore
func (s *Store) UpdateDetails(ctx context.Context, record *domain.TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[record.ID]
	if !ok {
		return fmt.Errorf("failed to update transfer %d: %w", record.ID, domain.ErrTransferNotFound)
	}
	next := prev
	next.Description = record.Description
	next.Metadata = maps.Clone(record.Metadata)
	next.UpdatedAt = record.UpdatedAt
	s.records[record.ID] = next
	s.record(ctx, func() { s.records[prev.ID] = prev })
	return nil
}

// SumCompletedTransfersForDay implements domain.LedgerStore
func (s *Store) SumCompletedTransfersForDay(_ context.Context, senderID int64, dayStart, dayEnd time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, r := range s.records {
		if r.SenderID != senderID || !r.IsTransfer() || !r.IsCompleted() {
			continue
		}
		if r.CreatedAt.Before(dayStart) || !r.CreatedAt.Before(dayEnd) {
			continue
		}
		total = total.Add(r.Amount.Decimal())
	}
	return total, nil
}

// ExistsSimilarSince implements domain.LedgerStore
func (s *Store) ExistsSimilarSince(_ context.Context, q domain.SimilarTransferQuery, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.SenderID == q.SenderID &&
			r.ReceiverID == q.ReceiverID &&
			r.Type == q.Type &&
			r.Amount.Decimal().Equal(q.Amount) &&
			!r.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// GetByReferenceForUpdate implements domain.LedgerStore
func (s *Store) GetByReferenceForUpdate(ctx context.Context, reference string) (*domain.TransferRecord, error) {
	st := txFrom(ctx)
	if st == nil {
		return nil, fmt.Errorf("failed to lock transfer: not inside a unit of work")
	}

	s.mu.Lock()
	id, ok := s.references[reference]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("transfer %q: %w", reference, domain.ErrTransferNotFound)
	}
	if err := s.acquire(ctx, st, rowKey{table: "transfers", id: id}); err != nil {
		return nil, err
	}
	return s.GetByReference(ctx, reference)
}

// GetByReference implements domain.LedgerStore
func (s *Store) GetByReference(_ context.Context, reference string) (*domain.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.references[reference]
	if !ok {
		return nil, fmt.Errorf("transfer %q: %w", reference, domain.ErrTransferNotFound)
	}
	r := s.records[id]
	r.Metadata = maps.Clone(r.Metadata)
	return &r, nil
}

// Records returns a snapshot of every stored transfer ordered by id
func (s *Store) Records() []domain.TransferRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.TransferRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.TransferRecord) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
