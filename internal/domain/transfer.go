package domain

import (
	"fmt"
	"maps"
	"strings"
	"time"
	"unicode/utf8"
)

// TransactionType classifies a money movement
type TransactionType string

const (
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

// ParseTransactionType returns ErrInvalidTransfer for unknown values
func ParseTransactionType(value string) (TransactionType, error) {
	t := TransactionType(value)
	switch t {
	case TransactionTypeTransfer, TransactionTypeDeposit, TransactionTypeWithdrawal:
		return t, nil
	}
	return "", fmt.Errorf("%w: transaction type must be transfer, deposit or withdrawal", ErrInvalidTransfer)
}

func (t TransactionType) IsTransfer() bool   { return t == TransactionTypeTransfer }
func (t TransactionType) IsDeposit() bool    { return t == TransactionTypeDeposit }
func (t TransactionType) IsWithdrawal() bool { return t == TransactionTypeWithdrawal }

// TransactionStatus is the lifecycle state of a TransferRecord.
//
//	pending -> completed
//	pending -> failed
//
// Both targets are terminal.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// ParseTransactionStatus returns ErrInvalidTransfer for unknown values
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	s := TransactionStatus(value)
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return s, nil
	}
	return "", fmt.Errorf("%w: status must be pending, completed or failed", ErrInvalidTransfer)
}

// TransitionTo returns next if moving from s to next is allowed
func (s TransactionStatus) TransitionTo(next TransactionStatus) (TransactionStatus, error) {
	if s == StatusPending && (next == StatusCompleted || next == StatusFailed) {
		return next, nil
	}
	return s, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, s, next)
}

// IsTerminal reports whether no further transition is possible
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

const (
	maxReferenceLength   = 255
	maxDescriptionLength = 255
)

// TransferRecord is one transfer attempt.
// ID is zero until the record has been inserted.
type TransferRecord struct {
	ID          int64
	SenderID    int64
	ReceiverID  int64
	Amount      Money
	Type        TransactionType
	Status      TransactionStatus
	Reference   string
	Description *string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTransferRecordParams holds the fields needed to build a TransferRecord.
// Zero Status means pending; zero timestamps mean "now".
type NewTransferRecordParams struct {
	ID          int64
	SenderID    int64
	ReceiverID  int64
	Amount      Money
	Type        TransactionType
	Status      TransactionStatus
	Reference   string
	Description *string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTransferRecord validates params and builds a record
func NewTransferRecord(p NewTransferRecordParams) (*TransferRecord, error) {
	if err := ValidateParties(p.SenderID, p.ReceiverID); err != nil {
		return nil, err
	}
	if p.Amount.Decimal().IsZero() {
		return nil, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	if _, err := ParseTransactionType(string(p.Type)); err != nil {
		return nil, err
	}

	status := p.Status
	if status == "" {
		status = StatusPending
	}
	if _, err := ParseTransactionStatus(string(status)); err != nil {
		return nil, err
	}

	if strings.TrimSpace(p.Reference) == "" {
		return nil, fmt.Errorf("%w: reference cannot be empty", ErrInvalidTransfer)
	}
	if len(p.Reference) > maxReferenceLength {
		return nil, fmt.Errorf("%w: reference cannot exceed %d characters", ErrInvalidTransfer, maxReferenceLength)
	}
	if err := ValidateDescription(p.Description); err != nil {
		return nil, err
	}

	now := time.Now()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return &TransferRecord{
		ID:          p.ID,
		SenderID:    p.SenderID,
		ReceiverID:  p.ReceiverID,
		Amount:      p.Amount,
		Type:        p.Type,
		Status:      status,
		Reference:   p.Reference,
		Description: p.Description,
		Metadata:    maps.Clone(p.Metadata),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// ValidateParties checks sender and receiver ids
func ValidateParties(senderID, receiverID int64) error {
	if senderID <= 0 || receiverID <= 0 {
		return fmt.Errorf("%w: sender and receiver ids must be positive", ErrInvalidTransfer)
	}
	if senderID == receiverID {
		return fmt.Errorf("%w: sender and receiver cannot be the same account", ErrInvalidTransfer)
	}
	return nil
}

// ValidateDescription accepts nil or up to 255 characters
func ValidateDescription(description *string) error {
	if description != nil && utf8.RuneCountInString(*description) > maxDescriptionLength {
		return fmt.Errorf("%w: description cannot exceed %d characters", ErrInvalidTransfer, maxDescriptionLength)
	}
	return nil
}

// MarkCompleted returns a copy in completed status
func (r TransferRecord) MarkCompleted(at time.Time) (TransferRecord, error) {
	return r.transition(StatusCompleted, at)
}

// MarkFailed returns a copy in failed status
func (r TransferRecord) MarkFailed(at time.Time) (TransferRecord, error) {
	return r.transition(StatusFailed, at)
}

func (r TransferRecord) transition(next TransactionStatus, at time.Time) (TransferRecord, error) {
	status, err := r.Status.TransitionTo(next)
	if err != nil {
		return r, err
	}
	r.Status = status
	r.UpdatedAt = at
	r.Metadata = maps.Clone(r.Metadata)
	return r, nil
}

// WithDescription returns a copy carrying description
func (r TransferRecord) WithDescription(description string, at time.Time) (TransferRecord, error) {
	if err := ValidateDescription(&description); err != nil {
		return r, err
	}
	r.Description = &description
	r.UpdatedAt = at
	r.Metadata = maps.Clone(r.Metadata)
	return r, nil
}

// WithMetadata returns a copy with extra merged over the existing metadata
func (r TransferRecord) WithMetadata(extra map[string]any, at time.Time) TransferRecord {
	merged := make(map[string]any, len(r.Metadata)+len(extra))
	maps.Copy(merged, r.Metadata)
	maps.Copy(merged, extra)
	r.Metadata = merged
	r.UpdatedAt = at
	return r
}

func (r TransferRecord) IsPending() bool   { return r.Status == StatusPending }
func (r TransferRecord) IsCompleted() bool { return r.Status == StatusCompleted }
func (r TransferRecord) IsFailed() bool    { return r.Status == StatusFailed }
func (r TransferRecord) IsTransfer() bool  { return r.Type.IsTransfer() }

// CanBeProcessed reports whether the record still awaits settlement and
// its amount is within transfer bounds
func (r TransferRecord) CanBeProcessed() bool {
	return r.IsPending() && r.Amount.IsValidForTransfer()
}
