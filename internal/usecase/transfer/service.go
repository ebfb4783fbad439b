package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/simaogato/fundsflow-backend/internal/domain"
	"github.com/simaogato/fundsflow-backend/internal/logger"
	"github.com/simaogato/fundsflow-backend/internal/metrics"
	"github.com/simaogato/fundsflow-backend/internal/usecase/dailylimit"
	"github.com/simaogato/fundsflow-backend/internal/usecase/duplicate"
)

var tracer = otel.Tracer("github.com/simaogato/fundsflow-backend/internal/usecase/transfer")

// TransferInput represents the input for a transfer.
// SenderID must come from the authenticated caller, never from the request body.
type TransferInput struct {
	SenderID    int64
	ReceiverID  int64
	Amount      decimal.Decimal
	Description *string
	Metadata    map[string]any
}

// Validate checks the input before any unit of work is opened and returns
// the amount as Money
func (in TransferInput) Validate() (domain.Money, error) {
	if err := domain.ValidateParties(in.SenderID, in.ReceiverID); err != nil {
		return domain.Money{}, err
	}
	amount, err := domain.NewMoney(in.Amount)
	if err != nil {
		return domain.Money{}, err
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return domain.Money{}, fmt.Errorf("%w: amount cannot have more than 2 decimal places", domain.ErrInvalidAmount)
	}
	if err := domain.ValidateDescription(in.Description); err != nil {
		return domain.Money{}, err
	}
	return amount, nil
}

// TransferService executes transfers between two accounts
type TransferService struct {
	UnitOfWork domain.UnitOfWork
	Accounts   domain.AccountStore
	Ledger     domain.LedgerStore
	Tracker    *dailylimit.Tracker
	Guard      *duplicate.Guard

	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
	NewReference func(time.Time) string
}

// NewTransferService creates a new TransferService instance
func NewTransferService(
	uow domain.UnitOfWork,
	accounts domain.AccountStore,
	ledger domain.LedgerStore,
	tracker *dailylimit.Tracker,
	guard *duplicate.Guard,
) *TransferService {
	return &TransferService{
		UnitOfWork:   uow,
		Accounts:     accounts,
		Ledger:       ledger,
		Tracker:      tracker,
		Guard:        guard,
		Logger:       zap.NewNop(),
		Now:          time.Now,
		NewReference: domain.NewReference,
	}
}

// Transfer moves input.Amount from sender to receiver as one unit of work.
// Steps:
//  1. Lock sender and receiver rows (ascending id)
//  2. Resolve both accounts
//  3. Check the sender can afford the amount
//  4. Apply the daily limit rule
//  5. Reject duplicates inside the trailing window
//  6. Create the pending record
//  7. Debit sender, credit receiver
//  8. Mark the record completed
//  9. Invalidate the sender's cached daily total
//  10. Commit
//
// Any failure rolls the whole unit back.
func (s *TransferService) Transfer(ctx context.Context, input TransferInput) (_ *domain.TransferRecord, err error) {
	ctx, span := tracer.Start(ctx, "transfer.Transfer")
	span.SetAttributes(
		attribute.Int64("transfer.sender_id", input.SenderID),
		attribute.Int64("transfer.receiver_id", input.ReceiverID),
		attribute.String("transfer.amount", input.Amount.String()),
	)
	started := time.Now()
	defer func() {
		s.Metrics.ObserveTransfer(err, time.Since(started))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, metrics.Outcome(err))
		}
		span.End()
	}()

	amount, err := input.Validate()
	if err != nil {
		return nil, err
	}

	log := logger.WithTrace(ctx, s.logger()).With(
		zap.Int64("sender_id", input.SenderID),
		zap.Int64("receiver_id", input.ReceiverID),
		zap.String("amount", amount.String()),
	)

	now := s.now()
	var (
		result   domain.TransferRecord
		newTotal decimal.Decimal
	)

	err = s.UnitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		// 1. Lock both rows before reading either
		locked, err := s.Accounts.LockAndFetch(ctx, []int64{input.SenderID, input.ReceiverID})
		if err != nil {
			return err
		}

		// 2. Resolve accounts
		sender, err := findActive(locked, input.SenderID, "sender")
		if err != nil {
			return err
		}
		receiver, err := findActive(locked, input.ReceiverID, "receiver")
		if err != nil {
			return err
		}

		// 3. Affordability
		if !sender.CanAffordTransfer(amount) {
			return fmt.Errorf("%w: balance %s, requested %s", domain.ErrInsufficientFunds, sender.Balance, amount)
		}

		// 4. Daily limit
		total, err := s.Tracker.DailyTotal(ctx, sender.ID, now)
		if err != nil {
			return err
		}
		newTotal = total.Add(amount.Decimal())
		log.Info("Daily limit check",
			zap.String("current_total", total.StringFixed(2)),
			zap.String("transfer_amount", amount.String()),
			zap.String("new_total", newTotal.StringFixed(2)),
			zap.String("limit", domain.DailyLimit.StringFixed(2)),
			zap.String("date", now.In(s.Tracker.Zone()).Format(time.DateOnly)),
			zap.String("timezone", s.Tracker.Zone().String()),
		)
		if err := dailylimit.Check(total, amount); err != nil {
			log.Warn("Daily limit exceeded",
				zap.String("current_total", total.StringFixed(2)),
				zap.String("would_be_total", newTotal.StringFixed(2)),
			)
			return err
		}

		// 5. Duplicate guard
		if err := s.Guard.Check(ctx, domain.SimilarTransferQuery{
			SenderID:   sender.ID,
			ReceiverID: receiver.ID,
			Amount:     amount.Decimal(),
			Type:       domain.TransactionTypeTransfer,
		}, now); err != nil {
			return err
		}

		// 6. Pending record
		pending, err := domain.NewTransferRecord(domain.NewTransferRecordParams{
			SenderID:    sender.ID,
			ReceiverID:  receiver.ID,
			Amount:      amount,
			Type:        domain.TransactionTypeTransfer,
			Reference:   s.NewReference(now),
			Description: input.Description,
			Metadata:    input.Metadata,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		inserted, err := s.Ledger.Insert(ctx, pending)
		if err != nil {
			return err
		}

		// 7. Balances
		debited, err := sender.Balance.Subtract(amount)
		if err != nil {
			return err
		}
		credited := receiver.Balance.Add(amount)
		if err := s.Accounts.SaveBalance(ctx, sender.ID, debited); err != nil {
			return err
		}
		if err := s.Accounts.SaveBalance(ctx, receiver.ID, credited); err != nil {
			return err
		}

		// 8. Completed
		completed, err := inserted.MarkCompleted(s.now())
		if err != nil {
			return err
		}
		if err := s.Ledger.UpdateStatus(ctx, completed.ID, completed.Status, completed.UpdatedAt); err != nil {
			return err
		}

		// 9. Invalidate before commit; a failure here aborts the transfer
		// rather than leave a stale total behind
		if err := s.Tracker.Invalidate(ctx, sender.ID, now); err != nil {
			return err
		}

		result = completed
		return nil
	})
	if err != nil {
		if domain.IsBusinessRejection(err) || errors.Is(err, domain.ErrAccountNotFound) {
			log.Info("Transfer rejected", zap.Error(err))
		} else if !domain.IsValidation(err) {
			log.Error("Transfer failed", zap.Error(err))
		}
		return nil, err
	}

	// Drop the key again now that the new total is visible to every reader
	if err := s.Tracker.Invalidate(ctx, input.SenderID, now); err != nil {
		log.Error("Post-commit daily total invalidation failed", zap.Error(err))
	}

	log.Info("Transfer completed",
		zap.Int64("transaction_id", result.ID),
		zap.String("reference", result.Reference),
		zap.String("new_daily_total", newTotal.StringFixed(2)),
	)
	return &result, nil
}

// GetTransfer returns the record identified by reference
func (s *TransferService) GetTransfer(ctx context.Context, reference string) (*domain.TransferRecord, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: reference cannot be empty", domain.ErrInvalidTransfer)
	}
	return s.Ledger.GetByReference(ctx, reference)
}

// AddMetadata merges extra into the record's metadata
func (s *TransferService) AddMetadata(ctx context.Context, reference string, extra map[string]any) (*domain.TransferRecord, error) {
	return s.Annotate(ctx, reference, nil, extra)
}

// UpdateDescription replaces the record's description
func (s *TransferService) UpdateDescription(ctx context.Context, reference, description string) (*domain.TransferRecord, error) {
	return s.Annotate(ctx, reference, &description, nil)
}

// Annotate applies a description and/or metadata to a record in one unit of
// work. Either both changes persist or neither does.
func (s *TransferService) Annotate(
	ctx context.Context,
	reference string,
	description *string,
	metadata map[string]any,
) (*domain.TransferRecord, error) {
	if description == nil && metadata == nil {
		return nil, fmt.Errorf("%w: description or metadata is required", domain.ErrInvalidTransfer)
	}
	if err := domain.ValidateDescription(description); err != nil {
		return nil, err
	}
	return s.enrich(ctx, reference, func(r domain.TransferRecord, at time.Time) (domain.TransferRecord, error) {
		if metadata != nil {
			r = r.WithMetadata(metadata, at)
		}
		if description != nil {
			return r.WithDescription(*description, at)
		}
		return r, nil
	})
}

func (s *TransferService) enrich(
	ctx context.Context,
	reference string,
	apply func(domain.TransferRecord, time.Time) (domain.TransferRecord, error),
) (*domain.TransferRecord, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: reference cannot be empty", domain.ErrInvalidTransfer)
	}
	var updated domain.TransferRecord
	err := s.UnitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		// Locked read: concurrent enrichments of one record apply in turn.
		current, err := s.Ledger.GetByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		updated, err = apply(*current, s.now())
		if err != nil {
			return err
		}
		return s.Ledger.UpdateDetails(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// findActive returns the account with id, or ErrAccountNotFound if it is
// missing or soft-deleted
func findActive(accounts []*domain.Account, id int64, role string) (*domain.Account, error) {
	for _, a := range accounts {
		if a.ID == id {
			if a.IsDeleted() {
				break
			}
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %d", domain.ErrAccountNotFound, role, id)
}

func (s *TransferService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *TransferService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
