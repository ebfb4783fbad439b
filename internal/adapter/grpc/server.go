package grpc

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/fundsflow-backend/internal/domain"
	"github.com/simaogato/fundsflow-backend/internal/usecase/dailylimit"
	"github.com/simaogato/fundsflow-backend/internal/usecase/transfer"
)

// Server implements TransferServiceServer
type Server struct {
	TransferService *transfer.TransferService
	Tracker         *dailylimit.Tracker
}

var _ TransferServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(transferService *transfer.TransferService, tracker *dailylimit.Tracker) *Server {
	return &Server{
		TransferService: transferService,
		Tracker:         tracker,
	}
}

// Transfer handles the Transfer RPC.
// The sender is always the authenticated account.
//
//	{"receiver_id": 2, "amount": "150.00", "description": "rent", "metadata": {...}}
func (s *Server) Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	senderID, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}

	receiverID, err := int64Field(req, "receiver_id")
	if err != nil {
		return nil, err
	}

	amount, err := decimalField(req, "amount")
	if err != nil {
		return nil, err
	}

	input := transfer.TransferInput{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
	}
	if v, ok := req.GetFields()["description"]; ok {
		if _, isNull := v.GetKind().(*structpb.Value_NullValue); !isNull {
			description, ok := v.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "description must be a string")
			}
			input.Description = &description.StringValue
		}
	}
	if v, ok := req.GetFields()["metadata"]; ok && v.GetStructValue() != nil {
		input.Metadata = v.GetStructValue().AsMap()
	}

	record, err := s.TransferService.Transfer(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}
	return recordToStruct(record)
}

// GetTransfer handles the GetTransfer RPC.
// Only the sender or the receiver can see a transfer.
//
//	{"reference": "TXN-..."}
func (s *Server) GetTransfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	callerID, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.TransferService.GetTransfer(ctx, req.GetFields()["reference"].GetStringValue())
	if err != nil {
		return nil, mapError(err)
	}
	if record.SenderID != callerID && record.ReceiverID != callerID {
		return nil, mapError(domain.ErrTransferNotFound)
	}
	return recordToStruct(record)
}

// AnnotateTransfer handles the AnnotateTransfer RPC.
// Only the sender can annotate a transfer.
//
//	{"reference": "TXN-...", "description": "...", "metadata": {...}}
func (s *Server) AnnotateTransfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	callerID, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}

	reference := req.GetFields()["reference"].GetStringValue()
	record, err := s.TransferService.GetTransfer(ctx, reference)
	if err != nil {
		return nil, mapError(err)
	}
	if record.SenderID != callerID {
		return nil, mapError(domain.ErrTransferNotFound)
	}

	var description *string
	if value, ok := req.GetFields()["description"]; ok {
		text, isString := value.GetKind().(*structpb.Value_StringValue)
		if !isString {
			return nil, status.Error(codes.InvalidArgument, "description must be a string")
		}
		description = &text.StringValue
	}
	var metadata map[string]any
	if value := req.GetFields()["metadata"].GetStructValue(); value != nil {
		metadata = value.AsMap()
	}
	if description == nil && metadata == nil {
		return nil, status.Error(codes.InvalidArgument, "description or metadata is required")
	}

	if record, err = s.TransferService.Annotate(ctx, reference, description, metadata); err != nil {
		return nil, mapError(err)
	}
	return recordToStruct(record)
}

// GetDailyUsage handles the GetDailyUsage RPC for the authenticated account
func (s *Server) GetDailyUsage(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	callerID, err := authenticated(ctx)
	if err != nil {
		return nil, err
	}

	usage, err := s.Tracker.Usage(ctx, callerID)
	if err != nil {
		return nil, mapError(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"account_id": usage.SenderID,
		"date":       usage.Date,
		"total":      usage.Total.StringFixed(2),
		"remaining":  usage.Remaining.StringFixed(2),
		"limit":      usage.Limit.StringFixed(2),
	})
}

func authenticated(ctx context.Context) (int64, error) {
	id, ok := SenderIDFromContext(ctx)
	if !ok {
		return 0, status.Error(codes.Unauthenticated, "missing authenticated account")
	}
	return id, nil
}

// int64Field accepts a whole JSON number or a decimal string
func int64Field(req *structpb.Struct, name string) (int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != float64(int64(n)) {
			return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
		}
		return int64(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(kind.StringValue, 10, 64)
		if err != nil {
			return 0, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", name, err)
		}
		return n, nil
	default:
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
}

// decimalField accepts a decimal string or a JSON number.
// Strings are preferred since a number goes through float64.
func decimalField(req *structpb.Struct, name string) (decimal.Decimal, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return decimal.Decimal{}, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(kind.StringValue)
		if err != nil {
			return decimal.Decimal{}, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", name, err)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(kind.NumberValue), nil
	default:
		return decimal.Decimal{}, status.Errorf(codes.InvalidArgument, "%s must be a decimal string", name)
	}
}

func recordToStruct(r *domain.TransferRecord) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"id":          r.ID,
		"sender_id":   r.SenderID,
		"receiver_id": r.ReceiverID,
		"amount":      r.Amount.String(),
		"type":        string(r.Type),
		"status":      string(r.Status),
		"reference":   r.Reference,
		"description": nil,
		"metadata":    nil,
		"created_at":  r.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":  r.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if r.Description != nil {
		fields["description"] = *r.Description
	}
	if r.Metadata != nil {
		fields["metadata"] = r.Metadata
	}

	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode transfer: %v", err)
	}
	return out, nil
}

// mapError maps domain errors to gRPC status codes
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var code codes.Code
	switch {
	case domain.IsValidation(err):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrTransferNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrDailyLimitExceeded),
		errors.Is(err, domain.ErrInvalidStatusTransition):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrDuplicateTransaction):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrBusy):
		code = codes.Unavailable
	default:
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

