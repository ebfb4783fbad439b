package domain

import "errors"

// Validation errors. Raised by value constructors and request validation,
// normally before a unit of work is opened.
var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidBalance          = errors.New("invalid balance")
	ErrInvalidTransfer         = errors.New("invalid transfer")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// Business rejections. Expected outcomes of a transfer attempt, not faults.
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDailyLimitExceeded   = errors.New("daily transfer limit exceeded")
	ErrDuplicateTransaction = errors.New("duplicate transaction detected")
)

var (
	// ErrTransferNotFound is returned by lookups on a reference that does not exist
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrBusy means the unit of work could not acquire its locks in time.
	// Nothing was written; the caller may retry.
	ErrBusy = errors.New("resource busy, try again")
)

// IsBusinessRejection reports whether err is one of the expected
// user-facing outcomes of a transfer attempt
func IsBusinessRejection(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrDailyLimitExceeded) ||
		errors.Is(err, ErrDuplicateTransaction)
}

// IsValidation reports whether err comes from input validation
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidBalance) ||
		errors.Is(err, ErrInvalidTransfer)
}
