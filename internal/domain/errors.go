package domain

import (
	"errors"
	"fmt"
)

var (
	// Account errors
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotLocked  = errors.New("account is not part of the locked group")

	// Movement errors
	ErrValidation          = errors.New("validation failed")
	ErrSameAccount         = errors.New("cannot transfer to the same account")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrDistributionSum     = errors.New("sum of distributions does not match total amount")
	ErrUnknownMovement     = errors.New("unknown movement kind")
	ErrTransactionNotFound = errors.New("transaction not found")

	// Store errors
	ErrStore     = errors.New("store failure")
	ErrBusy      = errors.New("accounts are busy, lock wait timed out")
	ErrGroupDone = errors.New("account group already committed or aborted")

	// Recording errors
	ErrRecording               = errors.New("transaction recording failed")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already recorded")
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

// Is reports ErrValidation so callers can match any validation failure.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// RecordingWarning reports that a committed movement could not be appended
// to the transaction history. The movement itself stands.
type RecordingWarning struct {
	Kind TransactionKind
	Err  error
}

func (w *RecordingWarning) Error() string {
	return fmt.Sprintf("%s for %s: %v", ErrRecording, w.Kind, w.Err)
}

func (w *RecordingWarning) Is(target error) bool {
	return target == ErrRecording
}

func (w *RecordingWarning) Unwrap() error {
	return w.Err
}

// NewStoreError wraps a persistence fault so both ErrStore and the cause match.
func NewStoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
