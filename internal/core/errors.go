package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrMissingField      = errors.New("missing required field")
	ErrFieldTooLong      = errors.New("field too long")
	ErrInvalidType       = errors.New("invalid type")
	ErrInvalidDueDay     = errors.New("due day must be between 1 and 31")
	ErrMissingOwner      = errors.New("missing owner")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyPaid       = errors.New("already paid")
	ErrNotPaid           = errors.New("not paid")
	ErrInactive          = errors.New("fixed expense is inactive")
	ErrDerivedEntry      = errors.New("ledger entry is owned by another entity")
	ErrLockedWhilePaid   = errors.New("amount cannot change while paid")
	ErrLedgerSyncPending = errors.New("ledger sync pending for this entity")
)

// ValidationError reports an invalid or missing input field. It is returned
// before any write is issued and is never retryable.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid builds a ValidationError for field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// InsufficientFundsError reports a withdrawal larger than the available amount.
type InsufficientFundsError struct {
	Requested Money
	Available Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %s, available %s", e.Requested, e.Available)
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// IsValidation reports whether err is a caller input problem rather than a
// store or infrastructure failure.
func IsValidation(err error) bool {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return true
	}
	var ferr *InsufficientFundsError
	return errors.As(err, &ferr)
}
