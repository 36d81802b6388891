package storage

import (
	"errors"
	"fmt"

	"fintrack/internal/core"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrOwnerRequired = errors.New("owner required")
)

// Store operations, as reported in StoreError.
const (
	OpCreate = "create"
	OpGet    = "get"
	OpList   = "list"
	OpUpdate = "update"
	OpDelete = "delete"
	OpQueue  = "queue"
)

// StoreError wraps every failure surfaced by a Store.
type StoreError struct {
	Op   string
	Kind core.Kind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Wrap returns err as a StoreError unless it is nil or already one.
func Wrap(op string, kind core.Kind, err error) error {
	if err == nil {
		return nil
	}
	var serr *StoreError
	if errors.As(err, &serr) {
		return err
	}
	return &StoreError{Op: op, Kind: kind, Err: err}
}

// IsNotFound reports whether err means the entity does not exist for the owner.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a uniqueness or precondition violation.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// RequireOwner rejects filters and lookups without an owner.
func RequireOwner(op string, kind core.Kind, userID string) error {
	if userID == "" {
		return &StoreError{Op: op, Kind: kind, Err: ErrOwnerRequired}
	}
	return nil
}
