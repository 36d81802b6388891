package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Operation names a compound operation.
type Operation string

const (
	OpCollectReceivable   Operation = "collect_receivable"
	OpUncollectReceivable Operation = "uncollect_receivable"
	OpPayFixedExpense     Operation = "pay_fixed_expense"
	OpUnpayFixedExpense   Operation = "unpay_fixed_expense"
	OpDeposit             Operation = "savings_deposit"
	OpWithdraw            Operation = "savings_withdrawal"
	OpDeleteMovement      Operation = "delete_savings_movement"
)

// State is the step a compound operation reached.
type State string

const (
	StateValidated      State = "validated"
	StateAnchorWritten  State = "anchor_written"
	StateDerivedWritten State = "derived_written"
	StateDerivedFailed  State = "derived_failed"
)

// ErrOperationInProgress is returned while another compound operation holds
// the same anchor.
var ErrOperationInProgress = errors.New("operation already in progress")

// Outcome describes how far a compound operation got. Transaction is the
// ledger entry the operation recorded or retracted.
type Outcome struct {
	Operation   Operation
	State       State
	AnchorKind  core.Kind
	AnchorID    string
	Transaction *core.Transaction
	SyncID      int64
}

// PartialFailureError reports a compound operation whose anchor write
// succeeded but whose ledger write did not. The anchor is flagged and a
// reconciliation row is queued under Outcome.SyncID.
type PartialFailureError struct {
	Outcome Outcome
	Err     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s %s %s: ledger write failed, reconciliation queued: %v",
		e.Outcome.Operation, e.Outcome.AnchorKind, e.Outcome.AnchorID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// IsPartialFailure reports whether err left an anchor awaiting reconciliation.
func IsPartialFailure(err error) bool {
	var perr *PartialFailureError
	return errors.As(err, &perr)
}

// RetryPolicy bounds the attempts made for a single store call.
type RetryPolicy struct {
	Attempts    int
	Backoff     time.Duration
	CallTimeout time.Duration
}

// Do runs fn until it succeeds, fails permanently, or the attempts run out. Every attempt gets its own timeout; the wait doubles between
// attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.Backoff
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			case <-time.After(wait):
			}
			wait *= 2
		}
		err = p.call(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

// retryable reports whether another attempt could succeed. Missing rows,
// conflicts, and bad input stay that way.
func retryable(err error) bool {
	switch {
	case core.IsValidation(err),
		storage.IsNotFound(err),
		storage.IsConflict(err),
		errors.Is(err, storage.ErrOwnerRequired),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (p RetryPolicy) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.CallTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()
	return fn(ctx)
}

// inflight rejects a second compound operation on an anchor that is still
// being processed.
type inflight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{keys: make(map[string]struct{})}
}

func (g *inflight) acquire(kind core.Kind, id string) (func(), error) {
	key := string(kind) + "/" + id
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.keys[key]; busy {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrOperationInProgress)
	}
	g.keys[key] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.keys, key)
		g.mu.Unlock()
	}, nil
}
