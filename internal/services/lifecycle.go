package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/google/uuid"
)

// Config tunes how the lifecycle service talks to the store.
type Config struct {
	// StoreTimeout bounds every single store call (default: 5s)
	StoreTimeout time.Duration

	// DerivedWriteAttempts is how often a ledger write is tried before the
	// operation is reported as a partial failure (default: 3)
	DerivedWriteAttempts int

	// DerivedWriteBackoff is the wait before the second attempt; it doubles
	// after every further attempt (default: 200ms)
	DerivedWriteBackoff time.Duration

	// RequireFundedDeposits rejects savings deposits larger than the main
	// balance.
	RequireFundedDeposits bool

	// Clock supplies "today" for entries without a date (default: time.Now)
	Clock func() time.Time
}

func DefaultConfig() Config {
	return Config{
		StoreTimeout:         5 * time.Second,
		DerivedWriteAttempts: 3,
		DerivedWriteBackoff:  200 * time.Millisecond,
	}
}

// LifecycleService owns every balance-affecting write. Compound operations
// run as sagas: validate, write the anchor, write the ledger entry, notify.
type LifecycleService struct {
	store    storage.Store
	notifier Notifier
	config   Config
	guard    *inflight

	now   func() time.Time
	newID func() string
}

func NewLifecycleService(store storage.Store, notifier Notifier, config Config) *LifecycleService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if config.DerivedWriteAttempts < 1 {
		config.DerivedWriteAttempts = 1
	}
	now := config.Clock
	if now == nil {
		now = time.Now
	}
	return &LifecycleService{
		store:    store,
		notifier: notifier,
		config:   config,
		guard:    newInflight(),
		now:      now,
		newID:    uuid.NewString,
	}
}

func (s *LifecycleService) today() core.Date {
	return core.DateOf(s.now())
}

// call runs a single store call under the store timeout. Anchor writes and
// reads are not retried.
func (s *LifecycleService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return RetryPolicy{Attempts: 1, CallTimeout: s.config.StoreTimeout}.call(ctx, fn)
}

// fetch is call for store methods that return a value.
func fetch[T any](ctx context.Context, s *LifecycleService, fn func(ctx context.Context) (T, error)) (T, error) {
	var v T
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		v, err = fn(ctx)
		return err
	})
	return v, err
}

func (s *LifecycleService) derivedPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:    s.config.DerivedWriteAttempts,
		Backoff:     s.config.DerivedWriteBackoff,
		CallTimeout: s.config.StoreTimeout,
	}
}

// recordEntry inserts a ledger entry under its preallocated id. A conflict
// means an earlier attempt already landed.
func (s *LifecycleService) recordEntry(ctx context.Context, tx core.Transaction) error {
	return s.derivedPolicy().Do(ctx, func(ctx context.Context) error {
		_, err := s.store.CreateTransaction(ctx, tx)
		if storage.IsConflict(err) {
			return nil
		}
		return err
	})
}

// retractEntry deletes a ledger entry. An entry that is already gone counts
// as retracted.
func (s *LifecycleService) retractEntry(ctx context.Context, userID, txID string) error {
	if txID == "" {
		return nil
	}
	return s.derivedPolicy().Do(ctx, func(ctx context.Context) error {
		err := s.store.DeleteTransaction(ctx, userID, txID)
		if storage.IsNotFound(err) {
			return nil
		}
		return err
	})
}

// settle finishes a saga once the anchor is written. On success it clears the
// anchor's reconciliation flag through clear, if given. On failure it queues a
// reconciliation row and returns a PartialFailureError.
func (s *LifecycleService) settle(ctx context.Context, out *Outcome, userID string, op storage.LedgerSyncOp,
	derivedErr error, clear func(ctx context.Context) error) (Outcome, error) {

	if derivedErr == nil {
		out.State = StateDerivedWritten
		if clear != nil {
			if err := s.call(ctx, clear); err != nil {
				// The sweep finds the flag and clears it.
				slog.WarnContext(ctx, "Failed to clear ledger sync flag",
					"operation", out.Operation,
					"anchor_kind", out.AnchorKind,
					"anchor_id", out.AnchorID,
					"error", err)
			}
		}
		s.notify(ctx, out, userID)
		return *out, nil
	}

	out.State = StateDerivedFailed
	row := storage.LedgerSync{
		UserID:     userID,
		Operation:  op,
		AnchorKind: out.AnchorKind,
		AnchorID:   out.AnchorID,
		LastError:  derivedErr.Error(),
	}
	if out.Transaction != nil {
		row.TransactionID = out.Transaction.ID
	}
	queued, err := fetch(ctx, s, func(ctx context.Context) (storage.LedgerSync, error) {
		return s.store.EnqueueLedgerSync(ctx, row)
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to queue ledger reconciliation",
			"operation", out.Operation,
			"anchor_kind", out.AnchorKind,
			"anchor_id", out.AnchorID,
			"error", err)
	} else {
		out.SyncID = queued.ID
		if err := s.notifier.LedgerSyncRequested(ctx, userID, queued.ID); err != nil {
			slog.WarnContext(ctx, "Failed to request ledger sync", "sync_id", queued.ID, "error", err)
		}
	}

	slog.ErrorContext(ctx, "Compound operation partially failed",
		"operation", out.Operation,
		"state", out.State,
		"user_id", userID,
		"anchor_kind", out.AnchorKind,
		"anchor_id", out.AnchorID,
		"transaction_id", row.TransactionID,
		"sync_id", out.SyncID,
		"error", derivedErr)

	s.notify(ctx, out, userID)
	return *out, &PartialFailureError{Outcome: *out, Err: derivedErr}
}

func (s *LifecycleService) notify(ctx context.Context, out *Outcome, userID string) {
	e := BalanceEvent{
		UserID:     userID,
		Operation:  out.Operation,
		AnchorKind: out.AnchorKind,
		AnchorID:   out.AnchorID,
	}
	if out.Transaction != nil && out.State == StateDerivedWritten {
		e.TransactionID = out.Transaction.ID
		e.Delta = balanceDelta(*out.Transaction)
		e.Recorded = out.Operation.records()
		if !e.Recorded {
			e.Delta = e.Delta.Neg()
		}
	}
	s.changed(ctx, e)
}

// changed signals the notifier and only logs its failure.
func (s *LifecycleService) changed(ctx context.Context, e BalanceEvent) {
	if err := s.notifier.BalanceChanged(ctx, e); err != nil {
		slog.WarnContext(ctx, "Failed to publish balance change",
			"operation", e.Operation,
			"user_id", e.UserID,
			"error", err)
	}
}

// records reports whether the operation books a new ledger entry rather than
// retracting one.
func (op Operation) records() bool {
	switch op {
	case OpCollectReceivable, OpPayFixedExpense, OpDeposit, OpWithdraw:
		return true
	}
	return false
}

// balance returns the owner's current main balance.
func (s *LifecycleService) balance(ctx context.Context, userID string) (core.Money, error) {
	txns, err := fetch(ctx, s, func(ctx context.Context) ([]core.Transaction, error) {
		return s.store.ListTransactions(ctx, storage.Filter{UserID: userID})
	})
	if err != nil {
		return core.Money{}, fmt.Errorf("load balance: %w", err)
	}
	return core.Summarize(txns, core.Money{}).Balance, nil
}

func requireOwner(userID string) error {
	if userID == "" {
		return core.Invalid("user_id", core.ErrMissingOwner)
	}
	return nil
}
