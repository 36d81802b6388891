package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/google/uuid"
)

// ReconcilerConfig holds configuration for the ledger reconciler
type ReconcilerConfig struct {
	// PollInterval is how often to check for pending rows (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of rows to process per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum attempts before a row is marked failed (default: 5)
	MaxRetries int

	// CleanupAge is how old completed rows must be before cleanup (default: 24h)
	CleanupAge time.Duration

	// SweepLimit caps how many flagged anchors one sweep inspects per kind (default: 100)
	SweepLimit int

	// CallTimeout bounds every store call (default: 5s)
	CallTimeout time.Duration
}

// DefaultReconcilerConfig returns sensible defaults
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		PollInterval: 10 * time.Second,
		BatchSize:    10,
		MaxRetries:   5,
		CleanupAge:   24 * time.Hour,
		SweepLimit:   100,
		CallTimeout:  5 * time.Second,
	}
}

// LedgerReconciler drains the reconciliation queue. For every row it derives
// the ledger entry the anchor's current state requires and applies it, then
// clears the anchor's flag.
type LedgerReconciler struct {
	store    storage.Store
	notifier Notifier
	config   ReconcilerConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	wakeCh  chan struct{}
}

// NewLedgerReconciler creates a new reconciler
func NewLedgerReconciler(store storage.Store, notifier Notifier, config ReconcilerConfig) *LedgerReconciler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &LedgerReconciler{
		store:    store,
		notifier: notifier,
		config:   config,
		wakeCh:   make(chan struct{}, 1),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (r *LedgerReconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("ledger reconciler is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	// Rows left in processing by a crashed worker go back to pending
	if err := r.store.ResetStaleLedgerSyncs(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale ledger syncs", "error", err)
	}

	go r.runLoop(ctx)

	slog.InfoContext(ctx, "Ledger reconciler started",
		"poll_interval", r.config.PollInterval,
		"batch_size", r.config.BatchSize)

	return nil
}

// Stop gracefully stops the reconciler and waits for completion.
func (r *LedgerReconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)

	select {
	case <-r.doneCh:
		slog.InfoContext(ctx, "Ledger reconciler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Ledger reconciler stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	return nil
}

// IsRunning returns whether the reconciler is currently running
func (r *LedgerReconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Trigger asks the loop to process the queue now. It never blocks.
func (r *LedgerReconciler) Trigger() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

func (r *LedgerReconciler) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	pollTicker := time.NewTicker(r.config.PollInterval)
	defer pollTicker.Stop()

	r.runOnce(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			r.runOnce(ctx)
		case <-r.wakeCh:
			r.runOnce(ctx)
		}
	}
}

func (r *LedgerReconciler) runOnce(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Ledger reconciliation pass failed", "error", err)
	}
}

// RunOnce sweeps flagged anchors into the queue and processes one batch. It
// returns how many rows completed.
func (r *LedgerReconciler) RunOnce(ctx context.Context) (int, error) {
	if _, err := r.Sweep(ctx); err != nil {
		slog.WarnContext(ctx, "Ledger sweep failed", "error", err)
	}
	return r.processBatch(ctx)
}

// Sweep queues flagged anchors that have no open reconciliation row. This
// covers crashes between an anchor write and the queueing of its row.
func (r *LedgerReconciler) Sweep(ctx context.Context) (int, error) {
	var anchors []storage.AnchorRef
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		anchors, err = r.store.ListFlaggedAnchors(ctx, r.config.SweepLimit)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list flagged anchors: %w", err)
	}

	queued := 0
	for _, a := range anchors {
		var row storage.LedgerSync
		err := r.call(ctx, func(ctx context.Context) error {
			var err error
			row, err = r.store.FindLedgerSync(ctx, a.Kind, a.ID)
			return err
		})
		if err == nil && row.Status != storage.SyncCompleted {
			continue
		}
		if err != nil && !storage.IsNotFound(err) {
			return queued, err
		}
		// The operation is advisory: processing derives it from the anchor.
		err = r.call(ctx, func(ctx context.Context) error {
			_, err := r.store.EnqueueLedgerSync(ctx, storage.LedgerSync{
				UserID:        a.UserID,
				Operation:     storage.OpInsertEntry,
				AnchorKind:    a.Kind,
				AnchorID:      a.ID,
				TransactionID: a.LedgerTransactionID,
			})
			return err
		})
		if err != nil {
			return queued, fmt.Errorf("queue %s %s: %w", a.Kind, a.ID, err)
		}
		queued++
	}
	if queued > 0 {
		slog.InfoContext(ctx, "Queued flagged anchors for reconciliation", "count", queued)
	}
	return queued, nil
}

func (r *LedgerReconciler) processBatch(ctx context.Context) (int, error) {
	var rows []storage.LedgerSync
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		rows, err = r.store.DequeueLedgerSyncs(ctx, r.config.BatchSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("dequeue ledger syncs: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	slog.DebugContext(ctx, "Processing ledger sync batch", "count", len(rows))

	done := 0
	for _, row := range rows {
		select {
		case <-r.stopCh:
			return done, nil
		case <-ctx.Done():
			return done, ctx.Err()
		default:
		}

		if err := r.store.MarkLedgerSyncProcessing(ctx, row.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark ledger sync as processing",
				"sync_id", row.ID, "error", err)
			continue
		}

		res, err := r.reconcile(ctx, row)
		if err != nil {
			r.handleFailure(ctx, row, err)
			continue
		}
		r.handleSuccess(ctx, row, res)
		done++
	}
	return done, nil
}

// reconciled describes what a reconciliation did to the ledger.
type reconciled struct {
	changed       bool
	recorded      bool
	transactionID string
}

// reconcile applies the ledger state the anchor requires. An anchor whose
// flag is already clear is left alone: the operation that cleared it wrote
// both sides, and the user may have undone it since.
func (r *LedgerReconciler) reconcile(ctx context.Context, row storage.LedgerSync) (reconciled, error) {
	switch row.AnchorKind {
	case core.KindReceivable:
		return r.reconcileReceivable(ctx, row)
	case core.KindFixedExpensePayment:
		return r.reconcilePayment(ctx, row)
	case core.KindSavingsMovement:
		return r.reconcileMovement(ctx, row)
	}
	return reconciled{}, fmt.Errorf("unknown anchor kind %q", row.AnchorKind)
}

func (r *LedgerReconciler) reconcileReceivable(ctx context.Context, row storage.LedgerSync) (reconciled, error) {
	var rc core.AccountReceivable
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		rc, err = r.store.GetReceivable(ctx, row.UserID, row.AnchorID)
		return err
	})
	if storage.IsNotFound(err) {
		return r.orphaned(ctx, row)
	}
	if err != nil {
		return reconciled{}, err
	}
	if !rc.LedgerSyncPending {
		return reconciled{transactionID: rc.LedgerTransactionID}, nil
	}

	if !rc.IsPaid {
		txID := rc.LedgerTransactionID
		if txID == "" {
			txID = row.TransactionID
		}
		changed, err := r.removeEntry(ctx, row.UserID, txID)
		if err != nil {
			return reconciled{}, err
		}
		none, done := "", false
		return reconciled{changed: changed, transactionID: txID}, r.call(ctx, func(ctx context.Context) error {
			_, err := r.store.UpdateReceivable(ctx, row.UserID, rc.ID, storage.ReceivablePatch{
				LedgerTransactionID: &none,
				LedgerSyncPending:   &done,
			})
			return err
		})
	}

	if rc.LedgerTransactionID == "" {
		txID := uuid.NewString()
		if err := r.call(ctx, func(ctx context.Context) error {
			_, err := r.store.UpdateReceivable(ctx, row.UserID, rc.ID, storage.ReceivablePatch{LedgerTransactionID: &txID})
			return err
		}); err != nil {
			return reconciled{}, err
		}
		rc.LedgerTransactionID = txID
	}
	return r.record(ctx, row, receivableEntry(rc, rc.LedgerTransactionID))
}

func (r *LedgerReconciler) reconcilePayment(ctx context.Context, row storage.LedgerSync) (reconciled, error) {
	var p core.FixedExpensePayment
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		p, err = r.store.GetPayment(ctx, row.UserID, row.AnchorID)
		return err
	})
	if storage.IsNotFound(err) {
		return r.orphaned(ctx, row)
	}
	if err != nil {
		return reconciled{}, err
	}
	if !p.LedgerSyncPending {
		return reconciled{transactionID: p.LedgerTransactionID}, nil
	}

	var e core.FixedExpense
	err = r.call(ctx, func(ctx context.Context) error {
		var err error
		e, err = r.store.GetFixedExpense(ctx, row.UserID, p.FixedExpenseID)
		return err
	})
	if err != nil {
		return reconciled{}, err
	}
	return r.record(ctx, row, paymentEntry(e, p))
}

func (r *LedgerReconciler) reconcileMovement(ctx context.Context, row storage.LedgerSync) (reconciled, error) {
	var m core.SavingsMovement
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		m, err = r.store.GetMovement(ctx, row.UserID, row.AnchorID)
		return err
	})
	if storage.IsNotFound(err) {
		return r.orphaned(ctx, row)
	}
	if err != nil {
		return reconciled{}, err
	}
	if !m.LedgerSyncPending {
		return reconciled{transactionID: m.LedgerTransactionID}, nil
	}

	var g core.SavingsGoal
	err = r.call(ctx, func(ctx context.Context) error {
		var err error
		g, err = r.store.GetGoal(ctx, row.UserID, m.GoalID)
		return err
	})
	if err != nil {
		return reconciled{}, err
	}
	return r.record(ctx, row, movementEntry(g, m))
}

// record books the entry and then clears the anchor flag.
func (r *LedgerReconciler) record(ctx context.Context, row storage.LedgerSync, tx core.Transaction) (reconciled, error) {
	changed, err := r.ensureEntry(ctx, tx)
	if err != nil {
		return reconciled{}, err
	}
	return reconciled{changed: changed, recorded: true, transactionID: tx.ID}, r.clearFlag(ctx, row)
}

// orphaned handles a row whose anchor no longer exists. A retraction still
// removes the entry; anything else is left as history.
func (r *LedgerReconciler) orphaned(ctx context.Context, row storage.LedgerSync) (reconciled, error) {
	if row.Operation != storage.OpDeleteEntry {
		slog.InfoContext(ctx, "Anchor gone, keeping ledger entry",
			"anchor_kind", row.AnchorKind,
			"anchor_id", row.AnchorID,
			"transaction_id", row.TransactionID)
		return reconciled{transactionID: row.TransactionID}, nil
	}
	changed, err := r.removeEntry(ctx, row.UserID, row.TransactionID)
	return reconciled{changed: changed, transactionID: row.TransactionID}, err
}

func (r *LedgerReconciler) ensureEntry(ctx context.Context, tx core.Transaction) (bool, error) {
	err := r.call(ctx, func(ctx context.Context) error {
		_, err := r.store.CreateTransaction(ctx, tx)
		return err
	})
	if storage.IsConflict(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record ledger entry %s: %w", tx.ID, err)
	}
	return true, nil
}

func (r *LedgerReconciler) removeEntry(ctx context.Context, userID, txID string) (bool, error) {
	if txID == "" {
		return false, nil
	}
	err := r.call(ctx, func(ctx context.Context) error {
		return r.store.DeleteTransaction(ctx, userID, txID)
	})
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("retract ledger entry %s: %w", txID, err)
	}
	return true, nil
}

func (r *LedgerReconciler) clearFlag(ctx context.Context, row storage.LedgerSync) error {
	return r.call(ctx, func(ctx context.Context) error {
		return r.store.SetLedgerSyncPending(ctx, row.AnchorKind, row.UserID, row.AnchorID, false)
	})
}

func (r *LedgerReconciler) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return RetryPolicy{Attempts: 1, CallTimeout: r.config.CallTimeout}.call(ctx, fn)
}

// handleSuccess marks a row as completed
func (r *LedgerReconciler) handleSuccess(ctx context.Context, row storage.LedgerSync, res reconciled) {
	if err := r.store.CompleteLedgerSync(ctx, row.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark ledger sync complete",
			"sync_id", row.ID, "error", err)
	}
	slog.InfoContext(ctx, "Reconciled ledger entry",
		"sync_id", row.ID,
		"anchor_kind", row.AnchorKind,
		"anchor_id", row.AnchorID,
		"transaction_id", res.transactionID,
		"changed", res.changed)
	if !res.changed {
		return
	}
	if err := r.notifier.BalanceChanged(ctx, BalanceEvent{
		UserID:        row.UserID,
		AnchorKind:    row.AnchorKind,
		AnchorID:      row.AnchorID,
		TransactionID: res.transactionID,
		Recorded:      res.recorded,
	}); err != nil {
		slog.WarnContext(ctx, "Failed to publish balance change", "sync_id", row.ID, "error", err)
	}
}

// handleFailure handles a failed attempt with retry logic
func (r *LedgerReconciler) handleFailure(ctx context.Context, row storage.LedgerSync, processErr error) {
	slog.WarnContext(ctx, "Ledger reconciliation failed",
		"sync_id", row.ID,
		"anchor_kind", row.AnchorKind,
		"anchor_id", row.AnchorID,
		"attempt", row.Attempts+1,
		"error", processErr)

	if row.Attempts+1 >= r.config.MaxRetries {
		if err := r.store.FailLedgerSync(ctx, row.ID, processErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark ledger sync as failed",
				"sync_id", row.ID, "error", err)
		}
		slog.ErrorContext(ctx, "Ledger sync failed permanently after max retries",
			"sync_id", row.ID,
			"anchor_kind", row.AnchorKind,
			"anchor_id", row.AnchorID,
			"attempts", row.Attempts+1)
		return
	}
	if err := r.store.IncrementLedgerSyncAttempt(ctx, row.ID, processErr.Error()); err != nil {
		slog.ErrorContext(ctx, "Failed to increment ledger sync attempt",
			"sync_id", row.ID, "error", err)
	}
}

// Cleanup removes completed rows older than CleanupAge.
func (r *LedgerReconciler) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-r.config.CleanupAge)
	n, err := r.store.CleanupCompletedLedgerSyncs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup completed ledger syncs: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up completed ledger syncs", "count", n)
	}
	return n, nil
}

// Stats returns current queue statistics
func (r *LedgerReconciler) Stats(ctx context.Context) (storage.LedgerSyncStats, error) {
	return r.store.LedgerSyncStats(ctx)
}

// RetryFailed resets all failed rows for retry
func (r *LedgerReconciler) RetryFailed(ctx context.Context) (int64, error) {
	return r.store.RetryFailedLedgerSyncs(ctx)
}
