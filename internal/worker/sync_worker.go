package worker

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// Trigger wakes the ledger reconciler.
type Trigger interface {
	Trigger()
}

// SyncWorker reacts to ledger events: sync requests wake the reconciler and
// recorded or removed entries are copied to the ledger mirror.
type SyncWorker struct {
	store      storage.TransactionStore
	mirror     sheets.LedgerMirror
	reconciler Trigger
	batchSize  int
}

// NewSyncWorker builds a worker. mirror may be nil when no mirror is
// configured.
func NewSyncWorker(store storage.TransactionStore, mirror sheets.LedgerMirror, reconciler Trigger, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SyncWorker{
		store:      store,
		mirror:     mirror,
		reconciler: reconciler,
		batchSize:  batchSize,
	}
}

// HandleEvent processes a single ledger event from AMQP. A returned error
// requeues the delivery.
func (w *SyncWorker) HandleEvent(ctx context.Context, e *amqp.LedgerEvent) error {
	slog.DebugContext(ctx, "Processing ledger event",
		"type", e.Type,
		"user_id", e.UserID,
		"transaction_id", e.TransactionID,
		"sync_id", e.SyncID)

	switch e.Type {
	case amqp.EventLedgerSyncRequested:
		if w.reconciler != nil {
			w.reconciler.Trigger()
		}
		return nil
	case amqp.EventTransactionRecorded:
		return w.mirrorRecorded(ctx, e)
	case amqp.EventTransactionRemoved:
		return w.mirrorRemoved(ctx, e)
	default:
		return nil
	}
}

func (w *SyncWorker) mirrorRecorded(ctx context.Context, e *amqp.LedgerEvent) error {
	if w.mirror == nil || e.TransactionID == "" {
		return nil
	}
	tx, err := w.store.GetTransaction(ctx, e.UserID, e.TransactionID)
	if storage.IsNotFound(err) {
		// Removed again before the event was handled; the removal event
		// follows.
		slog.InfoContext(ctx, "Skipping mirror of vanished entry",
			"user_id", e.UserID,
			"transaction_id", e.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	return w.syncEntry(ctx, tx)
}

func (w *SyncWorker) mirrorRemoved(ctx context.Context, e *amqp.LedgerEvent) error {
	if w.mirror == nil || e.TransactionID == "" {
		return nil
	}
	if err := w.mirror.Remove(ctx, e.UserID, e.TransactionID); err != nil {
		slog.ErrorContext(ctx, "Failed to remove entry from ledger mirror",
			"user_id", e.UserID,
			"transaction_id", e.TransactionID,
			"error", err,
			"timestamp", e.Timestamp)
		return fmt.Errorf("remove from ledger mirror: %w", err)
	}
	slog.InfoContext(ctx, "Removed entry from ledger mirror",
		"user_id", e.UserID,
		"transaction_id", e.TransactionID)
	return nil
}

// Backfill copies every entry of the owner to the mirror. Entries already
// mirrored are left alone, so it is safe to run repeatedly. It returns the
// number of entries processed.
func (w *SyncWorker) Backfill(ctx context.Context, userID string) (int, error) {
	if w.mirror == nil {
		return 0, fmt.Errorf("backfill: no ledger mirror configured")
	}
	txns, err := w.store.ListTransactions(ctx, storage.Filter{UserID: userID})
	if err != nil {
		return 0, fmt.Errorf("list transactions: %w", err)
	}

	slog.InfoContext(ctx, "Backfilling ledger mirror", "user_id", userID, "count", len(txns))

	synced, failed := 0, 0
	for i, tx := range txns {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := w.syncEntry(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror entry during backfill",
				"transaction_id", tx.ID, "error", err)
			failed++
			continue
		}
		synced++
		if (i+1)%w.batchSize == 0 {
			slog.InfoContext(ctx, "Backfill progress", "processed", i+1, "total", len(txns))
		}
	}

	slog.InfoContext(ctx, "Backfill completed",
		"user_id", userID,
		"total", len(txns),
		"synced", synced,
		"errors", failed)
	if failed > 0 {
		return synced, fmt.Errorf("backfill: %d of %d entries failed", failed, len(txns))
	}
	return synced, nil
}

func (w *SyncWorker) syncEntry(ctx context.Context, tx core.Transaction) error {
	ref, err := w.mirror.Append(ctx, tx)
	if err != nil {
		return fmt.Errorf("append to ledger mirror: %w", err)
	}
	slog.InfoContext(ctx, "Mirrored ledger entry",
		"transaction_id", tx.ID,
		"sheets_ref", ref,
		"amount_cents", tx.Amount.Cents)
	return nil
}
