package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
)

const ledgerSyncColumns = "id, user_id, operation, anchor_kind, anchor_id, transaction_id, status, attempts, last_error, created_at, updated_at"

// anchorTables maps the anchor kinds to their tables.
var anchorTables = map[core.Kind]string{
	core.KindReceivable:          "accounts_receivable",
	core.KindFixedExpensePayment: "fixed_expense_payments",
	core.KindSavingsMovement:     "savings_movements",
}

func (r *SQLRepository) SetLedgerSyncPending(ctx context.Context, kind core.Kind, userID, id string, pending bool) error {
	if err := RequireOwner(OpUpdate, kind, userID); err != nil {
		return err
	}
	table, ok := anchorTables[kind]
	if !ok {
		return Wrap(OpUpdate, kind, fmt.Errorf("%s does not carry a ledger entry", kind))
	}
	n, err := r.exec(ctx, r.db, "UPDATE "+table+" SET ledger_sync_pending = ? WHERE id = ? AND user_id = ?", pending, id, userID)
	if err != nil {
		return Wrap(OpUpdate, kind, err)
	}
	if n == 0 {
		return Wrap(OpUpdate, kind, ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) ListFlaggedAnchors(ctx context.Context, limit int) ([]AnchorRef, error) {
	var out []AnchorRef
	for _, kind := range []core.Kind{core.KindReceivable, core.KindFixedExpensePayment, core.KindSavingsMovement} {
		query := "SELECT id, user_id, ledger_transaction_id FROM " + anchorTables[kind] +
			" WHERE ledger_sync_pending = ? ORDER BY created_at ASC" + limitClause(limit)
		rows, err := r.db.QueryContext(ctx, r.rebind(query), true)
		if err != nil {
			return nil, Wrap(OpList, kind, err)
		}
		for rows.Next() {
			ref := AnchorRef{Kind: kind}
			if err := rows.Scan(&ref.ID, &ref.UserID, &ref.LedgerTransactionID); err != nil {
				rows.Close()
				return nil, Wrap(OpList, kind, err)
			}
			out = append(out, ref)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, Wrap(OpList, kind, err)
		}
	}
	return out, nil
}

func (r *SQLRepository) EnqueueLedgerSync(ctx context.Context, s LedgerSync) (LedgerSync, error) {
	now := r.now()
	s.Status = SyncPending
	s.Attempts = 0
	s.UpdatedAt = now
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	var createdAt string
	err := r.db.QueryRowContext(ctx, r.rebind(`
		INSERT INTO ledger_sync_queue (user_id, operation, anchor_kind, anchor_id, transaction_id, status, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (anchor_kind, anchor_id) DO UPDATE SET
			user_id = excluded.user_id,
			operation = excluded.operation,
			transaction_id = excluded.transaction_id,
			status = excluded.status,
			attempts = 0,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
		RETURNING id, created_at`),
		s.UserID, string(s.Operation), string(s.AnchorKind), s.AnchorID, s.TransactionID, string(s.Status),
		s.LastError, formatTime(s.CreatedAt), formatTime(s.UpdatedAt)).Scan(&s.ID, &createdAt)
	if err != nil {
		return LedgerSync{}, Wrap(OpQueue, s.AnchorKind, classify(err))
	}
	s.CreatedAt = parseTime(createdAt)

	slog.InfoContext(ctx, "Ledger sync enqueued",
		"sync_id", s.ID,
		"operation", s.Operation,
		"anchor_kind", s.AnchorKind,
		"anchor_id", s.AnchorID)

	return s, nil
}

func (r *SQLRepository) FindLedgerSync(ctx context.Context, kind core.Kind, anchorID string) (LedgerSync, error) {
	row := r.db.QueryRowContext(ctx,
		r.rebind("SELECT "+ledgerSyncColumns+" FROM ledger_sync_queue WHERE anchor_kind = ? AND anchor_id = ?"),
		string(kind), anchorID)
	s, err := scanLedgerSync(row)
	if err != nil {
		return LedgerSync{}, Wrap(OpQueue, kind, classify(err))
	}
	return s, nil
}

func (r *SQLRepository) DequeueLedgerSyncs(ctx context.Context, limit int) ([]LedgerSync, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		r.rebind("SELECT "+ledgerSyncColumns+" FROM ledger_sync_queue WHERE status = ? ORDER BY id ASC"+limitClause(limit)),
		string(SyncPending))
	if err != nil {
		return nil, Wrap(OpQueue, "", err)
	}
	defer rows.Close()

	var out []LedgerSync
	for rows.Next() {
		s, err := scanLedgerSync(rows)
		if err != nil {
			return nil, Wrap(OpQueue, "", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(OpQueue, "", err)
	}
	return out, nil
}

func (r *SQLRepository) MarkLedgerSyncProcessing(ctx context.Context, id int64) error {
	n, err := r.exec(ctx, r.db,
		"UPDATE ledger_sync_queue SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(SyncProcessing), formatTime(r.now()), id, string(SyncPending))
	if err != nil {
		return Wrap(OpQueue, "", err)
	}
	if n == 0 {
		return Wrap(OpQueue, "", ErrConflict)
	}
	return nil
}

func (r *SQLRepository) CompleteLedgerSync(ctx context.Context, id int64) error {
	return r.setSyncStatus(ctx, id, SyncCompleted, nil)
}

func (r *SQLRepository) IncrementLedgerSyncAttempt(ctx context.Context, id int64, lastError string) error {
	_, err := r.exec(ctx, r.db,
		"UPDATE ledger_sync_queue SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ? WHERE id = ?",
		string(SyncPending), lastError, formatTime(r.now()), id)
	return Wrap(OpQueue, "", err)
}

func (r *SQLRepository) FailLedgerSync(ctx context.Context, id int64, lastError string) error {
	return r.setSyncStatus(ctx, id, SyncFailed, &lastError)
}

func (r *SQLRepository) setSyncStatus(ctx context.Context, id int64, status LedgerSyncStatus, lastError *string) error {
	query := "UPDATE ledger_sync_queue SET status = ?, updated_at = ?"
	args := []any{string(status), formatTime(r.now())}
	if lastError != nil {
		query += ", attempts = attempts + 1, last_error = ?"
		args = append(args, *lastError)
	}
	query += " WHERE id = ?"
	args = append(args, id)
	n, err := r.exec(ctx, r.db, query, args...)
	if err != nil {
		return Wrap(OpQueue, "", err)
	}
	if n == 0 {
		return Wrap(OpQueue, "", ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) ResetStaleLedgerSyncs(ctx context.Context) error {
	n, err := r.exec(ctx, r.db,
		"UPDATE ledger_sync_queue SET status = ?, updated_at = ? WHERE status = ?",
		string(SyncPending), formatTime(r.now()), string(SyncProcessing))
	if err != nil {
		return Wrap(OpQueue, "", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Reset stale ledger syncs", "count", n)
	}
	return nil
}

func (r *SQLRepository) RetryFailedLedgerSyncs(ctx context.Context) (int64, error) {
	n, err := r.exec(ctx, r.db,
		"UPDATE ledger_sync_queue SET status = ?, attempts = 0, updated_at = ? WHERE status = ?",
		string(SyncPending), formatTime(r.now()), string(SyncFailed))
	if err != nil {
		return 0, Wrap(OpQueue, "", err)
	}
	return n, nil
}

func (r *SQLRepository) CleanupCompletedLedgerSyncs(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.exec(ctx, r.db,
		"DELETE FROM ledger_sync_queue WHERE status = ? AND updated_at < ?",
		string(SyncCompleted), formatTime(before))
	if err != nil {
		return 0, Wrap(OpQueue, "", err)
	}
	return n, nil
}

func (r *SQLRepository) LedgerSyncStats(ctx context.Context) (LedgerSyncStats, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM ledger_sync_queue GROUP BY status")
	if err != nil {
		return LedgerSyncStats{}, Wrap(OpQueue, "", err)
	}
	defer rows.Close()

	var stats LedgerSyncStats
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return LedgerSyncStats{}, Wrap(OpQueue, "", err)
		}
		switch LedgerSyncStatus(status) {
		case SyncPending:
			stats.Pending = count
		case SyncProcessing:
			stats.Processing = count
		case SyncCompleted:
			stats.Completed = count
		case SyncFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return LedgerSyncStats{}, Wrap(OpQueue, "", err)
	}
	return stats, nil
}

func scanLedgerSync(sc rowScanner) (LedgerSync, error) {
	var (
		s                    LedgerSync
		op, kind, status     string
		createdAt, updatedAt string
	)
	if err := sc.Scan(&s.ID, &s.UserID, &op, &kind, &s.AnchorID, &s.TransactionID, &status,
		&s.Attempts, &s.LastError, &createdAt, &updatedAt); err != nil {
		return LedgerSync{}, err
	}
	s.Operation = LedgerSyncOp(op)
	s.AnchorKind = core.Kind(kind)
	s.Status = LedgerSyncStatus(status)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return s, nil
}
