package storage

import (
	"context"
	"database/sql"
	"log/slog"

	"fintrack/internal/core"
)

const receivableColumns = "id, user_id, debtor_name, amount_cents, reason, expected_date, is_paid, paid_date, ledger_transaction_id, ledger_sync_pending, created_at"

func (r *SQLRepository) CreateReceivable(ctx context.Context, rc core.AccountReceivable) (core.AccountReceivable, error) {
	if err := RequireOwner(OpCreate, core.KindReceivable, rc.UserID); err != nil {
		return core.AccountReceivable{}, err
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = r.now()
	}
	_, err := r.exec(ctx, r.db,
		"INSERT INTO accounts_receivable ("+receivableColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rc.ID, rc.UserID, rc.DebtorName, rc.Amount.Cents, rc.Reason, nullDate(rc.ExpectedDate),
		rc.IsPaid, nullDate(rc.PaidDate), rc.LedgerTransactionID, rc.LedgerSyncPending, formatTime(rc.CreatedAt))
	if err != nil {
		return core.AccountReceivable{}, Wrap(OpCreate, core.KindReceivable, err)
	}
	slog.InfoContext(ctx, "Receivable saved", "id", rc.ID, "amount_cents", rc.Amount.Cents)
	return rc, nil
}

func (r *SQLRepository) GetReceivable(ctx context.Context, userID, id string) (core.AccountReceivable, error) {
	if err := RequireOwner(OpGet, core.KindReceivable, userID); err != nil {
		return core.AccountReceivable{}, err
	}
	row := r.db.QueryRowContext(ctx,
		r.rebind("SELECT "+receivableColumns+" FROM accounts_receivable WHERE id = ? AND user_id = ?"), id, userID)
	rc, err := scanReceivable(row)
	if err != nil {
		return core.AccountReceivable{}, Wrap(OpGet, core.KindReceivable, classify(err))
	}
	return rc, nil
}

func (r *SQLRepository) ListReceivables(ctx context.Context, f Filter) ([]core.AccountReceivable, error) {
	if err := RequireOwner(OpList, core.KindReceivable, f.UserID); err != nil {
		return nil, err
	}
	query := "SELECT " + receivableColumns + " FROM accounts_receivable WHERE user_id = ?" +
		" ORDER BY expected_date IS NULL, expected_date ASC, created_at ASC" + limitClause(f.Limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), f.UserID)
	if err != nil {
		return nil, Wrap(OpList, core.KindReceivable, err)
	}
	defer rows.Close()

	var out []core.AccountReceivable
	for rows.Next() {
		rc, err := scanReceivable(rows)
		if err != nil {
			return nil, Wrap(OpList, core.KindReceivable, err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(OpList, core.KindReceivable, err)
	}
	return out, nil
}

func (r *SQLRepository) UpdateReceivable(ctx context.Context, userID, id string, p ReceivablePatch) (core.AccountReceivable, error) {
	if err := RequireOwner(OpUpdate, core.KindReceivable, userID); err != nil {
		return core.AccountReceivable{}, err
	}
	var set setClause
	if p.DebtorName != nil {
		set.add("debtor_name", *p.DebtorName)
	}
	if p.Amount != nil {
		set.add("amount_cents", p.Amount.Cents)
	}
	if p.Reason != nil {
		set.add("reason", *p.Reason)
	}
	if p.ExpectedDate != nil {
		set.add("expected_date", nullDate(*p.ExpectedDate))
	}
	if p.IsPaid != nil {
		set.add("is_paid", *p.IsPaid)
	}
	if p.PaidDate != nil {
		set.add("paid_date", nullDate(*p.PaidDate))
	}
	if p.LedgerTransactionID != nil {
		set.add("ledger_transaction_id", *p.LedgerTransactionID)
	}
	if p.LedgerSyncPending != nil {
		set.add("ledger_sync_pending", *p.LedgerSyncPending)
	}
	if !set.empty() {
		query := "UPDATE accounts_receivable SET " + set.String() + " WHERE id = ? AND user_id = ?"
		args := append(set.args, id, userID)
		if p.ExpectPaid != nil {
			query += " AND is_paid = ?"
			args = append(args, *p.ExpectPaid)
		}
		n, err := r.exec(ctx, r.db, query, args...)
		if err != nil {
			return core.AccountReceivable{}, Wrap(OpUpdate, core.KindReceivable, err)
		}
		if n == 0 {
			if err := r.missingOrConflict(ctx, r.db, "accounts_receivable", userID, id); err != nil {
				return core.AccountReceivable{}, Wrap(OpUpdate, core.KindReceivable, err)
			}
		}
	}
	return r.GetReceivable(ctx, userID, id)
}

func (r *SQLRepository) DeleteReceivable(ctx context.Context, userID, id string) error {
	if err := RequireOwner(OpDelete, core.KindReceivable, userID); err != nil {
		return err
	}
	n, err := r.exec(ctx, r.db, "DELETE FROM accounts_receivable WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return Wrap(OpDelete, core.KindReceivable, err)
	}
	if n == 0 {
		return Wrap(OpDelete, core.KindReceivable, ErrNotFound)
	}
	slog.InfoContext(ctx, "Receivable deleted", "id", id)
	return nil
}

func scanReceivable(s rowScanner) (core.AccountReceivable, error) {
	var (
		rc           core.AccountReceivable
		expectedDate sql.NullString
		paidDate     sql.NullString
		createdAt    string
	)
	if err := s.Scan(&rc.ID, &rc.UserID, &rc.DebtorName, &rc.Amount.Cents, &rc.Reason, &expectedDate,
		&rc.IsPaid, &paidDate, &rc.LedgerTransactionID, &rc.LedgerSyncPending, &createdAt); err != nil {
		return core.AccountReceivable{}, err
	}
	rc.ExpectedDate = scanDate(expectedDate)
	rc.PaidDate = scanDate(paidDate)
	rc.CreatedAt = parseTime(createdAt)
	return rc, nil
}
