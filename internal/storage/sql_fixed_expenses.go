package storage

import (
	"context"
	"database/sql"
	"log/slog"

	"fintrack/internal/core"
)

const (
	fixedExpenseColumns = "id, user_id, name, amount_cents, category, description, due_day, is_active, created_at"
	paymentColumns      = "id, fixed_expense_id, user_id, year, month, paid_amount_cents, paid_date, ledger_transaction_id, ledger_sync_pending, created_at"
)

func (r *SQLRepository) CreateFixedExpense(ctx context.Context, e core.FixedExpense) (core.FixedExpense, error) {
	if err := RequireOwner(OpCreate, core.KindFixedExpense, e.UserID); err != nil {
		return core.FixedExpense{}, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	_, err := r.exec(ctx, r.db,
		"INSERT INTO fixed_expenses ("+fixedExpenseColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.UserID, e.Name, e.Amount.Cents, e.Category, e.Description, e.DueDay, e.IsActive, formatTime(e.CreatedAt))
	if err != nil {
		return core.FixedExpense{}, Wrap(OpCreate, core.KindFixedExpense, err)
	}
	slog.InfoContext(ctx, "Fixed expense saved", "id", e.ID, "name", e.Name, "due_day", e.DueDay)
	return e, nil
}

func (r *SQLRepository) GetFixedExpense(ctx context.Context, userID, id string) (core.FixedExpense, error) {
	if err := RequireOwner(OpGet, core.KindFixedExpense, userID); err != nil {
		return core.FixedExpense{}, err
	}
	return r.getFixedExpense(ctx, r.db, userID, id)
}

func (r *SQLRepository) getFixedExpense(ctx context.Context, q queryer, userID, id string) (core.FixedExpense, error) {
	row := q.QueryRowContext(ctx,
		r.rebind("SELECT "+fixedExpenseColumns+" FROM fixed_expenses WHERE id = ? AND user_id = ?"), id, userID)
	e, err := scanFixedExpense(row)
	if err != nil {
		return core.FixedExpense{}, Wrap(OpGet, core.KindFixedExpense, classify(err))
	}
	return e, nil
}

func (r *SQLRepository) ListFixedExpenses(ctx context.Context, f Filter) ([]core.FixedExpense, error) {
	if err := RequireOwner(OpList, core.KindFixedExpense, f.UserID); err != nil {
		return nil, err
	}
	query := "SELECT " + fixedExpenseColumns + " FROM fixed_expenses WHERE user_id = ?"
	args := []any{f.UserID}
	if f.ActiveOnly {
		query += " AND is_active = ?"
		args = append(args, true)
	}
	query += " ORDER BY due_day ASC, name ASC" + limitClause(f.Limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, Wrap(OpList, core.KindFixedExpense, err)
	}
	defer rows.Close()

	var out []core.FixedExpense
	for rows.Next() {
		e, err := scanFixedExpense(rows)
		if err != nil {
			return nil, Wrap(OpList, core.KindFixedExpense, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(OpList, core.KindFixedExpense, err)
	}
	return out, nil
}

func (r *SQLRepository) UpdateFixedExpense(ctx context.Context, userID, id string, p FixedExpensePatch) (core.FixedExpense, error) {
	if err := RequireOwner(OpUpdate, core.KindFixedExpense, userID); err != nil {
		return core.FixedExpense{}, err
	}
	var set setClause
	if p.Name != nil {
		set.add("name", *p.Name)
	}
	if p.Amount != nil {
		set.add("amount_cents", p.Amount.Cents)
	}
	if p.Category != nil {
		set.add("category", *p.Category)
	}
	if p.Description != nil {
		set.add("description", *p.Description)
	}
	if p.DueDay != nil {
		set.add("due_day", *p.DueDay)
	}
	if p.IsActive != nil {
		set.add("is_active", *p.IsActive)
	}
	if !set.empty() {
		args := append(set.args, id, userID)
		n, err := r.exec(ctx, r.db, "UPDATE fixed_expenses SET "+set.String()+" WHERE id = ? AND user_id = ?", args...)
		if err != nil {
			return core.FixedExpense{}, Wrap(OpUpdate, core.KindFixedExpense, err)
		}
		if n == 0 {
			return core.FixedExpense{}, Wrap(OpUpdate, core.KindFixedExpense, ErrNotFound)
		}
	}
	return r.getFixedExpense(ctx, r.db, userID, id)
}

func (r *SQLRepository) DeleteFixedExpense(ctx context.Context, userID, id string) error {
	if err := RequireOwner(OpDelete, core.KindFixedExpense, userID); err != nil {
		return err
	}
	var removed int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = r.exec(ctx, tx, "DELETE FROM fixed_expense_payments WHERE fixed_expense_id = ? AND user_id = ?", id, userID)
		if err != nil {
			return err
		}
		n, err := r.exec(ctx, tx, "DELETE FROM fixed_expenses WHERE id = ? AND user_id = ?", id, userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Wrap(OpDelete, core.KindFixedExpense, err)
	}
	slog.InfoContext(ctx, "Fixed expense deleted", "id", id, "payments_removed", removed)
	return nil
}

func (r *SQLRepository) CreatePayment(ctx context.Context, p core.FixedExpensePayment) (core.FixedExpensePayment, error) {
	if err := RequireOwner(OpCreate, core.KindFixedExpensePayment, p.UserID); err != nil {
		return core.FixedExpensePayment{}, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}
	_, err := r.exec(ctx, r.db,
		"INSERT INTO fixed_expense_payments ("+paymentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.FixedExpenseID, p.UserID, p.Period.Year, p.Period.Month, p.PaidAmount.Cents,
		p.PaidDate.String(), p.LedgerTransactionID, p.LedgerSyncPending, formatTime(p.CreatedAt))
	if err != nil {
		return core.FixedExpensePayment{}, Wrap(OpCreate, core.KindFixedExpensePayment, err)
	}
	slog.InfoContext(ctx, "Fixed expense payment saved",
		"id", p.ID,
		"fixed_expense_id", p.FixedExpenseID,
		"period", p.Period.String())
	return p, nil
}

func (r *SQLRepository) GetPayment(ctx context.Context, userID, id string) (core.FixedExpensePayment, error) {
	if err := RequireOwner(OpGet, core.KindFixedExpensePayment, userID); err != nil {
		return core.FixedExpensePayment{}, err
	}
	row := r.db.QueryRowContext(ctx,
		r.rebind("SELECT "+paymentColumns+" FROM fixed_expense_payments WHERE id = ? AND user_id = ?"), id, userID)
	p, err := scanPayment(row)
	if err != nil {
		return core.FixedExpensePayment{}, Wrap(OpGet, core.KindFixedExpensePayment, classify(err))
	}
	return p, nil
}

func (r *SQLRepository) FindPayment(ctx context.Context, userID, fixedExpenseID string, period core.Period) (core.FixedExpensePayment, error) {
	if err := RequireOwner(OpGet, core.KindFixedExpensePayment, userID); err != nil {
		return core.FixedExpensePayment{}, err
	}
	row := r.db.QueryRowContext(ctx,
		r.rebind("SELECT "+paymentColumns+" FROM fixed_expense_payments WHERE user_id = ? AND fixed_expense_id = ? AND year = ? AND month = ?"),
		userID, fixedExpenseID, period.Year, period.Month)
	p, err := scanPayment(row)
	if err != nil {
		return core.FixedExpensePayment{}, Wrap(OpGet, core.KindFixedExpensePayment, classify(err))
	}
	return p, nil
}

func (r *SQLRepository) ListPayments(ctx context.Context, f Filter) ([]core.FixedExpensePayment, error) {
	if err := RequireOwner(OpList, core.KindFixedExpensePayment, f.UserID); err != nil {
		return nil, err
	}
	query := "SELECT " + paymentColumns + " FROM fixed_expense_payments WHERE user_id = ?"
	args := []any{f.UserID}
	if f.FixedExpenseID != "" {
		query += " AND fixed_expense_id = ?"
		args = append(args, f.FixedExpenseID)
	}
	if f.Period.Year != 0 {
		query += " AND year = ?"
		args = append(args, f.Period.Year)
	}
	if f.Period.Month != 0 {
		query += " AND month = ?"
		args = append(args, f.Period.Month)
	}
	query += " ORDER BY year DESC, month DESC, created_at DESC" + limitClause(f.Limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, Wrap(OpList, core.KindFixedExpensePayment, err)
	}
	defer rows.Close()

	var out []core.FixedExpensePayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, Wrap(OpList, core.KindFixedExpensePayment, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(OpList, core.KindFixedExpensePayment, err)
	}
	return out, nil
}

func (r *SQLRepository) DeletePayment(ctx context.Context, userID, id string) error {
	if err := RequireOwner(OpDelete, core.KindFixedExpensePayment, userID); err != nil {
		return err
	}
	n, err := r.exec(ctx, r.db, "DELETE FROM fixed_expense_payments WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return Wrap(OpDelete, core.KindFixedExpensePayment, err)
	}
	if n == 0 {
		return Wrap(OpDelete, core.KindFixedExpensePayment, ErrNotFound)
	}
	slog.InfoContext(ctx, "Fixed expense payment deleted", "id", id)
	return nil
}

func scanFixedExpense(s rowScanner) (core.FixedExpense, error) {
	var (
		e         core.FixedExpense
		createdAt string
	)
	if err := s.Scan(&e.ID, &e.UserID, &e.Name, &e.Amount.Cents, &e.Category, &e.Description,
		&e.DueDay, &e.IsActive, &createdAt); err != nil {
		return core.FixedExpense{}, err
	}
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

func scanPayment(s rowScanner) (core.FixedExpensePayment, error) {
	var (
		p         core.FixedExpensePayment
		paidDate  string
		createdAt string
	)
	if err := s.Scan(&p.ID, &p.FixedExpenseID, &p.UserID, &p.Period.Year, &p.Period.Month, &p.PaidAmount.Cents,
		&paidDate, &p.LedgerTransactionID, &p.LedgerSyncPending, &createdAt); err != nil {
		return core.FixedExpensePayment{}, err
	}
	p.PaidDate = scanDate(sql.NullString{String: paidDate, Valid: true})
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}
