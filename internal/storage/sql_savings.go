package storage

import (
	"context"
	"database/sql"
	"log/slog"

	"fintrack/internal/core"
)

const (
	goalColumns     = "id, user_id, name, target_amount_cents, current_amount_cents, target_date, description, is_completed, created_at, updated_at"
	movementColumns = "id, user_id, savings_goal_id, type, amount_cents, description, date, ledger_transaction_id, ledger_sync_pending, created_at"
)

func (r *SQLRepository) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := RequireOwner(OpCreate, core.KindSavingsGoal, g.UserID); err != nil {
		return core.SavingsGoal{}, err
	}
	now := r.now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	g = core.Recompute(g)
	_, err := r.exec(ctx, r.db,
		"INSERT INTO savings_goals ("+goalColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		g.ID, g.UserID, g.Name, g.TargetAmount.Cents, g.CurrentAmount.Cents, nullDate(g.TargetDate),
		g.Description, g.IsCompleted, formatTime(g.CreatedAt), formatTime(g.UpdatedAt))
	if err != nil {
		return core.SavingsGoal{}, Wrap(OpCreate, core.KindSavingsGoal, err)
	}
	slog.InfoContext(ctx, "Savings goal saved", "id", g.ID, "target_cents", g.TargetAmount.Cents)
	return g, nil
}

func (r *SQLRepository) GetGoal(ctx context.Context, userID, id string) (core.SavingsGoal, error) {
	if err := RequireOwner(OpGet, core.KindSavingsGoal, userID); err != nil {
		return core.SavingsGoal{}, err
	}
	return r.getGoal(ctx, r.db, userID, id)
}

func (r *SQLRepository) getGoal(ctx context.Context, q queryer, userID, id string) (core.SavingsGoal, error) {
	row := q.QueryRowContext(ctx,
		r.rebind("SELECT "+goalColumns+" FROM savings_goals WHERE id = ? AND user_id = ?"), id, userID)
	g, err := scanGoal(row)
	if err != nil {
		return core.SavingsGoal{}, Wrap(OpGet, core.KindSavingsGoal, classify(err))
	}
	return g, nil
}

func (r *SQLRepository) ListGoals(ctx context.Context, f Filter) ([]core.SavingsGoal, error) {
	if err := RequireOwner(OpList, core.KindSavingsGoal, f.UserID); err != nil {
		return nil, err
	}
	query := "SELECT " + goalColumns + " FROM savings_goals WHERE user_id = ? ORDER BY created_at DESC" + limitClause(f.Limit)
	rows, err := r.db.QueryContext(ctx, r.rebind(query), f.UserID)
	if err != nil {
		return nil, Wrap(OpList, core.KindSavingsGoal, err)
	}
	defer rows.Close()

	var out []core.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, Wrap(OpList, core.KindSavingsGoal, err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(OpList, core.KindSavingsGoal, err)
	}
	return out, nil
}

func (r *SQLRepository) UpdateGoal(ctx context.Context, userID, id string, p GoalPatch) (core.SavingsGoal, error) {
	if err := RequireOwner(OpUpdate, core.KindSavingsGoal, userID); err != nil {
		return core.SavingsGoal{}, err
	}
	var updated core.SavingsGoal
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		g, err := r.getGoal(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if p.Name != nil {
			g.Name = *p.Name
		}
		if p.TargetAmount != nil {
			g.TargetAmount = *p.TargetAmount
		}
		if p.TargetDate != nil {
			g.TargetDate = *p.TargetDate
		}
		if p.Description != nil {
			g.Description = *p.Description
		}
		g = core.Recompute(g)
		g.UpdatedAt = r.now()
		_, err = r.exec(ctx, tx,
			"UPDATE savings_goals SET name = ?, target_amount_cents = ?, target_date = ?, description = ?, is_completed = ?, updated_at = ? WHERE id = ? AND user_id = ?",
			g.Name, g.TargetAmount.Cents, nullDate(g.TargetDate), g.Description, g.IsCompleted, formatTime(g.UpdatedAt), id, userID)
		if err != nil {
			return err
		}
		updated = g
		return nil
	})
	if err != nil {
		return core.SavingsGoal{}, Wrap(OpUpdate, core.KindSavingsGoal, err)
	}
	return updated, nil
}

func (r *SQLRepository) DeleteGoal(ctx context.Context, userID, id string) error {
	if err := RequireOwner(OpDelete, core.KindSavingsGoal, userID); err != nil {
		return err
	}
	var removed int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = r.exec(ctx, tx, "DELETE FROM savings_movements WHERE savings_goal_id = ? AND user_id = ?", id, userID)
		if err != nil {
			return err
		}
		n, err := r.exec(ctx, tx, "DELETE FROM savings_goals WHERE id = ? AND user_id = ?", id, userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Wrap(OpDelete, core.KindSavingsGoal, err)
	}
	slog.InfoContext(ctx, "Savings goal deleted", "id", id, "movements_removed", removed)
	return nil
}

// storeGoalAmount writes next's amount and completion under compare-and-set.
func (r *SQLRepository) storeGoalAmount(ctx context.Context, q queryer, next core.SavingsGoal, expect core.Money) error {
	next = core.Recompute(next)
	n, err := r.exec(ctx, q,
		"UPDATE savings_goals SET current_amount_cents = ?, is_completed = ?, updated_at = ? WHERE id = ? AND user_id = ? AND current_amount_cents = ?",
		next.CurrentAmount.Cents, next.IsCompleted, formatTime(r.now()), next.ID, next.UserID, expect.Cents)
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missingOrConflict(ctx, q, "savings_goals", next.UserID, next.ID)
	}
	return nil
}

func (r *SQLRepository) CreateMovement(ctx context.Context, m core.SavingsMovement, next core.SavingsGoal, expect core.Money) (core.SavingsMovement, error) {
	if err := RequireOwner(OpCreate, core.KindSavingsMovement, m.UserID); err != nil {
		return core.SavingsMovement{}, err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.storeGoalAmount(ctx, tx, next, expect); err != nil {
			return err
		}
		_, err := r.exec(ctx, tx,
			"INSERT INTO savings_movements ("+movementColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			m.ID, m.UserID, m.GoalID, string(m.Type), m.Amount.Cents, m.Description, m.Date.String(),
			m.LedgerTransactionID, m.LedgerSyncPending, formatTime(m.CreatedAt))
		return err
	})
	if err != nil {
		return core.SavingsMovement{}, Wrap(OpCreate, core.KindSavingsMovement, err)
	}
	slog.InfoContext(ctx, "Savings movement saved",
		"id", m.ID,
		"goal_id", m.GoalID,
		"type", m.Type,
		"amount_cents", m.Amount.Cents)
	return m, nil
}

func (r *SQLRepository) GetMovement(ctx context.Context, userID, id string) (core.SavingsMovement, error) {
	if err := RequireOwner(OpGet, core.KindSavingsMovement, userID); err != nil {
		return core.SavingsMovement{}, err
	}
	row := r.db.QueryRowContext(ctx,
		r.rebind("SELECT "+movementColumns+" FROM savings_movements WHERE id = ? AND user_id = ?"), id, userID)
	m, err := scanMovement(row)
	if err != nil {
		return core.SavingsMovement{}, Wrap(OpGet, core.KindSavingsMovement, classify(err))
	}
	return m, nil
}

func (r *SQLRepository) ListMovements(ctx context.Context, f Filter) ([]core.SavingsMovement, error) {
	if err := RequireOwner(OpList, core.KindSavingsMovement, f.UserID); err != nil {
		return nil, err
	}
	query := "SELECT " + movementColumns + " FROM savings_movements WHERE user_id = ?"
	args := []any{f.UserID}
	if f.GoalID != "" {
		query += " AND savings_goal_id = ?"
		args = append(args, f.GoalID)
	}
	query += " ORDER BY date DESC, created_at DESC" + limitClause(f.Limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, Wrap(OpList, core.KindSavingsMovement, err)
	}
	defer rows.Close()

	var out []core.SavingsMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, Wrap(OpList, core.KindSavingsMovement, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(OpList, core.KindSavingsMovement, err)
	}
	return out, nil
}

func (r *SQLRepository) DeleteMovement(ctx context.Context, userID, id string, next core.SavingsGoal, expect core.Money) error {
	if err := RequireOwner(OpDelete, core.KindSavingsMovement, userID); err != nil {
		return err
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		n, err := r.exec(ctx, tx, "DELETE FROM savings_movements WHERE id = ? AND user_id = ?", id, userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return r.storeGoalAmount(ctx, tx, next, expect)
	})
	if err != nil {
		return Wrap(OpDelete, core.KindSavingsMovement, err)
	}
	slog.InfoContext(ctx, "Savings movement deleted", "id", id, "goal_id", next.ID)
	return nil
}

func scanGoal(s rowScanner) (core.SavingsGoal, error) {
	var (
		g          core.SavingsGoal
		targetDate sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := s.Scan(&g.ID, &g.UserID, &g.Name, &g.TargetAmount.Cents, &g.CurrentAmount.Cents, &targetDate,
		&g.Description, &g.IsCompleted, &createdAt, &updatedAt); err != nil {
		return core.SavingsGoal{}, err
	}
	g.TargetDate = scanDate(targetDate)
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return g, nil
}

func scanMovement(s rowScanner) (core.SavingsMovement, error) {
	var (
		m         core.SavingsMovement
		typ       string
		date      string
		createdAt string
	)
	if err := s.Scan(&m.ID, &m.UserID, &m.GoalID, &typ, &m.Amount.Cents, &m.Description, &date,
		&m.LedgerTransactionID, &m.LedgerSyncPending, &createdAt); err != nil {
		return core.SavingsMovement{}, err
	}
	m.Type = core.MovementType(typ)
	m.Date = scanDate(sql.NullString{String: date, Valid: true})
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}
