package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"fintrack/internal/core"
)

const transactionColumns = "id, user_id, type, amount_cents, category, description, date, source_kind, source_id, created_at"

func (r *SQLRepository) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := RequireOwner(OpCreate, core.KindTransaction, tx.UserID); err != nil {
		return core.Transaction{}, err
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = r.now()
	}
	_, err := r.exec(ctx, r.db,
		"INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		tx.ID, tx.UserID, string(tx.Type), tx.Amount.Cents, tx.Category, tx.Description,
		tx.Date.String(), nullString(string(tx.SourceKind)), nullString(tx.SourceID), formatTime(tx.CreatedAt))
	if err != nil {
		return core.Transaction{}, Wrap(OpCreate, core.KindTransaction, err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", tx.ID,
		"type", tx.Type,
		"amount_cents", tx.Amount.Cents,
		"source_kind", tx.SourceKind)

	return tx, nil
}

func (r *SQLRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	if err := RequireOwner(OpGet, core.KindTransaction, userID); err != nil {
		return core.Transaction{}, err
	}
	row := r.db.QueryRowContext(ctx,
		r.rebind("SELECT "+transactionColumns+" FROM transactions WHERE id = ? AND user_id = ?"), id, userID)
	tx, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, Wrap(OpGet, core.KindTransaction, classify(err))
	}
	return tx, nil
}

func (r *SQLRepository) ListTransactions(ctx context.Context, f Filter) ([]core.Transaction, error) {
	if err := RequireOwner(OpList, core.KindTransaction, f.UserID); err != nil {
		return nil, err
	}
	where := []string{"user_id = ?"}
	args := []any{f.UserID}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}
	query := "SELECT " + transactionColumns + " FROM transactions WHERE " + strings.Join(where, " AND ") +
		" ORDER BY date DESC, created_at DESC" + limitClause(f.Limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, Wrap(OpList, core.KindTransaction, err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, Wrap(OpList, core.KindTransaction, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(OpList, core.KindTransaction, err)
	}
	return out, nil
}

func (r *SQLRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	if err := RequireOwner(OpDelete, core.KindTransaction, userID); err != nil {
		return err
	}
	n, err := r.exec(ctx, r.db, "DELETE FROM transactions WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return Wrap(OpDelete, core.KindTransaction, err)
	}
	if n == 0 {
		return Wrap(OpDelete, core.KindTransaction, ErrNotFound)
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		tx         core.Transaction
		typ        string
		date       string
		sourceKind sql.NullString
		sourceID   sql.NullString
		createdAt  string
	)
	if err := s.Scan(&tx.ID, &tx.UserID, &typ, &tx.Amount.Cents, &tx.Category, &tx.Description,
		&date, &sourceKind, &sourceID, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(typ)
	tx.Date = scanDate(sql.NullString{String: date, Valid: true})
	tx.SourceKind = core.Kind(sourceKind.String)
	tx.SourceID = sourceID.String
	tx.CreatedAt = parseTime(createdAt)
	return tx, nil
}
