package worker

import (
	"context"
	"log/slog"

	"fintrack/internal/amqp"
)

// Invalidator drops state derived from an owner's ledger.
type Invalidator interface {
	Invalidate(userID string)
}

// NewCacheInvalidator returns an event handler that drops the owner's cached
// dashboards whenever any process moved their balance.
func NewCacheInvalidator(inv Invalidator) func(context.Context, *amqp.LedgerEvent) error {
	return func(ctx context.Context, e *amqp.LedgerEvent) error {
		switch e.Type {
		case amqp.EventBalanceChanged, amqp.EventTransactionRecorded, amqp.EventTransactionRemoved:
			inv.Invalidate(e.UserID)
			slog.DebugContext(ctx, "Dropped cached dashboards", "user_id", e.UserID, "type", e.Type)
		}
		return nil
	}
}
