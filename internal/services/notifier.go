package services

import (
	"context"
	"errors"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// BalanceEvent describes a committed write that dependent views must
// recompute for. Delta is the signed effect on the main balance.
type BalanceEvent struct {
	UserID        string
	Operation     Operation
	AnchorKind    core.Kind
	AnchorID      string
	TransactionID string
	Recorded      bool
	Delta         core.Money
}

// Notifier receives change signals. Its failures never fail the operation
// that produced them.
type Notifier interface {
	BalanceChanged(ctx context.Context, e BalanceEvent) error
	LedgerSyncRequested(ctx context.Context, userID string, syncID int64) error
}

type NopNotifier struct{}

func (NopNotifier) BalanceChanged(context.Context, BalanceEvent) error { return nil }

func (NopNotifier) LedgerSyncRequested(context.Context, string, int64) error { return nil }

// Notifiers fans a signal out to every member.
type Notifiers []Notifier

func (ns Notifiers) BalanceChanged(ctx context.Context, e BalanceEvent) error {
	var errs []error
	for _, n := range ns {
		if err := n.BalanceChanged(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ns Notifiers) LedgerSyncRequested(ctx context.Context, userID string, syncID int64) error {
	var errs []error
	for _, n := range ns {
		if err := n.LedgerSyncRequested(ctx, userID, syncID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publisher is the subset of the AMQP client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, event *amqp.LedgerEvent) error
}

// AMQPNotifier publishes change signals as ledger events.
type AMQPNotifier struct {
	publisher Publisher
}

func NewAMQPNotifier(p Publisher) *AMQPNotifier {
	return &AMQPNotifier{publisher: p}
}

func (n *AMQPNotifier) BalanceChanged(ctx context.Context, e BalanceEvent) error {
	if n.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping balance event")
		return nil
	}
	event := amqp.NewLedgerEvent(amqp.EventBalanceChanged, e.UserID)
	event.Operation = string(e.Operation)
	event.AnchorKind = string(e.AnchorKind)
	event.AnchorID = e.AnchorID
	event.TransactionID = e.TransactionID
	event.DeltaCents = e.Delta.Cents
	if err := n.publisher.Publish(ctx, event); err != nil {
		return err
	}
	if e.TransactionID == "" {
		return nil
	}

	typ := amqp.EventTransactionRemoved
	if e.Recorded {
		typ = amqp.EventTransactionRecorded
	}
	mirror := amqp.NewLedgerEvent(typ, e.UserID)
	mirror.TransactionID = e.TransactionID
	mirror.Operation = string(e.Operation)
	return n.publisher.Publish(ctx, mirror)
}

func (n *AMQPNotifier) LedgerSyncRequested(ctx context.Context, userID string, syncID int64) error {
	if n.publisher == nil {
		return nil
	}
	event := amqp.NewLedgerEvent(amqp.EventLedgerSyncRequested, userID)
	event.SyncID = syncID
	return n.publisher.Publish(ctx, event)
}
