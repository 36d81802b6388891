package worker

import (
	"context"
	"errors"
	"testing"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	sheetsmem "fintrack/internal/sheets/memory"
	"fintrack/internal/storage/memory"
)

type countingTrigger struct{ n int }

func (c *countingTrigger) Trigger() { c.n++ }

type brokenMirror struct{}

func (brokenMirror) Append(context.Context, core.Transaction) (string, error) {
	return "", errors.New("sheets down")
}

func (brokenMirror) Remove(context.Context, string, string) error { return errors.New("sheets down") }

func seed(t *testing.T, store *memory.Store, id string) core.Transaction {
	t.Helper()
	tx, err := store.CreateTransaction(context.Background(), core.Transaction{
		ID:       id,
		UserID:   "u1",
		Type:     core.Income,
		Amount:   core.Money{Cents: 5000},
		Category: "Salary",
		Date:     core.NewDate(2025, 3, 1),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	return tx
}

func event(typ amqp.EventType, txID string) *amqp.LedgerEvent {
	e := amqp.NewLedgerEvent(typ, "u1")
	e.TransactionID = txID
	return e
}

func TestHandleEvent_SyncRequestTriggersReconciler(t *testing.T) {
	trigger := &countingTrigger{}
	w := NewSyncWorker(memory.New(), nil, trigger, 10)

	e := amqp.NewLedgerEvent(amqp.EventLedgerSyncRequested, "u1")
	e.SyncID = 3
	if err := w.HandleEvent(context.Background(), e); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if trigger.n != 1 {
		t.Fatalf("triggers = %d, want 1", trigger.n)
	}
}

func TestHandleEvent_MirrorsRecordedAndRemoved(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	mirror := sheetsmem.New()
	w := NewSyncWorker(store, mirror, nil, 10)
	seed(t, store, "tx-1")

	if err := w.HandleEvent(ctx, event(amqp.EventTransactionRecorded, "tx-1")); err != nil {
		t.Fatalf("recorded: %v", err)
	}
	if got := mirror.Entries("u1"); len(got) != 1 || got[0].ID != "tx-1" {
		t.Fatalf("mirror = %+v", got)
	}

	if err := w.HandleEvent(ctx, event(amqp.EventTransactionRemoved, "tx-1")); err != nil {
		t.Fatalf("removed: %v", err)
	}
	if got := mirror.Entries("u1"); len(got) != 0 {
		t.Fatalf("mirror after removal = %+v", got)
	}
}

func TestHandleEvent_VanishedEntryIsSkipped(t *testing.T) {
	mirror := sheetsmem.New()
	w := NewSyncWorker(memory.New(), mirror, nil, 10)

	if err := w.HandleEvent(context.Background(), event(amqp.EventTransactionRecorded, "gone")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := mirror.Entries("u1"); len(got) != 0 {
		t.Fatalf("mirror = %+v, want empty", got)
	}
}

func TestHandleEvent_MirrorFailureRequeues(t *testing.T) {
	store := memory.New()
	seed(t, store, "tx-1")
	w := NewSyncWorker(store, brokenMirror{}, nil, 10)

	if err := w.HandleEvent(context.Background(), event(amqp.EventTransactionRecorded, "tx-1")); err == nil {
		t.Fatal("expected error so the delivery is requeued")
	}
	if err := w.HandleEvent(context.Background(), event(amqp.EventTransactionRemoved, "tx-1")); err == nil {
		t.Fatal("expected error so the delivery is requeued")
	}
}

func TestHandleEvent_NoMirrorConfigured(t *testing.T) {
	w := NewSyncWorker(memory.New(), nil, nil, 10)
	for _, typ := range []amqp.EventType{amqp.EventTransactionRecorded, amqp.EventTransactionRemoved, amqp.EventBalanceChanged} {
		if err := w.HandleEvent(context.Background(), event(typ, "tx-1")); err != nil {
			t.Errorf("%s: %v", typ, err)
		}
	}
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	mirror := sheetsmem.New()
	w := NewSyncWorker(store, mirror, nil, 1)
	seed(t, store, "tx-1")
	seed(t, store, "tx-2")

	n, err := w.Backfill(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("backfill = %d, %v; want 2, nil", n, err)
	}
	n, err = w.Backfill(ctx, "u1")
	if err != nil || n != 2 {
		t.Fatalf("second backfill = %d, %v; want 2, nil", n, err)
	}
	if got := len(mirror.Entries("u1")); got != 2 {
		t.Fatalf("mirror entries = %d, want 2", got)
	}
}

func TestBackfill_NoMirror(t *testing.T) {
	if _, err := NewSyncWorker(memory.New(), nil, nil, 10).Backfill(context.Background(), "u1"); err == nil {
		t.Fatal("expected error without a mirror")
	}
}

func TestBackfill_ReportsFailures(t *testing.T) {
	store := memory.New()
	seed(t, store, "tx-1")
	n, err := NewSyncWorker(store, brokenMirror{}, nil, 10).Backfill(context.Background(), "u1")
	if err == nil || n != 0 {
		t.Fatalf("backfill = %d, %v; want 0 and an error", n, err)
	}
}
