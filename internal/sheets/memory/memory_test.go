package memory

import (
	"context"
	"testing"

	"fintrack/internal/core"
)

func entry(id string) core.Transaction {
	return core.Transaction{
		ID:       id,
		UserID:   "u1",
		Type:     core.Expense,
		Amount:   core.Money{Cents: 1250},
		Category: "Food",
		Date:     core.NewDate(2025, 3, 1),
	}
}

func TestStoreAppendIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	ref, err := s.Append(ctx, entry("tx-1"))
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	again, err := s.Append(ctx, entry("tx-1"))
	if err != nil || again != ref {
		t.Fatalf("second append: ref=%q err=%v, want %q", again, err, ref)
	}
	if got := len(s.Entries("u1")); got != 1 {
		t.Fatalf("entries = %d, want 1", got)
	}
}

func TestStoreAppendValidates(t *testing.T) {
	tx := entry("tx-1")
	tx.Amount = core.Money{}
	if _, err := New().Append(context.Background(), tx); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestStoreRemove(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, id := range []string{"tx-1", "tx-2"} {
		if _, err := s.Append(ctx, entry(id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	if err := s.Remove(ctx, "someone-else", "tx-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := len(s.Entries("u1")); got != 2 {
		t.Fatalf("entries after foreign remove = %d, want 2", got)
	}

	if err := s.Remove(ctx, "u1", "tx-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, "u1", "tx-1"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	got := s.Entries("u1")
	if len(got) != 1 || got[0].ID != "tx-2" {
		t.Fatalf("entries = %+v, want only tx-2", got)
	}
}
