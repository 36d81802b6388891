package google

import (
	"testing"

	"fintrack/internal/core"
)

func TestEntryRow(t *testing.T) {
	tx := core.Transaction{
		ID:          "tx-1",
		UserID:      "u1",
		Type:        core.Income,
		Amount:      core.Money{Cents: 20050},
		Category:    core.CategoryReceivables,
		Description: "Payment received from Ana",
		Date:        core.NewDate(2025, 3, 5),
		SourceKind:  core.KindReceivable,
		SourceID:    "rc-1",
	}
	row := entryRow(tx)
	if len(row) != len(ledgerColumns) {
		t.Fatalf("row has %d columns, want %d", len(row), len(ledgerColumns))
	}
	if row[2] != "2025-03-05" {
		t.Errorf("date = %v, want 2025-03-05", row[2])
	}
	if amount, ok := row[4].(float64); !ok || amount != 200.5 {
		t.Errorf("amount = %#v, want 200.5", row[4])
	}
	if row[7] != string(core.KindReceivable) || row[8] != "rc-1" {
		t.Errorf("source = %v/%v", row[7], row[8])
	}
}

func TestFindRow(t *testing.T) {
	rows := [][]any{
		headerRow()[:2],
		{"tx-1", "u1"},
		{"tx-2"},
		{"tx-2", "u2"},
		{" tx-3 ", "u1"},
	}
	tests := []struct {
		user, id string
		want     int
	}{
		{"u1", "tx-1", 1},
		{"u2", "tx-2", 3},
		{"u1", "tx-2", -1},
		{"u1", "tx-3", 4},
		{"u1", "missing", -1},
	}
	for _, tt := range tests {
		if got := findRow(rows, tt.user, tt.id); got != tt.want {
			t.Errorf("findRow(%s, %s) = %d, want %d", tt.user, tt.id, got, tt.want)
		}
	}
}

func TestRowRef(t *testing.T) {
	if lastColumn != "I" {
		t.Fatalf("lastColumn = %s, want I", lastColumn)
	}
	if got := rowRef("Ledger", 4); got != "Ledger!A5:I5" {
		t.Errorf("rowRef = %s", got)
	}
}
