package core

import (
	"math/rand"
	"testing"
)

func tx(typ TransactionType, cents int64, category string, d Date) Transaction {
	return Transaction{UserID: "u1", Type: typ, Amount: Money{Cents: cents}, Category: category, Date: d}
}

func TestSummarize(t *testing.T) {
	txns := []Transaction{
		tx(Income, 300000, "Salary", NewDate(2025, 1, 1)),
		tx(Expense, 4500, "Food", NewDate(2025, 1, 2)),
		tx(Expense, 5500, "Food", NewDate(2025, 1, 3)),
		tx(Income, 20000, CategoryReceivables, NewDate(2025, 1, 4)),
	}
	s := Summarize(txns, Money{Cents: 1000})
	if s.TotalIncome.Cents != 320000 {
		t.Errorf("TotalIncome = %d, want 320000", s.TotalIncome.Cents)
	}
	if s.TotalExpenses.Cents != 10000 {
		t.Errorf("TotalExpenses = %d, want 10000", s.TotalExpenses.Cents)
	}
	if s.Balance.Cents != 320000-10000+1000 {
		t.Errorf("Balance = %d, want %d", s.Balance.Cents, 320000-10000+1000)
	}

	empty := Summarize(nil, Money{})
	if empty.Balance.Cents != 0 {
		t.Errorf("empty balance = %d", empty.Balance.Cents)
	}
}

func TestSummarizeOrderIndependent(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	var txns []Transaction
	for i := 0; i < 50; i++ {
		typ := Income
		if r.Intn(2) == 0 {
			typ = Expense
		}
		txns = append(txns, tx(typ, int64(r.Intn(100000)+1), "c", NewDate(2025, 1+r.Intn(12), 1+r.Intn(28))))
	}
	want := Summarize(txns, Money{Cents: -250})
	for i := 0; i < 20; i++ {
		shuffled := append([]Transaction(nil), txns...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := Summarize(shuffled, Money{Cents: -250}); got != want {
			t.Fatalf("shuffle %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestIncrementalMatchesRecompute(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	var live []Transaction
	inc := Summarize(nil, Money{Cents: 500})
	for step := 0; step < 200; step++ {
		if len(live) > 0 && r.Intn(3) == 0 {
			i := r.Intn(len(live))
			inc = inc.Retract(live[i])
			live = append(live[:i], live[i+1:]...)
		} else {
			typ := Income
			if r.Intn(2) == 0 {
				typ = Expense
			}
			n := tx(typ, int64(r.Intn(5000)+1), "c", NewDate(2025, 1, 1))
			inc = inc.Apply(n)
			live = append(live, n)
		}
		if full := Summarize(live, Money{Cents: 500}); full != inc {
			t.Fatalf("step %d: incremental %+v != recompute %+v", step, inc, full)
		}
	}
}

func TestCategoryBreakdown(t *testing.T) {
	txns := []Transaction{
		tx(Expense, 1000, "Food", NewDate(2025, 1, 1)),
		tx(Expense, 3000, "Transport", NewDate(2025, 1, 1)),
		tx(Expense, 2500, "Food", NewDate(2025, 1, 2)),
		tx(Income, 9999, "Salary", NewDate(2025, 1, 2)),
		tx(Expense, 3500, "Health", NewDate(2025, 1, 3)),
	}
	got := CategoryBreakdown(txns, Expense)
	want := []CategoryAmount{
		{Name: "Food", Amount: Money{Cents: 3500}, Count: 2},
		{Name: "Health", Amount: Money{Cents: 3500}, Count: 1},
		{Name: "Transport", Amount: Money{Cents: 3000}, Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d categories, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestMonthlyTotals(t *testing.T) {
	txns := []Transaction{
		tx(Expense, 1000, "Food", NewDate(2025, 3, 1)),
		tx(Income, 5000, "Salary", NewDate(2025, 1, 15)),
		tx(Expense, 2000, "Food", NewDate(2025, 1, 20)),
		tx(Income, 7000, "Salary", NewDate(2024, 12, 31)),
	}
	got := MonthlyTotals(txns)
	if len(got) != 3 {
		t.Fatalf("got %d months, want 3", len(got))
	}
	if got[0].Period != (Period{2024, 12}) || got[1].Period != (Period{2025, 1}) || got[2].Period != (Period{2025, 3}) {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].Income.Cents != 5000 || got[1].Expenses.Cents != 2000 || got[1].Net().Cents != 3000 {
		t.Errorf("January totals = %+v", got[1])
	}
}

func TestSavingsTotal(t *testing.T) {
	goals := []SavingsGoal{
		{CurrentAmount: Money{Cents: 1000}},
		{CurrentAmount: Money{Cents: 2500}},
	}
	if got := SavingsTotal(goals); got.Cents != 3500 {
		t.Fatalf("SavingsTotal = %d, want 3500", got.Cents)
	}
}
