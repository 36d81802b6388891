package core

import (
	"sort"
)

// Summary holds the derived balance totals of a transaction set.
type Summary struct {
	TotalIncome   Money
	TotalExpenses Money
	Adjustment    Money
	Balance       Money
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
	Count  int
}

// MonthTotals is the income and expense of one calendar month.
type MonthTotals struct {
	Period   Period
	Income   Money
	Expenses Money
}

// Net returns income minus expenses for the month.
func (m MonthTotals) Net() Money { return m.Income.Sub(m.Expenses) }

// Summarize recomputes the totals from scratch. It is the reference every
// incremental update is checked against.
func Summarize(txns []Transaction, adjustment Money) Summary {
	s := Summary{Adjustment: adjustment}
	for _, tx := range txns {
		switch tx.Type {
		case Income:
			s.TotalIncome = s.TotalIncome.Add(tx.Amount)
		case Expense:
			s.TotalExpenses = s.TotalExpenses.Add(tx.Amount)
		}
	}
	s.Balance = s.TotalIncome.Sub(s.TotalExpenses).Add(adjustment)
	return s
}

// Apply returns the summary with tx added.
func (s Summary) Apply(tx Transaction) Summary {
	return s.shift(tx, tx.Amount)
}

// Retract returns the summary with tx removed.
func (s Summary) Retract(tx Transaction) Summary {
	return s.shift(tx, tx.Amount.Neg())
}

func (s Summary) shift(tx Transaction, delta Money) Summary {
	switch tx.Type {
	case Income:
		s.TotalIncome = s.TotalIncome.Add(delta)
	case Expense:
		s.TotalExpenses = s.TotalExpenses.Add(delta)
	}
	s.Balance = s.TotalIncome.Sub(s.TotalExpenses).Add(s.Adjustment)
	return s
}

// CategoryBreakdown sums transactions of one type per category, largest first.
func CategoryBreakdown(txns []Transaction, typ TransactionType) []CategoryAmount {
	idx := make(map[string]int)
	var out []CategoryAmount
	for _, tx := range txns {
		if tx.Type != typ {
			continue
		}
		i, ok := idx[tx.Category]
		if !ok {
			i = len(out)
			idx[tx.Category] = i
			out = append(out, CategoryAmount{Name: tx.Category})
		}
		out[i].Amount = out[i].Amount.Add(tx.Amount)
		out[i].Count++
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Amount.Cents != out[b].Amount.Cents {
			return out[a].Amount.Cents > out[b].Amount.Cents
		}
		return out[a].Name < out[b].Name
	})
	return out
}

// MonthlyTotals groups transactions by calendar month, oldest month first.
func MonthlyTotals(txns []Transaction) []MonthTotals {
	idx := make(map[Period]int)
	var out []MonthTotals
	for _, tx := range txns {
		p := PeriodOf(tx.Date)
		i, ok := idx[p]
		if !ok {
			i = len(out)
			idx[p] = i
			out = append(out, MonthTotals{Period: p})
		}
		switch tx.Type {
		case Income:
			out[i].Income = out[i].Income.Add(tx.Amount)
		case Expense:
			out[i].Expenses = out[i].Expenses.Add(tx.Amount)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		pa, pb := out[a].Period, out[b].Period
		if pa.Year != pb.Year {
			return pa.Year < pb.Year
		}
		return pa.Month < pb.Month
	})
	return out
}

// SavingsTotal sums the current amount of every goal.
func SavingsTotal(goals []SavingsGoal) Money {
	var total Money
	for _, g := range goals {
		total = total.Add(g.CurrentAmount)
	}
	return total
}
