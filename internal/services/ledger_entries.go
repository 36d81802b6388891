package services

import (
	"fintrack/internal/core"
)

func receivableEntry(rc core.AccountReceivable, txID string) core.Transaction {
	desc := "Payment received from " + rc.DebtorName
	if rc.Reason != "" {
		desc += " - " + rc.Reason
	}
	return core.Transaction{
		ID:          txID,
		UserID:      rc.UserID,
		Type:        core.Income,
		Amount:      rc.Amount,
		Category:    core.CategoryReceivables,
		Description: clip(desc, core.MaxDescriptionLength),
		Date:        rc.PaidDate,
		SourceKind:  core.KindReceivable,
		SourceID:    rc.ID,
	}
}

func paymentEntry(e core.FixedExpense, p core.FixedExpensePayment) core.Transaction {
	category := e.Category
	if category == "" {
		category = core.CategoryFixedExpenses
	}
	return core.Transaction{
		ID:          p.LedgerTransactionID,
		UserID:      p.UserID,
		Type:        core.Expense,
		Amount:      p.PaidAmount,
		Category:    category,
		Description: clip("Fixed expense payment: "+e.Name, core.MaxDescriptionLength),
		Date:        p.PaidDate,
		SourceKind:  core.KindFixedExpensePayment,
		SourceID:    p.ID,
	}
}

// movementEntry books money moving between the main balance and a goal. A
// deposit leaves the spendable balance, a withdrawal returns to it.
func movementEntry(g core.SavingsGoal, m core.SavingsMovement) core.Transaction {
	typ, desc := core.Expense, "Savings deposit: "+g.Name
	if m.Type == core.Withdrawal {
		typ, desc = core.Income, "Savings withdrawal: "+g.Name
	}
	return core.Transaction{
		ID:          m.LedgerTransactionID,
		UserID:      m.UserID,
		Type:        typ,
		Amount:      m.Amount,
		Category:    core.CategorySavings,
		Description: clip(desc, core.MaxDescriptionLength),
		Date:        m.Date,
		SourceKind:  core.KindSavingsMovement,
		SourceID:    m.ID,
	}
}

// balanceDelta is the signed effect of tx on the main balance.
func balanceDelta(tx core.Transaction) core.Money {
	if tx.Type == core.Expense {
		return tx.Amount.Neg()
	}
	return tx.Amount
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	for len(string(r)) > n {
		r = r[:len(r)-1]
	}
	return string(r)
}
