package core

// DueStatus classifies an obligation relative to today.
type DueStatus string

const (
	StatusPaid    DueStatus = "paid"
	StatusOverdue DueStatus = "overdue"
	StatusDueSoon DueStatus = "due_soon"
	StatusPending DueStatus = "pending"
)

// DueSoonDays is the window in which an unpaid obligation counts as due soon.
const DueSoonDays = 3

// StatusForDue classifies an unpaid obligation with the given due date.
// An obligation without a due date is pending.
func StatusForDue(due, today Date) DueStatus {
	if due.IsZero() {
		return StatusPending
	}
	days := DaysUntil(today, due)
	switch {
	case days < 0:
		return StatusOverdue
	case days <= DueSoonDays:
		return StatusDueSoon
	default:
		return StatusPending
	}
}

// ReceivableStatus classifies a receivable against its expected date.
func ReceivableStatus(r AccountReceivable, today Date) DueStatus {
	if r.IsPaid {
		return StatusPaid
	}
	return StatusForDue(r.ExpectedDate, today)
}

// DueDateIn returns the date a fixed expense falls due within a period.
func (e FixedExpense) DueDateIn(p Period) Date {
	return p.DayClamped(e.DueDay)
}

// FixedExpenseStatus classifies a fixed expense for a period given whether a
// payment exists for it.
func FixedExpenseStatus(e FixedExpense, p Period, paid bool, today Date) DueStatus {
	if paid {
		return StatusPaid
	}
	return StatusForDue(e.DueDateIn(p), today)
}
