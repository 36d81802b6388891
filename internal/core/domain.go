package core

import (
	"strings"
	"time"
)

// Kind names an entity collection.
type Kind string

const (
	KindTransaction         Kind = "transactions"
	KindFixedExpense        Kind = "fixed_expenses"
	KindFixedExpensePayment Kind = "fixed_expense_payments"
	KindReceivable          Kind = "accounts_receivable"
	KindSavingsGoal         Kind = "savings_goals"
	KindSavingsMovement     Kind = "savings_movements"
)

// TransactionType is the direction of a ledger entry.
type TransactionType string

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// MovementType is the direction of a savings movement.
type MovementType string

const (
	Deposit    MovementType = "deposit"
	Withdrawal MovementType = "withdrawal"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
)

type (
	// Transaction is an immutable balance-affecting ledger entry. Entries created
	// by a compound operation carry the anchor they were derived from.
	Transaction struct {
		ID          string
		UserID      string
		Type        TransactionType
		Amount      Money
		Category    string
		Description string
		Date        Date
		SourceKind  Kind
		SourceID    string
		CreatedAt   time.Time
	}

	// FixedExpense is a recurring monthly obligation. Payment state lives in
	// FixedExpensePayment rows, one per period.
	FixedExpense struct {
		ID          string
		UserID      string
		Name        string
		Amount      Money
		Category    string
		Description string
		DueDay      int
		IsActive    bool
		CreatedAt   time.Time
	}

	// FixedExpensePayment records that a fixed expense was paid for a period.
	FixedExpensePayment struct {
		ID                  string
		FixedExpenseID      string
		UserID              string
		Period              Period
		PaidAmount          Money
		PaidDate            Date
		LedgerTransactionID string
		LedgerSyncPending   bool
		CreatedAt           time.Time
	}

	// AccountReceivable is money owed to the user.
	AccountReceivable struct {
		ID                  string
		UserID              string
		DebtorName          string
		Amount              Money
		Reason              string
		ExpectedDate        Date
		IsPaid              bool
		PaidDate            Date
		LedgerTransactionID string
		LedgerSyncPending   bool
		CreatedAt           time.Time
	}

	// SavingsGoal tracks progress towards a target amount. CurrentAmount and
	// IsCompleted are only changed through ApplyMovement and RevertMovement.
	SavingsGoal struct {
		ID            string
		UserID        string
		Name          string
		TargetAmount  Money
		CurrentAmount Money
		TargetDate    Date
		Description   string
		IsCompleted   bool
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// SavingsMovement is an append-only change to a goal's current amount.
	SavingsMovement struct {
		ID                  string
		UserID              string
		GoalID              string
		Type                MovementType
		Amount              Money
		Description         string
		Date                Date
		LedgerTransactionID string
		LedgerSyncPending   bool
		CreatedAt           time.Time
	}
)

func (t TransactionType) Valid() bool { return t == Income || t == Expense }

func (t MovementType) Valid() bool { return t == Deposit || t == Withdrawal }

// IsAnchor reports whether entities of kind k own a derived ledger entry.
func (k Kind) IsAnchor() bool {
	switch k {
	case KindReceivable, KindFixedExpensePayment, KindSavingsMovement:
		return true
	}
	return false
}

// Derived reports whether the entry belongs to an anchor entity.
func (t Transaction) Derived() bool { return t.SourceID != "" }

func (t Transaction) Validate() error {
	if err := requireOwner(t.UserID); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return Invalid("type", ErrInvalidType)
	}
	if err := t.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if err := requireText("category", t.Category, MaxNameLength); err != nil {
		return err
	}
	if err := optionalText("description", t.Description, MaxDescriptionLength); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	return nil
}

func (e FixedExpense) Validate() error {
	if err := requireOwner(e.UserID); err != nil {
		return err
	}
	if err := requireText("name", e.Name, MaxNameLength); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if err := optionalText("category", e.Category, MaxNameLength); err != nil {
		return err
	}
	if err := optionalText("description", e.Description, MaxDescriptionLength); err != nil {
		return err
	}
	if e.DueDay < 1 || e.DueDay > 31 {
		return Invalid("due_day", ErrInvalidDueDay)
	}
	return nil
}

func (p FixedExpensePayment) Validate() error {
	if err := requireOwner(p.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(p.FixedExpenseID) == "" {
		return Invalid("fixed_expense_id", ErrMissingField)
	}
	if err := p.Period.Validate(); err != nil {
		return Invalid("period", err)
	}
	if err := p.PaidAmount.Validate(); err != nil {
		return Invalid("paid_amount", err)
	}
	if err := p.PaidDate.Validate(); err != nil {
		return Invalid("paid_date", err)
	}
	return nil
}

func (r AccountReceivable) Validate() error {
	if err := requireOwner(r.UserID); err != nil {
		return err
	}
	if err := requireText("debtor_name", r.DebtorName, MaxNameLength); err != nil {
		return err
	}
	if err := r.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if err := optionalText("reason", r.Reason, MaxDescriptionLength); err != nil {
		return err
	}
	if r.IsPaid && r.PaidDate.IsZero() {
		return Invalid("paid_date", ErrMissingField)
	}
	return nil
}

func (g SavingsGoal) Validate() error {
	if err := requireOwner(g.UserID); err != nil {
		return err
	}
	if err := requireText("name", g.Name, MaxNameLength); err != nil {
		return err
	}
	if err := g.TargetAmount.Validate(); err != nil {
		return Invalid("target_amount", err)
	}
	if g.CurrentAmount.Cents < 0 {
		return Invalid("current_amount", ErrInvalidAmount)
	}
	if err := optionalText("description", g.Description, MaxDescriptionLength); err != nil {
		return err
	}
	return nil
}

func (m SavingsMovement) Validate() error {
	if err := requireOwner(m.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(m.GoalID) == "" {
		return Invalid("savings_goal_id", ErrMissingField)
	}
	if !m.Type.Valid() {
		return Invalid("type", ErrInvalidType)
	}
	if err := m.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if err := optionalText("description", m.Description, MaxDescriptionLength); err != nil {
		return err
	}
	if err := m.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	return nil
}

func requireOwner(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return Invalid("user_id", ErrMissingOwner)
	}
	return nil
}

func requireText(field, v string, limit int) error {
	if strings.TrimSpace(v) == "" {
		return Invalid(field, ErrMissingField)
	}
	return optionalText(field, v, limit)
}

func optionalText(field, v string, limit int) error {
	if len(v) > limit {
		return Invalid(field, ErrFieldTooLong)
	}
	return nil
}
