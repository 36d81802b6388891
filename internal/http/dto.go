package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

// amountField accepts an amount as a JSON string ("12,50" or "12.50") or a
// JSON number and parses it to cents.
type amountField struct {
	set   bool
	money core.Money
	err   error
}

func (a *amountField) UnmarshalJSON(b []byte) error {
	a.set = true
	if bytes.Equal(b, []byte("null")) {
		a.set = false
		return nil
	}
	var raw string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("amount must be a number or a decimal string")
		}
		raw = n.String()
	}
	// Parse failures are reported as validation errors by the handler.
	a.money, a.err = core.ParseAmount(raw)
	return nil
}

// value returns the parsed amount or a validation error for field.
func (a amountField) value(field string) (core.Money, error) {
	if !a.set {
		return core.Money{}, core.Invalid(field, core.ErrMissingField)
	}
	if a.err != nil {
		return core.Money{}, core.Invalid(field, a.err)
	}
	return a.money, nil
}

// optional returns nil when the field was absent.
func (a amountField) optional(field string) (*core.Money, error) {
	if !a.set {
		return nil, nil
	}
	m, err := a.value(field)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func dateString(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type transactionDTO struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Type        string     `json:"type"`
	Amount      string     `json:"amount"`
	AmountCents int64      `json:"amount_cents"`
	Category    string     `json:"category"`
	Description string     `json:"description,omitempty"`
	Date        string     `json:"date"`
	SourceKind  string     `json:"source_kind,omitempty"`
	SourceID    string     `json:"source_id,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

func newTransactionDTO(t core.Transaction) transactionDTO {
	return transactionDTO{
		ID:          t.ID,
		UserID:      t.UserID,
		Type:        string(t.Type),
		Amount:      t.Amount.String(),
		AmountCents: t.Amount.Cents,
		Category:    t.Category,
		Description: t.Description,
		Date:        dateString(t.Date),
		SourceKind:  string(t.SourceKind),
		SourceID:    t.SourceID,
		CreatedAt:   timeOrNil(t.CreatedAt),
	}
}

type fixedExpenseDTO struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	Amount      string     `json:"amount"`
	AmountCents int64      `json:"amount_cents"`
	Category    string     `json:"category"`
	Description string     `json:"description,omitempty"`
	DueDay      int        `json:"due_day"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

func newFixedExpenseDTO(e core.FixedExpense) fixedExpenseDTO {
	return fixedExpenseDTO{
		ID:          e.ID,
		UserID:      e.UserID,
		Name:        e.Name,
		Amount:      e.Amount.String(),
		AmountCents: e.Amount.Cents,
		Category:    e.Category,
		Description: e.Description,
		DueDay:      e.DueDay,
		IsActive:    e.IsActive,
		CreatedAt:   timeOrNil(e.CreatedAt),
	}
}

type paymentDTO struct {
	ID                  string `json:"id"`
	FixedExpenseID      string `json:"fixed_expense_id"`
	UserID              string `json:"user_id"`
	Year                int    `json:"year"`
	Month               int    `json:"month"`
	PaidAmount          string `json:"paid_amount"`
	PaidAmountCents     int64  `json:"paid_amount_cents"`
	PaidDate            string `json:"paid_date"`
	LedgerTransactionID string `json:"transaction_id,omitempty"`
	LedgerSyncPending   bool   `json:"ledger_sync_pending"`
}

func newPaymentDTO(p core.FixedExpensePayment) paymentDTO {
	return paymentDTO{
		ID:                  p.ID,
		FixedExpenseID:      p.FixedExpenseID,
		UserID:              p.UserID,
		Year:                p.Period.Year,
		Month:               p.Period.Month,
		PaidAmount:          p.PaidAmount.String(),
		PaidAmountCents:     p.PaidAmount.Cents,
		PaidDate:            dateString(p.PaidDate),
		LedgerTransactionID: p.LedgerTransactionID,
		LedgerSyncPending:   p.LedgerSyncPending,
	}
}

type receivableDTO struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	DebtorName          string     `json:"debtor_name"`
	Amount              string     `json:"amount"`
	AmountCents         int64      `json:"amount_cents"`
	Reason              string     `json:"reason,omitempty"`
	ExpectedDate        string     `json:"expected_date,omitempty"`
	IsPaid              bool       `json:"is_paid"`
	PaidDate            string     `json:"paid_date,omitempty"`
	LedgerTransactionID string     `json:"transaction_id,omitempty"`
	LedgerSyncPending   bool       `json:"ledger_sync_pending"`
	CreatedAt           *time.Time `json:"created_at,omitempty"`
}

func newReceivableDTO(r core.AccountReceivable) receivableDTO {
	return receivableDTO{
		ID:                  r.ID,
		UserID:              r.UserID,
		DebtorName:          r.DebtorName,
		Amount:              r.Amount.String(),
		AmountCents:         r.Amount.Cents,
		Reason:              r.Reason,
		ExpectedDate:        dateString(r.ExpectedDate),
		IsPaid:              r.IsPaid,
		PaidDate:            dateString(r.PaidDate),
		LedgerTransactionID: r.LedgerTransactionID,
		LedgerSyncPending:   r.LedgerSyncPending,
		CreatedAt:           timeOrNil(r.CreatedAt),
	}
}

type goalDTO struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	Name               string     `json:"name"`
	TargetAmount       string     `json:"target_amount"`
	TargetAmountCents  int64      `json:"target_amount_cents"`
	CurrentAmount      string     `json:"current_amount"`
	CurrentAmountCents int64      `json:"current_amount_cents"`
	TargetDate         string     `json:"target_date,omitempty"`
	Description        string     `json:"description,omitempty"`
	IsCompleted        bool       `json:"is_completed"`
	ProgressPercent    float64    `json:"progress_percent"`
	Remaining          string     `json:"remaining"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

func newGoalDTO(g core.SavingsGoal) goalDTO {
	return goalDTO{
		ID:                 g.ID,
		UserID:             g.UserID,
		Name:               g.Name,
		TargetAmount:       g.TargetAmount.String(),
		TargetAmountCents:  g.TargetAmount.Cents,
		CurrentAmount:      g.CurrentAmount.String(),
		CurrentAmountCents: g.CurrentAmount.Cents,
		TargetDate:         dateString(g.TargetDate),
		Description:        g.Description,
		IsCompleted:        g.IsCompleted,
		ProgressPercent:    core.ProgressPercent(g),
		Remaining:          core.Remaining(g).String(),
		CreatedAt:          timeOrNil(g.CreatedAt),
		UpdatedAt:          timeOrNil(g.UpdatedAt),
	}
}

type movementDTO struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	SavingsGoalID       string     `json:"savings_goal_id"`
	Type                string     `json:"type"`
	Amount              string     `json:"amount"`
	AmountCents         int64      `json:"amount_cents"`
	Description         string     `json:"description,omitempty"`
	Date                string     `json:"date"`
	LedgerTransactionID string     `json:"transaction_id,omitempty"`
	LedgerSyncPending   bool       `json:"ledger_sync_pending"`
	CreatedAt           *time.Time `json:"created_at,omitempty"`
}

func newMovementDTO(m core.SavingsMovement) movementDTO {
	return movementDTO{
		ID:                  m.ID,
		UserID:              m.UserID,
		SavingsGoalID:       m.GoalID,
		Type:                string(m.Type),
		Amount:              m.Amount.String(),
		AmountCents:         m.Amount.Cents,
		Description:         m.Description,
		Date:                dateString(m.Date),
		LedgerTransactionID: m.LedgerTransactionID,
		LedgerSyncPending:   m.LedgerSyncPending,
		CreatedAt:           timeOrNil(m.CreatedAt),
	}
}

type outcomeDTO struct {
	Operation   string          `json:"operation"`
	State       string          `json:"state"`
	AnchorKind  string          `json:"anchor_kind"`
	AnchorID    string          `json:"anchor_id"`
	Transaction *transactionDTO `json:"transaction,omitempty"`
	SyncID      int64           `json:"sync_id,omitempty"`
}

func newOutcomeDTO(o services.Outcome) outcomeDTO {
	out := outcomeDTO{
		Operation:  string(o.Operation),
		State:      string(o.State),
		AnchorKind: string(o.AnchorKind),
		AnchorID:   o.AnchorID,
		SyncID:     o.SyncID,
	}
	if o.Transaction != nil {
		tx := newTransactionDTO(*o.Transaction)
		out.Transaction = &tx
	}
	return out
}

func mapSlice[T, D any](in []T, fn func(T) D) []D {
	out := make([]D, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
