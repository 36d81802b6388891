package services

import (
	"context"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// FixedExpenseUpdate holds the editable fields of a fixed expense.
type FixedExpenseUpdate struct {
	Name        *string
	Amount      *core.Money
	Category    *string
	Description *string
	DueDay      *int
	IsActive    *bool
}

func (s *LifecycleService) CreateFixedExpense(ctx context.Context, e core.FixedExpense) (core.FixedExpense, error) {
	if e.ID == "" {
		e.ID = s.newID()
	}
	if err := e.Validate(); err != nil {
		return core.FixedExpense{}, err
	}
	created, err := fetch(ctx, s, func(ctx context.Context) (core.FixedExpense, error) {
		return s.store.CreateFixedExpense(ctx, e)
	})
	if err != nil {
		return core.FixedExpense{}, fmt.Errorf("create fixed expense: %w", err)
	}
	s.changed(ctx, BalanceEvent{UserID: e.UserID, AnchorKind: core.KindFixedExpense, AnchorID: e.ID})
	return created, nil
}

func (s *LifecycleService) GetFixedExpense(ctx context.Context, userID, id string) (core.FixedExpense, error) {
	return fetch(ctx, s, func(ctx context.Context) (core.FixedExpense, error) {
		return s.store.GetFixedExpense(ctx, userID, id)
	})
}

func (s *LifecycleService) ListFixedExpenses(ctx context.Context, userID string, activeOnly bool) ([]core.FixedExpense, error) {
	return fetch(ctx, s, func(ctx context.Context) ([]core.FixedExpense, error) {
		return s.store.ListFixedExpenses(ctx, storage.Filter{UserID: userID, ActiveOnly: activeOnly})
	})
}

// ListPayments returns the payments of a period, or of every period when p
// is zero.
func (s *LifecycleService) ListPayments(ctx context.Context, userID string, p core.Period) ([]core.FixedExpensePayment, error) {
	return fetch(ctx, s, func(ctx context.Context) ([]core.FixedExpensePayment, error) {
		return s.store.ListPayments(ctx, storage.Filter{UserID: userID, Period: p})
	})
}

// UpdateFixedExpense edits a fixed expense. Payments already made keep the
// amount they were paid with.
func (s *LifecycleService) UpdateFixedExpense(ctx context.Context, userID, id string, u FixedExpenseUpdate) (core.FixedExpense, error) {
	if err := requireOwner(userID); err != nil {
		return core.FixedExpense{}, err
	}
	current, err := s.GetFixedExpense(ctx, userID, id)
	if err != nil {
		return core.FixedExpense{}, err
	}
	next := current
	if u.Name != nil {
		next.Name = *u.Name
	}
	if u.Amount != nil {
		next.Amount = *u.Amount
	}
	if u.Category != nil {
		next.Category = *u.Category
	}
	if u.Description != nil {
		next.Description = *u.Description
	}
	if u.DueDay != nil {
		next.DueDay = *u.DueDay
	}
	if u.IsActive != nil {
		next.IsActive = *u.IsActive
	}
	if err := next.Validate(); err != nil {
		return core.FixedExpense{}, err
	}

	updated, err := fetch(ctx, s, func(ctx context.Context) (core.FixedExpense, error) {
		return s.store.UpdateFixedExpense(ctx, userID, id, storage.FixedExpensePatch(u))
	})
	if err != nil {
		return core.FixedExpense{}, fmt.Errorf("update fixed expense: %w", err)
	}
	s.changed(ctx, BalanceEvent{UserID: userID, AnchorKind: core.KindFixedExpense, AnchorID: id})
	return updated, nil
}

// DeleteFixedExpense removes the expense and its payments. Ledger entries
// booked by those payments stay as history.
func (s *LifecycleService) DeleteFixedExpense(ctx context.Context, userID, id string) error {
	if err := requireOwner(userID); err != nil {
		return err
	}
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.store.DeleteFixedExpense(ctx, userID, id)
	}); err != nil {
		return fmt.Errorf("delete fixed expense: %w", err)
	}
	s.changed(ctx, BalanceEvent{UserID: userID, AnchorKind: core.KindFixedExpense, AnchorID: id})
	return nil
}

func paymentKey(expenseID string, p core.Period) string {
	return expenseID + "@" + p.String()
}

// PayFixedExpense records the payment of a fixed expense for a period and
// books the matching expense. A second payment for the same period is
// rejected.
func (s *LifecycleService) PayFixedExpense(ctx context.Context, userID, expenseID string, period core.Period, paidDate core.Date) (Outcome, error) {
	out := Outcome{Operation: OpPayFixedExpense, AnchorKind: core.KindFixedExpensePayment}
	if err := requireOwner(userID); err != nil {
		return out, err
	}
	if err := period.Validate(); err != nil {
		return out, core.Invalid("period", err)
	}
	release, err := s.guard.acquire(core.KindFixedExpensePayment, paymentKey(expenseID, period))
	if err != nil {
		return out, err
	}
	defer release()

	e, err := s.GetFixedExpense(ctx, userID, expenseID)
	if err != nil {
		return out, err
	}
	if !e.IsActive {
		return out, fmt.Errorf("fixed expense %s: %w", expenseID, core.ErrInactive)
	}
	_, err = fetch(ctx, s, func(ctx context.Context) (core.FixedExpensePayment, error) {
		return s.store.FindPayment(ctx, userID, expenseID, period)
	})
	switch {
	case err == nil:
		return out, fmt.Errorf("fixed expense %s for %s: %w", expenseID, period, core.ErrAlreadyPaid)
	case !storage.IsNotFound(err):
		return out, err
	}
	if paidDate.IsZero() {
		paidDate = s.today()
	}
	p := core.FixedExpensePayment{
		ID:                  s.newID(),
		FixedExpenseID:      expenseID,
		UserID:              userID,
		Period:              period,
		PaidAmount:          e.Amount,
		PaidDate:            paidDate,
		LedgerTransactionID: s.newID(),
		LedgerSyncPending:   true,
	}
	if err := p.Validate(); err != nil {
		return out, err
	}
	out.AnchorID = p.ID
	out.State = StateValidated

	p, err = fetch(ctx, s, func(ctx context.Context) (core.FixedExpensePayment, error) {
		return s.store.CreatePayment(ctx, p)
	})
	if err != nil {
		if storage.IsConflict(err) {
			return out, fmt.Errorf("fixed expense %s for %s: %w: %w", expenseID, period, core.ErrAlreadyPaid, err)
		}
		return out, fmt.Errorf("pay fixed expense: %w", err)
	}
	out.State = StateAnchorWritten

	ctx = context.WithoutCancel(ctx)
	tx := paymentEntry(e, p)
	out.Transaction = &tx
	derr := s.recordEntry(ctx, tx)
	return s.settle(ctx, &out, userID, storage.OpInsertEntry, derr, func(ctx context.Context) error {
		return s.store.SetLedgerSyncPending(ctx, core.KindFixedExpensePayment, userID, p.ID, false)
	})
}

// UnpayFixedExpense removes the payment of a period and retracts the expense
// it booked.
func (s *LifecycleService) UnpayFixedExpense(ctx context.Context, userID, expenseID string, period core.Period) (Outcome, error) {
	out := Outcome{Operation: OpUnpayFixedExpense, AnchorKind: core.KindFixedExpensePayment}
	if err := requireOwner(userID); err != nil {
		return out, err
	}
	if err := period.Validate(); err != nil {
		return out, core.Invalid("period", err)
	}
	release, err := s.guard.acquire(core.KindFixedExpensePayment, paymentKey(expenseID, period))
	if err != nil {
		return out, err
	}
	defer release()

	p, err := fetch(ctx, s, func(ctx context.Context) (core.FixedExpensePayment, error) {
		return s.store.FindPayment(ctx, userID, expenseID, period)
	})
	if storage.IsNotFound(err) {
		return out, fmt.Errorf("fixed expense %s for %s: %w", expenseID, period, core.ErrNotPaid)
	}
	if err != nil {
		return out, err
	}
	out.AnchorID = p.ID
	if p.LedgerSyncPending {
		return out, fmt.Errorf("fixed expense %s for %s: %w", expenseID, period, core.ErrLedgerSyncPending)
	}
	if tx, err := s.getTransaction(ctx, userID, p.LedgerTransactionID); err == nil {
		out.Transaction = &tx
	} else if storage.IsNotFound(err) {
		out.Transaction = &core.Transaction{ID: p.LedgerTransactionID, UserID: userID, SourceKind: core.KindFixedExpensePayment, SourceID: p.ID}
	} else {
		return out, err
	}
	out.State = StateValidated

	if err := s.call(ctx, func(ctx context.Context) error {
		return s.store.DeletePayment(ctx, userID, p.ID)
	}); err != nil {
		return out, fmt.Errorf("unpay fixed expense: %w", err)
	}
	out.State = StateAnchorWritten

	ctx = context.WithoutCancel(ctx)
	derr := s.retractEntry(ctx, userID, p.LedgerTransactionID)
	return s.settle(ctx, &out, userID, storage.OpDeleteEntry, derr, nil)
}
