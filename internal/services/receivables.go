package services

import (
	"context"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// ReceivableUpdate holds the editable fields of a receivable. Payment state
// only changes through CollectReceivable and UncollectReceivable.
type ReceivableUpdate struct {
	DebtorName   *string
	Amount       *core.Money
	Reason       *string
	ExpectedDate *core.Date
}

// CreateReceivable records an unpaid receivable.
func (s *LifecycleService) CreateReceivable(ctx context.Context, rc core.AccountReceivable) (core.AccountReceivable, error) {
	if rc.ID == "" {
		rc.ID = s.newID()
	}
	rc.IsPaid = false
	rc.PaidDate = core.Date{}
	rc.LedgerTransactionID = ""
	rc.LedgerSyncPending = false
	if err := rc.Validate(); err != nil {
		return core.AccountReceivable{}, err
	}
	created, err := fetch(ctx, s, func(ctx context.Context) (core.AccountReceivable, error) {
		return s.store.CreateReceivable(ctx, rc)
	})
	if err != nil {
		return core.AccountReceivable{}, fmt.Errorf("create receivable: %w", err)
	}
	s.changed(ctx, BalanceEvent{UserID: rc.UserID, AnchorKind: core.KindReceivable, AnchorID: rc.ID})
	return created, nil
}

func (s *LifecycleService) GetReceivable(ctx context.Context, userID, id string) (core.AccountReceivable, error) {
	return fetch(ctx, s, func(ctx context.Context) (core.AccountReceivable, error) {
		return s.store.GetReceivable(ctx, userID, id)
	})
}

func (s *LifecycleService) ListReceivables(ctx context.Context, userID string) ([]core.AccountReceivable, error) {
	return fetch(ctx, s, func(ctx context.Context) ([]core.AccountReceivable, error) {
		return s.store.ListReceivables(ctx, storage.Filter{UserID: userID})
	})
}

// UpdateReceivable edits a receivable. The amount of a collected receivable
// is fixed because its ledger entry already booked it.
func (s *LifecycleService) UpdateReceivable(ctx context.Context, userID, id string, u ReceivableUpdate) (core.AccountReceivable, error) {
	if err := requireOwner(userID); err != nil {
		return core.AccountReceivable{}, err
	}
	current, err := s.GetReceivable(ctx, userID, id)
	if err != nil {
		return core.AccountReceivable{}, err
	}
	next := current
	if u.DebtorName != nil {
		next.DebtorName = *u.DebtorName
	}
	if u.Amount != nil {
		if current.IsPaid && *u.Amount != current.Amount {
			return core.AccountReceivable{}, core.Invalid("amount", core.ErrLockedWhilePaid)
		}
		next.Amount = *u.Amount
	}
	if u.Reason != nil {
		next.Reason = *u.Reason
	}
	if u.ExpectedDate != nil {
		next.ExpectedDate = *u.ExpectedDate
	}
	if err := next.Validate(); err != nil {
		return core.AccountReceivable{}, err
	}

	patch := storage.ReceivablePatch{
		DebtorName:   u.DebtorName,
		Amount:       u.Amount,
		Reason:       u.Reason,
		ExpectedDate: u.ExpectedDate,
		ExpectPaid:   &current.IsPaid,
	}
	updated, err := fetch(ctx, s, func(ctx context.Context) (core.AccountReceivable, error) {
		return s.store.UpdateReceivable(ctx, userID, id, patch)
	})
	if err != nil {
		return core.AccountReceivable{}, fmt.Errorf("update receivable: %w", err)
	}
	s.changed(ctx, BalanceEvent{UserID: userID, AnchorKind: core.KindReceivable, AnchorID: id})
	return updated, nil
}

// DeleteReceivable removes a receivable. A collected receivable's ledger
// entry stays as history.
func (s *LifecycleService) DeleteReceivable(ctx context.Context, userID, id string) error {
	if err := requireOwner(userID); err != nil {
		return err
	}
	release, err := s.guard.acquire(core.KindReceivable, id)
	if err != nil {
		return err
	}
	defer release()

	rc, err := s.GetReceivable(ctx, userID, id)
	if err != nil {
		return err
	}
	if rc.LedgerSyncPending {
		return fmt.Errorf("delete receivable %s: %w", id, core.ErrLedgerSyncPending)
	}
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.store.DeleteReceivable(ctx, userID, id)
	}); err != nil {
		return fmt.Errorf("delete receivable: %w", err)
	}
	s.changed(ctx, BalanceEvent{UserID: userID, AnchorKind: core.KindReceivable, AnchorID: id})
	return nil
}

// CollectReceivable marks a receivable paid on paidDate (today when zero) and
// books the matching income.
func (s *LifecycleService) CollectReceivable(ctx context.Context, userID, id string, paidDate core.Date) (Outcome, error) {
	out := Outcome{Operation: OpCollectReceivable, AnchorKind: core.KindReceivable, AnchorID: id}
	if err := requireOwner(userID); err != nil {
		return out, err
	}
	release, err := s.guard.acquire(core.KindReceivable, id)
	if err != nil {
		return out, err
	}
	defer release()

	rc, err := s.GetReceivable(ctx, userID, id)
	if err != nil {
		return out, err
	}
	if rc.IsPaid {
		return out, fmt.Errorf("receivable %s: %w", id, core.ErrAlreadyPaid)
	}
	if rc.LedgerTransactionID != "" || rc.LedgerSyncPending {
		return out, fmt.Errorf("receivable %s: %w", id, core.ErrLedgerSyncPending)
	}
	if err := rc.Amount.Validate(); err != nil {
		return out, core.Invalid("amount", err)
	}
	if paidDate.IsZero() {
		paidDate = s.today()
	}
	if err := paidDate.Validate(); err != nil {
		return out, core.Invalid("paid_date", err)
	}
	out.State = StateValidated

	txID := s.newID()
	paid, unpaid, pending := true, false, true
	rc, err = fetch(ctx, s, func(ctx context.Context) (core.AccountReceivable, error) {
		return s.store.UpdateReceivable(ctx, userID, id, storage.ReceivablePatch{
			IsPaid:              &paid,
			PaidDate:            &paidDate,
			LedgerTransactionID: &txID,
			LedgerSyncPending:   &pending,
			ExpectPaid:          &unpaid,
		})
	})
	if err != nil {
		return out, fmt.Errorf("collect receivable: %w", err)
	}
	out.State = StateAnchorWritten

	// The ledger side must finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	tx := receivableEntry(rc, txID)
	out.Transaction = &tx
	derr := s.recordEntry(ctx, tx)
	return s.settle(ctx, &out, userID, storage.OpInsertEntry, derr, func(ctx context.Context) error {
		return s.store.SetLedgerSyncPending(ctx, core.KindReceivable, userID, id, false)
	})
}

// UncollectReceivable marks a collected receivable unpaid again and retracts
// the income it booked.
func (s *LifecycleService) UncollectReceivable(ctx context.Context, userID, id string) (Outcome, error) {
	out := Outcome{Operation: OpUncollectReceivable, AnchorKind: core.KindReceivable, AnchorID: id}
	if err := requireOwner(userID); err != nil {
		return out, err
	}
	release, err := s.guard.acquire(core.KindReceivable, id)
	if err != nil {
		return out, err
	}
	defer release()

	rc, err := s.GetReceivable(ctx, userID, id)
	if err != nil {
		return out, err
	}
	if !rc.IsPaid {
		return out, fmt.Errorf("receivable %s: %w", id, core.ErrNotPaid)
	}
	// A flagged receivable's income may still be in flight from the
	// reconciler; retracting now could miss it.
	if rc.LedgerSyncPending {
		return out, fmt.Errorf("receivable %s: %w", id, core.ErrLedgerSyncPending)
	}
	txID := rc.LedgerTransactionID
	if txID != "" {
		if tx, err := s.getTransaction(ctx, userID, txID); err == nil {
			out.Transaction = &tx
		} else if !storage.IsNotFound(err) {
			return out, err
		}
	}
	if out.Transaction == nil {
		// Keep the id so a failed retraction can still be reconciled.
		out.Transaction = &core.Transaction{ID: txID, UserID: userID, SourceKind: core.KindReceivable, SourceID: id}
	}
	out.State = StateValidated

	paid, unpaid, pending := true, false, true
	cleared := core.Date{}
	if _, err := fetch(ctx, s, func(ctx context.Context) (core.AccountReceivable, error) {
		return s.store.UpdateReceivable(ctx, userID, id, storage.ReceivablePatch{
			IsPaid:            &unpaid,
			PaidDate:          &cleared,
			LedgerSyncPending: &pending,
			ExpectPaid:        &paid,
		})
	}); err != nil {
		return out, fmt.Errorf("uncollect receivable: %w", err)
	}
	out.State = StateAnchorWritten

	ctx = context.WithoutCancel(ctx)
	derr := s.retractEntry(ctx, userID, txID)
	return s.settle(ctx, &out, userID, storage.OpDeleteEntry, derr, func(ctx context.Context) error {
		none, done := "", false
		_, err := s.store.UpdateReceivable(ctx, userID, id, storage.ReceivablePatch{
			LedgerTransactionID: &none,
			LedgerSyncPending:   &done,
		})
		return err
	})
}
