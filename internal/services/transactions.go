package services

import (
	"context"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// CreateTransaction records a manual ledger entry.
func (s *LifecycleService) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if tx.ID == "" {
		tx.ID = s.newID()
	}
	tx.SourceKind, tx.SourceID = "", ""
	if tx.Date.IsZero() {
		tx.Date = s.today()
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	created, err := fetch(ctx, s, func(ctx context.Context) (core.Transaction, error) {
		return s.store.CreateTransaction(ctx, tx)
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.changed(ctx, BalanceEvent{
		UserID:        tx.UserID,
		AnchorKind:    core.KindTransaction,
		AnchorID:      tx.ID,
		TransactionID: tx.ID,
		Recorded:      true,
		Delta:         balanceDelta(tx),
	})
	return created, nil
}

func (s *LifecycleService) getTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	return fetch(ctx, s, func(ctx context.Context) (core.Transaction, error) {
		return s.store.GetTransaction(ctx, userID, id)
	})
}

// ListTransactions returns the owner's entries, newest first.
func (s *LifecycleService) ListTransactions(ctx context.Context, f storage.Filter) ([]core.Transaction, error) {
	return fetch(ctx, s, func(ctx context.Context) ([]core.Transaction, error) {
		return s.store.ListTransactions(ctx, f)
	})
}

// DeleteTransaction removes a manual entry. An entry booked by a receivable,
// payment, or movement can only be retracted through that anchor while the
// anchor exists.
func (s *LifecycleService) DeleteTransaction(ctx context.Context, userID, id string) error {
	if err := requireOwner(userID); err != nil {
		return err
	}
	tx, err := s.getTransaction(ctx, userID, id)
	if err != nil {
		return err
	}
	if tx.Derived() {
		exists, err := s.anchorExists(ctx, userID, tx.SourceKind, tx.SourceID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("transaction %s belongs to %s %s: %w", id, tx.SourceKind, tx.SourceID, core.ErrDerivedEntry)
		}
	}
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.store.DeleteTransaction(ctx, userID, id)
	}); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.changed(ctx, BalanceEvent{
		UserID:        userID,
		AnchorKind:    core.KindTransaction,
		AnchorID:      id,
		TransactionID: id,
		Delta:         balanceDelta(tx).Neg(),
	})
	return nil
}

func (s *LifecycleService) anchorExists(ctx context.Context, userID string, kind core.Kind, id string) (bool, error) {
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		switch kind {
		case core.KindReceivable:
			_, err = s.store.GetReceivable(ctx, userID, id)
		case core.KindFixedExpensePayment:
			_, err = s.store.GetPayment(ctx, userID, id)
		case core.KindSavingsMovement:
			_, err = s.store.GetMovement(ctx, userID, id)
		default:
			return nil
		}
		return err
	})
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return kind.IsAnchor(), nil
}
