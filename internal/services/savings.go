package services

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// GoalUpdate holds the editable fields of a savings goal. The current amount
// only changes through movements.
type GoalUpdate struct {
	Name         *string
	TargetAmount *core.Money
	TargetDate   *core.Date
	Description  *string
}

// MovementRequest asks for a deposit into or a withdrawal from a goal.
type MovementRequest struct {
	UserID      string
	GoalID      string
	Amount      core.Money
	Description string
	// Date defaults to today.
	Date core.Date
}

// CreateGoal creates a goal with nothing saved yet.
func (s *LifecycleService) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if g.ID == "" {
		g.ID = s.newID()
	}
	g.CurrentAmount = core.Money{}
	g = core.Recompute(g)
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	created, err := fetch(ctx, s, func(ctx context.Context) (core.SavingsGoal, error) {
		return s.store.CreateGoal(ctx, g)
	})
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("create savings goal: %w", err)
	}
	s.changed(ctx, BalanceEvent{UserID: g.UserID, AnchorKind: core.KindSavingsGoal, AnchorID: g.ID})
	return created, nil
}

func (s *LifecycleService) GetGoal(ctx context.Context, userID, id string) (core.SavingsGoal, error) {
	return fetch(ctx, s, func(ctx context.Context) (core.SavingsGoal, error) {
		return s.store.GetGoal(ctx, userID, id)
	})
}

func (s *LifecycleService) ListGoals(ctx context.Context, userID string) ([]core.SavingsGoal, error) {
	return fetch(ctx, s, func(ctx context.Context) ([]core.SavingsGoal, error) {
		return s.store.ListGoals(ctx, storage.Filter{UserID: userID})
	})
}

// ListMovements returns the owner's movements, newest first, optionally
// restricted to one goal.
func (s *LifecycleService) ListMovements(ctx context.Context, userID, goalID string) ([]core.SavingsMovement, error) {
	return fetch(ctx, s, func(ctx context.Context) ([]core.SavingsMovement, error) {
		return s.store.ListMovements(ctx, storage.Filter{UserID: userID, GoalID: goalID})
	})
}

func (s *LifecycleService) UpdateGoal(ctx context.Context, userID, id string, u GoalUpdate) (core.SavingsGoal, error) {
	if err := requireOwner(userID); err != nil {
		return core.SavingsGoal{}, err
	}
	current, err := s.GetGoal(ctx, userID, id)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	next := current
	if u.Name != nil {
		next.Name = *u.Name
	}
	if u.TargetAmount != nil {
		next.TargetAmount = *u.TargetAmount
	}
	if u.TargetDate != nil {
		next.TargetDate = *u.TargetDate
	}
	if u.Description != nil {
		next.Description = *u.Description
	}
	if err := next.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}

	updated, err := fetch(ctx, s, func(ctx context.Context) (core.SavingsGoal, error) {
		return s.store.UpdateGoal(ctx, userID, id, storage.GoalPatch(u))
	})
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update savings goal: %w", err)
	}
	s.changed(ctx, BalanceEvent{UserID: userID, AnchorKind: core.KindSavingsGoal, AnchorID: id})
	return updated, nil
}

// DeleteGoal removes a goal and its movements. The ledger entries of those
// movements stay as history.
func (s *LifecycleService) DeleteGoal(ctx context.Context, userID, id string) error {
	if err := requireOwner(userID); err != nil {
		return err
	}
	release, err := s.guard.acquire(core.KindSavingsGoal, id)
	if err != nil {
		return err
	}
	defer release()

	if err := s.call(ctx, func(ctx context.Context) error {
		return s.store.DeleteGoal(ctx, userID, id)
	}); err != nil {
		return fmt.Errorf("delete savings goal: %w", err)
	}
	s.changed(ctx, BalanceEvent{UserID: userID, AnchorKind: core.KindSavingsGoal, AnchorID: id})
	return nil
}

// Deposit moves money from the main balance into a goal.
func (s *LifecycleService) Deposit(ctx context.Context, req MovementRequest) (Outcome, error) {
	return s.move(ctx, OpDeposit, core.Deposit, req)
}

// Withdraw moves money from a goal back to the main balance. It fails with
// InsufficientFundsError when the goal holds less than requested.
func (s *LifecycleService) Withdraw(ctx context.Context, req MovementRequest) (Outcome, error) {
	return s.move(ctx, OpWithdraw, core.Withdrawal, req)
}

func (s *LifecycleService) move(ctx context.Context, op Operation, typ core.MovementType, req MovementRequest) (Outcome, error) {
	out := Outcome{Operation: op, AnchorKind: core.KindSavingsMovement}
	if err := requireOwner(req.UserID); err != nil {
		return out, err
	}
	if err := req.Amount.Validate(); err != nil {
		return out, core.Invalid("amount", err)
	}
	release, err := s.guard.acquire(core.KindSavingsGoal, req.GoalID)
	if err != nil {
		return out, err
	}
	defer release()

	goal, err := s.GetGoal(ctx, req.UserID, req.GoalID)
	if err != nil {
		return out, err
	}
	next, err := core.ApplyMovement(goal, typ, req.Amount)
	if err != nil {
		return out, err
	}
	if typ == core.Deposit && s.config.RequireFundedDeposits {
		available, err := s.balance(ctx, req.UserID)
		if err != nil {
			return out, err
		}
		if req.Amount.Cents > available.Cents {
			return out, &core.InsufficientFundsError{Requested: req.Amount, Available: available}
		}
	}
	date := req.Date
	if date.IsZero() {
		date = s.today()
	}
	m := core.SavingsMovement{
		ID:                  s.newID(),
		UserID:              req.UserID,
		GoalID:              goal.ID,
		Type:                typ,
		Amount:              req.Amount,
		Description:         req.Description,
		Date:                date,
		LedgerTransactionID: s.newID(),
		LedgerSyncPending:   true,
	}
	if err := m.Validate(); err != nil {
		return out, err
	}
	out.AnchorID = m.ID
	out.State = StateValidated

	m, err = fetch(ctx, s, func(ctx context.Context) (core.SavingsMovement, error) {
		return s.store.CreateMovement(ctx, m, next, goal.CurrentAmount)
	})
	if err != nil {
		return out, fmt.Errorf("%s: %w", op, err)
	}
	out.State = StateAnchorWritten
	slog.InfoContext(ctx, "Savings goal updated",
		"goal_id", goal.ID,
		"current_amount_cents", next.CurrentAmount.Cents,
		"completed", next.IsCompleted)

	ctx = context.WithoutCancel(ctx)
	tx := movementEntry(goal, m)
	out.Transaction = &tx
	derr := s.recordEntry(ctx, tx)
	return s.settle(ctx, &out, req.UserID, storage.OpInsertEntry, derr, func(ctx context.Context) error {
		return s.store.SetLedgerSyncPending(ctx, core.KindSavingsMovement, req.UserID, m.ID, false)
	})
}

// DeleteMovement undoes a movement: the goal amount is reverted and the
// ledger entry it booked is retracted. Deleting a deposit that has since been
// withdrawn fails with InsufficientFundsError.
func (s *LifecycleService) DeleteMovement(ctx context.Context, userID, id string) (Outcome, error) {
	out := Outcome{Operation: OpDeleteMovement, AnchorKind: core.KindSavingsMovement, AnchorID: id}
	if err := requireOwner(userID); err != nil {
		return out, err
	}
	m, err := fetch(ctx, s, func(ctx context.Context) (core.SavingsMovement, error) {
		return s.store.GetMovement(ctx, userID, id)
	})
	if err != nil {
		return out, err
	}
	if m.LedgerSyncPending {
		return out, fmt.Errorf("savings movement %s: %w", id, core.ErrLedgerSyncPending)
	}
	release, err := s.guard.acquire(core.KindSavingsGoal, m.GoalID)
	if err != nil {
		return out, err
	}
	defer release()

	goal, err := s.GetGoal(ctx, userID, m.GoalID)
	if err != nil {
		return out, err
	}
	reverted, err := core.RevertMovement(goal, m)
	if err != nil {
		return out, err
	}
	if tx, err := s.getTransaction(ctx, userID, m.LedgerTransactionID); err == nil {
		out.Transaction = &tx
	} else if storage.IsNotFound(err) {
		out.Transaction = &core.Transaction{ID: m.LedgerTransactionID, UserID: userID, SourceKind: core.KindSavingsMovement, SourceID: m.ID}
	} else {
		return out, err
	}
	out.State = StateValidated

	if err := s.call(ctx, func(ctx context.Context) error {
		return s.store.DeleteMovement(ctx, userID, id, reverted, goal.CurrentAmount)
	}); err != nil {
		return out, fmt.Errorf("delete savings movement: %w", err)
	}
	out.State = StateAnchorWritten

	ctx = context.WithoutCancel(ctx)
	derr := s.retractEntry(ctx, userID, m.LedgerTransactionID)
	return s.settle(ctx, &out, userID, storage.OpDeleteEntry, derr, nil)
}

// VerifyGoals compares every goal's stored amount with its movements and
// returns the goals that drifted.
func (s *LifecycleService) VerifyGoals(ctx context.Context, userID string) ([]core.GoalDrift, error) {
	goals, err := s.ListGoals(ctx, userID)
	if err != nil {
		return nil, err
	}
	var drifts []core.GoalDrift
	for _, g := range goals {
		movements, err := s.ListMovements(ctx, userID, g.ID)
		if err != nil {
			return nil, err
		}
		if d := core.CheckGoalConsistency(g, movements); d != nil {
			slog.WarnContext(ctx, "Savings goal drifted from its movements",
				"goal_id", d.GoalID,
				"stored_cents", d.Stored.Cents,
				"replayed_cents", d.Replayed.Cents)
			drifts = append(drifts, *d)
		}
	}
	return drifts, nil
}
