// Package storetest holds a behavioral suite every storage.Store must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("OwnerRequired", func(t *testing.T) { testOwnerRequired(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("TransactionSourceUnique", func(t *testing.T) { testTransactionSourceUnique(t, newStore(t)) })
	t.Run("FixedExpenses", func(t *testing.T) { testFixedExpenses(t, newStore(t)) })
	t.Run("PaymentsUniquePerPeriod", func(t *testing.T) { testPaymentsUniquePerPeriod(t, newStore(t)) })
	t.Run("FixedExpenseCascade", func(t *testing.T) { testFixedExpenseCascade(t, newStore(t)) })
	t.Run("Receivables", func(t *testing.T) { testReceivables(t, newStore(t)) })
	t.Run("Goals", func(t *testing.T) { testGoals(t, newStore(t)) })
	t.Run("MovementCompareAndSet", func(t *testing.T) { testMovementCompareAndSet(t, newStore(t)) })
	t.Run("GoalCascade", func(t *testing.T) { testGoalCascade(t, newStore(t)) })
	t.Run("LedgerSyncQueue", func(t *testing.T) { testLedgerSyncQueue(t, newStore(t)) })
	t.Run("FlaggedAnchors", func(t *testing.T) { testFlaggedAnchors(t, newStore(t)) })
}

const (
	owner = "user-1"
	other = "user-2"
)

func id() string { return uuid.NewString() }

func money(cents int64) core.Money { return core.Money{Cents: cents} }

func newTx(userID string, typ core.TransactionType, cents int64, d core.Date) core.Transaction {
	return core.Transaction{ID: id(), UserID: userID, Type: typ, Amount: money(cents), Category: "Food", Date: d}
}

func testOwnerRequired(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.ListTransactions(ctx, storage.Filter{})
	require.ErrorIs(t, err, storage.ErrOwnerRequired)

	var serr *storage.StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, storage.OpList, serr.Op)
	assert.Equal(t, core.KindTransaction, serr.Kind)

	_, err = s.ListGoals(ctx, storage.Filter{})
	assert.ErrorIs(t, err, storage.ErrOwnerRequired)
	_, err = s.CreateReceivable(ctx, core.AccountReceivable{ID: id(), DebtorName: "x", Amount: money(1)})
	assert.ErrorIs(t, err, storage.ErrOwnerRequired)
}

func testTransactions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	older := newTx(owner, core.Income, 1000, core.NewDate(2025, 1, 1))
	newer := newTx(owner, core.Expense, 250, core.NewDate(2025, 2, 1))
	middle := newTx(owner, core.Expense, 100, core.NewDate(2025, 1, 15))
	foreign := newTx(other, core.Income, 999, core.NewDate(2025, 3, 1))
	for _, tx := range []core.Transaction{older, newer, middle, foreign} {
		_, err := s.CreateTransaction(ctx, tx)
		require.NoError(t, err)
	}

	all, err := s.ListTransactions(ctx, storage.Filter{UserID: owner})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{newer.ID, middle.ID, older.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	expenses, err := s.ListTransactions(ctx, storage.Filter{UserID: owner, Type: core.Expense})
	require.NoError(t, err)
	assert.Len(t, expenses, 2)

	january, err := s.ListTransactions(ctx, storage.Filter{UserID: owner, From: core.NewDate(2025, 1, 1), To: core.NewDate(2025, 1, 31)})
	require.NoError(t, err)
	assert.Len(t, january, 2)

	limited, err := s.ListTransactions(ctx, storage.Filter{UserID: owner, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, newer.ID, limited[0].ID)

	got, err := s.GetTransaction(ctx, owner, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older.Amount, got.Amount)
	assert.Equal(t, older.Date.String(), got.Date.String())
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.GetTransaction(ctx, other, older.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "other owners must not see the row")

	_, err = s.CreateTransaction(ctx, older)
	assert.ErrorIs(t, err, storage.ErrConflict)

	require.NoError(t, s.DeleteTransaction(ctx, owner, older.ID))
	assert.ErrorIs(t, s.DeleteTransaction(ctx, owner, older.ID), storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTransaction(ctx, owner, foreign.ID), storage.ErrNotFound)
}

func testTransactionSourceUnique(t *testing.T, s storage.Store) {
	ctx := context.Background()
	first := newTx(owner, core.Income, 200, core.NewDate(2025, 1, 1))
	first.SourceKind, first.SourceID = core.KindReceivable, "rc-1"
	_, err := s.CreateTransaction(ctx, first)
	require.NoError(t, err)

	dup := newTx(owner, core.Income, 200, core.NewDate(2025, 1, 1))
	dup.SourceKind, dup.SourceID = core.KindReceivable, "rc-1"
	_, err = s.CreateTransaction(ctx, dup)
	require.ErrorIs(t, err, storage.ErrConflict)

	// Manual entries carry no source and never collide.
	_, err = s.CreateTransaction(ctx, newTx(owner, core.Income, 1, core.NewDate(2025, 1, 1)))
	require.NoError(t, err)
	_, err = s.CreateTransaction(ctx, newTx(owner, core.Income, 1, core.NewDate(2025, 1, 1)))
	require.NoError(t, err)

	got, err := s.GetTransaction(ctx, owner, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Derived())
	assert.Equal(t, core.KindReceivable, got.SourceKind)

	// Once retracted the anchor may book a new entry.
	require.NoError(t, s.DeleteTransaction(ctx, owner, first.ID))
	_, err = s.CreateTransaction(ctx, dup)
	require.NoError(t, err)
}

func newExpense(userID, name string, dueDay int, active bool) core.FixedExpense {
	return core.FixedExpense{ID: id(), UserID: userID, Name: name, Amount: money(5000), DueDay: dueDay, IsActive: active}
}

func testFixedExpenses(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rent := newExpense(owner, "Rent", 5, true)
	gym := newExpense(owner, "Gym", 20, true)
	old := newExpense(owner, "Old phone", 1, false)
	for _, e := range []core.FixedExpense{gym, rent, old} {
		_, err := s.CreateFixedExpense(ctx, e)
		require.NoError(t, err)
	}

	all, err := s.ListFixedExpenses(ctx, storage.Filter{UserID: owner})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{1, 5, 20}, []int{all[0].DueDay, all[1].DueDay, all[2].DueDay})

	active, err := s.ListFixedExpenses(ctx, storage.Filter{UserID: owner, ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	name, day, inactive := "Rent (flat)", 3, false
	updated, err := s.UpdateFixedExpense(ctx, owner, rent.ID, storage.FixedExpensePatch{Name: &name, DueDay: &day, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Rent (flat)", updated.Name)
	assert.Equal(t, 3, updated.DueDay)
	assert.False(t, updated.IsActive)
	assert.Equal(t, rent.Amount, updated.Amount)

	_, err = s.UpdateFixedExpense(ctx, other, rent.ID, storage.FixedExpensePatch{Name: &name})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func newPayment(e core.FixedExpense, p core.Period) core.FixedExpensePayment {
	return core.FixedExpensePayment{
		ID:                  id(),
		FixedExpenseID:      e.ID,
		UserID:              e.UserID,
		Period:              p,
		PaidAmount:          e.Amount,
		PaidDate:            core.NewDate(p.Year, p.Month, 5),
		LedgerTransactionID: id(),
	}
}

func testPaymentsUniquePerPeriod(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rent := newExpense(owner, "Rent", 5, true)
	_, err := s.CreateFixedExpense(ctx, rent)
	require.NoError(t, err)

	jan := core.Period{Year: 2025, Month: 1}
	feb := core.Period{Year: 2025, Month: 2}
	p1, err := s.CreatePayment(ctx, newPayment(rent, jan))
	require.NoError(t, err)

	_, err = s.CreatePayment(ctx, newPayment(rent, jan))
	require.ErrorIs(t, err, storage.ErrConflict, "second payment for the same period must be rejected")

	_, err = s.CreatePayment(ctx, newPayment(rent, feb))
	require.NoError(t, err)

	found, err := s.FindPayment(ctx, owner, rent.ID, jan)
	require.NoError(t, err)
	assert.Equal(t, p1.ID, found.ID)
	assert.Equal(t, p1.LedgerTransactionID, found.LedgerTransactionID)

	list, err := s.ListPayments(ctx, storage.Filter{UserID: owner, FixedExpenseID: rent.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, feb, list[0].Period)

	janOnly, err := s.ListPayments(ctx, storage.Filter{UserID: owner, Period: jan})
	require.NoError(t, err)
	assert.Len(t, janOnly, 1)

	require.NoError(t, s.DeletePayment(ctx, owner, p1.ID))
	_, err = s.FindPayment(ctx, owner, rent.ID, jan)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The period is free again after unpaying.
	_, err = s.CreatePayment(ctx, newPayment(rent, jan))
	assert.NoError(t, err)
}

func testFixedExpenseCascade(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rent := newExpense(owner, "Rent", 5, true)
	_, err := s.CreateFixedExpense(ctx, rent)
	require.NoError(t, err)
	_, err = s.CreatePayment(ctx, newPayment(rent, core.Period{Year: 2025, Month: 1}))
	require.NoError(t, err)
	_, err = s.CreatePayment(ctx, newPayment(rent, core.Period{Year: 2025, Month: 2}))
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteFixedExpense(ctx, other, rent.ID), storage.ErrNotFound)
	require.NoError(t, s.DeleteFixedExpense(ctx, owner, rent.ID))

	left, err := s.ListPayments(ctx, storage.Filter{UserID: owner, FixedExpenseID: rent.ID})
	require.NoError(t, err)
	assert.Empty(t, left)
	_, err = s.GetFixedExpense(ctx, owner, rent.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testReceivables(t *testing.T, s storage.Store) {
	ctx := context.Background()
	late := core.AccountReceivable{ID: id(), UserID: owner, DebtorName: "Bea", Amount: money(100), ExpectedDate: core.NewDate(2025, 5, 1)}
	soon := core.AccountReceivable{ID: id(), UserID: owner, DebtorName: "Ana", Amount: money(200), ExpectedDate: core.NewDate(2025, 4, 1)}
	undated := core.AccountReceivable{ID: id(), UserID: owner, DebtorName: "Cal", Amount: money(300)}
	for _, rc := range []core.AccountReceivable{undated, late, soon} {
		_, err := s.CreateReceivable(ctx, rc)
		require.NoError(t, err)
	}

	list, err := s.ListReceivables(ctx, storage.Filter{UserID: owner})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{soon.ID, late.ID, undated.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.True(t, list[2].ExpectedDate.IsZero())

	paid, unpaid := true, false
	today := core.NewDate(2025, 4, 2)
	txID := id()
	got, err := s.UpdateReceivable(ctx, owner, soon.ID, storage.ReceivablePatch{
		IsPaid:              &paid,
		PaidDate:            &today,
		LedgerTransactionID: &txID,
		ExpectPaid:          &unpaid,
	})
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	assert.Equal(t, "2025-04-02", got.PaidDate.String())
	assert.Equal(t, txID, got.LedgerTransactionID)

	_, err = s.UpdateReceivable(ctx, owner, soon.ID, storage.ReceivablePatch{IsPaid: &paid, ExpectPaid: &unpaid})
	require.ErrorIs(t, err, storage.ErrConflict, "precondition must fail on an already paid receivable")

	_, err = s.UpdateReceivable(ctx, owner, "missing", storage.ReceivablePatch{IsPaid: &paid, ExpectPaid: &unpaid})
	require.ErrorIs(t, err, storage.ErrNotFound)

	cleared := core.Date{}
	got, err = s.UpdateReceivable(ctx, owner, soon.ID, storage.ReceivablePatch{IsPaid: &unpaid, PaidDate: &cleared, ExpectPaid: &paid})
	require.NoError(t, err)
	assert.False(t, got.IsPaid)
	assert.True(t, got.PaidDate.IsZero())

	require.NoError(t, s.DeleteReceivable(ctx, owner, soon.ID))
	_, err = s.GetReceivable(ctx, owner, soon.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func newGoal(userID string, target int64) core.SavingsGoal {
	return core.SavingsGoal{ID: id(), UserID: userID, Name: "Trip", TargetAmount: money(target)}
}

func testGoals(t *testing.T, s storage.Store) {
	ctx := context.Background()
	g, err := s.CreateGoal(ctx, newGoal(owner, 1000))
	require.NoError(t, err)
	assert.False(t, g.IsCompleted)
	assert.Zero(t, g.CurrentAmount.Cents)

	next, err := core.ApplyMovement(g, core.Deposit, money(800))
	require.NoError(t, err)
	_, err = s.CreateMovement(ctx, core.SavingsMovement{
		ID: id(), UserID: owner, GoalID: g.ID, Type: core.Deposit, Amount: money(800), Date: core.NewDate(2025, 1, 1),
	}, next, g.CurrentAmount)
	require.NoError(t, err)

	target := money(500)
	updated, err := s.UpdateGoal(ctx, owner, g.ID, storage.GoalPatch{TargetAmount: &target})
	require.NoError(t, err)
	assert.True(t, updated.IsCompleted, "lowering the target below the current amount completes the goal")
	assert.Equal(t, int64(800), updated.CurrentAmount.Cents)

	target = money(2000)
	updated, err = s.UpdateGoal(ctx, owner, g.ID, storage.GoalPatch{TargetAmount: &target})
	require.NoError(t, err)
	assert.False(t, updated.IsCompleted)

	_, err = s.UpdateGoal(ctx, other, g.ID, storage.GoalPatch{TargetAmount: &target})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testMovementCompareAndSet(t *testing.T, s storage.Store) {
	ctx := context.Background()
	g, err := s.CreateGoal(ctx, newGoal(owner, 1000))
	require.NoError(t, err)

	deposit := core.SavingsMovement{ID: id(), UserID: owner, GoalID: g.ID, Type: core.Deposit, Amount: money(400), Date: core.NewDate(2025, 1, 1)}
	next, err := core.ApplyMovement(g, core.Deposit, deposit.Amount)
	require.NoError(t, err)
	_, err = s.CreateMovement(ctx, deposit, next, g.CurrentAmount)
	require.NoError(t, err)

	// A writer holding a stale view of the goal must not drift it.
	stale := core.SavingsMovement{ID: id(), UserID: owner, GoalID: g.ID, Type: core.Deposit, Amount: money(100), Date: core.NewDate(2025, 1, 2)}
	staleNext, err := core.ApplyMovement(g, core.Deposit, stale.Amount)
	require.NoError(t, err)
	_, err = s.CreateMovement(ctx, stale, staleNext, g.CurrentAmount)
	require.ErrorIs(t, err, storage.ErrConflict)

	_, err = s.GetMovement(ctx, owner, stale.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "a rejected goal update must not leave a movement behind")

	stored, err := s.GetGoal(ctx, owner, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), stored.CurrentAmount.Cents)

	movements, err := s.ListMovements(ctx, storage.Filter{UserID: owner, GoalID: g.ID})
	require.NoError(t, err)
	assert.Nil(t, core.CheckGoalConsistency(stored, movements))

	reverted, err := core.RevertMovement(stored, deposit)
	require.NoError(t, err)
	require.NoError(t, s.DeleteMovement(ctx, owner, deposit.ID, reverted, stored.CurrentAmount))
	stored, err = s.GetGoal(ctx, owner, g.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.CurrentAmount.Cents)

	err = s.DeleteMovement(ctx, owner, deposit.ID, reverted, stored.CurrentAmount)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testGoalCascade(t *testing.T, s storage.Store) {
	ctx := context.Background()
	g, err := s.CreateGoal(ctx, newGoal(owner, 1000))
	require.NoError(t, err)
	keep, err := s.CreateGoal(ctx, newGoal(owner, 1000))
	require.NoError(t, err)

	for _, goal := range []core.SavingsGoal{g, keep} {
		next, err := core.ApplyMovement(goal, core.Deposit, money(10))
		require.NoError(t, err)
		_, err = s.CreateMovement(ctx, core.SavingsMovement{
			ID: id(), UserID: owner, GoalID: goal.ID, Type: core.Deposit, Amount: money(10), Date: core.NewDate(2025, 1, 1),
		}, next, goal.CurrentAmount)
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteGoal(ctx, owner, g.ID))

	all, err := s.ListMovements(ctx, storage.Filter{UserID: owner})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep.ID, all[0].GoalID)

	goals, err := s.ListGoals(ctx, storage.Filter{UserID: owner})
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.ErrorIs(t, s.DeleteGoal(ctx, owner, g.ID), storage.ErrNotFound)
}

func testLedgerSyncQueue(t *testing.T, s storage.Store) {
	ctx := context.Background()
	first, err := s.EnqueueLedgerSync(ctx, storage.LedgerSync{
		UserID: owner, Operation: storage.OpInsertEntry, AnchorKind: core.KindReceivable, AnchorID: "rc-1", TransactionID: "tx-1",
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, storage.SyncPending, first.Status)

	second, err := s.EnqueueLedgerSync(ctx, storage.LedgerSync{
		UserID: owner, Operation: storage.OpInsertEntry, AnchorKind: core.KindSavingsMovement, AnchorID: "mv-1", TransactionID: "tx-2",
	})
	require.NoError(t, err)

	batch, err := s.DequeueLedgerSyncs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, first.ID, batch[0].ID)

	require.NoError(t, s.MarkLedgerSyncProcessing(ctx, first.ID))
	assert.ErrorIs(t, s.MarkLedgerSyncProcessing(ctx, first.ID), storage.ErrConflict)

	batch, err = s.DequeueLedgerSyncs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1, "processing rows are not handed out again")

	require.NoError(t, s.IncrementLedgerSyncAttempt(ctx, first.ID, "timeout"))
	batch, err = s.DequeueLedgerSyncs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, 1, batch[0].Attempts)
	assert.Equal(t, "timeout", batch[0].LastError)

	// Re-enqueueing the same anchor resets its row instead of adding one.
	again, err := s.EnqueueLedgerSync(ctx, storage.LedgerSync{
		UserID: owner, Operation: storage.OpDeleteEntry, AnchorKind: core.KindReceivable, AnchorID: "rc-1", TransactionID: "tx-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, storage.OpDeleteEntry, again.Operation)
	assert.Zero(t, again.Attempts)

	found, err := s.FindLedgerSync(ctx, core.KindReceivable, "rc-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, "tx-1", found.TransactionID)
	_, err = s.FindLedgerSync(ctx, core.KindReceivable, "rc-404")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.FailLedgerSync(ctx, second.ID, "boom"))
	require.NoError(t, s.MarkLedgerSyncProcessing(ctx, first.ID))
	require.NoError(t, s.CompleteLedgerSync(ctx, first.ID))

	stats, err := s.LedgerSyncStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.LedgerSyncStats{Completed: 1, Failed: 1}, stats)

	n, err := s.RetryFailedLedgerSyncs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	removed, err := s.CleanupCompletedLedgerSyncs(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	require.NoError(t, s.MarkLedgerSyncProcessing(ctx, second.ID))
	require.NoError(t, s.ResetStaleLedgerSyncs(ctx))
	stats, err = s.LedgerSyncStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.LedgerSyncStats{Pending: 1}, stats)

	err = s.CompleteLedgerSync(ctx, 424242)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func testFlaggedAnchors(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rc := core.AccountReceivable{ID: id(), UserID: owner, DebtorName: "Ana", Amount: money(200), LedgerTransactionID: "tx-rc"}
	_, err := s.CreateReceivable(ctx, rc)
	require.NoError(t, err)

	anchors, err := s.ListFlaggedAnchors(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, anchors)

	require.NoError(t, s.SetLedgerSyncPending(ctx, core.KindReceivable, owner, rc.ID, true))
	anchors, err = s.ListFlaggedAnchors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.Equal(t, storage.AnchorRef{Kind: core.KindReceivable, ID: rc.ID, UserID: owner, LedgerTransactionID: "tx-rc"}, anchors[0])

	require.NoError(t, s.SetLedgerSyncPending(ctx, core.KindReceivable, owner, rc.ID, false))
	anchors, err = s.ListFlaggedAnchors(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, anchors)

	assert.ErrorIs(t, s.SetLedgerSyncPending(ctx, core.KindReceivable, other, rc.ID, true), storage.ErrNotFound)
	assert.Error(t, s.SetLedgerSyncPending(ctx, core.KindTransaction, owner, rc.ID, true))
}
