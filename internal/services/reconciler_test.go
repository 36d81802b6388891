package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		MaxRetries:   3,
		CleanupAge:   time.Hour,
		SweepLimit:   100,
		CallTimeout:  time.Second,
	}
}

func TestLedgerReconciler_HealsFailedCollect(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	store.set(&store.failCreateTx, -1)
	s := newTestService(t, store, nil, testConfig())
	rc := createReceivable(t, s, 200_00)

	out, err := s.CollectReceivable(ctx, owner, rc.ID, core.Date{})
	require.True(t, IsPartialFailure(err))

	store.set(&store.failCreateTx, 0)
	notifier := &recordingNotifier{}
	r := NewLedgerReconciler(store, notifier, testReconcilerConfig())

	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	txns := transactionsOf(t, store)
	require.Len(t, txns, 1)
	assert.Equal(t, out.Transaction.ID, txns[0].ID)
	assert.Equal(t, cents(200_00), balanceOf(t, store))

	got, err := s.GetReceivable(ctx, owner, rc.ID)
	require.NoError(t, err)
	assert.False(t, got.LedgerSyncPending)

	row, err := store.FindLedgerSync(ctx, core.KindReceivable, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.SyncCompleted, row.Status)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, rc.ID, notifier.events[0].AnchorID)

	// A second pass has nothing left to do.
	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, transactionsOf(t, store), 1)
}

func TestLedgerReconciler_HealsFailedUncollect(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	s := newTestService(t, store, nil, testConfig())
	rc := createReceivable(t, s, 200_00)

	_, err := s.CollectReceivable(ctx, owner, rc.ID, core.Date{})
	require.NoError(t, err)

	store.set(&store.failDeleteTx, -1)
	out, err := s.UncollectReceivable(ctx, owner, rc.ID)
	require.True(t, IsPartialFailure(err))
	assert.Equal(t, StateDerivedFailed, out.State)
	assert.Len(t, transactionsOf(t, store), 1, "the entry survives the failed retraction")

	store.set(&store.failDeleteTx, 0)
	r := NewLedgerReconciler(store, nil, testReconcilerConfig())
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, transactionsOf(t, store))

	got, err := s.GetReceivable(ctx, owner, rc.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPaid)
	assert.False(t, got.LedgerSyncPending)
	assert.Empty(t, got.LedgerTransactionID)

	_, err = s.CollectReceivable(ctx, owner, rc.ID, core.Date{})
	require.NoError(t, err)
}

func TestLedgerReconciler_HealsFailedDeposit(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	store.set(&store.failCreateTx, -1)
	s := newTestService(t, store, nil, testConfig())
	g := createGoal(t, s, 1000_00)

	out, err := s.Deposit(ctx, MovementRequest{UserID: owner, GoalID: g.ID, Amount: cents(400_00)})
	require.True(t, IsPartialFailure(err))

	got, err := s.GetGoal(ctx, owner, g.ID)
	require.NoError(t, err)
	assert.Equal(t, cents(400_00), got.CurrentAmount)
	assert.True(t, balanceOf(t, store).IsZero())

	store.set(&store.failCreateTx, 0)
	r := NewLedgerReconciler(store, nil, testReconcilerConfig())
	_, err = r.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, cents(-400_00), balanceOf(t, store))
	m, err := store.GetMovement(ctx, owner, out.AnchorID)
	require.NoError(t, err)
	assert.False(t, m.LedgerSyncPending)
}

func TestLedgerReconciler_HealsFailedPayment(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	s := newTestService(t, store, nil, testConfig())
	e := createExpense(t, s, 50_00, 5)
	march := core.Period{Year: 2025, Month: 3}

	store.set(&store.failCreateTx, -1)
	_, err := s.PayFixedExpense(ctx, owner, e.ID, march, core.Date{})
	require.True(t, IsPartialFailure(err))

	// The payment exists, so paying again is still rejected.
	_, err = s.PayFixedExpense(ctx, owner, e.ID, march, core.Date{})
	require.ErrorIs(t, err, core.ErrAlreadyPaid)

	store.set(&store.failCreateTx, 0)
	r := NewLedgerReconciler(store, nil, testReconcilerConfig())
	_, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, cents(-50_00), balanceOf(t, store))
}

func TestLedgerReconciler_SweepQueuesFlaggedAnchors(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()

	// A crash after the anchor write leaves a flagged anchor without a row.
	_, err := store.CreateReceivable(ctx, core.AccountReceivable{
		ID:                  "rc-1",
		UserID:              owner,
		DebtorName:          "Ana",
		Amount:              cents(80_00),
		IsPaid:              true,
		PaidDate:            core.NewDate(2025, 3, 2),
		LedgerTransactionID: "tx-1",
		LedgerSyncPending:   true,
	})
	require.NoError(t, err)

	r := NewLedgerReconciler(store, nil, testReconcilerConfig())
	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "an open row is not queued twice")

	done, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	tx, err := store.GetTransaction(ctx, owner, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, cents(80_00), tx.Amount)
	assert.Equal(t, core.NewDate(2025, 3, 2), tx.Date)

	flagged, err := store.ListFlaggedAnchors(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, flagged)
}

func TestLedgerReconciler_OrphanedRows(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	s := newTestService(t, store, nil, testConfig())

	kept, err := s.CreateTransaction(ctx, core.Transaction{UserID: owner, Type: core.Expense, Amount: cents(5_00), Category: "Food"})
	require.NoError(t, err)
	retracted, err := s.CreateTransaction(ctx, core.Transaction{UserID: owner, Type: core.Expense, Amount: cents(7_00), Category: "Food"})
	require.NoError(t, err)

	_, err = store.EnqueueLedgerSync(ctx, storage.LedgerSync{
		UserID: owner, Operation: storage.OpInsertEntry,
		AnchorKind: core.KindSavingsMovement, AnchorID: "gone-1", TransactionID: kept.ID,
	})
	require.NoError(t, err)
	_, err = store.EnqueueLedgerSync(ctx, storage.LedgerSync{
		UserID: owner, Operation: storage.OpDeleteEntry,
		AnchorKind: core.KindSavingsMovement, AnchorID: "gone-2", TransactionID: retracted.ID,
	})
	require.NoError(t, err)

	r := NewLedgerReconciler(store, nil, testReconcilerConfig())
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	txns := transactionsOf(t, store)
	require.Len(t, txns, 1)
	assert.Equal(t, kept.ID, txns[0].ID)
}

func TestLedgerReconciler_MaxRetries(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	store.set(&store.failCreateTx, -1)
	s := newTestService(t, store, nil, testConfig())
	rc := createReceivable(t, s, 200_00)
	_, err := s.CollectReceivable(ctx, owner, rc.ID, core.Date{})
	require.True(t, IsPartialFailure(err))

	cfg := testReconcilerConfig()
	cfg.MaxRetries = 2
	r := NewLedgerReconciler(store, nil, cfg)

	for i := 0; i < 2; i++ {
		n, err := r.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	row, err := store.FindLedgerSync(ctx, core.KindReceivable, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.SyncFailed, row.Status)
	assert.Equal(t, 2, row.Attempts)
	assert.Contains(t, row.LastError, errInjected.Error())

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)

	// A failed row is left alone, even though the anchor is still flagged.
	calls := store.createTxCalls
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, calls, store.createTxCalls)

	reset, err := r.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	store.set(&store.failCreateTx, 0)
	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, cents(200_00), balanceOf(t, store))
}

func TestLedgerReconciler_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	row, err := store.EnqueueLedgerSync(ctx, storage.LedgerSync{
		UserID: owner, Operation: storage.OpInsertEntry,
		AnchorKind: core.KindReceivable, AnchorID: "rc-1",
	})
	require.NoError(t, err)
	require.NoError(t, store.CompleteLedgerSync(ctx, row.ID))

	cfg := testReconcilerConfig()
	r := NewLedgerReconciler(store, nil, cfg)
	n, err := r.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "recent rows are kept")

	cfg.CleanupAge = -time.Minute
	r = NewLedgerReconciler(store, nil, cfg)
	n, err = r.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLedgerReconciler_StartStop(t *testing.T) {
	store := newFaultyStore()
	r := NewLedgerReconciler(store, nil, testReconcilerConfig())
	ctx := context.Background()

	assert.False(t, r.IsRunning())
	require.NoError(t, r.Start(ctx))
	assert.True(t, r.IsRunning())
	assert.Error(t, r.Start(ctx), "starting twice fails")

	r.Trigger()
	r.Trigger()

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, r.Stop(stopCtx))
	assert.False(t, r.IsRunning())

	// Stopping a stopped reconciler is a no-op.
	require.NoError(t, r.Stop(stopCtx))
}

func TestLedgerReconciler_TriggerProcessesQueue(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	store.set(&store.failCreateTx, -1)
	s := newTestService(t, store, nil, testConfig())
	rc := createReceivable(t, s, 200_00)
	_, err := s.CollectReceivable(ctx, owner, rc.ID, core.Date{})
	require.True(t, IsPartialFailure(err))
	store.set(&store.failCreateTx, 0)

	cfg := testReconcilerConfig()
	cfg.PollInterval = time.Hour
	r := NewLedgerReconciler(store, nil, cfg)
	require.NoError(t, r.Start(ctx))
	defer r.Stop(ctx)
	r.Trigger()

	require.Eventually(t, func() bool {
		got, err := store.GetReceivable(ctx, owner, rc.ID)
		return err == nil && !got.LedgerSyncPending
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, cents(200_00), balanceOf(t, store))
}

// undoDuringReconcile runs undo once, from inside the reconciler's ledger
// write, and returns the error undo produced.
func undoDuringReconcile(t *testing.T, store *faultyStore, r *LedgerReconciler, undo func() error) error {
	t.Helper()
	var (
		once    sync.Once
		undoErr error
	)
	store.mu.Lock()
	store.onCreateTx = func() { once.Do(func() { undoErr = undo() }) }
	store.mu.Unlock()
	defer func() {
		store.mu.Lock()
		store.onCreateTx = nil
		store.mu.Unlock()
	}()

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	return undoErr
}

func TestLedgerReconciler_UncollectWaitsForPendingIncome(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	store.set(&store.failCreateTx, -1)
	s := newTestService(t, store, nil, testConfig())
	rc := createReceivable(t, s, 200_00)
	_, err := s.CollectReceivable(ctx, owner, rc.ID, core.Date{})
	require.True(t, IsPartialFailure(err))
	store.set(&store.failCreateTx, 0)

	r := NewLedgerReconciler(store, nil, testReconcilerConfig())
	err = undoDuringReconcile(t, store, r, func() error {
		_, err := s.UncollectReceivable(ctx, owner, rc.ID)
		return err
	})
	require.ErrorIs(t, err, core.ErrLedgerSyncPending)

	got, err := s.GetReceivable(ctx, owner, rc.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	assert.False(t, got.LedgerSyncPending)
	assert.Equal(t, cents(200_00), balanceOf(t, store))

	_, err = s.UncollectReceivable(ctx, owner, rc.ID)
	require.NoError(t, err)
	assert.Empty(t, transactionsOf(t, store))
	assert.True(t, balanceOf(t, store).IsZero())
}

func TestLedgerReconciler_UnpayWaitsForPendingExpense(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	s := newTestService(t, store, nil, testConfig())
	e := createExpense(t, s, 50_00, 5)
	march := core.Period{Year: 2025, Month: 3}
	store.set(&store.failCreateTx, -1)
	_, err := s.PayFixedExpense(ctx, owner, e.ID, march, core.Date{})
	require.True(t, IsPartialFailure(err))
	store.set(&store.failCreateTx, 0)

	r := NewLedgerReconciler(store, nil, testReconcilerConfig())
	err = undoDuringReconcile(t, store, r, func() error {
		_, err := s.UnpayFixedExpense(ctx, owner, e.ID, march)
		return err
	})
	require.ErrorIs(t, err, core.ErrLedgerSyncPending)
	assert.Equal(t, cents(-50_00), balanceOf(t, store))

	_, err = s.UnpayFixedExpense(ctx, owner, e.ID, march)
	require.NoError(t, err)
	assert.Empty(t, transactionsOf(t, store))
}

func TestLedgerReconciler_DeleteMovementWaitsForPendingEntry(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	s := newTestService(t, store, nil, testConfig())
	g := createGoal(t, s, 1000_00)
	store.set(&store.failCreateTx, -1)
	out, err := s.Deposit(ctx, MovementRequest{UserID: owner, GoalID: g.ID, Amount: cents(400_00)})
	require.True(t, IsPartialFailure(err))
	store.set(&store.failCreateTx, 0)

	r := NewLedgerReconciler(store, nil, testReconcilerConfig())
	err = undoDuringReconcile(t, store, r, func() error {
		_, err := s.DeleteMovement(ctx, owner, out.AnchorID)
		return err
	})
	require.ErrorIs(t, err, core.ErrLedgerSyncPending)
	assert.Equal(t, cents(-400_00), balanceOf(t, store))

	_, err = s.DeleteMovement(ctx, owner, out.AnchorID)
	require.NoError(t, err)
	assert.Empty(t, transactionsOf(t, store))
	got, err := s.GetGoal(ctx, owner, g.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.IsZero())
}

func TestLedgerReconciler_SkipsSettledAnchors(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	s := newTestService(t, store, nil, testConfig())
	e := createExpense(t, s, 50_00, 5)
	march := core.Period{Year: 2025, Month: 3}
	out, err := s.PayFixedExpense(ctx, owner, e.ID, march, core.Date{})
	require.NoError(t, err)

	// A stale row outlives the payment's successful settle.
	_, err = store.EnqueueLedgerSync(ctx, storage.LedgerSync{
		UserID: owner, Operation: storage.OpInsertEntry,
		AnchorKind: core.KindFixedExpensePayment, AnchorID: out.AnchorID, TransactionID: out.Transaction.ID,
	})
	require.NoError(t, err)

	calls := store.createTxCalls
	r := NewLedgerReconciler(store, nil, testReconcilerConfig())
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, calls, store.createTxCalls, "a settled anchor needs no ledger write")
	assert.Len(t, transactionsOf(t, store), 1)

	_, err = s.UnpayFixedExpense(ctx, owner, e.ID, march)
	require.NoError(t, err)
	assert.Empty(t, transactionsOf(t, store))
}

func TestLedgerReconciler_PublishesAllocatedTransactionID(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	_, err := store.CreateReceivable(ctx, core.AccountReceivable{
		ID:                "rc-2",
		UserID:            owner,
		DebtorName:        "Luca",
		Amount:            cents(30_00),
		IsPaid:            true,
		PaidDate:          core.NewDate(2025, 3, 4),
		LedgerSyncPending: true,
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	r := NewLedgerReconciler(store, notifier, testReconcilerConfig())
	_, err = r.RunOnce(ctx)
	require.NoError(t, err)

	rc, err := store.GetReceivable(ctx, owner, "rc-2")
	require.NoError(t, err)
	require.NotEmpty(t, rc.LedgerTransactionID)

	e := notifier.last()
	assert.Equal(t, rc.LedgerTransactionID, e.TransactionID)
	assert.True(t, e.Recorded)
	_, err = store.GetTransaction(ctx, owner, e.TransactionID)
	require.NoError(t, err)
}

func TestLedgerReconciler_PublishesRetraction(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	s := newTestService(t, store, nil, testConfig())
	rc := createReceivable(t, s, 200_00)
	out, err := s.CollectReceivable(ctx, owner, rc.ID, core.Date{})
	require.NoError(t, err)
	store.set(&store.failDeleteTx, -1)
	_, err = s.UncollectReceivable(ctx, owner, rc.ID)
	require.True(t, IsPartialFailure(err))
	store.set(&store.failDeleteTx, 0)

	notifier := &recordingNotifier{}
	r := NewLedgerReconciler(store, notifier, testReconcilerConfig())
	_, err = r.RunOnce(ctx)
	require.NoError(t, err)

	e := notifier.last()
	assert.Equal(t, out.Transaction.ID, e.TransactionID)
	assert.False(t, e.Recorded)
}
