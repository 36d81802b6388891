package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"

	"github.com/stretchr/testify/require"
)

const owner = "user-1"

var (
	errInjected = errors.New("injected store failure")
	fixedNow    = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
)

// faultyStore wraps a store and fails selected calls. A counter of n fails
// the next n calls; -1 fails every call.
type faultyStore struct {
	storage.Store

	mu                   sync.Mutex
	failCreateTx         int
	failDeleteTx         int
	failUpdateReceivable int
	createTxCalls        int
	onCreateTx           func()
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.New()}
}

func (f *faultyStore) take(n *int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *n == 0 {
		return false
	}
	if *n > 0 {
		*n--
	}
	return true
}

func (f *faultyStore) set(n *int, v int) {
	f.mu.Lock()
	*n = v
	f.mu.Unlock()
}

func (f *faultyStore) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	f.mu.Lock()
	f.createTxCalls++
	hook := f.onCreateTx
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.take(&f.failCreateTx) {
		return core.Transaction{}, storage.Wrap(storage.OpCreate, core.KindTransaction, errInjected)
	}
	return f.Store.CreateTransaction(ctx, tx)
}

func (f *faultyStore) DeleteTransaction(ctx context.Context, userID, id string) error {
	if f.take(&f.failDeleteTx) {
		return storage.Wrap(storage.OpDelete, core.KindTransaction, errInjected)
	}
	return f.Store.DeleteTransaction(ctx, userID, id)
}

func (f *faultyStore) UpdateReceivable(ctx context.Context, userID, id string, p storage.ReceivablePatch) (core.AccountReceivable, error) {
	if f.take(&f.failUpdateReceivable) {
		return core.AccountReceivable{}, storage.Wrap(storage.OpUpdate, core.KindReceivable, errInjected)
	}
	return f.Store.UpdateReceivable(ctx, userID, id, p)
}

// recordingNotifier keeps every signal it receives.
type recordingNotifier struct {
	mu     sync.Mutex
	events []BalanceEvent
	syncs  []int64
	err    error
}

func (n *recordingNotifier) BalanceChanged(_ context.Context, e BalanceEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) LedgerSyncRequested(_ context.Context, _ string, syncID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.syncs = append(n.syncs, syncID)
	return n.err
}

func (n *recordingNotifier) last() BalanceEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return BalanceEvent{}
	}
	return n.events[len(n.events)-1]
}

func testConfig() Config {
	return Config{
		StoreTimeout:         time.Second,
		DerivedWriteAttempts: 3,
		DerivedWriteBackoff:  time.Millisecond,
	}
}

func newTestService(t *testing.T, store storage.Store, notifier Notifier, cfg Config) *LifecycleService {
	t.Helper()
	s := NewLifecycleService(store, notifier, cfg)
	s.now = func() time.Time { return fixedNow }
	return s
}

func cents(n int64) core.Money { return core.Money{Cents: n} }

func balanceOf(t *testing.T, store storage.Store) core.Money {
	t.Helper()
	txns, err := store.ListTransactions(context.Background(), storage.Filter{UserID: owner})
	require.NoError(t, err)
	return core.Summarize(txns, core.Money{}).Balance
}

func transactionsOf(t *testing.T, store storage.Store) []core.Transaction {
	t.Helper()
	txns, err := store.ListTransactions(context.Background(), storage.Filter{UserID: owner})
	require.NoError(t, err)
	return txns
}

func createReceivable(t *testing.T, s *LifecycleService, amount int64) core.AccountReceivable {
	t.Helper()
	rc, err := s.CreateReceivable(context.Background(), core.AccountReceivable{
		UserID:     owner,
		DebtorName: "Ana",
		Amount:     cents(amount),
		Reason:     "dinner",
	})
	require.NoError(t, err)
	return rc
}

func createGoal(t *testing.T, s *LifecycleService, target int64) core.SavingsGoal {
	t.Helper()
	g, err := s.CreateGoal(context.Background(), core.SavingsGoal{
		UserID:       owner,
		Name:         "Trip",
		TargetAmount: cents(target),
	})
	require.NoError(t, err)
	return g
}

func createExpense(t *testing.T, s *LifecycleService, amount int64, dueDay int) core.FixedExpense {
	t.Helper()
	e, err := s.CreateFixedExpense(context.Background(), core.FixedExpense{
		UserID:   owner,
		Name:     "Rent",
		Amount:   cents(amount),
		Category: "Housing",
		DueDay:   dueDay,
		IsActive: true,
	})
	require.NoError(t, err)
	return e
}
