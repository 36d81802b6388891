// Package memory implements storage.Store in process memory. It enforces the
// same ownership, uniqueness, ordering, and cascade rules as the SQL store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type record[T any] struct {
	seq int64
	val T
}

type Store struct {
	mu  sync.Mutex
	seq int64
	now func() time.Time

	transactions map[string]record[core.Transaction]
	expenses     map[string]record[core.FixedExpense]
	payments     map[string]record[core.FixedExpensePayment]
	receivables  map[string]record[core.AccountReceivable]
	goals        map[string]record[core.SavingsGoal]
	movements    map[string]record[core.SavingsMovement]
	syncs        map[int64]*storage.LedgerSync
	syncSeq      int64
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:          func() time.Time { return time.Now().UTC() },
		transactions: make(map[string]record[core.Transaction]),
		expenses:     make(map[string]record[core.FixedExpense]),
		payments:     make(map[string]record[core.FixedExpensePayment]),
		receivables:  make(map[string]record[core.AccountReceivable]),
		goals:        make(map[string]record[core.SavingsGoal]),
		movements:    make(map[string]record[core.SavingsMovement]),
		syncs:        make(map[int64]*storage.LedgerSync),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

func storeErr(op string, kind core.Kind, err error) error {
	return &storage.StoreError{Op: op, Kind: kind, Err: err}
}

// ctxErr lets a cancelled context fail the call the way a network store would.
func ctxErr(ctx context.Context, op string, kind core.Kind) error {
	if err := ctx.Err(); err != nil {
		return storeErr(op, kind, err)
	}
	return nil
}

func guard(ctx context.Context, op string, kind core.Kind, userID string) error {
	if err := storage.RequireOwner(op, kind, userID); err != nil {
		return err
	}
	return ctxErr(ctx, op, kind)
}

// sortedBy returns the values of m owned by userID that pass keep, ordered by
// less with the insertion sequence (newest first) breaking ties.
func sortedBy[T any](m map[string]record[T], owner func(T) string, userID string, keep func(T) bool, less func(a, b T) int, limit int) []T {
	recs := make([]record[T], 0, len(m))
	for _, r := range m {
		if owner(r.val) != userID || (keep != nil && !keep(r.val)) {
			continue
		}
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		if c := less(recs[i].val, recs[j].val); c != 0 {
			return c < 0
		}
		return recs[i].seq > recs[j].seq
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]T, len(recs))
	for i, r := range recs {
		out[i] = r.val
	}
	return out
}

func cmpDateDesc(a, b core.Date) int {
	switch {
	case a.After(b):
		return -1
	case a.Before(b):
		return 1
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Transactions

func (s *Store) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := guard(ctx, storage.OpCreate, core.KindTransaction, tx.UserID); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[tx.ID]; ok {
		return core.Transaction{}, storeErr(storage.OpCreate, core.KindTransaction, fmt.Errorf("%w: id %s", storage.ErrConflict, tx.ID))
	}
	if tx.SourceID != "" {
		for _, r := range s.transactions {
			if r.val.SourceKind == tx.SourceKind && r.val.SourceID == tx.SourceID {
				return core.Transaction{}, storeErr(storage.OpCreate, core.KindTransaction,
					fmt.Errorf("%w: source %s/%s", storage.ErrConflict, tx.SourceKind, tx.SourceID))
			}
		}
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now()
	}
	s.transactions[tx.ID] = record[core.Transaction]{seq: s.next(), val: tx}
	return tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	if err := guard(ctx, storage.OpGet, core.KindTransaction, userID); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.transactions[id]
	if !ok || r.val.UserID != userID {
		return core.Transaction{}, storeErr(storage.OpGet, core.KindTransaction, storage.ErrNotFound)
	}
	return r.val, nil
}

func (s *Store) ListTransactions(ctx context.Context, f storage.Filter) ([]core.Transaction, error) {
	if err := guard(ctx, storage.OpList, core.KindTransaction, f.UserID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := func(tx core.Transaction) bool {
		if f.Type != "" && tx.Type != f.Type {
			return false
		}
		if !f.From.IsZero() && tx.Date.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && tx.Date.After(f.To) {
			return false
		}
		return true
	}
	return sortedBy(s.transactions, func(tx core.Transaction) string { return tx.UserID }, f.UserID, keep,
		func(a, b core.Transaction) int { return cmpDateDesc(a.Date, b.Date) }, f.Limit), nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id string) error {
	if err := guard(ctx, storage.OpDelete, core.KindTransaction, userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.transactions[id]
	if !ok || r.val.UserID != userID {
		return storeErr(storage.OpDelete, core.KindTransaction, storage.ErrNotFound)
	}
	delete(s.transactions, id)
	return nil
}

// Fixed expenses and payments

func (s *Store) CreateFixedExpense(ctx context.Context, e core.FixedExpense) (core.FixedExpense, error) {
	if err := guard(ctx, storage.OpCreate, core.KindFixedExpense, e.UserID); err != nil {
		return core.FixedExpense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[e.ID]; ok {
		return core.FixedExpense{}, storeErr(storage.OpCreate, core.KindFixedExpense, storage.ErrConflict)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.expenses[e.ID] = record[core.FixedExpense]{seq: s.next(), val: e}
	return e, nil
}

func (s *Store) GetFixedExpense(ctx context.Context, userID, id string) (core.FixedExpense, error) {
	if err := guard(ctx, storage.OpGet, core.KindFixedExpense, userID); err != nil {
		return core.FixedExpense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.expenses[id]
	if !ok || r.val.UserID != userID {
		return core.FixedExpense{}, storeErr(storage.OpGet, core.KindFixedExpense, storage.ErrNotFound)
	}
	return r.val, nil
}

func (s *Store) ListFixedExpenses(ctx context.Context, f storage.Filter) ([]core.FixedExpense, error) {
	if err := guard(ctx, storage.OpList, core.KindFixedExpense, f.UserID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var keep func(core.FixedExpense) bool
	if f.ActiveOnly {
		keep = func(e core.FixedExpense) bool { return e.IsActive }
	}
	return sortedBy(s.expenses, func(e core.FixedExpense) string { return e.UserID }, f.UserID, keep,
		func(a, b core.FixedExpense) int {
			if c := cmpInt(a.DueDay, b.DueDay); c != 0 {
				return c
			}
			switch {
			case a.Name < b.Name:
				return -1
			case a.Name > b.Name:
				return 1
			}
			return 0
		}, f.Limit), nil
}

func (s *Store) UpdateFixedExpense(ctx context.Context, userID, id string, p storage.FixedExpensePatch) (core.FixedExpense, error) {
	if err := guard(ctx, storage.OpUpdate, core.KindFixedExpense, userID); err != nil {
		return core.FixedExpense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.expenses[id]
	if !ok || r.val.UserID != userID {
		return core.FixedExpense{}, storeErr(storage.OpUpdate, core.KindFixedExpense, storage.ErrNotFound)
	}
	e := r.val
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.DueDay != nil {
		e.DueDay = *p.DueDay
	}
	if p.IsActive != nil {
		e.IsActive = *p.IsActive
	}
	r.val = e
	s.expenses[id] = r
	return e, nil
}

func (s *Store) DeleteFixedExpense(ctx context.Context, userID, id string) error {
	if err := guard(ctx, storage.OpDelete, core.KindFixedExpense, userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.expenses[id]
	if !ok || r.val.UserID != userID {
		return storeErr(storage.OpDelete, core.KindFixedExpense, storage.ErrNotFound)
	}
	for pid, p := range s.payments {
		if p.val.FixedExpenseID == id && p.val.UserID == userID {
			delete(s.payments, pid)
		}
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) CreatePayment(ctx context.Context, p core.FixedExpensePayment) (core.FixedExpensePayment, error) {
	if err := guard(ctx, storage.OpCreate, core.KindFixedExpensePayment, p.UserID); err != nil {
		return core.FixedExpensePayment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; ok {
		return core.FixedExpensePayment{}, storeErr(storage.OpCreate, core.KindFixedExpensePayment, storage.ErrConflict)
	}
	for _, r := range s.payments {
		if r.val.FixedExpenseID == p.FixedExpenseID && r.val.Period == p.Period {
			return core.FixedExpensePayment{}, storeErr(storage.OpCreate, core.KindFixedExpensePayment,
				fmt.Errorf("%w: %s already paid for %s", storage.ErrConflict, p.FixedExpenseID, p.Period))
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.payments[p.ID] = record[core.FixedExpensePayment]{seq: s.next(), val: p}
	return p, nil
}

func (s *Store) GetPayment(ctx context.Context, userID, id string) (core.FixedExpensePayment, error) {
	if err := guard(ctx, storage.OpGet, core.KindFixedExpensePayment, userID); err != nil {
		return core.FixedExpensePayment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.payments[id]
	if !ok || r.val.UserID != userID {
		return core.FixedExpensePayment{}, storeErr(storage.OpGet, core.KindFixedExpensePayment, storage.ErrNotFound)
	}
	return r.val, nil
}

func (s *Store) FindPayment(ctx context.Context, userID, fixedExpenseID string, period core.Period) (core.FixedExpensePayment, error) {
	if err := guard(ctx, storage.OpGet, core.KindFixedExpensePayment, userID); err != nil {
		return core.FixedExpensePayment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.payments {
		if r.val.UserID == userID && r.val.FixedExpenseID == fixedExpenseID && r.val.Period == period {
			return r.val, nil
		}
	}
	return core.FixedExpensePayment{}, storeErr(storage.OpGet, core.KindFixedExpensePayment, storage.ErrNotFound)
}

func (s *Store) ListPayments(ctx context.Context, f storage.Filter) ([]core.FixedExpensePayment, error) {
	if err := guard(ctx, storage.OpList, core.KindFixedExpensePayment, f.UserID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := func(p core.FixedExpensePayment) bool {
		if f.FixedExpenseID != "" && p.FixedExpenseID != f.FixedExpenseID {
			return false
		}
		if f.Period.Year != 0 && p.Period.Year != f.Period.Year {
			return false
		}
		if f.Period.Month != 0 && p.Period.Month != f.Period.Month {
			return false
		}
		return true
	}
	return sortedBy(s.payments, func(p core.FixedExpensePayment) string { return p.UserID }, f.UserID, keep,
		func(a, b core.FixedExpensePayment) int {
			if c := cmpInt(b.Period.Year, a.Period.Year); c != 0 {
				return c
			}
			return cmpInt(b.Period.Month, a.Period.Month)
		}, f.Limit), nil
}

func (s *Store) DeletePayment(ctx context.Context, userID, id string) error {
	if err := guard(ctx, storage.OpDelete, core.KindFixedExpensePayment, userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.payments[id]
	if !ok || r.val.UserID != userID {
		return storeErr(storage.OpDelete, core.KindFixedExpensePayment, storage.ErrNotFound)
	}
	delete(s.payments, id)
	return nil
}

// Receivables

func (s *Store) CreateReceivable(ctx context.Context, rc core.AccountReceivable) (core.AccountReceivable, error) {
	if err := guard(ctx, storage.OpCreate, core.KindReceivable, rc.UserID); err != nil {
		return core.AccountReceivable{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receivables[rc.ID]; ok {
		return core.AccountReceivable{}, storeErr(storage.OpCreate, core.KindReceivable, storage.ErrConflict)
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = s.now()
	}
	s.receivables[rc.ID] = record[core.AccountReceivable]{seq: s.next(), val: rc}
	return rc, nil
}

func (s *Store) GetReceivable(ctx context.Context, userID, id string) (core.AccountReceivable, error) {
	if err := guard(ctx, storage.OpGet, core.KindReceivable, userID); err != nil {
		return core.AccountReceivable{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receivables[id]
	if !ok || r.val.UserID != userID {
		return core.AccountReceivable{}, storeErr(storage.OpGet, core.KindReceivable, storage.ErrNotFound)
	}
	return r.val, nil
}

func (s *Store) ListReceivables(ctx context.Context, f storage.Filter) ([]core.AccountReceivable, error) {
	if err := guard(ctx, storage.OpList, core.KindReceivable, f.UserID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedBy(s.receivables, func(rc core.AccountReceivable) string { return rc.UserID }, f.UserID, nil,
		func(a, b core.AccountReceivable) int {
			switch {
			case a.ExpectedDate.IsZero() && b.ExpectedDate.IsZero():
				return 0
			case a.ExpectedDate.IsZero():
				return 1
			case b.ExpectedDate.IsZero():
				return -1
			}
			return -cmpDateDesc(a.ExpectedDate, b.ExpectedDate)
		}, f.Limit), nil
}

func (s *Store) UpdateReceivable(ctx context.Context, userID, id string, p storage.ReceivablePatch) (core.AccountReceivable, error) {
	if err := guard(ctx, storage.OpUpdate, core.KindReceivable, userID); err != nil {
		return core.AccountReceivable{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receivables[id]
	if !ok || r.val.UserID != userID {
		return core.AccountReceivable{}, storeErr(storage.OpUpdate, core.KindReceivable, storage.ErrNotFound)
	}
	rc := r.val
	if p.ExpectPaid != nil && rc.IsPaid != *p.ExpectPaid {
		return core.AccountReceivable{}, storeErr(storage.OpUpdate, core.KindReceivable, storage.ErrConflict)
	}
	if p.DebtorName != nil {
		rc.DebtorName = *p.DebtorName
	}
	if p.Amount != nil {
		rc.Amount = *p.Amount
	}
	if p.Reason != nil {
		rc.Reason = *p.Reason
	}
	if p.ExpectedDate != nil {
		rc.ExpectedDate = *p.ExpectedDate
	}
	if p.IsPaid != nil {
		rc.IsPaid = *p.IsPaid
	}
	if p.PaidDate != nil {
		rc.PaidDate = *p.PaidDate
	}
	if p.LedgerTransactionID != nil {
		rc.LedgerTransactionID = *p.LedgerTransactionID
	}
	if p.LedgerSyncPending != nil {
		rc.LedgerSyncPending = *p.LedgerSyncPending
	}
	r.val = rc
	s.receivables[id] = r
	return rc, nil
}

func (s *Store) DeleteReceivable(ctx context.Context, userID, id string) error {
	if err := guard(ctx, storage.OpDelete, core.KindReceivable, userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receivables[id]
	if !ok || r.val.UserID != userID {
		return storeErr(storage.OpDelete, core.KindReceivable, storage.ErrNotFound)
	}
	delete(s.receivables, id)
	return nil
}

// Savings goals and movements

func (s *Store) CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := guard(ctx, storage.OpCreate, core.KindSavingsGoal, g.UserID); err != nil {
		return core.SavingsGoal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; ok {
		return core.SavingsGoal{}, storeErr(storage.OpCreate, core.KindSavingsGoal, storage.ErrConflict)
	}
	now := s.now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	g = core.Recompute(g)
	s.goals[g.ID] = record[core.SavingsGoal]{seq: s.next(), val: g}
	return g, nil
}

func (s *Store) GetGoal(ctx context.Context, userID, id string) (core.SavingsGoal, error) {
	if err := guard(ctx, storage.OpGet, core.KindSavingsGoal, userID); err != nil {
		return core.SavingsGoal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.goals[id]
	if !ok || r.val.UserID != userID {
		return core.SavingsGoal{}, storeErr(storage.OpGet, core.KindSavingsGoal, storage.ErrNotFound)
	}
	return r.val, nil
}

func (s *Store) ListGoals(ctx context.Context, f storage.Filter) ([]core.SavingsGoal, error) {
	if err := guard(ctx, storage.OpList, core.KindSavingsGoal, f.UserID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedBy(s.goals, func(g core.SavingsGoal) string { return g.UserID }, f.UserID, nil,
		func(a, b core.SavingsGoal) int { return 0 }, f.Limit), nil
}

func (s *Store) UpdateGoal(ctx context.Context, userID, id string, p storage.GoalPatch) (core.SavingsGoal, error) {
	if err := guard(ctx, storage.OpUpdate, core.KindSavingsGoal, userID); err != nil {
		return core.SavingsGoal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.goals[id]
	if !ok || r.val.UserID != userID {
		return core.SavingsGoal{}, storeErr(storage.OpUpdate, core.KindSavingsGoal, storage.ErrNotFound)
	}
	g := r.val
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.TargetAmount != nil {
		g.TargetAmount = *p.TargetAmount
	}
	if p.TargetDate != nil {
		g.TargetDate = *p.TargetDate
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	g = core.Recompute(g)
	g.UpdatedAt = s.now()
	r.val = g
	s.goals[id] = r
	return g, nil
}

func (s *Store) DeleteGoal(ctx context.Context, userID, id string) error {
	if err := guard(ctx, storage.OpDelete, core.KindSavingsGoal, userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.goals[id]
	if !ok || r.val.UserID != userID {
		return storeErr(storage.OpDelete, core.KindSavingsGoal, storage.ErrNotFound)
	}
	for mid, m := range s.movements {
		if m.val.GoalID == id && m.val.UserID == userID {
			delete(s.movements, mid)
		}
	}
	delete(s.goals, id)
	return nil
}

// storeGoalAmount must be called with s.mu held.
func (s *Store) storeGoalAmount(next core.SavingsGoal, expect core.Money) error {
	r, ok := s.goals[next.ID]
	if !ok || r.val.UserID != next.UserID {
		return storage.ErrNotFound
	}
	if r.val.CurrentAmount != expect {
		return storage.ErrConflict
	}
	g := r.val
	g.CurrentAmount = next.CurrentAmount
	g = core.Recompute(g)
	g.UpdatedAt = s.now()
	r.val = g
	s.goals[next.ID] = r
	return nil
}

func (s *Store) CreateMovement(ctx context.Context, m core.SavingsMovement, next core.SavingsGoal, expect core.Money) (core.SavingsMovement, error) {
	if err := guard(ctx, storage.OpCreate, core.KindSavingsMovement, m.UserID); err != nil {
		return core.SavingsMovement{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movements[m.ID]; ok {
		return core.SavingsMovement{}, storeErr(storage.OpCreate, core.KindSavingsMovement, storage.ErrConflict)
	}
	if err := s.storeGoalAmount(next, expect); err != nil {
		return core.SavingsMovement{}, storeErr(storage.OpCreate, core.KindSavingsMovement, err)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	s.movements[m.ID] = record[core.SavingsMovement]{seq: s.next(), val: m}
	return m, nil
}

func (s *Store) GetMovement(ctx context.Context, userID, id string) (core.SavingsMovement, error) {
	if err := guard(ctx, storage.OpGet, core.KindSavingsMovement, userID); err != nil {
		return core.SavingsMovement{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.movements[id]
	if !ok || r.val.UserID != userID {
		return core.SavingsMovement{}, storeErr(storage.OpGet, core.KindSavingsMovement, storage.ErrNotFound)
	}
	return r.val, nil
}

func (s *Store) ListMovements(ctx context.Context, f storage.Filter) ([]core.SavingsMovement, error) {
	if err := guard(ctx, storage.OpList, core.KindSavingsMovement, f.UserID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var keep func(core.SavingsMovement) bool
	if f.GoalID != "" {
		keep = func(m core.SavingsMovement) bool { return m.GoalID == f.GoalID }
	}
	return sortedBy(s.movements, func(m core.SavingsMovement) string { return m.UserID }, f.UserID, keep,
		func(a, b core.SavingsMovement) int { return cmpDateDesc(a.Date, b.Date) }, f.Limit), nil
}

func (s *Store) DeleteMovement(ctx context.Context, userID, id string, next core.SavingsGoal, expect core.Money) error {
	if err := guard(ctx, storage.OpDelete, core.KindSavingsMovement, userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.movements[id]
	if !ok || r.val.UserID != userID {
		return storeErr(storage.OpDelete, core.KindSavingsMovement, storage.ErrNotFound)
	}
	if err := s.storeGoalAmount(next, expect); err != nil {
		return storeErr(storage.OpDelete, core.KindSavingsMovement, err)
	}
	delete(s.movements, id)
	return nil
}
