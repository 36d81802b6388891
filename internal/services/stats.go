package services

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"golang.org/x/sync/errgroup"
)

// GoalProgress is a goal with its derived progress figures.
type GoalProgress struct {
	Goal      core.SavingsGoal
	Percent   float64
	Remaining core.Money
}

// ReceivableDue is a receivable with its due status.
type ReceivableDue struct {
	Receivable core.AccountReceivable
	Status     core.DueStatus
}

// FixedExpenseDue is a fixed expense's standing for one period.
type FixedExpenseDue struct {
	Expense core.FixedExpense
	DueDate core.Date
	Status  core.DueStatus
	Payment *core.FixedExpensePayment
}

// Dashboard is every derived figure of the overview page. Balance figures
// cover the whole ledger; category breakdowns and fixed expenses cover Period.
type Dashboard struct {
	Period             core.Period
	Summary            core.Summary
	SavingsTotal       core.Money
	Savings            core.SavingsSummary
	Goals              []GoalProgress
	IncomeByCategory   []core.CategoryAmount
	ExpensesByCategory []core.CategoryAmount
	Monthly            []core.MonthTotals
	Receivables        []ReceivableDue
	PendingReceivables core.Money
	OverdueReceivables int
	FixedExpenses      []FixedExpenseDue
	FixedExpensesDue   core.Money
	GeneratedAt        time.Time
}

// DashboardQuery selects the period and external balance adjustment of a
// dashboard. A zero period means the current month.
type DashboardQuery struct {
	Adjustment core.Money
	Period     core.Period
}

// StatsService recomputes dashboards from the store. Results are cached per
// owner and dropped whenever the owner's data changes.
type StatsService struct {
	store   storage.Store
	cache   cache.Cache[Dashboard]
	timeout time.Duration
	now     func() time.Time
}

// NewStatsService creates the service. A nil cache disables caching.
func NewStatsService(store storage.Store, c cache.Cache[Dashboard], timeout time.Duration) *StatsService {
	return &StatsService{
		store:   store,
		cache:   c,
		timeout: timeout,
		now:     time.Now,
	}
}

func cacheKey(userID string, q DashboardQuery, today core.Date) string {
	return fmt.Sprintf("%s|%s|%d|%s", userID, q.Period, q.Adjustment.Cents, today)
}

// Dashboard returns the owner's dashboard for q.
func (s *StatsService) Dashboard(ctx context.Context, userID string, q DashboardQuery) (Dashboard, error) {
	if err := requireOwner(userID); err != nil {
		return Dashboard{}, err
	}
	today := core.DateOf(s.now())
	if q.Period == (core.Period{}) {
		q.Period = core.PeriodOf(today)
	}
	if err := q.Period.Validate(); err != nil {
		return Dashboard{}, core.Invalid("period", err)
	}

	key := cacheKey(userID, q, today)
	if s.cache != nil {
		if d, ok := s.cache.Get(key); ok {
			return d, nil
		}
	}

	d, err := s.build(ctx, userID, q, today)
	if err != nil {
		return Dashboard{}, err
	}
	if s.cache != nil {
		s.cache.Set(key, d)
	}
	return d, nil
}

func (s *StatsService) build(ctx context.Context, userID string, q DashboardQuery, today core.Date) (Dashboard, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		txns        []core.Transaction
		goals       []core.SavingsGoal
		receivables []core.AccountReceivable
		expenses    []core.FixedExpense
		payments    []core.FixedExpensePayment
	)
	owner := storage.Filter{UserID: userID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		txns, err = s.store.ListTransactions(gctx, owner)
		return err
	})
	g.Go(func() (err error) {
		goals, err = s.store.ListGoals(gctx, owner)
		return err
	})
	g.Go(func() (err error) {
		receivables, err = s.store.ListReceivables(gctx, owner)
		return err
	})
	g.Go(func() (err error) {
		expenses, err = s.store.ListFixedExpenses(gctx, storage.Filter{UserID: userID, ActiveOnly: true})
		return err
	})
	g.Go(func() (err error) {
		payments, err = s.store.ListPayments(gctx, storage.Filter{UserID: userID, Period: q.Period})
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("load dashboard: %w", err)
	}

	d := Dashboard{
		Period:       q.Period,
		Summary:      core.Summarize(txns, q.Adjustment),
		SavingsTotal: core.SavingsTotal(goals),
		Savings:      core.SummarizeSavings(goals),
		Monthly:      core.MonthlyTotals(txns),
		GeneratedAt:  s.now(),
	}

	var inPeriod []core.Transaction
	for _, tx := range txns {
		if core.PeriodOf(tx.Date) == q.Period {
			inPeriod = append(inPeriod, tx)
		}
	}
	d.IncomeByCategory = core.CategoryBreakdown(inPeriod, core.Income)
	d.ExpensesByCategory = core.CategoryBreakdown(inPeriod, core.Expense)

	for _, goal := range goals {
		d.Goals = append(d.Goals, GoalProgress{
			Goal:      goal,
			Percent:   core.ProgressPercent(goal),
			Remaining: core.Remaining(goal),
		})
	}

	for _, rc := range receivables {
		status := core.ReceivableStatus(rc, today)
		d.Receivables = append(d.Receivables, ReceivableDue{Receivable: rc, Status: status})
		if !rc.IsPaid {
			d.PendingReceivables = d.PendingReceivables.Add(rc.Amount)
		}
		if status == core.StatusOverdue {
			d.OverdueReceivables++
		}
	}

	paid := make(map[string]core.FixedExpensePayment, len(payments))
	for _, p := range payments {
		paid[p.FixedExpenseID] = p
	}
	for _, e := range expenses {
		due := FixedExpenseDue{Expense: e, DueDate: e.DueDateIn(q.Period)}
		if p, ok := paid[e.ID]; ok {
			due.Payment = &p
		} else {
			d.FixedExpensesDue = d.FixedExpensesDue.Add(e.Amount)
		}
		due.Status = core.FixedExpenseStatus(e, q.Period, due.Payment != nil, today)
		d.FixedExpenses = append(d.FixedExpenses, due)
	}
	return d, nil
}

// Invalidate drops every cached dashboard of the owner.
func (s *StatsService) Invalidate(userID string) {
	if s.cache != nil {
		s.cache.DeletePrefix(userID + "|")
	}
}

func (s *StatsService) BalanceChanged(_ context.Context, e BalanceEvent) error {
	s.Invalidate(e.UserID)
	return nil
}

func (s *StatsService) LedgerSyncRequested(context.Context, string, int64) error { return nil }
