package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/services"

	"github.com/shopspring/decimal"
)

type moneyDTO struct {
	Amount string `json:"amount"`
	Cents  int64  `json:"cents"`
}

func newMoneyDTO(m core.Money) moneyDTO {
	return moneyDTO{Amount: m.String(), Cents: m.Cents}
}

type categoryAmountDTO struct {
	Name   string   `json:"name"`
	Amount moneyDTO `json:"amount"`
	Count  int      `json:"count"`
}

type monthTotalsDTO struct {
	Year     int      `json:"year"`
	Month    int      `json:"month"`
	Income   moneyDTO `json:"income"`
	Expenses moneyDTO `json:"expenses"`
	Net      moneyDTO `json:"net"`
}

type receivableDueDTO struct {
	receivableDTO
	Status string `json:"status"`
}

type fixedExpenseDueDTO struct {
	fixedExpenseDTO
	DueDate string      `json:"due_date"`
	Status  string      `json:"status"`
	Payment *paymentDTO `json:"payment,omitempty"`
}

type dashboardDTO struct {
	Year    int `json:"year"`
	Month   int `json:"month"`
	Summary struct {
		TotalIncome   moneyDTO `json:"total_income"`
		TotalExpenses moneyDTO `json:"total_expenses"`
		Adjustment    moneyDTO `json:"adjustment"`
		Balance       moneyDTO `json:"balance"`
	} `json:"summary"`
	Savings struct {
		TotalSaved     moneyDTO `json:"total_saved"`
		TotalTarget    moneyDTO `json:"total_target"`
		OverallPercent float64  `json:"overall_percent"`
		Completed      int      `json:"completed"`
		Closest        *goalDTO `json:"closest,omitempty"`
	} `json:"savings"`
	Goals              []goalDTO            `json:"goals"`
	IncomeByCategory   []categoryAmountDTO  `json:"income_by_category"`
	ExpensesByCategory []categoryAmountDTO  `json:"expenses_by_category"`
	Monthly            []monthTotalsDTO     `json:"monthly"`
	Receivables        []receivableDueDTO   `json:"receivables"`
	PendingReceivables moneyDTO             `json:"pending_receivables"`
	OverdueReceivables int                  `json:"overdue_receivables"`
	FixedExpenses      []fixedExpenseDueDTO `json:"fixed_expenses"`
	FixedExpensesDue   moneyDTO             `json:"fixed_expenses_due"`
	GeneratedAt        time.Time            `json:"generated_at"`
}

func newCategoryAmountDTO(c core.CategoryAmount) categoryAmountDTO {
	return categoryAmountDTO{Name: c.Name, Amount: newMoneyDTO(c.Amount), Count: c.Count}
}

func newDashboardDTO(d services.Dashboard) dashboardDTO {
	var out dashboardDTO
	out.Year, out.Month = d.Period.Year, d.Period.Month

	out.Summary.TotalIncome = newMoneyDTO(d.Summary.TotalIncome)
	out.Summary.TotalExpenses = newMoneyDTO(d.Summary.TotalExpenses)
	out.Summary.Adjustment = newMoneyDTO(d.Summary.Adjustment)
	out.Summary.Balance = newMoneyDTO(d.Summary.Balance)

	out.Savings.TotalSaved = newMoneyDTO(d.Savings.TotalSaved)
	out.Savings.TotalTarget = newMoneyDTO(d.Savings.TotalTarget)
	out.Savings.OverallPercent = d.Savings.OverallPercent
	out.Savings.Completed = d.Savings.Completed
	if d.Savings.Closest != nil {
		g := newGoalDTO(*d.Savings.Closest)
		out.Savings.Closest = &g
	}

	out.Goals = mapSlice(d.Goals, func(p services.GoalProgress) goalDTO { return newGoalDTO(p.Goal) })
	out.IncomeByCategory = mapSlice(d.IncomeByCategory, newCategoryAmountDTO)
	out.ExpensesByCategory = mapSlice(d.ExpensesByCategory, newCategoryAmountDTO)
	out.Monthly = mapSlice(d.Monthly, func(m core.MonthTotals) monthTotalsDTO {
		return monthTotalsDTO{
			Year:     m.Period.Year,
			Month:    m.Period.Month,
			Income:   newMoneyDTO(m.Income),
			Expenses: newMoneyDTO(m.Expenses),
			Net:      newMoneyDTO(m.Net()),
		}
	})
	out.Receivables = mapSlice(d.Receivables, func(r services.ReceivableDue) receivableDueDTO {
		return receivableDueDTO{receivableDTO: newReceivableDTO(r.Receivable), Status: string(r.Status)}
	})
	out.PendingReceivables = newMoneyDTO(d.PendingReceivables)
	out.OverdueReceivables = d.OverdueReceivables
	out.FixedExpenses = mapSlice(d.FixedExpenses, func(f services.FixedExpenseDue) fixedExpenseDueDTO {
		dto := fixedExpenseDueDTO{
			fixedExpenseDTO: newFixedExpenseDTO(f.Expense),
			DueDate:         dateString(f.DueDate),
			Status:          string(f.Status),
		}
		if f.Payment != nil {
			p := newPaymentDTO(*f.Payment)
			dto.Payment = &p
		}
		return dto
	})
	out.FixedExpensesDue = newMoneyDTO(d.FixedExpensesDue)
	out.GeneratedAt = d.GeneratedAt
	return out
}

// parseAdjustment reads the signed external balance adjustment.
func parseAdjustment(v string) (core.Money, error) {
	v = strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
	if v == "" {
		return core.Money{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return core.Money{}, core.Invalid("adjustment", errors.New("must be a decimal number"))
	}
	return core.MoneyFromDecimal(d), nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "dashboard", err)
		return
	}
	query := r.URL.Query()
	period, err := parsePeriod(query, s.currentPeriod())
	if err != nil {
		writeError(w, r, "dashboard", err)
		return
	}
	adjustment, err := parseAdjustment(query.Get("adjustment"))
	if err != nil {
		writeError(w, r, "dashboard", err)
		return
	}

	d, err := s.stats.Dashboard(r.Context(), owner, services.DashboardQuery{Adjustment: adjustment, Period: period})
	if err != nil {
		writeError(w, r, "dashboard", err)
		return
	}
	NewJSONResponse().Data(map[string]any{"dashboard": newDashboardDTO(d)}).Write(w)
}

type categoryDTO struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
}

func handleCategories(w http.ResponseWriter, r *http.Request) {
	categories := core.DefaultCategories
	if v := strings.TrimSpace(r.URL.Query().Get("type")); v != "" {
		typ := core.TransactionType(v)
		if !typ.Valid() {
			writeError(w, r, "categories", core.Invalid("type", core.ErrInvalidType))
			return
		}
		categories = core.CategoriesFor(typ)
	}
	NewJSONResponse().
		Data(map[string]any{"categories": mapSlice(categories, func(c core.Category) categoryDTO {
			return categoryDTO{Name: c.Name, Type: string(c.Type), Color: c.Color}
		})}).
		Write(w)
}
