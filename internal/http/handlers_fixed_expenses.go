package http

import (
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type createFixedExpenseRequest struct {
	UserID      string      `json:"user_id"`
	Name        string      `json:"name"`
	Amount      amountField `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	DueDay      int         `json:"due_day"`
	IsActive    *bool       `json:"is_active"`
}

type updateFixedExpenseRequest struct {
	Name        *string     `json:"name"`
	Amount      amountField `json:"amount"`
	Category    *string     `json:"category"`
	Description *string     `json:"description"`
	DueDay      *int        `json:"due_day"`
	IsActive    *bool       `json:"is_active"`
}

type payFixedExpenseRequest struct {
	PaidDate string `json:"paid_date"`
}

func (s *Server) handleListFixedExpenses(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "list_fixed_expenses", err)
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	expenses, err := s.lifecycle.ListFixedExpenses(r.Context(), owner, activeOnly)
	if err != nil {
		writeError(w, r, "list_fixed_expenses", err)
		return
	}
	NewJSONResponse().
		Data(map[string]any{"fixed_expenses": mapSlice(expenses, newFixedExpenseDTO)}).
		Write(w)
}

func (s *Server) handleGetFixedExpense(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "get_fixed_expense", err)
		return
	}
	e, err := s.lifecycle.GetFixedExpense(r.Context(), owner, pathID(r))
	if err != nil {
		writeError(w, r, "get_fixed_expense", err)
		return
	}
	NewJSONResponse().Data(map[string]any{"fixed_expense": newFixedExpenseDTO(e)}).Write(w)
}

func (s *Server) handleCreateFixedExpense(w http.ResponseWriter, r *http.Request) {
	var req createFixedExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "create_fixed_expense", err)
		return
	}
	owner, err := bodyOwner(r, req.UserID)
	if err != nil {
		writeError(w, r, "create_fixed_expense", err)
		return
	}
	amount, err := req.Amount.value("amount")
	if err != nil {
		writeError(w, r, "create_fixed_expense", err)
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = core.CategoryFixedExpenses
	}

	e, err := s.lifecycle.CreateFixedExpense(r.Context(), core.FixedExpense{
		UserID:      owner,
		Name:        strings.TrimSpace(req.Name),
		Amount:      amount,
		Category:    category,
		Description: strings.TrimSpace(req.Description),
		DueDay:      req.DueDay,
		IsActive:    active,
	})
	if err != nil {
		writeError(w, r, "create_fixed_expense", err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Data(map[string]any{"fixed_expense": newFixedExpenseDTO(e)}).
		Write(w)
}

func (s *Server) handleUpdateFixedExpense(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "update_fixed_expense", err)
		return
	}
	var req updateFixedExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "update_fixed_expense", err)
		return
	}
	amount, err := req.Amount.optional("amount")
	if err != nil {
		writeError(w, r, "update_fixed_expense", err)
		return
	}

	e, err := s.lifecycle.UpdateFixedExpense(r.Context(), owner, pathID(r), services.FixedExpenseUpdate{
		Name:        trimmed(req.Name),
		Amount:      amount,
		Category:    trimmed(req.Category),
		Description: trimmed(req.Description),
		DueDay:      req.DueDay,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeError(w, r, "update_fixed_expense", err)
		return
	}
	NewJSONResponse().Data(map[string]any{"fixed_expense": newFixedExpenseDTO(e)}).Write(w)
}

func (s *Server) handleDeleteFixedExpense(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "delete_fixed_expense", err)
		return
	}
	if err := s.lifecycle.DeleteFixedExpense(r.Context(), owner, pathID(r)); err != nil {
		writeError(w, r, "delete_fixed_expense", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "list_payments", err)
		return
	}
	period, err := parsePeriod(r.URL.Query(), s.currentPeriod())
	if err != nil {
		writeError(w, r, "list_payments", err)
		return
	}
	payments, err := s.lifecycle.ListPayments(r.Context(), owner, period)
	if err != nil {
		writeError(w, r, "list_payments", err)
		return
	}
	NewJSONResponse().
		Data(map[string]any{
			"year":     period.Year,
			"month":    period.Month,
			"payments": mapSlice(payments, newPaymentDTO),
		}).
		Write(w)
}

func (s *Server) handlePayFixedExpense(w http.ResponseWriter, r *http.Request) {
	const op = "pay_fixed_expense"
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	period, err := parsePeriod(r.URL.Query(), s.currentPeriod())
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	var req payFixedExpenseRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, op, err)
		return
	}
	paidDate, err := parseDateParam("paid_date", req.PaidDate)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	out, err := s.lifecycle.PayFixedExpense(r.Context(), owner, pathID(r), period, paidDate)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Data(map[string]any{"outcome": newOutcomeDTO(out)}).
		Write(w)
}

func (s *Server) handleUnpayFixedExpense(w http.ResponseWriter, r *http.Request) {
	const op = "unpay_fixed_expense"
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	period, err := parsePeriod(r.URL.Query(), s.currentPeriod())
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	out, err := s.lifecycle.UnpayFixedExpense(r.Context(), owner, pathID(r), period)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	NewJSONResponse().Data(map[string]any{"outcome": newOutcomeDTO(out)}).Write(w)
}
