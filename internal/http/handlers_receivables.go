package http

import (
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type createReceivableRequest struct {
	UserID       string      `json:"user_id"`
	DebtorName   string      `json:"debtor_name"`
	Amount       amountField `json:"amount"`
	Reason       string      `json:"reason"`
	ExpectedDate string      `json:"expected_date"`
}

type updateReceivableRequest struct {
	DebtorName   *string     `json:"debtor_name"`
	Amount       amountField `json:"amount"`
	Reason       *string     `json:"reason"`
	ExpectedDate *string     `json:"expected_date"`
}

type collectReceivableRequest struct {
	PaidDate string `json:"paid_date"`
}

func (s *Server) handleListReceivables(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "list_receivables", err)
		return
	}
	receivables, err := s.lifecycle.ListReceivables(r.Context(), owner)
	if err != nil {
		writeError(w, r, "list_receivables", err)
		return
	}
	NewJSONResponse().
		Data(map[string]any{"accounts_receivable": mapSlice(receivables, newReceivableDTO)}).
		Write(w)
}

func (s *Server) handleGetReceivable(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "get_receivable", err)
		return
	}
	rc, err := s.lifecycle.GetReceivable(r.Context(), owner, pathID(r))
	if err != nil {
		writeError(w, r, "get_receivable", err)
		return
	}
	NewJSONResponse().Data(map[string]any{"account_receivable": newReceivableDTO(rc)}).Write(w)
}

func (s *Server) handleCreateReceivable(w http.ResponseWriter, r *http.Request) {
	var req createReceivableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "create_receivable", err)
		return
	}
	owner, err := bodyOwner(r, req.UserID)
	if err != nil {
		writeError(w, r, "create_receivable", err)
		return
	}
	amount, err := req.Amount.value("amount")
	if err != nil {
		writeError(w, r, "create_receivable", err)
		return
	}
	expected, err := parseDateParam("expected_date", req.ExpectedDate)
	if err != nil {
		writeError(w, r, "create_receivable", err)
		return
	}

	rc, err := s.lifecycle.CreateReceivable(r.Context(), core.AccountReceivable{
		UserID:       owner,
		DebtorName:   strings.TrimSpace(req.DebtorName),
		Amount:       amount,
		Reason:       strings.TrimSpace(req.Reason),
		ExpectedDate: expected,
	})
	if err != nil {
		writeError(w, r, "create_receivable", err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Data(map[string]any{"account_receivable": newReceivableDTO(rc)}).
		Write(w)
}

func (s *Server) handleUpdateReceivable(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "update_receivable", err)
		return
	}
	var req updateReceivableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "update_receivable", err)
		return
	}
	amount, err := req.Amount.optional("amount")
	if err != nil {
		writeError(w, r, "update_receivable", err)
		return
	}
	expected, err := optionalDate("expected_date", req.ExpectedDate)
	if err != nil {
		writeError(w, r, "update_receivable", err)
		return
	}

	rc, err := s.lifecycle.UpdateReceivable(r.Context(), owner, pathID(r), services.ReceivableUpdate{
		DebtorName:   trimmed(req.DebtorName),
		Amount:       amount,
		Reason:       trimmed(req.Reason),
		ExpectedDate: expected,
	})
	if err != nil {
		writeError(w, r, "update_receivable", err)
		return
	}
	NewJSONResponse().Data(map[string]any{"account_receivable": newReceivableDTO(rc)}).Write(w)
}

func (s *Server) handleDeleteReceivable(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "delete_receivable", err)
		return
	}
	if err := s.lifecycle.DeleteReceivable(r.Context(), owner, pathID(r)); err != nil {
		writeError(w, r, "delete_receivable", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleCollectReceivable(w http.ResponseWriter, r *http.Request) {
	const op = "collect_receivable"
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	var req collectReceivableRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, op, err)
		return
	}
	paidDate, err := parseDateParam("paid_date", req.PaidDate)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	out, err := s.lifecycle.CollectReceivable(r.Context(), owner, pathID(r), paidDate)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	s.writeReceivableOutcome(w, r, owner, out)
}

func (s *Server) handleUncollectReceivable(w http.ResponseWriter, r *http.Request) {
	const op = "uncollect_receivable"
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	out, err := s.lifecycle.UncollectReceivable(r.Context(), owner, pathID(r))
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	s.writeReceivableOutcome(w, r, owner, out)
}

// writeReceivableOutcome answers with the outcome and the receivable as it
// is stored after the operation.
func (s *Server) writeReceivableOutcome(w http.ResponseWriter, r *http.Request, owner string, out services.Outcome) {
	body := map[string]any{"outcome": newOutcomeDTO(out)}
	if rc, err := s.lifecycle.GetReceivable(r.Context(), owner, out.AnchorID); err == nil {
		body["account_receivable"] = newReceivableDTO(rc)
	}
	NewJSONResponse().Data(body).Write(w)
}
