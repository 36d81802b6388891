package http

import (
	"net/http"
	"strconv"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type createTransactionRequest struct {
	UserID      string      `json:"user_id"`
	Type        string      `json:"type"`
	Amount      amountField `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
}

// bodyOwner resolves the owner of a write. The header or query owner wins
// over one sent in the body; both must agree when both are present.
func bodyOwner(r *http.Request, inBody string) (string, error) {
	owner := ownerFrom(r)
	inBody = strings.TrimSpace(inBody)
	switch {
	case owner == "":
		owner = inBody
	case inBody != "" && inBody != owner:
		return "", core.Invalid("user_id", errOwnerMismatch)
	}
	if owner == "" {
		return "", core.Invalid("user_id", core.ErrMissingOwner)
	}
	return owner, nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "list_transactions", err)
		return
	}
	query := r.URL.Query()
	f := storage.Filter{UserID: owner}

	if v := strings.TrimSpace(query.Get("type")); v != "" {
		f.Type = core.TransactionType(v)
		if !f.Type.Valid() {
			writeError(w, r, "list_transactions", core.Invalid("type", core.ErrInvalidType))
			return
		}
	}
	if f.From, err = parseDateParam("from", query.Get("from")); err != nil {
		writeError(w, r, "list_transactions", err)
		return
	}
	if f.To, err = parseDateParam("to", query.Get("to")); err != nil {
		writeError(w, r, "list_transactions", err)
		return
	}
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 {
			writeError(w, r, "list_transactions", core.Invalid("limit", errNotPositive))
			return
		}
		f.Limit = n
	}

	txns, err := s.lifecycle.ListTransactions(r.Context(), f)
	if err != nil {
		writeError(w, r, "list_transactions", err)
		return
	}
	NewJSONResponse().
		Data(map[string]any{"transactions": mapSlice(txns, newTransactionDTO)}).
		Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "create_transaction", err)
		return
	}
	owner, err := bodyOwner(r, req.UserID)
	if err != nil {
		writeError(w, r, "create_transaction", err)
		return
	}
	amount, err := req.Amount.value("amount")
	if err != nil {
		writeError(w, r, "create_transaction", err)
		return
	}
	date, err := parseDateParam("date", req.Date)
	if err != nil {
		writeError(w, r, "create_transaction", err)
		return
	}

	tx, err := s.lifecycle.CreateTransaction(r.Context(), core.Transaction{
		UserID:      owner,
		Type:        core.TransactionType(strings.TrimSpace(req.Type)),
		Amount:      amount,
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.Description),
		Date:        date,
	})
	if err != nil {
		writeError(w, r, "create_transaction", err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Data(map[string]any{"transaction": newTransactionDTO(tx)}).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "delete_transaction", err)
		return
	}
	if err := s.lifecycle.DeleteTransaction(r.Context(), owner, pathID(r)); err != nil {
		writeError(w, r, "delete_transaction", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
