package http

import (
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type createGoalRequest struct {
	UserID       string      `json:"user_id"`
	Name         string      `json:"name"`
	TargetAmount amountField `json:"target_amount"`
	TargetDate   string      `json:"target_date"`
	Description  string      `json:"description"`
}

type updateGoalRequest struct {
	Name         *string     `json:"name"`
	TargetAmount amountField `json:"target_amount"`
	TargetDate   *string     `json:"target_date"`
	Description  *string     `json:"description"`
}

type createMovementRequest struct {
	UserID        string      `json:"user_id"`
	SavingsGoalID string      `json:"savings_goal_id"`
	Type          string      `json:"type"`
	Amount        amountField `json:"amount"`
	Description   string      `json:"description"`
	Date          string      `json:"date"`
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "list_goals", err)
		return
	}
	goals, err := s.lifecycle.ListGoals(r.Context(), owner)
	if err != nil {
		writeError(w, r, "list_goals", err)
		return
	}
	NewJSONResponse().
		Data(map[string]any{"savings_goals": mapSlice(goals, newGoalDTO)}).
		Write(w)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "get_goal", err)
		return
	}
	g, err := s.lifecycle.GetGoal(r.Context(), owner, pathID(r))
	if err != nil {
		writeError(w, r, "get_goal", err)
		return
	}
	NewJSONResponse().Data(map[string]any{"savings_goal": newGoalDTO(g)}).Write(w)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "create_goal", err)
		return
	}
	owner, err := bodyOwner(r, req.UserID)
	if err != nil {
		writeError(w, r, "create_goal", err)
		return
	}
	target, err := req.TargetAmount.value("target_amount")
	if err != nil {
		writeError(w, r, "create_goal", err)
		return
	}
	targetDate, err := parseDateParam("target_date", req.TargetDate)
	if err != nil {
		writeError(w, r, "create_goal", err)
		return
	}

	g, err := s.lifecycle.CreateGoal(r.Context(), core.SavingsGoal{
		UserID:       owner,
		Name:         strings.TrimSpace(req.Name),
		TargetAmount: target,
		TargetDate:   targetDate,
		Description:  strings.TrimSpace(req.Description),
	})
	if err != nil {
		writeError(w, r, "create_goal", err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Data(map[string]any{"savings_goal": newGoalDTO(g)}).
		Write(w)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "update_goal", err)
		return
	}
	var req updateGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "update_goal", err)
		return
	}
	target, err := req.TargetAmount.optional("target_amount")
	if err != nil {
		writeError(w, r, "update_goal", err)
		return
	}
	targetDate, err := optionalDate("target_date", req.TargetDate)
	if err != nil {
		writeError(w, r, "update_goal", err)
		return
	}

	g, err := s.lifecycle.UpdateGoal(r.Context(), owner, pathID(r), services.GoalUpdate{
		Name:         trimmed(req.Name),
		TargetAmount: target,
		TargetDate:   targetDate,
		Description:  trimmed(req.Description),
	})
	if err != nil {
		writeError(w, r, "update_goal", err)
		return
	}
	NewJSONResponse().Data(map[string]any{"savings_goal": newGoalDTO(g)}).Write(w)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "delete_goal", err)
		return
	}
	if err := s.lifecycle.DeleteGoal(r.Context(), owner, pathID(r)); err != nil {
		writeError(w, r, "delete_goal", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleListMovements(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "list_movements", err)
		return
	}
	goalID := strings.TrimSpace(r.URL.Query().Get("savings_goal_id"))
	movements, err := s.lifecycle.ListMovements(r.Context(), owner, goalID)
	if err != nil {
		writeError(w, r, "list_movements", err)
		return
	}
	NewJSONResponse().
		Data(map[string]any{"savings_transactions": mapSlice(movements, newMovementDTO)}).
		Write(w)
}

func (s *Server) handleCreateMovement(w http.ResponseWriter, r *http.Request) {
	var req createMovementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "create_movement", err)
		return
	}
	owner, err := bodyOwner(r, req.UserID)
	if err != nil {
		writeError(w, r, "create_movement", err)
		return
	}
	amount, err := req.Amount.value("amount")
	if err != nil {
		writeError(w, r, "create_movement", err)
		return
	}
	date, err := parseDateParam("date", req.Date)
	if err != nil {
		writeError(w, r, "create_movement", err)
		return
	}
	goalID := strings.TrimSpace(req.SavingsGoalID)
	if goalID == "" {
		writeError(w, r, "create_movement", core.Invalid("savings_goal_id", core.ErrMissingField))
		return
	}

	move := services.MovementRequest{
		UserID:      owner,
		GoalID:      goalID,
		Amount:      amount,
		Description: strings.TrimSpace(req.Description),
		Date:        date,
	}
	var out services.Outcome
	switch core.MovementType(strings.TrimSpace(req.Type)) {
	case core.Deposit:
		out, err = s.lifecycle.Deposit(r.Context(), move)
	case core.Withdrawal:
		out, err = s.lifecycle.Withdraw(r.Context(), move)
	default:
		err = core.Invalid("type", core.ErrInvalidType)
	}
	if err != nil {
		writeError(w, r, "create_movement", err)
		return
	}
	s.writeMovementOutcome(w, r, owner, goalID, http.StatusCreated, out)
}

func (s *Server) handleDeleteMovement(w http.ResponseWriter, r *http.Request) {
	owner, err := requireOwnerFrom(r)
	if err != nil {
		writeError(w, r, "delete_movement", err)
		return
	}
	out, err := s.lifecycle.DeleteMovement(r.Context(), owner, pathID(r))
	if err != nil {
		writeError(w, r, "delete_movement", err)
		return
	}
	NewJSONResponse().Data(map[string]any{"outcome": newOutcomeDTO(out)}).Write(w)
}

// writeMovementOutcome answers with the outcome and, when known, the goal
// as it is stored after the operation.
func (s *Server) writeMovementOutcome(w http.ResponseWriter, r *http.Request, owner, goalID string, status int, out services.Outcome) {
	body := map[string]any{"outcome": newOutcomeDTO(out)}
	if goalID != "" {
		if g, err := s.lifecycle.GetGoal(r.Context(), owner, goalID); err == nil {
			body["savings_goal"] = newGoalDTO(g)
		}
	}
	NewJSONResponse().Status(status).Data(body).Write(w)
}
