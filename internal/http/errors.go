package http

import (
	"errors"
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

const (
	codeValidation        = "validation"
	codeInsufficientFunds = "insufficient_funds"
	codeNotFound          = "not_found"
	codeConflict          = "conflict"
	codeAlreadyPaid       = "already_paid"
	codeNotPaid           = "not_paid"
	codeInactive          = "inactive"
	codeLockedWhilePaid   = "locked_while_paid"
	codeDerivedEntry      = "derived_entry"
	codeInProgress        = "in_progress"
	codeSyncPending       = "ledger_sync_pending"
	codePartialFailure    = "partial_failure"
	codeInternal          = "internal"
	codeRateLimited       = "rate_limited"
	codeMethodNotAllowed  = "method_not_allowed"
)

// conflicts are state errors: the request is well formed but the entity is
// not in a state that allows it.
var conflicts = []struct {
	err  error
	code string
}{
	{core.ErrAlreadyPaid, codeAlreadyPaid},
	{core.ErrNotPaid, codeNotPaid},
	{core.ErrInactive, codeInactive},
	{core.ErrLockedWhilePaid, codeLockedWhilePaid},
	{core.ErrDerivedEntry, codeDerivedEntry},
	{core.ErrLedgerSyncPending, codeSyncPending},
	{services.ErrOperationInProgress, codeInProgress},
}

// errorResponse maps a service error to its HTTP response. Store and
// infrastructure failures never leak their message.
func errorResponse(err error) *JSONResponseBuilder {
	var partial *services.PartialFailureError
	if errors.As(err, &partial) {
		out := newOutcomeDTO(partial.Outcome)
		return NewJSONResponse().
			Status(http.StatusAccepted).
			Data(ErrorBody{
				Error:   "operation applied, ledger entry pending reconciliation",
				Code:    codePartialFailure,
				Outcome: &out,
			})
	}

	var funds *core.InsufficientFundsError
	if errors.As(err, &funds) {
		return ErrorResponse(http.StatusUnprocessableEntity, codeInsufficientFunds, funds.Error())
	}

	for _, c := range conflicts {
		if errors.Is(err, c.err) {
			return ErrorResponse(http.StatusConflict, c.code, c.err.Error())
		}
	}

	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return NewJSONResponse().
			Status(http.StatusBadRequest).
			Data(ErrorBody{Error: verr.Error(), Code: codeValidation, Field: verr.Field})
	}
	if errors.Is(err, storage.ErrOwnerRequired) {
		return NewJSONResponse().
			Status(http.StatusBadRequest).
			Data(ErrorBody{Error: "user_id is required", Code: codeValidation, Field: "user_id"})
	}

	if storage.IsNotFound(err) {
		return NotFoundError("not found")
	}
	if storage.IsConflict(err) {
		return ErrorResponse(http.StatusConflict, codeConflict, "conflicting update, please retry")
	}

	return ErrorResponse(http.StatusInternalServerError, codeInternal, "internal server error")
}

// writeError logs err with the request logger and writes its response.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := errorResponse(err)

	logger := applog.FromContext(r.Context())
	fields := applog.NewFields().
		WithOperation(op).
		WithUser(ownerFrom(r)).
		WithError(err)

	switch {
	case resp.statusCode >= 500:
		logger.ErrorContext(r.Context(), "Request failed", fields.WithErrorType(applog.ErrorTypeInternal).ToSlice()...)
	case resp.statusCode == http.StatusAccepted:
		logger.WarnContext(r.Context(), "Request partially applied", fields.WithErrorType(applog.ErrorTypePartialFailure).ToSlice()...)
	default:
		logger.InfoContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}

	resp.Write(w)
}
