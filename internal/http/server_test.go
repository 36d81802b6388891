package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "user-1"

var errLedgerDown = errors.New("ledger unavailable")

// flakyLedger fails every ledger insert while down is set.
type flakyLedger struct {
	storage.Store
	down bool
}

func (f *flakyLedger) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if f.down {
		return core.Transaction{}, storage.Wrap(storage.OpCreate, core.KindTransaction, errLedgerDown)
	}
	return f.Store.CreateTransaction(ctx, tx)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	srv   *Server
	store *flakyLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := &flakyLedger{Store: memory.New()}
	clock := func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	stats := services.NewStatsService(store, cache.NewLRUCache[services.Dashboard](16, time.Minute), time.Second)
	lifecycle := services.NewLifecycleService(store, stats, services.Config{
		StoreTimeout:         time.Second,
		DerivedWriteAttempts: 1,
		Clock:                clock,
	})
	srv := NewServer(":0", lifecycle, stats, store, Options{
		Logger:             applog.New(applog.Config{Level: applog.ParseLevel("error"), Output: io.Discard}),
		RateLimitPerMinute: 1000,
	})
	srv.now = clock
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{srv: srv, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(HeaderUserID, testOwner)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) createReceivable(t *testing.T, amount string) receivableDTO {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/accounts-receivable",
		`{"debtor_name":"Ana","amount":"`+amount+`","reason":"dinner"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[struct {
		Receivable receivableDTO `json:"account_receivable"`
	}](t, rec).Receivable
}

func (ts *testServer) createGoal(t *testing.T, target string) goalDTO {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/savings-goals", `{"name":"Holiday","target_amount":"`+target+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[struct {
		Goal goalDTO `json:"savings_goal"`
	}](t, rec).Goal
}

func (ts *testServer) listTransactions(t *testing.T) []transactionDTO {
	t.Helper()
	rec := ts.do(t, http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[struct {
		Transactions []transactionDTO `json:"transactions"`
	}](t, rec).Transactions
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = ts.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ReadyFailsWhenStoreIsDown(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.ready = failingPinger{}

	rec := ts.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", decodeBody[ErrorBody](t, rec).Code)
}

func TestServer_UnknownRouteAndMethod(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, decodeBody[ErrorBody](t, rec).Code)

	rec = ts.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, decodeBody[ErrorBody](t, rec).Code)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPut, "/api/transactions"},
		{http.MethodPatch, "/api/transactions/tx-1"},
		{http.MethodDelete, "/api/dashboard"},
		{http.MethodGet, "/api/accounts-receivable/rc-1/collect"},
		{http.MethodPost, "/healthz"},
	} {
		rec = ts.do(t, tc.method, tc.path, `{}`)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, codeMethodNotAllowed, decodeBody[ErrorBody](t, rec).Code, "%s %s", tc.method, tc.path)
	}
}

func TestServer_OwnerRequired(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	rec := httptest.NewRecorder()
	ts.srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[ErrorBody](t, rec)
	assert.Equal(t, codeValidation, body.Code)
	assert.Equal(t, "user_id", body.Field)
}

func TestServer_OwnerMismatch(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/transactions",
		`{"user_id":"someone-else","type":"income","amount":"10","category":"Salary"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "user_id", decodeBody[ErrorBody](t, rec).Field)
}

func TestServer_Transactions(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/transactions",
		`{"type":"income","amount":"1500,50","category":"Salary","date":"2025-03-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[struct {
		Transaction transactionDTO `json:"transaction"`
	}](t, rec).Transaction
	assert.Equal(t, "1500.50", created.Amount)
	assert.Equal(t, int64(1500_50), created.AmountCents)
	assert.Equal(t, testOwner, created.UserID)

	rec = ts.do(t, http.MethodPost, "/api/transactions", `{"type":"expense","amount":42,"category":"Food"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Len(t, ts.listTransactions(t), 2)

	rec = ts.do(t, http.MethodGet, "/api/transactions?type=expense", "")
	require.Equal(t, http.StatusOK, rec.Code)
	expenses := decodeBody[struct {
		Transactions []transactionDTO `json:"transactions"`
	}](t, rec).Transactions
	require.Len(t, expenses, 1)
	assert.Equal(t, "2025-03-10", expenses[0].Date)

	rec = ts.do(t, http.MethodDelete, "/api/transactions/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, ts.listTransactions(t), 1)

	rec = ts.do(t, http.MethodDelete, "/api/transactions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_TransactionValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"zero amount", `{"type":"income","amount":"0","category":"Salary"}`, "amount"},
		{"bad type", `{"type":"gift","amount":"10","category":"Salary"}`, "type"},
		{"bad date", `{"type":"income","amount":"10","category":"Salary","date":"10/03/2025"}`, "date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/transactions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.field, decodeBody[ErrorBody](t, rec).Field)
		})
	}

	rec := ts.do(t, http.MethodPost, "/api/transactions", `{"type":"income","amount":"10","category":"Salary","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_DerivedTransactionCannotBeDeleted(t *testing.T) {
	ts := newTestServer(t)
	rc := ts.createReceivable(t, "200")

	rec := ts.do(t, http.MethodPost, "/api/accounts-receivable/"+rc.ID+"/collect", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	txns := ts.listTransactions(t)
	require.Len(t, txns, 1)
	assert.Equal(t, string(core.KindReceivable), txns[0].SourceKind)

	rec = ts.do(t, http.MethodDelete, "/api/transactions/"+txns[0].ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeDerivedEntry, decodeBody[ErrorBody](t, rec).Code)
}

func TestServer_CollectAndUncollect(t *testing.T) {
	ts := newTestServer(t)
	rc := ts.createReceivable(t, "200")

	rec := ts.do(t, http.MethodPost, "/api/accounts-receivable/"+rc.ID+"/collect", `{"paid_date":"2025-03-05"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	collected := decodeBody[struct {
		Outcome    outcomeDTO    `json:"outcome"`
		Receivable receivableDTO `json:"account_receivable"`
	}](t, rec)
	assert.Equal(t, string(services.StateDerivedWritten), collected.Outcome.State)
	require.NotNil(t, collected.Outcome.Transaction)
	assert.Equal(t, "income", collected.Outcome.Transaction.Type)
	assert.True(t, collected.Receivable.IsPaid)
	assert.Equal(t, "2025-03-05", collected.Receivable.PaidDate)

	rec = ts.do(t, http.MethodPost, "/api/accounts-receivable/"+rc.ID+"/collect", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeAlreadyPaid, decodeBody[ErrorBody](t, rec).Code)

	rec = ts.do(t, http.MethodPatch, "/api/accounts-receivable/"+rc.ID, `{"amount":"300"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeLockedWhilePaid, decodeBody[ErrorBody](t, rec).Code)

	rec = ts.do(t, http.MethodPost, "/api/accounts-receivable/"+rc.ID+"/uncollect", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeBody[struct {
		Receivable receivableDTO `json:"account_receivable"`
	}](t, rec).Receivable.IsPaid)
	assert.Empty(t, ts.listTransactions(t))

	rec = ts.do(t, http.MethodPost, "/api/accounts-receivable/"+rc.ID+"/uncollect", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeNotPaid, decodeBody[ErrorBody](t, rec).Code)
}

func TestServer_PartialFailure(t *testing.T) {
	ts := newTestServer(t)
	rc := ts.createReceivable(t, "200")
	ts.store.down = true

	rec := ts.do(t, http.MethodPost, "/api/accounts-receivable/"+rc.ID+"/collect", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decodeBody[ErrorBody](t, rec)
	assert.Equal(t, codePartialFailure, body.Code)
	require.NotNil(t, body.Outcome)
	assert.Equal(t, string(services.StateDerivedFailed), body.Outcome.State)
	assert.Equal(t, rc.ID, body.Outcome.AnchorID)
	assert.NotZero(t, body.Outcome.SyncID)
	assert.NotContains(t, rec.Body.String(), errLedgerDown.Error())

	rec = ts.do(t, http.MethodGet, "/api/accounts-receivable/"+rc.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[struct {
		Receivable receivableDTO `json:"account_receivable"`
	}](t, rec).Receivable
	assert.True(t, got.IsPaid)
	assert.True(t, got.LedgerSyncPending)

	rec = ts.do(t, http.MethodDelete, "/api/accounts-receivable/"+rc.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeSyncPending, decodeBody[ErrorBody](t, rec).Code)
}

func TestServer_FixedExpensePayments(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/fixed-expenses", `{"name":"Rent","amount":"800","due_day":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	fe := decodeBody[struct {
		Expense fixedExpenseDTO `json:"fixed_expense"`
	}](t, rec).Expense
	assert.True(t, fe.IsActive)
	assert.Equal(t, core.CategoryFixedExpenses, fe.Category)

	path := "/api/fixed-expenses/" + fe.ID + "/payments?year=2025&month=3"
	rec = ts.do(t, http.MethodPost, path, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, path, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeAlreadyPaid, decodeBody[ErrorBody](t, rec).Code)

	rec = ts.do(t, http.MethodGet, "/api/fixed-expenses/payments?year=2025&month=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	payments := decodeBody[struct {
		Year     int          `json:"year"`
		Month    int          `json:"month"`
		Payments []paymentDTO `json:"payments"`
	}](t, rec)
	assert.Equal(t, 2025, payments.Year)
	require.Len(t, payments.Payments, 1)
	assert.Equal(t, "800.00", payments.Payments[0].PaidAmount)

	txns := ts.listTransactions(t)
	require.Len(t, txns, 1)
	assert.Equal(t, "expense", txns[0].Type)

	rec = ts.do(t, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, ts.listTransactions(t))

	rec = ts.do(t, http.MethodPost, "/api/fixed-expenses/"+fe.ID+"/payments?year=2025&month=13", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_InactiveFixedExpenseCannotBePaid(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/fixed-expenses", `{"name":"Gym","amount":"30","due_day":1,"is_active":false}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	fe := decodeBody[struct {
		Expense fixedExpenseDTO `json:"fixed_expense"`
	}](t, rec).Expense

	rec = ts.do(t, http.MethodPost, "/api/fixed-expenses/"+fe.ID+"/payments", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeInactive, decodeBody[ErrorBody](t, rec).Code)
}

func TestServer_SavingsMovements(t *testing.T) {
	ts := newTestServer(t)
	goal := ts.createGoal(t, "1000")

	rec := ts.do(t, http.MethodPost, "/api/savings-transactions",
		`{"savings_goal_id":"`+goal.ID+`","type":"deposit","amount":"250"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	deposited := decodeBody[struct {
		Outcome outcomeDTO `json:"outcome"`
		Goal    goalDTO    `json:"savings_goal"`
	}](t, rec)
	assert.Equal(t, "250.00", deposited.Goal.CurrentAmount)
	assert.InDelta(t, 25.0, deposited.Goal.ProgressPercent, 0.001)
	require.NotNil(t, deposited.Outcome.Transaction)
	assert.Equal(t, "expense", deposited.Outcome.Transaction.Type)

	rec = ts.do(t, http.MethodPost, "/api/savings-transactions",
		`{"savings_goal_id":"`+goal.ID+`","type":"withdrawal","amount":"300"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, codeInsufficientFunds, decodeBody[ErrorBody](t, rec).Code)

	rec = ts.do(t, http.MethodPost, "/api/savings-transactions",
		`{"savings_goal_id":"`+goal.ID+`","type":"transfer","amount":"10"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "type", decodeBody[ErrorBody](t, rec).Field)

	rec = ts.do(t, http.MethodGet, "/api/savings-transactions?savings_goal_id="+goal.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	movements := decodeBody[struct {
		Movements []movementDTO `json:"savings_transactions"`
	}](t, rec).Movements
	require.Len(t, movements, 1)

	rec = ts.do(t, http.MethodDelete, "/api/savings-transactions/"+movements[0].ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, ts.listTransactions(t))

	rec = ts.do(t, http.MethodGet, "/api/savings-goals/"+goal.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0.00", decodeBody[struct {
		Goal goalDTO `json:"savings_goal"`
	}](t, rec).Goal.CurrentAmount)
}

func TestServer_MovementOnUnknownGoal(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/savings-transactions",
		`{"savings_goal_id":"missing","type":"deposit","amount":"10"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Dashboard(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/transactions", `{"type":"income","amount":"1000","category":"Salary","date":"2025-03-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	goal := ts.createGoal(t, "1000")
	rec = ts.do(t, http.MethodPost, "/api/savings-transactions",
		`{"savings_goal_id":"`+goal.ID+`","type":"deposit","amount":"200","date":"2025-03-02"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/dashboard?year=2025&month=3&adjustment=-50", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	d := decodeBody[struct {
		Dashboard dashboardDTO `json:"dashboard"`
	}](t, rec).Dashboard

	assert.Equal(t, 2025, d.Year)
	assert.Equal(t, 3, d.Month)
	assert.Equal(t, int64(1000_00), d.Summary.TotalIncome.Cents)
	assert.Equal(t, int64(200_00), d.Summary.TotalExpenses.Cents)
	assert.Equal(t, int64(-50_00), d.Summary.Adjustment.Cents)
	assert.Equal(t, int64(750_00), d.Summary.Balance.Cents)
	assert.Equal(t, int64(200_00), d.Savings.TotalSaved.Cents)
	require.Len(t, d.Goals, 1)

	rec = ts.do(t, http.MethodGet, "/api/dashboard?adjustment=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "adjustment", decodeBody[ErrorBody](t, rec).Field)
}

func TestServer_Categories(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[struct {
		Categories []categoryDTO `json:"categories"`
	}](t, rec).Categories
	assert.Len(t, all, len(core.DefaultCategories))

	rec = ts.do(t, http.MethodGet, "/api/categories?type=income", "")
	require.Equal(t, http.StatusOK, rec.Code)
	income := decodeBody[struct {
		Categories []categoryDTO `json:"categories"`
	}](t, rec).Categories
	require.NotEmpty(t, income)
	for _, c := range income {
		assert.Equal(t, "income", c.Type)
	}

	rec = ts.do(t, http.MethodGet, "/api/categories?type=other", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_RateLimit(t *testing.T) {
	ts := newTestServer(t)
	srv := NewServer(":0", ts.srv.lifecycle, ts.srv.stats, nil, Options{
		Logger:             applog.New(applog.Config{Level: applog.ParseLevel("error"), Output: io.Discard}),
		RateLimitPerMinute: 2,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
		req.Header.Set(HeaderUserID, testOwner)
		last = httptest.NewRecorder()
		srv.Handler.ServeHTTP(last, req)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}
