package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"fintrack/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets serves the subset of the Sheets v4 API the client calls.
type fakeSheets struct {
	mu           sync.Mutex
	rows         [][]any
	deletedSheet int64
	appends      int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.rows = append(f.rows, vr.Values...)
		f.appends++
		n := len(f.rows)
		fmt.Fprintf(w, `{"updates":{"updatedRange":"Ledger!A%d:I%d"}}`, n, n)
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.rows = append(vr.Values, f.rows...)
		fmt.Fprint(w, `{}`)
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		keys := make([][]any, 0, len(f.rows))
		for _, row := range f.rows {
			keys = append(keys, row[:min(2, len(row))])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"range": "Ledger!A:B", "values": keys})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rng := req.Requests[0].DeleteDimension.Range
		f.deletedSheet = rng.SheetId
		f.rows = append(f.rows[:rng.StartIndex], f.rows[rng.EndIndex:]...)
		fmt.Fprint(w, `{"spreadsheetId":"book-1"}`)
	case r.Method == http.MethodGet:
		fmt.Fprint(w, `{"sheets":[{"properties":{"sheetId":7,"title":"Other"}},{"properties":{"sheetId":42,"title":"Ledger"}}]}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{SpreadsheetID: "book-1", Sheet: "Ledger"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, fake
}

func ledgerEntry(id string) core.Transaction {
	return core.Transaction{
		ID:       id,
		UserID:   "u1",
		Type:     core.Expense,
		Amount:   core.Money{Cents: 80000},
		Category: core.CategoryFixedExpenses,
		Date:     core.NewDate(2025, 3, 5),
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}

func TestNew_MissingCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "book-1", CredentialsFile: t.TempDir() + "/nope.json"})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_EnsureHeaderOnlyOnce(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	if err := c.EnsureHeader(ctx); err != nil {
		t.Fatalf("ensure header: %v", err)
	}
	if err := c.EnsureHeader(ctx); err != nil {
		t.Fatalf("ensure header again: %v", err)
	}
	if len(fake.rows) != 1 || fake.rows[0][0] != ledgerColumns[0] {
		t.Fatalf("rows = %v, want a single header row", fake.rows)
	}
}

func TestClient_AppendIsIdempotent(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	if err := c.EnsureHeader(ctx); err != nil {
		t.Fatalf("ensure header: %v", err)
	}

	ref, err := c.Append(ctx, ledgerEntry("tx-1"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "Ledger!A2:I2" {
		t.Errorf("ref = %s, want Ledger!A2:I2", ref)
	}

	again, err := c.Append(ctx, ledgerEntry("tx-1"))
	if err != nil {
		t.Fatalf("append again: %v", err)
	}
	if again != ref {
		t.Errorf("second ref = %s, want %s", again, ref)
	}
	if fake.appends != 1 {
		t.Errorf("appends = %d, want 1", fake.appends)
	}
}

func TestClient_AppendValidates(t *testing.T) {
	c, fake := newTestClient(t)
	tx := ledgerEntry("tx-1")
	tx.Category = ""

	if _, err := c.Append(context.Background(), tx); err == nil {
		t.Fatal("expected validation error")
	}
	if fake.appends != 0 {
		t.Errorf("appends = %d, want 0", fake.appends)
	}
}

func TestClient_Remove(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	if err := c.EnsureHeader(ctx); err != nil {
		t.Fatalf("ensure header: %v", err)
	}
	for _, id := range []string{"tx-1", "tx-2"} {
		if _, err := c.Append(ctx, ledgerEntry(id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	if err := c.Remove(ctx, "u1", "tx-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if fake.deletedSheet != 42 {
		t.Errorf("deleted from sheet %d, want 42", fake.deletedSheet)
	}
	if len(fake.rows) != 2 || fake.rows[1][0] != "tx-2" {
		t.Fatalf("rows after remove = %v", fake.rows)
	}

	if err := c.Remove(ctx, "u1", "tx-1"); err != nil {
		t.Fatalf("remove missing row: %v", err)
	}
	if len(fake.rows) != 2 {
		t.Fatalf("rows after second remove = %d, want 2", len(fake.rows))
	}
}
