package storage_test

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"fintrack/internal/storage"
	"fintrack/internal/storage/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) storage.Store {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "fintrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteStoreConformance(t *testing.T) {
	storetest.Run(t, newSQLiteStore)
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fintrack.db")
	first, err := storage.NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := storage.NewSQLiteRepository(path)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, storage.DialectSQLite, second.Dialect())
}

// newPostgresStore needs FINTRACK_TEST_POSTGRES_URL pointing at a disposable
// database; every table is truncated before each store is handed out.
func newPostgresStore(t *testing.T) storage.Store {
	t.Helper()
	dsn := os.Getenv("FINTRACK_TEST_POSTGRES_URL")
	repo, err := storage.NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`TRUNCATE ledger_sync_queue, savings_movements, savings_goals,
		fixed_expense_payments, fixed_expenses, accounts_receivable, transactions`)
	require.NoError(t, err)
	return repo
}

func TestPostgresStoreConformance(t *testing.T) {
	if os.Getenv("FINTRACK_TEST_POSTGRES_URL") == "" {
		t.Skip("FINTRACK_TEST_POSTGRES_URL not set")
	}
	storetest.Run(t, newPostgresStore)
}
