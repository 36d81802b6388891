package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func sqliteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "fintrack.db"))
	t.Setenv("AMQP_URL", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	t.Setenv("LOG_LEVEL", "error")
}

func TestMigrateThenStats(t *testing.T) {
	sqliteEnv(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite schema is up to date")

	out, err = execute(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "failed")
}

func TestReconcileEmptyQueue(t *testing.T) {
	sqliteEnv(t)

	out, err := execute(t, "reconcile", "--passes", "2", "--cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "reconciled 0 rows")
	assert.Contains(t, out, "removed 0 completed rows")
}

func TestVerifyGoalsNoGoals(t *testing.T) {
	sqliteEnv(t)

	out, err := execute(t, "verify-goals", "--user", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, "all savings goals match")
}

func TestMemoryBackendRejected(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")

	_, err := execute(t, "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keeps no state")

	_, err = execute(t, "migrate")
	require.Error(t, err)
}

func TestMirrorRequiresSpreadsheet(t *testing.T) {
	sqliteEnv(t)

	_, err := execute(t, "mirror", "--user", "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_SPREADSHEET_ID")
}
