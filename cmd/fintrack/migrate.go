package main

import (
	"fmt"

	"fintrack/internal/storage"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Bring the configured sqlite or postgres database up to the latest
schema version. Running it against an up-to-date database is a no-op.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	var (
		dialect storage.Dialect
		dsn     string
	)
	switch cfg.DataBackend {
	case "sqlite":
		dialect, dsn = storage.DialectSQLite, cfg.SQLiteDBPath
	case "postgres":
		dialect, dsn = storage.DialectPostgres, cfg.DatabaseURL
	default:
		return fmt.Errorf("backend %q has no schema to migrate", cfg.DataBackend)
	}

	logger.Info("Applying database migrations", "backend", cfg.DataBackend)
	if err := storage.RunMigrations(dialect, dsn); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.DataBackend)
	return nil
}
