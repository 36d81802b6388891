package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	applog "fintrack/internal/log"

	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	logger  *applog.Logger
	rootCmd = &cobra.Command{
		Use:   "fintrack",
		Short: "Administration tool for the fintrack ledger",
		Long: `fintrack administers a fintrack deployment: it applies database
migrations, drains the ledger reconciliation queue, checks savings goals
against their movements and backfills the spreadsheet mirror.

Configuration is read from the environment and an optional .env file.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(verifyGoalsCmd())
	rootCmd.AddCommand(mirrorCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()
	cfg = config.Load()
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger = cli.SetupLogger(cfg, applog.ComponentCLI)
	return nil
}

// openBackend connects to the configured store. The caller must run the
// returned cleanup.
func openBackend(ctx context.Context) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	if bcfg.Type == backend.MemoryBackend {
		return nil, fmt.Errorf("the %s backend keeps no state between runs", bcfg.Type)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	return res, nil
}

func closeBackend(res *backend.BackendResult) {
	if err := res.Cleanup(); err != nil {
		logger.Error("Failed to close backend", "error", err)
	}
}
