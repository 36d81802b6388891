package main

import (
	"fmt"

	"fintrack/internal/backend"
	"fintrack/internal/worker"

	"github.com/spf13/cobra"
)

func mirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Copy a user's ledger to the spreadsheet mirror",
		Long: `Append every ledger entry of a user to the configured Google Sheets
mirror. Entries already mirrored are skipped, so the command can be rerun.`,
		Args: cobra.NoArgs,
		RunE: runMirror,
	}

	cmd.Flags().String("user", "", "owner whose ledger is mirrored (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runMirror(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetString("user")
	if !cfg.SheetsEnabled() {
		return fmt.Errorf("GOOGLE_SPREADSHEET_ID is not set")
	}

	res, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend(res)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	mirror, err := backend.NewFactory(logger.Logger).CreateMirror(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("create ledger mirror: %w", err)
	}

	synced, err := worker.NewSyncWorker(res.Store, mirror, nil, cfg.ReconcileBatchSize).Backfill(ctx, userID)
	fmt.Fprintf(cmd.OutOrStdout(), "mirrored %d entries\n", synced)
	return err
}
