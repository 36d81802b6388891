package main

import (
	"fmt"
	"text/tabwriter"

	"fintrack/internal/cli"
	"fintrack/internal/services"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show reconciliation queue counts",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	res, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend(res)

	reconciler := services.NewLedgerReconciler(res.Store, nil, cli.ReconcilerConfig(cfg))
	stats, err := reconciler.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read queue stats: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "pending\t%d\n", stats.Pending)
	fmt.Fprintf(w, "processing\t%d\n", stats.Processing)
	fmt.Fprintf(w, "completed\t%d\n", stats.Completed)
	fmt.Fprintf(w, "failed\t%d\n", stats.Failed)
	return w.Flush()
}
