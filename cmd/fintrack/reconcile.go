package main

import (
	"fmt"

	"fintrack/internal/cli"
	"fintrack/internal/services"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Drain the ledger reconciliation queue",
		Long: `Sweep anchors still flagged as awaiting their ledger entry into the
reconciliation queue and process it until a pass completes nothing or the
pass limit is reached.`,
		Args: cobra.NoArgs,
		RunE: runReconcile,
	}

	cmd.Flags().Int("passes", 10, "maximum number of reconciliation passes")
	cmd.Flags().Bool("retry-failed", false, "reset failed rows to pending before reconciling")
	cmd.Flags().Bool("cleanup", false, "remove completed rows older than the retention window")

	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	passes, _ := cmd.Flags().GetInt("passes")
	retryFailed, _ := cmd.Flags().GetBool("retry-failed")
	cleanup, _ := cmd.Flags().GetBool("cleanup")
	if passes < 1 {
		return fmt.Errorf("--passes must be at least 1")
	}

	res, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend(res)

	var notifier services.Notifier = services.NopNotifier{}
	if res.AMQP != nil {
		notifier = services.NewAMQPNotifier(res.AMQP)
	}
	reconciler := services.NewLedgerReconciler(res.Store, notifier, cli.ReconcilerConfig(cfg))
	out := cmd.OutOrStdout()

	if retryFailed {
		n, err := reconciler.RetryFailed(ctx)
		if err != nil {
			return fmt.Errorf("retry failed rows: %w", err)
		}
		fmt.Fprintf(out, "reset %d failed rows\n", n)
	}

	total := 0
	for i := 0; i < passes; i++ {
		n, err := reconciler.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("reconciliation pass %d: %w", i+1, err)
		}
		total += n
		if n == 0 {
			break
		}
	}
	fmt.Fprintf(out, "reconciled %d rows\n", total)

	if cleanup {
		n, err := reconciler.Cleanup(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %d completed rows\n", n)
	}
	return nil
}
