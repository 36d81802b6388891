package main

import (
	"fmt"

	"fintrack/internal/cli"
	"fintrack/internal/services"

	"github.com/spf13/cobra"
)

func verifyGoalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-goals",
		Short: "Check savings goals against their movements",
		Long: `Replay the movements of every savings goal of a user and report the
goals whose stored amount disagrees. The command fails when any goal drifted.`,
		Args: cobra.NoArgs,
		RunE: runVerifyGoals,
	}

	cmd.Flags().String("user", "", "owner whose goals are checked (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runVerifyGoals(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetString("user")

	res, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend(res)

	lifecycle := services.NewLifecycleService(res.Store, nil, cli.LifecycleConfig(cfg))
	drifts, err := lifecycle.VerifyGoals(ctx, userID)
	if err != nil {
		return fmt.Errorf("verify goals: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(drifts) == 0 {
		fmt.Fprintln(out, "all savings goals match their movements")
		return nil
	}
	for _, d := range drifts {
		fmt.Fprintf(out, "goal %s: stored %s, movements add up to %s\n", d.GoalID, d.Stored, d.Replayed)
	}
	return fmt.Errorf("%d savings goals drifted", len(drifts))
}
