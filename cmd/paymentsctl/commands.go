package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/farmbridge/internal/config"
	"github.com/noah-isme/farmbridge/internal/db"
	"github.com/noah-isme/farmbridge/internal/payment"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := db.Migrate(cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func pendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending payments older than a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			limit, _ := cmd.Flags().GetInt("limit")

			deps, ctx, err := openDeps(cmd)
			if err != nil {
				return err
			}
			defer deps.Close()

			rec := deps.Payments().Reconciler
			rec.BatchSize = limit
			rows, err := rec.Stale(ctx, olderThan)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REFERENCE\tAMOUNT\tCURRENCY\tAGE")
			now := time.Now()
			for _, p := range rows {
				amount, _ := db.Decimal(p.Amount)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					p.TransactionReference,
					amount.StringFixed(2),
					p.Currency,
					now.Sub(p.CreatedAt.Time).Truncate(time.Second),
				)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d pending payment(s) older than %s\n", len(rows), olderThan)
			return nil
		},
	}
	cmd.Flags().Duration("older-than", 30*time.Minute, "Minimum age of a pending payment")
	cmd.Flags().IntP("limit", "n", 100, "Maximum rows")
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [reference]",
		Short: "Verify a payment with Paystack and apply the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, ctx, err := openDeps(cmd)
			if err != nil {
				return err
			}
			defer deps.Close()

			result, err := deps.Payments().Reconciler.Reconcile(ctx, args[0], payment.SourceCLI)
			if err != nil && result == "" {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], result)
			return nil
		},
	}
}

func failCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fail [reference]",
		Short: "Force a pending payment to failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, ctx, err := openDeps(cmd)
			if err != nil {
				return err
			}
			defer deps.Close()

			tr, err := deps.Payments().Engine.MarkFailed(ctx, args[0], payment.SourceCLI)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (status %s)\n", args[0], tr.Outcome, tr.Payment.Status)
			return nil
		},
	}
}
