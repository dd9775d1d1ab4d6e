package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noah-isme/farmbridge/internal/app"
	"github.com/noah-isme/farmbridge/internal/config"
	"github.com/noah-isme/farmbridge/internal/obs"
	"github.com/noah-isme/farmbridge/internal/resilience"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "paymentsctl",
		Short:         "Operate FarmBridge payments: migrations, stale pending payments, manual reconciliation",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(pendingCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(failCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openDeps loads configuration and connects to the shared infrastructure.
// The command context carries the logger so engine and reconciler events are
// written to stderr.
func openDeps(cmd *cobra.Command) (*app.Dependencies, context.Context, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	level, _ := cmd.Flags().GetString("log-level")
	logger := obs.NewLogger("console", level).With().Str("component", "paymentsctl").Logger()
	obs.MustRegisterDomainMetrics("farmbridge", nil)
	resilience.MustRegisterMetrics("farmbridge", nil)

	ctx := logger.WithContext(cmd.Context())
	deps, err := app.Open(ctx, cfg, logger, app.Options{})
	if err != nil {
		return nil, nil, err
	}
	return deps, ctx, nil
}
