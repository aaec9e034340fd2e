// Package main is the entry point for the loopersim CLI, a simulated
// scripting runtime that exercises the loop quit coordination end to end.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loopersim",
		Short:         "Simulated scripting runtime built on coordinated message loops",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to loopersim.toml (defaults built in)")

	root.AddCommand(
		runCmd(),
		configCmd(),
	)

	return root
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulated script until its loops quit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return executeRun(ctx, cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int("workers", -1, "override runtime.workers (-1 = use config)")
	cmd.Flags().Int("timers", -1, "override runtime.timers (-1 = use config)")
	cmd.Flags().Bool("no-servant", false, "do not use the servant loop")
	cmd.Flags().Bool("no-confirm", false, "never confirm quit; the main loop waits for SIGINT")
	cmd.Flags().String("metrics-addr", "", "serve /metrics on this address (enables metrics)")
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), cfg)
		},
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
