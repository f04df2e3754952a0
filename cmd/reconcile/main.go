// Package main provides the reconcile CLI: batch ingest, dry-run previews
// and reports against the project store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/project-reconciler/internal/app"
	"github.com/project-reconciler/internal/config"
	"github.com/project-reconciler/internal/logging"
)

var (
	// store is opened by PersistentPreRunE and closed after every command.
	store *app.App

	// logLevel overrides LOG_LEVEL when set.
	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile crypto project records from many sources",
	Long: `reconcile loads source payloads into the canonical project store and
reports on its contents. Connection settings come from the environment
and an optional .env file, as for the API server.`,
	SilenceUsage:      true,
	PersistentPreRunE: openStore,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store != nil {
			store.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(duplicatesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(activityCmd)
}

func openStore(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	ctx := logging.WithLogger(context.Background(), logging.GetGlobalLogger())
	cmd.SetContext(ctx)

	store, err = app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	return nil
}
