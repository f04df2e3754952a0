package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	showName        string
	duplicateFields []string
	historyLimit    int
	activityWindow  time.Duration
)

var showCmd = &cobra.Command{
	Use:   "show [uid]",
	Short: "Print one project record",
	Long: `Show prints a record by project_uid, or by name with --name.

Example:
  reconcile show 7f0c7a8e-7d1b-4f36-9c43-0a0c36c1d2a4
  reconcile show --name "Digital Gold"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case len(args) == 1:
			p, err := store.Service.GetByUID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("project %q not found", args[0])
			}
			return printJSON(p)
		case showName != "":
			p, err := store.Service.GetByName(cmd.Context(), showName)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("no project named %q", showName)
			}
			return printJSON(p)
		default:
			return fmt.Errorf("give a project uid or --name")
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count projects in total and per source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := store.Service.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List tickers shared by more than one project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		groups, err := store.Service.DuplicatesByTicker(cmd.Context(), duplicateFields)
		if err != nil {
			return err
		}
		return printJSON(groups)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <uid>",
	Short: "Show the upsert history of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if store.Events == nil {
			return fmt.Errorf("upsert event log is disabled; set EVENTS_ENABLED=true")
		}
		events, err := store.Events.History(cmd.Context(), strings.TrimSpace(args[0]), historyLimit)
		if err != nil {
			return err
		}
		return printJSON(events)
	},
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Summarise upserts per source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if store.Events == nil {
			return fmt.Errorf("upsert event log is disabled; set EVENTS_ENABLED=true")
		}
		activity, err := store.Events.ActivitySince(cmd.Context(), time.Now().UTC().Add(-activityWindow))
		if err != nil {
			return err
		}
		return printJSON(activity)
	},
}

func init() {
	showCmd.Flags().StringVar(&showName, "name", "", "look the project up by name (case-insensitive)")
	duplicatesCmd.Flags().StringSliceVar(&duplicateFields, "exclude", nil, "fields to omit from each record")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of events")
	activityCmd.Flags().DurationVar(&activityWindow, "since", 24*time.Hour, "how far back to look")
}
