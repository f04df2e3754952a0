package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <source> <file>",
	Short: "Upsert every payload in a JSON or YAML file",
	Long: `Ingest reads a file of payloads scraped from one source and upserts them
in order. Items that fail are reported and skipped.

Example:
  reconcile ingest coingecko ./coingecko.json
  reconcile ingest dextools ./dextools.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	source, path := args[0], args[1]

	payloads, err := readPayloads(path)
	if err != nil {
		return err
	}

	result := store.Service.BulkUpsert(cmd.Context(), payloads, source)
	if err := printJSON(result); err != nil {
		return err
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("%d of %d payloads failed", len(result.Failures), len(payloads))
	}
	return nil
}
