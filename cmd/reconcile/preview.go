package main

import (
	"encoding/json"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/project-reconciler/internal/models"
)

var previewCmd = &cobra.Command{
	Use:   "preview <source> <file>",
	Short: "Show what ingesting a payload would change",
	Long: `Preview merges each payload against the stored record without writing
and prints a unified diff of the record before and after.`,
	Args: cobra.ExactArgs(2),
	RunE: runPreview,
}

func runPreview(cmd *cobra.Command, args []string) error {
	source, path := args[0], args[1]

	payloads, err := readPayloads(path)
	if err != nil {
		return err
	}

	for i, payload := range payloads {
		preview, err := store.Service.Preview(cmd.Context(), payload, source)
		if err != nil {
			return fmt.Errorf("payload %d: %w", i, err)
		}
		for _, w := range preview.Warnings {
			fmt.Printf("# warning: %s\n", w)
		}
		diff, err := projectDiff(preview.Before, preview.After)
		if err != nil {
			return err
		}
		if diff == "" {
			fmt.Printf("# payload %d: no changes\n", i)
			continue
		}
		fmt.Print(diff)
	}
	return nil
}

// projectDiff renders the change from before to after as a unified diff of
// their indented JSON documents. before may be nil for a new record.
func projectDiff(before, after *models.Project) (string, error) {
	a, err := projectLines(before)
	if err != nil {
		return "", err
	}
	b, err := projectLines(after)
	if err != nil {
		return "", err
	}

	from := "(new)"
	if before != nil {
		from = before.UID
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: from,
		ToFile:   after.UID,
		Context:  3,
	})
}

func projectLines(p *models.Project) ([]string, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.MarshalIndent(p.Document(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal project: %w", err)
	}
	return difflib.SplitLines(string(data) + "\n"), nil
}
