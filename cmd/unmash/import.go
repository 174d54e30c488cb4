package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/opencitations/doi-corrector/internal/entity"
	"github.com/opencitations/doi-corrector/internal/storage"
)

var importDryRun bool

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate the file without writing")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <review.csv>",
	Short: "Import reviewed DOI dispositions into the identifier store",
	Long: `Import the DOI review into the identifier store.

The CSV header must contain entity, doi, disposition and target; kind is
optional. disposition is one of unvalidated, belongs, misassigned or
invalid (empty means unvalidated). target is only allowed for
misassigned DOIs and may be left empty when the correct entity is not
known yet.

Importing replaces the whole identifier store.

Usage:
  unmash import review.csv
  unmash import review.csv --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

// ImportResult reports what an import stored.
type ImportResult struct {
	Entities      int                        `json:"entities"`
	Records       int                        `json:"records"`
	Dispositions  map[entity.Disposition]int `json:"dispositions"`
	PendingTarget int                        `json:"pending_target"`
	DryRun        bool                       `json:"dry_run,omitempty"`
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		exitWithError(ExitError, "opening %s: %v", args[0], err)
	}
	defer f.Close()

	mashed, err := storage.ReadRecordsCSV(f)
	if err != nil {
		exitWithError(ExitDataError, "reading %s: %v", args[0], err)
	}

	result := summarizeImport(mashed)
	result.DryRun = importDryRun

	if !importDryRun {
		root := mustFindWorkspace()
		db := mustOpenDatabase(root)
		defer db.Close()

		n, err := db.ImportRecords(mashed)
		if err != nil {
			exitWithError(ExitError, "importing records: %v", err)
		}
		result.Records = n
	}

	if humanOutput {
		verb := "Imported"
		if importDryRun {
			verb = "Would import"
		}
		outputHuman("%s %d records for %d entities\n", verb, result.Records, result.Entities)
		for _, d := range entity.ValidDispositions {
			if n := result.Dispositions[d]; n > 0 {
				outputHuman("  %-12s %d\n", d, n)
			}
		}
		if result.PendingTarget > 0 {
			outputHuman("  %d misassigned DOIs have no target yet\n", result.PendingTarget)
		}
	} else {
		outputJSON(result)
	}
	return nil
}

// summarizeImport counts records by disposition.
func summarizeImport(mashed []entity.Mashed) ImportResult {
	result := ImportResult{
		Entities:     len(mashed),
		Dispositions: make(map[entity.Disposition]int),
	}
	for _, m := range mashed {
		for _, r := range m.Records {
			result.Records++
			result.Dispositions[r.Disposition]++
			if r.PendingTarget() {
				result.PendingTarget++
			}
		}
	}
	return result
}
