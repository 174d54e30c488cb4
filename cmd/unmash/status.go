package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencitations/doi-corrector/internal/config"
	"github.com/opencitations/doi-corrector/internal/pipeline"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the identifier store and the last run",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

// StatusReport is the response of the status command.
type StatusReport struct {
	Workspace string         `json:"workspace"`
	Entities  int            `json:"entities"`
	Records   int            `json:"records"`
	LastRun   *LastRunStatus `json:"last_run,omitempty"`
}

// LastRunStatus describes the most recent run.
type LastRunStatus struct {
	ID         string            `json:"id"`
	Dir        string            `json:"dir"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Summary    *pipeline.Summary `json:"summary,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	db := mustOpenDatabase(root)
	defer db.Close()

	entities, records, err := db.CountRecords()
	if err != nil {
		exitWithError(ExitError, "counting records: %v", err)
	}
	report := StatusReport{Workspace: root, Entities: entities, Records: records}

	last, err := db.LastRun()
	if err != nil {
		exitWithError(ExitError, "reading last run: %v", err)
	}
	if last != nil {
		lr := &LastRunStatus{ID: last.ID, Dir: config.RunPath(root, last.ID), StartedAt: last.StartedAt}
		if !last.FinishedAt.IsZero() {
			lr.FinishedAt = &last.FinishedAt
		}
		if last.SummaryJSON != "" {
			var s pipeline.Summary
			if err := json.Unmarshal([]byte(last.SummaryJSON), &s); err != nil {
				logger.Warn().Err(err).Str("run", last.ID).Msg("decoding run summary failed")
			} else {
				lr.Summary = &s
			}
		}
		report.LastRun = lr
	}

	if !humanOutput {
		outputJSON(report)
		return nil
	}

	outputHuman("Workspace: %s\n", root)
	outputHuman("Identifier store: %d entities, %d DOI records\n", entities, records)
	switch {
	case report.LastRun == nil:
		outputHuman("No runs yet\n")
	case report.LastRun.Summary == nil:
		outputHuman("\nLast run %s started %s and did not finish\n", last.ID, last.StartedAt.Local().Format(time.DateTime))
	default:
		outputHuman("\n")
		printSummaryHuman(report.LastRun.Dir, report.LastRun.Summary)
	}
	return nil
}
