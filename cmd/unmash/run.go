package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/opencitations/doi-corrector/internal/config"
	"github.com/opencitations/doi-corrector/internal/entity"
	"github.com/opencitations/doi-corrector/internal/merge"
	"github.com/opencitations/doi-corrector/internal/metrics"
	"github.com/opencitations/doi-corrector/internal/pipeline"
	"github.com/opencitations/doi-corrector/internal/storage"
)

var (
	runFresh      bool
	runEntities   []string
	runUnfinished bool
)

func init() {
	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "Discard checkpoints and collect every edge again")
	runCmd.Flags().StringSliceVar(&runEntities, "entity", nil, "Only process these entity URIs (repeatable)")
	runCmd.Flags().BoolVar(&runUnfinished, "unfinished", false, "Only process entities the last finished run left failed, partially failed or skipped, or whose DOI lookups failed")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract, resolve and reconcile every imported entity",
	Long: `Run the whole pipeline over the identifier store.

Edges and page cursors are checkpointed in the workspace database as pages
arrive. An interrupted or partially failed run resumes from the last saved
page on the next invocation; directions that were read to the end are not
queried again unless --fresh is given.

Outputs go to .unmash/runs/<run-id>/:
  edges.jsonl     collected edges, one per line
  metadata.jsonl  resolved DOI metadata
  metadata.csv    the same, in OpenCitations Meta column order
  result.json     groups, redirects, ambiguous and discarded edges
  result.csv      flat upload format
  summary.json    per-entity and per-DOI outcomes

Exit code 4 means the run finished but some entities or DOIs should be
re-run (see --unfinished).

Usage:
  unmash run
  unmash run --unfinished
  unmash run --entity https://w3id.org/oc/meta/br/0601 --fresh`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	mashed := mustSelectEntities(root, db, runEntities, runUnfinished)
	if runFresh {
		for _, m := range mashed {
			if err := db.ClearCheckpoint(m.Ref.URI); err != nil {
				exitWithError(ExitError, "clearing checkpoint of %s: %v", m.Ref.URI, err)
			}
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	dir := config.RunPath(root, runID)
	m := metrics.New()
	p := pipeline.New(newIndexClient(cfg, m), newResolver(cfg, m),
		pipeline.WithCheckpoints(db),
		pipeline.WithMetrics(m),
		pipeline.WithLogger(logger),
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithLookupConcurrency(cfg.LookupConcurrency),
		pipeline.WithRunID(runID),
	)

	if err := db.StartRun(runID, time.Now()); err != nil {
		exitWithError(ExitError, "recording run: %v", err)
	}

	report, err := p.Run(ctx, mashed)
	if errors.Is(err, pipeline.ErrPreflight) {
		if derr := db.DeleteRun(runID); derr != nil {
			logger.Warn().Err(derr).Str("run_id", runID).Msg("forgetting aborted run failed")
		}
		exitWithError(ExitConfigError, "%v", err)
	}
	if report == nil {
		exitWithError(ExitError, "run failed: %v", err)
	}

	if err := pipeline.WriteReport(dir, report); err != nil {
		exitWithError(ExitError, "writing outputs: %v", err)
	}
	summaryJSON, err := json.Marshal(report.Summary)
	if err != nil {
		exitWithError(ExitError, "encoding summary: %v", err)
	}
	if err := db.FinishRun(runID, report.Summary.FinishedAt, string(summaryJSON)); err != nil {
		exitWithError(ExitError, "recording run: %v", err)
	}
	writeMetrics(m)

	return finishRun(ctx, dir, report.Summary)
}

// finishRun prints the summary and exits with the code matching the outcome.
func finishRun(ctx context.Context, dir string, s *pipeline.Summary) error {
	resp := RunResponse{
		RunID:      s.RunID,
		Dir:        dir,
		Summary:    s,
		Unfinished: s.Unfinished(),
		FailedDOIs: s.FailedDOIs(),
	}
	if humanOutput {
		printSummaryHuman(dir, s)
	} else {
		outputJSON(resp)
	}

	switch {
	case ctx.Err() != nil:
		os.Exit(ExitInterrupted)
	case len(resp.Unfinished) > 0 || len(resp.FailedDOIs) > 0:
		os.Exit(ExitIncomplete)
	}
	return nil
}

// mustSelectEntities loads the entities to process, exits on error.
func mustSelectEntities(root string, db *storage.DB, uris []string, unfinished bool) []entity.Mashed {
	all, err := db.ListMashed()
	if err != nil {
		exitWithError(ExitError, "listing entities: %v", err)
	}
	if len(all) == 0 {
		exitWithError(ExitDataError, "identifier store is empty\n\nRun 'unmash import <review.csv>' first.")
	}

	if unfinished {
		last, err := db.LastFinishedRun()
		if err != nil {
			exitWithError(ExitError, "reading last run: %v", err)
		}
		if last == nil {
			exitWithError(ExitDataError, "no finished run to resume from")
		}
		var s pipeline.Summary
		if err := json.Unmarshal([]byte(last.SummaryJSON), &s); err != nil {
			exitWithError(ExitDataError, "decoding summary of run %s: %v", last.ID, err)
		}
		uris = append(uris, s.Rerun(all, lastDataset(config.RunPath(root, last.ID)))...)
		if len(uris) == 0 {
			if humanOutput {
				outputHuman("Run %s left nothing unfinished\n", last.ID)
			} else {
				outputJSON(StatusResponse{Status: "nothing-unfinished"})
			}
			os.Exit(ExitSuccess)
		}
	}

	selected, missing := selectEntities(all, uris)
	if len(missing) > 0 {
		exitWithError(ExitDataError, "unknown entities: %v", missing)
	}
	return selected
}

// lastDataset loads a previous run's edges for counterpart DOIs. A run directory
// without edges.jsonl yields nil.
func lastDataset(dir string) *merge.Dataset {
	if _, err := os.Stat(filepath.Join(dir, storage.EdgesFile)); err != nil {
		return nil
	}
	ds, err := pipeline.LoadDataset(dir)
	if err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("loading edges of last run failed")
		return nil
	}
	return ds
}

// selectEntities keeps the entities named in uris, in store order. An empty
// uris selects everything. Unknown URIs are returned as missing.
func selectEntities(all []entity.Mashed, uris []string) (selected []entity.Mashed, missing []string) {
	if len(uris) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(uris))
	for _, u := range uris {
		want[u] = true
	}
	for _, m := range all {
		if want[m.Ref.URI] {
			selected = append(selected, m)
			delete(want, m.Ref.URI)
		}
	}
	for _, u := range uris {
		if want[u] {
			missing = append(missing, u)
			delete(want, u)
		}
	}
	return selected, missing
}
