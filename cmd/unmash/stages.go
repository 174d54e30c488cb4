package main

import (
	"errors"
	"fmt"
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
	"github.com/opencitations/doi-corrector/internal/resolver"
	"github.com/opencitations/doi-corrector/internal/storage"
)

var (
	extractEntities []string
	resolveCSV      bool
)

func init() {
	extractCmd.Flags().StringSliceVar(&extractEntities, "entity", nil, "Only extract these entity URIs (repeatable)")
	resolveCmd.Flags().BoolVar(&resolveCSV, "csv", false, "Print resolved metadata as OpenCitations Meta CSV instead of a summary")
	rootCmd.AddCommand(extractCmd, resolveCmd, reconcileCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Collect the citation edges of every imported entity",
	Long: `Collect the citation edges of every imported entity into a new run
directory (edges.jsonl and summary.json). Progress is checkpointed like
'unmash run'.

Follow with 'unmash resolve <run>' and 'unmash reconcile <run>'.`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <run>",
	Short: "Resolve the metadata of every DOI an extraction surfaced",
	Long: `Resolve the metadata of the reviewed DOIs and of the counterpart DOIs
found in a run's edges.jsonl. Writes metadata.jsonl and metadata.csv into
the run directory. <run> is a run ID or a run directory.

Usage:
  unmash resolve 3f0c...        # by run ID
  unmash resolve 3f0c... --csv  # also print the Meta CSV`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <run>",
	Short: "Attribute a run's edges to the reviewed DOIs",
	Long: `Match the edges of a run against the reviewed DOIs using the metadata
resolved by 'unmash resolve'. No network access. Writes result.json and
result.csv into the run directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

func runExtract(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)
	db := mustOpenDatabase(root)
	defer db.Close()

	mashed := mustSelectEntities(root, db, extractEntities, false)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	dir := config.RunPath(root, runID)
	m := metrics.New()
	p := pipeline.New(newIndexClient(cfg, m), nil,
		pipeline.WithCheckpoints(db),
		pipeline.WithMetrics(m),
		pipeline.WithLogger(logger),
		pipeline.WithConcurrency(cfg.Concurrency),
	)

	started := time.Now()
	if err := p.Preflight(ctx); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	collections := p.Extract(ctx, mashed)
	summary := pipeline.Summarize(runID, started, time.Now(), collections, nil, nil)
	summary.Canceled = ctx.Err() != nil
	m.RunFinished(summary.StartedAt, summary.FinishedAt)

	report := &pipeline.Report{Summary: summary, Collections: collections}
	if err := pipeline.WriteReport(dir, report); err != nil {
		exitWithError(ExitError, "writing outputs: %v", err)
	}
	writeMetrics(m)

	return finishRun(ctx, dir, summary)
}

func runResolve(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	cfg := mustLoadConfig(root)
	dir := mustRunDir(root, args[0])
	db := mustOpenDatabase(root)
	defer db.Close()

	ds, err := pipeline.LoadDataset(dir)
	if err != nil {
		exitWithError(ExitDataError, "loading edges: %v", err)
	}
	mashed := mustRunEntities(root, db, dir, ds)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	p := pipeline.New(nil, newResolver(cfg, m),
		pipeline.WithMetrics(m),
		pipeline.WithLogger(logger),
		pipeline.WithLookupConcurrency(cfg.LookupConcurrency),
	)
	started := time.Now()
	outcomes := p.Resolve(ctx, mashed, ds)
	if err := pipeline.WriteMetadata(dir, outcomes); err != nil {
		exitWithError(ExitError, "writing metadata: %v", err)
	}
	writeMetrics(m)

	if resolveCSV {
		if err := storage.WriteMetaCSV(os.Stdout, pipeline.FoundMetadata(outcomes)); err != nil {
			exitWithError(ExitError, "writing csv: %v", err)
		}
		return nil
	}

	summary := pipeline.Summarize(filepath.Base(dir), started, time.Now(), nil, outcomes, nil)
	summary.Canceled = ctx.Err() != nil
	return finishRun(ctx, dir, summary)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	root := mustFindWorkspace()
	dir := mustRunDir(root, args[0])
	db := mustOpenDatabase(root)
	defer db.Close()

	ds, err := pipeline.LoadDataset(dir)
	if err != nil {
		exitWithError(ExitDataError, "loading edges: %v", err)
	}
	mashed := mustRunEntities(root, db, dir, ds)
	records, err := pipeline.LoadMetadata(dir)
	if err != nil {
		exitWithError(ExitDataError, "loading metadata: %v", err)
	}

	// Offline: every lookup is answered from metadata.jsonl.
	res := resolver.New(nil, resolver.WithLogger(logger))
	res.Seed(records...)
	p := pipeline.New(nil, res, pipeline.WithLogger(logger))

	started := time.Now()
	results := p.Reconcile(mashed, ds)
	if err := pipeline.WriteReport(dir, &pipeline.Report{Results: results}); err != nil {
		exitWithError(ExitError, "writing results: %v", err)
	}

	summary := pipeline.Summarize(filepath.Base(dir), started, time.Now(), nil, nil, results)
	return finishRun(cmd.Context(), dir, summary)
}

// mustRunEntities selects the stored entities a run directory covers, exits on error.
func mustRunEntities(root string, db *storage.DB, dir string, ds *merge.Dataset) []entity.Mashed {
	uris, err := pipeline.RunEntities(dir, ds)
	if err != nil {
		exitWithError(ExitDataError, "reading run entities: %v", err)
	}
	if len(uris) == 0 {
		exitWithError(ExitDataError, "run %s covers no entities", filepath.Base(dir))
	}
	return mustSelectEntities(root, db, uris, false)
}

// mustRunDir resolves a run ID or path to an existing run directory, exits on error.
func mustRunDir(root, arg string) string {
	dir, err := runDir(root, arg)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	return dir
}

var errNoRun = errors.New("no such run")

// runDir accepts a run directory path or a run ID under the workspace.
func runDir(root, arg string) (string, error) {
	for _, dir := range []string{arg, config.RunPath(root, arg)} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%w: %s", errNoRun, arg)
}
