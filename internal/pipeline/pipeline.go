// Package pipeline runs the extraction and reconciliation stages over every
// mashed entity of the identifier store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/opencitations/doi-corrector/internal/collect"
	"github.com/opencitations/doi-corrector/internal/edge"
	"github.com/opencitations/doi-corrector/internal/entity"
	"github.com/opencitations/doi-corrector/internal/logging"
	"github.com/opencitations/doi-corrector/internal/matcher"
	"github.com/opencitations/doi-corrector/internal/merge"
	"github.com/opencitations/doi-corrector/internal/metrics"
	"github.com/opencitations/doi-corrector/internal/opencitations"
	"github.com/opencitations/doi-corrector/internal/remote"
	"github.com/opencitations/doi-corrector/internal/resolver"
)

// DefaultConcurrency bounds entities processed at once.
const DefaultConcurrency = 4

// ErrPreflight wraps configuration problems found before any entity is processed.
// It is the only error that aborts a run.
var ErrPreflight = errors.New("preflight failed")

// Checkpointer persists collected edges and cursors so an interrupted run can resume.
type Checkpointer interface {
	SaveEdges(entityURI string, edges []edge.CitationEdge) error
	LoadEdges(entityURI string) ([]edge.CitationEdge, error)
	SaveCursor(entityURI string, source edge.Source, c collect.Cursor) error
	LoadCursors(entityURI string) (map[edge.Source]collect.Cursor, error)
}

// Pipeline wires the index client, the metadata resolver and the matcher.
type Pipeline struct {
	index             *opencitations.Client
	resolver          *resolver.Resolver
	store             Checkpointer
	metrics           *metrics.Metrics
	logger            zerolog.Logger
	concurrency       int
	lookupConcurrency int
	runID             string
	now               func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCheckpoints persists progress to store and resumes from it.
func WithCheckpoints(store Checkpointer) Option {
	return func(p *Pipeline) {
		p.store = store
	}
}

// WithMetrics records run counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithConcurrency bounds entities processed at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLookupConcurrency bounds metadata lookups in flight.
func WithLookupConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.lookupConcurrency = n
		}
	}
}

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		p.runID = id
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a Pipeline.
func New(index *opencitations.Client, res *resolver.Resolver, opts ...Option) *Pipeline {
	p := &Pipeline{
		index:             index,
		resolver:          res,
		logger:            zerolog.Nop(),
		concurrency:       DefaultConcurrency,
		lookupConcurrency: resolver.DefaultConcurrency,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Report is everything a run produced.
type Report struct {
	Summary     *Summary
	Collections []*collect.Collection
	Dataset     *merge.Dataset
	Outcomes    map[string]resolver.Outcome
	Results     []*matcher.Result
}

// Run executes every stage for the given entities. A canceled context stops new
// requests; the partial report is returned together with the context error.
func (p *Pipeline) Run(ctx context.Context, mashed []entity.Mashed) (*Report, error) {
	started := p.now()
	runID := p.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := logging.WithRun(p.logger, runID)
	logger.Info().Int("entities", len(mashed)).Msg("run started")

	if err := p.Preflight(ctx); err != nil {
		return nil, err
	}

	collections := p.Extract(ctx, mashed)
	ds := merge.Merge(collections...)
	outcomes := p.Resolve(ctx, mashed, ds)
	results := p.Reconcile(mashed, ds)

	finished := p.now()
	summary := Summarize(runID, started, finished, collections, outcomes, results)
	summary.Canceled = ctx.Err() != nil
	if p.metrics != nil {
		p.metrics.RunFinished(started, finished)
	}
	logger.Info().
		Int("edges", ds.Len()).
		Int("lookups", p.resolver.Lookups()).
		Interface("entity_status", summary.EntityStatus).
		Dur("elapsed", finished.Sub(started)).
		Msg("run finished")

	report := &Report{
		Summary:     summary,
		Collections: collections,
		Dataset:     ds,
		Outcomes:    outcomes,
		Results:     results,
	}
	return report, ctx.Err()
}

// Preflight checks the index endpoint before any entity is touched. Only bad
// credentials and an unreachable endpoint abort; any other failure is logged and
// left to the per-entity handling.
func (p *Pipeline) Preflight(ctx context.Context) error {
	err := p.index.Ping(ctx)
	switch {
	case err == nil:
		return nil
	case remote.IsAuthError(err), errors.Is(err, remote.ErrUnreachable):
		return fmt.Errorf("%w: %w", ErrPreflight, err)
	case ctx.Err() != nil:
		return ctx.Err()
	}
	p.logger.Warn().Err(err).Msg("preflight check failed, continuing")
	return nil
}

// Extract collects the edges of every entity, at most concurrency at a time.
// The result is in input order. Entities not started before cancellation are skipped.
func (p *Pipeline) Extract(ctx context.Context, mashed []entity.Mashed) []*collect.Collection {
	out := make([]*collect.Collection, len(mashed))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, m := range mashed {
		g.Go(func() error {
			out[i] = p.extractOne(ctx, m.Ref)
			if p.metrics != nil {
				p.metrics.EntityDone(string(out[i].Status))
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pipeline) extractOne(ctx context.Context, ref entity.Ref) *collect.Collection {
	logger := logging.WithEntity(p.logger, ref.URI)
	if ctx.Err() != nil {
		return &collect.Collection{Entity: ref, Status: collect.StatusSkipped, Errors: []error{ctx.Err()}}
	}

	prior, seed := p.loadCheckpoint(ref.URI, logger)

	var citing, cited collect.Pager
	if c := prior[edge.SourceCitingQuery]; !c.Done {
		citing = p.index.CitingEdges(ref).Resume(c.Offset)
	}
	if c := prior[edge.SourceCitedQuery]; !c.Done {
		cited = p.index.CitedEdges(ref).Resume(c.Offset)
	}
	if len(seed) > 0 || len(prior) > 0 {
		logger.Info().Int("edges", len(seed)).Msg("resuming from checkpoint")
	}

	var mu sync.Mutex
	pages := map[edge.Source]int{
		edge.SourceCitingQuery: prior[edge.SourceCitingQuery].Pages,
		edge.SourceCitedQuery:  prior[edge.SourceCitedQuery].Pages,
	}
	onPage := func(source edge.Source, next int, edges []edge.CitationEdge) {
		mu.Lock()
		pages[source]++
		n := pages[source]
		mu.Unlock()
		if p.metrics != nil {
			p.metrics.PageFetched(string(source), len(edges))
		}
		if p.store == nil {
			return
		}
		// Edges first, so a saved cursor never points past unsaved edges.
		if err := p.store.SaveEdges(ref.URI, edges); err != nil {
			logger.Warn().Err(err).Msg("checkpointing edges failed")
			return
		}
		if err := p.store.SaveCursor(ref.URI, source, collect.Cursor{Offset: next, Pages: n}); err != nil {
			logger.Warn().Err(err).Msg("checkpointing cursor failed")
		}
	}

	c := collect.Collect(ctx, ref, citing, cited,
		collect.Seed(seed...),
		collect.WithLogger(p.logger),
		collect.OnPage(onPage),
	)

	for source, cur := range c.Cursors {
		if before, ok := prior[source]; ok && before.Done {
			cur = before
		} else {
			cur.Pages += before.Pages
		}
		c.Cursors[source] = cur
		if p.store != nil {
			if err := p.store.SaveCursor(ref.URI, source, cur); err != nil {
				logger.Warn().Err(err).Msg("checkpointing cursor failed")
			}
		}
	}

	ev := logger.Info()
	if c.Status != collect.StatusSuccess && c.Status != collect.StatusRetried {
		ev = logger.Warn().Err(c.Err())
	}
	ev.Str("status", string(c.Status)).Int("edges", len(c.Edges)).Msg("entity collected")
	return c
}

func (p *Pipeline) loadCheckpoint(uri string, logger zerolog.Logger) (map[edge.Source]collect.Cursor, []edge.CitationEdge) {
	if p.store == nil {
		return nil, nil
	}
	cursors, err := p.store.LoadCursors(uri)
	if err != nil {
		logger.Warn().Err(err).Msg("loading cursors failed, starting over")
		return nil, nil
	}
	edges, err := p.store.LoadEdges(uri)
	if err != nil {
		logger.Warn().Err(err).Msg("loading edges failed, starting over")
		return nil, nil
	}
	return cursors, edges
}

// Resolve looks up every DOI of the identifier store and every counterpart DOI
// the collected edges surfaced. Outcomes are keyed by normalized DOI.
func (p *Pipeline) Resolve(ctx context.Context, mashed []entity.Mashed, ds *merge.Dataset) map[string]resolver.Outcome {
	var dois []string
	for _, m := range mashed {
		dois = append(dois, m.DOIs()...)
		if ds != nil {
			dois = append(dois, ds.CounterpartDOIs(m.Ref.URI)...)
		}
	}
	p.logger.Info().Int("dois", len(dois)).Msg("resolving metadata")
	return p.resolver.ResolveAll(ctx, dois, p.lookupConcurrency)
}

// Reconcile matches each entity's edges against its DOI records using the
// metadata resolved so far. A result that fails verification is logged and kept.
func (p *Pipeline) Reconcile(mashed []entity.Mashed, ds *merge.Dataset) []*matcher.Result {
	results := make([]*matcher.Result, 0, len(mashed))
	for _, m := range mashed {
		res := matcher.Match(m, ds.ForEntity(m.Ref.URI), p.resolver)
		if err := res.Verify(); err != nil {
			entityLogger := logging.WithEntity(p.logger, m.Ref.URI)
			entityLogger.Error().Err(err).Msg("result verification failed")
		}
		if p.metrics != nil {
			p.metrics.EdgesPlacedIn("group", res.Counts.Grouped)
			p.metrics.EdgesPlacedIn("redirect", res.Counts.Redirected)
			p.metrics.EdgesPlacedIn("ambiguous", res.Counts.Ambiguous)
			p.metrics.EdgesPlacedIn("discarded", res.Counts.Discarded)
		}
		results = append(results, res)
	}
	return results
}
