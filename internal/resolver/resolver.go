// Package resolver resolves DOIs to bibliographic metadata through a chain of
// registries, with a run-scoped cache shared by all callers.
package resolver

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/opencitations/doi-corrector/internal/doi"
	"github.com/opencitations/doi-corrector/internal/reference"
	"github.com/opencitations/doi-corrector/internal/remote"
)

// DefaultConcurrency bounds concurrent lookups in ResolveAll.
const DefaultConcurrency = 4

// Status summarizes an Outcome.
type Status string

const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not-found"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Outcome is the result of resolving one DOI. Not-found is a valid terminal
// outcome: Found is false and Err is nil.
type Outcome struct {
	DOI      string              `json:"doi"`
	Metadata *reference.Metadata `json:"metadata,omitempty"`
	Found    bool                `json:"found"`
	Attempts int                 `json:"attempts,omitempty"`
	Err      error               `json:"-"`
}

// Status classifies the outcome.
func (o Outcome) Status() Status {
	switch {
	case o.Found:
		return StatusFound
	case o.Err == nil:
		return StatusNotFound
	case errors.Is(o.Err, context.Canceled) || errors.Is(o.Err, context.DeadlineExceeded):
		return StatusCanceled
	default:
		return StatusFailed
	}
}

// Recorder receives lookup outcomes, typically for metrics.
type Recorder interface {
	LookupDone(status string)
}

// Resolver caches registry lookups for the duration of a run. Concurrent
// requests for the same DOI share one registry lookup.
// It is safe for concurrent use.
type Resolver struct {
	registry Registry
	logger   zerolog.Logger
	recorder Recorder

	mu      sync.RWMutex
	cache   map[string]Outcome
	group   singleflight.Group
	lookups int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithRecorder sets the lookup outcome recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) {
		r.recorder = rec
	}
}

// New creates a resolver over a registry (usually a Chain).
func New(registry Registry, opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry,
		logger:   zerolog.Nop(),
		cache:    make(map[string]Outcome),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seed preloads the cache, e.g. from metadata persisted by an earlier run.
func (r *Resolver) Seed(records ...*reference.Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, md := range records {
		if md == nil {
			continue
		}
		d := doi.Normalize(md.DOI)
		r.cache[d] = Outcome{DOI: d, Metadata: md, Found: true}
	}
}

// Resolve returns the outcome for a DOI, performing at most one registry lookup
// per DOI per run. Canceled lookups are not cached.
func (r *Resolver) Resolve(ctx context.Context, raw string) Outcome {
	d := doi.Normalize(raw)
	if out, ok := r.Cached(d); ok {
		return out
	}

	for {
		ch := r.group.DoChan(d, func() (any, error) {
			return r.lookup(ctx, d), nil
		})
		select {
		case <-ctx.Done():
			return Outcome{DOI: d, Err: ctx.Err()}
		case res := <-ch:
			out := res.Val.(Outcome)
			if out.Status() == StatusCanceled && ctx.Err() == nil {
				// The caller that led the flight was canceled; take over.
				continue
			}
			return out
		}
	}
}

func (r *Resolver) lookup(ctx context.Context, d string) Outcome {
	if out, ok := r.Cached(d); ok {
		return out
	}

	r.mu.Lock()
	r.lookups++
	r.mu.Unlock()

	out := Outcome{DOI: d}
	md, err := r.registry.Lookup(ctx, d)
	switch {
	case err == nil:
		out.Metadata = md
		out.Found = true
	case remote.IsNotFound(err):
	default:
		out.Err = err
		out.Attempts = remote.Attempts(err)
	}

	status := out.Status()
	if r.recorder != nil {
		r.recorder.LookupDone(string(status))
	}
	if status == StatusCanceled {
		return out
	}
	if status == StatusFailed {
		r.logger.Warn().Err(err).Str("doi", d).Msg("metadata lookup failed")
	}

	r.mu.Lock()
	r.cache[d] = out
	r.mu.Unlock()
	return out
}

// Cached returns a cached outcome without performing a lookup.
func (r *Resolver) Cached(raw string) (Outcome, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out, ok := r.cache[doi.Normalize(raw)]
	return out, ok
}

// Metadata returns cached metadata for a DOI, or nil if it is unknown or not yet resolved.
func (r *Resolver) Metadata(raw string) *reference.Metadata {
	out, ok := r.Cached(raw)
	if !ok || !out.Found {
		return nil
	}
	return out.Metadata
}

// Lookups returns how many registry lookups were performed.
func (r *Resolver) Lookups() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookups
}

// Found returns the metadata of every found DOI, sorted by DOI.
func (r *Resolver) Found() []*reference.Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*reference.Metadata, 0, len(r.cache))
	for _, o := range r.cache {
		if o.Found {
			out = append(out, o.Metadata)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DOI < out[j].DOI })
	return out
}

// ResolveAll resolves DOIs with at most concurrency lookups in flight. The result
// is keyed by normalized DOI. A failed DOI never blocks the others.
func (r *Resolver) ResolveAll(ctx context.Context, dois []string, concurrency int) map[string]Outcome {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	unique := make(map[string]bool, len(dois))
	for _, raw := range dois {
		if d := doi.Normalize(raw); d != "" {
			unique[d] = true
		}
	}

	var mu sync.Mutex
	results := make(map[string]Outcome, len(unique))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for d := range unique {
		g.Go(func() error {
			out := r.Resolve(ctx, d)
			mu.Lock()
			results[d] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
