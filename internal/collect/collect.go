// Package collect accumulates the citation edges of one entity across the pages
// of both query directions.
package collect

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/opencitations/doi-corrector/internal/edge"
	"github.com/opencitations/doi-corrector/internal/entity"
	"github.com/opencitations/doi-corrector/internal/remote"
)

// Pager yields successive pages of edges until io.EOF.
type Pager interface {
	Next(ctx context.Context) ([]edge.CitationEdge, error)
	Offset() int
	Retried() bool
}

// Status is the per-entity collection outcome.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusRetried         Status = "retried"
	StatusPartiallyFailed Status = "partially-failed"
	StatusFailed          Status = "failed"
	StatusSkipped         Status = "skipped"
)

// Cursor records how far one direction got.
type Cursor struct {
	Offset int    `json:"offset"`
	Done   bool   `json:"done"`
	Pages  int    `json:"pages"`
	Error  string `json:"error,omitempty"`
}

// Collection is the deduplicated edge set of one entity.
type Collection struct {
	Entity entity.Ref `json:"entity"`
	// Edges are unique by key and sorted by key.
	Edges   []edge.CitationEdge    `json:"edges"`
	Cursors map[edge.Source]Cursor `json:"cursors"`
	Status  Status                 `json:"status"`
	Errors  []error                `json:"-"`
}

// Complete reports whether both directions were read to the end.
func (c *Collection) Complete() bool {
	for _, cur := range c.Cursors {
		if !cur.Done {
			return false
		}
	}
	return true
}

// Err joins the direction errors, or nil.
func (c *Collection) Err() error {
	return errors.Join(c.Errors...)
}

// PageFunc observes every fetched page, e.g. to checkpoint it.
type PageFunc func(source edge.Source, offset int, edges []edge.CitationEdge)

type options struct {
	seed   []edge.CitationEdge
	logger zerolog.Logger
	onPage PageFunc
}

// Option configures Collect.
type Option func(*options)

// Seed starts the collection from previously checkpointed edges.
func Seed(edges ...edge.CitationEdge) Option {
	return func(o *options) {
		o.seed = append(o.seed, edges...)
	}
}

// WithLogger sets the logger for page diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// OnPage registers a page observer. It is called from the direction's goroutine.
func OnPage(fn PageFunc) Option {
	return func(o *options) {
		o.onPage = fn
	}
}

type directionResult struct {
	edges   []edge.CitationEdge
	cursor  Cursor
	retried bool
	err     error
}

// Collect reads both pagers concurrently until exhaustion or failure. A nil pager
// is treated as an empty direction. A failed page stops only its own direction;
// pages already read are kept and the cursor points at the failed page.
func Collect(ctx context.Context, e entity.Ref, citing, cited Pager, opts ...Option) *Collection {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With().Str("entity", e.URI).Logger()

	var citingRes, citedRes directionResult
	var g errgroup.Group
	g.Go(func() error {
		citingRes = drain(ctx, citing, edge.SourceCitingQuery, o.onPage, logger)
		return nil
	})
	g.Go(func() error {
		citedRes = drain(ctx, cited, edge.SourceCitedQuery, o.onPage, logger)
		return nil
	})
	_ = g.Wait()

	c := &Collection{
		Entity: e,
		Cursors: map[edge.Source]Cursor{
			edge.SourceCitingQuery: citingRes.cursor,
			edge.SourceCitedQuery:  citedRes.cursor,
		},
	}
	c.Edges = dedup(o.seed, citingRes.edges, citedRes.edges)

	malformed := false
	for _, r := range []directionResult{citingRes, citedRes} {
		if r.err != nil {
			c.Errors = append(c.Errors, r.err)
			if remote.IsMalformed(r.err) {
				malformed = true
			}
		}
	}
	switch {
	case malformed:
		c.Status = StatusFailed
	case len(c.Errors) > 0:
		c.Status = StatusPartiallyFailed
	case citingRes.retried || citedRes.retried:
		c.Status = StatusRetried
	default:
		c.Status = StatusSuccess
	}
	return c
}

func drain(ctx context.Context, p Pager, source edge.Source, onPage PageFunc, logger zerolog.Logger) directionResult {
	var res directionResult
	if p == nil {
		res.cursor.Done = true
		return res
	}
	log := logger.With().Str("direction", string(source)).Logger()

	for {
		offset := p.Offset()
		page, err := p.Next(ctx)
		if errors.Is(err, io.EOF) {
			res.cursor.Done = true
			break
		}
		if err != nil {
			res.err = err
			res.cursor.Error = err.Error()
			log.Warn().Err(err).Int("offset", offset).Msg("page failed, direction stopped")
			break
		}
		res.cursor.Pages++
		valid := page[:0:0]
		for i := range page {
			if verr := page[i].ValidateForCreate(); verr != nil {
				log.Warn().Err(verr).Int("offset", offset).Msg("invalid edge in page")
				continue
			}
			valid = append(valid, page[i])
		}
		res.edges = append(res.edges, valid...)
		if onPage != nil {
			onPage(source, p.Offset(), valid)
		}
		log.Debug().Int("offset", offset).Int("edges", len(valid)).Msg("page collected")
	}
	res.cursor.Offset = p.Offset()
	res.retried = p.Retried()
	return res
}

// dedup merges edge lists, keeping the first report of each key. A later report
// fills in a counterpart DOI the first one lacked.
func dedup(lists ...[]edge.CitationEdge) []edge.CitationEdge {
	index := make(map[edge.Key]int)
	var out []edge.CitationEdge
	for _, list := range lists {
		for _, e := range list {
			k := e.Key()
			if i, ok := index[k]; ok {
				fillDOI(&out[i], e)
				continue
			}
			index[k] = len(out)
			out = append(out, e)
		}
	}
	edge.SortByKey(out)
	return out
}

func fillDOI(dst *edge.CitationEdge, src edge.CitationEdge) {
	if dst.Citing.DOI == "" {
		dst.Citing.DOI = src.Citing.DOI
	}
	if dst.Cited.DOI == "" {
		dst.Cited.DOI = src.Cited.DOI
	}
}
