package pipeline

import (
	"sort"
	"time"

	"github.com/opencitations/doi-corrector/internal/collect"
	"github.com/opencitations/doi-corrector/internal/doi"
	"github.com/opencitations/doi-corrector/internal/edge"
	"github.com/opencitations/doi-corrector/internal/entity"
	"github.com/opencitations/doi-corrector/internal/matcher"
	"github.com/opencitations/doi-corrector/internal/merge"
	"github.com/opencitations/doi-corrector/internal/resolver"
)

// EntitySummary is the outcome of one mashed entity.
type EntitySummary struct {
	Entity  string                         `json:"entity"`
	Status  collect.Status                 `json:"status"`
	Edges   int                            `json:"edges"`
	Cursors map[edge.Source]collect.Cursor `json:"cursors,omitempty"`
	Error   string                         `json:"error,omitempty"`
	Counts  *matcher.Counts                `json:"counts,omitempty"`
}

// DOISummary is the outcome of one metadata lookup.
type DOISummary struct {
	DOI      string          `json:"doi"`
	Status   resolver.Status `json:"status"`
	Registry string          `json:"registry,omitempty"`
	Attempts int             `json:"attempts,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Summary aggregates per-entity and per-DOI outcomes so operators can re-run
// only what failed.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Canceled   bool      `json:"canceled,omitempty"`

	EntityStatus map[collect.Status]int  `json:"entity_status"`
	DOIStatus    map[resolver.Status]int `json:"doi_status"`
	Totals       matcher.Counts          `json:"totals"`

	Entities []EntitySummary `json:"entities"`
	DOIs     []DOISummary    `json:"dois"`
}

// Summarize builds the run summary. Entities keep input order; DOIs are sorted.
func Summarize(runID string, started, finished time.Time, collections []*collect.Collection, outcomes map[string]resolver.Outcome, results []*matcher.Result) *Summary {
	s := &Summary{
		RunID:        runID,
		StartedAt:    started.UTC(),
		FinishedAt:   finished.UTC(),
		EntityStatus: make(map[collect.Status]int),
		DOIStatus:    make(map[resolver.Status]int),
		Entities:     []EntitySummary{},
		DOIs:         []DOISummary{},
	}

	counts := make(map[string]*matcher.Counts, len(results))
	for _, r := range results {
		c := r.Counts
		counts[r.Entity.URI] = &c
		s.Totals.Edges += c.Edges
		s.Totals.Grouped += c.Grouped
		s.Totals.Redirected += c.Redirected
		s.Totals.Ambiguous += c.Ambiguous
		s.Totals.Discarded += c.Discarded
		s.Totals.MultiMatch += c.MultiMatch
	}

	for _, c := range collections {
		if c == nil {
			continue
		}
		es := EntitySummary{
			Entity:  c.Entity.URI,
			Status:  c.Status,
			Edges:   len(c.Edges),
			Cursors: c.Cursors,
			Counts:  counts[c.Entity.URI],
		}
		if err := c.Err(); err != nil {
			es.Error = err.Error()
		}
		s.EntityStatus[c.Status]++
		s.Entities = append(s.Entities, es)
	}

	for d, o := range outcomes {
		ds := DOISummary{DOI: d, Status: o.Status(), Attempts: o.Attempts}
		if o.Metadata != nil {
			ds.Registry = o.Metadata.Registry
		}
		if o.Err != nil {
			ds.Error = o.Err.Error()
		}
		s.DOIStatus[ds.Status]++
		s.DOIs = append(s.DOIs, ds)
	}
	sort.Slice(s.DOIs, func(i, j int) bool { return s.DOIs[i].DOI < s.DOIs[j].DOI })

	return s
}

// Unfinished returns the entities that should be re-run: failed, partially
// failed or skipped.
func (s *Summary) Unfinished() []string {
	var out []string
	for _, e := range s.Entities {
		switch e.Status {
		case collect.StatusFailed, collect.StatusPartiallyFailed, collect.StatusSkipped:
			out = append(out, e.Entity)
		}
	}
	return out
}

// FailedDOIs returns DOIs whose lookup failed or was canceled.
func (s *Summary) FailedDOIs() []string {
	var out []string
	for _, d := range s.DOIs {
		if d.Status == resolver.StatusFailed || d.Status == resolver.StatusCanceled {
			out = append(out, d.DOI)
		}
	}
	return out
}

// Rerun returns the entities of mashed that need another run, in mashed order:
// the unfinished ones plus those whose own DOIs, or whose counterpart DOIs in ds,
// failed to resolve. ds may be nil when the run left no edges.
func (s *Summary) Rerun(mashed []entity.Mashed, ds *merge.Dataset) []string {
	rerun := make(map[string]bool)
	for _, uri := range s.Unfinished() {
		rerun[uri] = true
	}
	failed := make(map[string]bool)
	for _, d := range s.FailedDOIs() {
		failed[d] = true
	}

	var out []string
	for _, m := range mashed {
		uri := m.Ref.URI
		if !rerun[uri] && len(failed) > 0 {
			dois := m.DOIs()
			if ds != nil {
				dois = append(dois, ds.CounterpartDOIs(uri)...)
			}
			for _, d := range dois {
				if failed[doi.Normalize(d)] {
					rerun[uri] = true
					break
				}
			}
		}
		if rerun[uri] {
			out = append(out, uri)
		}
	}
	return out
}
