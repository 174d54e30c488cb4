package matcher

import (
	"errors"
	"fmt"

	"github.com/opencitations/doi-corrector/internal/edge"
	"github.com/opencitations/doi-corrector/internal/entity"
	"github.com/opencitations/doi-corrector/internal/merge"
)

// Reason explains why an edge was not attributed to a DOI.
type Reason string

const (
	ReasonNoCounterpartDOI Reason = "no-counterpart-doi"
	ReasonNoMetadata       Reason = "no-metadata"
	ReasonNoMatch          Reason = "no-match"
	ReasonSelfCitation     Reason = "self-citation"
	ReasonInvalidDOI       Reason = "invalid-doi"
)

// RedirectStatus tells whether a misassigned DOI's destination is known.
type RedirectStatus string

const (
	RedirectResolved      RedirectStatus = "resolved"
	RedirectPendingTarget RedirectStatus = "pending-target"
)

// PlacedEdge is an edge as placed in the result.
type PlacedEdge struct {
	Edge    edge.CitationEdge `json:"edge"`
	Role    merge.Role        `json:"role"`
	Sources []edge.Source     `json:"sources"`
	// MatchedDOIs lists every kept or redirected DOI the edge matched.
	MatchedDOIs []string `json:"matched_dois,omitempty"`
	// MultiMatch flags edges duplicated across placements for manual resolution.
	MultiMatch bool   `json:"multi_match,omitempty"`
	Reason     Reason `json:"reason,omitempty"`
}

// Group is a kept DOI and the edges attributed to it.
type Group struct {
	Record entity.DOIRecord `json:"record"`
	Edges  []PlacedEdge     `json:"edges"`
}

// Redirect carries a misassigned DOI's edges to its target entity.
type Redirect struct {
	Record entity.DOIRecord `json:"record"`
	Target *entity.Ref      `json:"target,omitempty"`
	Status RedirectStatus   `json:"status"`
	Edges  []PlacedEdge     `json:"edges"`
}

// DOIPair is one attributed citation expressed between DOIs: the edge the split
// entity should carry.
type DOIPair struct {
	CitingDOI string     `json:"citing_doi"`
	CitedDOI  string     `json:"cited_doi"`
	Edge      edge.Key   `json:"edge"`
	Role      merge.Role `json:"role"`
}

// Counts summarizes a result. Grouped and Redirected count placements, so a
// multi-match edge is counted once per placement.
type Counts struct {
	Edges      int `json:"edges"`
	Grouped    int `json:"grouped"`
	Redirected int `json:"redirected"`
	Ambiguous  int `json:"ambiguous"`
	Discarded  int `json:"discarded"`
	MultiMatch int `json:"multi_match"`
}

// Result is the reconciliation of one mashed entity.
type Result struct {
	Entity    entity.Ref   `json:"entity"`
	Groups    []Group      `json:"groups"`
	Redirects []Redirect   `json:"redirects"`
	Ambiguous []PlacedEdge `json:"ambiguous"`
	Discarded []PlacedEdge `json:"discarded"`
	// Excluded are invalid DOIs; Unvalidated were never reviewed. Neither is kept.
	Excluded    []entity.DOIRecord `json:"excluded"`
	Unvalidated []entity.DOIRecord `json:"unvalidated"`
	Matches     []DOIPair          `json:"matches"`
	Counts      Counts             `json:"counts"`

	input []edge.Key
}

// Inputs returns the keys of the edges the result was built from.
func (r *Result) Inputs() []edge.Key {
	return r.input
}

// Verify checks that every input edge was placed exactly once: in one or more
// groups/redirects (more than one only when flagged multi-match), or in the
// ambiguous bucket, or in the discarded bucket.
func (r *Result) Verify() error {
	attributed := make(map[edge.Key]int)
	multi := make(map[edge.Key]bool)
	other := make(map[edge.Key]int)
	var errs []error

	countAttributed := func(edges []PlacedEdge) {
		for _, pe := range edges {
			k := pe.Edge.Key()
			attributed[k]++
			if pe.MultiMatch {
				multi[k] = true
			}
		}
	}
	for _, g := range r.Groups {
		if g.Record.Disposition != entity.Belongs {
			errs = append(errs, fmt.Errorf("group for %s has disposition %s", g.Record.DOI, g.Record.Disposition))
		}
		countAttributed(g.Edges)
	}
	for _, rd := range r.Redirects {
		countAttributed(rd.Edges)
	}
	for _, pe := range r.Ambiguous {
		other[pe.Edge.Key()]++
	}
	for _, pe := range r.Discarded {
		other[pe.Edge.Key()]++
	}

	inputs := make(map[edge.Key]bool, len(r.input))
	for _, k := range r.input {
		inputs[k] = true
		a, o := attributed[k], other[k]
		switch {
		case a == 0 && o == 0:
			errs = append(errs, fmt.Errorf("edge %s -> %s lost", k.Citing, k.Cited))
		case a > 0 && o > 0:
			errs = append(errs, fmt.Errorf("edge %s -> %s both attributed and unattributed", k.Citing, k.Cited))
		case o > 1:
			errs = append(errs, fmt.Errorf("edge %s -> %s placed %d times outside groups", k.Citing, k.Cited, o))
		case a > 1 && !multi[k]:
			errs = append(errs, fmt.Errorf("edge %s -> %s duplicated without multi-match flag", k.Citing, k.Cited))
		}
	}
	for k := range attributed {
		if !inputs[k] {
			errs = append(errs, fmt.Errorf("edge %s -> %s not in input", k.Citing, k.Cited))
		}
	}
	for k := range other {
		if !inputs[k] {
			errs = append(errs, fmt.Errorf("edge %s -> %s not in input", k.Citing, k.Cited))
		}
	}
	return errors.Join(errs...)
}
