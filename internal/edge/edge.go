// Package edge defines the citation edges extracted from the citation index.
package edge

import (
	"errors"
	"sort"
	"time"

	"github.com/opencitations/doi-corrector/internal/entity"
)

// Source tags which query surfaced an edge.
type Source string

const (
	// SourceCitingQuery marks edges found by asking who cites an entity.
	SourceCitingQuery Source = "citing-query"
	// SourceCitedQuery marks edges found by asking what an entity cites.
	SourceCitedQuery Source = "cited-query"
)

// CitationEdge represents a directed citing -> cited relationship.
type CitationEdge struct {
	// Identity: (Citing.URI, Cited.URI)
	Citing entity.Ref `json:"citing"`
	Cited  entity.Ref `json:"cited"`

	// Provenance
	Citation     string    `json:"citation,omitempty"` // citation individual URI in the index
	Source       Source    `json:"source"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Validation errors.
var (
	ErrEmptyCiting = errors.New("citing entity is required")
	ErrEmptyCited  = errors.New("cited entity is required")
	ErrBadSource   = errors.New("source must be citing-query or cited-query")
)

// ValidateForCreate validates an edge before it enters a collection.
// Self-citations are allowed: a mashed entity often "cites itself" because one of
// the merged works cites another.
func (e *CitationEdge) ValidateForCreate() error {
	if e.Citing.URI == "" {
		return ErrEmptyCiting
	}
	if e.Cited.URI == "" {
		return ErrEmptyCited
	}
	if e.Source != SourceCitingQuery && e.Source != SourceCitedQuery {
		return ErrBadSource
	}
	return nil
}

// SetDiscoveredAt stamps the edge with the current time if not already set.
func (e *CitationEdge) SetDiscoveredAt(now time.Time) {
	if e.DiscoveredAt.IsZero() {
		e.DiscoveredAt = now.UTC()
	}
}

// Key returns the unique identity tuple for this edge.
func (e *CitationEdge) Key() Key {
	return Key{Citing: e.Citing.URI, Cited: e.Cited.URI}
}

// Key represents the unique identity of an edge. Source is not part of it:
// the same pair reported by several pages or queries is one edge.
type Key struct {
	Citing string `json:"citing"`
	Cited  string `json:"cited"`
}

// Less orders keys by citing then cited URI.
func (k Key) Less(o Key) bool {
	if k.Citing != o.Citing {
		return k.Citing < o.Citing
	}
	return k.Cited < o.Cited
}

// SortByKey sorts edges in place by their key.
func SortByKey(edges []CitationEdge) {
	sort.Slice(edges, func(i, j int) bool {
		return edges[i].Key().Less(edges[j].Key())
	})
}

// FindDuplicateEdges finds edges that appear more than once in the list.
// Returns a map of Key to count for keys that appear more than once.
func FindDuplicateEdges(edges []CitationEdge) map[Key]int {
	counts := make(map[Key]int)
	for _, e := range edges {
		counts[e.Key()]++
	}

	duplicates := make(map[Key]int)
	for key, count := range counts {
		if count > 1 {
			duplicates[key] = count
		}
	}
	return duplicates
}
