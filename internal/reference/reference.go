// Package reference defines the bibliographic metadata resolved for a DOI.
package reference

import (
	"sort"

	"github.com/opencitations/doi-corrector/internal/doi"
)

// Metadata holds the resolved bibliographic fields for a DOI.
type Metadata struct {
	// Identity
	DOI string `json:"doi"` // Normalized DOI (cache and dedup key)

	// Metadata
	Title     string   `json:"title"`
	Authors   []string `json:"authors"` // Ordered, "Family, Given"
	Venue     string   `json:"venue"`   // Journal, book series or proceedings title
	Year      int      `json:"year,omitempty"`
	PubDate   string   `json:"pub_date,omitempty"` // ISO 8601, as precise as the registry knows
	Volume    string   `json:"volume,omitempty"`
	Issue     string   `json:"issue,omitempty"`
	Page      string   `json:"page,omitempty"`
	Type      string   `json:"type,omitempty"`
	Publisher string   `json:"publisher,omitempty"`

	// References
	ReferencedDOIs []string `json:"referenced_dois"`
	// ReferencesKnown is false when the registry deposited no reference list,
	// which is different from a work that cites nothing.
	ReferencesKnown bool `json:"references_known"`

	// Registry names where the record came from (crossref, oc-meta, pdf).
	Registry string `json:"registry"`
}

// AddReferences merges DOIs into the referenced set, normalizing and deduplicating,
// and marks the reference list as known.
func (m *Metadata) AddReferences(dois ...string) {
	seen := make(map[string]bool, len(m.ReferencedDOIs)+len(dois))
	for _, d := range m.ReferencedDOIs {
		seen[d] = true
	}
	for _, d := range dois {
		n := doi.Normalize(d)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		m.ReferencedDOIs = append(m.ReferencedDOIs, n)
	}
	sort.Strings(m.ReferencedDOIs)
	m.ReferencesKnown = true
}

// References returns the referenced DOIs as a set for membership checks.
func (m *Metadata) References() map[string]bool {
	set := make(map[string]bool, len(m.ReferencedDOIs))
	for _, d := range m.ReferencedDOIs {
		set[d] = true
	}
	return set
}

// Cites reports whether the work references the given DOI.
func (m *Metadata) Cites(target string) bool {
	target = doi.Normalize(target)
	for _, d := range m.ReferencedDOIs {
		if d == target {
			return true
		}
	}
	return false
}
