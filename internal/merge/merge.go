// Package merge unions per-entity edge collections into one consolidated dataset
// that remembers where every edge came from.
package merge

import (
	"sort"

	"github.com/opencitations/doi-corrector/internal/collect"
	"github.com/opencitations/doi-corrector/internal/edge"
)

// Role is an entity's position in an edge.
type Role string

const (
	// RoleIncoming: the entity is cited.
	RoleIncoming Role = "incoming"
	// RoleOutgoing: the entity cites.
	RoleOutgoing Role = "outgoing"
	// RoleSelf: the entity cites itself.
	RoleSelf Role = "self"
)

// Entry is one unique edge with its provenance.
type Entry struct {
	Edge edge.CitationEdge `json:"edge"`
	// Sources is the sorted set of queries that reported the edge.
	Sources []edge.Source `json:"sources"`
	// Entities is the sorted set of mashed entity URIs whose collection held the edge.
	Entities []string `json:"entities"`
}

// HasSource reports whether a query reported the edge.
func (e *Entry) HasSource(s edge.Source) bool {
	for _, x := range e.Sources {
		if x == s {
			return true
		}
	}
	return false
}

// RoleOf returns the role an entity plays in the entry's edge, or "" if none.
func (e *Entry) RoleOf(uri string) Role {
	citing := e.Edge.Citing.URI == uri
	cited := e.Edge.Cited.URI == uri
	switch {
	case citing && cited:
		return RoleSelf
	case citing:
		return RoleOutgoing
	case cited:
		return RoleIncoming
	}
	return ""
}

// EntityEdge is an entry seen from one entity.
type EntityEdge struct {
	Entry
	Role Role `json:"role"`
}

// Dataset is the union of all collected edges, unique by key.
// It is not safe for concurrent use.
type Dataset struct {
	entries []Entry
	index   map[edge.Key]int
}

// New creates an empty dataset.
func New() *Dataset {
	return &Dataset{index: make(map[edge.Key]int)}
}

// Merge builds a dataset from collections. Collections may overlap.
func Merge(collections ...*collect.Collection) *Dataset {
	d := New()
	for _, c := range collections {
		if c == nil {
			continue
		}
		d.Add(c.Entity.URI, c.Edges...)
	}
	return d
}

// Add unions edges collected for an entity into the dataset. An existing entry
// is never replaced: new reports only add sources, back-references and
// counterpart DOIs the entry lacked.
func (d *Dataset) Add(entityURI string, edges ...edge.CitationEdge) {
	for _, e := range edges {
		k := e.Key()
		i, ok := d.index[k]
		if !ok {
			i = len(d.entries)
			d.index[k] = i
			d.entries = append(d.entries, Entry{Edge: e})
		}
		entry := &d.entries[i]
		if entry.Edge.Citing.DOI == "" {
			entry.Edge.Citing.DOI = e.Citing.DOI
		}
		if entry.Edge.Cited.DOI == "" {
			entry.Edge.Cited.DOI = e.Cited.DOI
		}
		entry.Sources = addSource(entry.Sources, e.Source)
		if entityURI != "" {
			entry.Entities = addString(entry.Entities, entityURI)
		}
	}
}

// Len returns the number of unique edges.
func (d *Dataset) Len() int {
	return len(d.entries)
}

// Entries returns all entries sorted by edge key.
func (d *Dataset) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Edge.Key().Less(out[j].Edge.Key())
	})
	return out
}

// Get returns the entry for a key.
func (d *Dataset) Get(k edge.Key) (Entry, bool) {
	i, ok := d.index[k]
	if !ok {
		return Entry{}, false
	}
	return d.entries[i], true
}

// ForEntity returns the entries that touch an entity, sorted by key, with the
// entity's role in each.
func (d *Dataset) ForEntity(uri string) []EntityEdge {
	var out []EntityEdge
	for _, e := range d.Entries() {
		if role := e.RoleOf(uri); role != "" {
			out = append(out, EntityEdge{Entry: e, Role: role})
		}
	}
	return out
}

// CounterpartDOIs returns the distinct DOIs of the works on the other side of
// the entity's edges, sorted.
func (d *Dataset) CounterpartDOIs(uri string) []string {
	seen := make(map[string]bool)
	for _, e := range d.ForEntity(uri) {
		var other string
		switch e.Role {
		case RoleIncoming:
			other = e.Edge.Citing.DOI
		case RoleOutgoing:
			other = e.Edge.Cited.DOI
		}
		if other != "" {
			seen[other] = true
		}
	}
	out := make([]string, 0, len(seen))
	for doi := range seen {
		out = append(out, doi)
	}
	sort.Strings(out)
	return out
}

func addSource(set []edge.Source, s edge.Source) []edge.Source {
	for _, x := range set {
		if x == s {
			return set
		}
	}
	set = append(set, s)
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set
}

func addString(set []string, s string) []string {
	i := sort.SearchStrings(set, s)
	if i < len(set) && set[i] == s {
		return set
	}
	set = append(set, "")
	copy(set[i+1:], set[i:])
	set[i] = s
	return set
}
