// Package matcher attributes the citation edges of a mashed entity to the DOIs a
// reviewer kept, redirected or rejected, using the reference lists of the works
// involved as evidence.
//
// An outgoing edge (the entity cites X) belongs to DOI D when D's reference list
// contains X's DOI. An incoming edge (Y cites the entity) belongs to D when Y's
// reference list contains D. Edges without such evidence are never guessed: they
// go to the ambiguous bucket for manual follow-up.
package matcher

import (
	"sort"

	"github.com/opencitations/doi-corrector/internal/doi"
	"github.com/opencitations/doi-corrector/internal/entity"
	"github.com/opencitations/doi-corrector/internal/merge"
	"github.com/opencitations/doi-corrector/internal/reference"
)

// MetadataLookup returns resolved metadata for a DOI, or nil when the DOI is
// unknown or unresolved.
type MetadataLookup interface {
	Metadata(doi string) *reference.Metadata
}

// MetadataMap is a MetadataLookup backed by a map keyed by normalized DOI.
type MetadataMap map[string]*reference.Metadata

// Metadata implements MetadataLookup.
func (m MetadataMap) Metadata(d string) *reference.Metadata {
	return m[doi.Normalize(d)]
}

// candidate is a reviewed DOI that edges can be attributed to.
type candidate struct {
	record entity.DOIRecord
	meta   *reference.Metadata
}

// Match reconciles the edges that touched a mashed entity with its DOI records.
// Edges must come from merge.Dataset.ForEntity for the same entity.
func Match(m entity.Mashed, edges []merge.EntityEdge, lookup MetadataLookup) *Result {
	res := &Result{
		Entity:      m.Ref,
		Groups:      []Group{},
		Redirects:   []Redirect{},
		Ambiguous:   []PlacedEdge{},
		Discarded:   []PlacedEdge{},
		Excluded:    []entity.DOIRecord{},
		Unvalidated: []entity.DOIRecord{},
		Matches:     []DOIPair{},
	}

	var candidates []candidate
	groupIdx := make(map[string]int)
	redirectIdx := make(map[string]int)
	seen := make(map[string]bool)
	for _, rec := range m.Records {
		rec.DOI = doi.Normalize(rec.DOI)
		if seen[rec.DOI] {
			continue
		}
		seen[rec.DOI] = true

		switch rec.Disposition {
		case entity.Belongs:
			groupIdx[rec.DOI] = len(res.Groups)
			res.Groups = append(res.Groups, Group{Record: rec, Edges: []PlacedEdge{}})
		case entity.Misassigned:
			status := RedirectResolved
			if rec.PendingTarget() {
				status = RedirectPendingTarget
			}
			redirectIdx[rec.DOI] = len(res.Redirects)
			res.Redirects = append(res.Redirects, Redirect{Record: rec, Target: rec.Target, Status: status, Edges: []PlacedEdge{}})
		case entity.Invalid:
			res.Excluded = append(res.Excluded, rec)
		default:
			res.Unvalidated = append(res.Unvalidated, rec)
			continue
		}
		candidates = append(candidates, candidate{record: rec, meta: lookup.Metadata(rec.DOI)})
	}

	for _, ee := range edges {
		res.input = append(res.input, ee.Edge.Key())
		pe := PlacedEdge{Edge: ee.Edge, Role: ee.Role, Sources: ee.Sources}

		matched, reason := attribute(ee, candidates, lookup)

		var kept, invalid []candidate
		for _, c := range matched {
			if c.record.Disposition == entity.Invalid {
				invalid = append(invalid, c)
			} else {
				kept = append(kept, c)
			}
		}

		switch {
		case len(kept) > 0:
			for _, c := range kept {
				pe.MatchedDOIs = append(pe.MatchedDOIs, c.record.DOI)
			}
			sort.Strings(pe.MatchedDOIs)
			pe.MultiMatch = len(kept) > 1
			if pe.MultiMatch {
				res.Counts.MultiMatch++
			}
			for _, c := range kept {
				if i, ok := groupIdx[c.record.DOI]; ok {
					res.Groups[i].Edges = append(res.Groups[i].Edges, pe)
					res.Counts.Grouped++
				} else {
					i := redirectIdx[c.record.DOI]
					res.Redirects[i].Edges = append(res.Redirects[i].Edges, pe)
					res.Counts.Redirected++
				}
				res.Matches = append(res.Matches, newPair(ee, c.record.DOI))
			}
		case len(invalid) > 0:
			pe.Reason = ReasonInvalidDOI
			res.Discarded = append(res.Discarded, pe)
		default:
			pe.Reason = reason
			res.Ambiguous = append(res.Ambiguous, pe)
		}
	}

	res.Counts.Edges = len(res.input)
	res.Counts.Ambiguous = len(res.Ambiguous)
	res.Counts.Discarded = len(res.Discarded)
	return res
}

// attribute returns the candidates whose evidence matches the edge, or the reason
// none could be found.
func attribute(ee merge.EntityEdge, candidates []candidate, lookup MetadataLookup) ([]candidate, Reason) {
	switch ee.Role {
	case merge.RoleOutgoing:
		cited := ee.Edge.Cited.DOI
		if cited == "" {
			return nil, ReasonNoCounterpartDOI
		}
		var matched []candidate
		anyKnown := false
		for _, c := range candidates {
			if c.meta == nil || !c.meta.ReferencesKnown {
				continue
			}
			anyKnown = true
			if c.meta.Cites(cited) {
				matched = append(matched, c)
			}
		}
		if len(matched) == 0 && !anyKnown {
			return nil, ReasonNoMetadata
		}
		return matched, ReasonNoMatch

	case merge.RoleIncoming:
		citing := ee.Edge.Citing.DOI
		if citing == "" {
			return nil, ReasonNoCounterpartDOI
		}
		md := lookup.Metadata(citing)
		if md == nil || !md.ReferencesKnown {
			return nil, ReasonNoMetadata
		}
		refs := md.References()
		var matched []candidate
		for _, c := range candidates {
			if refs[c.record.DOI] {
				matched = append(matched, c)
			}
		}
		return matched, ReasonNoMatch
	}
	return nil, ReasonSelfCitation
}

func newPair(ee merge.EntityEdge, d string) DOIPair {
	m := DOIPair{Edge: ee.Edge.Key(), Role: ee.Role}
	if ee.Role == merge.RoleIncoming {
		m.CitingDOI, m.CitedDOI = ee.Edge.Citing.DOI, d
	} else {
		m.CitingDOI, m.CitedDOI = d, ee.Edge.Cited.DOI
	}
	return m
}

