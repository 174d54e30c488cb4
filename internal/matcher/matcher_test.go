package matcher

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencitations/doi-corrector/internal/edge"
	"github.com/opencitations/doi-corrector/internal/entity"
	"github.com/opencitations/doi-corrector/internal/merge"
	"github.com/opencitations/doi-corrector/internal/reference"
)

var (
	e  = entity.Ref{URI: "https://w3id.org/oc/meta/br/0601", Kind: entity.KindJournal}
	e2 = entity.Ref{URI: "https://w3id.org/oc/meta/br/0602"}
)

func work(n int, d string) entity.Ref {
	return entity.Ref{URI: fmt.Sprintf("https://w3id.org/oc/meta/br/%d", n), DOI: d}
}

func meta(d string, refs ...string) *reference.Metadata {
	m := &reference.Metadata{DOI: d}
	m.AddReferences(refs...)
	return m
}

// dataset builds the entity's view of a merged dataset.
func dataset(edges ...edge.CitationEdge) []merge.EntityEdge {
	d := merge.New()
	d.Add(e.URI, edges...)
	return d.ForEntity(e.URI)
}

func cites(x entity.Ref) edge.CitationEdge {
	return edge.CitationEdge{Citing: e, Cited: x, Source: edge.SourceCitedQuery}
}

func citedBy(y entity.Ref) edge.CitationEdge {
	return edge.CitationEdge{Citing: y, Cited: e, Source: edge.SourceCitingQuery}
}

func keys(edges []PlacedEdge) []edge.Key {
	out := make([]edge.Key, 0, len(edges))
	for _, pe := range edges {
		out = append(out, pe.Edge.Key())
	}
	return out
}

func TestMatch_EndToEndScenario(t *testing.T) {
	m := entity.Mashed{Ref: e, Records: []entity.DOIRecord{
		{DOI: "10.1000/d1", Disposition: entity.Belongs},
		{DOI: "10.1000/d2", Disposition: entity.Misassigned, Target: &e2},
		{DOI: "10.1000/d3", Disposition: entity.Invalid},
	}}
	x := []entity.Ref{
		work(1, "10.2000/x1"), work(2, "10.2000/x2"), work(3, "10.2000/x3"),
		work(4, "10.2000/x4"), work(5, "10.2000/x5"),
	}
	lookup := MetadataMap{
		"10.1000/d1": meta("10.1000/d1", "10.2000/x1", "10.2000/x2", "10.2000/x3"),
		"10.1000/d2": meta("10.1000/d2", "10.2000/x4"),
		"10.1000/d3": meta("10.1000/d3", "10.9999/unrelated"),
	}

	res := Match(m, dataset(cites(x[0]), cites(x[1]), cites(x[2]), cites(x[3]), cites(x[4])), lookup)

	require.NoError(t, res.Verify())
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "10.1000/d1", res.Groups[0].Record.DOI)
	assert.Len(t, res.Groups[0].Edges, 3)

	require.Len(t, res.Redirects, 1)
	rd := res.Redirects[0]
	assert.Equal(t, RedirectResolved, rd.Status)
	assert.Equal(t, &e2, rd.Target)
	require.Len(t, rd.Edges, 1)
	assert.Equal(t, x[3].URI, rd.Edges[0].Edge.Cited.URI)

	require.Len(t, res.Ambiguous, 1)
	assert.Equal(t, x[4].URI, res.Ambiguous[0].Edge.Cited.URI)
	assert.Equal(t, ReasonNoMatch, res.Ambiguous[0].Reason)
	assert.Empty(t, res.Discarded)

	assert.Equal(t, Counts{Edges: 5, Grouped: 3, Redirected: 1, Ambiguous: 1}, res.Counts)
	assert.Equal(t, []entity.DOIRecord{{DOI: "10.1000/d3", Disposition: entity.Invalid}}, res.Excluded)

	require.Len(t, res.Matches, 4)
	firstEdge := cites(x[0])
	assert.Equal(t, DOIPair{CitingDOI: "10.1000/d1", CitedDOI: "10.2000/x1", Edge: firstEdge.Key(), Role: merge.RoleOutgoing}, res.Matches[0])
}

func TestMatch_IncomingEdges(t *testing.T) {
	m := entity.Mashed{Ref: e, Records: []entity.DOIRecord{
		{DOI: "10.1000/d1", Disposition: entity.Belongs},
		{DOI: "10.1000/d3", Disposition: entity.Invalid},
	}}
	y1 := work(11, "10.3000/y1") // cites d1
	y2 := work(12, "10.3000/y2") // cites only the invalid DOI
	y3 := work(13, "10.3000/y3") // unknown to the registries
	y4 := work(14, "")           // no DOI in the index
	y5 := work(15, "10.3000/y5") // registry has no reference list
	lookup := MetadataMap{
		"10.3000/y1": meta("10.3000/y1", "10.1000/D1", "10.5000/other"),
		"10.3000/y2": meta("10.3000/y2", "10.1000/d3"),
		"10.3000/y5": {DOI: "10.3000/y5"},
	}

	res := Match(m, dataset(citedBy(y1), citedBy(y2), citedBy(y3), citedBy(y4), citedBy(y5)), lookup)
	require.NoError(t, res.Verify())

	incomingEdge := citedBy(y1)
	assert.Equal(t, []edge.Key{incomingEdge.Key()}, keys(res.Groups[0].Edges))
	assert.Equal(t, merge.RoleIncoming, res.Groups[0].Edges[0].Role)

	require.Len(t, res.Discarded, 1)
	assert.Equal(t, y2.URI, res.Discarded[0].Edge.Citing.URI)
	assert.Equal(t, ReasonInvalidDOI, res.Discarded[0].Reason)

	reasons := map[string]Reason{}
	for _, pe := range res.Ambiguous {
		reasons[pe.Edge.Citing.URI] = pe.Reason
	}
	assert.Equal(t, map[string]Reason{
		y3.URI: ReasonNoMetadata,
		y4.URI: ReasonNoCounterpartDOI,
		y5.URI: ReasonNoMetadata,
	}, reasons)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "10.3000/y1", res.Matches[0].CitingDOI)
	assert.Equal(t, "10.1000/d1", res.Matches[0].CitedDOI)
}

func TestMatch_MultiMatchDuplicatesAndFlags(t *testing.T) {
	m := entity.Mashed{Ref: e, Records: []entity.DOIRecord{
		{DOI: "10.1000/d1", Disposition: entity.Belongs},
		{DOI: "10.1000/d4", Disposition: entity.Belongs},
		{DOI: "10.1000/d2", Disposition: entity.Misassigned},
	}}
	shared := work(1, "10.2000/shared")
	lookup := MetadataMap{
		"10.1000/d1": meta("10.1000/d1", "10.2000/shared"),
		"10.1000/d4": meta("10.1000/d4", "10.2000/shared"),
		"10.1000/d2": meta("10.1000/d2", "10.2000/shared"),
	}

	res := Match(m, dataset(cites(shared)), lookup)
	require.NoError(t, res.Verify())

	for _, g := range res.Groups {
		require.Len(t, g.Edges, 1)
		assert.True(t, g.Edges[0].MultiMatch)
		assert.Equal(t, []string{"10.1000/d1", "10.1000/d2", "10.1000/d4"}, g.Edges[0].MatchedDOIs)
	}
	require.Len(t, res.Redirects, 1)
	assert.Equal(t, RedirectPendingTarget, res.Redirects[0].Status)
	assert.Nil(t, res.Redirects[0].Target)
	assert.Len(t, res.Redirects[0].Edges, 1)
	assert.Equal(t, Counts{Edges: 1, Grouped: 2, Redirected: 1, MultiMatch: 1}, res.Counts)
}

func TestMatch_KeptMatchWinsOverInvalid(t *testing.T) {
	m := entity.Mashed{Ref: e, Records: []entity.DOIRecord{
		{DOI: "10.1000/d1", Disposition: entity.Belongs},
		{DOI: "10.1000/d3", Disposition: entity.Invalid},
	}}
	x := work(1, "10.2000/x")
	lookup := MetadataMap{
		"10.1000/d1": meta("10.1000/d1", "10.2000/x"),
		"10.1000/d3": meta("10.1000/d3", "10.2000/x"),
	}

	res := Match(m, dataset(cites(x)), lookup)
	require.NoError(t, res.Verify())
	assert.Len(t, res.Groups[0].Edges, 1)
	assert.False(t, res.Groups[0].Edges[0].MultiMatch)
	assert.Empty(t, res.Discarded)
}

func TestMatch_InvalidAndUnvalidatedNeverKept(t *testing.T) {
	m := entity.Mashed{Ref: e, Records: []entity.DOIRecord{
		{DOI: "10.1000/d3", Disposition: entity.Invalid},
		{DOI: "10.1000/dx", Disposition: entity.Unvalidated},
		{DOI: "10.1000/DX", Disposition: entity.Belongs}, // duplicate of an earlier record
	}}
	x := work(1, "10.2000/x")
	lookup := MetadataMap{
		"10.1000/d3": meta("10.1000/d3"),
		"10.1000/dx": meta("10.1000/dx", "10.2000/x"),
	}

	res := Match(m, dataset(cites(x)), lookup)
	require.NoError(t, res.Verify())
	assert.Empty(t, res.Groups)
	assert.Empty(t, res.Redirects)
	assert.Len(t, res.Unvalidated, 1)
	require.Len(t, res.Ambiguous, 1)
	assert.Equal(t, ReasonNoMatch, res.Ambiguous[0].Reason, "the invalid DOI's known, empty reference list is evidence")
}

func TestMatch_OutgoingWithoutAnyReferenceData(t *testing.T) {
	m := entity.Mashed{Ref: e, Records: []entity.DOIRecord{{DOI: "10.1000/d1", Disposition: entity.Belongs}}}

	res := Match(m, dataset(cites(work(1, "10.2000/x")), cites(work(2, ""))), MetadataMap{})
	require.NoError(t, res.Verify())
	require.Len(t, res.Ambiguous, 2)
	assert.Equal(t, ReasonNoMetadata, res.Ambiguous[0].Reason)
	assert.Equal(t, ReasonNoCounterpartDOI, res.Ambiguous[1].Reason)
	require.Len(t, res.Groups, 1, "a kept DOI gets a group even without edges")
	assert.Empty(t, res.Groups[0].Edges)
}

func TestMatch_SelfCitation(t *testing.T) {
	m := entity.Mashed{Ref: e, Records: []entity.DOIRecord{{DOI: "10.1000/d1", Disposition: entity.Belongs}}}
	self := edge.CitationEdge{Citing: e, Cited: e, Source: edge.SourceCitingQuery}

	res := Match(m, dataset(self), MetadataMap{"10.1000/d1": meta("10.1000/d1", "10.2000/x")})
	require.NoError(t, res.Verify())
	require.Len(t, res.Ambiguous, 1)
	assert.Equal(t, ReasonSelfCitation, res.Ambiguous[0].Reason)
	assert.Equal(t, merge.RoleSelf, res.Ambiguous[0].Role)
}

func TestResult_VerifyDetectsViolations(t *testing.T) {
	m := entity.Mashed{Ref: e, Records: []entity.DOIRecord{{DOI: "10.1000/d1", Disposition: entity.Belongs}}}
	lookup := MetadataMap{"10.1000/d1": meta("10.1000/d1", "10.2000/a")}
	a, b := work(1, "10.2000/a"), work(2, "10.2000/b")

	t.Run("lost edge", func(t *testing.T) {
		res := Match(m, dataset(cites(a), cites(b)), lookup)
		res.Ambiguous = nil
		assert.ErrorContains(t, res.Verify(), "lost")
	})

	t.Run("unflagged duplicate", func(t *testing.T) {
		res := Match(m, dataset(cites(a)), lookup)
		res.Groups[0].Edges = append(res.Groups[0].Edges, res.Groups[0].Edges[0])
		assert.ErrorContains(t, res.Verify(), "multi-match")
	})

	t.Run("attributed and ambiguous", func(t *testing.T) {
		res := Match(m, dataset(cites(a)), lookup)
		res.Ambiguous = append(res.Ambiguous, res.Groups[0].Edges[0])
		assert.ErrorContains(t, res.Verify(), "both")
	})

	t.Run("unknown edge", func(t *testing.T) {
		res := Match(m, dataset(cites(a)), lookup)
		res.Discarded = append(res.Discarded, PlacedEdge{Edge: cites(b)})
		assert.ErrorContains(t, res.Verify(), "not in input")
	})
}
