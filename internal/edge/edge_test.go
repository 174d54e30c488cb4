package edge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencitations/doi-corrector/internal/entity"
)

func ref(uri string) entity.Ref {
	return entity.Ref{URI: uri}
}

func TestCitationEdge_ValidateForCreate(t *testing.T) {
	tests := []struct {
		name    string
		edge    CitationEdge
		wantErr error
	}{
		{
			name:    "valid edge",
			edge:    CitationEdge{Citing: ref("https://x/br/1"), Cited: ref("https://x/br/2"), Source: SourceCitingQuery},
			wantErr: nil,
		},
		{
			name:    "empty citing",
			edge:    CitationEdge{Cited: ref("https://x/br/2"), Source: SourceCitingQuery},
			wantErr: ErrEmptyCiting,
		},
		{
			name:    "empty cited",
			edge:    CitationEdge{Citing: ref("https://x/br/1"), Source: SourceCitedQuery},
			wantErr: ErrEmptyCited,
		},
		{
			name:    "bad source",
			edge:    CitationEdge{Citing: ref("https://x/br/1"), Cited: ref("https://x/br/2"), Source: "crawler"},
			wantErr: ErrBadSource,
		},
		{
			name:    "self citation allowed",
			edge:    CitationEdge{Citing: ref("https://x/br/1"), Cited: ref("https://x/br/1"), Source: SourceCitedQuery},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.edge.ValidateForCreate())
		})
	}
}

func TestCitationEdge_SetDiscoveredAt(t *testing.T) {
	e := CitationEdge{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e.SetDiscoveredAt(now)
	require.True(t, e.DiscoveredAt.Equal(now))

	// Already set: keep original
	e.SetDiscoveredAt(now.Add(time.Hour))
	assert.True(t, e.DiscoveredAt.Equal(now), "DiscoveredAt overwritten: %v", e.DiscoveredAt)
}

func TestKey_IgnoresSource(t *testing.T) {
	a := CitationEdge{Citing: ref("https://x/br/1"), Cited: ref("https://x/br/2"), Source: SourceCitingQuery}
	b := CitationEdge{Citing: ref("https://x/br/1"), Cited: ref("https://x/br/2"), Source: SourceCitedQuery}
	assert.Equal(t, a.Key(), b.Key())
}

func TestSortByKey(t *testing.T) {
	edges := []CitationEdge{
		{Citing: ref("b"), Cited: ref("a")},
		{Citing: ref("a"), Cited: ref("c")},
		{Citing: ref("a"), Cited: ref("b")},
	}
	SortByKey(edges)
	want := []Key{{"a", "b"}, {"a", "c"}, {"b", "a"}}
	for i, k := range want {
		assert.Equal(t, k, edges[i].Key(), "edges[%d]", i)
	}
}

func TestFindDuplicateEdges(t *testing.T) {
	edges := []CitationEdge{
		{Citing: ref("a"), Cited: ref("b"), Source: SourceCitingQuery},
		{Citing: ref("a"), Cited: ref("b"), Source: SourceCitingQuery},
		{Citing: ref("a"), Cited: ref("c"), Source: SourceCitedQuery},
	}
	dups := FindDuplicateEdges(edges)
	require.Len(t, dups, 1)
	assert.Equal(t, 2, dups[Key{"a", "b"}])
}
