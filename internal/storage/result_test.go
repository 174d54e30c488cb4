package storage

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencitations/doi-corrector/internal/edge"
	"github.com/opencitations/doi-corrector/internal/entity"
	"github.com/opencitations/doi-corrector/internal/matcher"
	"github.com/opencitations/doi-corrector/internal/merge"
	"github.com/opencitations/doi-corrector/internal/reference"
)

func testResult() *matcher.Result {
	ent := "https://w3id.org/oc/meta/br/1"
	in := testEdge("https://w3id.org/oc/meta/br/2", ent)
	in.Citing.DOI = "10.1000/citer"
	out := testEdge(ent, "https://w3id.org/oc/meta/br/3")
	amb := testEdge(ent, "https://w3id.org/oc/meta/br/4")

	return &matcher.Result{
		Entity: entity.Ref{URI: ent},
		Groups: []matcher.Group{
			{
				Record: entity.DOIRecord{DOI: "10.1000/a", Disposition: entity.Belongs},
				Edges:  []matcher.PlacedEdge{{Edge: in, Role: merge.RoleIncoming, Sources: []edge.Source{edge.SourceCitingQuery}}},
			},
			{Record: entity.DOIRecord{DOI: "10.1000/empty", Disposition: entity.Belongs}},
		},
		Redirects: []matcher.Redirect{
			{
				Record: entity.DOIRecord{DOI: "10.1000/b", Disposition: entity.Misassigned},
				Status: matcher.RedirectPendingTarget,
				Edges: []matcher.PlacedEdge{{
					Edge: out, Role: merge.RoleOutgoing,
					Sources: []edge.Source{edge.SourceCitingQuery, edge.SourceCitedQuery},
				}},
			},
		},
		Ambiguous: []matcher.PlacedEdge{{Edge: amb, Role: merge.RoleOutgoing, Reason: matcher.ReasonNoMatch}},
	}
}

func TestWriteResultCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResultCSV(&buf, []*matcher.Result{testResult()}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	// header + 2 group rows + 1 redirect + 1 ambiguous
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Len(t, row, len(resultColumns), "row %d", i)
	}

	assert.Equal(t, PlacementGroup, rows[1][5])
	assert.Equal(t, "10.1000/citer", rows[1][8])
	assert.Equal(t, string(merge.RoleIncoming), rows[1][10])

	assert.Equal(t, "10.1000/empty", rows[2][1])
	assert.Empty(t, rows[2][6])

	assert.Equal(t, string(matcher.RedirectPendingTarget), rows[3][4])
	assert.Equal(t, "citing-query;cited-query", rows[3][11])

	assert.Equal(t, PlacementAmbiguous, rows[4][5])
	assert.Equal(t, string(matcher.ReasonNoMatch), rows[4][13])
}

func TestWriteMetaCSV(t *testing.T) {
	var buf bytes.Buffer
	records := []reference.Metadata{
		{
			DOI: "10.1000/a", Title: "A Study", Authors: []string{"Doe, Jane", "Roe, R."},
			Venue: "Journal of Tests", Year: 2021, Volume: "3", Issue: "1", Page: "1-10",
			Type: "journal-article", Publisher: "Test Press",
		},
	}
	require.NoError(t, WriteMetaCSV(&buf, records))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, metaColumns, rows[0])
	assert.Equal(t, []string{"doi:10.1000/a", "A Study", "Doe, Jane; Roe, R.", "2021", "Journal of Tests", "3", "1", "1-10", "journal-article", "Test Press", ""}, rows[1])
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ResultFile)
	require.NoError(t, WriteJSON(path, []*matcher.Result{testResult()}))

	var got []matcher.Result
	require.NoError(t, ReadJSON(path, &got))
	require.Len(t, got, 1)
	assert.Len(t, got[0].Groups, 2)
	assert.Equal(t, matcher.RedirectPendingTarget, got[0].Redirects[0].Status)
}
