package s2

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencitations/doi-corrector/internal/remote"
)

const paperJSON = `{
  "paperId": "649def34f8be52c8b66281af98ae884c09aef38b",
  "externalIds": {"DOI": "10.1000/ABC"},
  "title": " Citation Repair In Practice ",
  "venue": "",
  "year": 2019,
  "publicationDate": "2019-04-02",
  "publicationTypes": ["JournalArticle"],
  "journal": {"name": "Journal of Tests", "volume": " 12 ", "pages": "1-10"},
  "authors": [{"authorId": "1", "name": "Jane Q. Doe"}, {"authorId": "2", "name": "Martin Luther King Jr."}],
  "references": [
    {"paperId": "a", "externalIds": {"DOI": "10.2000/X"}},
    {"paperId": "b", "externalIds": {"ArXiv": "2106.15928"}},
    {"paperId": null, "externalIds": null},
    {"paperId": "c", "externalIds": {"DOI": "10.2000/x"}}
  ]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(Config{
		BaseURL: server.URL,
		APIKey:  "secret",
		Remote: remote.Config{
			RateLimit: 1000,
			Burst:     100,
			Retry:     remote.RetryPolicy{MaxAttempts: 2, BackoffBase: time.Millisecond, MaxBackoff: time.Millisecond},
		},
	})
}

func TestClient_Lookup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		switch r.URL.Path {
		case "/paper/DOI:10.1000/abc":
			assert.Contains(t, r.URL.Query().Get("fields"), "references.externalIds")
			fmt.Fprint(w, paperJSON)
		case "/paper/DOI:10.1000/norefs":
			fmt.Fprint(w, `{"paperId": "x", "title": "Bare", "references": []}`)
		case "/paper/DOI:10.1000/empty":
			fmt.Fprint(w, `{}`)
		default:
			http.Error(w, `{"error":"Paper not found"}`, http.StatusNotFound)
		}
	})
	ctx := context.Background()

	md, err := c.Lookup(ctx, "https://doi.org/10.1000/ABC")
	require.NoError(t, err)
	assert.Equal(t, "10.1000/abc", md.DOI)
	assert.Equal(t, "Citation Repair In Practice", md.Title)
	assert.Equal(t, []string{"Doe, Jane Q.", "King Jr., Martin Luther"}, md.Authors)
	assert.Equal(t, "Journal of Tests", md.Venue)
	assert.Equal(t, "12", md.Volume)
	assert.Equal(t, "1-10", md.Page)
	assert.Equal(t, "JournalArticle", md.Type)
	assert.Equal(t, 2019, md.Year)
	assert.Equal(t, []string{"10.2000/x"}, md.ReferencedDOIs)
	assert.True(t, md.ReferencesKnown)
	assert.Equal(t, Service, md.Registry)

	md, err = c.Lookup(ctx, "10.1000/norefs")
	require.NoError(t, err)
	assert.False(t, md.ReferencesKnown)

	_, err = c.Lookup(ctx, "10.1000/missing")
	assert.True(t, remote.IsNotFound(err))

	_, err = c.Lookup(ctx, "not a doi")
	assert.True(t, remote.IsNotFound(err))

	_, err = c.Lookup(ctx, "10.1000/empty")
	assert.True(t, remote.IsMalformed(err))
}

func TestSplitAuthorName(t *testing.T) {
	tests := []struct {
		name      string
		wantFirst string
		wantLast  string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"Jane Q. Doe", "Jane Q.", "Doe"},
		{"Madonna", "", "Madonna"},
		{"John Smith Jr.", "John", "Smith Jr."},
		{"  ", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last := splitAuthorName(tt.name)
			assert.Equal(t, tt.wantFirst, first)
			assert.Equal(t, tt.wantLast, last)
		})
	}
}
