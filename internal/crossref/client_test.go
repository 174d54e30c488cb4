package crossref

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

const workJSON = `{
  "status": "ok",
  "message-type": "work",
  "message": {
    "DOI": "10.1000/ABC",
    "title": ["Citation Repair In Practice"],
    "author": [{"given": "Jane", "family": "Doe"}, {"name": "The Consortium"}],
    "container-title": ["Journal of Tests"],
    "issued": {"date-parts": [[2019, 4]]},
    "volume": "12",
    "issue": "3",
    "page": "1-10",
    "type": "journal-article",
    "publisher": "Test Press",
    "reference": [
      {"key": "r1", "DOI": "10.2000/X"},
      {"key": "r2", "unstructured": "Roe R. Another paper. doi:10.3000/y."},
      {"key": "r3", "unstructured": "No identifier here"},
      {"key": "r4", "DOI": "10.2000/x"}
    ]
  }
}`

func testRemote() remote.Config {
	return remote.Config{
		RateLimit: 1000,
		Burst:     100,
		Retry:     remote.RetryPolicy{MaxAttempts: 2, BackoffBase: time.Millisecond, MaxBackoff: time.Millisecond},
	}
}

func TestClient_Lookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "me@example.org", r.URL.Query().Get("mailto"))
		assert.Equal(t, "Bearer plus", r.Header.Get("Crossref-Plus-API-Token"))
		assert.Contains(t, r.Header.Get("User-Agent"), "mailto:me@example.org")
		switch r.URL.Path {
		case "/works/10.1000/abc":
			fmt.Fprint(w, workJSON)
		case "/works/10.1000/norefs":
			fmt.Fprint(w, `{"status":"ok","message":{"DOI":"10.1000/norefs","title":["Bare"]}}`)
		case "/works/10.1000/broken":
			fmt.Fprint(w, `{"status":"ok"}`)
		default:
			http.Error(w, "Resource not found.", http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, Mailto: "me@example.org", PlusToken: "plus", Remote: testRemote()})

	t.Run("found", func(t *testing.T) {
		md, err := c.Lookup(context.Background(), "doi:10.1000/ABC")
		require.NoError(t, err)
		assert.Equal(t, "10.1000/abc", md.DOI)
		assert.Equal(t, "Citation Repair In Practice", md.Title)
		assert.Equal(t, []string{"Doe, Jane", "The Consortium"}, md.Authors)
		assert.Equal(t, "Journal of Tests", md.Venue)
		assert.Equal(t, 2019, md.Year)
		assert.Equal(t, "2019-04", md.PubDate)
		assert.Equal(t, Service, md.Registry)
		assert.True(t, md.ReferencesKnown)
		assert.Equal(t, []string{"10.2000/x", "10.3000/y"}, md.ReferencedDOIs)
	})

	t.Run("no reference list", func(t *testing.T) {
		md, err := c.Lookup(context.Background(), "10.1000/norefs")
		require.NoError(t, err)
		assert.False(t, md.ReferencesKnown)
		assert.Empty(t, md.ReferencedDOIs)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := c.Lookup(context.Background(), "10.1000/missing")
		assert.True(t, remote.IsNotFound(err))
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := c.Lookup(context.Background(), "10.1000/broken")
		assert.True(t, remote.IsMalformed(err))
	})

	t.Run("invalid doi never hits the network", func(t *testing.T) {
		_, err := c.Lookup(context.Background(), "ISBN 978-3")
		assert.True(t, remote.IsNotFound(err))
	})
}

func TestDateParts(t *testing.T) {
	assert.Equal(t, "", DateParts{}.ISO())
	assert.Equal(t, "2020", DateParts{Parts: [][]int{{2020}}}.ISO())
	assert.Equal(t, "2020-01-05", DateParts{Parts: [][]int{{2020, 1, 5}}}.ISO())
}

func TestEscapeDOI(t *testing.T) {
	assert.Equal(t, "10.1002/a:b-c", escapeDOI("10.1002/a:b-c"))
	assert.Equal(t, "10.1000/a%20b/c", escapeDOI("10.1000/a b/c"))
}
