package opencitations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/opencitations/doi-corrector/internal/doi"
	"github.com/opencitations/doi-corrector/internal/edge"
	"github.com/opencitations/doi-corrector/internal/entity"
	"github.com/opencitations/doi-corrector/internal/remote"
)

// Direction selects which side of the citation the queried entity is on.
type Direction string

const (
	// DirectionCiting asks for the works that cite the entity (incoming edges).
	DirectionCiting Direction = "citing"
	// DirectionCited asks for the works the entity cites (outgoing edges).
	DirectionCited Direction = "cited"
)

// Source returns the provenance tag of edges found in this direction.
func (d Direction) Source() edge.Source {
	if d == DirectionCiting {
		return edge.SourceCitingQuery
	}
	return edge.SourceCitedQuery
}

// PageError reports a page that could not be fetched. Offset is the cursor to resume from.
type PageError struct {
	Entity    string
	Direction Direction
	Offset    int
	Attempts  int
	Err       error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%s page at offset %d for %s failed after %d attempt(s): %v",
		e.Direction, e.Offset, e.Entity, e.Attempts, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Stream is a lazy, restartable sequence of edge pages for one entity and direction.
// A Stream is not safe for concurrent use.
type Stream struct {
	client    *Client
	entity    entity.Ref
	direction Direction
	offset    int
	retried   bool
	done      bool
}

// CitingEdges returns a stream of the edges whose cited side is the entity.
func (c *Client) CitingEdges(e entity.Ref) *Stream {
	return &Stream{client: c, entity: e, direction: DirectionCiting}
}

// CitedEdges returns a stream of the edges whose citing side is the entity.
func (c *Client) CitedEdges(e entity.Ref) *Stream {
	return &Stream{client: c, entity: e, direction: DirectionCited}
}

// Direction returns the stream's direction.
func (s *Stream) Direction() Direction {
	return s.direction
}

// Offset returns the cursor of the next page to fetch.
func (s *Stream) Offset() int {
	return s.offset
}

// Retried reports whether any page so far needed more than one attempt.
func (s *Stream) Retried() bool {
	return s.retried
}

// Resume positions the stream at a previously saved cursor.
func (s *Stream) Resume(offset int) *Stream {
	if offset < 0 {
		offset = 0
	}
	s.offset = offset
	s.done = false
	return s
}

// Next fetches the next page. It returns io.EOF once a page comes back empty.
// On failure the cursor is not advanced, so Next can be called again or the
// offset saved for a later run.
func (s *Stream) Next(ctx context.Context) ([]edge.CitationEdge, error) {
	if s.done {
		return nil, io.EOF
	}
	edges, rows, attempts, err := s.client.fetchPage(ctx, s.entity, s.direction, s.offset)
	if attempts > 1 {
		s.retried = true
	}
	if err != nil {
		return nil, &PageError{
			Entity:    s.entity.URI,
			Direction: s.direction,
			Offset:    s.offset,
			Attempts:  attempts,
			Err:       err,
		}
	}
	if rows == 0 {
		s.done = true
		return nil, io.EOF
	}
	s.offset += rows
	return edges, nil
}

const queryPrefixes = `PREFIX cito: <http://purl.org/spar/cito/>
PREFIX datacite: <http://purl.org/spar/datacite/>
PREFIX literal: <http://www.essepuntato.it/2010/06/literalreification/>
`

// buildQuery renders the paginated edge query. ?other is the counterpart work.
func buildQuery(e entity.Ref, dir Direction, limit, offset int) string {
	pattern := fmt.Sprintf("?citation cito:hasCitingEntity ?other ;\n    cito:hasCitedEntity <%s> .", e.URI)
	if dir == DirectionCited {
		pattern = fmt.Sprintf("?citation cito:hasCitingEntity <%s> ;\n    cito:hasCitedEntity ?other .", e.URI)
	}
	return fmt.Sprintf(`%sSELECT ?citation ?other ?doi WHERE {
  %s
  OPTIONAL {
    ?other datacite:hasIdentifier ?id .
    ?id datacite:usesIdentifierScheme datacite:doi ;
        literal:hasLiteralValue ?doi .
  }
}
ORDER BY ?citation ?other ?doi
LIMIT %d
OFFSET %d`, queryPrefixes, pattern, limit, offset)
}

type sparqlValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sparqlResponse struct {
	Results *struct {
		Bindings []map[string]sparqlValue `json:"bindings"`
	} `json:"results"`
}

// fetchPage returns the page's edges, the number of solution rows (the cursor step),
// and the attempts used.
func (c *Client) fetchPage(ctx context.Context, e entity.Ref, dir Direction, offset int) ([]edge.CitationEdge, int, int, error) {
	resp, err := c.http.Get(ctx, c.queryURL(buildQuery(e, dir, c.pageSize, offset)), sparqlResultsJSON)
	if err != nil {
		return nil, 0, remote.Attempts(err), err
	}
	edges, rows, err := c.parsePage(resp.Body, e, dir)
	return edges, rows, resp.Attempts, err
}

func (c *Client) parsePage(body []byte, e entity.Ref, dir Direction) ([]edge.CitationEdge, int, error) {
	var parsed sparqlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, 0, remote.Malformed(ServiceIndex, "decoding results: %v", err)
	}
	if parsed.Results == nil || parsed.Results.Bindings == nil {
		return nil, 0, remote.Malformed(ServiceIndex, "missing results.bindings")
	}

	now := c.now()
	edges := make([]edge.CitationEdge, 0, len(parsed.Results.Bindings))
	for i, b := range parsed.Results.Bindings {
		other, ok := b["other"]
		if !ok || other.Type != "uri" {
			return nil, 0, remote.Malformed(ServiceIndex, "row %d: missing uri binding for ?other", i)
		}
		counterpart := entity.Ref{URI: other.Value, Kind: entity.KindUnknown}
		if err := counterpart.Validate(); err != nil {
			return nil, 0, remote.Malformed(ServiceIndex, "row %d: %v", i, err)
		}
		if d, ok := b["doi"]; ok {
			counterpart.DOI = doi.Normalize(d.Value)
		}

		ce := edge.CitationEdge{Source: dir.Source()}
		if cit, ok := b["citation"]; ok {
			ce.Citation = cit.Value
		}
		if dir == DirectionCiting {
			ce.Citing, ce.Cited = counterpart, e
		} else {
			ce.Citing, ce.Cited = e, counterpart
		}
		ce.SetDiscoveredAt(now)
		edges = append(edges, ce)
	}
	return edges, len(parsed.Results.Bindings), nil
}

