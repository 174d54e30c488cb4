// Package opencitations provides clients for the OpenCitations Index SPARQL endpoint
// and the OpenCitations Meta REST API.
package opencitations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/opencitations/doi-corrector/internal/remote"
)

const (
	// DefaultSPARQLEndpoint is the public OpenCitations Index SPARQL endpoint.
	DefaultSPARQLEndpoint = "https://opencitations.net/index/sparql"

	// DefaultPageSize is the number of solutions requested per SPARQL page.
	DefaultPageSize = 1000

	// ServiceIndex names the SPARQL endpoint in errors, logs and metrics.
	ServiceIndex = "oc-index"

	sparqlResultsJSON = "application/sparql-results+json"
)

// Config configures the SPARQL client.
type Config struct {
	Endpoint    string
	PageSize    int
	AccessToken string
	Remote      remote.Config
}

// Client reads citation edges from the citation index.
// It is safe for concurrent use.
type Client struct {
	http     *remote.Client
	endpoint string
	pageSize int
	now      func() time.Time
}

// NewClient creates a SPARQL client. Options are passed to the underlying HTTP client.
func NewClient(cfg Config, opts ...remote.Option) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultSPARQLEndpoint
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Remote.Service == "" {
		cfg.Remote.Service = ServiceIndex
	}
	if cfg.AccessToken != "" {
		if cfg.Remote.Header == nil {
			cfg.Remote.Header = http.Header{}
		}
		cfg.Remote.Header.Set("Authorization", cfg.AccessToken)
	}
	return &Client{
		http:     remote.New(cfg.Remote, opts...),
		endpoint: cfg.Endpoint,
		pageSize: cfg.PageSize,
		now:      time.Now,
	}
}

// PageSize returns the configured page size.
func (c *Client) PageSize() int {
	return c.pageSize
}

// Ping checks that the endpoint is reachable and accepts our credentials.
// A 401/403 surfaces as remote.ErrAuthError, a connection failure as remote.ErrUnreachable.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.Get(ctx, c.queryURL("ASK {}"), sparqlResultsJSON)
	if err != nil {
		return fmt.Errorf("sparql preflight: %w", err)
	}
	var ask struct {
		Boolean *bool `json:"boolean"`
	}
	if err := json.Unmarshal(resp.Body, &ask); err != nil || ask.Boolean == nil {
		return fmt.Errorf("sparql preflight: %w", remote.Malformed(ServiceIndex, "ASK did not return a boolean"))
	}
	return nil
}

func (c *Client) queryURL(query string) string {
	return c.endpoint + "?" + url.Values{"query": {query}}.Encode()
}
