// Package s2 provides a Semantic Scholar Graph API registry. Semantic Scholar
// often holds reference lists that publishers never deposited with Crossref.
package s2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/opencitations/doi-corrector/internal/doi"
	"github.com/opencitations/doi-corrector/internal/reference"
	"github.com/opencitations/doi-corrector/internal/remote"
)

const (
	// BaseURL is the Semantic Scholar Graph API base URL.
	BaseURL = "https://api.semanticscholar.org/graph/v1"

	// RateLimit is the per-key ceiling of the Graph API.
	RateLimit = 1.0

	// Service names Semantic Scholar in errors, logs and metrics.
	Service = "s2"

	// paperFields are the fields requested for a DOI lookup.
	paperFields = "externalIds,title,authors,venue,year,publicationDate,publicationTypes,journal,references.externalIds"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Remote  remote.Config
}

// Client looks up papers by DOI.
type Client struct {
	http    *remote.Client
	baseURL string
}

// NewClient creates a Semantic Scholar client.
func NewClient(cfg Config, opts ...remote.Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Remote.Service == "" {
		cfg.Remote.Service = Service
	}
	if cfg.Remote.RateLimit <= 0 {
		cfg.Remote.RateLimit = RateLimit
	}
	if cfg.APIKey != "" {
		if cfg.Remote.Header == nil {
			cfg.Remote.Header = http.Header{}
		}
		cfg.Remote.Header.Set("x-api-key", cfg.APIKey)
	}
	return &Client{
		http:    remote.New(cfg.Remote, opts...),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Name identifies the registry.
func (c *Client) Name() string {
	return Service
}

// Lookup fetches the paper registered for a DOI. An unknown DOI returns remote.ErrNotFound.
func (c *Client) Lookup(ctx context.Context, rawDOI string) (*reference.Metadata, error) {
	d := doi.Normalize(rawDOI)
	if !doi.Valid(d) {
		return nil, fmt.Errorf("%w: %q", remote.ErrNotFound, rawDOI)
	}

	u := c.baseURL + "/paper/DOI:" + url.PathEscape(d) + "?" + url.Values{"fields": {paperFields}}.Encode()
	resp, err := c.http.Get(ctx, u, "application/json")
	if err != nil {
		return nil, err
	}

	var p Paper
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return nil, remote.Malformed(Service, "decoding paper %s: %v", d, err)
	}
	if p.PaperID == "" && p.Title == "" {
		return nil, remote.Malformed(Service, "paper %s: empty record", d)
	}
	return toMetadata(d, p), nil
}
