// Package crossref provides a client for the Crossref REST API works endpoint.
package crossref

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
	// BaseURL is the Crossref REST API base URL.
	BaseURL = "https://api.crossref.org"

	// RateLimit is the public pool ceiling; the polite pool (mailto) allows the same rate
	// with better service.
	RateLimit = 5.0

	// Service names Crossref in errors, logs and metrics.
	Service = "crossref"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// Mailto joins the polite pool.
	Mailto string
	// PlusToken authenticates Metadata Plus subscribers.
	PlusToken string
	Remote    remote.Config
}

// Client looks up works in Crossref.
type Client struct {
	http    *remote.Client
	baseURL string
	mailto  string
}

// NewClient creates a Crossref client.
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
	if cfg.PlusToken != "" {
		if cfg.Remote.Header == nil {
			cfg.Remote.Header = http.Header{}
		}
		cfg.Remote.Header.Set("Crossref-Plus-API-Token", "Bearer "+cfg.PlusToken)
	}
	if cfg.Mailto != "" && cfg.Remote.UserAgent == "" {
		cfg.Remote.UserAgent = remote.DefaultUserAgent + " mailto:" + cfg.Mailto
	}
	return &Client{
		http:    remote.New(cfg.Remote, opts...),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		mailto:  cfg.Mailto,
	}
}

// Name identifies the registry.
func (c *Client) Name() string {
	return Service
}

// Lookup fetches the work registered for a DOI. A DOI unknown to Crossref
// returns remote.ErrNotFound.
func (c *Client) Lookup(ctx context.Context, rawDOI string) (*reference.Metadata, error) {
	d := doi.Normalize(rawDOI)
	if !doi.Valid(d) {
		return nil, fmt.Errorf("%w: %q", remote.ErrNotFound, rawDOI)
	}

	u := c.baseURL + "/works/" + escapeDOI(d)
	if c.mailto != "" {
		u += "?" + url.Values{"mailto": {c.mailto}}.Encode()
	}
	resp, err := c.http.Get(ctx, u, "application/json")
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, remote.Malformed(Service, "decoding work %s: %v", d, err)
	}
	if env.Message == nil {
		return nil, remote.Malformed(Service, "work %s: missing message", d)
	}
	return env.Message.toMetadata(d), nil
}

// escapeDOI escapes each path segment of a DOI, keeping the prefix/suffix slashes.
func escapeDOI(d string) string {
	parts := strings.Split(d, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
