package opencitations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/opencitations/doi-corrector/internal/doi"
	"github.com/opencitations/doi-corrector/internal/reference"
	"github.com/opencitations/doi-corrector/internal/remote"
)

const (
	// DefaultMetaEndpoint is the OpenCitations Meta REST API base URL.
	DefaultMetaEndpoint = "https://opencitations.net/meta/api/v1"

	// ServiceMeta names the Meta API in errors, logs and metrics.
	ServiceMeta = "oc-meta"
)

// MetaRecord is one row of the Meta metadata operation. The field set and order
// match the Meta CSV dump.
type MetaRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	PubDate   string `json:"pub_date"`
	Venue     string `json:"venue"`
	Volume    string `json:"volume"`
	Issue     string `json:"issue"`
	Page      string `json:"page"`
	Type      string `json:"type"`
	Publisher string `json:"publisher"`
	Editor    string `json:"editor"`
}

// MetaClient looks up bibliographic metadata in OpenCitations Meta.
type MetaClient struct {
	http    *remote.Client
	baseURL string
}

// MetaConfig configures a MetaClient.
type MetaConfig struct {
	Endpoint    string
	AccessToken string
	Remote      remote.Config
}

// NewMetaClient creates a Meta API client.
func NewMetaClient(cfg MetaConfig, opts ...remote.Option) *MetaClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultMetaEndpoint
	}
	if cfg.Remote.Service == "" {
		cfg.Remote.Service = ServiceMeta
	}
	if cfg.AccessToken != "" {
		if cfg.Remote.Header == nil {
			cfg.Remote.Header = http.Header{}
		}
		cfg.Remote.Header.Set("Authorization", cfg.AccessToken)
	}
	return &MetaClient{
		http:    remote.New(cfg.Remote, opts...),
		baseURL: strings.TrimRight(cfg.Endpoint, "/"),
	}
}

// Name identifies the registry.
func (m *MetaClient) Name() string {
	return ServiceMeta
}

// Record returns the raw Meta row for a DOI, or remote.ErrNotFound.
func (m *MetaClient) Record(ctx context.Context, rawDOI string) (*MetaRecord, error) {
	d := doi.Normalize(rawDOI)
	if !doi.Valid(d) {
		return nil, fmt.Errorf("%w: %q", remote.ErrNotFound, rawDOI)
	}
	resp, err := m.http.Get(ctx, m.baseURL+"/metadata/doi:"+d, "application/json")
	if err != nil {
		return nil, err
	}
	var rows []MetaRecord
	if err := json.Unmarshal(resp.Body, &rows); err != nil {
		return nil, remote.Malformed(ServiceMeta, "decoding metadata for %s: %v", d, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", remote.ErrNotFound, d, ServiceMeta)
	}
	return &rows[0], nil
}

// Lookup resolves a DOI to Metadata. Meta exposes no reference lists, so
// ReferencesKnown is always false.
func (m *MetaClient) Lookup(ctx context.Context, rawDOI string) (*reference.Metadata, error) {
	rec, err := m.Record(ctx, rawDOI)
	if err != nil {
		return nil, err
	}
	return rec.toMetadata(doi.Normalize(rawDOI)), nil
}

func (r *MetaRecord) toMetadata(d string) *reference.Metadata {
	md := &reference.Metadata{
		DOI:       d,
		Title:     strings.TrimSpace(r.Title),
		Authors:   reference.SplitAuthors(r.Author),
		Venue:     stripIdentifiers(r.Venue),
		PubDate:   strings.TrimSpace(r.PubDate),
		Volume:    r.Volume,
		Issue:     r.Issue,
		Page:      r.Page,
		Type:      r.Type,
		Publisher: stripIdentifiers(r.Publisher),
		Registry:  ServiceMeta,
	}
	if len(md.PubDate) >= 4 {
		if y, err := strconv.Atoi(md.PubDate[:4]); err == nil {
			md.Year = y
		}
	}
	return md
}

// stripIdentifiers removes the trailing "[issn:... omid:...]" block Meta appends to names.
func stripIdentifiers(s string) string {
	if i := strings.Index(s, "["); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
