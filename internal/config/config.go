// Package config handles workspace configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opencitations/doi-corrector/internal/crossref"
	"github.com/opencitations/doi-corrector/internal/opencitations"
	"github.com/opencitations/doi-corrector/internal/remote"
	"github.com/opencitations/doi-corrector/internal/s2"
)

const (
	WorkspaceDir = ".unmash"
	ConfigFile   = "config.yml"
	RunsDir      = "runs"
	DBFile       = "unmash.db"
)

// Defaults for fields left empty in config.yml.
const (
	DefaultConcurrency       = 4
	DefaultLookupConcurrency = 8
	DefaultIndexRateLimit    = 2.0
	DefaultMetaRateLimit     = 2.0
)

// DefaultRegistries is the lookup order of metadata registries.
var DefaultRegistries = []string{crossref.Service, opencitations.ServiceMeta}

// KnownRegistries lists every registry name accepted in config.yml.
var KnownRegistries = []string{crossref.Service, opencitations.ServiceMeta, s2.Service}

// Config represents workspace configuration stored in .unmash/config.yml.
type Config struct {
	// Endpoints
	SPARQLEndpoint   string `yaml:"sparql_endpoint"`
	MetaEndpoint     string `yaml:"meta_endpoint"`
	CrossrefEndpoint string `yaml:"crossref_endpoint"`
	S2Endpoint       string `yaml:"s2_endpoint"`

	// Index paging
	PageSize int `yaml:"page_size"`

	// Requests per second per service
	IndexRateLimit    float64 `yaml:"index_rate_limit"`
	MetaRateLimit     float64 `yaml:"meta_rate_limit"`
	CrossrefRateLimit float64 `yaml:"crossref_rate_limit"`
	S2RateLimit       float64 `yaml:"s2_rate_limit"`

	Timeout time.Duration      `yaml:"timeout"`
	Retry   remote.RetryPolicy `yaml:"retry"`

	// Concurrency bounds entities processed at once; LookupConcurrency bounds
	// metadata lookups in flight.
	Concurrency       int `yaml:"concurrency"`
	LookupConcurrency int `yaml:"lookup_concurrency"`

	// Registries lists metadata registries in lookup order (crossref, oc-meta, s2).
	Registries []string `yaml:"registries"`

	// PDFDir holds locally stored PDFs named after their DOI.
	PDFDir string `yaml:"pdf_dir,omitempty"`

	// Credentials never live in config.yml; see LoadCredentials.
	Credentials Credentials `yaml:"-"`
}

// Configuration errors. They abort a run before any network call.
var (
	ErrNotWorkspace   = errors.New("not in an unmash workspace (no .unmash directory found)")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrUnknownService = errors.New("unknown registry")
)

// WorkspacePath returns the path to the .unmash directory from a root path.
func WorkspacePath(root string) string {
	return filepath.Join(root, WorkspaceDir)
}

// ConfigPath returns the path to config.yml from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, WorkspaceDir, ConfigFile)
}

// DBPath returns the path to the identifier store from a root path.
func DBPath(root string) string {
	return filepath.Join(root, WorkspaceDir, DBFile)
}

// RunsPath returns the directory holding per-run outputs.
func RunsPath(root string) string {
	return filepath.Join(root, WorkspaceDir, RunsDir)
}

// RunPath returns the output directory of one run.
func RunPath(root, runID string) string {
	return filepath.Join(RunsPath(root), runID)
}

// IsWorkspace checks if the given path contains an unmash workspace.
func IsWorkspace(root string) bool {
	info, err := os.Stat(WorkspacePath(root))
	return err == nil && info.IsDir()
}

// FindWorkspace walks up from the given path to find an unmash workspace.
// Returns the workspace root path or an error if not found.
func FindWorkspace(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsWorkspace(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", ErrNotWorkspace
		}
		abs = parent
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.SPARQLEndpoint == "" {
		c.SPARQLEndpoint = opencitations.DefaultSPARQLEndpoint
	}
	if c.MetaEndpoint == "" {
		c.MetaEndpoint = opencitations.DefaultMetaEndpoint
	}
	if c.CrossrefEndpoint == "" {
		c.CrossrefEndpoint = crossref.BaseURL
	}
	if c.S2Endpoint == "" {
		c.S2Endpoint = s2.BaseURL
	}
	if c.PageSize == 0 {
		c.PageSize = opencitations.DefaultPageSize
	}
	if c.IndexRateLimit == 0 {
		c.IndexRateLimit = DefaultIndexRateLimit
	}
	if c.MetaRateLimit == 0 {
		c.MetaRateLimit = DefaultMetaRateLimit
	}
	if c.CrossrefRateLimit == 0 {
		c.CrossrefRateLimit = crossref.RateLimit
	}
	if c.S2RateLimit == 0 {
		c.S2RateLimit = s2.RateLimit
	}
	if c.Timeout == 0 {
		c.Timeout = remote.DefaultTimeout
	}
	d := remote.DefaultRetryPolicy()
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = d.MaxAttempts
	}
	if c.Retry.BackoffBase == 0 {
		c.Retry.BackoffBase = d.BackoffBase
	}
	if c.Retry.BackoffMultiplier == 0 {
		c.Retry.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = d.MaxBackoff
	}
	if c.Retry.MaxElapsed == 0 {
		c.Retry.MaxElapsed = d.MaxElapsed
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.LookupConcurrency == 0 {
		c.LookupConcurrency = DefaultLookupConcurrency
	}
	if len(c.Registries) == 0 {
		c.Registries = append([]string(nil), DefaultRegistries...)
	}
	if c.PDFDir != "" {
		c.PDFDir = ExpandPath(c.PDFDir)
	}
}

// Load reads configuration from the workspace at the given root.
// A workspace without config.yml uses the defaults.
func Load(root string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(ConfigPath(root))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, ConfigPath(root), err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes configuration to the workspace at the given root.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate rejects configurations a run cannot start with.
func (c *Config) Validate() error {
	var errs []error
	endpoints := []struct{ name, url string }{
		{"sparql_endpoint", c.SPARQLEndpoint},
		{"meta_endpoint", c.MetaEndpoint},
		{"crossref_endpoint", c.CrossrefEndpoint},
		{"s2_endpoint", c.S2Endpoint},
	}
	for _, ep := range endpoints {
		if err := validateURL(ep.url); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ep.name, err))
		}
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page_size must be positive, got %d", c.PageSize))
	}
	if c.IndexRateLimit <= 0 || c.MetaRateLimit <= 0 || c.CrossrefRateLimit <= 0 || c.S2RateLimit <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts))
	}
	if c.Concurrency <= 0 || c.LookupConcurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if len(c.Registries) == 0 {
		errs = append(errs, errors.New("at least one registry is required"))
	}
	for _, r := range c.Registries {
		if !slices.Contains(KnownRegistries, r) {
			errs = append(errs, fmt.Errorf("%w: %s (valid: %s)", ErrUnknownService, r, strings.Join(KnownRegistries, ", ")))
		}
	}
	if err := ValidatePDFDir(c.PDFDir); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("not an http(s) URL: %q", raw)
	}
	return nil
}

// ValidatePDFDir checks that the PDF directory exists and is a directory.
func ValidatePDFDir(path string) error {
	if path == "" {
		return nil // Empty is allowed (no local PDFs)
	}

	expandedPath := ExpandPath(path)

	info, err := os.Stat(expandedPath)
	if err != nil {
		return fmt.Errorf("pdf_dir does not exist: %s", expandedPath)
	}
	if !info.IsDir() {
		return fmt.Errorf("pdf_dir is not a directory: %s", expandedPath)
	}

	return nil
}

// RemoteConfig returns the HTTP client settings for a service.
func (c *Config) RemoteConfig(service string) remote.Config {
	rc := remote.Config{
		Service: service,
		Timeout: c.Timeout,
		Retry:   c.Retry,
	}
	switch service {
	case opencitations.ServiceIndex:
		rc.RateLimit = c.IndexRateLimit
	case opencitations.ServiceMeta:
		rc.RateLimit = c.MetaRateLimit
	case crossref.Service:
		rc.RateLimit = c.CrossrefRateLimit
	case s2.Service:
		rc.RateLimit = c.S2RateLimit
	}
	return rc
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
