package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/opencitations/doi-corrector/internal/reference"
	"github.com/opencitations/doi-corrector/internal/remote"
)

// Registry is a source of bibliographic metadata keyed by DOI. A DOI the registry
// does not know returns an error matching remote.ErrNotFound.
type Registry interface {
	Name() string
	Lookup(ctx context.Context, doi string) (*reference.Metadata, error)
}

// Chain tries registries in order and returns the first record found. When that
// record has no reference list, the later registries and then the augmenters are
// asked for one.
type Chain struct {
	registries []Registry
	augmenters []Registry
	logger     zerolog.Logger
}

// NewChain creates a chain over registries, tried in the given order.
func NewChain(registries ...Registry) *Chain {
	return &Chain{registries: registries, logger: zerolog.Nop()}
}

// WithAugmenter adds a reference-list source, such as local PDFs.
func (c *Chain) WithAugmenter(r Registry) *Chain {
	c.augmenters = append(c.augmenters, r)
	return c
}

// WithLogger sets the chain's logger.
func (c *Chain) WithLogger(l zerolog.Logger) *Chain {
	c.logger = l
	return c
}

// Name lists the chained registries.
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.registries))
	for _, r := range c.registries {
		names = append(names, r.Name())
	}
	return strings.Join(names, ",")
}

// Lookup returns the first registry hit. When every registry misses, the result is
// remote.ErrNotFound, unless one of them failed, in which case that failure is
// returned so the DOI is reported as failed rather than unknown.
func (c *Chain) Lookup(ctx context.Context, d string) (*reference.Metadata, error) {
	var failures []error
	var found *reference.Metadata
	var rest []Registry
	for i, r := range c.registries {
		md, err := r.Lookup(ctx, d)
		if err == nil {
			found = md
			rest = c.registries[i+1:]
			break
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if remote.IsNotFound(err) {
			continue
		}
		c.logger.Warn().Err(err).Str("doi", d).Str("registry", r.Name()).Msg("registry lookup failed")
		failures = append(failures, fmt.Errorf("%s: %w", r.Name(), err))
	}
	if found == nil {
		if len(failures) > 0 {
			return nil, errors.Join(failures...)
		}
		return nil, fmt.Errorf("%w: %s in %s", remote.ErrNotFound, d, c.Name())
	}

	if !found.ReferencesKnown {
		c.augment(ctx, found, append(append([]Registry(nil), rest...), c.augmenters...))
	}
	return found, nil
}

// augment fills md's reference list from the first source that has one.
func (c *Chain) augment(ctx context.Context, md *reference.Metadata, sources []Registry) {
	for _, a := range sources {
		if ctx.Err() != nil {
			return
		}
		extra, err := a.Lookup(ctx, md.DOI)
		if err != nil {
			if !remote.IsNotFound(err) {
				c.logger.Debug().Err(err).Str("doi", md.DOI).Str("registry", a.Name()).Msg("augmenter failed")
			}
			continue
		}
		if !extra.ReferencesKnown {
			continue
		}
		md.AddReferences(extra.ReferencedDOIs...)
		md.Registry += "+" + a.Name()
		if md.Title == "" {
			md.Title = extra.Title
		}
		return
	}
}
