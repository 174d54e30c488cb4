// Package entity defines the citation-index entities and the human DOI dispositions
// attached to them.
package entity

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/opencitations/doi-corrector/internal/doi"
)

// Kind classifies what a citation-index entity represents.
type Kind string

const (
	KindJournal Kind = "journal"
	KindArticle Kind = "article"
	KindUnknown Kind = "unknown"
)

// ParseKind maps a free-form kind string to a Kind, defaulting to KindUnknown.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindJournal:
		return KindJournal
	case KindArticle:
		return KindArticle
	default:
		return KindUnknown
	}
}

// Ref identifies an entity of the citation index.
type Ref struct {
	URI  string `json:"uri"`
	Kind Kind   `json:"kind,omitempty"`
	// DOI is the entity's own DOI when the index exposes one (normalized).
	DOI string `json:"doi,omitempty"`
}

// Validation errors.
var (
	ErrEmptyURI           = errors.New("entity uri is required")
	ErrMalformedURI       = errors.New("entity uri is not an absolute URI")
	ErrEmptyDOI           = errors.New("doi is required")
	ErrMalformedDOI       = errors.New("doi does not match DOI syntax")
	ErrUnknownDisposition = errors.New("unknown disposition")
	ErrUnexpectedTarget   = errors.New("target entity is only allowed for misassigned DOIs")
)

// Validate checks that the reference carries a non-empty, well-formed URI.
func (r Ref) Validate() error {
	if r.URI == "" {
		return ErrEmptyURI
	}
	u, err := url.Parse(r.URI)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrMalformedURI, r.URI)
	}
	return nil
}

// String returns the URI.
func (r Ref) String() string {
	return r.URI
}

// Disposition is the human-assigned classification of a candidate DOI.
type Disposition string

const (
	Unvalidated Disposition = "unvalidated"
	Belongs     Disposition = "belongs"
	Misassigned Disposition = "misassigned"
	Invalid     Disposition = "invalid"
)

// ValidDispositions lists the accepted disposition values.
var ValidDispositions = []Disposition{Unvalidated, Belongs, Misassigned, Invalid}

// ParseDisposition parses a disposition value. An empty value means Unvalidated.
func ParseDisposition(s string) (Disposition, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Unvalidated, nil
	}
	for _, d := range ValidDispositions {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q (valid: %v)", ErrUnknownDisposition, s, ValidDispositions)
}

// DOIRecord is a candidate DOI attached to a mashed entity together with its disposition.
type DOIRecord struct {
	DOI         string      `json:"doi"`
	Disposition Disposition `json:"disposition"`
	Target      *Ref        `json:"target,omitempty"`
}

// Validate checks DOI syntax and the target/disposition pairing.
func (r DOIRecord) Validate() error {
	if r.DOI == "" {
		return ErrEmptyDOI
	}
	if !doi.Valid(r.DOI) {
		return fmt.Errorf("%w: %q", ErrMalformedDOI, r.DOI)
	}
	if _, err := ParseDisposition(string(r.Disposition)); err != nil {
		return err
	}
	if r.Target != nil {
		if r.Disposition != Misassigned {
			return ErrUnexpectedTarget
		}
		if err := r.Target.Validate(); err != nil {
			return fmt.Errorf("target: %w", err)
		}
	}
	return nil
}

// PendingTarget reports whether the record is misassigned but its correct
// destination has not been identified yet.
func (r DOIRecord) PendingTarget() bool {
	return r.Disposition == Misassigned && r.Target == nil
}

// Mashed is a mashed entity together with every DOI the review attached to it.
type Mashed struct {
	Ref     Ref         `json:"entity"`
	Records []DOIRecord `json:"records"`
}

// ByDisposition returns the records with the given disposition, in input order.
func (m Mashed) ByDisposition(d Disposition) []DOIRecord {
	var out []DOIRecord
	for _, r := range m.Records {
		if r.Disposition == d {
			out = append(out, r)
		}
	}
	return out
}

// DOIs returns the normalized DOIs of all records.
func (m Mashed) DOIs() []string {
	out := make([]string, 0, len(m.Records))
	for _, r := range m.Records {
		out = append(out, r.DOI)
	}
	return out
}
