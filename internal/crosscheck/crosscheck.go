// Package crosscheck compares the metadata two registries hold for a DOI. The
// report is advisory: it helps a reviewer spot a DOI attached to the wrong work,
// and never changes a disposition.
package crosscheck

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opencitations/doi-corrector/internal/author"
	"github.com/opencitations/doi-corrector/internal/doi"
	"github.com/opencitations/doi-corrector/internal/reference"
	"github.com/opencitations/doi-corrector/internal/remote"
	"github.com/opencitations/doi-corrector/internal/resolver"
)

// Field is the comparison of one metadata field.
type Field struct {
	Left  string `json:"left"`
	Right string `json:"right"`
	Match bool   `json:"match"`
}

// Report is the comparison of one DOI across two registries.
type Report struct {
	DOI       string `json:"doi"`
	LeftName  string `json:"left_registry"`
	RightName string `json:"right_registry"`

	Title     *Field `json:"title,omitempty"`
	Authors   *Field `json:"authors,omitempty"`
	Publisher *Field `json:"publisher,omitempty"`

	// Consistent holds when the titles agree, or when both the authors and
	// the publisher agree.
	Consistent bool   `json:"consistent"`
	Error      string `json:"error,omitempty"`
}

// Compare builds the report for two records of the same DOI.
func Compare(left, right *reference.Metadata) Report {
	r := Report{DOI: left.DOI}

	r.Title = &Field{Left: left.Title, Right: right.Title}
	r.Title.Match = normalize(left.Title) == normalize(right.Title)

	r.Authors = &Field{
		Left:  strings.Join(left.Authors, "; "),
		Right: strings.Join(right.Authors, "; "),
	}
	r.Authors.Match = author.Contained(left.Authors, right.Authors)

	r.Publisher = &Field{Left: left.Publisher, Right: right.Publisher}
	r.Publisher.Match = normalize(left.Publisher) == normalize(right.Publisher)

	r.Consistent = r.Title.Match || (r.Authors.Match && r.Publisher.Match)
	return r
}

// Check looks the DOI up in both registries concurrently and compares the
// records. A DOI missing from either registry is reported, not compared.
func Check(ctx context.Context, rawDOI string, left, right resolver.Registry) Report {
	d := doi.Normalize(rawDOI)
	var l, r *reference.Metadata
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		l, err = left.Lookup(gctx, d)
		return err
	})
	g.Go(func() error {
		var err error
		r, err = right.Lookup(gctx, d)
		return err
	})

	report := Report{DOI: d, LeftName: left.Name(), RightName: right.Name()}
	if err := g.Wait(); err != nil {
		switch {
		case errors.Is(err, remote.ErrNotFound):
			report.Error = "missing from a registry: " + err.Error()
		default:
			report.Error = err.Error()
		}
		return report
	}

	cmp := Compare(l, r)
	cmp.DOI = d
	cmp.LeftName = report.LeftName
	cmp.RightName = report.RightName
	return cmp
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
