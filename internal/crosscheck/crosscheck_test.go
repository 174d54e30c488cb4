package crosscheck

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencitations/doi-corrector/internal/reference"
	"github.com/opencitations/doi-corrector/internal/remote"
)

type stubRegistry struct {
	name    string
	records map[string]*reference.Metadata
}

func (s *stubRegistry) Name() string { return s.name }

func (s *stubRegistry) Lookup(ctx context.Context, d string) (*reference.Metadata, error) {
	if md, ok := s.records[d]; ok {
		return md, nil
	}
	return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, d)
}

func TestCompare(t *testing.T) {
	base := &reference.Metadata{
		DOI:       "10.1000/a",
		Title:     "Citation Graphs at Scale",
		Authors:   []string{"Rossi, Anna", "Bianchi, Marco"},
		Publisher: "Elsevier BV",
	}

	tests := []struct {
		name           string
		right          reference.Metadata
		wantTitle      bool
		wantAuthors    bool
		wantPublisher  bool
		wantConsistent bool
	}{
		{
			name:           "identical modulo case and spacing",
			right:          reference.Metadata{Title: "citation  graphs at scale", Authors: []string{"ROSSI, A.", "Bianchi, M.", "Verdi, L."}, Publisher: "elsevier bv"},
			wantTitle:      true,
			wantAuthors:    true,
			wantPublisher:  true,
			wantConsistent: true,
		},
		{
			name:           "different title but same authors and publisher",
			right:          reference.Metadata{Title: "Erratum", Authors: []string{"Rossi, Anna", "Bianchi, Marco"}, Publisher: "Elsevier BV"},
			wantAuthors:    true,
			wantPublisher:  true,
			wantConsistent: true,
		},
		{
			name:          "different work",
			right:         reference.Metadata{Title: "Something Else", Authors: []string{"Neri, Paolo"}, Publisher: "Elsevier BV"},
			wantPublisher: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Compare(base, &tt.right)
			assert.Equal(t, tt.wantTitle, r.Title.Match, "title")
			assert.Equal(t, tt.wantAuthors, r.Authors.Match, "authors")
			assert.Equal(t, tt.wantPublisher, r.Publisher.Match, "publisher")
			assert.Equal(t, tt.wantConsistent, r.Consistent)
		})
	}
}

func TestCompare_EmptyAuthorsMatch(t *testing.T) {
	left := &reference.Metadata{DOI: "10.1000/a", Title: "X"}
	right := &reference.Metadata{DOI: "10.1000/a", Title: "Y", Authors: []string{"Rossi, Anna"}}
	assert.True(t, Compare(left, right).Authors.Match)
}

func TestCheck(t *testing.T) {
	meta := &stubRegistry{name: "oc-meta", records: map[string]*reference.Metadata{
		"10.1000/a": {DOI: "10.1000/a", Title: "Same"},
		"10.1000/b": {DOI: "10.1000/b", Title: "Only here"},
	}}
	cr := &stubRegistry{name: "crossref", records: map[string]*reference.Metadata{
		"10.1000/a": {DOI: "10.1000/a", Title: "same"},
	}}

	r := Check(context.Background(), "https://doi.org/10.1000/A", meta, cr)
	require.Empty(t, r.Error)
	assert.Equal(t, "10.1000/a", r.DOI)
	assert.Equal(t, "oc-meta", r.LeftName)
	assert.Equal(t, "crossref", r.RightName)
	assert.True(t, r.Consistent)

	r = Check(context.Background(), "10.1000/b", meta, cr)
	assert.Contains(t, r.Error, "missing from a registry")
	assert.False(t, r.Consistent)
	assert.Nil(t, r.Title)
}
