package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencitations/doi-corrector/internal/config"
	"github.com/opencitations/doi-corrector/internal/entity"
)

func mashedList(uris ...string) []entity.Mashed {
	out := make([]entity.Mashed, len(uris))
	for i, u := range uris {
		out[i] = entity.Mashed{Ref: entity.Ref{URI: u}}
	}
	return out
}

func uris(ms []entity.Mashed) []string {
	var out []string
	for _, m := range ms {
		out = append(out, m.Ref.URI)
	}
	return out
}

func TestSelectEntities(t *testing.T) {
	all := mashedList("https://w3id.org/oc/meta/br/1", "https://w3id.org/oc/meta/br/2", "https://w3id.org/oc/meta/br/3")

	tests := []struct {
		name        string
		want        []string
		wantURIs    []string
		wantMissing []string
	}{
		{
			name:     "empty selects all",
			wantURIs: []string{"https://w3id.org/oc/meta/br/1", "https://w3id.org/oc/meta/br/2", "https://w3id.org/oc/meta/br/3"},
		},
		{
			name:     "keeps store order and ignores duplicates",
			want:     []string{"https://w3id.org/oc/meta/br/3", "https://w3id.org/oc/meta/br/1", "https://w3id.org/oc/meta/br/3"},
			wantURIs: []string{"https://w3id.org/oc/meta/br/1", "https://w3id.org/oc/meta/br/3"},
		},
		{
			name:        "reports unknown",
			want:        []string{"https://w3id.org/oc/meta/br/2", "https://w3id.org/oc/meta/br/9"},
			wantURIs:    []string{"https://w3id.org/oc/meta/br/2"},
			wantMissing: []string{"https://w3id.org/oc/meta/br/9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, missing := selectEntities(all, tt.want)
			assert.Equal(t, tt.wantURIs, uris(selected))
			assert.Equal(t, tt.wantMissing, missing)
		})
	}
}

func TestSummarizeImport(t *testing.T) {
	target := &entity.Ref{URI: "https://w3id.org/oc/meta/br/7"}
	mashed := []entity.Mashed{
		{
			Ref: entity.Ref{URI: "https://w3id.org/oc/meta/br/1"},
			Records: []entity.DOIRecord{
				{DOI: "10.1000/a", Disposition: entity.Belongs},
				{DOI: "10.1000/b", Disposition: entity.Misassigned, Target: target},
				{DOI: "10.1000/c", Disposition: entity.Misassigned},
			},
		},
		{
			Ref: entity.Ref{URI: "https://w3id.org/oc/meta/br/2"},
			Records: []entity.DOIRecord{
				{DOI: "10.1000/d", Disposition: entity.Invalid},
			},
		},
	}

	got := summarizeImport(mashed)
	assert.Equal(t, 2, got.Entities)
	assert.Equal(t, 4, got.Records)
	assert.Equal(t, 2, got.Dispositions[entity.Misassigned])
	assert.Equal(t, 1, got.PendingTarget)
}

func TestRunDir(t *testing.T) {
	root := t.TempDir()
	id := "0b8f7a52-1111-4c1e-9a51-5a6f2e1d0c11"
	require.NoError(t, os.MkdirAll(config.RunPath(root, id), 0755))

	got, err := runDir(root, id)
	require.NoError(t, err)
	assert.Equal(t, config.RunPath(root, id), got)

	abs := filepath.Join(root, ".unmash", "runs", id)
	got, err = runDir(root, abs)
	require.NoError(t, err)
	assert.Equal(t, abs, got)

	_, err = runDir(root, "missing")
	assert.True(t, errors.Is(err, errNoRun))
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[entity.Disposition]int{entity.Invalid: 1, entity.Belongs: 2, entity.Misassigned: 3})
	want := []entity.Disposition{entity.Belongs, entity.Invalid, entity.Misassigned}
	assert.Equal(t, want, got)
}
