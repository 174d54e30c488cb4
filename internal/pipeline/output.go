package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/opencitations/doi-corrector/internal/collect"
	"github.com/opencitations/doi-corrector/internal/merge"
	"github.com/opencitations/doi-corrector/internal/reference"
	"github.com/opencitations/doi-corrector/internal/resolver"
	"github.com/opencitations/doi-corrector/internal/storage"
)

// EdgeLines flattens collections into edges.jsonl lines, in collection order.
func EdgeLines(collections []*collect.Collection) []storage.EntityEdges {
	var out []storage.EntityEdges
	for _, c := range collections {
		if c == nil {
			continue
		}
		for _, e := range c.Edges {
			out = append(out, storage.EntityEdges{Entity: c.Entity.URI, Edge: e})
		}
	}
	return out
}

// FoundMetadata returns the resolved records of the outcomes, sorted by DOI.
func FoundMetadata(outcomes map[string]resolver.Outcome) []reference.Metadata {
	var out []reference.Metadata
	for _, o := range outcomes {
		if o.Found && o.Metadata != nil {
			out = append(out, *o.Metadata)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DOI < out[j].DOI })
	return out
}

// WriteEdges writes edges.jsonl into dir.
func WriteEdges(dir string, collections []*collect.Collection) error {
	return storage.WriteJSONL(filepath.Join(dir, storage.EdgesFile), EdgeLines(collections))
}

// WriteMetadata writes metadata.jsonl and the Meta-format metadata.csv into dir.
func WriteMetadata(dir string, outcomes map[string]resolver.Outcome) error {
	records := FoundMetadata(outcomes)
	if err := storage.WriteJSONL(filepath.Join(dir, storage.MetadataFile), records); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, storage.MetadataCSVFile), func(f *os.File) error {
		return storage.WriteMetaCSV(f, records)
	})
}

// WriteReport writes every output of a run into dir, creating it if needed.
func WriteReport(dir string, r *Report) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if r.Collections != nil {
		if err := WriteEdges(dir, r.Collections); err != nil {
			return err
		}
	}
	if r.Outcomes != nil {
		if err := WriteMetadata(dir, r.Outcomes); err != nil {
			return err
		}
	}
	if r.Results != nil {
		if err := storage.WriteJSON(filepath.Join(dir, storage.ResultFile), r.Results); err != nil {
			return err
		}
		err := writeFile(filepath.Join(dir, storage.ResultCSVFile), func(f *os.File) error {
			return storage.WriteResultCSV(f, r.Results)
		})
		if err != nil {
			return err
		}
	}
	if r.Summary != nil {
		if err := storage.WriteJSON(filepath.Join(dir, storage.SummaryFile), r.Summary); err != nil {
			return err
		}
	}
	return nil
}

// LoadDataset rebuilds the merged dataset from a run directory's edges.jsonl.
func LoadDataset(dir string) (*merge.Dataset, error) {
	lines, err := storage.ReadAllEdges(filepath.Join(dir, storage.EdgesFile))
	if err != nil {
		return nil, err
	}
	ds := merge.New()
	for _, l := range lines {
		ds.Add(l.Entity, l.Edge)
	}
	return ds, nil
}

// RunEntities returns the entity URIs a run directory covers: those of its
// summary.json, or, for a directory without one, those its edges touched.
func RunEntities(dir string, ds *merge.Dataset) ([]string, error) {
	path := filepath.Join(dir, storage.SummaryFile)
	if _, err := os.Stat(path); err == nil {
		var s Summary
		if err := storage.ReadJSON(path, &s); err != nil {
			return nil, err
		}
		uris := make([]string, 0, len(s.Entities))
		for _, e := range s.Entities {
			uris = append(uris, e.Entity)
		}
		return uris, nil
	}

	seen := make(map[string]bool)
	var uris []string
	if ds != nil {
		for _, e := range ds.Entries() {
			for _, uri := range e.Entities {
				if !seen[uri] {
					seen[uri] = true
					uris = append(uris, uri)
				}
			}
		}
	}
	sort.Strings(uris)
	return uris, nil
}

// LoadMetadata reads a run directory's metadata.jsonl, for seeding a resolver.
func LoadMetadata(dir string) ([]*reference.Metadata, error) {
	records, err := storage.ReadAllMetadata(filepath.Join(dir, storage.MetadataFile))
	if err != nil {
		return nil, err
	}
	out := make([]*reference.Metadata, len(records))
	for i := range records {
		out[i] = &records[i]
	}
	return out, nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
