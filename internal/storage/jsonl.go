// Package storage handles data persistence in CSV, JSONL and SQLite formats.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/opencitations/doi-corrector/internal/edge"
	"github.com/opencitations/doi-corrector/internal/reference"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
// This constant is shared across all JSONL file readers.
const MaxJSONLLineCapacity = 1024 * 1024

// File names inside a run directory.
const (
	EdgesFile       = "edges.jsonl"
	MetadataFile    = "metadata.jsonl"
	ResultFile      = "result.json"
	ResultCSVFile   = "result.csv"
	SummaryFile     = "summary.json"
	MetadataCSVFile = "metadata.csv"
)

// ReadJSONL reads all records from a JSONL file. A missing file is empty.
// validate, if non-nil, is applied to every record (fail-fast, with line number).
func ReadJSONL[T any](path string, validate func(*T) error) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Empty file returns empty slice
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)

	// Increase buffer size for long lines
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue // Skip empty lines
		}

		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		if validate != nil {
			if err := validate(&v); err != nil {
				return nil, fmt.Errorf("invalid record at line %d: %w", lineNum, err)
			}
		}
		out = append(out, v)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return out, nil
}

// writeJSONLine marshals a value and writes it as a JSONL line.
func writeJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("writing newline: %w", err)
	}
	return nil
}

// AppendJSONL adds records to the end of a JSONL file.
func AppendJSONL[T any](path string, records ...T) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s for append: %w", path, err)
	}
	defer f.Close()

	for _, r := range records {
		if err := writeJSONLine(f, r); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSONL writes all records to a JSONL file, replacing existing content.
func WriteJSONL[T any](path string, records []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	for i, r := range records {
		if err := writeJSONLine(f, r); err != nil {
			f.Close()
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return f.Close()
}

// EntityEdges is one line of edges.jsonl: an edge with the entity it was collected for.
type EntityEdges struct {
	Entity string            `json:"entity"`
	Edge   edge.CitationEdge `json:"edge"`
}

// ReadAllEdges reads collected edges, validating each one.
func ReadAllEdges(path string) ([]EntityEdges, error) {
	return ReadJSONL(path, func(e *EntityEdges) error {
		if e.Entity == "" {
			return fmt.Errorf("missing entity")
		}
		return e.Edge.ValidateForCreate()
	})
}

// ReadAllMetadata reads resolved metadata records.
func ReadAllMetadata(path string) ([]reference.Metadata, error) {
	return ReadJSONL(path, func(m *reference.Metadata) error {
		if m.DOI == "" {
			return fmt.Errorf("missing doi")
		}
		return nil
	})
}
