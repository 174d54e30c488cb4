package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/opencitations/doi-corrector/internal/matcher"
	"github.com/opencitations/doi-corrector/internal/reference"
)

// Placement column values in result.csv.
const (
	PlacementGroup     = "group"
	PlacementRedirect  = "redirect"
	PlacementAmbiguous = "ambiguous"
	PlacementDiscarded = "discarded"
)

var resultColumns = []string{
	"entity", "doi", "disposition", "target", "status", "placement",
	"citing", "cited", "citing_doi", "cited_doi", "role", "sources", "multi_match", "reason",
}

// OpenCitations Meta CSV column order.
var metaColumns = []string{
	"id", "title", "author", "pub_date", "venue", "volume", "issue", "page", "type", "publisher", "editor",
}

// WriteJSON writes v as indented JSON, replacing existing content.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadJSON reads a JSON document written by WriteJSON.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// WriteResultCSV flattens results into one row per placement. Kept DOIs without
// edges still get a row so every belongs DOI appears in the output.
func WriteResultCSV(w io.Writer, results []*matcher.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultColumns); err != nil {
		return err
	}

	for _, r := range results {
		ent := r.Entity.URI
		for _, g := range r.Groups {
			if len(g.Edges) == 0 {
				row := []string{ent, g.Record.DOI, string(g.Record.Disposition), "", "", PlacementGroup}
				if err := cw.Write(pad(row)); err != nil {
					return err
				}
				continue
			}
			for _, pe := range g.Edges {
				row := append([]string{ent, g.Record.DOI, string(g.Record.Disposition), "", "", PlacementGroup}, edgeColumns(pe)...)
				if err := cw.Write(row); err != nil {
					return err
				}
			}
		}
		for _, rd := range r.Redirects {
			target := ""
			if rd.Target != nil {
				target = rd.Target.URI
			}
			prefix := []string{ent, rd.Record.DOI, string(rd.Record.Disposition), target, string(rd.Status), PlacementRedirect}
			if len(rd.Edges) == 0 {
				if err := cw.Write(pad(prefix)); err != nil {
					return err
				}
				continue
			}
			for _, pe := range rd.Edges {
				if err := cw.Write(append(append([]string{}, prefix...), edgeColumns(pe)...)); err != nil {
					return err
				}
			}
		}
		for _, pe := range r.Ambiguous {
			row := append([]string{ent, "", "", "", "", PlacementAmbiguous}, edgeColumns(pe)...)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		for _, pe := range r.Discarded {
			row := append([]string{ent, "", "", "", "", PlacementDiscarded}, edgeColumns(pe)...)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func edgeColumns(pe matcher.PlacedEdge) []string {
	sources := make([]string, len(pe.Sources))
	for i, s := range pe.Sources {
		sources[i] = string(s)
	}
	return []string{
		pe.Edge.Citing.URI,
		pe.Edge.Cited.URI,
		pe.Edge.Citing.DOI,
		pe.Edge.Cited.DOI,
		string(pe.Role),
		strings.Join(sources, ";"),
		strconv.FormatBool(pe.MultiMatch),
		string(pe.Reason),
	}
}

func pad(row []string) []string {
	for len(row) < len(resultColumns) {
		row = append(row, "")
	}
	return row
}

// WriteMetaCSV writes resolved metadata in OpenCitations Meta CSV form so it can
// be loaded back into the index.
func WriteMetaCSV(w io.Writer, records []reference.Metadata) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(metaColumns); err != nil {
		return err
	}
	for _, m := range records {
		date := m.PubDate
		if date == "" && m.Year > 0 {
			date = strconv.Itoa(m.Year)
		}
		row := []string{
			"doi:" + m.DOI,
			m.Title,
			strings.Join(m.Authors, "; "),
			date,
			m.Venue,
			m.Volume,
			m.Issue,
			m.Page,
			m.Type,
			m.Publisher,
			"",
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
