package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/opencitations/doi-corrector/internal/doi"
	"github.com/opencitations/doi-corrector/internal/entity"
)

// Review CSV columns. kind is optional.
var recordColumns = []string{"entity", "doi", "disposition", "target"}

// ErrMissingColumn indicates a review CSV without a required header column.
var ErrMissingColumn = errors.New("missing required column")

// ReadRecordsCSV parses the review CSV (entity,doi,disposition,target[,kind]) into
// mashed entities, in first-appearance order. Rows are validated fail-fast with
// their line number. A DOI listed twice for the same entity must agree on disposition.
func ReadRecordsCSV(r io.Reader) ([]entity.Mashed, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range recordColumns[:3] {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []entity.Mashed
	index := make(map[string]int)
	seen := make(map[string]entity.Disposition)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading records: %w", err)
		}
		line, _ := cr.FieldPos(0)

		ref := entity.Ref{URI: field(row, "entity"), Kind: entity.ParseKind(field(row, "kind"))}
		if err := ref.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		disp, err := entity.ParseDisposition(field(row, "disposition"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec := entity.DOIRecord{DOI: doi.Normalize(field(row, "doi")), Disposition: disp}
		if t := field(row, "target"); t != "" {
			rec.Target = &entity.Ref{URI: t, Kind: entity.KindUnknown}
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		key := ref.URI + " " + rec.DOI
		if prev, ok := seen[key]; ok {
			if prev != rec.Disposition {
				return nil, fmt.Errorf("line %d: %s listed for %s as both %s and %s", line, rec.DOI, ref.URI, prev, rec.Disposition)
			}
			continue
		}
		seen[key] = rec.Disposition

		i, ok := index[ref.URI]
		if !ok {
			i = len(out)
			index[ref.URI] = i
			out = append(out, entity.Mashed{Ref: ref})
		}
		if out[i].Ref.Kind == entity.KindUnknown {
			out[i].Ref.Kind = ref.Kind
		}
		out[i].Records = append(out[i].Records, rec)
	}
	return out, nil
}

// WriteRecordsCSV writes mashed entities back in review CSV form.
func WriteRecordsCSV(w io.Writer, mashed []entity.Mashed) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, recordColumns...), "kind")); err != nil {
		return err
	}
	for _, m := range mashed {
		for _, r := range m.Records {
			target := ""
			if r.Target != nil {
				target = r.Target.URI
			}
			if err := cw.Write([]string{m.Ref.URI, r.DOI, string(r.Disposition), target, string(m.Ref.Kind)}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
