package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/opencitations/doi-corrector/internal/doi"
	"github.com/opencitations/doi-corrector/internal/reference"
	"github.com/opencitations/doi-corrector/internal/remote"
)

// RegistryName identifies PDF-derived metadata.
const RegistryName = "pdf"

// headingPattern matches the heading that opens a reference section.
var headingPattern = regexp.MustCompile(`(?im)^\s*(references|bibliography|works cited|literature cited|reference list)\s*$`)

// ExtractText extracts all text from the first N pages of a PDF (all pages when maxPages <= 0).
func ExtractText(filePath string, maxPages int) (string, error) {
	f, r, err := pdf.Open(filePath)
	if f != nil {
		defer f.Close()
	}
	if err != nil {
		return "", err
	}
	return pageText(r, maxPages), nil
}

// ExtractTextReader extracts text from a PDF reader.
func ExtractTextReader(ra io.ReaderAt, size int64, maxPages int) (string, error) {
	r, err := pdf.NewReader(ra, size)
	if err != nil {
		return "", err
	}
	return pageText(r, maxPages), nil
}

func pageText(r *pdf.Reader, maxPages int) string {
	if maxPages <= 0 || maxPages > r.NumPage() {
		maxPages = r.NumPage()
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	return builder.String()
}

// ReferenceSection returns the text after the last reference-section heading,
// or the whole text when there is none.
func ReferenceSection(text string) string {
	locs := headingPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	return text[locs[len(locs)-1][1]:]
}

// ReferenceDOIs returns the distinct DOIs cited in the reference section of text,
// leaving out the article's own DOI.
func ReferenceDOIs(text, own string) []string {
	own = doi.Normalize(own)
	var out []string
	for _, d := range doi.ExtractAll(ReferenceSection(text)) {
		if d != own {
			out = append(out, d)
		}
	}
	return out
}

// Title returns the first substantial line of text that is not a running header.
func Title(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !isHeaderLine(line) {
			return line
		}
	}
	return ""
}

// isHeaderLine checks if a line is likely a header/footer.
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"):
		return true
	case strings.Contains(lower, "volume") && strings.Contains(lower, "issue"):
		return true
	case strings.Contains(lower, "copyright"):
		return true
	case strings.Contains(lower, "doi.org") || strings.HasPrefix(lower, "doi:"):
		return true
	}
	return false
}

// Registry serves reference lists recovered from local PDFs. It only knows
// references, so the resolver uses it to augment records from other registries.
type Registry struct {
	lib *Library
}

// NewRegistry creates a registry over a PDF library.
func NewRegistry(lib *Library) *Registry {
	return &Registry{lib: lib}
}

// Name identifies the registry.
func (r *Registry) Name() string {
	return RegistryName
}

// Lookup reads the PDF stored for a DOI. A DOI without a PDF is remote.ErrNotFound.
// ReferencesKnown is set only when at least one reference DOI was recovered.
func (r *Registry) Lookup(ctx context.Context, d string) (*reference.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := r.lib.ResolvePath(d)
	if err != nil {
		if errors.Is(err, ErrNoPDF) {
			return nil, fmt.Errorf("%w: %v", remote.ErrNotFound, err)
		}
		return nil, err
	}
	text, err := ExtractText(path, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", remote.ErrMalformedResponse, path, err)
	}

	md := &reference.Metadata{
		DOI:      doi.Normalize(d),
		Title:    Title(text),
		Registry: RegistryName,
	}
	if refs := ReferenceDOIs(text, d); len(refs) > 0 {
		md.AddReferences(refs...)
	}
	return md, nil
}
