package crossref

import (
	"fmt"
	"strings"

	"github.com/opencitations/doi-corrector/internal/doi"
	"github.com/opencitations/doi-corrector/internal/reference"
)

// envelope is the standard Crossref response wrapper.
type envelope struct {
	Status      string `json:"status"`
	MessageType string `json:"message-type"`
	Message     *Work  `json:"message"`
}

// Work is the subset of a Crossref work record we use.
type Work struct {
	DOI            string      `json:"DOI"`
	Title          []string    `json:"title"`
	Author         []Person    `json:"author"`
	Editor         []Person    `json:"editor"`
	ContainerTitle []string    `json:"container-title"`
	Issued         DateParts   `json:"issued"`
	Published      DateParts   `json:"published"`
	Volume         string      `json:"volume"`
	Issue          string      `json:"issue"`
	Page           string      `json:"page"`
	Type           string      `json:"type"`
	Publisher      string      `json:"publisher"`
	Reference      []Reference `json:"reference"`
}

// Person is an author or editor.
type Person struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"` // organizational authors
}

// DateParts is Crossref's partial date, e.g. {"date-parts": [[2019, 4]]}.
type DateParts struct {
	Parts [][]int `json:"date-parts"`
}

// Reference is one entry of a work's deposited reference list.
type Reference struct {
	Key          string `json:"key"`
	DOI          string `json:"DOI"`
	Unstructured string `json:"unstructured"`
}

// Year returns the first date part, or 0.
func (d DateParts) Year() int {
	if len(d.Parts) == 0 || len(d.Parts[0]) == 0 {
		return 0
	}
	return d.Parts[0][0]
}

// ISO renders the date as YYYY, YYYY-MM or YYYY-MM-DD.
func (d DateParts) ISO() string {
	if d.Year() == 0 {
		return ""
	}
	p := d.Parts[0]
	switch len(p) {
	case 1:
		return fmt.Sprintf("%04d", p[0])
	case 2:
		return fmt.Sprintf("%04d-%02d", p[0], p[1])
	default:
		return fmt.Sprintf("%04d-%02d-%02d", p[0], p[1], p[2])
	}
}

// ReferencedDOIs returns the DOIs of the deposited references. Entries without a
// DOI field fall back to a DOI found in the unstructured citation text.
func (w *Work) ReferencedDOIs() []string {
	var out []string
	for _, r := range w.Reference {
		switch {
		case r.DOI != "":
			out = append(out, r.DOI)
		case r.Unstructured != "":
			if d := doi.Extract(r.Unstructured); d != "" {
				out = append(out, d)
			}
		}
	}
	return out
}

func (w *Work) toMetadata(d string) *reference.Metadata {
	md := &reference.Metadata{
		DOI:       d,
		Title:     strings.TrimSpace(first(w.Title)),
		Venue:     strings.TrimSpace(first(w.ContainerTitle)),
		Volume:    w.Volume,
		Issue:     w.Issue,
		Page:      w.Page,
		Type:      w.Type,
		Publisher: w.Publisher,
		Registry:  Service,
	}
	for _, a := range w.Author {
		name := reference.FormatAuthor(a.Family, a.Given)
		if name == "" {
			name = strings.TrimSpace(a.Name)
		}
		if name != "" {
			md.Authors = append(md.Authors, name)
		}
	}

	date := w.Issued
	if date.Year() == 0 {
		date = w.Published
	}
	md.Year = date.Year()
	md.PubDate = date.ISO()

	// A missing reference list means "unknown", not "cites nothing".
	if w.Reference != nil {
		md.AddReferences(w.ReferencedDOIs()...)
	}
	return md
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}
