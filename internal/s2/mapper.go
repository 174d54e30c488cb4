package s2

import (
	"strings"

	"github.com/opencitations/doi-corrector/internal/doi"
	"github.com/opencitations/doi-corrector/internal/reference"
)

// Common name suffixes to keep with the last name.
var nameSuffixes = map[string]bool{
	"jr":   true,
	"jr.":  true,
	"sr":   true,
	"sr.":  true,
	"ii":   true,
	"iii":  true,
	"iv":   true,
	"v":    true,
	"phd":  true,
	"ph.d": true,
	"md":   true,
	"m.d":  true,
}

// toMetadata converts a paper to Metadata for DOI d. The reference list is
// only marked known when at least one reference carries a DOI.
func toMetadata(d string, p Paper) *reference.Metadata {
	md := &reference.Metadata{
		DOI:      d,
		Title:    strings.TrimSpace(p.Title),
		Authors:  mapAuthors(p.Authors),
		Venue:    p.Venue,
		Year:     p.Year,
		PubDate:  p.PubDate,
		Registry: Service,
	}
	if p.Journal != nil {
		if md.Venue == "" {
			md.Venue = p.Journal.Name
		}
		md.Volume = strings.TrimSpace(p.Journal.Volume)
		md.Page = strings.TrimSpace(p.Journal.Pages)
	}
	if len(p.PublicationTypes) > 0 {
		md.Type = p.PublicationTypes[0]
	}

	var refs []string
	for _, r := range p.References {
		if r.ExternalIDs.DOI != "" && doi.Valid(r.ExternalIDs.DOI) {
			refs = append(refs, r.ExternalIDs.DOI)
		}
	}
	if len(refs) > 0 {
		md.AddReferences(refs...)
	}
	return md
}

// mapAuthors converts display names to "Family, Given".
func mapAuthors(authors []Author) []string {
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		first, last := splitAuthorName(a.Name)
		if name := reference.FormatAuthor(last, first); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// splitAuthorName splits a full name into first and last name.
// Handles common suffixes (Jr, Sr, II, III, IV, PhD, MD).
//
// Known limitations:
// - Multi-part surnames (von Neumann, van der Waals) split incorrectly
// - Non-Western name formats may not be handled correctly
// - Middle names are included in the first name
func splitAuthorName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}

	parts := strings.Fields(name)
	if len(parts) == 1 {
		// Single name (e.g., "Madonna")
		return "", parts[0]
	}

	// Check if the last part is a suffix
	lastPart := strings.ToLower(parts[len(parts)-1])
	if nameSuffixes[lastPart] && len(parts) > 2 {
		// Keep suffix with last name
		last = parts[len(parts)-2] + " " + parts[len(parts)-1]
		first = strings.Join(parts[:len(parts)-2], " ")
	} else {
		// Standard split: last part is last name
		last = parts[len(parts)-1]
		first = strings.Join(parts[:len(parts)-1], " ")
	}

	return first, last
}
