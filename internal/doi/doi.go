// Package doi normalizes, validates and extracts Digital Object Identifiers.
package doi

import (
	"regexp"
	"strings"
)

// doiPattern matches a DOI embedded in free text: 10.XXXX/... where XXXX is 4-9 digits.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// syntaxPattern is the anchored form used to validate an already-isolated DOI.
var syntaxPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)

// pmidPattern matches "PMID: 12345" style markers in reference strings.
var pmidPattern = regexp.MustCompile(`\bPMID[:\s]?(\d+)\b`)

// URL and scheme prefixes stripped by Normalize, longest first.
var prefixes = []string{
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"https://doi.org/",
	"http://doi.org/",
	"dx.doi.org/",
	"doi.org/",
	"doi:",
}

// Normalize normalizes a DOI to a consistent format for comparison.
// It removes common URL prefixes (https://doi.org/, doi:) and converts to lowercase.
// DOIs are case-insensitive, so the lowercase form is the cache and dedup key.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			lower = lower[len(p):]
			break
		}
	}
	return strings.TrimSpace(lower)
}

// Valid reports whether s, after normalization, has DOI syntax.
func Valid(s string) bool {
	return syntaxPattern.MatchString(Normalize(s))
}

// Extract returns the first DOI found in text, normalized, or "" if none.
func Extract(text string) string {
	all := ExtractAll(text)
	if len(all) == 0 {
		return ""
	}
	return all[0]
}

// ExtractAll returns every distinct DOI found in text, normalized, in order of appearance.
func ExtractAll(text string) []string {
	matches := doiPattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		// Remove trailing punctuation picked up from the surrounding sentence
		m = strings.TrimRight(m, ".,;:)")
		d := Normalize(m)
		if !Valid(d) || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// ExtractPMID returns the PubMed identifier in a reference string, or "".
func ExtractPMID(text string) string {
	m := pmidPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
