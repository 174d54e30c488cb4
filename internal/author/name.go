// Package author parses and compares author names as registries render them.
package author

import (
	"strings"
)

// Name is a parsed author name.
type Name struct {
	Given  string // Given names or initials (may be empty)
	Family string // Family name
}

// Parse parses an author name.
//
// Supported formats:
//   - "Yu"           → family="Yu" (single word = family name only)
//   - "Timothy Yu"   → given="Timothy", family="Yu" (space-separated = Given Family)
//   - "Yu, Timothy"  → given="Timothy", family="Yu" (comma = Family, Given; the Meta and Crossref form)
//
// Names are trimmed but case is preserved (matching is case-insensitive).
func Parse(input string) Name {
	input = strings.TrimSpace(input)
	if input == "" {
		return Name{}
	}

	// Check for comma format: "Family, Given"
	if idx := strings.Index(input, ","); idx > 0 {
		family := strings.TrimSpace(input[:idx])
		given := strings.TrimSpace(input[idx+1:])
		return Name{Given: given, Family: family}
	}

	parts := strings.Fields(input)
	if len(parts) == 1 {
		return Name{Family: parts[0]}
	}

	// Multiple words: last word is the family name, rest is given
	// e.g., "Timothy C Yu" → given="Timothy C", family="Yu"
	family := parts[len(parts)-1]
	given := strings.Join(parts[:len(parts)-1], " ")
	return Name{Given: given, Family: family}
}

// Matches reports whether two names can denote the same person.
//
// Matching rules:
//   - Family name: case-insensitive exact match (required)
//   - Given names: compared word by word, each a case-insensitive prefix of the
//     other, ignoring periods; skipped when either side has none
//
// This lets "Yu, T." match "Yu, Timothy C" while "Yu" never matches "Yujia".
func (n Name) Matches(other Name) bool {
	if !strings.EqualFold(n.Family, other.Family) {
		return false
	}

	a, b := givenWords(n.Given), givenWords(other.Given)
	for i := 0; i < len(a) && i < len(b); i++ {
		if !strings.HasPrefix(a[i], b[i]) && !strings.HasPrefix(b[i], a[i]) {
			return false
		}
	}
	return true
}

// MatchesAny checks if the name matches any name in the list.
func (n Name) MatchesAny(names []Name) bool {
	for _, o := range names {
		if n.Matches(o) {
			return true
		}
	}
	return false
}

// Contained reports whether every author of left matches an author of right.
// An empty left list is contained in anything.
func Contained(left, right []string) bool {
	parsed := make([]Name, 0, len(right))
	for _, r := range right {
		parsed = append(parsed, Parse(r))
	}
	for _, l := range left {
		if !Parse(l).MatchesAny(parsed) {
			return false
		}
	}
	return true
}

func givenWords(given string) []string {
	return strings.Fields(strings.ToLower(strings.ReplaceAll(given, ".", " ")))
}
