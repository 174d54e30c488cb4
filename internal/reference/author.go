package reference

import (
	"strings"
)

// FormatAuthor renders an author as "Family, Given", the form used by
// OpenCitations Meta. Either part may be empty.
func FormatAuthor(family, given string) string {
	family = strings.TrimSpace(family)
	given = strings.TrimSpace(given)
	switch {
	case family == "":
		return given
	case given == "":
		return family
	default:
		return family + ", " + given
	}
}

// SplitAuthors splits an OpenCitations Meta author field
// ("Doe, Jane [orcid:0000-...]; Roe, R.") into names, dropping identifier brackets.
func SplitAuthors(field string) []string {
	var out []string
	for _, part := range strings.Split(field, ";") {
		name := part
		if i := strings.Index(name, "["); i >= 0 {
			name = name[:i]
		}
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
