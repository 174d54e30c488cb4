package s2

// Paper is the subset of a Graph API paper record used here.
type Paper struct {
	PaperID          string      `json:"paperId"`
	ExternalIDs      ExternalIDs `json:"externalIds"`
	Title            string      `json:"title"`
	Venue            string      `json:"venue"`
	Year             int         `json:"year"`
	PubDate          string      `json:"publicationDate"`
	PublicationTypes []string    `json:"publicationTypes"`
	Journal          *Journal    `json:"journal"`
	Authors          []Author    `json:"authors"`
	// References is nil when the field was not returned, and may be empty
	// when the publisher elides it.
	References []Reference `json:"references"`
}

// ExternalIDs holds the identifiers Semantic Scholar links to a paper.
type ExternalIDs struct {
	DOI    string `json:"DOI,omitempty"`
	PubMed string `json:"PubMed,omitempty"`
	ArXiv  string `json:"ArXiv,omitempty"`
}

// Journal holds publication venue details.
type Journal struct {
	Name   string `json:"name"`
	Volume string `json:"volume"`
	Pages  string `json:"pages"`
}

// Author is a paper author as a single display name.
type Author struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

// Reference is one entry of a paper's reference list.
type Reference struct {
	PaperID     string      `json:"paperId"`
	ExternalIDs ExternalIDs `json:"externalIds"`
}
