package openalex

// SearchResponse is the top-level response from the OpenAlex works endpoint.
type SearchResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// Meta contains pagination and timing metadata for a search response.
type Meta struct {
	Count      int    `json:"count"`
	DBTime     int    `json:"db_response_time_ms"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Work represents a scholarly work from OpenAlex.
type Work struct {
	ID                    string           `json:"id"`
	DOI                   string           `json:"doi,omitempty"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	PublicationYear       int              `json:"publication_year"`
	PublicationDate       string           `json:"publication_date,omitempty"`
	Type                  string           `json:"type,omitempty"`
	CitedByCount          int              `json:"cited_by_count"`
	IsRetracted           bool             `json:"is_retracted"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index,omitempty"`
	Authorships           []Authorship     `json:"authorships,omitempty"`
	Concepts              []WorkConcept    `json:"concepts,omitempty"`
	PrimaryLocation       *Location        `json:"primary_location,omitempty"`
	OpenAccess            *OpenAccess      `json:"open_access,omitempty"`
	IDs                   *IDs             `json:"ids,omitempty"`
	Language              string           `json:"language,omitempty"`
	ReferencedWorksCount  int              `json:"referenced_works_count,omitempty"`
}

// Authorship links an author to a work with their institutional affiliations.
type Authorship struct {
	AuthorPosition string        `json:"author_position,omitempty"`
	Author         AuthorInfo    `json:"author"`
	Institutions   []Institution `json:"institutions,omitempty"`
}

// AuthorInfo identifies an author.
type AuthorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ORCID       string `json:"orcid,omitempty"`
}

// Institution identifies an institution an author is affiliated with.
type Institution struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CountryCode string `json:"country_code,omitempty"`
	Type        string `json:"type,omitempty"`
}

// WorkConcept is a topical concept tagged on a work, with a relevance score.
type WorkConcept struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// Location describes where a version of a work is hosted.
type Location struct {
	IsOA           bool    `json:"is_oa"`
	LandingPageURL string  `json:"landing_page_url,omitempty"`
	PDFURL         string  `json:"pdf_url,omitempty"`
	Source         *Source `json:"source,omitempty"`
	Version        string  `json:"version,omitempty"`
}

// Source identifies the venue hosting a work.
type Source struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ISSNL       string `json:"issn_l,omitempty"`
	Type        string `json:"type,omitempty"`
}

// OpenAccess describes the open-access status of a work.
type OpenAccess struct {
	IsOA     bool   `json:"is_oa"`
	OAStatus string `json:"oa_status,omitempty"`
	OAURL    string `json:"oa_url,omitempty"`
}

// IDs collects external identifiers for a work.
type IDs struct {
	OpenAlex string `json:"openalex,omitempty"`
	DOI      string `json:"doi,omitempty"`
	MAG      string `json:"mag,omitempty"`
	PMID     string `json:"pmid,omitempty"`
}
