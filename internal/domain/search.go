package domain

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Sort order values accepted in SearchFilters.SortBy.
const (
	SortByRelevance       = "relevance"
	SortByCitedByCount    = "cited_by_count"
	SortByPublicationDate = "publication_date"
)

// validate is the shared validator instance. validator.Validate is safe for
// concurrent use and caches struct metadata, so a single instance is reused.
var validate = validator.New(validator.WithRequiredStructEnabled())

// SearchFilters narrows a search down by publication metadata.
type SearchFilters struct {
	YearFrom     *int     `json:"year_from,omitempty" validate:"omitempty,gte=1500,lte=2100"`
	YearTo       *int     `json:"year_to,omitempty" validate:"omitempty,gte=1500,lte=2100"`
	MinCitations *int     `json:"min_citations,omitempty" validate:"omitempty,gte=0"`
	MaxCitations *int     `json:"max_citations,omitempty" validate:"omitempty,gte=0"`
	Authors      []string `json:"authors,omitempty" validate:"omitempty,max=10,dive,min=1"`
	Institutions []string `json:"institutions,omitempty" validate:"omitempty,max=10,dive,min=1"`
	OpenAccess   *bool    `json:"open_access,omitempty"`
	HasFulltext  *bool    `json:"has_fulltext,omitempty"`
	SortBy       string   `json:"sort_by,omitempty" validate:"omitempty,oneof=relevance cited_by_count publication_date"`
}

// AsMap returns the filters as a generic map for fingerprint derivation.
// Unset fields are omitted so that an absent filter and a nil filter object
// derive the same fingerprint.
func (f *SearchFilters) AsMap() map[string]interface{} {
	if f == nil {
		return nil
	}
	m := make(map[string]interface{})
	if f.YearFrom != nil {
		m["year_from"] = *f.YearFrom
	}
	if f.YearTo != nil {
		m["year_to"] = *f.YearTo
	}
	if f.MinCitations != nil {
		m["min_citations"] = *f.MinCitations
	}
	if f.MaxCitations != nil {
		m["max_citations"] = *f.MaxCitations
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Institutions) > 0 {
		m["institutions"] = f.Institutions
	}
	if f.OpenAccess != nil {
		m["open_access"] = *f.OpenAccess
	}
	if f.HasFulltext != nil {
		m["has_fulltext"] = *f.HasFulltext
	}
	if f.SortBy != "" {
		m["sort_by"] = f.SortBy
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// SearchRequest is the inbound search request.
type SearchRequest struct {
	Query            string         `json:"query" validate:"required,max=500"`
	Filters          *SearchFilters `json:"filters,omitempty"`
	Page             int            `json:"page" validate:"gte=1"`
	PerPage          int            `json:"per_page" validate:"gte=1,lte=200"`
	UseAIEnhancement bool           `json:"use_ai_enhancement"`
}

// Normalize applies defaults and trims the query. It must be called before
// Validate so that length limits apply to the trimmed query.
func (r *SearchRequest) Normalize() {
	r.Query = strings.TrimSpace(r.Query)
	if r.Page == 0 {
		r.Page = 1
	}
	if r.PerPage == 0 {
		r.PerPage = 25
	}
}

// Validate checks the request against the inbound contract.
func (r *SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return NewValidationError("query", "query is required")
	}
	if err := validate.Struct(r); err != nil {
		return validationErrorFrom(err, "request")
	}
	if r.Filters != nil {
		if err := validate.Struct(r.Filters); err != nil {
			return validationErrorFrom(err, "filters")
		}
	}
	return nil
}

// validationErrorFrom converts a validator error into a domain ValidationError
// naming the first failing field.
func validationErrorFrom(err error, fallbackField string) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return NewValidationError(strings.ToLower(verrs[0].Field()), "failed on "+verrs[0].Tag()+" constraint")
	}
	return NewValidationError(fallbackField, err.Error())
}

// Author is a single paper author.
type Author struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Institution string `json:"institution,omitempty"`
}

// Concept is a research topic associated with a paper.
type Concept struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Paper is a single search result.
type Paper struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Authors         []Author  `json:"authors"`
	PublicationDate string    `json:"publication_date,omitempty"`
	PublicationYear int       `json:"publication_year,omitempty"`
	Venue           string    `json:"venue,omitempty"`
	CitedByCount    int       `json:"cited_by_count"`
	DOI             string    `json:"doi,omitempty"`
	PDFURL          string    `json:"pdf_url,omitempty"`
	Abstract        string    `json:"abstract,omitempty"`
	Concepts        []Concept `json:"concepts,omitempty"`
	OpenAccess      bool      `json:"open_access"`
}

// SearchResponse is the outbound search response.
type SearchResponse struct {
	Query           string  `json:"query"`
	TranslatedQuery string  `json:"translated_query,omitempty"`
	Results         []Paper `json:"results"`
	TotalResults    int     `json:"total_results"`
	Page            int     `json:"page"`
	PerPage         int     `json:"per_page"`
	TotalPages      int     `json:"total_pages"`
	CacheHit        bool    `json:"cache_hit"`
	SearchTimeMs    int64   `json:"search_time_ms"`
}
