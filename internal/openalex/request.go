package openalex

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paperdesk/research-assistant-service/internal/domain"
)

// Year bounds used when only one end of a publication year range is given.
const (
	defaultYearFrom = 1900
	defaultYearTo   = 2024
)

// BuildFilter converts structured search filters into an OpenAlex filter
// expression. Filter clauses are comma-joined, which OpenAlex interprets as
// a conjunction. Returns the empty string when no filters apply.
func BuildFilter(filters *domain.SearchFilters) string {
	if filters == nil {
		return ""
	}

	var parts []string

	if filters.YearFrom != nil || filters.YearTo != nil {
		from := defaultYearFrom
		to := defaultYearTo
		if filters.YearFrom != nil {
			from = *filters.YearFrom
		}
		if filters.YearTo != nil {
			to = *filters.YearTo
		}
		parts = append(parts, fmt.Sprintf("publication_year:%d-%d", from, to))
	}

	if filters.MinCitations != nil {
		parts = append(parts, fmt.Sprintf("cited_by_count:>%d", *filters.MinCitations))
	}
	if filters.MaxCitations != nil {
		parts = append(parts, fmt.Sprintf("cited_by_count:<%d", *filters.MaxCitations))
	}

	if filters.OpenAccess != nil && *filters.OpenAccess {
		parts = append(parts, "is_oa:true")
	}
	if filters.HasFulltext != nil && *filters.HasFulltext {
		parts = append(parts, "has_fulltext:true")
	}

	if len(filters.Authors) > 0 {
		parts = append(parts, nameClause("authorships.author.display_name", filters.Authors))
	}
	if len(filters.Institutions) > 0 {
		parts = append(parts, nameClause("authorships.institutions.display_name", filters.Institutions))
	}

	return strings.Join(parts, ",")
}

// nameClause builds a parenthesized, quoted, comma-joined display-name clause.
func nameClause(field string, names []string) string {
	quoted := make([]string, 0, len(names))
	for _, name := range names {
		quoted = append(quoted, fmt.Sprintf("%s:%q", field, name))
	}
	return "(" + strings.Join(quoted, ",") + ")"
}

// SortParam maps a sort preference to the OpenAlex sort parameter value.
// Relevance ordering is OpenAlex's default and needs no sort parameter, so
// it returns the empty string.
func SortParam(sortBy string) string {
	switch sortBy {
	case domain.SortByCitedByCount:
		return "cited_by_count:desc"
	case domain.SortByPublicationDate:
		return "publication_date:desc"
	default:
		return ""
	}
}

// BuildQuery assembles the request query string for a works search. The
// translated request supplies the search expression and any upstream
// parameters the translator produced; pagination and the polite-pool mailto
// are always set by the caller and override translator values.
func BuildQuery(params domain.TranslatedRequest, page, perPage int, mailto string) url.Values {
	q := url.Values{}

	for key, value := range params {
		if value == "" {
			continue
		}
		q.Set(key, value)
	}

	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	if mailto != "" {
		q.Set("mailto", mailto)
	}

	// Stable API options
	q.Set("data-version", "2")
	q.Set("include_xpac", "true")

	return q
}
