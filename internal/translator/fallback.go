package translator

import (
	"regexp"
	"strings"

	"github.com/paperdesk/research-assistant-service/internal/domain"
)

var yearPattern = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)

// Keyword groups that imply upstream filters when they appear in a query.
var (
	openAccessHints = []string{"open access", "open-access", " oa ", "free"}
	citationHints   = []string{"highly cited", "popular", "influential", "most cited", "well cited"}
)

// HeuristicRequest builds upstream parameters directly from the raw query
// text. It is the degraded path used when AI translation is unavailable or
// returns something unusable, so it must always succeed.
func HeuristicRequest(query string) domain.TranslatedRequest {
	lowered := " " + strings.ToLower(query) + " "

	var filters []string

	if year := latestYear(query); year != "" {
		filters = append(filters, "publication_year:"+year)
	}
	if containsAny(lowered, openAccessHints) {
		filters = append(filters, "is_oa:true")
	}
	if containsAny(lowered, citationHints) {
		filters = append(filters, "cited_by_count:>50")
	}

	params := domain.TranslatedRequest{
		domain.ParamSearch: query,
		domain.ParamSort:   "cited_by_count:desc",
	}
	if len(filters) > 0 {
		params[domain.ParamFilter] = strings.Join(filters, ",")
	}
	return params
}

// latestYear returns the most recent 4-digit year mentioned in the text,
// or the empty string when none is found.
func latestYear(text string) string {
	years := yearPattern.FindAllString(text, -1)
	if len(years) == 0 {
		return ""
	}
	latest := years[0]
	for _, y := range years[1:] {
		if y > latest {
			latest = y
		}
	}
	return latest
}

func containsAny(text string, hints []string) bool {
	for _, hint := range hints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}
