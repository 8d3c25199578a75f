package domain

// Upstream query parameter names accepted by the works search endpoint.
// Query translation strips every other key before a request is built.
const (
	ParamSearch  = "search"
	ParamFilter  = "filter"
	ParamSort    = "sort"
	ParamPerPage = "per_page"
	ParamPage    = "page"
	ParamSelect  = "select"
	ParamCursor  = "cursor"
	ParamGroupBy = "group_by"
)

// AllowedUpstreamParams is the whitelist of upstream query parameter names.
var AllowedUpstreamParams = map[string]bool{
	ParamSearch:  true,
	ParamFilter:  true,
	ParamSort:    true,
	ParamPerPage: true,
	ParamPage:    true,
	ParamSelect:  true,
	ParamCursor:  true,
	ParamGroupBy: true,
}

// TranslatedRequest is the ephemeral upstream parameter set produced by query
// translation. Every key belongs to AllowedUpstreamParams; the filter value,
// if present, is a non-empty comma-joined string of field:value clauses.
type TranslatedRequest map[string]string

// Search returns the effective search text of the request.
func (t TranslatedRequest) Search() string {
	return t[ParamSearch]
}

// Clone returns a shallow copy so callers can adjust pagination without
// mutating a shared translation result.
func (t TranslatedRequest) Clone() TranslatedRequest {
	out := make(TranslatedRequest, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
