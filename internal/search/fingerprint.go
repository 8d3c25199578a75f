// Package search orchestrates paper searches: it derives cache fingerprints,
// serves repeated queries from the result cache, calls the upstream works API
// on misses, and records every attempt in the search history.
package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/paperdesk/research-assistant-service/internal/domain"
)

// DeriveFingerprint produces the stable cache key for a query and its
// filters. The query is trimmed and lowercased, then serialized together
// with the filter content as canonical JSON and hashed. Filter key order
// never affects the result: the serialization walks map representations,
// which marshal with sorted keys at every nesting level. Pagination is
// deliberately excluded; page and page size are separate cache dimensions.
func DeriveFingerprint(query string, filters *domain.SearchFilters) (string, error) {
	payload := map[string]interface{}{
		"query": strings.ToLower(strings.TrimSpace(query)),
	}
	if filters != nil {
		payload["filters"] = filters.AsMap()
	} else {
		payload["filters"] = nil
	}

	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", domain.NewValidationError("filters", "not serializable: "+err.Error())
	}

	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}
