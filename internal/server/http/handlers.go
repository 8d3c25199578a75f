package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paperdesk/research-assistant-service/internal/domain"
)

// Request body and pagination limits.
const (
	maxRequestBodySize = 1 << 20 // 1 MB

	defaultHistoryLimit  = 50
	maxHistoryLimit      = 500
	defaultStatsDays     = 30
	maxStatsDays         = 365
	defaultTrendingDays  = 7
	defaultTrendingLimit = 10
	maxTrendingLimit     = 100
)

// searchRequest is the JSON request body for a paper search.
type searchRequest struct {
	Query            string                `json:"query"`
	Filters          *domain.SearchFilters `json:"filters,omitempty"`
	Page             int                   `json:"page,omitempty"`
	PerPage          int                   `json:"per_page,omitempty"`
	UseAIEnhancement *bool                 `json:"use_ai_enhancement,omitempty"`
}

// historyRecordResponse is one row of a user's search history.
type historyRecordResponse struct {
	ID                string          `json:"id"`
	Query             string          `json:"query"`
	Filters           json.RawMessage `json:"filters,omitempty"`
	UsedAITranslation bool            `json:"used_ai_translation"`
	TranslatedQuery   string          `json:"translated_query,omitempty"`
	ResultCount       int             `json:"result_count"`
	Page              int             `json:"page"`
	SearchTimeMs      int64           `json:"search_time_ms"`
	CacheHit          bool            `json:"cache_hit"`
	PapersViewed      int             `json:"papers_viewed"`
	PapersSaved       int             `json:"papers_saved"`
	CreatedAt         time.Time       `json:"created_at"`
}

type listHistoryResponse struct {
	History []historyRecordResponse `json:"history"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

type trendingResponse struct {
	Trending   []*domain.TrendingQuery `json:"trending"`
	PeriodDays int                     `json:"period_days"`
}

type cleanupResponse struct {
	RemovedEntries int64 `json:"removed_entries"`
}

// engagementRequest is the JSON request body for engagement updates.
type engagementRequest struct {
	PapersViewed int `json:"papers_viewed,omitempty"`
	PapersSaved  int `json:"papers_saved,omitempty"`
}

// search handles POST /api/v1/search.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFromContext(ctx)

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req searchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	domainReq := &domain.SearchRequest{
		Query:            req.Query,
		Filters:          req.Filters,
		Page:             req.Page,
		PerPage:          req.PerPage,
		UseAIEnhancement: true,
	}
	if req.UseAIEnhancement != nil {
		domainReq.UseAIEnhancement = *req.UseAIEnhancement
	}

	resp, err := s.service.Search(ctx, userID, domainReq)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// listHistory handles GET /api/v1/search/history.
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFromContext(ctx)

	limit := queryInt(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	records, err := s.service.History(ctx, userID, limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := listHistoryResponse{
		History: make([]historyRecordResponse, 0, len(records)),
		Limit:   limit,
		Offset:  offset,
	}
	for _, record := range records {
		resp.History = append(resp.History, historyToResponse(record))
	}
	writeJSON(w, http.StatusOK, resp)
}

// userStatistics handles GET /api/v1/search/history/statistics.
func (s *Server) userStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFromContext(ctx)

	days := queryInt(r, "days", defaultStatsDays, 1, maxStatsDays)

	stats, err := s.service.UserStatistics(ctx, userID, days)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// recordEngagement handles POST /api/v1/search/history/{recordID}/engagement.
func (s *Server) recordEngagement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid history record ID")
		return
	}

	defer r.Body.Close()
	var req engagementRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := s.service.RecordEngagement(ctx, recordID, req.PapersViewed, req.PapersSaved); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// trending handles GET /api/v1/search/trending.
func (s *Server) trending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days := queryInt(r, "days", defaultTrendingDays, 1, maxStatsDays)
	limit := queryInt(r, "limit", defaultTrendingLimit, 1, maxTrendingLimit)

	queries, err := s.service.Trending(ctx, days, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if queries == nil {
		queries = []*domain.TrendingQuery{}
	}
	writeJSON(w, http.StatusOK, trendingResponse{Trending: queries, PeriodDays: days})
}

// cacheStatistics handles GET /api/v1/cache/statistics.
func (s *Server) cacheStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.CacheStatistics(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// cacheCleanup handles POST /api/v1/cache/cleanup.
func (s *Server) cacheCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := s.service.SweepCache(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{RemovedEntries: removed})
}

// writeDomainError maps domain errors to HTTP status codes. Persistence
// failures are reported as a generic internal error; their details stay in
// the logs.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "upstream search API is rate limiting requests, try again later")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		writeError(w, http.StatusBadGateway, "search service temporarily unavailable")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func historyToResponse(record *domain.HistoryRecord) historyRecordResponse {
	resp := historyRecordResponse{
		ID:                record.ID.String(),
		Query:             record.QueryText,
		UsedAITranslation: record.UsedAITranslation,
		ResultCount:       record.ResultCount,
		Page:              record.Page,
		SearchTimeMs:      record.SearchTimeMs,
		CacheHit:          record.CacheHit,
		PapersViewed:      record.PapersViewed,
		PapersSaved:       record.PapersSaved,
		CreatedAt:         record.CreatedAt,
	}
	if len(record.FiltersJSON) > 0 {
		resp.Filters = json.RawMessage(record.FiltersJSON)
	}
	if record.TranslatedQuery != nil {
		resp.TranslatedQuery = *record.TranslatedQuery
	}
	return resp
}

// queryInt parses an integer query parameter, clamping it into [min, max]
// and falling back to def when absent or unparseable.
func queryInt(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
