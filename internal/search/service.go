package search

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paperdesk/research-assistant-service/internal/domain"
	"github.com/paperdesk/research-assistant-service/internal/observability"
	"github.com/paperdesk/research-assistant-service/internal/openalex"
	"github.com/paperdesk/research-assistant-service/internal/repository"
	"github.com/paperdesk/research-assistant-service/internal/translator"
)

// sweepLockKey is the advisory lock key serializing cache sweeps across
// replicas. Only one replica runs a sweep at a time; the others skip.
const sweepLockKey int64 = 0x70647363616368 // "pdscach"

// PaperSource fetches papers from the upstream works API.
type PaperSource interface {
	Search(ctx context.Context, params domain.TranslatedRequest, page, perPage int) (*openalex.Result, error)
}

// AdvisoryLocker provides cross-replica mutual exclusion for maintenance
// operations. Satisfied by database.DB; may be nil, in which case sweeps run
// unserialized. Implementations must take and release the lock on the same
// database session.
type AdvisoryLocker interface {
	WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) (bool, error)
}

// Config holds the orchestrator's tunables.
type Config struct {
	// CacheEnabled toggles the result cache. When false every request goes
	// upstream and nothing is stored.
	CacheEnabled bool

	// CacheTTL is how long stored results stay servable.
	CacheTTL time.Duration
}

// Service orchestrates search requests across the cache, the query
// translator, the upstream client, and the history log.
type Service struct {
	cfg        Config
	cache      repository.CacheRepository
	history    repository.HistoryRepository
	source     PaperSource
	translator translator.Translator
	locker     AdvisoryLocker
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// New creates the search service. The translator may be nil when free-text
// interpretation is disabled; the locker may be nil in single-replica
// deployments and tests. Metrics may be nil in tests.
func New(
	cfg Config,
	cache repository.CacheRepository,
	history repository.HistoryRepository,
	source PaperSource,
	tr translator.Translator,
	locker AdvisoryLocker,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &Service{
		cfg:        cfg,
		cache:      cache,
		history:    history,
		source:     source,
		translator: tr,
		locker:     locker,
		logger:     logger.With().Str("component", "search_service").Logger(),
		metrics:    metrics,
	}
}

// Search runs one search request end to end: validate, translate when
// enabled, serve from cache when possible, otherwise fetch upstream, cache
// the result, and record the attempt in the user's history.
//
// Cache and history failures never fail the request; only invalid input and
// upstream failures are returned to the caller.
func (s *Service) Search(ctx context.Context, userID string, req *domain.SearchRequest) (*domain.SearchResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	params, usedAI := s.buildUpstreamParams(ctx, req)
	effectiveQuery := params.Search()

	// The translated text, not the raw input, keys the cache so identical
	// raw queries translated the same way still hit.
	fingerprint, err := DeriveFingerprint(effectiveQuery, req.Filters)
	if err != nil {
		return nil, err
	}

	log := observability.WithSearchContext(s.logger, fingerprint, req.Page, req.PerPage)

	if s.cfg.CacheEnabled {
		if resp, ok := s.serveFromCache(ctx, log, fingerprint, req, usedAI, effectiveQuery, start); ok {
			s.logHistory(ctx, log, userID, req, usedAI, effectiveQuery, resp.TotalResults, time.Since(start), true)
			return resp, nil
		}
	}

	result, err := s.source.Search(ctx, params, req.Page, req.PerPage)
	if err != nil {
		elapsed := time.Since(start)
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("upstream search failed")
		if s.metrics != nil {
			s.metrics.RecordSearch("error", false, 0, elapsed.Seconds())
		}
		// Best-effort: the failed attempt still shows up in history.
		s.logHistory(ctx, log, userID, req, usedAI, effectiveQuery, 0, elapsed, false)
		return nil, err
	}

	elapsed := time.Since(start)

	if s.cfg.CacheEnabled {
		s.storeInCache(ctx, log, fingerprint, req, result)
	}

	s.logHistory(ctx, log, userID, req, usedAI, effectiveQuery, result.TotalResults, elapsed, false)

	if s.metrics != nil {
		s.metrics.RecordSearch("success", false, len(result.Papers), elapsed.Seconds())
	}

	return s.buildResponse(req, usedAI, effectiveQuery, result.Papers, result.TotalResults, false, elapsed), nil
}

// buildUpstreamParams produces the upstream parameter set, either via AI
// translation of the free-text query or directly from the structured filters.
func (s *Service) buildUpstreamParams(ctx context.Context, req *domain.SearchRequest) (domain.TranslatedRequest, bool) {
	if req.UseAIEnhancement && s.translator != nil {
		result := s.translator.Translate(ctx, req.Query)
		params := result.Params.Clone()
		s.mergeStructuredFilters(params, req.Filters)
		return params, result.UsedAI
	}

	params := domain.TranslatedRequest{domain.ParamSearch: req.Query}
	s.mergeStructuredFilters(params, req.Filters)
	return params, false
}

// mergeStructuredFilters folds the request's structured filters into the
// parameter set. Structured clauses append to whatever the translator
// produced; an explicit sort preference wins over the translator's.
func (s *Service) mergeStructuredFilters(params domain.TranslatedRequest, filters *domain.SearchFilters) {
	if filters == nil {
		return
	}

	if clause := openalex.BuildFilter(filters); clause != "" {
		if existing := params[domain.ParamFilter]; existing != "" {
			params[domain.ParamFilter] = existing + "," + clause
		} else {
			params[domain.ParamFilter] = clause
		}
	}

	if sortParam := openalex.SortParam(filters.SortBy); sortParam != "" {
		params[domain.ParamSort] = sortParam
	}
}

// serveFromCache attempts to satisfy the request from the result cache.
// Lookup failures are treated as misses; the request proceeds upstream.
func (s *Service) serveFromCache(
	ctx context.Context,
	log zerolog.Logger,
	fingerprint string,
	req *domain.SearchRequest,
	usedAI bool,
	effectiveQuery string,
	start time.Time,
) (*domain.SearchResponse, bool) {
	entry, err := s.cache.Lookup(ctx, fingerprint, req.Page, req.PerPage)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Msg("cache lookup failed, treating as miss")
			if s.metrics != nil {
				s.metrics.RecordCacheLookupFailure()
			}
		} else if s.metrics != nil {
			s.metrics.RecordCacheMiss()
		}
		return nil, false
	}

	var papers []domain.Paper
	if err := json.Unmarshal(entry.ResultsJSON, &papers); err != nil {
		log.Warn().Err(err).Msg("cached payload unreadable, treating as miss")
		if s.metrics != nil {
			s.metrics.RecordCacheLookupFailure()
		}
		return nil, false
	}

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordCacheHit()
		s.metrics.RecordSearch("success", true, len(papers), elapsed.Seconds())
	}
	log.Debug().Int("hit_count", entry.HitCount).Msg("cache hit")

	return s.buildResponse(req, usedAI, effectiveQuery, papers, entry.TotalResults, true, elapsed), true
}

// storeInCache writes the fresh result set to the cache. Failures are
// swallowed; the response has already been computed.
func (s *Service) storeInCache(
	ctx context.Context,
	log zerolog.Logger,
	fingerprint string,
	req *domain.SearchRequest,
	result *openalex.Result,
) {
	resultsJSON, err := json.Marshal(result.Papers)
	if err != nil {
		log.Warn().Err(err).Msg("cannot serialize results for caching")
		return
	}

	entry := &domain.CacheEntry{
		Fingerprint:  fingerprint,
		QueryText:    req.Query,
		FiltersJSON:  marshalFilters(req.Filters),
		ResultsJSON:  resultsJSON,
		TotalResults: result.TotalResults,
		Page:         req.Page,
		PerPage:      req.PerPage,
	}
	if result.UpstreamLatency > 0 {
		latencyMs := int(result.UpstreamLatency.Milliseconds())
		entry.UpstreamLatencyMs = &latencyMs
	}

	if err := s.cache.Store(ctx, entry, s.cfg.CacheTTL); err != nil {
		log.Warn().Err(err).Msg("cache store failed")
		if s.metrics != nil {
			s.metrics.RecordCacheStoreFailure()
		}
	}
}

// logHistory appends the attempt to the user's search history. Best-effort:
// failures are logged and swallowed.
func (s *Service) logHistory(
	ctx context.Context,
	log zerolog.Logger,
	userID string,
	req *domain.SearchRequest,
	usedAI bool,
	effectiveQuery string,
	resultCount int,
	elapsed time.Duration,
	cacheHit bool,
) {
	if userID == "" || s.history == nil {
		return
	}

	record := &domain.HistoryRecord{
		UserID:            userID,
		QueryText:         req.Query,
		FiltersJSON:       marshalFilters(req.Filters),
		UsedAITranslation: usedAI,
		ResultCount:       resultCount,
		Page:              req.Page,
		SearchTimeMs:      elapsed.Milliseconds(),
		CacheHit:          cacheHit,
	}
	if usedAI && effectiveQuery != req.Query {
		record.TranslatedQuery = &effectiveQuery
	}

	if err := s.history.Log(ctx, record); err != nil {
		log.Warn().Err(err).Msg("history write failed")
		if s.metrics != nil {
			s.metrics.RecordHistoryWriteFailure()
		}
	}
}

func (s *Service) buildResponse(
	req *domain.SearchRequest,
	usedAI bool,
	effectiveQuery string,
	papers []domain.Paper,
	totalResults int,
	cacheHit bool,
	elapsed time.Duration,
) *domain.SearchResponse {
	resp := &domain.SearchResponse{
		Query:        req.Query,
		Results:      papers,
		TotalResults: totalResults,
		Page:         req.Page,
		PerPage:      req.PerPage,
		TotalPages:   (totalResults + req.PerPage - 1) / req.PerPage,
		CacheHit:     cacheHit,
		SearchTimeMs: elapsed.Milliseconds(),
	}
	if usedAI && effectiveQuery != req.Query {
		resp.TranslatedQuery = effectiveQuery
	}
	return resp
}

func marshalFilters(filters *domain.SearchFilters) []byte {
	if filters == nil {
		return nil
	}
	b, err := json.Marshal(filters)
	if err != nil {
		return nil
	}
	return b
}

// CacheStatistics returns aggregate counters over the cache store.
func (s *Service) CacheStatistics(ctx context.Context) (*domain.CacheStatistics, error) {
	return s.cache.Statistics(ctx)
}

// SweepCache removes expired cache entries. An advisory lock keeps
// concurrent sweeps from different replicas off each other; when another
// replica holds the lock the sweep is skipped and reports zero removals.
func (s *Service) SweepCache(ctx context.Context) (int64, error) {
	if s.locker == nil {
		return s.sweep(ctx)
	}

	var removed int64
	acquired, err := s.locker.WithAdvisoryLock(ctx, sweepLockKey, func(ctx context.Context) error {
		var sweepErr error
		removed, sweepErr = s.sweep(ctx)
		return sweepErr
	})
	if err != nil {
		return 0, err
	}
	if !acquired {
		s.logger.Debug().Msg("sweep already running elsewhere, skipping")
		return 0, nil
	}
	return removed, nil
}

func (s *Service) sweep(ctx context.Context) (int64, error) {
	removed, err := s.cache.SweepExpired(ctx)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("swept expired cache entries")
	}
	if s.metrics != nil {
		s.metrics.RecordCacheSweep(removed)
	}
	return removed, nil
}

// History returns a page of the user's search history, newest first.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]*domain.HistoryRecord, error) {
	return s.history.ListByUser(ctx, userID, limit, offset)
}

// UserStatistics aggregates the user's search activity over the trailing
// day window.
func (s *Service) UserStatistics(ctx context.Context, userID string, days int) (*domain.UserSearchStatistics, error) {
	return s.history.UserStatistics(ctx, userID, days)
}

// Trending returns the most searched queries across all users.
func (s *Service) Trending(ctx context.Context, days, limit int) ([]*domain.TrendingQuery, error) {
	return s.history.Trending(ctx, days, limit)
}

// RecordEngagement bumps the viewed or saved counters on a history record.
func (s *Service) RecordEngagement(ctx context.Context, recordID uuid.UUID, viewed, saved int) error {
	return s.history.IncrementEngagement(ctx, recordID, viewed, saved)
}
