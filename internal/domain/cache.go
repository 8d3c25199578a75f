package domain

import (
	"time"

	"github.com/google/uuid"
)

// CacheEntry is a stored search result set keyed by query fingerprint and
// pagination. An entry is live while now < ExpiresAt; expired entries are
// ignored by lookups and removed by sweeps.
type CacheEntry struct {
	ID                uuid.UUID
	Fingerprint       string
	QueryText         string
	FiltersJSON       []byte
	ResultsJSON       []byte
	TotalResults      int
	Page              int
	PerPage           int
	CreatedAt         time.Time
	ExpiresAt         time.Time
	HitCount          int
	LastAccessedAt    *time.Time
	UpstreamLatencyMs *int
}

// Live reports whether the entry has not yet expired at the given instant.
func (e *CacheEntry) Live(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// HistoryRecord is an append-only record of a single search attempt.
// Engagement counters (PapersViewed, PapersSaved) are the only fields mutated
// after the record is written.
type HistoryRecord struct {
	ID                uuid.UUID
	UserID            string
	QueryText         string
	FiltersJSON       []byte
	UsedAITranslation bool
	TranslatedQuery   *string
	ResultCount       int
	Page              int
	SearchTimeMs      int64
	CacheHit          bool
	PapersViewed      int
	PapersSaved       int
	CreatedAt         time.Time
}

// CacheStatistics is an aggregate view over the cache store.
type CacheStatistics struct {
	TotalEntries         int64    `json:"total_cache_entries"`
	ActiveEntries        int64    `json:"active_cache_entries"`
	ExpiredEntries       int64    `json:"expired_entries"`
	TotalHits            int64    `json:"total_cache_hits"`
	AvgUpstreamLatencyMs *float64 `json:"average_api_response_time_ms"`
	MostPopularQuery     *string  `json:"most_popular_query"`
	MostPopularQueryHits int64    `json:"most_popular_query_hits"`
}

// UserSearchStatistics aggregates one user's history over a day window.
type UserSearchStatistics struct {
	TotalSearches      int64    `json:"total_searches"`
	AIEnhancedSearches int64    `json:"ai_enhanced_searches"`
	AIUsageRate        float64  `json:"ai_usage_rate"`
	CacheHits          int64    `json:"cache_hits"`
	CacheHitRate       float64  `json:"cache_hit_rate"`
	AvgSearchTimeMs    *float64 `json:"average_search_time_ms"`
	PeriodDays         int      `json:"period_days"`
}

// TrendingQuery is one row of the trending-searches aggregate.
type TrendingQuery struct {
	Query        string  `json:"query"`
	SearchCount  int64   `json:"search_count"`
	AvgResults   float64 `json:"avg_results"`
	CacheHits    int64   `json:"cache_hits"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}
