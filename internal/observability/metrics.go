package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the search service.
// Metrics are organized by subsystem: searches, the result cache, history,
// upstream API calls, and query translation. All counters and histograms are
// registered via promauto for automatic registration with the default
// Prometheus registry.
type Metrics struct {
	// SearchesTotal counts search executions, labeled by outcome
	// (success, invalid, upstream_error, rate_limited).
	SearchesTotal *prometheus.CounterVec

	// SearchDuration observes the end-to-end search duration in seconds,
	// labeled by whether the cache answered.
	SearchDuration *prometheus.HistogramVec

	// ResultsPerSearch observes the number of papers returned per search.
	ResultsPerSearch prometheus.Histogram

	// CacheHits counts searches answered from the result cache.
	CacheHits prometheus.Counter

	// CacheMisses counts searches that went to the upstream API.
	CacheMisses prometheus.Counter

	// CacheLookupFailures counts cache lookups that failed and fell open.
	CacheLookupFailures prometheus.Counter

	// CacheStoreFailures counts cache writes that failed after a fetch.
	CacheStoreFailures prometheus.Counter

	// CacheSweepRemoved counts entries removed by expiry sweeps.
	CacheSweepRemoved prometheus.Counter

	// HistoryWriteFailures counts history records that could not be persisted.
	HistoryWriteFailures prometheus.Counter

	// UpstreamRequestsTotal counts HTTP requests to upstream APIs, labeled by
	// source and endpoint.
	UpstreamRequestsTotal *prometheus.CounterVec

	// UpstreamRequestsFailed counts failed upstream requests, labeled by
	// source, endpoint, and error type.
	UpstreamRequestsFailed *prometheus.CounterVec

	// UpstreamRequestDuration observes upstream request duration in seconds.
	UpstreamRequestDuration *prometheus.HistogramVec

	// UpstreamRateLimited counts rate-limited responses from upstream APIs,
	// labeled by source.
	UpstreamRateLimited *prometheus.CounterVec

	// TranslationsTotal counts query translation attempts, labeled by outcome
	// (ai, fallback).
	TranslationsTotal *prometheus.CounterVec

	// TranslationFallbacks counts heuristic fallbacks, labeled by reason
	// (no_keys, provider_error, invalid_payload).
	TranslationFallbacks *prometheus.CounterVec

	// TranslationDuration observes translation call duration in seconds.
	TranslationDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Searches
		SearchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of search executions by outcome",
		}, []string{"outcome"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"cache"}),
		ResultsPerSearch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "results_per_search",
			Help:      "Number of papers returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		}),

		// Result cache
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of searches answered from the result cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of searches that went to the upstream API",
		}),
		CacheLookupFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookup_failures_total",
			Help:      "Total number of cache lookups that failed and fell open",
		}),
		CacheStoreFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_store_failures_total",
			Help:      "Total number of cache writes that failed",
		}),
		CacheSweepRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_sweep_removed_total",
			Help:      "Total number of entries removed by expiry sweeps",
		}),

		// History
		HistoryWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_write_failures_total",
			Help:      "Total number of search history records that could not be persisted",
		}),

		// Upstream
		UpstreamRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of requests to upstream APIs",
		}, []string{"source", "endpoint"}),
		UpstreamRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_failed_total",
			Help:      "Total number of failed requests to upstream APIs",
		}, []string{"source", "endpoint", "error_type"}),
		UpstreamRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of requests to upstream APIs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source", "endpoint"}),
		UpstreamRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_rate_limited_total",
			Help:      "Total number of rate limit responses from upstream APIs",
		}, []string{"source"}),

		// Translation
		TranslationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Total number of query translations by outcome",
		}, []string{"outcome"}),
		TranslationFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_fallbacks_total",
			Help:      "Total number of heuristic translation fallbacks by reason",
		}, []string{"reason"}),
		TranslationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translation_duration_seconds",
			Help:      "Duration of query translation calls in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
}

// RecordSearch records a completed search execution.
func (m *Metrics) RecordSearch(outcome string, cacheHit bool, resultCount int, durationSeconds float64) {
	m.SearchesTotal.WithLabelValues(outcome).Inc()
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	m.SearchDuration.WithLabelValues(cache).Observe(durationSeconds)
	m.ResultsPerSearch.Observe(float64(resultCount))
}

// RecordCacheHit records a search answered from the result cache.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a search that went to the upstream API.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// RecordCacheLookupFailure records a cache lookup that failed and fell open.
func (m *Metrics) RecordCacheLookupFailure() {
	m.CacheLookupFailures.Inc()
}

// RecordCacheStoreFailure records a cache write that failed.
func (m *Metrics) RecordCacheStoreFailure() {
	m.CacheStoreFailures.Inc()
}

// RecordCacheSweep records entries removed by an expiry sweep.
func (m *Metrics) RecordCacheSweep(removed int64) {
	m.CacheSweepRemoved.Add(float64(removed))
}

// RecordHistoryWriteFailure records a history record that could not be persisted.
func (m *Metrics) RecordHistoryWriteFailure() {
	m.HistoryWriteFailures.Inc()
}

// RecordUpstreamRequest records a request to an upstream API.
func (m *Metrics) RecordUpstreamRequest(source, endpoint string, durationSeconds float64) {
	m.UpstreamRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.UpstreamRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordUpstreamRequestFailed records a failed upstream request.
func (m *Metrics) RecordUpstreamRequestFailed(source, endpoint, errorType string) {
	m.UpstreamRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordUpstreamRateLimited records a rate limit response from an upstream API.
func (m *Metrics) RecordUpstreamRateLimited(source string) {
	m.UpstreamRateLimited.WithLabelValues(source).Inc()
}

// RecordTranslation records a successful AI query translation.
func (m *Metrics) RecordTranslation(durationSeconds float64) {
	m.TranslationsTotal.WithLabelValues("ai").Inc()
	m.TranslationDuration.Observe(durationSeconds)
}

// RecordTranslationFallback records a heuristic fallback with its reason.
func (m *Metrics) RecordTranslationFallback(reason string) {
	m.TranslationsTotal.WithLabelValues("fallback").Inc()
	m.TranslationFallbacks.WithLabelValues(reason).Inc()
}
