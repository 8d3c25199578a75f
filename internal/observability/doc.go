// Package observability provides logging and metrics support for the
// research assistant search service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for searches, the result cache, and upstream calls
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("request_id", reqID).Msg("search started")
//
// Add search context to logger:
//
//	logger = observability.WithSearchContext(logger, fingerprint, page, perPage)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("research_assistant")
//
// Record metrics:
//
//	metrics.SearchesTotal.WithLabelValues("success").Inc()
//	metrics.CacheHits.Inc()
//	metrics.UpstreamRequestDuration.WithLabelValues("openalex").Observe(elapsed.Seconds())
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - user_id: Authenticated user identifier
//   - query_hash: Cache fingerprint of the normalized query
//   - source: Upstream API (openalex, gemini)
//   - page, per_page: Result pagination
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
