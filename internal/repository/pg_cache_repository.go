package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/paperdesk/research-assistant-service/internal/domain"
)

// Compile-time interface verification.
var _ CacheRepository = (*PgCacheRepository)(nil)

// PgCacheRepository is a PostgreSQL implementation of CacheRepository.
type PgCacheRepository struct {
	db DBTX
}

// NewPgCacheRepository creates a new PostgreSQL cache repository.
func NewPgCacheRepository(db DBTX) *PgCacheRepository {
	return &PgCacheRepository{db: db}
}

// Lookup retrieves the live cache entry for a fingerprint and page window.
// The hit count increment and last access stamp happen in the same statement
// as the read, so concurrent lookups never lose a hit.
func (r *PgCacheRepository) Lookup(ctx context.Context, fingerprint string, page, perPage int) (*domain.CacheEntry, error) {
	if fingerprint == "" {
		return nil, domain.NewValidationError("fingerprint", "fingerprint is required")
	}

	query := `
		UPDATE search_cache SET
			hit_count = hit_count + 1,
			last_accessed_at = NOW()
		WHERE id = (
			SELECT id FROM search_cache
			WHERE query_hash = $1 AND page = $2 AND per_page = $3 AND expires_at > NOW()
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING id, query_hash, query_text, filters, results, total_results,
			page, per_page, created_at, expires_at, hit_count, last_accessed_at,
			api_response_time_ms`

	row := r.db.QueryRow(ctx, query, fingerprint, page, perPage)
	entry, err := scanCacheEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("cache entry", fingerprint)
		}
		return nil, fmt.Errorf("failed to look up cache entry: %w", err)
	}

	return entry, nil
}

// Store inserts a cache entry with an expiry of now + ttl. A non-positive ttl
// produces an already expired row that lookups skip and sweeps reclaim.
func (r *PgCacheRepository) Store(ctx context.Context, entry *domain.CacheEntry, ttl time.Duration) error {
	if entry == nil {
		return domain.NewValidationError("entry", "entry cannot be nil")
	}
	if entry.Fingerprint == "" {
		return domain.NewValidationError("fingerprint", "fingerprint is required")
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.ExpiresAt = entry.CreatedAt.Add(ttl)

	query := `
		INSERT INTO search_cache (
			id, query_hash, query_text, filters, results, total_results,
			page, per_page, created_at, expires_at, hit_count, api_response_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11)`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.Fingerprint,
		entry.QueryText,
		entry.FiltersJSON,
		entry.ResultsJSON,
		entry.TotalResults,
		entry.Page,
		entry.PerPage,
		entry.CreatedAt,
		entry.ExpiresAt,
		entry.UpstreamLatencyMs,
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// SweepExpired deletes all entries whose expiry has passed.
func (r *PgCacheRepository) SweepExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM search_cache WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired cache entries: %w", err)
	}
	return result.RowsAffected(), nil
}

// Statistics returns aggregate counters over the whole cache store.
func (r *PgCacheRepository) Statistics(ctx context.Context) (*domain.CacheStatistics, error) {
	stats := &domain.CacheStatistics{}

	aggregateQuery := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE expires_at > NOW()),
			COUNT(*) FILTER (WHERE expires_at <= NOW()),
			COALESCE(SUM(hit_count), 0),
			AVG(api_response_time_ms)
		FROM search_cache`

	err := r.db.QueryRow(ctx, aggregateQuery).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.ExpiredEntries,
		&stats.TotalHits,
		&stats.AvgUpstreamLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cache statistics: %w", err)
	}

	popularQuery := `
		SELECT query_text, hit_count
		FROM search_cache
		ORDER BY hit_count DESC, created_at DESC
		LIMIT 1`

	var queryText string
	var hits int64
	err = r.db.QueryRow(ctx, popularQuery).Scan(&queryText, &hits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stats, nil
		}
		return nil, fmt.Errorf("failed to find most popular cached query: %w", err)
	}
	stats.MostPopularQuery = &queryText
	stats.MostPopularQueryHits = hits

	return stats, nil
}

// cacheEntryScanDest holds the destination pointers for scanning a CacheEntry row.
type cacheEntryScanDest struct {
	entry domain.CacheEntry
}

// destinations returns the slice of pointers for Scan operations.
func (d *cacheEntryScanDest) destinations() []interface{} {
	return []interface{}{
		&d.entry.ID, &d.entry.Fingerprint, &d.entry.QueryText,
		&d.entry.FiltersJSON, &d.entry.ResultsJSON, &d.entry.TotalResults,
		&d.entry.Page, &d.entry.PerPage, &d.entry.CreatedAt, &d.entry.ExpiresAt,
		&d.entry.HitCount, &d.entry.LastAccessedAt, &d.entry.UpstreamLatencyMs,
	}
}

// scanCacheEntry scans a single row into a CacheEntry.
func scanCacheEntry(row pgx.Row) (*domain.CacheEntry, error) {
	var dest cacheEntryScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return &dest.entry, nil
}
