package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/paperdesk/research-assistant-service/internal/domain"
)

// Compile-time interface verification.
var _ HistoryRepository = (*PgHistoryRepository)(nil)

// PgHistoryRepository is a PostgreSQL implementation of HistoryRepository.
type PgHistoryRepository struct {
	db DBTX
}

// NewPgHistoryRepository creates a new PostgreSQL history repository.
func NewPgHistoryRepository(db DBTX) *PgHistoryRepository {
	return &PgHistoryRepository{db: db}
}

// Log appends one history record. Oversized query and translated-query values
// are truncated to column width rather than rejected.
func (r *PgHistoryRepository) Log(ctx context.Context, record *domain.HistoryRecord) error {
	if record == nil {
		return domain.NewValidationError("record", "record cannot be nil")
	}
	if record.UserID == "" {
		return domain.NewValidationError("user_id", "user ID is required")
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	queryText := truncate(record.QueryText, maxHistoryQueryLen)
	var translated *string
	if record.TranslatedQuery != nil {
		t := truncate(*record.TranslatedQuery, maxHistoryTranslatedLen)
		translated = &t
	}

	query := `
		INSERT INTO search_history (
			id, user_id, query, filters, used_ai_translation, translated_query,
			results_count, page, search_time_ms, cache_hit,
			papers_viewed, papers_saved, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.UserID,
		queryText,
		record.FiltersJSON,
		record.UsedAITranslation,
		translated,
		record.ResultCount,
		record.Page,
		record.SearchTimeMs,
		record.CacheHit,
		record.PapersViewed,
		record.PapersSaved,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log search history: %w", err)
	}

	return nil
}

// ListByUser retrieves a user's history, newest first.
func (r *PgHistoryRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.HistoryRecord, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "user ID is required")
	}
	applyPaginationDefaults(&limit, &offset)

	query := `
		SELECT id, user_id, query, filters, used_ai_translation, translated_query,
			results_count, page, search_time_ms, cache_hit,
			papers_viewed, papers_saved, created_at
		FROM search_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list search history: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.HistoryRecord, 0, limit)
	for rows.Next() {
		record, err := scanHistoryRecordFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history records: %w", err)
	}

	return records, nil
}

// UserStatistics aggregates a user's history over the trailing day window.
func (r *PgHistoryRepository) UserStatistics(ctx context.Context, userID string, days int) (*domain.UserSearchStatistics, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "user ID is required")
	}
	if days <= 0 {
		days = 30
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE used_ai_translation),
			COUNT(*) FILTER (WHERE cache_hit),
			AVG(search_time_ms)
		FROM search_history
		WHERE user_id = $1 AND created_at >= NOW() - $2 * INTERVAL '1 day'`

	stats := &domain.UserSearchStatistics{PeriodDays: days}
	err := r.db.QueryRow(ctx, query, userID, days).Scan(
		&stats.TotalSearches,
		&stats.AIEnhancedSearches,
		&stats.CacheHits,
		&stats.AvgSearchTimeMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user search statistics: %w", err)
	}

	if stats.TotalSearches > 0 {
		stats.AIUsageRate = float64(stats.AIEnhancedSearches) / float64(stats.TotalSearches)
		stats.CacheHitRate = float64(stats.CacheHits) / float64(stats.TotalSearches)
	}

	return stats, nil
}

// Trending returns the most searched queries across all users over the
// trailing day window.
func (r *PgHistoryRepository) Trending(ctx context.Context, days, limit int) ([]*domain.TrendingQuery, error) {
	if days <= 0 {
		days = 7
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT
			LOWER(TRIM(query)),
			COUNT(*),
			COALESCE(AVG(results_count), 0),
			COUNT(*) FILTER (WHERE cache_hit)
		FROM search_history
		WHERE created_at >= NOW() - $1 * INTERVAL '1 day'
		GROUP BY LOWER(TRIM(query))
		ORDER BY COUNT(*) DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, days, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to compute trending searches: %w", err)
	}
	defer rows.Close()

	trending := make([]*domain.TrendingQuery, 0, limit)
	for rows.Next() {
		tq := &domain.TrendingQuery{}
		if err := rows.Scan(&tq.Query, &tq.SearchCount, &tq.AvgResults, &tq.CacheHits); err != nil {
			return nil, fmt.Errorf("failed to scan trending query: %w", err)
		}
		if tq.SearchCount > 0 {
			tq.CacheHitRate = float64(tq.CacheHits) / float64(tq.SearchCount)
		}
		trending = append(trending, tq)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trending queries: %w", err)
	}

	return trending, nil
}

// IncrementEngagement bumps the viewed or saved counter on a history record.
func (r *PgHistoryRepository) IncrementEngagement(ctx context.Context, recordID uuid.UUID, viewed, saved int) error {
	if viewed < 0 || saved < 0 {
		return domain.NewValidationError("engagement", "counters cannot decrease")
	}
	if viewed == 0 && saved == 0 {
		return nil
	}

	query := `
		UPDATE search_history SET
			papers_viewed = papers_viewed + $2,
			papers_saved = papers_saved + $3
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, recordID, viewed, saved)
	if err != nil {
		return fmt.Errorf("failed to update engagement counters: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("history record", recordID.String())
	}

	return nil
}

// truncate limits s to max bytes, cutting at a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	b := []byte(s)[:max]
	for len(b) > 0 && b[len(b)-1]&0xC0 == 0x80 {
		b = b[:len(b)-1]
	}
	return string(b)
}

// historyScanDest holds the destination pointers for scanning a HistoryRecord row.
type historyScanDest struct {
	record domain.HistoryRecord
}

// destinations returns the slice of pointers for Scan operations.
func (d *historyScanDest) destinations() []interface{} {
	return []interface{}{
		&d.record.ID, &d.record.UserID, &d.record.QueryText, &d.record.FiltersJSON,
		&d.record.UsedAITranslation, &d.record.TranslatedQuery,
		&d.record.ResultCount, &d.record.Page, &d.record.SearchTimeMs,
		&d.record.CacheHit, &d.record.PapersViewed, &d.record.PapersSaved,
		&d.record.CreatedAt,
	}
}

// scanHistoryRecordFromRows scans the current row from pgx.Rows into a HistoryRecord.
func scanHistoryRecordFromRows(rows pgx.Rows) (*domain.HistoryRecord, error) {
	var dest historyScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return &dest.record, nil
}
