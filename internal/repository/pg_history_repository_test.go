package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperdesk/research-assistant-service/internal/domain"
)

var historyColumns = []string{
	"id", "user_id", "query", "filters", "used_ai_translation", "translated_query",
	"results_count", "page", "search_time_ms", "cache_hit",
	"papers_viewed", "papers_saved", "created_at",
}

func TestPgHistoryRepository_Log(t *testing.T) {
	t.Run("inserts record and assigns ID", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)
		ctx := context.Background()

		translated := "search=machine learning&sort=cited_by_count:desc"
		record := &domain.HistoryRecord{
			UserID:            "user-1",
			QueryText:         "machine learning",
			FiltersJSON:       []byte(`{}`),
			UsedAITranslation: true,
			TranslatedQuery:   &translated,
			ResultCount:       120,
			Page:              1,
			SearchTimeMs:      850,
			CacheHit:          false,
		}

		mock.ExpectExec(`INSERT INTO search_history`).
			WithArgs(pgxmock.AnyArg(), "user-1", "machine learning", record.FiltersJSON,
				true, &translated, 120, 1, int64(850), false, 0, 0, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = repo.Log(ctx, record)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, record.ID)
		assert.False(t, record.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("truncates oversized query text", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)
		ctx := context.Background()

		long := strings.Repeat("q", 600)
		record := &domain.HistoryRecord{
			UserID:    "user-1",
			QueryText: long,
		}

		mock.ExpectExec(`INSERT INTO search_history`).
			WithArgs(pgxmock.AnyArg(), "user-1", long[:500], record.FiltersJSON,
				false, (*string)(nil), 0, 0, int64(0), false, 0, 0, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = repo.Log(ctx, record)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects missing user ID", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		err = repo.Log(context.Background(), &domain.HistoryRecord{QueryText: "q"})
		assert.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestPgHistoryRepository_ListByUser(t *testing.T) {
	t.Run("returns records newest first", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)
		ctx := context.Background()

		now := time.Now().UTC()
		mock.ExpectQuery(`SELECT (.+) FROM search_history WHERE user_id = \$1 ORDER BY created_at DESC`).
			WithArgs("user-1", 20, 0).
			WillReturnRows(pgxmock.NewRows(historyColumns).
				AddRow(uuid.New(), "user-1", "transformers", []byte(`{}`), true, (*string)(nil),
					50, 1, int64(420), false, 2, 1, now).
				AddRow(uuid.New(), "user-1", "graph neural networks", []byte(`{}`), false, (*string)(nil),
					10, 1, int64(12), true, 0, 0, now.Add(-time.Hour)))

		records, err := repo.ListByUser(ctx, "user-1", 20, 0)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "transformers", records[0].QueryText)
		assert.True(t, records[1].CacheHit)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("applies pagination defaults", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		mock.ExpectQuery(`SELECT (.+) FROM search_history WHERE user_id = \$1`).
			WithArgs("user-1", defaultListLimit, 0).
			WillReturnRows(pgxmock.NewRows(historyColumns))

		records, err := repo.ListByUser(context.Background(), "user-1", 0, -3)
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects empty user ID", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		_, err = repo.ListByUser(context.Background(), "", 10, 0)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestPgHistoryRepository_UserStatistics(t *testing.T) {
	t.Run("computes rates from aggregates", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		avg := 310.0
		mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(\*\) FILTER \(WHERE used_ai_translation\)`).
			WithArgs("user-1", 30).
			WillReturnRows(pgxmock.NewRows([]string{"total", "ai", "hits", "avg"}).
				AddRow(int64(20), int64(5), int64(8), &avg))

		stats, err := repo.UserStatistics(context.Background(), "user-1", 30)
		require.NoError(t, err)
		assert.Equal(t, int64(20), stats.TotalSearches)
		assert.Equal(t, int64(5), stats.AIEnhancedSearches)
		assert.InDelta(t, 0.25, stats.AIUsageRate, 1e-9)
		assert.InDelta(t, 0.4, stats.CacheHitRate, 1e-9)
		assert.Equal(t, 30, stats.PeriodDays)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty window yields zero rates", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		mock.ExpectQuery(`SELECT COUNT\(\*\)`).
			WithArgs("user-1", 7).
			WillReturnRows(pgxmock.NewRows([]string{"total", "ai", "hits", "avg"}).
				AddRow(int64(0), int64(0), int64(0), nil))

		stats, err := repo.UserStatistics(context.Background(), "user-1", 7)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalSearches)
		assert.Zero(t, stats.AIUsageRate)
		assert.Zero(t, stats.CacheHitRate)
		assert.Nil(t, stats.AvgSearchTimeMs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgHistoryRepository_Trending(t *testing.T) {
	t.Run("returns ranked queries", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		mock.ExpectQuery(`GROUP BY LOWER\(TRIM\(query\)\)`).
			WithArgs(7, 10).
			WillReturnRows(pgxmock.NewRows([]string{"query", "count", "avg_results", "hits"}).
				AddRow("machine learning", int64(40), 85.5, int64(30)).
				AddRow("quantum computing", int64(12), 20.0, int64(3)))

		trending, err := repo.Trending(context.Background(), 7, 10)
		require.NoError(t, err)
		require.Len(t, trending, 2)
		assert.Equal(t, "machine learning", trending[0].Query)
		assert.Equal(t, int64(40), trending[0].SearchCount)
		assert.InDelta(t, 0.75, trending[0].CacheHitRate, 1e-9)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("applies windowing defaults", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		mock.ExpectQuery(`GROUP BY LOWER\(TRIM\(query\)\)`).
			WithArgs(7, 10).
			WillReturnRows(pgxmock.NewRows([]string{"query", "count", "avg_results", "hits"}))

		trending, err := repo.Trending(context.Background(), 0, 0)
		require.NoError(t, err)
		assert.Empty(t, trending)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgHistoryRepository_IncrementEngagement(t *testing.T) {
	t.Run("updates counters", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		recordID := uuid.New()
		mock.ExpectExec(`UPDATE search_history SET papers_viewed = papers_viewed \+ \$2`).
			WithArgs(recordID, 1, 0).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err = repo.IncrementEngagement(context.Background(), recordID, 1, 0)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns not found for missing record", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		recordID := uuid.New()
		mock.ExpectExec(`UPDATE search_history SET`).
			WithArgs(recordID, 0, 2).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = repo.IncrementEngagement(context.Background(), recordID, 0, 2)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no-op when both deltas zero", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		err = repo.IncrementEngagement(context.Background(), uuid.New(), 0, 0)
		assert.NoError(t, err)
	})

	t.Run("rejects negative deltas", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		err = repo.IncrementEngagement(context.Background(), uuid.New(), -1, 0)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}
