//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperdesk/research-assistant-service/internal/domain"
	"github.com/paperdesk/research-assistant-service/internal/repository"
)

func newCacheEntry(fingerprint string, page, perPage int) *domain.CacheEntry {
	latency := 120
	return &domain.CacheEntry{
		ID:                uuid.New(),
		Fingerprint:       fingerprint,
		QueryText:         "integration test query",
		FiltersJSON:       []byte(`{"year_from":2020}`),
		ResultsJSON:       []byte(`[{"id":"W1","title":"A Paper"}]`),
		TotalResults:      42,
		Page:              page,
		PerPage:           perPage,
		CreatedAt:         time.Now().UTC().Truncate(time.Microsecond),
		UpstreamLatencyMs: &latency,
	}
}

func TestPgCacheRepository_Integration(t *testing.T) {
	cleanTable(t, "search_cache")
	repo := repository.NewPgCacheRepository(testPool)
	ctx := context.Background()

	t.Run("Store and Lookup roundtrip increments hit count", func(t *testing.T) {
		entry := newCacheEntry("fp-roundtrip", 1, 25)
		require.NoError(t, repo.Store(ctx, entry, time.Hour))

		got, err := repo.Lookup(ctx, "fp-roundtrip", 1, 25)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, got.ID)
		assert.Equal(t, entry.QueryText, got.QueryText)
		assert.JSONEq(t, string(entry.ResultsJSON), string(got.ResultsJSON))
		assert.Equal(t, 42, got.TotalResults)
		assert.Equal(t, 1, got.HitCount)
		require.NotNil(t, got.LastAccessedAt)
		require.NotNil(t, got.UpstreamLatencyMs)
		assert.Equal(t, 120, *got.UpstreamLatencyMs)

		// A second lookup sees the incremented counter.
		got, err = repo.Lookup(ctx, "fp-roundtrip", 1, 25)
		require.NoError(t, err)
		assert.Equal(t, 2, got.HitCount)
	})

	t.Run("Lookup is scoped to pagination", func(t *testing.T) {
		entry := newCacheEntry("fp-paged", 1, 25)
		require.NoError(t, repo.Store(ctx, entry, time.Hour))

		_, err := repo.Lookup(ctx, "fp-paged", 2, 25)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = repo.Lookup(ctx, "fp-paged", 1, 50)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Lookup misses unknown fingerprint", func(t *testing.T) {
		_, err := repo.Lookup(ctx, "fp-missing", 1, 25)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Expired entries are invisible and swept", func(t *testing.T) {
		cleanTable(t, "search_cache")
		entry := newCacheEntry("fp-expired", 1, 25)
		require.NoError(t, repo.Store(ctx, entry, -time.Minute))

		_, err := repo.Lookup(ctx, "fp-expired", 1, 25)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		removed, err := repo.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})

	t.Run("Newest entry wins when rows collide", func(t *testing.T) {
		cleanTable(t, "search_cache")
		older := newCacheEntry("fp-dup", 1, 25)
		older.TotalResults = 10
		require.NoError(t, repo.Store(ctx, older, time.Hour))

		// The repository resolves duplicates by creation time.
		time.Sleep(10 * time.Millisecond)
		newer := newCacheEntry("fp-dup", 1, 25)
		newer.TotalResults = 99
		require.NoError(t, repo.Store(ctx, newer, time.Hour))

		got, err := repo.Lookup(ctx, "fp-dup", 1, 25)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, got.ID)
		assert.Equal(t, 99, got.TotalResults)
	})

	t.Run("Statistics aggregates live and expired rows", func(t *testing.T) {
		cleanTable(t, "search_cache")

		live := newCacheEntry("fp-stats-live", 1, 25)
		require.NoError(t, repo.Store(ctx, live, time.Hour))
		expired := newCacheEntry("fp-stats-expired", 1, 25)
		require.NoError(t, repo.Store(ctx, expired, -time.Minute))

		_, err := repo.Lookup(ctx, "fp-stats-live", 1, 25)
		require.NoError(t, err)

		stats, err := repo.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalEntries)
		assert.Equal(t, int64(1), stats.ActiveEntries)
		assert.Equal(t, int64(1), stats.ExpiredEntries)
		assert.Equal(t, int64(1), stats.TotalHits)
		require.NotNil(t, stats.MostPopularQuery)
		assert.Equal(t, "integration test query", *stats.MostPopularQuery)
	})
}

func newHistoryRecord(userID, query string) *domain.HistoryRecord {
	return &domain.HistoryRecord{
		ID:           uuid.New(),
		UserID:       userID,
		QueryText:    query,
		FiltersJSON:  []byte(`{"year_from":2020}`),
		ResultCount:  15,
		Page:         1,
		SearchTimeMs: 250,
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPgHistoryRepository_Integration(t *testing.T) {
	cleanTable(t, "search_history")
	repo := repository.NewPgHistoryRepository(testPool)
	ctx := context.Background()

	t.Run("Log and ListByUser roundtrip", func(t *testing.T) {
		rec := newHistoryRecord("user-int", "graph neural networks")
		translated := "graph neural network survey"
		rec.UsedAITranslation = true
		rec.TranslatedQuery = &translated
		rec.CacheHit = true
		require.NoError(t, repo.Log(ctx, rec))

		records, err := repo.ListByUser(ctx, "user-int", 10, 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, rec.ID, records[0].ID)
		assert.Equal(t, "graph neural networks", records[0].QueryText)
		assert.True(t, records[0].UsedAITranslation)
		require.NotNil(t, records[0].TranslatedQuery)
		assert.Equal(t, translated, *records[0].TranslatedQuery)
		assert.True(t, records[0].CacheHit)
	})

	t.Run("ListByUser orders newest first and paginates", func(t *testing.T) {
		cleanTable(t, "search_history")
		for i, q := range []string{"first", "second", "third"} {
			rec := newHistoryRecord("user-order", q)
			rec.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second).Truncate(time.Microsecond)
			require.NoError(t, repo.Log(ctx, rec))
		}

		records, err := repo.ListByUser(ctx, "user-order", 2, 0)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "third", records[0].QueryText)
		assert.Equal(t, "second", records[1].QueryText)

		records, err = repo.ListByUser(ctx, "user-order", 2, 2)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "first", records[0].QueryText)
	})

	t.Run("ListByUser does not leak other users", func(t *testing.T) {
		cleanTable(t, "search_history")
		require.NoError(t, repo.Log(ctx, newHistoryRecord("user-a", "query a")))
		require.NoError(t, repo.Log(ctx, newHistoryRecord("user-b", "query b")))

		records, err := repo.ListByUser(ctx, "user-a", 10, 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "query a", records[0].QueryText)
	})

	t.Run("UserStatistics aggregates the window", func(t *testing.T) {
		cleanTable(t, "search_history")

		aiRec := newHistoryRecord("user-stats", "deep learning")
		aiRec.UsedAITranslation = true
		require.NoError(t, repo.Log(ctx, aiRec))

		hitRec := newHistoryRecord("user-stats", "deep learning")
		hitRec.CacheHit = true
		require.NoError(t, repo.Log(ctx, hitRec))

		stats, err := repo.UserStatistics(ctx, "user-stats", 30)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalSearches)
		assert.Equal(t, int64(1), stats.AIEnhancedSearches)
		assert.InDelta(t, 0.5, stats.AIUsageRate, 0.001)
		assert.Equal(t, int64(1), stats.CacheHits)
		assert.InDelta(t, 0.5, stats.CacheHitRate, 0.001)
		assert.Equal(t, 30, stats.PeriodDays)
	})

	t.Run("Trending groups case-insensitively", func(t *testing.T) {
		cleanTable(t, "search_history")
		require.NoError(t, repo.Log(ctx, newHistoryRecord("u1", "Machine Learning")))
		require.NoError(t, repo.Log(ctx, newHistoryRecord("u2", "machine learning ")))
		require.NoError(t, repo.Log(ctx, newHistoryRecord("u3", "quantum computing")))

		trending, err := repo.Trending(ctx, 7, 10)
		require.NoError(t, err)
		require.Len(t, trending, 2)
		assert.Equal(t, "machine learning", trending[0].Query)
		assert.Equal(t, int64(2), trending[0].SearchCount)
	})

	t.Run("IncrementEngagement bumps counters", func(t *testing.T) {
		cleanTable(t, "search_history")
		rec := newHistoryRecord("user-eng", "reinforcement learning")
		require.NoError(t, repo.Log(ctx, rec))

		require.NoError(t, repo.IncrementEngagement(ctx, rec.ID, 3, 1))
		require.NoError(t, repo.IncrementEngagement(ctx, rec.ID, 2, 0))

		records, err := repo.ListByUser(ctx, "user-eng", 1, 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, 5, records[0].PapersViewed)
		assert.Equal(t, 1, records[0].PapersSaved)
	})

	t.Run("IncrementEngagement unknown record returns not found", func(t *testing.T) {
		err := repo.IncrementEngagement(ctx, uuid.New(), 1, 0)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
