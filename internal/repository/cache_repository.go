package repository

import (
	"context"
	"time"

	"github.com/paperdesk/research-assistant-service/internal/domain"
)

// CacheRepository handles persistence of the search result cache.
// Entries are keyed by (fingerprint, page, per_page) and carry an absolute
// expiry; expired rows are invisible to lookups and reclaimed by sweeps.
type CacheRepository interface {
	// Lookup retrieves the live cache entry for a fingerprint and page window.
	// A successful lookup atomically increments the entry's hit count and
	// stamps its last access time; the returned entry reflects the state
	// after this lookup. When several live rows match, the most recently
	// created one wins. Returns domain.ErrNotFound when no live entry exists.
	Lookup(ctx context.Context, fingerprint string, page, perPage int) (*domain.CacheEntry, error)

	// Store inserts a cache entry with an expiry of now + ttl. A non-positive
	// ttl stores an already expired row that only sweeps ever see. Multiple
	// rows for the same key may coexist; Lookup resolves to the newest.
	Store(ctx context.Context, entry *domain.CacheEntry, ttl time.Duration) error

	// SweepExpired deletes all entries whose expiry has passed and returns
	// the number of rows removed.
	SweepExpired(ctx context.Context) (int64, error)

	// Statistics returns aggregate counters over the whole cache store,
	// including expired rows not yet swept.
	Statistics(ctx context.Context) (*domain.CacheStatistics, error)
}
