package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/paperdesk/research-assistant-service/internal/domain"
)

// HistoryRepository handles the append-only search history and the analytics
// derived from it.
type HistoryRepository interface {
	// Log appends one history record. Oversized query and translated-query
	// values are truncated to column width rather than rejected.
	Log(ctx context.Context, record *domain.HistoryRecord) error

	// ListByUser retrieves a user's history, newest first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.HistoryRecord, error)

	// UserStatistics aggregates a user's history over the trailing day window.
	UserStatistics(ctx context.Context, userID string, days int) (*domain.UserSearchStatistics, error)

	// Trending returns the most searched queries across all users over the
	// trailing day window, ordered by search count.
	Trending(ctx context.Context, days, limit int) ([]*domain.TrendingQuery, error)

	// IncrementEngagement bumps the viewed or saved counter on a history
	// record. Returns domain.ErrNotFound when the record does not exist.
	IncrementEngagement(ctx context.Context, recordID uuid.UUID, viewed, saved int) error
}
