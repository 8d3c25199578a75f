// Package repository provides data access interfaces and implementations
// for the research assistant search service.
//
// # Overview
//
// This package defines repository interfaces and their PostgreSQL implementations
// following the repository pattern to abstract data persistence from business logic.
//
// # Repository Interfaces
//
// The package provides the following repository interfaces:
//
//   - CacheRepository: Manages the TTL-bounded search result cache
//   - HistoryRepository: Manages the append-only search history and analytics
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use by multiple goroutines.
// The underlying pgxpool handles connection pooling and synchronization.
//
// # Error Handling
//
// All methods return domain-specific errors from the domain package.
// Wrap database errors with context using fmt.Errorf with %w verb.
// Common errors include:
//
//   - domain.ErrNotFound: Resource does not exist
//   - domain.ErrInvalidInput: Invalid parameters provided
//
// # Transactions
//
// Use the DBTX interface to support both pool and transaction contexts.
// Pass transaction from database.DB.WithTransaction for atomic operations.
//
// # Usage Pattern
//
// Repositories are typically created at application startup and passed to services:
//
//	db, _ := database.New(ctx, cfg, logger)
//	cacheRepo := repository.NewPgCacheRepository(db)
//	historyRepo := repository.NewPgHistoryRepository(db)
package repository

import (
	"github.com/paperdesk/research-assistant-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
// This allows repositories to work with both direct pool connections and transactions.
//
// Repository implementations follow a constructor pattern that accepts DBTX:
//
//	type PgCacheRepository struct {
//	    db DBTX
//	}
//
//	func NewPgCacheRepository(db DBTX) *PgCacheRepository {
//	    return &PgCacheRepository{db: db}
//	}
//
// This design enables:
//   - Direct usage with a connection pool for standard operations
//   - Transaction support by passing a transaction (pgx.Tx) instead
//   - Easy testing with mock implementations of DBTX
type DBTX = database.DBTX

// History column width limits. Oversized values are truncated before
// insertion rather than rejected.
const (
	maxHistoryQueryLen      = 500
	maxHistoryTranslatedLen = 1000
)

// Pagination defaults and limits for history listings.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// applyPaginationDefaults normalizes limit and offset values for list queries.
// It clamps limit to [1, maxListLimit] and ensures offset >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultListLimit
	}
	if *limit > maxListLimit {
		*limit = maxListLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}
