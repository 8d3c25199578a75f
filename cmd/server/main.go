// Package main provides the entry point for the research assistant search service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/paperdesk/research-assistant-service/internal/config"
	"github.com/paperdesk/research-assistant-service/internal/database"
	"github.com/paperdesk/research-assistant-service/internal/observability"
	"github.com/paperdesk/research-assistant-service/internal/openalex"
	"github.com/paperdesk/research-assistant-service/internal/repository"
	"github.com/paperdesk/research-assistant-service/internal/search"
	httpserver "github.com/paperdesk/research-assistant-service/internal/server/http"
	"github.com/paperdesk/research-assistant-service/internal/translator"
)

const metricsNamespace = "research_assistant"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("research-assistant-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	metrics := observability.NewMetrics(metricsNamespace)

	// Create repositories.
	cacheRepo := repository.NewPgCacheRepository(db)
	historyRepo := repository.NewPgHistoryRepository(db)

	// Create the OpenAlex client.
	openalexClient := openalex.New(openalex.Config{
		BaseURL:       cfg.OpenAlex.BaseURL,
		Email:         cfg.OpenAlex.Email,
		Timeout:       cfg.OpenAlex.Timeout,
		MaxAttempts:   cfg.OpenAlex.MaxRetries,
		RetryDelay:    cfg.OpenAlex.RetryDelay,
		RateLimit:     cfg.OpenAlex.RateLimit,
		BurstSize:     cfg.OpenAlex.BurstSize,
		ResponseCache: cfg.OpenAlex.ResponseCache,
	}, logger, metrics)

	// Create the query translator. Without keys it degrades to the heuristic
	// builder on every request.
	queryTranslator := translator.NewGeminiTranslator(translator.Config{
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		APIKeys: cfg.AI.APIKeys,
		Timeout: cfg.AI.Timeout,
	}, logger, metrics)
	if len(cfg.AI.APIKeys) == 0 {
		logger.Warn().Msg("no AI API keys configured, query translation will use heuristics only")
	}

	// SIGHUP reloads configuration for settings that can change at runtime,
	// currently the AI key set.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			reloaded, err := config.Load()
			if err != nil {
				logger.Error().Err(err).Msg("config reload failed, keeping current settings")
				continue
			}
			queryTranslator.ReplaceAPIKeys(reloaded.AI.APIKeys)
			logger.Info().Int("api_keys", len(reloaded.AI.APIKeys)).Msg("configuration reloaded")
		}
	}()

	// Wire the search service.
	searchService := search.New(
		search.Config{
			CacheEnabled: cfg.Cache.Enabled,
			CacheTTL:     cfg.Cache.TTL,
		},
		cacheRepo,
		historyRepo,
		openalexClient,
		queryTranslator,
		db,
		logger,
		metrics,
	)

	// Create the HTTP REST API server. Auth is terminated by the upstream
	// gateway, which forwards the verified user identity.
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	httpSrv := httpserver.NewServer(httpCfg, searchService, db, logger, nil)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	// Start HTTP REST API server in background.
	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Msg("HTTP REST API server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start metrics server if configured.
	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Periodic cache sweep keeps the expired rows from accumulating.
	if cfg.Cache.Enabled {
		go sweepLoop(ctx, searchService, cfg.Cache.TTL, logger)
	}

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
	}

	// Graceful shutdown.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("research-assistant-service stopped")
	return nil
}

// sweepLoop periodically removes expired cache entries. The interval is a
// fraction of the TTL so expired rows never outlive a full extra TTL.
func sweepLoop(ctx context.Context, svc *search.Service, ttl time.Duration, logger zerolog.Logger) {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if _, err := svc.SweepCache(sweepCtx); err != nil {
				logger.Warn().Err(err).Msg("cache sweep failed")
			}
			cancel()
		}
	}
}
