package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"
	"github.com/vizor-labs/vizor/service/config"
	"github.com/vizor-labs/vizor/service/db"
	"github.com/vizor-labs/vizor/service/helius"
	"github.com/vizor-labs/vizor/service/metrics"
	"github.com/vizor-labs/vizor/service/mintmeta"
	"github.com/vizor-labs/vizor/service/narrate"
	"github.com/vizor-labs/vizor/service/server"
	"github.com/vizor-labs/vizor/service/temporal"
)

func main() {
	// A local .env is a dev convenience; in production everything comes
	// from the real environment.
	_ = godotenv.Load()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	// Verify database connection
	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Initialize database store and apply schema
	store := db.NewStore(dbPool, metricsCollector)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database schema ready")

	// Initialize Helius client
	heliusClient := helius.NewClient(helius.Config{
		APIURL:  cfg.HeliusAPIURL,
		RPCURL:  cfg.HeliusRPCURL,
		APIKey:  cfg.HeliusAPIKey,
		Timeout: cfg.HeliusTimeout,
	}, nil, metricsCollector, logger)
	logger.Info("initialized helius client", "api_url", cfg.HeliusAPIURL)

	// Initialize token-metadata resolver. Redis is optional: without it the
	// resolver just hits the Helius DAS API on every lookup.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()
		logger.Info("mint metadata cache enabled", "redis_addr", cfg.RedisAddr)
	}
	resolver := mintmeta.NewResolver(heliusClient, redisClient, cfg.MintMetaTTL, metricsCollector, logger)

	// Initialize narrator
	narrator := narrate.NewNarrator(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIModel, metricsCollector, logger)
	logger.Info("initialized narrator", "model", cfg.OpenAIModel)

	// Initialize Temporal client for watch schedule management
	temporalClient, err := temporal.NewClient(
		cfg.TemporalHost,
		cfg.TemporalNamespace,
		cfg.TemporalTaskQueue,
		logger,
	)
	if err != nil {
		logger.Error("failed to create temporal client", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("connected to temporal",
		"host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
	)

	// Initialize HTTP server
	httpServer := server.New(
		cfg.ServerAddr,
		cfg,
		store,
		heliusClient,
		narrator,
		resolver,
		temporalClient,
		metricsCollector,
		logger,
	)

	logger.Info("server initialized, all dependencies ready",
		"helius_api", cfg.HeliusAPIURL,
		"temporal_host", cfg.TemporalHost,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
