package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vizor-labs/vizor/service/config"
	"github.com/vizor-labs/vizor/service/metrics"
	"github.com/vizor-labs/vizor/service/temporal"
)

// Server represents the HTTP server for the analytics service.
type Server struct {
	addr      string
	cfg       *config.Config
	store     Store
	helius    HeliusClient
	narrator  Narrator
	resolver  MintResolver
	scheduler temporal.Scheduler
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
	limiter   *ipRateLimiter
}

// New creates a new HTTP server with the given dependencies.
// The scheduler is used to create/delete Temporal schedules for watched
// wallets. The metrics is optional - if nil, the /metrics endpoint won't be
// available.
func New(
	addr string,
	cfg *config.Config,
	store Store,
	helius HeliusClient,
	narrator Narrator,
	resolver MintResolver,
	scheduler temporal.Scheduler,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		store:     store,
		helius:    helius,
		narrator:  narrator,
		resolver:  resolver,
		scheduler: scheduler,
		metrics:   m,
		logger:    logger,
		limiter:   newIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Each route is wrapped with per-handler request metrics.
	instrument := func(name string, h http.Handler) http.Handler {
		return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
	}

	// Transaction routes
	mux.Handle("POST /api/v1/transactions/explain", instrument("explain_transaction",
		handleExplainTransaction(s.store, s.helius, s.narrator, s.resolver, s.metrics, s.logger)))

	// Wallet analytics routes
	mux.Handle("POST /api/v1/wallets/insights", instrument("wallet_insights",
		handleWalletInsights(s.helius, s.metrics, s.logger)))
	mux.Handle("GET /api/v1/wallets/{address}/snapshots", instrument("list_snapshots",
		handleListSnapshots(s.store, s.logger)))
	mux.Handle("GET /api/v1/wallets/{address}/snapshots/latest", instrument("latest_snapshot",
		handleLatestSnapshot(s.store, s.logger)))

	// Watch registry routes
	mux.Handle("POST /api/v1/watches", instrument("create_watch",
		handleCreateWatch(s.store, s.scheduler, s.cfg, s.logger)))
	mux.Handle("DELETE /api/v1/watches/{address}", instrument("delete_watch",
		handleDeleteWatch(s.store, s.scheduler, s.logger)))
	mux.Handle("GET /api/v1/watches/{address}", instrument("get_watch",
		handleGetWatch(s.store, s.logger)))
	mux.Handle("GET /api/v1/watches", instrument("list_watches",
		handleListWatches(s.store, s.logger)))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Middleware, outermost first: security headers, CORS, rate limiting.
	var handler http.Handler = mux
	handler = s.rateLimitMiddleware(handler)
	handler = corsMiddleware(handler)
	handler = securityHeadersMiddleware(handler)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // model calls can be slow
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server and stops the rate
// limiter's eviction goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.limiter.stop()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
