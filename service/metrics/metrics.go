package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Helius API Metrics
	heliusCallsTotal            *prometheus.CounterVec
	heliusCallDuration          *prometheus.HistogramVec
	heliusRateLimitHits         *prometheus.CounterVec
	heliusTransactionsPerCall   *prometheus.HistogramVec
	heliusCircuitBreakerChanges *prometheus.CounterVec

	// Fact Derivation Metrics
	factsComputedTotal   *prometheus.CounterVec
	factsComputeDuration *prometheus.HistogramVec
	insightsBatchSize    *prometheus.HistogramVec

	// Narrator (LLM) Metrics
	narratorCallsTotal    *prometheus.CounterVec
	narratorCallDuration  *prometheus.HistogramVec
	narratorTokensUsed    *prometheus.CounterVec
	narratorCacheRequests *prometheus.CounterVec

	// Mint Metadata Metrics
	mintMetaLookupsTotal *prometheus.CounterVec

	// Workflow Metrics
	refreshWorkflowDuration        *prometheus.HistogramVec
	refreshWorkflowExecutionsTotal *prometheus.CounterVec
	refreshActivityDuration        *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRateLimitedTotal *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Helius API Metrics
		heliusCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helius_calls_total",
				Help: "Total number of Helius API calls by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		heliusCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "helius_call_duration_seconds",
				Help:    "Duration of Helius API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint"},
		),
		heliusRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helius_rate_limit_hits_total",
				Help: "Total number of Helius rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		heliusTransactionsPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "helius_transactions_per_call",
				Help:    "Number of enhanced transactions returned per Helius call",
				Buckets: []float64{1, 5, 10, 25, 50, 100},
			},
			[]string{"endpoint"},
		),
		heliusCircuitBreakerChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helius_circuit_breaker_state_changes_total",
				Help: "Total number of Helius circuit breaker state transitions",
			},
			[]string{"from", "to"},
		),

		// Fact Derivation Metrics
		factsComputedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facts_computed_total",
				Help: "Total number of transaction fact derivations by transaction type",
			},
			[]string{"tx_type"},
		),
		factsComputeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "facts_compute_duration_seconds",
				Help:    "Duration of fact derivation per transaction in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
			[]string{"tx_type"},
		),
		insightsBatchSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insights_batch_size",
				Help:    "Number of transactions per wallet-insights computation",
				Buckets: []float64{1, 10, 25, 50, 100, 250, 500},
			},
			[]string{"trigger"},
		),

		// Narrator Metrics
		narratorCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "narrator_calls_total",
				Help: "Total number of narration model calls by status",
			},
			[]string{"model", "status"},
		),
		narratorCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "narrator_call_duration_seconds",
				Help:    "Duration of narration model calls in seconds",
				Buckets: []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"model"},
		),
		narratorTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "narrator_tokens_used_total",
				Help: "Total number of model tokens consumed",
			},
			[]string{"model", "kind"},
		),
		narratorCacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "narrator_cache_requests_total",
				Help: "Explanation cache lookups by outcome (hit, miss)",
			},
			[]string{"outcome"},
		),

		// Mint Metadata Metrics
		mintMetaLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mint_meta_lookups_total",
				Help: "Mint metadata lookups by source (cache, das, static) and status",
			},
			[]string{"source", "status"},
		),

		// Workflow Metrics
		refreshWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "refresh_workflow_duration_seconds",
				Help:    "Duration of wallet refresh workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"wallet_address", "status"},
		),
		refreshWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refresh_workflow_executions_total",
				Help: "Total number of wallet refresh workflow executions",
			},
			[]string{"wallet_address", "status"},
		),
		refreshActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "refresh_activity_duration_seconds",
				Help:    "Duration of wallet refresh activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity", "wallet_address"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		httpRateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_rate_limited_total",
				Help: "Total number of HTTP requests rejected by the rate limiter",
			},
			[]string{"handler"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Helius API metric helpers

// RecordHeliusCall records a Helius API call with duration.
func (m *Metrics) RecordHeliusCall(endpoint, status string, duration float64) {
	m.heliusCallsTotal.WithLabelValues(endpoint, status).Inc()
	m.heliusCallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordHeliusRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordHeliusRateLimitHit(endpoint string) {
	m.heliusRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordHeliusTransactionsPerCall records the number of transactions returned.
func (m *Metrics) RecordHeliusTransactionsPerCall(endpoint string, count float64) {
	m.heliusTransactionsPerCall.WithLabelValues(endpoint).Observe(count)
}

// RecordCircuitBreakerChange records a circuit breaker state transition.
func (m *Metrics) RecordCircuitBreakerChange(from, to string) {
	m.heliusCircuitBreakerChanges.WithLabelValues(from, to).Inc()
}

// Fact derivation metric helpers

// RecordFactsComputed records a fact derivation with duration.
func (m *Metrics) RecordFactsComputed(txType string, duration float64) {
	m.factsComputedTotal.WithLabelValues(txType).Inc()
	m.factsComputeDuration.WithLabelValues(txType).Observe(duration)
}

// RecordInsightsBatch records the size of an insights computation batch.
func (m *Metrics) RecordInsightsBatch(trigger string, size int) {
	m.insightsBatchSize.WithLabelValues(trigger).Observe(float64(size))
}

// Narrator metric helpers

// RecordNarratorCall records a narration model call with duration.
func (m *Metrics) RecordNarratorCall(model, status string, duration float64) {
	m.narratorCallsTotal.WithLabelValues(model, status).Inc()
	m.narratorCallDuration.WithLabelValues(model).Observe(duration)
}

// RecordNarratorTokens records token usage from a completion response.
func (m *Metrics) RecordNarratorTokens(model string, prompt, completion int) {
	m.narratorTokensUsed.WithLabelValues(model, "prompt").Add(float64(prompt))
	m.narratorTokensUsed.WithLabelValues(model, "completion").Add(float64(completion))
}

// RecordNarratorCacheRequest records an explanation cache lookup outcome.
func (m *Metrics) RecordNarratorCacheRequest(outcome string) {
	m.narratorCacheRequests.WithLabelValues(outcome).Inc()
}

// Mint metadata metric helpers

// RecordMintMetaLookup records a mint metadata lookup.
func (m *Metrics) RecordMintMetaLookup(source, status string) {
	m.mintMetaLookupsTotal.WithLabelValues(source, status).Inc()
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(walletAddress, status string, duration float64) {
	m.refreshWorkflowDuration.WithLabelValues(walletAddress, status).Observe(duration)
	m.refreshWorkflowExecutionsTotal.WithLabelValues(walletAddress, status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, walletAddress string, duration float64) {
	m.refreshActivityDuration.WithLabelValues(activity, walletAddress).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordHTTPRateLimited records a request rejected by the rate limiter.
func (m *Metrics) RecordHTTPRateLimited(handler string) {
	m.httpRateLimitedTotal.WithLabelValues(handler).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
