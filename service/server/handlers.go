package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/vizor-labs/vizor/service/config"
	"github.com/vizor-labs/vizor/service/db"
	"github.com/vizor-labs/vizor/service/facts"
	"github.com/vizor-labs/vizor/service/metrics"
	"github.com/vizor-labs/vizor/service/mintmeta"
	"github.com/vizor-labs/vizor/service/narrate"
	"github.com/vizor-labs/vizor/service/temporal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for any request here
	defaultTxLimit     = 100
)

// Store defines the database operations the handlers need.
// *db.Store satisfies this; tests supply mocks.
type Store interface {
	GetExplanation(ctx context.Context, signature, timezone string) (*db.Explanation, error)
	PutExplanation(ctx context.Context, signature, timezone string, explanation, factsJSON json.RawMessage) error
	UpsertWatch(ctx context.Context, address, timezone string, interval time.Duration) (*db.WatchedWallet, error)
	GetWatch(ctx context.Context, address string) (*db.WatchedWallet, error)
	ListWatches(ctx context.Context) ([]*db.WatchedWallet, error)
	DeleteWatch(ctx context.Context, address string) error
	LatestSnapshot(ctx context.Context, address string) (*db.InsightSnapshot, error)
	ListSnapshots(ctx context.Context, address string, limit int) ([]*db.InsightSnapshot, error)
}

// HeliusClient defines the Helius operations the handlers need.
type HeliusClient interface {
	ParseTransactions(ctx context.Context, signatures []string) ([]*facts.Transaction, error)
	WalletTransactions(ctx context.Context, address string, limit int) ([]*facts.Transaction, error)
}

// Narrator defines the narration operation the explain handler needs.
type Narrator interface {
	Explain(ctx context.Context, tx *facts.Transaction, derived *facts.Facts, mintsMeta map[string]mintmeta.MintMeta, when string) (narrate.Explanation, error)
}

// MintResolver defines the token-metadata resolution the explain handler
// needs.
type MintResolver interface {
	Resolve(ctx context.Context, mints []string) map[string]mintmeta.MintMeta
}

type explainResponse struct {
	Signature string          `json:"signature"`
	Explainer string          `json:"explainer,omitempty"`
	Keypoints []string        `json:"keypoints,omitempty"`
	When      string          `json:"when"`
	Facts     json.RawMessage `json:"facts,omitempty"`
	Cached    bool            `json:"cached"`
}

// handleExplainTransaction returns a handler that explains a transaction.
// POST /api/v1/transactions/explain
func handleExplainTransaction(store Store, helius HeliusClient, narrator Narrator, resolver MintResolver, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Signature string `json:"signature"`
			Timezone  string `json:"tz"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Signature == "" {
			writeError(w, "signature required", http.StatusBadRequest)
			return
		}
		if req.Timezone == "" {
			writeError(w, "timezone required", http.StatusBadRequest)
			return
		}
		if err := validateSignature(req.Signature); err != nil {
			logger.Debug("invalid signature", "signature", req.Signature, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateTimezone(req.Timezone); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Cache first: explanations are deterministic per (signature, tz).
		if cached, err := store.GetExplanation(r.Context(), req.Signature, req.Timezone); err == nil {
			if m != nil {
				m.RecordNarratorCacheRequest("hit")
			}
			var expl narrate.Explanation
			if err := json.Unmarshal(cached.Explanation, &expl); err == nil {
				logger.Debug("explanation cache hit", "signature", req.Signature)
				writeJSON(w, explainResponse{
					Signature: req.Signature,
					Explainer: expl.Explainer,
					Keypoints: expl.Keypoints,
					When:      expl.When,
					Facts:     cached.Facts,
					Cached:    true,
				}, http.StatusOK)
				return
			}
		} else if !errors.Is(err, db.ErrNotFound) {
			logger.Warn("explanation cache read failed", "signature", req.Signature, "error", err)
		}
		if m != nil {
			m.RecordNarratorCacheRequest("miss")
		}

		txs, err := helius.ParseTransactions(r.Context(), []string{req.Signature})
		if err != nil {
			logger.Error("failed to fetch transaction", "signature", req.Signature, "error", err)
			writeError(w, "upstream transaction fetch failed", http.StatusBadGateway)
			return
		}
		if len(txs) == 0 {
			writeError(w, "no transaction found", http.StatusNotFound)
			return
		}
		tx := txs[0]

		tsSec := tx.Timestamp
		if tsSec == 0 {
			tsSec = time.Now().Unix()
		}
		when := narrate.FormatWhen(tsSec, req.Timezone)

		computeStart := time.Now()
		derived := facts.ComputeFacts(tx)
		if m != nil {
			m.RecordFactsComputed(tx.Type, time.Since(computeStart).Seconds())
		}
		mintsMeta := resolver.Resolve(r.Context(), facts.CollectMints(tx))

		expl, err := narrator.Explain(r.Context(), tx, derived, mintsMeta, when)
		if err != nil {
			logger.Error("failed to narrate transaction", "signature", req.Signature, "error", err)
			writeError(w, "explanation generation failed", http.StatusBadGateway)
			return
		}

		factsJSON, err := json.Marshal(derived)
		if err != nil {
			logger.Error("failed to encode facts", "signature", req.Signature, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		explJSON, _ := json.Marshal(expl)

		// Best-effort cache write; the response is already in hand.
		if err := store.PutExplanation(r.Context(), req.Signature, req.Timezone, explJSON, factsJSON); err != nil {
			logger.Warn("explanation cache write failed", "signature", req.Signature, "error", err)
		}

		logger.Info("transaction explained", "signature", req.Signature)
		writeJSON(w, explainResponse{
			Signature: req.Signature,
			Explainer: expl.Explainer,
			Keypoints: expl.Keypoints,
			When:      expl.When,
			Facts:     factsJSON,
		}, http.StatusOK)
	})
}

// handleWalletInsights returns a handler that computes wallet insights on
// demand. POST /api/v1/wallets/insights
func handleWalletInsights(helius HeliusClient, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Address  string `json:"address"`
			Timezone string `json:"tz"`
			Limit    int    `json:"limit"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Address == "" {
			writeError(w, "address required", http.StatusBadRequest)
			return
		}
		if req.Timezone == "" {
			writeError(w, "timezone required", http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.Address); err != nil {
			logger.Debug("invalid address", "address", req.Address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateTimezone(req.Timezone); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit := req.Limit
		if limit == 0 {
			limit = defaultTxLimit
		}
		if limit < 1 {
			limit = 1
		}
		if limit > 100 {
			limit = 100
		}

		txs, err := helius.WalletTransactions(r.Context(), req.Address, limit)
		if err != nil {
			logger.Error("failed to fetch wallet transactions", "address", req.Address, "error", err)
			writeError(w, "upstream transaction fetch failed", http.StatusBadGateway)
			return
		}

		insights := facts.ComputeWalletInsights(txs, req.Timezone, facts.InsightsOptions{
			MainWallet: req.Address,
		})
		if m != nil {
			m.RecordInsightsBatch("api", len(txs))
		}

		logger.Info("wallet insights computed", "address", req.Address, "tx_count", len(txs))
		writeJSON(w, map[string]any{
			"address":  req.Address,
			"tz":       req.Timezone,
			"insights": insights,
		}, http.StatusOK)
	})
}

type watchResponse struct {
	Address         string    `json:"address"`
	Timezone        string    `json:"timezone"`
	RefreshInterval string    `json:"refresh_interval"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func watchToResponse(w *db.WatchedWallet) watchResponse {
	return watchResponse{
		Address:         w.Address,
		Timezone:        w.Timezone,
		RefreshInterval: w.RefreshInterval.String(),
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}

// handleCreateWatch returns a handler that registers a wallet for periodic
// insight refreshes and creates its Temporal schedule.
// POST /api/v1/watches
func handleCreateWatch(store Store, scheduler temporal.Scheduler, cfg *config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Address         string `json:"address"`
			Timezone        string `json:"timezone"`
			RefreshInterval string `json:"refresh_interval"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.Address); err != nil {
			logger.Debug("invalid address", "address", req.Address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		timezone := req.Timezone
		if timezone == "" {
			timezone = "UTC"
		}
		if err := validateTimezone(timezone); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		interval := cfg.DefaultRefreshInterval
		if req.RefreshInterval != "" {
			parsed, err := time.ParseDuration(req.RefreshInterval)
			if err != nil {
				writeError(w, fmt.Sprintf("invalid refresh_interval %q", req.RefreshInterval), http.StatusBadRequest)
				return
			}
			interval = parsed
		}
		if interval < cfg.MinRefreshInterval {
			writeError(w, fmt.Sprintf("refresh_interval must be at least %s", cfg.MinRefreshInterval), http.StatusBadRequest)
			return
		}

		watch, err := store.UpsertWatch(r.Context(), req.Address, timezone, interval)
		if err != nil {
			logger.Error("failed to upsert watch", "address", req.Address, "error", err)
			writeError(w, "failed to register watch", http.StatusInternalServerError)
			return
		}

		if err := scheduler.UpsertWalletSchedule(r.Context(), req.Address, timezone, interval); err != nil {
			logger.Error("failed to create schedule, rolling back watch", "address", req.Address, "error", err)
			if delErr := store.DeleteWatch(r.Context(), req.Address); delErr != nil {
				logger.Error("rollback failed", "address", req.Address, "error", delErr)
			}
			writeError(w, "failed to schedule watch", http.StatusInternalServerError)
			return
		}

		logger.Info("watch registered", "address", req.Address, "interval", interval)
		writeJSON(w, watchToResponse(watch), http.StatusCreated)
	})
}

// handleDeleteWatch returns a handler that unregisters a watched wallet.
// DELETE /api/v1/watches/{address}
func handleDeleteWatch(store Store, scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.DeleteWatch(r.Context(), address); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "watch not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to delete watch", "address", address, "error", err)
			writeError(w, "failed to unregister watch", http.StatusInternalServerError)
			return
		}

		// The watch row is gone; a stale schedule only wastes a few cycles
		// until cleaned up manually, so log and continue.
		if err := scheduler.DeleteWalletSchedule(r.Context(), address); err != nil {
			logger.Warn("failed to delete schedule", "address", address, "error", err)
		}

		logger.Info("watch unregistered", "address", address)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleGetWatch returns a handler that retrieves a watched wallet.
// GET /api/v1/watches/{address}
func handleGetWatch(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		watch, err := store.GetWatch(r.Context(), address)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "watch not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get watch", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, watchToResponse(watch), http.StatusOK)
	})
}

// handleListWatches returns a handler that lists all watched wallets.
// GET /api/v1/watches
func handleListWatches(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		watches, err := store.ListWatches(r.Context())
		if err != nil {
			logger.Error("failed to list watches", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]watchResponse, len(watches))
		for i, watch := range watches {
			resp[i] = watchToResponse(watch)
		}
		writeJSON(w, map[string]any{"watches": resp}, http.StatusOK)
	})
}

type snapshotResponse struct {
	ID         int64           `json:"id"`
	Address    string          `json:"address"`
	Timezone   string          `json:"timezone"`
	TxCount    int             `json:"tx_count"`
	Insights   json.RawMessage `json:"insights"`
	ComputedAt time.Time       `json:"computed_at"`
}

func snapshotToResponse(s *db.InsightSnapshot) snapshotResponse {
	return snapshotResponse{
		ID:         s.ID,
		Address:    s.Address,
		Timezone:   s.Timezone,
		TxCount:    s.TxCount,
		Insights:   s.Insights,
		ComputedAt: s.ComputedAt,
	}
}

// handleListSnapshots returns a handler that lists stored insight snapshots
// for a wallet, newest first.
// GET /api/v1/wallets/{address}/snapshots?limit={n}
func handleListSnapshots(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				writeError(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		snaps, err := store.ListSnapshots(r.Context(), address, limit)
		if err != nil {
			logger.Error("failed to list snapshots", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]snapshotResponse, len(snaps))
		for i, snap := range snaps {
			resp[i] = snapshotToResponse(snap)
		}
		writeJSON(w, map[string]any{
			"address":   address,
			"snapshots": resp,
		}, http.StatusOK)
	})
}

// handleLatestSnapshot returns a handler that retrieves the most recent
// snapshot for a wallet.
// GET /api/v1/wallets/{address}/snapshots/latest
func handleLatestSnapshot(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		snap, err := store.LatestSnapshot(r.Context(), address)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "no snapshots for wallet", http.StatusNotFound)
				return
			}
			logger.Error("failed to get latest snapshot", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, snapshotToResponse(snap), http.StatusOK)
	})
}

// decodeJSON decodes a request body, translating size-limit errors into a
// friendlier message.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if strings.Contains(err.Error(), "http: request body too large") {
			return fmt.Errorf("request body too large: maximum size is 1MB")
		}
		return fmt.Errorf("invalid request body: must be valid JSON")
	}
	return nil
}

// validateAddress checks that a string parses as a Solana public key.
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address required")
	}
	if _, err := solanago.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("invalid address: %v", err)
	}
	return nil
}

// validateSignature checks that a string parses as a Solana transaction
// signature.
func validateSignature(signature string) error {
	if _, err := solanago.SignatureFromBase58(signature); err != nil {
		return fmt.Errorf("invalid signature: %v", err)
	}
	return nil
}

// validateTimezone checks that a string is a loadable IANA timezone.
func validateTimezone(tz string) error {
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("invalid timezone %q", tz)
	}
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, map[string]string{"error": msg}, status)
}
