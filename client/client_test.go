package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/api/v1/transactions/explain", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sig123", req["signature"])
		assert.Equal(t, "America/New_York", req["tz"])

		json.NewEncoder(w).Encode(map[string]any{
			"signature": "sig123",
			"explainer": "You swapped SOL for USDC.",
			"keypoints": []string{"Fee: 0.000005 SOL"},
			"when":      "Nov 14, 2023 5:13 PM",
			"cached":    true,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	expl, err := c.Explain(context.Background(), "sig123", "America/New_York")
	require.NoError(t, err)
	assert.Equal(t, "You swapped SOL for USDC.", expl.Explainer)
	assert.Equal(t, []string{"Fee: 0.000005 SOL"}, expl.Keypoints)
	assert.True(t, expl.Cached)
}

func TestExplain_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no transaction found"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	_, err := c.Explain(context.Background(), "sig123", "UTC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transaction found")
}

func TestWalletInsights(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/wallets/insights", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(50), req["limit"])

		json.NewEncoder(w).Encode(map[string]any{
			"address":  "Wallet111",
			"tz":       "UTC",
			"insights": map[string]any{"totalTx": 50},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	insights, err := c.WalletInsights(context.Background(), "Wallet111", "UTC", 50)
	require.NoError(t, err)
	assert.Equal(t, "Wallet111", insights.Address)
	assert.JSONEq(t, `{"totalTx":50}`, string(insights.Insights))
}

func TestCreateWatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/api/v1/watches", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "10m0s", req["refresh_interval"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"address":          req["address"],
			"timezone":         req["timezone"],
			"refresh_interval": req["refresh_interval"],
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	watch, err := c.CreateWatch(context.Background(), "Wallet111", "UTC", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "Wallet111", watch.Address)
	assert.Equal(t, 10*time.Minute, watch.RefreshInterval)
}

func TestDeleteWatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "DELETE", r.Method)
		require.Equal(t, "/api/v1/watches/Wallet111", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	require.NoError(t, c.DeleteWatch(context.Background(), "Wallet111"))
}

func TestListWatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/watches", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"watches": []map[string]any{
				{"address": "Wallet111", "timezone": "UTC", "refresh_interval": "5m0s"},
				{"address": "Wallet222", "timezone": "America/New_York", "refresh_interval": "1h0m0s"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	watches, err := c.ListWatches(context.Background())
	require.NoError(t, err)
	require.Len(t, watches, 2)
	assert.Equal(t, 5*time.Minute, watches[0].RefreshInterval)
	assert.Equal(t, time.Hour, watches[1].RefreshInterval)
}

func TestListSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/wallets/Wallet111/snapshots", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]any{
			"address": "Wallet111",
			"snapshots": []map[string]any{
				{"id": 2, "address": "Wallet111", "tx_count": 10, "insights": map[string]any{"totalTx": 10}},
				{"id": 1, "address": "Wallet111", "tx_count": 8, "insights": map[string]any{"totalTx": 8}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	snaps, err := c.ListSnapshots(context.Background(), "Wallet111", 5)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(2), snaps[0].ID)
	assert.Equal(t, 10, snaps[0].TxCount)
}

func TestLatestSnapshot_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no snapshots for wallet"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	_, err := c.LatestSnapshot(context.Background(), "Wallet111")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no snapshots for wallet")
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, nil)
	require.NoError(t, c.Health(context.Background()))
}
