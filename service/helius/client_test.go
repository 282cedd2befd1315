package helius

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(apiURL, rpcURL string) *Client {
	return NewClient(Config{
		APIURL: apiURL,
		RPCURL: rpcURL,
		APIKey: "test-key",
	}, nil, nil, testLogger())
}

func TestParseTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v0/transactions", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api-key"))

		var body struct {
			Transactions []string `json:"transactions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"sig1", "sig2"}, body.Transactions)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"signature":"sig1","type":"SWAP","fee":5000,"feePayer":"Payer111"},
			{"signature":"sig2","type":"TRANSFER","fee":"5000"}
		]`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)

	txs, err := client.ParseTransactions(context.Background(), []string{"sig1", "sig2"})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "SWAP", txs[0].Type)
	assert.Equal(t, int64(5000), int64(txs[0].Fee))
	// String-encoded lamport amounts decode too.
	assert.Equal(t, int64(5000), int64(txs[1].Fee))
}

func TestParseTransactions_EmptyInput(t *testing.T) {
	client := newTestClient("http://unused", "http://unused")

	txs, err := client.ParseTransactions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestWalletTransactions_LimitClamped(t *testing.T) {
	var gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/addresses/Wallet111/transactions", r.URL.Path)
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)

	_, err := client.WalletTransactions(context.Background(), "Wallet111", 500)
	require.NoError(t, err)
	assert.Equal(t, "100", gotLimit)

	_, err = client.WalletTransactions(context.Background(), "Wallet111", 0)
	require.NoError(t, err)
	assert.Equal(t, "1", gotLimit)
}

func TestWalletTransactions_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)

	_, err := client.WalletTransactions(context.Background(), "Wallet111", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestAssetBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getAssetBatch", req.Method)

		// Second mint is unresolvable: DAS returns null for it.
		w.Write([]byte(`{"jsonrpc":"2.0","result":[
			{"id":"Mint111","content":{"metadata":{"name":"Bonk","symbol":"BONK"},"links":{"image":"https://img/bonk.png"}}},
			null
		]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)

	assets, err := client.AssetBatch(context.Background(), []string{"Mint111", "Mint222"})
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "Mint111", assets[0].ID)
	assert.Equal(t, "BONK", assets[0].Content.Metadata.Symbol)
	assert.Equal(t, "https://img/bonk.png", assets[0].Content.Links.Image)
}

func TestAssetBatch_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32602,"message":"invalid params"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)

	_, err := client.AssetBatch(context.Background(), []string{"Mint111"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid params")
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, srv.URL)

	for i := 0; i < 5; i++ {
		_, err := client.WalletTransactions(context.Background(), "Wallet111", 10)
		require.Error(t, err)
	}

	// Breaker is now open: the next call fails without reaching the server.
	_, err := client.WalletTransactions(context.Background(), "Wallet111", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}
