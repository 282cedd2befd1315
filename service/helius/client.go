package helius

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"github.com/vizor-labs/vizor/service/facts"
	"github.com/vizor-labs/vizor/service/metrics"
)

// Doer is the subset of http.Client used by the Helius client.
// This allows us to swap in test doubles without a real network.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Helius enhanced-transactions API and the DAS RPC.
// All upstream calls go through a circuit breaker so a misbehaving
// Helius endpoint fails fast instead of piling up goroutines.
type Client struct {
	httpClient Doer
	apiURL     string
	rpcURL     string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Config holds the Helius client configuration.
type Config struct {
	APIURL  string
	RPCURL  string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a new Helius client. If httpClient is nil a default
// client with the configured timeout is used. If m is nil, no metrics
// will be recorded.
func NewClient(cfg Config, httpClient Doer, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		httpClient: httpClient,
		apiURL:     cfg.APIURL,
		rpcURL:     cfg.RPCURL,
		apiKey:     cfg.APIKey,
		logger:     logger,
		metrics:    m,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "helius",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("helius circuit breaker state change",
				"from", from.String(),
				"to", to.String(),
			)
			if m != nil {
				m.RecordCircuitBreakerChange(from.String(), to.String())
			}
		},
	})

	return c
}

// ParseTransactions fetches enhanced transactions for the given signatures
// via POST /v0/transactions. Helius returns transactions in the order of the
// input signatures; signatures it cannot resolve are simply absent from the
// response.
func (c *Client) ParseTransactions(ctx context.Context, signatures []string) ([]*facts.Transaction, error) {
	if len(signatures) == 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/v0/transactions?api-key=%s", c.apiURL, url.QueryEscape(c.apiKey))
	body := map[string]any{"transactions": signatures}

	var txs []*facts.Transaction
	if err := c.doJSON(ctx, http.MethodPost, endpoint, "parse_transactions", body, &txs); err != nil {
		return nil, fmt.Errorf("parse transactions: %w", err)
	}

	c.logger.DebugContext(ctx, "parsed transactions",
		"requested", len(signatures),
		"returned", len(txs),
	)
	if c.metrics != nil {
		c.metrics.RecordHeliusTransactionsPerCall("parse_transactions", float64(len(txs)))
	}
	return txs, nil
}

// WalletTransactions fetches the most recent enhanced transactions for a
// wallet via GET /v0/addresses/{address}/transactions. The limit is clamped
// to [1, 100], matching what the upstream API accepts.
func (c *Client) WalletTransactions(ctx context.Context, address string, limit int) ([]*facts.Transaction, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	endpoint := fmt.Sprintf("%s/v0/addresses/%s/transactions?api-key=%s&limit=%d",
		c.apiURL, url.PathEscape(address), url.QueryEscape(c.apiKey), limit)

	var txs []*facts.Transaction
	if err := c.doJSON(ctx, http.MethodGet, endpoint, "wallet_transactions", nil, &txs); err != nil {
		return nil, fmt.Errorf("wallet transactions for %s: %w", address, err)
	}

	c.logger.DebugContext(ctx, "fetched wallet transactions",
		"wallet", address,
		"limit", limit,
		"returned", len(txs),
	)
	if c.metrics != nil {
		c.metrics.RecordHeliusTransactionsPerCall("wallet_transactions", float64(len(txs)))
	}
	return txs, nil
}

// Asset is the slice of a DAS asset we care about: the on-chain metadata
// needed to label token amounts in explanations.
type Asset struct {
	ID      string `json:"id"`
	Content struct {
		Metadata struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"metadata"`
		Links struct {
			Image string `json:"image"`
		} `json:"links"`
	} `json:"content"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// AssetBatch fetches DAS metadata for a batch of mints via the getAssetBatch
// RPC method. Mints that cannot be resolved come back as null entries and are
// dropped from the result.
func (c *Client) AssetBatch(ctx context.Context, mints []string) ([]Asset, error) {
	if len(mints) == 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/?api-key=%s", c.rpcURL, url.QueryEscape(c.apiKey))
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      "vizor",
		Method:  "getAssetBatch",
		Params:  map[string]any{"ids": mints},
	}

	var resp rpcResponse
	if err := c.doJSON(ctx, http.MethodPost, endpoint, "get_asset_batch", req, &resp); err != nil {
		return nil, fmt.Errorf("get asset batch: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("get asset batch: rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var raw []*Asset
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return nil, fmt.Errorf("get asset batch: decode result: %w", err)
	}

	assets := make([]Asset, 0, len(raw))
	for _, a := range raw {
		if a != nil {
			assets = append(assets, *a)
		}
	}
	return assets, nil
}

// doJSON performs an HTTP round trip through the circuit breaker, decoding
// the JSON response into out. Non-2xx responses are returned as errors and
// count against the breaker.
func (c *Client) doJSON(ctx context.Context, method, endpoint, label string, reqBody, out any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			if c.metrics != nil {
				c.metrics.RecordHeliusRateLimitHit(label)
			}
			return nil, fmt.Errorf("rate limited (429)")
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return data, nil
	})
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordHeliusCall(label, status, duration)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "helius call failed",
			"endpoint", label,
			"error", err,
		)
		return err
	}

	if out != nil {
		if err := json.Unmarshal(result.([]byte), out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
