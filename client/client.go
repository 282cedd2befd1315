package client

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
)

// Explanation is a narrated transaction as returned by the server.
type Explanation struct {
	Signature string          `json:"signature"`
	Explainer string          `json:"explainer,omitempty"`
	Keypoints []string        `json:"keypoints,omitempty"`
	When      string          `json:"when"`
	Facts     json.RawMessage `json:"facts,omitempty"`
	Cached    bool            `json:"cached"`
}

// Insights is an on-demand wallet analytics result.
type Insights struct {
	Address  string          `json:"address"`
	Timezone string          `json:"tz"`
	Insights json.RawMessage `json:"insights"`
}

// Watch represents a wallet registered for periodic insight refreshes.
type Watch struct {
	Address         string        `json:"address"`
	Timezone        string        `json:"timezone"`
	RefreshInterval time.Duration `json:"refresh_interval"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Snapshot is a stored wallet-insights snapshot.
type Snapshot struct {
	ID         int64           `json:"id"`
	Address    string          `json:"address"`
	Timezone   string          `json:"timezone"`
	TxCount    int             `json:"tx_count"`
	Insights   json.RawMessage `json:"insights"`
	ComputedAt time.Time       `json:"computed_at"`
}

// Client is the HTTP client for the vizor analytics service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new analytics service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second} // explain waits on a model call
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Explain asks the server to narrate a transaction in the given timezone.
func (c *Client) Explain(ctx context.Context, signature, tz string) (*Explanation, error) {
	var expl Explanation
	err := c.postJSON(ctx, "/api/v1/transactions/explain", map[string]any{
		"signature": signature,
		"tz":        tz,
	}, http.StatusOK, &expl)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("transaction explained", "signature", signature, "cached", expl.Cached)
	return &expl, nil
}

// WalletInsights computes analytics over a wallet's recent transactions.
// limit is the number of transactions to analyze; zero means the server
// default.
func (c *Client) WalletInsights(ctx context.Context, address, tz string, limit int) (*Insights, error) {
	var insights Insights
	err := c.postJSON(ctx, "/api/v1/wallets/insights", map[string]any{
		"address": address,
		"tz":      tz,
		"limit":   limit,
	}, http.StatusOK, &insights)
	if err != nil {
		return nil, err
	}
	return &insights, nil
}

// CreateWatch registers a wallet for periodic insight refreshes.
// A zero interval lets the server apply its default.
func (c *Client) CreateWatch(ctx context.Context, address, timezone string, interval time.Duration) (*Watch, error) {
	reqBody := map[string]any{
		"address":  address,
		"timezone": timezone,
	}
	if interval > 0 {
		reqBody["refresh_interval"] = interval.String()
	}

	var apiWatch watchResponse
	if err := c.postJSON(ctx, "/api/v1/watches", reqBody, http.StatusCreated, &apiWatch); err != nil {
		return nil, err
	}

	c.logger.Debug("watch registered", "address", address, "interval", interval)
	return responseToWatch(&apiWatch)
}

// DeleteWatch unregisters a watched wallet.
func (c *Client) DeleteWatch(ctx context.Context, address string) error {
	u := fmt.Sprintf("%s/api/v1/watches/%s", c.baseURL, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, "DELETE", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("watch unregistered", "address", address)
	return nil
}

// GetWatch retrieves the registration details for a watched wallet.
func (c *Client) GetWatch(ctx context.Context, address string) (*Watch, error) {
	u := fmt.Sprintf("/api/v1/watches/%s", url.PathEscape(address))
	var apiWatch watchResponse
	if err := c.getJSON(ctx, u, &apiWatch); err != nil {
		return nil, err
	}
	return responseToWatch(&apiWatch)
}

// ListWatches retrieves all watched wallets.
func (c *Client) ListWatches(ctx context.Context) ([]*Watch, error) {
	var response struct {
		Watches []watchResponse `json:"watches"`
	}
	if err := c.getJSON(ctx, "/api/v1/watches", &response); err != nil {
		return nil, err
	}

	watches := make([]*Watch, len(response.Watches))
	for i, apiWatch := range response.Watches {
		watch, err := responseToWatch(&apiWatch)
		if err != nil {
			return nil, fmt.Errorf("failed to parse watch %s: %w", apiWatch.Address, err)
		}
		watches[i] = watch
	}
	return watches, nil
}

// ListSnapshots retrieves stored insight snapshots for a wallet, newest
// first. limit caps the result; zero means the server default.
func (c *Client) ListSnapshots(ctx context.Context, address string, limit int) ([]*Snapshot, error) {
	u := fmt.Sprintf("/api/v1/wallets/%s/snapshots", url.PathEscape(address))
	if limit > 0 {
		u += fmt.Sprintf("?limit=%d", limit)
	}

	var response struct {
		Snapshots []*Snapshot `json:"snapshots"`
	}
	if err := c.getJSON(ctx, u, &response); err != nil {
		return nil, err
	}
	return response.Snapshots, nil
}

// LatestSnapshot retrieves the most recent insight snapshot for a wallet.
func (c *Client) LatestSnapshot(ctx context.Context, address string) (*Snapshot, error) {
	u := fmt.Sprintf("/api/v1/wallets/%s/snapshots/latest", url.PathEscape(address))
	var snap Snapshot
	if err := c.getJSON(ctx, u, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Health checks whether the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// postJSON sends a JSON POST and decodes the response into dst when the
// status matches wantStatus.
func (c *Client) postJSON(ctx context.Context, path string, reqBody any, wantStatus int, dst any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// getJSON sends a GET and decodes the 200 response into dst.
func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// watchResponse is the API response format for a watch.
// The server returns refresh_interval as a string (e.g. "5m0s").
type watchResponse struct {
	Address         string    `json:"address"`
	Timezone        string    `json:"timezone"`
	RefreshInterval string    `json:"refresh_interval"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// responseToWatch converts an API response to a domain Watch.
func responseToWatch(resp *watchResponse) (*Watch, error) {
	interval, err := time.ParseDuration(resp.RefreshInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh_interval %q: %w", resp.RefreshInterval, err)
	}

	return &Watch{
		Address:         resp.Address,
		Timezone:        resp.Timezone,
		RefreshInterval: interval,
		CreatedAt:       resp.CreatedAt,
		UpdatedAt:       resp.UpdatedAt,
	}, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
