package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vizor-labs/vizor/service/config"
	"github.com/vizor-labs/vizor/service/db"
	"github.com/vizor-labs/vizor/service/facts"
	"github.com/vizor-labs/vizor/service/mintmeta"
	"github.com/vizor-labs/vizor/service/narrate"
	"github.com/vizor-labs/vizor/service/temporal"
)

const (
	testAddress   = "So11111111111111111111111111111111111111112"
	testSignature = "1111111111111111111111111111111111111111111111111111111111111111"
)

type mockStore struct {
	explanations map[string]*db.Explanation
	watches      map[string]*db.WatchedWallet
	snapshots    []*db.InsightSnapshot
	putCalls     int
	upsertErr    error
	deleteErr    error
}

func newMockStore() *mockStore {
	return &mockStore{
		explanations: make(map[string]*db.Explanation),
		watches:      make(map[string]*db.WatchedWallet),
	}
}

func (m *mockStore) GetExplanation(_ context.Context, signature, timezone string) (*db.Explanation, error) {
	if e, ok := m.explanations[signature+"|"+timezone]; ok {
		return e, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockStore) PutExplanation(_ context.Context, signature, timezone string, explanation, factsJSON json.RawMessage) error {
	m.putCalls++
	m.explanations[signature+"|"+timezone] = &db.Explanation{
		Signature:   signature,
		Timezone:    timezone,
		Explanation: explanation,
		Facts:       factsJSON,
	}
	return nil
}

func (m *mockStore) UpsertWatch(_ context.Context, address, timezone string, interval time.Duration) (*db.WatchedWallet, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	w := &db.WatchedWallet{Address: address, Timezone: timezone, RefreshInterval: interval}
	m.watches[address] = w
	return w, nil
}

func (m *mockStore) GetWatch(_ context.Context, address string) (*db.WatchedWallet, error) {
	if w, ok := m.watches[address]; ok {
		return w, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockStore) ListWatches(_ context.Context) ([]*db.WatchedWallet, error) {
	var out []*db.WatchedWallet
	for _, w := range m.watches {
		out = append(out, w)
	}
	return out, nil
}

func (m *mockStore) DeleteWatch(_ context.Context, address string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.watches[address]; !ok {
		return db.ErrNotFound
	}
	delete(m.watches, address)
	return nil
}

func (m *mockStore) LatestSnapshot(_ context.Context, address string) (*db.InsightSnapshot, error) {
	for _, s := range m.snapshots {
		if s.Address == address {
			return s, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockStore) ListSnapshots(_ context.Context, address string, _ int) ([]*db.InsightSnapshot, error) {
	var out []*db.InsightSnapshot
	for _, s := range m.snapshots {
		if s.Address == address {
			out = append(out, s)
		}
	}
	return out, nil
}

type mockHelius struct {
	parsed    []*facts.Transaction
	wallet    []*facts.Transaction
	parseErr  error
	walletErr error
	gotLimit  int
}

func (m *mockHelius) ParseTransactions(_ context.Context, _ []string) ([]*facts.Transaction, error) {
	return m.parsed, m.parseErr
}

func (m *mockHelius) WalletTransactions(_ context.Context, _ string, limit int) ([]*facts.Transaction, error) {
	m.gotLimit = limit
	return m.wallet, m.walletErr
}

type mockNarrator struct {
	expl narrate.Explanation
	err  error
}

func (m *mockNarrator) Explain(_ context.Context, _ *facts.Transaction, _ *facts.Facts, _ map[string]mintmeta.MintMeta, when string) (narrate.Explanation, error) {
	if m.err != nil {
		return narrate.Explanation{}, m.err
	}
	out := m.expl
	if out.When == "" {
		out.When = when
	}
	return out, nil
}

type mockResolver struct{}

func (mockResolver) Resolve(_ context.Context, _ []string) map[string]mintmeta.MintMeta {
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultRefreshInterval: 5 * time.Minute,
		MinRefreshInterval:     time.Minute,
	}
}

func postJSON(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleExplainTransaction(t *testing.T) {
	store := newMockStore()
	helius := &mockHelius{parsed: []*facts.Transaction{
		{Signature: testSignature, Type: facts.TypeSwap, Fee: 5000, Timestamp: 1700000000},
	}}
	narrator := &mockNarrator{expl: narrate.Explanation{
		Explainer: "Swapped tokens on Jupiter.",
		Keypoints: []string{"Fee: 0.000005 SOL"},
	}}
	handler := handleExplainTransaction(store, helius, narrator, mockResolver{}, nil, testLogger())

	rec := postJSON(t, handler, `{"signature":"`+testSignature+`","tz":"UTC"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp explainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Swapped tokens on Jupiter.", resp.Explainer)
	assert.False(t, resp.Cached)
	assert.NotEmpty(t, resp.Facts)
	assert.Equal(t, 1, store.putCalls)

	// The derived facts ride along in the response.
	var derived facts.Facts
	require.NoError(t, json.Unmarshal(resp.Facts, &derived))
	assert.InDelta(t, 0.000005, derived.FeeSol, 1e-12)
}

func TestHandleExplainTransaction_CacheHit(t *testing.T) {
	store := newMockStore()
	explJSON, _ := json.Marshal(narrate.Explanation{Explainer: "cached answer", When: "Nov 14, 2023 10:13 PM"})
	store.explanations[testSignature+"|UTC"] = &db.Explanation{
		Signature:   testSignature,
		Timezone:    "UTC",
		Explanation: explJSON,
		Facts:       json.RawMessage(`{"feeSol":0.000005}`),
	}

	// Upstream returning an error proves the cache short-circuits.
	helius := &mockHelius{parseErr: errors.New("should not be called")}
	handler := handleExplainTransaction(store, helius, &mockNarrator{}, mockResolver{}, nil, testLogger())

	rec := postJSON(t, handler, `{"signature":"`+testSignature+`","tz":"UTC"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp explainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
	assert.Equal(t, "cached answer", resp.Explainer)
}

func TestHandleExplainTransaction_Validation(t *testing.T) {
	handler := handleExplainTransaction(newMockStore(), &mockHelius{}, &mockNarrator{}, mockResolver{}, nil, testLogger())

	rec := postJSON(t, handler, `{"tz":"UTC"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "signature required")

	rec = postJSON(t, handler, `{"signature":"`+testSignature+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "timezone required")

	rec = postJSON(t, handler, `{"signature":"not-base58!","tz":"UTC"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler, `{"signature":"`+testSignature+`","tz":"Not/AZone"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExplainTransaction_NotFound(t *testing.T) {
	handler := handleExplainTransaction(newMockStore(), &mockHelius{}, &mockNarrator{}, mockResolver{}, nil, testLogger())

	rec := postJSON(t, handler, `{"signature":"`+testSignature+`","tz":"UTC"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleExplainTransaction_UpstreamError(t *testing.T) {
	helius := &mockHelius{parseErr: errors.New("helius down")}
	handler := handleExplainTransaction(newMockStore(), helius, &mockNarrator{}, mockResolver{}, nil, testLogger())

	rec := postJSON(t, handler, `{"signature":"`+testSignature+`","tz":"UTC"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleWalletInsights(t *testing.T) {
	helius := &mockHelius{wallet: []*facts.Transaction{
		{Type: facts.TypeSwap, Fee: 5000},
		{Type: facts.TypeTransfer, Fee: 5000},
	}}
	handler := handleWalletInsights(helius, nil, testLogger())

	rec := postJSON(t, handler, `{"address":"`+testAddress+`","tz":"UTC","limit":500}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, helius.gotLimit) // clamped

	var resp struct {
		Address  string               `json:"address"`
		Insights facts.WalletInsights `json:"insights"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testAddress, resp.Address)
	assert.Equal(t, 2, resp.Insights.TotalTx)
}

func TestHandleWalletInsights_Validation(t *testing.T) {
	handler := handleWalletInsights(&mockHelius{}, nil, testLogger())

	rec := postJSON(t, handler, `{"tz":"UTC"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler, `{"address":"bad address","tz":"UTC"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler, `{"address":"`+testAddress+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateWatch(t *testing.T) {
	store := newMockStore()
	scheduler := temporal.NewMockScheduler()
	handler := handleCreateWatch(store, scheduler, testConfig(), testLogger())

	rec := postJSON(t, handler, `{"address":"`+testAddress+`","timezone":"America/New_York","refresh_interval":"10m"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	sched, ok := scheduler.Schedule(testAddress)
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, sched.Interval)
	assert.Equal(t, "America/New_York", sched.Timezone)

	var resp watchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "10m0s", resp.RefreshInterval)
}

func TestHandleCreateWatch_IntervalTooShort(t *testing.T) {
	handler := handleCreateWatch(newMockStore(), temporal.NewMockScheduler(), testConfig(), testLogger())

	rec := postJSON(t, handler, `{"address":"`+testAddress+`","refresh_interval":"5s"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateWatch_SchedulerFailureRollsBack(t *testing.T) {
	store := newMockStore()
	scheduler := temporal.NewMockScheduler()
	scheduler.SetUpsertError(errors.New("temporal down"))
	handler := handleCreateWatch(store, scheduler, testConfig(), testLogger())

	rec := postJSON(t, handler, `{"address":"`+testAddress+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// The watch row must not survive a scheduling failure.
	assert.Empty(t, store.watches)
}

func TestHandleDeleteWatch(t *testing.T) {
	store := newMockStore()
	store.watches[testAddress] = &db.WatchedWallet{Address: testAddress}
	scheduler := temporal.NewMockScheduler()
	handler := handleDeleteWatch(store, scheduler, testLogger())

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req.SetPathValue("address", testAddress)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.watches)
}

func TestHandleDeleteWatch_NotFound(t *testing.T) {
	handler := handleDeleteWatch(newMockStore(), temporal.NewMockScheduler(), testLogger())

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req.SetPathValue("address", testAddress)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleLatestSnapshot(t *testing.T) {
	store := newMockStore()
	store.snapshots = []*db.InsightSnapshot{{
		ID:       7,
		Address:  testAddress,
		Timezone: "UTC",
		TxCount:  3,
		Insights: json.RawMessage(`{"totalTx":3}`),
	}}
	handler := handleLatestSnapshot(store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetPathValue("address", testAddress)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp snapshotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.ID)
	assert.JSONEq(t, `{"totalTx":3}`, string(resp.Insights))
}

func TestHandleLatestSnapshot_NotFound(t *testing.T) {
	handler := handleLatestSnapshot(newMockStore(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetPathValue("address", testAddress)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListSnapshots_BadLimit(t *testing.T) {
	handler := handleListSnapshots(newMockStore(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/?limit=zero", nil)
	req.SetPathValue("address", testAddress)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := corsMiddleware(inner)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/watches", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := securityHeadersMiddleware(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", clientIP(req, true))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req, true))
}

func TestClientIP_UntrustedProxyHeaderIgnored(t *testing.T) {
	// Without the trusted-proxy toggle a spoofed X-Forwarded-For must not
	// buy the client a fresh rate-limit bucket.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "10.0.0.1", clientIP(req, false))
}

func TestIPRateLimiter(t *testing.T) {
	l := newIPRateLimiter(1, 2)
	defer l.stop()

	assert.True(t, l.allow("1.2.3.4"))
	assert.True(t, l.allow("1.2.3.4"))
	// Burst exhausted.
	assert.False(t, l.allow("1.2.3.4"))
	// Other IPs have their own bucket.
	assert.True(t, l.allow("5.6.7.8"))
}

func TestIPRateLimiter_Stop(t *testing.T) {
	l := newIPRateLimiter(1, 1)

	l.stop()
	// Stopping is idempotent and the limiter keeps serving.
	l.stop()
	assert.True(t, l.allow("1.2.3.4"))

	select {
	case <-l.done:
	default:
		t.Fatal("cleanup goroutine was not signalled to stop")
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 16)
		var dst map[string]any
		err := decodeJSON(r, &dst)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})

	body := strings.Repeat("x", 64)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"k":"`+body+`"}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
}
