package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vizor-labs/vizor/service/db"
	"github.com/vizor-labs/vizor/service/facts"
	natspkg "github.com/vizor-labs/vizor/service/nats"
)

type mockStore struct {
	snapshots []*db.InsightSnapshot
	insertErr error
	nextID    int64
}

func (m *mockStore) InsertSnapshot(_ context.Context, address, timezone string, txCount int, insights json.RawMessage) (*db.InsightSnapshot, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	m.nextID++
	snap := &db.InsightSnapshot{
		ID:         m.nextID,
		Address:    address,
		Timezone:   timezone,
		TxCount:    txCount,
		Insights:   insights,
		ComputedAt: time.Now().UTC(),
	}
	m.snapshots = append(m.snapshots, snap)
	return snap, nil
}

type mockHelius struct {
	txs      []*facts.Transaction
	err      error
	gotLimit int
}

func (m *mockHelius) WalletTransactions(_ context.Context, _ string, limit int) ([]*facts.Transaction, error) {
	m.gotLimit = limit
	return m.txs, m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestActivities(store *mockStore, helius *mockHelius, pub PublisherInterface) *Activities {
	return NewActivities(store, helius, pub, nil, testLogger())
}

func TestFetchTransactions(t *testing.T) {
	helius := &mockHelius{txs: []*facts.Transaction{
		{Signature: "sig1", Type: facts.TypeSwap},
		{Signature: "sig2", Type: facts.TypeTransfer},
	}}
	a := newTestActivities(&mockStore{}, helius, nil)

	result, err := a.FetchTransactions(context.Background(), FetchTransactionsInput{
		Address: "Wallet111",
		Limit:   50,
	})
	require.NoError(t, err)
	assert.Len(t, result.Transactions, 2)
	assert.Equal(t, 50, helius.gotLimit)
}

func TestFetchTransactions_DefaultLimit(t *testing.T) {
	helius := &mockHelius{}
	a := newTestActivities(&mockStore{}, helius, nil)

	_, err := a.FetchTransactions(context.Background(), FetchTransactionsInput{Address: "Wallet111"})
	require.NoError(t, err)
	assert.Equal(t, 100, helius.gotLimit)
}

func TestFetchTransactions_Error(t *testing.T) {
	helius := &mockHelius{err: errors.New("helius down")}
	a := newTestActivities(&mockStore{}, helius, nil)

	_, err := a.FetchTransactions(context.Background(), FetchTransactionsInput{Address: "Wallet111"})
	require.Error(t, err)
}

func TestComputeInsights(t *testing.T) {
	a := newTestActivities(&mockStore{}, &mockHelius{}, nil)

	result, err := a.ComputeInsights(context.Background(), ComputeInsightsInput{
		Address:  "Wallet111",
		Timezone: "UTC",
		Transactions: []*facts.Transaction{
			{Type: facts.TypeSwap, Fee: 5000},
			{Type: facts.TypeTransfer, Fee: 5000},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TxCount)

	var insights facts.WalletInsights
	require.NoError(t, json.Unmarshal(result.Insights, &insights))
	assert.Equal(t, 2, insights.TotalTx)
	assert.Equal(t, 1.0, insights.SuccessRate)
}

func TestComputeInsights_EmptyBatch(t *testing.T) {
	a := newTestActivities(&mockStore{}, &mockHelius{}, nil)

	result, err := a.ComputeInsights(context.Background(), ComputeInsightsInput{
		Address:  "Wallet111",
		Timezone: "UTC",
	})
	require.NoError(t, err)
	assert.Zero(t, result.TxCount)
	assert.NotEmpty(t, result.Insights)
}

func TestStoreSnapshot(t *testing.T) {
	store := &mockStore{}
	a := newTestActivities(store, &mockHelius{}, nil)

	result, err := a.StoreSnapshot(context.Background(), StoreSnapshotInput{
		Address:  "Wallet111",
		Timezone: "UTC",
		TxCount:  3,
		Insights: json.RawMessage(`{"totalTx":3}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.SnapshotID)
	require.Len(t, store.snapshots, 1)
	assert.Equal(t, "Wallet111", store.snapshots[0].Address)
}

func TestStoreSnapshot_Error(t *testing.T) {
	store := &mockStore{insertErr: errors.New("db down")}
	a := newTestActivities(store, &mockHelius{}, nil)

	_, err := a.StoreSnapshot(context.Background(), StoreSnapshotInput{Address: "Wallet111"})
	require.Error(t, err)
}

func TestPublishSnapshot(t *testing.T) {
	pub := natspkg.NewMockPublisher()
	a := newTestActivities(&mockStore{}, &mockHelius{}, pub)

	err := a.PublishSnapshot(context.Background(), PublishSnapshotInput{
		Address:    "Wallet111",
		Timezone:   "UTC",
		SnapshotID: 7,
		TxCount:    3,
		Insights:   json.RawMessage(`{"totalTx":3}`),
		ComputedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	events := pub.GetPublishedEventsForWallet("Wallet111")
	require.Len(t, events, 1)
	assert.Equal(t, int64(7), events[0].SnapshotID)
	assert.False(t, events[0].PublishedAt.IsZero())
}

func TestPublishSnapshot_NoPublisher(t *testing.T) {
	a := newTestActivities(&mockStore{}, &mockHelius{}, nil)

	err := a.PublishSnapshot(context.Background(), PublishSnapshotInput{Address: "Wallet111"})
	require.NoError(t, err)
}
