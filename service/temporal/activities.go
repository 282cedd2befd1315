package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vizor-labs/vizor/service/db"
	"github.com/vizor-labs/vizor/service/facts"
	"github.com/vizor-labs/vizor/service/metrics"
	natspkg "github.com/vizor-labs/vizor/service/nats"
)

// RefreshWalletInput contains the input parameters for refreshing a wallet.
type RefreshWalletInput struct {
	Address  string `json:"address"`
	Timezone string `json:"timezone"`
	Limit    int    `json:"limit,omitempty"` // Transactions to fetch; defaults to 100
}

// RefreshWalletResult contains the result of refreshing a wallet.
type RefreshWalletResult struct {
	Address     string    `json:"address"`
	TxCount     int       `json:"tx_count"`
	SnapshotID  int64     `json:"snapshot_id,omitempty"`
	RefreshTime time.Time `json:"refresh_time"`
	Error       *string   `json:"error,omitempty"`
}

// FetchTransactionsInput contains parameters for the FetchTransactions activity.
type FetchTransactionsInput struct {
	Address string `json:"address"`
	Limit   int    `json:"limit"`
}

// FetchTransactionsResult contains the result of fetching transactions.
type FetchTransactionsResult struct {
	Transactions []*facts.Transaction `json:"transactions"`
}

// ComputeInsightsInput contains parameters for the ComputeInsights activity.
type ComputeInsightsInput struct {
	Address      string               `json:"address"`
	Timezone     string               `json:"timezone"`
	Transactions []*facts.Transaction `json:"transactions"`
}

// ComputeInsightsResult contains the computed insights, serialized for
// storage and publishing.
type ComputeInsightsResult struct {
	Insights json.RawMessage `json:"insights"`
	TxCount  int             `json:"tx_count"`
}

// StoreSnapshotInput contains parameters for the StoreSnapshot activity.
// StartedAt carries the workflow start time so the full refresh duration can
// be recorded once the snapshot lands.
type StoreSnapshotInput struct {
	Address   string          `json:"address"`
	Timezone  string          `json:"timezone"`
	TxCount   int             `json:"tx_count"`
	Insights  json.RawMessage `json:"insights"`
	StartedAt time.Time       `json:"started_at,omitempty"`
}

// StoreSnapshotResult contains the stored snapshot's identity.
type StoreSnapshotResult struct {
	SnapshotID int64     `json:"snapshot_id"`
	ComputedAt time.Time `json:"computed_at"`
}

// PublishSnapshotInput contains parameters for the PublishSnapshot activity.
type PublishSnapshotInput struct {
	Address    string          `json:"address"`
	Timezone   string          `json:"timezone"`
	SnapshotID int64           `json:"snapshot_id"`
	TxCount    int             `json:"tx_count"`
	Insights   json.RawMessage `json:"insights"`
	ComputedAt time.Time       `json:"computed_at"`
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	InsertSnapshot(ctx context.Context, address, timezone string, txCount int, insights json.RawMessage) (*db.InsightSnapshot, error)
}

// HeliusInterface defines the Helius operations needed by activities.
// This allows for easy mocking in tests.
type HeliusInterface interface {
	WalletTransactions(ctx context.Context, address string, limit int) ([]*facts.Transaction, error)
}

// PublisherInterface defines the NATS publishing operations needed by
// activities. This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishSnapshot(ctx context.Context, event *natspkg.SnapshotEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// All dependencies are explicit.
type Activities struct {
	store     StoreInterface
	helius    HeliusInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If m is nil, no metrics will be recorded.
func NewActivities(
	store StoreInterface,
	helius HeliusInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:     store,
		helius:    helius,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// FetchTransactions fetches recent enhanced transactions for a wallet from
// Helius.
func (a *Activities) FetchTransactions(ctx context.Context, input FetchTransactionsInput) (*FetchTransactionsResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("FetchTransactions", input.Address, time.Since(start).Seconds())
		}
	}()

	a.logger.DebugContext(ctx, "fetching wallet transactions",
		"address", input.Address,
		"limit", input.Limit,
	)

	limit := input.Limit
	if limit == 0 {
		limit = 100
	}

	txs, err := a.helius.WalletTransactions(ctx, input.Address, limit)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch wallet transactions",
			"address", input.Address,
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch wallet transactions: %w", err)
	}

	a.logger.InfoContext(ctx, "fetched wallet transactions",
		"address", input.Address,
		"count", len(txs),
	)

	return &FetchTransactionsResult{Transactions: txs}, nil
}

// ComputeInsights derives wallet insights from a batch of transactions.
// This is pure local arithmetic; it never fails for empty input.
func (a *Activities) ComputeInsights(ctx context.Context, input ComputeInsightsInput) (*ComputeInsightsResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("ComputeInsights", input.Address, time.Since(start).Seconds())
		}
	}()

	insights := facts.ComputeWalletInsights(input.Transactions, input.Timezone, facts.InsightsOptions{
		MainWallet: input.Address,
	})
	if a.metrics != nil {
		a.metrics.RecordInsightsBatch("workflow", len(input.Transactions))
	}

	data, err := json.Marshal(insights)
	if err != nil {
		return nil, fmt.Errorf("failed to encode insights: %w", err)
	}

	a.logger.InfoContext(ctx, "computed wallet insights",
		"address", input.Address,
		"tx_count", len(input.Transactions),
		"success_rate", insights.SuccessRate,
	)

	return &ComputeInsightsResult{
		Insights: data,
		TxCount:  len(input.Transactions),
	}, nil
}

// StoreSnapshot persists a computed insights snapshot to the database.
func (a *Activities) StoreSnapshot(ctx context.Context, input StoreSnapshotInput) (*StoreSnapshotResult, error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("StoreSnapshot", input.Address, time.Since(start).Seconds())
		}
	}()

	snap, err := a.store.InsertSnapshot(ctx, input.Address, input.Timezone, input.TxCount, input.Insights)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to store snapshot",
			"address", input.Address,
			"error", err,
		)
		return nil, fmt.Errorf("failed to store snapshot: %w", err)
	}

	a.logger.InfoContext(ctx, "stored insight snapshot",
		"address", input.Address,
		"snapshot_id", snap.ID,
	)

	if a.metrics != nil && !input.StartedAt.IsZero() {
		a.metrics.RecordWorkflowDuration(input.Address, "completed", time.Since(input.StartedAt).Seconds())
	}

	return &StoreSnapshotResult{
		SnapshotID: snap.ID,
		ComputedAt: snap.ComputedAt,
	}, nil
}

// PublishSnapshot publishes a snapshot event to NATS for downstream
// consumers.
func (a *Activities) PublishSnapshot(ctx context.Context, input PublishSnapshotInput) error {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordActivityDuration("PublishSnapshot", input.Address, time.Since(start).Seconds())
		}
	}()

	if a.publisher == nil {
		a.logger.DebugContext(ctx, "no publisher configured, skipping snapshot publish",
			"address", input.Address,
		)
		return nil
	}

	event := &natspkg.SnapshotEvent{
		WalletAddress: input.Address,
		Timezone:      input.Timezone,
		SnapshotID:    input.SnapshotID,
		TxCount:       input.TxCount,
		Insights:      input.Insights,
		ComputedAt:    input.ComputedAt,
		PublishedAt:   time.Now().UTC(),
	}

	if err := a.publisher.PublishSnapshot(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish snapshot",
			"address", input.Address,
			"snapshot_id", input.SnapshotID,
			"error", err,
		)
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	a.logger.DebugContext(ctx, "published snapshot",
		"address", input.Address,
		"snapshot_id", input.SnapshotID,
	)
	return nil
}
