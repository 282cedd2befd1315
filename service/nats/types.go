package nats

import (
	"encoding/json"
	"time"
)

// SnapshotEvent represents a refreshed wallet-insights snapshot published to
// NATS. This is published to the subject "insights.{wallet_address}" in
// JetStream so downstream consumers (dashboards, alerting) can react to
// fresh analytics without polling the API.
type SnapshotEvent struct {
	// Wallet information
	WalletAddress string `json:"wallet_address"`
	Timezone      string `json:"timezone"`

	// Snapshot details
	SnapshotID int64           `json:"snapshot_id"`
	TxCount    int             `json:"tx_count"`
	Insights   json.RawMessage `json:"insights"`

	// Timing information
	ComputedAt  time.Time `json:"computed_at"`
	PublishedAt time.Time `json:"published_at"`
}
