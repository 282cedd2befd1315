package temporal

import (
	"context"
	"time"
)

// Scheduler manages Temporal schedules for wallet insight refreshes.
// Each watched wallet gets its own schedule that triggers the
// RefreshWalletWorkflow.
type Scheduler interface {
	// UpsertWalletSchedule creates or updates the refresh schedule for a
	// wallet. The schedule triggers the RefreshWalletWorkflow on the given
	// interval.
	UpsertWalletSchedule(ctx context.Context, address, timezone string, interval time.Duration) error

	// DeleteWalletSchedule deletes the schedule for a wallet.
	// This stops the wallet from being refreshed.
	DeleteWalletSchedule(ctx context.Context, address string) error
}
