package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// RefreshWalletWorkflow is the Temporal workflow that refreshes a wallet's
// insights. It is triggered by a Temporal schedule at the wallet's
// configured refresh interval.
//
// The workflow performs these steps:
// 1. Fetch recent enhanced transactions from Helius (FetchTransactions)
// 2. Derive wallet insights locally (ComputeInsights)
// 3. Persist the snapshot (StoreSnapshot)
// 4. Publish the snapshot to NATS (PublishSnapshot, best-effort)
func RefreshWalletWorkflow(ctx workflow.Context, input RefreshWalletInput) (*RefreshWalletResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("RefreshWalletWorkflow started", "address", input.Address)

	result := &RefreshWalletResult{
		Address:     input.Address,
		RefreshTime: workflow.Now(ctx),
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 120 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Step 1: Fetch recent transactions from Helius.
	var fetched *FetchTransactionsResult
	err := workflow.ExecuteActivity(ctx, a.FetchTransactions, FetchTransactionsInput{
		Address: input.Address,
		Limit:   input.Limit,
	}).Get(ctx, &fetched)
	if err != nil {
		errMsg := fmt.Sprintf("failed to fetch transactions: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	result.TxCount = len(fetched.Transactions)
	logger.Info("fetched transactions", "address", input.Address, "count", result.TxCount)

	// Step 2: Compute insights. An empty batch still produces a valid
	// (zeroed) snapshot, which is worth recording.
	var computed *ComputeInsightsResult
	err = workflow.ExecuteActivity(ctx, a.ComputeInsights, ComputeInsightsInput{
		Address:      input.Address,
		Timezone:     input.Timezone,
		Transactions: fetched.Transactions,
	}).Get(ctx, &computed)
	if err != nil {
		errMsg := fmt.Sprintf("failed to compute insights: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to compute insights: %w", err)
	}

	// Step 3: Persist the snapshot.
	var stored *StoreSnapshotResult
	err = workflow.ExecuteActivity(ctx, a.StoreSnapshot, StoreSnapshotInput{
		Address:   input.Address,
		Timezone:  input.Timezone,
		TxCount:   computed.TxCount,
		Insights:  computed.Insights,
		StartedAt: result.RefreshTime,
	}).Get(ctx, &stored)
	if err != nil {
		errMsg := fmt.Sprintf("failed to store snapshot: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to store snapshot: %w", err)
	}
	result.SnapshotID = stored.SnapshotID

	// Step 4: Publish to NATS. The snapshot is already persisted, so a
	// publish failure only loses the notification, not the data.
	err = workflow.ExecuteActivity(ctx, a.PublishSnapshot, PublishSnapshotInput{
		Address:    input.Address,
		Timezone:   input.Timezone,
		SnapshotID: stored.SnapshotID,
		TxCount:    computed.TxCount,
		Insights:   computed.Insights,
		ComputedAt: stored.ComputedAt,
	}).Get(ctx, nil)
	if err != nil {
		logger.Warn("failed to publish snapshot, continuing",
			"address", input.Address,
			"snapshot_id", stored.SnapshotID,
			"error", err,
		)
	}

	logger.Info("RefreshWalletWorkflow completed successfully",
		"address", input.Address,
		"tx_count", result.TxCount,
		"snapshot_id", result.SnapshotID,
	)

	return result, nil
}
