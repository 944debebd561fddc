package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// RefreshEligibleUsersWorkflow rechecks every unpaid eligible wallet, one at a
// time. A wallet whose recheck fails after retries is counted and skipped;
// only failing to list the wallets fails the run.
func RefreshEligibleUsersWorkflow(ctx workflow.Context, input RefreshEligibleUsersInput) (*RefreshEligibleUsersResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("RefreshEligibleUsersWorkflow started")

	result := &RefreshEligibleUsersResult{StartedAt: workflow.Now(ctx)}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var listed *ListEligibleWalletsResult
	if err := workflow.ExecuteActivity(ctx, a.ListEligibleWallets).Get(ctx, &listed); err != nil {
		result.FinishedAt = workflow.Now(ctx)
		recordOutcome(ctx, "error", result)
		return result, fmt.Errorf("failed to list eligible wallets: %w", err)
	}

	wallets := listed.Wallets
	if input.MaxWallets > 0 && len(wallets) > input.MaxWallets {
		wallets = wallets[:input.MaxWallets]
	}

	for _, wallet := range wallets {
		var recheck *RecheckEligibilityResult
		err := workflow.ExecuteActivity(ctx, a.RecheckEligibility, RecheckEligibilityInput{WalletAddress: wallet}).Get(ctx, &recheck)
		if err != nil {
			logger.Warn("recheck failed", "wallet", wallet, "error", err)
			result.Failed++
			result.FailedWallets = append(result.FailedWallets, wallet)
			continue
		}

		result.Checked++
		if len(recheck.Degraded) > 0 {
			result.Degraded++
		}
		if recheck.IsEligible {
			result.StillEligible++
		} else {
			result.NoLongerEligible++
		}
	}

	result.FinishedAt = workflow.Now(ctx)
	recordOutcome(ctx, "success", result)

	logger.Info("RefreshEligibleUsersWorkflow completed",
		"checked", result.Checked,
		"still_eligible", result.StillEligible,
		"failed", result.Failed,
	)
	return result, nil
}

// recordOutcome reports the run; its own failure never fails the workflow.
func recordOutcome(ctx workflow.Context, status string, result *RefreshEligibleUsersResult) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporalsdk.RetryPolicy{MaximumAttempts: 1},
	})
	err := workflow.ExecuteActivity(ctx, a.RecordRefreshOutcome, RecordRefreshOutcomeInput{
		Status: status,
		Result: *result,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("failed to record refresh outcome", "error", err)
	}
}
