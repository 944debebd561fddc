package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/cashback/service/db"
	"github.com/brojonat/cashback/service/engine"
	"github.com/brojonat/cashback/service/metrics"
	natspkg "github.com/brojonat/cashback/service/nats"
)

// RefreshEligibleUsersInput contains the input for one refresh run.
type RefreshEligibleUsersInput struct {
	// MaxWallets caps how many wallets one run rechecks. Zero means no cap.
	MaxWallets int `json:"max_wallets"`
}

// RefreshEligibleUsersResult summarizes one refresh run.
type RefreshEligibleUsersResult struct {
	Checked          int       `json:"checked"`
	StillEligible    int       `json:"still_eligible"`
	NoLongerEligible int       `json:"no_longer_eligible"`
	Degraded         int       `json:"degraded"`
	Failed           int       `json:"failed"`
	FailedWallets    []string  `json:"failed_wallets,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// ListEligibleWalletsResult contains the wallets due for a recheck.
type ListEligibleWalletsResult struct {
	Wallets []string `json:"wallets"`
}

// RecheckEligibilityInput contains parameters for the RecheckEligibility activity.
type RecheckEligibilityInput struct {
	WalletAddress string `json:"wallet_address"`
}

// RecheckEligibilityResult contains the outcome of one recheck.
type RecheckEligibilityResult struct {
	WalletAddress   string   `json:"wallet_address"`
	IsEligible      bool     `json:"is_eligible"`
	TotalAmountSent float64  `json:"total_amount_sent"`
	CashbackAmount  float64  `json:"cashback_amount"`
	Degraded        []string `json:"degraded,omitempty"`
	Upserted        bool     `json:"upserted"`
	Published       bool     `json:"published"`
}

// RecordRefreshOutcomeInput carries the finished run for metrics and logging.
type RecordRefreshOutcomeInput struct {
	Status string                     `json:"status"`
	Result RefreshEligibleUsersResult `json:"result"`
}

// StoreInterface defines the database operations needed by activities.
type StoreInterface interface {
	ListEligibleWallets(ctx context.Context) ([]string, error)
	UpsertEligibleUser(ctx context.Context, params db.UpsertEligibleUserParams) (*db.EligibleUser, error)
}

// EligibilityChecker evaluates a wallet against the cashback rule.
type EligibilityChecker interface {
	CheckEligibility(ctx context.Context, address string) engine.EligibilityResult
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishEligibility(ctx context.Context, event *natspkg.EligibilityEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	store     StoreInterface
	checker   EligibilityChecker
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// publisher and m may be nil.
func NewActivities(store StoreInterface, checker EligibilityChecker, publisher PublisherInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:     store,
		checker:   checker,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

func (a *Activities) observe(activity string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordActivityDuration(activity, status, time.Since(start).Seconds())
}

// ListEligibleWallets returns every unpaid eligible wallet, least recently
// checked first.
func (a *Activities) ListEligibleWallets(ctx context.Context) (result *ListEligibleWalletsResult, err error) {
	start := time.Now()
	defer func() { a.observe("ListEligibleWallets", start, err) }()

	wallets, err := a.store.ListEligibleWallets(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to list eligible wallets", "error", err)
		return nil, fmt.Errorf("failed to list eligible wallets: %w", err)
	}

	a.logger.InfoContext(ctx, "listed eligible wallets", "count", len(wallets))
	return &ListEligibleWalletsResult{Wallets: wallets}, nil
}

// RecheckEligibility reevaluates one wallet. A wallet that is still eligible
// has its stored figures refreshed and an event published. A wallet that no
// longer qualifies is left untouched so that its payout status survives.
func (a *Activities) RecheckEligibility(ctx context.Context, input RecheckEligibilityInput) (result *RecheckEligibilityResult, err error) {
	start := time.Now()
	defer func() { a.observe("RecheckEligibility", start, err) }()

	check := a.checker.CheckEligibility(ctx, input.WalletAddress)
	result = &RecheckEligibilityResult{
		WalletAddress:   input.WalletAddress,
		IsEligible:      check.IsEligible,
		TotalAmountSent: check.TotalAmountSent,
		CashbackAmount:  check.CashbackAmount,
	}
	for _, c := range check.Degraded {
		result.Degraded = append(result.Degraded, string(c))
	}

	if !check.IsEligible {
		a.logger.InfoContext(ctx, "wallet no longer eligible",
			"wallet", input.WalletAddress,
			"total", check.TotalAmountSent,
			"degraded", result.Degraded,
		)
		return result, nil
	}

	if _, err := a.store.UpsertEligibleUser(ctx, db.UpsertParamsFromResult(check)); err != nil {
		a.logger.ErrorContext(ctx, "failed to refresh eligible user", "wallet", input.WalletAddress, "error", err)
		return nil, fmt.Errorf("failed to refresh eligible user: %w", err)
	}
	result.Upserted = true

	if a.publisher != nil {
		if err := a.publisher.PublishEligibility(ctx, natspkg.FromEligibilityResult(check)); err != nil {
			a.logger.WarnContext(ctx, "failed to publish eligibility event", "wallet", input.WalletAddress, "error", err)
		} else {
			result.Published = true
		}
	}

	a.logger.InfoContext(ctx, "rechecked eligible wallet",
		"wallet", input.WalletAddress,
		"cashback", check.CashbackAmount,
		"published", result.Published,
	)
	return result, nil
}

// RecordRefreshOutcome records the duration and counts of a finished run.
func (a *Activities) RecordRefreshOutcome(ctx context.Context, input RecordRefreshOutcomeInput) error {
	r := input.Result
	a.metrics.RecordWorkflowDuration(input.Status, r.FinishedAt.Sub(r.StartedAt).Seconds())
	a.logger.InfoContext(ctx, "eligible users refreshed",
		"status", input.Status,
		"checked", r.Checked,
		"still_eligible", r.StillEligible,
		"no_longer_eligible", r.NoLongerEligible,
		"degraded", r.Degraded,
		"failed", r.Failed,
	)
	return nil
}
