package temporal

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/brojonat/cashback/service/chain"
	"github.com/brojonat/cashback/service/db"
	"github.com/brojonat/cashback/service/engine"
	natspkg "github.com/brojonat/cashback/service/nats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListEligibleWallets(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) UpsertEligibleUser(ctx context.Context, params db.UpsertEligibleUserParams) (*db.EligibleUser, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.EligibleUser), args.Error(1)
}

type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) CheckEligibility(ctx context.Context, address string) engine.EligibilityResult {
	args := m.Called(ctx, address)
	return args.Get(0).(engine.EligibilityResult)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func eligibleResult(wallet string) engine.EligibilityResult {
	return engine.EligibilityResult{
		WalletAddress:    wallet,
		IsEligible:       true,
		TotalAmountSent:  55,
		CashbackAmount:   1.1,
		TransactionCount: 2,
		CheckedAt:        time.Now().UTC(),
		Unit:             engine.UnitUSD,
		Degraded:         []chain.Chain{},
	}
}

func TestListEligibleWallets(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		store := new(MockStore)
		store.On("ListEligibleWallets", mock.Anything).Return([]string{"w1", "w2"}, nil)

		acts := NewActivities(store, new(MockChecker), nil, nil, testLogger())
		result, err := acts.ListEligibleWallets(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"w1", "w2"}, result.Wallets)
	})

	t.Run("store error", func(t *testing.T) {
		store := new(MockStore)
		store.On("ListEligibleWallets", mock.Anything).Return(nil, errors.New("connection refused"))

		acts := NewActivities(store, new(MockChecker), nil, nil, testLogger())
		_, err := acts.ListEligibleWallets(ctx)
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestRecheckEligibility(t *testing.T) {
	ctx := context.Background()
	const wallet = "0xabc0000000000000000000000000000000000001"

	t.Run("still eligible upserts and publishes", func(t *testing.T) {
		check := eligibleResult(wallet)
		checker := new(MockChecker)
		checker.On("CheckEligibility", mock.Anything, wallet).Return(check)
		store := new(MockStore)
		store.On("UpsertEligibleUser", mock.Anything, db.UpsertParamsFromResult(check)).Return(&db.EligibleUser{}, nil)
		publisher := natspkg.NewMockPublisher()

		acts := NewActivities(store, checker, publisher, nil, testLogger())
		result, err := acts.RecheckEligibility(ctx, RecheckEligibilityInput{WalletAddress: wallet})
		require.NoError(t, err)

		assert.True(t, result.IsEligible)
		assert.True(t, result.Upserted)
		assert.True(t, result.Published)
		assert.Equal(t, 1.1, result.CashbackAmount)
		require.Len(t, publisher.GetPublishedEventsForWallet(wallet), 1)
		store.AssertExpectations(t)
	})

	t.Run("no longer eligible leaves the row alone", func(t *testing.T) {
		checker := new(MockChecker)
		checker.On("CheckEligibility", mock.Anything, wallet).Return(engine.EligibilityResult{
			WalletAddress:   wallet,
			TotalAmountSent: 20,
			Degraded:        []chain.Chain{chain.ETH},
		})
		store := new(MockStore)
		publisher := natspkg.NewMockPublisher()

		acts := NewActivities(store, checker, publisher, nil, testLogger())
		result, err := acts.RecheckEligibility(ctx, RecheckEligibilityInput{WalletAddress: wallet})
		require.NoError(t, err)

		assert.False(t, result.IsEligible)
		assert.False(t, result.Upserted)
		assert.Equal(t, []string{"ETH"}, result.Degraded)
		assert.Equal(t, 0, publisher.GetPublishedEventCount())
		store.AssertNotCalled(t, "UpsertEligibleUser", mock.Anything, mock.Anything)
	})

	t.Run("upsert failure fails the activity", func(t *testing.T) {
		checker := new(MockChecker)
		checker.On("CheckEligibility", mock.Anything, wallet).Return(eligibleResult(wallet))
		store := new(MockStore)
		store.On("UpsertEligibleUser", mock.Anything, mock.Anything).Return(nil, errors.New("deadlock"))

		acts := NewActivities(store, checker, natspkg.NewMockPublisher(), nil, testLogger())
		_, err := acts.RecheckEligibility(ctx, RecheckEligibilityInput{WalletAddress: wallet})
		assert.ErrorContains(t, err, "deadlock")
	})

	t.Run("publish failure is tolerated", func(t *testing.T) {
		checker := new(MockChecker)
		checker.On("CheckEligibility", mock.Anything, wallet).Return(eligibleResult(wallet))
		store := new(MockStore)
		store.On("UpsertEligibleUser", mock.Anything, mock.Anything).Return(&db.EligibleUser{}, nil)
		publisher := natspkg.NewMockPublisher()
		publisher.SetPublishError(errors.New("nats down"))

		acts := NewActivities(store, checker, publisher, nil, testLogger())
		result, err := acts.RecheckEligibility(ctx, RecheckEligibilityInput{WalletAddress: wallet})
		require.NoError(t, err)
		assert.True(t, result.Upserted)
		assert.False(t, result.Published)
	})

	t.Run("no publisher configured", func(t *testing.T) {
		checker := new(MockChecker)
		checker.On("CheckEligibility", mock.Anything, wallet).Return(eligibleResult(wallet))
		store := new(MockStore)
		store.On("UpsertEligibleUser", mock.Anything, mock.Anything).Return(&db.EligibleUser{}, nil)

		acts := NewActivities(store, checker, nil, nil, testLogger())
		result, err := acts.RecheckEligibility(ctx, RecheckEligibilityInput{WalletAddress: wallet})
		require.NoError(t, err)
		assert.False(t, result.Published)
	})
}

func TestRecordRefreshOutcome(t *testing.T) {
	acts := NewActivities(new(MockStore), new(MockChecker), nil, nil, testLogger())
	start := time.Now()
	err := acts.RecordRefreshOutcome(context.Background(), RecordRefreshOutcomeInput{
		Status: "success",
		Result: RefreshEligibleUsersResult{Checked: 2, StartedAt: start, FinishedAt: start.Add(time.Second)},
	})
	assert.NoError(t, err)
}

func TestMockScheduler(t *testing.T) {
	ctx := context.Background()
	m := NewMockScheduler()

	assert.Error(t, m.DeleteRefreshSchedule(ctx))

	require.NoError(t, m.UpsertRefreshSchedule(ctx, 15*time.Minute))
	require.NoError(t, m.UpsertRefreshSchedule(ctx, 5*time.Minute))
	interval, ok := m.ScheduleInterval()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, interval)

	id, err := m.TriggerRefresh(ctx)
	require.NoError(t, err)
	assert.Contains(t, id, RefreshScheduleID)
	assert.Equal(t, 1, m.TriggerCount())

	require.NoError(t, m.DeleteRefreshSchedule(ctx))
	assert.False(t, m.ScheduleExists())

	m.SetUpsertError(errors.New("boom"))
	assert.Error(t, m.UpsertRefreshSchedule(ctx, time.Minute))
	m.Reset()
	assert.NoError(t, m.UpsertRefreshSchedule(ctx, time.Minute))
}
