package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/cashback/service/chain"
	"github.com/brojonat/cashback/service/engine"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEVMWallet = "0xAbC0000000000000000000000000000000000001"
	testSOLWallet = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
)

func TestPage(t *testing.T) {
	p := Page{}.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, defaultPageLimit, p.Limit)
	assert.Equal(t, 0, p.offset())

	p = Page{Page: 3, Limit: 500}.Normalize()
	assert.Equal(t, maxPageLimit, p.Limit)
	assert.Equal(t, 200, p.offset())

	assert.Equal(t, 0, Page{Limit: 10}.Pages(0))
	assert.Equal(t, 1, Page{Limit: 10}.Pages(10))
	assert.Equal(t, 2, Page{Limit: 10}.Pages(11))
}

func TestValidStatuses(t *testing.T) {
	assert.True(t, ValidUserStatus("ACTIVE"))
	assert.False(t, ValidUserStatus("active"))
	assert.True(t, ValidEligibleStatus("paid"))
	assert.False(t, ValidEligibleStatus("all"))
}

func TestUsers(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)
	store.Cleanup(t)

	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		u, err := store.CreateUser(ctx, CreateUserParams{WalletAddress: testEVMWallet, Chain: "ETH"})
		require.NoError(t, err)
		assert.Equal(t, testEVMWallet, u.WalletAddress)
		assert.Equal(t, UserStatusActive, u.Status)
		assert.Empty(t, u.Transactions)

		got, err := store.GetUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		byWallet, err := store.GetUserByWallet(ctx, "0xabc0000000000000000000000000000000000001")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byWallet.ID)
	})

	t.Run("duplicate wallet ignores case", func(t *testing.T) {
		_, err := store.CreateUser(ctx, CreateUserParams{WalletAddress: "0xABC0000000000000000000000000000000000001", Chain: "ETH"})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := store.GetUser(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.DeleteUser(ctx, uuid.New()), ErrNotFound)
	})

	t.Run("partial update", func(t *testing.T) {
		u, err := store.CreateUser(ctx, CreateUserParams{WalletAddress: testSOLWallet, Chain: "SOL"})
		require.NoError(t, err)

		volume := 1500.0
		status := UserStatusPending
		updated, err := store.UpdateUser(ctx, u.ID, UpdateUserParams{TotalVolume: &volume, Status: &status})
		require.NoError(t, err)
		assert.Equal(t, 1500.0, updated.TotalVolume)
		assert.Equal(t, UserStatusPending, updated.Status)
		assert.Equal(t, 0.0, updated.CashbackAmount)
	})

	t.Run("list filters and counts", func(t *testing.T) {
		users, total, err := store.ListUsers(ctx, ListUsersParams{Chain: "SOL"})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, users, 1)
		assert.Equal(t, testSOLWallet, users[0].WalletAddress)

		_, total, err = store.ListUsers(ctx, ListUsersParams{})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})

	t.Run("history attached newest first", func(t *testing.T) {
		u, err := store.GetUserByWallet(ctx, testSOLWallet)
		require.NoError(t, err)

		now := time.Now().UTC().Truncate(time.Microsecond)
		for i, hash := range []string{"older", "newer"} {
			err := store.CreateTransaction(ctx, CreateTransactionParams{
				UserID:      u.ID,
				Hash:        hash,
				Chain:       "SOL",
				FromAddress: testSOLWallet,
				ToAddress:   "tax",
				Amount:      1.5,
				IsTaxWallet: true,
				Timestamp:   now.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}

		got, err := store.GetUser(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, got.Transactions, 2)
		assert.Equal(t, "newer", got.Transactions[0].Hash)

		stats, err := store.UserStats(ctx, testSOLWallet)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TransactionCount)
		require.NotNil(t, stats.LastTransaction)
		assert.WithinDuration(t, now.Add(time.Minute), *stats.LastTransaction, time.Microsecond)
	})

	t.Run("dashboard stats", func(t *testing.T) {
		stats, err := store.DashboardStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalUsers)
		assert.Equal(t, 1, stats.ActiveUsers)
		assert.Equal(t, 1500.0, stats.TotalVolume)
	})

	t.Run("delete cascades", func(t *testing.T) {
		u, err := store.GetUserByWallet(ctx, testSOLWallet)
		require.NoError(t, err)
		require.NoError(t, store.DeleteUser(ctx, u.ID))

		_, err = store.GetUser(ctx, u.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCashbacks(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)
	store.Cleanup(t)

	ctx := context.Background()

	u, err := store.CreateUser(ctx, CreateUserParams{WalletAddress: testEVMWallet, Chain: "ETH"})
	require.NoError(t, err)

	cb, err := store.CreateCashback(ctx, u.ID, 12.5)
	require.NoError(t, err)
	assert.Equal(t, testEVMWallet, cb.UserWallet)
	assert.Equal(t, CashbackStatusPending, cb.Status)
	assert.Nil(t, cb.ProcessedAt)

	_, err = store.CreateCashback(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrNotFound)

	list, total, err := store.ListCashbacks(ctx, ListCashbacksParams{Status: CashbackStatusPending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, 12.5, list[0].Amount)

	_, total, err = store.ListCashbacks(ctx, ListCashbacksParams{Status: CashbackStatusProcessed})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestEligibleUsers(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)
	store.Cleanup(t)

	ctx := context.Background()

	first, err := store.UpsertEligibleUser(ctx, UpsertEligibleUserParams{
		WalletAddress:    testEVMWallet,
		TotalAmountSent:  55,
		CashbackAmount:   1.1,
		TransactionCount: 2,
		Transactions:     []EligibleTransaction{{Hash: "0x1", Amount: 30, Chain: "ETH", To: "tax"}},
	})
	require.NoError(t, err)
	assert.Equal(t, EligibleStatusPending, first.Status)
	require.Len(t, first.Transactions, 1)

	require.NoError(t, store.UpdateEligibleUserStatus(ctx, first.ID, EligibleStatusApproved))

	t.Run("update keeps identity and status", func(t *testing.T) {
		again, err := store.UpsertEligibleUser(ctx, UpsertEligibleUserParams{
			WalletAddress:    "0xabc0000000000000000000000000000000000001",
			TotalAmountSent:  80,
			CashbackAmount:   1.6,
			TransactionCount: 3,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, EligibleStatusApproved, again.Status)
		assert.Equal(t, 80.0, again.TotalAmountSent)
		assert.WithinDuration(t, first.EligibilityDate, again.EligibilityDate, time.Microsecond)
		assert.Empty(t, again.Transactions)
	})

	t.Run("concurrent upserts keep one row", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.UpsertEligibleUser(ctx, UpsertEligibleUserParams{
					WalletAddress:   testSOLWallet,
					TotalAmountSent: 50 + float64(i),
					CashbackAmount:  1,
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		users, err := store.ListEligibleUsers(ctx, "all")
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})

	t.Run("summary", func(t *testing.T) {
		summary, err := store.EligibleUserSummary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.TotalUsers)
		assert.Equal(t, 2, summary.ActiveUsers)
		assert.Equal(t, 1, summary.PendingUsers)
		assert.Equal(t, 1, summary.ApprovedUsers)
		assert.InDelta(t, 2.6, summary.TotalCashbackOwed, 1e-9)
	})

	t.Run("paid users leave the refresh set", func(t *testing.T) {
		require.NoError(t, store.UpdateEligibleUserStatus(ctx, first.ID, EligibleStatusPaid))

		wallets, err := store.ListEligibleWallets(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{testSOLWallet}, wallets)

		paid, err := store.ListEligibleUsers(ctx, EligibleStatusPaid)
		require.NoError(t, err)
		require.Len(t, paid, 1)
		assert.Equal(t, first.ID, paid[0].ID)
	})

	t.Run("unknown id and bad status", func(t *testing.T) {
		assert.ErrorIs(t, store.UpdateEligibleUserStatus(ctx, uuid.New(), EligibleStatusPaid), ErrNotFound)
		assert.Error(t, store.UpdateEligibleUserStatus(ctx, first.ID, "bogus"))
	})
}

func TestUpsertParamsFromResult(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	params := UpsertParamsFromResult(engine.EligibilityResult{
		WalletAddress:    testEVMWallet,
		IsEligible:       true,
		TotalAmountSent:  55,
		CashbackAmount:   1.1,
		TransactionCount: 1,
		Transactions: []chain.TransactionRecord{
			{Hash: "0x1", From: testEVMWallet, To: "0xtax", Amount: 0.02, USDValue: 55, Chain: chain.ETH, Timestamp: ts, IsTaxWallet: true},
		},
	})

	assert.Equal(t, testEVMWallet, params.WalletAddress)
	assert.Equal(t, 55.0, params.TotalAmountSent)
	require.Len(t, params.Transactions, 1)
	assert.Equal(t, EligibleTransaction{Hash: "0x1", Amount: 0.02, Chain: "ETH", Timestamp: ts, To: "0xtax"}, params.Transactions[0])

	empty := UpsertParamsFromResult(engine.EligibilityResult{WalletAddress: testEVMWallet})
	assert.NotNil(t, empty.Transactions)
}
