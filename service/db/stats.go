package db

import (
	"context"
	"fmt"
	"time"
)

// DashboardStats aggregates the users table for the realtime dashboard.
type DashboardStats struct {
	TotalUsers    int     `json:"totalUsers"`
	ActiveUsers   int     `json:"activeUsers"`
	TotalVolume   float64 `json:"totalVolume"`
	TotalCashback float64 `json:"totalCashback"`
}

// UserStats is the realtime view of a single user.
type UserStats struct {
	TotalVolume      float64    `json:"totalVolume"`
	CashbackAmount   float64    `json:"cashbackAmount"`
	TransactionCount int        `json:"transactionCount"`
	LastTransaction  *time.Time `json:"lastTransaction"`
	Status           string     `json:"status"`
	IsEligible       bool       `json:"isEligible"`
}

// DashboardStats returns user counts and volume totals.
func (s *Store) DashboardStats(ctx context.Context) (stats DashboardStats, err error) {
	start := time.Now()
	defer func() { s.observe("dashboard_stats", "users", start, err) }()

	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $1),
			COALESCE(SUM(total_volume), 0)::float8,
			COALESCE(SUM(cashback_amount), 0)::float8
		FROM users`, UserStatusActive).Scan(
		&stats.TotalUsers, &stats.ActiveUsers, &stats.TotalVolume, &stats.TotalCashback)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("failed to compute dashboard stats: %w", err)
	}
	return stats, nil
}

// UserStats returns the realtime figures for the user owning wallet.
// An unregistered wallet yields ErrNotFound.
func (s *Store) UserStats(ctx context.Context, wallet string) (UserStats, error) {
	u, err := s.GetUserByWallet(ctx, wallet)
	if err != nil {
		return UserStats{}, err
	}
	stats := UserStats{
		TotalVolume:      u.TotalVolume,
		CashbackAmount:   u.CashbackAmount,
		TransactionCount: len(u.Transactions),
		Status:           u.Status,
		IsEligible:       u.CashbackEligible > 0,
	}
	if len(u.Transactions) > 0 {
		ts := u.Transactions[0].Timestamp
		stats.LastTransaction = &ts
	}
	return stats, nil
}
