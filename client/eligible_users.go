package client

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// EligibleUser is a wallet recorded as owed cashback.
type EligibleUser struct {
	ID               string    `json:"id"`
	WalletAddress    string    `json:"walletAddress"`
	TotalAmountSent  float64   `json:"totalAmountSent"`
	CashbackAmount   float64   `json:"cashbackAmount"`
	TransactionCount int       `json:"transactionCount"`
	Status           string    `json:"status"`
	EligibilityDate  time.Time `json:"eligibilityDate"`
	LastChecked      time.Time `json:"lastChecked"`
}

// EligibleSummary aggregates every eligible user regardless of filter.
type EligibleSummary struct {
	TotalUsers        int     `json:"totalUsers"`
	ActiveUsers       int     `json:"activeUsers"`
	TotalCashbackOwed float64 `json:"totalCashbackOwed"`
	PendingUsers      int     `json:"pendingUsers"`
	ApprovedUsers     int     `json:"approvedUsers"`
	PaidUsers         int     `json:"paidUsers"`
}

// EligibleUsers is the response of ListEligibleUsers.
type EligibleUsers struct {
	Users   []EligibleUser  `json:"users"`
	Summary EligibleSummary `json:"summary"`
}

// ListEligibleUsers lists eligible users with the given status; empty or
// "all" lists everyone.
func (c *Client) ListEligibleUsers(ctx context.Context, status string) (*EligibleUsers, error) {
	path := "/api/v1/eligible-users"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var resp EligibleUsers
	if err := c.doJSON(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateEligibleUserStatus moves an eligible user to pending, approved or paid.
func (c *Client) UpdateEligibleUserStatus(ctx context.Context, id, status string) error {
	req := map[string]string{"userId": id, "status": status}
	if err := c.doJSON(ctx, http.MethodPut, "/api/v1/eligible-users", req, http.StatusOK, nil); err != nil {
		return err
	}
	c.logger.Debug("eligible user status updated", "id", id, "status", status)
	return nil
}
