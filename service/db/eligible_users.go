package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/cashback/service/engine"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Eligible user statuses.
const (
	EligibleStatusPending  = "pending"
	EligibleStatusApproved = "approved"
	EligibleStatusPaid     = "paid"
)

// ValidEligibleStatus reports whether s is a known eligible-user status.
func ValidEligibleStatus(s string) bool {
	switch s {
	case EligibleStatusPending, EligibleStatusApproved, EligibleStatusPaid:
		return true
	}
	return false
}

// EligibleTransaction is the stored projection of a qualifying transfer.
type EligibleTransaction struct {
	Hash      string    `json:"hash"`
	Amount    float64   `json:"amount"`
	Chain     string    `json:"chain"`
	Timestamp time.Time `json:"timestamp"`
	To        string    `json:"to"`
}

// EligibleUser is a wallet that qualified for cashback.
type EligibleUser struct {
	ID               uuid.UUID             `json:"id"`
	WalletAddress    string                `json:"walletAddress"`
	TotalAmountSent  float64               `json:"totalAmountSent"`
	CashbackAmount   float64               `json:"cashbackAmount"`
	TransactionCount int                   `json:"transactionCount"`
	Transactions     []EligibleTransaction `json:"transactions"`
	Status           string                `json:"status"`
	EligibilityDate  time.Time             `json:"eligibilityDate"`
	LastChecked      time.Time             `json:"lastChecked"`
}

// UpsertEligibleUserParams carries the latest eligibility figures for a wallet.
type UpsertEligibleUserParams struct {
	WalletAddress    string                `json:"walletAddress"`
	TotalAmountSent  float64               `json:"totalAmountSent"`
	CashbackAmount   float64               `json:"cashbackAmount"`
	TransactionCount int                   `json:"transactionCount"`
	Transactions     []EligibleTransaction `json:"transactions"`
}

// EligibleSummary aggregates the eligible users table.
type EligibleSummary struct {
	TotalUsers        int     `json:"totalUsers"`
	ActiveUsers       int     `json:"activeUsers"`
	TotalCashbackOwed float64 `json:"totalCashbackOwed"`
	PendingUsers      int     `json:"pendingUsers"`
	ApprovedUsers     int     `json:"approvedUsers"`
	PaidUsers         int     `json:"paidUsers"`
}

// UpsertParamsFromResult projects an eligibility result onto the stored row.
func UpsertParamsFromResult(r engine.EligibilityResult) UpsertEligibleUserParams {
	txs := make([]EligibleTransaction, 0, len(r.Transactions))
	for _, tx := range r.Transactions {
		txs = append(txs, EligibleTransaction{
			Hash:      tx.Hash,
			Amount:    tx.Amount,
			Chain:     string(tx.Chain),
			Timestamp: tx.Timestamp,
			To:        tx.To,
		})
	}
	return UpsertEligibleUserParams{
		WalletAddress:    r.WalletAddress,
		TotalAmountSent:  r.TotalAmountSent,
		CashbackAmount:   r.CashbackAmount,
		TransactionCount: r.TransactionCount,
		Transactions:     txs,
	}
}

const eligibleColumns = `id, wallet_address, total_amount_sent::float8, cashback_amount::float8,
	transaction_count, transactions, status, eligibility_date, last_checked`

func scanEligibleUser(row pgx.Row) (*EligibleUser, error) {
	u := &EligibleUser{}
	var raw []byte
	err := row.Scan(&u.ID, &u.WalletAddress, &u.TotalAmountSent, &u.CashbackAmount,
		&u.TransactionCount, &raw, &u.Status, &u.EligibilityDate, &u.LastChecked)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &u.Transactions); err != nil {
		return nil, fmt.Errorf("failed to decode eligible transactions: %w", err)
	}
	if u.Transactions == nil {
		u.Transactions = []EligibleTransaction{}
	}
	return u, nil
}

// UpsertEligibleUser inserts or refreshes the row for a wallet in a single
// statement. Wallets are matched ignoring case. On update the figures and
// last_checked change while id, status and eligibility_date are kept.
func (s *Store) UpsertEligibleUser(ctx context.Context, params UpsertEligibleUserParams) (u *EligibleUser, err error) {
	start := time.Now()
	defer func() { s.observe("upsert", "eligible_users", start, err) }()

	address := strings.TrimSpace(params.WalletAddress)
	if address == "" {
		return nil, fmt.Errorf("wallet address is required")
	}
	txs := params.Transactions
	if txs == nil {
		txs = []EligibleTransaction{}
	}
	raw, err := json.Marshal(txs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode eligible transactions: %w", err)
	}

	u, err = scanEligibleUser(s.pool.QueryRow(ctx, `
		INSERT INTO eligible_users (id, wallet_address, wallet_key, total_amount_sent, cashback_amount,
			transaction_count, transactions, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (wallet_key) DO UPDATE SET
			wallet_address    = EXCLUDED.wallet_address,
			total_amount_sent = EXCLUDED.total_amount_sent,
			cashback_amount   = EXCLUDED.cashback_amount,
			transaction_count = EXCLUDED.transaction_count,
			transactions      = EXCLUDED.transactions,
			last_checked      = NOW()
		RETURNING `+eligibleColumns,
		uuid.New(), address, walletKey(address), params.TotalAmountSent, params.CashbackAmount,
		params.TransactionCount, raw, EligibleStatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert eligible user: %w", err)
	}
	return u, nil
}

// ListEligibleUsers returns eligible users, most recently qualified first.
// An empty status or "all" lists every user.
func (s *Store) ListEligibleUsers(ctx context.Context, status string) (users []*EligibleUser, err error) {
	start := time.Now()
	defer func() { s.observe("list", "eligible_users", start, err) }()

	if status == "all" {
		status = ""
	}
	rows, err := s.pool.Query(ctx, `SELECT `+eligibleColumns+` FROM eligible_users
		WHERE ($1 = '' OR status = $1)
		ORDER BY eligibility_date DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible users: %w", err)
	}
	users, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (*EligibleUser, error) { return scanEligibleUser(r) })
	if err != nil {
		return nil, fmt.Errorf("failed to scan eligible users: %w", err)
	}
	return users, nil
}

// ListEligibleWallets returns the wallet address of every unpaid eligible user.
func (s *Store) ListEligibleWallets(ctx context.Context) (wallets []string, err error) {
	start := time.Now()
	defer func() { s.observe("list_wallets", "eligible_users", start, err) }()

	rows, err := s.pool.Query(ctx, `SELECT wallet_address FROM eligible_users
		WHERE status <> $1 ORDER BY last_checked ASC`, EligibleStatusPaid)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible wallets: %w", err)
	}
	wallets, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan eligible wallets: %w", err)
	}
	return wallets, nil
}

// EligibleUserSummary counts eligible users by status. Owed cashback covers
// every user not yet paid.
func (s *Store) EligibleUserSummary(ctx context.Context) (summary EligibleSummary, err error) {
	start := time.Now()
	defer func() { s.observe("summary", "eligible_users", start, err) }()

	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('pending', 'approved')),
			COALESCE(SUM(cashback_amount) FILTER (WHERE status <> 'paid'), 0)::float8,
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'approved'),
			COUNT(*) FILTER (WHERE status = 'paid')
		FROM eligible_users`).Scan(
		&summary.TotalUsers, &summary.ActiveUsers, &summary.TotalCashbackOwed,
		&summary.PendingUsers, &summary.ApprovedUsers, &summary.PaidUsers)
	if err != nil {
		return EligibleSummary{}, fmt.Errorf("failed to summarize eligible users: %w", err)
	}
	return summary, nil
}

// UpdateEligibleUserStatus sets the payout status of one eligible user.
func (s *Store) UpdateEligibleUserStatus(ctx context.Context, id uuid.UUID, status string) (err error) {
	start := time.Now()
	defer func() { s.observe("update_status", "eligible_users", start, err) }()

	if !ValidEligibleStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE eligible_users SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update eligible user status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
