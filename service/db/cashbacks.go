package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Cashback statuses.
const (
	CashbackStatusPending   = "PENDING"
	CashbackStatusProcessed = "PROCESSED"
	CashbackStatusFailed    = "FAILED"
)

// Cashback is a payout owed or made to a user.
type Cashback struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"userId"`
	UserWallet  string     `json:"userWallet"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"`
	TxHash      *string    `json:"txHash"`
	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt"`
}

// ListCashbacksParams filters and pages ListCashbacks.
type ListCashbacksParams struct {
	Status string
	Page   Page
}

const cashbackColumns = `id, user_id, user_wallet, amount::float8, status, tx_hash, created_at, processed_at`

func scanCashback(row pgx.Row) (*Cashback, error) {
	c := &Cashback{}
	if err := row.Scan(&c.ID, &c.UserID, &c.UserWallet, &c.Amount, &c.Status, &c.TxHash, &c.CreatedAt, &c.ProcessedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCashbacks returns one page of cashbacks, newest first, and the total
// number of matching rows.
func (s *Store) ListCashbacks(ctx context.Context, params ListCashbacksParams) (cashbacks []*Cashback, total int, err error) {
	start := time.Now()
	defer func() { s.observe("list", "cashbacks", start, err) }()

	page := params.Page.Normalize()
	if err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cashbacks WHERE ($1 = '' OR status = $1)`, params.Status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count cashbacks: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+cashbackColumns+` FROM cashbacks
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		params.Status, page.Limit, page.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list cashbacks: %w", err)
	}
	cashbacks, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (*Cashback, error) { return scanCashback(r) })
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan cashbacks: %w", err)
	}
	return cashbacks, total, nil
}

// CreateCashback records a pending cashback for userID. An unknown user
// yields ErrNotFound.
func (s *Store) CreateCashback(ctx context.Context, userID uuid.UUID, amount float64) (c *Cashback, err error) {
	start := time.Now()
	defer func() { s.observe("create", "cashbacks", start, err) }()

	c, err = scanCashback(s.pool.QueryRow(ctx, `
		INSERT INTO cashbacks (id, user_id, user_wallet, amount, status)
		SELECT $1, u.id, u.wallet_address, $3, $4 FROM users u WHERE u.id = $2
		RETURNING `+cashbackColumns,
		uuid.New(), userID, amount, CashbackStatusPending))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}
