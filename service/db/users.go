package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// User statuses.
const (
	UserStatusActive    = "ACTIVE"
	UserStatusPending   = "PENDING"
	UserStatusProcessed = "PROCESSED"
	UserStatusSuspended = "SUSPENDED"
)

// ValidUserStatus reports whether s is a known user status.
func ValidUserStatus(s string) bool {
	switch s {
	case UserStatusActive, UserStatusPending, UserStatusProcessed, UserStatusSuspended:
		return true
	}
	return false
}

// User is a registered trader.
type User struct {
	ID               uuid.UUID      `json:"id"`
	WalletAddress    string         `json:"walletAddress"`
	Chain            string         `json:"chain"`
	TotalVolume      float64        `json:"totalVolume"`
	CashbackEligible float64        `json:"cashbackEligible"`
	CashbackAmount   float64        `json:"cashbackAmount"`
	Status           string         `json:"status"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	Transactions     []*Transaction `json:"transactions"`
	Cashbacks        []*Cashback    `json:"cashbacks"`
}

// Transaction is a stored transfer attributed to a user.
type Transaction struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	Hash        string    `json:"hash"`
	Chain       string    `json:"chain"`
	FromAddress string    `json:"from"`
	ToAddress   string    `json:"to"`
	Amount      float64   `json:"amount"`
	IsTaxWallet bool      `json:"isTaxWallet"`
	Timestamp   time.Time `json:"timestamp"`
}

// ListUsersParams filters and pages ListUsers. Empty filters match everything.
type ListUsersParams struct {
	Status string
	Chain  string
	Page   Page
}

// CreateUserParams contains the parameters for creating a user.
type CreateUserParams struct {
	WalletAddress string `json:"walletAddress"`
	Chain         string `json:"chain"`
}

// UpdateUserParams holds a partial update; nil fields are left unchanged.
type UpdateUserParams struct {
	TotalVolume      *float64 `json:"totalVolume,omitempty"`
	CashbackEligible *float64 `json:"cashbackEligible,omitempty"`
	CashbackAmount   *float64 `json:"cashbackAmount,omitempty"`
	Status           *string  `json:"status,omitempty"`
}

// CreateTransactionParams contains the parameters for recording a transfer.
type CreateTransactionParams struct {
	UserID      uuid.UUID
	Hash        string
	Chain       string
	FromAddress string
	ToAddress   string
	Amount      float64
	IsTaxWallet bool
	Timestamp   time.Time
}

const userColumns = `id, wallet_address, chain, total_volume::float8, cashback_eligible::float8,
	cashback_amount::float8, status, created_at, updated_at`

const (
	recentTransactionLimit = 5
	recentCashbackLimit    = 5
)

func scanUser(row pgx.Row) (*User, error) {
	u := &User{Transactions: []*Transaction{}, Cashbacks: []*Cashback{}}
	err := row.Scan(&u.ID, &u.WalletAddress, &u.Chain, &u.TotalVolume, &u.CashbackEligible,
		&u.CashbackAmount, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ListUsers returns one page of users, newest first, each with its five most
// recent transactions and cashbacks, plus the total number of matching users.
func (s *Store) ListUsers(ctx context.Context, params ListUsersParams) (users []*User, total int, err error) {
	start := time.Now()
	defer func() { s.observe("list", "users", start, err) }()

	page := params.Page.Normalize()
	where := `WHERE ($1 = '' OR status = $1) AND ($2 = '' OR chain = $2)`

	if err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users `+where, params.Status, params.Chain).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users `+where+` ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		params.Status, params.Chain, page.Limit, page.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	users, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (*User, error) { return scanUser(r) })
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan users: %w", err)
	}

	for _, u := range users {
		if err = s.attachHistory(ctx, u, recentTransactionLimit, recentCashbackLimit); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

// GetUser returns a user with its full transaction and cashback history.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (u *User, err error) {
	start := time.Now()
	defer func() { s.observe("get", "users", start, err) }()

	u, err = scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if err = s.attachHistory(ctx, u, 0, 0); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByWallet looks a user up by wallet address, ignoring case, with its
// ten most recent transactions and five most recent cashbacks.
func (s *Store) GetUserByWallet(ctx context.Context, address string) (u *User, err error) {
	start := time.Now()
	defer func() { s.observe("get_by_wallet", "users", start, err) }()

	u, err = scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE wallet_key = $1`, walletKey(address)))
	if err != nil {
		return nil, notFound(err)
	}
	if err = s.attachHistory(ctx, u, 10, recentCashbackLimit); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser registers a wallet. A wallet that is already registered,
// in any letter case, yields ErrAlreadyExists.
func (s *Store) CreateUser(ctx context.Context, params CreateUserParams) (u *User, err error) {
	start := time.Now()
	defer func() { s.observe("create", "users", start, err) }()

	address := strings.TrimSpace(params.WalletAddress)
	u, err = scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (id, wallet_address, wallet_key, chain)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		uuid.New(), address, walletKey(address), params.Chain))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// UpdateUser applies a partial update and returns the updated user.
func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, params UpdateUserParams) (u *User, err error) {
	start := time.Now()
	defer func() { s.observe("update", "users", start, err) }()

	u, err = scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET
			total_volume      = COALESCE($2, total_volume),
			cashback_eligible = COALESCE($3, cashback_eligible),
			cashback_amount   = COALESCE($4, cashback_amount),
			status            = COALESCE($5, status),
			updated_at        = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		id, params.TotalVolume, params.CashbackEligible, params.CashbackAmount, params.Status))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// DeleteUser removes a user together with its transactions and cashbacks.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", "users", start, err) }()

	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateTransaction records a transfer for a user. Recording the same hash
// twice is a no-op.
func (s *Store) CreateTransaction(ctx context.Context, params CreateTransactionParams) (err error) {
	start := time.Now()
	defer func() { s.observe("create", "transactions", start, err) }()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO transactions (id, user_id, hash, chain, from_address, to_address, amount, is_tax_wallet, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chain, hash, user_id) DO NOTHING`,
		uuid.New(), params.UserID, params.Hash, params.Chain, params.FromAddress, params.ToAddress,
		params.Amount, params.IsTaxWallet, params.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// attachHistory loads u's transactions and cashbacks, newest first.
// A limit of zero loads everything.
func (s *Store) attachHistory(ctx context.Context, u *User, txLimit, cbLimit int) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, hash, chain, from_address, to_address, amount::float8, is_tax_wallet, timestamp
		FROM transactions WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT NULLIF($2, 0)`, u.ID, txLimit)
	if err != nil {
		return fmt.Errorf("failed to list user transactions: %w", err)
	}
	txs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (*Transaction, error) {
		t := &Transaction{}
		err := r.Scan(&t.ID, &t.UserID, &t.Hash, &t.Chain, &t.FromAddress, &t.ToAddress, &t.Amount, &t.IsTaxWallet, &t.Timestamp)
		return t, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan user transactions: %w", err)
	}

	rows, err = s.pool.Query(ctx, `SELECT `+cashbackColumns+` FROM cashbacks WHERE user_id = $1
		ORDER BY created_at DESC LIMIT NULLIF($2, 0)`, u.ID, cbLimit)
	if err != nil {
		return fmt.Errorf("failed to list user cashbacks: %w", err)
	}
	cbs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (*Cashback, error) { return scanCashback(r) })
	if err != nil {
		return fmt.Errorf("failed to scan user cashbacks: %w", err)
	}

	u.Transactions = txs
	u.Cashbacks = cbs
	return nil
}
