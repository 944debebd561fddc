package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/brojonat/cashback/service/chain"
	"github.com/brojonat/cashback/service/db"
	"github.com/google/uuid"
)

// pagination is the paging block returned by list endpoints.
type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// parsePage reads page and limit query parameters.
func parsePage(r *http.Request) (db.Page, error) {
	var p db.Page
	query := r.URL.Query()
	if s := query.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return p, errorf("invalid page parameter: must be a positive integer")
		}
		p.Page = n
	}
	if s := query.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return p, errorf("invalid limit parameter: must be a positive integer")
		}
		p.Limit = n
	}
	return p, nil
}

func pageInfo(p db.Page, total int) pagination {
	p = p.Normalize()
	return pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: p.Pages(total)}
}

// parseID reads the {id} path value as a UUID.
func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, errorf("invalid id: must be a UUID")
	}
	return id, nil
}

// handleListUsers returns a handler that lists users.
// GET /api/v1/users?status={status}&chain={chain}&page={n}&limit={n}
func handleListUsers(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, err := parsePage(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		params := db.ListUsersParams{
			Status: r.URL.Query().Get("status"),
			Chain:  strings.ToUpper(r.URL.Query().Get("chain")),
			Page:   page,
		}
		if params.Status != "" && !db.ValidUserStatus(params.Status) {
			writeError(w, "invalid status: must be ACTIVE, PENDING, PROCESSED or SUSPENDED", http.StatusBadRequest)
			return
		}

		users, total, err := store.ListUsers(r.Context(), params)
		if err != nil {
			logger.Error("failed to list users", "error", err)
			writeError(w, "failed to fetch users", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"users":      users,
			"pagination": pageInfo(page, total),
		}, http.StatusOK)
	})
}

// handleCreateUser returns a handler that registers a user.
// POST /api/v1/users
func handleCreateUser(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req db.CreateUserParams
		if !decodeBody(w, r, &req, logger) {
			return
		}

		if strings.TrimSpace(req.WalletAddress) == "" {
			writeError(w, "wallet address is required", http.StatusBadRequest)
			return
		}
		c, err := chain.ParseChain(req.Chain)
		if err != nil {
			writeError(w, "invalid chain: must be SOL, ETH or BNB", http.StatusBadRequest)
			return
		}
		req.Chain = string(c)

		user, err := store.CreateUser(r.Context(), req)
		if err != nil {
			if errors.Is(err, db.ErrAlreadyExists) {
				writeError(w, "user already exists", http.StatusConflict)
				return
			}
			logger.Error("failed to create user", "wallet", req.WalletAddress, "error", err)
			writeError(w, "failed to create user", http.StatusInternalServerError)
			return
		}

		logger.Info("user created", "id", user.ID, "wallet", user.WalletAddress, "chain", user.Chain)
		writeJSON(w, user, http.StatusCreated)
	})
}

// handleGetUser returns a handler that fetches one user with full history.
// GET /api/v1/users/{id}
func handleGetUser(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		user, err := store.GetUser(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "user not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get user", "id", id, "error", err)
			writeError(w, "failed to fetch user", http.StatusInternalServerError)
			return
		}
		writeJSON(w, user, http.StatusOK)
	})
}

// handleUpdateUser returns a handler that applies a partial update to a user.
// PUT /api/v1/users/{id}
func handleUpdateUser(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req db.UpdateUserParams
		if !decodeBody(w, r, &req, logger) {
			return
		}
		if req.Status != nil && !db.ValidUserStatus(*req.Status) {
			writeError(w, "invalid status: must be ACTIVE, PENDING, PROCESSED or SUSPENDED", http.StatusBadRequest)
			return
		}

		user, err := store.UpdateUser(r.Context(), id, req)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "user not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to update user", "id", id, "error", err)
			writeError(w, "failed to update user", http.StatusInternalServerError)
			return
		}

		logger.Info("user updated", "id", id)
		writeJSON(w, user, http.StatusOK)
	})
}

// handleDeleteUser returns a handler that deletes a user and its history.
// DELETE /api/v1/users/{id}
func handleDeleteUser(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.DeleteUser(r.Context(), id); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "user not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to delete user", "id", id, "error", err)
			writeError(w, "failed to delete user", http.StatusInternalServerError)
			return
		}

		logger.Info("user deleted", "id", id)
		writeJSON(w, map[string]string{"message": "user deleted successfully"}, http.StatusOK)
	})
}

// handleUserTrading returns a handler that reads live trading data for a user's wallet.
// GET /api/v1/users/{id}/trading
func handleUserTrading(store Store, eng Engine, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		user, err := store.GetUser(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "user or wallet not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get user", "id", id, "error", err)
			writeError(w, "failed to fetch trading data", http.StatusInternalServerError)
			return
		}
		if user.WalletAddress == "" {
			writeError(w, "user or wallet not found", http.StatusNotFound)
			return
		}

		resp := walletView(eng.WalletData(r.Context(), user.WalletAddress))
		resp.UserID = user.ID.String()
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleListCashbacks returns a handler that lists cashback payouts.
// GET /api/v1/cashbacks?status={status}&page={n}&limit={n}
func handleListCashbacks(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, err := parsePage(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		cashbacks, total, err := store.ListCashbacks(r.Context(), db.ListCashbacksParams{
			Status: r.URL.Query().Get("status"),
			Page:   page,
		})
		if err != nil {
			logger.Error("failed to list cashbacks", "error", err)
			writeError(w, "failed to fetch cashbacks", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"cashbacks":  cashbacks,
			"pagination": pageInfo(page, total),
		}, http.StatusOK)
	})
}

// handleCreateCashback returns a handler that records a pending cashback for a user.
// POST /api/v1/cashbacks
func handleCreateCashback(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string   `json:"userId"`
			Amount *float64 `json:"amount"`
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, "invalid userId: must be a UUID", http.StatusBadRequest)
			return
		}
		if req.Amount == nil || *req.Amount <= 0 {
			writeError(w, "amount must be a positive number", http.StatusBadRequest)
			return
		}

		cashback, err := store.CreateCashback(r.Context(), userID, *req.Amount)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "user not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to create cashback", "user_id", userID, "error", err)
			writeError(w, "failed to create cashback", http.StatusInternalServerError)
			return
		}

		logger.Info("cashback created", "id", cashback.ID, "user_id", userID, "amount", cashback.Amount)
		writeJSON(w, cashback, http.StatusCreated)
	})
}

// handleListEligibleUsers returns a handler that lists eligible users with a summary.
// GET /api/v1/eligible-users?status={pending|approved|paid|all}
func handleListEligibleUsers(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status != "" && status != "all" && !db.ValidEligibleStatus(status) {
			writeError(w, "invalid status: must be pending, approved, paid or all", http.StatusBadRequest)
			return
		}

		users, err := store.ListEligibleUsers(r.Context(), status)
		if err != nil {
			logger.Error("failed to list eligible users", "error", err)
			writeError(w, "failed to fetch eligible users", http.StatusInternalServerError)
			return
		}
		summary, err := store.EligibleUserSummary(r.Context())
		if err != nil {
			logger.Error("failed to summarize eligible users", "error", err)
			writeError(w, "failed to fetch eligible users", http.StatusInternalServerError)
			return
		}

		if users == nil {
			users = []*db.EligibleUser{}
		}
		writeJSON(w, map[string]interface{}{
			"users":   users,
			"summary": summary,
		}, http.StatusOK)
	})
}

// handleUpsertEligibleUser returns a handler that records or refreshes an eligible user.
// POST /api/v1/eligible-users
func handleUpsertEligibleUser(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req db.UpsertEligibleUserParams
		if !decodeBody(w, r, &req, logger) {
			return
		}
		if err := validateAddress(strings.TrimSpace(req.WalletAddress)); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		user, err := store.UpsertEligibleUser(r.Context(), req)
		if err != nil {
			logger.Error("failed to upsert eligible user", "wallet", req.WalletAddress, "error", err)
			writeError(w, "failed to add eligible user", http.StatusInternalServerError)
			return
		}

		logger.Info("eligible user recorded", "wallet", user.WalletAddress, "cashback", user.CashbackAmount)
		writeJSON(w, map[string]interface{}{
			"success": true,
			"user":    user,
		}, http.StatusOK)
	})
}

// handleUpdateEligibleUserStatus returns a handler that moves an eligible user through payout.
// PUT /api/v1/eligible-users
func handleUpdateEligibleUserStatus(store Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"userId"`
			Status string `json:"status"`
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}

		id, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, "user not found", http.StatusNotFound)
			return
		}
		if !db.ValidEligibleStatus(req.Status) {
			writeError(w, "invalid status: must be pending, approved or paid", http.StatusBadRequest)
			return
		}

		if err := store.UpdateEligibleUserStatus(r.Context(), id, req.Status); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, "user not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to update eligible user status", "id", id, "error", err)
			writeError(w, "failed to update user status", http.StatusInternalServerError)
			return
		}

		logger.Info("eligible user status updated", "id", id, "status", req.Status)
		writeJSON(w, map[string]bool{"success": true}, http.StatusOK)
	})
}
