package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/cashback/service/chain"
	"github.com/brojonat/cashback/service/db"
	"github.com/brojonat/cashback/service/engine"
	"github.com/brojonat/cashback/service/metrics"
	natspkg "github.com/brojonat/cashback/service/nats"
	"github.com/brojonat/cashback/service/ratelimit"
	"github.com/brojonat/cashback/service/temporal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100
	sideEffectTimeout  = 5 * time.Second
)

// balanceView is a balance shaped for display.
type balanceView struct {
	Chain    chain.Chain  `json:"chain"`
	Symbol   string       `json:"symbol"`
	Amount   string       `json:"amount"`
	USDValue string       `json:"usdValue"`
	Status   chain.Status `json:"status"`
}

func toBalanceViews(snapshots []chain.BalanceSnapshot) []balanceView {
	views := make([]balanceView, len(snapshots))
	for i, b := range snapshots {
		views[i] = balanceView{
			Chain:    b.Chain,
			Symbol:   b.Symbol,
			Amount:   fmt.Sprintf("%.6f", b.Balance),
			USDValue: fmt.Sprintf("$%.2f", b.USDValue),
			Status:   b.Status,
		}
	}
	return views
}

// handleBlockchain returns a handler that serves aggregation engine output.
// GET /api/v1/blockchain?type={balances|dashboard|volume|tax-wallets|prices|transactions}&period={period}
func handleBlockchain(eng Engine, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		kind := query.Get("type")
		if kind == "" {
			kind = "balances"
		}

		ctx := r.Context()
		switch kind {
		case "balances":
			writeJSON(w, map[string]interface{}{
				"balances": toBalanceViews(eng.CurrentBalances(ctx)),
			}, http.StatusOK)

		case "dashboard":
			d := eng.Dashboard(ctx)
			writeJSON(w, map[string]interface{}{
				"balances":          toBalanceViews(d.Balances),
				"totalVolume":       d.TotalVolume,
				"totalTransactions": d.TotalTransactions,
				"lastUpdated":       d.LastUpdated,
				"live":              d.Live,
				"source":            d.Source,
			}, http.StatusOK)

		case "volume":
			writeJSON(w, map[string]interface{}{
				"totalVolume": eng.TotalVolume(ctx),
			}, http.StatusOK)

		case "tax-wallets":
			writeJSON(w, map[string]interface{}{
				"taxWallets": eng.TaxWallets(),
			}, http.StatusOK)

		case "prices":
			writeJSON(w, eng.Prices(ctx), http.StatusOK)

		case "transactions":
			period, err := engine.ParsePeriod(query.Get("period"))
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			txs := eng.AllTaxWalletTransactions(ctx, period)
			logger.Debug("tax wallet transactions served",
				"period", period,
				"count", len(txs.Transactions),
				"degraded", txs.Degraded,
			)
			writeJSON(w, txs, http.StatusOK)

		default:
			writeError(w, "invalid type parameter", http.StatusBadRequest)
		}
	})
}

// handleCheckEligibility returns a handler that checks one wallet's cashback eligibility.
// POST /api/v1/eligibility
func handleCheckEligibility(eng Engine, store Store, publisher natspkg.Publisher, limiter *ratelimit.Limiter, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !limiter.Allow("eligibility:" + ip) {
			m.RecordRateLimitRejection("eligibility")
			logger.Warn("eligibility rate limit exceeded", "client_ip", ip)
			writeError(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
			return
		}

		var req struct {
			WalletAddress string `json:"walletAddress"`
		}
		if !decodeBody(w, r, &req, logger) {
			return
		}

		address := strings.TrimSpace(req.WalletAddress)
		if address == "" {
			writeError(w, "wallet address is required", http.StatusBadRequest)
			return
		}
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid wallet address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		result := eng.CheckEligibility(r.Context(), address)
		logger.Info("eligibility checked",
			"wallet", address,
			"eligible", result.IsEligible,
			"total", result.TotalAmountSent,
			"cashback", result.CashbackAmount,
			"transactions", result.TransactionCount,
			"degraded", result.Degraded,
		)

		if result.IsEligible {
			recordEligible(r.Context(), result, store, publisher, logger)
		}

		writeJSON(w, result, http.StatusOK)
	})
}

// recordEligible stores and announces an eligible result. Failures are logged
// and never change the response.
func recordEligible(ctx context.Context, result engine.EligibilityResult, store Store, publisher natspkg.Publisher, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if store != nil {
		if _, err := store.UpsertEligibleUser(ctx, db.UpsertParamsFromResult(result)); err != nil {
			logger.Error("failed to record eligible user", "wallet", result.WalletAddress, "error", err)
		}
	}
	if publisher != nil {
		if err := publisher.PublishEligibility(ctx, natspkg.FromEligibilityResult(result)); err != nil {
			logger.Error("failed to publish eligibility event", "wallet", result.WalletAddress, "error", err)
		}
	}
}

// handleWalletData returns a handler that reads an arbitrary wallet across every chain.
// GET /api/v1/wallet/{address}
func handleWalletData(eng Engine, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			logger.Debug("invalid wallet address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, walletView(eng.WalletData(r.Context(), address)), http.StatusOK)
	})
}

// walletResponse is the JSON response format for wallet trading data.
type walletResponse struct {
	UserID                string                    `json:"userId,omitempty"`
	WalletAddress         string                    `json:"walletAddress"`
	Balances              []chain.BalanceSnapshot   `json:"balances"`
	Transactions          []chain.TransactionRecord `json:"transactions"`
	TotalVolume           float64                   `json:"totalVolume"`
	TotalVolumeUSD        float64                   `json:"totalVolumeUsd"`
	TaxWalletTransactions []chain.TransactionRecord `json:"taxWalletTransactions"`
	Degraded              []chain.Chain             `json:"degraded"`
	Source                string                    `json:"source"`
	LastUpdated           time.Time                 `json:"lastUpdated"`
}

func walletView(data engine.WalletData) walletResponse {
	taxTxs := make([]chain.TransactionRecord, 0)
	for _, tx := range data.Transactions {
		if tx.IsTaxWallet {
			taxTxs = append(taxTxs, tx)
		}
	}
	return walletResponse{
		WalletAddress:         data.Address,
		Balances:              data.Balances,
		Transactions:          data.Transactions,
		TotalVolume:           data.TotalVolume,
		TotalVolumeUSD:        data.TotalVolumeUSD,
		TaxWalletTransactions: taxTxs,
		Degraded:              data.Degraded,
		Source:                data.Source,
		LastUpdated:           time.Now().UTC(),
	}
}

// handleTriggerRefresh returns a handler that starts an eligible user refresh immediately.
// POST /api/v1/admin/refresh
func handleTriggerRefresh(scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID, err := scheduler.TriggerRefresh(r.Context())
		if err != nil {
			logger.Error("failed to trigger refresh", "error", err)
			writeError(w, "failed to trigger refresh", http.StatusInternalServerError)
			return
		}
		logger.Info("eligible user refresh triggered", "run_id", runID)
		writeJSON(w, map[string]string{"runId": runID}, http.StatusAccepted)
	})
}

// handleHealth reports liveness and, when configured, database reachability.
func handleHealth(store Store, eng Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{
			"status":   "ok",
			"source":   eng.SourceName(),
			"database": "disabled",
		}
		code := http.StatusOK
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				resp["status"] = "degraded"
				resp["database"] = "unreachable"
				code = http.StatusServiceUnavailable
			} else {
				resp["database"] = "ok"
			}
		}
		writeJSON(w, resp, code)
	}
}

// clientIP returns the first X-Forwarded-For hop, falling back to the peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

// decodeBody decodes a size-limited JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Debug("failed to decode request body", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
			return false
		}
		writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("wallet address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !chain.ValidWalletAddress(address) {
		return errorf("invalid wallet address format")
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
