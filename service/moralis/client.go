// Package moralis adapts the Moralis EVM indexer to balance and transaction
// readings for ETH and BNB.
package moralis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/cashback/service/chain"
	"github.com/brojonat/cashback/service/metrics"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// DefaultBaseURL is the Moralis deep index API root.
const DefaultBaseURL = "https://deep-index.moralis.io/api"

// errNotFound marks the one error class that triggers the legacy path retry.
var errNotFound = errors.New("not found")

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func (e *statusError) Is(target error) bool {
	return target == errNotFound && e.code == http.StatusNotFound
}

// Client is the ETH/BNB balance and transaction adapter.
// It never returns errors: failures become unavailable readings.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breakers   map[chain.Chain]*gobreaker.CircuitBreaker
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a Moralis adapter with one circuit breaker per chain.
func NewClient(baseURL, apiKey string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger = logger.With("component", "moralis")

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		breakers:   make(map[chain.Chain]*gobreaker.CircuitBreaker),
		logger:     logger,
		metrics:    m,
	}
	for _, ch := range []chain.Chain{chain.ETH, chain.BNB} {
		c.breakers[ch] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "moralis-" + strings.ToLower(string(ch)),
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}
	return c
}

// chainParam maps a chain to the Moralis chain query value.
func chainParam(ch chain.Chain) (string, error) {
	switch ch {
	case chain.ETH:
		return "eth", nil
	case chain.BNB:
		return "bsc", nil
	}
	return "", fmt.Errorf("chain %s is not served by moralis", ch)
}

type balanceResponse struct {
	Balance string `json:"balance"`
	Result  string `json:"result"`
}

// Balance returns the native balance of address on ch.
func (c *Client) Balance(ctx context.Context, ch chain.Chain, address string) chain.BalanceReading {
	param, err := chainParam(ch)
	if err != nil {
		return chain.UnavailableBalance(err)
	}

	q := url.Values{"chain": {param}}
	primary := fmt.Sprintf("%s/v2.2/wallets/%s/native/balance?%s", c.baseURL, url.PathEscape(address), q.Encode())
	legacy := fmt.Sprintf("%s/v2/%s/balance?%s", c.baseURL, url.PathEscape(address), q.Encode())

	var resp balanceResponse
	if err := c.fetch(ctx, ch, "balance", primary, legacy, &resp); err != nil {
		c.logger.ErrorContext(ctx, "failed to get balance",
			"chain", ch,
			"address", address,
			"error", err,
		)
		return chain.UnavailableBalance(err)
	}

	raw := resp.Balance
	if raw == "" {
		raw = resp.Result
	}
	amount, err := weiToNative(raw)
	if err != nil {
		c.logger.ErrorContext(ctx, "malformed balance", "chain", ch, "value", raw, "error", err)
		return chain.UnavailableBalance(err)
	}

	return chain.BalanceReading{Amount: amount, Status: chain.StatusLive}
}

type transactionItem struct {
	Hash           string          `json:"hash"`
	FromAddress    string          `json:"from_address"`
	From           string          `json:"from"`
	ToAddress      string          `json:"to_address"`
	To             string          `json:"to"`
	Value          string          `json:"value"`
	BlockTimestamp string          `json:"block_timestamp"`
	TimeStamp      json.RawMessage `json:"timeStamp"`
}

type transactionsResponse struct {
	Result       []transactionItem `json:"result"`
	Transactions []transactionItem `json:"transactions"`
}

// Transactions returns up to limit recent native transfers touching address.
func (c *Client) Transactions(ctx context.Context, ch chain.Chain, address string, limit int) chain.TransactionsReading {
	param, err := chainParam(ch)
	if err != nil {
		return chain.UnavailableTransactions(err)
	}

	q := url.Values{"chain": {param}, "limit": {strconv.Itoa(limit)}}
	primary := fmt.Sprintf("%s/v2.2/wallets/%s/transactions?%s", c.baseURL, url.PathEscape(address), q.Encode())
	legacy := fmt.Sprintf("%s/v2/%s/transactions?%s", c.baseURL, url.PathEscape(address), q.Encode())

	var resp transactionsResponse
	if err := c.fetch(ctx, ch, "transactions", primary, legacy, &resp); err != nil {
		c.logger.ErrorContext(ctx, "failed to get transactions",
			"chain", ch,
			"address", address,
			"error", err,
		)
		return chain.UnavailableTransactions(err)
	}

	items := resp.Result
	if len(items) == 0 {
		items = resp.Transactions
	}

	fetchedAt := time.Now().UTC()
	reading := chain.TransactionsReading{
		Transactions: make([]chain.TransactionRecord, 0, len(items)),
		Status:       chain.StatusLive,
	}
	for _, item := range items {
		rec, err := item.toRecord(ch, fetchedAt)
		if err != nil {
			c.logger.DebugContext(ctx, "skipping malformed transaction", "hash", item.Hash, "error", err)
			continue
		}
		reading.Transactions = append(reading.Transactions, rec)
	}
	if limit > 0 && len(reading.Transactions) > limit {
		reading.Transactions = reading.Transactions[:limit]
	}
	return reading
}

func (item transactionItem) toRecord(ch chain.Chain, fetchedAt time.Time) (chain.TransactionRecord, error) {
	amount, err := weiToNative(item.Value)
	if err != nil {
		return chain.TransactionRecord{}, err
	}
	return chain.TransactionRecord{
		Hash:      item.Hash,
		From:      firstNonEmpty(item.FromAddress, item.From),
		To:        firstNonEmpty(item.ToAddress, item.To),
		Amount:    amount,
		Timestamp: item.timestamp(fetchedAt),
		Chain:     ch,
	}, nil
}

func (item transactionItem) timestamp(fallback time.Time) time.Time {
	if item.BlockTimestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, item.BlockTimestamp); err == nil {
			return t.UTC()
		}
	}
	if len(item.TimeStamp) > 0 {
		raw := strings.Trim(string(item.TimeStamp), `"`)
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}
	return fallback
}

// fetch GETs primary and, only when it answers 404, the legacy path.
func (c *Client) fetch(ctx context.Context, ch chain.Chain, operation, primary, legacy string, out any) error {
	cb := c.breakers[ch]
	_, err := cb.Execute(func() (interface{}, error) {
		err := c.get(ctx, ch, operation, primary, out)
		if errors.Is(err, errNotFound) {
			c.logger.DebugContext(ctx, "primary endpoint not found, trying legacy path",
				"chain", ch,
				"operation", operation,
			)
			c.metrics.RecordAdapterFallback(string(ch), operation)
			err = c.get(ctx, ch, operation, legacy, out)
		}
		return nil, err
	})
	return err
}

func (c *Client) get(ctx context.Context, ch chain.Chain, operation, rawURL string, out any) error {
	start := time.Now()
	err := c.doGet(ctx, rawURL, out)
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordAdapterCall(string(ch), operation, status, time.Since(start).Seconds())
	return err
}

func (c *Client) doGet(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// weiToNative converts an 18-decimal integer string to native units.
func weiToNative(raw string) (float64, error) {
	if raw == "" {
		return 0, errors.New("empty value")
	}
	wei, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid wei value %q: %w", raw, err)
	}
	if wei.IsNegative() {
		return 0, fmt.Errorf("negative wei value %q", raw)
	}
	return wei.Shift(-18).InexactFloat64(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
