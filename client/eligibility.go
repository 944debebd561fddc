package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// EligibilityTransaction is a qualifying transfer as reported by the server.
type EligibilityTransaction struct {
	Hash      string    `json:"hash"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    float64   `json:"amount"`
	USDValue  float64   `json:"usdValue"`
	Chain     string    `json:"chain"`
	Timestamp time.Time `json:"timestamp"`
}

// EligibilityResult is the outcome of a cashback eligibility check.
type EligibilityResult struct {
	WalletAddress    string                   `json:"walletAddress"`
	IsEligible       bool                     `json:"isEligible"`
	TotalAmountSent  float64                  `json:"totalAmountSent"`
	CashbackAmount   float64                  `json:"cashbackAmount"`
	TransactionCount int                      `json:"transactionCount"`
	Transactions     []EligibilityTransaction `json:"transactions"`
	CheckedAt        time.Time                `json:"checkedAt"`
	Threshold        float64                  `json:"threshold"`
	Unit             string                   `json:"unit"`
	Degraded         []string                 `json:"degraded"`
}

// EligibilityEvent is a streamed notice that a wallet was found eligible.
type EligibilityEvent struct {
	WalletAddress    string    `json:"wallet_address"`
	IsEligible       bool      `json:"is_eligible"`
	TotalAmountSent  float64   `json:"total_amount_sent"`
	CashbackAmount   float64   `json:"cashback_amount"`
	TransactionCount int       `json:"transaction_count"`
	Unit             string    `json:"unit"`
	CheckedAt        time.Time `json:"checked_at"`
	PublishedAt      time.Time `json:"published_at"`
}

// CheckEligibility asks the server whether wallet qualifies for cashback.
func (c *Client) CheckEligibility(ctx context.Context, wallet string) (*EligibilityResult, error) {
	var result EligibilityResult
	req := map[string]string{"walletAddress": wallet}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/eligibility", req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	c.logger.Debug("eligibility checked", "wallet", wallet, "eligible", result.IsEligible)
	return &result, nil
}

// StreamEligibility calls handle for every eligibility event until ctx is
// done, the stream ends or handle returns an error. An empty wallet streams
// events for every wallet.
func (c *Client) StreamEligibility(ctx context.Context, wallet string, handle func(*EligibilityEvent) error) error {
	u := c.baseURL + "/api/v1/stream/eligibility"
	if wallet != "" {
		u += "?wallet=" + url.QueryEscape(wallet)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The configured client timeout would cut the stream short.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var currentEvent, currentData string
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			event, data := currentEvent, currentData
			currentEvent, currentData = "", ""

			switch event {
			case "eligibility":
				var e EligibilityEvent
				if err := json.Unmarshal([]byte(data), &e); err != nil {
					c.logger.Warn("failed to decode eligibility event", "error", err)
					continue
				}
				if err := handle(&e); err != nil {
					return err
				}
			case "error":
				return fmt.Errorf("server error: %s", data)
			}
			continue
		}

		if v, ok := strings.CutPrefix(line, "event:"); ok {
			currentEvent = strings.TrimSpace(v)
		} else if v, ok := strings.CutPrefix(line, "data:"); ok {
			currentData = strings.TrimSpace(v)
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading event stream: %w", err)
	}
	return nil
}

// errFound stops the stream once AwaitEligibility has its event.
var errFound = errors.New("found")

// AwaitEligibility blocks until an event reports wallet as eligible.
func (c *Client) AwaitEligibility(ctx context.Context, wallet string) (*EligibilityEvent, error) {
	var found *EligibilityEvent
	err := c.StreamEligibility(ctx, wallet, func(e *EligibilityEvent) error {
		if e.IsEligible && strings.EqualFold(e.WalletAddress, wallet) {
			found = e
			return errFound
		}
		return nil
	})
	if found != nil {
		return found, nil
	}
	if err == nil {
		err = fmt.Errorf("event stream closed before %s became eligible", wallet)
	}
	return nil, err
}
