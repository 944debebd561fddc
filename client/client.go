package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client is the HTTP client for the cashback service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new cashback service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Blockchain fetches one view of the tax wallet aggregation. kind is one of
// balances, dashboard, volume, tax-wallets, prices or transactions; period
// only applies to transactions.
func (c *Client) Blockchain(ctx context.Context, kind, period string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("type", kind)
	if period != "" {
		q.Set("period", period)
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/blockchain?"+q.Encode(), nil, http.StatusOK, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// WalletData fetches balances and recent transfers of any wallet.
func (c *Client) WalletData(ctx context.Context, address string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/wallet/"+url.PathEscape(address), nil, http.StatusOK, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// TriggerRefresh starts an eligible user refresh run and returns its ID.
func (c *Client) TriggerRefresh(ctx context.Context) (string, error) {
	var resp struct {
		RunID string `json:"runId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/admin/refresh", nil, http.StatusAccepted, &resp); err != nil {
		return "", err
	}
	c.logger.Debug("refresh triggered", "run_id", resp.RunID)
	return resp.RunID, nil
}

// Health returns the server's health report.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var resp map[string]string
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// doJSON sends in as a JSON body (when non-nil) and decodes the response into
// out (when non-nil). Any status other than want is returned as an error.
func (c *Client) doJSON(ctx context.Context, method, path string, in interface{}, want int, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIError is returned for non-success responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
