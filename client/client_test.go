package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "0xAbC0000000000000000000000000000000000001"

func TestCheckEligibility_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/eligibility", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, testWallet, body["walletAddress"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"walletAddress":    testWallet,
			"isEligible":       true,
			"totalAmountSent":  60.0,
			"cashbackAmount":   1.2,
			"transactionCount": 2,
			"threshold":        50,
			"unit":             "usd",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.CheckEligibility(context.Background(), testWallet)
	require.NoError(t, err)
	assert.True(t, result.IsEligible)
	assert.Equal(t, 1.2, result.CashbackAmount)
	assert.Equal(t, 2, result.TransactionCount)
}

func TestCheckEligibility_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "rate limit exceeded, please try again later",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.CheckEligibility(context.Background(), testWallet)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestParseErrorResponse_NonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, "request failed with status 502: bad gateway", err.Error())
}

func TestBlockchain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/blockchain", r.URL.Path)
		assert.Equal(t, "transactions", r.URL.Query().Get("type"))
		assert.Equal(t, "weekly", r.URL.Query().Get("period"))
		w.Write([]byte(`{"transactions":[],"period":"weekly"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	raw, err := client.Blockchain(context.Background(), "transactions", "weekly")
	require.NoError(t, err)
	assert.JSONEq(t, `{"transactions":[],"period":"weekly"}`, string(raw))
}

func TestListEligibleUsers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "approved", r.URL.Query().Get("status"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"users": []map[string]interface{}{
				{"id": "u1", "walletAddress": testWallet, "cashbackAmount": 1.2, "status": "approved"},
			},
			"summary": map[string]interface{}{"totalUsers": 3, "approvedUsers": 1, "totalCashbackOwed": 4.5},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	resp, err := client.ListEligibleUsers(context.Background(), "approved")
	require.NoError(t, err)
	require.Len(t, resp.Users, 1)
	assert.Equal(t, "u1", resp.Users[0].ID)
	assert.Equal(t, 3, resp.Summary.TotalUsers)
	assert.Equal(t, 4.5, resp.Summary.TotalCashbackOwed)
}

func TestUpdateEligibleUserStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PUT", r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["userId"] != "u1" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "user not found"})
			return
		}
		assert.Equal(t, "paid", body["status"])
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	require.NoError(t, client.UpdateEligibleUserStatus(context.Background(), "u1", "paid"))

	err := client.UpdateEligibleUserStatus(context.Background(), "u2", "paid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not found")
}

func TestTriggerRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/admin/refresh", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"runId": "run-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	runID, err := client.TriggerRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
}

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream/eligibility", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok, "ResponseWriter should support flushing")

		w.Write([]byte("event: connected\ndata: {\"wallet\":\"all wallets\"}\n\n"))
		for _, f := range frames {
			w.Write([]byte(f))
			flusher.Flush()
		}
		<-r.Context().Done()
	}))
}

func eventFrame(t *testing.T, e EligibilityEvent) string {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	return "event: eligibility\ndata: " + string(data) + "\n\n"
}

func TestAwaitEligibility_MatchingEvent(t *testing.T) {
	server := sseServer(t,
		": keepalive\n\n",
		eventFrame(t, EligibilityEvent{WalletAddress: "0xother", IsEligible: true}),
		"event: eligibility\ndata: not json\n\n",
		eventFrame(t, EligibilityEvent{WalletAddress: testWallet, IsEligible: true, CashbackAmount: 2.5}),
	)
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event, err := client.AwaitEligibility(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 2.5, event.CashbackAmount)
}

func TestAwaitEligibility_Timeout(t *testing.T) {
	server := sseServer(t, eventFrame(t, EligibilityEvent{WalletAddress: "0xother", IsEligible: true}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := client.AwaitEligibility(ctx, testWallet)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamEligibility_ServerErrorEvent(t *testing.T) {
	server := sseServer(t, "event: error\ndata: {\"error\": \"failed to subscribe\"}\n\n")
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.StreamEligibility(ctx, "", func(*EligibilityEvent) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to subscribe")
}
