package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "0xAbC0000000000000000000000000000000000001"

// run executes the CLI with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("SERVER_URL", "")
	t.Setenv("DATABASE_URL", "")

	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"cashback"}, args...))
	return stdout.String(), stderr.String(), err
}

func TestJQFilterMatching(t *testing.T) {
	event := map[string]interface{}{
		"wallet_address":  testWallet,
		"cashback_amount": 2.5,
		"unit":            "usd",
	}

	tests := []struct {
		name        string
		filter      string
		expectMatch bool
	}{
		{name: "numeric comparison", filter: `.cashback_amount > 1`, expectMatch: true},
		{name: "numeric comparison fails", filter: `.cashback_amount > 10`, expectMatch: false},
		{name: "string equality", filter: `.unit == "usd"`, expectMatch: true},
		{name: "missing field is null", filter: `.missing`, expectMatch: false},
		{name: "non-boolean value is truthy", filter: `.wallet_address`, expectMatch: true},
		{name: "empty result", filter: `empty`, expectMatch: false},
		{name: "runtime error", filter: `.unit | tonumber`, expectMatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := compileJQ(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.expectMatch, matchJQ(code, event))
		})
	}

	t.Run("invalid expression", func(t *testing.T) {
		_, err := compileJQ(`.[`)
		assert.Error(t, err)
	})
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0.0))
	assert.True(t, isTruthy(""))
	assert.True(t, isTruthy([]interface{}{}))
}

func TestEventMatcher_Empty(t *testing.T) {
	match, err := eventMatcher("")
	require.NoError(t, err)
	assert.True(t, match(nil))
}

func eligibilityServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/eligibility", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"walletAddress":    testWallet,
			"isEligible":       true,
			"totalAmountSent":  75.0,
			"cashbackAmount":   1.5,
			"transactionCount": 1,
			"threshold":        50,
			"unit":             "usd",
			"degraded":         []string{"BNB"},
			"transactions": []map[string]interface{}{
				{"hash": "0xhash1", "chain": "ETH", "amount": 0.02, "usdValue": 75.0, "timestamp": "2026-01-02T03:04:05Z"},
			},
		})
	}))
}

func TestCheckCommand(t *testing.T) {
	server := eligibilityServer(t)
	defer server.Close()

	t.Run("table output", func(t *testing.T) {
		stdout, stderr, err := run(t, "--server-url", server.URL, "eligibility", "check", testWallet)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Eligible:      true")
		assert.Contains(t, stdout, "1.50 usd")
		assert.Contains(t, stdout, "0xhash1")
		assert.Contains(t, stderr, "BNB data unavailable")
	})

	t.Run("jq output", func(t *testing.T) {
		stdout, _, err := run(t, "--server-url", server.URL, "--jq", ".cashbackAmount", "eligibility", "check", testWallet)
		require.NoError(t, err)
		assert.Equal(t, "1.5\n", stdout)
	})

	t.Run("requires wallet", func(t *testing.T) {
		_, _, err := run(t, "--server-url", server.URL, "eligibility", "check")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wallet address")
	})
}

func TestCheckCommand_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded, please try again later"})
	}))
	defer server.Close()

	_, _, err := run(t, "--server-url", server.URL, "eligibility", "check", testWallet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestBlockchainCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "transactions", r.URL.Query().Get("type"))
		assert.Equal(t, "daily", r.URL.Query().Get("period"))
		w.Write([]byte(`{"transactions":[{"hash":"a"},{"hash":"b"}],"period":"daily"}`))
	}))
	defer server.Close()

	stdout, _, err := run(t, "--server-url", server.URL, "--jq", ".transactions | length",
		"blockchain", "--type", "transactions", "--period", "daily")
	require.NoError(t, err)
	assert.Equal(t, "2\n", stdout)
}

func TestEligibleUsersCommands(t *testing.T) {
	var updated map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "pending", r.URL.Query().Get("status"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"users": []map[string]interface{}{
					{"id": "u1", "walletAddress": testWallet, "cashbackAmount": 1.5, "status": "pending", "lastChecked": "2026-01-02T03:04:05Z"},
				},
				"summary": map[string]interface{}{"totalUsers": 1, "pendingUsers": 1, "totalCashbackOwed": 1.5},
			})
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&updated))
			json.NewEncoder(w).Encode(map[string]bool{"success": true})
		}
	}))
	defer server.Close()

	stdout, stderr, err := run(t, "--server-url", server.URL, "eligible-users", "list", "--status", "pending")
	require.NoError(t, err)
	assert.Contains(t, stdout, testWallet)
	assert.Contains(t, stderr, "Total: 1 users (1 pending")

	stdout, _, err = run(t, "--server-url", server.URL, "eligible-users", "set-status", "u1", "approved")
	require.NoError(t, err)
	assert.Contains(t, stdout, "u1 is now approved")
	assert.Equal(t, map[string]string{"userId": "u1", "status": "approved"}, updated)

	_, _, err = run(t, "--server-url", server.URL, "eligible-users", "set-status", "u1")
	assert.Error(t, err)
}

func TestStreamCommand_Where(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stream/eligibility", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: connected\ndata: {}\n\n"))
		w.Write([]byte(`event: eligibility` + "\n" + `data: {"wallet_address":"0xsmall","is_eligible":true,"cashback_amount":1}` + "\n\n"))
		w.Write([]byte(`event: eligibility` + "\n" + `data: {"wallet_address":"0xbig","is_eligible":true,"cashback_amount":9}` + "\n\n"))
	}))
	defer server.Close()

	stdout, _, err := run(t, "--server-url", server.URL, "--json", "eligibility", "stream", "--where", ".cashback_amount > 5")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0xbig")
	assert.NotContains(t, stdout, "0xsmall")
}

func TestHealthCommand(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok", "source": "synthetic", "database": "disabled"})
		}))
		defer server.Close()

		stdout, _, err := run(t, "--server-url", server.URL, "server", "health")
		require.NoError(t, err)
		assert.Contains(t, stdout, "Server is healthy")
		assert.Contains(t, stdout, "synthetic")
	})

	t.Run("unhealthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "database": "unreachable"})
		}))
		defer server.Close()

		_, _, err := run(t, "--server-url", server.URL, "server", "health")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("missing server url", func(t *testing.T) {
		_, _, err := run(t, "--server-url", "", "server", "health")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server-url is required")
	})
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := run(t, "server", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "cashback CLI"))
	assert.Contains(t, stdout, "Version: dev")
}

func TestGuardedCommands(t *testing.T) {
	_, _, err := run(t, "db", "rollback")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	_, _, err = run(t, "db", "schema-version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database-url is required")

	_, _, err = run(t, "refresh", "schedule", "--interval", "30s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1m")
}
