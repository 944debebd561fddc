package moralis

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brojonat/cashback/service/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddr = "0x52908400098527886E0F7030069857D2E4169EE7"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(srv.URL, "test-key", srv.Client(), nil, logger)
}

func TestBalance_Primary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2.2/wallets/"+testAddr+"/native/balance", r.URL.Path)
		assert.Equal(t, "eth", r.URL.Query().Get("chain"))
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		w.Write([]byte(`{"balance":"3175000000000000"}`))
	})

	reading := client.Balance(context.Background(), chain.ETH, testAddr)
	assert.Equal(t, chain.StatusLive, reading.Status)
	assert.Equal(t, 0.003175, reading.Amount)
}

func TestBalance_LegacyFallbackOn404(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/v2.2/wallets/"+testAddr+"/native/balance" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "/v2/"+testAddr+"/balance", r.URL.Path)
		assert.Equal(t, "bsc", r.URL.Query().Get("chain"))
		w.Write([]byte(`{"result":"2000000000000000000"}`))
	})

	reading := client.Balance(context.Background(), chain.BNB, testAddr)
	assert.Equal(t, chain.StatusLive, reading.Status)
	assert.Equal(t, 2.0, reading.Amount)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBalance_NoFallbackOnOtherErrors(t *testing.T) {
	for _, code := range []int{http.StatusInternalServerError, http.StatusTooManyRequests, http.StatusUnauthorized} {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(code)
		})

		reading := client.Balance(context.Background(), chain.ETH, testAddr)
		assert.Equal(t, chain.StatusUnavailable, reading.Status, "code %d", code)
		assert.Zero(t, reading.Amount)
		assert.Equal(t, int32(1), calls.Load(), "code %d must not retry", code)
	}
}

func TestBalance_BothPathsMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	reading := client.Balance(context.Background(), chain.ETH, testAddr)
	assert.Equal(t, chain.StatusUnavailable, reading.Status)
}

func TestBalance_MalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balance":`))
	})

	reading := client.Balance(context.Background(), chain.ETH, testAddr)
	assert.Equal(t, chain.StatusUnavailable, reading.Status)
}

func TestBalance_UnsupportedChain(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	reading := client.Balance(context.Background(), chain.SOL, "whatever")
	assert.Equal(t, chain.StatusUnavailable, reading.Status)
}

func TestTransactions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2.2/wallets/"+testAddr+"/transactions", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"result":[
			{"hash":"0x1","from_address":"0xaaa","to_address":"0xbbb","value":"1500000000000000000","block_timestamp":"2025-03-01T10:00:00.000Z"},
			{"hash":"0x2","from":"0xccc","to":"0xddd","value":"0","timeStamp":"1735689600"},
			{"hash":"0x3","from_address":"0xeee","to_address":"0xfff","value":"not-a-number"}
		]}`))
	})

	reading := client.Transactions(context.Background(), chain.ETH, testAddr, 5)
	require.Equal(t, chain.StatusLive, reading.Status)
	require.Len(t, reading.Transactions, 2)

	first := reading.Transactions[0]
	assert.Equal(t, "0x1", first.Hash)
	assert.Equal(t, "0xaaa", first.From)
	assert.Equal(t, "0xbbb", first.To)
	assert.Equal(t, 1.5, first.Amount)
	assert.Equal(t, chain.ETH, first.Chain)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), first.Timestamp)

	second := reading.Transactions[1]
	assert.Equal(t, "0xccc", second.From)
	assert.Equal(t, "0xddd", second.To)
	assert.Equal(t, time.Unix(1735689600, 0).UTC(), second.Timestamp)
}

func TestTransactions_LegacyShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/"+testAddr+"/transactions" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"transactions":[{"hash":"0x9","from":"0x1","to":"0x2","value":"1000000000000000000"}]}`))
	})

	reading := client.Transactions(context.Background(), chain.BNB, testAddr, 100)
	require.Equal(t, chain.StatusLive, reading.Status)
	require.Len(t, reading.Transactions, 1)
	assert.Equal(t, chain.BNB, reading.Transactions[0].Chain)
	assert.False(t, reading.Transactions[0].Timestamp.IsZero())
}

func TestTransactions_FailureIsEmptyNotNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	reading := client.Transactions(context.Background(), chain.ETH, testAddr, 5)
	assert.Equal(t, chain.StatusUnavailable, reading.Status)
	assert.NotNil(t, reading.Transactions)
	assert.Empty(t, reading.Transactions)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for range 10 {
		client.Balance(context.Background(), chain.ETH, testAddr)
	}
	assert.Equal(t, int32(6), calls.Load(), "breaker trips after 6 consecutive failures")

	// BNB has its own breaker.
	client.Balance(context.Background(), chain.BNB, testAddr)
	assert.Equal(t, int32(7), calls.Load())
}

func TestWeiToNative(t *testing.T) {
	v, err := weiToNative("1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	_, err = weiToNative("")
	assert.Error(t, err)
	_, err = weiToNative("-1")
	assert.Error(t, err)
	_, err = weiToNative("0xff")
	assert.Error(t, err)
}
