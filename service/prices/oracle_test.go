package prices

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/brojonat/cashback/service/chain"
	"github.com/stretchr/testify/assert"
)

func newTestOracle(t *testing.T, coingecko, binance http.HandlerFunc) *Oracle {
	t.Helper()
	cg := httptest.NewServer(coingecko)
	t.Cleanup(cg.Close)
	bn := httptest.NewServer(binance)
	t.Cleanup(bn.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOracle(cg.URL, bn.URL, nil, nil, logger)
}

func failing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusInternalServerError)
}

func TestPrices_CoinGecko(t *testing.T) {
	var binanceCalls atomic.Int32
	o := newTestOracle(t,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/simple/price", r.URL.Path)
			assert.Equal(t, "solana,ethereum,binancecoin", r.URL.Query().Get("ids"))
			assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
			w.Write([]byte(`{"solana":{"usd":150.5},"ethereum":{"usd":3000},"binancecoin":{"usd":600.25}}`))
		},
		func(w http.ResponseWriter, r *http.Request) { binanceCalls.Add(1) },
	)

	q := o.Prices(context.Background())
	assert.Equal(t, SourceCoinGecko, q.Source)
	assert.Equal(t, chain.StatusLive, q.Status)
	assert.Equal(t, 150.5, q.Price(chain.SOL))
	assert.Equal(t, 3000.0, q.Price(chain.ETH))
	assert.Equal(t, 600.25, q.Price(chain.BNB))
	assert.Zero(t, binanceCalls.Load(), "secondary is only tried after primary fails")
}

func TestPrices_FallsBackToBinance(t *testing.T) {
	o := newTestOracle(t,
		failing,
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ticker/price", r.URL.Path)
			assert.Equal(t, `["SOLUSDT","ETHUSDT","BNBUSDT"]`, r.URL.Query().Get("symbols"))
			w.Write([]byte(`[{"symbol":"SOLUSDT","price":"151.00"},{"symbol":"ETHUSDT","price":"3001.10"},{"symbol":"BNBUSDT","price":"601.00"}]`))
		},
	)

	q := o.Prices(context.Background())
	assert.Equal(t, SourceBinance, q.Source)
	assert.Equal(t, chain.StatusLive, q.Status)
	assert.Equal(t, 3001.10, q.Price(chain.ETH))
}

func TestPrices_PartialCoinGeckoFallsBack(t *testing.T) {
	o := newTestOracle(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"solana":{"usd":150}}`))
		},
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"symbol":"SOLUSDT","price":"1"},{"symbol":"ETHUSDT","price":"2"},{"symbol":"BNBUSDT","price":"3"}]`))
		},
	)

	q := o.Prices(context.Background())
	assert.Equal(t, SourceBinance, q.Source)
}

func TestPrices_StaticDefaults(t *testing.T) {
	o := newTestOracle(t, failing, failing)

	q := o.Prices(context.Background())
	assert.Equal(t, SourceStatic, q.Source)
	assert.Equal(t, chain.StatusUnavailable, q.Status)
	assert.Equal(t, 180.0, q.Price(chain.SOL))
	assert.Equal(t, 2800.0, q.Price(chain.ETH))
	assert.Equal(t, 550.0, q.Price(chain.BNB))

	// Callers may not mutate the package defaults through a quote.
	q.Prices[chain.SOL] = 1
	assert.Equal(t, 180.0, StaticPrices[chain.SOL])
}
