// Package prices quotes USD prices for the native assets of every supported
// chain, falling back from CoinGecko to Binance to static defaults.
package prices

import (
	"context"
	"encoding/json"
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
)

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	DefaultBinanceURL   = "https://api.binance.com/api/v3"

	SourceCoinGecko = "coingecko"
	SourceBinance   = "binance"
	SourceStatic    = "static"
)

// StaticPrices are served when both upstream sources fail.
var StaticPrices = map[chain.Chain]float64{
	chain.SOL: 180,
	chain.ETH: 2800,
	chain.BNB: 550,
}

var coinGeckoIDs = map[chain.Chain]string{
	chain.SOL: "solana",
	chain.ETH: "ethereum",
	chain.BNB: "binancecoin",
}

var binanceSymbols = map[chain.Chain]string{
	chain.SOL: "SOLUSDT",
	chain.ETH: "ETHUSDT",
	chain.BNB: "BNBUSDT",
}

// Oracle fetches prices. It never fails.
type Oracle struct {
	coinGeckoURL string
	binanceURL   string
	httpClient   *http.Client
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewOracle creates a price oracle. Empty URLs select the public endpoints.
func NewOracle(coinGeckoURL, binanceURL string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Oracle {
	if coinGeckoURL == "" {
		coinGeckoURL = DefaultCoinGeckoURL
	}
	if binanceURL == "" {
		binanceURL = DefaultBinanceURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Oracle{
		coinGeckoURL: strings.TrimRight(coinGeckoURL, "/"),
		binanceURL:   strings.TrimRight(binanceURL, "/"),
		httpClient:   httpClient,
		logger:       logger.With("component", "prices"),
		metrics:      m,
		now:          time.Now,
	}
}

// Prices returns the current USD quote for every chain.
func (o *Oracle) Prices(ctx context.Context) chain.PriceQuote {
	prices, err := o.fromCoinGecko(ctx)
	if err == nil {
		return o.quote(prices, SourceCoinGecko, chain.StatusLive)
	}
	o.logger.WarnContext(ctx, "coingecko price fetch failed, trying binance", "error", err)

	prices, err = o.fromBinance(ctx)
	if err == nil {
		return o.quote(prices, SourceBinance, chain.StatusLive)
	}
	o.logger.WarnContext(ctx, "binance price fetch failed, using static prices", "error", err)

	static := make(map[chain.Chain]float64, len(StaticPrices))
	for k, v := range StaticPrices {
		static[k] = v
	}
	return o.quote(static, SourceStatic, chain.StatusUnavailable)
}

func (o *Oracle) quote(prices map[chain.Chain]float64, source string, status chain.Status) chain.PriceQuote {
	o.metrics.RecordPriceSource(source)
	return chain.PriceQuote{
		Prices:    prices,
		Source:    source,
		Status:    status,
		FetchedAt: o.now().UTC(),
	}
}

func (o *Oracle) fromCoinGecko(ctx context.Context) (map[chain.Chain]float64, error) {
	ids := make([]string, 0, len(chain.All))
	for _, c := range chain.All {
		ids = append(ids, coinGeckoIDs[c])
	}
	q := url.Values{
		"ids":           {strings.Join(ids, ",")},
		"vs_currencies": {"usd"},
	}

	var body map[string]struct {
		USD *float64 `json:"usd"`
	}
	if err := o.getJSON(ctx, SourceCoinGecko, o.coinGeckoURL+"/simple/price?"+q.Encode(), &body); err != nil {
		return nil, err
	}

	out := make(map[chain.Chain]float64, len(chain.All))
	for _, c := range chain.All {
		entry, ok := body[coinGeckoIDs[c]]
		if !ok || entry.USD == nil {
			return nil, fmt.Errorf("coingecko response missing %s", coinGeckoIDs[c])
		}
		out[c] = *entry.USD
	}
	return out, nil
}

func (o *Oracle) fromBinance(ctx context.Context) (map[chain.Chain]float64, error) {
	symbols := make([]string, 0, len(chain.All))
	for _, c := range chain.All {
		symbols = append(symbols, strconv.Quote(binanceSymbols[c]))
	}
	q := url.Values{"symbols": {"[" + strings.Join(symbols, ",") + "]"}}

	var body []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := o.getJSON(ctx, SourceBinance, o.binanceURL+"/ticker/price?"+q.Encode(), &body); err != nil {
		return nil, err
	}

	bySymbol := make(map[string]float64, len(body))
	for _, t := range body {
		p, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("binance price for %s: %w", t.Symbol, err)
		}
		bySymbol[t.Symbol] = p
	}

	out := make(map[chain.Chain]float64, len(chain.All))
	for _, c := range chain.All {
		p, ok := bySymbol[binanceSymbols[c]]
		if !ok {
			return nil, fmt.Errorf("binance response missing %s", binanceSymbols[c])
		}
		out[c] = p
	}
	return out, nil
}

func (o *Oracle) getJSON(ctx context.Context, source, rawURL string, out any) error {
	start := time.Now()
	err := o.doGet(ctx, rawURL, out)
	status := "success"
	if err != nil {
		status = "error"
	}
	o.metrics.RecordAdapterCall("PRICE", source, status, time.Since(start).Seconds())
	return err
}

func (o *Oracle) doGet(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
