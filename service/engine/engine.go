// Package engine combines the chain adapters into balances, transaction
// summaries and cashback eligibility. Every operation is total: adapter
// failures degrade the result instead of surfacing as errors.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/cashback/service/chain"
	"github.com/brojonat/cashback/service/metrics"
	"github.com/brojonat/cashback/service/source"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Engine is stateless between calls; it is safe for concurrent use.
type Engine struct {
	source   source.Source
	registry *chain.Registry
	unit     Unit
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithUnit selects the eligibility measurement unit.
func WithUnit(u Unit) Option {
	return func(e *Engine) { e.unit = u }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics records engine metrics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine reading from src with the tax wallets in registry.
func New(src source.Source, registry *chain.Registry, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		source:   src,
		registry: registry,
		unit:     UnitUSD,
		logger:   logger.With("component", "engine"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SourceName reports which data source backs the engine.
func (e *Engine) SourceName() string {
	return e.source.Name()
}

// TaxWallets returns the active tax wallets.
func (e *Engine) TaxWallets() []chain.TaxWalletConfig {
	return e.registry.Active()
}

// Prices returns the current price quote.
func (e *Engine) Prices(ctx context.Context) chain.PriceQuote {
	return e.source.Prices(ctx)
}

// CurrentBalances returns one snapshot per supported chain for the active tax
// wallets, always in chain.All order. A chain whose balance could not be read
// reports zero with StatusUnavailable.
func (e *Engine) CurrentBalances(ctx context.Context) []chain.BalanceSnapshot {
	start := time.Now()
	now := e.now().UTC()

	readings := make([]chain.BalanceReading, len(chain.All))
	var quote chain.PriceQuote

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		quote = e.source.Prices(gctx)
		return nil
	})
	for i, c := range chain.All {
		g.Go(func() error {
			wallet, ok := e.registry.ActiveFor(c)
			if !ok {
				readings[i] = chain.BalanceReading{Status: chain.StatusUnavailable, Err: "no active tax wallet"}
				return nil
			}
			readings[i] = e.source.Balance(gctx, c, wallet.Address)
			return nil
		})
	}
	_ = g.Wait()

	snapshots := make([]chain.BalanceSnapshot, len(chain.All))
	for i, c := range chain.All {
		snapshots[i] = e.snapshot(c, readings[i], quote, now)
		if readings[i].Status == chain.StatusUnavailable {
			e.logger.WarnContext(ctx, "tax wallet balance unavailable", "chain", c, "error", readings[i].Err)
		}
	}

	e.metrics.RecordAggregation("current_balances", 0, time.Since(start).Seconds())
	return snapshots
}

func (e *Engine) snapshot(c chain.Chain, r chain.BalanceReading, quote chain.PriceQuote, now time.Time) chain.BalanceSnapshot {
	s := chain.BalanceSnapshot{
		Chain:       c,
		Symbol:      c.Symbol(),
		LastUpdated: now,
		Status:      r.Status,
	}
	if r.Status == chain.StatusUnavailable {
		return s
	}
	s.Balance = r.Amount
	s.USDValue = decimal.NewFromFloat(r.Amount).Mul(decimal.NewFromFloat(quote.Price(c))).InexactFloat64()
	return s
}

// TotalVolume sums the USD value of the current tax wallet balances.
func (e *Engine) TotalVolume(ctx context.Context) float64 {
	return sumUSD(e.CurrentBalances(ctx))
}

func sumUSD(snapshots []chain.BalanceSnapshot) float64 {
	total := decimal.Zero
	for _, s := range snapshots {
		total = total.Add(decimal.NewFromFloat(s.USDValue))
	}
	return total.InexactFloat64()
}

// AllTaxWalletTransactions returns up to TaxWalletTxLimit transactions from
// every active tax wallet, newest first. period is echoed back and selects
// nothing: the list is always complete and the summary always has every bucket.
func (e *Engine) AllTaxWalletTransactions(ctx context.Context, period Period) TaxWalletTransactions {
	if period == "" {
		period = PeriodAll
	}
	start := time.Now()
	now := e.now().UTC()

	txs, degraded := e.fetchTaxWalletTransactions(ctx, TaxWalletTxLimit, true)
	sortNewestFirst(txs)

	e.metrics.RecordAggregation("tax_wallet_transactions", len(txs), time.Since(start).Seconds())
	return TaxWalletTransactions{
		Transactions: txs,
		Summary:      Summarize(txs, now),
		Period:       period,
		Degraded:     degraded,
		Source:       e.source.Name(),
	}
}

// fetchTaxWalletTransactions reads every active tax wallet in parallel.
// A failing wallet contributes nothing and is reported as degraded.
func (e *Engine) fetchTaxWalletTransactions(ctx context.Context, limit int, priced bool) ([]chain.TransactionRecord, []chain.Chain) {
	wallets := e.registry.Active()
	readings := make([]chain.TransactionsReading, len(wallets))
	var quote chain.PriceQuote

	g, gctx := errgroup.WithContext(ctx)
	if priced {
		g.Go(func() error {
			quote = e.source.Prices(gctx)
			return nil
		})
	}
	for i, w := range wallets {
		g.Go(func() error {
			readings[i] = e.source.Transactions(gctx, w.Chain, w.Address, limit)
			return nil
		})
	}
	_ = g.Wait()

	var (
		all      []chain.TransactionRecord
		degraded = []chain.Chain{}
	)
	for i, r := range readings {
		if r.Incomplete() {
			e.logger.WarnContext(ctx, "tax wallet transactions incomplete",
				"chain", wallets[i].Chain,
				"wallet", wallets[i].Address,
				"status", r.Status,
				"error", r.Err,
			)
			degraded = append(degraded, wallets[i].Chain)
		}
		if r.Status == chain.StatusUnavailable {
			continue
		}
		all = append(all, e.prepare(r.Transactions, quote)...)
	}
	if all == nil {
		all = []chain.TransactionRecord{}
	}
	return all, degraded
}

// prepare recomputes the tax wallet flag and USD value of every record.
func (e *Engine) prepare(txs []chain.TransactionRecord, quote chain.PriceQuote) []chain.TransactionRecord {
	out := e.registry.Classify(txs)
	for i := range out {
		out[i].USDValue = decimal.NewFromFloat(out[i].Amount).
			Mul(decimal.NewFromFloat(quote.Price(out[i].Chain))).
			InexactFloat64()
	}
	return out
}

// WalletData reads balances and recent transactions of address on every chain.
func (e *Engine) WalletData(ctx context.Context, address string) WalletData {
	start := time.Now()
	now := e.now().UTC()

	balances := make([]chain.BalanceReading, len(chain.All))
	histories := make([]chain.TransactionsReading, len(chain.All))
	var quote chain.PriceQuote

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		quote = e.source.Prices(gctx)
		return nil
	})
	for i, c := range chain.All {
		g.Go(func() error {
			balances[i] = e.source.Balance(gctx, c, address)
			return nil
		})
		g.Go(func() error {
			histories[i] = e.source.Transactions(gctx, c, address, WalletTxLimit)
			return nil
		})
	}
	_ = g.Wait()

	data := WalletData{
		Address:      address,
		Balances:     make([]chain.BalanceSnapshot, len(chain.All)),
		Transactions: []chain.TransactionRecord{},
		Degraded:     []chain.Chain{},
		Source:       e.source.Name(),
	}
	degraded := make(map[chain.Chain]bool)
	for i, c := range chain.All {
		data.Balances[i] = e.snapshot(c, balances[i], quote, now)
		if balances[i].Status == chain.StatusUnavailable {
			degraded[c] = true
		}
		if histories[i].Incomplete() {
			degraded[c] = true
		}
		if histories[i].Status == chain.StatusUnavailable {
			continue
		}
		data.Transactions = append(data.Transactions, e.prepare(histories[i].Transactions, quote)...)
	}
	for _, c := range chain.All {
		if degraded[c] {
			data.Degraded = append(data.Degraded, c)
		}
	}
	sortNewestFirst(data.Transactions)

	volume, volumeUSD := decimal.Zero, decimal.Zero
	for _, tx := range data.Transactions {
		if tx.IsTaxWallet {
			volume = volume.Add(decimal.NewFromFloat(tx.Amount))
			volumeUSD = volumeUSD.Add(decimal.NewFromFloat(tx.USDValue))
		}
	}
	data.TotalVolume = volume.InexactFloat64()
	data.TotalVolumeUSD = round2(volumeUSD)

	e.metrics.RecordAggregation("wallet_data", len(data.Transactions), time.Since(start).Seconds())
	return data
}

// TotalTransactions counts up to DashboardTxLimit recent transactions per
// active tax wallet.
func (e *Engine) TotalTransactions(ctx context.Context) int {
	txs, _ := e.fetchTaxWalletTransactions(ctx, DashboardTxLimit, false)
	return len(txs)
}

// Dashboard combines balances, volume and transaction count.
func (e *Engine) Dashboard(ctx context.Context) Dashboard {
	var (
		balances []chain.BalanceSnapshot
		count    int
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		balances = e.CurrentBalances(ctx)
	}()
	go func() {
		defer wg.Done()
		count = e.TotalTransactions(ctx)
	}()
	wg.Wait()

	live := true
	for _, b := range balances {
		if !b.Live() {
			live = false
		}
	}
	return Dashboard{
		Balances:          balances,
		TotalVolume:       sumUSD(balances),
		TotalTransactions: count,
		LastUpdated:       e.now().UTC(),
		Live:              live,
		Source:            e.source.Name(),
	}
}
