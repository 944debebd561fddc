// Package source selects where chain data comes from: the live upstream
// adapters or a synthetic generator for demos without credentials.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/cashback/service/chain"
)

// Source supplies balances, transactions and prices for every chain.
// Implementations never return errors; failures are reported through the
// Status of each reading.
type Source interface {
	Balance(ctx context.Context, c chain.Chain, address string) chain.BalanceReading
	Transactions(ctx context.Context, c chain.Chain, address string, limit int) chain.TransactionsReading
	Prices(ctx context.Context) chain.PriceQuote
	Name() string
}

// SolanaAdapter reads the SOL chain.
type SolanaAdapter interface {
	Balance(ctx context.Context, address string) chain.BalanceReading
	Transactions(ctx context.Context, address string, limit int) chain.TransactionsReading
}

// Paced is implemented by adapters that throttle their own upstream calls.
// The pacing budget is added to the call timeout so throttling alone cannot
// exhaust it.
type Paced interface {
	PacingBudget(calls int) time.Duration
}

// EVMAdapter reads the EVM chains (ETH, BNB).
type EVMAdapter interface {
	Balance(ctx context.Context, c chain.Chain, address string) chain.BalanceReading
	Transactions(ctx context.Context, c chain.Chain, address string, limit int) chain.TransactionsReading
}

// PriceOracle quotes USD prices.
type PriceOracle interface {
	Prices(ctx context.Context) chain.PriceQuote
}

// Live dispatches to the upstream adapters, bounding every call with timeout.
type Live struct {
	solana  SolanaAdapter
	evm     EVMAdapter
	oracle  PriceOracle
	timeout time.Duration
}

// NewLive creates a live source. A zero timeout leaves calls unbounded.
func NewLive(sol SolanaAdapter, evm EVMAdapter, oracle PriceOracle, timeout time.Duration) *Live {
	return &Live{solana: sol, evm: evm, oracle: oracle, timeout: timeout}
}

func (l *Live) Name() string { return "live" }

func (l *Live) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return boundedBy(ctx, l.timeout)
}

func boundedBy(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (l *Live) Balance(ctx context.Context, c chain.Chain, address string) chain.BalanceReading {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	switch c {
	case chain.SOL:
		return l.solana.Balance(ctx, address)
	case chain.ETH, chain.BNB:
		return l.evm.Balance(ctx, c, address)
	}
	return chain.UnavailableBalance(fmt.Errorf("unsupported chain %q", c))
}

func (l *Live) Transactions(ctx context.Context, c chain.Chain, address string, limit int) chain.TransactionsReading {
	if c == chain.SOL {
		timeout := l.timeout
		if p, ok := l.solana.(Paced); ok && timeout > 0 {
			timeout += p.PacingBudget(limit)
		}
		ctx, cancel := boundedBy(ctx, timeout)
		defer cancel()
		return l.solana.Transactions(ctx, address, limit)
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	switch c {
	case chain.ETH, chain.BNB:
		return l.evm.Transactions(ctx, c, address, limit)
	}
	return chain.UnavailableTransactions(fmt.Errorf("unsupported chain %q", c))
}

func (l *Live) Prices(ctx context.Context) chain.PriceQuote {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	return l.oracle.Prices(ctx)
}
