package source

import (
	"context"
	"encoding/hex"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/brojonat/cashback/service/chain"
	"github.com/gagliardetto/solana-go"
)

// demoBalances approximate the tax wallets of the running program.
var demoBalances = map[chain.Chain]float64{
	chain.SOL: 0.123218,
	chain.ETH: 0.003175,
	chain.BNB: 0,
}

var demoPrices = map[chain.Chain]float64{
	chain.SOL: 202.16,
	chain.ETH: 4097.64,
	chain.BNB: 550,
}

// typical transfer size in native units
var demoTransferSize = map[chain.Chain]float64{
	chain.SOL: 0.5,
	chain.ETH: 0.02,
	chain.BNB: 0.1,
}

// Synthetic produces plausible demo data. Every reading is tagged
// StatusSynthetic so it can never pass for live data.
type Synthetic struct {
	registry  *chain.Registry
	customers map[chain.Chain][]string
	now       func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthetic creates a synthetic source. Transfers are directed at the
// registry's wallets so eligibility checks have something to find.
func NewSynthetic(registry *chain.Registry, seed uint64) *Synthetic {
	s := &Synthetic{
		registry:  registry,
		customers: make(map[chain.Chain][]string),
		now:       time.Now,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	for _, c := range chain.All {
		for range 8 {
			s.customers[c] = append(s.customers[c], s.randomAddress(c))
		}
	}
	return s
}

func (s *Synthetic) Name() string { return "synthetic" }

// Customers returns the demo sender addresses for c.
func (s *Synthetic) Customers(c chain.Chain) []string {
	out := make([]string, len(s.customers[c]))
	copy(out, s.customers[c])
	return out
}

func (s *Synthetic) Balance(ctx context.Context, c chain.Chain, address string) chain.BalanceReading {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := demoBalances[c]
	if !ok {
		return chain.BalanceReading{Status: chain.StatusSynthetic}
	}
	if !s.registry.IsTaxWallet(address, c) {
		base = demoTransferSize[c] * (1 + s.rng.Float64()*4)
	}
	return chain.BalanceReading{
		Amount: base * s.jitter(),
		Status: chain.StatusSynthetic,
	}
}

func (s *Synthetic) Transactions(ctx context.Context, c chain.Chain, address string, limit int) chain.TransactionsReading {
	s.mu.Lock()
	defer s.mu.Unlock()

	reading := chain.TransactionsReading{
		Transactions: []chain.TransactionRecord{},
		Status:       chain.StatusSynthetic,
	}
	customers := s.customers[c]
	if len(customers) == 0 || limit <= 0 {
		return reading
	}

	tax, hasTax := s.registry.ActiveFor(c)
	incoming := hasTax && chain.SameAddress(tax.Address, address)

	n := min(limit, 5+s.rng.IntN(10))
	now := s.now().UTC()
	for range n {
		tx := chain.TransactionRecord{
			Hash:      s.randomHash(c),
			Amount:    demoTransferSize[c] * (0.2 + s.rng.Float64()*3),
			Timestamp: now.Add(-time.Duration(s.rng.Int64N(int64(30 * 24 * time.Hour)))),
			Chain:     c,
		}
		switch {
		case incoming:
			tx.From = customers[s.rng.IntN(len(customers))]
			tx.To = address
		case hasTax && s.rng.Float64() < 0.7:
			tx.From = address
			tx.To = tax.Address
		default:
			tx.From = address
			tx.To = s.randomAddress(c)
		}
		reading.Transactions = append(reading.Transactions, tx)
	}

	sort.Slice(reading.Transactions, func(i, j int) bool {
		return reading.Transactions[i].Timestamp.After(reading.Transactions[j].Timestamp)
	})
	return reading
}

func (s *Synthetic) Prices(ctx context.Context) chain.PriceQuote {
	s.mu.Lock()
	defer s.mu.Unlock()

	prices := make(map[chain.Chain]float64, len(demoPrices))
	for c, p := range demoPrices {
		prices[c] = p * s.jitter()
	}
	return chain.PriceQuote{
		Prices:    prices,
		Source:    "synthetic",
		Status:    chain.StatusSynthetic,
		FetchedAt: s.now().UTC(),
	}
}

// jitter returns a multiplier in [0.98, 1.02).
func (s *Synthetic) jitter() float64 {
	return 0.98 + s.rng.Float64()*0.04
}

func (s *Synthetic) randomAddress(c chain.Chain) string {
	var b [32]byte
	for i := range b {
		b[i] = byte(s.rng.UintN(256))
	}
	if c == chain.SOL {
		return solana.PublicKeyFromBytes(b[:]).String()
	}
	return "0x" + hex.EncodeToString(b[:20])
}

func (s *Synthetic) randomHash(c chain.Chain) string {
	var b [64]byte
	for i := range b {
		b[i] = byte(s.rng.UintN(256))
	}
	if c == chain.SOL {
		return solana.SignatureFromBytes(b[:]).String()
	}
	return "0x" + hex.EncodeToString(b[:32])
}
