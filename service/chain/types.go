// Package chain holds the domain types shared by the chain adapters, the
// aggregation engine and the transport layer.
package chain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Chain identifies one of the supported networks.
type Chain string

const (
	SOL Chain = "SOL"
	ETH Chain = "ETH"
	BNB Chain = "BNB"
)

// All lists the supported chains in display order.
var All = []Chain{SOL, ETH, BNB}

// ParseChain accepts any casing of a supported chain identifier.
func ParseChain(s string) (Chain, error) {
	c := Chain(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case SOL, ETH, BNB:
		return c, nil
	}
	return "", fmt.Errorf("unsupported chain %q", s)
}

// Symbol returns the native asset ticker of the chain.
func (c Chain) Symbol() string {
	return string(c)
}

// Status says how much a reading can be trusted.
type Status string

const (
	// StatusLive is a value verified against an upstream source.
	StatusLive Status = "live"
	// StatusUnavailable marks a neutral value substituted after a failure.
	// A zero balance with this status means "unknown", not "empty".
	StatusUnavailable Status = "unavailable"
	// StatusSynthetic marks demo data produced without upstream access.
	StatusSynthetic Status = "synthetic"
	// StatusPartial marks a transaction list that was cut short. The records
	// present are real but the history is incomplete.
	StatusPartial Status = "partial"
)

// TransactionRecord is one observed transfer on one chain.
// Amount is in the chain's native unit; USDValue is Amount priced at fetch time.
type TransactionRecord struct {
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Amount      float64   `json:"amount"`
	USDValue    float64   `json:"usdValue"`
	Timestamp   time.Time `json:"timestamp"`
	Chain       Chain     `json:"chain"`
	IsTaxWallet bool      `json:"isTaxWallet"`
}

// BalanceSnapshot is the holding of one native asset for one address.
type BalanceSnapshot struct {
	Chain       Chain     `json:"chain"`
	Symbol      string    `json:"symbol"`
	Balance     float64   `json:"balance"`
	USDValue    float64   `json:"usdValue"`
	LastUpdated time.Time `json:"lastUpdated"`
	Status      Status    `json:"status"`
}

// Live reports whether the snapshot reflects upstream data.
func (b BalanceSnapshot) Live() bool {
	return b.Status == StatusLive
}

// BalanceReading is an adapter's answer to a balance query.
type BalanceReading struct {
	Amount float64
	Status Status
	Err    string
}

// TransactionsReading is an adapter's answer to a transaction history query.
type TransactionsReading struct {
	Transactions []TransactionRecord
	Status       Status
	Err          string
}

// Incomplete reports whether the reading should mark its chain degraded.
func (r TransactionsReading) Incomplete() bool {
	return r.Status == StatusUnavailable || r.Status == StatusPartial
}

// PriceQuote holds USD prices for every supported chain's native asset.
type PriceQuote struct {
	Prices    map[Chain]float64 `json:"prices"`
	Source    string            `json:"source"`
	Status    Status            `json:"status"`
	FetchedAt time.Time         `json:"fetchedAt"`
}

// Price returns the USD price for c, or 0 when the quote has none.
func (q PriceQuote) Price(c Chain) float64 {
	if q.Prices == nil {
		return 0
	}
	return q.Prices[c]
}

// UnavailableBalance builds a degraded balance reading.
func UnavailableBalance(err error) BalanceReading {
	r := BalanceReading{Status: StatusUnavailable}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// UnavailableTransactions builds a degraded, empty transaction reading.
func UnavailableTransactions(err error) TransactionsReading {
	r := TransactionsReading{Transactions: []TransactionRecord{}, Status: StatusUnavailable}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// SameAddress compares addresses case-insensitively. Empty never matches.
func SameAddress(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

var walletAddressPattern = regexp.MustCompile(`^(0x[a-fA-F0-9]{40}|[1-9A-HJ-NP-Za-km-z]{32,44})$`)

// ValidWalletAddress accepts a 0x-prefixed 40 hex digit address or a
// 32 to 44 character base58 address.
func ValidWalletAddress(address string) bool {
	return walletAddressPattern.MatchString(address)
}
