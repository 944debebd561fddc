package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/cashback/service/chain"
)

const (
	// EligibilityThreshold is the inclusive minimum total a wallet must send.
	EligibilityThreshold = 50.0
	// CashbackRate is the share of the total paid back to eligible wallets.
	CashbackRate = 0.02

	// TaxWalletTxLimit is how many transactions are read per tax wallet.
	TaxWalletTxLimit = 100
	// WalletTxLimit is how many transactions are read per chain for an arbitrary wallet.
	WalletTxLimit = 5
	// DashboardTxLimit is how many transactions per tax wallet the dashboard counts.
	DashboardTxLimit = 20
)

// Unit selects how eligibility totals are measured.
type Unit string

const (
	// UnitUSD sums the USD value of each transfer priced at fetch time.
	UnitUSD Unit = "usd"
	// UnitNative sums raw native amounts regardless of chain.
	UnitNative Unit = "native"
)

// Period names a summary bucket. It never filters returned transactions.
type Period string

const (
	PeriodAll     Period = "all"
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod accepts the bucket names; empty means all.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodAll, nil
	case PeriodAll, PeriodDaily, PeriodWeekly, PeriodMonthly:
		return p, nil
	}
	return "", fmt.Errorf("invalid period %q: must be daily, weekly, monthly or all", s)
}

// TransactionSummary holds time-bucketed counts over one transaction list.
type TransactionSummary struct {
	Total          int       `json:"total"`
	Daily          int       `json:"daily"`
	Weekly         int       `json:"weekly"`
	Monthly        int       `json:"monthly"`
	TotalVolume    float64   `json:"totalVolume"`
	TotalVolumeUSD float64   `json:"totalVolumeUsd"`
	ComputedAt     time.Time `json:"computedAt"`
}

// Count returns the bucket selected by p.
func (s TransactionSummary) Count(p Period) int {
	switch p {
	case PeriodDaily:
		return s.Daily
	case PeriodWeekly:
		return s.Weekly
	case PeriodMonthly:
		return s.Monthly
	}
	return s.Total
}

// TaxWalletTransactions is the combined history of every active tax wallet.
type TaxWalletTransactions struct {
	Transactions []chain.TransactionRecord `json:"transactions"`
	Summary      TransactionSummary        `json:"summary"`
	Period       Period                    `json:"period"`
	Degraded     []chain.Chain             `json:"degraded"`
	Source       string                    `json:"source"`
}

// WalletData is the view of an arbitrary wallet across every chain.
type WalletData struct {
	Address        string                    `json:"address"`
	Balances       []chain.BalanceSnapshot   `json:"balances"`
	Transactions   []chain.TransactionRecord `json:"transactions"`
	TotalVolume    float64                   `json:"totalVolume"`
	TotalVolumeUSD float64                   `json:"totalVolumeUsd"`
	Degraded       []chain.Chain             `json:"degraded"`
	Source         string                    `json:"source"`
}

// EligibilityResult is the outcome of one eligibility check.
type EligibilityResult struct {
	WalletAddress    string                    `json:"walletAddress"`
	IsEligible       bool                      `json:"isEligible"`
	TotalAmountSent  float64                   `json:"totalAmountSent"`
	CashbackAmount   float64                   `json:"cashbackAmount"`
	TransactionCount int                       `json:"transactionCount"`
	Transactions     []chain.TransactionRecord `json:"transactions"`
	CheckedAt        time.Time                 `json:"checkedAt"`
	Threshold        float64                   `json:"threshold"`
	Unit             Unit                      `json:"unit"`
	Degraded         []chain.Chain             `json:"degraded"`
}

// Dashboard is the top-level overview of the program's tax wallets.
type Dashboard struct {
	Balances          []chain.BalanceSnapshot `json:"balances"`
	TotalVolume       float64                 `json:"totalVolume"`
	TotalTransactions int                     `json:"totalTransactions"`
	LastUpdated       time.Time               `json:"lastUpdated"`
	Live              bool                    `json:"live"`
	Source            string                  `json:"source"`
}
