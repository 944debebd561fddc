package nats

import (
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/cashback/service/engine"
)

// EligibilityEvent is published to "eligibility.{wallet}" whenever a wallet
// is found eligible for cashback.
type EligibilityEvent struct {
	WalletAddress    string    `json:"wallet_address"`
	IsEligible       bool      `json:"is_eligible"`
	TotalAmountSent  float64   `json:"total_amount_sent"`
	CashbackAmount   float64   `json:"cashback_amount"`
	TransactionCount int       `json:"transaction_count"`
	Unit             string    `json:"unit"`
	CheckedAt        time.Time `json:"checked_at"`
	PublishedAt      time.Time `json:"published_at"`
}

// FromEligibilityResult converts an engine result into an event.
func FromEligibilityResult(r engine.EligibilityResult) *EligibilityEvent {
	return &EligibilityEvent{
		WalletAddress:    r.WalletAddress,
		IsEligible:       r.IsEligible,
		TotalAmountSent:  r.TotalAmountSent,
		CashbackAmount:   r.CashbackAmount,
		TransactionCount: r.TransactionCount,
		Unit:             string(r.Unit),
		CheckedAt:        r.CheckedAt,
		PublishedAt:      time.Now().UTC(),
	}
}

// Subject returns the subject an event for wallet is published to.
// Addresses are lowercased so that one wallet maps to one subject.
func Subject(wallet string) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, strings.ToLower(wallet))
}
