package engine

import (
	"context"

	"github.com/brojonat/cashback/service/chain"
	"github.com/shopspring/decimal"
)

var (
	threshold    = decimal.NewFromFloat(EligibilityThreshold)
	cashbackRate = decimal.NewFromFloat(CashbackRate)
)

// CheckEligibility sums what address sent to the active tax wallets and
// decides whether it earned cashback. The threshold and cashback use the
// exact total; only the reported amounts are rounded to cents.
func (e *Engine) CheckEligibility(ctx context.Context, address string) EligibilityResult {
	history := e.AllTaxWalletTransactions(ctx, PeriodAll)
	result := Evaluate(address, history.Transactions, e.unit)
	result.CheckedAt = e.now().UTC()
	result.Degraded = history.Degraded

	outcome := "not_eligible"
	if result.IsEligible {
		outcome = "eligible"
	}
	e.metrics.RecordEligibilityCheck(outcome)
	e.logger.InfoContext(ctx, "eligibility checked",
		"wallet", address,
		"eligible", result.IsEligible,
		"total", result.TotalAmountSent,
		"transactions", result.TransactionCount,
		"degraded", len(result.Degraded),
	)
	return result
}

// Evaluate applies the eligibility rule to an already classified history.
func Evaluate(address string, txs []chain.TransactionRecord, unit Unit) EligibilityResult {
	qualifying := []chain.TransactionRecord{}
	total := decimal.Zero
	for _, tx := range txs {
		if !tx.IsTaxWallet || !chain.SameAddress(tx.From, address) {
			continue
		}
		qualifying = append(qualifying, tx)
		total = total.Add(decimal.NewFromFloat(measure(tx, unit)))
	}

	eligible := total.GreaterThanOrEqual(threshold)
	cashback := decimal.Zero
	if eligible {
		cashback = total.Mul(cashbackRate)
	}

	return EligibilityResult{
		WalletAddress:    address,
		IsEligible:       eligible,
		TotalAmountSent:  round2(total),
		CashbackAmount:   round2(cashback),
		TransactionCount: len(qualifying),
		Transactions:     qualifying,
		Threshold:        EligibilityThreshold,
		Unit:             unit,
	}
}

func measure(tx chain.TransactionRecord, unit Unit) float64 {
	if unit == UnitNative {
		return tx.Amount
	}
	return tx.USDValue
}
