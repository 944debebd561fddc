package engine

import (
	"sort"
	"time"

	"github.com/brojonat/cashback/service/chain"
	"github.com/shopspring/decimal"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
)

// Summarize buckets txs relative to a single now. A transaction exactly on a
// bucket boundary is inside the bucket.
func Summarize(txs []chain.TransactionRecord, now time.Time) TransactionSummary {
	dayAgo, weekAgo, monthAgo := now.Add(-day), now.Add(-week), now.Add(-month)

	s := TransactionSummary{Total: len(txs), ComputedAt: now}
	volume, volumeUSD := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if !tx.Timestamp.Before(dayAgo) {
			s.Daily++
		}
		if !tx.Timestamp.Before(weekAgo) {
			s.Weekly++
		}
		if !tx.Timestamp.Before(monthAgo) {
			s.Monthly++
		}
		volume = volume.Add(decimal.NewFromFloat(tx.Amount))
		volumeUSD = volumeUSD.Add(decimal.NewFromFloat(tx.USDValue))
	}
	s.TotalVolume = volume.InexactFloat64()
	s.TotalVolumeUSD = volumeUSD.Round(2).InexactFloat64()
	return s
}

// sortNewestFirst orders txs by descending timestamp.
func sortNewestFirst(txs []chain.TransactionRecord) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})
}

// round2 rounds half away from zero at the cent boundary.
func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
