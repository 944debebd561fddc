package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/cashback/service/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "eligibility.0xabcdef", Subject("0xAbCdEf"))
	assert.Equal(t, "eligibility.7xkxtg2cw87", Subject("7xKXtg2CW87"))
}

func TestFromEligibilityResult(t *testing.T) {
	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := FromEligibilityResult(engine.EligibilityResult{
		WalletAddress:    "0xabc",
		IsEligible:       true,
		TotalAmountSent:  55,
		CashbackAmount:   1.1,
		TransactionCount: 2,
		Unit:             engine.UnitUSD,
		CheckedAt:        checked,
	})

	assert.Equal(t, "0xabc", event.WalletAddress)
	assert.True(t, event.IsEligible)
	assert.Equal(t, 1.1, event.CashbackAmount)
	assert.Equal(t, "usd", event.Unit)
	assert.Equal(t, checked, event.CheckedAt)
	assert.WithinDuration(t, time.Now(), event.PublishedAt, 5*time.Second)

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"wallet_address":"0xabc"`)
	assert.Contains(t, string(data), `"total_amount_sent":55`)
}

func TestMockPublisher(t *testing.T) {
	m := NewMockPublisher()
	ctx := context.Background()

	require.NoError(t, m.PublishEligibility(ctx, &EligibilityEvent{WalletAddress: "0xABC"}))
	require.NoError(t, m.PublishEligibility(ctx, &EligibilityEvent{WalletAddress: "other"}))
	assert.Equal(t, 2, m.GetPublishedEventCount())
	assert.Len(t, m.GetPublishedEventsForWallet("0xabc"), 1)

	m.SetPublishError(errors.New("nats down"))
	assert.Error(t, m.PublishEligibility(ctx, &EligibilityEvent{WalletAddress: "x"}))
	assert.Equal(t, 2, m.GetPublishedEventCount())

	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())

	m.Reset()
	assert.Equal(t, 0, m.GetPublishedEventCount())
	assert.False(t, m.IsClosed())
}
