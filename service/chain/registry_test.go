package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChain(t *testing.T) {
	c, err := ParseChain(" eth ")
	require.NoError(t, err)
	assert.Equal(t, ETH, c)

	c, err = ParseChain("Sol")
	require.NoError(t, err)
	assert.Equal(t, SOL, c)

	_, err = ParseChain("BTC")
	assert.Error(t, err)
}

func TestRegistry_IsTaxWallet_CaseInsensitive(t *testing.T) {
	reg := NewRegistry(TaxWalletConfig{Address: "0xabc0000000000000000000000000000000000DEF", Chain: ETH, IsActive: true})

	assert.True(t, reg.IsTaxWallet("0xABC0000000000000000000000000000000000def", ETH))
	assert.False(t, reg.IsTaxWallet("0xABC0000000000000000000000000000000000def", BNB), "chain must match")
	assert.False(t, reg.IsTaxWallet("", ETH))
}

func TestRegistry_InactiveIsIgnored(t *testing.T) {
	reg := NewRegistry(
		TaxWalletConfig{Address: "0xT", Chain: ETH, IsActive: false},
		TaxWalletConfig{Address: "SoLTax", Chain: SOL, IsActive: true},
	)

	assert.False(t, reg.IsTaxWallet("0xT", ETH))
	assert.Len(t, reg.Active(), 1)
	assert.Len(t, reg.All(), 2)

	_, ok := reg.ActiveFor(ETH)
	assert.False(t, ok)
	w, ok := reg.ActiveFor(SOL)
	require.True(t, ok)
	assert.Equal(t, "SoLTax", w.Address)
}

func TestRegistry_ClassifyDoesNotMutateInput(t *testing.T) {
	txs := []TransactionRecord{
		{Hash: "a", To: "0xT", Chain: ETH, Timestamp: time.Now()},
		{Hash: "b", To: "0xother", Chain: ETH, Timestamp: time.Now()},
	}

	active := NewRegistry(TaxWalletConfig{Address: "0xt", Chain: ETH, IsActive: true})
	classified := active.Classify(txs)
	assert.True(t, classified[0].IsTaxWallet)
	assert.False(t, classified[1].IsTaxWallet)

	// Deactivating means a new registry; earlier output is untouched.
	inactive := NewRegistry(TaxWalletConfig{Address: "0xt", Chain: ETH, IsActive: false})
	reclassified := inactive.Classify(classified)
	assert.False(t, reclassified[0].IsTaxWallet)
	assert.True(t, classified[0].IsTaxWallet)
	assert.False(t, txs[0].IsTaxWallet)
}

func TestValidWalletAddress(t *testing.T) {
	valid := []string{
		"0x52908400098527886E0F7030069857D2E4169EE7",
		"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		"11111111111111111111111111111111",
	}
	invalid := []string{
		"",
		"0x123",
		"0xZZ908400098527886E0F7030069857D2E4169EE7",
		"0OIl0000000000000000000000000000000",
		"not an address",
	}
	for _, a := range valid {
		assert.True(t, ValidWalletAddress(a), a)
	}
	for _, a := range invalid {
		assert.False(t, ValidWalletAddress(a), a)
	}
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("0xAbC", "0xaBc"))
	assert.True(t, SameAddress(" 0xabc", "0xABC "))
	assert.False(t, SameAddress("", ""))
	assert.False(t, SameAddress("0xabc", "0xabd"))
}

func TestPriceQuote_Price(t *testing.T) {
	var q PriceQuote
	assert.Zero(t, q.Price(SOL))

	q.Prices = map[Chain]float64{ETH: 2800}
	assert.Equal(t, 2800.0, q.Price(ETH))
	assert.Zero(t, q.Price(BNB))
}
