package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"SERVER_ADDR", "LOG_LEVEL", "DATABASE_URL", "NATS_URL",
	"SOLANA_RPC_URL", "MORALIS_API_KEY", "MORALIS_BASE_URL", "COINGECKO_BASE_URL", "BINANCE_BASE_URL",
	"DATA_SOURCE", "ADAPTER_TIMEOUT",
	"TAX_WALLET_SOL", "TAX_WALLET_ETH", "TAX_WALLET_BNB",
	"TAX_WALLET_SOL_ACTIVE", "TAX_WALLET_ETH_ACTIVE", "TAX_WALLET_BNB_ACTIVE",
	"ELIGIBILITY_UNIT", "ELIGIBILITY_RATE_LIMIT", "ELIGIBILITY_RATE_WINDOW",
	"REALTIME_INTERVAL", "TEMPORAL_ENABLED", "TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE", "REFRESH_INTERVAL",
}

// clearEnv blanks every key Load reads; empty values are treated as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, DataSourceSynthetic, cfg.DataSource)
	assert.Equal(t, UnitUSD, cfg.EligibilityUnit)
	assert.Equal(t, 10*time.Second, cfg.AdapterTimeout)
	assert.Equal(t, 5*time.Second, cfg.RealtimeInterval)
	assert.Equal(t, 10, cfg.EligibilityRateLimit)
	assert.Equal(t, time.Minute, cfg.EligibilityWindow)
	assert.Equal(t, 15*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, "cashback-refresh", cfg.TemporalTaskQueue)
	assert.True(t, cfg.TemporalEnabled)
	assert.Empty(t, cfg.TaxWallets)
}

func TestLoad_LiveWhenCredentialsPresent(t *testing.T) {
	clearEnv(t)
	t.Setenv("MORALIS_API_KEY", "key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DataSourceLive, cfg.DataSource)
}

func TestLoad_TaxWallets(t *testing.T) {
	clearEnv(t)
	t.Setenv("TAX_WALLET_SOL", "So1anaTaxWa11et1111111111111111111111111111")
	t.Setenv("TAX_WALLET_ETH", "0xAbC0000000000000000000000000000000000001")
	t.Setenv("TAX_WALLET_ETH_ACTIVE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.TaxWallets, 2)

	assert.Equal(t, TaxWallet{Chain: "SOL", Address: "So1anaTaxWa11et1111111111111111111111111111", Active: true}, cfg.TaxWallets[0])
	assert.Equal(t, "ETH", cfg.TaxWallets[1].Chain)
	assert.False(t, cfg.TaxWallets[1].Active)
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_SOURCE", "mock")
	t.Setenv("ADAPTER_TIMEOUT", "soon")
	t.Setenv("ELIGIBILITY_UNIT", "eur")
	t.Setenv("ELIGIBILITY_RATE_LIMIT", "ten")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DATA_SOURCE")
	assert.Contains(t, err.Error(), "invalid duration")
	assert.Contains(t, err.Error(), "ELIGIBILITY_UNIT")
	assert.Contains(t, err.Error(), "invalid integer")
}

func TestLoad_InvalidActiveFlag(t *testing.T) {
	clearEnv(t)
	t.Setenv("TAX_WALLET_BNB", "0xdef0000000000000000000000000000000000002")
	t.Setenv("TAX_WALLET_BNB_ACTIVE", "maybe")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid boolean")
}

func TestValidate(t *testing.T) {
	valid := Config{
		ServerAddr:           ":8080",
		AdapterTimeout:       time.Second,
		RealtimeInterval:     5 * time.Second,
		EligibilityRateLimit: 10,
		EligibilityWindow:    time.Minute,
		RefreshInterval:      time.Hour,
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.RealtimeInterval = 100 * time.Millisecond
	assert.ErrorContains(t, bad.Validate(), "RealtimeInterval")

	dup := valid
	dup.TaxWallets = []TaxWallet{{Chain: "ETH", Address: "a"}, {Chain: "ETH", Address: "b"}}
	assert.ErrorContains(t, dup.Validate(), "duplicate tax wallet")
}
