package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Data source modes.
const (
	DataSourceLive      = "live"
	DataSourceSynthetic = "synthetic"
)

// Eligibility measurement units.
const (
	UnitUSD    = "usd"
	UnitNative = "native"
)

// TaxWallet is one configured receiving wallet as read from the environment.
type TaxWallet struct {
	Chain   string
	Address string
	Active  bool
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration. Empty disables persistence.
	DatabaseURL string

	// NATS configuration. Empty disables event publishing.
	NATSURL string

	// Upstream data sources
	SolanaRPCURL     string
	MoralisAPIKey    string
	MoralisBaseURL   string
	CoinGeckoBaseURL string
	BinanceBaseURL   string
	DataSource       string
	AdapterTimeout   time.Duration

	// Tax wallets, one per chain
	TaxWallets []TaxWallet

	// Eligibility
	EligibilityUnit      string
	EligibilityRateLimit int
	EligibilityWindow    time.Duration

	// Realtime stream
	RealtimeInterval time.Duration

	// Temporal configuration
	TemporalEnabled   bool
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	RefreshInterval   time.Duration
}

// Load reads configuration from environment variables and validates it.
// All problems are collected and reported together.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	cfg.MoralisAPIKey = os.Getenv("MORALIS_API_KEY")
	cfg.MoralisBaseURL = getEnvOrDefault("MORALIS_BASE_URL", "https://deep-index.moralis.io/api")
	cfg.CoinGeckoBaseURL = getEnvOrDefault("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3")
	cfg.BinanceBaseURL = getEnvOrDefault("BINANCE_BASE_URL", "https://api.binance.com/api/v3")

	cfg.DataSource = strings.ToLower(os.Getenv("DATA_SOURCE"))
	if cfg.DataSource == "" {
		// Without any upstream credentials the dashboard can only show demo data.
		if cfg.MoralisAPIKey != "" || os.Getenv("SOLANA_RPC_URL") != "" {
			cfg.DataSource = DataSourceLive
		} else {
			cfg.DataSource = DataSourceSynthetic
		}
	}
	if cfg.DataSource != DataSourceLive && cfg.DataSource != DataSourceSynthetic {
		errs = append(errs, fmt.Errorf("DATA_SOURCE must be %q or %q, got %q", DataSourceLive, DataSourceSynthetic, cfg.DataSource))
	}

	timeout, err := parseDuration("ADAPTER_TIMEOUT", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.AdapterTimeout = timeout
	}

	for _, chain := range []string{"SOL", "ETH", "BNB"} {
		addr := strings.TrimSpace(os.Getenv("TAX_WALLET_" + chain))
		if addr == "" {
			continue
		}
		active, err := parseBool("TAX_WALLET_"+chain+"_ACTIVE", true)
		if err != nil {
			errs = append(errs, err)
		}
		cfg.TaxWallets = append(cfg.TaxWallets, TaxWallet{Chain: chain, Address: addr, Active: active})
	}

	cfg.EligibilityUnit = strings.ToLower(getEnvOrDefault("ELIGIBILITY_UNIT", UnitUSD))
	if cfg.EligibilityUnit != UnitUSD && cfg.EligibilityUnit != UnitNative {
		errs = append(errs, fmt.Errorf("ELIGIBILITY_UNIT must be %q or %q, got %q", UnitUSD, UnitNative, cfg.EligibilityUnit))
	}

	limit, err := parseInt("ELIGIBILITY_RATE_LIMIT", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.EligibilityRateLimit = limit
	}

	window, err := parseDuration("ELIGIBILITY_RATE_WINDOW", "1m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.EligibilityWindow = window
	}

	realtime, err := parseDuration("REALTIME_INTERVAL", "5s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RealtimeInterval = realtime
	}

	temporalEnabled, err := parseBool("TEMPORAL_ENABLED", true)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.TemporalEnabled = temporalEnabled
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "cashback-refresh")

	refresh, err := parseDuration("REFRESH_INTERVAL", "15m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RefreshInterval = refresh
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}

	if c.AdapterTimeout <= 0 {
		errs = append(errs, fmt.Errorf("AdapterTimeout must be positive"))
	}

	if c.RealtimeInterval < time.Second {
		errs = append(errs, fmt.Errorf("RealtimeInterval must be at least 1 second"))
	}

	if c.EligibilityRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("EligibilityRateLimit must be positive"))
	}

	if c.EligibilityWindow <= 0 {
		errs = append(errs, fmt.Errorf("EligibilityWindow must be positive"))
	}

	if c.RefreshInterval < time.Minute {
		errs = append(errs, fmt.Errorf("RefreshInterval must be at least 1 minute"))
	}

	seen := make(map[string]bool)
	for _, w := range c.TaxWallets {
		if seen[w.Chain] {
			errs = append(errs, fmt.Errorf("duplicate tax wallet for chain %s", w.Chain))
		}
		seen[w.Chain] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
