package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/cashback/service/chain"
	"github.com/brojonat/cashback/service/config"
	"github.com/brojonat/cashback/service/db"
	"github.com/brojonat/cashback/service/engine"
	"github.com/brojonat/cashback/service/metrics"
	"github.com/brojonat/cashback/service/moralis"
	natspkg "github.com/brojonat/cashback/service/nats"
	"github.com/brojonat/cashback/service/prices"
	"github.com/brojonat/cashback/service/server"
	"github.com/brojonat/cashback/service/solana"
	"github.com/brojonat/cashback/service/source"
	"github.com/brojonat/cashback/service/temporal"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

func main() {
	_ = godotenv.Load()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"data_source", cfg.DataSource,
		"eligibility_unit", cfg.EligibilityUnit,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsCollector := metrics.NewMetrics(nil)

	registry := buildRegistry(cfg, logger)
	src := buildSource(cfg, registry, metricsCollector, logger)
	eng := engine.New(src, registry, logger,
		engine.WithUnit(engine.Unit(cfg.EligibilityUnit)),
		engine.WithMetrics(metricsCollector),
	)

	deps := server.Deps{
		Engine:  eng,
		Metrics: metricsCollector,
		Logger:  logger,
	}

	// Persistence is optional; without a database the eligibility check still
	// answers but nothing is recorded.
	if cfg.DatabaseURL != "" {
		dbPool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := db.Migrate(dbPool); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")
		deps.Store = db.NewStore(dbPool, metricsCollector)
	} else {
		logger.Warn("DATABASE_URL not set, persistence disabled")
	}

	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		deps.Publisher = publisher

		subscriber, err := natspkg.NewSubscriber(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create NATS subscriber", "error", err)
			os.Exit(1)
		}
		defer subscriber.Close()
		deps.Events = subscriber
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	// The refresh schedule needs both Temporal and a database to refresh.
	if deps.Store != nil && cfg.TemporalEnabled {
		temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
		if err != nil {
			logger.Warn("temporal unavailable, scheduled refresh disabled", "error", err)
		} else {
			defer temporalClient.Close()
			if err := temporalClient.UpsertRefreshSchedule(ctx, cfg.RefreshInterval); err != nil {
				logger.Error("failed to upsert refresh schedule", "error", err)
			}
			deps.Scheduler = temporalClient
		}
	}

	httpServer := server.New(cfg.ServerAddr, cfg, deps)

	logger.Info("server initialized, all dependencies ready",
		"source", src.Name(),
		"tax_wallets", len(registry.Active()),
		"persistence", deps.Store != nil,
		"events", deps.Events != nil,
		"scheduler", deps.Scheduler != nil,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// buildRegistry turns the configured tax wallets into a registry, skipping
// entries whose chain is unknown.
func buildRegistry(cfg *config.Config, logger *slog.Logger) *chain.Registry {
	entries := make([]chain.TaxWalletConfig, 0, len(cfg.TaxWallets))
	for _, w := range cfg.TaxWallets {
		c, err := chain.ParseChain(w.Chain)
		if err != nil {
			logger.Warn("skipping tax wallet", "chain", w.Chain, "error", err)
			continue
		}
		entries = append(entries, chain.TaxWalletConfig{Address: w.Address, Chain: c, IsActive: w.Active})
	}
	if len(entries) == 0 {
		logger.Warn("no tax wallets configured")
	}
	return chain.NewRegistry(entries...)
}

func buildSource(cfg *config.Config, registry *chain.Registry, m *metrics.Metrics, logger *slog.Logger) source.Source {
	if cfg.DataSource == config.DataSourceSynthetic {
		logger.Warn("using synthetic data source, balances and transfers are not real")
		return source.NewSynthetic(registry, uint64(time.Now().UnixNano()))
	}

	httpClient := &http.Client{Timeout: cfg.AdapterTimeout}

	// Public Solana RPC allows roughly 10 transaction lookups per second.
	solanaClient := solana.NewClient(
		solana.NewRPCClient(cfg.SolanaRPCURL),
		rate.NewLimiter(rate.Limit(8), 1),
		m,
		logger,
	)
	evmClient := moralis.NewClient(cfg.MoralisBaseURL, cfg.MoralisAPIKey, httpClient, m, logger)
	oracle := prices.NewOracle(cfg.CoinGeckoBaseURL, cfg.BinanceBaseURL, httpClient, m, logger)

	logger.Info("initialized live adapters",
		"solana_rpc", cfg.SolanaRPCURL,
		"moralis", cfg.MoralisBaseURL,
		"moralis_key_set", cfg.MoralisAPIKey != "",
	)
	return source.NewLive(solanaClient, evmClient, oracle, cfg.AdapterTimeout)
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
