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
	"github.com/brojonat/cashback/service/solana"
	"github.com/brojonat/cashback/service/source"
	"github.com/brojonat/cashback/service/temporal"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required for the refresh worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	logger.Info("connected to database")

	metricsCollector := metrics.NewMetrics(nil)
	store := db.NewStore(dbPool, metricsCollector)

	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.Info("starting metrics HTTP server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	registry := chain.NewRegistry(taxWallets(cfg)...)
	eng := engine.New(buildSource(cfg, registry, metricsCollector, logger), registry, logger,
		engine.WithUnit(engine.Unit(cfg.EligibilityUnit)),
		engine.WithMetrics(metricsCollector),
	)

	workerConfig := temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Store:             store,
		Checker:           eng,
		Metrics:           metricsCollector,
		Logger:            logger,
	}

	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		workerConfig.Publisher = publisher
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	worker, err := temporal.NewWorker(workerConfig)
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"source", eng.SourceName(),
		"eligibility_unit", cfg.EligibilityUnit,
		"publisher", workerConfig.Publisher != nil,
	)

	workerErrors := make(chan error, 1)
	go func() {
		logger.Info("starting temporal worker")
		workerErrors <- worker.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		logger.Info("stopping temporal worker")
		worker.Stop()
		logger.Info("shutdown complete")
	}
}

func taxWallets(cfg *config.Config) []chain.TaxWalletConfig {
	var entries []chain.TaxWalletConfig
	for _, w := range cfg.TaxWallets {
		if c, err := chain.ParseChain(w.Chain); err == nil {
			entries = append(entries, chain.TaxWalletConfig{Address: w.Address, Chain: c, IsActive: w.Active})
		}
	}
	return entries
}

// buildSource mirrors the server so rechecks see the same data the API does.
func buildSource(cfg *config.Config, registry *chain.Registry, m *metrics.Metrics, logger *slog.Logger) source.Source {
	if cfg.DataSource == config.DataSourceSynthetic {
		return source.NewSynthetic(registry, uint64(time.Now().UnixNano()))
	}
	httpClient := &http.Client{Timeout: cfg.AdapterTimeout}
	return source.NewLive(
		solana.NewClient(solana.NewRPCClient(cfg.SolanaRPCURL), rate.NewLimiter(rate.Limit(8), 1), m, logger),
		moralis.NewClient(cfg.MoralisBaseURL, cfg.MoralisAPIKey, httpClient, m, logger),
		prices.NewOracle(cfg.CoinGeckoBaseURL, cfg.BinanceBaseURL, httpClient, m, logger),
		cfg.AdapterTimeout,
	)
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

// getEnv returns the value of an environment variable or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
