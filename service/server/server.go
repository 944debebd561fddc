package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/cashback/service/chain"
	"github.com/brojonat/cashback/service/config"
	"github.com/brojonat/cashback/service/db"
	"github.com/brojonat/cashback/service/engine"
	"github.com/brojonat/cashback/service/metrics"
	natspkg "github.com/brojonat/cashback/service/nats"
	"github.com/brojonat/cashback/service/ratelimit"
	"github.com/brojonat/cashback/service/temporal"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the aggregation engine as seen by the handlers.
type Engine interface {
	SourceName() string
	TaxWallets() []chain.TaxWalletConfig
	Prices(ctx context.Context) chain.PriceQuote
	CurrentBalances(ctx context.Context) []chain.BalanceSnapshot
	TotalVolume(ctx context.Context) float64
	Dashboard(ctx context.Context) engine.Dashboard
	AllTaxWalletTransactions(ctx context.Context, period engine.Period) engine.TaxWalletTransactions
	CheckEligibility(ctx context.Context, address string) engine.EligibilityResult
	WalletData(ctx context.Context, address string) engine.WalletData
}

// Store is the persistence layer used by the handlers.
type Store interface {
	ListUsers(ctx context.Context, params db.ListUsersParams) ([]*db.User, int, error)
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	CreateUser(ctx context.Context, params db.CreateUserParams) (*db.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, params db.UpdateUserParams) (*db.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error

	ListCashbacks(ctx context.Context, params db.ListCashbacksParams) ([]*db.Cashback, int, error)
	CreateCashback(ctx context.Context, userID uuid.UUID, amount float64) (*db.Cashback, error)

	UpsertEligibleUser(ctx context.Context, params db.UpsertEligibleUserParams) (*db.EligibleUser, error)
	ListEligibleUsers(ctx context.Context, status string) ([]*db.EligibleUser, error)
	EligibleUserSummary(ctx context.Context) (db.EligibleSummary, error)
	UpdateEligibleUserStatus(ctx context.Context, id uuid.UUID, status string) error

	DashboardStats(ctx context.Context) (db.DashboardStats, error)
	UserStats(ctx context.Context, wallet string) (db.UserStats, error)

	Ping(ctx context.Context) error
}

// EventStream delivers eligibility events to streaming clients.
type EventStream interface {
	Subscribe(ctx context.Context, wallet string, handle func(*natspkg.EligibilityEvent)) error
}

// Deps are the collaborators of a Server. Only Engine is required.
type Deps struct {
	Engine    Engine
	Store     Store              // nil disables persistence routes
	Publisher natspkg.Publisher  // nil disables event publishing
	Events    EventStream        // nil disables the eligibility stream
	Scheduler temporal.Scheduler // nil disables manual refresh
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Server represents the HTTP server for the cashback service.
type Server struct {
	addr    string
	cfg     *config.Config
	deps    Deps
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new HTTP server with the given dependencies.
func New(addr string, cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		cfg:     cfg,
		deps:    deps,
		limiter: ratelimit.New(cfg.EligibilityRateLimit, cfg.EligibilityWindow),
		logger:  deps.Logger.With("component", "server"),
	}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	d := s.deps

	s.handle(mux, "GET /api/v1/blockchain", handleBlockchain(d.Engine, s.logger))
	s.handle(mux, "POST /api/v1/eligibility", handleCheckEligibility(d.Engine, d.Store, d.Publisher, s.limiter, d.Metrics, s.logger))
	s.handle(mux, "GET /api/v1/wallet/{address}", handleWalletData(d.Engine, s.logger))
	s.handle(mux, "GET /api/v1/realtime", handleRealtime(d.Store, s.cfg.RealtimeInterval, d.Metrics, s.logger))

	if d.Store != nil {
		s.handle(mux, "GET /api/v1/eligible-users", handleListEligibleUsers(d.Store, s.logger))
		s.handle(mux, "POST /api/v1/eligible-users", handleUpsertEligibleUser(d.Store, s.logger))
		s.handle(mux, "PUT /api/v1/eligible-users", handleUpdateEligibleUserStatus(d.Store, s.logger))

		s.handle(mux, "GET /api/v1/users", handleListUsers(d.Store, s.logger))
		s.handle(mux, "POST /api/v1/users", handleCreateUser(d.Store, s.logger))
		s.handle(mux, "GET /api/v1/users/{id}", handleGetUser(d.Store, s.logger))
		s.handle(mux, "PUT /api/v1/users/{id}", handleUpdateUser(d.Store, s.logger))
		s.handle(mux, "DELETE /api/v1/users/{id}", handleDeleteUser(d.Store, s.logger))
		s.handle(mux, "GET /api/v1/users/{id}/trading", handleUserTrading(d.Store, d.Engine, s.logger))

		s.handle(mux, "GET /api/v1/cashbacks", handleListCashbacks(d.Store, s.logger))
		s.handle(mux, "POST /api/v1/cashbacks", handleCreateCashback(d.Store, s.logger))
	} else {
		s.logger.Warn("database not configured, persistence endpoints disabled")
	}

	if d.Events != nil {
		s.handle(mux, "GET /api/v1/stream/eligibility", handleStreamEligibility(d.Events, d.Metrics, s.logger))
		s.logger.Info("eligibility stream enabled")
	}

	if d.Scheduler != nil {
		s.handle(mux, "POST /api/v1/admin/refresh", handleTriggerRefresh(d.Scheduler, s.logger))
	}

	mux.HandleFunc("GET /health", handleHealth(d.Store, d.Engine))

	if d.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// handle registers h under pattern with request metrics labelled by pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.deps.Metrics, pattern)(h))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr, "source", s.deps.Engine.SourceName())
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.limiter.Stop()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cache-Control")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
