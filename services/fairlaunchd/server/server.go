package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fairlaunch/core/events"
	"fairlaunch/native/bank"
	nativecommon "fairlaunch/native/common"
	"fairlaunch/native/fairlaunch"
	"fairlaunch/services/fairlaunchd/journal"
	"fairlaunch/services/fairlaunchd/middleware"
)

// Rate limit groups.
const (
	LimitBids   = "bids"
	LimitCranks = "cranks"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	ListenAddress string
	Engine        *fairlaunch.Engine
	Ledger        *bank.Ledger
	Journal       *journal.Journal
	Broadcaster   *events.Broadcaster
	Pauses        *nativecommon.PauseSet
	Auth          *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          *middleware.CORSConfig
	EnableFaucet  bool
	Logger        *slog.Logger
}

// Server exposes the sale engine over HTTP.
type Server struct {
	cfg    Config
	engine *fairlaunch.Engine
	ledger *bank.Ledger
	logger *slog.Logger
	router http.Handler
}

// New validates the dependencies and builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("server: engine required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("server: ledger required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Auth == nil {
		cfg.Auth = middleware.NewAuthenticator(middleware.AuthConfig{}, cfg.Logger)
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = middleware.NewRateLimiter(nil, cfg.Logger)
	}
	if cfg.Observability == nil {
		cfg.Observability = middleware.NewObservability(middleware.ObservabilityConfig{}, cfg.Logger)
	}
	if cfg.Pauses == nil {
		cfg.Pauses = nativecommon.NewPauseSet()
	}
	srv := &Server{
		cfg:    cfg,
		engine: cfg.Engine,
		ledger: cfg.Ledger,
		logger: cfg.Logger.With("component", "server"),
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	obs := s.cfg.Observability
	auth := s.cfg.Auth
	limits := s.cfg.RateLimiter

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if s.cfg.CORS != nil {
		r.Use(middleware.CORS(*s.cfg.CORS))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", obs.MetricsHandler())

	r.Route("/v1", func(api chi.Router) {
		api.With(obs.Middleware("sales.list")).Get("/sales", s.handleListSales)
		api.With(obs.Middleware("sales.create"), auth.Middleware(middleware.ScopeSalesAdmin)).Post("/sales", s.handleCreateSale)

		api.Route("/sales/{code}", func(sale chi.Router) {
			sale.With(obs.Middleware("sales.get")).Get("/", s.handleGetSale)
			sale.With(obs.Middleware("bids.place"), auth.Middleware(middleware.ScopeBidsPlace), limits.Middleware(LimitBids)).Post("/bids", s.handlePlaceBid)
			sale.With(obs.Middleware("bids.get")).Get("/bids/{index}", s.handleGetBid)
			sale.With(obs.Middleware("lottery.strip"), auth.Middleware(middleware.ScopeLotteryWrite)).Put("/lottery/strips", s.handleLotteryStrip)
			sale.With(obs.Middleware("lottery.seal"), auth.Middleware(middleware.ScopeLotteryWrite)).Post("/lottery/seal", s.handleSeal)
			sale.With(obs.Middleware("sales.restart"), auth.Middleware(middleware.ScopeSalesAdmin), limits.Middleware(LimitCranks)).Post("/restart", s.handleRestart)
			sale.With(obs.Middleware("tickets.process"), limits.Middleware(LimitCranks)).Post("/tickets/{index}/process", s.handleProcessTicket)
			sale.With(obs.Middleware("treasury.withdrawable")).Get("/withdrawable", s.handleWithdrawable)
			sale.With(obs.Middleware("treasury.withdraw"), auth.Middleware(middleware.ScopeTreasuryWithdraw)).Post("/withdrawals", s.handleWithdraw)
			sale.With(obs.Middleware("refunds.claim"), auth.Middleware(middleware.ScopeRefundsClaim), limits.Middleware(LimitCranks)).Post("/refunds", s.handleRefund)
			sale.With(obs.Middleware("events.list")).Get("/events", s.handleListEvents)
			sale.With(obs.Middleware("events.stream")).Get("/events/ws", s.handleEventStream)
		})

		api.With(obs.Middleware("accounts.get")).Get("/accounts/{addr}", s.handleGetAccount)
		if s.cfg.EnableFaucet {
			api.With(obs.Middleware("accounts.fund"), auth.Middleware(middleware.ScopeSalesAdmin)).Post("/accounts/{addr}/fund", s.handleFund)
		}
		api.With(obs.Middleware("admin.pause"), auth.Middleware(middleware.ScopeSalesAdmin)).Put("/admin/pauses/{module}", s.handlePause)
	})

	return r
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(s.router, "fairlaunchd"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}
