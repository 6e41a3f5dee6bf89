package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"fairlaunch/config"
	"fairlaunch/core/events"
	salestate "fairlaunch/core/state"
	"fairlaunch/native/bank"
	nativecommon "fairlaunch/native/common"
	"fairlaunch/native/fairlaunch"
	"fairlaunch/observability"
	"fairlaunch/observability/logging"
	telemetry "fairlaunch/observability/otel"
	"fairlaunch/services/fairlaunchd/journal"
	"fairlaunch/services/fairlaunchd/middleware"
	"fairlaunch/services/fairlaunchd/server"
	"fairlaunch/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "fairlaunchd.toml", "path to fairlaunchd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("fairlaunchd: load config: %v", err)
	}

	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = strings.TrimSpace(os.Getenv("FAIRLAUNCH_ENV"))
	}
	logger := logging.SetupWithOptions("fairlaunchd", env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv(telemetry.Config{
		ServiceName: "fairlaunchd",
		Environment: env,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Insecure:    cfg.Observability.OTLPInsecure,
		Metrics:     cfg.Observability.Tracing,
		Traces:      cfg.Observability.Tracing,
	}))
	if err != nil {
		log.Fatalf("fairlaunchd: init telemetry: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	db, err := openStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("fairlaunchd: open storage: %v", err)
	}
	defer db.Close()

	manager := salestate.NewManager(db)
	ledger, err := bank.NewLedger(manager, cfg.NativeSymbol)
	if err != nil {
		log.Fatalf("fairlaunchd: ledger: %v", err)
	}

	jdb, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		log.Fatalf("fairlaunchd: %v", err)
	}
	eventJournal, err := journal.New(jdb, logger)
	if err != nil {
		log.Fatalf("fairlaunchd: %v", err)
	}

	pauses := nativecommon.NewPauseSet(cfg.PausedModules...)
	broadcaster := events.NewBroadcaster(128)
	engine := fairlaunch.NewEngine()
	engine.SetState(manager)
	engine.SetCustody(ledger)
	engine.SetTokens(ledger)
	engine.SetPauses(pauses)
	engine.SetEmitter(events.MultiEmitter{eventJournal, broadcaster, observability.NewEventRecorder()})

	if path := strings.TrimSpace(cfg.ManifestFile); path != "" {
		if err := createManifestSales(engine, path, logger); err != nil {
			log.Fatalf("fairlaunchd: %v", err)
		}
	}

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for group, limit := range cfg.RateLimits {
		limits[group] = middleware.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		Engine:        engine,
		Ledger:        ledger,
		Journal:       eventJournal,
		Broadcaster:   broadcaster,
		Pauses:        pauses,
		Auth: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		}, logger),
		RateLimiter: middleware.NewRateLimiter(limits, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "fairlaunchd",
			LogRequests: cfg.Observability.LogRequests,
			Enabled:     cfg.Observability.Metrics,
		}, logger),
		CORS:         &middleware.CORSConfig{},
		EnableFaucet: cfg.EnableFaucet,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("fairlaunchd: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("fairlaunchd: %v", err)
	}
	logger.Info("fairlaunchd stopped")
}

func openStorage(cfg config.Storage) (storage.Database, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		return storage.NewMemDB(), nil
	case config.StorageBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(cfg.Path, nil)
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, err
	}
	return storage.NewLevelDB(cfg.Path)
}

// createManifestSales registers every manifest sale that does not exist yet.
func createManifestSales(engine *fairlaunch.Engine, path string, logger *slog.Logger) error {
	sales, err := config.LoadManifests(path)
	if err != nil {
		return err
	}
	for _, sale := range sales {
		if _, err := engine.CreateSale(sale); err != nil {
			if errors.Is(err, fairlaunch.ErrSaleExists) {
				continue
			}
			return err
		}
		logger.Info("sale created from manifest", "sale", sale.Code)
	}
	return nil
}
