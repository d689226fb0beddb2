package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"microsight/dashboard-service/internal/auth"
	"microsight/dashboard-service/internal/config"
	"microsight/dashboard-service/internal/guard"
	"microsight/dashboard-service/internal/httpapi"
	"microsight/dashboard-service/internal/hub"
	"microsight/dashboard-service/internal/logging"
	"microsight/dashboard-service/internal/sensors"
	"microsight/dashboard-service/internal/store"
	"microsight/dashboard-service/internal/store/postgres"
	"microsight/dashboard-service/internal/store/sqlite"
	"microsight/dashboard-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTelemetry := telemetry.Setup(context.Background(), telemetry.Config{
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		ServiceVersion: version,
		SampleRatio:    cfg.TraceSampling,
	}, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	h := hub.New(logger)
	simulator := sensors.NewSimulator(cfg.SensorInterval, sensors.WithPublisher(h), sensors.WithLogger(logger))
	registry := httpapi.NewRegistry(kv, httpapi.RegistryOptions{
		Auth: auth.Options{
			Latency:        cfg.LoginDelay,
			GoogleClientID: cfg.GoogleClientID,
			Accounts:       auth.NewAccounts(kv),
		},
		GracePeriod: cfg.GracePeriod,
		MaxClients:  cfg.MaxClients,
		IdleTTL:     cfg.ClientIdleTTL,
		Logger:      logger,
	})
	defer registry.Close()

	handler := httpapi.NewHandler(registry, httpapi.Options{
		Router:       guard.NewRouter(cfg.GracePeriod),
		Sensors:      simulator,
		Notifier:     h,
		ClientCookie: cfg.ClientCookie,
		Logger:       logger,
	})
	mux := handler.Routes()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", httpapi.RealtimeHandler("/realtime", h, cfg.ClientCookie, logger))

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:       cfg.RateLimitPerMinute,
		IPBurst:           cfg.RateLimitBurst,
		ClientPerMinute:   cfg.ClientRateLimitPerMinute,
		ClientBurst:       cfg.ClientRateLimitBurst,
		ClientCookie:      cfg.ClientCookie,
		TrustForwardedFor: cfg.TrustForwardedFor,
	})

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, cfg.ClientCookie)(limiter.Middleware(mux)), telemetry.ServiceName)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("dashboard-service listening", zap.String("addr", server.Addr), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return simulator.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, func() {
			if err := st.Close(); err != nil {
				logger.Warn("close sqlite store", zap.Error(err))
			}
		}, nil
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		st := postgres.NewStore(pool)
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return st, pool.Close, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}
