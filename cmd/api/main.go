package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/gymstack/facility-auth/internal/api/http"
	"github.com/gymstack/facility-auth/internal/api/http/handlers"
	"github.com/gymstack/facility-auth/internal/apikey"
	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/config"
	"github.com/gymstack/facility-auth/internal/events"
	"github.com/gymstack/facility-auth/internal/gate"
	"github.com/gymstack/facility-auth/internal/impersonation"
	"github.com/gymstack/facility-auth/internal/observability"
	"github.com/gymstack/facility-auth/internal/persistence"
	"github.com/gymstack/facility-auth/internal/service"
	"github.com/gymstack/facility-auth/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	st := buildStores(pg, redis)
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	events.SubscribeAll(dispatcher, events.LogHandler(logger))

	tokens := auth.NewTokenManager(auth.TokenManagerConfig{
		Secret:                 cfg.Auth.JWTSecret,
		Issuer:                 cfg.Auth.Issuer,
		AccessTTL:              cfg.Auth.AccessTTL(),
		RefreshTTL:             cfg.Auth.RefreshTTL(),
		AbsoluteSessionTimeout: cfg.Auth.AbsoluteSessionTimeout(),
		Families:               st.families,
		OnReuse:                service.ReportRefreshReuse(dispatcher, logger),
	})

	keyAuthority := apikey.NewAuthority(st.apiKeys, logger, apikey.Config{
		DefaultRateLimit: cfg.APIKey.DefaultRateLimit,
		TouchTimeout:     cfg.APIKey.TouchTimeout(),
	})
	defer keyAuthority.Wait()

	impManager := impersonation.NewManager(impersonation.Config{
		Sessions: st.sessions,
		Accounts: st.accounts,
		Tokens:   tokens,
		Events:   dispatcher,
		Metrics:  metrics,
		Logger:   logger,
		TTL:      cfg.Auth.ImpersonationTTL(),
	})

	sweeperDone := worker.StartExpiryWorker(ctx, impManager, time.Minute, logger)

	requestGate := gate.New(gate.Config{
		Tokens:        tokens,
		Revocations:   st.revocations,
		APIKeys:       keyAuthority,
		Limiter:       st.limiter,
		RateWindow:    cfg.APIKey.RateWindow(),
		Impersonation: impManager,
		Metrics:       metrics,
		Events:        dispatcher,
		Logger:        logger,
	})

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		Accounts:    st.accounts,
		Tokens:      tokens,
		Revocations: st.revocations,
		Events:      dispatcher,
		Logger:      logger,
	})
	keyService := service.NewAPIKeyService(keyAuthority, dispatcher, logger)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:        handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:          handlers.NewAuthHandler(authService),
		APIKeys:       handlers.NewAPIKeysHandler(keyService),
		Impersonation: handlers.NewImpersonationHandler(impManager),
		Gate:          requestGate,
		Metrics:       metrics,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.Bool("postgres", pg.Enabled()), zap.Bool("redis", redis.Enabled()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	cancel()
	<-sweeperDone
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
