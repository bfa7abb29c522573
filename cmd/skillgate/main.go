package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skillgate/skillgate/pkg/api"
	"github.com/skillgate/skillgate/pkg/authn"
	"github.com/skillgate/skillgate/pkg/authz"
	"github.com/skillgate/skillgate/pkg/config"
	"github.com/skillgate/skillgate/pkg/observability"
	"github.com/skillgate/skillgate/pkg/principal"
	"github.com/skillgate/skillgate/pkg/ratelimit"
	"github.com/skillgate/skillgate/pkg/session"
	"github.com/skillgate/skillgate/pkg/storage"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "skillgate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", version).Info("starting skillgate")

	ctx := context.Background()

	db, err := storage.OpenPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db, storage.Migrations(), logger); err != nil {
		return err
	}

	redisClient, err := storage.OpenRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	secret := []byte(cfg.Auth.JWTSecret)
	verifier := authn.NewVerifier(secret)
	issuer := authn.NewIssuer(secret, cfg.Auth.TokenIssuer, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	loader := principal.NewSQLLoader(db)
	authenticator := authn.NewAuthenticator(verifier, loader, logger, metrics)
	authorizer := authz.NewAuthorizer(authz.NewSQLInstanceStore(db), logger, metrics)
	guard := authz.NewGuard(authenticator, authorizer)

	sessions := session.NewSQLRegistry(db)
	limiter := ratelimit.NewRedisLimiter(redisClient, "skillgate")

	server := api.NewServer(api.Options{
		DB:              db,
		Guard:           guard,
		Issuer:          issuer,
		Verifier:        verifier,
		Sessions:        sessions,
		Limiter:         limiter,
		Logger:          logger,
		Metrics:         metrics,
		CORSOrigins:     cfg.Server.CORSOrigins,
		LoginRateLimit:  cfg.Auth.LoginRateLimit,
		LoginRateWindow: cfg.Auth.LoginRateWindow,
		TracingEnabled:  cfg.Observability.OTelEnabled,
	})

	sweeper := session.NewSweeper(sessions, logger, metrics, cfg.Auth.SessionSweepSchedule)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, redisClient, version)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if metrics != nil {
		go publishDBStats(ctx, metrics, db)
	}

	sm := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		sweeper.Stop()
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return providers.Shutdown(ctx)
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return redisClient.Close()
	})

	errChan := make(chan error, 1)
	go func() {
		logger.WithField("addr", httpServer.Addr).Info("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownDone <- sm.WaitForShutdown()
	}()

	select {
	case err := <-errChan:
		sm.Shutdown()
		return fmt.Errorf("API server failed: %w", err)
	case err := <-shutdownDone:
		return err
	}
}

// publishDBStats refreshes the connection-pool gauges periodically.
func publishDBStats(ctx context.Context, metrics *observability.Metrics, db *sql.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBStats(db)
		}
	}
}
