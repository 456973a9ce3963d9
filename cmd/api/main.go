// Package main is the entry point for the wardrobe billing API server.
//
// It loads configuration, connects the pgx pool, wires repositories and
// services into the HTTP chassis (middleware, routing, health checks), and
// serves until a shutdown signal arrives.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wardrobe/internal/admin"
	"wardrobe/internal/api/handlers"
	"wardrobe/internal/auth"
	"wardrobe/internal/billing"
	"wardrobe/internal/config"
	"wardrobe/internal/core"
	"wardrobe/internal/db"
	"wardrobe/internal/external"
	"wardrobe/internal/support"
	"wardrobe/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("wardrobe API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := newPool(ctx, cfg.Database)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	clock := types.RealClock{}

	// Repositories.
	userRepo := db.NewUserRepo(pool)
	sessionRepo := db.NewSessionRepo(pool)
	subRepo := db.NewSubscriptionRepo(pool, logger)
	usageRepo := db.NewUsageCounterRepo(pool)
	rateRepo := db.NewAdminRateLimitRepo(pool)
	supportRepo := db.NewSupportCaseRepo(pool)
	auditRepo := db.NewAuditLogRepo(pool)
	outfitRepo := db.NewOutfitGenerationRepo(pool)

	// Domain services.
	catalog := billing.NewCatalog()
	resolver := billing.NewResolver(catalog, subRepo, clock, logger)
	meter := billing.NewMeter(catalog, usageRepo, clock, logger)

	sessionSvc := auth.NewSessionService(
		sessionRepo,
		auth.NewCryptoTokenGenerator(),
		auth.SessionConfig{
			SessionDuration: cfg.Auth.SessionDuration,
			SessionIDPrefix: "sess_",
		},
		clock,
		logger,
	)
	stepUpSvc := auth.NewStepUpService(userRepo, sessionRepo, clock, logger)
	guard := admin.NewGuard(rateRepo, admin.GuardConfig{
		ActionLimit:  cfg.Admin.ActionLimit,
		ActionWindow: cfg.Admin.ActionWindow,
		StepUpMaxAge: cfg.Admin.StepUpMaxAge,
	}, clock, logger)
	supportSvc := support.NewService(supportRepo, clock, logger)

	stripeClient := external.NewStripeClient(nil, subRepo, external.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey,
		Logger:    logger,
	})
	verifier := external.NewStripeSignatureVerifier(cfg.Billing.WebhookTolerance, clock)

	// Build the server.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Sessions = sessionSvc
	srv.HealthProbes = append(srv.HealthProbes, db.NewPoolProbe(pool))

	// Wire handlers.
	authHandler := handlers.NewAuthHandler(userRepo, sessionSvc, stepUpSvc, srv.Validator, logger)
	billingHandler := handlers.NewBillingHandler(stripeClient, resolver, meter, cfg, logger)
	outfitsHandler := handlers.NewOutfitsHandler(resolver, meter, outfitRepo, srv.Validator, clock, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(verifier, subRepo, cfg, logger)
	adminHandler := handlers.NewAdminHandler(guard, userRepo, supportSvc, supportRepo, auditRepo, clock, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		authHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		outfitsHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
		func(r chi.Router) {
			adminHandler.RegisterRoutes(r, srv.RequireAdmin)
		},
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newPool builds the pgx connection pool with the configured tuning and
// verifies connectivity before the server starts accepting traffic.
func newPool(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(dbCfg.MaxConns)
	poolCfg.MinConns = int32(dbCfg.MinConns)
	poolCfg.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = dbCfg.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = dbCfg.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// runHTTPServer starts the server with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
