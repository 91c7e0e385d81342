package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/billforge/billforge/pkg/api"
	"github.com/billforge/billforge/pkg/audit"
	"github.com/billforge/billforge/pkg/billing"
	"github.com/billforge/billforge/pkg/config"
	"github.com/billforge/billforge/pkg/jobs"
	"github.com/billforge/billforge/pkg/notifications"
	"github.com/billforge/billforge/pkg/observability"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "billforged")

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Error("failed to ping database")
		os.Exit(1)
	}

	store := billing.NewStore(db)
	ledger := jobs.NewLedger(db)
	auditor := audit.NewLogger(db)
	for _, ensure := range []func(context.Context) error{
		store.EnsureSchema, ledger.EnsureSchema, auditor.EnsureSchema,
	} {
		if err := ensure(ctx); err != nil {
			logger.WithError(err).Error("failed to ensure database schema")
			os.Exit(1)
		}
	}

	var redisClient *redis.Client
	if cfg.Server.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Server.RedisAddr,
			Password: cfg.Server.RedisPassword,
			DB:       cfg.Server.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, rate limiting degraded to fail-open")
		}
		defer redisClient.Close()
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	alerter := audit.NewLogAlerter()
	gateway := billing.NewMockGateway()
	notifier := notifications.NewLogNotifier()

	policy := billing.DunningPolicy{
		Cooldown:     cfg.Billing.DunningCooldown,
		MaxReminders: cfg.Billing.DunningMaxReminders,
		GraceDays:    cfg.Billing.GraceDays,
	}

	service := billing.NewService(store, gateway, auditor, logger)
	cycle := billing.NewCycleProcessor(store, ledger, gateway, auditor, alerter, metrics, logger)
	dunning := billing.NewDunningProcessor(store, ledger, notifier, auditor, alerter, metrics, logger, policy)
	reconciler := billing.NewReconciler(store, auditor, metrics, logger)
	runner := jobs.NewRunner(ctx, 2, cfg.Billing.JobQueueSize, 30*time.Minute, logger)

	server := api.NewServer(api.Deps{
		Config:     cfg,
		Store:      store,
		Service:    service,
		Cycle:      cycle,
		Dunning:    dunning,
		Reconciler: reconciler,
		Ledger:     ledger,
		Runner:     runner,
		Auditor:    auditor,
		Metrics:    metrics,
		Registry:   registry,
		Logger:     logger,
		Redis:      redisClient,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", httpServer.Addr).Info("billing API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.WithError(err).Error("server failed")
		os.Exit(1)
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown failed")
	}
	if err := runner.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		logger.WithError(err).Error("job runner shutdown failed")
	}
	logger.Info("stopped")
}
