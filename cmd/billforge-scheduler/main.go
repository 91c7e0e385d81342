package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/billforge/billforge/pkg/audit"
	"github.com/billforge/billforge/pkg/billing"
	"github.com/billforge/billforge/pkg/config"
	"github.com/billforge/billforge/pkg/jobs"
	"github.com/billforge/billforge/pkg/notifications"
	"github.com/billforge/billforge/pkg/observability"
)

var (
	runOnce = flag.Bool("run-once", false, "Run both jobs once and exit")
	onlyJob = flag.String("job", "", "With --run-once, run only this job (billing_cycle or dunning)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "billforge-scheduler")

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

	cycle := billing.NewCycleProcessor(store, ledger, gateway, auditor, alerter, metrics, logger)
	dunning := billing.NewDunningProcessor(store, ledger, notifier, auditor, alerter, metrics, logger, policy)

	if *runOnce {
		if err := runJobsOnce(ctx, cycle, dunning, *onlyJob, logger); err != nil {
			os.Exit(1)
		}
		return
	}

	c := cron.New()

	if _, err := c.AddFunc(cfg.Scheduler.BillingSchedule, func() {
		if summary, err := cycle.Run(context.Background()); err != nil {
			logger.WithError(err).Error("scheduled billing cycle failed")
		} else {
			logger.WithFields(map[string]interface{}{
				"total": summary.Total, "processed": summary.Processed, "failed": summary.Failed,
			}).Info("scheduled billing cycle finished")
		}
	}); err != nil {
		logger.WithError(err).Error("failed to schedule billing cycle")
		os.Exit(1)
	}

	if _, err := c.AddFunc(cfg.Scheduler.DunningSchedule, func() {
		if summary, err := dunning.Run(context.Background()); err != nil {
			logger.WithError(err).Error("scheduled dunning run failed")
		} else {
			logger.WithFields(map[string]interface{}{
				"total": summary.Total, "processed": summary.Processed, "failed": summary.Failed,
			}).Info("scheduled dunning run finished")
		}
	}); err != nil {
		logger.WithError(err).Error("failed to schedule dunning run")
		os.Exit(1)
	}

	c.Start()
	logger.WithFields(map[string]interface{}{
		"billing_schedule": cfg.Scheduler.BillingSchedule,
		"dunning_schedule": cfg.Scheduler.DunningSchedule,
	}).Info("scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
}

// runJobsOnce executes the selected jobs concurrently and returns the
// first error. Used for manual runs and backfills.
func runJobsOnce(ctx context.Context, cycle *billing.CycleProcessor, dunning *billing.DunningProcessor, only string, logger *observability.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	if only == "" || only == billing.JobNameBillingCycle {
		g.Go(func() error {
			summary, err := cycle.Run(ctx)
			if err != nil {
				logger.WithError(err).Error("billing cycle failed")
				return err
			}
			logger.WithFields(map[string]interface{}{
				"total": summary.Total, "processed": summary.Processed, "failed": summary.Failed,
			}).Info("billing cycle finished")
			return nil
		})
	}

	if only == "" || only == billing.JobNameDunning {
		g.Go(func() error {
			summary, err := dunning.Run(ctx)
			if err != nil {
				logger.WithError(err).Error("dunning run failed")
				return err
			}
			logger.WithFields(map[string]interface{}{
				"total": summary.Total, "processed": summary.Processed, "failed": summary.Failed,
			}).Info("dunning run finished")
			return nil
		})
	}

	return g.Wait()
}
