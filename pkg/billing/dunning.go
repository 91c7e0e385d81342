package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/audit"
	"github.com/billforge/billforge/pkg/jobs"
	"github.com/billforge/billforge/pkg/notifications"
	"github.com/billforge/billforge/pkg/observability"
)

// JobNameDunning is the ledger name of the dunning job
const JobNameDunning = "dunning"

// DunningPolicy controls reminder pacing and escalation
type DunningPolicy struct {
	// Cooldown is the minimum time between reminders to one subscription
	Cooldown time.Duration
	// MaxReminders is how many reminders are sent before escalating
	// a past_due subscription into grace_period
	MaxReminders int
	// GraceDays is how long a subscription may sit in grace_period
	// before it is canceled automatically
	GraceDays int
}

// DefaultDunningPolicy returns the standard escalation policy
func DefaultDunningPolicy() DunningPolicy {
	return DunningPolicy{
		Cooldown:     72 * time.Hour,
		MaxReminders: 3,
		GraceDays:    7,
	}
}

// DunningCandidate is one past_due subscription eligible for a reminder,
// joined with the tenant contact and its most recent open invoice.
type DunningCandidate struct {
	SubscriptionID    uuid.UUID
	TenantID          uuid.UUID
	DunningAttempts   int
	LastDunningSentAt *time.Time
	TenantName        string
	BillingEmail      string
	InvoiceID         uuid.UUID
	InvoiceNumber     string
	TotalCents        int64
	Currency          string
}

// ListDunningCandidates returns past_due subscriptions with an open
// invoice that have never been reminded or whose last reminder is older
// than the cutoff.
func (s *Store) ListDunningCandidates(ctx context.Context, cutoff time.Time) ([]*DunningCandidate, error) {
	query := `SELECT s.id, s.tenant_id, s.dunning_attempts, s.last_dunning_sent_at,
			t.name, t.billing_email, i.id, i.number, i.total_cents, i.currency
		FROM subscriptions s
		JOIN tenants t ON t.id = s.tenant_id
		JOIN invoices i ON i.id = (
			SELECT id FROM invoices
			WHERE subscription_id = s.id AND status = 'open'
			ORDER BY created_at DESC LIMIT 1
		)
		WHERE s.status = 'past_due'
			AND (s.last_dunning_sent_at IS NULL OR s.last_dunning_sent_at <= $1)
		ORDER BY s.last_dunning_sent_at`
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list dunning candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*DunningCandidate
	for rows.Next() {
		c := &DunningCandidate{}
		var lastSent sql.NullTime
		if err := rows.Scan(
			&c.SubscriptionID, &c.TenantID, &c.DunningAttempts, &lastSent,
			&c.TenantName, &c.BillingEmail, &c.InvoiceID, &c.InvoiceNumber,
			&c.TotalCents, &c.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan dunning candidate: %w", err)
		}
		if lastSent.Valid {
			t := lastSent.Time
			c.LastDunningSentAt = &t
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ListExpiredGrace returns grace_period subscriptions that entered the
// window before the cutoff. The entry stamp is written by the transition
// into grace_period and is never moved by later row updates.
func (s *Store) ListExpiredGrace(ctx context.Context, cutoff time.Time) ([]*Subscription, error) {
	query := subscriptionColumns + `
		WHERE status = 'grace_period' AND grace_entered_at IS NOT NULL AND grace_entered_at <= $1
		ORDER BY grace_entered_at`
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired grace subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// DunningProcessor sends payment reminders for past_due subscriptions
// and escalates the ones that exhaust the reminder budget. Reminders
// are send-then-stamp: the cooldown timestamp is written only after the
// notifier confirms delivery, so a failed send is retried on the next
// run instead of silently skipped.
type DunningProcessor struct {
	store    *Store
	ledger   *jobs.Ledger
	notifier notifications.Notifier
	auditor  *audit.Logger
	alerter  audit.Alerter
	metrics  *observability.Metrics
	logger   *observability.Logger
	policy   DunningPolicy
}

// NewDunningProcessor creates a dunning processor
func NewDunningProcessor(store *Store, ledger *jobs.Ledger, notifier notifications.Notifier, auditor *audit.Logger, alerter audit.Alerter, metrics *observability.Metrics, logger *observability.Logger, policy DunningPolicy) *DunningProcessor {
	if policy.MaxReminders <= 0 {
		policy = DefaultDunningPolicy()
	}
	return &DunningProcessor{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		auditor:  auditor,
		alerter:  alerter,
		metrics:  metrics,
		logger:   logger.WithField("job", JobNameDunning),
		policy:   policy,
	}
}

// Start opens a ledger entry for a new run and returns its ID
func (p *DunningProcessor) Start(ctx context.Context) (uuid.UUID, error) {
	return p.ledger.Start(ctx, JobNameDunning, map[string]any{
		"total": 0, "processed": 0, "failed": 0,
	})
}

// Run starts and executes a full dunning pass
func (p *DunningProcessor) Run(ctx context.Context) (*JobSummary, error) {
	runID, err := p.Start(ctx)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, runID)
}

// Execute performs the dunning scan under an existing ledger entry.
// A failure on one subscription is counted and the scan continues.
func (p *DunningProcessor) Execute(ctx context.Context, runID uuid.UUID) (*JobSummary, error) {
	started := time.Now()
	now := started.UTC()

	candidates, err := p.store.ListDunningCandidates(ctx, now.Add(-p.policy.Cooldown))
	if err != nil {
		return nil, p.failRun(ctx, runID, started, fmt.Errorf("failed to scan dunning candidates: %w", err))
	}
	expired, err := p.store.ListExpiredGrace(ctx, now.AddDate(0, 0, -p.policy.GraceDays))
	if err != nil {
		return nil, p.failRun(ctx, runID, started, fmt.Errorf("failed to scan expired grace subscriptions: %w", err))
	}

	summary := &JobSummary{Total: len(candidates) + len(expired)}
	if err := p.ledger.Update(ctx, runID, map[string]any{"total": summary.Total}); err != nil {
		p.logger.WithError(err).Warn("failed to checkpoint job progress")
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			return nil, p.failRun(ctx, runID, started, fmt.Errorf("run interrupted: %w", ctx.Err()))
		}
		if err := p.remindOne(ctx, c, now); err != nil {
			summary.Failed++
			p.metrics.JobItemsTotal.WithLabelValues(JobNameDunning, "failed").Inc()
			p.logger.WithError(err).WithField("subscription_id", c.SubscriptionID).Error("dunning step failed")
		} else {
			summary.Processed++
			p.metrics.JobItemsTotal.WithLabelValues(JobNameDunning, "processed").Inc()
		}
	}

	for _, sub := range expired {
		if ctx.Err() != nil {
			return nil, p.failRun(ctx, runID, started, fmt.Errorf("run interrupted: %w", ctx.Err()))
		}
		if err := p.cancelExpired(ctx, sub); err != nil {
			summary.Failed++
			p.metrics.JobItemsTotal.WithLabelValues(JobNameDunning, "failed").Inc()
			p.logger.WithError(err).WithField("subscription_id", sub.ID).Error("grace expiry step failed")
		} else {
			summary.Processed++
			p.metrics.JobItemsTotal.WithLabelValues(JobNameDunning, "processed").Inc()
		}
	}

	if err := p.ledger.Complete(ctx, runID, map[string]any{
		"total": summary.Total, "processed": summary.Processed, "failed": summary.Failed,
	}); err != nil {
		p.logger.WithError(err).Error("failed to complete job run")
	}

	p.metrics.JobRunsTotal.WithLabelValues(JobNameDunning, "completed").Inc()
	p.metrics.JobDuration.WithLabelValues(JobNameDunning).Observe(time.Since(started).Seconds())
	p.auditor.LogSystem(ctx, audit.EventTypeDunningRunCompleted, audit.SeverityInfo,
		"dunning run completed", map[string]any{
			"run_id": runID.String(), "total": summary.Total,
			"processed": summary.Processed, "failed": summary.Failed,
		})
	return summary, nil
}

// remindOne either escalates an exhausted subscription or sends the
// next reminder and stamps the cooldown.
func (p *DunningProcessor) remindOne(ctx context.Context, c *DunningCandidate, now time.Time) error {
	if c.DunningAttempts >= p.policy.MaxReminders {
		applied, err := p.store.Transition(ctx, p.store.DB(), c.SubscriptionID, SubscriptionStatusPastDue, SubscriptionStatusGracePeriod)
		if err != nil {
			return err
		}
		if applied {
			p.auditor.Log(ctx, c.TenantID, audit.EventTypeDunningEscalated, audit.SeverityWarning,
				"subscription escalated to grace period", map[string]any{
					"subscription_id": c.SubscriptionID.String(),
					"attempts":        c.DunningAttempts,
				})
		}
		return nil
	}

	err := p.notifier.SendReminder(ctx, notifications.Reminder{
		Contact:       c.BillingEmail,
		TenantName:    c.TenantName,
		InvoiceNumber: c.InvoiceNumber,
		AmountCents:   c.TotalCents,
		Currency:      c.Currency,
		Attempt:       c.DunningAttempts + 1,
	})
	if err != nil {
		p.metrics.DunningRemindersTotal.WithLabelValues("failed").Inc()
		p.auditor.Log(ctx, c.TenantID, audit.EventTypeDunningSendFailed, audit.SeverityError,
			"payment reminder delivery failed", map[string]any{
				"subscription_id": c.SubscriptionID.String(),
				"invoice_number":  c.InvoiceNumber,
				"error":           err.Error(),
			})
		return fmt.Errorf("failed to send reminder: %w", err)
	}

	if err := p.store.StampDunning(ctx, c.SubscriptionID, now, c.DunningAttempts+1); err != nil {
		return err
	}
	p.metrics.DunningRemindersTotal.WithLabelValues("sent").Inc()
	p.auditor.Log(ctx, c.TenantID, audit.EventTypeDunningReminderSent, audit.SeverityInfo,
		"payment reminder sent", map[string]any{
			"subscription_id": c.SubscriptionID.String(),
			"invoice_number":  c.InvoiceNumber,
			"attempt":         c.DunningAttempts + 1,
		})
	return nil
}

// cancelExpired closes a subscription whose grace window has run out
func (p *DunningProcessor) cancelExpired(ctx context.Context, sub *Subscription) error {
	var applied bool
	err := p.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		applied, err = p.store.Transition(ctx, tx, sub.ID, SubscriptionStatusGracePeriod, SubscriptionStatusCanceledAuto)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return p.store.InsertNotification(ctx, tx, sub.TenantID, "subscription_canceled",
			"Your subscription was canceled after repeated failed payment attempts.")
	})
	if err != nil {
		return err
	}
	if applied {
		p.auditor.Log(ctx, sub.TenantID, audit.EventTypeDunningAutoCanceled, audit.SeverityWarning,
			"subscription canceled after grace period expiry", map[string]any{
				"subscription_id": sub.ID.String(),
			})
	}
	return nil
}

func (p *DunningProcessor) failRun(ctx context.Context, runID uuid.UUID, started time.Time, runErr error) error {
	if err := p.ledger.Fail(ctx, runID, runErr, nil); err != nil {
		p.logger.WithError(err).Error("failed to record job failure")
	}
	p.metrics.JobRunsTotal.WithLabelValues(JobNameDunning, "failed").Inc()
	p.metrics.JobDuration.WithLabelValues(JobNameDunning).Observe(time.Since(started).Seconds())
	p.auditor.LogSystem(ctx, audit.EventTypeDunningRunFailed, audit.SeverityCritical,
		"dunning run failed", map[string]any{"run_id": runID.String(), "error": runErr.Error()})
	p.alerter.NotifyCritical(ctx, "dunning run failed", runErr.Error())
	return runErr
}
