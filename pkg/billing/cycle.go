package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/audit"
	"github.com/billforge/billforge/pkg/jobs"
	"github.com/billforge/billforge/pkg/observability"
)

const (
	// JobNameBillingCycle is the ledger name of the billing cycle job
	JobNameBillingCycle = "billing_cycle"

	// progressEvery controls how often a long run checkpoints its
	// counters into the job ledger.
	progressEvery = 25
)

// CycleProcessor scans for due subscriptions and issues the next invoice
// for each of them. One failing subscription never aborts the batch.
type CycleProcessor struct {
	store   *Store
	ledger  *jobs.Ledger
	gateway PaymentGateway
	auditor *audit.Logger
	alerter audit.Alerter
	metrics *observability.Metrics
	logger  *observability.Logger

	// InvoiceDueDays is how long after issue an invoice is due
	InvoiceDueDays int
}

// NewCycleProcessor creates a billing cycle processor
func NewCycleProcessor(store *Store, ledger *jobs.Ledger, gateway PaymentGateway, auditor *audit.Logger, alerter audit.Alerter, metrics *observability.Metrics, logger *observability.Logger) *CycleProcessor {
	return &CycleProcessor{
		store:          store,
		ledger:         ledger,
		gateway:        gateway,
		auditor:        auditor,
		alerter:        alerter,
		metrics:        metrics,
		logger:         logger.WithField("job", JobNameBillingCycle),
		InvoiceDueDays: 14,
	}
}

// Start opens a ledger entry for a new run and returns its ID. The scan
// itself happens in Execute, so an HTTP trigger can respond immediately.
func (p *CycleProcessor) Start(ctx context.Context) (uuid.UUID, error) {
	return p.ledger.Start(ctx, JobNameBillingCycle, map[string]any{
		"total": 0, "processed": 0, "failed": 0,
	})
}

// Run starts and executes a full billing cycle pass. Used by the
// scheduler; HTTP triggers call Start and Execute separately.
func (p *CycleProcessor) Run(ctx context.Context) (*JobSummary, error) {
	runID, err := p.Start(ctx)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, runID)
}

// Execute performs the due-subscription scan under an existing ledger
// entry. Each subscription is billed in its own transaction; a failure
// rolls that subscription back, leaves earlier work committed, and the
// scan continues.
func (p *CycleProcessor) Execute(ctx context.Context, runID uuid.UUID) (*JobSummary, error) {
	started := time.Now()
	asOf := started.UTC()

	subs, err := p.store.ListDueSubscriptions(ctx, asOf)
	if err != nil {
		return nil, p.failRun(ctx, runID, started, fmt.Errorf("failed to scan due subscriptions: %w", err))
	}

	summary := &JobSummary{Total: len(subs)}
	if err := p.ledger.Update(ctx, runID, map[string]any{"total": summary.Total}); err != nil {
		p.logger.WithError(err).Warn("failed to checkpoint job progress")
	}

	for i, sub := range subs {
		if ctx.Err() != nil {
			return nil, p.failRun(ctx, runID, started, fmt.Errorf("run interrupted: %w", ctx.Err()))
		}

		if err := p.billOne(ctx, sub, asOf); err != nil {
			summary.Failed++
			p.metrics.JobItemsTotal.WithLabelValues(JobNameBillingCycle, "failed").Inc()
			p.logger.WithError(err).WithField("subscription_id", sub.ID).Error("failed to bill subscription")
			if errors.Is(err, ErrPlanNotFound) {
				p.auditor.Log(ctx, sub.TenantID, audit.EventTypeBillingPlanMissing, audit.SeverityError,
					"subscription references a missing plan", map[string]any{
						"subscription_id": sub.ID.String(),
						"plan_id":         sub.PlanID.String(),
					})
			} else {
				p.auditor.Log(ctx, sub.TenantID, audit.EventTypeBillingUnitFailed, audit.SeverityError,
					"billing failed for subscription", map[string]any{
						"subscription_id": sub.ID.String(),
						"error":           err.Error(),
					})
			}
		} else {
			summary.Processed++
			p.metrics.JobItemsTotal.WithLabelValues(JobNameBillingCycle, "processed").Inc()
		}

		if (i+1)%progressEvery == 0 {
			if err := p.ledger.Update(ctx, runID, map[string]any{
				"processed": summary.Processed, "failed": summary.Failed,
			}); err != nil {
				p.logger.WithError(err).Warn("failed to checkpoint job progress")
			}
		}
	}

	if err := p.ledger.Complete(ctx, runID, map[string]any{
		"total": summary.Total, "processed": summary.Processed, "failed": summary.Failed,
	}); err != nil {
		p.logger.WithError(err).Error("failed to complete job run")
	}

	p.metrics.JobRunsTotal.WithLabelValues(JobNameBillingCycle, "completed").Inc()
	p.metrics.JobDuration.WithLabelValues(JobNameBillingCycle).Observe(time.Since(started).Seconds())
	p.auditor.LogSystem(ctx, audit.EventTypeBillingRunCompleted, audit.SeverityInfo,
		"billing cycle run completed", map[string]any{
			"run_id": runID.String(), "total": summary.Total,
			"processed": summary.Processed, "failed": summary.Failed,
		})
	p.logger.WithFields(map[string]interface{}{
		"run_id": runID, "total": summary.Total,
		"processed": summary.Processed, "failed": summary.Failed,
	}).Info("billing cycle run completed")

	return summary, nil
}

// billOne issues the invoice for a single due subscription inside one
// transaction. A subscription flagged cancel_at_period_end is closed out
// instead of invoiced.
func (p *CycleProcessor) billOne(ctx context.Context, sub *Subscription, asOf time.Time) error {
	// Audit trail entries for committed work are written after the
	// transaction commits; a rolled-back invoice must leave no trace.
	var issued *Invoice
	var issuedTotal int64
	var closedOut bool
	var gatewayErr error

	err := p.store.WithTx(ctx, func(tx *sql.Tx) error {
		if sub.CancelAtPeriodEnd {
			if _, err := p.store.Transition(ctx, tx, sub.ID, sub.Status, SubscriptionStatusCanceled); err != nil {
				return err
			}
			closedOut = true
			return nil
		}

		plan, err := p.store.GetPlan(ctx, tx, sub.PlanID)
		if err != nil {
			return err
		}

		subID := sub.ID
		inv := &Invoice{
			TenantID:       sub.TenantID,
			SubscriptionID: &subID,
			Status:         InvoiceStatusOpen,
			IssueDate:      asOf,
			DueDate:        asOf.AddDate(0, 0, p.InvoiceDueDays),
			Currency:       plan.Currency,
		}
		if err := p.store.CreateInvoice(ctx, tx, inv); err != nil {
			return err
		}

		line := &InvoiceLine{
			InvoiceID:      inv.ID,
			Description:    fmt.Sprintf("%s (%s to %s)", plan.Name, sub.CurrentPeriodStart.Format("2006-01-02"), sub.CurrentPeriodEnd.Format("2006-01-02")),
			Quantity:       1,
			UnitPriceCents: plan.BasePriceCents,
			AmountCents:    plan.BasePriceCents,
			Type:           LineTypeRecurring,
		}
		if err := p.store.CreateInvoiceLine(ctx, tx, line); err != nil {
			return err
		}

		total, err := p.store.SumInvoiceLines(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		if err := p.store.SetInvoiceTotal(ctx, tx, inv.ID, total); err != nil {
			return err
		}

		// A gateway outage must not lose the invoice. The payment stays
		// pending without an external ref and is retried later.
		externalRef, gwErr := p.gateway.CreatePaymentAttempt(ctx, total, plan.Currency, inv.ID.String())
		if gwErr != nil {
			gatewayErr = gwErr
			p.logger.WithError(gwErr).WithField("invoice_id", inv.ID).Warn("payment gateway attempt failed")
		}

		payment := &Payment{
			TenantID:    sub.TenantID,
			InvoiceID:   inv.ID,
			Status:      PaymentStatusPending,
			AmountCents: total,
			Currency:    plan.Currency,
			ExternalRef: externalRef,
		}
		if err := p.store.CreatePayment(ctx, tx, payment); err != nil {
			return err
		}

		newStart := sub.CurrentPeriodEnd
		newEnd := newStart.AddDate(0, 0, plan.PeriodDays)
		if err := p.store.AdvancePeriod(ctx, tx, sub.ID, newStart, newEnd); err != nil {
			return err
		}

		issued = inv
		issuedTotal = total
		return nil
	})
	if err != nil {
		return err
	}

	if closedOut {
		p.auditor.Log(ctx, sub.TenantID, audit.EventTypeSubscriptionCanceled, audit.SeverityInfo,
			"subscription closed at period end", map[string]any{"subscription_id": sub.ID.String()})
	}
	if issued != nil {
		p.auditor.Log(ctx, sub.TenantID, audit.EventTypeBillingInvoiceIssued, audit.SeverityInfo,
			"invoice issued", map[string]any{
				"subscription_id": sub.ID.String(),
				"invoice_id":      issued.ID.String(),
				"invoice_number":  issued.Number,
				"total_cents":     issuedTotal,
			})
		if gatewayErr != nil {
			p.auditor.Log(ctx, sub.TenantID, audit.EventTypeBillingGatewayError, audit.SeverityWarning,
				"payment gateway rejected the charge attempt", map[string]any{
					"invoice_id": issued.ID.String(),
					"error":      gatewayErr.Error(),
				})
			p.alerter.NotifyError(ctx, "payment gateway attempt failed", gatewayErr.Error())
		}
	}
	return nil
}

func (p *CycleProcessor) failRun(ctx context.Context, runID uuid.UUID, started time.Time, runErr error) error {
	if err := p.ledger.Fail(ctx, runID, runErr, nil); err != nil {
		p.logger.WithError(err).Error("failed to record job failure")
	}
	p.metrics.JobRunsTotal.WithLabelValues(JobNameBillingCycle, "failed").Inc()
	p.metrics.JobDuration.WithLabelValues(JobNameBillingCycle).Observe(time.Since(started).Seconds())
	p.auditor.LogSystem(ctx, audit.EventTypeBillingRunFailed, audit.SeverityCritical,
		"billing cycle run failed", map[string]any{"run_id": runID.String(), "error": runErr.Error()})
	p.alerter.NotifyCritical(ctx, "billing cycle run failed", runErr.Error())
	return runErr
}
