package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/billforge/billforge/pkg/audit"
	"github.com/billforge/billforge/pkg/observability"
)

// Reconciler applies externally reported payment outcomes to the
// billing state. Apply is idempotent: the same event delivered twice
// changes nothing the second time.
type Reconciler struct {
	store   *Store
	auditor *audit.Logger
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewReconciler creates a payment outcome reconciler
func NewReconciler(store *Store, auditor *audit.Logger, metrics *observability.Metrics, logger *observability.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		auditor: auditor,
		metrics: metrics,
		logger:  logger.WithField("component", "reconciler"),
	}
}

// Apply reconciles one payment outcome event in a single transaction.
//
// Duplicate events and events for unknown invoices are acknowledged
// without mutating any row, so the upstream processor stops retrying.
// A subscription status change rides the same transaction as the
// payment and invoice updates.
func (r *Reconciler) Apply(ctx context.Context, ev OutcomeEvent) error {
	if ev.Outcome != OutcomeSucceeded && ev.Outcome != OutcomeFailed {
		return fmt.Errorf("unknown payment outcome %q", ev.Outcome)
	}

	var duplicate, unknown, applied bool
	var tenantInfo *Invoice

	err := r.store.WithTx(ctx, func(tx *sql.Tx) error {
		seen, err := r.store.IsEventProcessed(ctx, tx, ev)
		if err != nil {
			return err
		}
		if seen {
			duplicate = true
			return nil
		}

		inv, err := r.store.GetInvoice(ctx, tx, ev.InvoiceID)
		if err != nil {
			if errors.Is(err, ErrInvoiceNotFound) {
				unknown = true
				return nil
			}
			return err
		}
		tenantInfo = inv

		switch ev.Outcome {
		case OutcomeSucceeded:
			applied, err = r.applySuccess(ctx, tx, inv, ev)
		case OutcomeFailed:
			applied, err = r.applyFailure(ctx, tx, inv, ev)
		}
		if err != nil {
			return err
		}

		// Recorded even when no payment row changed: the event was
		// observed and a replay of it is a duplicate.
		return r.store.MarkEventProcessed(ctx, tx, ev)
	})
	if err != nil {
		return err
	}

	switch {
	case duplicate:
		r.metrics.DuplicateEventsTotal.Inc()
		r.logger.WithFields(map[string]interface{}{
			"external_ref": ev.ExternalRef, "invoice_id": ev.InvoiceID,
		}).Info("duplicate payment event ignored")
	case unknown:
		r.metrics.UnknownEventsTotal.Inc()
		r.logger.WithFields(map[string]interface{}{
			"external_ref": ev.ExternalRef, "invoice_id": ev.InvoiceID,
		}).Warn("payment event references unknown invoice")
	default:
		r.metrics.PaymentOutcomesTotal.WithLabelValues(string(ev.Outcome)).Inc()
		r.auditOutcome(ctx, tenantInfo, ev, applied)
	}
	return nil
}

// applySuccess marks the invoice paid and recovers the subscription.
// Returns false when the payment had already succeeded, in which case
// nothing else is touched.
func (r *Reconciler) applySuccess(ctx context.Context, tx *sql.Tx, inv *Invoice, ev OutcomeEvent) (bool, error) {
	n, err := r.store.SetPaymentOutcome(ctx, tx, inv.ID, PaymentStatusSucceeded, ev.ExternalRef, "", "")
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if err := r.store.SetInvoiceStatus(ctx, tx, inv.ID, InvoiceStatusPaid); err != nil {
		return false, err
	}

	if inv.SubscriptionID == nil {
		return true, nil
	}
	sub, err := r.store.GetSubscription(ctx, tx, *inv.SubscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return true, nil
		}
		return false, err
	}

	switch sub.Status {
	case SubscriptionStatusPastDue, SubscriptionStatusGracePeriod:
		if _, err := r.store.Transition(ctx, tx, sub.ID, sub.Status, SubscriptionStatusActive); err != nil {
			return false, err
		}
		if err := r.store.ResetDunning(ctx, tx, sub.ID); err != nil {
			return false, err
		}
	}
	return true, nil
}

// applyFailure marks the payment failed and pushes an active
// subscription into past_due. A payment that already succeeded is left
// alone; late failure events cannot undo a confirmed success.
func (r *Reconciler) applyFailure(ctx context.Context, tx *sql.Tx, inv *Invoice, ev OutcomeEvent) (bool, error) {
	n, err := r.store.SetPaymentOutcome(ctx, tx, inv.ID, PaymentStatusFailed, ev.ExternalRef, ev.ErrorCode, ev.ErrorMessage)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if inv.Status != InvoiceStatusOpen {
		if err := r.store.SetInvoiceStatus(ctx, tx, inv.ID, InvoiceStatusOpen); err != nil {
			return false, err
		}
	}

	if inv.SubscriptionID == nil {
		return true, nil
	}
	// Conditional on the row still being active; a racing processor
	// that already moved it wins.
	if _, err := r.store.Transition(ctx, tx, *inv.SubscriptionID, SubscriptionStatusActive, SubscriptionStatusPastDue); err != nil {
		return false, err
	}

	if err := r.store.InsertNotification(ctx, tx, inv.TenantID, "payment_failed",
		fmt.Sprintf("Payment for invoice %s failed. Please update your payment method.", inv.Number)); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Reconciler) auditOutcome(ctx context.Context, inv *Invoice, ev OutcomeEvent, applied bool) {
	metadata := map[string]any{
		"invoice_id":   inv.ID.String(),
		"external_ref": ev.ExternalRef,
		"applied":      applied,
	}
	if ev.Outcome == OutcomeSucceeded {
		r.auditor.Log(ctx, inv.TenantID, audit.EventTypePaymentSucceeded, audit.SeverityInfo,
			"payment succeeded", metadata)
		return
	}
	if ev.ErrorCode != "" {
		metadata["error_code"] = ev.ErrorCode
	}
	r.auditor.Log(ctx, inv.TenantID, audit.EventTypePaymentFailed, audit.SeverityWarning,
		"payment failed", metadata)
}
