package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/billforge/billforge/pkg/audit"
	"github.com/billforge/billforge/pkg/observability"
)

// Service implements the tenant-facing subscription operations
type Service struct {
	store   *Store
	gateway PaymentGateway
	auditor *audit.Logger
	logger  *observability.Logger
}

// NewService creates a billing service
func NewService(store *Store, gateway PaymentGateway, auditor *audit.Logger, logger *observability.Logger) *Service {
	return &Service{
		store:   store,
		gateway: gateway,
		auditor: auditor,
		logger:  logger.WithField("component", "billing"),
	}
}

// Subscribe creates a new subscription on a plan. Any live subscription
// the tenant already has is terminated in the same transaction, which
// keeps at most one subscription live per tenant.
func (s *Service) Subscribe(ctx context.Context, tenantID, planID uuid.UUID) (*Subscription, error) {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var sub *Subscription
	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		plan, err := s.store.GetPlan(ctx, tx, planID)
		if err != nil {
			return err
		}

		replaced, err := s.store.TerminateLive(ctx, tx, tenant.ID, SubscriptionStatusCanceled)
		if err != nil {
			return err
		}
		if replaced > 0 {
			s.logger.WithFields(map[string]interface{}{
				"tenant_id": tenant.ID, "replaced": replaced,
			}).Info("terminated prior subscriptions on resubscribe")
		}

		now := time.Now().UTC()
		sub = &Subscription{
			TenantID:           tenant.ID,
			PlanID:             plan.ID,
			Status:             SubscriptionStatusActive,
			StartDate:          now,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   now.AddDate(0, 0, plan.PeriodDays),
		}
		return s.store.CreateSubscription(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, tenant.ID, audit.EventTypeSubscriptionCreated, audit.SeverityInfo,
		"subscription created", map[string]any{
			"subscription_id": sub.ID.String(),
			"plan_id":         planID.String(),
		})
	return sub, nil
}

// Cancel ends the tenant's current subscription. With atPeriodEnd the
// subscription stays live and is closed out by the next billing run;
// otherwise it is canceled immediately.
func (s *Service) Cancel(ctx context.Context, tenantID uuid.UUID, atPeriodEnd bool) (*Subscription, error) {
	sub, err := s.store.GetCurrentSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !sub.Status.IsLive() {
		return nil, ErrSubscriptionNotFound
	}

	if atPeriodEnd {
		if err := s.store.SetCancelAtPeriodEnd(ctx, s.store.DB(), sub.ID, true); err != nil {
			return nil, err
		}
		sub.CancelAtPeriodEnd = true
	} else {
		applied, err := s.store.Transition(ctx, s.store.DB(), sub.ID, sub.Status, SubscriptionStatusCanceled)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, fmt.Errorf("subscription %s changed concurrently", sub.ID)
		}
		sub.Status = SubscriptionStatusCanceled
	}

	s.auditor.Log(ctx, tenantID, audit.EventTypeSubscriptionCanceled, audit.SeverityInfo,
		"subscription canceled by tenant", map[string]any{
			"subscription_id": sub.ID.String(),
			"at_period_end":   atPeriodEnd,
		})
	return sub, nil
}

// RetryPayment replays a charge attempt for a failed or stuck payment.
// On a confirmed charge the invoice is settled and a past_due or
// grace_period subscription recovers to active.
func (s *Service) RetryPayment(ctx context.Context, tenantID, paymentID uuid.UUID) (*Payment, error) {
	payment, err := s.store.GetPayment(ctx, s.store.DB(), paymentID, tenantID)
	if err != nil {
		return nil, err
	}
	if payment.Status == PaymentStatusSucceeded {
		return nil, ErrPaymentAlreadySucceeded
	}

	externalRef, err := s.gateway.CreatePaymentAttempt(ctx, payment.AmountCents, payment.Currency, payment.InvoiceID.String())
	if err != nil {
		return nil, fmt.Errorf("payment gateway rejected retry: %w", err)
	}

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.store.SetPaymentOutcome(ctx, tx, payment.InvoiceID, PaymentStatusSucceeded, externalRef, "", ""); err != nil {
			return err
		}
		if err := s.store.SetInvoiceStatus(ctx, tx, payment.InvoiceID, InvoiceStatusPaid); err != nil {
			return err
		}

		inv, err := s.store.GetInvoice(ctx, tx, payment.InvoiceID)
		if err != nil {
			return err
		}
		if inv.SubscriptionID != nil {
			sub, err := s.store.GetSubscription(ctx, tx, *inv.SubscriptionID)
			if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
				return err
			}
			if err == nil {
				switch sub.Status {
				case SubscriptionStatusPastDue, SubscriptionStatusGracePeriod:
					if _, err := s.store.Transition(ctx, tx, sub.ID, sub.Status, SubscriptionStatusActive); err != nil {
						return err
					}
					if err := s.store.ResetDunning(ctx, tx, sub.ID); err != nil {
						return err
					}
				}
			}
		}

		return s.store.InsertNotification(ctx, tx, tenantID, "payment_received",
			"Your payment was received. Thank you.")
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, tenantID, audit.EventTypePaymentRetried, audit.SeverityInfo,
		"payment retried and confirmed", map[string]any{
			"payment_id":   payment.ID.String(),
			"invoice_id":   payment.InvoiceID.String(),
			"external_ref": externalRef,
		})

	return s.store.GetPayment(ctx, s.store.DB(), paymentID, tenantID)
}
