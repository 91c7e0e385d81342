package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerAppliesSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusActive, time.Now().UTC())
	inv := env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusOpen, 5000)
	payment := env.createPayment(t, tenant.ID, inv.ID, PaymentStatusPending, 5000)

	ev := OutcomeEvent{
		ExternalRef: "pi_123",
		InvoiceID:   inv.ID,
		Outcome:     OutcomeSucceeded,
		Timestamp:   time.Now().UTC(),
	}
	require.NoError(t, env.reconciler().Apply(ctx, ev))

	after, err := env.store.GetPayment(ctx, env.db, payment.ID, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusSucceeded, after.Status)
	assert.Equal(t, "pi_123", after.ExternalRef)

	invAfter, err := env.store.GetInvoice(ctx, env.db, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPaid, invAfter.Status)

	assert.Equal(t, SubscriptionStatusActive, env.subscriptionStatus(t, sub.ID))
	assert.Equal(t, 1, env.countRows(t, "processed_events"))
}

func TestReconcilerSuccessRecoversPastDue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusPastDue, time.Now().UTC())
	sentAt := time.Now().UTC().Add(-24 * time.Hour)
	require.NoError(t, env.store.StampDunning(ctx, sub.ID, sentAt, 2))
	inv := env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusOpen, 5000)
	env.createPayment(t, tenant.ID, inv.ID, PaymentStatusPending, 5000)

	ev := OutcomeEvent{ExternalRef: "pi_recover", InvoiceID: inv.ID, Outcome: OutcomeSucceeded, Timestamp: time.Now().UTC()}
	require.NoError(t, env.reconciler().Apply(ctx, ev))

	after, err := env.store.GetSubscription(ctx, env.db, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, SubscriptionStatusActive, after.Status)
	assert.Equal(t, 0, after.DunningAttempts)
	assert.Nil(t, after.LastDunningSentAt)
}

func TestReconcilerFailureDemotesActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusActive, time.Now().UTC())
	inv := env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusOpen, 5000)
	payment := env.createPayment(t, tenant.ID, inv.ID, PaymentStatusPending, 5000)

	ev := OutcomeEvent{
		ExternalRef:  "pi_fail",
		InvoiceID:    inv.ID,
		Outcome:      OutcomeFailed,
		Timestamp:    time.Now().UTC(),
		ErrorCode:    "card_declined",
		ErrorMessage: "Your card was declined.",
	}
	require.NoError(t, env.reconciler().Apply(ctx, ev))

	after, err := env.store.GetPayment(ctx, env.db, payment.ID, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusFailed, after.Status)
	assert.Equal(t, "card_declined", after.ErrorCode)

	invAfter, err := env.store.GetInvoice(ctx, env.db, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusOpen, invAfter.Status)

	assert.Equal(t, SubscriptionStatusPastDue, env.subscriptionStatus(t, sub.ID))
	assert.Equal(t, 1, env.countRows(t, "notifications"))
}

func TestReconcilerDuplicateEventIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusActive, time.Now().UTC())
	inv := env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusOpen, 5000)
	env.createPayment(t, tenant.ID, inv.ID, PaymentStatusPending, 5000)

	rec := env.reconciler()
	ev := OutcomeEvent{ExternalRef: "pi_dup", InvoiceID: inv.ID, Outcome: OutcomeFailed, Timestamp: time.Now().UTC()}
	require.NoError(t, rec.Apply(ctx, ev))
	require.NoError(t, rec.Apply(ctx, ev))

	assert.Equal(t, 1, env.countRows(t, "processed_events"))
	assert.Equal(t, 1, env.countRows(t, "notifications"))
	assert.Equal(t, SubscriptionStatusPastDue, env.subscriptionStatus(t, sub.ID))
}

func TestReconcilerUnknownInvoiceIsAccepted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := OutcomeEvent{ExternalRef: "pi_ghost", InvoiceID: uuid.New(), Outcome: OutcomeSucceeded, Timestamp: time.Now().UTC()}
	require.NoError(t, env.reconciler().Apply(ctx, ev))

	// Nothing recorded: a later event for a real invoice with the same
	// ref must not be treated as a duplicate.
	assert.Equal(t, 0, env.countRows(t, "processed_events"))
}

func TestReconcilerLateFailureCannotUndoSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusActive, time.Now().UTC())
	inv := env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusOpen, 5000)
	payment := env.createPayment(t, tenant.ID, inv.ID, PaymentStatusPending, 5000)

	rec := env.reconciler()
	require.NoError(t, rec.Apply(ctx, OutcomeEvent{
		ExternalRef: "pi_ok", InvoiceID: inv.ID, Outcome: OutcomeSucceeded, Timestamp: time.Now().UTC()}))
	require.NoError(t, rec.Apply(ctx, OutcomeEvent{
		ExternalRef: "pi_late", InvoiceID: inv.ID, Outcome: OutcomeFailed, Timestamp: time.Now().UTC()}))

	after, err := env.store.GetPayment(ctx, env.db, payment.ID, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusSucceeded, after.Status)

	invAfter, err := env.store.GetInvoice(ctx, env.db, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPaid, invAfter.Status)
	assert.Equal(t, SubscriptionStatusActive, env.subscriptionStatus(t, sub.ID))
}

func TestReconcilerRejectsUnknownOutcome(t *testing.T) {
	env := newTestEnv(t)

	err := env.reconciler().Apply(context.Background(), OutcomeEvent{
		ExternalRef: "pi_x", InvoiceID: uuid.New(), Outcome: Outcome("refunded")})
	require.Error(t, err)
}
