package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billforge/billforge/pkg/notifications"
)

func (e *testEnv) dunningProcessor(notifier notifications.Notifier, policy DunningPolicy) *DunningProcessor {
	return NewDunningProcessor(e.store, e.ledger, notifier, e.auditor, e.alerter, e.metrics, e.logger, policy)
}

func TestDunningSendsReminderAndStamps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusPastDue, time.Now().UTC())
	env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusOpen, 5000)

	notifier := notifications.NewRecordingNotifier()
	proc := env.dunningProcessor(notifier, DefaultDunningPolicy())

	summary, err := proc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "billing@acme.test", sent[0].Contact)
	assert.Equal(t, 1, sent[0].Attempt)

	after, err := env.store.GetSubscription(ctx, env.db, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.DunningAttempts)
	require.NotNil(t, after.LastDunningSentAt)
}

func TestDunningCooldownSuppressesRepeatReminder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusPastDue, time.Now().UTC())
	env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusOpen, 5000)

	notifier := notifications.NewRecordingNotifier()
	proc := env.dunningProcessor(notifier, DefaultDunningPolicy())

	_, err := proc.Run(ctx)
	require.NoError(t, err)
	summary, err := proc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Total)
	assert.Len(t, notifier.Sent(), 1)
}

func TestDunningRemindsAgainAfterCooldown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusPastDue, time.Now().UTC())
	env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusOpen, 5000)

	policy := DefaultDunningPolicy()
	// Reminder sent just past the cooldown boundary
	stale := time.Now().UTC().Add(-policy.Cooldown - time.Minute)
	require.NoError(t, env.store.StampDunning(ctx, sub.ID, stale, 1))

	notifier := notifications.NewRecordingNotifier()
	summary, err := env.dunningProcessor(notifier, policy).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, 2, sent[0].Attempt)
}

func TestDunningEscalatesExhaustedSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusPastDue, time.Now().UTC())
	env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusOpen, 5000)

	policy := DefaultDunningPolicy()
	stale := time.Now().UTC().Add(-policy.Cooldown - time.Minute)
	require.NoError(t, env.store.StampDunning(ctx, sub.ID, stale, policy.MaxReminders))

	notifier := notifications.NewRecordingNotifier()
	summary, err := env.dunningProcessor(notifier, policy).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Empty(t, notifier.Sent())
	assert.Equal(t, SubscriptionStatusGracePeriod, env.subscriptionStatus(t, sub.ID))

	// Escalation stamps the start of the grace window
	after, err := env.store.GetSubscription(ctx, env.db, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, after.GraceEnteredAt)
	assert.WithinDuration(t, time.Now().UTC(), *after.GraceEnteredAt, 5*time.Second)
}

func TestDunningCancelsExpiredGrace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusGracePeriod, time.Now().UTC())

	policy := DefaultDunningPolicy()
	// Backdate the grace entry past the window
	entered := time.Now().UTC().AddDate(0, 0, -policy.GraceDays-1)
	_, err := env.db.Exec(`UPDATE subscriptions SET grace_entered_at = $1 WHERE id = $2`, entered, sub.ID)
	require.NoError(t, err)

	notifier := notifications.NewRecordingNotifier()
	summary, err := env.dunningProcessor(notifier, policy).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, SubscriptionStatusCanceledAuto, env.subscriptionStatus(t, sub.ID))
	assert.Equal(t, 1, env.countRows(t, "notifications"))
}

func TestDunningCancelsExpiredGraceBilledInBetween(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	// Period ended, so the billing cycle will invoice this subscription
	// and rewrite its row before the dunning pass runs.
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusGracePeriod, time.Now().UTC().Add(-time.Hour))

	policy := DefaultDunningPolicy()
	entered := time.Now().UTC().AddDate(0, 0, -policy.GraceDays-1)
	_, err := env.db.Exec(`UPDATE subscriptions SET grace_entered_at = $1 WHERE id = $2`, entered, sub.ID)
	require.NoError(t, err)

	cycleSummary, err := env.cycleProcessor().Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, cycleSummary.Processed)

	// Being billed must not restart the grace clock
	notifier := notifications.NewRecordingNotifier()
	summary, err := env.dunningProcessor(notifier, policy).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, SubscriptionStatusCanceledAuto, env.subscriptionStatus(t, sub.ID))
}

func TestDunningFreshGraceIsLeftAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusGracePeriod, time.Now().UTC())

	notifier := notifications.NewRecordingNotifier()
	summary, err := env.dunningProcessor(notifier, DefaultDunningPolicy()).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, SubscriptionStatusGracePeriod, env.subscriptionStatus(t, sub.ID))
}

func TestDunningFailedSendIsNotStamped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusPastDue, time.Now().UTC())
	env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusOpen, 5000)

	notifier := notifications.NewRecordingNotifier()
	notifier.FailWith = errors.New("smtp unavailable")

	summary, err := env.dunningProcessor(notifier, DefaultDunningPolicy()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	// Unstamped, so the next run retries
	after, err := env.store.GetSubscription(ctx, env.db, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.DunningAttempts)
	assert.Nil(t, after.LastDunningSentAt)
}

func TestDunningIgnoresSubscriptionsWithoutOpenInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusPastDue, time.Now().UTC())
	env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusPaid, 5000)

	notifier := notifications.NewRecordingNotifier()
	summary, err := env.dunningProcessor(notifier, DefaultDunningPolicy()).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, notifier.Sent())
}

func TestListDunningCandidatesPicksLatestOpenInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tenant := env.createTenant(t)
	plan := env.createPlan(t, 5000)
	sub := env.createSubscription(t, tenant.ID, plan.ID, SubscriptionStatusPastDue, time.Now().UTC())

	older := env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusOpen, 5000)
	_, err := env.db.Exec(`UPDATE invoices SET created_at = $1 WHERE id = $2`,
		time.Now().UTC().Add(-48*time.Hour), older.ID)
	require.NoError(t, err)
	newer := env.createInvoice(t, tenant.ID, &sub.ID, InvoiceStatusOpen, 7000)

	candidates, err := env.store.ListDunningCandidates(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, newer.ID, candidates[0].InvoiceID)
	assert.Equal(t, int64(7000), candidates[0].TotalCents)
	assert.NotEqual(t, uuid.Nil, candidates[0].TenantID)
}
