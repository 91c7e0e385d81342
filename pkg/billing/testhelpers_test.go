package billing

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/billforge/billforge/pkg/audit"
	"github.com/billforge/billforge/pkg/jobs"
	"github.com/billforge/billforge/pkg/observability"
)

// testEnv wires a full billing stack against an in-memory database
type testEnv struct {
	db      *sql.DB
	store   *Store
	ledger  *jobs.Ledger
	auditor *audit.Logger
	alerter audit.Alerter
	gateway *MockGateway
	metrics *observability.Metrics
	logger  *observability.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	env := &testEnv{
		db:      db,
		store:   NewStore(db),
		ledger:  jobs.NewLedger(db),
		auditor: audit.NewLogger(db),
		alerter: audit.NewLogAlerter(),
		gateway: NewMockGateway(),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		logger:  observability.NewLogger(observability.ErrorLevel, io.Discard),
	}
	require.NoError(t, env.store.EnsureSchema(ctx))
	require.NoError(t, env.ledger.EnsureSchema(ctx))
	require.NoError(t, env.auditor.EnsureSchema(ctx))
	return env
}

func (e *testEnv) cycleProcessor() *CycleProcessor {
	return NewCycleProcessor(e.store, e.ledger, e.gateway, e.auditor, e.alerter, e.metrics, e.logger)
}

func (e *testEnv) reconciler() *Reconciler {
	return NewReconciler(e.store, e.auditor, e.metrics, e.logger)
}

func (e *testEnv) createTenant(t *testing.T) *Tenant {
	t.Helper()
	tenant := &Tenant{
		Name:         "Acme Corp",
		BillingEmail: "billing@acme.test",
	}
	require.NoError(t, e.store.CreateTenant(context.Background(), tenant))
	return tenant
}

func (e *testEnv) createPlan(t *testing.T, priceCents int64) *Plan {
	t.Helper()
	plan := &Plan{
		Code:           "pro-" + uuid.New().String()[:8],
		Name:           "Pro",
		BasePriceCents: priceCents,
		Currency:       "EUR",
		PeriodDays:     30,
	}
	require.NoError(t, e.store.CreatePlan(context.Background(), plan))
	return plan
}

// createSubscription creates a subscription whose period ended in the past,
// making it due for billing.
func (e *testEnv) createSubscription(t *testing.T, tenantID, planID uuid.UUID, status SubscriptionStatus, periodEnd time.Time) *Subscription {
	t.Helper()
	sub := &Subscription{
		TenantID:           tenantID,
		PlanID:             planID,
		Status:             status,
		StartDate:          periodEnd.AddDate(0, 0, -30),
		CurrentPeriodStart: periodEnd.AddDate(0, 0, -30),
		CurrentPeriodEnd:   periodEnd,
	}
	if status == SubscriptionStatusGracePeriod {
		entered := time.Now().UTC()
		sub.GraceEnteredAt = &entered
	}
	require.NoError(t, e.store.CreateSubscription(context.Background(), e.db, sub))
	return sub
}

func (e *testEnv) createInvoice(t *testing.T, tenantID uuid.UUID, subID *uuid.UUID, status InvoiceStatus, totalCents int64) *Invoice {
	t.Helper()
	now := time.Now().UTC()
	inv := &Invoice{
		TenantID:       tenantID,
		SubscriptionID: subID,
		Status:         status,
		IssueDate:      now,
		DueDate:        now.AddDate(0, 0, 14),
		TotalCents:     totalCents,
		Currency:       "EUR",
	}
	require.NoError(t, e.store.CreateInvoice(context.Background(), e.db, inv))
	return inv
}

func (e *testEnv) createPayment(t *testing.T, tenantID, invoiceID uuid.UUID, status PaymentStatus, amountCents int64) *Payment {
	t.Helper()
	p := &Payment{
		TenantID:    tenantID,
		InvoiceID:   invoiceID,
		Status:      status,
		AmountCents: amountCents,
		Currency:    "EUR",
	}
	require.NoError(t, e.store.CreatePayment(context.Background(), e.db, p))
	return p
}

// recordingAlerter captures operator alerts for assertions
type recordingAlerter struct {
	errors    []string
	criticals []string
}

func (a *recordingAlerter) NotifyError(ctx context.Context, subject, detail string) {
	a.errors = append(a.errors, subject+": "+detail)
}

func (a *recordingAlerter) NotifyCritical(ctx context.Context, subject, detail string) {
	a.criticals = append(a.criticals, subject+": "+detail)
}

func (e *testEnv) countRows(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func (e *testEnv) subscriptionStatus(t *testing.T, id uuid.UUID) SubscriptionStatus {
	t.Helper()
	sub, err := e.store.GetSubscription(context.Background(), e.db, id)
	require.NoError(t, err)
	return sub.Status
}
