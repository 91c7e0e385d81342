package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billforge/billforge/pkg/audit"
	"github.com/billforge/billforge/pkg/billing"
	"github.com/billforge/billforge/pkg/config"
	"github.com/billforge/billforge/pkg/jobs"
	"github.com/billforge/billforge/pkg/notifications"
	"github.com/billforge/billforge/pkg/observability"
)

const (
	testWebhookSecret = "webhook-test-secret"
	testAdminToken    = "admin-test-token"
)

type apiTestEnv struct {
	server *Server
	store  *billing.Store
	ledger *jobs.Ledger
	runner *jobs.Runner
	db     *sql.DB
}

func newAPITestEnv(t *testing.T) *apiTestEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	store := billing.NewStore(db)
	ledger := jobs.NewLedger(db)
	auditor := audit.NewLogger(db)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, ledger.EnsureSchema(ctx))
	require.NoError(t, auditor.EnsureSchema(ctx))

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	alerter := audit.NewLogAlerter()
	gateway := billing.NewMockGateway()

	runner := jobs.NewRunner(ctx, 1, 4, time.Minute, logger)
	t.Cleanup(func() { runner.Shutdown(2 * time.Second) })

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:       "8080",
			AdminToken: testAdminToken,
		},
		Billing: config.BillingConfig{
			WebhookSecret:       testWebhookSecret,
			DunningCooldown:     72 * time.Hour,
			DunningMaxReminders: 3,
			GraceDays:           7,
			JobQueueSize:        4,
		},
	}

	server := NewServer(Deps{
		Config:     cfg,
		Store:      store,
		Service:    billing.NewService(store, gateway, auditor, logger),
		Cycle:      billing.NewCycleProcessor(store, ledger, gateway, auditor, alerter, metrics, logger),
		Dunning:    billing.NewDunningProcessor(store, ledger, notifications.NewRecordingNotifier(), auditor, alerter, metrics, logger, billing.DefaultDunningPolicy()),
		Reconciler: billing.NewReconciler(store, auditor, metrics, logger),
		Ledger:     ledger,
		Runner:     runner,
		Auditor:    auditor,
		Metrics:    metrics,
		Registry:   prometheus.NewRegistry(),
		Logger:     logger,
	})

	return &apiTestEnv{server: server, store: store, ledger: ledger, runner: runner, db: db}
}

func (e *apiTestEnv) seedTenant(t *testing.T) *billing.Tenant {
	t.Helper()
	tenant := &billing.Tenant{Name: "Acme Corp", BillingEmail: "billing@acme.test"}
	require.NoError(t, e.store.CreateTenant(context.Background(), tenant))
	return tenant
}

func (e *apiTestEnv) seedPlan(t *testing.T) *billing.Plan {
	t.Helper()
	plan := &billing.Plan{
		Code:           "pro-" + uuid.New().String()[:8],
		Name:           "Pro",
		BasePriceCents: 5000,
		Currency:       "EUR",
		PeriodDays:     30,
	}
	require.NoError(t, e.store.CreatePlan(context.Background(), plan))
	return plan
}

func (e *apiTestEnv) seedOpenInvoice(t *testing.T, tenantID uuid.UUID) *billing.Invoice {
	t.Helper()
	now := time.Now().UTC()
	inv := &billing.Invoice{
		TenantID:   tenantID,
		Status:     billing.InvoiceStatusOpen,
		IssueDate:  now,
		DueDate:    now.AddDate(0, 0, 14),
		TotalCents: 5000,
		Currency:   "EUR",
	}
	require.NoError(t, e.store.CreateInvoice(context.Background(), e.db, inv))
	return inv
}

func (e *apiTestEnv) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

func tenantHeader(id uuid.UUID) map[string]string {
	return map[string]string{"X-Tenant-ID": id.String()}
}

func adminHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testAdminToken}
}

func TestHealthEndpoint(t *testing.T) {
	env := newAPITestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTenantRoutesRequireTenantHeader(t *testing.T) {
	env := newAPITestEnv(t)

	rec := env.do(t, http.MethodGet, "/invoices", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/invoices", nil, map[string]string{"X-Tenant-ID": "not-a-uuid"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubscribeAndCancelFlow(t *testing.T) {
	env := newAPITestEnv(t)
	tenant := env.seedTenant(t)
	plan := env.seedPlan(t)

	rec := env.do(t, http.MethodPost, "/subscriptions",
		subscribeRequest{PlanID: plan.ID}, tenantHeader(tenant.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sub billing.Subscription
	decodeBody(t, rec, &sub)
	assert.Equal(t, billing.SubscriptionStatusActive, sub.Status)

	rec = env.do(t, http.MethodGet, "/subscriptions/current", nil, tenantHeader(tenant.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/subscriptions",
		cancelRequest{AtPeriodEnd: false}, tenantHeader(tenant.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	var canceled billing.Subscription
	decodeBody(t, rec, &canceled)
	assert.Equal(t, billing.SubscriptionStatusCanceled, canceled.Status)
}

func TestSubscribeUnknownPlanReturnsNotFound(t *testing.T) {
	env := newAPITestEnv(t)
	tenant := env.seedTenant(t)

	rec := env.do(t, http.MethodPost, "/subscriptions",
		subscribeRequest{PlanID: uuid.New()}, tenantHeader(tenant.ID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetInvoiceScopedToTenant(t *testing.T) {
	env := newAPITestEnv(t)
	owner := env.seedTenant(t)
	other := env.seedTenant(t)
	inv := env.seedOpenInvoice(t, owner.ID)

	rec := env.do(t, http.MethodGet, "/invoices/"+inv.ID.String(), nil, tenantHeader(owner.ID))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Another tenant gets not-found, not forbidden
	rec = env.do(t, http.MethodGet, "/invoices/"+inv.ID.String(), nil, tenantHeader(other.ID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
