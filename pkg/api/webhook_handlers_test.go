package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billforge/billforge/pkg/billing"
)

func (e *apiTestEnv) postWebhook(t *testing.T, payload outcomeEventPayload, secret string) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(raw))
	req.Header.Set("X-BillForge-Signature", SignPayload(raw, secret))
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newAPITestEnv(t)

	rec := env.postWebhook(t, outcomeEventPayload{
		Type:        "payment.succeeded",
		ExternalRef: "ch_1",
		InvoiceID:   uuid.New(),
	}, "wrong-secret")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookRejectsInvalidPayload(t *testing.T) {
	env := newAPITestEnv(t)

	// Missing external_ref
	rec := env.postWebhook(t, outcomeEventPayload{
		Type:      "payment.succeeded",
		InvoiceID: uuid.New(),
	}, testWebhookSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown event type
	rec = env.postWebhook(t, outcomeEventPayload{
		Type:        "payment.refunded",
		ExternalRef: "ch_1",
		InvoiceID:   uuid.New(),
	}, testWebhookSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookAppliesSuccessOutcome(t *testing.T) {
	env := newAPITestEnv(t)
	ctx := context.Background()

	tenant := env.seedTenant(t)
	inv := env.seedOpenInvoice(t, tenant.ID)
	payment := &billing.Payment{
		TenantID:    tenant.ID,
		InvoiceID:   inv.ID,
		Status:      billing.PaymentStatusPending,
		AmountCents: 5000,
		Currency:    "EUR",
	}
	require.NoError(t, env.store.CreatePayment(ctx, env.db, payment))

	rec := env.postWebhook(t, outcomeEventPayload{
		Type:        "payment.succeeded",
		ExternalRef: "ch_settled",
		InvoiceID:   inv.ID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}, testWebhookSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	after, err := env.store.GetInvoice(ctx, env.db, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPaid, after.Status)
}

func TestWebhookAcceptsUnknownInvoice(t *testing.T) {
	env := newAPITestEnv(t)

	// Unknown invoices are acknowledged so the processor stops retrying.
	rec := env.postWebhook(t, outcomeEventPayload{
		Type:        "payment.failed",
		ExternalRef: "ch_orphan",
		InvoiceID:   uuid.New(),
		ErrorCode:   "card_declined",
	}, testWebhookSecret)
	assert.Equal(t, http.StatusOK, rec.Code)
}
