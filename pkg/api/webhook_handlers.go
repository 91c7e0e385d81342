package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/billforge/billforge/pkg/billing"
)

// maxWebhookBody bounds the webhook payload size
const maxWebhookBody = 64 * 1024

// handlePaymentWebhook receives payment outcome events from the payment
// processor. The response contract follows processor retry semantics:
// 200 tells the processor to stop retrying, including for events that
// reference invoices this system does not know.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	signature := r.Header.Get("X-BillForge-Signature")
	if !VerifySignature(body, signature, s.cfg.Billing.WebhookSecret) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload outcomeEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if payload.ExternalRef == "" {
		respondError(w, http.StatusBadRequest, "external_ref is required")
		return
	}
	var outcome billing.Outcome
	switch payload.Type {
	case "payment.succeeded":
		outcome = billing.OutcomeSucceeded
	case "payment.failed":
		outcome = billing.OutcomeFailed
	default:
		respondError(w, http.StatusBadRequest, "unknown event type")
		return
	}

	ev := billing.OutcomeEvent{
		ExternalRef:  payload.ExternalRef,
		InvoiceID:    payload.InvoiceID,
		Outcome:      outcome,
		Timestamp:    time.Now().UTC(),
		ErrorCode:    payload.ErrorCode,
		ErrorMessage: payload.ErrorMessage,
	}
	if payload.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			ev.Timestamp = ts
		}
	}

	if err := s.reconciler.Apply(r.Context(), ev); err != nil {
		s.logger.WithError(err).WithField("external_ref", ev.ExternalRef).Error("failed to reconcile payment event")
		respondError(w, http.StatusInternalServerError, "failed to process event")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
