package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// subscribeRequest is the body of POST /subscriptions
type subscribeRequest struct {
	PlanID uuid.UUID `json:"plan_id"`
}

// cancelRequest is the body of DELETE /subscriptions
type cancelRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

// outcomeEventPayload is the body of POST /webhooks/payment. Type is
// the processor's event name, payment.succeeded or payment.failed.
type outcomeEventPayload struct {
	Type         string    `json:"type"`
	ExternalRef  string    `json:"external_ref"`
	InvoiceID    uuid.UUID `json:"invoice_id"`
	Timestamp    string    `json:"timestamp,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// jobAcceptedResponse acknowledges an accepted batch job trigger
type jobAcceptedResponse struct {
	RunID  uuid.UUID `json:"run_id"`
	Status string    `json:"status"`
}

// listResponse wraps a paginated collection
type listResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
