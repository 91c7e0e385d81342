package audit

import (
	"time"

	"github.com/google/uuid"
)

// Severity represents how serious an audit event is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// EventType represents the category of audit event
type EventType string

const (
	// Billing cycle events
	EventTypeBillingRunStarted    EventType = "billing.run_started"
	EventTypeBillingRunCompleted  EventType = "billing.run_completed"
	EventTypeBillingRunFailed     EventType = "billing.run_failed"
	EventTypeBillingInvoiceIssued EventType = "billing.invoice_issued"
	EventTypeBillingUnitFailed    EventType = "billing.unit_failed"
	EventTypeBillingPlanMissing   EventType = "billing.plan_missing"
	EventTypeBillingGatewayError  EventType = "billing.gateway_error"

	// Payment reconciliation events
	EventTypePaymentSucceeded EventType = "payment.succeeded"
	EventTypePaymentFailed    EventType = "payment.failed"
	EventTypePaymentRetried   EventType = "payment.retried"

	// Dunning events
	EventTypeDunningReminderSent EventType = "dunning.reminder_sent"
	EventTypeDunningSendFailed   EventType = "dunning.send_failed"
	EventTypeDunningEscalated    EventType = "dunning.escalated"
	EventTypeDunningAutoCanceled EventType = "dunning.auto_canceled"
	EventTypeDunningRunCompleted EventType = "dunning.run_completed"
	EventTypeDunningRunFailed    EventType = "dunning.run_failed"

	// Subscription lifecycle events
	EventTypeSubscriptionCreated  EventType = "subscription.created"
	EventTypeSubscriptionCanceled EventType = "subscription.canceled"
)

// Entry is a single append-only audit record. Immutable once written.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  *uuid.UUID     `json:"tenant_id,omitempty"`
	EventType EventType      `json:"event_type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
