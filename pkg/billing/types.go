package billing

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus represents the lifecycle status of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant represents a paying customer account
type Tenant struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	BillingEmail string       `json:"billing_email"`
	Status       TenantStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Plan represents an immutable catalog entry referenced by subscriptions
type Plan struct {
	ID             uuid.UUID `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	BasePriceCents int64     `json:"base_price_cents"`
	Currency       string    `json:"currency"`
	PeriodDays     int       `json:"period_days"`
	UsageMetric    string    `json:"usage_metric,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive       SubscriptionStatus = "active"
	SubscriptionStatusPastDue      SubscriptionStatus = "past_due"
	SubscriptionStatusGracePeriod  SubscriptionStatus = "grace_period"
	SubscriptionStatusCanceled     SubscriptionStatus = "canceled"
	SubscriptionStatusCanceledAuto SubscriptionStatus = "canceled_auto"
)

// IsLive reports whether the status is non-terminal.
// At most one subscription per tenant may be live at any time.
func (s SubscriptionStatus) IsLive() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusGracePeriod:
		return true
	}
	return false
}

// LiveStatuses lists the non-terminal subscription statuses
func LiveStatuses() []SubscriptionStatus {
	return []SubscriptionStatus{
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusGracePeriod,
	}
}

// Subscription represents a recurring billing subscription
type Subscription struct {
	ID                 uuid.UUID          `json:"id"`
	TenantID           uuid.UUID          `json:"tenant_id"`
	PlanID             uuid.UUID          `json:"plan_id"`
	Status             SubscriptionStatus `json:"status"`
	StartDate          time.Time          `json:"start_date"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	LastDunningSentAt  *time.Time         `json:"last_dunning_sent_at,omitempty"`
	DunningAttempts    int                `json:"dunning_attempts"`
	GraceEnteredAt     *time.Time         `json:"grace_entered_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusVoid          InvoiceStatus = "void"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
)

// Invoice represents a billing invoice for one cycle of a subscription.
// SubscriptionID is nil for manually issued invoices.
type Invoice struct {
	ID             uuid.UUID     `json:"id"`
	TenantID       uuid.UUID     `json:"tenant_id"`
	SubscriptionID *uuid.UUID    `json:"subscription_id,omitempty"`
	Number         string        `json:"number"`
	Status         InvoiceStatus `json:"status"`
	IssueDate      time.Time     `json:"issue_date"`
	DueDate        time.Time     `json:"due_date"`
	TotalCents     int64         `json:"total_cents"`
	Currency       string        `json:"currency"`
	ExternalRef    string        `json:"external_ref,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// LineType represents the type of an invoice line
type LineType string

const (
	LineTypeRecurring  LineType = "recurring"
	LineTypeUsage      LineType = "usage"
	LineTypeAdjustment LineType = "adjustment"
)

// InvoiceLine represents one line item on an invoice. Immutable once created.
type InvoiceLine struct {
	ID             uuid.UUID `json:"id"`
	InvoiceID      uuid.UUID `json:"invoice_id"`
	Description    string    `json:"description"`
	Quantity       int64     `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	AmountCents    int64     `json:"amount_cents"`
	Type           LineType  `json:"type"`
}

// PaymentStatus represents the status of a payment attempt
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment represents one payment attempt against an invoice
type Payment struct {
	ID           uuid.UUID     `json:"id"`
	TenantID     uuid.UUID     `json:"tenant_id"`
	InvoiceID    uuid.UUID     `json:"invoice_id"`
	Status       PaymentStatus `json:"status"`
	AmountCents  int64         `json:"amount_cents"`
	Currency     string        `json:"currency"`
	ExternalRef  string        `json:"external_ref,omitempty"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Outcome represents the result reported by the payment processor
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// OutcomeEvent is an externally reported payment result to reconcile.
// ErrorCode and ErrorMessage are set only on failed outcomes.
type OutcomeEvent struct {
	ExternalRef  string    `json:"external_ref"`
	InvoiceID    uuid.UUID `json:"invoice_id"`
	Outcome      Outcome   `json:"outcome"`
	Timestamp    time.Time `json:"timestamp"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// JobSummary reports the result of one batch processor run
type JobSummary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Stats aggregates tenant-facing business numbers for the admin surface
type Stats struct {
	TotalTenants        int    `json:"total_tenants"`
	ActiveSubscriptions int    `json:"active_subscriptions"`
	MRRCents            int64  `json:"mrr_cents"`
	FailedPayments30d   int    `json:"failed_payments_30d"`
	Currency            string `json:"currency"`
}
