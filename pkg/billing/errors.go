package billing

import "errors"

var (
	// ErrSubscriptionNotFound is returned when a subscription does not exist
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrPlanNotFound is returned when a referenced plan does not exist
	ErrPlanNotFound = errors.New("plan not found")

	// ErrInvoiceNotFound is returned when an invoice does not exist
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrPaymentNotFound is returned when a payment does not exist
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrTenantNotFound is returned when a tenant does not exist
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrPaymentAlreadySucceeded is returned when retrying a succeeded payment
	ErrPaymentAlreadySucceeded = errors.New("payment already succeeded")

	// ErrInvalidTransition is returned for transitions the state machine does not define
	ErrInvalidTransition = errors.New("invalid subscription state transition")
)
