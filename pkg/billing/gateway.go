package billing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// PaymentGateway creates payment attempts with the external processor.
// The processor reports outcomes asynchronously through the inbound event
// surface, so a successful call here only means the attempt was accepted.
type PaymentGateway interface {
	// CreatePaymentAttempt submits a charge and returns the processor's
	// external reference. correlationID carries the invoice ID so the
	// asynchronous outcome event can be matched back.
	CreatePaymentAttempt(ctx context.Context, amountCents int64, currency, correlationID string) (string, error)
}

// MockGateway is an in-process gateway for development and tests.
// A real deployment wires the processor SDK behind the same interface.
type MockGateway struct {
	mu       sync.Mutex
	attempts []MockAttempt

	// FailWith makes every call return this error when set
	FailWith error
}

// MockAttempt records one call made against the mock gateway
type MockAttempt struct {
	AmountCents   int64
	Currency      string
	CorrelationID string
	ExternalRef   string
}

// NewMockGateway creates a new MockGateway
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// CreatePaymentAttempt returns a generated external reference
func (g *MockGateway) CreatePaymentAttempt(ctx context.Context, amountCents int64, currency, correlationID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailWith != nil {
		return "", g.FailWith
	}

	ref := fmt.Sprintf("pi_mock_%s", uuid.New().String()[:8])
	g.attempts = append(g.attempts, MockAttempt{
		AmountCents:   amountCents,
		Currency:      currency,
		CorrelationID: correlationID,
		ExternalRef:   ref,
	})
	return ref, nil
}

// Attempts returns a copy of the recorded attempts
func (g *MockGateway) Attempts() []MockAttempt {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]MockAttempt, len(g.attempts))
	copy(out, g.attempts)
	return out
}
