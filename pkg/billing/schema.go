package billing

import (
	"context"
	"fmt"
)

// EnsureSchema creates the billing tables if they do not exist.
// Timestamps and UUIDs are always supplied by the application so the
// same statements work against PostgreSQL and the in-memory test database.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			billing_email VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS plans (
			id UUID PRIMARY KEY,
			code VARCHAR(100) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			base_price_cents BIGINT NOT NULL,
			currency VARCHAR(3) NOT NULL,
			period_days INTEGER NOT NULL,
			usage_metric VARCHAR(100),
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			plan_id UUID NOT NULL,
			status VARCHAR(20) NOT NULL,
			start_date TIMESTAMP NOT NULL,
			current_period_start TIMESTAMP NOT NULL,
			current_period_end TIMESTAMP NOT NULL,
			cancel_at_period_end BOOLEAN NOT NULL,
			last_dunning_sent_at TIMESTAMP,
			dunning_attempts INTEGER NOT NULL,
			grace_entered_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_tenant ON subscriptions(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_status_period ON subscriptions(status, current_period_end)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			subscription_id UUID,
			number VARCHAR(64) NOT NULL,
			status VARCHAR(20) NOT NULL,
			issue_date TIMESTAMP NOT NULL,
			due_date TIMESTAMP NOT NULL,
			total_cents BIGINT NOT NULL,
			currency VARCHAR(3) NOT NULL,
			external_ref VARCHAR(255),
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_tenant_number ON invoices(tenant_id, number)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_subscription ON invoices(subscription_id)`,
		`CREATE TABLE IF NOT EXISTS invoice_lines (
			id UUID PRIMARY KEY,
			invoice_id UUID NOT NULL,
			description VARCHAR(255) NOT NULL,
			quantity BIGINT NOT NULL,
			unit_price_cents BIGINT NOT NULL,
			amount_cents BIGINT NOT NULL,
			line_type VARCHAR(20) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoice_lines_invoice ON invoice_lines(invoice_id)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			invoice_id UUID NOT NULL,
			status VARCHAR(20) NOT NULL,
			amount_cents BIGINT NOT NULL,
			currency VARCHAR(3) NOT NULL,
			external_ref VARCHAR(255),
			error_code VARCHAR(100),
			error_message TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments(invoice_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_tenant_created ON payments(tenant_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS processed_events (
			id UUID PRIMARY KEY,
			external_ref VARCHAR(255) NOT NULL,
			invoice_id UUID NOT NULL,
			outcome VARCHAR(20) NOT NULL,
			processed_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_processed_events_key
			ON processed_events(external_ref, invoice_id, outcome)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			notice_type VARCHAR(20) NOT NULL,
			message TEXT NOT NULL,
			read BOOLEAN NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_tenant ON notifications(tenant_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure billing schema: %w", err)
		}
	}

	return nil
}
