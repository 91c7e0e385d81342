package billing

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Querier abstracts *sql.DB and *sql.Tx so store methods can run
// standalone or inside a caller-owned transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides relational persistence for the billing domain
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store on top of an open database handle
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that manage their own transactions
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing on nil error and
// rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateTenant inserts a new tenant
func (s *Store) CreateTenant(ctx context.Context, t *Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = TenantStatusActive
	}

	query := `INSERT INTO tenants (id, name, billing_email, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, query, t.ID, t.Name, t.BillingEmail, t.Status, t.CreatedAt); err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetTenant retrieves a tenant by ID
func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	query := `SELECT id, name, billing_email, status, created_at FROM tenants WHERE id = $1`
	t := &Tenant{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, &t.BillingEmail, &t.Status, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// CreatePlan inserts a new plan
func (s *Store) CreatePlan(ctx context.Context, p *Plan) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.PeriodDays == 0 {
		p.PeriodDays = 30
	}

	query := `INSERT INTO plans (id, code, name, base_price_cents, currency, period_days, usage_metric, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Code, p.Name, p.BasePriceCents, p.Currency, p.PeriodDays, nullString(p.UsageMetric), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by ID
func (s *Store) GetPlan(ctx context.Context, q Querier, id uuid.UUID) (*Plan, error) {
	query := `SELECT id, code, name, base_price_cents, currency, period_days, usage_metric, created_at
		FROM plans WHERE id = $1`
	p := &Plan{}
	var metric sql.NullString
	err := q.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Code, &p.Name, &p.BasePriceCents, &p.Currency, &p.PeriodDays, &metric, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	p.UsageMetric = metric.String
	return p, nil
}

// CreateSubscription inserts a new subscription
func (s *Store) CreateSubscription(ctx context.Context, q Querier, sub *Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
		sub.UpdatedAt = now
	}
	if sub.Status == "" {
		sub.Status = SubscriptionStatusActive
	}

	var lastDunning, graceEntered sql.NullTime
	if sub.LastDunningSentAt != nil {
		lastDunning = sql.NullTime{Time: *sub.LastDunningSentAt, Valid: true}
	}
	if sub.GraceEnteredAt != nil {
		graceEntered = sql.NullTime{Time: *sub.GraceEnteredAt, Valid: true}
	}

	query := `INSERT INTO subscriptions
		(id, tenant_id, plan_id, status, start_date, current_period_start, current_period_end,
		cancel_at_period_end, last_dunning_sent_at, dunning_attempts, grace_entered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := q.ExecContext(ctx, query,
		sub.ID, sub.TenantID, sub.PlanID, sub.Status, sub.StartDate,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
		lastDunning, sub.DunningAttempts, graceEntered, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// SetCancelAtPeriodEnd flags a subscription for closure when its current
// period is next billed
func (s *Store) SetCancelAtPeriodEnd(ctx context.Context, q Querier, subID uuid.UUID, flag bool) error {
	query := `UPDATE subscriptions SET cancel_at_period_end = $1, updated_at = $2 WHERE id = $3`
	if _, err := q.ExecContext(ctx, query, flag, time.Now().UTC(), subID); err != nil {
		return fmt.Errorf("failed to set cancel flag: %w", err)
	}
	return nil
}

// GetSubscription retrieves a subscription by ID
func (s *Store) GetSubscription(ctx context.Context, q Querier, id uuid.UUID) (*Subscription, error) {
	query := subscriptionColumns + ` WHERE id = $1`
	return scanSubscription(q.QueryRowContext(ctx, query, id))
}

// GetCurrentSubscription retrieves the most recent subscription of a tenant
func (s *Store) GetCurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	query := subscriptionColumns + ` WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT 1`
	return scanSubscription(s.db.QueryRowContext(ctx, query, tenantID))
}

// ListDueSubscriptions returns live subscriptions whose period has ended on or
// before asOf. The period columns are the single source of truth for dueness;
// there is no separate scheduler queue.
func (s *Store) ListDueSubscriptions(ctx context.Context, asOf time.Time) ([]*Subscription, error) {
	query := subscriptionColumns + `
		WHERE status IN ('active', 'past_due', 'grace_period') AND current_period_end <= $1
		ORDER BY current_period_end`
	rows, err := s.db.QueryContext(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// AdvancePeriod moves a subscription's billing period forward
func (s *Store) AdvancePeriod(ctx context.Context, q Querier, subID uuid.UUID, start, end time.Time) error {
	query := `UPDATE subscriptions SET current_period_start = $1, current_period_end = $2, updated_at = $3
		WHERE id = $4`
	if _, err := q.ExecContext(ctx, query, start, end, time.Now().UTC(), subID); err != nil {
		return fmt.Errorf("failed to advance billing period: %w", err)
	}
	return nil
}

// StampDunning records a confirmed reminder send
func (s *Store) StampDunning(ctx context.Context, subID uuid.UUID, sentAt time.Time, attempts int) error {
	query := `UPDATE subscriptions SET last_dunning_sent_at = $1, dunning_attempts = $2, updated_at = $3
		WHERE id = $4`
	if _, err := s.db.ExecContext(ctx, query, sentAt, attempts, time.Now().UTC(), subID); err != nil {
		return fmt.Errorf("failed to stamp dunning send: %w", err)
	}
	return nil
}

// ResetDunning clears the dunning counters after a recovered payment
func (s *Store) ResetDunning(ctx context.Context, q Querier, subID uuid.UUID) error {
	query := `UPDATE subscriptions SET dunning_attempts = 0, last_dunning_sent_at = NULL, updated_at = $1
		WHERE id = $2`
	if _, err := q.ExecContext(ctx, query, time.Now().UTC(), subID); err != nil {
		return fmt.Errorf("failed to reset dunning counters: %w", err)
	}
	return nil
}

// CreateInvoice inserts a new invoice
func (s *Store) CreateInvoice(ctx context.Context, q Querier, inv *Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	now := time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
		inv.UpdatedAt = now
	}
	if inv.Number == "" {
		inv.Number = NewInvoiceNumber(now)
	}

	var subID uuid.NullUUID
	if inv.SubscriptionID != nil {
		subID = uuid.NullUUID{UUID: *inv.SubscriptionID, Valid: true}
	}

	query := `INSERT INTO invoices
		(id, tenant_id, subscription_id, number, status, issue_date, due_date, total_cents, currency, external_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := q.ExecContext(ctx, query,
		inv.ID, inv.TenantID, subID, inv.Number, inv.Status, inv.IssueDate, inv.DueDate,
		inv.TotalCents, inv.Currency, nullString(inv.ExternalRef), inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// CreateInvoiceLine inserts a line item. Lines are immutable once created.
func (s *Store) CreateInvoiceLine(ctx context.Context, q Querier, line *InvoiceLine) error {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	query := `INSERT INTO invoice_lines (id, invoice_id, description, quantity, unit_price_cents, amount_cents, line_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := q.ExecContext(ctx, query,
		line.ID, line.InvoiceID, line.Description, line.Quantity, line.UnitPriceCents, line.AmountCents, line.Type)
	if err != nil {
		return fmt.Errorf("failed to create invoice line: %w", err)
	}
	return nil
}

// SumInvoiceLines returns the sum of line amounts for an invoice
func (s *Store) SumInvoiceLines(ctx context.Context, q Querier, invoiceID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(amount_cents), 0) FROM invoice_lines WHERE invoice_id = $1`
	var total int64
	if err := q.QueryRowContext(ctx, query, invoiceID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum invoice lines: %w", err)
	}
	return total, nil
}

// SetInvoiceTotal sets the invoice total from its line sum
func (s *Store) SetInvoiceTotal(ctx context.Context, q Querier, invoiceID uuid.UUID, totalCents int64) error {
	query := `UPDATE invoices SET total_cents = $1, updated_at = $2 WHERE id = $3`
	if _, err := q.ExecContext(ctx, query, totalCents, time.Now().UTC(), invoiceID); err != nil {
		return fmt.Errorf("failed to set invoice total: %w", err)
	}
	return nil
}

// SetInvoiceStatus updates the status of an invoice
func (s *Store) SetInvoiceStatus(ctx context.Context, q Querier, invoiceID uuid.UUID, status InvoiceStatus) error {
	query := `UPDATE invoices SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := q.ExecContext(ctx, query, status, time.Now().UTC(), invoiceID); err != nil {
		return fmt.Errorf("failed to set invoice status: %w", err)
	}
	return nil
}

// GetInvoice retrieves an invoice by ID
func (s *Store) GetInvoice(ctx context.Context, q Querier, id uuid.UUID) (*Invoice, error) {
	query := invoiceColumns + ` WHERE id = $1`
	return scanInvoice(q.QueryRowContext(ctx, query, id))
}

// ListInvoices lists invoices for a tenant, newest first
func (s *Store) ListInvoices(ctx context.Context, tenantID uuid.UUID, limit int) ([]*Invoice, error) {
	query := invoiceColumns + ` WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv, err := scanInvoiceRows(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// CreatePayment inserts a payment attempt
func (s *Store) CreatePayment(ctx context.Context, q Querier, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
		p.UpdatedAt = now
	}

	query := `INSERT INTO payments
		(id, tenant_id, invoice_id, status, amount_cents, currency, external_ref, error_code, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := q.ExecContext(ctx, query,
		p.ID, p.TenantID, p.InvoiceID, p.Status, p.AmountCents, p.Currency,
		nullString(p.ExternalRef), nullString(p.ErrorCode), nullString(p.ErrorMessage), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment owned by a tenant
func (s *Store) GetPayment(ctx context.Context, q Querier, id, tenantID uuid.UUID) (*Payment, error) {
	query := paymentColumns + ` WHERE id = $1 AND tenant_id = $2`
	return scanPayment(q.QueryRowContext(ctx, query, id, tenantID))
}

// ListPayments lists payment attempts for a tenant, newest first
func (s *Store) ListPayments(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}

	query := paymentColumns + ` WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p, err := scanPaymentRows(rows)
		if err != nil {
			return nil, 0, err
		}
		payments = append(payments, p)
	}
	return payments, total, rows.Err()
}

// SetPaymentOutcome applies a terminal status to the unresolved payments of an
// invoice. A payment that already succeeded is never overwritten. Returns the
// number of rows updated.
func (s *Store) SetPaymentOutcome(ctx context.Context, q Querier, invoiceID uuid.UUID, status PaymentStatus, externalRef, errorCode, errorMessage string) (int64, error) {
	query := `UPDATE payments SET status = $1, external_ref = $2, error_code = $3, error_message = $4, updated_at = $5
		WHERE invoice_id = $6 AND status <> 'succeeded'`
	res, err := q.ExecContext(ctx, query,
		status, nullString(externalRef), nullString(errorCode), nullString(errorMessage), time.Now().UTC(), invoiceID)
	if err != nil {
		return 0, fmt.Errorf("failed to set payment outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// IsEventProcessed reports whether an idempotency key was already applied
func (s *Store) IsEventProcessed(ctx context.Context, q Querier, ev OutcomeEvent) (bool, error) {
	query := `SELECT COUNT(*) FROM processed_events WHERE external_ref = $1 AND invoice_id = $2 AND outcome = $3`
	var n int
	if err := q.QueryRowContext(ctx, query, ev.ExternalRef, ev.InvoiceID, ev.Outcome).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return n > 0, nil
}

// MarkEventProcessed records an idempotency key. The unique index rejects a
// concurrent duplicate, failing that transaction instead of double-applying.
func (s *Store) MarkEventProcessed(ctx context.Context, q Querier, ev OutcomeEvent) error {
	query := `INSERT INTO processed_events (id, external_ref, invoice_id, outcome, processed_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := q.ExecContext(ctx, query, uuid.New(), ev.ExternalRef, ev.InvoiceID, ev.Outcome, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// InsertNotification records an in-app notice for a tenant
func (s *Store) InsertNotification(ctx context.Context, q Querier, tenantID uuid.UUID, noticeType, message string) error {
	query := `INSERT INTO notifications (id, tenant_id, notice_type, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := q.ExecContext(ctx, query, uuid.New(), tenantID, noticeType, message, false, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// Stats computes the admin dashboard numbers
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Currency: "EUR"}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tenants WHERE status = 'active'`).Scan(&stats.TotalTenants); err != nil {
		return nil, fmt.Errorf("failed to count tenants: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE status = 'active'`).Scan(&stats.ActiveSubscriptions); err != nil {
		return nil, fmt.Errorf("failed to count active subscriptions: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(p.base_price_cents), 0)
		FROM subscriptions s JOIN plans p ON s.plan_id = p.id
		WHERE s.status = 'active'`).Scan(&stats.MRRCents); err != nil {
		return nil, fmt.Errorf("failed to compute MRR: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE status = 'failed' AND created_at > $1`, cutoff).Scan(&stats.FailedPayments30d); err != nil {
		return nil, fmt.Errorf("failed to count failed payments: %w", err)
	}

	return stats, nil
}

// NewInvoiceNumber generates a human-readable invoice number. A short random
// suffix keeps numbers unique when several invoices are issued in the same
// second of a batch run.
func NewInvoiceNumber(now time.Time) string {
	suffix := make([]byte, 3)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%s", now.Format("20060102150405"), hex.EncodeToString(suffix))
}

const subscriptionColumns = `SELECT id, tenant_id, plan_id, status, start_date,
	current_period_start, current_period_end, cancel_at_period_end,
	last_dunning_sent_at, dunning_attempts, grace_entered_at, created_at, updated_at
	FROM subscriptions`

const invoiceColumns = `SELECT id, tenant_id, subscription_id, number, status,
	issue_date, due_date, total_cents, currency, external_ref, created_at, updated_at
	FROM invoices`

const paymentColumns = `SELECT id, tenant_id, invoice_id, status, amount_cents,
	currency, external_ref, error_code, error_message, created_at, updated_at
	FROM payments`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriptionFrom(sc rowScanner) (*Subscription, error) {
	sub := &Subscription{}
	var lastDunning, graceEntered sql.NullTime
	err := sc.Scan(
		&sub.ID, &sub.TenantID, &sub.PlanID, &sub.Status, &sub.StartDate,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&lastDunning, &sub.DunningAttempts, &graceEntered, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastDunning.Valid {
		t := lastDunning.Time
		sub.LastDunningSentAt = &t
	}
	if graceEntered.Valid {
		t := graceEntered.Time
		sub.GraceEnteredAt = &t
	}
	return sub, nil
}

func scanSubscription(row *sql.Row) (*Subscription, error) {
	sub, err := scanSubscriptionFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return sub, nil
}

func collectSubscriptions(rows *sql.Rows) ([]*Subscription, error) {
	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscriptionFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanInvoiceFrom(sc rowScanner) (*Invoice, error) {
	inv := &Invoice{}
	var subID uuid.NullUUID
	var extRef sql.NullString
	err := sc.Scan(
		&inv.ID, &inv.TenantID, &subID, &inv.Number, &inv.Status,
		&inv.IssueDate, &inv.DueDate, &inv.TotalCents, &inv.Currency, &extRef,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if subID.Valid {
		id := subID.UUID
		inv.SubscriptionID = &id
	}
	inv.ExternalRef = extRef.String
	return inv, nil
}

func scanInvoice(row *sql.Row) (*Invoice, error) {
	inv, err := scanInvoiceFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}
	return inv, nil
}

func scanInvoiceRows(rows *sql.Rows) (*Invoice, error) {
	inv, err := scanInvoiceFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}
	return inv, nil
}

func scanPaymentFrom(sc rowScanner) (*Payment, error) {
	p := &Payment{}
	var extRef, errCode, errMsg sql.NullString
	err := sc.Scan(
		&p.ID, &p.TenantID, &p.InvoiceID, &p.Status, &p.AmountCents,
		&p.Currency, &extRef, &errCode, &errMsg, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ExternalRef = extRef.String
	p.ErrorCode = errCode.String
	p.ErrorMessage = errMsg.String
	return p, nil
}

func scanPayment(row *sql.Row) (*Payment, error) {
	p, err := scanPaymentFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return p, nil
}

func scanPaymentRows(rows *sql.Rows) (*Payment, error) {
	p, err := scanPaymentFrom(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
