package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger writes audit entries to the audit_log table. Writes never
// surface errors to callers; a failed audit write is logged and
// swallowed so billing work is not aborted by a broken audit sink.
type Logger struct {
	db  *sql.DB
	log *logrus.Entry
}

// NewLogger creates an audit logger backed by db.
func NewLogger(db *sql.DB) *Logger {
	return &Logger{
		db:  db,
		log: logrus.WithField("component", "audit"),
	}
}

// EnsureSchema creates the audit_log table and its indexes if missing.
func (l *Logger) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_log (
			id UUID PRIMARY KEY,
			tenant_id TEXT,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log (tenant_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_severity ON audit_log (severity, created_at)`,
	}
	for _, stmt := range statements {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure audit_log schema: %w", err)
		}
	}
	return nil
}

// Log records an audit event attributed to a tenant. Errors are logged,
// never returned.
func (l *Logger) Log(ctx context.Context, tenantID uuid.UUID, eventType EventType, severity Severity, message string, metadata map[string]any) {
	l.write(ctx, &tenantID, eventType, severity, message, metadata)
}

// LogSystem records an audit event with no tenant attribution, for
// batch jobs and other system-level activity.
func (l *Logger) LogSystem(ctx context.Context, eventType EventType, severity Severity, message string, metadata map[string]any) {
	l.write(ctx, nil, eventType, severity, message, metadata)
}

func (l *Logger) write(ctx context.Context, tenantID *uuid.UUID, eventType EventType, severity Severity, message string, metadata map[string]any) {
	var metadataJSON sql.NullString
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			l.log.WithError(err).WithField("event_type", eventType).Warn("failed to marshal audit metadata")
		} else {
			metadataJSON = sql.NullString{String: string(raw), Valid: true}
		}
	}

	var tenant sql.NullString
	if tenantID != nil {
		tenant = sql.NullString{String: tenantID.String(), Valid: true}
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, tenant_id, event_type, severity, message, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), tenant, string(eventType), string(severity), message, metadataJSON, time.Now().UTC())
	if err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"event_type": eventType,
			"severity":   severity,
		}).Error("failed to write audit entry")
	}
}

// Filter narrows a List query. Zero values match everything.
type Filter struct {
	TenantID  *uuid.UUID
	Severity  Severity
	EventType EventType
	Limit     int
	Offset    int
}

// List returns audit entries newest first.
func (l *Logger) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	query := `SELECT id, tenant_id, event_type, severity, message, metadata, created_at FROM audit_log`
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.TenantID != nil {
		conditions = append(conditions, "tenant_id = "+arg(filter.TenantID.String()))
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = "+arg(string(filter.Severity)))
	}
	if filter.EventType != "" {
		conditions = append(conditions, "event_type = "+arg(string(filter.EventType)))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " ORDER BY created_at DESC, id DESC"
	query += " LIMIT " + arg(limit)
	query += " OFFSET " + arg(filter.Offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var entry Entry
	var tenant, metadata sql.NullString
	var eventType, severity string
	if err := rows.Scan(&entry.ID, &tenant, &eventType, &severity, &entry.Message, &metadata, &entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}
	entry.EventType = EventType(eventType)
	entry.Severity = Severity(severity)
	if tenant.Valid {
		id, err := uuid.Parse(tenant.String)
		if err == nil {
			entry.TenantID = &id
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
		}
	}
	return &entry, nil
}
