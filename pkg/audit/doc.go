// Package audit provides a durable, database-backed audit trail for
// billing activity, plus an alerting hook for failures that need
// operator attention.
//
// # Overview
//
// Every consequential billing action (invoices issued, payments
// applied, dunning reminders sent, subscriptions canceled) is recorded
// as an append-only row in the audit_log table. Audit writes are
// fire-and-forget: a failure to record an event is logged but never
// propagated, so a broken audit sink cannot abort billing work.
//
// Entries carry a severity (info, warning, error, critical) and an
// optional tenant and user attribution; system-level batch activity is
// recorded without attribution via LogSystem.
//
// # Related Packages
//
//   - pkg/billing: produces most audit events
//   - pkg/jobs: tracks batch runs; audit records the per-item detail
package audit
