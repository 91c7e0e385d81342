// Package billing implements the recurring billing core: the
// subscription lifecycle, the billing cycle batch, payment outcome
// reconciliation and dunning escalation.
//
// # Overview
//
// A tenant holds at most one live subscription at a time. The
// subscription moves through a fixed state machine (active, past_due,
// grace_period, and the terminal canceled and canceled_auto states);
// every status change goes through a conditional update keyed on the
// expected prior status, so concurrent processors cannot double-apply
// a transition.
//
// Three processors drive the system:
//
//   - CycleProcessor scans for subscriptions whose period has ended and
//     issues the next invoice, one transaction per subscription.
//   - Reconciler applies payment outcomes reported by the gateway,
//     idempotently, settling invoices and recovering or demoting the
//     subscription in the same transaction.
//   - DunningProcessor reminds past_due tenants on a cooldown, then
//     escalates to grace_period and finally to automatic cancellation.
//
// All monetary amounts are integer cents. Batch runs are recorded in
// the job ledger (pkg/jobs) and consequential actions in the audit
// trail (pkg/audit).
//
// # Related Packages
//
//   - pkg/jobs: batch run ledger and background runner
//   - pkg/audit: durable audit trail and alerting
//   - pkg/notifications: reminder delivery
//   - pkg/api: HTTP surface over these operations
package billing
