// Package api exposes the billing system over HTTP.
//
// # Overview
//
// Tenant routes (subscriptions, invoices, payments) authenticate via
// the X-Tenant-ID header and are rate limited per tenant. The payment
// webhook authenticates with an HMAC-SHA256 signature over the raw
// body. Operator routes under /admin require a bearer token and cover
// job triggers, the job ledger, business stats and the audit trail.
//
// Batch job triggers are asynchronous: the handler opens a ledger
// entry, queues the job on the bounded runner and responds 202 with
// the run ID. A full queue yields 503 and a failed ledger entry.
package api
