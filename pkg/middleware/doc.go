// Package middleware provides the HTTP cross-cutting layers: tenant
// authentication, admin token checks, Redis-backed rate limiting and
// request logging.
package middleware
