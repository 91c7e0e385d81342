// Package observability provides structured logging and Prometheus metrics.
//
// # Overview
//
// This package centralizes observability infrastructure: JSON logging via
// stdlib slog and metrics collection for HTTP traffic, batch jobs and
// billing business gauges.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("job", "billing_cycle").Info("run started")
//
// Context-aware logging:
//
//	observability.FromContext(ctx).WithError(err).Error("reconciliation failed")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.JobRunsTotal.WithLabelValues("billing_cycle", "completed").Inc()
//
// Business metrics:
//
//	metrics.ActiveSubscriptions.Set(float64(count))
//	metrics.MRRCents.Set(float64(mrr))
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/billing: Emits job and reconciliation metrics
package observability
