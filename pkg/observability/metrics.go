package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Batch job metrics
	JobRunsTotal  *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	JobItemsTotal *prometheus.CounterVec

	// Reconciliation metrics
	PaymentOutcomesTotal *prometheus.CounterVec
	DuplicateEventsTotal prometheus.Counter
	UnknownEventsTotal   prometheus.Counter

	// Dunning metrics
	DunningRemindersTotal *prometheus.CounterVec

	// Business gauges
	ActiveSubscriptions prometheus.Gauge
	MRRCents            prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billforge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billforge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billforge_job_runs_total",
				Help: "Total number of batch job runs by outcome",
			},
			[]string{"job", "status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billforge_job_duration_seconds",
				Help:    "Batch job duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"job"},
		),
		JobItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billforge_job_items_total",
				Help: "Subscriptions handled by batch jobs, by result",
			},
			[]string{"job", "result"},
		),
		PaymentOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billforge_payment_outcomes_total",
				Help: "Payment outcome events applied, by outcome",
			},
			[]string{"outcome"},
		),
		DuplicateEventsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billforge_duplicate_events_total",
				Help: "Inbound payment events discarded as duplicates",
			},
		),
		UnknownEventsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billforge_unknown_events_total",
				Help: "Inbound payment events with no matching invoice",
			},
		),
		DunningRemindersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billforge_dunning_reminders_total",
				Help: "Dunning reminders attempted, by result",
			},
			[]string{"result"},
		),
		ActiveSubscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "billforge_active_subscriptions",
				Help: "Number of subscriptions currently active",
			},
		),
		MRRCents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "billforge_mrr_cents",
				Help: "Monthly recurring revenue in minor currency units",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.JobRunsTotal,
		m.JobDuration,
		m.JobItemsTotal,
		m.PaymentOutcomesTotal,
		m.DuplicateEventsTotal,
		m.UnknownEventsTotal,
		m.DunningRemindersTotal,
		m.ActiveSubscriptions,
		m.MRRCents,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
