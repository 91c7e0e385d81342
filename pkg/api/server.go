package api

import (
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/billforge/billforge/pkg/audit"
	"github.com/billforge/billforge/pkg/billing"
	"github.com/billforge/billforge/pkg/config"
	"github.com/billforge/billforge/pkg/jobs"
	"github.com/billforge/billforge/pkg/middleware"
	"github.com/billforge/billforge/pkg/observability"
)

// Server is the HTTP API over the billing system
type Server struct {
	router  *mux.Router
	cfg     *config.Config
	store   *billing.Store
	service *billing.Service

	cycle      *billing.CycleProcessor
	dunning    *billing.DunningProcessor
	reconciler *billing.Reconciler

	ledger  *jobs.Ledger
	runner  *jobs.Runner
	auditor *audit.Logger
	metrics *observability.Metrics
	logger  *observability.Logger
}

// Deps carries everything the server wires together
type Deps struct {
	Config     *config.Config
	Store      *billing.Store
	Service    *billing.Service
	Cycle      *billing.CycleProcessor
	Dunning    *billing.DunningProcessor
	Reconciler *billing.Reconciler
	Ledger     *jobs.Ledger
	Runner     *jobs.Runner
	Auditor    *audit.Logger
	Metrics    *observability.Metrics
	Registry   *prometheus.Registry
	Logger     *observability.Logger
	// Redis enables distributed rate limiting when set
	Redis *redis.Client
}

// NewServer creates the API server and sets up all routes
func NewServer(deps Deps) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		cfg:        deps.Config,
		store:      deps.Store,
		service:    deps.Service,
		cycle:      deps.Cycle,
		dunning:    deps.Dunning,
		reconciler: deps.Reconciler,
		ledger:     deps.Ledger,
		runner:     deps.Runner,
		auditor:    deps.Auditor,
		metrics:    deps.Metrics,
		logger:     deps.Logger.WithField("component", "api"),
	}
	s.setupRoutes(deps.Registry, deps.Redis)
	return s
}

func (s *Server) setupRoutes(registry *prometheus.Registry, redisClient *redis.Client) {
	s.router.Use(middleware.RequestLogging(s.logger, s.metrics))

	s.router.HandleFunc("/healthz", s.health).Methods("GET")
	s.router.Handle("/metrics", observability.Handler(registry)).Methods("GET")

	// Webhook route carries its own authentication (HMAC signature)
	webhooks := s.router.PathPrefix("/webhooks").Subrouter()
	if redisClient != nil {
		webhooks.Use(middleware.RateLimit(
			middleware.NewRateLimiter(redisClient, middleware.WebhookRateLimitConfig(), "ratelimit:webhook")))
	}
	webhooks.HandleFunc("/payment", s.handlePaymentWebhook).Methods("POST")

	// Tenant routes
	tenant := s.router.PathPrefix("").Subrouter()
	tenant.Use(middleware.TenantAuth)
	if redisClient != nil {
		tenant.Use(middleware.RateLimit(
			middleware.NewRateLimiter(redisClient, middleware.PerTenantRateLimitConfig(), "ratelimit:tenant")))
	}
	tenant.HandleFunc("/subscriptions", s.createSubscription).Methods("POST")
	tenant.HandleFunc("/subscriptions/current", s.getSubscription).Methods("GET")
	tenant.HandleFunc("/subscriptions", s.cancelSubscription).Methods("DELETE")
	tenant.HandleFunc("/invoices", s.listInvoices).Methods("GET")
	tenant.HandleFunc("/invoices/{id}", s.getInvoice).Methods("GET")
	tenant.HandleFunc("/payments", s.listPayments).Methods("GET")
	tenant.HandleFunc("/payments/{id}/retry", s.retryPayment).Methods("POST")

	// Operator routes
	admin := s.router.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AdminAuth(s.cfg.Server.AdminToken))
	admin.HandleFunc("/jobs/billing-cycle", s.triggerBillingCycle).Methods("POST")
	admin.HandleFunc("/jobs/dunning", s.triggerDunning).Methods("POST")
	admin.HandleFunc("/jobs", s.listJobRuns).Methods("GET")
	admin.HandleFunc("/jobs/{id}", s.getJobRun).Methods("GET")
	admin.HandleFunc("/stats", s.getStats).Methods("GET")
	admin.HandleFunc("/audit", s.listAudit).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
