package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"

	"github.com/gorilla/mux"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the server's middleware.
type Options struct {
	Logger             *applog.Logger
	RateLimitPerMinute int
	Headers            *security.HeadersConfig
	ReadyTimeout       time.Duration
}

type Server struct {
	http.Server
	lifecycle *services.LifecycleService
	stats     *services.StatsService
	ready     Pinger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	logger   *applog.Logger

	readyTimeout time.Duration
	shutdownOnce sync.Once
	now          func() time.Time
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, lifecycle *services.LifecycleService, stats *services.StatsService, ready Pinger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	headers := security.DefaultHeadersConfig()
	if opts.Headers != nil {
		headers = *opts.Headers
	}
	readyTimeout := opts.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = 2 * time.Second
	}

	s := &Server{
		lifecycle:    lifecycle,
		stats:        stats,
		ready:        ready,
		detector:     security.NewDetector(),
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		logger:       logger.WithComponent(applog.ComponentHTTP),
		readyTimeout: readyTimeout,
		now:          time.Now,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	router := mux.NewRouter()
	withFallbacks(router)

	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	// A subrouter resolves its own misses.
	api := router.PathPrefix("/api").Subrouter()
	withFallbacks(api)
	api.Use(s.limiter.Middleware(s.rateLimitKey, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ExtractClientIP(r))
		TooManyRequestsError().Write(w)
	}))
	s.routes(api)

	var handler http.Handler = router
	handler = s.flagSuspicious(handler)
	handler = security.NewHeadersMiddleware(headers).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func withFallbacks(rt *mux.Router) {
	rt.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("route not found").Write(w)
	})
	rt.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError().Write(w)
	})
}

func (s *Server) routes(api *mux.Router) {
	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", s.handleDeleteTransaction).Methods(http.MethodDelete)

	api.HandleFunc("/fixed-expenses/payments", s.handleListPayments).Methods(http.MethodGet)
	api.HandleFunc("/fixed-expenses", s.handleListFixedExpenses).Methods(http.MethodGet)
	api.HandleFunc("/fixed-expenses", s.handleCreateFixedExpense).Methods(http.MethodPost)
	api.HandleFunc("/fixed-expenses/{id}", s.handleGetFixedExpense).Methods(http.MethodGet)
	api.HandleFunc("/fixed-expenses/{id}", s.handleUpdateFixedExpense).Methods(http.MethodPatch)
	api.HandleFunc("/fixed-expenses/{id}", s.handleDeleteFixedExpense).Methods(http.MethodDelete)
	api.HandleFunc("/fixed-expenses/{id}/payments", s.handlePayFixedExpense).Methods(http.MethodPost)
	api.HandleFunc("/fixed-expenses/{id}/payments", s.handleUnpayFixedExpense).Methods(http.MethodDelete)

	api.HandleFunc("/accounts-receivable", s.handleListReceivables).Methods(http.MethodGet)
	api.HandleFunc("/accounts-receivable", s.handleCreateReceivable).Methods(http.MethodPost)
	api.HandleFunc("/accounts-receivable/{id}", s.handleGetReceivable).Methods(http.MethodGet)
	api.HandleFunc("/accounts-receivable/{id}", s.handleUpdateReceivable).Methods(http.MethodPatch)
	api.HandleFunc("/accounts-receivable/{id}", s.handleDeleteReceivable).Methods(http.MethodDelete)
	api.HandleFunc("/accounts-receivable/{id}/collect", s.handleCollectReceivable).Methods(http.MethodPost)
	api.HandleFunc("/accounts-receivable/{id}/uncollect", s.handleUncollectReceivable).Methods(http.MethodPost)

	api.HandleFunc("/savings-goals", s.handleListGoals).Methods(http.MethodGet)
	api.HandleFunc("/savings-goals", s.handleCreateGoal).Methods(http.MethodPost)
	api.HandleFunc("/savings-goals/{id}", s.handleGetGoal).Methods(http.MethodGet)
	api.HandleFunc("/savings-goals/{id}", s.handleUpdateGoal).Methods(http.MethodPatch)
	api.HandleFunc("/savings-goals/{id}", s.handleDeleteGoal).Methods(http.MethodDelete)

	api.HandleFunc("/savings-transactions", s.handleListMovements).Methods(http.MethodGet)
	api.HandleFunc("/savings-transactions", s.handleCreateMovement).Methods(http.MethodPost)
	api.HandleFunc("/savings-transactions/{id}", s.handleDeleteMovement).Methods(http.MethodDelete)

	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/categories", handleCategories).Methods(http.MethodGet)
}

// rateLimitKey counts requests per owner, or per client IP when the
// request names no owner.
func (s *Server) rateLimitKey(r *http.Request) string {
	if owner := ownerFrom(r); owner != "" {
		return "user:" + owner
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

// flagSuspicious logs requests that look like scans. They are still served;
// unknown routes end in a 404 anyway.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).WithComponent(applog.ComponentSecurity).WarnContext(r.Context(),
				"Suspicious request detected",
				applog.FieldClientIP, s.detector.ExtractClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)

		m := s.tracer.GetMetrics()
		s.logger.InfoContext(ctx, "HTTP server stopped",
			"total_requests", m.TotalRequests,
			"server_errors", m.ServerErrors,
			"rate_limited", s.limiter.GetMetrics().TotalHits,
			"suspicious_requests", s.detector.GetMetrics().SuspiciousRequests)
	})
	return shutdownErr
}

func (s *Server) currentPeriod() core.Period {
	return core.PeriodOf(core.DateOf(s.now()))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.readyTimeout)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err.Error())
			ErrorResponse(http.StatusServiceUnavailable, "not_ready", "store unavailable").Write(w)
			return
		}
	}
	NewJSONResponse().Data(map[string]string{"status": "ready"}).Write(w)
}
