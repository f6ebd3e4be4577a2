package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/llm-quality-observer/internal/api/middleware"
	"github.com/kiranshivaraju/llm-quality-observer/internal/api/response"
	"github.com/kiranshivaraju/llm-quality-observer/internal/metrics"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Metrics   *metrics.Metrics

	HealthHandler       http.HandlerFunc
	EvaluateOnceHandler http.HandlerFunc
	SchedulerHandler    http.HandlerFunc
	SchedulerRunHandler http.HandlerFunc
	BatchReportHandler  http.HandlerFunc
	MetricsHandler      http.Handler
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery(deps.Metrics))

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.Authenticate)
		}

		r.Get("/api/v1/scheduler", orNotImplemented(deps.SchedulerHandler))
		r.Get("/api/v1/scheduler/batches/{batchID}", orNotImplemented(deps.BatchReportHandler))

		r.Group(func(r chi.Router) {
			if deps.RateLimit != nil {
				r.Use(deps.RateLimit.Limit)
			}
			r.Post("/api/v1/evaluate-once", orNotImplemented(deps.EvaluateOnceHandler))
			r.Post("/api/v1/scheduler/run", orNotImplemented(deps.SchedulerRunHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
