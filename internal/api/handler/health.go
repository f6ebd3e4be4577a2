package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiranshivaraju/llm-quality-observer/internal/api/response"
)

// Pinger is satisfied by the store and the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

const healthTimeout = 2 * time.Second

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health. The
// database is required; the cache is reported but optional.
func NewHealthHandler(db Pinger, c Pinger, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := map[string]string{
			"status":   "ok",
			"version":  version,
			"database": "ok",
			"cache":    "disabled",
		}
		code := http.StatusOK

		if err := db.Ping(ctx); err != nil {
			status["database"] = "unreachable"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
		if c != nil {
			status["cache"] = "ok"
			if err := c.Ping(ctx); err != nil {
				status["cache"] = "unreachable"
			}
		}

		response.Status(w, code, status)
	}
}
