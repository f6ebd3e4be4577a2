package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/chainguard-dev/clog"
	"github.com/kiranshivaraju/llm-quality-observer/internal/api/response"
	"github.com/kiranshivaraju/llm-quality-observer/internal/metrics"
)

// Recovery turns a handler panic into a 500 envelope. The panic is logged
// through the request's context logger and counted on m, which may be nil.
func Recovery(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				m.RecordRecoveredPanic(metrics.ComponentHTTP)
				clog.FromContext(r.Context()).With(
					"method", r.Method,
					"path", r.URL.Path,
					"client", clientID(r),
				).Error("handler panicked",
					"panic", fmt.Sprintf("%v", rec),
					"stack", string(debug.Stack()),
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
