package middle

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sevasetu/paycore/infra/logger"
	"github.com/sevasetu/paycore/infra/response"
)

// PanicRecoveryMiddleware recovers from panics in handlers and returns a 500
func PanicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Panic recovered", fmt.Errorf("%v", rec), logger.LogContext{
					Fields: map[string]any{
						"path":   r.URL.Path,
						"method": r.Method,
						"ip":     GetClientIP(r),
						"stack":  string(debug.Stack()),
					},
				})

				w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
				w.Header().Set("Pragma", "no-cache")

				response.Error(w, http.StatusInternalServerError, "Internal server error", nil)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
