package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/username/cartera/backend/src/logger"
)

// ContextualLoggerMiddleware attaches a request-scoped logger (with a request
// id) to the context so downstream logs can be correlated.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		reqLogger := logger.L.With("requestID", requestID, "method", r.Method, "path", r.URL.Path)
		ctx := logger.ToContext(r.Context(), reqLogger)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
