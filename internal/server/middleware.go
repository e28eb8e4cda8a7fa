package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/gmailnotifier/internal/instrumentation"
	"github.com/teemow/gmailnotifier/internal/logging"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDFromContext returns the request ID attached by
// RequestIDMiddleware, or "" when none is present.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestIDMiddleware attaches a request ID to the context and the response
// headers. An incoming X-Request-ID is honored so IDs survive proxies.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// isHealthPath reports whether the path belongs to the probe endpoints,
// which are kept out of the access log and request metrics.
func isHealthPath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/healthz/detailed"
}

// LoggingMiddleware returns middleware that writes one access log line per
// request and records the HTTP request metric. metrics may be nil.
func LoggingMiddleware(logger *slog.Logger, metrics *instrumentation.Metrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = &instrumentation.Metrics{} // no-op recorder
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHealthPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rec.status, duration)
			logger.Info("request handled",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", duration),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}

// handlerLogger derives a request-scoped logger carrying the request ID.
func handlerLogger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return logging.WithRequestID(logger, id)
	}
	return logger
}
