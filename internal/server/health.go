package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker provides the liveness and readiness endpoints.
//
// The server starts not-ready; SetReady(true) is called once the store and
// OAuth configuration are wired. MarkShutdown flips readiness off so load
// balancers drain the instance before the listener closes.
type HealthChecker struct {
	// ready indicates whether the server is ready to receive traffic
	ready atomic.Bool
	// shuttingDown is set when graceful shutdown begins
	shuttingDown atomic.Bool
	// startTime tracks when the server started
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker in the not-ready state.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
	}
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// MarkShutdown records that graceful shutdown has begun. Readiness checks
// fail from this point on.
func (h *HealthChecker) MarkShutdown() {
	h.shuttingDown.Store(true)
	h.ready.Store(false)
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// Liveness only says the process is serving; it stays OK during shutdown
// so the process is not killed while draining.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := HealthResponse{
			Status: healthStatusOK,
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
// Readiness probes indicate whether the server should receive traffic.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		checks := h.componentChecks()
		allOk := true
		for _, status := range checks {
			if status != healthStatusOK {
				allOk = false
			}
		}

		response := HealthResponse{
			Checks: checks,
		}

		if allOk {
			response.Status = healthStatusOK
			w.WriteHeader(http.StatusOK)
		} else {
			response.Status = healthStatusNotReady
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed
// endpoint, reporting uptime alongside the readiness checks.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		response := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
			Checks: h.componentChecks(),
		}

		switch {
		case h.shuttingDown.Load():
			response.Status = healthStatusShuttingDown
			w.WriteHeader(http.StatusServiceUnavailable)
		case !h.ready.Load():
			response.Status = healthStatusNotReady
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

// componentChecks builds the per-component status map shared by the
// readiness and detailed endpoints.
func (h *HealthChecker) componentChecks() map[string]string {
	checks := make(map[string]string)

	if h.ready.Load() {
		checks["ready"] = healthStatusOK
	} else {
		checks["ready"] = healthStatusNotReady
	}

	if h.shuttingDown.Load() {
		checks["shutdown"] = healthStatusShuttingDown
	} else {
		checks["shutdown"] = healthStatusOK
	}

	return checks
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
