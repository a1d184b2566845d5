package server

import (
	"net/http"
	"time"

	"github.com/teemow/memorylane/internal/bootstrap"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusDegraded     = "degraded"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker provides health check endpoints for Kubernetes probes.
// Readiness follows the library bootstrap.
type HealthChecker struct {
	serverContext *ServerContext
	startTime     time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	return &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
}

// IsReady reports whether both Google libraries are ready and the server
// is not shutting down.
func (h *HealthChecker) IsReady() bool {
	if h.serverContext == nil {
		return false
	}
	return h.serverContext.Loader().State().Ready() && !h.serverContext.IsShutdown()
}

func (h *HealthChecker) isServerShuttingDown() bool {
	return h.serverContext != nil && h.serverContext.IsShutdown()
}

func (h *HealthChecker) bootstrapState() bootstrap.State {
	if h.serverContext == nil {
		return bootstrap.State{}
	}
	return h.serverContext.Loader().State()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status     string          `json:"status"`
	Uptime     string          `json:"uptime"`
	Configured bool            `json:"configured"`
	SignedIn   bool            `json:"signedIn"`
	Bootstrap  bootstrap.State `json:"bootstrap"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// Liveness probes indicate whether the process should be restarted.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks := make(map[string]string)
		allOk := true

		state := h.bootstrapState()
		switch {
		case !state.Ready():
			checks["bootstrap"] = healthStatusNotReady
			allOk = false
		case state.Degraded:
			checks["bootstrap"] = healthStatusDegraded
		default:
			checks["bootstrap"] = healthStatusOK
		}

		if h.isServerShuttingDown() {
			checks["shutdown"] = healthStatusShuttingDown
			allOk = false
		} else {
			checks["shutdown"] = healthStatusOK
		}

		if allOk {
			writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK, Checks: checks})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusNotReady, Checks: checks})
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed endpoint.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response := DetailedHealthResponse{
			Status:    healthStatusOK,
			Uptime:    time.Since(h.startTime).Truncate(time.Second).String(),
			Bootstrap: h.bootstrapState(),
		}
		if h.serverContext != nil {
			response.Configured = h.serverContext.Store().IsConfigured()
			response.SignedIn = h.serverContext.APIClient().HasToken()
		}

		status := http.StatusOK
		switch {
		case h.isServerShuttingDown():
			response.Status = healthStatusShuttingDown
			status = http.StatusServiceUnavailable
		case !response.Bootstrap.Ready():
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		case response.Bootstrap.Degraded:
			response.Status = healthStatusDegraded
		}

		writeJSON(w, status, response)
	})
}
