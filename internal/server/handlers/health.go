// Package handlers holds the HTTP operation surface's health/readiness
// probes and the error-response adapter shared by internal/server.
// Grounded on handlers/health_test.go and handlers/error_adapter_test.go
// (the retrieval pack carried only the tests for this package; the
// handlers themselves are authored fresh against their observed
// contract).
package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/3leaps/gonimbus/internal/apperrors"
)

// Checker reports whether a dependency the service relies on is healthy.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the /health endpoint's JSON body.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthManager tracks named checkers and renders the aggregate status.
type HealthManager struct {
	version string

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewHealthManager constructs an empty HealthManager reporting version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{version: version, checkers: make(map[string]Checker)}
}

// RegisterChecker adds (or replaces) a named dependency checker.
func (m *HealthManager) RegisterChecker(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	checks := make(map[string]string, len(m.checkers))
	for name, c := range m.checkers {
		if err := c.CheckHealth(ctx); err != nil {
			checks[name] = "unhealthy"
			continue
		}
		checks[name] = "healthy"
	}
	return checks
}

// determineOverallStatus folds individual check results into one of
// healthy/degraded/unhealthy. A "timeout" result degrades the service
// without taking it out of rotation; any other non-healthy result fails
// it outright.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, v := range checks {
		switch v {
		case "healthy":
		case "timeout":
			if status == "healthy" {
				status = "degraded"
			}
		default:
			return "unhealthy"
		}
	}
	return status
}

// HealthHandler renders the full health report: 200 if every checker is
// healthy (or only degraded), 503 otherwise with check detail attached.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == "unhealthy" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = writeJSONBody(w, map[string]any{
			"error": map[string]any{
				"code":    "SERVICE_UNAVAILABLE",
				"message": "one or more dependencies are unhealthy",
				"details": map[string]any{"checks": toAnyMap(checks)},
			},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = writeJSONBody(w, HealthResponse{Status: status, Version: m.version, Checks: checks})
}

// LivenessHandler always reports healthy once the process is up: it
// answers "is the process alive", not "are its dependencies healthy".
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = writeJSONBody(w, HealthResponse{Status: "healthy", Version: m.version})
}

// ReadinessHandler reports the same aggregate as HealthHandler: whether
// the process should currently receive traffic.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler reports healthy once the manager exists; there is no
// separate startup probe state to track for this daemon.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	m.LivenessHandler(w, r)
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var globalHealthManager *HealthManager

// InitHealthManager sets the process-wide health manager used by the
// global Xxx Handler functions below (internal/server wires routes to
// these before the HealthManager instance is necessarily available).
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the process-wide manager, or nil if
// InitHealthManager has not been called.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func unavailable(w http.ResponseWriter) {
	apperrors.WriteJSON(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "health manager not initialized")
}

// HealthHandler is the package-level handler chi routes bind directly;
// it delegates to the global manager once InitHealthManager has run.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		unavailable(w)
		return
	}
	globalHealthManager.HealthHandler(w, r)
}

// LivenessHandler is the package-level /health/live handler.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		unavailable(w)
		return
	}
	globalHealthManager.LivenessHandler(w, r)
}

// ReadinessHandler is the package-level /health/ready handler.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		unavailable(w)
		return
	}
	globalHealthManager.ReadinessHandler(w, r)
}

// StartupHandler is the package-level /health/startup handler.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		unavailable(w)
		return
	}
	globalHealthManager.StartupHandler(w, r)
}
