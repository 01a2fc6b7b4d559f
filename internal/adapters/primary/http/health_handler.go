package http

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	"github.com/meridianapp/realtime-gateway/internal/core/services"
)

// HealthChecker defines the interface for health check dependencies
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RealtimeHealth exposes the realtime subsystem's state to the health
// surface. Implemented by services.Lifecycle.
type RealtimeHealth interface {
	Health() services.Health
}

// HealthHandler handles health check requests
type HealthHandler struct {
	store     HealthChecker
	realtime  RealtimeHealth
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store HealthChecker, realtime RealtimeHealth, version string) *HealthHandler {
	return &HealthHandler{
		store:     store,
		realtime:  realtime,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Checks    map[string]Check `json:"checks,omitempty"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HandleLiveness handles liveness probe requests (is the service running?)
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	writeHealthJSON(w, http.StatusOK, response)
}

// HandleReadiness handles readiness probe requests (can the service accept
// traffic?). A gateway without its document store or a running watcher is
// not ready: sockets would connect but never receive events.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, overallStatus := h.runChecks(ctx, "unhealthy")

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeHealthJSON(w, statusCode, response)
}

// HandleHealth handles detailed health check requests (for monitoring/debugging)
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, overallStatus := h.runChecks(ctx, "degraded")

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := struct {
		HealthResponse
		Memory struct {
			Alloc      uint64 `json:"alloc_bytes"`
			TotalAlloc uint64 `json:"total_alloc_bytes"`
			Sys        uint64 `json:"sys_bytes"`
			NumGC      uint32 `json:"num_gc"`
		} `json:"memory"`
		Goroutines int `json:"goroutines"`
	}{
		HealthResponse: HealthResponse{
			Status:    overallStatus,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
			Uptime:    time.Since(h.startTime).Round(time.Second).String(),
			Checks:    checks,
		},
		Goroutines: runtime.NumGoroutine(),
	}
	response.Memory.Alloc = memStats.Alloc
	response.Memory.TotalAlloc = memStats.TotalAlloc
	response.Memory.Sys = memStats.Sys
	response.Memory.NumGC = memStats.NumGC

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeHealthJSON(w, statusCode, response)
}

// HandleRealtimeStatus reports the realtime subsystem's operational state:
// how many sockets this instance holds and whether the change feed is
// consuming.
func (h *HealthHandler) HandleRealtimeStatus(w http.ResponseWriter, r *http.Request) {
	writeHealthJSON(w, http.StatusOK, h.realtime.Health())
}

// runChecks runs every dependency check; degradedStatus is the overall
// status reported when a check fails.
func (h *HealthHandler) runChecks(ctx context.Context, degradedStatus string) (map[string]Check, string) {
	checks := make(map[string]Check)
	overallStatus := "healthy"

	storeCheck := h.checkStore(ctx)
	checks["document_store"] = storeCheck
	if storeCheck.Status != "healthy" {
		overallStatus = degradedStatus
	}

	if h.realtime != nil {
		health := h.realtime.Health()

		watcherCheck := Check{Status: "healthy", Message: string(health.WatcherStatus)}
		if health.WatcherStatus != domain.WatcherRunning {
			watcherCheck.Status = "unhealthy"
			overallStatus = degradedStatus
		}
		checks["watcher"] = watcherCheck

		backplaneCheck := Check{Status: "healthy"}
		if !health.BackplaneHealthy {
			backplaneCheck.Status = "unhealthy"
			backplaneCheck.Message = "backplane unreachable"
			overallStatus = degradedStatus
		}
		checks["backplane"] = backplaneCheck
	}

	return checks, overallStatus
}

// checkStore checks document store connectivity
func (h *HealthHandler) checkStore(ctx context.Context) Check {
	start := time.Now()

	if h.store == nil {
		return Check{
			Status:  "unhealthy",
			Message: "Document store not configured",
		}
	}

	err := h.store.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return Check{
			Status:  "unhealthy",
			Message: err.Error(),
			Latency: latency.String(),
		}
	}

	return Check{
		Status:  "healthy",
		Latency: latency.String(),
	}
}

func writeHealthJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
