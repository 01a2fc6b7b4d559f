package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianapp/realtime-gateway/internal/core/domain"
	"github.com/meridianapp/realtime-gateway/internal/core/services"
)

type stubChecker struct {
	err error
}

func (s stubChecker) Ping(context.Context) error { return s.err }

type stubRealtime struct {
	health services.Health
}

func (s stubRealtime) Health() services.Health { return s.health }

func healthyRealtime() stubRealtime {
	return stubRealtime{health: services.Health{
		ConnectedClients: 3,
		WatcherStatus:    domain.WatcherRunning,
		BackplaneHealthy: true,
	}}
}

func TestHealthHandler_LivenessAlwaysHealthy(t *testing.T) {
	handler := NewHealthHandler(stubChecker{err: errors.New("down")}, healthyRealtime(), "test")

	rec := httptest.NewRecorder()
	handler.HandleLiveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
}

func TestHealthHandler_ReadinessHealthy(t *testing.T) {
	handler := NewHealthHandler(stubChecker{}, healthyRealtime(), "test")

	rec := httptest.NewRecorder()
	handler.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Checks["document_store"].Status)
	assert.Equal(t, "healthy", body.Checks["watcher"].Status)
	assert.Equal(t, "healthy", body.Checks["backplane"].Status)
}

func TestHealthHandler_ReadinessFailsWhenStoreDown(t *testing.T) {
	handler := NewHealthHandler(stubChecker{err: errors.New("no reachable servers")}, healthyRealtime(), "test")

	rec := httptest.NewRecorder()
	handler.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "unhealthy", body.Checks["document_store"].Status)
}

func TestHealthHandler_ReadinessFailsWhenWatcherDown(t *testing.T) {
	realtime := stubRealtime{health: services.Health{
		WatcherStatus:    domain.WatcherFailed,
		BackplaneHealthy: true,
	}}
	handler := NewHealthHandler(stubChecker{}, realtime, "test")

	rec := httptest.NewRecorder()
	handler.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Checks["watcher"].Status)
	assert.Equal(t, string(domain.WatcherFailed), body.Checks["watcher"].Message)
}

func TestHealthHandler_RealtimeStatus(t *testing.T) {
	handler := NewHealthHandler(stubChecker{}, healthyRealtime(), "test")

	rec := httptest.NewRecorder()
	handler.HandleRealtimeStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/realtime/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["connectedClientCount"])
	assert.Equal(t, string(domain.WatcherRunning), body["watcherStatus"])
	assert.Equal(t, true, body["backplaneHealthy"])
}
