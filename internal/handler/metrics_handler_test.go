package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable/internal/service"
)

func newOpsRouter(h *MetricsHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", h.Prometheus)
	return router
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]Pinger{
		"database": func(ctx context.Context) error { return nil },
	})

	w := perform(newOpsRouter(h), http.MethodGet, "/ready", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"database":"ok"}}`, w.Body.String())
}

func TestMetricsHandlerReadyDegraded(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]Pinger{
		"database": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	})

	w := perform(newOpsRouter(h), http.MethodGet, "/ready", nil)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"connection refused"`)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveSchedulerRun(service.RunOutcomeComplete, 0)
	router := newOpsRouter(NewMetricsHandler(metrics, nil))

	w := perform(router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `scheduler_runs_total{outcome="complete"} 1`)

	w = perform(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(newOpsRouter(NewMetricsHandler(nil, nil)), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
