package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthChecker_Endpoints(t *testing.T) {
	hc := NewHealthChecker(nil, time.Second)
	healthy := true
	hc.AddReadinessCheck("database", func(ctx context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("connection refused")
	})

	rec := httptest.NewRecorder()
	hc.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	hc.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	hc.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// 依赖故障不影响存活检查
	rec = httptest.NewRecorder()
	hc.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthChecker_CheckHealth(t *testing.T) {
	hc := NewHealthChecker(nil, 50*time.Millisecond)
	hc.AddReadinessCheck("database", func(ctx context.Context) error { return nil })
	hc.AddReadinessCheck("redis", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	report := hc.CheckHealth()
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "OK", report.Checks["database"])
	assert.Contains(t, report.Checks["redis"], "ERROR")
	assert.NotEmpty(t, report.Uptime)
}

func TestHealthChecker_NoChecks(t *testing.T) {
	report := NewHealthChecker(nil, 0).CheckHealth()
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Empty(t, report.Checks)
}
