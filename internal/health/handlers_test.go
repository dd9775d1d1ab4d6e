package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/farmbridge/internal/health"
)

func ok(context.Context) error { return nil }

func ready(t *testing.T, h health.Handler) (int, health.Report) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return rec.Code, report
}

func TestLive(t *testing.T) {
	rec := httptest.NewRecorder()
	health.Handler{}.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestReadyAllHealthy(t *testing.T) {
	code, report := ready(t, health.Handler{Checks: []health.Check{
		{Name: "postgres", Critical: true, Ping: ok},
		{Name: "redis", Ping: ok},
	}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, health.Report{Status: "ok", Checks: map[string]string{"postgres": "ok", "redis": "ok"}}, report)
}

func TestReadyDatabaseDown(t *testing.T) {
	code, report := ready(t, health.Handler{Checks: []health.Check{
		{Name: "postgres", Critical: true, Ping: func(context.Context) error { return errors.New("connection refused") }},
		{Name: "redis", Ping: ok},
	}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "unavailable", report.Status)
	require.Equal(t, "connection refused", report.Checks["postgres"])
}

func TestReadyRedisDownIsDegraded(t *testing.T) {
	code, report := ready(t, health.Handler{Checks: []health.Check{
		{Name: "postgres", Critical: true, Ping: ok},
		{Name: "redis", Ping: func(context.Context) error { return errors.New("i/o timeout") }},
	}})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "degraded", report.Status)
}

func TestReadyCheckTimeout(t *testing.T) {
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	start := time.Now()
	code, report := ready(t, health.Handler{Checks: []health.Check{
		{Name: "postgres", Critical: true, Timeout: 20 * time.Millisecond, Ping: slow},
		{Name: "unset", Critical: true},
	}})
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, context.DeadlineExceeded.Error(), report.Checks["postgres"])
	require.Equal(t, "not configured", report.Checks["unset"])
}

func TestReadyWhileShuttingDown(t *testing.T) {
	h := health.Handler{Checks: []health.Check{{Name: "postgres", Critical: true, Ping: ok}}}
	health.SetReady(false)
	t.Cleanup(func() { health.SetReady(true) })

	code, report := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "shutting_down", report.Status)

	code, _ = ready(t, health.Handler{})
	require.Equal(t, http.StatusServiceUnavailable, code)
}
