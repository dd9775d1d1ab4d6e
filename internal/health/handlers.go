package health

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/farmbridge/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady toggles the process readiness flag. It is cleared when shutdown
// starts so load balancers drain traffic before the listener closes.
func SetReady(v bool) { ready.Store(v) }

// Check is one dependency the readiness endpoint pings.
type Check struct {
	Name    string
	Timeout time.Duration
	// Critical checks fail readiness. A failing non-critical check only
	// marks the instance degraded.
	Critical bool
	Ping     func(ctx context.Context) error
}

// Report is the readiness response body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /health/live and /health/ready.
type Handler struct {
	Checks []Check
}

// Live reports that the process is serving.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready pings every check concurrently.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "shutting_down"})
		return
	}
	if len(h.Checks) == 0 {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "unconfigured"})
		return
	}

	results := make([]error, len(h.Checks))
	var wg sync.WaitGroup
	for i, c := range h.Checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			results[i] = c.run(r.Context())
		}(i, c)
	}
	wg.Wait()

	report := Report{Status: "ok", Checks: make(map[string]string, len(h.Checks))}
	code := http.StatusOK
	for i, c := range h.Checks {
		if results[i] == nil {
			report.Checks[c.Name] = "ok"
			continue
		}
		report.Checks[c.Name] = results[i].Error()
		if c.Critical {
			report.Status = "unavailable"
			code = http.StatusServiceUnavailable
		} else if report.Status == "ok" {
			report.Status = "degraded"
		}
	}
	common.JSON(w, code, report)
}

func (c Check) run(ctx context.Context) error {
	if c.Ping == nil {
		return errors.New("not configured")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Ping(ctx)
}
