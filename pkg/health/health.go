// Package health provides Kubernetes-style liveness and readiness probes.
//
// Registered checks run in background goroutines at a fixed interval and use
// consecutive failure/success thresholds to avoid flapping: a check flips to
// unhealthy only after failing failureThreshold times in a row, and back to
// healthy after succeeding successThreshold times.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. It returns nil when the component is
// healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
)

// check holds the configuration and runtime state for a single probe.
// The consecutive counters are touched only by the single run goroutine;
// healthy and lastErr are also read by HTTP handlers, hence atomic.
type check struct {
	name    string
	timeout time.Duration
	probe   CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func newCheck(name string, timeout time.Duration, probe CheckFunc) *check {
	c := &check{name: name, timeout: timeout, probe: probe}
	c.healthy.Store(true) // assume healthy until proven otherwise
	return c
}

// run executes the probe once and applies the thresholds.
// Must be called from a single goroutine.
func (c *check) run(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.probe(probeCtx)
	c.lastErr.Store(&err)

	if err != nil {
		c.oks = 0
		c.fails++
		if c.fails >= defaultFailureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.fails = 0
	c.oks++
	if c.oks >= defaultSuccessThreshold {
		c.healthy.Store(true)
	}
}

func (c *check) failure() (string, bool) {
	if c.healthy.Load() {
		return "", false
	}
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error(), true
	}
	return "check is unhealthy", true
}

// Health manages liveness and readiness checks for a service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*check
	readiness []*check
	cancel    context.CancelFunc
}

// New creates a Health instance. The service starts not-ready; call
// SetReady(true) once initialization completes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a liveness probe (is the process functioning:
// goroutine counts, deadlocks). Register all checks before calling Start.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, probe CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newCheck(name, timeout, probe))
}

// AddReadinessCheck registers a readiness probe (can the service take
// traffic: database connectivity, dependent services).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, probe CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newCheck(name, timeout, probe))
}

// Start launches one goroutine per registered check, each probing at the
// given interval until Stop is called or ctx is cancelled.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := make([]*check, 0, len(h.liveness)+len(h.readiness))
	checks = append(checks, h.liveness...)
	checks = append(checks, h.readiness...)
	h.mu.Unlock()

	for _, c := range checks {
		go func(c *check) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			c.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx)
				}
			}
		}(c)
	}
}

// Stop cancels all background check goroutines. Safe to call repeatedly.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady manually flips the readiness gate: true after initialization,
// false during graceful shutdown to drain traffic.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is ready: the gate must be open and
// every readiness check passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	checks := h.readiness
	h.mu.RUnlock()

	for _, c := range checks {
		if !c.healthy.Load() {
			return false
		}
	}
	return true
}

// statusResponse is the JSON body for both probe endpoints.
type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} when all liveness checks
// pass, 503 with per-check failure details otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := make([]*check, len(h.liveness))
	copy(checks, h.liveness)
	h.mu.RUnlock()

	writeStatus(w, collectFailures(checks))
}

// ReadyEndpoint serves /readyz: 200 only when the service is marked ready
// AND all readiness checks pass.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	ready := h.ready.Load()

	h.mu.RLock()
	checks := make([]*check, len(h.readiness))
	copy(checks, h.readiness)
	h.mu.RUnlock()

	failures := collectFailures(checks)
	if !ready {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

func collectFailures(checks []*check) map[string]string {
	failures := make(map[string]string)
	for _, c := range checks {
		if msg, failed := c.failure(); failed {
			failures[c.name] = msg
		}
	}
	return failures
}

func writeStatus(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	status := http.StatusOK
	if len(failures) > 0 {
		resp.Status = "unhealthy"
		resp.Checks = failures
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
