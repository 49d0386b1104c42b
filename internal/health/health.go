// Package health provides liveness and readiness endpoints for the dashboard.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrShuttingDown is reported by readiness checks once Shutdown was called.
var ErrShuttingDown = errors.New("shutting down")

// Checker reports whether the dashboard can serve a dataset.
type Checker interface {
	Check(ctx context.Context) error
}

// StatusRecorder receives readiness transitions. metrics.Metrics satisfies it.
type StatusRecorder interface {
	SetHealthStatus(healthy bool)
}

// HealthCheck manages health check functionality.
type HealthCheck struct {
	checker       Checker
	recorder      StatusRecorder
	logger        *zap.Logger
	mu            sync.RWMutex
	ready         bool
	lastErr       error
	lastCheck     time.Time
	checkInterval time.Duration
	checkTimeout  time.Duration
	shuttingDown  atomic.Bool
}

// NewHealthCheck creates a new HealthCheck instance. recorder may be nil.
func NewHealthCheck(checker Checker, recorder StatusRecorder, logger *zap.Logger) *HealthCheck {
	return &HealthCheck{
		checker:       checker,
		recorder:      recorder,
		logger:        logger,
		checkInterval: 15 * time.Second,
		checkTimeout:  5 * time.Second,
	}
}

// LivenessResponse represents the response for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// LivenessHandler handles GET /health requests.
// Returns 200 OK if the process is running.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "healthy"})
}

// ReadinessHandler handles GET /ready requests.
// Returns 200 OK if a consolidated file is discoverable and parses.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if hc.IsReady() {
		writeJSON(w, http.StatusOK, ReadinessResponse{
			Status: "ready",
			Checks: map[string]string{"dataset": "healthy"},
		})
		return
	}

	// Perform a fresh check if not ready
	ctx, cancel := context.WithTimeout(r.Context(), hc.checkTimeout)
	defer cancel()

	if err := hc.runCheck(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ReadinessResponse{
			Status: "not_ready",
			Checks: map[string]string{"dataset": "unhealthy"},
			Error:  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, ReadinessResponse{
		Status: "ready",
		Checks: map[string]string{"dataset": "healthy"},
	})
}

// Run performs periodic checks until ctx is done.
func (hc *HealthCheck) Run(ctx context.Context) {
	check := func() {
		cctx, cancel := context.WithTimeout(ctx, hc.checkTimeout)
		defer cancel()
		if err := hc.runCheck(cctx); err != nil {
			hc.logger.Warn("health check failed", zap.Error(err))
		}
	}

	check()

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

func (hc *HealthCheck) runCheck(ctx context.Context) error {
	var err error
	if hc.shuttingDown.Load() {
		err = ErrShuttingDown
	} else {
		err = hc.checker.Check(ctx)
	}

	hc.mu.Lock()
	hc.ready = err == nil
	hc.lastErr = err
	hc.lastCheck = time.Now()
	hc.mu.Unlock()

	if hc.recorder != nil {
		hc.recorder.SetHealthStatus(err == nil)
	}
	return err
}

// IsReady returns the current readiness status.
func (hc *HealthCheck) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.ready
}

// SetReady sets the readiness status. It is ignored once Shutdown was called.
func (hc *HealthCheck) SetReady(ready bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.ready = ready && !hc.shuttingDown.Load()
}

// Shutdown marks the service not ready for good. Later checks keep
// reporting ErrShuttingDown without consulting the checker.
func (hc *HealthCheck) Shutdown() {
	hc.shuttingDown.Store(true)
	hc.SetReady(false)
	if hc.recorder != nil {
		hc.recorder.SetHealthStatus(false)
	}
}

// Invalidate forces the next readiness probe to re-check.
func (hc *HealthCheck) Invalidate() {
	hc.SetReady(false)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
