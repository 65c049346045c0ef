package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckStatus represents the health state of a component.
type CheckStatus string

const (
	CheckStatusHealthy   CheckStatus = "healthy"
	CheckStatusDegraded  CheckStatus = "degraded"
	CheckStatusUnhealthy CheckStatus = "unhealthy"
)

// CheckResult is the result of a health check.
type CheckResult struct {
	Status    CheckStatus    `json:"status"`
	Message   string         `json:"message,omitempty"`
	Duration  time.Duration  `json:"duration_ns"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthChecker is a function that performs a health check.
type HealthChecker func(ctx context.Context) CheckResult

// HealthRegistry manages health checks for multiple components.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthRegistry creates a new health registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{checkers: make(map[string]HealthChecker)}
}

// Register adds a health checker for a component.
func (r *HealthRegistry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// Check runs all health checks and returns per-component results.
func (r *HealthRegistry) Check(ctx context.Context) map[string]CheckResult {
	r.mu.RLock()
	checkers := make(map[string]HealthChecker, len(r.checkers))
	for k, v := range r.checkers {
		checkers[k] = v
	}
	r.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var wg sync.WaitGroup
	var resultsMu sync.Mutex

	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker HealthChecker) {
			defer wg.Done()
			start := time.Now()
			result := checker(ctx)
			result.Duration = time.Since(start)
			result.Timestamp = time.Now()
			resultsMu.Lock()
			results[name] = result
			resultsMu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	return results
}

// OverallStatus aggregates per-component results into one status.
func OverallStatus(results map[string]CheckResult) CheckStatus {
	status := CheckStatusHealthy
	for _, result := range results {
		switch result.Status {
		case CheckStatusUnhealthy:
			return CheckStatusUnhealthy
		case CheckStatusDegraded:
			status = CheckStatusDegraded
		}
	}
	return status
}

// Handler returns an HTTP handler serving the registry's aggregated
// health as JSON. Unhealthy components produce a 503.
func (r *HealthRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		results := r.Check(req.Context())
		overall := OverallStatus(results)

		code := http.StatusOK
		if overall == CheckStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":     overall,
			"components": results,
		})
	})
}
