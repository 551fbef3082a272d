package observability

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// HealthStatus is the health state of a component or of the whole process.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// severity orders statuses so aggregation can pick the worst one.
func (s HealthStatus) severity() int {
	switch s {
	case HealthStatusUnhealthy:
		return 2
	case HealthStatusDegraded:
		return 1
	default:
		return 0
	}
}

// HealthCheckResult is the outcome of probing one component.
type HealthCheckResult struct {
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthChecker reports the state of one component.
type HealthChecker func(ctx context.Context) HealthCheckResult

// HealthRegistry holds the named checkers the worker's health endpoint
// runs on every health endpoint hit.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{checkers: make(map[string]HealthChecker)}
}

// Register adds a checker under the given component name.
func (r *HealthRegistry) Register(name string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

// OverallHealth aggregates per-component results into one process verdict.
type OverallHealth struct {
	Status    HealthStatus                 `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

// GetOverallHealth runs every registered checker and reports the worst
// status seen. Checkers run in name order; with the two or three
// dependencies this service has, fanning out would buy nothing.
func (r *HealthRegistry) GetOverallHealth(ctx context.Context) OverallHealth {
	r.mu.RLock()
	names := make([]string, 0, len(r.checkers))
	checkers := make(map[string]HealthChecker, len(r.checkers))
	for name, checker := range r.checkers {
		names = append(names, name)
		checkers[name] = checker
	}
	r.mu.RUnlock()
	sort.Strings(names)

	overall := OverallHealth{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]HealthCheckResult, len(names)),
	}

	for _, name := range names {
		start := time.Now()
		result := checkers[name](ctx)
		result.Duration = time.Since(start)
		result.Timestamp = time.Now()
		overall.Checks[name] = result

		if result.Status.severity() > overall.Status.severity() {
			overall.Status = result.Status
		}
	}

	return overall
}

// ToJSON serializes the verdict for the health endpoint body.
func (h OverallHealth) ToJSON() ([]byte, error) {
	return json.Marshal(h)
}

// DatabaseHealthChecker pings the subscription store. A dead database
// makes the process unhealthy: nothing works without it.
func DatabaseHealthChecker(pingFunc func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		if err := pingFunc(ctx); err != nil {
			return HealthCheckResult{
				Status:  HealthStatusUnhealthy,
				Message: "database unreachable: " + err.Error(),
			}
		}
		return HealthCheckResult{Status: HealthStatusHealthy}
	}
}

// RedisHealthChecker pings the plan cache. Losing it only degrades the
// process: plan reads fall through to the database.
func RedisHealthChecker(pingFunc func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheckResult {
		if err := pingFunc(ctx); err != nil {
			return HealthCheckResult{
				Status:  HealthStatusDegraded,
				Message: "redis unreachable: " + err.Error(),
			}
		}
		return HealthCheckResult{Status: HealthStatusHealthy}
	}
}
