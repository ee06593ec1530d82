package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc checks one dependency. A nil error means the dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Pinger is implemented by anything that can be pinged, such as *sql.DB or an event store
type Pinger interface {
	PingContext(ctx context.Context) error
}

type dependencyCheck struct {
	name     string
	required bool
	check    CheckFunc
}

// HealthChecker aggregates dependency checks into liveness and readiness checks.
// A failing required dependency makes the service unhealthy; a failing optional
// one only degrades it.
type HealthChecker struct {
	version string
	timeout time.Duration

	mu     sync.RWMutex
	checks []dependencyCheck
}

// NewHealthChecker creates a health checker reporting the given build version
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version: version,
		timeout: 5 * time.Second,
	}
}

// AddCheck registers a named dependency check
func (h *HealthChecker) AddCheck(name string, required bool, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, dependencyCheck{name: name, required: required, check: check})
}

// AddPinger registers a required dependency checked through PingContext
func (h *HealthChecker) AddPinger(name string, p Pinger) {
	h.AddCheck(name, true, p.PingContext)
}

// AddRedis registers an optional Redis dependency
func (h *HealthChecker) AddRedis(name string, client *redis.Client) {
	h.AddCheck(name, false, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Check runs every registered check and folds the results into one status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make([]dependencyCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	sort.Slice(checks, func(i, j int) bool { return checks[i].name < checks[j].name })

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(checks)),
	}

	for _, c := range checks {
		start := time.Now()
		err := c.check(ctx)
		dep := DependencyStatus{
			Status:    StatusHealthy,
			LatencyMS: time.Since(start).Milliseconds(),
			Timestamp: time.Now().UTC(),
		}
		if err != nil {
			dep.Message = err.Error()
			if c.required {
				dep.Status = StatusUnhealthy
				status.Status = StatusUnhealthy
			} else {
				dep.Status = StatusDegraded
				if status.Status != StatusUnhealthy {
					status.Status = StatusDegraded
				}
			}
		}
		status.Dependencies[c.name] = dep
	}

	return status
}

// Liveness always reports healthy while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness checks every dependency. It returns 503 only when unhealthy.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

func writeHealth(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(r *mux.Router, checker *HealthChecker) {
	r.HandleFunc("/health", checker.Readiness).Methods(http.MethodGet)
	r.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet)
}
