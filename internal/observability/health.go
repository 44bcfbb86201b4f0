package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker tracks liveness and per-dependency readiness. The service
// reports ready only once every registered dependency has checked in.
type HealthChecker struct {
	mu        sync.RWMutex
	deps      map[string]bool
	startTime time.Time
}

func NewHealthChecker(dependencies ...string) *HealthChecker {
	deps := make(map[string]bool, len(dependencies))
	for _, d := range dependencies {
		deps[d] = false
	}
	return &HealthChecker{
		deps:      deps,
		startTime: time.Now(),
	}
}

// SetReady marks one dependency up or down.
func (h *HealthChecker) SetReady(dependency string, ready bool) {
	h.mu.Lock()
	h.deps[dependency] = ready
	h.mu.Unlock()
}

// IsReady reports whether every dependency is up.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ok := range h.deps {
		if !ok {
			return false
		}
	}
	return true
}

// LivenessHandler returns HTTP 200 whenever the process is running.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 once all dependencies are up, 503
// otherwise, listing which dependencies are still down.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	var down []string
	for name, ok := range h.deps {
		if !ok {
			down = append(down, name)
		}
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if len(down) == 0 {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "ready"})
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "not_ready",
		"down":   down,
	})
}
