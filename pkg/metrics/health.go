package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Overall states reported by /health and /ready
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// HealthStatus is the body of the /health and /ready responses
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// CriticalComponents must all be registered and healthy for the unit to be
// ready. Any other unhealthy component only degrades /health.
var CriticalComponents = []string{"storage", "peer", "reconciler"}

// ComponentHealth is the last reported state of one component
type ComponentHealth struct {
	Healthy bool
	Message string
	Updated time.Time
}

type registry struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	started    time.Time
	version    string
}

var components = newRegistry()

func newRegistry() *registry {
	return &registry{
		components: make(map[string]ComponentHealth),
		started:    time.Now(),
	}
}

func isCritical(name string) bool {
	for _, c := range CriticalComponents {
		if c == name {
			return true
		}
	}
	return false
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	components.mu.Lock()
	components.version = version
	components.mu.Unlock()
}

// RegisterComponent records the state of a component
func RegisterComponent(name string, healthy bool, message string) {
	components.mu.Lock()
	defer components.mu.Unlock()

	components.components[name] = ComponentHealth{
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent is RegisterComponent for an already registered component
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

func (r *registry) status(state, message string, comps map[string]string) HealthStatus {
	return HealthStatus{
		Status:     state,
		Timestamp:  time.Now(),
		Components: comps,
		Message:    message,
		Version:    r.version,
		Uptime:     time.Since(r.started).Round(time.Second).String(),
	}
}

// GetHealth reports unhealthy when a critical component is unhealthy and
// degraded when only other components are.
func GetHealth() HealthStatus {
	components.mu.RLock()
	defer components.mu.RUnlock()

	state := StatusHealthy
	comps := make(map[string]string, len(components.components))
	for name, comp := range components.components {
		if comp.Healthy {
			comps[name] = StatusHealthy
			continue
		}
		comps[name] = StatusUnhealthy + ": " + comp.Message
		if isCritical(name) {
			state = StatusUnhealthy
		} else if state == StatusHealthy {
			state = StatusDegraded
		}
	}
	return components.status(state, "", comps)
}

// GetReadiness reports ready once every critical component is registered
// and healthy. The message names the first component still waited on.
func GetReadiness() HealthStatus {
	components.mu.RLock()
	defer components.mu.RUnlock()

	state := StatusReady
	var waiting []string
	comps := make(map[string]string, len(CriticalComponents))
	for _, name := range CriticalComponents {
		comp, ok := components.components[name]
		switch {
		case !ok:
			comps[name] = "not registered"
		case !comp.Healthy:
			comps[name] = "not ready: " + comp.Message
		default:
			comps[name] = StatusReady
			continue
		}
		state = StatusNotReady
		waiting = append(waiting, name)
	}

	message := ""
	if len(waiting) > 0 {
		sort.Strings(waiting)
		message = "waiting for " + waiting[0]
	}
	return components.status(state, message, comps)
}

func writeStatus(w http.ResponseWriter, status HealthStatus, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// HealthHandler serves /health. A degraded unit still answers 200.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()
		writeStatus(w, health, health.Status != StatusUnhealthy)
	}
}

// ReadyHandler serves /ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := GetReadiness()
		writeStatus(w, ready, ready.Status == StatusReady)
	}
}

// LivenessHandler always answers 200 while the process runs
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components.mu.RLock()
		uptime := time.Since(components.started).Round(time.Second)
		components.mu.RUnlock()

		writeStatus(w, HealthStatus{Status: "alive", Timestamp: time.Now(), Uptime: uptime.String()}, true)
	}
}
