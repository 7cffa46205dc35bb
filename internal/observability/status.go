package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type Phase string

const (
	PhaseIdle       Phase = "IDLE"
	PhaseOnboarding Phase = "ONBOARDING"
	PhaseWorking    Phase = "WORKING"
	PhaseDone       Phase = "DONE"
	PhaseServing    Phase = "SERVING"
)

type SystemStatus struct {
	mu            sync.RWMutex
	Phase         Phase
	ActiveTask    string
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	Phase:         PhaseIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the global system status.
func SetStatus(phase Phase, task string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.Phase = phase
	globalStatus.ActiveTask = task
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Phase, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.Phase, globalStatus.ActiveTask, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}

// HealthReport is the status served on the health endpoint.
type HealthReport struct {
	Phase         Phase     `json:"phase"`
	ActiveTask    string    `json:"active_task,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	HeartbeatAge  string    `json:"heartbeat_age"`
	Healthy       bool      `json:"healthy"`
}

// Health reports the current status. It is unhealthy once the last
// heartbeat is older than maxAge.
func Health(now time.Time, maxAge time.Duration) HealthReport {
	phase, task, beat := GetStatus()
	age := now.Sub(beat)
	return HealthReport{
		Phase:         phase,
		ActiveTask:    task,
		LastHeartbeat: beat,
		HeartbeatAge:  age.Round(time.Second).String(),
		Healthy:       age <= maxAge,
	}
}

// HealthHandler serves Health as JSON, with 503 when unhealthy.
func HealthHandler(maxAge time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report := Health(time.Now(), maxAge)
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}
