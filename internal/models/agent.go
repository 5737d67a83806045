package models

import "time"

// AgentStatus represents the reported status of an agent
type AgentStatus string

const (
	AgentOnline      AgentStatus = "online"
	AgentOffline     AgentStatus = "offline"
	AgentBusy        AgentStatus = "busy"
	AgentIdle        AgentStatus = "idle"
	AgentError       AgentStatus = "error"
	AgentMaintenance AgentStatus = "maintenance"
)

// Valid reports whether s is one of the known agent statuses
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentOnline, AgentOffline, AgentBusy, AgentIdle, AgentError, AgentMaintenance:
		return true
	}
	return false
}

// Health represents derived agent health. It is never set directly by
// callers; the registry computes it from heartbeat recency and metric
// thresholds.
type Health string

const (
	HealthUnknown  Health = "unknown"
	HealthHealthy  Health = "healthy"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// Agent represents a registered worker agent
type Agent struct {
	Name           string             `json:"name"`
	MachineID      string             `json:"machine_id"`
	WindowID       string             `json:"window_id"`
	Status         AgentStatus        `json:"status"`
	Health         Health             `json:"health"`
	Capabilities   []string           `json:"capabilities"`
	Mode           string             `json:"mode,omitempty"`
	LastHeartbeat  time.Time          `json:"last_heartbeat"`
	Uptime         time.Duration      `json:"uptime"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
	ErrorCount     int                `json:"error_count"`
	LastError      string             `json:"last_error,omitempty"`
	RegisteredAt   time.Time          `json:"registered_at"`
	Session        map[string]string  `json:"session,omitempty"`
	Retired        bool               `json:"retired,omitempty"`
	TasksCompleted int                `json:"tasks_completed"`
	TasksFailed    int                `json:"tasks_failed"`
}

// HasCapability reports whether the agent carries the given capability tag
func (a *Agent) HasCapability(tag string) bool {
	for _, c := range a.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// Dispatchable reports whether the agent may receive new work. Explicit
// maintenance/offline status and retirement always win over derived health.
func (a *Agent) Dispatchable() bool {
	if a.Retired {
		return false
	}
	switch a.Status {
	case AgentOffline, AgentMaintenance, AgentError:
		return false
	}
	return a.Health == HealthHealthy || a.Health == HealthWarning
}
