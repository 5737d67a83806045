package registry

import (
	"time"

	"github.com/ade/warden/internal/models"
)

// deriveHealth computes agent health from heartbeat recency and metric
// thresholds. Health never comes from a caller directly.
//
//	unknown:  never heartbeated
//	critical: heartbeat age >= 2x interval, or any hard threshold breached
//	warning:  heartbeat age >= interval, or any soft threshold breached
//	healthy:  on-time heartbeat with no breach
func deriveHealth(a *models.Agent, cfg AgentConfig, now time.Time) models.Health {
	if a.LastHeartbeat.IsZero() {
		return models.HealthUnknown
	}
	interval := cfg.interval()
	age := now.Sub(a.LastHeartbeat)
	if age >= 2*interval {
		return models.HealthCritical
	}
	soft := false
	for metric, th := range cfg.Thresholds {
		v, ok := a.Metrics[metric]
		if !ok {
			continue
		}
		if th.Crit > 0 && v >= th.Crit {
			return models.HealthCritical
		}
		if th.Warn > 0 && v >= th.Warn {
			soft = true
		}
	}
	if soft || age >= interval {
		return models.HealthWarning
	}
	return models.HealthHealthy
}
