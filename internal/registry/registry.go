package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ade/warden/internal/models"
	"github.com/ade/warden/internal/plan"
)

var (
	// ErrDuplicateAgent is returned when registering a name that already exists
	ErrDuplicateAgent = errors.New("agent already registered")
	// ErrUnknownAgent is returned for operations on an unregistered name
	ErrUnknownAgent = errors.New("agent not registered")
)

// DefaultHeartbeatInterval applies to agents whose plan entry does not set one
const DefaultHeartbeatInterval = 30 * time.Second

// offlineMultiplier: heartbeat age at which the sweep marks an agent offline,
// expressed in heartbeat intervals. Health is already critical at 2x.
const offlineMultiplier = 3

// AgentConfig carries the per-agent settings the registry needs to derive
// health. It comes from the fleet plan, or defaults for ad-hoc registrations.
type AgentConfig struct {
	HeartbeatInterval time.Duration
	Thresholds        map[string]plan.Threshold
}

func (c AgentConfig) interval() time.Duration {
	if c.HeartbeatInterval <= 0 {
		return DefaultHeartbeatInterval
	}
	return c.HeartbeatInterval
}

// entry pairs an agent with its own lock so heartbeats for different agents
// never serialize against each other
type entry struct {
	mu    sync.Mutex
	agent models.Agent
	cfg   AgentConfig
}

// Registry holds the live set of agents. The registry-level lock guards only
// the map structure; all per-agent mutation happens under the entry lock.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*entry
	log    zerolog.Logger
}

// New creates an empty registry
func New(log zerolog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*entry),
		log:    log.With().Str("component", "registry").Logger(),
	}
}

// Filter selects agents for Query. Zero values match everything.
type Filter struct {
	Capability string
	Status     models.AgentStatus
	Health     models.Health
}

// Register creates a new agent record. Registering an existing name fails
// with ErrDuplicateAgent unless replace is set.
func (r *Registry) Register(name, machineID, windowID string, capabilities []string, cfg AgentConfig, replace bool) error {
	if name == "" {
		return errors.New("agent name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[name]; ok && !replace {
		return ErrDuplicateAgent
	}
	r.agents[name] = &entry{
		agent: models.Agent{
			Name:         name,
			MachineID:    machineID,
			WindowID:     windowID,
			Status:       models.AgentOffline,
			Health:       models.HealthUnknown,
			Capabilities: append([]string(nil), capabilities...),
			Metrics:      make(map[string]float64),
			RegisteredAt: time.Now().UTC(),
		},
		cfg: cfg,
	}
	r.log.Info().Str("agent", name).Str("machine", machineID).Msg("agent registered")
	return nil
}

// Unregister removes an agent record. Task history elsewhere that references
// the name is left untouched.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[name]; !ok {
		return ErrUnknownAgent
	}
	delete(r.agents, name)
	r.log.Info().Str("agent", name).Msg("agent unregistered")
	return nil
}

func (r *Registry) entry(name string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.agents[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownAgent
	}
	return e, nil
}

// Heartbeat applies a status/metric report from an agent and recomputes its
// health. It fails with ErrUnknownAgent for unregistered names.
func (r *Registry) Heartbeat(name string, status models.AgentStatus, mode string, metrics map[string]float64) error {
	if status != "" && !status.Valid() {
		return errors.New("invalid agent status")
	}
	e, err := r.entry(name)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()
	a := &e.agent
	if !a.LastHeartbeat.IsZero() {
		gap := now.Sub(a.LastHeartbeat)
		if gap <= 2*e.cfg.interval() {
			a.Uptime += gap
		}
	}
	a.LastHeartbeat = now
	if status != "" {
		a.Status = status
	}
	a.Mode = mode
	if a.Metrics == nil {
		a.Metrics = make(map[string]float64)
	}
	for k, v := range metrics {
		a.Metrics[k] = v
	}
	a.Health = deriveHealth(a, e.cfg, now)
	return nil
}

// MergeMetrics folds externally reported metric values into an agent's
// latest readings and recomputes health. Unlike Heartbeat it does not touch
// heartbeat recency, status, or mode, so a task completion report never
// masks a stale agent.
func (r *Registry) MergeMetrics(name string, metrics map[string]float64) error {
	e, err := r.entry(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	a := &e.agent
	if a.Metrics == nil {
		a.Metrics = make(map[string]float64)
	}
	for k, v := range metrics {
		a.Metrics[k] = v
	}
	a.Health = deriveHealth(a, e.cfg, time.Now().UTC())
	return nil
}

// SetStatus applies an operator status override, e.g. maintenance
func (r *Registry) SetStatus(name string, status models.AgentStatus) error {
	if !status.Valid() {
		return errors.New("invalid agent status")
	}
	e, err := r.entry(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.agent.Status = status
	e.mu.Unlock()
	r.log.Info().Str("agent", name).Str("status", string(status)).Msg("agent status set")
	return nil
}

// Retire marks an agent ineligible for new dispatch without deleting it.
// Used when a reloaded plan no longer lists the agent.
func (r *Registry) Retire(name string) error {
	e, err := r.entry(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.agent.Retired = true
	e.mu.Unlock()
	r.log.Info().Str("agent", name).Msg("agent retired")
	return nil
}

// Unretire restores dispatch eligibility for a previously retired agent
func (r *Registry) Unretire(name string) error {
	e, err := r.entry(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.agent.Retired = false
	e.mu.Unlock()
	return nil
}

// UpdateConfig replaces an agent's heartbeat/threshold settings. Applies
// prospectively; the next heartbeat or sweep uses the new values.
func (r *Registry) UpdateConfig(name string, cfg AgentConfig) error {
	e, err := r.entry(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	return nil
}

// Get returns a copy of the named agent
func (r *Registry) Get(name string) (models.Agent, error) {
	e, err := r.entry(name)
	if err != nil {
		return models.Agent{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyAgent(e.agent), nil
}

// Query returns copies of all agents matching the filter, ordered by name
func (r *Registry) Query(f Filter) []models.Agent {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]models.Agent, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		a := copyAgent(e.agent)
		e.mu.Unlock()
		if f.Capability != "" && !a.HasCapability(f.Capability) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Health != "" && a.Health != f.Health {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CheckHealth recomputes and returns the agent's health immediately,
// without waiting for the periodic sweep
func (r *Registry) CheckHealth(name string) (models.Health, error) {
	e, err := r.entry(name)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agent.Health = deriveHealth(&e.agent, e.cfg, time.Now().UTC())
	return e.agent.Health, nil
}

// RecordResult folds a task outcome into the owning agent's statistics.
// Unknown names are ignored; task history may outlive the agent.
func (r *Registry) RecordResult(name string, success bool, errMsg string) {
	e, err := r.entry(name)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if success {
		e.agent.TasksCompleted++
		return
	}
	e.agent.TasksFailed++
	e.agent.ErrorCount++
	e.agent.LastError = errMsg
}

// Sweep recomputes health for every agent and marks agents offline once
// their heartbeat staleness crosses the offline threshold. It runs on its
// own fixed period so health degrades even when nobody queries it.
func (r *Registry) Sweep(now time.Time) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		a := &e.agent
		prev := a.Health
		a.Health = deriveHealth(a, e.cfg, now)
		if a.Health != prev {
			r.log.Debug().Str("agent", a.Name).
				Str("from", string(prev)).Str("to", string(a.Health)).
				Msg("health changed")
		}
		if !a.LastHeartbeat.IsZero() &&
			now.Sub(a.LastHeartbeat) >= offlineMultiplier*e.cfg.interval() &&
			a.Status != models.AgentMaintenance && a.Status != models.AgentOffline {
			a.Status = models.AgentOffline
			r.log.Warn().Str("agent", a.Name).
				Time("last_heartbeat", a.LastHeartbeat).
				Msg("agent marked offline")
		}
		e.mu.Unlock()
	}
}

// Snapshot returns copies of all agents for persistence
func (r *Registry) Snapshot() []models.Agent {
	return r.Query(Filter{})
}

// Restore reinstates an agent from a persisted snapshot, replacing any
// record with the same name
func (r *Registry) Restore(a models.Agent, cfg AgentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Name] = &entry{agent: copyAgent(a), cfg: cfg}
}

func copyAgent(a models.Agent) models.Agent {
	out := a
	out.Capabilities = append([]string(nil), a.Capabilities...)
	if a.Metrics != nil {
		out.Metrics = make(map[string]float64, len(a.Metrics))
		for k, v := range a.Metrics {
			out.Metrics[k] = v
		}
	}
	if a.Session != nil {
		out.Session = make(map[string]string, len(a.Session))
		for k, v := range a.Session {
			out.Session[k] = v
		}
	}
	return out
}
