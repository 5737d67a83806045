package scheduler

import (
	"sort"
	"time"

	"github.com/ade/warden/internal/models"
	"github.com/ade/warden/internal/registry"
	"github.com/ade/warden/internal/rules"
)

// NextTask returns the highest-ranked eligible pending task for the given
// agent, or false when nothing is dispatchable. It is a pure read.
func (s *Scheduler) NextTask(agentName string) (models.Task, bool, error) {
	a, err := s.reg.Get(agentName)
	if err != nil {
		return models.Task{}, false, err
	}
	now := time.Now().UTC()
	t, ok := s.nextFor(&a, now)
	return t, ok, nil
}

// nextFor picks the best eligible pending task for an agent at the given
// instant. Pure read over task copies.
func (s *Scheduler) nextFor(a *models.Agent, now time.Time) (models.Task, bool) {
	if !s.healthAllowed(a) {
		return models.Task{}, false
	}

	s.mu.RLock()
	windows := s.windows
	s.mu.RUnlock()

	var best *models.Task
	for _, e := range s.allEntries() {
		e.mu.Lock()
		t := copyTask(e.t)
		e.mu.Unlock()
		if t.Status != models.TaskPending {
			continue
		}
		if !s.eligible(&t, a, now) {
			continue
		}
		if best == nil || rankLess(&t, best, windows, now) {
			tt := t
			best = &tt
		}
	}
	if best == nil {
		return models.Task{}, false
	}
	return *best, true
}

// healthAllowed folds the basic dispatchability check together with the
// plan's minimum-health constraint
func (s *Scheduler) healthAllowed(a *models.Agent) bool {
	if !a.Dispatchable() {
		return false
	}
	s.mu.RLock()
	min := s.global.MinHealth
	s.mu.RUnlock()
	if min == models.HealthHealthy && a.Health != models.HealthHealthy {
		return false
	}
	return true
}

// eligible checks every dispatch condition for a (task, agent) pair:
// capability superset, agent health/status, daily and weekly caps, the
// referenced schedule window, and the task's anti-pattern rules.
func (s *Scheduler) eligible(t *models.Task, a *models.Agent, now time.Time) bool {
	if t.Agent != "" && t.Agent != a.Name {
		return false
	}
	if t.ScheduledFor.After(now) {
		return false
	}
	if tag := t.Constraints.RequiredCapability; tag != "" && !a.HasCapability(tag) {
		return false
	}
	if limit := t.Constraints.DailyCap; limit > 0 && t.EffectiveDaily(now) >= limit {
		return false
	}
	if limit := t.Constraints.WeeklyCap; limit > 0 && t.EffectiveWeekly(now) >= limit {
		return false
	}

	s.mu.RLock()
	windows := s.windows
	s.mu.RUnlock()
	if ref := t.Constraints.Window; ref != "" {
		w, ok := windows[ref]
		if !ok || !w.Contains(now) {
			return false
		}
	}

	if blocked, reason := rules.AnyVeto(t.Rules, s.evalContext(t, a, now)); blocked {
		s.log.Debug().Str("task", t.ID).Str("agent", a.Name).
			Str("reason", reason).Msg("dispatch vetoed")
		return false
	}
	return true
}

// Tick runs one dispatch pass: for every agent not currently running a
// task, pick the best eligible task, start it, and emit the dispatch
// event. The pass is a stateless matching step, safe to re-run; Start
// re-validates under locks so overlapping passes cannot double-assign.
func (s *Scheduler) Tick(now time.Time) {
	s.reapCancelled(now)

	s.mu.RLock()
	runningCount := len(s.byAgent)
	maxConcurrent := s.global.MaxConcurrent
	perCap := s.global.PerCapability
	busy := make(map[string]bool, len(s.byAgent))
	runningIDs := make([]string, 0, len(s.byAgent))
	for agent, id := range s.byAgent {
		busy[agent] = true
		runningIDs = append(runningIDs, id)
	}
	s.mu.RUnlock()

	capCounts := s.runningCapabilityCounts(runningIDs)

	for _, a := range s.reg.Query(registry.Filter{}) {
		if maxConcurrent > 0 && runningCount >= maxConcurrent {
			return
		}
		if busy[a.Name] {
			continue
		}
		ag := a
		t, ok := s.nextFor(&ag, now)
		if !ok {
			continue
		}
		if tag := t.Constraints.RequiredCapability; tag != "" {
			if limit, ok := perCap[tag]; ok && limit > 0 && capCounts[tag] >= limit {
				continue
			}
		}
		if err := s.Start(t.ID, a.Name); err != nil {
			// lost the race to a concurrent pass; nothing to undo
			s.log.Debug().Str("task", t.ID).Str("agent", a.Name).
				Err(err).Msg("dispatch skipped")
			continue
		}
		runningCount++
		if tag := t.Constraints.RequiredCapability; tag != "" {
			capCounts[tag]++
		}
		if s.notify != nil {
			s.notify(Event{TaskID: t.ID, Agent: a.Name, Mode: t.Mode, Params: t.Metadata})
		}
	}
}

// runningCapabilityCounts tallies required capabilities of running tasks
// for the per-capability concurrency caps
func (s *Scheduler) runningCapabilityCounts(ids []string) map[string]int {
	counts := make(map[string]int)
	for _, id := range ids {
		e, err := s.entry(id)
		if err != nil {
			continue
		}
		e.mu.Lock()
		tag := e.t.Constraints.RequiredCapability
		e.mu.Unlock()
		if tag != "" {
			counts[tag]++
		}
	}
	return counts
}

// reapCancelled force-fails running tasks whose cancellation went
// unacknowledged past the grace period
func (s *Scheduler) reapCancelled(now time.Time) {
	for _, e := range s.allEntries() {
		e.mu.Lock()
		if e.t.Status == models.TaskRunning && e.t.CancelRequestedAt != nil &&
			now.Sub(*e.t.CancelRequestedAt) >= s.grace {
			s.log.Warn().Str("task", e.t.ID).Str("agent", e.t.Agent).
				Msg("cancel unacknowledged, forcing failure")
			e.t.CancelRequestedAt = nil
			s.finishLocked(&e.t, now, false, "timeout")
		}
		e.mu.Unlock()
	}
}

// Stats is the aggregate read-only projection for dashboards and exporters
type Stats struct {
	TasksByStatus    map[models.TaskStatus]int  `json:"tasks_by_status"`
	TasksByPriority  map[models.Priority]int    `json:"tasks_by_priority"`
	AgentsByStatus   map[models.AgentStatus]int `json:"agents_by_status"`
	AgentsByHealth   map[models.Health]int      `json:"agents_by_health"`
	QueueDepth       int                        `json:"queue_depth"`
	RunningTasks     int                        `json:"running_tasks"`
	RegisteredAgents int                        `json:"registered_agents"`
}

// Aggregate computes current counts by status, priority, and health
func (s *Scheduler) Aggregate() Stats {
	st := Stats{
		TasksByStatus:   make(map[models.TaskStatus]int),
		TasksByPriority: make(map[models.Priority]int),
		AgentsByStatus:  make(map[models.AgentStatus]int),
		AgentsByHealth:  make(map[models.Health]int),
	}
	for _, t := range s.List(ListFilter{}) {
		st.TasksByStatus[t.Status]++
		st.TasksByPriority[t.Priority]++
		switch t.Status {
		case models.TaskPending:
			st.QueueDepth++
		case models.TaskRunning:
			st.RunningTasks++
		}
	}
	agents := s.reg.Query(registry.Filter{})
	st.RegisteredAgents = len(agents)
	for _, a := range agents {
		st.AgentsByStatus[a.Status]++
		st.AgentsByHealth[a.Health]++
	}
	return st
}

// PendingOrder returns pending task ids in global rank order, mainly for
// inspection from the CLI
func (s *Scheduler) PendingOrder(now time.Time) []models.Task {
	s.mu.RLock()
	windows := s.windows
	s.mu.RUnlock()
	pending := s.List(ListFilter{Status: models.TaskPending})
	sort.Slice(pending, func(i, j int) bool {
		return rankLess(&pending[i], &pending[j], windows, now)
	})
	return pending
}
