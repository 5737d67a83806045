package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ade/warden/internal/models"
	"github.com/ade/warden/internal/plan"
	"github.com/ade/warden/internal/registry"
	"github.com/ade/warden/internal/rules"
)

var (
	// ErrUnknownTask is returned for operations on an id that does not exist
	ErrUnknownTask = errors.New("task not found")
	// ErrInvalidTask is returned when a submitted spec fails validation
	ErrInvalidTask = errors.New("invalid task")
	// ErrInvalidTransition is returned when an operation does not apply to
	// the task's current status
	ErrInvalidTransition = errors.New("invalid task transition")
	// ErrAgentBusy is returned when starting a task on an agent that is
	// already running one
	ErrAgentBusy = errors.New("agent already running a task")
)

// DefaultCancelGrace is how long a cancelled running task may wait for
// executor acknowledgment before being forced to failed
const DefaultCancelGrace = 5 * time.Minute

// failureHorizon bounds how long failure timestamps are retained
const failureHorizon = 7 * 24 * time.Hour

// Event is the outbound dispatch notification emitted when a task
// transitions to running. Consumers must not block.
type Event struct {
	TaskID string            `json:"task_id"`
	Agent  string            `json:"agent"`
	Mode   string            `json:"mode,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// taskEntry pairs a task with its own lock so transitions for different
// tasks never serialize against each other
type taskEntry struct {
	mu sync.Mutex
	t  models.Task
}

// Scheduler owns the task queue and status machine. The scheduler-level
// lock guards only the task map, the agent assignment index, and the plan
// state; per-task mutation happens under the entry lock.
//
// Lock order is entry.mu before s.mu, never the reverse.
type Scheduler struct {
	mu      sync.RWMutex
	tasks   map[string]*taskEntry
	byAgent map[string]string // agent name -> running task id
	lastRun map[string]time.Time
	seq     uint64

	windows map[string]plan.Window
	caps    map[string]struct{}
	global  plan.GlobalConstraints

	reg    *registry.Registry
	notify func(Event)
	grace  time.Duration
	log    zerolog.Logger
}

// New creates a scheduler bound to a registry and the current fleet plan.
// notify may be nil; grace <= 0 selects DefaultCancelGrace.
func New(reg *registry.Registry, pl *plan.Plan, notify func(Event), grace time.Duration, log zerolog.Logger) *Scheduler {
	if grace <= 0 {
		grace = DefaultCancelGrace
	}
	s := &Scheduler{
		tasks:   make(map[string]*taskEntry),
		byAgent: make(map[string]string),
		lastRun: make(map[string]time.Time),
		reg:     reg,
		notify:  notify,
		grace:   grace,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
	s.Reload(pl)
	return s
}

// Reload swaps in a new plan's windows, capability set, and global
// constraints. Applies prospectively to future scheduling decisions only.
func (s *Scheduler) Reload(pl *plan.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pl == nil {
		s.windows = map[string]plan.Window{}
		s.caps = map[string]struct{}{}
		s.global = plan.GlobalConstraints{}
		return
	}
	s.windows = pl.Windows
	s.caps = pl.Capabilities()
	s.global = pl.Constraints
}

// Spec is the input to Submit
type Spec struct {
	Name         string             `json:"name"`
	Mode         string             `json:"mode,omitempty"`
	Agent        string             `json:"agent,omitempty"`
	Priority     models.Priority    `json:"priority,omitempty"`
	ScheduledFor time.Time          `json:"scheduled_for,omitempty"`
	Estimated    time.Duration      `json:"estimated,omitempty"`
	Constraints  models.Constraints `json:"constraints,omitempty"`
	Rules        []models.Rule      `json:"rules,omitempty"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
}

// Submit validates the spec, assigns an id, and inserts the task as pending
func (s *Scheduler) Submit(spec Spec) (models.Task, error) {
	if spec.Name == "" {
		return models.Task{}, fmt.Errorf("%w: name is required", ErrInvalidTask)
	}
	if spec.Priority == "" {
		spec.Priority = models.PriorityNormal
	}
	if !spec.Priority.Valid() {
		return models.Task{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, spec.Priority)
	}
	for _, r := range spec.Rules {
		if !r.Type.Valid() {
			return models.Task{}, fmt.Errorf("%w: unknown rule type %q", ErrInvalidTask, r.Type)
		}
		if r.Type == models.RuleIdleBlock {
			if err := plan.ValidClock(r.Start); err != nil {
				return models.Task{}, fmt.Errorf("%w: idle_block: %v", ErrInvalidTask, err)
			}
			if err := plan.ValidClock(r.End); err != nil {
				return models.Task{}, fmt.Errorf("%w: idle_block: %v", ErrInvalidTask, err)
			}
		}
	}

	s.mu.Lock()
	if tag := spec.Constraints.RequiredCapability; tag != "" {
		if _, ok := s.caps[tag]; !ok {
			s.mu.Unlock()
			return models.Task{}, fmt.Errorf("%w: capability %q not in fleet plan", ErrInvalidTask, tag)
		}
	}
	if w := spec.Constraints.Window; w != "" {
		if _, ok := s.windows[w]; !ok {
			s.mu.Unlock()
			return models.Task{}, fmt.Errorf("%w: window %q not in fleet plan", ErrInvalidTask, w)
		}
	}
	for _, r := range spec.Rules {
		if r.Type == models.RuleTimeWindow {
			if _, ok := s.windows[r.Window]; !ok {
				s.mu.Unlock()
				return models.Task{}, fmt.Errorf("%w: window %q not in fleet plan", ErrInvalidTask, r.Window)
			}
		}
	}
	now := time.Now().UTC()
	s.seq++
	t := models.Task{
		ID:           uuid.NewString(),
		Name:         spec.Name,
		Mode:         spec.Mode,
		Agent:        spec.Agent,
		Priority:     spec.Priority,
		Status:       models.TaskPending,
		CreatedAt:    now,
		ScheduledFor: spec.ScheduledFor,
		Estimated:    spec.Estimated,
		Constraints:  spec.Constraints,
		Rules:        spec.Rules,
		Metadata:     spec.Metadata,
		Seq:          s.seq,
	}
	if t.ScheduledFor.IsZero() {
		t.ScheduledFor = now
	}
	s.tasks[t.ID] = &taskEntry{t: t}
	s.mu.Unlock()

	s.log.Info().Str("task", t.ID).Str("name", t.Name).
		Str("priority", string(t.Priority)).Msg("task submitted")
	return t, nil
}

func (s *Scheduler) entry(id string) (*taskEntry, error) {
	s.mu.RLock()
	e, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownTask
	}
	return e, nil
}

// Get returns a copy of the task with the given id
func (s *Scheduler) Get(id string) (models.Task, error) {
	e, err := s.entry(id)
	if err != nil {
		return models.Task{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyTask(e.t), nil
}

// ListFilter selects tasks for List. Zero values match everything.
type ListFilter struct {
	Status   models.TaskStatus
	Agent    string
	Priority models.Priority
}

// List returns copies of all tasks matching the filter in submission order
func (s *Scheduler) List(f ListFilter) []models.Task {
	entries := s.allEntries()
	out := make([]models.Task, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		t := copyTask(e.t)
		e.mu.Unlock()
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Agent != "" && t.Agent != f.Agent {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (s *Scheduler) allEntries() []*taskEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*taskEntry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	return entries
}

// Start transitions a pending task to running on the given agent. The
// assignment index update is atomic with the status change, so at most one
// agent ever holds a given task and an agent never runs two tasks at once.
func (s *Scheduler) Start(id, agent string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.t.Status != models.TaskPending {
		return fmt.Errorf("%w: cannot start %s task", ErrInvalidTransition, e.t.Status)
	}
	if agent == "" {
		agent = e.t.Agent
	}
	if agent == "" {
		return fmt.Errorf("%w: no agent assigned", ErrInvalidTransition)
	}

	s.mu.Lock()
	if running, busy := s.byAgent[agent]; busy {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s runs %s", ErrAgentBusy, agent, running)
	}
	s.byAgent[agent] = id
	s.mu.Unlock()

	now := time.Now().UTC()
	e.t.Status = models.TaskRunning
	e.t.Agent = agent
	e.t.StartedAt = &now
	s.log.Info().Str("task", id).Str("agent", agent).Msg("task started")
	return nil
}

// Complete records the outcome of a running task reported by the executor.
// A task whose cancellation was requested lands in cancelled regardless of
// the reported outcome; executor failures are recorded, never propagated.
func (s *Scheduler) Complete(id string, success bool, errMsg string, metrics map[string]float64) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.t.Status != models.TaskRunning {
		return fmt.Errorf("%w: cannot complete %s task", ErrInvalidTransition, e.t.Status)
	}
	now := time.Now().UTC()
	s.finishLocked(&e.t, now, success, errMsg)
	if len(metrics) > 0 && e.t.Agent != "" {
		// fold executor-reported metrics into the agent's latest values
		// without counting the report as a liveness signal
		_ = s.reg.MergeMetrics(e.t.Agent, metrics)
	}
	return nil
}

// finishLocked applies the terminal transition for a running task. Caller
// holds the entry lock.
func (s *Scheduler) finishLocked(t *models.Task, now time.Time, success bool, errMsg string) {
	t.CompletedAt = &now
	if t.StartedAt != nil {
		t.Actual = now.Sub(*t.StartedAt)
	}

	switch {
	case t.CancelRequestedAt != nil:
		t.Status = models.TaskCancelled
	case success:
		t.Status = models.TaskCompleted
		rollCounters(t, now)
		t.DailyCount++
		t.WeeklyCount++
	default:
		t.Status = models.TaskFailed
		t.ErrorCount++
		t.LastError = errMsg
		t.FailureTimes = appendFailure(t.FailureTimes, now)
	}

	s.mu.Lock()
	if t.Agent != "" && s.byAgent[t.Agent] == t.ID {
		delete(s.byAgent, t.Agent)
	}
	if t.Status != models.TaskCancelled {
		s.lastRun[t.Name] = now
	}
	s.mu.Unlock()

	if t.Agent != "" && t.Status != models.TaskCancelled {
		s.reg.RecordResult(t.Agent, success, errMsg)
	}
	s.log.Info().Str("task", t.ID).Str("agent", t.Agent).
		Str("status", string(t.Status)).Dur("actual", t.Actual).
		Msg("task finished")
}

// Cancel requests cancellation. Pending tasks cancel immediately; for
// running tasks only an intent flag is set and the task stays running until
// the executor acknowledges via Complete, or the grace period expires.
func (s *Scheduler) Cancel(id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now().UTC()
	switch e.t.Status {
	case models.TaskPending:
		e.t.Status = models.TaskCancelled
		e.t.CompletedAt = &now
		s.log.Info().Str("task", id).Msg("pending task cancelled")
		return nil
	case models.TaskRunning:
		if e.t.CancelRequestedAt == nil {
			e.t.CancelRequestedAt = &now
			s.log.Info().Str("task", id).Str("agent", e.t.Agent).
				Msg("cancel requested, awaiting executor ack")
		}
		return nil
	default:
		return fmt.Errorf("%w: cannot cancel %s task", ErrInvalidTransition, e.t.Status)
	}
}

// Pause transitions a pending task to paused
func (s *Scheduler) Pause(id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.t.Status != models.TaskPending {
		return fmt.Errorf("%w: cannot pause %s task", ErrInvalidTransition, e.t.Status)
	}
	e.t.Status = models.TaskPaused
	return nil
}

// Resume transitions a paused task back to pending
func (s *Scheduler) Resume(id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.t.Status != models.TaskPaused {
		return fmt.Errorf("%w: cannot resume %s task", ErrInvalidTransition, e.t.Status)
	}
	e.t.Status = models.TaskPending
	return nil
}

// ClearFailures is the administrative force-clear for the recent-failure
// cooldown: it drops the task's failure history so the rule stops vetoing.
func (s *Scheduler) ClearFailures(id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.t.FailureTimes = nil
	e.mu.Unlock()
	s.log.Info().Str("task", id).Msg("failure history cleared")
	return nil
}

// Snapshot returns copies of all tasks for persistence
func (s *Scheduler) Snapshot() []models.Task {
	return s.List(ListFilter{})
}

// RestoreTasks reinstates tasks from a persisted snapshot and rebuilds the
// assignment index and last-run history from them
func (s *Scheduler) RestoreTasks(tasks []models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		s.tasks[t.ID] = &taskEntry{t: copyTask(t)}
		if t.Seq > s.seq {
			s.seq = t.Seq
		}
		if t.Status == models.TaskRunning && t.Agent != "" {
			s.byAgent[t.Agent] = t.ID
		}
		if t.CompletedAt != nil && t.Status != models.TaskCancelled {
			if last, ok := s.lastRun[t.Name]; !ok || t.CompletedAt.After(last) {
				s.lastRun[t.Name] = *t.CompletedAt
			}
		}
	}
}

func (s *Scheduler) lastRunFor(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastRun[name]
	return t, ok
}

func appendFailure(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-failureHorizon)
	kept := times[:0]
	for _, ft := range times {
		if ft.After(cutoff) {
			kept = append(kept, ft)
		}
	}
	return append(kept, now)
}

func copyTask(t models.Task) models.Task {
	out := t
	out.Rules = append([]models.Rule(nil), t.Rules...)
	out.FailureTimes = append([]time.Time(nil), t.FailureTimes...)
	if t.Metadata != nil {
		out.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	if t.StartedAt != nil {
		v := *t.StartedAt
		out.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		out.CompletedAt = &v
	}
	if t.CancelRequestedAt != nil {
		v := *t.CancelRequestedAt
		out.CancelRequestedAt = &v
	}
	return out
}

// evalContext builds the rule evaluation context for a (task, agent) pair
func (s *Scheduler) evalContext(t *models.Task, a *models.Agent, now time.Time) rules.Context {
	s.mu.RLock()
	windows := s.windows
	s.mu.RUnlock()
	return rules.Context{
		Now:     now,
		Agent:   a,
		Task:    t,
		Windows: windows,
		LastRun: s.lastRunFor,
	}
}
