package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ade/warden/internal/models"
	"github.com/ade/warden/internal/plan"
	"github.com/ade/warden/internal/registry"
)

func TestRankLess(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	windows := map[string]plan.Window{
		"boosted": {Start: "00:00", End: "23:59", Boost: 2.0},
	}

	high := &models.Task{Priority: models.PriorityHigh, Seq: 2, ScheduledFor: now}
	normal := &models.Task{Priority: models.PriorityNormal, Seq: 1, ScheduledFor: now}
	if !rankLess(high, normal, windows, now) {
		t.Error("high must outrank normal regardless of submission order")
	}

	// same priority: an active window boost wins
	boosted := &models.Task{Priority: models.PriorityNormal, Seq: 3, ScheduledFor: now,
		Constraints: models.Constraints{Window: "boosted"}}
	if !rankLess(boosted, normal, windows, now) {
		t.Error("boosted task must outrank its unboosted peer")
	}
	// the boost never promotes across priority buckets
	if rankLess(boosted, high, windows, now) {
		t.Error("a boosted normal task must not outrank high")
	}

	// same priority and boost: earlier scheduled_for wins
	early := &models.Task{Priority: models.PriorityNormal, Seq: 5, ScheduledFor: now.Add(-time.Hour)}
	if !rankLess(early, normal, windows, now) {
		t.Error("earlier scheduled_for must win the tie")
	}

	// full tie: submission order decides
	later := &models.Task{Priority: models.PriorityNormal, Seq: 9, ScheduledFor: now}
	if !rankLess(normal, later, windows, now) {
		t.Error("lower seq must win the final tie")
	}
	if rankLess(later, normal, windows, now) {
		t.Error("ordering must be asymmetric")
	}
}

func TestTick_DispatchesBestTask(t *testing.T) {
	var events []Event
	reg := registry.New(zerolog.Nop())
	s := New(reg, testPlan(), func(ev Event) { events = append(events, ev) }, 0, zerolog.Nop())
	addAgent(t, reg, "w1", "build")

	s.Submit(Spec{Name: "routine"})
	urgent, _ := s.Submit(Spec{Name: "hotfix", Priority: models.PriorityCritical})

	s.Tick(time.Now().UTC())

	got, _ := s.Get(urgent.ID)
	if got.Status != models.TaskRunning || got.Agent != "w1" {
		t.Fatalf("critical task should win the agent: %+v", got)
	}
	if len(events) != 1 || events[0].TaskID != urgent.ID || events[0].Agent != "w1" {
		t.Errorf("expected one dispatch event for the critical task, got %+v", events)
	}

	// one task per agent: the routine job waits
	pending := s.List(ListFilter{Status: models.TaskPending})
	if len(pending) != 1 || pending[0].Name != "routine" {
		t.Errorf("routine task should still be pending: %+v", pending)
	}

	// nothing changes on a second pass while the agent is busy
	s.Tick(time.Now().UTC())
	if len(events) != 1 {
		t.Errorf("busy agent must not receive another task, got %d events", len(events))
	}
}

func TestTick_SkipsUnhealthyAgents(t *testing.T) {
	s, reg := newTestSched(testPlan())
	addAgent(t, reg, "w1", "build")
	reg.SetStatus("w1", models.AgentMaintenance)
	tk, _ := s.Submit(Spec{Name: "job"})

	s.Tick(time.Now().UTC())

	got, _ := s.Get(tk.ID)
	if got.Status != models.TaskPending {
		t.Errorf("maintenance agent must not receive work, got %s", got.Status)
	}
}

func TestTick_MaxConcurrent(t *testing.T) {
	pl := testPlan()
	pl.Constraints.MaxConcurrent = 1
	s, reg := newTestSched(pl)
	addAgent(t, reg, "w1", "build")
	addAgent(t, reg, "w2", "build")
	s.Submit(Spec{Name: "a"})
	s.Submit(Spec{Name: "b"})

	s.Tick(time.Now().UTC())

	running := s.List(ListFilter{Status: models.TaskRunning})
	if len(running) != 1 {
		t.Errorf("expected 1 running with max_concurrent=1, got %d", len(running))
	}
}

func TestTick_PerCapabilityLimit(t *testing.T) {
	pl := testPlan()
	pl.Constraints.PerCapability = map[string]int{"build": 1}
	s, reg := newTestSched(pl)
	addAgent(t, reg, "w1", "build")
	addAgent(t, reg, "w2", "build")
	s.Submit(Spec{Name: "a", Constraints: models.Constraints{RequiredCapability: "build"}})
	s.Submit(Spec{Name: "b", Constraints: models.Constraints{RequiredCapability: "build"}})

	s.Tick(time.Now().UTC())

	running := s.List(ListFilter{Status: models.TaskRunning})
	if len(running) != 1 {
		t.Errorf("expected 1 running build task, got %d", len(running))
	}
}

func TestTick_MinHealthRestriction(t *testing.T) {
	pl := testPlan()
	pl.Constraints.MinHealth = models.HealthHealthy
	s, reg := newTestSched(pl)

	// degrade the agent to warning: one interval stale but not yet two
	reg.Register("w1", "m1", "", []string{"build"}, registry.AgentConfig{HeartbeatInterval: 10 * time.Minute}, false)
	reg.Heartbeat("w1", models.AgentIdle, "", nil)
	reg.Sweep(time.Now().UTC().Add(11 * time.Minute))

	tk, _ := s.Submit(Spec{Name: "picky"})
	s.Tick(time.Now().UTC())

	got, _ := s.Get(tk.ID)
	if got.Status != models.TaskPending {
		t.Errorf("min_health healthy must exclude degraded agents, got %s", got.Status)
	}
}

func TestEligible_PinnedAgent(t *testing.T) {
	s, reg := newTestSched(testPlan())
	addAgent(t, reg, "w1", "build")
	addAgent(t, reg, "w2", "build")
	tk, _ := s.Submit(Spec{Name: "pinned", Agent: "w2"})

	if _, ok, _ := s.NextTask("w1"); ok {
		t.Error("a task pinned to w2 must not be offered to w1")
	}
	next, ok, err := s.NextTask("w2")
	if err != nil || !ok || next.ID != tk.ID {
		t.Errorf("pinned task should be offered to w2: %v %v", ok, err)
	}
}

func TestEligible_Capability(t *testing.T) {
	s, reg := newTestSched(testPlan())
	addAgent(t, reg, "w1", "scan")
	addAgent(t, reg, "w2", "build")
	s.Submit(Spec{Name: "compile", Constraints: models.Constraints{RequiredCapability: "build"}})

	if _, ok, _ := s.NextTask("w1"); ok {
		t.Error("agent without the capability must not be offered the task")
	}
	if _, ok, _ := s.NextTask("w2"); !ok {
		t.Error("agent with the capability should be offered the task")
	}
}

func TestEligible_ScheduledFor(t *testing.T) {
	s, reg := newTestSched(testPlan())
	addAgent(t, reg, "w1", "build")
	s.Submit(Spec{Name: "tomorrow", ScheduledFor: time.Now().UTC().Add(24 * time.Hour)})

	if _, ok, _ := s.NextTask("w1"); ok {
		t.Error("a task scheduled for tomorrow must not dispatch today")
	}
}

func TestEligible_DailyCap(t *testing.T) {
	s, reg := newTestSched(testPlan())
	addAgent(t, reg, "w1", "build")
	now := time.Now().UTC()

	tk, _ := s.Submit(Spec{Name: "capped", Constraints: models.Constraints{DailyCap: 1}})
	got, _ := s.Get(tk.ID)

	// exhausted today: not eligible
	got.DailyCount = 1
	got.DailyAnchor = now
	s.RestoreTasks([]models.Task{got})
	if _, ok, _ := s.NextTask("w1"); ok {
		t.Error("daily cap reached today must block dispatch")
	}

	// the same count anchored yesterday has lapsed
	got.DailyAnchor = now.AddDate(0, 0, -1)
	s.RestoreTasks([]models.Task{got})
	if _, ok, _ := s.NextTask("w1"); !ok {
		t.Error("a stale daily anchor means the counter reset at midnight UTC")
	}
}

func TestEligible_DailyCapRule(t *testing.T) {
	s, reg := newTestSched(testPlan())
	addAgent(t, reg, "w1", "build")
	now := time.Now().UTC()

	tk, _ := s.Submit(Spec{Name: "capped",
		Rules: []models.Rule{{Type: models.RuleDailyCap, Cap: 1}}})
	got, _ := s.Get(tk.ID)

	got.DailyCount = 1
	got.DailyAnchor = now
	s.RestoreTasks([]models.Task{got})
	if _, ok, _ := s.NextTask("w1"); ok {
		t.Error("daily cap rule reached today must veto dispatch")
	}

	// counters only re-anchor on completion, which a vetoed task never
	// reaches, so the rule must observe the boundary on its own
	got.DailyAnchor = now.AddDate(0, 0, -1)
	s.RestoreTasks([]models.Task{got})
	if _, ok, _ := s.NextTask("w1"); !ok {
		t.Error("daily cap rule must lift once the anchor crosses midnight UTC")
	}
}

func TestEligible_WindowConstraint(t *testing.T) {
	pl := testPlan()
	pl.Windows["lunch"] = plan.Window{Start: "12:00", End: "13:00"}
	s, reg := newTestSched(pl)
	addAgent(t, reg, "w1", "build")
	tk, _ := s.Submit(Spec{Name: "windowed", Constraints: models.Constraints{Window: "lunch"}})

	got, _ := s.Get(tk.ID)
	a, _ := reg.Get("w1")

	inside := time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC)
	outside := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	if !s.eligible(&got, &a, inside) {
		t.Error("12:30 is inside the lunch window")
	}
	if s.eligible(&got, &a, outside) {
		t.Error("15:00 is outside the lunch window")
	}
}

func TestAggregate(t *testing.T) {
	s, reg := newTestSched(testPlan())
	addAgent(t, reg, "w1", "build")
	a, _ := s.Submit(Spec{Name: "a"})
	s.Submit(Spec{Name: "b"})
	s.Start(a.ID, "w1")

	st := s.Aggregate()
	if st.RegisteredAgents != 1 {
		t.Errorf("expected 1 agent, got %d", st.RegisteredAgents)
	}
	if st.QueueDepth != 1 || st.RunningTasks != 1 {
		t.Errorf("expected 1 queued / 1 running, got %d / %d", st.QueueDepth, st.RunningTasks)
	}
	if st.TasksByStatus[models.TaskRunning] != 1 || st.TasksByStatus[models.TaskPending] != 1 {
		t.Errorf("status counts wrong: %+v", st.TasksByStatus)
	}
	if st.AgentsByHealth[models.HealthHealthy] != 1 {
		t.Errorf("health counts wrong: %+v", st.AgentsByHealth)
	}
}

func TestPendingOrder(t *testing.T) {
	s, _ := newTestSched(testPlan())
	s.Submit(Spec{Name: "low", Priority: models.PriorityLow})
	s.Submit(Spec{Name: "crit", Priority: models.PriorityCritical})
	s.Submit(Spec{Name: "norm"})

	order := s.PendingOrder(time.Now().UTC())
	if len(order) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(order))
	}
	if order[0].Name != "crit" || order[1].Name != "norm" || order[2].Name != "low" {
		t.Errorf("wrong order: %s, %s, %s", order[0].Name, order[1].Name, order[2].Name)
	}
}

func TestNextTask_UnknownAgent(t *testing.T) {
	s, _ := newTestSched(testPlan())
	if _, _, err := s.NextTask("ghost"); !errors.Is(err, registry.ErrUnknownAgent) {
		t.Errorf("expected ErrUnknownAgent, got %v", err)
	}
}
