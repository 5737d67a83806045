package rules

import (
	"testing"
	"time"

	"github.com/ade/warden/internal/models"
	"github.com/ade/warden/internal/plan"
)

var noon = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func TestRecentFailure(t *testing.T) {
	r := models.Rule{Type: models.RuleRecentFailure, Timeout: time.Hour, MaxFailures: 3}
	task := &models.Task{Name: "deploy"}
	ctx := Context{Now: noon, Task: task}

	// two recent failures: under the threshold
	task.FailureTimes = []time.Time{noon.Add(-10 * time.Minute), noon.Add(-5 * time.Minute)}
	if blocked, _ := Veto(r, ctx); blocked {
		t.Error("two failures should not trip a max of three")
	}

	// third failure trips it
	task.FailureTimes = append(task.FailureTimes, noon.Add(-time.Minute))
	blocked, reason := Veto(r, ctx)
	if !blocked {
		t.Error("three failures within the hour should veto")
	}
	if reason == "" {
		t.Error("veto should carry a reason")
	}

	// failures older than the timeout fall out of the count
	task.FailureTimes = []time.Time{
		noon.Add(-2 * time.Hour),
		noon.Add(-90 * time.Minute),
		noon.Add(-5 * time.Minute),
	}
	if blocked, _ := Veto(r, ctx); blocked {
		t.Error("only one failure is inside the window, should not veto")
	}
}

func TestRecentFailure_ClearedHistory(t *testing.T) {
	r := models.Rule{Type: models.RuleRecentFailure, Timeout: time.Hour, MaxFailures: 1}
	task := &models.Task{Name: "deploy", FailureTimes: []time.Time{noon.Add(-time.Minute)}}
	ctx := Context{Now: noon, Task: task}

	if blocked, _ := Veto(r, ctx); !blocked {
		t.Fatal("expected veto before clearing")
	}
	task.FailureTimes = nil
	if blocked, _ := Veto(r, ctx); blocked {
		t.Error("cleared history should lift the veto")
	}
}

func TestIdleBlock(t *testing.T) {
	r := models.Rule{Type: models.RuleIdleBlock, Start: "22:00", End: "06:00"}
	task := &models.Task{Name: "deploy"}

	if blocked, _ := Veto(r, Context{Now: noon, Task: task}); blocked {
		t.Error("noon is outside the 22:00-06:00 block")
	}
	night := time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC)
	if blocked, _ := Veto(r, Context{Now: night, Task: task}); !blocked {
		t.Error("23:00 is inside the 22:00-06:00 block")
	}
	early := time.Date(2026, 3, 5, 3, 0, 0, 0, time.UTC)
	if blocked, _ := Veto(r, Context{Now: early, Task: task}); !blocked {
		t.Error("03:00 is inside the wrapped 22:00-06:00 block")
	}
}

func TestTaskCooldown(t *testing.T) {
	r := models.Rule{Type: models.RuleTaskCooldown, Cooldown: 30 * time.Minute}
	task := &models.Task{Name: "sync"}

	lastRun := func(name string) (time.Time, bool) {
		if name == "sync" {
			return noon.Add(-10 * time.Minute), true
		}
		return time.Time{}, false
	}
	ctx := Context{Now: noon, Task: task, LastRun: lastRun}
	if blocked, _ := Veto(r, ctx); !blocked {
		t.Error("10 minutes into a 30 minute cooldown should veto")
	}

	ctx.Now = noon.Add(25 * time.Minute)
	if blocked, _ := Veto(r, ctx); blocked {
		t.Error("35 minutes after the last run the cooldown has elapsed")
	}

	// no history means no cooldown
	other := &models.Task{Name: "other"}
	if blocked, _ := Veto(r, Context{Now: noon, Task: other, LastRun: lastRun}); blocked {
		t.Error("task with no run history should not be vetoed")
	}
}

func TestCapRules(t *testing.T) {
	daily := models.Rule{Type: models.RuleDailyCap, Cap: 2}
	task := &models.Task{Name: "report", DailyCount: 1, DailyAnchor: noon}
	if blocked, _ := Veto(daily, Context{Now: noon, Task: task}); blocked {
		t.Error("1 of 2 daily runs used, should not veto")
	}
	task.DailyCount = 2
	if blocked, _ := Veto(daily, Context{Now: noon, Task: task}); !blocked {
		t.Error("daily cap reached, should veto")
	}

	weekly := models.Rule{Type: models.RuleWeeklyCap, Cap: 5}
	task.WeeklyCount = 5
	task.WeeklyAnchor = noon
	if blocked, _ := Veto(weekly, Context{Now: noon, Task: task}); !blocked {
		t.Error("weekly cap reached, should veto")
	}
}

func TestCapRules_BoundaryReset(t *testing.T) {
	// counters are only re-anchored on completion, so the predicates must
	// read them through the boundary, not raw
	daily := models.Rule{Type: models.RuleDailyCap, Cap: 1}
	yesterday := noon.AddDate(0, 0, -1)
	task := &models.Task{Name: "report", DailyCount: 1, DailyAnchor: yesterday}
	if blocked, _ := Veto(daily, Context{Now: noon, Task: task}); blocked {
		t.Error("daily cap anchored yesterday should lift after midnight UTC")
	}

	weekly := models.Rule{Type: models.RuleWeeklyCap, Cap: 3}
	task.WeeklyCount = 3
	task.WeeklyAnchor = yesterday
	if blocked, _ := Veto(weekly, Context{Now: noon, Task: task}); !blocked {
		t.Error("weekly cap anchored within the same week should still veto")
	}
	task.WeeklyAnchor = noon.AddDate(0, 0, -8)
	if blocked, _ := Veto(weekly, Context{Now: noon, Task: task}); blocked {
		t.Error("weekly cap anchored last week should lift after Monday UTC")
	}
}

func TestAgentCapability(t *testing.T) {
	r := models.Rule{Type: models.RuleAgentCapability, Capability: "gpu"}
	task := &models.Task{Name: "train"}
	agent := &models.Agent{Name: "w1", Capabilities: []string{"build"}}

	if blocked, _ := Veto(r, Context{Now: noon, Task: task, Agent: agent}); !blocked {
		t.Error("agent without gpu should be vetoed")
	}
	agent.Capabilities = append(agent.Capabilities, "gpu")
	if blocked, _ := Veto(r, Context{Now: noon, Task: task, Agent: agent}); blocked {
		t.Error("agent with gpu should pass")
	}
}

func TestTimeWindow(t *testing.T) {
	windows := map[string]plan.Window{
		"business": {Start: "09:00", End: "17:00"},
	}
	r := models.Rule{Type: models.RuleTimeWindow, Window: "business"}
	task := &models.Task{Name: "deploy"}

	if blocked, _ := Veto(r, Context{Now: noon, Task: task, Windows: windows}); blocked {
		t.Error("noon is inside business hours")
	}
	night := time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC)
	if blocked, _ := Veto(r, Context{Now: night, Task: task, Windows: windows}); !blocked {
		t.Error("20:00 is outside business hours")
	}

	missing := models.Rule{Type: models.RuleTimeWindow, Window: "nope"}
	if blocked, _ := Veto(missing, Context{Now: noon, Task: task, Windows: windows}); !blocked {
		t.Error("a reference to an unknown window must veto")
	}
}

func TestAnyVeto(t *testing.T) {
	task := &models.Task{Name: "deploy", DailyCount: 5, DailyAnchor: noon}
	rs := []models.Rule{
		{Type: models.RuleWeeklyCap, Cap: 100},
		{Type: models.RuleDailyCap, Cap: 5},
	}
	blocked, reason := AnyVeto(rs, Context{Now: noon, Task: task})
	if !blocked {
		t.Fatal("one vetoing rule is enough to block")
	}
	if reason != "daily cap 5 reached" {
		t.Errorf("unexpected reason %q", reason)
	}

	if blocked, _ := AnyVeto(nil, Context{Now: noon, Task: task}); blocked {
		t.Error("no rules means no veto")
	}
}
