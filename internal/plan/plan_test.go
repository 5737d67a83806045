package plan

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const samplePlan = `
agents:
  - name: builder-1
    machine: m1
    capabilities: [build, test]
    priority: high
    auto_start: true
    heartbeat_interval: 30s
    thresholds:
      cpu: {warn: 80, crit: 95}
    schedule_windows: [nightly]
  - name: scanner-1
    machine: m2
    capabilities: [scan]
windows:
  nightly:
    start: "22:00"
    end: "06:00"
    boost: 1.5
  weekday-morning:
    start: "08:00"
    end: "12:00"
    days: [mon, tue, wed, thu, fri]
rules:
  backoff:
    type: recent_failure
    timeout: 1h
    max_failures: 3
constraints:
  max_concurrent: 4
  min_health: healthy
`

func TestLoad(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "warden-plan-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "fleet.yaml")
	if err := os.WriteFile(path, []byte(samplePlan), 0644); err != nil {
		t.Fatal(err)
	}

	pl, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load plan: %v", err)
	}
	if len(pl.Agents) != 2 {
		t.Errorf("expected 2 agents, got %d", len(pl.Agents))
	}
	if pl.Agents[0].HeartbeatInterval.Std() != 30*time.Second {
		t.Errorf("expected 30s heartbeat interval, got %s", pl.Agents[0].HeartbeatInterval.Std())
	}
	if pl.Windows["nightly"].Boost != 1.5 {
		t.Errorf("expected boost 1.5, got %f", pl.Windows["nightly"].Boost)
	}
	caps := pl.Capabilities()
	for _, want := range []string{"build", "test", "scan"} {
		if _, ok := caps[want]; !ok {
			t.Errorf("capability %q missing from union", want)
		}
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("agents:\n  - name: a\n    capabilities: [x]\n    bogus: true\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"duplicate name", "agents:\n  - name: a\n    capabilities: [x]\n  - name: a\n    capabilities: [y]\n"},
		{"no capabilities", "agents:\n  - name: a\n"},
		{"bad priority", "agents:\n  - name: a\n    capabilities: [x]\n    priority: urgent\n"},
		{"missing window ref", "agents:\n  - name: a\n    capabilities: [x]\n    schedule_windows: [nope]\n"},
		{"bad clock", "agents:\n  - name: a\n    capabilities: [x]\nwindows:\n  w:\n    start: \"25:00\"\n    end: \"06:00\"\n"},
		{"crit below warn", "agents:\n  - name: a\n    capabilities: [x]\n    thresholds:\n      cpu: {warn: 90, crit: 50}\n"},
		{"bad rule type", "agents:\n  - name: a\n    capabilities: [x]\nrules:\n  r:\n    type: never_heard_of_it\n"},
		{"bad rule clock", "agents:\n  - name: a\n    capabilities: [x]\nrules:\n  r:\n    type: idle_block\n    start: \"25:00\"\n    end: \"06:00\"\n"},
	}
	for _, tc := range cases {
		if _, err := Parse([]byte(tc.doc)); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestWindow_Contains(t *testing.T) {
	w := Window{Start: "09:00", End: "17:00"}
	in := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) // Wednesday noon
	out := time.Date(2026, 3, 4, 18, 30, 0, 0, time.UTC)
	if !w.Contains(in) {
		t.Error("noon should be inside 09:00-17:00")
	}
	if w.Contains(out) {
		t.Error("18:30 should be outside 09:00-17:00")
	}
	// end is exclusive
	if w.Contains(time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)) {
		t.Error("17:00 should be outside, end is exclusive")
	}
	if !w.Contains(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)) {
		t.Error("09:00 should be inside, start is inclusive")
	}
}

func TestWindow_ContainsWrapsMidnight(t *testing.T) {
	w := Window{Start: "22:00", End: "06:00"}
	if !w.Contains(time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC)) {
		t.Error("23:30 should be inside 22:00-06:00")
	}
	if !w.Contains(time.Date(2026, 3, 5, 2, 0, 0, 0, time.UTC)) {
		t.Error("02:00 should be inside 22:00-06:00")
	}
	if w.Contains(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)) {
		t.Error("noon should be outside 22:00-06:00")
	}
}

func TestWindow_DayFilter(t *testing.T) {
	w := Window{Start: "09:00", End: "17:00", Days: []string{"mon", "tue"}}
	mon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	wed := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	if !w.Contains(mon) {
		t.Error("Monday noon should match [mon, tue]")
	}
	if w.Contains(wed) {
		t.Error("Wednesday noon should not match [mon, tue]")
	}

	// a wrapped window that opened Friday night still matches early Saturday
	fri := Window{Start: "22:00", End: "06:00", Days: []string{"fri"}}
	satEarly := time.Date(2026, 3, 7, 3, 0, 0, 0, time.UTC) // Saturday 03:00
	if !fri.Contains(satEarly) {
		t.Error("Saturday 03:00 belongs to the Friday 22:00-06:00 window")
	}
	sunEarly := time.Date(2026, 3, 8, 3, 0, 0, 0, time.UTC)
	if fri.Contains(sunEarly) {
		t.Error("Sunday 03:00 does not belong to the Friday window")
	}
}

func TestCompute_Diff(t *testing.T) {
	old := &Plan{Agents: []AgentSpec{
		{Name: "a", Capabilities: []string{"x"}},
		{Name: "b", Capabilities: []string{"y"}},
	}}
	updated := &Plan{Agents: []AgentSpec{
		{Name: "a", Capabilities: []string{"x", "z"}},
		{Name: "c", Capabilities: []string{"y"}},
	}}

	d := Compute(old, updated)
	if len(d.Added) != 1 || d.Added[0].Name != "c" {
		t.Errorf("expected added [c], got %+v", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0] != "b" {
		t.Errorf("expected removed [b], got %v", d.Removed)
	}
	if len(d.Changed) != 1 || d.Changed[0].Name != "a" {
		t.Errorf("expected changed [a], got %+v", d.Changed)
	}
}
