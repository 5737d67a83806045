package plan

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ade/warden/internal/models"
)

// Load reads and validates a fleet plan from a YAML file. A document that
// violates the schema is a fatal condition; callers are expected to abort
// startup rather than proceed with partial state.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a fleet plan document
func Parse(data []byte) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &p, nil
}

// Validate checks the plan for schema violations
func (p *Plan) Validate() error {
	seen := make(map[string]bool)
	for i, a := range p.Agents {
		if a.Name == "" {
			return fmt.Errorf("agents[%d]: name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("agents[%d]: duplicate name %q", i, a.Name)
		}
		seen[a.Name] = true
		if len(a.Capabilities) == 0 {
			return fmt.Errorf("agent %q: at least one capability is required", a.Name)
		}
		if a.Priority != "" && !a.Priority.Valid() {
			return fmt.Errorf("agent %q: unknown priority %q", a.Name, a.Priority)
		}
		if a.HeartbeatInterval < 0 {
			return fmt.Errorf("agent %q: negative heartbeat interval", a.Name)
		}
		for _, ref := range a.ScheduleWindows {
			if _, ok := p.Windows[ref]; !ok {
				return fmt.Errorf("agent %q: unknown schedule window %q", a.Name, ref)
			}
		}
		for metric, th := range a.Thresholds {
			if th.Crit < th.Warn {
				return fmt.Errorf("agent %q: threshold %q has crit below warn", a.Name, metric)
			}
		}
	}
	for name, w := range p.Windows {
		if _, err := parseClock(w.Start); err != nil {
			return fmt.Errorf("window %q: %w", name, err)
		}
		if _, err := parseClock(w.End); err != nil {
			return fmt.Errorf("window %q: %w", name, err)
		}
		if w.Boost < 0 {
			return fmt.Errorf("window %q: negative boost", name)
		}
		for _, day := range w.Days {
			if !validDay(day) {
				return fmt.Errorf("window %q: unknown day %q", name, day)
			}
		}
	}
	for name, r := range p.Rules {
		if !r.Type.Valid() {
			return fmt.Errorf("rule %q: unknown type %q", name, r.Type)
		}
		if r.Type == models.RuleIdleBlock {
			if err := ValidClock(r.Start); err != nil {
				return fmt.Errorf("rule %q: %w", name, err)
			}
			if err := ValidClock(r.End); err != nil {
				return fmt.Errorf("rule %q: %w", name, err)
			}
		}
		if r.Window != "" {
			if _, ok := p.Windows[r.Window]; !ok {
				return fmt.Errorf("rule %q: unknown window %q", name, r.Window)
			}
		}
	}
	if h := p.Constraints.MinHealth; h != "" {
		switch h {
		case "healthy", "warning", "critical", "unknown":
		default:
			return fmt.Errorf("constraints: unknown min_health %q", h)
		}
	}
	return nil
}

func validDay(s string) bool {
	switch s {
	case "mon", "tue", "wed", "thu", "fri", "sat", "sun":
		return true
	}
	return false
}
