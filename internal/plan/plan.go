package plan

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ade/warden/internal/models"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Threshold is a soft/hard metric threshold pair. A metric at or above
// Warn degrades health to warning; at or above Crit to critical.
type Threshold struct {
	Warn float64 `yaml:"warn"`
	Crit float64 `yaml:"crit"`
}

// AgentSpec describes a desired agent in the fleet plan
type AgentSpec struct {
	Name              string               `yaml:"name"`
	Machine           string               `yaml:"machine"`
	Window            string               `yaml:"window"`
	Capabilities      []string             `yaml:"capabilities"`
	Priority          models.Priority      `yaml:"priority"`
	AutoStart         bool                 `yaml:"auto_start"`
	HeartbeatInterval Duration             `yaml:"heartbeat_interval"`
	Thresholds        map[string]Threshold `yaml:"thresholds"`
	ScheduleWindows   []string             `yaml:"schedule_windows"`
}

// Window is a named recurring time range with a priority boost multiplier
type Window struct {
	Start string   `yaml:"start"` // "HH:MM"
	End   string   `yaml:"end"`   // "HH:MM", may be earlier than Start to wrap midnight
	Days  []string `yaml:"days"`  // mon..sun, empty matches every day
	Boost float64  `yaml:"boost"`
}

// Contains reports whether t falls inside the window. Ranges where End is
// not after Start wrap past midnight; the day check applies to the day the
// window opened on.
func (w Window) Contains(t time.Time) bool {
	start, err := parseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(w.End)
	if err != nil {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if start <= end {
		return w.matchesDay(t.Weekday()) && m >= start && m < end
	}
	// wrapped range: the portion before midnight belongs to today, the
	// portion after belongs to the previous day's window
	if m >= start {
		return w.matchesDay(t.Weekday())
	}
	if m < end {
		return w.matchesDay(t.AddDate(0, 0, -1).Weekday())
	}
	return false
}

func (w Window) matchesDay(d time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}
	name := strings.ToLower(d.String()[:3])
	for _, day := range w.Days {
		if strings.ToLower(day) == name {
			return true
		}
	}
	return false
}

// ValidClock reports whether s parses as an "HH:MM" clock value
func ValidClock(s string) error {
	_, err := parseClock(s)
	return err
}

// parseClock converts "HH:MM" to minute-of-day
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// RuleSpec is an anti-pattern rule template in the fleet plan
type RuleSpec struct {
	Type        models.RuleType `yaml:"type"`
	Timeout     Duration        `yaml:"timeout"`
	MaxFailures int             `yaml:"max_failures"`
	Start       string          `yaml:"start"`
	End         string          `yaml:"end"`
	Cooldown    Duration        `yaml:"cooldown"`
	Cap         int             `yaml:"cap"`
	Capability  string          `yaml:"capability"`
	Window      string          `yaml:"window"`
}

// Rule converts the template into a task rule instance
func (r RuleSpec) Rule() models.Rule {
	return models.Rule{
		Type:        r.Type,
		Timeout:     r.Timeout.Std(),
		MaxFailures: r.MaxFailures,
		Start:       r.Start,
		End:         r.End,
		Cooldown:    r.Cooldown.Std(),
		Cap:         r.Cap,
		Capability:  r.Capability,
		Window:      r.Window,
	}
}

// GlobalConstraints are fleet-wide dispatch limits
type GlobalConstraints struct {
	MaxConcurrent int            `yaml:"max_concurrent"`
	PerCapability map[string]int `yaml:"per_capability"`
	MinHealth     models.Health  `yaml:"min_health"`
}

// Plan is the parsed fleet plan document
type Plan struct {
	Agents      []AgentSpec         `yaml:"agents"`
	Windows     map[string]Window   `yaml:"windows"`
	Rules       map[string]RuleSpec `yaml:"rules"`
	Constraints GlobalConstraints   `yaml:"constraints"`
}

// Capabilities returns the union of all capability tags declared by the
// plan's agents. Task submission validates against this set.
func (p *Plan) Capabilities() map[string]struct{} {
	caps := make(map[string]struct{})
	for _, a := range p.Agents {
		for _, c := range a.Capabilities {
			caps[c] = struct{}{}
		}
	}
	return caps
}

// Agent returns the spec for the named agent, if present
func (p *Plan) Agent(name string) (AgentSpec, bool) {
	for _, a := range p.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentSpec{}, false
}
