package models

import "time"

// RuleType identifies an anti-pattern rule
type RuleType string

const (
	RuleRecentFailure   RuleType = "recent_failure"
	RuleIdleBlock       RuleType = "idle_block"
	RuleTaskCooldown    RuleType = "task_cooldown"
	RuleDailyCap        RuleType = "daily_cap"
	RuleWeeklyCap       RuleType = "weekly_cap"
	RuleAgentCapability RuleType = "agent_capability"
	RuleTimeWindow      RuleType = "time_window"
)

// Valid reports whether t is a known rule type
func (t RuleType) Valid() bool {
	switch t {
	case RuleRecentFailure, RuleIdleBlock, RuleTaskCooldown, RuleDailyCap,
		RuleWeeklyCap, RuleAgentCapability, RuleTimeWindow:
		return true
	}
	return false
}

// Rule is an anti-pattern rule instance attached to a task. Which fields
// are meaningful depends on Type; unused fields stay zero.
type Rule struct {
	Type        RuleType      `json:"type"`
	Timeout     time.Duration `json:"timeout,omitempty"`      // recent_failure: trailing window
	MaxFailures int           `json:"max_failures,omitempty"` // recent_failure
	Start       string        `json:"start,omitempty"`        // idle_block: "HH:MM", may wrap midnight
	End         string        `json:"end,omitempty"`          // idle_block
	Cooldown    time.Duration `json:"cooldown,omitempty"`     // task_cooldown
	Cap         int           `json:"cap,omitempty"`          // daily_cap / weekly_cap
	Capability  string        `json:"capability,omitempty"`   // agent_capability
	Window      string        `json:"window,omitempty"`       // time_window: plan window reference
}
