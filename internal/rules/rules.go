// Package rules implements the anti-pattern predicates that can veto
// dispatch of an otherwise-eligible task. Predicates are stateless: they
// read the evaluation context and never mutate anything. A veto is not an
// error, just "not eligible right now".
package rules

import (
	"fmt"
	"time"

	"github.com/ade/warden/internal/models"
	"github.com/ade/warden/internal/plan"
)

// Context is everything a predicate may look at
type Context struct {
	Now     time.Time
	Agent   *models.Agent
	Task    *models.Task
	Windows map[string]plan.Window

	// LastRun reports when a task with the given name last finished a run,
	// for task_cooldown. Nil means no history is available.
	LastRun func(name string) (time.Time, bool)
}

// Veto evaluates a single rule. It returns true and a reason when the rule
// blocks dispatch.
func Veto(r models.Rule, ctx Context) (bool, string) {
	switch r.Type {
	case models.RuleRecentFailure:
		return recentFailure(r, ctx)
	case models.RuleIdleBlock:
		return idleBlock(r, ctx)
	case models.RuleTaskCooldown:
		return taskCooldown(r, ctx)
	case models.RuleDailyCap:
		if r.Cap > 0 && ctx.Task.EffectiveDaily(ctx.Now) >= r.Cap {
			return true, fmt.Sprintf("daily cap %d reached", r.Cap)
		}
	case models.RuleWeeklyCap:
		if r.Cap > 0 && ctx.Task.EffectiveWeekly(ctx.Now) >= r.Cap {
			return true, fmt.Sprintf("weekly cap %d reached", r.Cap)
		}
	case models.RuleAgentCapability:
		if ctx.Agent != nil && !ctx.Agent.HasCapability(r.Capability) {
			return true, fmt.Sprintf("agent lacks capability %q", r.Capability)
		}
	case models.RuleTimeWindow:
		w, ok := ctx.Windows[r.Window]
		if !ok {
			return true, fmt.Sprintf("unknown window %q", r.Window)
		}
		if !w.Contains(ctx.Now) {
			return true, fmt.Sprintf("outside window %q", r.Window)
		}
	}
	return false, ""
}

// AnyVeto evaluates all rules with AND semantics: the first veto blocks
func AnyVeto(rs []models.Rule, ctx Context) (bool, string) {
	for _, r := range rs {
		if blocked, reason := Veto(r, ctx); blocked {
			return true, reason
		}
	}
	return false, ""
}

// recentFailure vetoes while the task has accumulated MaxFailures or more
// failures within the trailing Timeout. The veto lifts exactly Timeout
// after the oldest failure still counted drops out of the window.
func recentFailure(r models.Rule, ctx Context) (bool, string) {
	if r.MaxFailures <= 0 || r.Timeout <= 0 {
		return false, ""
	}
	cutoff := ctx.Now.Add(-r.Timeout)
	recent := 0
	for _, ft := range ctx.Task.FailureTimes {
		if ft.After(cutoff) {
			recent++
		}
	}
	if recent >= r.MaxFailures {
		return true, fmt.Sprintf("%d failures within %s", recent, r.Timeout)
	}
	return false, ""
}

// idleBlock vetoes during a configured exclusion window. Ranges where End
// precedes Start wrap past midnight.
func idleBlock(r models.Rule, ctx Context) (bool, string) {
	w := plan.Window{Start: r.Start, End: r.End}
	if w.Contains(ctx.Now) {
		return true, fmt.Sprintf("idle block %s-%s", r.Start, r.End)
	}
	return false, ""
}

// taskCooldown vetoes while less than Cooldown has elapsed since the last
// run of any task with the same name
func taskCooldown(r models.Rule, ctx Context) (bool, string) {
	if r.Cooldown <= 0 || ctx.LastRun == nil {
		return false, ""
	}
	last, ok := ctx.LastRun(ctx.Task.Name)
	if !ok {
		return false, ""
	}
	if elapsed := ctx.Now.Sub(last); elapsed < r.Cooldown {
		return true, fmt.Sprintf("cooldown, %s of %s elapsed", elapsed.Round(time.Second), r.Cooldown)
	}
	return false, ""
}
