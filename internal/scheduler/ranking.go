package scheduler

import (
	"time"

	"github.com/ade/warden/internal/models"
	"github.com/ade/warden/internal/plan"
)

// boostFor returns the priority boost multiplier that applies to the task
// right now: the largest boost among the task's referenced window and any
// matching window, 1.0 when none applies.
func boostFor(t *models.Task, windows map[string]plan.Window, now time.Time) float64 {
	boost := 1.0
	if ref := t.Constraints.Window; ref != "" {
		if w, ok := windows[ref]; ok && w.Boost > 0 && w.Contains(now) && w.Boost > boost {
			boost = w.Boost
		}
	}
	for _, r := range t.Rules {
		if r.Type != models.RuleTimeWindow || r.Window == "" {
			continue
		}
		if w, ok := windows[r.Window]; ok && w.Boost > 0 && w.Contains(now) && w.Boost > boost {
			boost = w.Boost
		}
	}
	return boost
}

// rankLess fixes the total dispatch order among eligible tasks:
// priority ordinal, then effective boost (higher first), then earliest
// scheduled_for, then submission order. Deterministic for identical inputs.
func rankLess(a, b *models.Task, windows map[string]plan.Window, now time.Time) bool {
	ao, bo := a.Priority.Ordinal(), b.Priority.Ordinal()
	if ao != bo {
		return ao < bo
	}
	ab, bb := boostFor(a, windows, now), boostFor(b, windows, now)
	if ab != bb {
		return ab > bb
	}
	if !a.ScheduledFor.Equal(b.ScheduledFor) {
		return a.ScheduledFor.Before(b.ScheduledFor)
	}
	return a.Seq < b.Seq
}
