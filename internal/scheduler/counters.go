package scheduler

import (
	"time"

	"github.com/ade/warden/internal/models"
)

// rollCounters zeroes any counter whose anchor lies before the current
// boundary and re-anchors both counters at now
func rollCounters(t *models.Task, now time.Time) {
	if t.DailyAnchor.Before(models.DayStart(now)) {
		t.DailyCount = 0
	}
	if t.WeeklyAnchor.Before(models.WeekStart(now)) {
		t.WeeklyCount = 0
	}
	t.DailyAnchor = now.UTC()
	t.WeeklyAnchor = now.UTC()
}
