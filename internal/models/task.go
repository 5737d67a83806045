package models

import "time"

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskPaused    TaskStatus = "paused"
)

// Terminal reports whether the status is a final state
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// Priority represents task priority. Lower ordinal dispatches first.
type Priority string

const (
	PriorityCritical    Priority = "critical"
	PriorityHigh        Priority = "high"
	PriorityNormal      Priority = "normal"
	PriorityLow         Priority = "low"
	PriorityMaintenance Priority = "maintenance"
)

// Ordinal returns the rank of the priority, 0 being the most urgent.
// Unknown priorities sort last.
func (p Priority) Ordinal() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	case PriorityMaintenance:
		return 4
	}
	return 5
}

// Valid reports whether p is one of the known priorities
func (p Priority) Valid() bool {
	return p.Ordinal() < 5
}

// Constraints are the static dispatch constraints attached to a task
type Constraints struct {
	DailyCap           int    `json:"daily_cap,omitempty"`
	WeeklyCap          int    `json:"weekly_cap,omitempty"`
	RequiredCapability string `json:"required_capability,omitempty"`
	Window             string `json:"window,omitempty"`
}

// Task represents a unit of schedulable work
type Task struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Mode         string        `json:"mode,omitempty"`
	Agent        string        `json:"agent,omitempty"`
	Priority     Priority      `json:"priority"`
	Status       TaskStatus    `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	ScheduledFor time.Time     `json:"scheduled_for"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Estimated    time.Duration `json:"estimated,omitempty"`
	Actual       time.Duration `json:"actual,omitempty"`
	Constraints  Constraints   `json:"constraints"`
	Rules        []Rule        `json:"rules,omitempty"`

	// Daily/weekly completion counters. Anchors mark the UTC boundary the
	// counters were last reset at; a counter whose anchor lies before the
	// current boundary reads as zero.
	DailyCount   int       `json:"daily_count"`
	DailyAnchor  time.Time `json:"daily_anchor,omitempty"`
	WeeklyCount  int       `json:"weekly_count"`
	WeeklyAnchor time.Time `json:"weekly_anchor,omitempty"`

	ErrorCount   int               `json:"error_count"`
	LastError    string            `json:"last_error,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Seq          uint64            `json:"seq"`
	FailureTimes []time.Time       `json:"failure_times,omitempty"`

	// CancelRequestedAt is set when cancellation of a running task has been
	// requested but the executor has not yet acknowledged.
	CancelRequestedAt *time.Time `json:"cancel_requested_at,omitempty"`
}

// Counter reset boundaries are fixed UTC instants: daily counters reset at
// midnight UTC, weekly counters at Monday 00:00 UTC.

// DayStart returns midnight UTC of the day containing t
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart returns Monday 00:00 UTC of the week containing t
func WeekStart(t time.Time) time.Time {
	d := DayStart(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}

// EffectiveDaily reads the daily counter as of now without mutating the
// task. A counter anchored before the current boundary reads as zero.
func (t *Task) EffectiveDaily(now time.Time) int {
	if t.DailyAnchor.Before(DayStart(now)) {
		return 0
	}
	return t.DailyCount
}

// EffectiveWeekly reads the weekly counter as of now without mutating the task
func (t *Task) EffectiveWeekly(now time.Time) int {
	if t.WeeklyAnchor.Before(WeekStart(now)) {
		return 0
	}
	return t.WeeklyCount
}
