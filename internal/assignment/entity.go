package assignment

import (
	"fmt"
	"slices"
	"time"

	"github.com/kazz187/sitecrew/internal/geofence"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusInProgress, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// DayLayout is the calendar-day format assignments are keyed by.
const DayLayout = "2006-01-02"

// Day is a calendar date without a time component, formatted as DayLayout.
type Day string

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid day %q: expected YYYY-MM-DD", s)
	}
	return Day(t.Format(DayLayout)), nil
}

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	return Day(t.In(loc).Format(DayLayout))
}

func (d Day) String() string { return string(d) }

// Progress is the running count against a daily target. Percentage is always
// derived from Completed and Total.
type Progress struct {
	Completed  float64 `yaml:"completed" json:"completed"`
	Total      float64 `yaml:"total" json:"total"`
	Percentage int     `yaml:"percentage" json:"percentage"`
}

type DailyTarget struct {
	Description      string   `yaml:"description" json:"description"`
	Quantity         float64  `yaml:"quantity" json:"quantity"`
	Unit             string   `yaml:"unit" json:"unit"`
	TargetCompletion int      `yaml:"target_completion" json:"targetCompletion"`
	Progress         Progress `yaml:"progress_today" json:"progressToday"`
}

// QuantityBased reports whether progress is measured in the target's own unit
// rather than in percent.
func (t DailyTarget) QuantityBased() bool {
	return t.Quantity > 0
}

type GeofenceValidation struct {
	Required              bool                 `yaml:"required" json:"required"`
	LastValidatedAt       *time.Time           `yaml:"last_validated_at,omitempty" json:"lastValidatedAt,omitempty"`
	LastValidatedLocation *geofence.Coordinate `yaml:"last_validated_location,omitempty" json:"lastValidatedLocation,omitempty"`
}

type Instruction struct {
	Text      string    `yaml:"text" json:"text"`
	Author    string    `yaml:"author" json:"author"`
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
}

type Assignment struct {
	ID                 int64              `yaml:"id" json:"id"`
	WorkerID           string             `yaml:"worker_id" json:"workerId"`
	ProjectID          string             `yaml:"project_id" json:"projectId"`
	TaskID             string             `yaml:"task_id" json:"taskId"`
	SupervisorID       string             `yaml:"supervisor_id" json:"supervisorId"`
	TaskName           string             `yaml:"task_name" json:"taskName"`
	Day                Day                `yaml:"day" json:"day"`
	Status             Status             `yaml:"status" json:"status"`
	Priority           Priority           `yaml:"priority" json:"priority"`
	Sequence           int                `yaml:"sequence" json:"sequence"`
	Dependencies       []int64            `yaml:"dependencies,omitempty" json:"dependencies"`
	DailyTarget        DailyTarget        `yaml:"daily_target" json:"dailyTarget"`
	GeofenceValidation GeofenceValidation `yaml:"geofence_validation" json:"geofenceValidation"`
	Deadline           *time.Time         `yaml:"deadline,omitempty" json:"deadline,omitempty"`
	Instructions       []Instruction      `yaml:"instructions,omitempty" json:"instructions,omitempty"`
	AssignedAt         time.Time          `yaml:"assigned_at" json:"assignedAt"`
	StartTime          *time.Time         `yaml:"start_time,omitempty" json:"startTime,omitempty"`
	PauseTime          *time.Time         `yaml:"pause_time,omitempty" json:"pauseTime,omitempty"`
	CompletedAt        *time.Time         `yaml:"completed_at,omitempty" json:"completedAt,omitempty"`
	CancelledAt        *time.Time         `yaml:"cancelled_at,omitempty" json:"cancelledAt,omitempty"`
	CancelReason       string             `yaml:"cancel_reason,omitempty" json:"cancelReason,omitempty"`
	UpdatedAt          time.Time          `yaml:"updated_at" json:"updatedAt"`
	Revision           int64              `yaml:"revision" json:"revision"`
}

// Clone returns a deep copy so callers can mutate a candidate without touching
// the record they read.
func (a *Assignment) Clone() *Assignment {
	c := *a
	c.Dependencies = slices.Clone(a.Dependencies)
	c.Instructions = slices.Clone(a.Instructions)
	c.Deadline = cloneTime(a.Deadline)
	c.StartTime = cloneTime(a.StartTime)
	c.PauseTime = cloneTime(a.PauseTime)
	c.CompletedAt = cloneTime(a.CompletedAt)
	c.CancelledAt = cloneTime(a.CancelledAt)
	c.GeofenceValidation.LastValidatedAt = cloneTime(a.GeofenceValidation.LastValidatedAt)
	if loc := a.GeofenceValidation.LastValidatedLocation; loc != nil {
		l := *loc
		c.GeofenceValidation.LastValidatedLocation = &l
	}
	return &c
}

// Overdue reports whether a non-terminal assignment has passed its deadline.
func (a *Assignment) Overdue(now time.Time) bool {
	return a.Deadline != nil && !a.Status.Terminal() && now.After(*a.Deadline)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
