// Package dashboard reduces a day's assignments into supervisor summaries.
// Summaries are computed on every read and never stored.
package dashboard

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/kazz187/sitecrew/internal/assignment"
)

type Scope string

const (
	ScopeProject    Scope = "project"
	ScopeSupervisor Scope = "supervisor"
)

type Summary struct {
	Scope           Scope           `json:"scope"`
	ScopeID         string          `json:"scopeId"`
	Day             assignment.Day  `json:"day"`
	TotalTasks      int             `json:"totalTasks"`
	CompletedTasks  int             `json:"completedTasks"`
	InProgressTasks int             `json:"inProgressTasks"`
	QueuedTasks     int             `json:"queuedTasks"`
	PausedTasks     int             `json:"pausedTasks"`
	CancelledTasks  int             `json:"cancelledTasks"`
	OverdueTasks    int             `json:"overdueTasks"`
	CompletionRate  int             `json:"completionRate"`
	AverageProgress int             `json:"averageProgress"`
	Workers         []WorkerSummary `json:"workers"`
}

type WorkerSummary struct {
	WorkerID           string `json:"workerId"`
	TotalTasks         int    `json:"totalTasks"`
	CompletedTasks     int    `json:"completedTasks"`
	CompletionRate     int    `json:"completionRate"`
	ActiveAssignmentID *int64 `json:"activeAssignmentId,omitempty"`
	ActiveTaskName     string `json:"activeTaskName,omitempty"`
	// GeofenceVerified is set once any of the worker's assignments passed a
	// geofence check that day.
	GeofenceVerified bool `json:"geofenceVerified"`
	// Idle means the worker has queued or paused work but nothing in progress.
	Idle bool `json:"idle"`
}

// Summarize is a pure function of its inputs. now only decides which
// deadlines have passed.
func Summarize(scope Scope, scopeID string, day assignment.Day, as []*assignment.Assignment, now time.Time) Summary {
	s := Summary{Scope: scope, ScopeID: scopeID, Day: day, Workers: []WorkerSummary{}}
	workers := map[string]*WorkerSummary{}
	openWork := map[string]bool{}
	var progressSum, progressN int

	for _, a := range as {
		s.TotalTasks++
		w, ok := workers[a.WorkerID]
		if !ok {
			w = &WorkerSummary{WorkerID: a.WorkerID}
			workers[a.WorkerID] = w
		}
		w.TotalTasks++

		switch a.Status {
		case assignment.StatusCompleted:
			s.CompletedTasks++
			w.CompletedTasks++
		case assignment.StatusInProgress:
			s.InProgressTasks++
			id := a.ID
			w.ActiveAssignmentID = &id
			w.ActiveTaskName = a.TaskName
		case assignment.StatusQueued:
			s.QueuedTasks++
			openWork[a.WorkerID] = true
		case assignment.StatusPaused:
			s.PausedTasks++
			openWork[a.WorkerID] = true
		case assignment.StatusCancelled:
			s.CancelledTasks++
		}
		if a.Overdue(now) {
			s.OverdueTasks++
		}
		if a.GeofenceValidation.LastValidatedAt != nil {
			w.GeofenceVerified = true
		}
		if a.Status != assignment.StatusCancelled {
			progressSum += a.DailyTarget.Progress.Percentage
			progressN++
		}
	}

	s.CompletionRate = rate(s.CompletedTasks, s.TotalTasks)
	if progressN > 0 {
		s.AverageProgress = int(math.Round(float64(progressSum) / float64(progressN)))
	}
	for id, w := range workers {
		w.CompletionRate = rate(w.CompletedTasks, w.TotalTasks)
		w.Idle = openWork[id] && w.ActiveAssignmentID == nil
		s.Workers = append(s.Workers, *w)
	}
	slices.SortFunc(s.Workers, func(a, b WorkerSummary) int { return cmp.Compare(a.WorkerID, b.WorkerID) })
	return s
}

func rate(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}
