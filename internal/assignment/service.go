package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kazz187/sitecrew/internal/dependency"
	"github.com/kazz187/sitecrew/internal/eventbus"
	"github.com/kazz187/sitecrew/internal/geofence"
	"github.com/kazz187/sitecrew/internal/lock"
	"github.com/kazz187/sitecrew/pkg/cerr"
	"github.com/kazz187/sitecrew/pkg/validation"
)

const (
	DefaultLocationFreshness = 2 * time.Minute
	DefaultLockTimeout       = 5 * time.Second
)

var validate = validation.New()

// FenceResolver returns the geofence of a project. It fails with a NotFound
// error when the project does not exist.
type FenceResolver interface {
	Fence(ctx context.Context, projectID string) (geofence.Fence, error)
}

type Service struct {
	repo        Repository
	locker      lock.Locker
	fences      FenceResolver
	bus         *eventbus.Bus
	now         func() time.Time
	freshness   time.Duration
	lockTimeout time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocationFreshness sets how old a reported coordinate may be.
func WithLocationFreshness(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.freshness = d
		}
	}
}

func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

func NewService(repo Repository, locker lock.Locker, fences FenceResolver, bus *eventbus.Bus, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		locker:      locker,
		fences:      fences,
		bus:         bus,
		now:         time.Now,
		freshness:   DefaultLocationFreshness,
		lockTimeout: DefaultLockTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type TargetInput struct {
	Description      string  `json:"description" validate:"max=500"`
	Quantity         float64 `json:"quantity" validate:"gte=0"`
	Unit             string  `json:"unit" validate:"required_with=Quantity,max=32"`
	TargetCompletion int     `json:"targetCompletion" validate:"gte=0,lte=100"`
}

type CreateInput struct {
	WorkerID         string      `json:"workerId" validate:"required,ident"`
	ProjectID        string      `json:"projectId" validate:"required,ident"`
	TaskID           string      `json:"taskId" validate:"required,max=128"`
	SupervisorID     string      `json:"supervisorId" validate:"omitempty,ident"`
	TaskName         string      `json:"taskName" validate:"required,max=200"`
	Day              Day         `json:"day" validate:"required,datetime=2006-01-02"`
	Priority         Priority    `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Sequence         int         `json:"sequence" validate:"gte=0"`
	Dependencies     []int64     `json:"dependencies" validate:"dive,gt=0"`
	DailyTarget      TargetInput `json:"dailyTarget"`
	GeofenceRequired bool        `json:"geofenceRequired"`
	Deadline         *time.Time  `json:"deadline"`
}

// Create queues a new assignment. Dependencies must already exist for the
// same worker and day.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Assignment, error) {
	if err := validate.Struct(in); err != nil {
		return nil, cerr.WrapValidationError(err)
	}
	if _, err := s.fences.Fence(ctx, in.ProjectID); err != nil {
		return nil, err
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}

	var created *Assignment
	err := s.withWorkerDay(ctx, in.WorkerID, in.Day, func(set []*Assignment) error {
		target := dependency.Item{WorkerID: in.WorkerID, Day: string(in.Day)}
		missing, err := dependency.ValidateDeclared(target, in.Dependencies, toItems(set))
		if err != nil {
			return newValidationError(err.Error())
		}
		if len(missing) > 0 {
			return newDependencyMissingError(missing, dependency.Result{})
		}
		now := s.now().UTC()
		a := &Assignment{
			WorkerID:     in.WorkerID,
			ProjectID:    in.ProjectID,
			TaskID:       in.TaskID,
			SupervisorID: in.SupervisorID,
			TaskName:     strings.TrimSpace(in.TaskName),
			Day:          in.Day,
			Status:       StatusQueued,
			Priority:     in.Priority,
			Sequence:     in.Sequence,
			Dependencies: in.Dependencies,
			DailyTarget: newTarget(in.DailyTarget.Description, in.DailyTarget.Quantity,
				in.DailyTarget.Unit, in.DailyTarget.TargetCompletion),
			GeofenceValidation: GeofenceValidation{Required: in.GeofenceRequired},
			Deadline:           utcPtr(in.Deadline),
			AssignedAt:         now,
			UpdatedAt:          now,
		}
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "assignment created", "assignment_id", created.ID, "worker_id", created.WorkerID, "day", created.Day)
	s.publish(eventbus.EventAssignmentCreated, created, nil)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Assignment, error) {
	return s.repo.Get(ctx, id)
}

// ListForWorker returns a worker's assignments for day ordered by sequence.
func (s *Service) ListForWorker(ctx context.Context, workerID string, day Day) ([]*Assignment, error) {
	return s.repo.ListByWorkerDay(ctx, workerID, day)
}

// Start moves a queued or paused assignment to in_progress. A start on an
// assignment that is already in progress returns it unchanged.
func (s *Service) Start(ctx context.Context, id int64, coord *geofence.Coordinate) (*Assignment, error) {
	res, err := s.start(ctx, id, coord, startOptions{})
	if err != nil {
		return nil, err
	}
	return res.Started, nil
}

// Resume is Start restricted to paused assignments.
func (s *Service) Resume(ctx context.Context, id int64, coord *geofence.Coordinate) (*Assignment, error) {
	res, err := s.start(ctx, id, coord, startOptions{requirePaused: true})
	if err != nil {
		return nil, err
	}
	return res.Started, nil
}

type PauseAndStartResult struct {
	Paused  *Assignment `json:"paused,omitempty"`
	Started *Assignment `json:"started"`
}

// PauseAndStart pauses whatever the worker has in progress and starts id in
// the same write. Either both records change or neither does.
func (s *Service) PauseAndStart(ctx context.Context, id int64, coord *geofence.Coordinate) (*PauseAndStartResult, error) {
	return s.start(ctx, id, coord, startOptions{pauseActive: true})
}

type startOptions struct {
	pauseActive   bool
	requirePaused bool
}

func (s *Service) start(ctx context.Context, id int64, coord *geofence.Coordinate, opts startOptions) (*PauseAndStartResult, error) {
	action := "start"
	if opts.requirePaused {
		action = "resume"
	}
	res := &PauseAndStartResult{}
	var from Status
	started, err := s.update(ctx, id, func(target *Assignment, set []*Assignment, now time.Time) ([]*Assignment, error) {
		if target.Status == StatusInProgress {
			return nil, nil
		}
		if target.Status != StatusQueued && target.Status != StatusPaused ||
			opts.requirePaused && target.Status != StatusPaused {
			return nil, newInvalidTransitionError(target, action)
		}
		validated, err := s.checkStartGuards(ctx, target, set, coord, now)
		if err != nil {
			return nil, err
		}

		changed := []*Assignment{target}
		if active := activeOf(set, target.ID); active != nil {
			if !opts.pauseActive {
				return nil, newAnotherTaskActiveError(active)
			}
			active.Status = StatusPaused
			active.PauseTime = &now
			res.Paused = active
			changed = append(changed, active)
		}

		from = target.Status
		target.Status = StatusInProgress
		target.StartTime = &now
		target.PauseTime = nil
		if validated != nil {
			target.GeofenceValidation.LastValidatedAt = &now
			target.GeofenceValidation.LastValidatedLocation = validated
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	res.Started = started
	if from == "" {
		return res, nil
	}

	if res.Paused != nil {
		slog.InfoContext(ctx, "assignment paused for switch", "assignment_id", res.Paused.ID, "worker_id", res.Paused.WorkerID, "day", res.Paused.Day)
		s.publish(eventbus.EventAssignmentPaused, res.Paused, map[string]string{"switched_to": strconv.FormatInt(started.ID, 10)})
	}
	slog.InfoContext(ctx, "assignment started", "assignment_id", started.ID, "worker_id", started.WorkerID, "day", started.Day, "from", from)
	s.publish(eventbus.EventAssignmentStarted, started, map[string]string{"from": string(from)})
	return res, nil
}

func (s *Service) checkStartGuards(ctx context.Context, target *Assignment, set []*Assignment, coord *geofence.Coordinate, now time.Time) (*geofence.Coordinate, error) {
	dep := dependency.Resolve(toItem(target), target.Dependencies, toItems(set))
	if len(dep.Missing) > 0 {
		return nil, newDependencyMissingError(dep.Missing, dep)
	}
	if len(dep.Unmet) > 0 {
		return nil, newDependencyNotMetError(dep)
	}
	if !target.GeofenceValidation.Required {
		return nil, nil
	}

	if coord == nil {
		return nil, newValidationError("location is required to start a geofenced assignment")
	}
	if coord.CapturedAt.IsZero() {
		return nil, newValidationError("location capturedAt is required")
	}
	if err := coord.Validate(); err != nil {
		return nil, newValidationError(err.Error())
	}
	age := now.Sub(coord.CapturedAt)
	if age < 0 {
		age = -age
	}
	if age > s.freshness {
		return nil, newLocationStaleError(age, s.freshness)
	}

	fence, err := s.fences.Fence(ctx, target.ProjectID)
	if err != nil {
		return nil, err
	}
	check := geofence.Check(*coord, fence)
	if !check.Inside {
		slog.WarnContext(ctx, "start refused outside geofence", "assignment_id", target.ID, "worker_id", target.WorkerID,
			"distance", check.Distance, "allowed_radius", check.AllowedRadius)
		s.publish(eventbus.EventAssignmentGeofenceRejected, target, map[string]string{
			"distance_meters":       strconv.FormatFloat(check.Distance, 'f', 1, 64),
			"allowed_radius_meters": strconv.FormatFloat(check.AllowedRadius, 'f', 1, 64),
		})
		return nil, newOutsideGeofenceError(check)
	}
	c := *coord
	return &c, nil
}

func (s *Service) Pause(ctx context.Context, id int64) (*Assignment, error) {
	var changed bool
	a, err := s.update(ctx, id, func(target *Assignment, _ []*Assignment, now time.Time) ([]*Assignment, error) {
		switch target.Status {
		case StatusPaused:
			return nil, nil
		case StatusInProgress:
		default:
			return nil, newInvalidTransitionError(target, "pause")
		}
		target.Status = StatusPaused
		target.PauseTime = &now
		changed = true
		return []*Assignment{target}, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		slog.InfoContext(ctx, "assignment paused", "assignment_id", a.ID, "worker_id", a.WorkerID, "day", a.Day)
		s.publish(eventbus.EventAssignmentPaused, a, nil)
	}
	return a, nil
}

// Complete is a worker assertion and does not require the target to be met.
func (s *Service) Complete(ctx context.Context, id int64) (*Assignment, error) {
	var changed bool
	a, err := s.update(ctx, id, func(target *Assignment, _ []*Assignment, now time.Time) ([]*Assignment, error) {
		switch target.Status {
		case StatusCompleted:
			return nil, nil
		case StatusInProgress, StatusPaused:
		default:
			return nil, newInvalidTransitionError(target, "complete")
		}
		target.Status = StatusCompleted
		target.CompletedAt = &now
		p := &target.DailyTarget.Progress
		if target.DailyTarget.QuantityBased() && p.Total > 0 && p.Completed >= p.Total {
			p.Percentage = 100
		}
		changed = true
		return []*Assignment{target}, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		slog.InfoContext(ctx, "assignment completed", "assignment_id", a.ID, "worker_id", a.WorkerID, "day", a.Day,
			"percentage", a.DailyTarget.Progress.Percentage)
		s.publish(eventbus.EventAssignmentCompleted, a, map[string]string{
			"percentage": strconv.Itoa(a.DailyTarget.Progress.Percentage),
		})
	}
	return a, nil
}

func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*Assignment, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		return nil, newValidationError("reason must be at most 500 characters")
	}
	var changed bool
	a, err := s.update(ctx, id, func(target *Assignment, _ []*Assignment, now time.Time) ([]*Assignment, error) {
		switch target.Status {
		case StatusCancelled:
			return nil, nil
		case StatusCompleted:
			return nil, newInvalidTransitionError(target, "cancel")
		}
		target.Status = StatusCancelled
		target.CancelledAt = &now
		target.CancelReason = reason
		changed = true
		return []*Assignment{target}, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		slog.InfoContext(ctx, "assignment cancelled", "assignment_id", a.ID, "worker_id", a.WorkerID, "day", a.Day)
		s.publish(eventbus.EventAssignmentCancelled, a, map[string]string{"reason": reason})
	}
	return a, nil
}

// Reset returns a paused assignment to the queue.
func (s *Service) Reset(ctx context.Context, id int64) (*Assignment, error) {
	var changed bool
	a, err := s.update(ctx, id, func(target *Assignment, _ []*Assignment, _ time.Time) ([]*Assignment, error) {
		switch target.Status {
		case StatusQueued:
			return nil, nil
		case StatusPaused:
		default:
			return nil, newInvalidTransitionError(target, "reset")
		}
		target.Status = StatusQueued
		target.StartTime = nil
		target.PauseTime = nil
		changed = true
		return []*Assignment{target}, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		slog.InfoContext(ctx, "assignment reset", "assignment_id", a.ID, "worker_id", a.WorkerID, "day", a.Day)
		s.publish(eventbus.EventAssignmentReset, a, nil)
	}
	return a, nil
}

// ReportProgress records work done against the daily target. Repeating the
// same absolute report leaves the record untouched.
func (s *Service) ReportProgress(ctx context.Context, id int64, r ProgressReport) (*Assignment, error) {
	var changed bool
	a, err := s.update(ctx, id, func(target *Assignment, _ []*Assignment, _ time.Time) ([]*Assignment, error) {
		if target.Status.Terminal() {
			return nil, newInvalidTransitionError(target, "report progress on")
		}
		next, ok, err := applyProgress(target.DailyTarget, r)
		if err != nil || !ok {
			return nil, err
		}
		target.DailyTarget.Progress = next
		changed = true
		return []*Assignment{target}, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		p := a.DailyTarget.Progress
		slog.InfoContext(ctx, "assignment progress", "assignment_id", a.ID, "worker_id", a.WorkerID, "day", a.Day,
			"completed", p.Completed, "percentage", p.Percentage)
		s.publish(eventbus.EventAssignmentProgress, a, map[string]string{
			"completed":  strconv.FormatFloat(p.Completed, 'f', -1, 64),
			"percentage": strconv.Itoa(p.Percentage),
		})
	}
	return a, nil
}

type UpdateInput struct {
	Priority      *Priority  `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Deadline      *time.Time `json:"deadline"`
	ClearDeadline bool       `json:"clearDeadline"`
	Description   *string    `json:"description" validate:"omitempty,max=500"`
	Quantity      *float64   `json:"quantity" validate:"omitempty,gt=0"`
}

// Update applies supervisor edits to a non-terminal assignment.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*Assignment, error) {
	if err := validate.Struct(in); err != nil {
		return nil, cerr.WrapValidationError(err)
	}
	if in.Deadline != nil && in.ClearDeadline {
		return nil, newValidationError("deadline and clearDeadline are mutually exclusive")
	}
	var fields []string
	a, err := s.update(ctx, id, func(target *Assignment, _ []*Assignment, _ time.Time) ([]*Assignment, error) {
		if target.Status.Terminal() {
			return nil, newInvalidTransitionError(target, "update")
		}
		if in.Priority != nil && *in.Priority != target.Priority {
			target.Priority = *in.Priority
			fields = append(fields, "priority")
		}
		if in.Deadline != nil {
			target.Deadline = utcPtr(in.Deadline)
			fields = append(fields, "deadline")
		} else if in.ClearDeadline && target.Deadline != nil {
			target.Deadline = nil
			fields = append(fields, "deadline")
		}
		if in.Description != nil {
			target.DailyTarget.Description = strings.TrimSpace(*in.Description)
			fields = append(fields, "description")
		}
		if in.Quantity != nil {
			if !target.DailyTarget.QuantityBased() {
				return nil, newValidationError("quantity cannot be set on a percentage target")
			}
			retarget(&target.DailyTarget, *in.Quantity)
			fields = append(fields, "quantity")
		}
		if len(fields) == 0 {
			return nil, nil
		}
		return []*Assignment{target}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		slog.InfoContext(ctx, "assignment updated", "assignment_id", a.ID, "fields", fields)
		s.publish(eventbus.EventAssignmentUpdated, a, map[string]string{"fields": strings.Join(fields, ",")})
	}
	return a, nil
}

func (s *Service) AddInstruction(ctx context.Context, id int64, text, author string) (*Assignment, error) {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > 2000 {
		return nil, newValidationError("instruction text must be 1-2000 characters")
	}
	a, err := s.update(ctx, id, func(target *Assignment, _ []*Assignment, now time.Time) ([]*Assignment, error) {
		if target.Status.Terminal() {
			return nil, newInvalidTransitionError(target, "add an instruction to")
		}
		target.Instructions = append(target.Instructions, Instruction{Text: text, Author: strings.TrimSpace(author), CreatedAt: now})
		return []*Assignment{target}, nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "assignment instruction added", "assignment_id", a.ID, "worker_id", a.WorkerID, "day", a.Day,
		"instructions", len(a.Instructions))
	s.publish(eventbus.EventAssignmentUpdated, a, map[string]string{"fields": "instructions"})
	return a, nil
}

type mutateFunc func(target *Assignment, set []*Assignment, now time.Time) (changed []*Assignment, err error)

// update runs fn against fresh copies of the worker's day under its lock and
// saves whatever fn reports as changed. It returns the target as stored.
func (s *Service) update(ctx context.Context, id int64, fn mutateFunc) (*Assignment, error) {
	ref, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var out *Assignment
	err = s.withWorkerDay(ctx, ref.WorkerID, ref.Day, func(set []*Assignment) error {
		target := findByID(set, id)
		if target == nil {
			return NewNotFoundError(id)
		}
		now := s.now().UTC()
		changed, err := fn(target, set, now)
		if err != nil {
			return err
		}
		if len(changed) > 0 {
			for _, c := range changed {
				c.UpdatedAt = now
			}
			if err := s.save(ctx, changed); err != nil {
				return err
			}
		}
		out = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) withWorkerDay(ctx context.Context, workerID string, day Day, fn func(set []*Assignment) error) error {
	key := lockKey(workerID, day)
	lctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	release, err := s.locker.Acquire(lctx, key)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newLockTimeoutError(key, err)
	}
	defer release()

	set, err := s.repo.ListByWorkerDay(ctx, workerID, day)
	if err != nil {
		return err
	}
	return fn(set)
}

// save retries once when the store reports a transient failure. Before the
// retry it checks whether the first attempt landed anyway.
func (s *Service) save(ctx context.Context, changed []*Assignment) error {
	err := s.repo.Save(ctx, changed...)
	if err == nil || !cerr.IsRetryable(err) {
		return err
	}
	slog.WarnContext(ctx, "assignment save failed, retrying once", "assignment_id", changed[0].ID, "error", err)

	applied, checkErr := s.alreadyApplied(ctx, changed)
	if checkErr != nil {
		return err
	}
	if applied {
		for _, a := range changed {
			a.Revision++
		}
		return nil
	}
	return s.repo.Save(ctx, changed...)
}

func (s *Service) alreadyApplied(ctx context.Context, changed []*Assignment) (bool, error) {
	var applied, pending int
	for _, a := range changed {
		cur, err := s.repo.Get(ctx, a.ID)
		if err != nil {
			return false, err
		}
		switch cur.Revision {
		case a.Revision + 1:
			applied++
		case a.Revision:
			pending++
		default:
			return false, NewConcurrentModificationError(a.ID)
		}
	}
	if applied > 0 && pending > 0 {
		return false, NewConcurrentModificationError(changed[0].ID)
	}
	return applied == len(changed), nil
}

func (s *Service) publish(t eventbus.EventType, a *Assignment, metadata map[string]string) {
	if s.bus == nil {
		return
	}
	s.bus.PublishNew(t, eventbus.Subject{
		AssignmentID: a.ID,
		WorkerID:     a.WorkerID,
		ProjectID:    a.ProjectID,
		SupervisorID: a.SupervisorID,
		Day:          string(a.Day),
		TaskName:     a.TaskName,
	}, metadata)
}

func lockKey(workerID string, day Day) string {
	return fmt.Sprintf("assignment:%s:%s", workerID, day)
}

func findByID(set []*Assignment, id int64) *Assignment {
	for _, a := range set {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func activeOf(set []*Assignment, except int64) *Assignment {
	for _, a := range set {
		if a.ID != except && a.Status == StatusInProgress {
			return a
		}
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func toItem(a *Assignment) dependency.Item {
	return dependency.Item{
		ID:        a.ID,
		WorkerID:  a.WorkerID,
		Day:       string(a.Day),
		Name:      a.TaskName,
		Completed: a.Status == StatusCompleted,
	}
}

func toItems(set []*Assignment) []dependency.Item {
	items := make([]dependency.Item, len(set))
	for i, a := range set {
		items[i] = toItem(a)
	}
	return items
}
