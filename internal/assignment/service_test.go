package assignment_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/sitecrew/internal/assignment"
	"github.com/kazz187/sitecrew/internal/assignment/repositoryimpl"
	"github.com/kazz187/sitecrew/internal/eventbus"
	"github.com/kazz187/sitecrew/internal/geofence"
	"github.com/kazz187/sitecrew/internal/lock"
	"github.com/kazz187/sitecrew/pkg/cerr"
	"github.com/kazz187/sitecrew/pkg/storage"
)

const testDay = assignment.Day("2026-10-19")

var siteFence = geofence.Fence{Latitude: 35.681236, Longitude: 139.767125, RadiusMeters: 100, AllowedVariance: 20}

type fences map[string]geofence.Fence

func (f fences) Fence(_ context.Context, projectID string) (geofence.Fence, error) {
	fence, ok := f[projectID]
	if !ok {
		return geofence.Fence{}, cerr.NewReasonError(cerr.NotFound, "PROJECT_NOT_FOUND", "project not found", nil)
	}
	return fence, nil
}

// flakyRepo fails the next Save calls with a transient error. With applied
// set the write lands before the error is reported.
type flakyRepo struct {
	assignment.Repository
	mu       sync.Mutex
	failures int
	applied  bool
}

func (f *flakyRepo) Save(ctx context.Context, changed ...*assignment.Assignment) error {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if !fail {
		return f.Repository.Save(ctx, changed...)
	}
	if f.applied {
		if err := f.Repository.Save(ctx, changed...); err != nil {
			return err
		}
		for _, c := range changed {
			c.Revision--
		}
	}
	return cerr.WrapStorageWriteError("assignments", errors.New("connection reset"))
}

type harness struct {
	svc    *assignment.Service
	repo   *flakyRepo
	now    time.Time
	events <-chan *eventbus.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	h := &harness{
		repo: &flakyRepo{Repository: repositoryimpl.NewYAMLRepository(s)},
		now:  time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
	}
	bus := eventbus.New()
	_, h.events = bus.Subscribe(256)
	h.svc = assignment.NewService(h.repo, lock.NewKeyed(), fences{"p1": siteFence}, bus,
		assignment.WithClock(func() time.Time { return h.now }))
	return h
}

func (h *harness) create(t *testing.T, worker, name string, deps ...int64) *assignment.Assignment {
	t.Helper()
	a, err := h.svc.Create(context.Background(), assignment.CreateInput{
		WorkerID:     worker,
		ProjectID:    "p1",
		TaskID:       "task-" + name,
		SupervisorID: "sup1",
		TaskName:     name,
		Day:          testDay,
		Dependencies: deps,
		DailyTarget:  assignment.TargetInput{Description: "lay tiles", Quantity: 25, Unit: "m2"},
	})
	require.NoError(t, err)
	return a
}

func (h *harness) drain() []eventbus.EventType {
	var types []eventbus.EventType
	for {
		select {
		case e := <-h.events:
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

func (h *harness) status(t *testing.T, id int64) assignment.Status {
	t.Helper()
	a, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return a.Status
}

func ptr[T any](v T) *T { return &v }

func TestService_Create(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "w1", "Tiles")

	assert.Equal(t, assignment.StatusQueued, a.Status)
	assert.Equal(t, assignment.PriorityMedium, a.Priority)
	assert.Equal(t, 100, a.DailyTarget.TargetCompletion)
	assert.InDelta(t, 25.0, a.DailyTarget.Progress.Total, 1e-9)
	assert.Equal(t, []eventbus.EventType{eventbus.EventAssignmentCreated}, h.drain())
}

func TestService_CreatePercentTarget(t *testing.T) {
	h := newHarness(t)
	a, err := h.svc.Create(context.Background(), assignment.CreateInput{
		WorkerID: "w1", ProjectID: "p1", TaskID: "t", TaskName: "Inspect", Day: testDay,
	})
	require.NoError(t, err)
	assert.Equal(t, assignment.PercentUnit, a.DailyTarget.Unit)
	assert.InDelta(t, 100.0, a.DailyTarget.Progress.Total, 1e-9)
}

func TestService_CreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, assignment.CreateInput{WorkerID: "../w1", ProjectID: "p1", TaskID: "t", TaskName: "x", Day: testDay})
	assert.Equal(t, assignment.ReasonValidationFailed, cerr.ReasonOf(err))

	_, err = h.svc.Create(ctx, assignment.CreateInput{WorkerID: "w1", ProjectID: "p1", TaskID: "t", TaskName: "x", Day: "19/10/2026"})
	assert.Equal(t, assignment.ReasonValidationFailed, cerr.ReasonOf(err))

	_, err = h.svc.Create(ctx, assignment.CreateInput{WorkerID: "w1", ProjectID: "nope", TaskID: "t", TaskName: "x", Day: testDay})
	assert.Equal(t, "PROJECT_NOT_FOUND", cerr.ReasonOf(err))
}

func TestService_CreateRejectsMissingDependency(t *testing.T) {
	h := newHarness(t)
	other := h.create(t, "w2", "Other")

	_, err := h.svc.Create(context.Background(), assignment.CreateInput{
		WorkerID: "w1", ProjectID: "p1", TaskID: "t", TaskName: "x", Day: testDay,
		Dependencies: []int64{other.ID, 42},
	})
	require.Error(t, err)
	assert.Equal(t, assignment.ReasonDependencyMissing, cerr.ReasonOf(err))
	assert.Equal(t, []any{float64(other.ID), float64(42)}, cerr.DetailFields(err)["missingDependencyIds"])
}

func TestService_DependencyScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.create(t, "w1", "Formwork")
	b := h.create(t, "w1", "Pour", a.ID)

	_, err := h.svc.Start(ctx, b.ID, nil)
	require.Error(t, err)
	assert.Equal(t, assignment.ReasonDependencyNotMet, cerr.ReasonOf(err))
	details := cerr.DetailFields(err)
	assert.Equal(t, []any{float64(a.ID)}, details["unmetDependencyIds"])
	assert.Equal(t, []any{"Formwork"}, details["unmetDependencyNames"])
	assert.Equal(t, assignment.StatusQueued, h.status(t, b.ID))

	_, err = h.svc.Start(ctx, a.ID, nil)
	require.NoError(t, err)
	_, err = h.svc.Complete(ctx, a.ID)
	require.NoError(t, err)
	started, err := h.svc.Start(ctx, b.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusInProgress, started.Status)
	require.NotNil(t, started.StartTime)
	assert.Equal(t, h.now, *started.StartTime)
}

func TestService_AnotherTaskActiveAndPauseAndStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.create(t, "w1", "A")
	c := h.create(t, "w1", "C")

	_, err := h.svc.Start(ctx, a.ID, nil)
	require.NoError(t, err)

	_, err = h.svc.Start(ctx, c.ID, nil)
	require.Error(t, err)
	assert.Equal(t, assignment.ReasonAnotherTaskActive, cerr.ReasonOf(err))
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
	assert.Equal(t, float64(a.ID), cerr.DetailFields(err)["activeTaskId"])
	assert.Equal(t, "A", cerr.DetailFields(err)["activeTaskName"])
	h.drain()

	res, err := h.svc.PauseAndStart(ctx, c.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Paused)
	assert.Equal(t, a.ID, res.Paused.ID)
	assert.Equal(t, assignment.StatusPaused, res.Paused.Status)
	assert.Equal(t, assignment.StatusInProgress, res.Started.Status)
	assert.Equal(t, assignment.StatusPaused, h.status(t, a.ID))
	assert.Equal(t, assignment.StatusInProgress, h.status(t, c.ID))
	assert.Equal(t, []eventbus.EventType{eventbus.EventAssignmentPaused, eventbus.EventAssignmentStarted}, h.drain())
}

func TestService_PauseAndStartIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.create(t, "w1", "A")
	b := h.create(t, "w1", "B")
	c := h.create(t, "w1", "C", b.ID)

	_, err := h.svc.Start(ctx, a.ID, nil)
	require.NoError(t, err)

	_, err = h.svc.PauseAndStart(ctx, c.ID, nil)
	assert.Equal(t, assignment.ReasonDependencyNotMet, cerr.ReasonOf(err))
	assert.Equal(t, assignment.StatusInProgress, h.status(t, a.ID))
	assert.Equal(t, assignment.StatusQueued, h.status(t, c.ID))
}

func TestService_PauseAndStartWithoutActive(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, "w1", "A")
	res, err := h.svc.PauseAndStart(context.Background(), a.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Paused)
	assert.Equal(t, assignment.StatusInProgress, res.Started.Status)
}

func TestService_ConcurrentStartsKeepOneActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var ids []int64
	for range 8 {
		ids = append(ids, h.create(t, "w1", "task").ID)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, conflicts int
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Start(ctx, id, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case cerr.ReasonOf(err) == assignment.ReasonAnotherTaskActive:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, len(ids)-1, conflicts)

	list, err := h.svc.ListForWorker(ctx, "w1", testDay)
	require.NoError(t, err)
	var active int
	for _, a := range list {
		if a.Status == assignment.StatusInProgress {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestService_Geofence(t *testing.T) {
	ctx := context.Background()
	inside := geofence.Coordinate{Latitude: 35.681236, Longitude: 139.767125, Accuracy: 8}
	outside := geofence.Coordinate{Latitude: 35.690236, Longitude: 139.767125}

	newGeofenced := func(t *testing.T, h *harness) *assignment.Assignment {
		a, err := h.svc.Create(ctx, assignment.CreateInput{
			WorkerID: "w1", ProjectID: "p1", TaskID: "t", TaskName: "Scaffold", Day: testDay, GeofenceRequired: true,
		})
		require.NoError(t, err)
		return a
	}

	t.Run("inside", func(t *testing.T) {
		h := newHarness(t)
		a := newGeofenced(t, h)
		c := inside
		c.CapturedAt = h.now.Add(-30 * time.Second)
		got, err := h.svc.Start(ctx, a.ID, &c)
		require.NoError(t, err)
		assert.Equal(t, assignment.StatusInProgress, got.Status)
		require.NotNil(t, got.GeofenceValidation.LastValidatedAt)
		assert.Equal(t, h.now, *got.GeofenceValidation.LastValidatedAt)
		assert.InDelta(t, inside.Latitude, got.GeofenceValidation.LastValidatedLocation.Latitude, 1e-9)
	})

	t.Run("outside", func(t *testing.T) {
		h := newHarness(t)
		a := newGeofenced(t, h)
		h.drain()
		c := outside
		c.CapturedAt = h.now
		_, err := h.svc.Start(ctx, a.ID, &c)
		require.Error(t, err)
		assert.Equal(t, assignment.ReasonOutsideGeofence, cerr.ReasonOf(err))
		d := cerr.DetailFields(err)
		assert.Greater(t, d["distanceMeters"].(float64), 900.0)
		assert.InDelta(t, 120.0, d["allowedRadiusMeters"].(float64), 1e-9)
		assert.Equal(t, assignment.StatusQueued, h.status(t, a.ID))
		assert.Equal(t, []eventbus.EventType{eventbus.EventAssignmentGeofenceRejected}, h.drain())
	})

	t.Run("stale", func(t *testing.T) {
		h := newHarness(t)
		a := newGeofenced(t, h)
		c := inside
		c.CapturedAt = h.now.Add(-3 * time.Minute)
		_, err := h.svc.Start(ctx, a.ID, &c)
		assert.Equal(t, assignment.ReasonLocationStale, cerr.ReasonOf(err))
		assert.InDelta(t, 180.0, cerr.DetailFields(err)["ageSeconds"].(float64), 1e-9)
	})

	t.Run("missing coordinate", func(t *testing.T) {
		h := newHarness(t)
		a := newGeofenced(t, h)
		_, err := h.svc.Start(ctx, a.ID, nil)
		assert.Equal(t, assignment.ReasonValidationFailed, cerr.ReasonOf(err))
		_, err = h.svc.Start(ctx, a.ID, &geofence.Coordinate{Latitude: 35.68, Longitude: 139.76})
		assert.Equal(t, assignment.ReasonValidationFailed, cerr.ReasonOf(err))
	})
}

func TestService_ProgressScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.create(t, "w1", "Tiles")

	got, err := h.svc.ReportProgress(ctx, a.ID, assignment.ProgressReport{Absolute: ptr(5.0), Unit: "m2"})
	require.NoError(t, err)
	assert.Equal(t, 20, got.DailyTarget.Progress.Percentage)
	rev := got.Revision

	got, err = h.svc.ReportProgress(ctx, a.ID, assignment.ProgressReport{Absolute: ptr(5.0), Unit: " m2 "})
	require.NoError(t, err)
	assert.Equal(t, 20, got.DailyTarget.Progress.Percentage)
	assert.Equal(t, rev, got.Revision, "identical report is a no-op")

	got, err = h.svc.ReportProgress(ctx, a.ID, assignment.ProgressReport{Absolute: ptr(25.0), Unit: "m2"})
	require.NoError(t, err)
	assert.Equal(t, 100, got.DailyTarget.Progress.Percentage)

	got, err = h.svc.ReportProgress(ctx, a.ID, assignment.ProgressReport{Delta: ptr(10.0), Unit: "m2"})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, got.DailyTarget.Progress.Completed, 1e-9, "clamped to total")

	_, err = h.svc.ReportProgress(ctx, a.ID, assignment.ProgressReport{Absolute: ptr(10.0), Unit: "m2"})
	assert.Equal(t, assignment.ReasonProgressDecrease, cerr.ReasonOf(err))

	got, err = h.svc.ReportProgress(ctx, a.ID, assignment.ProgressReport{Absolute: ptr(10.0), Unit: "m2", Correction: true})
	require.NoError(t, err)
	assert.Equal(t, 40, got.DailyTarget.Progress.Percentage)

	_, err = h.svc.ReportProgress(ctx, a.ID, assignment.ProgressReport{Absolute: ptr(12.0), Unit: "m"})
	assert.Equal(t, assignment.ReasonUnitMismatch, cerr.ReasonOf(err))
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))

	_, err = h.svc.ReportProgress(ctx, a.ID, assignment.ProgressReport{Unit: "m2"})
	assert.Equal(t, assignment.ReasonValidationFailed, cerr.ReasonOf(err))
}

func TestService_TerminalStates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.create(t, "w1", "A")

	_, err := h.svc.Complete(ctx, a.ID)
	assert.Equal(t, assignment.ReasonInvalidTransition, cerr.ReasonOf(err), "queued cannot complete")

	_, err = h.svc.Start(ctx, a.ID, nil)
	require.NoError(t, err)
	_, err = h.svc.ReportProgress(ctx, a.ID, assignment.ProgressReport{Absolute: ptr(25.0), Unit: "m2"})
	require.NoError(t, err)
	done, err := h.svc.Complete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusCompleted, done.Status)
	assert.Equal(t, 100, done.DailyTarget.Progress.Percentage)
	require.NotNil(t, done.CompletedAt)

	again, err := h.svc.Complete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, done.Revision, again.Revision)

	_, err = h.svc.ReportProgress(ctx, a.ID, assignment.ProgressReport{Delta: ptr(1.0), Unit: "m2"})
	assert.Equal(t, assignment.ReasonInvalidTransition, cerr.ReasonOf(err))
	_, err = h.svc.Cancel(ctx, a.ID, "weather")
	assert.Equal(t, assignment.ReasonInvalidTransition, cerr.ReasonOf(err))
	_, err = h.svc.Start(ctx, a.ID, nil)
	assert.Equal(t, assignment.ReasonInvalidTransition, cerr.ReasonOf(err))
	_, err = h.svc.Update(ctx, a.ID, assignment.UpdateInput{Priority: ptr(assignment.PriorityHigh)})
	assert.Equal(t, assignment.ReasonInvalidTransition, cerr.ReasonOf(err))
}

func TestService_CancelAndReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.create(t, "w1", "A")
	b := h.create(t, "w1", "B")

	cancelled, err := h.svc.Cancel(ctx, a.ID, " rain ")
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusCancelled, cancelled.Status)
	assert.Equal(t, "rain", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = h.svc.Start(ctx, b.ID, nil)
	require.NoError(t, err)
	_, err = h.svc.Pause(ctx, b.ID)
	require.NoError(t, err)
	reset, err := h.svc.Reset(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusQueued, reset.Status)
	assert.Nil(t, reset.StartTime)
	assert.Nil(t, reset.PauseTime)

	_, err = h.svc.Pause(ctx, b.ID)
	assert.Equal(t, assignment.ReasonInvalidTransition, cerr.ReasonOf(err))
	_, err = h.svc.Resume(ctx, b.ID, nil)
	assert.Equal(t, assignment.ReasonInvalidTransition, cerr.ReasonOf(err))
}

func TestService_PauseResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.create(t, "w1", "A")

	_, err := h.svc.Start(ctx, a.ID, nil)
	require.NoError(t, err)
	paused, err := h.svc.Pause(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, paused.PauseTime)

	h.now = h.now.Add(time.Hour)
	resumed, err := h.svc.Resume(ctx, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, assignment.StatusInProgress, resumed.Status)
	assert.Nil(t, resumed.PauseTime)
	assert.Equal(t, h.now, *resumed.StartTime)

	again, err := h.svc.Start(ctx, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, resumed.Revision, again.Revision)
}

func TestService_UpdateAndInstructions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.create(t, "w1", "A")
	_, err := h.svc.ReportProgress(ctx, a.ID, assignment.ProgressReport{Absolute: ptr(20.0), Unit: "m2"})
	require.NoError(t, err)

	deadline := h.now.Add(4 * time.Hour)
	got, err := h.svc.Update(ctx, a.ID, assignment.UpdateInput{
		Priority: ptr(assignment.PriorityCritical),
		Deadline: &deadline,
		Quantity: ptr(10.0),
	})
	require.NoError(t, err)
	assert.Equal(t, assignment.PriorityCritical, got.Priority)
	assert.InDelta(t, 10.0, got.DailyTarget.Progress.Completed, 1e-9)
	assert.Equal(t, 100, got.DailyTarget.Progress.Percentage)

	_, err = h.svc.Update(ctx, a.ID, assignment.UpdateInput{Quantity: ptr(-1.0)})
	assert.Equal(t, assignment.ReasonValidationFailed, cerr.ReasonOf(err))

	got, err = h.svc.AddInstruction(ctx, a.ID, "Use the blue tiles", "sup1")
	require.NoError(t, err)
	require.Len(t, got.Instructions, 1)
	assert.Equal(t, "sup1", got.Instructions[0].Author)
}

func TestService_DeadlineStoredInUTC(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	jst := time.FixedZone("JST", 9*3600)
	deadline := time.Date(2026, 10, 19, 17, 30, 0, 0, jst)

	a, err := h.svc.Create(ctx, assignment.CreateInput{
		WorkerID:     "w1",
		ProjectID:    "p1",
		TaskID:       "task-A",
		SupervisorID: "sup1",
		TaskName:     "A",
		Day:          testDay,
		Deadline:     &deadline,
		DailyTarget:  assignment.TargetInput{Description: "lay tiles", Quantity: 25, Unit: "m2"},
	})
	require.NoError(t, err)
	require.NotNil(t, a.Deadline)
	assert.Equal(t, time.UTC, a.Deadline.Location())
	assert.True(t, deadline.Equal(*a.Deadline))

	stored, err := h.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Deadline)
	assert.Equal(t, time.UTC, stored.Deadline.Location())
	assert.True(t, deadline.Equal(*stored.Deadline))

	later := deadline.Add(time.Hour)
	got, err := h.svc.Update(ctx, a.ID, assignment.UpdateInput{Deadline: &later})
	require.NoError(t, err)
	require.NotNil(t, got.Deadline)
	assert.Equal(t, time.UTC, got.Deadline.Location())
	assert.True(t, later.Equal(*got.Deadline))
}

func TestService_AddInstructionLogsAndPublishes(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := newHarness(t)
	a := h.create(t, "w1", "A")
	h.drain()

	_, err := h.svc.AddInstruction(context.Background(), a.ID, "Use the blue tiles", "sup1")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "assignment instruction added")
	assert.Contains(t, out, fmt.Sprintf("assignment_id=%d", a.ID))
	assert.Contains(t, out, "instructions=1")

	select {
	case e := <-h.events:
		assert.Equal(t, eventbus.EventAssignmentUpdated, e.Type)
		assert.Equal(t, "instructions", e.Metadata["fields"])
		assert.Equal(t, a.ID, e.Subject.AssignmentID)
	default:
		t.Fatal("no event published")
	}
}

func TestService_RetriesTransientSave(t *testing.T) {
	ctx := context.Background()

	t.Run("first attempt lost", func(t *testing.T) {
		h := newHarness(t)
		a := h.create(t, "w1", "A")
		h.repo.failures = 1
		got, err := h.svc.Start(ctx, a.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Revision)
		assert.Equal(t, assignment.StatusInProgress, h.status(t, a.ID))
	})

	t.Run("first attempt landed", func(t *testing.T) {
		h := newHarness(t)
		a := h.create(t, "w1", "A")
		h.repo.failures, h.repo.applied = 1, true
		got, err := h.svc.Start(ctx, a.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Revision)
		stored, err := h.svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored.Revision, "not applied twice")
	})

	t.Run("second failure surfaces", func(t *testing.T) {
		h := newHarness(t)
		a := h.create(t, "w1", "A")
		h.repo.failures = 2
		_, err := h.svc.Start(ctx, a.ID, nil)
		require.Error(t, err)
		assert.True(t, cerr.IsRetryable(err))
		assert.Equal(t, assignment.StatusQueued, h.status(t, a.ID))
	})
}

func TestService_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Start(context.Background(), 404, nil)
	assert.Equal(t, assignment.ReasonAssignmentNotFound, cerr.ReasonOf(err))
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
