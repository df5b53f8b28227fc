package assignment

import (
	"fmt"
	"math"
	"time"

	"github.com/kazz187/sitecrew/internal/dependency"
	"github.com/kazz187/sitecrew/internal/geofence"
	"github.com/kazz187/sitecrew/pkg/cerr"
)

const (
	ReasonAssignmentNotFound     = "ASSIGNMENT_NOT_FOUND"
	ReasonInvalidTransition      = "INVALID_TRANSITION"
	ReasonAnotherTaskActive      = "ANOTHER_TASK_ACTIVE"
	ReasonDependencyNotMet       = "DEPENDENCY_NOT_MET"
	ReasonDependencyMissing      = "DEPENDENCY_MISSING"
	ReasonOutsideGeofence        = "OUTSIDE_GEOFENCE"
	ReasonLocationStale          = "LOCATION_STALE"
	ReasonUnitMismatch           = "UNIT_MISMATCH"
	ReasonProgressDecrease       = "PROGRESS_DECREASE"
	ReasonConcurrentModification = "CONCURRENT_MODIFICATION"
	ReasonValidationFailed       = cerr.ReasonValidationFailed
	ReasonLockTimeout            = "LOCK_TIMEOUT"
)

func NewNotFoundError(id int64) error {
	return cerr.NewReasonError(cerr.NotFound, ReasonAssignmentNotFound,
		fmt.Sprintf("assignment %d not found", id),
		map[string]any{"assignmentId": id})
}

func NewConcurrentModificationError(id int64) error {
	return cerr.NewReasonError(cerr.Aborted, ReasonConcurrentModification,
		fmt.Sprintf("assignment %d was modified concurrently", id),
		map[string]any{"assignmentId": id})
}

func newValidationError(msg string) *cerr.Error {
	return cerr.NewValidationError(msg)
}

func newInvalidTransitionError(a *Assignment, action string) error {
	return cerr.NewReasonError(cerr.FailedPrecondition, ReasonInvalidTransition,
		fmt.Sprintf("cannot %s assignment %d while it is %s", action, a.ID, a.Status),
		map[string]any{"assignmentId": a.ID, "status": string(a.Status), "action": action})
}

func newAnotherTaskActiveError(active *Assignment) error {
	return cerr.NewReasonError(cerr.FailedPrecondition, ReasonAnotherTaskActive,
		fmt.Sprintf("%q is already in progress; pause it first or use pause-and-start", active.TaskName),
		map[string]any{"activeTaskId": active.ID, "activeTaskName": active.TaskName})
}

func newDependencyNotMetError(res dependency.Result) error {
	return cerr.NewReasonError(cerr.FailedPrecondition, ReasonDependencyNotMet,
		fmt.Sprintf("%d prerequisite assignment(s) are not completed", len(res.Unmet)),
		map[string]any{"unmetDependencyIds": res.Unmet, "unmetDependencyNames": res.UnmetNames})
}

// newDependencyMissingError also lists any unmet dependencies so a client sees
// every blocker at once.
func newDependencyMissingError(missing []int64, unmet dependency.Result) error {
	fields := map[string]any{"missingDependencyIds": missing}
	if len(unmet.Unmet) > 0 {
		fields["unmetDependencyIds"] = unmet.Unmet
		fields["unmetDependencyNames"] = unmet.UnmetNames
	}
	return cerr.NewReasonError(cerr.FailedPrecondition, ReasonDependencyMissing,
		fmt.Sprintf("dependencies %v do not exist for this worker and day", missing), fields)
}

func newOutsideGeofenceError(res geofence.Result) error {
	return cerr.NewReasonError(cerr.FailedPrecondition, ReasonOutsideGeofence,
		fmt.Sprintf("%.1fm from site, allowed %.1fm", res.Distance, res.AllowedRadius),
		map[string]any{"distanceMeters": res.Distance, "allowedRadiusMeters": res.AllowedRadius})
}

func newLocationStaleError(age, window time.Duration) error {
	return cerr.NewReasonError(cerr.FailedPrecondition, ReasonLocationStale,
		fmt.Sprintf("location captured %s ago, must be within %s", age.Round(time.Second), window),
		map[string]any{"ageSeconds": math.Round(age.Seconds()), "windowSeconds": window.Seconds()})
}

func newUnitMismatchError(got, want string) error {
	return cerr.NewReasonError(cerr.InvalidArgument, ReasonUnitMismatch,
		fmt.Sprintf("reported unit %q does not match target unit %q", got, want),
		map[string]any{"reportedUnit": got, "targetUnit": want})
}

func newProgressDecreaseError(current, requested float64) error {
	return cerr.NewReasonError(cerr.FailedPrecondition, ReasonProgressDecrease,
		"progress cannot decrease without a correction",
		map[string]any{"currentCompleted": current, "requestedCompleted": requested})
}

func newLockTimeoutError(key string, err error) error {
	e := cerr.NewError(cerr.Unavailable, "assignment is busy, retry later", err)
	e.Reason = ReasonLockTimeout
	e.AddDetailFields(map[string]any{"lockKey": key})
	return e
}
