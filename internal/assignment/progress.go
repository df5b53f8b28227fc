package assignment

import (
	"math"
	"strings"
)

// PercentUnit is the unit of targets without a quantity; progress is then
// reported directly in percent.
const PercentUnit = "%"

// ProgressReport carries exactly one of Delta or Absolute.
type ProgressReport struct {
	Delta      *float64 `json:"delta,omitempty"`
	Absolute   *float64 `json:"absolute,omitempty"`
	Unit       string   `json:"unit"`
	Correction bool     `json:"correction,omitempty"`
}

// Percentage returns clamp(round(completed/total*100), 0, 100). A non-positive
// total yields 0.
func Percentage(completed, total float64) int {
	if total <= 0 || math.IsNaN(completed) || math.IsNaN(total) {
		return 0
	}
	p := math.Round(completed / total * 100)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return int(p)
}

// newTarget normalizes a target at creation time. The denominator is the
// target quantity, or 100 for targets that are tracked in percent.
func newTarget(description string, quantity float64, unit string, targetCompletion int) DailyTarget {
	t := DailyTarget{
		Description:      strings.TrimSpace(description),
		Quantity:         quantity,
		Unit:             strings.TrimSpace(unit),
		TargetCompletion: targetCompletion,
	}
	if t.TargetCompletion == 0 {
		t.TargetCompletion = 100
	}
	if t.QuantityBased() {
		t.Progress.Total = quantity
	} else {
		t.Unit = PercentUnit
		t.Progress.Total = 100
	}
	return t
}

// applyProgress validates r against t and returns the updated progress.
// changed is false when the report leaves the record as it is.
func applyProgress(t DailyTarget, r ProgressReport) (Progress, bool, error) {
	if (r.Delta == nil) == (r.Absolute == nil) {
		return Progress{}, false, newValidationError("exactly one of delta or absolute must be set")
	}
	unit := strings.TrimSpace(r.Unit)
	if unit != t.Unit {
		return Progress{}, false, newUnitMismatchError(unit, t.Unit)
	}

	cur := t.Progress
	var next float64
	if r.Delta != nil {
		if math.IsNaN(*r.Delta) || math.IsInf(*r.Delta, 0) {
			return Progress{}, false, newValidationError("delta must be a finite number")
		}
		next = cur.Completed + *r.Delta
	} else {
		if math.IsNaN(*r.Absolute) || math.IsInf(*r.Absolute, 0) || *r.Absolute < 0 {
			return Progress{}, false, newValidationError("absolute must be a finite non-negative number")
		}
		next = *r.Absolute
	}
	if next < cur.Completed && !r.Correction {
		return Progress{}, false, newProgressDecreaseError(cur.Completed, next)
	}
	next = max(0, min(next, cur.Total))

	out := Progress{
		Completed:  next,
		Total:      cur.Total,
		Percentage: Percentage(next, cur.Total),
	}
	return out, out != cur, nil
}

// retarget changes the denominator and clamps what was already done to it.
func retarget(t *DailyTarget, quantity float64) {
	if !t.QuantityBased() {
		return
	}
	t.Quantity = quantity
	t.Progress.Total = quantity
	t.Progress.Completed = min(t.Progress.Completed, quantity)
	t.Progress.Percentage = Percentage(t.Progress.Completed, quantity)
}
