// Package dependency decides whether an assignment's prerequisites are done.
// Dependencies are scoped to one worker and one day: an id that points at a
// different worker's or day's assignment is treated as missing.
package dependency

import (
	"fmt"
	"slices"
)

// Item is the resolver's view of one assignment in the day's set.
type Item struct {
	ID        int64
	WorkerID  string
	Day       string
	Name      string
	Completed bool
}

// Result lists why a target may not leave the queue. Unmet holds ids that
// exist but are not completed, Missing holds ids that resolve to nothing.
type Result struct {
	Satisfied  bool
	Unmet      []int64
	UnmetNames []string
	Missing    []int64
}

// Resolve checks every declared dependency of target against set, preserving
// the declared order in the returned lists.
func Resolve(target Item, deps []int64, set []Item) Result {
	byID := make(map[int64]Item, len(set))
	for _, it := range set {
		if it.WorkerID != target.WorkerID || it.Day != target.Day {
			continue
		}
		byID[it.ID] = it
	}

	res := Result{Satisfied: true}
	for _, id := range deps {
		dep, ok := byID[id]
		switch {
		case !ok || id == target.ID:
			res.Missing = append(res.Missing, id)
		case !dep.Completed:
			res.Unmet = append(res.Unmet, id)
			res.UnmetNames = append(res.UnmetNames, dep.Name)
		}
	}
	res.Satisfied = len(res.Unmet) == 0 && len(res.Missing) == 0
	return res
}

// ValidateDeclared rejects a dependency list that could never be satisfied:
// duplicates, self references and ids outside the worker's day.
// It returns the ids that do not resolve separately so callers can report them.
func ValidateDeclared(target Item, deps []int64, set []Item) (missing []int64, err error) {
	seen := make(map[int64]struct{}, len(deps))
	for _, id := range deps {
		if id <= 0 {
			return nil, fmt.Errorf("dependency id %d is not a valid assignment id", id)
		}
		if target.ID != 0 && id == target.ID {
			return nil, fmt.Errorf("assignment cannot depend on itself")
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("dependency %d listed more than once", id)
		}
		seen[id] = struct{}{}
	}
	for _, id := range deps {
		found := slices.ContainsFunc(set, func(it Item) bool {
			return it.ID == id && it.WorkerID == target.WorkerID && it.Day == target.Day
		})
		if !found {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
