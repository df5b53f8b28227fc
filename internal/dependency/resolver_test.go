package dependency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(items ...Item) []Item {
	for i := range items {
		if items[i].WorkerID == "" {
			items[i].WorkerID = "w1"
		}
		if items[i].Day == "" {
			items[i].Day = "2026-10-19"
		}
	}
	return items
}

func TestResolve(t *testing.T) {
	set := day(
		Item{ID: 1, Name: "Formwork", Completed: true},
		Item{ID: 2, Name: "Rebar"},
		Item{ID: 3, Name: "Pour"},
		Item{ID: 9, Name: "Other worker", WorkerID: "w2", Completed: true},
		Item{ID: 10, Name: "Yesterday", Day: "2026-10-18", Completed: true},
	)
	target := Item{ID: 3, WorkerID: "w1", Day: "2026-10-19"}

	tests := []struct {
		name    string
		deps    []int64
		ok      bool
		unmet   []int64
		names   []string
		missing []int64
	}{
		{name: "no dependencies", deps: nil, ok: true},
		{name: "completed dependency", deps: []int64{1}, ok: true},
		{name: "queued dependency", deps: []int64{1, 2}, unmet: []int64{2}, names: []string{"Rebar"}},
		{name: "unknown id", deps: []int64{42}, missing: []int64{42}},
		{name: "other worker", deps: []int64{9}, missing: []int64{9}},
		{name: "other day", deps: []int64{10}, missing: []int64{10}},
		{name: "self", deps: []int64{3}, missing: []int64{3}},
		{name: "mixed", deps: []int64{2, 42, 1}, unmet: []int64{2}, names: []string{"Rebar"}, missing: []int64{42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resolve(target, tt.deps, set)
			assert.Equal(t, tt.ok, r.Satisfied)
			assert.Equal(t, tt.unmet, r.Unmet)
			assert.Equal(t, tt.names, r.UnmetNames)
			assert.Equal(t, tt.missing, r.Missing)
		})
	}
}

func TestValidateDeclared(t *testing.T) {
	set := day(Item{ID: 1}, Item{ID: 2}, Item{ID: 5, WorkerID: "w2"})
	target := Item{WorkerID: "w1", Day: "2026-10-19"}

	missing, err := ValidateDeclared(target, []int64{1, 2}, set)
	require.NoError(t, err)
	assert.Empty(t, missing)

	missing, err = ValidateDeclared(target, []int64{1, 5, 7}, set)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 7}, missing)

	_, err = ValidateDeclared(target, []int64{1, 1}, set)
	assert.Error(t, err)

	_, err = ValidateDeclared(target, []int64{0}, set)
	assert.Error(t, err)

	_, err = ValidateDeclared(Item{ID: 2, WorkerID: "w1", Day: "2026-10-19"}, []int64{2}, set)
	assert.Error(t, err)
}
