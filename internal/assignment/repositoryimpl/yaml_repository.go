package repositoryimpl

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/sitecrew/internal/assignment"
	"github.com/kazz187/sitecrew/pkg/cerr"
	"github.com/kazz187/sitecrew/pkg/storage"
)

const (
	assignmentsPrefix = "assignments"
	sequencePath      = assignmentsPrefix + "/sequence.yaml"
)

// dayDocument holds every assignment of one worker on one day, so a change
// touching several of them is a single write.
type dayDocument struct {
	WorkerID    string                   `yaml:"worker_id"`
	Day         assignment.Day           `yaml:"day"`
	Revision    int64                    `yaml:"revision"`
	Assignments []*assignment.Assignment `yaml:"assignments"`
}

type indexEntry struct {
	ID           int64          `yaml:"id"`
	WorkerID     string         `yaml:"worker_id"`
	Day          assignment.Day `yaml:"day"`
	ProjectID    string         `yaml:"project_id"`
	SupervisorID string         `yaml:"supervisor_id,omitempty"`
}

type sequence struct {
	LastID int64 `yaml:"last_id"`
}

type YAMLRepository struct {
	storage storage.Storage
	// serializes id issuance and document rewrites within this process
	mu sync.Mutex
}

var _ assignment.Repository = (*YAMLRepository)(nil)

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func dayDir(day assignment.Day) string {
	return fmt.Sprintf("%s/days/%s/workers", assignmentsPrefix, day)
}

func dayPath(workerID string, day assignment.Day) string {
	return fmt.Sprintf("%s/%s.yaml", dayDir(day), workerID)
}

func indexPath(id int64) string {
	return fmt.Sprintf("%s/index/%d.yaml", assignmentsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, a *assignment.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}
	doc, err := r.readDay(ctx, dayPath(a.WorkerID, a.Day))
	if err != nil {
		return err
	}
	if doc.WorkerID == "" {
		doc.WorkerID, doc.Day = a.WorkerID, a.Day
	}

	stored := a.Clone()
	stored.ID = id
	stored.Revision = 1
	doc.Assignments = append(doc.Assignments, stored)
	sortAssignments(doc.Assignments)
	doc.Revision++

	idx := indexEntry{ID: id, WorkerID: a.WorkerID, Day: a.Day, ProjectID: a.ProjectID, SupervisorID: a.SupervisorID}
	if err := r.writeYAML(ctx, indexPath(id), idx, "assignment index"); err != nil {
		return err
	}
	if err := r.writeYAML(ctx, dayPath(a.WorkerID, a.Day), doc, "assignments"); err != nil {
		return err
	}
	a.ID = id
	a.Revision = 1
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id int64) (*assignment.Assignment, error) {
	data, err := r.storage.Read(ctx, indexPath(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, assignment.NewNotFoundError(id)
		}
		return nil, cerr.WrapStorageReadError("assignment index", err)
	}
	var idx indexEntry
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal assignment index %d: %w", id, err))
	}
	doc, err := r.readDay(ctx, dayPath(idx.WorkerID, idx.Day))
	if err != nil {
		return nil, err
	}
	for _, a := range doc.Assignments {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, assignment.NewNotFoundError(id)
}

func (r *YAMLRepository) ListByWorkerDay(ctx context.Context, workerID string, day assignment.Day) ([]*assignment.Assignment, error) {
	doc, err := r.readDay(ctx, dayPath(workerID, day))
	if err != nil {
		return nil, err
	}
	return doc.Assignments, nil
}

func (r *YAMLRepository) ListByProjectDay(ctx context.Context, projectID string, day assignment.Day) ([]*assignment.Assignment, error) {
	return r.listDay(ctx, day, func(a *assignment.Assignment) bool { return a.ProjectID == projectID })
}

func (r *YAMLRepository) ListBySupervisorDay(ctx context.Context, supervisorID string, day assignment.Day) ([]*assignment.Assignment, error) {
	return r.listDay(ctx, day, func(a *assignment.Assignment) bool { return a.SupervisorID == supervisorID })
}

func (r *YAMLRepository) listDay(ctx context.Context, day assignment.Day, keep func(*assignment.Assignment) bool) ([]*assignment.Assignment, error) {
	paths, err := r.storage.List(ctx, dayDir(day))
	if err != nil {
		return nil, cerr.WrapStorageReadError("assignments", err)
	}
	var out []*assignment.Assignment
	for _, p := range paths {
		doc, err := r.readDay(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, a := range doc.Assignments {
			if keep(a) {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (r *YAMLRepository) Save(ctx context.Context, changed ...*assignment.Assignment) error {
	if len(changed) == 0 {
		return nil
	}
	workerID, day := changed[0].WorkerID, changed[0].Day
	for _, c := range changed[1:] {
		if c.WorkerID != workerID || c.Day != day {
			return cerr.NewError(cerr.Internal, "server error",
				fmt.Errorf("save spans several worker days: %s/%s and %s/%s", workerID, day, c.WorkerID, c.Day))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.readDay(ctx, dayPath(workerID, day))
	if err != nil {
		return err
	}
	for _, c := range changed {
		i := slices.IndexFunc(doc.Assignments, func(a *assignment.Assignment) bool { return a.ID == c.ID })
		if i < 0 {
			return assignment.NewNotFoundError(c.ID)
		}
		if doc.Assignments[i].Revision != c.Revision {
			return assignment.NewConcurrentModificationError(c.ID)
		}
		next := c.Clone()
		next.Revision++
		doc.Assignments[i] = next
	}
	doc.Revision++
	if err := r.writeYAML(ctx, dayPath(workerID, day), doc, "assignments"); err != nil {
		return err
	}
	for _, c := range changed {
		c.Revision++
	}
	return nil
}

func (r *YAMLRepository) nextID(ctx context.Context) (int64, error) {
	var seq sequence
	data, err := r.storage.Read(ctx, sequencePath)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return 0, cerr.WrapStorageReadError("assignment sequence", err)
	default:
		if err := yaml.Unmarshal(data, &seq); err != nil {
			return 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal assignment sequence: %w", err))
		}
	}
	seq.LastID++
	if err := r.writeYAML(ctx, sequencePath, seq, "assignment sequence"); err != nil {
		return 0, err
	}
	return seq.LastID, nil
}

func (r *YAMLRepository) readDay(ctx context.Context, path string) (*dayDocument, error) {
	data, err := r.storage.Read(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &dayDocument{}, nil
		}
		return nil, cerr.WrapStorageReadError("assignments", err)
	}
	var doc dayDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal %s: %w", path, err))
	}
	sortAssignments(doc.Assignments)
	return &doc, nil
}

func (r *YAMLRepository) writeYAML(ctx context.Context, path string, v any, target string) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal %s: %w", target, err))
	}
	if err := r.storage.Write(ctx, path, data); err != nil {
		return cerr.WrapStorageWriteError(target, err)
	}
	return nil
}

func sortAssignments(as []*assignment.Assignment) {
	slices.SortStableFunc(as, func(a, b *assignment.Assignment) int {
		if c := cmp.Compare(a.Sequence, b.Sequence); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
