package assignment

import "context"

type Repository interface {
	// Create assigns the next numeric id and stores a at revision 1.
	Create(ctx context.Context, a *Assignment) error
	Get(ctx context.Context, id int64) (*Assignment, error)
	ListByWorkerDay(ctx context.Context, workerID string, day Day) ([]*Assignment, error)
	ListByProjectDay(ctx context.Context, projectID string, day Day) ([]*Assignment, error)
	ListBySupervisorDay(ctx context.Context, supervisorID string, day Day) ([]*Assignment, error)
	// Save writes changed records of a single worker and day in one atomic
	// step. Each record's Revision must equal the stored one; on success the
	// records' revisions are incremented. Nothing is written on failure.
	Save(ctx context.Context, changed ...*Assignment) error
}
