package project

import (
	"context"
	"fmt"

	"github.com/kazz187/sitecrew/internal/geofence"
	"github.com/kazz187/sitecrew/pkg/cerr"
)

const ReasonProjectNotFound = "PROJECT_NOT_FOUND"

type Repository interface {
	Create(ctx context.Context, p *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	List(ctx context.Context, limit, offset int) ([]*Project, int, error)
	Update(ctx context.Context, p *Project) error
}

func NewNotFoundError(id string) error {
	return cerr.NewReasonError(cerr.NotFound, ReasonProjectNotFound,
		fmt.Sprintf("project %q not found", id), map[string]any{"projectId": id})
}

// FenceLookup resolves a project's geofence for the assignment state machine.
type FenceLookup struct {
	repo Repository
}

func NewFenceLookup(repo Repository) *FenceLookup {
	return &FenceLookup{repo: repo}
}

func (l *FenceLookup) Fence(ctx context.Context, projectID string) (geofence.Fence, error) {
	p, err := l.repo.Get(ctx, projectID)
	if err != nil {
		return geofence.Fence{}, err
	}
	return p.Geofence, nil
}
