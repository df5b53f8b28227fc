package dashboard

import (
	"context"
	"time"

	"github.com/kazz187/sitecrew/internal/assignment"
)

// Source reads a day's assignments for a scope.
type Source interface {
	ListByProjectDay(ctx context.Context, projectID string, day assignment.Day) ([]*assignment.Assignment, error)
	ListBySupervisorDay(ctx context.Context, supervisorID string, day assignment.Day) ([]*assignment.Assignment, error)
}

type Service struct {
	src Source
	now func() time.Time
}

func NewService(src Source) *Service {
	return &Service{src: src, now: time.Now}
}

func (s *Service) ForProject(ctx context.Context, projectID string, day assignment.Day) (Summary, error) {
	as, err := s.src.ListByProjectDay(ctx, projectID, day)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(ScopeProject, projectID, day, as, s.now()), nil
}

func (s *Service) ForSupervisor(ctx context.Context, supervisorID string, day assignment.Day) (Summary, error) {
	as, err := s.src.ListBySupervisorDay(ctx, supervisorID, day)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(ScopeSupervisor, supervisorID, day, as, s.now()), nil
}
