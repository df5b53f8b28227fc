package pushsubscription

import (
	"context"

	"github.com/kazz187/sitecrew/pkg/cerr"
)

type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	ListBySupervisor(ctx context.Context, supervisorID string) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	Delete(ctx context.Context, id string) error
	FindByEndpoint(ctx context.Context, endpoint string) (*Subscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

func NewNotFoundError() error {
	return cerr.NewError(cerr.NotFound, "push subscription not found", nil)
}
