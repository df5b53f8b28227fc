package repositoryimpl

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/sitecrew/internal/project"
	"github.com/kazz187/sitecrew/pkg/cerr"
	"github.com/kazz187/sitecrew/pkg/storage"
)

const projectsPrefix = "projects"

type YAMLRepository struct {
	storage storage.Storage
}

var _ project.Repository = (*YAMLRepository)(nil)

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", projectsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, p *project.Project) error {
	exists, err := r.storage.Exists(ctx, path(p.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("project", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "project already exists", nil)
	}
	return r.write(ctx, p)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*project.Project, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, project.NewNotFoundError(id)
		}
		return nil, cerr.WrapStorageReadError("project", err)
	}
	var p project.Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal project: %w", err))
	}
	return &p, nil
}

func (r *YAMLRepository) List(ctx context.Context, limit, offset int) ([]*project.Project, int, error) {
	paths, err := r.storage.List(ctx, projectsPrefix)
	if err != nil {
		return nil, 0, cerr.WrapStorageReadError("projects", err)
	}

	var all []*project.Project
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var proj project.Project
		if err := yaml.Unmarshal(data, &proj); err != nil {
			continue
		}
		all = append(all, &proj)
	}

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *YAMLRepository) Update(ctx context.Context, p *project.Project) error {
	exists, err := r.storage.Exists(ctx, path(p.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("project", err)
	}
	if !exists {
		return project.NewNotFoundError(p.ID)
	}
	return r.write(ctx, p)
}

func (r *YAMLRepository) write(ctx context.Context, p *project.Project) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal project: %w", err))
	}
	if err := r.storage.Write(ctx, path(p.ID), data); err != nil {
		return cerr.WrapStorageWriteError("project", err)
	}
	return nil
}
