package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskPlanner/internal/models"
	"taskPlanner/internal/repository"
)

// CreateProject inserts a project. Names are unique.
func (s *TaskService) CreateProject(ctx context.Context, name, description string) (*models.Project, error) {
	if name == "" {
		return nil, NewValidationError("project name must not be empty")
	}

	project := &models.Project{
		ID:          newID(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.Projects().Create(ctx, project); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, NewValidationError(fmt.Sprintf("project %q already exists", name))
		}
		return nil, mapStoreErr(err)
	}
	return project, nil
}

// DeleteProject removes an empty project. A project that still holds
// tasks is refused.
func (s *TaskService) DeleteProject(ctx context.Context, id uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		project, err := tx.Projects().Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewNotFound(fmt.Sprintf("project %s", id))
			}
			return mapStoreErr(err)
		}

		count, err := tx.Tasks().CountByProject(ctx, project.ID)
		if err != nil {
			return mapStoreErr(err)
		}
		if count > 0 {
			return NewValidationError(
				fmt.Sprintf("project %q still contains %d tasks", project.Name, count))
		}

		return mapStoreErr(tx.Projects().Delete(ctx, project.ID))
	})
}

func (s *TaskService) ListProjects(ctx context.Context) ([]models.Project, error) {
	projects, err := s.store.Projects().List(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return projects, nil
}
