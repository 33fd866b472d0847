// Package repository defines the storage contracts of the task core.
// The interface is split into named domain sub-surfaces; any backend
// (postgres, inmemory) implements all of them and provides transactions
// through WithTx.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taskPlanner/internal/models"
)

type Store interface {
	Tasks() TaskStore
	Projects() ProjectStore
	Series() SeriesStore
	Exceptions() ExceptionStore

	// WithTx runs fn against a transactional view of the store. The
	// transaction commits when fn returns nil and rolls back otherwise.
	// Every multi-statement operation of the service layer runs inside
	// exactly one WithTx.
	WithTx(ctx context.Context, fn func(Store) error) error

	Ping(ctx context.Context) error
	Close()
}

type TaskStore interface {
	Create(ctx context.Context, t *models.Task) error
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
	// FindByIDPrefix returns ids whose text form starts with prefix,
	// for short-id resolution.
	FindByIDPrefix(ctx context.Context, prefix string) ([]uuid.UUID, error)
	Update(ctx context.Context, t *models.Task) error
	Delete(ctx context.Context, id uuid.UUID) error

	AddTags(ctx context.Context, id uuid.UUID, tags []string) error
	ReplaceTags(ctx context.Context, id uuid.UUID, tags []string) error
	Tags(ctx context.Context, id uuid.UUID) ([]string, error)

	AddDependency(ctx context.Context, taskID, dependsOnID uuid.UUID) error
	// PathExists reports whether `to` is reachable from `from` over
	// dependency edges. Used for cycle prevention at insert time.
	PathExists(ctx context.Context, from, to uuid.UUID) (bool, error)
	// UncompletedDependencies returns the names of open dependencies
	// blocking completion of the task.
	UncompletedDependencies(ctx context.Context, id uuid.UUID) ([]string, error)

	// FindDetails runs the detail listing: each matching task with its
	// depth in the parent forest, project name and tags, ordered by
	// ancestry path.
	FindDetails(ctx context.Context, filter models.Filter) ([]models.TaskDetails, error)
	CountByProject(ctx context.Context, projectID uuid.UUID) (int, error)
}

type ProjectStore interface {
	Create(ctx context.Context, p *models.Project) error
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetByName(ctx context.Context, name string) (*models.Project, error)
	List(ctx context.Context) ([]models.Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type SeriesStore interface {
	Create(ctx context.Context, s *models.TaskSeries) error
	Get(ctx context.Context, id uuid.UUID) (*models.TaskSeries, error)
	GetByTemplate(ctx context.Context, templateTaskID uuid.UUID) (*models.TaskSeries, error)
	Update(ctx context.Context, s *models.TaskSeries) error
	// Delete cascades to the series exceptions and instance tasks.
	Delete(ctx context.Context, id uuid.UUID) error
	ListActive(ctx context.Context) ([]models.TaskSeries, error)

	// InstanceDueTimes returns the due instants already materialized for
	// the series inside the closed interval [from, to].
	InstanceDueTimes(ctx context.Context, seriesID uuid.UUID, from, to time.Time) ([]time.Time, error)
	InstanceAt(ctx context.Context, seriesID uuid.UUID, due time.Time) (*models.Task, error)
	DeleteInstancesFrom(ctx context.Context, seriesID uuid.UUID, from time.Time) (int, error)
	DeleteInstances(ctx context.Context, seriesID uuid.UUID) (int, error)
	CountInstancesByStatus(ctx context.Context, seriesID uuid.UUID) (map[models.Status]int, error)
	InstanceBounds(ctx context.Context, seriesID uuid.UUID) (first, last *time.Time, err error)
	PendingInstanceCount(ctx context.Context, seriesID uuid.UUID, after time.Time) (int, error)
}

type ExceptionStore interface {
	Add(ctx context.Context, exc *models.SeriesException) error
	Remove(ctx context.Context, seriesID uuid.UUID, occurrence time.Time) error
	Get(ctx context.Context, seriesID uuid.UUID, occurrence time.Time) (*models.SeriesException, error)
	ListForSeries(ctx context.Context, seriesID uuid.UUID) ([]models.SeriesException, error)
}
