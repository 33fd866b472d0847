// Package service is the transactional core of the task tracker. Every
// mutating operation and every read that triggers a materialization
// refresh runs inside exactly one store transaction; validation errors
// surface as BusinessError values and never leave partial state behind.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskPlanner/internal/logger"
	"taskPlanner/internal/materialize"
	"taskPlanner/internal/models"
	"taskPlanner/internal/recurrence"
	"taskPlanner/internal/repository"
)

type TaskService struct {
	store   repository.Store
	windows *materialize.Manager
}

func NewTaskService(store repository.Store, windows *materialize.Manager) TaskService {
	return TaskService{
		store:   store,
		windows: windows,
	}
}

func (s *TaskService) HealthCheck(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does
		return uuid.New()
	}
	return id
}

// mapStoreErr wraps unexpected storage failures; sentinel errors are
// handled by the callers before this point.
func mapStoreErr(err error) error {
	var be *BusinessError
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrDuplicate) {
		return err
	}
	return NewStorageError(err)
}

// AddTask inserts a task and, when an rrule is given, turns it into a
// series template, creates the series and materializes the first
// window. The whole operation is one transaction.
func (s *TaskService) AddTask(ctx context.Context, data models.NewTaskData) (*models.Task, error) {
	if data.Name == "" {
		return nil, NewValidationError("task name must not be empty")
	}
	if data.Priority == "" {
		data.Priority = models.PriorityNone
	}
	if !models.ValidPriority(data.Priority) {
		return nil, NewValidationError(fmt.Sprintf("unknown priority %q", data.Priority))
	}
	if data.Timezone != "" && data.RRule == "" {
		return nil, NewValidationError("timezone is only valid together with an rrule")
	}

	var created *models.Task
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		now := time.Now().UTC()

		projectID := data.ProjectID
		if projectID == nil && data.ProjectName != "" {
			project, err := tx.Projects().GetByName(ctx, data.ProjectName)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return NewNotFound(fmt.Sprintf("project %q", data.ProjectName))
				}
				return mapStoreErr(err)
			}
			projectID = &project.ID
		}

		if data.ParentID != nil {
			if _, err := tx.Tasks().Get(ctx, *data.ParentID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return NewNotFound(fmt.Sprintf("parent task %s", data.ParentID))
				}
				return mapStoreErr(err)
			}
		}

		task := &models.Task{
			ID:          newID(),
			Name:        data.Name,
			Description: data.Description,
			Status:      models.StatusPending,
			Priority:    data.Priority,
			DueAt:       data.DueAt,
			CreatedAt:   now,
			UpdatedAt:   now,
			ProjectID:   projectID,
			ParentID:    data.ParentID,
		}
		if err := tx.Tasks().Create(ctx, task); err != nil {
			return mapStoreErr(err)
		}

		if data.DependsOn != nil {
			if err := s.addDependencyTx(ctx, tx, task, *data.DependsOn); err != nil {
				return err
			}
		}

		if len(data.Tags) > 0 {
			if err := tx.Tasks().AddTags(ctx, task.ID, data.Tags); err != nil {
				return mapStoreErr(err)
			}
		}

		if data.RRule != "" {
			if err := s.createSeriesTx(ctx, tx, task, data, now); err != nil {
				return err
			}
		}

		created = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Service: task created",
		zap.String("task_id", created.ID.String()),
		zap.Bool("recurring", data.RRule != ""))
	return created, nil
}

func (s *TaskService) addDependencyTx(ctx context.Context, tx repository.Store, task *models.Task, dependsOn uuid.UUID) error {
	if dependsOn == task.ID {
		return NewValidationError("a task cannot depend on itself")
	}
	dep, err := tx.Tasks().Get(ctx, dependsOn)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NewNotFound(fmt.Sprintf("dependency task %s", dependsOn))
		}
		return mapStoreErr(err)
	}

	// reject any edge whose reverse path already exists
	reachable, err := tx.Tasks().PathExists(ctx, dependsOn, task.ID)
	if err != nil {
		return mapStoreErr(err)
	}
	if reachable {
		return NewCircularDependency(task.Name, dep.Name)
	}

	if err := tx.Tasks().AddDependency(ctx, task.ID, dependsOn); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil
		}
		return mapStoreErr(err)
	}
	return nil
}

// AddTaskDependency records that task must wait for dependsOn. Edges
// that would close a cycle are rejected.
func (s *TaskService) AddTaskDependency(ctx context.Context, taskID, dependsOn uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		task, err := tx.Tasks().Get(ctx, taskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewNotFound(fmt.Sprintf("task %s", taskID))
			}
			return mapStoreErr(err)
		}
		return s.addDependencyTx(ctx, tx, task, dependsOn)
	})
}

func (s *TaskService) createSeriesTx(ctx context.Context, tx repository.Store, template *models.Task, data models.NewTaskData, now time.Time) error {
	tz := data.Timezone
	if tz == "" {
		tz = s.windows.Options().DefaultTimezone
	}
	dtstart := now
	if data.DueAt != nil {
		dtstart = data.DueAt.UTC()
	}

	canonical, err := recurrence.Normalize(data.RRule, dtstart, tz)
	if err != nil {
		return mapRecurrenceErr(err)
	}

	series := &models.TaskSeries{
		ID:             newID(),
		TemplateTaskID: template.ID,
		RRule:          canonical,
		DTStart:        dtstart,
		Timezone:       tz,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.Series().Create(ctx, series); err != nil {
		return mapStoreErr(err)
	}

	window := s.windows.WindowForFilters(nil)
	if err := s.refreshSeriesTx(ctx, tx, series, template, window, true); err != nil {
		return err
	}
	return nil
}

func mapRecurrenceErr(err error) error {
	switch {
	case errors.Is(err, recurrence.ErrInvalidTimezone):
		return &BusinessError{Code: CodeInvalidTimezone, Message: err.Error(), Details: map[string]any{}}
	case errors.Is(err, recurrence.ErrInvalidRRule):
		return NewInvalidRRule(err.Error())
	default:
		return err
	}
}

// CompleteTask marks a task completed after checking its dependencies.
// For a series instance it additionally computes the next effective
// occurrence and makes sure its instance row exists when it falls
// inside the materialized window.
func (s *TaskService) CompleteTask(ctx context.Context, id uuid.UUID) (*models.CompletionResult, error) {
	var result *models.CompletionResult
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		task, err := tx.Tasks().Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewNotFound(fmt.Sprintf("task %s", id))
			}
			return mapStoreErr(err)
		}

		blocking, err := tx.Tasks().UncompletedDependencies(ctx, id)
		if err != nil {
			return mapStoreErr(err)
		}
		if len(blocking) > 0 {
			return NewTaskBlocked(blocking)
		}

		if !task.Status.CanTransitionTo(models.StatusCompleted) {
			return NewValidationError(fmt.Sprintf("cannot complete task in status %q", task.Status))
		}

		now := time.Now().UTC()
		task.Status = models.StatusCompleted
		task.CompletedAt = &now
		task.UpdatedAt = now
		if err := tx.Tasks().Update(ctx, task); err != nil {
			return mapStoreErr(err)
		}

		if task.SeriesID == nil {
			result = &models.CompletionResult{Kind: models.CompletionSingle, Completed: task}
			return nil
		}

		res, err := s.completeSeriesInstanceTx(ctx, tx, task, now)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *TaskService) completeSeriesInstanceTx(ctx context.Context, tx repository.Store, task *models.Task, now time.Time) (*models.CompletionResult, error) {
	series, err := tx.Series().Get(ctx, *task.SeriesID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewSeriesNotFound(task.SeriesID.String())
		}
		return nil, mapStoreErr(err)
	}

	mgr, template, err := s.managerForSeries(ctx, tx, series)
	if err != nil {
		return nil, err
	}

	base := now
	if task.DueAt != nil {
		base = task.DueAt.UTC()
	}

	result := &models.CompletionResult{
		Kind:      models.CompletionSeriesInstance,
		Completed: task,
		SeriesID:  &series.ID,
	}

	next, ok := mgr.NextAfter(base)
	if !ok {
		return result, nil
	}
	result.NextOccurrence = &next

	inWindow := series.LastMaterializedUntil != nil && !next.After(*series.LastMaterializedUntil)
	if !inWindow {
		return result, nil
	}

	instance, err := tx.Series().InstanceAt(ctx, series.ID, next)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, mapStoreErr(err)
	}
	if errors.Is(err, repository.ErrNotFound) {
		// materialize a one-instant slice; an excepted occurrence
		// yields nothing and Next stays empty
		for _, occ := range mgr.MaterializableBetween(next, next) {
			if err := s.insertInstanceTx(ctx, tx, series, template, occ.Effective); err != nil {
				return nil, err
			}
		}
		instance, err = tx.Series().InstanceAt(ctx, series.ID, next)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, mapStoreErr(err)
		}
	}
	result.Next = instance
	return result, nil
}

// managerForSeries loads template and exceptions and builds the pure
// recurrence manager, resolving Move-target due instants.
func (s *TaskService) managerForSeries(ctx context.Context, tx repository.Store, series *models.TaskSeries) (*recurrence.Manager, *models.Task, error) {
	template, err := tx.Tasks().Get(ctx, series.TemplateTaskID)
	if err != nil {
		return nil, nil, mapStoreErr(err)
	}
	exceptions, err := tx.Exceptions().ListForSeries(ctx, series.ID)
	if err != nil {
		return nil, nil, mapStoreErr(err)
	}

	moveDue := make(map[uuid.UUID]time.Time)
	for _, exc := range exceptions {
		if exc.Type != models.ExceptionMove || exc.ExceptionTaskID == nil {
			continue
		}
		moved, err := tx.Tasks().Get(ctx, *exc.ExceptionTaskID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, nil, mapStoreErr(err)
		}
		if moved.DueAt != nil {
			moveDue[moved.ID] = moved.DueAt.UTC()
		}
	}

	mgr, err := recurrence.NewManager(series, template, exceptions, moveDue)
	if err != nil {
		return nil, nil, mapRecurrenceErr(err)
	}
	return mgr, template, nil
}

// FindTasksWithDetails answers a filter query. The due-date bounds of
// the tree decide the materialization window; all active series are
// refreshed into it and the read runs in the same transaction, so the
// result is consistent with the recurrence rules.
func (s *TaskService) FindTasksWithDetails(ctx context.Context, filter models.Filter) ([]models.TaskDetails, error) {
	window := s.windows.WindowForFilters(models.CollectDueFilters(filter))

	var details []models.TaskDetails
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := s.refreshActiveTx(ctx, tx, window); err != nil {
			return err
		}
		var err error
		details, err = tx.Tasks().FindDetails(ctx, filter)
		if err != nil {
			return mapStoreErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// GetTask returns one task with its tags attached as details.
func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*models.TaskDetails, error) {
	var details *models.TaskDetails
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		task, err := tx.Tasks().Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewNotFound(fmt.Sprintf("task %s", id))
			}
			return mapStoreErr(err)
		}
		tags, err := tx.Tasks().Tags(ctx, id)
		if err != nil {
			return mapStoreErr(err)
		}
		details = &models.TaskDetails{Task: *task, Tags: tags}
		if task.ProjectID != nil {
			project, err := tx.Projects().Get(ctx, *task.ProjectID)
			if err == nil {
				details.ProjectName = project.Name
			} else if !errors.Is(err, repository.ErrNotFound) {
				return mapStoreErr(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// ResolveTaskID resolves a full id or short prefix to a task id.
func (s *TaskService) ResolveTaskID(ctx context.Context, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}

	matches, err := s.store.Tasks().FindByIDPrefix(ctx, ref)
	if err != nil {
		return uuid.Nil, mapStoreErr(err)
	}
	switch len(matches) {
	case 0:
		return uuid.Nil, NewNotFound(fmt.Sprintf("task %q", ref))
	case 1:
		return matches[0], nil
	default:
		candidates := make([]string, len(matches))
		for i, m := range matches {
			candidates[i] = m.String()
		}
		return uuid.Nil, NewAmbiguousID(ref, candidates)
	}
}

// DeleteTask removes a task. Deleting a series template deletes the
// whole series, which cascades to its exceptions and instances.
func (s *TaskService) DeleteTask(ctx context.Context, id uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		task, err := tx.Tasks().Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewNotFound(fmt.Sprintf("task %s", id))
			}
			return mapStoreErr(err)
		}

		if task.SeriesID == nil {
			if series, err := tx.Series().GetByTemplate(ctx, id); err == nil {
				if err := tx.Series().Delete(ctx, series.ID); err != nil {
					return mapStoreErr(err)
				}
			} else if !errors.Is(err, repository.ErrNotFound) {
				return mapStoreErr(err)
			}
		}

		if err := tx.Tasks().Delete(ctx, id); err != nil {
			return mapStoreErr(err)
		}
		return nil
	})
}
