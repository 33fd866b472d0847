package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskPlanner/internal/models"
	"taskPlanner/internal/recurrence"
	"taskPlanner/internal/repository"
)

// UpdateTask applies a partial edit. For standalone tasks and series
// templates the scope is ignored and recurrence fields are rejected;
// for series instances the scope decides how far the edit reaches.
// Everything runs in one transaction.
func (s *TaskService) UpdateTask(ctx context.Context, id uuid.UUID, data models.UpdateTaskData, scope models.EditScope) (*models.Task, error) {
	if scope == "" {
		scope = models.ScopeThisOccurrence
	}
	switch scope {
	case models.ScopeThisOccurrence, models.ScopeThisAndFuture, models.ScopeEntireSeries:
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown edit scope %q", scope))
	}

	var updated *models.Task
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		task, err := tx.Tasks().Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewNotFound(fmt.Sprintf("task %s", id))
			}
			return mapStoreErr(err)
		}

		if task.SeriesID == nil {
			if data.TouchesRecurrence() {
				return NewValidationError("recurrence fields cannot be changed on a non-instance task")
			}
			updated, err = s.updateRowTx(ctx, tx, task, data)
			return err
		}

		switch scope {
		case models.ScopeThisOccurrence:
			if data.TouchesRecurrence() {
				return NewValidationError("rrule and timezone edits need a series-level scope")
			}
			updated, err = s.updateRowTx(ctx, tx, task, data)
			return err
		default:
			updated, err = s.updateSeriesScopeTx(ctx, tx, task, data, scope)
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// updateRowTx edits one task row in place. By policy this leaves no
// exception behind when the row is a series instance.
func (s *TaskService) updateRowTx(ctx context.Context, tx repository.Store, task *models.Task, data models.UpdateTaskData) (*models.Task, error) {
	if err := s.applyFieldsTx(ctx, tx, task, data); err != nil {
		return nil, err
	}
	task.UpdatedAt = time.Now().UTC()
	if err := tx.Tasks().Update(ctx, task); err != nil {
		return nil, mapStoreErr(err)
	}
	if data.Tags != nil {
		if err := tx.Tasks().ReplaceTags(ctx, task.ID, data.Tags); err != nil {
			return nil, mapStoreErr(err)
		}
	}
	return task, nil
}

// updateSeriesScopeTx handles ThisAndFuture and EntireSeries edits on a
// series instance: rule changes go to the series, the remaining fields
// to the template, existing instances are dropped from the cut-off
// point and the watermark is rewound so the next read refreshes.
func (s *TaskService) updateSeriesScopeTx(ctx context.Context, tx repository.Store, instance *models.Task, data models.UpdateTaskData, scope models.EditScope) (*models.Task, error) {
	series, err := tx.Series().Get(ctx, *instance.SeriesID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewSeriesNotFound(instance.SeriesID.String())
		}
		return nil, mapStoreErr(err)
	}

	now := time.Now().UTC()

	if data.TouchesRecurrence() {
		tz := series.Timezone
		if data.Timezone != nil {
			tz = *data.Timezone
		}
		raw := series.RRule
		if data.RRule != nil {
			raw = *data.RRule
		}
		canonical, err := recurrence.Normalize(raw, series.DTStart, tz)
		if err != nil {
			return nil, mapRecurrenceErr(err)
		}
		series.RRule = canonical
		series.Timezone = tz
	}

	template, err := tx.Tasks().Get(ctx, series.TemplateTaskID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	fields := data
	fields.RRule = nil
	fields.Timezone = nil
	if _, err := s.updateRowTx(ctx, tx, template, fields); err != nil {
		return nil, err
	}

	switch scope {
	case models.ScopeThisAndFuture:
		if instance.DueAt == nil {
			return nil, NewValidationError("instance has no due instant to cut the series at")
		}
		cut := instance.DueAt.UTC()
		if _, err := tx.Series().DeleteInstancesFrom(ctx, series.ID, cut); err != nil {
			return nil, mapStoreErr(err)
		}
		rewind := cut.Add(-24 * time.Hour)
		series.LastMaterializedUntil = &rewind
	case models.ScopeEntireSeries:
		if _, err := tx.Series().DeleteInstances(ctx, series.ID); err != nil {
			return nil, mapStoreErr(err)
		}
		series.LastMaterializedUntil = nil
	}

	series.UpdatedAt = now
	if err := tx.Series().Update(ctx, series); err != nil {
		return nil, mapStoreErr(err)
	}
	return template, nil
}

func (s *TaskService) applyFieldsTx(ctx context.Context, tx repository.Store, task *models.Task, data models.UpdateTaskData) error {
	if data.Name != nil {
		if *data.Name == "" {
			return NewValidationError("task name must not be empty")
		}
		task.Name = *data.Name
	}
	if data.Description != nil {
		task.Description = *data.Description
	}
	if data.ClearDueAt {
		task.DueAt = nil
	} else if data.DueAt != nil {
		due := data.DueAt.UTC()
		task.DueAt = &due
	}
	if data.Priority != nil {
		if !models.ValidPriority(*data.Priority) {
			return NewValidationError(fmt.Sprintf("unknown priority %q", *data.Priority))
		}
		task.Priority = *data.Priority
	}
	if data.Status != nil && *data.Status != task.Status {
		if !task.Status.CanTransitionTo(*data.Status) {
			return NewValidationError(
				fmt.Sprintf("status cannot change from %q to %q", task.Status, *data.Status))
		}
		task.Status = *data.Status
		if *data.Status == models.StatusCompleted {
			now := time.Now().UTC()
			task.CompletedAt = &now
		}
	}
	if data.ProjectID != nil {
		if _, err := tx.Projects().Get(ctx, *data.ProjectID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewNotFound(fmt.Sprintf("project %s", data.ProjectID))
			}
			return mapStoreErr(err)
		}
		task.ProjectID = data.ProjectID
	}
	return nil
}
