package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskPlanner/internal/logger"
	"taskPlanner/internal/models"
	"taskPlanner/internal/recurrence"
	"taskPlanner/internal/repository"
)

// AddSeriesException records one exception. The occurrence must be a
// canonical instant of the rule; Skip carries no task reference while
// Override and Move must point at an existing task.
func (s *TaskService) AddSeriesException(ctx context.Context, exc models.SeriesException) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		return s.addExceptionTx(ctx, tx, exc)
	})
}

// AddSeriesExceptions records a batch atomically: one invalid entry
// rolls back the whole batch.
func (s *TaskService) AddSeriesExceptions(ctx context.Context, excs []models.SeriesException) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		for _, exc := range excs {
			if err := s.addExceptionTx(ctx, tx, exc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *TaskService) addExceptionTx(ctx context.Context, tx repository.Store, exc models.SeriesException) error {
	series, err := tx.Series().Get(ctx, exc.SeriesID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NewSeriesNotFound(exc.SeriesID.String())
		}
		return mapStoreErr(err)
	}

	switch exc.Type {
	case models.ExceptionSkip:
		if exc.ExceptionTaskID != nil {
			return NewInvalidException("a skip exception must not reference a task")
		}
	case models.ExceptionOverride, models.ExceptionMove:
		if exc.ExceptionTaskID == nil {
			return NewInvalidException(fmt.Sprintf("a %s exception must reference a task", exc.Type))
		}
		if _, err := tx.Tasks().Get(ctx, *exc.ExceptionTaskID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewInvalidException(fmt.Sprintf("exception task %s does not exist", exc.ExceptionTaskID))
			}
			return mapStoreErr(err)
		}
	default:
		return NewInvalidException(fmt.Sprintf("unknown exception type %q", exc.Type))
	}

	mgr, _, err := s.managerForSeries(ctx, tx, series)
	if err != nil {
		return err
	}
	occ := exc.OccurrenceDT.UTC()
	if len(mgr.OccurrencesBetween(occ, occ)) == 0 {
		return NewInvalidException(
			fmt.Sprintf("%s is not an occurrence of the series rule", occ.Format(time.RFC3339)))
	}

	exc.OccurrenceDT = occ
	exc.CreatedAt = time.Now().UTC()
	if err := tx.Exceptions().Add(ctx, &exc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return NewInvalidException(
				fmt.Sprintf("occurrence %s already has an exception", occ.Format(time.RFC3339)))
		}
		return mapStoreErr(err)
	}

	// an excepted occurrence never materializes; drop a row that was
	// materialized before the exception existed
	if instance, err := tx.Series().InstanceAt(ctx, series.ID, occ); err == nil {
		if instance.Status == models.StatusPending {
			if err := tx.Tasks().Delete(ctx, instance.ID); err != nil {
				return mapStoreErr(err)
			}
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return mapStoreErr(err)
	}
	return nil
}

// RemoveSeriesExceptions deletes exceptions for the given occurrences.
// Missing entries are ignored so the call is idempotent.
func (s *TaskService) RemoveSeriesExceptions(ctx context.Context, seriesID uuid.UUID, occurrences []time.Time) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Series().Get(ctx, seriesID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewSeriesNotFound(seriesID.String())
			}
			return mapStoreErr(err)
		}
		for _, occ := range occurrences {
			err := tx.Exceptions().Remove(ctx, seriesID, occ.UTC())
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return mapStoreErr(err)
			}
		}
		return nil
	})
}

// OverrideOccurrence replaces one occurrence with a standalone task.
// The override task starts as a copy of the template at the same
// instant, with the given edits applied on top.
func (s *TaskService) OverrideOccurrence(ctx context.Context, seriesID uuid.UUID, occurrence time.Time, data models.UpdateTaskData) (*models.Task, error) {
	if data.TouchesRecurrence() {
		return nil, NewValidationError("an override cannot change the series rule")
	}
	occ := occurrence.UTC()

	var override *models.Task
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		series, template, err := s.seriesWithTemplateTx(ctx, tx, seriesID)
		if err != nil {
			return err
		}

		override = s.detachedCopy(template, occ)
		if err := s.applyFieldsTx(ctx, tx, override, data); err != nil {
			return err
		}
		if err := tx.Tasks().Create(ctx, override); err != nil {
			return mapStoreErr(err)
		}
		if data.Tags != nil {
			if err := tx.Tasks().AddTags(ctx, override.ID, data.Tags); err != nil {
				return mapStoreErr(err)
			}
		}

		return s.addExceptionTx(ctx, tx, models.SeriesException{
			SeriesID:        series.ID,
			OccurrenceDT:    occ,
			Type:            models.ExceptionOverride,
			ExceptionTaskID: &override.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Service: occurrence overridden",
		zap.String("series_id", seriesID.String()),
		zap.Time("occurrence", occ))
	return override, nil
}

// MoveOccurrence reschedules one occurrence to a different instant by
// replacing it with a standalone task due at the new time.
func (s *TaskService) MoveOccurrence(ctx context.Context, seriesID uuid.UUID, occurrence, newDue time.Time) (*models.Task, error) {
	occ := occurrence.UTC()
	due := newDue.UTC()
	if due.Equal(occ) {
		return nil, NewValidationError("the new instant equals the original occurrence")
	}

	var moved *models.Task
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		series, template, err := s.seriesWithTemplateTx(ctx, tx, seriesID)
		if err != nil {
			return err
		}

		moved = s.detachedCopy(template, due)
		if err := tx.Tasks().Create(ctx, moved); err != nil {
			return mapStoreErr(err)
		}

		return s.addExceptionTx(ctx, tx, models.SeriesException{
			SeriesID:        series.ID,
			OccurrenceDT:    occ,
			Type:            models.ExceptionMove,
			ExceptionTaskID: &moved.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Service: occurrence moved",
		zap.String("series_id", seriesID.String()),
		zap.Time("from", occ),
		zap.Time("to", due))
	return moved, nil
}

// detachedCopy builds a standalone task from a series template: name,
// description, priority, project and parent carry over, tags do not.
func (s *TaskService) detachedCopy(template *models.Task, due time.Time) *models.Task {
	now := time.Now().UTC()
	return &models.Task{
		ID:          newID(),
		Name:        template.Name,
		Description: template.Description,
		Status:      models.StatusPending,
		Priority:    template.Priority,
		DueAt:       &due,
		CreatedAt:   now,
		UpdatedAt:   now,
		ProjectID:   template.ProjectID,
		ParentID:    template.ParentID,
	}
}

func (s *TaskService) seriesWithTemplateTx(ctx context.Context, tx repository.Store, seriesID uuid.UUID) (*models.TaskSeries, *models.Task, error) {
	series, err := tx.Series().Get(ctx, seriesID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, NewSeriesNotFound(seriesID.String())
		}
		return nil, nil, mapStoreErr(err)
	}
	template, err := tx.Tasks().Get(ctx, series.TemplateTaskID)
	if err != nil {
		return nil, nil, NewMaterializationError(
			fmt.Sprintf("series %s has no template task", series.ID), err)
	}
	return series, template, nil
}

// DuplicateSeries clones a series under a new template name, optionally
// in a different timezone. The copy starts unmaterialized.
func (s *TaskService) DuplicateSeries(ctx context.Context, seriesID uuid.UUID, newName string, newTimezone *string) (*models.TaskSeries, error) {
	if newName == "" {
		return nil, NewValidationError("the duplicated series needs a template name")
	}

	var dup *models.TaskSeries
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		src, template, err := s.seriesWithTemplateTx(ctx, tx, seriesID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		newTemplate := &models.Task{
			ID:          newID(),
			Name:        newName,
			Description: template.Description,
			Status:      models.StatusPending,
			Priority:    template.Priority,
			DueAt:       template.DueAt,
			CreatedAt:   now,
			UpdatedAt:   now,
			ProjectID:   template.ProjectID,
			ParentID:    template.ParentID,
		}
		if err := tx.Tasks().Create(ctx, newTemplate); err != nil {
			return mapStoreErr(err)
		}
		tags, err := tx.Tasks().Tags(ctx, template.ID)
		if err != nil {
			return mapStoreErr(err)
		}
		if len(tags) > 0 {
			if err := tx.Tasks().AddTags(ctx, newTemplate.ID, tags); err != nil {
				return mapStoreErr(err)
			}
		}

		tz := src.Timezone
		rule := src.RRule
		if newTimezone != nil && *newTimezone != tz {
			tz = *newTimezone
			rule, err = recurrence.Normalize(src.RRule, src.DTStart, tz)
			if err != nil {
				return mapRecurrenceErr(err)
			}
		}

		dup = &models.TaskSeries{
			ID:             newID(),
			TemplateTaskID: newTemplate.ID,
			RRule:          rule,
			DTStart:        src.DTStart,
			Timezone:       tz,
			Active:         true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Series().Create(ctx, dup); err != nil {
			return mapStoreErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dup, nil
}

// ArchiveCompletedSeries deactivates a series once every materialized
// instance has been resolved. Pending instances block the archive.
func (s *TaskService) ArchiveCompletedSeries(ctx context.Context, seriesID uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		series, err := tx.Series().Get(ctx, seriesID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewSeriesNotFound(seriesID.String())
			}
			return mapStoreErr(err)
		}

		counts, err := tx.Series().CountInstancesByStatus(ctx, series.ID)
		if err != nil {
			return mapStoreErr(err)
		}
		if pending := counts[models.StatusPending]; pending > 0 {
			return NewSeriesNotCompleted(
				fmt.Sprintf("series has %d pending instances", pending))
		}

		series.Active = false
		series.UpdatedAt = time.Now().UTC()
		if err := tx.Series().Update(ctx, series); err != nil {
			return mapStoreErr(err)
		}
		logger.Info("Service: series archived", zap.String("series_id", series.ID.String()))
		return nil
	})
}

// ReactivateSeries turns an archived series back on. The watermark is
// reset so the next refresh materializes from the current window.
func (s *TaskService) ReactivateSeries(ctx context.Context, seriesID uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		series, err := tx.Series().Get(ctx, seriesID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewSeriesNotFound(seriesID.String())
			}
			return mapStoreErr(err)
		}
		series.Active = true
		series.LastMaterializedUntil = nil
		series.UpdatedAt = time.Now().UTC()
		return mapStoreErr(tx.Series().Update(ctx, series))
	})
}

// DeleteSeries removes the series together with its template task,
// exceptions and instances.
func (s *TaskService) DeleteSeries(ctx context.Context, seriesID uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		series, err := tx.Series().Get(ctx, seriesID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewSeriesNotFound(seriesID.String())
			}
			return mapStoreErr(err)
		}
		templateID := series.TemplateTaskID
		if err := tx.Series().Delete(ctx, series.ID); err != nil {
			return mapStoreErr(err)
		}
		if err := tx.Tasks().Delete(ctx, templateID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return mapStoreErr(err)
		}
		return nil
	})
}

// SeriesStatistics summarizes one series: instance counts by status,
// exception counts by type, materialized bounds, the next occurrence
// and a rough health score.
func (s *TaskService) SeriesStatistics(ctx context.Context, seriesID uuid.UUID) (*models.SeriesStatistics, error) {
	var stats *models.SeriesStatistics
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		series, err := tx.Series().Get(ctx, seriesID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewSeriesNotFound(seriesID.String())
			}
			return mapStoreErr(err)
		}

		counts, err := tx.Series().CountInstancesByStatus(ctx, series.ID)
		if err != nil {
			return mapStoreErr(err)
		}
		first, last, err := tx.Series().InstanceBounds(ctx, series.ID)
		if err != nil {
			return mapStoreErr(err)
		}
		exceptions, err := tx.Exceptions().ListForSeries(ctx, series.ID)
		if err != nil {
			return mapStoreErr(err)
		}
		byType := make(map[models.ExceptionType]int)
		for _, exc := range exceptions {
			byType[exc.Type]++
		}

		stats = &models.SeriesStatistics{
			SeriesID:         series.ID,
			Active:           series.Active,
			InstancesByState: counts,
			ExceptionsByType: byType,
			FirstInstance:    first,
			LastInstance:     last,
		}

		if series.Active {
			mgr, _, err := s.managerForSeries(ctx, tx, series)
			if err != nil {
				return err
			}
			if next, ok := mgr.NextAfter(time.Now().UTC()); ok {
				stats.NextOccurrence = &next
			}
		}

		stats.HealthScore = healthScore(series.Active, counts, len(exceptions))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// healthScore is the completion rate discounted for inactivity and for
// an exception-heavy series.
func healthScore(active bool, counts map[models.Status]int, exceptions int) float64 {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return 0
	}
	score := float64(counts[models.StatusCompleted]) / float64(total)
	if !active {
		score *= 0.8
	}
	if float64(exceptions)/float64(total) >= 0.2 {
		score *= 0.9
	}
	return score
}

// PreviewOccurrences returns the next effective occurrences after the
// given instant without materializing anything.
func (s *TaskService) PreviewOccurrences(ctx context.Context, seriesID uuid.UUID, after time.Time, count int) ([]recurrence.Occurrence, error) {
	if count <= 0 {
		count = 5
	}
	var out []recurrence.Occurrence
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		series, err := tx.Series().Get(ctx, seriesID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewSeriesNotFound(seriesID.String())
			}
			return mapStoreErr(err)
		}
		mgr, _, err := s.managerForSeries(ctx, tx, series)
		if err != nil {
			return err
		}
		out = mgr.Preview(after.UTC(), count)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
