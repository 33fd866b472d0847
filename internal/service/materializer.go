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

// RefreshSeries runs the materialization refresh protocol for one
// series over an explicit window, in its own transaction.
func (s *TaskService) RefreshSeries(ctx context.Context, seriesID uuid.UUID, window materialize.Window) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		series, err := tx.Series().Get(ctx, seriesID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewSeriesNotFound(seriesID.String())
			}
			return mapStoreErr(err)
		}
		return s.refreshSeriesTx(ctx, tx, series, nil, window, false)
	})
}

// RefreshSeriesDefault refreshes one series into the default window.
func (s *TaskService) RefreshSeriesDefault(ctx context.Context, seriesID uuid.UUID) error {
	return s.RefreshSeries(ctx, seriesID, s.windows.WindowForFilters(nil))
}

// RefreshActiveSeries refreshes every active series into the window.
func (s *TaskService) RefreshActiveSeries(ctx context.Context, window materialize.Window) error {
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		return s.refreshActiveTx(ctx, tx, window)
	})
}

func (s *TaskService) refreshActiveTx(ctx context.Context, tx repository.Store, window materialize.Window) error {
	active, err := tx.Series().ListActive(ctx)
	if err != nil {
		return mapStoreErr(err)
	}
	for i := range active {
		if err := s.refreshSeriesTx(ctx, tx, &active[i], nil, window, true); err != nil {
			return err
		}
	}
	return nil
}

// refreshSeriesTx is the refresh protocol proper: enumerate the
// materializable occurrences in [window.Start, window.End], insert an
// instance row for every instant not yet present, stop at the batch
// cap, and advance the watermark when at least one row was written.
// With extend set, the refresh additionally tops the series up to the
// configured minimum of upcoming pending instances.
func (s *TaskService) refreshSeriesTx(ctx context.Context, tx repository.Store, series *models.TaskSeries, template *models.Task, window materialize.Window, extend bool) error {
	var err error
	if template == nil {
		template, err = tx.Tasks().Get(ctx, series.TemplateTaskID)
		if err != nil {
			return NewMaterializationError(
				fmt.Sprintf("template of series %s missing", series.ID), err)
		}
	}

	exceptions, err := tx.Exceptions().ListForSeries(ctx, series.ID)
	if err != nil {
		return mapStoreErr(err)
	}

	// Move targets are irrelevant here: excepted occurrences never
	// materialize.
	mgr, err := recurrence.NewManager(series, template, exceptions, nil)
	if err != nil {
		return NewMaterializationError(
			fmt.Sprintf("series %s carries an unusable rule", series.ID), err)
	}

	existing, err := tx.Series().InstanceDueTimes(ctx, series.ID, window.Start, window.End)
	if err != nil {
		return mapStoreErr(err)
	}
	present := make(map[int64]bool, len(existing))
	for _, due := range existing {
		present[due.UnixNano()] = true
	}

	batchCap := s.windows.Options().MaxBatchSize
	inserted := 0
	for _, occ := range mgr.MaterializableBetween(window.Start, window.End) {
		if inserted >= batchCap {
			logger.Warn("Service: refresh hit batch cap",
				zap.String("series_id", series.ID.String()),
				zap.Int("batch", batchCap))
			break
		}
		if present[occ.Effective.UnixNano()] {
			continue
		}
		if err := s.insertInstanceTx(ctx, tx, series, template, occ.Effective); err != nil {
			return err
		}
		inserted++
	}

	if extend && inserted < batchCap {
		n, err := s.extendToMinUpcomingTx(ctx, tx, series, template, mgr, window.End, batchCap-inserted)
		if err != nil {
			return err
		}
		inserted += n
	}

	if inserted > 0 {
		if series.LastMaterializedUntil == nil || window.End.After(*series.LastMaterializedUntil) {
			until := window.End.UTC()
			series.LastMaterializedUntil = &until
			series.UpdatedAt = time.Now().UTC()
			if err := tx.Series().Update(ctx, series); err != nil {
				return mapStoreErr(err)
			}
		}
		logger.Info("Service: series refreshed",
			zap.String("series_id", series.ID.String()),
			zap.Int("inserted", inserted))
	}
	return nil
}

// extendToMinUpcomingTx materializes occurrences past the window end
// until the series has the configured minimum of pending instances in
// the future, bounded by the remaining batch budget and a one-year
// scan horizon.
func (s *TaskService) extendToMinUpcomingTx(ctx context.Context, tx repository.Store, series *models.TaskSeries, template *models.Task, mgr *recurrence.Manager, from time.Time, budget int) (int, error) {
	minUpcoming := s.windows.Options().MinUpcomingInstances
	if minUpcoming <= 0 || budget <= 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	pending, err := tx.Series().PendingInstanceCount(ctx, series.ID, now)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	if pending >= minUpcoming {
		return 0, nil
	}

	cursor := from
	if cursor.Before(now) {
		cursor = now
	}
	horizon := cursor.AddDate(1, 0, 0)

	inserted := 0
	for _, occ := range mgr.MaterializableBetween(cursor.Add(time.Nanosecond), horizon) {
		if pending >= minUpcoming || inserted >= budget {
			break
		}
		if _, err := tx.Series().InstanceAt(ctx, series.ID, occ.Effective); err == nil {
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return inserted, mapStoreErr(err)
		}
		if err := s.insertInstanceTx(ctx, tx, series, template, occ.Effective); err != nil {
			return inserted, err
		}
		inserted++
		pending++
	}
	return inserted, nil
}

// insertInstanceTx writes one instance row copying the template's
// name, description, priority, parent, project and tags.
func (s *TaskService) insertInstanceTx(ctx context.Context, tx repository.Store, series *models.TaskSeries, template *models.Task, due time.Time) error {
	now := time.Now().UTC()
	dueUTC := due.UTC()
	instance := &models.Task{
		ID:          newID(),
		Name:        template.Name,
		Description: template.Description,
		Status:      models.StatusPending,
		Priority:    template.Priority,
		DueAt:       &dueUTC,
		CreatedAt:   now,
		UpdatedAt:   now,
		ProjectID:   template.ProjectID,
		ParentID:    template.ParentID,
		SeriesID:    &series.ID,
	}
	if err := tx.Tasks().Create(ctx, instance); err != nil {
		return NewMaterializationError(
			fmt.Sprintf("failed to materialize %s at %s", series.ID, dueUTC.Format(time.RFC3339)), err)
	}

	tags, err := tx.Tasks().Tags(ctx, template.ID)
	if err != nil {
		return mapStoreErr(err)
	}
	if len(tags) > 0 {
		if err := tx.Tasks().AddTags(ctx, instance.ID, tags); err != nil {
			return mapStoreErr(err)
		}
	}
	return nil
}
