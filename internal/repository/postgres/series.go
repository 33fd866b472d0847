package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taskPlanner/internal/logger"
	"taskPlanner/internal/models"
	"taskPlanner/internal/repository"
)

type seriesStore struct {
	s *Store
}

const seriesColumns = `id, template_task_id, rrule, dtstart, timezone, active,
	last_materialized_until, created_at, updated_at`

func scanSeries(row interface{ Scan(dest ...any) error }) (*models.TaskSeries, error) {
	s := &models.TaskSeries{}
	err := row.Scan(
		&s.ID,
		&s.TemplateTaskID,
		&s.RRule,
		&s.DTStart,
		&s.Timezone,
		&s.Active,
		&s.LastMaterializedUntil,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return s, nil
}

func (ss *seriesStore) Create(ctx context.Context, series *models.TaskSeries) error {
	start := time.Now()
	defer warnSlow("series.create", start)

	query := `INSERT INTO task_series
			(id, template_task_id, rrule, dtstart, timezone, active,
			 last_materialized_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := ss.s.db.Exec(ctx, query,
		series.ID,
		series.TemplateTaskID,
		series.RRule,
		series.DTStart,
		series.Timezone,
		series.Active,
		series.LastMaterializedUntil,
		series.CreatedAt,
		series.UpdatedAt,
	)
	if err != nil {
		logger.Error("Repository: failed to insert series", err)
		return mapErr(err)
	}
	return nil
}

func (ss *seriesStore) Get(ctx context.Context, id uuid.UUID) (*models.TaskSeries, error) {
	start := time.Now()
	defer warnSlow("series.get", start)

	query := `SELECT ` + seriesColumns + ` FROM task_series WHERE id = $1`
	return scanSeries(ss.s.db.QueryRow(ctx, query, id))
}

func (ss *seriesStore) GetByTemplate(ctx context.Context, templateTaskID uuid.UUID) (*models.TaskSeries, error) {
	start := time.Now()
	defer warnSlow("series.get_by_template", start)

	query := `SELECT ` + seriesColumns + ` FROM task_series WHERE template_task_id = $1`
	return scanSeries(ss.s.db.QueryRow(ctx, query, templateTaskID))
}

func (ss *seriesStore) Update(ctx context.Context, series *models.TaskSeries) error {
	start := time.Now()
	defer warnSlow("series.update", start)

	query := `UPDATE task_series
		SET rrule = $1,
			dtstart = $2,
			timezone = $3,
			active = $4,
			last_materialized_until = $5,
			updated_at = $6
		WHERE id = $7`

	tag, err := ss.s.db.Exec(ctx, query,
		series.RRule,
		series.DTStart,
		series.Timezone,
		series.Active,
		series.LastMaterializedUntil,
		series.UpdatedAt,
		series.ID,
	)
	if err != nil {
		logger.Error("Repository: failed to update series", err)
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete relies on the schema cascades for exceptions and instance rows.
func (ss *seriesStore) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	defer warnSlow("series.delete", start)

	tag, err := ss.s.db.Exec(ctx, `DELETE FROM task_series WHERE id = $1`, id)
	if err != nil {
		logger.Error("Repository: failed to delete series", err)
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (ss *seriesStore) ListActive(ctx context.Context) ([]models.TaskSeries, error) {
	start := time.Now()
	defer warnSlow("series.list_active", start)

	query := `SELECT ` + seriesColumns + ` FROM task_series WHERE active ORDER BY id`
	rows, err := ss.s.db.Query(ctx, query)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.TaskSeries
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (ss *seriesStore) InstanceDueTimes(ctx context.Context, seriesID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	start := time.Now()
	defer warnSlow("series.instance_due_times", start)

	query := `SELECT due_at FROM tasks
		WHERE series_id = $1 AND due_at >= $2 AND due_at <= $3
		ORDER BY due_at`

	rows, err := ss.s.db.Query(ctx, query, seriesID, from.UTC(), to.UTC())
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var due time.Time
		if err := rows.Scan(&due); err != nil {
			return nil, err
		}
		out = append(out, due.UTC())
	}
	return out, rows.Err()
}

func (ss *seriesStore) InstanceAt(ctx context.Context, seriesID uuid.UUID, due time.Time) (*models.Task, error) {
	start := time.Now()
	defer warnSlow("series.instance_at", start)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE series_id = $1 AND due_at = $2`
	return scanTask(ss.s.db.QueryRow(ctx, query, seriesID, due.UTC()))
}

func (ss *seriesStore) DeleteInstancesFrom(ctx context.Context, seriesID uuid.UUID, from time.Time) (int, error) {
	start := time.Now()
	defer warnSlow("series.delete_instances_from", start)

	tag, err := ss.s.db.Exec(ctx,
		`DELETE FROM tasks WHERE series_id = $1 AND due_at >= $2`, seriesID, from.UTC())
	if err != nil {
		logger.Error("Repository: failed to delete series instances", err)
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (ss *seriesStore) DeleteInstances(ctx context.Context, seriesID uuid.UUID) (int, error) {
	start := time.Now()
	defer warnSlow("series.delete_instances", start)

	tag, err := ss.s.db.Exec(ctx, `DELETE FROM tasks WHERE series_id = $1`, seriesID)
	if err != nil {
		logger.Error("Repository: failed to delete series instances", err)
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (ss *seriesStore) CountInstancesByStatus(ctx context.Context, seriesID uuid.UUID) (map[models.Status]int, error) {
	start := time.Now()
	defer warnSlow("series.count_by_status", start)

	rows, err := ss.s.db.Query(ctx,
		`SELECT status, count(*) FROM tasks WHERE series_id = $1 GROUP BY status`, seriesID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := make(map[models.Status]int)
	for rows.Next() {
		var status models.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}

func (ss *seriesStore) InstanceBounds(ctx context.Context, seriesID uuid.UUID) (*time.Time, *time.Time, error) {
	start := time.Now()
	defer warnSlow("series.instance_bounds", start)

	var first, last *time.Time
	err := ss.s.db.QueryRow(ctx,
		`SELECT min(due_at), max(due_at) FROM tasks WHERE series_id = $1`, seriesID).
		Scan(&first, &last)
	if err != nil {
		return nil, nil, mapErr(err)
	}
	return first, last, nil
}

func (ss *seriesStore) PendingInstanceCount(ctx context.Context, seriesID uuid.UUID, after time.Time) (int, error) {
	start := time.Now()
	defer warnSlow("series.pending_count", start)

	var count int
	err := ss.s.db.QueryRow(ctx,
		`SELECT count(*) FROM tasks
		WHERE series_id = $1 AND status = 'pending' AND due_at > $2`,
		seriesID, after.UTC()).Scan(&count)
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}
