package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taskPlanner/internal/logger"
	"taskPlanner/internal/models"
	"taskPlanner/internal/repository"
)

type taskStore struct {
	s *Store
}

const taskColumns = `id, name, description, status, priority, due_at, completed_at,
	created_at, updated_at, project_id, parent_id, series_id`

func scanTask(row interface{ Scan(dest ...any) error }) (*models.Task, error) {
	t := &models.Task{}
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.DueAt,
		&t.CompletedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.ProjectID,
		&t.ParentID,
		&t.SeriesID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return t, nil
}

func (ts *taskStore) Create(ctx context.Context, t *models.Task) error {
	start := time.Now()
	defer warnSlow("task.create", start)

	query := `INSERT INTO tasks
			(id, name, description, status, priority, due_at, completed_at,
			 created_at, updated_at, project_id, parent_id, series_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := ts.s.db.Exec(ctx, query,
		t.ID,
		t.Name,
		t.Description,
		t.Status,
		t.Priority,
		t.DueAt,
		t.CompletedAt,
		t.CreatedAt,
		t.UpdatedAt,
		t.ProjectID,
		t.ParentID,
		t.SeriesID,
	)
	if err != nil {
		logger.Error("Repository: failed to insert task", err)
		return mapErr(err)
	}
	return nil
}

func (ts *taskStore) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	start := time.Now()
	defer warnSlow("task.get", start)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(ts.s.db.QueryRow(ctx, query, id))
}

func (ts *taskStore) FindByIDPrefix(ctx context.Context, prefix string) ([]uuid.UUID, error) {
	start := time.Now()
	defer warnSlow("task.find_by_prefix", start)

	query := `SELECT id FROM tasks WHERE id::text LIKE lower($1) || '%' ORDER BY id`
	rows, err := ts.s.db.Query(ctx, query, prefix)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (ts *taskStore) Update(ctx context.Context, t *models.Task) error {
	start := time.Now()
	defer warnSlow("task.update", start)

	query := `UPDATE tasks
		SET name = $1,
			description = $2,
			status = $3,
			priority = $4,
			due_at = $5,
			completed_at = $6,
			updated_at = $7,
			project_id = $8,
			parent_id = $9,
			series_id = $10
		WHERE id = $11`

	tag, err := ts.s.db.Exec(ctx, query,
		t.Name,
		t.Description,
		t.Status,
		t.Priority,
		t.DueAt,
		t.CompletedAt,
		t.UpdatedAt,
		t.ProjectID,
		t.ParentID,
		t.SeriesID,
		t.ID,
	)
	if err != nil {
		logger.Error("Repository: failed to update task", err)
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (ts *taskStore) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	defer warnSlow("task.delete", start)

	tag, err := ts.s.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		logger.Error("Repository: failed to delete task", err)
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (ts *taskStore) AddTags(ctx context.Context, id uuid.UUID, tags []string) error {
	start := time.Now()
	defer warnSlow("task.add_tags", start)

	query := `INSERT INTO task_tags (task_id, tag_name) VALUES ($1, $2)
		ON CONFLICT (task_id, tag_name) DO NOTHING`
	for _, tag := range tags {
		if _, err := ts.s.db.Exec(ctx, query, id, tag); err != nil {
			logger.Error("Repository: failed to insert tag", err)
			return mapErr(err)
		}
	}
	return nil
}

func (ts *taskStore) ReplaceTags(ctx context.Context, id uuid.UUID, tags []string) error {
	start := time.Now()
	defer warnSlow("task.replace_tags", start)

	if _, err := ts.s.db.Exec(ctx, `DELETE FROM task_tags WHERE task_id = $1`, id); err != nil {
		return mapErr(err)
	}
	return ts.AddTags(ctx, id, tags)
}

func (ts *taskStore) Tags(ctx context.Context, id uuid.UUID) ([]string, error) {
	start := time.Now()
	defer warnSlow("task.tags", start)

	rows, err := ts.s.db.Query(ctx,
		`SELECT tag_name FROM task_tags WHERE task_id = $1 ORDER BY tag_name`, id)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

func (ts *taskStore) AddDependency(ctx context.Context, taskID, dependsOnID uuid.UUID) error {
	start := time.Now()
	defer warnSlow("task.add_dependency", start)

	_, err := ts.s.db.Exec(ctx,
		`INSERT INTO task_dependencies (task_id, depends_on_id) VALUES ($1, $2)`,
		taskID, dependsOnID)
	if err != nil {
		logger.Error("Repository: failed to insert dependency", err)
		return mapErr(err)
	}
	return nil
}

// PathExists walks dependency edges with a recursive CTE to decide
// whether `to` is reachable from `from`.
func (ts *taskStore) PathExists(ctx context.Context, from, to uuid.UUID) (bool, error) {
	start := time.Now()
	defer warnSlow("task.path_exists", start)

	query := `WITH RECURSIVE reach AS (
			SELECT depends_on_id AS id
			FROM task_dependencies
			WHERE task_id = $1
		UNION
			SELECT d.depends_on_id
			FROM task_dependencies d
			JOIN reach r ON d.task_id = r.id
	)
	SELECT EXISTS (SELECT 1 FROM reach WHERE id = $2)`

	var exists bool
	if err := ts.s.db.QueryRow(ctx, query, from, to).Scan(&exists); err != nil {
		return false, mapErr(err)
	}
	return exists, nil
}

func (ts *taskStore) UncompletedDependencies(ctx context.Context, id uuid.UUID) ([]string, error) {
	start := time.Now()
	defer warnSlow("task.uncompleted_deps", start)

	query := `SELECT t.name
		FROM task_dependencies d
		JOIN tasks t ON t.id = d.depends_on_id
		WHERE d.task_id = $1 AND t.status <> 'completed'
		ORDER BY t.name`

	rows, err := ts.s.db.Query(ctx, query, id)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (ts *taskStore) CountByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	start := time.Now()
	defer warnSlow("task.count_by_project", start)

	var count int
	err := ts.s.db.QueryRow(ctx,
		`SELECT count(*) FROM tasks WHERE project_id = $1`, projectID).Scan(&count)
	if err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}
