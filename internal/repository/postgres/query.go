package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskPlanner/internal/logger"
	"taskPlanner/internal/models"
)

// FindDetails runs the detail listing: a recursive traversal of the
// parent forest producing each matching task with its depth, project
// name and tags, ordered by ancestry path.
func (ts *taskStore) FindDetails(ctx context.Context, filter models.Filter) ([]models.TaskDetails, error) {
	start := time.Now()
	defer warnSlow("task.find_details", start)

	b := &condBuilder{}
	cond, err := b.compile(filter, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	query := `WITH RECURSIVE forest AS (
			SELECT t.id, t.name, t.description, t.status, t.priority, t.due_at,
				t.completed_at, t.created_at, t.updated_at, t.project_id,
				t.parent_id, t.series_id,
				0 AS depth,
				ARRAY[t.id::text] AS path
			FROM tasks t
			WHERE t.parent_id IS NULL
		UNION ALL
			SELECT t.id, t.name, t.description, t.status, t.priority, t.due_at,
				t.completed_at, t.created_at, t.updated_at, t.project_id,
				t.parent_id, t.series_id,
				f.depth + 1,
				f.path || t.id::text
			FROM tasks t
			JOIN forest f ON t.parent_id = f.id
	)
	SELECT f.id, f.name, f.description, f.status, f.priority, f.due_at,
		f.completed_at, f.created_at, f.updated_at, f.project_id,
		f.parent_id, f.series_id,
		f.depth,
		coalesce(p.name, ''),
		coalesce((SELECT string_agg(tt.tag_name, ',' ORDER BY tt.tag_name)
			FROM task_tags tt WHERE tt.task_id = f.id), '')
	FROM forest f
	LEFT JOIN projects p ON p.id = f.project_id
	WHERE ` + cond + `
	ORDER BY f.path`

	rows, err := ts.s.db.Query(ctx, query, b.args...)
	if err != nil {
		logger.Error("Repository: detail query failed", err)
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []models.TaskDetails
	for rows.Next() {
		var d models.TaskDetails
		var tags string
		err := rows.Scan(
			&d.Task.ID,
			&d.Task.Name,
			&d.Task.Description,
			&d.Task.Status,
			&d.Task.Priority,
			&d.Task.DueAt,
			&d.Task.CompletedAt,
			&d.Task.CreatedAt,
			&d.Task.UpdatedAt,
			&d.Task.ProjectID,
			&d.Task.ParentID,
			&d.Task.SeriesID,
			&d.Depth,
			&d.ProjectName,
			&tags,
		)
		if err != nil {
			return nil, err
		}
		if tags != "" {
			d.Tags = strings.Split(tags, ",")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// condBuilder compiles a filter tree into a WHERE condition over the
// forest CTE (aliased f) with positional args.
type condBuilder struct {
	args []any
}

func (b *condBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *condBuilder) compile(f models.Filter, now time.Time) (string, error) {
	switch node := f.(type) {
	case nil:
		return "TRUE", nil
	case models.AndFilter:
		return b.compileJunction(node.Operands, " AND ", now)
	case models.OrFilter:
		return b.compileJunction(node.Operands, " OR ", now)
	case models.NotFilter:
		inner, err := b.compile(node.Operand, now)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case models.DueFilter:
		return b.compileDue(node, now), nil
	case models.StatusFilter:
		return "f.status = " + b.bind(string(node.Status)), nil
	case models.PriorityFilter:
		return "f.priority = " + b.bind(string(node.Priority)), nil
	case models.ProjectFilter:
		return "p.name = " + b.bind(node.Name), nil
	case models.TagFilter:
		return "EXISTS (SELECT 1 FROM task_tags tt WHERE tt.task_id = f.id AND tt.tag_name = " +
			b.bind(node.Tag) + ")", nil
	case models.NameFilter:
		return "f.name ILIKE '%' || " + b.bind(node.Substring) + " || '%'", nil
	default:
		return "", fmt.Errorf("unknown filter node %T", f)
	}
}

func (b *condBuilder) compileJunction(operands []models.Filter, sep string, now time.Time) (string, error) {
	if len(operands) == 0 {
		return "TRUE", nil
	}
	parts := make([]string, 0, len(operands))
	for _, op := range operands {
		c, err := b.compile(op, now)
		if err != nil {
			return "", err
		}
		parts = append(parts, c)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// Relative day filters use UTC days, matching the inmemory backend.
func (b *condBuilder) compileDue(f models.DueFilter, now time.Time) string {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayCond := func(from, to time.Time) string {
		return "(f.due_at >= " + b.bind(from) + " AND f.due_at < " + b.bind(to) + ")"
	}
	switch f.Kind {
	case models.DueToday:
		return dayCond(today, today.AddDate(0, 0, 1))
	case models.DueTomorrow:
		return dayCond(today.AddDate(0, 0, 1), today.AddDate(0, 0, 2))
	case models.DueYesterday:
		return dayCond(today.AddDate(0, 0, -1), today)
	case models.DueBefore:
		return "f.due_at < " + b.bind(f.At.UTC())
	case models.DueAfter:
		return "f.due_at > " + b.bind(f.At.UTC())
	case models.DueOverdue:
		return "(f.due_at < " + b.bind(now) + " AND f.status = 'pending')"
	default:
		return "FALSE"
	}
}
