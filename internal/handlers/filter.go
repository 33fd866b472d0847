package handlers

import (
	"fmt"
	"net/http"
	"time"

	"taskPlanner/internal/models"
)

// filterFromQuery builds the filter tree from query parameters. Leaves
// are combined with AND; a repeated tag parameter yields one leaf per
// tag. Returns nil when no parameter is set.
func filterFromQuery(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	var operands []models.Filter

	if v := q.Get("status"); v != "" {
		status := models.Status(v)
		switch status {
		case models.StatusPending, models.StatusCompleted, models.StatusCancelled:
		default:
			return nil, fmt.Errorf("unknown status %q", v)
		}
		operands = append(operands, models.StatusFilter{Status: status})
	}
	if v := q.Get("priority"); v != "" {
		priority := models.Priority(v)
		if !models.ValidPriority(priority) {
			return nil, fmt.Errorf("unknown priority %q", v)
		}
		operands = append(operands, models.PriorityFilter{Priority: priority})
	}
	if v := q.Get("project"); v != "" {
		operands = append(operands, models.ProjectFilter{Name: v})
	}
	for _, tag := range q["tag"] {
		operands = append(operands, models.TagFilter{Tag: tag})
	}
	if v := q.Get("name"); v != "" {
		operands = append(operands, models.NameFilter{Substring: v})
	}

	if v := q.Get("due"); v != "" {
		switch models.DueKind(v) {
		case models.DueToday, models.DueTomorrow, models.DueYesterday, models.DueOverdue:
			operands = append(operands, models.DueFilter{Kind: models.DueKind(v)})
		default:
			return nil, fmt.Errorf("unknown due kind %q", v)
		}
	}
	if v := q.Get("due_before"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("due_before: %w", err)
		}
		operands = append(operands, models.DueFilter{Kind: models.DueBefore, At: at})
	}
	if v := q.Get("due_after"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("due_after: %w", err)
		}
		operands = append(operands, models.DueFilter{Kind: models.DueAfter, At: at})
	}

	switch len(operands) {
	case 0:
		return nil, nil
	case 1:
		return operands[0], nil
	default:
		return models.AndFilter{Operands: operands}, nil
	}
}
