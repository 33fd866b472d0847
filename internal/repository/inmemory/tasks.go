package inmemory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskPlanner/internal/models"
	"taskPlanner/internal/repository"
)

type taskStore struct {
	s *Store
}

func (ts *taskStore) Create(ctx context.Context, t *models.Task) error {
	defer ts.s.lock()()

	if _, ok := ts.s.d.tasks[t.ID]; ok {
		return repository.ErrDuplicate
	}
	ts.s.d.tasks[t.ID] = *t
	ts.s.d.taskOrder = append(ts.s.d.taskOrder, t.ID)
	return nil
}

func (ts *taskStore) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	defer ts.s.rlock()()

	t, ok := ts.s.d.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (ts *taskStore) FindByIDPrefix(ctx context.Context, prefix string) ([]uuid.UUID, error) {
	defer ts.s.rlock()()

	prefix = strings.ToLower(prefix)
	var out []uuid.UUID
	for _, id := range ts.s.d.taskOrder {
		if strings.HasPrefix(id.String(), prefix) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (ts *taskStore) Update(ctx context.Context, t *models.Task) error {
	defer ts.s.lock()()

	if _, ok := ts.s.d.tasks[t.ID]; !ok {
		return repository.ErrNotFound
	}
	ts.s.d.tasks[t.ID] = *t
	return nil
}

// Delete removes the task together with its tag and dependency rows;
// children are re-rooted (parent reference cleared).
func (ts *taskStore) Delete(ctx context.Context, id uuid.UUID) error {
	defer ts.s.lock()()

	if _, ok := ts.s.d.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(ts.s.d.tasks, id)
	delete(ts.s.d.tags, id)
	delete(ts.s.d.deps, id)
	for _, set := range ts.s.d.deps {
		delete(set, id)
	}
	for tid, t := range ts.s.d.tasks {
		if t.ParentID != nil && *t.ParentID == id {
			t.ParentID = nil
			ts.s.d.tasks[tid] = t
		}
	}
	for i, tid := range ts.s.d.taskOrder {
		if tid == id {
			ts.s.d.taskOrder = append(ts.s.d.taskOrder[:i], ts.s.d.taskOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (ts *taskStore) AddTags(ctx context.Context, id uuid.UUID, tags []string) error {
	defer ts.s.lock()()

	if _, ok := ts.s.d.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	set := ts.s.d.tags[id]
	if set == nil {
		set = make(map[string]bool)
		ts.s.d.tags[id] = set
	}
	for _, tag := range tags {
		set[tag] = true
	}
	return nil
}

func (ts *taskStore) ReplaceTags(ctx context.Context, id uuid.UUID, tags []string) error {
	defer ts.s.lock()()

	if _, ok := ts.s.d.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	set := make(map[string]bool, len(tags))
	for _, tag := range tags {
		set[tag] = true
	}
	ts.s.d.tags[id] = set
	return nil
}

func (ts *taskStore) Tags(ctx context.Context, id uuid.UUID) ([]string, error) {
	defer ts.s.rlock()()
	return ts.tagsLocked(id), nil
}

func (ts *taskStore) tagsLocked(id uuid.UUID) []string {
	set := ts.s.d.tags[id]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func (ts *taskStore) AddDependency(ctx context.Context, taskID, dependsOnID uuid.UUID) error {
	defer ts.s.lock()()

	if _, ok := ts.s.d.tasks[taskID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := ts.s.d.tasks[dependsOnID]; !ok {
		return repository.ErrNotFound
	}
	set := ts.s.d.deps[taskID]
	if set == nil {
		set = make(map[uuid.UUID]bool)
		ts.s.d.deps[taskID] = set
	}
	if set[dependsOnID] {
		return repository.ErrDuplicate
	}
	set[dependsOnID] = true
	return nil
}

func (ts *taskStore) PathExists(ctx context.Context, from, to uuid.UUID) (bool, error) {
	defer ts.s.rlock()()

	visited := make(map[uuid.UUID]bool)
	var walk func(cur uuid.UUID) bool
	walk = func(cur uuid.UUID) bool {
		if cur == to {
			return true
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true
		for next := range ts.s.d.deps[cur] {
			if walk(next) {
				return true
			}
		}
		return false
	}
	return walk(from), nil
}

func (ts *taskStore) UncompletedDependencies(ctx context.Context, id uuid.UUID) ([]string, error) {
	defer ts.s.rlock()()

	var names []string
	for depID := range ts.s.d.deps[id] {
		dep, ok := ts.s.d.tasks[depID]
		if !ok {
			continue
		}
		if dep.Status != models.StatusCompleted {
			names = append(names, dep.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (ts *taskStore) CountByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	defer ts.s.rlock()()

	count := 0
	for _, t := range ts.s.d.tasks {
		if t.ProjectID != nil && *t.ProjectID == projectID {
			count++
		}
	}
	return count, nil
}

func (ts *taskStore) FindDetails(ctx context.Context, filter models.Filter) ([]models.TaskDetails, error) {
	defer ts.s.rlock()()

	now := time.Now().UTC()

	type row struct {
		details models.TaskDetails
		path    string
	}
	var rows []row
	for _, id := range ts.s.d.taskOrder {
		t := ts.s.d.tasks[id]
		if !ts.matches(&t, filter, now) {
			continue
		}
		depth, path := ts.ancestry(&t)
		details := models.TaskDetails{
			Task:  t,
			Depth: depth,
			Tags:  ts.tagsLocked(t.ID),
		}
		if t.ProjectID != nil {
			if p, ok := ts.s.d.projects[*t.ProjectID]; ok {
				details.ProjectName = p.Name
			}
		}
		rows = append(rows, row{details: details, path: path})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].path < rows[j].path })

	out := make([]models.TaskDetails, len(rows))
	for i, r := range rows {
		out[i] = r.details
	}
	return out, nil
}

// ancestry walks the parent chain and returns the depth together with
// the materialized path of ids used for ordering. Ids are time-ordered
// (uuid v7), so the path sorts siblings chronologically.
func (ts *taskStore) ancestry(t *models.Task) (int, string) {
	var chain []string
	cur := t
	for depth := 0; ; depth++ {
		chain = append([]string{cur.ID.String()}, chain...)
		if cur.ParentID == nil {
			return depth, strings.Join(chain, "/")
		}
		parent, ok := ts.s.d.tasks[*cur.ParentID]
		if !ok {
			return depth, strings.Join(chain, "/")
		}
		cur = &parent
	}
}

func (ts *taskStore) matches(t *models.Task, f models.Filter, now time.Time) bool {
	switch node := f.(type) {
	case nil:
		return true
	case models.AndFilter:
		for _, op := range node.Operands {
			if !ts.matches(t, op, now) {
				return false
			}
		}
		return true
	case models.OrFilter:
		for _, op := range node.Operands {
			if ts.matches(t, op, now) {
				return true
			}
		}
		return len(node.Operands) == 0
	case models.NotFilter:
		return !ts.matches(t, node.Operand, now)
	case models.DueFilter:
		return matchDue(t, node, now)
	case models.StatusFilter:
		return t.Status == node.Status
	case models.PriorityFilter:
		return t.Priority == node.Priority
	case models.ProjectFilter:
		if t.ProjectID == nil {
			return false
		}
		p, ok := ts.s.d.projects[*t.ProjectID]
		return ok && p.Name == node.Name
	case models.TagFilter:
		return ts.s.d.tags[t.ID][node.Tag]
	case models.NameFilter:
		return strings.Contains(strings.ToLower(t.Name), strings.ToLower(node.Substring))
	default:
		return false
	}
}

// Relative day filters are evaluated against UTC days, matching the
// postgres backend.
func matchDue(t *models.Task, f models.DueFilter, now time.Time) bool {
	if t.DueAt == nil {
		return false
	}
	due := t.DueAt.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch f.Kind {
	case models.DueToday:
		return !due.Before(today) && due.Before(today.AddDate(0, 0, 1))
	case models.DueTomorrow:
		return !due.Before(today.AddDate(0, 0, 1)) && due.Before(today.AddDate(0, 0, 2))
	case models.DueYesterday:
		return !due.Before(today.AddDate(0, 0, -1)) && due.Before(today)
	case models.DueBefore:
		return due.Before(f.At.UTC())
	case models.DueAfter:
		return due.After(f.At.UTC())
	case models.DueOverdue:
		return due.Before(now) && t.Status == models.StatusPending
	default:
		return false
	}
}
