package inmemory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"taskPlanner/internal/models"
	"taskPlanner/internal/repository"
)

type seriesStore struct {
	s *Store
}

func (ss *seriesStore) Create(ctx context.Context, series *models.TaskSeries) error {
	defer ss.s.lock()()

	for _, existing := range ss.s.d.series {
		if existing.TemplateTaskID == series.TemplateTaskID {
			return repository.ErrDuplicate
		}
	}
	ss.s.d.series[series.ID] = *series
	return nil
}

func (ss *seriesStore) Get(ctx context.Context, id uuid.UUID) (*models.TaskSeries, error) {
	defer ss.s.rlock()()

	series, ok := ss.s.d.series[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &series, nil
}

func (ss *seriesStore) GetByTemplate(ctx context.Context, templateTaskID uuid.UUID) (*models.TaskSeries, error) {
	defer ss.s.rlock()()

	for _, series := range ss.s.d.series {
		if series.TemplateTaskID == templateTaskID {
			found := series
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (ss *seriesStore) Update(ctx context.Context, series *models.TaskSeries) error {
	defer ss.s.lock()()

	if _, ok := ss.s.d.series[series.ID]; !ok {
		return repository.ErrNotFound
	}
	ss.s.d.series[series.ID] = *series
	return nil
}

// Delete cascades to the series exceptions and every instance task.
func (ss *seriesStore) Delete(ctx context.Context, id uuid.UUID) error {
	defer ss.s.lock()()

	if _, ok := ss.s.d.series[id]; !ok {
		return repository.ErrNotFound
	}
	delete(ss.s.d.series, id)
	delete(ss.s.d.exceptions, id)

	for tid, t := range ss.s.d.tasks {
		if t.SeriesID != nil && *t.SeriesID == id {
			delete(ss.s.d.tasks, tid)
			delete(ss.s.d.tags, tid)
			delete(ss.s.d.deps, tid)
			for _, set := range ss.s.d.deps {
				delete(set, tid)
			}
			for i, oid := range ss.s.d.taskOrder {
				if oid == tid {
					ss.s.d.taskOrder = append(ss.s.d.taskOrder[:i], ss.s.d.taskOrder[i+1:]...)
					break
				}
			}
		}
	}
	return nil
}

func (ss *seriesStore) ListActive(ctx context.Context) ([]models.TaskSeries, error) {
	defer ss.s.rlock()()

	var out []models.TaskSeries
	for _, series := range ss.s.d.series {
		if series.Active {
			out = append(out, series)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (ss *seriesStore) InstanceDueTimes(ctx context.Context, seriesID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	defer ss.s.rlock()()

	var out []time.Time
	for _, t := range ss.s.d.tasks {
		if t.SeriesID == nil || *t.SeriesID != seriesID || t.DueAt == nil {
			continue
		}
		due := t.DueAt.UTC()
		if due.Before(from) || due.After(to) {
			continue
		}
		out = append(out, due)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (ss *seriesStore) InstanceAt(ctx context.Context, seriesID uuid.UUID, due time.Time) (*models.Task, error) {
	defer ss.s.rlock()()

	for _, t := range ss.s.d.tasks {
		if t.SeriesID != nil && *t.SeriesID == seriesID && t.DueAt != nil && t.DueAt.UTC().Equal(due.UTC()) {
			found := t
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (ss *seriesStore) DeleteInstancesFrom(ctx context.Context, seriesID uuid.UUID, from time.Time) (int, error) {
	return ss.deleteInstancesWhere(seriesID, func(t models.Task) bool {
		return t.DueAt != nil && !t.DueAt.UTC().Before(from.UTC())
	})
}

func (ss *seriesStore) DeleteInstances(ctx context.Context, seriesID uuid.UUID) (int, error) {
	return ss.deleteInstancesWhere(seriesID, func(models.Task) bool { return true })
}

func (ss *seriesStore) deleteInstancesWhere(seriesID uuid.UUID, match func(models.Task) bool) (int, error) {
	defer ss.s.lock()()

	deleted := 0
	for tid, t := range ss.s.d.tasks {
		if t.SeriesID == nil || *t.SeriesID != seriesID || !match(t) {
			continue
		}
		delete(ss.s.d.tasks, tid)
		delete(ss.s.d.tags, tid)
		delete(ss.s.d.deps, tid)
		for _, set := range ss.s.d.deps {
			delete(set, tid)
		}
		for i, oid := range ss.s.d.taskOrder {
			if oid == tid {
				ss.s.d.taskOrder = append(ss.s.d.taskOrder[:i], ss.s.d.taskOrder[i+1:]...)
				break
			}
		}
		deleted++
	}
	return deleted, nil
}

func (ss *seriesStore) CountInstancesByStatus(ctx context.Context, seriesID uuid.UUID) (map[models.Status]int, error) {
	defer ss.s.rlock()()

	out := make(map[models.Status]int)
	for _, t := range ss.s.d.tasks {
		if t.SeriesID != nil && *t.SeriesID == seriesID {
			out[t.Status]++
		}
	}
	return out, nil
}

func (ss *seriesStore) InstanceBounds(ctx context.Context, seriesID uuid.UUID) (*time.Time, *time.Time, error) {
	defer ss.s.rlock()()

	var first, last *time.Time
	for _, t := range ss.s.d.tasks {
		if t.SeriesID == nil || *t.SeriesID != seriesID || t.DueAt == nil {
			continue
		}
		due := t.DueAt.UTC()
		if first == nil || due.Before(*first) {
			d := due
			first = &d
		}
		if last == nil || due.After(*last) {
			d := due
			last = &d
		}
	}
	return first, last, nil
}

func (ss *seriesStore) PendingInstanceCount(ctx context.Context, seriesID uuid.UUID, after time.Time) (int, error) {
	defer ss.s.rlock()()

	count := 0
	for _, t := range ss.s.d.tasks {
		if t.SeriesID != nil && *t.SeriesID == seriesID &&
			t.Status == models.StatusPending &&
			t.DueAt != nil && t.DueAt.UTC().After(after.UTC()) {
			count++
		}
	}
	return count, nil
}
