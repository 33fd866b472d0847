package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskPlanner/internal/materialize"
	"taskPlanner/internal/models"
	"taskPlanner/internal/repository"
	"taskPlanner/internal/repository/inmemory"
	"taskPlanner/internal/service"
)

func newService(t *testing.T) (*service.TaskService, repository.Store) {
	t.Helper()
	store := inmemory.NewStore()
	windows, err := materialize.NewManager(materialize.DefaultOptions())
	require.NoError(t, err)
	svc := service.NewTaskService(store, windows)
	return &svc, store
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var businessErr *service.BusinessError
	require.ErrorAs(t, err, &businessErr)
	assert.Equal(t, code, businessErr.Code)
}

// futureDue returns a stable instant comfortably inside the default
// materialization window.
func futureDue() time.Time {
	return time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
}

func createDailySeries(t *testing.T, svc *service.TaskService, store repository.Store, name string, count int, due time.Time) (*models.Task, *models.TaskSeries) {
	t.Helper()
	ctx := context.Background()

	template, err := svc.AddTask(ctx, models.NewTaskData{
		Name:  name,
		DueAt: &due,
		RRule: fmt.Sprintf("FREQ=DAILY;COUNT=%d", count),
	})
	require.NoError(t, err)

	series, err := store.Series().GetByTemplate(ctx, template.ID)
	require.NoError(t, err)
	return template, series
}

// TestAddTask_Validation covers the insert-time checks
func TestAddTask_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	tests := []struct {
		name string
		data models.NewTaskData
		code string
	}{
		{
			name: "empty name",
			data: models.NewTaskData{},
			code: service.CodeValidation,
		},
		{
			name: "unknown priority",
			data: models.NewTaskData{Name: "x", Priority: "urgent-ish"},
			code: service.CodeValidation,
		},
		{
			name: "timezone without rrule",
			data: models.NewTaskData{Name: "x", Timezone: "Europe/Berlin"},
			code: service.CodeValidation,
		},
		{
			name: "unknown project",
			data: models.NewTaskData{Name: "x", ProjectName: "nope"},
			code: service.CodeNotFound,
		},
		{
			name: "bad rrule",
			data: models.NewTaskData{Name: "x", RRule: "FREQ=HOURLY"},
			code: service.CodeInvalidRRule,
		},
		{
			name: "bad timezone with rrule",
			data: models.NewTaskData{Name: "x", RRule: "FREQ=DAILY", Timezone: "Moon/Crater"},
			code: service.CodeInvalidTimezone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddTask(ctx, tt.data)
			assertCode(t, err, tt.code)
		})
	}

	t.Run("defaults priority to none", func(t *testing.T) {
		task, err := svc.AddTask(ctx, models.NewTaskData{Name: "plain"})
		require.NoError(t, err)
		assert.Equal(t, models.PriorityNone, task.Priority)
		assert.Equal(t, models.StatusPending, task.Status)
	})
}

// TestAddTask_RecurringMaterializes creates a series and materializes
// every occurrence of a bounded daily rule in one transaction.
func TestAddTask_RecurringMaterializes(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	due := futureDue()

	template, series := createDailySeries(t, svc, store, "Water plants", 7, due)

	assert.Nil(t, template.SeriesID, "template is not an instance")
	assert.True(t, series.Active)
	assert.Contains(t, series.RRule, "RRULE:FREQ=DAILY;COUNT=7")
	require.NotNil(t, series.LastMaterializedUntil)

	dues, err := store.Series().InstanceDueTimes(ctx, series.ID, due.Add(-time.Hour), due.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.Len(t, dues, 7)
	for i, d := range dues {
		assert.Equal(t, due.AddDate(0, 0, i), d)
	}

	t.Run("refresh is idempotent", func(t *testing.T) {
		before := *series.LastMaterializedUntil
		require.NoError(t, svc.RefreshSeriesDefault(ctx, series.ID))

		dues, err := store.Series().InstanceDueTimes(ctx, series.ID, due.Add(-time.Hour), due.AddDate(0, 0, 10))
		require.NoError(t, err)
		assert.Len(t, dues, 7, "no duplicate rows on re-refresh")

		after, err := store.Series().Get(ctx, series.ID)
		require.NoError(t, err)
		require.NotNil(t, after.LastMaterializedUntil)
		assert.False(t, after.LastMaterializedUntil.Before(before), "watermark never rewinds")
	})

	t.Run("instances copy the template", func(t *testing.T) {
		instance, err := store.Series().InstanceAt(ctx, series.ID, due.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Equal(t, "Water plants", instance.Name)
		assert.Equal(t, models.StatusPending, instance.Status)
		require.NotNil(t, instance.SeriesID)
		assert.Equal(t, series.ID, *instance.SeriesID)
	})
}

// TestSkipException removes the occurrence and keeps it unmaterialized
func TestSkipException(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	due := futureDue()

	_, series := createDailySeries(t, svc, store, "Standup", 7, due)
	skipAt := due.AddDate(0, 0, 2)

	require.NoError(t, svc.AddSeriesException(ctx, models.SeriesException{
		SeriesID:     series.ID,
		OccurrenceDT: skipAt,
		Type:         models.ExceptionSkip,
	}))

	_, err := store.Series().InstanceAt(ctx, series.ID, skipAt)
	assert.ErrorIs(t, err, repository.ErrNotFound, "materialized row removed")

	require.NoError(t, svc.RefreshSeriesDefault(ctx, series.ID))
	_, err = store.Series().InstanceAt(ctx, series.ID, skipAt)
	assert.ErrorIs(t, err, repository.ErrNotFound, "skip survives a refresh")

	dues, err := store.Series().InstanceDueTimes(ctx, series.ID, due.Add(-time.Hour), due.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Len(t, dues, 6)

	t.Run("duplicate exception rejected", func(t *testing.T) {
		err := svc.AddSeriesException(ctx, models.SeriesException{
			SeriesID:     series.ID,
			OccurrenceDT: skipAt,
			Type:         models.ExceptionSkip,
		})
		assertCode(t, err, service.CodeInvalidException)
	})

	t.Run("non-occurrence rejected", func(t *testing.T) {
		err := svc.AddSeriesException(ctx, models.SeriesException{
			SeriesID:     series.ID,
			OccurrenceDT: due.Add(30 * time.Minute),
			Type:         models.ExceptionSkip,
		})
		assertCode(t, err, service.CodeInvalidException)
	})

	t.Run("skip with task reference rejected", func(t *testing.T) {
		ref := uuid.New()
		err := svc.AddSeriesException(ctx, models.SeriesException{
			SeriesID:        series.ID,
			OccurrenceDT:    due.AddDate(0, 0, 3),
			Type:            models.ExceptionSkip,
			ExceptionTaskID: &ref,
		})
		assertCode(t, err, service.CodeInvalidException)
	})
}

// TestMoveOccurrence detaches one occurrence to a new instant
func TestMoveOccurrence(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	due := futureDue()

	_, series := createDailySeries(t, svc, store, "Backup", 7, due)
	original := due.AddDate(0, 0, 3)
	target := original.Add(5 * time.Hour)

	moved, err := svc.MoveOccurrence(ctx, series.ID, original, target)
	require.NoError(t, err)

	assert.Equal(t, "Backup", moved.Name)
	assert.Nil(t, moved.SeriesID, "moved task is standalone")
	require.NotNil(t, moved.DueAt)
	assert.Equal(t, target, *moved.DueAt)

	_, err = store.Series().InstanceAt(ctx, series.ID, original)
	assert.ErrorIs(t, err, repository.ErrNotFound, "original instance removed")

	exc, err := store.Exceptions().Get(ctx, series.ID, original)
	require.NoError(t, err)
	assert.Equal(t, models.ExceptionMove, exc.Type)
	require.NotNil(t, exc.ExceptionTaskID)
	assert.Equal(t, moved.ID, *exc.ExceptionTaskID)

	t.Run("preview shows the moved instant", func(t *testing.T) {
		preview, err := svc.PreviewOccurrences(ctx, series.ID, original.Add(-time.Hour), 2)
		require.NoError(t, err)
		require.Len(t, preview, 2)
		assert.Equal(t, target, preview[0].Effective)
		assert.Equal(t, original, preview[0].Original)
		assert.Equal(t, due.AddDate(0, 0, 4), preview[1].Effective)
	})

	t.Run("refresh does not restore the original", func(t *testing.T) {
		require.NoError(t, svc.RefreshSeriesDefault(ctx, series.ID))
		_, err := store.Series().InstanceAt(ctx, series.ID, original)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("same instant rejected", func(t *testing.T) {
		_, err := svc.MoveOccurrence(ctx, series.ID, due, due)
		assertCode(t, err, service.CodeValidation)
	})
}

// TestOverrideOccurrence replaces one occurrence with an edited copy
func TestOverrideOccurrence(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	due := futureDue()

	_, series := createDailySeries(t, svc, store, "Report", 5, due)
	at := due.AddDate(0, 0, 1)
	newName := "Quarterly report"
	high := models.PriorityHigh

	override, err := svc.OverrideOccurrence(ctx, series.ID, at, models.UpdateTaskData{
		Name:     &newName,
		Priority: &high,
	})
	require.NoError(t, err)

	assert.Equal(t, newName, override.Name)
	assert.Equal(t, models.PriorityHigh, override.Priority)
	assert.Nil(t, override.SeriesID)
	require.NotNil(t, override.DueAt)
	assert.Equal(t, at, *override.DueAt)

	_, err = store.Series().InstanceAt(ctx, series.ID, at)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	exc, err := store.Exceptions().Get(ctx, series.ID, at)
	require.NoError(t, err)
	assert.Equal(t, models.ExceptionOverride, exc.Type)

	t.Run("rule edits rejected", func(t *testing.T) {
		rule := "FREQ=WEEKLY"
		_, err := svc.OverrideOccurrence(ctx, series.ID, due.AddDate(0, 0, 2), models.UpdateTaskData{RRule: &rule})
		assertCode(t, err, service.CodeValidation)
	})
}

// TestCompleteTask covers both the single-task and the series paths
func TestCompleteTask(t *testing.T) {
	ctx := context.Background()

	t.Run("single task", func(t *testing.T) {
		svc, _ := newService(t)
		task, err := svc.AddTask(ctx, models.NewTaskData{Name: "one-off"})
		require.NoError(t, err)

		result, err := svc.CompleteTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CompletionSingle, result.Kind)
		assert.Equal(t, models.StatusCompleted, result.Completed.Status)
		assert.NotNil(t, result.Completed.CompletedAt)
		assert.Nil(t, result.Next)

		_, err = svc.CompleteTask(ctx, task.ID)
		assertCode(t, err, service.CodeValidation)
	})

	t.Run("series instance yields the next one", func(t *testing.T) {
		svc, store := newService(t)
		due := futureDue()
		_, series := createDailySeries(t, svc, store, "Daily", 3, due)

		first, err := store.Series().InstanceAt(ctx, series.ID, due)
		require.NoError(t, err)

		result, err := svc.CompleteTask(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.CompletionSeriesInstance, result.Kind)
		require.NotNil(t, result.SeriesID)
		assert.Equal(t, series.ID, *result.SeriesID)
		require.NotNil(t, result.NextOccurrence)
		assert.Equal(t, due.AddDate(0, 0, 1), *result.NextOccurrence)
		require.NotNil(t, result.Next)
		assert.Equal(t, models.StatusPending, result.Next.Status)

		dues, err := store.Series().InstanceDueTimes(ctx, series.ID, due.Add(-time.Hour), due.AddDate(0, 0, 5))
		require.NoError(t, err)
		assert.Len(t, dues, 3, "completion must not duplicate the next instance")
	})

	t.Run("rule exhaustion leaves no next", func(t *testing.T) {
		svc, store := newService(t)
		due := futureDue()
		_, series := createDailySeries(t, svc, store, "Last", 1, due)

		only, err := store.Series().InstanceAt(ctx, series.ID, due)
		require.NoError(t, err)

		result, err := svc.CompleteTask(ctx, only.ID)
		require.NoError(t, err)
		assert.Nil(t, result.NextOccurrence)
		assert.Nil(t, result.Next)
	})
}

// TestDependencies covers blocking and cycle prevention
func TestDependencies(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	a, err := svc.AddTask(ctx, models.NewTaskData{Name: "A"})
	require.NoError(t, err)
	b, err := svc.AddTask(ctx, models.NewTaskData{Name: "B", DependsOn: &a.ID})
	require.NoError(t, err)
	c, err := svc.AddTask(ctx, models.NewTaskData{Name: "C", DependsOn: &b.ID})
	require.NoError(t, err)

	t.Run("blocked by uncompleted dependency", func(t *testing.T) {
		_, err := svc.CompleteTask(ctx, b.ID)
		assertCode(t, err, service.CodeTaskBlocked)
	})

	t.Run("closing edge is rejected", func(t *testing.T) {
		err := svc.AddTaskDependency(ctx, a.ID, c.ID)
		assertCode(t, err, service.CodeCircularDependency)
	})

	t.Run("self dependency is rejected", func(t *testing.T) {
		err := svc.AddTaskDependency(ctx, a.ID, a.ID)
		assertCode(t, err, service.CodeValidation)
	})

	t.Run("completing in order works", func(t *testing.T) {
		_, err := svc.CompleteTask(ctx, a.ID)
		require.NoError(t, err)
		_, err = svc.CompleteTask(ctx, b.ID)
		require.NoError(t, err)
		_, err = svc.CompleteTask(ctx, c.ID)
		require.NoError(t, err)
	})
}

// TestProjects covers creation, lookup by name and guarded deletion
func TestProjects(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	project, err := svc.CreateProject(ctx, "Home", "chores")
	require.NoError(t, err)

	t.Run("duplicate name refused", func(t *testing.T) {
		_, err := svc.CreateProject(ctx, "Home", "")
		assertCode(t, err, service.CodeValidation)
	})

	task, err := svc.AddTask(ctx, models.NewTaskData{Name: "vacuum", ProjectName: "Home"})
	require.NoError(t, err)
	require.NotNil(t, task.ProjectID)
	assert.Equal(t, project.ID, *task.ProjectID)

	t.Run("delete refused while tasks remain", func(t *testing.T) {
		err := svc.DeleteProject(ctx, project.ID)
		assertCode(t, err, service.CodeValidation)
		assert.Contains(t, err.Error(), "1 tasks")
	})

	t.Run("delete after emptying", func(t *testing.T) {
		require.NoError(t, svc.DeleteTask(ctx, task.ID))
		require.NoError(t, svc.DeleteProject(ctx, project.ID))

		projects, err := svc.ListProjects(ctx)
		require.NoError(t, err)
		assert.Empty(t, projects)
	})
}

// TestUpdateTask_Scopes exercises the three edit scopes
func TestUpdateTask_Scopes(t *testing.T) {
	ctx := context.Background()

	t.Run("standalone rejects recurrence fields", func(t *testing.T) {
		svc, _ := newService(t)
		task, err := svc.AddTask(ctx, models.NewTaskData{Name: "solo"})
		require.NoError(t, err)

		rule := "FREQ=DAILY"
		_, err = svc.UpdateTask(ctx, task.ID, models.UpdateTaskData{RRule: &rule}, models.ScopeThisOccurrence)
		assertCode(t, err, service.CodeValidation)

		renamed := "solo renamed"
		updated, err := svc.UpdateTask(ctx, task.ID, models.UpdateTaskData{Name: &renamed}, "")
		require.NoError(t, err)
		assert.Equal(t, renamed, updated.Name)
	})

	t.Run("unknown scope rejected", func(t *testing.T) {
		svc, _ := newService(t)
		task, err := svc.AddTask(ctx, models.NewTaskData{Name: "solo"})
		require.NoError(t, err)
		_, err = svc.UpdateTask(ctx, task.ID, models.UpdateTaskData{}, "everything")
		assertCode(t, err, service.CodeValidation)
	})

	t.Run("this occurrence edits one row", func(t *testing.T) {
		svc, store := newService(t)
		due := futureDue()
		template, series := createDailySeries(t, svc, store, "Routine", 5, due)

		instance, err := store.Series().InstanceAt(ctx, series.ID, due.AddDate(0, 0, 1))
		require.NoError(t, err)

		renamed := "Routine (special)"
		updated, err := svc.UpdateTask(ctx, instance.ID, models.UpdateTaskData{Name: &renamed}, models.ScopeThisOccurrence)
		require.NoError(t, err)
		assert.Equal(t, renamed, updated.Name)

		fresh, err := store.Tasks().Get(ctx, template.ID)
		require.NoError(t, err)
		assert.Equal(t, "Routine", fresh.Name, "template untouched")

		rule := "FREQ=WEEKLY"
		_, err = svc.UpdateTask(ctx, instance.ID, models.UpdateTaskData{RRule: &rule}, models.ScopeThisOccurrence)
		assertCode(t, err, service.CodeValidation)
	})

	t.Run("this and future cuts the series", func(t *testing.T) {
		svc, store := newService(t)
		due := futureDue()
		template, series := createDailySeries(t, svc, store, "Routine", 5, due)

		cutAt := due.AddDate(0, 0, 2)
		instance, err := store.Series().InstanceAt(ctx, series.ID, cutAt)
		require.NoError(t, err)

		rule := "FREQ=WEEKLY"
		renamed := "Weekly routine"
		updated, err := svc.UpdateTask(ctx, instance.ID, models.UpdateTaskData{Name: &renamed, RRule: &rule}, models.ScopeThisAndFuture)
		require.NoError(t, err)
		assert.Equal(t, template.ID, updated.ID, "series scopes return the template")
		assert.Equal(t, renamed, updated.Name)

		fresh, err := store.Series().Get(ctx, series.ID)
		require.NoError(t, err)
		assert.Contains(t, fresh.RRule, "FREQ=WEEKLY")
		require.NotNil(t, fresh.LastMaterializedUntil)
		assert.Equal(t, cutAt.Add(-24*time.Hour), *fresh.LastMaterializedUntil, "watermark rewound to the cut")

		dues, err := store.Series().InstanceDueTimes(ctx, series.ID, due.Add(-time.Hour), due.AddDate(0, 0, 10))
		require.NoError(t, err)
		assert.Len(t, dues, 2, "instances from the cut onward removed")
	})

	t.Run("entire series resets materialization", func(t *testing.T) {
		svc, store := newService(t)
		due := futureDue()
		_, series := createDailySeries(t, svc, store, "Routine", 5, due)

		instance, err := store.Series().InstanceAt(ctx, series.ID, due)
		require.NoError(t, err)

		desc := "rewritten"
		_, err = svc.UpdateTask(ctx, instance.ID, models.UpdateTaskData{Description: &desc}, models.ScopeEntireSeries)
		require.NoError(t, err)

		fresh, err := store.Series().Get(ctx, series.ID)
		require.NoError(t, err)
		assert.Nil(t, fresh.LastMaterializedUntil)

		dues, err := store.Series().InstanceDueTimes(ctx, series.ID, due.Add(-time.Hour), due.AddDate(0, 0, 10))
		require.NoError(t, err)
		assert.Empty(t, dues)
	})
}

// TestFindTasksWithDetails refreshes into the query window first
func TestFindTasksWithDetails(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	project, err := svc.CreateProject(ctx, "Ops", "")
	require.NoError(t, err)
	_ = project

	due := futureDue()
	_, err = svc.AddTask(ctx, models.NewTaskData{
		Name:        "deploy",
		ProjectName: "Ops",
		Tags:        []string{"release"},
		DueAt:       &due,
	})
	require.NoError(t, err)

	parent, err := svc.AddTask(ctx, models.NewTaskData{Name: "epic"})
	require.NoError(t, err)
	_, err = svc.AddTask(ctx, models.NewTaskData{Name: "subtask", ParentID: &parent.ID})
	require.NoError(t, err)

	t.Run("nil filter returns the forest in path order", func(t *testing.T) {
		details, err := svc.FindTasksWithDetails(ctx, nil)
		require.NoError(t, err)
		require.Len(t, details, 3)

		byName := map[string]models.TaskDetails{}
		for _, d := range details {
			byName[d.Task.Name] = d
		}
		assert.Equal(t, 0, byName["epic"].Depth)
		assert.Equal(t, 1, byName["subtask"].Depth)
		assert.Equal(t, "Ops", byName["deploy"].ProjectName)
		assert.Equal(t, []string{"release"}, byName["deploy"].Tags)
	})

	t.Run("filters compose", func(t *testing.T) {
		details, err := svc.FindTasksWithDetails(ctx, models.AndFilter{Operands: []models.Filter{
			models.ProjectFilter{Name: "Ops"},
			models.TagFilter{Tag: "release"},
		}})
		require.NoError(t, err)
		require.Len(t, details, 1)
		assert.Equal(t, "deploy", details[0].Task.Name)
	})

	t.Run("query window materializes active series", func(t *testing.T) {
		seriesDue := futureDue().Add(time.Hour)
		_, series := createDailySeries(t, svc, store, "recurring", 3, seriesDue)

		details, err := svc.FindTasksWithDetails(ctx, models.StatusFilter{Status: models.StatusPending})
		require.NoError(t, err)

		instances := 0
		for _, d := range details {
			if d.Task.SeriesID != nil && *d.Task.SeriesID == series.ID {
				instances++
			}
		}
		assert.Equal(t, 3, instances)
	})
}

// TestResolveTaskID resolves full ids and short prefixes
func TestResolveTaskID(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	first := uuid.MustParse("11111111-aaaa-4bbb-8ccc-000000000001")
	second := uuid.MustParse("11112222-aaaa-4bbb-8ccc-000000000002")
	now := time.Now().UTC()
	for _, id := range []uuid.UUID{first, second} {
		require.NoError(t, store.Tasks().Create(ctx, &models.Task{
			ID: id, Name: "t-" + id.String()[:8], Status: models.StatusPending,
			Priority: models.PriorityNone, CreatedAt: now, UpdatedAt: now,
		}))
	}

	t.Run("full id", func(t *testing.T) {
		id, err := svc.ResolveTaskID(ctx, first.String())
		require.NoError(t, err)
		assert.Equal(t, first, id)
	})

	t.Run("unique prefix", func(t *testing.T) {
		id, err := svc.ResolveTaskID(ctx, "11112")
		require.NoError(t, err)
		assert.Equal(t, second, id)
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, err := svc.ResolveTaskID(ctx, "1111")
		assertCode(t, err, service.CodeAmbiguousID)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := svc.ResolveTaskID(ctx, "ffff")
		assertCode(t, err, service.CodeNotFound)
	})
}

// TestDeleteTask_TemplateCascades removes the series with its template
func TestDeleteTask_TemplateCascades(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	due := futureDue()

	template, series := createDailySeries(t, svc, store, "Doomed", 5, due)
	require.NoError(t, svc.AddSeriesException(ctx, models.SeriesException{
		SeriesID:     series.ID,
		OccurrenceDT: due.AddDate(0, 0, 1),
		Type:         models.ExceptionSkip,
	}))

	require.NoError(t, svc.DeleteTask(ctx, template.ID))

	_, err := store.Series().Get(ctx, series.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	dues, err := store.Series().InstanceDueTimes(ctx, series.ID, due.Add(-time.Hour), due.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Empty(t, dues)

	excs, err := store.Exceptions().ListForSeries(ctx, series.ID)
	require.NoError(t, err)
	assert.Empty(t, excs)
}

// TestSeriesLifecycle covers archive, reactivate, duplicate, statistics
func TestSeriesLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	due := futureDue()

	_, series := createDailySeries(t, svc, store, "Cycle", 2, due)

	t.Run("archive refused with pending instances", func(t *testing.T) {
		err := svc.ArchiveCompletedSeries(ctx, series.ID)
		assertCode(t, err, service.CodeSeriesNotCompleted)
	})

	for _, offset := range []int{0, 1} {
		instance, err := store.Series().InstanceAt(ctx, series.ID, due.AddDate(0, 0, offset))
		require.NoError(t, err)
		_, err = svc.CompleteTask(ctx, instance.ID)
		require.NoError(t, err)
	}

	t.Run("statistics", func(t *testing.T) {
		stats, err := svc.SeriesStatistics(ctx, series.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.InstancesByState[models.StatusCompleted])
		assert.Equal(t, 0, stats.InstancesByState[models.StatusPending])
		require.NotNil(t, stats.FirstInstance)
		assert.Equal(t, due, *stats.FirstInstance)
		assert.InDelta(t, 1.0, stats.HealthScore, 0.001, "all completed, active, no exceptions")
		assert.Nil(t, stats.NextOccurrence, "rule exhausted")
	})

	t.Run("archive then reactivate", func(t *testing.T) {
		require.NoError(t, svc.ArchiveCompletedSeries(ctx, series.ID))
		fresh, err := store.Series().Get(ctx, series.ID)
		require.NoError(t, err)
		assert.False(t, fresh.Active)

		require.NoError(t, svc.ReactivateSeries(ctx, series.ID))
		fresh, err = store.Series().Get(ctx, series.ID)
		require.NoError(t, err)
		assert.True(t, fresh.Active)
		assert.Nil(t, fresh.LastMaterializedUntil, "reactivation resets the watermark")
	})

	t.Run("duplicate clones rule and template", func(t *testing.T) {
		dup, err := svc.DuplicateSeries(ctx, series.ID, "Cycle copy", nil)
		require.NoError(t, err)

		src, err := store.Series().Get(ctx, series.ID)
		require.NoError(t, err)
		assert.Equal(t, src.RRule, dup.RRule)
		assert.Nil(t, dup.LastMaterializedUntil)
		assert.True(t, dup.Active)

		clone, err := store.Tasks().Get(ctx, dup.TemplateTaskID)
		require.NoError(t, err)
		assert.Equal(t, "Cycle copy", clone.Name)
	})

	t.Run("missing series", func(t *testing.T) {
		_, err := svc.SeriesStatistics(ctx, uuid.New())
		assertCode(t, err, service.CodeSeriesNotFound)
	})
}

// TestBulkExceptions is atomic: one bad entry rolls back the batch
func TestBulkExceptions(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	due := futureDue()

	_, series := createDailySeries(t, svc, store, "Batch", 7, due)

	batch := []models.SeriesException{
		{SeriesID: series.ID, OccurrenceDT: due.AddDate(0, 0, 1), Type: models.ExceptionSkip},
		{SeriesID: series.ID, OccurrenceDT: due.Add(17 * time.Minute), Type: models.ExceptionSkip}, // not an occurrence
	}
	err := svc.AddSeriesExceptions(ctx, batch)
	assertCode(t, err, service.CodeInvalidException)

	excs, err := store.Exceptions().ListForSeries(ctx, series.ID)
	require.NoError(t, err)
	assert.Empty(t, excs, "nothing from the failed batch persisted")

	t.Run("valid batch lands and removal is idempotent", func(t *testing.T) {
		good := []models.SeriesException{
			{SeriesID: series.ID, OccurrenceDT: due.AddDate(0, 0, 1), Type: models.ExceptionSkip},
			{SeriesID: series.ID, OccurrenceDT: due.AddDate(0, 0, 2), Type: models.ExceptionSkip},
		}
		require.NoError(t, svc.AddSeriesExceptions(ctx, good))

		excs, err := store.Exceptions().ListForSeries(ctx, series.ID)
		require.NoError(t, err)
		assert.Len(t, excs, 2)

		occurrences := []time.Time{due.AddDate(0, 0, 1), due.AddDate(0, 0, 5)}
		require.NoError(t, svc.RemoveSeriesExceptions(ctx, series.ID, occurrences))
		require.NoError(t, svc.RemoveSeriesExceptions(ctx, series.ID, occurrences))

		excs, err = store.Exceptions().ListForSeries(ctx, series.ID)
		require.NoError(t, err)
		assert.Len(t, excs, 1)
	})
}

// TestTransactionality checks that a failed operation leaves no partial state
func TestTransactionality(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)

	ghost := uuid.New()
	_, err := svc.AddTask(ctx, models.NewTaskData{Name: "partial", DependsOn: &ghost})
	assertCode(t, err, service.CodeNotFound)

	details, err := store.Tasks().FindDetails(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, details, "task insert rolled back with the failed dependency")

	var errBoom = errors.New("boom")
	err = store.WithTx(ctx, func(tx repository.Store) error {
		require.NoError(t, tx.Tasks().Create(ctx, &models.Task{ID: uuid.New(), Name: "doomed"}))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	details, err = store.Tasks().FindDetails(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, details)
}
