package models

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid transitions: pending -> completed, pending -> cancelled.
// Completed and cancelled are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && (next == StatusCompleted || next == StatusCancelled)
}

type Priority string

const (
	PriorityNone   Priority = "none"
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func ValidPriority(p Priority) bool {
	switch p {
	case PriorityNone, PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is either a series instance (SeriesID set), a series template
// (referenced by task_series.template_task_id, SeriesID empty) or a
// standalone task.
type Task struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	Status      Status     `json:"status" db:"status"`
	Priority    Priority   `json:"priority" db:"priority"`
	DueAt       *time.Time `json:"due_at,omitempty" db:"due_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	ProjectID   *uuid.UUID `json:"project_id,omitempty" db:"project_id"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty" db:"parent_id"`
	SeriesID    *uuid.UUID `json:"series_id,omitempty" db:"series_id"`
}

// NewTaskData is the input of the add-task operation. When RRule is set
// the created task becomes a series template.
type NewTaskData struct {
	Name        string
	Description string
	DueAt       *time.Time
	Priority    Priority
	ProjectID   *uuid.UUID
	ProjectName string
	Tags        []string
	ParentID    *uuid.UUID
	DependsOn   *uuid.UUID
	RRule       string
	Timezone    string
}

// UpdateTaskData carries partial field changes; nil means "leave as is".
type UpdateTaskData struct {
	Name        *string
	Description *string
	DueAt       *time.Time
	ClearDueAt  bool
	Priority    *Priority
	Status      *Status
	ProjectID   *uuid.UUID
	Tags        []string // nil = untouched, non-nil = replace
	RRule       *string
	Timezone    *string
}

func (u UpdateTaskData) TouchesRecurrence() bool {
	return u.RRule != nil || u.Timezone != nil
}

type EditScope string

const (
	ScopeThisOccurrence EditScope = "this"
	ScopeThisAndFuture  EditScope = "future"
	ScopeEntireSeries   EditScope = "series"
)

type CompletionKind string

const (
	CompletionSingle         CompletionKind = "single"
	CompletionSeriesInstance CompletionKind = "series_instance"
)

/// CompletionResult is the sum value returned by complete-task: either a
// plain completed task or a completed series instance together with the
// next materialized instance, when one falls inside the window.
type CompletionResult struct {
	Kind           CompletionKind `json:"kind"`
	Completed      *Task          `json:"completed"`
	Next           *Task          `json:"next,omitempty"`
	SeriesID       *uuid.UUID     `json:"series_id,omitempty"`
	NextOccurrence *time.Time     `json:"next_occurrence,omitempty"`
}

// TaskDetails is one row of the detail listing: the task plus its depth
// in the parent forest, the resolved project name and its tags.
type TaskDetails struct {
	Task        Task     `json:"task"`
	Depth       int      `json:"depth"`
	ProjectName string   `json:"project_name,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}
