package handlers

import (
	"time"

	"github.com/google/uuid"

	"taskPlanner/internal/models"
)

type CreateTaskRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Project     string     `json:"project,omitempty"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
	DependsOn   *uuid.UUID `json:"depends_on,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	RRule       string     `json:"rrule,omitempty"`
	Timezone    string     `json:"timezone,omitempty"`
}

type UpdateTaskRequest struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	Status      *string    `json:"status,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	ClearDueAt  bool       `json:"clear_due_at,omitempty"`
	ProjectID   *uuid.UUID `json:"project_id,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	RRule       *string    `json:"rrule,omitempty"`
	Timezone    *string    `json:"timezone,omitempty"`
}

func (r UpdateTaskRequest) toData() models.UpdateTaskData {
	data := models.UpdateTaskData{
		Name:        r.Name,
		Description: r.Description,
		DueAt:       r.DueAt,
		ClearDueAt:  r.ClearDueAt,
		ProjectID:   r.ProjectID,
		Tags:        r.Tags,
		RRule:       r.RRule,
		Timezone:    r.Timezone,
	}
	if r.Priority != nil {
		p := models.Priority(*r.Priority)
		data.Priority = &p
	}
	if r.Status != nil {
		st := models.Status(*r.Status)
		data.Status = &st
	}
	return data
}

type ExceptionRequest struct {
	Occurrence time.Time  `json:"occurrence"`
	Type       string     `json:"type"`
	TaskID     *uuid.UUID `json:"task_id,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

type RemoveExceptionsRequest struct {
	Occurrences []time.Time `json:"occurrences"`
}

type OverrideRequest struct {
	Occurrence time.Time         `json:"occurrence"`
	Changes    UpdateTaskRequest `json:"changes"`
}

type MoveRequest struct {
	Occurrence time.Time `json:"occurrence"`
	NewDue     time.Time `json:"new_due"`
}

type DuplicateSeriesRequest struct {
	Name     string  `json:"name"`
	Timezone *string `json:"timezone,omitempty"`
}

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type OccurrenceResponse struct {
	Original  time.Time `json:"original"`
	Effective time.Time `json:"effective"`
	Exception string    `json:"exception,omitempty"`
}
