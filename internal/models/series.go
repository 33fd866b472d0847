package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskSeries is a persisted recurrence: canonical rrule + template task +
// timezone. Instance tasks are a materialized cache of the rule;
// LastMaterializedUntil is the high-watermark of the most recent refresh.
type TaskSeries struct {
	ID                    uuid.UUID  `json:"id" db:"id"`
	TemplateTaskID        uuid.UUID  `json:"template_task_id" db:"template_task_id"`
	RRule                 string     `json:"rrule" db:"rrule"`
	DTStart               time.Time  `json:"dtstart" db:"dtstart"`
	Timezone              string     `json:"timezone" db:"timezone"`
	Active                bool       `json:"active" db:"active"`
	LastMaterializedUntil *time.Time `json:"last_materialized_until,omitempty" db:"last_materialized_until"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

type ExceptionType string

const (
	ExceptionSkip     ExceptionType = "skip"
	ExceptionOverride ExceptionType = "override"
	ExceptionMove     ExceptionType = "move"
)

// SeriesException hides, replaces or moves a single occurrence.
// Skip carries no task reference; Override and Move must point at an
// existing task.
type SeriesException struct {
	SeriesID        uuid.UUID     `json:"series_id" db:"series_id"`
	OccurrenceDT    time.Time     `json:"occurrence_dt" db:"occurrence_dt"`
	Type            ExceptionType `json:"exception_type" db:"exception_type"`
	ExceptionTaskID *uuid.UUID    `json:"exception_task_id,omitempty" db:"exception_task_id"`
	Notes           string        `json:"notes,omitempty" db:"notes"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

// SeriesStatistics aggregates the materialized state of one series.
type SeriesStatistics struct {
	SeriesID         uuid.UUID      `json:"series_id"`
	Active           bool           `json:"active"`
	InstancesByState map[Status]int `json:"instances_by_status"`
	ExceptionsByType map[ExceptionType]int `json:"exceptions_by_type"`
	FirstInstance    *time.Time     `json:"first_instance,omitempty"`
	LastInstance     *time.Time     `json:"last_instance,omitempty"`
	NextOccurrence   *time.Time     `json:"next_occurrence,omitempty"`
	HealthScore      float64        `json:"health_score"`
}
