package service

import (
	"fmt"
	"strings"
)

const (
	CodeNotFound           = "NOT_FOUND"
	CodeAmbiguousID        = "AMBIGUOUS_ID"
	CodeValidation         = "VALIDATION_ERROR"
	CodeTaskBlocked        = "TASK_BLOCKED"
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"
	CodeInvalidTimezone    = "INVALID_TIMEZONE"
	CodeInvalidRRule       = "INVALID_RRULE"
	CodeInvalidException   = "INVALID_EXCEPTION"
	CodeSeriesNotFound     = "SERIES_NOT_FOUND"
	CodeSeriesNotCompleted = "SERIES_NOT_COMPLETED"
	CodeMaterialization    = "MATERIALIZATION_FAILED"
	CodeStorage            = "STORAGE_ERROR"
)

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func newBusinessError(code, message string) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

func NewNotFound(what string) *BusinessError {
	e := newBusinessError(CodeNotFound, fmt.Sprintf("%s not found", what))
	e.Details["resource"] = what
	return e
}

func NewAmbiguousID(prefix string, candidates []string) *BusinessError {
	e := newBusinessError(CodeAmbiguousID,
		fmt.Sprintf("id prefix %q matches %d tasks", prefix, len(candidates)))
	e.Details["prefix"] = prefix
	e.Details["candidates"] = candidates
	return e
}

func NewValidationError(detail string) *BusinessError {
	return newBusinessError(CodeValidation, detail)
}

func NewTaskBlocked(names []string) *BusinessError {
	e := newBusinessError(CodeTaskBlocked,
		fmt.Sprintf("task blocked by uncompleted dependencies: %s", strings.Join(names, ", ")))
	e.Details["blocking"] = names
	return e
}

func NewCircularDependency(task, dependsOn string) *BusinessError {
	e := newBusinessError(CodeCircularDependency,
		fmt.Sprintf("dependency %s -> %s would create a cycle", task, dependsOn))
	e.Details["task"] = task
	e.Details["depends_on"] = dependsOn
	return e
}

func NewInvalidTimezone(name string) *BusinessError {
	e := newBusinessError(CodeInvalidTimezone, fmt.Sprintf("unknown timezone %q", name))
	e.Details["timezone"] = name
	return e
}

func NewInvalidRRule(detail string) *BusinessError {
	return newBusinessError(CodeInvalidRRule, detail)
}

func NewInvalidException(detail string) *BusinessError {
	return newBusinessError(CodeInvalidException, detail)
}

func NewSeriesNotFound(id string) *BusinessError {
	e := newBusinessError(CodeSeriesNotFound, fmt.Sprintf("series %s not found", id))
	e.Details["series_id"] = id
	return e
}

func NewSeriesNotCompleted(detail string) *BusinessError {
	return newBusinessError(CodeSeriesNotCompleted, detail)
}

func NewMaterializationError(detail string, err error) *BusinessError {
	e := newBusinessError(CodeMaterialization, detail)
	e.Err = err
	return e
}

func NewStorageError(err error) *BusinessError {
	e := newBusinessError(CodeStorage, "storage operation failed")
	e.Err = err
	return e
}
