package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskPlanner/internal/logger"
	"taskPlanner/internal/models"
	"taskPlanner/internal/service"
)

type TaskHandler struct {
	TaskService *service.TaskService
}

func NewTaskHandler(taskService *service.TaskService) TaskHandler {
	return TaskHandler{
		TaskService: taskService,
	}
}

func (s *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if !checkContentType(r, "application/json") {
		logger.Warn("HTTP: wrong content type",
			zap.String("expected", "application/json"),
			zap.String("received", r.Header.Get("Content-Type")),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	var request CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.Warn("HTTP: bad JSON body",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	task, err := s.TaskService.AddTask(r.Context(), models.NewTaskData{
		Name:        request.Name,
		Description: request.Description,
		Priority:    models.Priority(request.Priority),
		DueAt:       request.DueAt,
		ProjectName: request.Project,
		ParentID:    request.ParentID,
		DependsOn:   request.DependsOn,
		Tags:        request.Tags,
		RRule:       request.RRule,
		Timezone:    request.Timezone,
	})
	if err != nil {
		serviceError(w, err, "create_task")
		return
	}

	logger.Info("HTTP_OUT: task created",
		zap.String("task_id", task.ID.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	responseWithJSON(w, http.StatusCreated, toPayload("task", task))
}

func (s *TaskHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	filter, err := filterFromQuery(r)
	if err != nil {
		logger.Warn("HTTP: bad filter query",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	details, err := s.TaskService.FindTasksWithDetails(r.Context(), filter)
	if err != nil {
		serviceError(w, err, "find_tasks")
		return
	}

	logger.Info("HTTP_OUT: tasks listed",
		zap.Int("count", len(details)),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK, toPayload("tasks", details))
}

func (s *TaskHandler) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	id, err := s.TaskService.ResolveTaskID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err, "resolve_task")
		return
	}

	details, err := s.TaskService.GetTask(r.Context(), id)
	if err != nil {
		serviceError(w, err, "get_task")
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("task", details))
}

func (s *TaskHandler) UpdateTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := s.TaskService.ResolveTaskID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err, "resolve_task")
		return
	}

	var request UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.Warn("HTTP: bad JSON body",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "invalid update body: "+err.Error())
		return
	}
	defer r.Body.Close()

	scope := models.EditScope(r.URL.Query().Get("scope"))

	task, err := s.TaskService.UpdateTask(r.Context(), id, request.toData(), scope)
	if err != nil {
		serviceError(w, err, "update_task")
		return
	}

	logger.Info("HTTP_OUT: task updated",
		zap.String("task_id", task.ID.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK, toPayload("task", task))
}

func (s *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := s.TaskService.ResolveTaskID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err, "resolve_task")
		return
	}

	result, err := s.TaskService.CompleteTask(r.Context(), id)
	if err != nil {
		serviceError(w, err, "complete_task")
		return
	}

	logger.Info("HTTP_OUT: task completed",
		zap.String("task_id", id.String()),
		zap.String("kind", string(result.Kind)),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK, toPayload("result", result))
}

func (s *TaskHandler) DeleteTaskByID(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := s.TaskService.ResolveTaskID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err, "resolve_task")
		return
	}

	if err := s.TaskService.DeleteTask(r.Context(), id); err != nil {
		serviceError(w, err, "delete_task")
		return
	}

	logger.Info("HTTP_OUT: task deleted",
		zap.String("task_id", id.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusNoContent))

	w.WriteHeader(http.StatusNoContent)
}

func (s *TaskHandler) PostDependency(w http.ResponseWriter, r *http.Request) {
	id, err := s.TaskService.ResolveTaskID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err, "resolve_task")
		return
	}

	var request struct {
		DependsOn uuid.UUID `json:"depends_on"`
	}
	if !decodeBody(w, r, &request) {
		return
	}

	if err := s.TaskService.AddTaskDependency(r.Context(), id, request.DependsOn); err != nil {
		serviceError(w, err, "add_dependency")
		return
	}

	responseWithJSON(w, http.StatusCreated, toPayload("task", id), toPayload("depends_on", request.DependsOn))
}

func (s *TaskHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.TaskService.HealthCheck(r.Context()); err != nil {
		logger.Error("HTTP: health check failed", err)
		responseWithError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("status", "ok"))
}
