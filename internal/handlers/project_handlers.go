package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskPlanner/internal/logger"
	"taskPlanner/internal/service"
)

type ProjectHandler struct {
	TaskService *service.TaskService
}

func NewProjectHandler(taskService *service.TaskService) ProjectHandler {
	return ProjectHandler{
		TaskService: taskService,
	}
}

func (s *ProjectHandler) PostProject(w http.ResponseWriter, r *http.Request) {
	var request CreateProjectRequest
	if !decodeBody(w, r, &request) {
		return
	}

	project, err := s.TaskService.CreateProject(r.Context(), request.Name, request.Description)
	if err != nil {
		serviceError(w, err, "create_project")
		return
	}

	logger.Info("HTTP_OUT: project created",
		zap.String("project_id", project.ID.String()),
		zap.String("name", project.Name))

	responseWithJSON(w, http.StatusCreated, toPayload("project", project))
}

func (s *ProjectHandler) GetProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.TaskService.ListProjects(r.Context())
	if err != nil {
		serviceError(w, err, "list_projects")
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("projects", projects))
}

func (s *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		logger.Warn("HTTP: bad project id",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "invalid project id: "+err.Error())
		return
	}

	if err := s.TaskService.DeleteProject(r.Context(), id); err != nil {
		serviceError(w, err, "delete_project")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
