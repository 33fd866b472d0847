package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskPlanner/internal/logger"
	"taskPlanner/internal/models"
	"taskPlanner/internal/service"
)

type SeriesHandler struct {
	TaskService *service.TaskService
}

func NewSeriesHandler(taskService *service.TaskService) SeriesHandler {
	return SeriesHandler{
		TaskService: taskService,
	}
}

func seriesID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		logger.Warn("HTTP: bad series id",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "invalid series id: "+err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		logger.Warn("HTTP: bad JSON body",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	r.Body.Close()
	return true
}

func (s *SeriesHandler) PostExceptions(w http.ResponseWriter, r *http.Request) {
	id, ok := seriesID(w, r)
	if !ok {
		return
	}

	var requests []ExceptionRequest
	if !decodeBody(w, r, &requests) {
		return
	}

	excs := make([]models.SeriesException, len(requests))
	for i, req := range requests {
		excs[i] = models.SeriesException{
			SeriesID:        id,
			OccurrenceDT:    req.Occurrence,
			Type:            models.ExceptionType(req.Type),
			ExceptionTaskID: req.TaskID,
			Notes:           req.Notes,
		}
	}

	if err := s.TaskService.AddSeriesExceptions(r.Context(), excs); err != nil {
		serviceError(w, err, "add_exceptions")
		return
	}

	logger.Info("HTTP_OUT: exceptions added",
		zap.String("series_id", id.String()),
		zap.Int("count", len(excs)))

	responseWithJSON(w, http.StatusCreated, toPayload("added", len(excs)))
}

func (s *SeriesHandler) DeleteExceptions(w http.ResponseWriter, r *http.Request) {
	id, ok := seriesID(w, r)
	if !ok {
		return
	}

	var request RemoveExceptionsRequest
	if !decodeBody(w, r, &request) {
		return
	}

	if err := s.TaskService.RemoveSeriesExceptions(r.Context(), id, request.Occurrences); err != nil {
		serviceError(w, err, "remove_exceptions")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *SeriesHandler) PostOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := seriesID(w, r)
	if !ok {
		return
	}

	var request OverrideRequest
	if !decodeBody(w, r, &request) {
		return
	}

	task, err := s.TaskService.OverrideOccurrence(r.Context(), id, request.Occurrence, request.Changes.toData())
	if err != nil {
		serviceError(w, err, "override_occurrence")
		return
	}

	responseWithJSON(w, http.StatusCreated, toPayload("task", task))
}

func (s *SeriesHandler) PostMove(w http.ResponseWriter, r *http.Request) {
	id, ok := seriesID(w, r)
	if !ok {
		return
	}

	var request MoveRequest
	if !decodeBody(w, r, &request) {
		return
	}

	task, err := s.TaskService.MoveOccurrence(r.Context(), id, request.Occurrence, request.NewDue)
	if err != nil {
		serviceError(w, err, "move_occurrence")
		return
	}

	responseWithJSON(w, http.StatusCreated, toPayload("task", task))
}

func (s *SeriesHandler) PostDuplicate(w http.ResponseWriter, r *http.Request) {
	id, ok := seriesID(w, r)
	if !ok {
		return
	}

	var request DuplicateSeriesRequest
	if !decodeBody(w, r, &request) {
		return
	}

	dup, err := s.TaskService.DuplicateSeries(r.Context(), id, request.Name, request.Timezone)
	if err != nil {
		serviceError(w, err, "duplicate_series")
		return
	}

	responseWithJSON(w, http.StatusCreated, toPayload("series", dup))
}

func (s *SeriesHandler) PostArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := seriesID(w, r)
	if !ok {
		return
	}

	if err := s.TaskService.ArchiveCompletedSeries(r.Context(), id); err != nil {
		serviceError(w, err, "archive_series")
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("archived", id))
}

func (s *SeriesHandler) PostReactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := seriesID(w, r)
	if !ok {
		return
	}

	if err := s.TaskService.ReactivateSeries(r.Context(), id); err != nil {
		serviceError(w, err, "reactivate_series")
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("reactivated", id))
}

func (s *SeriesHandler) DeleteSeries(w http.ResponseWriter, r *http.Request) {
	id, ok := seriesID(w, r)
	if !ok {
		return
	}

	if err := s.TaskService.DeleteSeries(r.Context(), id); err != nil {
		serviceError(w, err, "delete_series")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *SeriesHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	id, ok := seriesID(w, r)
	if !ok {
		return
	}

	stats, err := s.TaskService.SeriesStatistics(r.Context(), id)
	if err != nil {
		serviceError(w, err, "series_statistics")
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("statistics", stats))
}

func (s *SeriesHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := seriesID(w, r)
	if !ok {
		return
	}

	after := time.Now().UTC()
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			responseWithError(w, http.StatusBadRequest, "after: "+err.Error())
			return
		}
		after = parsed
	}
	count := 5
	if v := r.URL.Query().Get("count"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			responseWithError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = parsed
	}

	occurrences, err := s.TaskService.PreviewOccurrences(r.Context(), id, after, count)
	if err != nil {
		serviceError(w, err, "preview_occurrences")
		return
	}

	out := make([]OccurrenceResponse, len(occurrences))
	for i, occ := range occurrences {
		out[i] = OccurrenceResponse{
			Original:  occ.Original,
			Effective: occ.Effective,
		}
		if occ.Exception != nil {
			out[i].Exception = string(occ.Exception.Type)
		}
	}

	responseWithJSON(w, http.StatusOK, toPayload("occurrences", out))
}

func (s *SeriesHandler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := seriesID(w, r)
	if !ok {
		return
	}

	if err := s.TaskService.RefreshSeriesDefault(r.Context(), id); err != nil {
		serviceError(w, err, "refresh_series")
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("refreshed", id))
}
