package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"taskPlanner/internal/logger"
	"taskPlanner/internal/service"
)

// handleBusinessError renders a BusinessError with the matching status
// code and reports whether it handled the error.
func handleBusinessError(w http.ResponseWriter, err error) bool {
	var businessErr *service.BusinessError
	if !errors.As(err, &businessErr) {
		return false
	}

	statusCode := mapBusinessErrorToHTTP(businessErr.Code)

	logger.Warn("HTTP: business error",
		zap.String("error_code", businessErr.Code),
		zap.Int("http_status", statusCode))

	responseWithJSON(w, statusCode,
		toPayload("error", businessErr.Code),
		toPayload("message", businessErr.Message),
		toPayload("details", businessErr.Details),
	)
	return true
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case service.CodeNotFound, service.CodeSeriesNotFound:
		return http.StatusNotFound
	case service.CodeAmbiguousID:
		return http.StatusConflict
	case service.CodeValidation, service.CodeInvalidTimezone,
		service.CodeInvalidRRule, service.CodeInvalidException:
		return http.StatusBadRequest
	case service.CodeTaskBlocked, service.CodeCircularDependency,
		service.CodeSeriesNotCompleted:
		return http.StatusConflict
	case service.CodeMaterialization, service.CodeStorage:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// serviceError is the common tail of every handler: business errors get
// their mapped status, anything else is a 500.
func serviceError(w http.ResponseWriter, err error, operation string) {
	if handleBusinessError(w, err) {
		return
	}
	logger.Error("HTTP: service error", err, zap.String("operation", operation))
	responseWithError(w, http.StatusInternalServerError, err.Error())
}
