package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ElasticProvisioner/attribution/internal/analyzer"
	"github.com/ElasticProvisioner/attribution/internal/cache"
	"github.com/ElasticProvisioner/attribution/internal/service"
	"go.uber.org/zap"
)

type ServiceHandler struct {
	srv *service.AttributionService
}

func NewServiceHandler(srv *service.AttributionService) *ServiceHandler {
	return &ServiceHandler{srv: srv}
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.S().Named("handlers").Errorf("failed to write response: %s", err)
	}
}

// normalizeErrorMessage lowercases the message and strips a trailing
// period, so clients can match on error text deterministically.
func normalizeErrorMessage(msg string) string {
	return strings.TrimRight(strings.ToLower(msg), ".")
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	writeJSON(w, status, ErrorResponse{
		ErrorCode: code,
		Message:   normalizeErrorMessage(err.Error()),
	})
}

func statusForError(err error) (int, string) {
	switch {
	case errors.As(err, new(*service.ErrInvalidPath)),
		errors.As(err, new(*service.ErrEmptyFile)),
		errors.As(err, new(*service.ErrNotRegularFile)):
		return http.StatusBadRequest, "invalid_path"
	case errors.As(err, new(*service.ErrPathOutsideRoot)):
		return http.StatusForbidden, "outside_root"
	case errors.As(err, new(*service.ErrPathNotFound)),
		errors.As(err, new(*cache.ErrFileUnreadable)):
		return http.StatusNotFound, "not_found"
	case errors.As(err, new(*analyzer.ErrAnalysisTimeout)):
		return http.StatusGatewayTimeout, "analysis_timeout"
	case errors.As(err, new(*analyzer.ErrAnalysisFailed)):
		return http.StatusInternalServerError, "analysis_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
