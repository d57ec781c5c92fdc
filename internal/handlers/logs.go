package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// SubmitRequest is the body of POST /logs.
type SubmitRequest struct {
	LogPath string `json:"log_path"`
	User    string `json:"user"`
	JobID   string `json:"job_id,omitempty"`
}

func (h *ServiceHandler) SubmitLog(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			ErrorCode: "invalid_request",
			Message:   normalizeErrorMessage(fmt.Sprintf("failed to decode request body: %s", err)),
		})
		return
	}
	if req.LogPath == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			ErrorCode: "invalid_request",
			Message:   "log_path is required",
		})
		return
	}

	result, err := h.srv.SubmitLog(r.Context(), req.LogPath, req.User, req.JobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *ServiceHandler) AnalyzeLog(w http.ResponseWriter, r *http.Request) {
	logPath := r.URL.Query().Get("log_path")
	if logPath == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			ErrorCode: "invalid_request",
			Message:   "log_path query parameter is required",
		})
		return
	}

	var restart *int
	if v := r.URL.Query().Get("wl_restart"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				ErrorCode: "invalid_request",
				Message:   normalizeErrorMessage(fmt.Sprintf("invalid wl_restart value %q", v)),
			})
			return
		}
		restart = &n
	}

	result, err := h.srv.AnalyzeLog(r.Context(), logPath, r.URL.Query().Get("file"), restart)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PrintLog returns the head of a log file as plain text, for a quick
// look at what the analyzer would be fed.
func (h *ServiceHandler) PrintLog(w http.ResponseWriter, r *http.Request) {
	logPath := r.URL.Query().Get("log_path")
	if logPath == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			ErrorCode: "invalid_request",
			Message:   "log_path query parameter is required",
		})
		return
	}

	preview, err := h.srv.ReadPreview(logPath)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(preview))
}
