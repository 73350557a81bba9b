package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	LastRunID string    `json:"last_run_id,omitempty"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

// writeError writes the standardized error response.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := r.Context().Value("request_id")
	if requestID == nil {
		requestID = "unknown"
	}

	writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID.(string),
		Timestamp: time.Now().UTC(),
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	}
	if latest, ok := s.runner.Latest(); ok {
		resp.LastRunID = latest.RunID
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLatestRun handles GET /api/v1/runs/latest.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	latest, ok := s.runner.Latest()
	if !ok {
		writeError(w, r, http.StatusNotFound, "no_completed_runs",
			"No signal run has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

// handleTriggerRun handles POST /api/v1/runs. Runs execute synchronously;
// overlapping triggers are rejected rather than queued.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	default:
		writeError(w, r, http.StatusConflict, "run_in_progress",
			"Another signal run is already executing")
		return
	}

	result, err := s.runner.Run(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "run_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleNotFound handles 404 responses.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}
