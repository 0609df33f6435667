package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/filecleaner/internal/core"
	"github.com/JonMunkholm/filecleaner/internal/history"
	"github.com/JonMunkholm/filecleaner/internal/logging"
)

// InfoResponse is returned by GET / for API clients.
type InfoResponse struct {
	Message          string   `json:"message"`
	Version          string   `json:"version"`
	SupportedFormats []string `json:"supported_formats"`
	CleaningSteps    []string `json:"cleaning_steps"`
	Architecture     string   `json:"architecture"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string                `json:"status"`
	Version          string                `json:"version"`
	SupportedFormats []string              `json:"supported_formats"`
	Endpoints        map[string]string     `json:"endpoints"`
	TempDir          string                `json:"temp_dir"`
	FilesCount       int                   `json:"files_count"`
	Jobs             core.JobLimiterStatus `json:"jobs"`
	HistoryEnabled   bool                  `json:"history_enabled"`
}

// JobsResponse is returned by GET /api/jobs.
type JobsResponse struct {
	Success bool            `json:"success"`
	Enabled bool            `json:"enabled"`
	Jobs    []history.Entry `json:"jobs"`
}

var endpoints = map[string]string{
	"process":      "POST /process-file-from-url",
	"process_old":  "POST /process-excel-from-url",
	"preview":      "POST /preview-file-from-url",
	"download":     "GET /download/{file_id}",
	"storage_info": "GET /storage-info",
	"metrics":      "GET /metrics",
	"jobs":         "GET /api/jobs",
}

// handleRoot describes the service. Browsers get an HTML status page.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if wantsHTML(r) {
		s.renderStatusPage(w, r)
		return
	}
	writeJSON(w, http.StatusOK, InfoResponse{
		Message:          "Excel/CSV Processor API",
		Version:          Version,
		SupportedFormats: supportedFormats,
		CleaningSteps:    s.service.Pipeline().Steps(),
		Architecture:     "Modular",
	})
}

// handleHealth reports liveness plus storage and job slot state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:           "healthy",
		Version:          Version,
		SupportedFormats: supportedFormats,
		Endpoints:        endpoints,
		TempDir:          s.service.Store().Root(),
		Jobs:             s.service.JobLimiterStatus(),
		HistoryEnabled:   s.service.History().Enabled(),
	}

	usage, err := s.service.Store().Usage()
	if err != nil {
		// The service can still accept jobs; report the problem without failing.
		logging.FromContext(r.Context()).Warn("health: storage usage unavailable", "error", err)
		resp.Status = "degraded"
	} else {
		resp.FilesCount = countOutputs(usage)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStorageInfo lists every file in the storage directory.
func (s *Server) handleStorageInfo(w http.ResponseWriter, r *http.Request) {
	usage, err := s.service.Store().Usage()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStorageInfoResponse(usage))
}

// handleRecentJobs returns the newest job history entries.
func (s *Server) handleRecentJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", history.DefaultRecentLimit)

	entries, err := s.service.History().Recent(r.Context(), limit)
	if errors.Is(err, history.ErrDisabled) {
		writeJSON(w, http.StatusOK, JobsResponse{Success: true, Enabled: false, Jobs: []history.Entry{}})
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, JobsResponse{Success: true, Enabled: true, Jobs: entries})
}

// handleJobQueueStatus returns the current state of the job limiter.
// Used for monitoring and to check if the service can accept more jobs.
func (s *Server) handleJobQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.JobLimiterStatus())
}

// wantsHTML reports whether the client prefers an HTML page.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
