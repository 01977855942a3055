package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cwbudde/hypertune"
	"github.com/cwbudde/hypertune/bench"
	"github.com/cwbudde/hypertune/history"
	"github.com/cwbudde/hypertune/report"
	"github.com/cwbudde/hypertune/trial"
)

// Server exposes search jobs over HTTP
type Server struct {
	jobManager *JobManager
	addr       string
	dataDir    string
	archive    *history.DB
	server     *http.Server
}

// NewServer creates a new HTTP server. dataDir receives per-job history
// files and generated reports; archive is an optional sqlite trial log.
func NewServer(addr, dataDir string, archive *history.DB) *Server {
	if dataDir == "" {
		dataDir = "data"
	}
	return &Server{
		jobManager: NewJobManager(),
		addr:       addr,
		dataDir:    dataDir,
		archive:    archive,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	slog.Info("starting http server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Handler builds the route table wrapped in the standard middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/v1/objectives", s.handleObjectives)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down http server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleIndex describes the API surface at the root path
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": "hypertune",
		"endpoints": []string{
			"GET  /api/v1/objectives",
			"POST /api/v1/jobs",
			"GET  /api/v1/jobs",
			"GET  /api/v1/jobs/{id}/status",
			"GET  /api/v1/jobs/{id}/history",
			"GET  /api/v1/jobs/{id}/report.html",
			"GET  /api/v1/jobs/{id}/convergence.png",
			"GET  /api/v1/jobs/{id}/stream",
			"POST /api/v1/jobs/{id}/cancel",
		},
	})
}

// handleObjectives handles GET /api/v1/objectives
func (s *Server) handleObjectives(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type objectiveInfo struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Low         float64 `json:"low"`
		High        float64 `json:"high"`
	}

	list := make([]objectiveInfo, 0)
	for _, b := range bench.All() {
		list = append(list, objectiveInfo{
			Name:        b.Name,
			Description: b.Desc,
			Low:         b.Low,
			High:        b.High,
		})
	}
	writeJSON(w, http.StatusOK, list)
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/{id}/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]

	switch {
	case len(parts) == 1 || parts[1] == "status":
		s.handleGetJobStatus(w, r, jobID)
	case parts[1] == "history":
		s.handleGetHistory(w, r, jobID)
	case parts[1] == "report.html":
		s.handleGetReport(w, r, jobID)
	case parts[1] == "convergence.png":
		s.handleGetConvergence(w, r, jobID)
	case parts[1] == "stream":
		s.handleJobStream(w, r, jobID)
	case parts[1] == "cancel":
		s.handleCancelJob(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	// Validate against the registry and the compatibility table before
	// anything runs, so submissions fail fast with a clear message.
	b, err := bench.Lookup(config.Objective)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if config.Algorithm == "" {
		config.Algorithm = string(hypertune.Random)
	}
	alg, backend, err := hypertune.Resolve(config.Algorithm, config.Backend)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	config.Algorithm = string(alg)
	config.Backend = string(backend)
	if config.Iterations < 0 {
		http.Error(w, "iterations must not be negative", http.StatusBadRequest)
		return
	}
	if _, err := jobSpace(config, b); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, ctx := s.jobManager.CreateJob(config)

	// Start worker in background
	go runJob(ctx, s.jobManager, s.archive, s.dataDir, job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/{id}/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	var tps float64
	if sec := elapsed.Seconds(); sec > 0 {
		tps = float64(job.Trials) / sec
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         job.ID,
		"state":      job.State,
		"config":     job.Config,
		"bestValue":  job.BestValue,
		"bestParams": job.BestParams,
		"trials":     job.Trials,
		"elapsed":    elapsed.Seconds(),
		"tps":        tps,
		"startTime":  job.StartTime,
		"endTime":    job.EndTime,
		"error":      job.Error,
	})
}

// handleGetHistory handles GET /api/v1/jobs/{id}/history. The body is
// the same value-keyed object the history files carry, built from the
// trials recorded so far.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	trials, _ := s.jobManager.JobTrials(jobID)
	store := trial.NewStore()
	for _, tr := range trials {
		store.Record(tr)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(history.FromStore(store)); err != nil {
		slog.Error("failed to encode history", "job_id", jobID, "error", err)
	}
}

// handleGetReport handles GET /api/v1/jobs/{id}/report.html. The report
// is regenerated from the current trials on every request, so it works
// for running jobs too.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	trials, _ := s.jobManager.JobTrials(jobID)
	if len(trials) == 0 {
		http.Error(w, "No trials yet", http.StatusNotFound)
		return
	}
	sp, _ := s.jobManager.JobSpace(jobID)

	dir := jobDir(s.dataDir, jobID)
	info := report.Info{
		Algorithm: job.Config.Algorithm,
		Backend:   job.Config.Backend,
		Trials:    trials,
		Space:     sp,
	}
	if err := report.HTML(dir, info); err != nil {
		http.Error(w, fmt.Sprintf("Failed to build report: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filepath.Join(dir, report.ReportHTML))
}

// handleGetConvergence handles GET /api/v1/jobs/{id}/convergence.png
func (s *Server) handleGetConvergence(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	trials, _ := s.jobManager.JobTrials(jobID)
	if len(trials) == 0 {
		http.Error(w, "No trials yet", http.StatusNotFound)
		return
	}

	dir := jobDir(s.dataDir, jobID)
	if err := report.Convergence(dir, trials); err != nil {
		http.Error(w, fmt.Sprintf("Failed to build plot: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filepath.Join(dir, report.ConvergencePNG))
}

// handleCancelJob handles POST /api/v1/jobs/{id}/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	job, err := s.jobManager.CancelJob(jobID)
	if err != nil {
		if job.ID == "" {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
