package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(":0", t.TempDir(), nil)
}

// waitForTerminal blocks until the job leaves the pending/running states,
// so tests do not tear down temp directories under a live worker.
func waitForTerminal(t *testing.T, jm *JobManager, jobID string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, exists := jm.GetJob(jobID)
		if !exists {
			t.Fatalf("Job %s disappeared", jobID)
		}
		if job.State != StatePending && job.State != StateRunning {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish in time", jobID)
	return Job{}
}

func TestServer_CreateJob(t *testing.T) {
	s := newTestServer(t)

	config := JobConfig{
		Objective:  "sphere",
		Algorithm:  "random",
		Dimensions: 2,
		Iterations: 10,
		Seed:       42,
	}

	body, _ := json.Marshal(config)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleCreateJob(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}

	// State should be pending or running (since worker starts immediately)
	if job.State != StatePending && job.State != StateRunning {
		t.Errorf("Expected pending or running state, got %s", job.State)
	}

	// The resolved backend is echoed back
	if job.Config.Backend == "" {
		t.Error("Backend should be resolved to the algorithm's default")
	}

	waitForTerminal(t, s.jobManager, job.ID)
}

func TestServer_CreateJob_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config JobConfig
		errMsg string
	}{
		{
			name:   "unknown objective",
			config: JobConfig{Objective: "parabola", Algorithm: "random"},
			errMsg: "unknown objective",
		},
		{
			name:   "unknown algorithm",
			config: JobConfig{Objective: "sphere", Algorithm: "annealing"},
			errMsg: "unknown algorithm",
		},
		{
			name:   "incompatible pair",
			config: JobConfig{Objective: "sphere", Algorithm: "grid", Backend: "sequential-model-based"},
			errMsg: "incompatible",
		},
		{
			name:   "negative iterations",
			config: JobConfig{Objective: "sphere", Algorithm: "random", Iterations: -1},
			errMsg: "iterations",
		},
		{
			name: "categorical space",
			config: JobConfig{
				Objective: "sphere",
				Algorithm: "random",
				Space:     map[string]any{"act": []any{"relu", "tanh"}},
			},
			errMsg: "categorical",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			body, _ := json.Marshal(tt.config)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
			w := httptest.NewRecorder()

			s.handleCreateJob(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errMsg, w.Body.String())
			}
		})
	}
}

func TestServer_ListJobs(t *testing.T) {
	s := newTestServer(t)

	// Register two jobs without running them
	s.jobManager.CreateJob(JobConfig{Objective: "sphere", Algorithm: "random"})
	s.jobManager.CreateJob(JobConfig{Objective: "ackley", Algorithm: "tpe"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()

	s.handleListJobs(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var jobs []Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s := newTestServer(t)

	job, _ := s.jobManager.CreateJob(JobConfig{Objective: "sphere", Algorithm: "random"})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/status", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetJobStatus(w, req, job.ID)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["id"] != job.ID {
		t.Error("Response should contain job ID")
	}

	if response["state"] != string(StatePending) {
		t.Errorf("Expected pending state, got %v", response["state"])
	}
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/status", nil)
	w := httptest.NewRecorder()

	s.handleGetJobStatus(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_GetHistory(t *testing.T) {
	s := newTestServer(t)

	job, ctx := s.jobManager.CreateJob(JobConfig{
		Objective:  "sphere",
		Algorithm:  "random",
		Dimensions: 2,
		Iterations: 8,
		Seed:       42,
	})

	// Run job to completion
	if err := runJob(ctx, s.jobManager, nil, s.dataDir, job.ID); err != nil {
		t.Fatalf("Job failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/history", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetHistory(w, req, job.ID)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var record map[string]map[string]any
	if err := json.NewDecoder(w.Body).Decode(&record); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(record) != 8 {
		t.Errorf("Expected 8 history entries, got %d", len(record))
	}
	for key, params := range record {
		if len(params) != 2 {
			t.Errorf("Entry %q should carry 2 parameters, got %d", key, len(params))
		}
	}
}

func TestServer_GetConvergence(t *testing.T) {
	s := newTestServer(t)

	job, ctx := s.jobManager.CreateJob(JobConfig{
		Objective:  "sphere",
		Algorithm:  "random",
		Dimensions: 2,
		Iterations: 6,
		Seed:       42,
	})

	if err := runJob(ctx, s.jobManager, nil, s.dataDir, job.ID); err != nil {
		t.Fatalf("Job failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/convergence.png", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetConvergence(w, req, job.ID)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("Response should be a PNG image")
	}
}

func TestServer_GetConvergence_NoTrials(t *testing.T) {
	s := newTestServer(t)

	job, _ := s.jobManager.CreateJob(JobConfig{Objective: "sphere", Algorithm: "random"})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/convergence.png", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetConvergence(w, req, job.ID)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 before any trials, got %d", w.Code)
	}
}

func TestServer_GetReport(t *testing.T) {
	s := newTestServer(t)

	job, ctx := s.jobManager.CreateJob(JobConfig{
		Objective:  "rastrigin",
		Algorithm:  "tpe",
		Dimensions: 2,
		Iterations: 12,
		Seed:       3,
	})

	if err := runJob(ctx, s.jobManager, nil, s.dataDir, job.ID); err != nil {
		t.Fatalf("Job failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/report.html", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleGetReport(w, req, job.ID)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	body := w.Body.String()
	if !strings.Contains(body, "echarts") {
		t.Error("Report should embed the charting library")
	}
	if !strings.Contains(body, "tpe") {
		t.Error("Report should name the algorithm")
	}
}

func TestServer_CancelJob(t *testing.T) {
	s := newTestServer(t)

	job, ctx := s.jobManager.CreateJob(JobConfig{
		Objective:  "sphere",
		Algorithm:  "random",
		Iterations: 1000000,
		Seed:       42,
	})

	done := make(chan error)
	go func() {
		done <- runJob(ctx, s.jobManager, nil, s.dataDir, job.ID)
	}()

	time.Sleep(50 * time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/jobs/%s/cancel", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleCancelJob(w, req, job.ID)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	if err := <-done; err == nil {
		t.Error("Cancelled job should surface an error")
	}

	updated, _ := s.jobManager.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Expected cancelled state, got %s", updated.State)
	}

	// A second cancel hits a terminal job
	w = httptest.NewRecorder()
	s.handleCancelJob(w, req, job.ID)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for finished job, got %d", w.Code)
	}
}

func TestServer_CancelJob_NotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/nonexistent/cancel", nil)
	w := httptest.NewRecorder()

	s.handleCancelJob(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_Objectives(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/objectives", nil)
	w := httptest.NewRecorder()

	s.handleObjectives(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var list []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(list) == 0 {
		t.Fatal("Expected at least one objective")
	}

	found := false
	for _, entry := range list {
		if entry["name"] == "sphere" {
			found = true
		}
	}
	if !found {
		t.Error("Objective list should include sphere")
	}
}

func TestServer_Integration(t *testing.T) {
	// Skip in short mode
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	// Create job
	config := JobConfig{
		Objective:  "sphere",
		Algorithm:  "random",
		Dimensions: 2,
		Iterations: 10,
		Seed:       42,
	}

	body, _ := json.Marshal(config)
	resp, err := http.Post(srv.URL+"/api/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	defer resp.Body.Close()

	var job Job
	json.NewDecoder(resp.Body).Decode(&job)

	// Poll status until completed
	maxAttempts := 50
	for i := 0; i < maxAttempts; i++ {
		resp, err := http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/status")
		if err != nil {
			t.Fatalf("Failed to get status: %v", err)
		}

		var status map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()

		if status["state"] == string(StateCompleted) {
			break
		}

		if status["state"] == string(StateFailed) {
			t.Fatalf("Job failed: %v", status["error"])
		}

		if i == maxAttempts-1 {
			t.Fatal("Job did not complete in time")
		}

		time.Sleep(100 * time.Millisecond)
	}

	// History is served once trials exist
	resp, err = http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/history")
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	var record map[string]map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(record) != 10 {
		t.Errorf("Expected 10 history entries, got %d", len(record))
	}
}

func TestServer_JobStream_SSE(t *testing.T) {
	s := newTestServer(t)

	job, _ := s.jobManager.CreateJob(JobConfig{Objective: "sphere", Algorithm: "random"})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/stream", job.ID), nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan bool)
	go func() {
		s.handleJobStream(w, req, job.ID)
		done <- true
	}()

	// Let the handler write the initial event, then push one progress
	// event through the broadcaster before disconnecting.
	time.Sleep(100 * time.Millisecond)
	s.jobManager.broadcaster.Broadcast(ProgressEvent{
		JobID:     job.ID,
		State:     StateRunning,
		Trials:    7,
		BestValue: 0.5,
		Timestamp: time.Now(),
	})
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stream handler did not stop on disconnect")
	}

	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Error("Expected text/event-stream content type")
	}

	body := w.Body.String()
	if !strings.Contains(body, "data: {") {
		t.Error("Expected SSE data in response")
	}
	if !strings.Contains(body, job.ID) {
		t.Error("Expected events to carry the job ID")
	}
}

func TestServer_JobStream_NotFound(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/stream", nil)
	w := httptest.NewRecorder()

	s.handleJobStream(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	// Subscribe to events
	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	// Broadcast an event
	event := ProgressEvent{
		JobID:     "job1",
		State:     StateRunning,
		Trials:    10,
		BestValue: 100.5,
		TPS:       1500.0,
		Timestamp: time.Now(),
	}
	eb.Broadcast(event)

	// Receive event
	select {
	case received := <-ch:
		if received.JobID != "job1" {
			t.Errorf("Expected jobID job1, got %s", received.JobID)
		}
		if received.Trials != 10 {
			t.Errorf("Expected 10 trials, got %d", received.Trials)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	// Cleanup
	eb.CleanupJob("job1")
}

func TestEventBroadcaster_LastEventReplay(t *testing.T) {
	eb := NewEventBroadcaster()

	eb.Broadcast(ProgressEvent{JobID: "job1", State: StateRunning, Trials: 4})

	// A late subscriber still sees the most recent event
	ch := eb.Subscribe("job1")
	defer eb.CleanupJob("job1")

	select {
	case received := <-ch:
		if received.Trials != 4 {
			t.Errorf("Expected replayed event with 4 trials, got %d", received.Trials)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for replayed event")
	}
}
