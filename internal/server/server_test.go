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

	"github.com/cwbudde/crotosolve/internal/opt"
	"github.com/cwbudde/crotosolve/internal/store"
)

// waitForJob polls until the job reaches a terminal state.
func waitForJob(t *testing.T, s *Server, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := s.jobManager.GetJob(id)
		if ok && job.State.Finished() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish in time", id)
	return nil
}

func postJob(t *testing.T, h http.Handler, config JobConfig) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(config)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_CreateJob(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	w := postJob(t, s.Handler(), JobConfig{Landscape: testLandscape(), Budget: 200})

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
	if job.Config.Optimizer != "crotosolve" {
		t.Errorf("Expected default optimizer crotosolve, got %q", job.Config.Optimizer)
	}

	finished := waitForJob(t, s, job.ID)
	if finished.State != StateCompleted {
		t.Errorf("Expected completed state, got %s (%s)", finished.State, finished.Error)
	}
}

func TestServer_CreateJob_InvalidRequests(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", "{not json"},
		{"unknown optimizer", `{"optimizer":"simplex"}`},
		{"negative budget", `{"budget":-5}`},
		{"negative dimension", `{"landscape":{"single_shape":[-1]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}

	if n := len(s.jobManager.ListJobs()); n != 0 {
		t.Errorf("Rejected requests should not create jobs, got %d", n)
	}
}

func TestServer_ListJobs(t *testing.T) {
	s := NewServer(":8080", nil)

	s.jobManager.CreateJob(JobConfig{Optimizer: "crotosolve"})
	s.jobManager.CreateJob(JobConfig{Optimizer: "adam"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var jobs []*Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s := NewServer(":8080", nil)

	job := s.jobManager.CreateJob(JobConfig{Optimizer: "crotosolve", Landscape: testLandscape(), Budget: 100})

	for _, path := range []string{"/api/v1/jobs/" + job.ID, "/api/v1/jobs/" + job.ID + "/status"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, w.Code)
		}

		var status map[string]interface{}
		if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if status["id"] != job.ID {
			t.Errorf("Expected id %s, got %v", job.ID, status["id"])
		}
		if status["state"] != string(StatePending) {
			t.Errorf("Expected pending state, got %v", status["state"])
		}
	}
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s := NewServer(":8080", nil)

	for _, path := range []string{
		"/api/v1/jobs/nonexistent",
		"/api/v1/jobs/nonexistent/trace",
		"/api/v1/jobs/nonexistent/stream",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", path, w.Code)
		}
	}
}

func TestServer_GetJobTrace(t *testing.T) {
	s := NewServer(":8080", nil)

	job := s.jobManager.CreateJob(JobConfig{Optimizer: "crotosolve", Landscape: testLandscape(), Budget: 200})
	if err := runJob(context.Background(), s.jobManager, nil, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/trace", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var trace opt.Trace
	if err := json.NewDecoder(w.Body).Decode(&trace); err != nil {
		t.Fatalf("Failed to decode trace: %v", err)
	}
	if len(trace) < 2 {
		t.Fatalf("Expected at least 2 trace points, got %d", len(trace))
	}
	if trace[0].Evaluations != 0 {
		t.Errorf("First trace point should be at 0 evaluations, got %d", trace[0].Evaluations)
	}
	if err := trace.Validate(); err != nil {
		t.Errorf("Trace should be valid: %v", err)
	}
}

func TestServer_CancelJob(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	w := postJob(t, s.Handler(), JobConfig{
		Landscape: testLandscape(),
		Budget:    50_000_000,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}
	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+job.ID, nil)
	cw := httptest.NewRecorder()
	s.Handler().ServeHTTP(cw, req)

	// The job may have already finished on a very fast machine
	if cw.Code != http.StatusAccepted && cw.Code != http.StatusConflict {
		t.Fatalf("Expected status 202 or 409, got %d", cw.Code)
	}

	finished := waitForJob(t, s, job.ID)
	if cw.Code == http.StatusAccepted && finished.State != StateCancelled {
		t.Errorf("Expected cancelled state, got %s", finished.State)
	}

	// A finished job cannot be cancelled again
	cw = httptest.NewRecorder()
	s.Handler().ServeHTTP(cw, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+job.ID, nil))
	if cw.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", cw.Code)
	}
}

func TestServer_Shutdown_CancelsJobs(t *testing.T) {
	s := NewServer(":8080", nil)

	job, err := s.SubmitJob(JobConfig{Landscape: testLandscape(), Budget: 50_000_000})
	if err != nil {
		t.Fatalf("SubmitJob failed: %v", err)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	finished := waitForJob(t, s, job.ID)
	if finished.State != StateCancelled && finished.State != StateCompleted {
		t.Errorf("Expected cancelled or completed state, got %s", finished.State)
	}
}

func TestServer_Runs(t *testing.T) {
	runStore, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	s := NewServer(":8080", runStore)

	job := s.jobManager.CreateJob(JobConfig{Optimizer: "crotosolve", Landscape: testLandscape(), Budget: 200})
	if err := runJob(context.Background(), s.jobManager, runStore, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var infos []store.RunInfo
	if err := json.NewDecoder(w.Body).Decode(&infos); err != nil {
		t.Fatalf("Failed to decode runs: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != job.ID {
		t.Fatalf("Expected one run with ID %s, got %+v", job.ID, infos)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+job.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var run store.Run
	if err := json.NewDecoder(w.Body).Decode(&run); err != nil {
		t.Fatalf("Failed to decode run: %v", err)
	}
	if run.Budget != 200 {
		t.Errorf("Expected budget 200, got %d", run.Budget)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_Runs_NoStore(t *testing.T) {
	s := NewServer(":8080", nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_Optimizers(t *testing.T) {
	s := NewServer(":8080", nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/optimizers", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var names []string
	if err := json.NewDecoder(w.Body).Decode(&names); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if fmt.Sprint(names) != fmt.Sprint(opt.Names()) {
		t.Errorf("Expected %v, got %v", opt.Names(), names)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s := NewServer(":8080", nil)

	job := s.jobManager.CreateJob(JobConfig{Optimizer: "crotosolve", Landscape: testLandscape(), Budget: 100})
	if err := runJob(context.Background(), s.jobManager, nil, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 from /healthz, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from /metrics, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"crotosolve_runs_total", "crotosolve_cost_evaluations_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected metric %s in /metrics output", name)
		}
	}
}

func TestServer_CORS(t *testing.T) {
	s := NewServer(":8080", nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}

func TestServer_JobStream_SSE(t *testing.T) {
	s := NewServer(":8080", nil)

	job := s.jobManager.CreateJob(JobConfig{Optimizer: "crotosolve", Landscape: testLandscape(), Budget: 500})

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/stream", job.ID), nil)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.handleJobStream(w, req, job.ID)
		close(done)
	}()

	if err := runJob(context.Background(), s.jobManager, nil, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	// The stream ends on its own once the terminal event is delivered
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stream did not end after job completion")
	}

	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Error("Expected text/event-stream content type")
	}
	if !strings.Contains(w.Body.String(), "event: completed\n") {
		t.Errorf("Expected a named completed event, got %q", w.Body.String())
	}

	var events []ProgressEvent
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event ProgressEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("Failed to parse SSE event %q: %v", line, err)
		}
		events = append(events, event)
	}

	if len(events) == 0 {
		t.Fatal("Expected SSE events in response")
	}
	last := events[len(events)-1]
	if last.State != StateCompleted {
		t.Errorf("Last event should be completed, got %s", last.State)
	}
	if last.JobID != job.ID {
		t.Errorf("Expected jobID %s, got %s", job.ID, last.JobID)
	}
}

func TestServer_JobStream_FinishedJob(t *testing.T) {
	s := NewServer(":8080", nil)

	job := s.jobManager.CreateJob(JobConfig{Optimizer: "crotosolve", Landscape: testLandscape(), Budget: 100})
	if err := runJob(context.Background(), s.jobManager, nil, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/stream", nil)
	w := httptest.NewRecorder()
	s.handleJobStream(w, req, job.ID)

	body := w.Body.String()
	if strings.Count(body, "data: ") != 1 {
		t.Errorf("Expected exactly one event for a finished job, got %q", body)
	}
	if !strings.Contains(body, `"state":"completed"`) {
		t.Errorf("Expected completed state in stream, got %q", body)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	// Subscribe to events
	ch := eb.Subscribe("job1")

	event := ProgressEvent{
		JobID:       "job1",
		State:       StateRunning,
		Evaluations: 10,
		BestCost:    0.5,
		Timestamp:   time.Now(),
	}
	eb.Broadcast(event)

	select {
	case received := <-ch:
		if received.JobID != "job1" {
			t.Errorf("Expected jobID job1, got %s", received.JobID)
		}
		if received.Evaluations != 10 {
			t.Errorf("Expected 10 evaluations, got %d", received.Evaluations)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}

	// A late subscriber receives the last event
	late := eb.Subscribe("job1")
	select {
	case received := <-late:
		if received.Evaluations != 10 {
			t.Errorf("Late subscriber expected last event, got %+v", received)
		}
	default:
		t.Error("Late subscriber should receive the last event immediately")
	}

	eb.Unsubscribe("job1", ch)
	eb.Unsubscribe("job1", ch) // double unsubscribe must not panic

	eb.CleanupJob("job1")
	if _, ok := <-late; ok {
		t.Error("CleanupJob should close remaining channels")
	}
}
