package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// subscriberBuffer bounds how far a slow SSE client can lag before events are dropped.
const subscriberBuffer = 64

// ProgressEvent is one update on a job: a new trace point or a state change.
type ProgressEvent struct {
	JobID       string    `json:"jobId"`
	State       JobState  `json:"state"`
	Evaluations int       `json:"evaluations"`
	Cost        float64   `json:"cost"`
	BestCost    float64   `json:"bestCost"`
	Timestamp   time.Time `json:"timestamp"`
}

// name is the SSE event type: "progress" while running, the state once finished.
func (e ProgressEvent) name() string {
	if e.State.Finished() {
		return string(e.State)
	}
	return "progress"
}

type subscribers map[chan ProgressEvent]struct{}

// EventBroadcaster fans progress events out to the SSE clients of each job and
// remembers the latest event so late subscribers start from the current state.
type EventBroadcaster struct {
	mu     sync.Mutex
	byJob  map[string]subscribers
	latest map[string]ProgressEvent
}

// NewEventBroadcaster creates an empty broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		byJob:  make(map[string]subscribers),
		latest: make(map[string]ProgressEvent),
	}
}

// Subscribe registers a client for jobID. The latest event, if any, is
// already queued on the returned channel.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, subscriberBuffer)
	if eb.byJob[jobID] == nil {
		eb.byJob[jobID] = make(subscribers)
	}
	eb.byJob[jobID][ch] = struct{}{}

	if event, ok := eb.latest[jobID]; ok {
		ch <- event
	}

	slog.Debug("SSE client subscribed", "job_id", jobID, "clients", len(eb.byJob[jobID]))
	return ch
}

// Unsubscribe removes and closes ch. Calling it twice is harmless.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.byJob[jobID]
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(eb.byJob, jobID)
	}
	slog.Debug("SSE client unsubscribed", "job_id", jobID)
}

// Broadcast delivers event to every client of its job without blocking.
// A client whose buffer is full misses the event; terminal events are
// still seen by clients that reconnect, through the latest-event replay.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.latest[event.JobID] = event

	for ch := range eb.byJob[event.JobID] {
		select {
		case ch <- event:
		default:
			slog.Debug("SSE client lagging, event dropped", "job_id", event.JobID, "evaluations", event.Evaluations)
		}
	}
}

// CleanupJob closes every client channel of jobID and forgets its latest event.
func (eb *EventBroadcaster) CleanupJob(jobID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for ch := range eb.byJob[jobID] {
		close(ch)
	}
	delete(eb.byJob, jobID)
	delete(eb.latest, jobID)
}

// handleJobStream streams a job's progress as server-sent events until the
// job finishes or the client goes away.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	current := ProgressEvent{
		JobID:       job.ID,
		State:       job.State,
		Evaluations: job.Evaluations,
		BestCost:    job.BestCost,
		Timestamp:   time.Now(),
	}
	if err := writeSSEEvent(w, current); err != nil {
		slog.Error("Failed to write SSE event", "job_id", jobID, "error", err)
		return
	}
	flusher.Flush()
	if job.State.Finished() {
		return
	}

	events := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, events)

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("SSE client disconnected", "job_id", jobID)
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "job_id", jobID, "error", err)
				return
			}
			flusher.Flush()
			if event.State.Finished() {
				return
			}

		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one named event whose id is the evaluation count.
func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event.name(), event.Evaluations, data)
	return err
}
