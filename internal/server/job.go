package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/crotosolve/internal/landscape"
	"github.com/cwbudde/crotosolve/internal/opt"
	"github.com/cwbudde/crotosolve/internal/param"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Finished reports whether the state is terminal.
func (s JobState) Finished() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig holds configuration for an optimization job. The cost function
// is never sent over the wire; it is rebuilt from Landscape by the worker.
type JobConfig struct {
	Optimizer    string           `json:"optimizer"`
	Landscape    landscape.Config `json:"landscape"`
	Budget       int              `json:"budget"`
	Threshold    float64          `json:"threshold"`
	Patience     int              `json:"patience,omitempty"`
	ParamsSeed   int64            `json:"paramsSeed"`
	LearningRate float64          `json:"learningRate,omitempty"`
	PopSize      int              `json:"popSize,omitempty"`
	Parallelism  int              `json:"parallelism,omitempty"`
}

// applyDefaults fills in zero values that have a sensible default.
func (c *JobConfig) applyDefaults() {
	d := opt.DefaultSettings()
	if c.Optimizer == "" {
		c.Optimizer = "crotosolve"
	}
	if c.Budget == 0 {
		c.Budget = 1000
	}
	if c.Landscape.Terms == 0 {
		c.Landscape.Terms = 8
	}
	if c.LearningRate == 0 {
		c.LearningRate = d.LearningRate
	}
	if c.PopSize == 0 {
		c.PopSize = d.PopSize
	}
	if c.Patience == 0 {
		c.Patience = d.Patience
	}
}

// Settings returns the strategy settings for opt.New.
func (c JobConfig) Settings() opt.Settings {
	s := opt.DefaultSettings()
	s.LearningRate = c.LearningRate
	s.PopSize = c.PopSize
	s.Seed = c.Landscape.Seed
	s.Parallelism = c.Parallelism
	s.Patience = c.Patience
	return s
}

// Validate checks the configuration before a job is created.
func (c JobConfig) Validate() error {
	if _, err := opt.New(c.Optimizer, c.Settings()); err != nil {
		return err
	}
	if c.Budget < 0 {
		return fmt.Errorf("budget cannot be negative: %d", c.Budget)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("threshold cannot be negative: %g", c.Threshold)
	}
	if c.Patience < 0 {
		return fmt.Errorf("patience cannot be negative: %d", c.Patience)
	}
	return c.Landscape.Validate()
}

// Job represents an optimization job
type Job struct {
	ID          string        `json:"id"`
	State       JobState      `json:"state"`
	Config      JobConfig     `json:"config"`
	InitialCost float64       `json:"initialCost"`
	BestCost    float64       `json:"bestCost"`
	Evaluations int           `json:"evaluations"`
	Iterations  int           `json:"iterations"`
	Converged   bool          `json:"converged"`
	Params      *param.Vector `json:"params,omitempty"`
	RunID       string        `json:"runId,omitempty"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     *time.Time    `json:"endTime,omitempty"`
	Error       string        `json:"error,omitempty"`

	trace  opt.Trace
	cancel context.CancelFunc
}

// snapshot returns a copy that is safe to hand out after the lock is released.
func (j *Job) snapshot() *Job {
	c := *j
	c.trace = nil
	c.cancel = nil
	if j.Params != nil {
		c.Params = j.Params.Clone()
	}
	if j.EndTime != nil {
		end := *j.EndTime
		c.EndTime = &end
	}
	return &c
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	return job.snapshot()
}

// GetJob retrieves a copy of the job with the given ID
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.snapshot(), true
}

// GetTrace returns a copy of the job's trace so far
func (jm *JobManager) GetTrace(id string) (opt.Trace, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return append(opt.Trace{}, job.trace...), true
}

// ListJobs returns copies of all jobs, oldest first
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].StartTime.Before(jobs[k].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// appendTrace records a trace point and the progress it implies
func (jm *JobManager) appendTrace(id string, p opt.TracePoint) (*Job, bool) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	if len(job.trace) == 0 {
		job.InitialCost = p.Cost
		job.BestCost = p.Cost
	}
	job.trace = append(job.trace, p)
	if p.Cost < job.BestCost {
		job.BestCost = p.Cost
	}
	if p.Evaluations > job.Evaluations {
		job.Evaluations = p.Evaluations
	}
	return job.snapshot(), true
}

// setCancel stores the function that stops a running job
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.UpdateJob(id, func(j *Job) { j.cancel = cancel })
}

// CancelJob stops a pending or running job. It reports false if the job does
// not exist or has already finished.
func (jm *JobManager) CancelJob(id string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists || job.State.Finished() || job.cancel == nil {
		return false
	}
	job.cancel()
	return true
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, job.snapshot())
		}
	}
	return runningJobs
}
