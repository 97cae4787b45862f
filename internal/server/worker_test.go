package server

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cwbudde/crotosolve/internal/landscape"
	"github.com/cwbudde/crotosolve/internal/store"
)

func TestRunJob_Success(t *testing.T) {
	runStore, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	jm := NewJobManager()
	config := JobConfig{
		Optimizer:  "crotosolve",
		Landscape:  testLandscape(),
		Budget:     200,
		ParamsSeed: 3,
	}
	config.applyDefaults()

	job := jm.CreateJob(config)

	if err := runJob(context.Background(), jm, runStore, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Fatalf("Job should be completed, got %s", updated.State)
	}
	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}
	if updated.BestCost > updated.InitialCost {
		t.Errorf("BestCost %g exceeds InitialCost %g", updated.BestCost, updated.InitialCost)
	}
	if updated.Evaluations == 0 || updated.Evaluations > config.Budget {
		t.Errorf("Evaluations = %d, want within (0, %d]", updated.Evaluations, config.Budget)
	}
	if updated.Params == nil {
		t.Fatal("Params should be set")
	}
	if n1, n2 := updated.Params.Count(); n1 != 3 || n2 != 2 {
		t.Errorf("Params count = (%d, %d), want (3, 2)", n1, n2)
	}

	trace, _ := jm.GetTrace(job.ID)
	if len(trace) < 2 {
		t.Errorf("Expected a trace with at least 2 points, got %d", len(trace))
	}

	// The finished job is persisted under its own ID
	if updated.RunID != job.ID {
		t.Errorf("RunID = %q, want %q", updated.RunID, job.ID)
	}
	run, err := runStore.LoadRun(job.ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if _, ok := run.Results["crotosolve"]; !ok {
		t.Error("Stored run should contain the crotosolve result")
	}
	if _, err := os.Stat(store.TracePath(runStore.BaseDir(), job.ID, "crotosolve")); err != nil {
		t.Errorf("Trace file should exist: %v", err)
	}
}

func TestRunJob_WithoutStore(t *testing.T) {
	jm := NewJobManager()
	config := JobConfig{Optimizer: "adam", Landscape: testLandscape(), Budget: 100}
	config.applyDefaults()
	job := jm.CreateJob(config)

	if err := runJob(context.Background(), jm, nil, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Errorf("Job should be completed, got %s", updated.State)
	}
	if updated.RunID != "" {
		t.Errorf("RunID should be empty without a store, got %q", updated.RunID)
	}
}

func TestRunJob_InvalidLandscape(t *testing.T) {
	jm := NewJobManager()
	config := JobConfig{
		Optimizer: "crotosolve",
		Landscape: landscape.Config{SingleShape: []int{2}, Terms: 0},
		Budget:    100,
	}

	job := jm.CreateJob(config)

	err := runJob(context.Background(), jm, nil, job.ID)
	if err == nil {
		t.Error("runJob should fail with an invalid landscape")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}

	if updated.Error == "" {
		t.Error("Error message should be set")
	}
}

func TestRunJob_NotFound(t *testing.T) {
	if err := runJob(context.Background(), NewJobManager(), nil, "nonexistent"); err == nil {
		t.Error("runJob should fail for an unknown job")
	}
}

func TestRunJob_CancelledBeforeStart(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{Optimizer: "crotosolve", Landscape: testLandscape(), Budget: 100})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runJob(ctx, jm, nil, job.ID); err == nil {
		t.Error("runJob should return error when cancelled")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
}

func TestRunJob_Cancellation(t *testing.T) {
	jm := NewJobManager()
	config := JobConfig{
		Optimizer: "crotosolve",
		Landscape: landscape.Config{Seed: 1, SingleShape: []int{10, 10}, TwoShape: []int{5, 5}, Terms: 32},
		Budget:    10_000_000, // Long-running job
	}

	job := jm.CreateJob(config)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() {
		done <- runJob(ctx, jm, nil, job.ID)
	}()

	// Give it time to start
	time.Sleep(50 * time.Millisecond)

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("runJob should return error when cancelled")
		}
	case <-time.After(30 * time.Second):
		t.Fatal("runJob did not return after cancellation")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
}
