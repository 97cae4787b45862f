package server

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/crotosolve/internal/cost"
	"github.com/cwbudde/crotosolve/internal/landscape"
	"github.com/cwbudde/crotosolve/internal/metrics"
	"github.com/cwbudde/crotosolve/internal/opt"
	"github.com/cwbudde/crotosolve/internal/param"
	"github.com/cwbudde/crotosolve/internal/store"
)

// cancellable stops forwarding evaluations once ctx is done, so a cancelled
// run drains its remaining budget without touching the cost function.
type cancellable struct {
	ctx   context.Context
	inner cost.Function
}

func (c *cancellable) Evaluate(single, two *param.Array) float64 {
	if c.ctx.Err() != nil {
		return math.Inf(1)
	}
	return c.inner.Evaluate(single, two)
}

func (c *cancellable) ConcurrencySafe() bool {
	return cost.IsConcurrencySafe(c.inner)
}

// runJob executes an optimization job in the background.
// If runStore is not nil, the finished job is persisted as a run record.
func runJob(ctx context.Context, jm *JobManager, runStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Check for cancellation before doing any work
	if ctx.Err() != nil {
		markJobCancelled(jm, jobID)
		return ctx.Err()
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "optimizer", job.Config.Optimizer, "budget", job.Config.Budget)

	l, err := landscape.New(job.Config.Landscape)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	initial := l.RandomParams(job.Config.ParamsSeed)

	settings := job.Config.Settings()
	settings.Observer = func(p opt.TracePoint) {
		if ctx.Err() != nil {
			return
		}
		updated, ok := jm.appendTrace(jobID, p)
		if !ok {
			return
		}
		jm.broadcaster.Broadcast(ProgressEvent{
			JobID:       jobID,
			State:       updated.State,
			Evaluations: p.Evaluations,
			Cost:        p.Cost,
			BestCost:    updated.BestCost,
			Timestamp:   time.Now(),
		})
	}

	optimizer, err := opt.New(job.Config.Optimizer, settings)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	task := opt.Task{
		Function:  &cancellable{ctx: ctx, inner: l},
		Initial:   initial,
		Budget:    job.Config.Budget,
		Threshold: job.Config.Threshold,
	}

	start := time.Now()
	result, err := optimizer.Run(task)
	elapsed := time.Since(start)

	// A cancelled run fed +Inf to the optimizer, so its result is meaningless
	if ctx.Err() != nil {
		markJobCancelled(jm, jobID)
		metrics.RecordFailure(optimizer.Name(), metrics.OutcomeCancelled)
		return ctx.Err()
	}
	if err != nil {
		markJobFailed(jm, jobID, err)
		metrics.RecordFailure(optimizer.Name(), metrics.OutcomeFailed)
		return err
	}

	final, _ := result.Trace.Final()
	best, _ := result.Trace.Best()
	metrics.RecordRun(optimizer.Name(), result.Evaluations, final.Cost, result.Converged, elapsed)

	var runID string
	if runStore != nil {
		run := store.NewRun(job.Config.Landscape, initial, job.Config.Budget, job.Config.Threshold)
		run.ID = jobID
		run.AddResult(optimizer.Name(), result, elapsed)
		if err := runStore.SaveRun(run); err != nil {
			slog.Error("Failed to save run", "job_id", jobID, "error", err)
		} else {
			runID = run.ID
			if fs, ok := runStore.(*store.FSStore); ok {
				if err := store.WriteTrace(fs.BaseDir(), run.ID, optimizer.Name(), result.Trace); err != nil {
					slog.Warn("Failed to write trace file", "job_id", jobID, "error", err)
				}
			}
		}
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.trace = result.Trace
		j.BestCost = best.Cost
		j.Evaluations = result.Evaluations
		j.Iterations = result.Iterations
		j.Converged = result.Converged
		j.Params = result.Params
		j.RunID = runID
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"evaluations", result.Evaluations,
		"final_cost", final.Cost,
		"converged", result.Converged,
	)

	// Broadcast final completion event
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:       jobID,
		State:       StateCompleted,
		Evaluations: final.Evaluations,
		Cost:        final.Cost,
		BestCost:    best.Cost,
		Timestamp:   time.Now(),
	})

	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateFailed, Timestamp: endTime})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateCancelled, Timestamp: endTime})
	slog.Info("Job cancelled", "job_id", jobID)
}
