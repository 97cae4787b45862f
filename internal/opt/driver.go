package opt

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/crotosolve/internal/cost"
	"github.com/cwbudde/crotosolve/internal/param"
	"github.com/cwbudde/crotosolve/internal/recon"
)

// MaxSweeps is the number of full sweeps a budget affords.
func MaxSweeps(budget, n1, n2 int) int {
	return budget / SweepEvaluations(n1, n2)
}

// Run implements Optimizer by repeating sweeps until the budget is spent or
// Patience consecutive sweeps each change the cost by no more than task.Threshold.
//
// Trace evaluation counts exclude the initial evaluation and the per-sweep
// convergence check: each sweep advances the count by 1 for its starting
// point, then by 2 per SingleFrequency and 5 per TwoFrequency entry.
func (c *Crotosolve) Run(task Task) (*Result, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	params := task.Initial.Clone()
	counter := cost.NewCounter(task.Function)
	n1, n2 := params.Count()
	maxSweeps := MaxSweeps(task.Budget, n1, n2)

	slog.Info("Starting crotosolve",
		"single_params", n1,
		"two_params", n2,
		"budget", task.Budget,
		"max_sweeps", maxSweeps,
	)

	rec := &recorder{observer: c.Observer}
	rec.add(0, cost.Eval(counter, params))

	tracker := NewConvergenceTracker(ConvergenceConfig{Threshold: task.Threshold, Patience: c.Patience})
	evaluations := 0
	sweeps := 0
	converged := false

	for sweeps < maxSweeps {
		result, err := c.Sweep(counter, params)
		if err != nil {
			return nil, fmt.Errorf("sweep %d: %w", sweeps, err)
		}
		sweeps++

		evaluations++
		for _, step := range result.Steps {
			n, err := recon.NewSamples(step.Index.Family)
			if err != nil {
				return nil, err
			}
			evaluations += n
			rec.add(evaluations, step.Cost)
		}

		current := cost.Eval(counter, params)
		slog.Debug("Sweep complete", "sweep", sweeps, "start_cost", result.StartCost, "cost", current)
		if tracker.Check(result.StartCost, current) {
			converged = true
			break
		}
	}

	final, _ := rec.trace.Final()
	slog.Info("Crotosolve complete",
		"sweeps", sweeps,
		"evaluations", counter.Calls(),
		"final_cost", final.Cost,
		"best_cost", tracker.BestCost(),
		"converged", converged,
	)

	return &Result{
		Trace:       rec.trace,
		Params:      params,
		Evaluations: counter.Calls(),
		Iterations:  sweeps,
		Converged:   converged,
	}, nil
}

// Optimize runs the Crotosolve driver with default settings.
func Optimize(task Task) (*Result, error) {
	return NewCrotosolve().Run(task)
}

// paramCount is shared by the baselines.
func paramCount(v *param.Vector) int {
	n1, n2 := v.Count()
	return n1 + n2
}
