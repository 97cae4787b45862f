package opt

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/crotosolve/internal/cost"
	"github.com/cwbudde/crotosolve/internal/minimize"
	"github.com/cwbudde/crotosolve/internal/param"
	"github.com/cwbudde/crotosolve/internal/recon"
)

// Rotosolve is coordinate descent with exact slice reconstruction that keeps
// no running cost: every parameter update samples its slice from scratch on
// an equidistant grid, including the current value.
type Rotosolve struct {
	// Parallelism dispatches a parameter's samples concurrently when the cost
	// function declares itself concurrency safe. Values below 2 disable it.
	Parallelism int

	// Patience is how many consecutive stale sweeps end the run.
	Patience int

	// OnWarning receives reconstruction diagnostics. Nil uses LogWarnings.
	OnWarning WarningHandler

	// Observer receives every trace point recorded by Run.
	Observer Observer
}

// NewRotosolve creates a Rotosolve optimizer with default settings
func NewRotosolve() *Rotosolve {
	return &Rotosolve{}
}

// Name implements Optimizer.
func (r *Rotosolve) Name() string {
	return "rotosolve"
}

// RotosolveSweepEvaluations is the exact number of cost evaluations one
// Rotosolve sweep spends: 3 per SingleFrequency and 5 per TwoFrequency parameter.
func RotosolveSweepEvaluations(n1, n2 int) int {
	single, _ := recon.EquidistantSamples(param.SingleFrequency)
	two, _ := recon.EquidistantSamples(param.TwoFrequency)
	return single*n1 + two*n2
}

// Sweep updates every parameter of v in place, visiting SingleFrequency
// parameters first. StartCost is the cost sampled at v before the first update.
func (r *Rotosolve) Sweep(f cost.Function, v *param.Vector) (*SweepResult, error) {
	var opts []recon.Option
	if r.Parallelism > 1 && cost.IsConcurrencySafe(f) {
		opts = append(opts, recon.WithParallelism(r.Parallelism))
	}
	onWarning := r.OnWarning
	if onWarning == nil {
		onWarning = LogWarnings
	}

	indices := v.Indices()
	result := &SweepResult{Steps: make([]Step, 0, len(indices))}
	for i, idx := range indices {
		theta0, err := v.Get(idx)
		if err != nil {
			return nil, err
		}

		curve, err := recon.ReconstructEquidistant(restrict(f, v, idx), idx.Family, theta0, opts...)
		if err != nil {
			return nil, fmt.Errorf("reconstruct %s: %w", idx, err)
		}
		here := curve.Samples[0].Value
		if !finite(here) {
			return nil, fmt.Errorf("cost %g at %s: %w", here, idx, ErrNonFiniteCost)
		}
		if i == 0 {
			result.StartCost = here
		}
		for _, w := range curve.Warnings {
			onWarning(idx, w)
		}

		p, err := minimize.Minimize(curve)
		if err != nil {
			return nil, fmt.Errorf("minimize %s: %w", idx, err)
		}
		if err := v.Put(idx, p.X); err != nil {
			return nil, err
		}

		slog.Debug("Parameter updated",
			"param", idx.String(),
			"from", theta0,
			"to", p.X,
			"cost", p.F,
			"source", p.Source,
		)
		result.Steps = append(result.Steps, Step{Index: idx, Old: theta0, New: p.X, Cost: p.F, Source: p.Source})
	}
	return result, nil
}

// Run implements Optimizer. It affords budget / RotosolveSweepEvaluations
// sweeps and stops early once Patience consecutive sweeps change the cost by
// no more than task.Threshold.
//
// Trace evaluation counts exclude the initial evaluation and the per-sweep
// convergence check: each sweep advances the count by 3 per SingleFrequency
// and 5 per TwoFrequency entry.
func (r *Rotosolve) Run(task Task) (*Result, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	params := task.Initial.Clone()
	counter := cost.NewCounter(task.Function)
	n1, n2 := params.Count()
	maxSweeps := 0
	if per := RotosolveSweepEvaluations(n1, n2); per > 0 {
		maxSweeps = task.Budget / per
	}

	slog.Info("Starting rotosolve",
		"single_params", n1,
		"two_params", n2,
		"budget", task.Budget,
		"max_sweeps", maxSweeps,
	)

	rec := &recorder{observer: r.Observer}
	rec.add(0, cost.Eval(counter, params))

	tracker := NewConvergenceTracker(ConvergenceConfig{Threshold: task.Threshold, Patience: r.Patience})
	evaluations := 0
	sweeps := 0
	converged := false

	for sweeps < maxSweeps {
		result, err := r.Sweep(counter, params)
		if err != nil {
			return nil, fmt.Errorf("sweep %d: %w", sweeps, err)
		}
		sweeps++

		for _, step := range result.Steps {
			n, err := recon.EquidistantSamples(step.Index.Family)
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
	slog.Info("Rotosolve complete",
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
