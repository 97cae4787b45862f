package opt

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/crotosolve/internal/cost"
	"github.com/cwbudde/crotosolve/internal/minimize"
	"github.com/cwbudde/crotosolve/internal/param"
	"github.com/cwbudde/crotosolve/internal/recon"
)

// Crotosolve is a coordinate-descent optimizer for cost functions that are a
// trigonometric sum of known order in each parameter. Each parameter update
// reconstructs its univariate slice exactly and jumps to the slice minimum.
type Crotosolve struct {
	// Parallelism dispatches a parameter's samples concurrently when the cost
	// function declares itself concurrency safe. Values below 2 disable it.
	Parallelism int

	// Patience is how many consecutive sweeps must change the cost by no more
	// than the task threshold before Run stops. Values below 1 mean 1.
	Patience int

	// OnWarning receives reconstruction diagnostics. Nil uses LogWarnings.
	OnWarning WarningHandler

	// Observer receives every trace point recorded by Run.
	Observer Observer
}

// NewCrotosolve creates a Crotosolve optimizer with default settings
func NewCrotosolve() *Crotosolve {
	return &Crotosolve{}
}

// Name implements Optimizer.
func (c *Crotosolve) Name() string {
	return "crotosolve"
}

// Step is one parameter update inside a sweep.
type Step struct {
	Index  param.Index
	Old    float64
	New    float64
	Cost   float64
	Source minimize.Source
}

// SweepResult describes one full pass over all parameters.
type SweepResult struct {
	StartCost float64
	Steps     []Step
}

// SubCosts returns the minimized cost after each step, in visiting order.
func (r *SweepResult) SubCosts() []float64 {
	out := make([]float64, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = s.Cost
	}
	return out
}

// SweepEvaluations is the exact number of cost evaluations one Sweep spends on
// n1 SingleFrequency and n2 TwoFrequency parameters.
func SweepEvaluations(n1, n2 int) int {
	single, _ := recon.NewSamples(param.SingleFrequency)
	two, _ := recon.NewSamples(param.TwoFrequency)
	return 1 + single*n1 + two*n2
}

// Sweep evaluates the cost at v, then updates every parameter of v in place.
// It costs exactly SweepEvaluations(v.Count()) evaluations of f.
func (c *Crotosolve) Sweep(f cost.Function, v *param.Vector) (*SweepResult, error) {
	start := cost.Eval(f, v)
	if !finite(start) {
		return nil, fmt.Errorf("start cost %g: %w", start, ErrNonFiniteCost)
	}
	steps, err := c.SweepFrom(f, v, start)
	if err != nil {
		return nil, err
	}
	return &SweepResult{StartCost: start, Steps: steps}, nil
}

// SweepFrom updates every parameter of v in place given the already known cost
// at v. SingleFrequency parameters are visited first, then TwoFrequency
// parameters, each in row-major order.
func (c *Crotosolve) SweepFrom(f cost.Function, v *param.Vector, cached float64) ([]Step, error) {
	var opts []recon.Option
	if c.Parallelism > 1 && cost.IsConcurrencySafe(f) {
		opts = append(opts, recon.WithParallelism(c.Parallelism))
	}
	onWarning := c.OnWarning
	if onWarning == nil {
		onWarning = LogWarnings
	}

	indices := v.Indices()
	steps := make([]Step, 0, len(indices))
	for _, idx := range indices {
		theta0, err := v.Get(idx)
		if err != nil {
			return nil, err
		}

		curve, err := recon.Reconstruct(restrict(f, v, idx), idx.Family, theta0, cached, opts...)
		if err != nil {
			return nil, fmt.Errorf("reconstruct %s: %w", idx, err)
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

		steps = append(steps, Step{Index: idx, Old: theta0, New: p.X, Cost: p.F, Source: p.Source})
		// The minimized cost is the cost at the new point, which is θ0 for the next parameter.
		cached = p.F
	}
	return steps, nil
}

// restrict returns the univariate slice of f through v along idx, as a
// function of the offset from the parameter's current value.
func restrict(f cost.Function, v *param.Vector, idx param.Index) recon.SampleFunc {
	theta0, _ := v.Get(idx)
	return func(offset float64) float64 {
		w := v.Clone()
		_ = w.Put(idx, theta0+offset)
		return cost.Eval(f, w)
	}
}
