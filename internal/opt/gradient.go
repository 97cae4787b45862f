package opt

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/crotosolve/internal/cost"
	"github.com/cwbudde/crotosolve/internal/param"
)

// Four-term shift rule coefficients for frequencies {1/2, 1}.
var (
	shiftPlus  = (math.Sqrt2 + 1) / (4 * math.Sqrt2)
	shiftMinus = (math.Sqrt2 - 1) / (4 * math.Sqrt2)
)

// GradientEvaluations is the number of cost evaluations ShiftGradient spends.
func GradientEvaluations(n1, n2 int) int {
	return 2*n1 + 4*n2
}

// ShiftGradient computes the exact gradient of f at v with parameter-shift rules,
// flattened as v.Flatten() orders parameters.
//
//	SingleFrequency: ∂f = [f(x+π/2) − f(x−π/2)] / 2
//	TwoFrequency:    ∂f = c₊[f(x+π/2) − f(x−π/2)] − c₋[f(x+3π/2) − f(x−3π/2)]
func ShiftGradient(f cost.Function, v *param.Vector) ([]float64, error) {
	indices := v.Indices()
	grad := make([]float64, len(indices))
	for i, idx := range indices {
		x, err := v.Get(idx)
		if err != nil {
			return nil, err
		}
		shifted := func(s float64) float64 {
			w := v.Clone()
			_ = w.Put(idx, x+s)
			return cost.Eval(f, w)
		}

		switch idx.Family {
		case param.SingleFrequency:
			grad[i] = (shifted(math.Pi/2) - shifted(-math.Pi/2)) / 2
		case param.TwoFrequency:
			near := shifted(math.Pi/2) - shifted(-math.Pi/2)
			far := shifted(3*math.Pi/2) - shifted(-3*math.Pi/2)
			grad[i] = shiftPlus*near - shiftMinus*far
		default:
			return nil, &param.InvalidFamilyError{Value: int(idx.Family)}
		}
	}
	return grad, nil
}

// Gradient runs a first-order Updater on parameter-shift gradients.
type Gradient struct {
	name       string
	newUpdater func() Updater

	// Patience is how many consecutive stale iterations end the run.
	Patience int

	// Observer receives every trace point recorded by Run.
	Observer Observer
}

// NewGradientDescent creates a gradient-descent baseline with step size eta.
func NewGradientDescent(eta float64) (*Gradient, error) {
	if _, err := NewDescent(eta); err != nil {
		return nil, err
	}
	return &Gradient{name: "gradient-descent", newUpdater: func() Updater { return MustNewDescent(eta) }}, nil
}

// NewAdamOptimizer creates an Adam baseline.
func NewAdamOptimizer(eta, beta1, beta2 float64) (*Gradient, error) {
	if _, err := NewAdam(eta, beta1, beta2); err != nil {
		return nil, err
	}
	return &Gradient{name: "adam", newUpdater: func() Updater { return MustNewAdam(eta, beta1, beta2) }}, nil
}

// NewAdagradOptimizer creates an Adagrad baseline.
func NewAdagradOptimizer(eta float64) (*Gradient, error) {
	if _, err := NewAdagrad(eta); err != nil {
		return nil, err
	}
	return &Gradient{name: "adagrad", newUpdater: func() Updater { return MustNewAdagrad(eta) }}, nil
}

// Name implements Optimizer.
func (g *Gradient) Name() string {
	return g.name
}

// Run implements Optimizer. Each iteration spends GradientEvaluations for the
// gradient plus one evaluation to record the cost at the updated point, and the
// trace counts all of them.
func (g *Gradient) Run(task Task) (*Result, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	params := task.Initial.Clone()
	counter := cost.NewCounter(task.Function)
	n1, n2 := params.Count()
	perIteration := GradientEvaluations(n1, n2) + 1
	maxIterations := task.Budget / perIteration
	n := n1 + n2

	slog.Info("Starting gradient baseline", "optimizer", g.name, "params", n, "max_iterations", maxIterations)

	rec := &recorder{observer: g.Observer}
	prev := cost.Eval(counter, params)
	rec.add(0, prev)

	result := &Result{Params: params}
	if n == 0 {
		result.Trace = rec.trace
		result.Evaluations = counter.Calls()
		return result, nil
	}

	updater := g.newUpdater()
	updater.Extend(n)
	tracker := NewConvergenceTracker(ConvergenceConfig{Threshold: task.Threshold, Patience: g.Patience})
	p := mat.NewVecDense(n, params.Flatten())

	for it := 0; it < maxIterations; it++ {
		grad, err := ShiftGradient(counter, params)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", it, err)
		}
		updater.Update(p, p, mat.NewVecDense(n, grad))
		if err := params.Unflatten(p.RawVector().Data); err != nil {
			return nil, err
		}

		current := cost.Eval(counter, params)
		if !finite(current) {
			return nil, fmt.Errorf("iteration %d: cost %g: %w", it, current, ErrNonFiniteCost)
		}
		result.Iterations++
		rec.add(result.Iterations*perIteration, current)

		if tracker.Check(prev, current) {
			result.Converged = true
			break
		}
		prev = current
	}

	result.Trace = rec.trace
	result.Evaluations = counter.Calls()
	final, _ := rec.trace.Final()
	slog.Info("Gradient baseline complete",
		"optimizer", g.name,
		"iterations", result.Iterations,
		"final_cost", final.Cost,
		"best_cost", tracker.BestCost(),
		"converged", result.Converged,
	)
	return result, nil
}
