package opt

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"

	"github.com/cwbudde/crotosolve/internal/cost"
)

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface.
// It searches the flattened parameter vector inside [0, 4π) and ignores the
// trigonometric structure, which makes it a structure-agnostic baseline.
type MayflyAdapter struct {
	popSize int
	seed    int64

	// Observer receives every trace point recorded by Run.
	Observer Observer
}

// mayflyMinPop is the smallest population mayfly v0.1.0 accepts.
const mayflyMinPop = 20

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(popSize int, seed int64) (*MayflyAdapter, error) {
	if popSize < mayflyMinPop {
		return nil, &InvalidArgumentError{
			Name:    "popSize",
			Value:   popSize,
			Message: fmt.Sprintf("must be at least %d", mayflyMinPop),
		}
	}
	return &MayflyAdapter{popSize: popSize, seed: seed}, nil
}

// Name implements Optimizer.
func (m *MayflyAdapter) Name() string {
	return "mayfly"
}

// iterationsFor estimates how many mayfly iterations a budget affords: the
// initial male and female populations cost 2·pop evaluations, and each
// iteration re-evaluates both populations and roughly pop offspring.
func (m *MayflyAdapter) iterationsFor(budget int) int {
	iters := (budget - 2*m.popSize) / (3 * m.popSize)
	if iters < 1 {
		iters = 1
	}
	return iters
}

// Run executes the Mayfly optimization using the external library.
// Evaluations past the budget are not forwarded to the cost function.
func (m *MayflyAdapter) Run(task Task) (*Result, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	params := task.Initial.Clone()
	counter := cost.NewCounter(task.Function)
	dim := paramCount(params)

	rec := &recorder{observer: m.Observer}
	best := cost.Eval(counter, params)
	rec.add(0, best)

	result := &Result{Params: params}
	if dim == 0 || task.Budget <= 1 {
		result.Trace = rec.trace
		result.Evaluations = counter.Calls()
		return result, nil
	}

	scratch := params.Clone()
	aborted := false
	objective := func(x []float64) float64 {
		if aborted || counter.Calls() >= task.Budget {
			return math.MaxFloat64
		}
		if err := scratch.Unflatten(x); err != nil {
			return math.MaxFloat64
		}
		c := cost.Eval(counter, scratch)
		if !finite(c) {
			aborted = true
			return math.MaxFloat64
		}
		if c < best {
			best = c
			rec.add(counter.Calls(), c)
		}
		return c
	}

	// Create config for external Mayfly library
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = objective
	config.ProblemSize = dim
	config.MaxIterations = m.iterationsFor(task.Budget)
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 4 * math.Pi

	// Set random seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	slog.Info("Starting mayfly", "params", dim, "pop", m.popSize, "iterations", config.MaxIterations)

	out, err := mayfly.Optimize(config)
	if err != nil {
		return nil, fmt.Errorf("mayfly optimization failed: %w", err)
	}
	if aborted {
		return nil, fmt.Errorf("mayfly: %w", ErrNonFiniteCost)
	}

	if out.GlobalBest.Cost <= best {
		if err := params.Unflatten(out.GlobalBest.Position); err != nil {
			return nil, err
		}
	}

	result.Trace = rec.trace
	result.Evaluations = counter.Calls()
	result.Iterations = config.MaxIterations

	slog.Info("Mayfly complete", "evaluations", result.Evaluations, "best_cost", best)
	return result, nil
}
