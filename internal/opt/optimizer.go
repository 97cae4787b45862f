package opt

import (
	"fmt"

	"github.com/cwbudde/crotosolve/internal/cost"
	"github.com/cwbudde/crotosolve/internal/param"
)

// Optimizer defines an optimization strategy over a black-box cost function.
type Optimizer interface {
	// Name identifies the strategy in traces and run records.
	Name() string

	// Run optimizes task.Function starting from task.Initial within
	// task.Budget cost evaluations. Exhausting the budget is not an error.
	Run(task Task) (*Result, error)
}

// Task describes one optimization. It is never mutated by optimizers.
type Task struct {
	Function  cost.Function
	Initial   *param.Vector
	Budget    int     // maximum number of cost evaluations
	Threshold float64 // absolute cost change that counts as converged
}

// Validate checks the task before any evaluation is spent.
func (t Task) Validate() error {
	if t.Function == nil {
		return fmt.Errorf("task has no cost function")
	}
	if err := t.Initial.Validate(); err != nil {
		return fmt.Errorf("invalid initial params: %w", err)
	}
	if t.Budget < 0 {
		return fmt.Errorf("budget cannot be negative: %d", t.Budget)
	}
	if t.Threshold < 0 {
		return fmt.Errorf("convergence threshold cannot be negative: %g", t.Threshold)
	}
	if c, ok := t.Function.(shapeChecker); ok {
		if err := c.Check(t.Initial); err != nil {
			return fmt.Errorf("initial params do not fit the cost function: %w", err)
		}
	}
	return nil
}

// shapeChecker is implemented by cost functions that accept a single shape.
type shapeChecker interface {
	Check(v *param.Vector) error
}

// TracePoint is the cost observed after a cumulative number of evaluations.
type TracePoint struct {
	Evaluations int     `json:"evaluations"`
	Cost        float64 `json:"cost"`
}

// Trace is an append-only, evaluation-ordered cost history.
type Trace []TracePoint

// Final returns the last recorded point.
func (t Trace) Final() (TracePoint, bool) {
	if len(t) == 0 {
		return TracePoint{}, false
	}
	return t[len(t)-1], true
}

// Best returns the lowest-cost point.
func (t Trace) Best() (TracePoint, bool) {
	if len(t) == 0 {
		return TracePoint{}, false
	}
	best := t[0]
	for _, p := range t[1:] {
		if p.Cost < best.Cost {
			best = p
		}
	}
	return best, true
}

// Validate checks that evaluation counts never decrease.
func (t Trace) Validate() error {
	for i := 1; i < len(t); i++ {
		if t[i].Evaluations < t[i-1].Evaluations {
			return fmt.Errorf("trace point %d goes back from %d to %d evaluations", i, t[i-1].Evaluations, t[i].Evaluations)
		}
	}
	return nil
}

// Result holds the output of an optimization run.
type Result struct {
	Trace       Trace
	Params      *param.Vector
	Evaluations int // cost-function calls actually made, including convergence checks
	Iterations  int // sweeps or update steps completed
	Converged   bool
}

// Observer receives every trace point as it is recorded.
type Observer func(TracePoint)

// recorder appends to a trace and notifies an optional observer.
type recorder struct {
	trace    Trace
	observer Observer
}

func (r *recorder) add(evaluations int, c float64) {
	p := TracePoint{Evaluations: evaluations, Cost: c}
	r.trace = append(r.trace, p)
	if r.observer != nil {
		r.observer(p)
	}
}
