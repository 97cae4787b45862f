package store

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/crotosolve/internal/landscape"
	"github.com/cwbudde/crotosolve/internal/opt"
	"github.com/cwbudde/crotosolve/internal/param"
)

// Run is one benchmark: several optimizers started from the same initial
// parameters on the same landscape with the same budget.
//
// Only the landscape configuration is stored, never the cost function itself.
// Loading a run and calling landscape.New(run.Landscape) rebuilds the exact
// function the traces were recorded on.
type Run struct {
	// ID is a UUID assigned by NewRun
	ID string `json:"id"`

	// Landscape identifies the cost function
	Landscape landscape.Config `json:"landscape"`

	// InitialParams is the starting point shared by every optimizer
	InitialParams *param.Vector `json:"initialParams"`

	// Budget is the cost-evaluation budget given to every optimizer
	Budget int `json:"budget"`

	// Threshold is the convergence threshold given to every optimizer
	Threshold float64 `json:"threshold"`

	// Results holds one outcome per optimizer name
	Results map[string]*Outcome `json:"results"`

	// Timestamp records when the run was created
	Timestamp time.Time `json:"timestamp"`
}

// Outcome is what one optimizer produced within a run.
type Outcome struct {
	Trace       opt.Trace     `json:"trace"`
	Params      *param.Vector `json:"params,omitempty"`
	Evaluations int           `json:"evaluations"`
	Iterations  int           `json:"iterations"`
	Converged   bool          `json:"converged"`
	Duration    time.Duration `json:"duration"`
}

// RunInfo contains metadata about a run without traces or parameters.
// Used for listing runs efficiently.
type RunInfo struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Budget        int       `json:"budget"`
	Params        int       `json:"params"`
	Optimizers    []string  `json:"optimizers"`
	BestOptimizer string    `json:"bestOptimizer"`
	BestCost      float64   `json:"bestCost"`
}

// NewRun creates an empty run with a fresh ID.
func NewRun(lc landscape.Config, initial *param.Vector, budget int, threshold float64) *Run {
	return &Run{
		ID:            uuid.New().String(),
		Landscape:     lc,
		InitialParams: initial.Clone(),
		Budget:        budget,
		Threshold:     threshold,
		Results:       make(map[string]*Outcome),
		Timestamp:     time.Now(),
	}
}

// AddResult records an optimizer's result under name, replacing any earlier one.
func (r *Run) AddResult(name string, res *opt.Result, elapsed time.Duration) {
	if r.Results == nil {
		r.Results = make(map[string]*Outcome)
	}
	o := &Outcome{
		Trace:       res.Trace,
		Evaluations: res.Evaluations,
		Iterations:  res.Iterations,
		Converged:   res.Converged,
		Duration:    elapsed,
	}
	if res.Params != nil {
		o.Params = res.Params.Clone()
	}
	r.Results[name] = o
}

// Optimizers returns the names with a recorded result, sorted.
func (r *Run) Optimizers() []string {
	names := make([]string, 0, len(r.Results))
	for name := range r.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Best returns the optimizer whose trace ends at the lowest cost.
func (r *Run) Best() (string, float64, bool) {
	bestName, bestCost := "", math.Inf(1)
	for _, name := range r.Optimizers() {
		final, ok := r.Results[name].Trace.Final()
		if ok && final.Cost < bestCost {
			bestName, bestCost = name, final.Cost
		}
	}
	return bestName, bestCost, bestName != ""
}

// ToInfo converts a full Run to RunInfo (metadata only).
func (r *Run) ToInfo() RunInfo {
	info := RunInfo{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		Budget:     r.Budget,
		Optimizers: r.Optimizers(),
	}
	if r.InitialParams != nil {
		n1, n2 := r.InitialParams.Count()
		info.Params = n1 + n2
	}
	info.BestOptimizer, info.BestCost, _ = r.Best()
	return info
}

// Validate checks if the run has valid data.
// Returns an error if any required field is missing or invalid.
func (r *Run) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if err := r.Landscape.Validate(); err != nil {
		return &ValidationError{Field: "Landscape", Reason: err.Error()}
	}
	if r.InitialParams == nil {
		return &ValidationError{Field: "InitialParams", Reason: "cannot be nil"}
	}
	if err := r.InitialParams.Validate(); err != nil {
		return &ValidationError{Field: "InitialParams", Reason: err.Error()}
	}
	if !r.InitialParams.SameShape(param.NewVector(r.Landscape.SingleShape, r.Landscape.TwoShape)) {
		return &ValidationError{Field: "InitialParams", Reason: "shape does not match landscape"}
	}
	if r.Budget < 0 {
		return &ValidationError{Field: "Budget", Reason: "cannot be negative"}
	}
	if r.Threshold < 0 {
		return &ValidationError{Field: "Threshold", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if len(r.Results) == 0 {
		return &ValidationError{Field: "Results", Reason: "cannot be empty"}
	}
	for _, name := range r.Optimizers() {
		o := r.Results[name]
		field := "Results." + name
		if o == nil {
			return &ValidationError{Field: field, Reason: "cannot be nil"}
		}
		if len(o.Trace) == 0 {
			return &ValidationError{Field: field + ".Trace", Reason: "cannot be empty"}
		}
		if err := o.Trace.Validate(); err != nil {
			return &ValidationError{Field: field + ".Trace", Reason: err.Error()}
		}
		if final, _ := o.Trace.Final(); final.Evaluations > o.Evaluations {
			return &ValidationError{
				Field:  field + ".Trace",
				Reason: fmt.Sprintf("records %d evaluations but only %d were made", final.Evaluations, o.Evaluations),
			}
		}
	}
	return nil
}

// ValidationError represents a run validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
