// Package cost defines the black-box cost function the optimizers sample.
package cost

import (
	"sync/atomic"

	"github.com/cwbudde/crotosolve/internal/param"
)

// Function is an opaque, potentially expensive scalar cost over a parameter vector.
// Implementations must be deterministic for fixed inputs and must not retain
// or mutate the arrays they are given.
type Function interface {
	Evaluate(single, two *param.Array) float64
}

// Func adapts an ordinary function to Function.
type Func func(single, two *param.Array) float64

// Evaluate calls f.
func (f Func) Evaluate(single, two *param.Array) float64 {
	return f(single, two)
}

// Concurrent is implemented by functions that may be evaluated from
// several goroutines at once.
type Concurrent interface {
	Function
	ConcurrencySafe() bool
}

// IsConcurrencySafe reports whether f declares itself safe for parallel evaluation.
func IsConcurrencySafe(f Function) bool {
	c, ok := f.(Concurrent)
	return ok && c.ConcurrencySafe()
}

// Eval evaluates f at v.
func Eval(f Function, v *param.Vector) float64 {
	return f.Evaluate(v.Single, v.Two)
}

// Counter wraps a Function and counts every call made through it.
// It has no other side effects.
type Counter struct {
	inner Function
	calls atomic.Int64
}

// NewCounter wraps f.
func NewCounter(f Function) *Counter {
	return &Counter{inner: f}
}

// Evaluate forwards to the wrapped function and increments the call count.
func (c *Counter) Evaluate(single, two *param.Array) float64 {
	c.calls.Add(1)
	return c.inner.Evaluate(single, two)
}

// ConcurrencySafe forwards the wrapped function's declaration.
func (c *Counter) ConcurrencySafe() bool {
	return IsConcurrencySafe(c.inner)
}

// Calls returns the number of evaluations so far.
func (c *Counter) Calls() int {
	return int(c.calls.Load())
}

// Reset sets the call count back to zero.
func (c *Counter) Reset() {
	c.calls.Store(0)
}
