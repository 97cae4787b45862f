// Package minimize locates the global minimum of a reconstructed cost curve
// without further cost-function evaluations.
package minimize

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/cwbudde/crotosolve/internal/param"
	"github.com/cwbudde/crotosolve/internal/recon"
)

// Source records how a minimizer was obtained.
type Source string

const (
	// ClosedForm minima come from the exact SingleFrequency solution.
	ClosedForm Source = "closed_form"
	// LocalSearch minima come from the seeded Nelder-Mead search.
	LocalSearch Source = "local_search"
	// RawSample minima are a retained sample that beat the analytic answer.
	RawSample Source = "raw_sample"
	// Flat means the curve has no oscillating component and θ0 was kept.
	Flat Source = "flat"
)

// Point is a minimizer of a curve and its value.
type Point struct {
	X      float64
	F      float64
	Source Source
}

const fourPi = 4 * math.Pi

// Minimize returns the minimizing parameter value and its cost on c.
//
// SingleFrequency curves are solved exactly. TwoFrequency curves are searched
// locally over one 4π period from an informed seed; if the best retained raw
// sample is lower than the search result, that sample is returned instead, so
// the returned value never exceeds the best observed cost.
func Minimize(c *recon.Curve) (Point, error) {
	switch c.Family {
	case param.SingleFrequency:
		if c.Flat() {
			return Point{X: c.Theta0, F: c.D1, Source: Flat}, nil
		}
		return safetyNet(c, minimizeSingle(c)), nil
	case param.TwoFrequency:
		if c.Flat() {
			return Point{X: c.Theta0, F: c.D1, Source: Flat}, nil
		}
		return safetyNet(c, minimizeTwo(c)), nil
	default:
		return Point{}, fmt.Errorf("minimize: %w", &param.InvalidFamilyError{Value: int(c.Family)})
	}
}

// minimizeSingle places x where cos(x+d4) = -sign(d5): a positive amplitude
// bottoms out at x+d4 = π, a negative one at x+d4 = 0.
func minimizeSingle(c *recon.Curve) Point {
	x := math.Pi - c.D4
	if c.D5 < 0 {
		x = -c.D4
	}
	return Point{X: x, F: c.Eval(x), Source: ClosedForm}
}

func minimizeTwo(c *recon.Curve) Point {
	best := search(c, Seed(c))

	// A second start from the best observed sample costs no evaluations and
	// catches seeds that land in the wrong basin.
	if s, ok := c.BestSample(); ok {
		if alt := search(c, c.Theta0+s.Offset); alt.F < best.F {
			best = alt
		}
	}
	return best
}

// Seed combines the best angle of the half-frequency term with the nearest
// best angle of the full-frequency term and returns their midpoint in [0, 4π).
func Seed(c *recon.Curve) float64 {
	// d3·cos(x/2+d2) is lowest where x/2+d2 = π (d3 > 0) or 0 (d3 < 0).
	c1 := 2*math.Pi - 2*c.D2
	if c.D3 < 0 {
		c1 = -2 * c.D2
	}
	c1 = Wrap(c1)

	// d5·cos(x+d4) is lowest at x+d4 ∈ {π, 3π} (d5 > 0) or {0, 2π} (d5 < 0).
	base := math.Pi
	if c.D5 < 0 {
		base = 0
	}
	candidates := [2]float64{Wrap(base - c.D4), Wrap(base + 2*math.Pi - c.D4)}

	switch {
	case c.D5 == 0:
		return c1
	case c.D3 == 0:
		return candidates[0]
	}

	delta := signedDelta(c1, candidates[0])
	if d := signedDelta(c1, candidates[1]); math.Abs(d) < math.Abs(delta) {
		delta = d
	}
	return Wrap(c1 + delta/2)
}

// search runs a derivative-free local minimization of the closed form starting
// at x0. The curve is 4π-periodic, so the result is folded back into [0, 4π).
func search(c *recon.Curve, x0 float64) Point {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return c.Eval(x[0])
		},
	}
	settings := &optimize.Settings{
		MajorIterations: 1000,
		FuncEvaluations: 4000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-15,
			Iterations: 25,
		},
	}

	x := Wrap(x0)
	result, err := optimize.Minimize(problem, []float64{x}, settings, &optimize.NelderMead{SimplexSize: 0.25})
	if err != nil {
		slog.Debug("Local search stopped early", "seed", x, "error", err)
	}
	if result != nil && len(result.X) == 1 && result.F <= c.Eval(x) {
		x = Wrap(result.X[0])
	}
	return Point{X: x, F: c.Eval(x), Source: LocalSearch}
}

// safetyNet substitutes the lowest retained sample when it beats p.
func safetyNet(c *recon.Curve, p Point) Point {
	s, ok := c.BestSample()
	if !ok || s.Value >= p.F {
		return p
	}
	x := c.Theta0 + s.Offset
	if c.Family == param.TwoFrequency {
		x = Wrap(x)
	}
	return Point{X: x, F: s.Value, Source: RawSample}
}

// Wrap folds x into [0, 4π).
func Wrap(x float64) float64 {
	x = math.Mod(x, fourPi)
	if x < 0 {
		x += fourPi
	}
	if x >= fourPi {
		x = 0
	}
	return x
}

// signedDelta returns the shortest signed distance from a to b on the 4π circle.
func signedDelta(a, b float64) float64 {
	d := math.Mod(b-a, fourPi)
	switch {
	case d > 2*math.Pi:
		d -= fourPi
	case d <= -2*math.Pi:
		d += fourPi
	}
	return d
}
