// Package recon recovers the exact closed form of a parameter's univariate cost
// slice from a fixed, minimal set of samples.
//
// SingleFrequency slices have the form d1 + d5·cos(x+d4) and need samples at
// offsets 0, π and 3π/2 from the current angle θ0. TwoFrequency slices have the
// form d1 + d3·cos(x/2+d2) + d5·cos(x+d4) and need samples at offsets
// 0, π, 3π/2, 2π, 3π and 7π/2. Reconstruct takes the sample at offset 0 from
// the caller's cached cost, so only the remaining offsets are evaluated.
// ReconstructEquidistant caches nothing and samples 2R+1 evenly spaced offsets.
package recon

import (
	"fmt"
	"math"

	"github.com/cwbudde/crotosolve/internal/param"
	"golang.org/x/sync/errgroup"
)

// SampleFunc evaluates the full cost at θ0 + offset with every other parameter fixed.
type SampleFunc func(offset float64) float64

// Sample is one cost observation at an offset relative to θ0.
type Sample struct {
	Offset float64 `json:"offset"`
	Value  float64 `json:"value"`
}

var (
	singleOffsets = []float64{0, math.Pi, 1.5 * math.Pi}
	twoOffsets    = []float64{0, math.Pi, 1.5 * math.Pi, 2 * math.Pi, 3 * math.Pi, 3.5 * math.Pi}
)

// Offsets returns the sample offsets used for a family, starting with the cached offset 0.
func Offsets(f param.Family) ([]float64, error) {
	switch f {
	case param.SingleFrequency:
		return append([]float64{}, singleOffsets...), nil
	case param.TwoFrequency:
		return append([]float64{}, twoOffsets...), nil
	default:
		return nil, &param.InvalidFamilyError{Value: int(f)}
	}
}

// NewSamples returns how many cost evaluations reconstructing one parameter of
// the family costs when the value at θ0 is cached.
func NewSamples(f param.Family) (int, error) {
	offsets, err := Offsets(f)
	if err != nil {
		return 0, err
	}
	return len(offsets) - 1, nil
}

// Option configures Reconstruct.
type Option func(*options)

type options struct {
	parallelism int
}

// WithParallelism dispatches up to n samples concurrently. Only use it when the
// underlying cost function tolerates parallel evaluation. Values below 2 sample
// sequentially.
func WithParallelism(n int) Option {
	return func(o *options) {
		o.parallelism = n
	}
}

// Reconstruct samples fn and solves for the coefficients of the family's closed form.
// cached must be the cost at θ0, i.e. fn(0); it is reused instead of re-evaluated.
func Reconstruct(fn SampleFunc, family param.Family, theta0, cached float64, opts ...Option) (*Curve, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	offsets, err := Offsets(family)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(offsets))
	values[0] = cached
	sampleAll(fn, offsets[1:], values[1:], o.parallelism)

	samples := make([]Sample, len(offsets))
	for i := range offsets {
		samples[i] = Sample{Offset: offsets[i], Value: values[i]}
	}

	switch family {
	case param.SingleFrequency:
		return solveSingle(theta0, samples), nil
	case param.TwoFrequency:
		return solveTwo(theta0, samples), nil
	default:
		return nil, fmt.Errorf("reconstruct: %w", &param.InvalidFamilyError{Value: int(family)})
	}
}

func sampleAll(fn SampleFunc, offsets, out []float64, parallelism int) {
	if parallelism < 2 {
		for i, off := range offsets {
			out[i] = fn(off)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, off := range offsets {
		g.Go(func() error {
			out[i] = fn(off)
			return nil
		})
	}
	_ = g.Wait()
}

// solveSingle inverts y0, yπ, y3π/2 for d1 + d5·cos(x+d4).
func solveSingle(theta0 float64, samples []Sample) *Curve {
	y0, yPi, y32Pi := samples[0].Value, samples[1].Value, samples[2].Value

	d1 := (y0 + yPi) / 2
	d4, d5 := solvePhase(y0-d1, y32Pi-d1, theta0)

	c := &Curve{
		Family:  param.SingleFrequency,
		Theta0:  theta0,
		D1:      d1,
		D4:      d4,
		D5:      d5,
		Samples: samples,
	}
	checkAmplitude(c)
	return c
}

// checkAmplitude flags a SingleFrequency amplitude that a cost bounded by one
// in magnitude cannot produce.
func checkAmplitude(c *Curve) {
	if c.Family != param.SingleFrequency || math.Abs(c.D5) <= 1 {
		return
	}
	c.Warnings = append(c.Warnings, Warning{
		Kind:      AmplitudeExceedsBound,
		Amplitude: c.D5,
		Theta0:    c.Theta0,
	})
}

// solveTwo inverts the six samples for d1 + d3·cos(x/2+d2) + d5·cos(x+d4).
func solveTwo(theta0 float64, samples []Sample) *Curve {
	y0 := samples[0].Value
	yPi := samples[1].Value
	y32Pi := samples[2].Value
	y2Pi := samples[3].Value
	y3Pi := samples[4].Value
	y72Pi := samples[5].Value

	d1 := ((y0 + y2Pi) + (yPi + y3Pi)) / 4

	// Half-frequency term: cos(x/2) flips sign over 2π, the full term does not.
	d2, d3 := solvePhase((y0-y2Pi)/2, (y3Pi-yPi)/2, theta0/2)

	// Full-frequency term: averaging over a 2π shift cancels the half term.
	d4, d5 := solvePhase((y0+y2Pi)/2-d1, (y32Pi+y72Pi)/2-d1, theta0)

	return &Curve{
		Family:  param.TwoFrequency,
		Theta0:  theta0,
		D1:      d1,
		D2:      d2,
		D3:      d3,
		D4:      d4,
		D5:      d5,
		Samples: samples,
	}
}

// solvePhase recovers (phase, amplitude) of amp·cos(angle+phase) from its values
// u = amp·cos(angle+phase) and v = amp·sin(angle+phase).
// A vanishing component is flat: phase and amplitude are both 0.
func solvePhase(u, v, angle float64) (phase, amplitude float64) {
	switch {
	case u == 0 && v == 0:
		return 0, 0
	case u == 0:
		return math.Pi/2 - angle, v
	default:
		phase = math.Atan(v/u) - angle
		return phase, u / math.Cos(angle+phase)
	}
}
