package recon

import (
	"fmt"
	"math"

	"github.com/cwbudde/crotosolve/internal/param"
)

// EquidistantSamples returns how many evaluations ReconstructEquidistant spends
// on one parameter of the family: 2R+1 for R distinct frequencies.
func EquidistantSamples(f param.Family) (int, error) {
	switch f {
	case param.SingleFrequency:
		return 3, nil
	case param.TwoFrequency:
		return 5, nil
	default:
		return 0, &param.InvalidFamilyError{Value: int(f)}
	}
}

// EquidistantOffsets spreads EquidistantSamples offsets evenly over one period
// of the family, starting at 0.
func EquidistantOffsets(f param.Family) ([]float64, error) {
	n, err := EquidistantSamples(f)
	if err != nil {
		return nil, err
	}
	period := 2 * math.Pi
	if f == param.TwoFrequency {
		period = 4 * math.Pi
	}
	offsets := make([]float64, n)
	for k := range offsets {
		offsets[k] = period * float64(k) / float64(n)
	}
	return offsets, nil
}

// ReconstructEquidistant samples fn at every EquidistantOffsets point,
// including offset 0, and solves the closed form with a discrete Fourier
// transform. Nothing is cached, so it suits callers that do not track the
// cost at θ0.
func ReconstructEquidistant(fn SampleFunc, family param.Family, theta0 float64, opts ...Option) (*Curve, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	offsets, err := EquidistantOffsets(family)
	if err != nil {
		return nil, fmt.Errorf("reconstruct: %w", err)
	}

	values := make([]float64, len(offsets))
	sampleAll(fn, offsets, values, o.parallelism)

	samples := make([]Sample, len(offsets))
	for i := range offsets {
		samples[i] = Sample{Offset: offsets[i], Value: values[i]}
	}

	c := &Curve{
		Family:  family,
		Theta0:  theta0,
		D1:      mean(values),
		Samples: samples,
	}
	c.D4, c.D5 = fourier(theta0, samples, 1)
	if family == param.TwoFrequency {
		c.D2, c.D3 = fourier(theta0, samples, 0.5)
	}
	checkAmplitude(c)
	return c, nil
}

// fourier projects the samples onto cos(ω·x) and sin(ω·x) and returns the
// phase and amplitude of the resulting amp·cos(ω·x+phase).
func fourier(theta0 float64, samples []Sample, omega float64) (phase, amplitude float64) {
	var a, b float64
	for _, s := range samples {
		x := omega * (theta0 + s.Offset)
		a += s.Value * math.Cos(x)
		b += s.Value * math.Sin(x)
	}
	n := float64(len(samples))
	a *= 2 / n
	b *= 2 / n
	if a == 0 && b == 0 {
		return 0, 0
	}
	return math.Atan2(-b, a), math.Hypot(a, b)
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
