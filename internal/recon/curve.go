package recon

import (
	"fmt"
	"math"

	"github.com/cwbudde/crotosolve/internal/param"
)

// Curve is the reconstructed univariate cost of one parameter:
//
//	SingleFrequency: D1 + D5·cos(x+D4)
//	TwoFrequency:    D1 + D3·cos(x/2+D2) + D5·cos(x+D4)
//
// x is the absolute parameter value. Samples are the raw observations the
// curve was solved from, with offsets relative to Theta0.
type Curve struct {
	Family   param.Family
	Theta0   float64
	D1       float64
	D2, D3   float64 // half-frequency phase and amplitude, TwoFrequency only
	D4, D5   float64 // full-frequency phase and amplitude
	Samples  []Sample
	Warnings []Warning
}

// Eval evaluates the closed form at absolute parameter value x.
func (c *Curve) Eval(x float64) float64 {
	v := c.D1 + c.D5*math.Cos(x+c.D4)
	if c.Family == param.TwoFrequency {
		v += c.D3 * math.Cos(x/2+c.D2)
	}
	return v
}

// flatTolerance bounds the amplitude, relative to the largest sample
// magnitude, that is indistinguishable from rounding in the samples.
const flatTolerance = 1e-12

// Flat reports whether every oscillating component vanished, up to rounding.
// The limit scales with the samples, so a small but real amplitude on a small
// cost is not mistaken for rounding.
func (c *Curve) Flat() bool {
	var scale float64
	for _, s := range c.Samples {
		scale = math.Max(scale, math.Abs(s.Value))
	}
	limit := flatTolerance * scale
	return math.Abs(c.D3) <= limit && math.Abs(c.D5) <= limit
}

// BestSample returns the retained sample with the lowest value.
func (c *Curve) BestSample() (Sample, bool) {
	if len(c.Samples) == 0 {
		return Sample{}, false
	}
	best := c.Samples[0]
	for _, s := range c.Samples[1:] {
		if s.Value < best.Value {
			best = s
		}
	}
	return best, true
}

func (c *Curve) String() string {
	switch c.Family {
	case param.SingleFrequency:
		return fmt.Sprintf("%.6g + %.6g·cos(x%+.6g)", c.D1, c.D5, c.D4)
	default:
		return fmt.Sprintf("%.6g + %.6g·cos(x/2%+.6g) + %.6g·cos(x%+.6g)", c.D1, c.D3, c.D2, c.D5, c.D4)
	}
}

// WarningKind classifies a non-fatal reconstruction diagnostic.
type WarningKind string

// AmplitudeExceedsBound flags |d5| > 1 for a SingleFrequency slice, which a cost
// bounded by one in magnitude cannot produce.
const AmplitudeExceedsBound WarningKind = "amplitude_exceeds_bound"

// Warning is a non-fatal diagnostic attached to a Curve.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	Amplitude float64     `json:"amplitude"`
	Theta0    float64     `json:"theta0"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: amplitude %.6g at θ0=%.6g", w.Kind, w.Amplitude, w.Theta0)
}
