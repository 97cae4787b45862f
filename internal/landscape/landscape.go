// Package landscape builds seeded synthetic cost functions whose univariate
// slices are exactly of the SingleFrequency or TwoFrequency form.
package landscape

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/crotosolve/internal/param"
)

// Config identifies a landscape. It is all that needs persisting: the same
// config always builds the same function.
type Config struct {
	Seed        int64 `json:"seed"`
	SingleShape []int `json:"single_shape"`
	TwoShape    []int `json:"two_shape"`
	Terms       int   `json:"terms"`
}

// Validate checks shapes and term count.
func (c Config) Validate() error {
	for _, shape := range [][]int{c.SingleShape, c.TwoShape} {
		for i, d := range shape {
			if d < 0 {
				return fmt.Errorf("dimension %d is negative: %d", i, d)
			}
		}
	}
	if c.Terms < 1 {
		return fmt.Errorf("terms must be at least 1, got %d", c.Terms)
	}
	return nil
}

// factor is one parameter's contribution to a product term.
//
//	SingleFrequency: cos(x+phase)
//	TwoFrequency:    alpha·cos(x/2+phase) + (1-alpha)·cos(x+phase2)
type factor struct {
	index  param.Index
	phase  float64
	alpha  float64
	phase2 float64
}

func (f factor) eval(x float64) float64 {
	if f.index.Family == param.SingleFrequency {
		return math.Cos(x + f.phase)
	}
	return f.alpha*math.Cos(x/2+f.phase) + (1-f.alpha)*math.Cos(x+f.phase2)
}

type term struct {
	weight  float64
	factors []factor
}

// Landscape is f = offset + Σ_k w_k Π_i g_ki(x_i) with Σ|w_k| = 1. Each term
// touches a parameter at most once, so every slice keeps its family's form and
// |f − offset| ≤ 1. It is immutable and safe for concurrent use.
type Landscape struct {
	config Config
	offset float64
	terms  []term
}

// New builds the landscape described by c.
func New(c Config) (*Landscape, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid landscape config: %w", err)
	}

	rng := rand.New(rand.NewSource(c.Seed))
	indices := param.NewVector(c.SingleShape, c.TwoShape).Indices()

	l := &Landscape{
		config: c,
		offset: rng.Float64()*2 - 1,
		terms:  make([]term, c.Terms),
	}

	var total float64
	for k := range l.terms {
		t := term{weight: rng.Float64()*2 - 1}
		for _, idx := range indices {
			if rng.Intn(2) == 0 {
				continue
			}
			t.factors = append(t.factors, newFactor(rng, idx))
		}
		if len(t.factors) == 0 && len(indices) > 0 {
			t.factors = append(t.factors, newFactor(rng, indices[rng.Intn(len(indices))]))
		}
		total += math.Abs(t.weight)
		l.terms[k] = t
	}
	if total > 0 {
		for k := range l.terms {
			l.terms[k].weight /= total
		}
	}
	return l, nil
}

func newFactor(rng *rand.Rand, idx param.Index) factor {
	f := factor{index: idx, phase: rng.Float64() * 2 * math.Pi}
	if idx.Family == param.TwoFrequency {
		f.alpha = rng.Float64()
		f.phase2 = rng.Float64() * 2 * math.Pi
	}
	return f
}

// Config returns the configuration the landscape was built from.
func (l *Landscape) Config() Config {
	return l.config
}

// Offset is the constant term of the landscape.
func (l *Landscape) Offset() float64 {
	return l.offset
}

// Evaluate implements cost.Function. The arrays must have the landscape's shapes.
func (l *Landscape) Evaluate(single, two *param.Array) float64 {
	f := l.offset
	for _, t := range l.terms {
		p := t.weight
		for _, fc := range t.factors {
			var x float64
			if fc.index.Family == param.SingleFrequency {
				x = single.Data[fc.index.Flat]
			} else {
				x = two.Data[fc.index.Flat]
			}
			p *= fc.eval(x)
		}
		f += p
	}
	return f
}

// ConcurrencySafe implements cost.Concurrent.
func (l *Landscape) ConcurrencySafe() bool {
	return true
}

// NewParams returns a zero vector with the landscape's shapes.
func (l *Landscape) NewParams() *param.Vector {
	return param.NewVector(l.config.SingleShape, l.config.TwoShape)
}

// RandomParams draws every parameter uniformly from [0, 2π).
func (l *Landscape) RandomParams(seed int64) *param.Vector {
	rng := rand.New(rand.NewSource(seed))
	v := l.NewParams()
	for i := range v.Single.Data {
		v.Single.Data[i] = rng.Float64() * 2 * math.Pi
	}
	for i := range v.Two.Data {
		v.Two.Data[i] = rng.Float64() * 2 * math.Pi
	}
	return v
}

// Check reports whether v can be evaluated on the landscape.
func (l *Landscape) Check(v *param.Vector) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if !v.SameShape(l.NewParams()) {
		n1, n2 := v.Count()
		return fmt.Errorf("params have shapes %v/%v (%d/%d values), landscape expects %v/%v",
			v.Single.Shape, v.Two.Shape, n1, n2, l.config.SingleShape, l.config.TwoShape)
	}
	return nil
}
