package minimize

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/crotosolve/internal/param"
	"github.com/cwbudde/crotosolve/internal/recon"
)

func reconstruct(t *testing.T, f func(float64) float64, fam param.Family, theta0 float64) *recon.Curve {
	t.Helper()
	c, err := recon.Reconstruct(func(off float64) float64 { return f(theta0 + off) }, fam, theta0, f(theta0))
	require.NoError(t, err)
	return c
}

func gridMin(f func(float64) float64, n int) float64 {
	best := math.Inf(1)
	for i := 0; i < n; i++ {
		if v := f(fourPi * float64(i) / float64(n)); v < best {
			best = v
		}
	}
	return best
}

func TestMinimizeSingleScenarioA(t *testing.T) {
	f := func(x float64) float64 { return 3 + 2*math.Cos(x+0.5) }
	c := reconstruct(t, f, param.SingleFrequency, 0)

	p, err := Minimize(c)
	require.NoError(t, err)

	assert.Equal(t, ClosedForm, p.Source)
	assert.InDelta(t, 1.0, p.F, 1e-9)
	assert.InDelta(t, 1.0, f(p.X), 1e-9)
	// The minimum sits half a period away from the phase: x+0.5 = π.
	assert.InDelta(t, math.Pi-0.5, math.Mod(p.X+2*math.Pi, 2*math.Pi), 1e-9)
}

func TestMinimizeSingleNegativeAmplitude(t *testing.T) {
	c := &recon.Curve{
		Family:  param.SingleFrequency,
		D1:      3,
		D4:      0.5,
		D5:      -2,
		Samples: []recon.Sample{{Offset: 0, Value: 4}},
	}

	p, err := Minimize(c)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, p.X, 1e-12)
	assert.InDelta(t, 1.0, p.F, 1e-9)
}

func TestMinimizeSingleExactness(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 300; trial++ {
		d1 := rng.NormFloat64()
		d5 := rng.NormFloat64()
		d4 := rng.Float64()*4*math.Pi - 2*math.Pi
		theta0 := rng.Float64() * 2 * math.Pi
		f := func(x float64) float64 { return d1 + d5*math.Cos(x+d4) }

		p, err := Minimize(reconstruct(t, f, param.SingleFrequency, theta0))
		require.NoError(t, err)
		assert.InDelta(t, d1-math.Abs(d5), f(p.X), 1e-9, "trial %d", trial)
		assert.InDelta(t, d1-math.Abs(d5), p.F, 1e-9, "trial %d", trial)
	}
}

func TestMinimizeTwoScenarioB(t *testing.T) {
	f := func(x float64) float64 { return 1 + 0.5*math.Cos(x/2+0.2) + 1.5*math.Cos(x-0.3) }
	c := reconstruct(t, f, param.TwoFrequency, 0)

	p, err := Minimize(c)
	require.NoError(t, err)

	assert.InDelta(t, gridMin(f, 10000), p.F, 1e-6)
	assert.InDelta(t, p.F, f(p.X), 1e-9)
	assert.GreaterOrEqual(t, p.X, 0.0)
	assert.Less(t, p.X, fourPi)
}

func TestMinimizeTwoMatchesGridSearch(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 60; trial++ {
		a := rng.Float64()*2 - 1
		b := rng.Float64()*2 - 1
		c := rng.Float64() * 2 * math.Pi
		d := rng.Float64()*2 - 1
		e := rng.Float64() * 2 * math.Pi
		theta0 := rng.Float64() * fourPi
		f := func(x float64) float64 { return a + b*math.Cos(x/2+c) + d*math.Cos(x+e) }

		p, err := Minimize(reconstruct(t, f, param.TwoFrequency, theta0))
		require.NoError(t, err)
		assert.InDelta(t, gridMin(f, 10000), p.F, 1e-6, "trial %d", trial)
		assert.LessOrEqual(t, p.F, f(theta0), "trial %d must not exceed the cost at θ0", trial)
	}
}

func TestMinimizeSafetyNet(t *testing.T) {
	// Samples inconsistent with the coefficients: one observation is far below
	// anything the closed form reaches.
	c := &recon.Curve{
		Family: param.TwoFrequency,
		Theta0: 1,
		D1:     0,
		D2:     0.1,
		D3:     0.3,
		D4:     0.2,
		D5:     0.4,
		Samples: []recon.Sample{
			{Offset: 0, Value: 0.5},
			{Offset: math.Pi, Value: -5},
		},
	}

	p, err := Minimize(c)
	require.NoError(t, err)
	assert.Equal(t, RawSample, p.Source)
	assert.Equal(t, -5.0, p.F)
	assert.InDelta(t, 1+math.Pi, p.X, 1e-12)
}

func TestMinimizeFlatKeepsTheta0(t *testing.T) {
	for _, fam := range param.Families {
		c, err := recon.Reconstruct(func(float64) float64 { return 0.7 }, fam, 2.5, 0.7)
		require.NoError(t, err)

		p, err := Minimize(c)
		require.NoError(t, err)
		assert.Equal(t, Flat, p.Source)
		assert.Equal(t, 2.5, p.X)
		assert.Equal(t, 0.7, p.F)
	}
}

func TestMinimizeSmallAmplitudeMovesToMinimum(t *testing.T) {
	f := func(x float64) float64 { return 5e-13 * math.Cos(x) }

	p, err := Minimize(reconstruct(t, f, param.SingleFrequency, 0))
	require.NoError(t, err)
	assert.NotEqual(t, Flat, p.Source)
	assert.InDelta(t, math.Pi, p.X, 1e-9)
	assert.InDelta(t, -5e-13, p.F, 1e-20)
}

func TestMinimizeInvalidFamily(t *testing.T) {
	_, err := Minimize(&recon.Curve{Family: param.Family(4)})
	assert.True(t, errors.Is(err, param.ErrInvalidFamily))
}

func TestSeedScenarioB(t *testing.T) {
	c := &recon.Curve{Family: param.TwoFrequency, D1: 1, D2: 0.2, D3: 0.5, D4: -0.3, D5: 1.5}

	c1 := 2*math.Pi - 0.4
	c2 := math.Pi + 0.3
	assert.InDelta(t, (c1+c2)/2, Seed(c), 1e-12)
}

func TestSeedWrapsAroundPeriod(t *testing.T) {
	// c1 = 2π - 2·(π - 0.05) = 0.1; the nearest full-term minimum on the circle
	// is 3π - d4 wrapped near 4π, not the numerically closer one near 2π.
	c := &recon.Curve{Family: param.TwoFrequency, D2: math.Pi - 0.05, D3: 1, D4: -math.Pi + 0.2, D5: 1}
	seed := Seed(c)
	assert.True(t, seed < 0.1 || seed > fourPi-0.2, "seed %v should straddle 0", seed)
}

func TestWrap(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{1, 1},
		{-1, fourPi - 1},
		{fourPi + 2, 2},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Wrap(tt.in), 1e-12, "Wrap(%v)", tt.in)
	}
}
