package opt

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Updater is a first-order update rule.
type Updater interface {
	// Update the parameters using gradient and store the result in out.
	Update(out, parameters *mat.VecDense, gradient mat.Vector) *mat.VecDense
	// Extend the internal state of the updater to accommodate at least n parameters.
	Extend(n int)
}

// Descent is plain gradient descent: p -= eta·g.
type Descent struct {
	eta float64
}

func NewDescent(eta float64) (*Descent, error) {
	if eta < 0 {
		return nil, errors.WithStack(&InvalidArgumentError{
			Name:    "eta",
			Value:   eta,
			Message: "outside allowed range [0, Inf)",
		})
	}
	return &Descent{eta: eta}, nil
}

func MustNewDescent(eta float64) *Descent {
	u, err := NewDescent(eta)
	if err != nil {
		panic(err)
	}
	return u
}

func (u *Descent) Update(out, p *mat.VecDense, g mat.Vector) *mat.VecDense {
	out.AddScaledVec(p, -u.eta, g)
	return out
}

func (u *Descent) Extend(_ int) {}

// Adam with bias correction:
//
//	m = β1·m + (1-β1)·g
//	v = β2·v + (1-β2)·g²
//	p -= eta · m̂ / (√v̂ + ε)
type Adam struct {
	eta          float64
	beta1, beta2 float64
	eps          float64
	m, v         *mat.VecDense
	step         int
}

func NewAdam(eta, beta1, beta2 float64) (*Adam, error) {
	if eta < 0 {
		return nil, errors.WithStack(&InvalidArgumentError{
			Name:    "eta",
			Value:   eta,
			Message: "outside allowed range [0, Inf)",
		})
	}
	for name, beta := range map[string]float64{"beta1": beta1, "beta2": beta2} {
		if beta < 0 || beta >= 1 {
			return nil, errors.WithStack(&InvalidArgumentError{
				Name:    name,
				Value:   beta,
				Message: "outside allowed range [0, 1)",
			})
		}
	}
	return &Adam{eta: eta, beta1: beta1, beta2: beta2, eps: 1e-8}, nil
}

func MustNewAdam(eta, beta1, beta2 float64) *Adam {
	u, err := NewAdam(eta, beta1, beta2)
	if err != nil {
		panic(err)
	}
	return u
}

func (u *Adam) Update(out, p *mat.VecDense, g mat.Vector) *mat.VecDense {
	u.step++
	c1 := 1 - math.Pow(u.beta1, float64(u.step))
	c2 := 1 - math.Pow(u.beta2, float64(u.step))

	out.CopyVec(p)
	for i := 0; i < g.Len(); i++ {
		gi := g.AtVec(i)
		mi := u.beta1*u.m.AtVec(i) + (1-u.beta1)*gi
		vi := u.beta2*u.v.AtVec(i) + (1-u.beta2)*gi*gi
		u.m.SetVec(i, mi)
		u.v.SetVec(i, vi)
		out.SetVec(i, out.AtVec(i)-u.eta*(mi/c1)/(math.Sqrt(vi/c2)+u.eps))
	}
	return out
}

func (u *Adam) Extend(n int) {
	u.m = extendVecDense(u.m, n)
	u.v = extendVecDense(u.v, n)
}

// Adagrad scales each step by the root of the accumulated squared gradients.
type Adagrad struct {
	eta float64
	eps float64
	acc *mat.VecDense
}

func NewAdagrad(eta float64) (*Adagrad, error) {
	if eta < 0 {
		return nil, errors.WithStack(&InvalidArgumentError{
			Name:    "eta",
			Value:   eta,
			Message: "outside allowed range [0, Inf)",
		})
	}
	return &Adagrad{eta: eta, eps: 1e-8}, nil
}

func MustNewAdagrad(eta float64) *Adagrad {
	u, err := NewAdagrad(eta)
	if err != nil {
		panic(err)
	}
	return u
}

func (u *Adagrad) Update(out, p *mat.VecDense, g mat.Vector) *mat.VecDense {
	out.CopyVec(p)
	for i := 0; i < g.Len(); i++ {
		gi := g.AtVec(i)
		ai := u.acc.AtVec(i) + gi*gi
		u.acc.SetVec(i, ai)
		out.SetVec(i, out.AtVec(i)-u.eta*gi/(math.Sqrt(ai)+u.eps))
	}
	return out
}

func (u *Adagrad) Extend(n int) {
	u.acc = extendVecDense(u.acc, n)
}

// extendVecDense grows v to length n, keeping existing entries and zero-filling the rest.
func extendVecDense(v *mat.VecDense, n int) *mat.VecDense {
	if v != nil && v.Len() >= n {
		return v
	}
	if n == 0 {
		return v
	}
	data := make([]float64, n)
	if v != nil {
		copy(data, v.RawVector().Data[:v.Len()])
	}
	return mat.NewVecDense(n, data)
}
