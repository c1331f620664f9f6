// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package findiff estimates Jacobians of vector functions by finite
// differences, with automatic step selection and bound-aware stepping.
package findiff

import (
	"math"

	"github.com/go-faster/errors"
)

var (
	sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
	cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)
)

// Method selects the finite difference stencil.
type Method int

const (
	// Forward is the first order forward difference.
	Forward Method = iota
	// Central is the second order central difference, degrading to a
	// one-sided second order stencil next to a bound.
	Central
)

// Bound limits one independent variable to [lo, hi].
type Bound [2]float64

// Func evaluates y = f(x) with len(x) = N inputs and len(y) = M outputs.
// A non-nil error aborts the differentiation.
type Func func(x, y []float64) error

// Spec describes one Jacobian approximation. The zero value of the
// optional fields selects automatic steps and unbounded variables.
type Spec struct {
	N, M   int
	F      Func
	Method Method
	// Bounds on the independent variables; nil means unbounded.
	// Steps are shrunk or one-sided so evaluations stay feasible.
	Bounds []Bound
	// RelStep scales |x| into an absolute step; zero selects ε^(1/2)
	// for Forward and ε^(1/3) for Central.
	RelStep float64
	// AbsStep overrides the relative step when non-zero.
	AbsStep float64

	f0, f1, f2 []float64
	step       []float64
	oneSide    []bool
}

func (s *Spec) check(x0, jac []float64) error {
	switch {
	case s.N <= 0 || s.M <= 0:
		return errors.New("dimensions must be positive")
	case s.F == nil:
		return errors.New("function is required")
	case s.Method != Forward && s.Method != Central:
		return errors.New("unknown method")
	case len(x0) != s.N:
		return errors.Errorf("x0 has %d entries, want %d", len(x0), s.N)
	case len(jac) != s.N*s.M:
		return errors.Errorf("jacobian has %d entries, want %d", len(jac), s.N*s.M)
	}
	if s.Bounds != nil {
		if len(s.Bounds) != s.N {
			return errors.Errorf("got %d bounds for %d variables", len(s.Bounds), s.N)
		}
		for i, b := range s.Bounds {
			if b[0] > b[1] {
				return errors.Errorf("bound %d is empty", i)
			}
			if x0[i] < b[0] || x0[i] > b[1] {
				return errors.Errorf("x0[%d] violates its bound", i)
			}
		}
	}
	if len(s.f0) != s.M {
		s.f0 = make([]float64, s.M)
		s.f1 = make([]float64, s.M)
		s.f2 = make([]float64, s.M)
	}
	if len(s.step) != s.N {
		s.step = make([]float64, s.N)
		s.oneSide = make([]bool, s.N)
	}
	return nil
}

// steps fills the per-variable absolute steps and, for Central near a
// bound, marks variables that must difference one-sided.
func (s *Spec) steps(x0 []float64) {
	eps := sqrtEps
	if s.Method == Central {
		eps = cubeEps
	}
	for i, v := range x0 {
		h := s.AbsStep
		if h == 0 {
			rel := s.RelStep
			if rel == 0 {
				rel = eps
			}
			h = math.Copysign(rel, v) * math.Max(1, math.Abs(v))
		}
		if (v+h)-v == 0 {
			h = math.Copysign(eps, v) * math.Max(1, math.Abs(v))
		}
		s.step[i] = h
		s.oneSide[i] = false
	}

	if s.Bounds == nil {
		return
	}
	for i, v := range x0 {
		lo, hi := s.Bounds[i][0], s.Bounds[i][1]
		down, up := v-lo, hi-v
		h := math.Abs(s.step[i])
		if s.Method == Central {
			if down >= h && up >= h {
				s.step[i] = h
				continue
			}
			if up >= down {
				s.step[i] = math.Min(h, 0.5*up)
			} else {
				s.step[i] = -math.Min(h, 0.5*down)
			}
			s.oneSide[i] = true
		} else {
			if v+s.step[i] < lo || v+s.step[i] > hi {
				s.step[i] = -s.step[i]
			}
			if v+s.step[i] < lo || v+s.step[i] > hi {
				if up >= down {
					s.step[i] = up
				} else {
					s.step[i] = -down
				}
			}
		}
	}
}

// Jacobian approximates ∂f/∂x at x0 into jac, stored row-major with one
// row per output: jac[j*N+i] = ∂f_j/∂x_i. x0 is restored on return.
func (s *Spec) Jacobian(x0, jac []float64) error {
	if err := s.check(x0, jac); err != nil {
		return err
	}
	s.steps(x0)

	if err := s.F(x0, s.f0); err != nil {
		return errors.Wrap(err, "base evaluation")
	}
	for i, h := range s.step {
		x := x0[i]
		var err error
		switch {
		case s.Method == Forward:
			x0[i] = x + h
			if err = s.F(x0, s.f1); err != nil {
				break
			}
			d := 1 / h
			for j := range s.f0 {
				jac[j*s.N+i] = (s.f1[j] - s.f0[j]) * d
			}
		case s.oneSide[i]:
			x0[i] = x + h
			if err = s.F(x0, s.f1); err != nil {
				break
			}
			x0[i] = x + 2*h
			if err = s.F(x0, s.f2); err != nil {
				break
			}
			d := 1 / (2 * h)
			for j := range s.f0 {
				jac[j*s.N+i] = (4*s.f1[j] - 3*s.f0[j] - s.f2[j]) * d
			}
		default:
			x0[i] = x - h
			if err = s.F(x0, s.f1); err != nil {
				break
			}
			x0[i] = x + h
			if err = s.F(x0, s.f2); err != nil {
				break
			}
			d := 1 / (2 * h)
			for j := range s.f0 {
				jac[j*s.N+i] = (s.f2[j] - s.f1[j]) * d
			}
		}
		x0[i] = x
		if err != nil {
			return errors.Wrapf(err, "perturbed evaluation of variable %d", i)
		}
	}
	return nil
}

// Gradient approximates the gradient of a scalar function (M = 1).
func (s *Spec) Gradient(x0, grad []float64) error {
	if s.M > 1 {
		return errors.New("gradient needs a scalar function")
	}
	s.M = 1
	return s.Jacobian(x0, grad)
}
