// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package findiff

import (
	"math"
	"testing"

	"github.com/go-faster/errors"
)

func trigPair(x, y []float64) error {
	y[0] = x[0] * math.Sin(x[1])
	y[1] = x[1] * math.Cos(x[0])
	return nil
}

func trigPairJac(x []float64) []float64 {
	return []float64{
		math.Sin(x[1]), x[0] * math.Cos(x[1]),
		-x[1] * math.Sin(x[0]), math.Cos(x[0]),
	}
}

func jacClose(got, want []float64, tol float64) bool {
	for i := range want {
		if math.Abs(got[i]-want[i]) > tol*math.Max(1, math.Abs(want[i])) {
			return false
		}
	}
	return true
}

func TestJacobian(t *testing.T) {

	x0 := []float64{0.7, -1.3}
	want := trigPairJac(x0)
	jac := make([]float64, 4)

	for _, c := range []struct {
		method Method
		tol    float64
	}{
		{Forward, 1e-6},
		{Central, 1e-9},
	} {
		s := Spec{N: 2, M: 2, F: trigPair, Method: c.method}
		if err := s.Jacobian(x0, jac); err != nil {
			t.Fatal(err)
		}
		if !jacClose(jac, want, c.tol) {
			t.Fatalf("method %v: got %v want %v", c.method, jac, want)
		}
		if x0[0] != 0.7 || x0[1] != -1.3 {
			t.Fatal("x0 not restored")
		}
	}
}

func TestJacobianBounded(t *testing.T) {

	// x0 sits on the upper bound: Central must fall back to a
	// one-sided stencil that never evaluates above it.
	s := Spec{
		N: 1, M: 1, Method: Central,
		Bounds:  []Bound{{0, 1}},
		RelStep: 1e-6,
		F: func(x, y []float64) error {
			if x[0] > 1 {
				return errors.Errorf("evaluated at %g above the bound", x[0])
			}
			y[0] = x[0] * x[0]
			return nil
		},
	}
	x0 := []float64{1}
	grad := make([]float64, 1)
	if err := s.Jacobian(x0, grad); err != nil {
		t.Fatal(err)
	}
	if math.Abs(grad[0]-2) > 1e-6 {
		t.Fatalf("got %g want 2", grad[0])
	}
}

func TestJacobianErrors(t *testing.T) {

	nop := func(x, y []float64) error { return nil }
	cases := []Spec{
		{N: 0, M: 1, F: nop},
		{N: 1, M: 1},
		{N: 1, M: 1, F: nop, Method: Method(7)},
		{N: 1, M: 1, F: nop, Bounds: []Bound{{2, 1}}},
		{N: 1, M: 1, F: nop, Bounds: []Bound{{2, 3}}},
	}
	for i := range cases {
		if err := cases[i].Jacobian([]float64{1}, []float64{0}); err == nil {
			t.Fatalf("case %d: error expected", i)
		}
	}

	boom := Spec{N: 1, M: 1, F: func(x, y []float64) error {
		if x[0] != 1 {
			return errors.New("boom")
		}
		y[0] = x[0]
		return nil
	}}
	if err := boom.Jacobian([]float64{1}, []float64{0}); err == nil {
		t.Fatal("evaluation error must propagate")
	}
}

func TestGradient(t *testing.T) {

	s := Spec{N: 3, Method: Central, F: func(x, y []float64) error {
		y[0] = x[0]*x[0] + 2*x[1]*x[2]
		return nil
	}}
	x0 := []float64{1, 2, -0.5}
	grad := make([]float64, 3)
	if err := s.Gradient(x0, grad); err != nil {
		t.Fatal(err)
	}
	want := []float64{2, -1, 4}
	if !jacClose(grad, want, 1e-8) {
		t.Fatalf("got %v want %v", grad, want)
	}
}
