// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package constitutive defines material models and shell constitutive
// relations for structural analysis.
//
// A constitutive object owns the pointwise relation between strain and
// stress resultants together with its design variables. The only model
// currently provided is an isotropic shell with a single thickness
// design variable.
package constitutive

import (
	"errors"
	"math"
)

// Material holds the properties of an isotropic material.
type Material struct {
	Rho float64 // density ρ
	E   float64 // elastic modulus
	Nu  float64 // poisson ratio ν
	YS  float64 // yield stress σys
}

// NewMaterial creates an isotropic material from density, elastic modulus,
// poisson ratio and yield stress.
func NewMaterial(rho, e, nu, ys float64) (*Material, error) {
	var err error
	switch {
	case rho <= 0 || math.IsNaN(rho):
		err = errors.New("density must be positive")
	case e <= 0 || math.IsNaN(e):
		err = errors.New("elastic modulus must be positive")
	case nu <= -1 || nu >= 0.5 || math.IsNaN(nu):
		err = errors.New("poisson ratio must lie in (-1, 0.5)")
	case ys <= 0 || math.IsNaN(ys):
		err = errors.New("yield stress must be positive")
	}
	if err != nil {
		return nil, err
	}
	return &Material{Rho: rho, E: e, Nu: nu, YS: ys}, nil
}

// ShearModulus returns G = E/2(1+ν).
func (m *Material) ShearModulus() float64 {
	return m.E / (2 * (1 + m.Nu))
}

// VonMises returns the von Mises equivalent of a plane stress state
// σ = (σₓ, σᵧ, τₓᵧ).
func VonMises(s [3]float64) float64 {
	sx, sy, txy := s[0], s[1], s[2]
	return math.Sqrt(sx*sx + sy*sy - sx*sy + 3*txy*txy)
}

// VonMisesDeriv returns ∂vm/∂σ for a plane stress state.
// The derivative of a zero stress state is zero.
func VonMisesDeriv(s [3]float64) (d [3]float64) {
	vm := VonMises(s)
	if vm == 0 {
		return
	}
	sx, sy, txy := s[0], s[1], s[2]
	d[0] = (2*sx - sy) / (2 * vm)
	d[1] = (2*sy - sx) / (2 * vm)
	d[2] = 3 * txy / vm
	return
}
