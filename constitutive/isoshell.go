// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constitutive

import (
	"errors"
	"math"
)

const (
	// ShearCorrection is the Mindlin transverse shear correction factor κ.
	ShearCorrection = 5.0 / 6.0
	// DrillingPenalty scales the drilling stiffness relative to Gt.
	DrillingPenalty = 1e-2
)

// UnitStiffness holds thickness-normalized shell stiffness coefficients.
// The physical coefficients are recovered as:
//
//	A  = t  × Membrane   (extensional)
//	D  = t³ × Bending    (flexural)
//	As = t  × Shear      (transverse shear)
//	Ad = t  × Drill      (drilling penalty)
//
// each multiplying the reduced isotropic matrix
// [[1, ν, 0], [ν, 1, 0], [0, 0, (1-ν)/2]] or, for shear and drilling,
// the identity.
type UnitStiffness struct {
	Membrane float64 // E/(1-ν²)
	Bending  float64 // E/12(1-ν²)
	Shear    float64 // κG
	Drill    float64 // penalty·G
	Nu       float64 // ν of the reduced matrix
}

// IsoShell is an isotropic shell constitutive relation with one thickness
// design variable.
type IsoShell struct {
	mat *Material

	t        float64 // current thickness
	tNum     int     // design variable index, -1 when fixed
	tLb, tUb float64 // thickness bounds
}

// NewIsoShell creates an isotropic shell constitutive object with
// thickness t controlled by design variable tNum within [tlb, tub].
// Pass tNum = -1 for a fixed thickness.
func NewIsoShell(mat *Material, t float64, tNum int, tlb, tub float64) (*IsoShell, error) {
	var err error
	switch {
	case mat == nil:
		err = errors.New("material is required")
	case t <= 0 || math.IsNaN(t):
		err = errors.New("thickness must be positive")
	case tlb <= 0 || tub < tlb:
		err = errors.New("thickness bounds must satisfy 0 < lb ≤ ub")
	case tNum < -1:
		err = errors.New("design variable index must be -1 or non-negative")
	}
	if err != nil {
		return nil, err
	}
	s := &IsoShell{mat: mat, tNum: tNum, tLb: tlb, tUb: tub}
	s.SetThickness(t)
	return s, nil
}

// Material returns the underlying material.
func (s *IsoShell) Material() *Material { return s.mat }

// Thickness returns the current shell thickness.
func (s *IsoShell) Thickness() float64 { return s.t }

// SetThickness updates the thickness, clamping to the declared bounds.
func (s *IsoShell) SetThickness(t float64) {
	s.t = math.Min(math.Max(t, s.tLb), s.tUb)
}

// DVIndex returns the thickness design variable index (-1 when fixed).
func (s *IsoShell) DVIndex() int { return s.tNum }

// Bounds returns the thickness design variable bounds.
func (s *IsoShell) Bounds() (lb, ub float64) { return s.tLb, s.tUb }

// UnitStiffness returns the thickness-normalized stiffness coefficients.
// They do not depend on the thickness, so the element stiffness splits into
// K(t) = t·K₁ + t³·K₂ with both K₁ and K₂ constant in t.
func (s *IsoShell) UnitStiffness() UnitStiffness {
	e, nu := s.mat.E, s.mat.Nu
	g := s.mat.ShearModulus()
	c := e / (1 - nu*nu)
	return UnitStiffness{
		Membrane: c,
		Bending:  c / 12,
		Shear:    ShearCorrection * g,
		Drill:    DrillingPenalty * g,
		Nu:       nu,
	}
}

// ArealMass returns the mass per unit area ρt.
func (s *IsoShell) ArealMass() float64 { return s.mat.Rho * s.t }

// ArealMassDeriv returns ∂(ρt)/∂t = ρ.
func (s *IsoShell) ArealMassDeriv() float64 { return s.mat.Rho }

// Stress recovers the plane stress state at through-thickness position z
// from the membrane strain ε and curvature κ:
//
//	σ = Q(ε + zκ),  Q = E/(1-ν²)·[[1, ν, 0], [ν, 1, 0], [0, 0, (1-ν)/2]]
func (s *IsoShell) Stress(eps, kappa [3]float64, z float64) (sigma [3]float64) {
	e, nu := s.mat.E, s.mat.Nu
	q := e / (1 - nu*nu)
	ex := eps[0] + z*kappa[0]
	ey := eps[1] + z*kappa[1]
	gxy := eps[2] + z*kappa[2]
	sigma[0] = q * (ex + nu*ey)
	sigma[1] = q * (nu*ex + ey)
	sigma[2] = q * (1 - nu) / 2 * gxy
	return
}

// QMul applies the plane stress modulus matrix Q to a strain vector.
func (s *IsoShell) QMul(v [3]float64) (q [3]float64) {
	e, nu := s.mat.E, s.mat.Nu
	c := e / (1 - nu*nu)
	q[0] = c * (v[0] + nu*v[1])
	q[1] = c * (nu*v[0] + v[1])
	q[2] = c * (1 - nu) / 2 * v[2]
	return
}

// Failure returns the von Mises failure index vm(σ)/σys at the worst of the
// two surfaces z = ±t/2 for the given strain state.
func (s *IsoShell) Failure(eps, kappa [3]float64) float64 {
	top := VonMises(s.Stress(eps, kappa, s.t/2))
	bot := VonMises(s.Stress(eps, kappa, -s.t/2))
	return math.Max(top, bot) / s.mat.YS
}
