// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shell implements a 4-node flat shell finite element for plates
// lying in the global XY plane.
//
// Each node carries 6 degrees of freedom (u, v, w, θx, θy, θz).
// The element combines an isoparametric plane stress membrane, a
// Mindlin-Reissner bending field with selective reduced integration of the
// transverse shear, a drilling penalty tying θz to the in-plane rotation,
// and a von Kármán geometric stiffness driven by membrane stress resultants.
package shell

import "math"

// NodeDOF is the number of degrees of freedom per node.
const NodeDOF = 6

// ElemDOF is the number of degrees of freedom per element.
const ElemDOF = 4 * NodeDOF

const gp = 1.0 / 1.7320508075688772 // 1/√3

// full 2×2 Gauss rule (weight 1 each) and reduced 1-point rule (weight 4).
var (
	gauss2 = [4][2]float64{{-gp, -gp}, {gp, -gp}, {-gp, gp}, {gp, gp}}
	gauss1 = [1][2]float64{{0, 0}}
)

// shape evaluates the bilinear shape functions and their natural
// derivatives at (ξ, η).
func shape(xi, eta float64) (n [4]float64, dn [4][2]float64) {
	xm, xp := 1-xi, 1+xi
	em, ep := 1-eta, 1+eta
	n[0] = 0.25 * xm * em
	n[1] = 0.25 * xp * em
	n[2] = 0.25 * xp * ep
	n[3] = 0.25 * xm * ep
	dn[0] = [2]float64{-0.25 * em, -0.25 * xm}
	dn[1] = [2]float64{0.25 * em, -0.25 * xp}
	dn[2] = [2]float64{0.25 * ep, 0.25 * xp}
	dn[3] = [2]float64{-0.25 * ep, 0.25 * xm}
	return
}

// mapShape maps natural derivatives to cartesian ones, returning the shape
// gradients ∂Nᵢ/∂(x,y) and the jacobian determinant.
func mapShape(coords [4][2]float64, dn [4][2]float64) (dndx [4][2]float64, det float64) {
	var j [2][2]float64
	for i := range dn {
		x, y := coords[i][0], coords[i][1]
		j[0][0] += dn[i][0] * x
		j[0][1] += dn[i][0] * y
		j[1][0] += dn[i][1] * x
		j[1][1] += dn[i][1] * y
	}
	det = j[0][0]*j[1][1] - j[0][1]*j[1][0]
	if math.Abs(det) < 1e-300 {
		panic("shell: degenerate element jacobian")
	}
	inv := 1 / det
	ji := [2][2]float64{
		{j[1][1] * inv, -j[0][1] * inv},
		{-j[1][0] * inv, j[0][0] * inv},
	}
	for i := range dn {
		dndx[i][0] = ji[0][0]*dn[i][0] + ji[0][1]*dn[i][1]
		dndx[i][1] = ji[1][0]*dn[i][0] + ji[1][1]*dn[i][1]
	}
	return
}
