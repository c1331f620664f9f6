// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shell

import "github.com/curioloop/strucopt/constitutive"

// DOF indices within a node block.
const (
	DOFU = iota
	DOFV
	DOFW
	DOFRX
	DOFRY
	DOFRZ
)

// Quad4 is a 4-node flat shell element. Nodes are listed counter-clockwise.
type Quad4 struct {
	Con   *constitutive.IsoShell
	Nodes [4]int // global node ids
}

// NewQuad4 creates a shell element over the given nodes.
func NewQuad4(con *constitutive.IsoShell, nodes [4]int) *Quad4 {
	return &Quad4{Con: con, Nodes: nodes}
}

// Area returns the element area.
func (e *Quad4) Area(coords [4][2]float64) float64 {
	a := 0.0
	for _, g := range gauss2 {
		_, dn := shape(g[0], g[1])
		_, det := mapShape(coords, dn)
		a += det
	}
	return a
}

// membraneB fills the membrane strain rows (εx, εy, γxy) at a point.
func membraneB(dndx [4][2]float64, b *[3][ElemDOF]float64) {
	for i := 0; i < 4; i++ {
		u, v := NodeDOF*i+DOFU, NodeDOF*i+DOFV
		b[0][u] = dndx[i][0]
		b[1][v] = dndx[i][1]
		b[2][u] = dndx[i][1]
		b[2][v] = dndx[i][0]
	}
}

// bendingB fills the curvature rows (κx, κy, κxy) at a point.
// The Mindlin rotations are βx = θy and βy = -θx.
func bendingB(dndx [4][2]float64, b *[3][ElemDOF]float64) {
	for i := 0; i < 4; i++ {
		rx, ry := NodeDOF*i+DOFRX, NodeDOF*i+DOFRY
		b[0][ry] = dndx[i][0]
		b[1][rx] = -dndx[i][1]
		b[2][rx] = -dndx[i][0]
		b[2][ry] = dndx[i][1]
	}
}

// shearB fills the transverse shear rows (γxz, γyz) at a point.
func shearB(n [4]float64, dndx [4][2]float64, b *[2][ElemDOF]float64) {
	for i := 0; i < 4; i++ {
		w, rx, ry := NodeDOF*i+DOFW, NodeDOF*i+DOFRX, NodeDOF*i+DOFRY
		b[0][w] = dndx[i][0]
		b[0][ry] = n[i]
		b[1][w] = dndx[i][1]
		b[1][rx] = -n[i]
	}
}

// drillB fills the drilling row θz - ½(∂v/∂x - ∂u/∂y) at a point.
func drillB(n [4]float64, dndx [4][2]float64, b *[ElemDOF]float64) {
	for i := 0; i < 4; i++ {
		u, v, rz := NodeDOF*i+DOFU, NodeDOF*i+DOFV, NodeDOF*i+DOFRZ
		b[u] = 0.5 * dndx[i][1]
		b[v] = -0.5 * dndx[i][0]
		b[rz] = n[i]
	}
}

// addBtRB accumulates w·Bᵀ(c·R)B into k, with R the reduced isotropic
// matrix [[1, ν, 0], [ν, 1, 0], [0, 0, (1-ν)/2]].
func addBtRB(k *[ElemDOF * ElemDOF]float64, b *[3][ElemDOF]float64, c, nu, w float64) {
	var cb [3][ElemDOF]float64
	g := (1 - nu) / 2
	for j := 0; j < ElemDOF; j++ {
		cb[0][j] = c * (b[0][j] + nu*b[1][j])
		cb[1][j] = c * (nu*b[0][j] + b[1][j])
		cb[2][j] = c * g * b[2][j]
	}
	for i := 0; i < ElemDOF; i++ {
		for j := 0; j < ElemDOF; j++ {
			s := b[0][i]*cb[0][j] + b[1][i]*cb[1][j] + b[2][i]*cb[2][j]
			k[i*ElemDOF+j] += w * s
		}
	}
}

// StiffnessParts computes the element stiffness split
//
//	K(t) = t·K₁ + t³·K₂
//
// where K₁ carries the membrane, transverse shear and drilling terms and K₂
// the bending term. The split makes ∂K/∂t = K₁ + 3t²·K₂ exact.
func (e *Quad4) StiffnessParts(coords [4][2]float64, us constitutive.UnitStiffness, k1, k2 *[ElemDOF * ElemDOF]float64) {
	for i := range k1 {
		k1[i] = 0
		k2[i] = 0
	}

	// full 2×2 rule: membrane, bending, drilling
	for _, g := range gauss2 {
		n, dn := shape(g[0], g[1])
		dndx, det := mapShape(coords, dn)

		var bm, bb [3][ElemDOF]float64
		membraneB(dndx, &bm)
		bendingB(dndx, &bb)
		addBtRB(k1, &bm, us.Membrane, us.Nu, det)
		addBtRB(k2, &bb, us.Bending, us.Nu, det)

		var bd [ElemDOF]float64
		drillB(n, dndx, &bd)
		for i := 0; i < ElemDOF; i++ {
			if bd[i] == 0 {
				continue
			}
			for j := 0; j < ElemDOF; j++ {
				k1[i*ElemDOF+j] += det * us.Drill * bd[i] * bd[j]
			}
		}
	}

	// reduced 1-point rule: transverse shear (avoids locking)
	for _, g := range gauss1 {
		n, dn := shape(g[0], g[1])
		dndx, det := mapShape(coords, dn)
		w := 4 * det

		var bs [2][ElemDOF]float64
		shearB(n, dndx, &bs)
		for i := 0; i < ElemDOF; i++ {
			for j := 0; j < ElemDOF; j++ {
				s := bs[0][i]*bs[0][j] + bs[1][i]*bs[1][j]
				k1[i*ElemDOF+j] += w * us.Shear * s
			}
		}
	}
}

// Stiffness computes the element stiffness at the current thickness.
func (e *Quad4) Stiffness(coords [4][2]float64, k *[ElemDOF * ElemDOF]float64) {
	var k1, k2 [ElemDOF * ElemDOF]float64
	us := e.Con.UnitStiffness()
	t := e.Con.Thickness()
	e.StiffnessParts(coords, us, &k1, &k2)
	t3 := t * t * t
	for i := range k {
		k[i] = t*k1[i] + t3*k2[i]
	}
}

// resultants computes the membrane stress resultants N = (Nx, Ny, Nxy) at a
// point from the element displacement ue.
func resultants(bm *[3][ElemDOF]float64, us constitutive.UnitStiffness, t float64, ue []float64) (nr [3]float64) {
	var eps [3]float64
	for j := 0; j < ElemDOF; j++ {
		u := ue[j]
		if u == 0 {
			continue
		}
		eps[0] += bm[0][j] * u
		eps[1] += bm[1][j] * u
		eps[2] += bm[2][j] * u
	}
	c := t * us.Membrane
	nr[0] = c * (eps[0] + us.Nu*eps[1])
	nr[1] = c * (us.Nu*eps[0] + eps[1])
	nr[2] = c * (1 - us.Nu) / 2 * eps[2]
	return
}

// GeometricStiffness computes the von Kármán geometric stiffness driven by
// the membrane stress resultants of the prestress displacement ue:
//
//	G = ∫ Nx·wₓwₓᵀ + Ny·wᵧwᵧᵀ + Nxy·(wₓwᵧᵀ + wᵧwₓᵀ) dΩ
//
// acting on the transverse deflection DOFs.
func (e *Quad4) GeometricStiffness(coords [4][2]float64, ue []float64, g *[ElemDOF * ElemDOF]float64) {
	for i := range g {
		g[i] = 0
	}
	us := e.Con.UnitStiffness()
	t := e.Con.Thickness()

	for _, gpt := range gauss2 {
		_, dn := shape(gpt[0], gpt[1])
		dndx, det := mapShape(coords, dn)

		var bm [3][ElemDOF]float64
		membraneB(dndx, &bm)
		nr := resultants(&bm, us, t, ue)

		for i := 0; i < 4; i++ {
			wi := NodeDOF*i + DOFW
			gxi, gyi := dndx[i][0], dndx[i][1]
			for j := 0; j < 4; j++ {
				wj := NodeDOF*j + DOFW
				gxj, gyj := dndx[j][0], dndx[j][1]
				s := nr[0]*gxi*gxj + nr[1]*gyi*gyj + nr[2]*(gxi*gyj+gyi*gxj)
				g[wi*ElemDOF+wj] += det * s
			}
		}
	}
}

// GeoWorkDeriv computes d(φᵀGφ)/due, the gradient of the geometric work of a
// buckling mode φ with respect to the prestress displacement. G is linear in
// ue, so the gradient does not depend on ue itself.
func (e *Quad4) GeoWorkDeriv(coords [4][2]float64, phi []float64, du *[ElemDOF]float64) {
	for i := range du {
		du[i] = 0
	}
	us := e.Con.UnitStiffness()
	t := e.Con.Thickness()
	c := t * us.Membrane

	for _, gpt := range gauss2 {
		_, dn := shape(gpt[0], gpt[1])
		dndx, det := mapShape(coords, dn)

		var gx, gy float64
		for i := 0; i < 4; i++ {
			w := phi[NodeDOF*i+DOFW]
			gx += dndx[i][0] * w
			gy += dndx[i][1] * w
		}
		// q = ∂(φᵀGφ)/∂N at this point
		q := [3]float64{gx * gx, gy * gy, 2 * gx * gy}
		// ∂N/∂ue = c·R·Bm → chain through Rᵀq
		rq := [3]float64{
			c * (q[0] + us.Nu*q[1]),
			c * (us.Nu*q[0] + q[1]),
			c * (1 - us.Nu) / 2 * q[2],
		}

		var bm [3][ElemDOF]float64
		membraneB(dndx, &bm)
		for j := 0; j < ElemDOF; j++ {
			du[j] += det * (bm[0][j]*rq[0] + bm[1][j]*rq[1] + bm[2][j]*rq[2])
		}
	}
}

// CentroidB returns the membrane and bending strain-displacement rows at the
// element centroid: ε = bm·ue, κ = bb·ue.
func (e *Quad4) CentroidB(coords [4][2]float64) (bm, bb [3][ElemDOF]float64) {
	_, dn := shape(0, 0)
	dndx, _ := mapShape(coords, dn)
	membraneB(dndx, &bm)
	bendingB(dndx, &bb)
	return
}

// CentroidStrain recovers the membrane strain and curvature at the element
// centroid from the displacement ue.
func (e *Quad4) CentroidStrain(coords [4][2]float64, ue []float64) (eps, kappa [3]float64) {
	bm, bb := e.CentroidB(coords)
	for j := 0; j < ElemDOF; j++ {
		u := ue[j]
		if u == 0 {
			continue
		}
		eps[0] += bm[0][j] * u
		eps[1] += bm[1][j] * u
		eps[2] += bm[2][j] * u
		kappa[0] += bb[0][j] * u
		kappa[1] += bb[1][j] * u
		kappa[2] += bb[2][j] * u
	}
	return
}
