// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package shell

import (
	"math"
	"math/rand"
	"testing"

	"github.com/curioloop/strucopt/constitutive"
)

func testShell(t *testing.T) *constitutive.IsoShell {
	mat, err := constitutive.NewMaterial(2780.0, 73.1e9, 0.33, 324.0e6)
	if err != nil {
		t.Fatal(err)
	}
	con, err := constitutive.NewIsoShell(mat, 0.012, 0, 1e-6, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	return con
}

// skewed but convex element, checks hold on general geometry
var skewCoords = [4][2]float64{{0, 0}, {1.2, 0.1}, {1.1, 0.9}, {-0.1, 1.0}}

func elemEnergy(k *[ElemDOF * ElemDOF]float64, u *[ElemDOF]float64) float64 {
	s := 0.0
	for i := 0; i < ElemDOF; i++ {
		if u[i] == 0 {
			continue
		}
		for j := 0; j < ElemDOF; j++ {
			s += u[i] * k[i*ElemDOF+j] * u[j]
		}
	}
	return 0.5 * s
}

func TestRigidBodyModes(t *testing.T) {

	e := NewQuad4(testShell(t), [4]int{0, 1, 2, 3})
	coords := skewCoords

	var k [ElemDOF * ElemDOF]float64
	e.Stiffness(coords, &k)

	norm := 0.0
	for _, v := range k {
		norm = math.Max(norm, math.Abs(v))
	}

	// six rigid body fields: three translations, three rotations
	modes := make([][ElemDOF]float64, 6)
	for i := 0; i < 4; i++ {
		x, y := coords[i][0], coords[i][1]
		modes[0][NodeDOF*i+DOFU] = 1
		modes[1][NodeDOF*i+DOFV] = 1
		modes[2][NodeDOF*i+DOFW] = 1
		// rotation about x: w = y, θx = 1
		modes[3][NodeDOF*i+DOFW] = y
		modes[3][NodeDOF*i+DOFRX] = 1
		// rotation about y: w = -x, θy = 1
		modes[4][NodeDOF*i+DOFW] = -x
		modes[4][NodeDOF*i+DOFRY] = 1
		// rotation about z: u = -y, v = x, θz = 1
		modes[5][NodeDOF*i+DOFU] = -y
		modes[5][NodeDOF*i+DOFV] = x
		modes[5][NodeDOF*i+DOFRZ] = 1
	}

	for m, u := range modes {
		if en := elemEnergy(&k, &u); math.Abs(en) > 1e-10*norm {
			t.Fatalf("rigid mode %d stores energy %g", m, en)
		}
	}
}

func TestMembranePatch(t *testing.T) {

	con := testShell(t)
	e := NewQuad4(con, [4]int{0, 1, 2, 3})
	coords := skewCoords

	mat := con.Material()
	tt := con.Thickness()
	area := e.Area(coords)

	// uniaxial stress state: εx = ε, εy = -νε, σy = 0
	const eps = 1e-3
	var u [ElemDOF]float64
	for i := 0; i < 4; i++ {
		x, y := coords[i][0], coords[i][1]
		u[NodeDOF*i+DOFU] = eps * x
		u[NodeDOF*i+DOFV] = -mat.Nu * eps * y
	}

	var k [ElemDOF * ElemDOF]float64
	e.Stiffness(coords, &k)

	want := 0.5 * mat.E * tt * eps * eps * area
	got := elemEnergy(&k, &u)
	if math.Abs(got-want) > 1e-9*want {
		t.Fatalf("membrane patch energy: got %g want %g", got, want)
	}
}

func TestBendingPatch(t *testing.T) {

	con := testShell(t)
	e := NewQuad4(con, [4]int{0, 1, 2, 3})
	coords := [4][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

	mat := con.Material()
	tt := con.Thickness()
	area := e.Area(coords)

	// constant curvature κx = κ, zero transverse shear:
	// w = -½κx², βx = θy = κx
	const kap = 1e-2
	var u [ElemDOF]float64
	for i := 0; i < 4; i++ {
		x := coords[i][0]
		u[NodeDOF*i+DOFW] = -0.5 * kap * x * x
		u[NodeDOF*i+DOFRY] = kap * x
	}

	var k [ElemDOF * ElemDOF]float64
	e.Stiffness(coords, &k)

	d := mat.E * tt * tt * tt / (12 * (1 - mat.Nu*mat.Nu))
	want := 0.5 * d * kap * kap * area
	got := elemEnergy(&k, &u)
	if math.Abs(got-want) > 1e-9*want {
		t.Fatalf("bending patch energy: got %g want %g", got, want)
	}
}

func TestThicknessSplit(t *testing.T) {

	con := testShell(t)
	e := NewQuad4(con, [4]int{0, 1, 2, 3})
	coords := skewCoords

	us := con.UnitStiffness()
	var k1, k2 [ElemDOF * ElemDOF]float64
	e.StiffnessParts(coords, us, &k1, &k2)

	// finite difference of the assembled stiffness in t
	const h = 1e-7
	t0 := con.Thickness()

	var kp, km [ElemDOF * ElemDOF]float64
	con.SetThickness(t0 + h)
	e.Stiffness(coords, &kp)
	con.SetThickness(t0 - h)
	e.Stiffness(coords, &km)
	con.SetThickness(t0)

	norm := 0.0
	for i := range k1 {
		norm = math.Max(norm, math.Abs(k1[i]+3*t0*t0*k2[i]))
	}
	for i := range k1 {
		fd := (kp[i] - km[i]) / (2 * h)
		an := k1[i] + 3*t0*t0*k2[i]
		if math.Abs(fd-an) > 1e-5*norm {
			t.Fatalf("dK/dt mismatch at %d: fd %g analytic %g", i, fd, an)
		}
	}
}

func TestGeoWorkDeriv(t *testing.T) {

	e := NewQuad4(testShell(t), [4]int{0, 1, 2, 3})
	coords := skewCoords

	rng := rand.New(rand.NewSource(7))
	ue := make([]float64, ElemDOF)
	phi := make([]float64, ElemDOF)
	for i := range ue {
		ue[i] = rng.NormFloat64() * 1e-3
		phi[i] = rng.NormFloat64()
	}

	var g [ElemDOF * ElemDOF]float64
	e.GeometricStiffness(coords, ue, &g)

	work := 0.0
	for i := 0; i < ElemDOF; i++ {
		for j := 0; j < ElemDOF; j++ {
			work += phi[i] * g[i*ElemDOF+j] * phi[j]
		}
	}

	// G is linear in ue, so φᵀG(ue)φ = ∇·ue exactly
	var du [ElemDOF]float64
	e.GeoWorkDeriv(coords, phi, &du)
	dot := 0.0
	for i := range ue {
		dot += du[i] * ue[i]
	}

	scale := math.Max(math.Abs(work), 1e-300)
	if math.Abs(work-dot) > 1e-12*scale {
		t.Fatalf("geometric work gradient: direct %g chained %g", work, dot)
	}
}
