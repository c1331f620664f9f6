// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fea

import (
	"math"
	"testing"

	"github.com/curioloop/strucopt/constitutive"
	"github.com/curioloop/strucopt/mesh"
	"github.com/curioloop/strucopt/shell"
)

// plateAsm builds an lx×ly plate with one thickness DV per component patch.
func plateAsm(t *testing.T, lx, ly float64, nx, ny, ncx, ncy int, thick float64) *Assembler {
	t.Helper()
	m, err := mesh.Plate(lx, ly, nx, ny, ncx, ncy)
	if err != nil {
		t.Fatal(err)
	}
	mat, err := constitutive.NewMaterial(2780.0, 73.1e9, 0.33, 324.0e6)
	if err != nil {
		t.Fatal(err)
	}
	cons := make([]*constitutive.IsoShell, m.NumComps())
	for i := range cons {
		cons[i], err = constitutive.NewIsoShell(mat, thick, i, 1e-4, 0.05)
		if err != nil {
			t.Fatal(err)
		}
	}
	asm, err := NewAssembler(m, cons, nil)
	if err != nil {
		t.Fatal(err)
	}
	return asm
}

func relErr(got, want float64) float64 {
	return math.Abs(got-want) / math.Max(math.Abs(want), 1e-300)
}

func TestAxialStretch(t *testing.T) {

	const (
		lx, ly = 1.0, 0.5
		thick  = 0.012
		force  = 1e4 // total axial force
	)
	asm := plateAsm(t, lx, ly, 2, 2, 1, 1, thick)
	m := asm.Mesh()

	// clamp the membrane on x=0, pin all plate DOFs everywhere
	for n := 0; n < m.NumNodes(); n++ {
		m.FixNode(n, shell.DOFW, shell.DOFRX, shell.DOFRY)
	}
	m.FixEdge(mesh.EdgeXMin, shell.DOFU)
	m.FixNode(m.EdgeNodes(mesh.EdgeXMin)[0], shell.DOFV)

	// rebuild with the boundary conditions in place
	asm, err := NewAssembler(m, asm.Constitutives(), nil)
	if err != nil {
		t.Fatal(err)
	}

	f := make([]float64, asm.NumDOF())
	tip := m.EdgeNodes(mesh.EdgeXMax)
	for i, n := range tip {
		w := force / float64(len(tip)-1)
		if i == 0 || i == len(tip)-1 {
			w /= 2
		}
		f[shell.NodeDOF*n+shell.DOFU] = w
	}

	p := asm.NewStaticProblem("stretch", nil)
	if err := p.SetLoad(f); err != nil {
		t.Fatal(err)
	}
	if err := p.Solve(); err != nil {
		t.Fatal(err)
	}

	// uniform stress state: u(tip) = FL/(EtW)
	emod := asm.Constitutives()[0].Material().E
	want := force * lx / (emod * thick * ly)
	u := p.Displacement()
	for _, n := range tip {
		if got := u[shell.NodeDOF*n+shell.DOFU]; relErr(got, want) > 1e-8 {
			t.Fatalf("tip displacement: got %g want %g", got, want)
		}
	}

	funcs, err := p.EvalFunctions(FuncMass, FuncCompliance)
	if err != nil {
		t.Fatal(err)
	}
	if wantMass := 2780.0 * thick * lx * ly; relErr(funcs[FuncMass], wantMass) > 1e-12 {
		t.Fatalf("mass: got %g want %g", funcs[FuncMass], wantMass)
	}
	if wantC := force * want; relErr(funcs[FuncCompliance], wantC) > 1e-8 {
		t.Fatalf("compliance: got %g want %g", funcs[FuncCompliance], wantC)
	}
}

// bentPlate is a 2-component plate under combined transverse and in-plane
// load with a rich stress state for derivative checks.
func bentPlate(t *testing.T) (*Assembler, *StaticProblem) {
	t.Helper()
	asm := plateAsm(t, 1.0, 2.0, 2, 4, 1, 2, 0.012)
	m := asm.Mesh()
	m.FixEdge(mesh.EdgeYMin, 0, 1, 2, 3, 4, 5)

	asm, err := NewAssembler(m, asm.Constitutives(), nil)
	if err != nil {
		t.Fatal(err)
	}

	f := make([]float64, asm.NumDOF())
	for n := 0; n < asm.NumNodes(); n++ {
		f[shell.NodeDOF*n+shell.DOFW] = -35.0
		f[shell.NodeDOF*n+shell.DOFV] = -1200.0
	}
	p := asm.NewStaticProblem("bent", nil)
	if err := p.SetLoad(f); err != nil {
		t.Fatal(err)
	}
	if err := p.Solve(); err != nil {
		t.Fatal(err)
	}
	return asm, p
}

// fdCheck compares an analytic gradient against global central differences
// produced by the eval closure after the set closure perturbs one input.
// The step h0 is scaled by the entry magnitude; coarse inputs like load
// entries want a larger h0 so solver noise does not swamp the quotient.
func fdCheck(t *testing.T, name string, n int, grad []float64,
	get func(i int) float64, set func(i int, v float64), eval func() float64, h0, rtol float64) {
	t.Helper()
	scale := 0.0
	for i := 0; i < n; i++ {
		scale = math.Max(scale, math.Abs(grad[i]))
	}
	if scale == 0 {
		t.Fatalf("%s: gradient identically zero", name)
	}
	for i := 0; i < n; i++ {
		x0 := get(i)
		h := h0 * math.Max(1, math.Abs(x0))
		set(i, x0+h)
		fp := eval()
		set(i, x0-h)
		fm := eval()
		set(i, x0)
		fd := (fp - fm) / (2 * h)
		if math.Abs(fd-grad[i]) > rtol*scale {
			t.Fatalf("%s[%d]: fd %g analytic %g", name, i, fd, grad[i])
		}
	}
}

func TestStaticSensitivities(t *testing.T) {

	asm, p := bentPlate(t)

	for _, fn := range []string{FuncMass, FuncCompliance, FuncKSFailure} {

		sens, err := p.EvalSens(fn)
		if err != nil {
			t.Fatal(err)
		}
		g := sens[fn]

		eval := func() float64 {
			p.Invalidate()
			out, err := p.EvalFunctions(fn)
			if err != nil {
				t.Fatal(err)
			}
			return out[fn]
		}

		// thickness design variables
		x := asm.DesignVars()
		fdCheck(t, fn+"/dv", asm.NDV(), g.DV,
			func(i int) float64 { return x[i] },
			func(i int, v float64) {
				x[i] = v
				if err := asm.SetDesignVars(x); err != nil {
					t.Fatal(err)
				}
			}, eval, 1e-6, 2e-4)

		// node coordinates (in-plane entries only)
		if fn != FuncMass { // mass coordinate check is covered below
			coords := asm.Coords()
			fdCheck(t, fn+"/coords", len(coords), g.Coords,
				func(i int) float64 { return coords[i] },
				func(i int, v float64) {
					coords[i] = v
					if err := asm.SetCoords(coords); err != nil {
						t.Fatal(err)
					}
				}, eval, 1e-6, 2e-3)
		}

		// load vector
		if fn != FuncMass {
			load := make([]float64, asm.NumDOF())
			copy(load, p.load)
			fdCheck(t, fn+"/load", len(load), g.Load,
				func(i int) float64 { return load[i] },
				func(i int, v float64) {
					load[i] = v
					if err := p.SetLoad(load); err != nil {
						t.Fatal(err)
					}
				}, eval, 1e-3, 2e-4)
		}

		// restore the design point
		p.Invalidate()
		if err := p.Solve(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMassCoordSens(t *testing.T) {

	asm, p := bentPlate(t)

	sens, err := p.EvalSens(FuncMass)
	if err != nil {
		t.Fatal(err)
	}
	g := sens[FuncMass]

	coords := asm.Coords()
	fdCheck(t, "mass/coords", len(coords), g.Coords,
		func(i int) float64 { return coords[i] },
		func(i int, v float64) {
			coords[i] = v
			if err := asm.SetCoords(coords); err != nil {
				t.Fatal(err)
			}
		},
		func() float64 { return asm.totalMass() }, 1e-6, 1e-5)
}

func TestOptionPlumbing(t *testing.T) {

	asm := plateAsm(t, 1, 1, 1, 1, 1, 1, 0.01)
	p := asm.NewStaticProblem("opts", nil)

	cases := []struct {
		name  string
		value any
		ok    bool
	}{
		{"L2Convergence", 1e-20, true},
		{"L2ConvergenceRel", 1e-20, true},
		{"ksWeight", 100.0, true},
		{"maxRefineIters", 5, true},
		{"writeSolution", false, true},
		{"L2Convergence", -1.0, false},
		{"L2Convergence", 10, false},
		{"noSuchOption", 1.0, false},
	}
	for _, c := range cases {
		err := p.SetOption(c.name, c.value)
		if c.ok && err != nil {
			t.Fatalf("option %s: unexpected error %v", c.name, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("option %s: error expected", c.name)
		}
	}
	if p.opts.L2Convergence != 1e-20 || p.opts.KSWeight != 100.0 || p.opts.MaxRefineIters != 5 {
		t.Fatal("options not applied")
	}
}
