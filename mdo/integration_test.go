// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mdo

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/curioloop/strucopt/constitutive"
	"github.com/curioloop/strucopt/fea"
)

// A 1m by 2m plate made up of four quad shell elements, clamped on one
// short edge and compressed along its length, with a unit coupling
// force on every degree of freedom.
const debugPlateBDF = `$ 1m x 2m debug plate, four CQUAD4
GRID,1,0,0.0,0.0,0.0
GRID,2,0,0.5,0.0,0.0
GRID,3,0,1.0,0.0,0.0
GRID,4,0,0.0,1.0,0.0
GRID,5,0,0.5,1.0,0.0
GRID,6,0,1.0,1.0,0.0
GRID,7,0,0.0,2.0,0.0
GRID,8,0,0.5,2.0,0.0
GRID,9,0,1.0,2.0,0.0
CQUAD4,1,1,1,2,5,4
CQUAD4,2,1,2,3,6,5
CQUAD4,3,1,4,5,8,7
CQUAD4,4,1,5,6,9,8
PSHELL,1,1,0.012
MAT1,1,73.1e9,,0.33,2780.0
SPC,1,1,123456,0.0
SPC,1,2,123456,0.0
SPC,1,3,123456,0.0
FORCE,2,7,0,62.5,0.0,-1.0,0.0
FORCE,2,8,0,125.0,0.0,-1.0,0.0
FORCE,2,9,0,62.5,0.0,-1.0,0.0
`

func debugPlateBuilder(t *testing.T) *StructBuilder {
	t.Helper()
	path := filepath.Join(t.TempDir(), "debug_plate.bdf")
	if err := os.WriteFile(path, []byte(debugPlateBDF), 0o644); err != nil {
		t.Fatal(err)
	}

	elementCallback := func(dvNum, compID int, descript string) (*constitutive.IsoShell, error) {
		mat, err := constitutive.NewMaterial(2780.0, 73.1e9, 0.33, 324.0e6)
		if err != nil {
			return nil, err
		}
		return constitutive.NewIsoShell(mat, 0.012, dvNum, 0.002, 0.05)
	}
	problemSetup := func(scenario string, asm *fea.Assembler, sp *fea.StaticProblem) error {
		if err := sp.SetOption("L2Convergence", 1e-20); err != nil {
			return err
		}
		return sp.SetOption("L2ConvergenceRel", 1e-20)
	}
	bucklingSetup := func(scenario string, asm *fea.Assembler) (*fea.BucklingProblem, error) {
		bp, err := asm.NewBucklingProblem("buckling", 1.0, 2, nil)
		if err != nil {
			return nil, err
		}
		if err := bp.SetOption("writeSolution", false); err != nil {
			return nil, err
		}
		if err := bp.SetOption("L2Convergence", 1e-20); err != nil {
			return nil, err
		}
		return bp, bp.SetOption("L2ConvergenceRel", 1e-20)
	}

	b := &StructBuilder{
		MeshFile:        path,
		ElementCallback: elementCallback,
		ProblemSetup:    problemSetup,
		BucklingSetup:   bucklingSetup,
		CouplingLoads:   []string{VarLoadAero},
	}
	if err := b.Initialize(); err != nil {
		t.Fatal(err)
	}
	return b
}

func debugPlateProblem(t *testing.T, b *StructBuilder) *Problem {
	t.Helper()
	ndv := b.NDV()
	dv := make([]float64, ndv)
	for i := range dv {
		dv[i] = 0.01
	}
	fSize := b.NDOF() * b.NumNodes()
	ones := make([]float64, fSize)
	for i := range ones {
		ones[i] = 1
	}

	analysis, err := b.Scenario("analysis")
	if err != nil {
		t.Fatal(err)
	}

	root := NewGroup().
		Add("dvs", NewIndepVar("dvs").AddOutput(VarDesign, dv), "*").
		Add("forces", NewIndepVar("forces").AddOutput(VarLoadAero, ones), "*").
		AddGroup("mesh", b.MeshSubsystem()).
		Add("analysis", analysis).
		Connect("mesh.fea_mesh."+VarCoords, "analysis."+VarCoords).
		Connect(VarDesign, "analysis."+VarDesign).
		Connect(VarLoadAero, "analysis."+VarLoadAero)

	p, err := NewProblem(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestStructBuilder(t *testing.T) {

	b := debugPlateBuilder(t)
	switch {
	case b.NDV() != 1:
		t.Fatalf("got %d design variables, want 1", b.NDV())
	case b.NDOF() != 6:
		t.Fatalf("got %d dof per node, want 6", b.NDOF())
	case b.NumNodes() != 9:
		t.Fatalf("got %d nodes, want 9", b.NumNodes())
	}

	// missing callback and missing mesh both fail
	if err := (&StructBuilder{MeshFile: "x"}).Initialize(); err == nil {
		t.Fatal("missing element callback must fail")
	}
	if err := (&StructBuilder{ElementCallback: func(int, int, string) (*constitutive.IsoShell, error) {
		return nil, nil
	}}).Initialize(); err == nil {
		t.Fatal("missing mesh must fail")
	}
}

func TestStructScenarioRun(t *testing.T) {

	b := debugPlateBuilder(t)
	p := debugPlateProblem(t, b)
	if err := p.RunModel(); err != nil {
		t.Fatal(err)
	}

	mass, err := p.GetVal("analysis." + fea.FuncMass)
	if err != nil {
		t.Fatal(err)
	}
	// dv_struct = 0.01 overrides the bulk data thickness: 2780·0.01·2m²
	if want := 2780.0 * 0.01 * 2.0; relErr(mass[0], want) > 1e-12 {
		t.Fatalf("mass: got %g want %g", mass[0], want)
	}

	ks, err := p.GetVal("analysis." + fea.FuncKSFailure)
	if err != nil {
		t.Fatal(err)
	}
	if ks[0] <= 0 {
		t.Fatalf("failure index must be positive, got %g", ks[0])
	}

	e0, err := p.GetVal("analysis.eigsb_0")
	if err != nil {
		t.Fatal(err)
	}
	e1, err := p.GetVal("analysis.eigsb_1")
	if err != nil {
		t.Fatal(err)
	}
	if e0[0] >= e1[0] {
		t.Fatalf("eigenvalues not ascending: %g %g", e0[0], e1[0])
	}
	if e0[0] == 0 || e1[0] == 0 {
		t.Fatalf("vanishing buckling eigenvalue: %g %g", e0[0], e1[0])
	}

	// doubling the thickness cubes the bending stiffness, so every
	// buckling multiplier must grow
	if err := p.SetVal(VarDesign, []float64{0.02}); err != nil {
		t.Fatal(err)
	}
	if err := p.RunModel(); err != nil {
		t.Fatal(err)
	}
	e0b, _ := p.GetVal("analysis.eigsb_0")
	if math.Abs(e0b[0]) <= math.Abs(e0[0]) {
		t.Fatalf("thicker plate must buckle later: %g vs %g", e0b[0], e0[0])
	}
}

func TestStructScenarioPartials(t *testing.T) {

	b := debugPlateBuilder(t)
	p := debugPlateProblem(t, b)
	if err := p.RunModel(); err != nil {
		t.Fatal(err)
	}

	checks, err := p.CheckPartials(1e-6)
	if err != nil {
		t.Fatal(err)
	}
	if len(checks) == 0 {
		t.Fatal("no partials checked")
	}
	for _, c := range checks {
		if c.MaxRelErr > 5e-3 {
			t.Fatalf("partial %s.%s/%s off by %g", c.Component, c.Of, c.Wrt, c.MaxRelErr)
		}
	}
}

func TestStructScenarioTotals(t *testing.T) {

	b := debugPlateBuilder(t)
	p := debugPlateProblem(t, b)

	of := []string{
		"analysis." + fea.FuncMass,
		"analysis." + fea.FuncKSFailure,
	}
	for i := 0; i < 2; i++ {
		of = append(of, fmt.Sprintf("analysis.%s%d", fea.FuncEigPrefix, i))
	}
	wrt := []string{
		"mesh.fea_mesh." + VarCoords,
		VarDesign,
		VarLoadAero,
	}

	checks, err := p.CheckTotals(of, wrt, 1e-6)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range checks {
		if c.MaxRelErr > 5e-3 {
			t.Fatalf("total %s/%s off by %g", c.Of, c.Wrt, c.MaxRelErr)
		}
	}
}

func relErr(got, want float64) float64 {
	d := got - want
	if d < 0 {
		d = -d
	}
	w := want
	if w < 0 {
		w = -w
	}
	return d / w
}
