// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mdo

import (
	"fmt"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/curioloop/strucopt/constitutive"
	"github.com/curioloop/strucopt/fea"
	"github.com/curioloop/strucopt/mesh"
	"github.com/curioloop/strucopt/shell"
)

// Canonical structural variable names.
const (
	// VarCoords is the structural node coordinate vector (xyz per node).
	VarCoords = "x_struct0"
	// VarDesign is the thickness design variable vector.
	VarDesign = "dv_struct"
	// VarLoadAero is the aerodynamic coupling load (6 per node).
	VarLoadAero = "f_aero_struct"
)

// StructBuilder assembles the structural subsystems of a model: the
// mesh coordinate source and analysis scenarios bound to one shared
// finite element assembler.
type StructBuilder struct {
	// MeshFile is a Nastran bulk data file; alternatively Mesh
	// supplies an in-memory mesh directly.
	MeshFile string
	Mesh     *mesh.Mesh
	// ElementCallback creates the constitutive object of one mesh
	// component, binding thickness design variable dvNum.
	ElementCallback func(dvNum, compID int, descript string) (*constitutive.IsoShell, error)
	// ProblemSetup tunes the static problem of a scenario, typically
	// setting solver options or adding fixed loads.
	ProblemSetup func(scenario string, asm *fea.Assembler, sp *fea.StaticProblem) error
	// BucklingSetup creates a scenario's buckling problem; nil skips
	// buckling outputs.
	BucklingSetup func(scenario string, asm *fea.Assembler) (*fea.BucklingProblem, error)
	// CouplingLoads lists external load inputs summed onto the fixed
	// loads, e.g. VarLoadAero.
	CouplingLoads []string
	// Functions lists the static outputs; defaults to mass and
	// ks_vmfailure.
	Functions []string
	Logger    *zap.Logger

	asm   *fea.Assembler
	fixed []float64
}

// Initialize loads the mesh, allocates one constitutive object per
// component through the element callback and builds the assembler.
func (b *StructBuilder) Initialize() error {
	if b.ElementCallback == nil {
		return errors.New("an element callback is required")
	}

	m := b.Mesh
	var fixed []float64
	if m == nil {
		if b.MeshFile == "" {
			return errors.New("either a mesh file or an in-memory mesh is required")
		}
		model, err := mesh.ReadBDF(b.MeshFile)
		if err != nil {
			return errors.Wrap(err, "mesh file")
		}
		m = model.Mesh
		fixed = model.Loads()
	}

	cons := make([]*constitutive.IsoShell, m.NumComps())
	for c := range cons {
		con, err := b.ElementCallback(c, c, m.Comps[c])
		if err != nil {
			return errors.Wrapf(err, "element callback for component %q", m.Comps[c])
		}
		cons[c] = con
	}

	asm, err := fea.NewAssembler(m, cons, b.Logger)
	if err != nil {
		return err
	}
	b.asm = asm
	b.fixed = make([]float64, asm.NumDOF())
	copy(b.fixed, fixed)
	return nil
}

// Assembler returns the shared assembler (after Initialize).
func (b *StructBuilder) Assembler() *fea.Assembler { return b.asm }

// NDV returns the number of thickness design variables.
func (b *StructBuilder) NDV() int { return b.asm.NDV() }

// NDOF returns the degrees of freedom per node.
func (b *StructBuilder) NDOF() int { return shell.NodeDOF }

// NumNodes returns the mesh node count.
func (b *StructBuilder) NumNodes() int { return b.asm.NumNodes() }

// MeshSubsystem returns a group exposing the initial node coordinates
// as fea_mesh.x_struct0.
func (b *StructBuilder) MeshSubsystem() *Group {
	return NewGroup().Add("fea_mesh", &meshComp{coords: b.asm.Coords()})
}

// Scenario builds a structural analysis component: inputs x_struct0,
// dv_struct and the coupling loads; one scalar output per function.
func (b *StructBuilder) Scenario(name string) (Component, error) {
	if b.asm == nil {
		return nil, errors.New("the builder is not initialized")
	}

	static := b.asm.NewStaticProblem(name, nil)
	if b.ProblemSetup != nil {
		if err := b.ProblemSetup(name, b.asm, static); err != nil {
			return nil, errors.Wrap(err, "problem setup")
		}
	}

	sc := &structScenario{
		name:     name,
		asm:      b.asm,
		static:   static,
		fixed:    b.fixed,
		coupling: b.CouplingLoads,
	}
	sc.statFuncs = b.Functions
	if sc.statFuncs == nil {
		sc.statFuncs = []string{fea.FuncMass, fea.FuncKSFailure}
	}

	if b.BucklingSetup != nil {
		bp, err := b.BucklingSetup(name, b.asm)
		if err != nil {
			return nil, errors.Wrap(err, "buckling setup")
		}
		sc.buckling = bp
		for i := 0; i < bp.NumEigs(); i++ {
			sc.buckFuncs = append(sc.buckFuncs, fmt.Sprintf("%s%d", fea.FuncEigPrefix, i))
		}
	}
	return sc, nil
}

// meshComp emits the structural coordinates; totals can reseat them
// through SetVal.
type meshComp struct {
	coords []float64
}

func (c *meshComp) Name() string { return "fea_mesh" }
func (c *meshComp) Inputs() []Var {
	return nil
}
func (c *meshComp) Outputs() []Var {
	return []Var{{Name: VarCoords, Size: len(c.coords)}}
}

func (c *meshComp) Compute(_, out map[string][]float64) error {
	copy(out[VarCoords], c.coords)
	return nil
}

func (c *meshComp) SetVal(name string, v []float64) error {
	if name != VarCoords {
		return errors.Errorf("mesh component has no output %q", name)
	}
	if len(v) != len(c.coords) {
		return errors.Errorf("coordinate vector has %d entries, want %d", len(v), len(c.coords))
	}
	copy(c.coords, v)
	return nil
}

// structScenario wraps the static and buckling problems as one
// explicit component. The solver state is eliminated inside, so the
// adjoint totals of the problems are this component's partials.
type structScenario struct {
	name     string
	asm      *fea.Assembler
	static   *fea.StaticProblem
	buckling *fea.BucklingProblem

	fixed     []float64
	coupling  []string
	statFuncs []string
	buckFuncs []string
}

func (s *structScenario) Name() string { return s.name }

func (s *structScenario) Inputs() []Var {
	in := []Var{
		{Name: VarCoords, Size: 3 * s.asm.NumNodes()},
		{Name: VarDesign, Size: s.asm.NDV()},
	}
	for _, c := range s.coupling {
		in = append(in, Var{Name: c, Size: s.asm.NumDOF()})
	}
	return in
}

func (s *structScenario) Outputs() []Var {
	var out []Var
	for _, f := range s.statFuncs {
		out = append(out, Var{Name: f, Size: 1})
	}
	for _, f := range s.buckFuncs {
		out = append(out, Var{Name: f, Size: 1})
	}
	return out
}

// apply moves the inputs into the assembler and the problem loads.
func (s *structScenario) apply(in map[string][]float64) error {
	if err := s.asm.SetCoords(in[VarCoords]); err != nil {
		return err
	}
	if err := s.asm.SetDesignVars(in[VarDesign]); err != nil {
		return err
	}
	load := make([]float64, s.asm.NumDOF())
	copy(load, s.fixed)
	for _, c := range s.coupling {
		for i, v := range in[c] {
			load[i] += v
		}
	}
	s.static.Invalidate()
	if err := s.static.SetLoad(load); err != nil {
		return err
	}
	if s.buckling != nil {
		s.buckling.Invalidate()
		if err := s.buckling.SetLoad(load); err != nil {
			return err
		}
	}
	return nil
}

func (s *structScenario) Compute(in, out map[string][]float64) error {
	if err := s.apply(in); err != nil {
		return err
	}
	funcs, err := s.static.EvalFunctions(s.statFuncs...)
	if err != nil {
		return err
	}
	for _, f := range s.statFuncs {
		out[f][0] = funcs[f]
	}
	if s.buckling != nil {
		funcs, err = s.buckling.EvalFunctions(s.buckFuncs...)
		if err != nil {
			return err
		}
		for _, f := range s.buckFuncs {
			out[f][0] = funcs[f]
		}
	}
	return nil
}

func (s *structScenario) ComputePartials(in map[string][]float64, jac Jacobians) error {
	if err := s.apply(in); err != nil {
		return err
	}
	sens, err := s.static.EvalSens(s.statFuncs...)
	if err != nil {
		return err
	}
	if s.buckling != nil {
		bs, err := s.buckling.EvalSens(s.buckFuncs...)
		if err != nil {
			return err
		}
		for f, g := range bs {
			sens[f] = g
		}
	}
	for f, g := range sens {
		jac.Set(f, VarDesign, g.DV)
		jac.Set(f, VarCoords, g.Coords)
		// the total load is the sum of the couplings, so each one
		// sees the same load derivative
		for _, c := range s.coupling {
			jac.Set(f, c, g.Load)
		}
	}
	return nil
}
