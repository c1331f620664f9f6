// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fea assembles shell meshes into global systems and exposes static
// and linearized-buckling analysis problems with adjoint sensitivities.
package fea

import (
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/strucopt/constitutive"
	"github.com/curioloop/strucopt/mesh"
	"github.com/curioloop/strucopt/shell"
)

// Assembler owns the mesh, the element set and the DOF bookkeeping shared
// by every analysis problem built from it.
type Assembler struct {
	msh   *mesh.Mesh
	cons  []*constitutive.IsoShell // one per mesh component
	elems []*shell.Quad4

	ndv   int
	free  []int // global dof → reduced index, -1 when fixed
	redux []int // reduced index → global dof

	log *zap.Logger
}

// NewAssembler builds an assembler from a mesh and one constitutive object
// per mesh component. A nil logger disables logging.
func NewAssembler(m *mesh.Mesh, cons []*constitutive.IsoShell, log *zap.Logger) (*Assembler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch {
	case m == nil || m.NumElems() == 0:
		return nil, errors.New("mesh with at least one element is required")
	case len(cons) != m.NumComps():
		return nil, errors.Errorf("got %d constitutive objects for %d components", len(cons), m.NumComps())
	}

	ndv := 0
	for i, c := range cons {
		if c == nil {
			return nil, errors.Errorf("component %d has no constitutive object", i)
		}
		if dv := c.DVIndex(); dv >= ndv {
			ndv = dv + 1
		}
	}

	a := &Assembler{msh: m, cons: cons, ndv: ndv, log: log}
	for e := 0; e < m.NumElems(); e++ {
		a.elems = append(a.elems, shell.NewQuad4(cons[m.CompOf[e]], m.Elems[e]))
	}

	ndof := shell.NodeDOF * m.NumNodes()
	fixed := make([]bool, ndof)
	for _, bc := range m.BCs {
		for _, d := range bc.DOFs {
			if d < 0 || d >= shell.NodeDOF {
				return nil, errors.Errorf("boundary condition dof %d out of range", d)
			}
			fixed[shell.NodeDOF*bc.Node+d] = true
		}
	}
	a.free = make([]int, ndof)
	for g := range a.free {
		if fixed[g] {
			a.free[g] = -1
		} else {
			a.free[g] = len(a.redux)
			a.redux = append(a.redux, g)
		}
	}
	if len(a.redux) == 0 {
		return nil, errors.New("all degrees of freedom are constrained")
	}

	log.Debug("assembler ready",
		zap.Int("nodes", m.NumNodes()),
		zap.Int("elements", m.NumElems()),
		zap.Int("components", m.NumComps()),
		zap.Int("freeDOF", len(a.redux)),
		zap.Int("designVars", ndv))
	return a, nil
}

// Mesh returns the underlying mesh.
func (a *Assembler) Mesh() *mesh.Mesh { return a.msh }

// Constitutives returns the per-component constitutive objects.
func (a *Assembler) Constitutives() []*constitutive.IsoShell { return a.cons }

// NumNodes returns the node count.
func (a *Assembler) NumNodes() int { return a.msh.NumNodes() }

// NumDOF returns the full system size (6 per node).
func (a *Assembler) NumDOF() int { return shell.NodeDOF * a.msh.NumNodes() }

// NumFree returns the number of unconstrained degrees of freedom.
func (a *Assembler) NumFree() int { return len(a.redux) }

// NDV returns the number of thickness design variables.
func (a *Assembler) NDV() int { return a.ndv }

// SetDesignVars distributes the design vector over the constitutive objects.
func (a *Assembler) SetDesignVars(x []float64) error {
	if len(x) != a.ndv {
		return errors.Errorf("design vector has %d entries, want %d", len(x), a.ndv)
	}
	for _, c := range a.cons {
		if dv := c.DVIndex(); dv >= 0 {
			c.SetThickness(x[dv])
		}
	}
	return nil
}

// DesignVars gathers the current design vector.
func (a *Assembler) DesignVars() []float64 {
	x := make([]float64, a.ndv)
	for _, c := range a.cons {
		if dv := c.DVIndex(); dv >= 0 {
			x[dv] = c.Thickness()
		}
	}
	return x
}

// DesignVarBounds gathers the design variable bounds.
func (a *Assembler) DesignVarBounds() (lb, ub []float64) {
	lb = make([]float64, a.ndv)
	ub = make([]float64, a.ndv)
	for _, c := range a.cons {
		if dv := c.DVIndex(); dv >= 0 {
			lb[dv], ub[dv] = c.Bounds()
		}
	}
	return
}

// Coords returns the node coordinates as an xyz triple per node (z = 0).
func (a *Assembler) Coords() []float64 {
	nn := a.msh.NumNodes()
	x := make([]float64, 3*nn)
	for i := 0; i < nn; i++ {
		x[3*i], x[3*i+1] = a.msh.Node(i)
	}
	return x
}

// SetCoords updates node coordinates from an xyz triple per node.
// The out-of-plane entries are ignored: the element formulation is plane.
func (a *Assembler) SetCoords(x []float64) error {
	nn := a.msh.NumNodes()
	if len(x) != 3*nn {
		return errors.Errorf("coordinate vector has %d entries, want %d", len(x), 3*nn)
	}
	for i := 0; i < nn; i++ {
		a.msh.Coords[2*i] = x[3*i]
		a.msh.Coords[2*i+1] = x[3*i+1]
	}
	return nil
}

// elemDOFs lists the global DOF of element e.
func (a *Assembler) elemDOFs(e int) (dofs [shell.ElemDOF]int) {
	for i, n := range a.msh.Elems[e] {
		for d := 0; d < shell.NodeDOF; d++ {
			dofs[shell.NodeDOF*i+d] = shell.NodeDOF*n + d
		}
	}
	return
}

// gather copies the element part of a full-length vector.
func (a *Assembler) gather(e int, v []float64) (ve [shell.ElemDOF]float64) {
	for i, g := range a.elemDOFs(e) {
		ve[i] = v[g]
	}
	return
}

// scatterAdd accumulates an element vector into a full-length vector.
func (a *Assembler) scatterAdd(e int, ve *[shell.ElemDOF]float64, v []float64) {
	for i, g := range a.elemDOFs(e) {
		v[g] += ve[i]
	}
}

// addElemSym accumulates a symmetric element matrix into the reduced system.
func (a *Assembler) addElemSym(sys *mat.SymDense, e int, ke *[shell.ElemDOF * shell.ElemDOF]float64) {
	dofs := a.elemDOFs(e)
	for i := 0; i < shell.ElemDOF; i++ {
		ri := a.free[dofs[i]]
		if ri < 0 {
			continue
		}
		for j := i; j < shell.ElemDOF; j++ {
			rj := a.free[dofs[j]]
			if rj < 0 {
				continue
			}
			v := ke[i*shell.ElemDOF+j]
			if v == 0 {
				continue
			}
			if ri <= rj {
				sys.SetSym(ri, rj, sys.At(ri, rj)+v)
			} else {
				sys.SetSym(rj, ri, sys.At(rj, ri)+v)
			}
		}
	}
}

// AssembleK assembles the reduced stiffness matrix at the current design.
func (a *Assembler) AssembleK() *mat.SymDense {
	sys := mat.NewSymDense(a.NumFree(), nil)
	var ke [shell.ElemDOF * shell.ElemDOF]float64
	for e, el := range a.elems {
		el.Stiffness(a.msh.ElemCoords(e), &ke)
		a.addElemSym(sys, e, &ke)
	}
	return sys
}

// AssembleG assembles the reduced geometric stiffness for the prestress
// displacement u (full length).
func (a *Assembler) AssembleG(u []float64) *mat.SymDense {
	sys := mat.NewSymDense(a.NumFree(), nil)
	var ge [shell.ElemDOF * shell.ElemDOF]float64
	for e, el := range a.elems {
		ue := a.gather(e, u)
		el.GeometricStiffness(a.msh.ElemCoords(e), ue[:], &ge)
		a.addElemSym(sys, e, &ge)
	}
	return sys
}

// Reduce drops the fixed entries of a full-length vector.
func (a *Assembler) Reduce(full []float64) []float64 {
	r := make([]float64, a.NumFree())
	for i, g := range a.redux {
		r[i] = full[g]
	}
	return r
}

// Expand zero-fills a reduced vector back to full length.
func (a *Assembler) Expand(red []float64) []float64 {
	full := make([]float64, a.NumDOF())
	for i, g := range a.redux {
		full[g] = red[i]
	}
	return full
}

// ComponentAreas integrates the element areas per component.
func (a *Assembler) ComponentAreas() []float64 {
	areas := make([]float64, a.msh.NumComps())
	for e, el := range a.elems {
		areas[a.msh.CompOf[e]] += el.Area(a.msh.ElemCoords(e))
	}
	return areas
}
