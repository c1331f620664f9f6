// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import (
	"math"

	"github.com/go-faster/errors"

	"github.com/curioloop/strucopt/fea"
)

// PanelDimConstraint holds each component's bounding extent along a
// reference direction to a target value. The rows are equalities
// extent_c - target_c = 0, one per component.
type PanelDimConstraint struct {
	name string
	asm  *fea.Assembler
	dir  [2]float64 // unit reference direction
	tgt  []float64
}

// add constraint to factory
func init() {
	allocators["panel_length"] = func(a *fea.Assembler, p Params) (Constraint, error) {
		return NewPanelLength(a, p.Name, p.Targets)
	}
	allocators["panel_width"] = func(a *fea.Assembler, p Params) (Constraint, error) {
		return NewPanelWidth(a, p.Name, p.Targets)
	}
}

// NewPanelLength measures each component along the x axis.
func NewPanelLength(a *fea.Assembler, name string, targets []float64) (*PanelDimConstraint, error) {
	return newPanelDim(a, name, [2]float64{1, 0}, targets)
}

// NewPanelWidth measures each component along the y axis.
func NewPanelWidth(a *fea.Assembler, name string, targets []float64) (*PanelDimConstraint, error) {
	return newPanelDim(a, name, [2]float64{0, 1}, targets)
}

func newPanelDim(a *fea.Assembler, name string, dir [2]float64, targets []float64) (*PanelDimConstraint, error) {
	if len(targets) != a.Mesh().NumComps() {
		return nil, errors.Errorf("got %d targets for %d components", len(targets), a.Mesh().NumComps())
	}
	for i, t := range targets {
		if t <= 0 || math.IsNaN(t) {
			return nil, errors.Errorf("target %d must be positive", i)
		}
	}
	c := &PanelDimConstraint{name: name, asm: a, dir: dir}
	c.tgt = append(c.tgt, targets...)
	return c, nil
}

func (c *PanelDimConstraint) Name() string { return c.name }
func (c *PanelDimConstraint) Size() int    { return len(c.tgt) }

func (c *PanelDimConstraint) Bounds() (lb, ub []float64) {
	lb = make([]float64, len(c.tgt))
	ub = make([]float64, len(c.tgt))
	return
}

// extents finds, per component, the extreme projections onto the
// reference direction and the nodes realizing them.
func (c *PanelDimConstraint) extents() (lo, hi []float64, loNode, hiNode []int) {
	m := c.asm.Mesh()
	nc := m.NumComps()
	lo = make([]float64, nc)
	hi = make([]float64, nc)
	loNode = make([]int, nc)
	hiNode = make([]int, nc)
	for i := range lo {
		lo[i] = math.Inf(1)
		hi[i] = math.Inf(-1)
	}
	for e := 0; e < m.NumElems(); e++ {
		comp := m.CompOf[e]
		for _, n := range m.Elems[e] {
			x, y := m.Node(n)
			p := c.dir[0]*x + c.dir[1]*y
			if p < lo[comp] {
				lo[comp], loNode[comp] = p, n
			}
			if p > hi[comp] {
				hi[comp], hiNode[comp] = p, n
			}
		}
	}
	return
}

func (c *PanelDimConstraint) Evaluate(vals []float64) error {
	if len(vals) != len(c.tgt) {
		return errors.Errorf("got %d values for %d rows", len(vals), len(c.tgt))
	}
	lo, hi, _, _ := c.extents()
	for i := range vals {
		vals[i] = hi[i] - lo[i] - c.tgt[i]
	}
	return nil
}

// Gradient is zero: the panel dimension does not depend on thickness.
func (c *PanelDimConstraint) Gradient(jac []float64) error {
	if len(jac) != len(c.tgt)*c.asm.NDV() {
		return errors.Errorf("got %d jacobian entries, want %d", len(jac), len(c.tgt)*c.asm.NDV())
	}
	clear(jac)
	return nil
}

// CoordGradient places ±dir on the extreme nodes of each component.
// The extent is piecewise linear in the coordinates; at a tie this is
// one of its subgradients.
func (c *PanelDimConstraint) CoordGradient(jac []float64) error {
	nn := c.asm.NumNodes()
	if len(jac) != len(c.tgt)*3*nn {
		return errors.Errorf("got %d jacobian entries, want %d", len(jac), len(c.tgt)*3*nn)
	}
	clear(jac)
	_, _, loNode, hiNode := c.extents()
	for r := range c.tgt {
		row := jac[r*3*nn : (r+1)*3*nn]
		row[3*hiNode[r]] += c.dir[0]
		row[3*hiNode[r]+1] += c.dir[1]
		row[3*loNode[r]] -= c.dir[0]
		row[3*loNode[r]+1] -= c.dir[1]
	}
	return nil
}
