// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import (
	"math"

	"github.com/go-faster/errors"

	"github.com/curioloop/strucopt/fea"
	"github.com/curioloop/strucopt/shell"
)

// VolumeConstraint bounds the structural volume Σ t_c·A_c.
type VolumeConstraint struct {
	name string
	asm  *fea.Assembler
	lo   float64
	hi   float64
}

// add constraint to factory
func init() {
	allocators["volume"] = func(a *fea.Assembler, p Params) (Constraint, error) {
		return NewVolume(a, p.Name, p.Lower, p.Upper)
	}
}

// NewVolume creates the volume constraint with bounds [lo, hi].
func NewVolume(a *fea.Assembler, name string, lo, hi float64) (*VolumeConstraint, error) {
	if lo > hi {
		return nil, errors.New("empty bound range")
	}
	return &VolumeConstraint{name: name, asm: a, lo: lo, hi: hi}, nil
}

func (c *VolumeConstraint) Name() string { return c.name }
func (c *VolumeConstraint) Size() int    { return 1 }

func (c *VolumeConstraint) Bounds() (lb, ub []float64) {
	return []float64{c.lo}, []float64{c.hi}
}

func (c *VolumeConstraint) Evaluate(vals []float64) error {
	if len(vals) != 1 {
		return errors.Errorf("got %d values for 1 row", len(vals))
	}
	areas := c.asm.ComponentAreas()
	cons := c.asm.Constitutives()
	v := 0.0
	for i, area := range areas {
		v += cons[i].Thickness() * area
	}
	vals[0] = v
	return nil
}

func (c *VolumeConstraint) Gradient(jac []float64) error {
	ndv := c.asm.NDV()
	if len(jac) != ndv {
		return errors.Errorf("got %d jacobian entries, want %d", len(jac), ndv)
	}
	clear(jac)
	areas := c.asm.ComponentAreas()
	for i, con := range c.asm.Constitutives() {
		if dv := con.DVIndex(); dv >= 0 {
			jac[dv] += areas[i]
		}
	}
	return nil
}

// CoordGradient differentiates the volume against the node coordinates
// by element-level central differences of t·A_e.
func (c *VolumeConstraint) CoordGradient(jac []float64) error {
	nn := c.asm.NumNodes()
	if len(jac) != 3*nn {
		return errors.Errorf("got %d jacobian entries, want %d", len(jac), 3*nn)
	}
	clear(jac)
	m := c.asm.Mesh()
	cons := c.asm.Constitutives()
	for e := 0; e < m.NumElems(); e++ {
		el := shell.NewQuad4(cons[m.CompOf[e]], m.Elems[e])
		t := el.Con.Thickness()
		base := m.ElemCoords(e)
		for i := 0; i < 4; i++ {
			for d := 0; d < 2; d++ {
				h := 1e-6 * math.Max(1, math.Abs(base[i][d]))
				cp, cm := base, base
				cp[i][d] += h
				cm[i][d] -= h
				df := t * (el.Area(cp) - el.Area(cm)) / (2 * h)
				jac[3*m.Elems[e][i]+d] += df
			}
		}
	}
	return nil
}
