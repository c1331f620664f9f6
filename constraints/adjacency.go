// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import (
	"github.com/go-faster/errors"

	"github.com/curioloop/strucopt/fea"
)

// AdjacencyConstraint limits the thickness jump t_i - t_j across every
// pair of components sharing a mesh edge.
type AdjacencyConstraint struct {
	name  string
	asm   *fea.Assembler
	pairs [][2]int // design variable pairs
	lo    float64
	hi    float64
}

// add constraint to factory
func init() {
	allocators["adjacency"] = func(a *fea.Assembler, p Params) (Constraint, error) {
		return NewAdjacency(a, p.Name, p.Lower, p.Upper)
	}
}

// NewAdjacency creates the thickness jump constraint over all component
// interfaces of the mesh. Pairs without two distinct design variables
// are skipped.
func NewAdjacency(a *fea.Assembler, name string, lo, hi float64) (*AdjacencyConstraint, error) {
	if lo > hi {
		return nil, errors.New("empty bound range")
	}
	cons := a.Constitutives()
	var pairs [][2]int
	for _, p := range a.Mesh().Adjacency() {
		di, dj := cons[p[0]].DVIndex(), cons[p[1]].DVIndex()
		if di < 0 || dj < 0 || di == dj {
			continue
		}
		pairs = append(pairs, [2]int{di, dj})
	}
	if len(pairs) == 0 {
		return nil, errors.New("mesh has no component interfaces with distinct design variables")
	}
	return &AdjacencyConstraint{name: name, asm: a, pairs: pairs, lo: lo, hi: hi}, nil
}

func (c *AdjacencyConstraint) Name() string { return c.name }
func (c *AdjacencyConstraint) Size() int    { return len(c.pairs) }

func (c *AdjacencyConstraint) Bounds() (lb, ub []float64) {
	lb = make([]float64, len(c.pairs))
	ub = make([]float64, len(c.pairs))
	for r := range c.pairs {
		lb[r], ub[r] = c.lo, c.hi
	}
	return
}

func (c *AdjacencyConstraint) Evaluate(vals []float64) error {
	if len(vals) != len(c.pairs) {
		return errors.Errorf("got %d values for %d rows", len(vals), len(c.pairs))
	}
	x := c.asm.DesignVars()
	for r, p := range c.pairs {
		vals[r] = x[p[0]] - x[p[1]]
	}
	return nil
}

func (c *AdjacencyConstraint) Gradient(jac []float64) error {
	ndv := c.asm.NDV()
	if len(jac) != len(c.pairs)*ndv {
		return errors.Errorf("got %d jacobian entries, want %d", len(jac), len(c.pairs)*ndv)
	}
	clear(jac)
	for r, p := range c.pairs {
		jac[r*ndv+p[0]] = 1
		jac[r*ndv+p[1]] = -1
	}
	return nil
}
