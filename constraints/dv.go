// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import (
	"github.com/go-faster/errors"

	"github.com/curioloop/strucopt/fea"
)

// DVConstraint bounds linear combinations of thickness design variables.
type DVConstraint struct {
	name string
	asm  *fea.Assembler
	rows []DVRow
}

// add constraint to factory
func init() {
	allocators["dv"] = func(a *fea.Assembler, p Params) (Constraint, error) {
		return NewDV(a, p.Name, p.Rows)
	}
}

// NewDV creates a linear design variable constraint from explicit rows.
func NewDV(a *fea.Assembler, name string, rows []DVRow) (*DVConstraint, error) {
	if len(rows) == 0 {
		return nil, errors.New("at least one row is required")
	}
	for r, row := range rows {
		if len(row.Indices) == 0 || len(row.Indices) != len(row.Weights) {
			return nil, errors.Errorf("row %d: indices and weights must pair up", r)
		}
		if row.Lower > row.Upper {
			return nil, errors.Errorf("row %d: empty bound range", r)
		}
		for _, i := range row.Indices {
			if i < 0 || i >= a.NDV() {
				return nil, errors.Errorf("row %d: design variable %d out of range", r, i)
			}
		}
	}
	return &DVConstraint{name: name, asm: a, rows: rows}, nil
}

func (c *DVConstraint) Name() string { return c.name }
func (c *DVConstraint) Size() int    { return len(c.rows) }

func (c *DVConstraint) Bounds() (lb, ub []float64) {
	lb = make([]float64, len(c.rows))
	ub = make([]float64, len(c.rows))
	for r, row := range c.rows {
		lb[r], ub[r] = row.Lower, row.Upper
	}
	return
}

func (c *DVConstraint) Evaluate(vals []float64) error {
	if len(vals) != len(c.rows) {
		return errors.Errorf("got %d values for %d rows", len(vals), len(c.rows))
	}
	x := c.asm.DesignVars()
	for r, row := range c.rows {
		v := 0.0
		for k, i := range row.Indices {
			v += row.Weights[k] * x[i]
		}
		vals[r] = v
	}
	return nil
}

func (c *DVConstraint) Gradient(jac []float64) error {
	ndv := c.asm.NDV()
	if len(jac) != len(c.rows)*ndv {
		return errors.Errorf("got %d jacobian entries, want %d", len(jac), len(c.rows)*ndv)
	}
	clear(jac)
	for r, row := range c.rows {
		for k, i := range row.Indices {
			jac[r*ndv+i] += row.Weights[k]
		}
	}
	return nil
}
