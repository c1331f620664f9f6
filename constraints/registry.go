// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package constraints provides design constraints over a shell assembler:
// thickness combinations, component adjacency, volume and panel dimensions.
// Every constraint kind registers an allocator so callers can build
// constraints from configuration by name.
package constraints

import (
	"sort"

	"github.com/go-faster/errors"

	"github.com/curioloop/strucopt/fea"
)

// Constraint is one vector-valued design constraint evaluated at the
// assembler's current design point.
type Constraint interface {
	// Name identifies the constraint in optimizer output.
	Name() string
	// Size is the number of constraint rows.
	Size() int
	// Bounds returns per-row lower and upper bounds.
	Bounds() (lb, ub []float64)
	// Evaluate fills vals (length Size) at the current design.
	Evaluate(vals []float64) error
	// Gradient fills the Size×NDV row-major Jacobian over the
	// thickness design variables.
	Gradient(jac []float64) error
}

// CoordGradienter is implemented by geometric constraints that also
// depend on the node coordinates.
type CoordGradienter interface {
	// CoordGradient fills the Size×3·NumNodes row-major Jacobian
	// over the xyz node coordinates.
	CoordGradient(jac []float64) error
}

// DVRow is one linear combination of thickness design variables.
type DVRow struct {
	Indices []int
	Weights []float64
	Lower   float64
	Upper   float64
}

// Params carries the constructor arguments an allocator may need.
// Unused fields are ignored by kinds that do not take them.
type Params struct {
	Name    string
	Lower   float64   // scalar lower bound (adjacency, volume)
	Upper   float64   // scalar upper bound (adjacency, volume)
	Targets []float64 // per-component targets (panel dimensions)
	Rows    []DVRow   // linear rows (dv)
}

// allocators holds all available constraint kinds; kind => allocator
var allocators = map[string]func(a *fea.Assembler, p Params) (Constraint, error){}

// New builds a registered constraint kind from parameters.
func New(kind string, a *fea.Assembler, p Params) (Constraint, error) {
	alloc, ok := allocators[kind]
	if !ok {
		return nil, errors.Errorf("constraint kind %q is not available", kind)
	}
	return alloc(a, p)
}

// All lists the registered constraint kinds in sorted order.
func All() []string {
	kinds := make([]string, 0, len(allocators))
	for k := range allocators {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
