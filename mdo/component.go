// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mdo is a compact explicit-component graph: named components
// exchange dense float vectors through promoted or connected variables,
// with totals by chain rule and finite difference checking.
package mdo

import (
	"github.com/go-faster/errors"
)

// Var declares one component variable and its vector length.
type Var struct {
	Name string
	Size int
}

// Jacobians collects dense partial derivative blocks, keyed by
// {output, input} pairs, each stored row-major outSize×inSize.
type Jacobians map[[2]string][]float64

// Set stores one partial block, copying the data.
func (j Jacobians) Set(output, input string, data []float64) {
	cp := make([]float64, len(data))
	copy(cp, data)
	j[[2]string{output, input}] = cp
}

// Component is one explicit calculation in the graph.
type Component interface {
	// Name is the component's default subsystem label.
	Name() string
	// Inputs declares the input variables.
	Inputs() []Var
	// Outputs declares the output variables.
	Outputs() []Var
	// Compute fills every output from the given inputs.
	Compute(in, out map[string][]float64) error
}

// PartialsProvider is implemented by components with analytic (or
// adjoint) partial derivatives. Components without it are
// finite-differenced during total derivative computation.
type PartialsProvider interface {
	Component
	// ComputePartials fills jac with every ∂output/∂input block
	// at the given input point.
	ComputePartials(in map[string][]float64, jac Jacobians) error
}

// Settable is implemented by components whose output values can be
// overridden from outside, such as independent variable sources.
type Settable interface {
	SetVal(name string, v []float64) error
}

// IndepVar is an independent variable source component.
type IndepVar struct {
	name string
	outs []Var
	vals map[string][]float64
}

// NewIndepVar creates an empty independent variable component.
func NewIndepVar(name string) *IndepVar {
	return &IndepVar{name: name, vals: make(map[string][]float64)}
}

// AddOutput declares an output with its initial value.
func (c *IndepVar) AddOutput(name string, val []float64) *IndepVar {
	c.outs = append(c.outs, Var{Name: name, Size: len(val)})
	cp := make([]float64, len(val))
	copy(cp, val)
	c.vals[name] = cp
	return c
}

func (c *IndepVar) Name() string   { return c.name }
func (c *IndepVar) Inputs() []Var  { return nil }
func (c *IndepVar) Outputs() []Var { return c.outs }

func (c *IndepVar) Compute(_, out map[string][]float64) error {
	for name, v := range c.vals {
		copy(out[name], v)
	}
	return nil
}

// SetVal replaces the value of one declared output.
func (c *IndepVar) SetVal(name string, v []float64) error {
	cur, ok := c.vals[name]
	if !ok {
		return errors.Errorf("independent variable %q has no output %q", c.name, name)
	}
	if len(v) != len(cur) {
		return errors.Errorf("output %q has size %d, got %d", name, len(cur), len(v))
	}
	copy(cur, v)
	return nil
}
