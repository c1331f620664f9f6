// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fea

import "github.com/go-faster/errors"

// Options collects the tunable settings of an analysis problem.
// Values are applied through Set using their string names, mirroring the
// option plumbing of the solver interface this package renders.
type Options struct {
	// L2Convergence is the absolute residual norm target of linear solves.
	L2Convergence float64
	// L2ConvergenceRel is the relative residual norm target of linear solves.
	L2ConvergenceRel float64
	// MaxRefineIters caps iterative refinement of the factorized solve.
	MaxRefineIters int
	// KSWeight is the aggregation weight ρ of the KS failure function.
	KSWeight float64
	// WriteSolution toggles writing solution files after a solve.
	WriteSolution bool
}

// DefaultOptions returns the default analysis options.
func DefaultOptions() *Options {
	return &Options{
		L2Convergence:    1e-12,
		L2ConvergenceRel: 1e-12,
		MaxRefineIters:   10,
		KSWeight:         80,
	}
}

// Set assigns one option by name.
func (o *Options) Set(name string, value any) error {
	switch name {
	case "L2Convergence", "L2ConvergenceRel", "ksWeight":
		v, ok := value.(float64)
		if !ok {
			return errors.Errorf("option %s expects a float64", name)
		}
		if v < 0 {
			return errors.Errorf("option %s must not be negative", name)
		}
		switch name {
		case "L2Convergence":
			o.L2Convergence = v
		case "L2ConvergenceRel":
			o.L2ConvergenceRel = v
		default:
			o.KSWeight = v
		}
	case "maxRefineIters":
		v, ok := value.(int)
		if !ok || v < 0 {
			return errors.New("option maxRefineIters expects a non-negative int")
		}
		o.MaxRefineIters = v
	case "writeSolution":
		v, ok := value.(bool)
		if !ok {
			return errors.New("option writeSolution expects a bool")
		}
		o.WriteSolution = v
	default:
		return errors.Errorf("unknown option %q", name)
	}
	return nil
}

func (o *Options) clone() *Options {
	c := *o
	return &c
}
