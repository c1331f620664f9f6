// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/curioloop/strucopt/fea"
	"github.com/curioloop/strucopt/findiff"
	"github.com/curioloop/strucopt/internal/config"
)

// checkFn pairs a function name with the problem that evaluates it.
type checkFn struct {
	name string
	eval func(name string) (float64, error)
	sens func(name string) (*fea.Gradient, error)
}

func checkCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify adjoint thickness derivatives against finite differences",
		RunE: func(cmd *cobra.Command, args []string) error {
			mdl, err := buildModel(cfg, logger)
			if err != nil {
				return err
			}

			fns := []checkFn{
				{fea.FuncMass, staticEval(mdl), staticSens(mdl)},
				{fea.FuncCompliance, staticEval(mdl), staticSens(mdl)},
				{fea.FuncKSFailure, staticEval(mdl), staticSens(mdl)},
			}
			if mdl.buck != nil {
				for i := 0; i < mdl.buck.NumEigs(); i++ {
					name := fmt.Sprintf("%s%d", fea.FuncEigPrefix, i)
					fns = append(fns, checkFn{name, buckEval(mdl), buckSens(mdl)})
				}
			}

			var failed []string
			for _, fn := range fns {
				rel, err := checkDVSens(mdl, fn, cfg.Check.Step)
				if err != nil {
					return errors.Wrap(err, fn.name)
				}
				ok := rel <= cfg.Check.Tolerance
				logger.Info("derivative check",
					zap.String("function", fn.name),
					zap.Float64("maxRelErr", rel),
					zap.Bool("ok", ok))
				if !ok {
					failed = append(failed, fn.name)
				}
			}
			if len(failed) > 0 {
				return errors.Errorf("derivative check failed: %v", failed)
			}
			return nil
		},
	}
}

func staticEval(m *model) func(string) (float64, error) {
	return func(name string) (float64, error) {
		out, err := m.static.EvalFunctions(name)
		if err != nil {
			return 0, err
		}
		return out[name], nil
	}
}

func staticSens(m *model) func(string) (*fea.Gradient, error) {
	return func(name string) (*fea.Gradient, error) {
		out, err := m.static.EvalSens(name)
		if err != nil {
			return nil, err
		}
		return out[name], nil
	}
}

func buckEval(m *model) func(string) (float64, error) {
	return func(name string) (float64, error) {
		out, err := m.buck.EvalFunctions(name)
		if err != nil {
			return 0, err
		}
		return out[name], nil
	}
}

func buckSens(m *model) func(string) (*fea.Gradient, error) {
	return func(name string) (*fea.Gradient, error) {
		out, err := m.buck.EvalSens(name)
		if err != nil {
			return nil, err
		}
		return out[name], nil
	}
}

// checkDVSens compares the adjoint thickness gradient of one function
// with a central difference and returns the largest relative mismatch.
func checkDVSens(m *model, fn checkFn, step float64) (float64, error) {
	g, err := fn.sens(fn.name)
	if err != nil {
		return 0, err
	}

	x0 := m.asm.DesignVars()
	spec := findiff.Spec{
		N:       len(x0),
		M:       1,
		Method:  findiff.Central,
		RelStep: step,
		F: func(x, y []float64) error {
			if err := m.asm.SetDesignVars(x); err != nil {
				return err
			}
			m.static.Invalidate()
			if m.buck != nil {
				m.buck.Invalidate()
			}
			v, err := fn.eval(fn.name)
			if err != nil {
				return err
			}
			y[0] = v
			return nil
		},
	}
	fd := make([]float64, len(x0))
	if err := spec.Gradient(x0, fd); err != nil {
		return 0, err
	}
	if err := m.asm.SetDesignVars(x0); err != nil {
		return 0, err
	}
	m.static.Invalidate()
	if m.buck != nil {
		m.buck.Invalidate()
	}

	scale := 0.0
	for _, v := range fd {
		scale = math.Max(scale, math.Abs(v))
	}
	if scale == 0 {
		scale = 1
	}
	rel := 0.0
	for i := range fd {
		rel = math.Max(rel, math.Abs(g.DV[i]-fd[i])/scale)
	}
	return rel, nil
}
