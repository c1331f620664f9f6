// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sizing

import (
	"math"

	"github.com/curioloop/optimizer/lbfgsb"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/curioloop/strucopt/fea"
)

// ComplianceMin minimizes compliance fᵀu over the thickness design
// variables within their bounds. A positive MassPenalty trades
// stiffness against structural mass through the combined objective
// fᵀu + penalty·mass; with zero penalty the optimum sits on the upper
// thickness bounds.
type ComplianceMin struct {
	Asm    *fea.Assembler
	Static *fea.StaticProblem

	MassPenalty float64
	Corrections int                // BFGS memory, defaults to 8
	Stop        lbfgsb.Termination // zero value selects defaults
	Log         *zap.Logger

	evalErr error
}

func (m *ComplianceMin) eval() lbfgsb.Evaluation {
	return func(x, g []float64) float64 {
		if m.evalErr != nil {
			return math.Inf(1)
		}
		fail := func(err error) float64 {
			if m.evalErr == nil {
				m.evalErr = err
			}
			for i := range g {
				g[i] = 0
			}
			return math.Inf(1)
		}

		if err := m.Asm.SetDesignVars(x); err != nil {
			return fail(err)
		}
		m.Static.Invalidate()
		funcs, err := m.Static.EvalFunctions(fea.FuncCompliance, fea.FuncMass)
		if err != nil {
			return fail(err)
		}
		sens, err := m.Static.EvalSens(fea.FuncCompliance, fea.FuncMass)
		if err != nil {
			return fail(err)
		}
		for i := range g {
			g[i] = sens[fea.FuncCompliance].DV[i] + m.MassPenalty*sens[fea.FuncMass].DV[i]
		}
		return funcs[fea.FuncCompliance] + m.MassPenalty*funcs[fea.FuncMass]
	}
}

// Run performs the compliance minimization from the assembler's
// current design point.
func (m *ComplianceMin) Run() (*Result, error) {
	if m.Asm == nil || m.Static == nil {
		return nil, errors.New("an assembler and a static problem are required")
	}
	log := m.Log
	if log == nil {
		log = zap.NewNop()
	}

	ndv := m.Asm.NDV()
	lb, ub := m.Asm.DesignVarBounds()
	bounds := make([]lbfgsb.Bound, ndv)
	for i := range bounds {
		bounds[i] = lbfgsb.Bound{Lower: lb[i], Upper: ub[i]}
	}

	corr := m.Corrections
	if corr == 0 {
		corr = 8
	}
	stop := m.Stop
	if stop.MaxIterations == 0 {
		stop.MaxIterations = 200
	}
	if stop.EpsAccuracyFactor == 0 {
		stop.EpsAccuracyFactor = 1e7
	}
	if stop.ProjGradTolerance == 0 {
		stop.ProjGradTolerance = 1e-8
	}

	p := lbfgsb.Problem{
		N:      ndv,
		M:      corr,
		Eval:   m.eval(),
		Stop:   stop,
		Bounds: bounds,
	}
	opt, err := p.New(&lbfgsb.Logger{Level: lbfgsb.LogNoop})
	if err != nil {
		return nil, errors.Wrap(err, "compliance minimization setup")
	}

	x := m.Asm.DesignVars()
	m.evalErr = nil
	res := opt.Fit(x, opt.Init())
	if m.evalErr != nil {
		return nil, errors.Wrap(m.evalErr, "compliance minimization")
	}

	if err := m.Asm.SetDesignVars(res.X); err != nil {
		return nil, err
	}
	m.Static.Invalidate()
	log.Info("compliance minimization finished",
		zap.Bool("converged", res.OK),
		zap.Float64("objective", res.F),
		zap.Int("iterations", res.NumIter))
	return &Result{OK: res.OK, F: res.F, X: res.X, Iterations: res.NumIter}, nil
}
