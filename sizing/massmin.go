// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sizing drives thickness optimization of a shell assembler:
// constrained mass minimization via SLSQP and bound-constrained
// compliance minimization via L-BFGS-B.
package sizing

import (
	"math"

	"github.com/curioloop/optimizer/slsqp"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/curioloop/strucopt/constraints"
	"github.com/curioloop/strucopt/fea"
)

// Result is the outcome of one sizing run.
type Result struct {
	OK         bool      // whether the optimizer converged
	F          float64   // final objective value
	X          []float64 // final thickness design vector
	Iterations int
}

// MassMin minimizes structural mass over the thickness design
// variables, subject to a KS failure index below one, an optional
// buckling margin and any registered design constraints.
type MassMin struct {
	Asm    *fea.Assembler
	Static *fea.StaticProblem
	// Buckling adds the constraint λ₀ ≥ BucklingMargin on the first
	// buckling multiplier; nil skips it. The prestress must load the
	// structure in compression so the multiplier is positive.
	Buckling       *fea.BucklingProblem
	BucklingMargin float64 // defaults to 1
	Constraints    []constraints.Constraint

	Stop slsqp.Termination // zero value selects defaults
	Log  *zap.Logger

	evalErr error
	lastX   []float64
}

// applyDesign moves the design into the assembler, invalidating the
// solver state only when the point actually changed.
func (m *MassMin) applyDesign(x []float64) error {
	same := m.lastX != nil
	for i := 0; same && i < len(x); i++ {
		same = x[i] == m.lastX[i]
	}
	if same {
		return nil
	}
	if err := m.Asm.SetDesignVars(x); err != nil {
		return err
	}
	m.Static.Invalidate()
	if m.Buckling != nil {
		m.Buckling.Invalidate()
	}
	if m.lastX == nil {
		m.lastX = make([]float64, len(x))
	}
	copy(m.lastX, x)
	return nil
}

// fail records the first evaluation error and poisons the value so the
// optimizer stops making progress.
func (m *MassMin) fail(err error) float64 {
	if m.evalErr == nil {
		m.evalErr = err
	}
	return math.Inf(1)
}

// evaluation adapts a value and a gradient callback into the SLSQP
// function/derivative pair, sharing design application and error
// poisoning between the two.
func (m *MassMin) evaluation(val func() (float64, error), grad func(g []float64) error) slsqp.Evaluation {
	return slsqp.Evaluation{
		Function: func(x []float64) float64 {
			if m.evalErr != nil {
				return math.Inf(1)
			}
			if err := m.applyDesign(x); err != nil {
				return m.fail(err)
			}
			v, err := val()
			if err != nil {
				return m.fail(err)
			}
			return v
		},
		Derivative: func(x, d []float64) {
			clear(d)
			if m.evalErr != nil {
				return
			}
			if err := m.applyDesign(x); err != nil {
				m.evalErr = err
				return
			}
			if err := grad(d); err != nil {
				if m.evalErr == nil {
					m.evalErr = err
				}
				clear(d)
			}
		},
	}
}

func (m *MassMin) objective() slsqp.Evaluation {
	return m.evaluation(
		func() (float64, error) {
			funcs, err := m.Static.EvalFunctions(fea.FuncMass)
			if err != nil {
				return 0, err
			}
			return funcs[fea.FuncMass], nil
		},
		func(g []float64) error {
			sens, err := m.Static.EvalSens(fea.FuncMass)
			if err != nil {
				return err
			}
			copy(g, sens[fea.FuncMass].DV)
			return nil
		})
}

// problemCons builds 1-ks ≥ 0 and λ₀-margin ≥ 0.
func (m *MassMin) problemCons(margin float64) []slsqp.Evaluation {
	cons := []slsqp.Evaluation{m.evaluation(
		func() (float64, error) {
			funcs, err := m.Static.EvalFunctions(fea.FuncKSFailure)
			if err != nil {
				return 0, err
			}
			return 1 - funcs[fea.FuncKSFailure], nil
		},
		func(g []float64) error {
			sens, err := m.Static.EvalSens(fea.FuncKSFailure)
			if err != nil {
				return err
			}
			for i, v := range sens[fea.FuncKSFailure].DV {
				g[i] = -v
			}
			return nil
		})}
	if m.Buckling == nil {
		return cons
	}
	const eig = fea.FuncEigPrefix + "0"
	return append(cons, m.evaluation(
		func() (float64, error) {
			funcs, err := m.Buckling.EvalFunctions(eig)
			if err != nil {
				return 0, err
			}
			return funcs[eig] - margin, nil
		},
		func(g []float64) error {
			sens, err := m.Buckling.EvalSens(eig)
			if err != nil {
				return err
			}
			copy(g, sens[eig].DV)
			return nil
		}))
}

// designCons turns registered constraints into SLSQP equality and
// inequality closures: a row with equal bounds becomes an equality,
// finite bounds each contribute one inequality.
func (m *MassMin) designCons(ndv int) (eq, neq []slsqp.Evaluation) {
	type row struct {
		c    constraints.Constraint
		idx  int
		off  float64 // value offset
		sign float64 // +1: v-lb ≥ 0, -1: ub-v ≥ 0, 0: equality v-off = 0
	}
	makeEval := func(r row) slsqp.Evaluation {
		sign := r.sign
		if sign == 0 {
			sign = 1
		}
		return m.evaluation(
			func() (float64, error) {
				vals := make([]float64, r.c.Size())
				if err := r.c.Evaluate(vals); err != nil {
					return 0, err
				}
				return sign * (vals[r.idx] - r.off), nil
			},
			func(g []float64) error {
				jac := make([]float64, r.c.Size()*ndv)
				if err := r.c.Gradient(jac); err != nil {
					return err
				}
				for i := 0; i < ndv; i++ {
					g[i] = sign * jac[r.idx*ndv+i]
				}
				return nil
			})
	}

	for _, c := range m.Constraints {
		lb, ub := c.Bounds()
		for i := 0; i < c.Size(); i++ {
			switch {
			case lb[i] == ub[i]:
				eq = append(eq, makeEval(row{c: c, idx: i, off: lb[i]}))
			default:
				if !math.IsInf(lb[i], -1) {
					neq = append(neq, makeEval(row{c: c, idx: i, off: lb[i], sign: 1}))
				}
				if !math.IsInf(ub[i], 1) {
					neq = append(neq, makeEval(row{c: c, idx: i, off: ub[i], sign: -1}))
				}
			}
		}
	}
	return eq, neq
}

// Run performs the mass minimization from the assembler's current
// design point.
func (m *MassMin) Run() (*Result, error) {
	if m.Asm == nil || m.Static == nil {
		return nil, errors.New("an assembler and a static problem are required")
	}
	log := m.Log
	if log == nil {
		log = zap.NewNop()
	}

	ndv := m.Asm.NDV()
	lb, ub := m.Asm.DesignVarBounds()
	bounds := make([]slsqp.Bound, ndv)
	for i := range bounds {
		bounds[i] = slsqp.Bound{Lower: lb[i], Upper: ub[i]}
	}

	stop := m.Stop
	if stop.MaxIterations == 0 {
		stop.MaxIterations = 100
	}
	if stop.Accuracy == 0 {
		stop.Accuracy = 1e-6
	}

	margin := m.BucklingMargin
	if margin == 0 {
		margin = 1
	}
	eq, neq := m.designCons(ndv)
	neq = append(m.problemCons(margin), neq...)

	p := slsqp.Problem{
		N:       ndv,
		Object:  m.objective(),
		EqCons:  eq,
		NeqCons: neq,
		Bounds:  bounds,
		Stop:    stop,
	}
	opt, err := p.New()
	if err != nil {
		return nil, errors.Wrap(err, "mass minimization setup")
	}

	x := m.Asm.DesignVars()
	m.evalErr = nil
	m.lastX = nil
	res := opt.Fit(x, opt.Init())
	if m.evalErr != nil {
		return nil, errors.Wrap(m.evalErr, "mass minimization")
	}

	// leave the assembler at the optimum
	if err := m.applyDesign(res.X); err != nil {
		return nil, err
	}
	log.Info("mass minimization finished",
		zap.Bool("converged", res.OK),
		zap.Float64("mass", res.F),
		zap.Int("iterations", res.NumIter))
	return &Result{OK: res.OK, F: res.F, X: res.X, Iterations: res.NumIter}, nil
}
