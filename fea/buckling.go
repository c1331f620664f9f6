// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fea

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/strucopt/shell"
)

// BucklingProblem is a classical linearized buckling analysis
//
//	(K + λG(u₀))φ = 0,  K u₀ = f
//
// on the prestress state of an applied load. Eigenvalues λ are load
// multipliers; the problem reports the numEigs values nearest the shift σ,
// in ascending order, named eigsb_0 .. eigsb_{numEigs-1}.
type BucklingProblem struct {
	name    string
	asm     *Assembler
	opts    *Options
	sigma   float64
	numEigs int

	load []float64
	u    []float64 // prestress solution, full length

	kRed, gRed *mat.SymDense
	chol       mat.Cholesky

	eigs   []float64
	modes  [][]float64 // full length, unit 2-norm
	solved bool
}

// NewBucklingProblem creates a buckling problem with the given shift and
// requested eigenvalue count. A nil opts takes the defaults.
func (a *Assembler) NewBucklingProblem(name string, sigma float64, numEigs int, opts *Options) (*BucklingProblem, error) {
	if numEigs < 1 {
		return nil, errors.New("at least one eigenvalue must be requested")
	}
	if opts == nil {
		opts = DefaultOptions()
	} else {
		opts = opts.clone()
	}
	return &BucklingProblem{
		name:    name,
		asm:     a,
		opts:    opts,
		sigma:   sigma,
		numEigs: numEigs,
		load:    make([]float64, a.NumDOF()),
	}, nil
}

// Name returns the problem name.
func (p *BucklingProblem) Name() string { return p.name }

// SetOption assigns one named analysis option.
func (p *BucklingProblem) SetOption(name string, value any) error {
	return p.opts.Set(name, value)
}

// SetLoad replaces the applied load vector (6 entries per node).
func (p *BucklingProblem) SetLoad(f []float64) error {
	if len(f) != p.asm.NumDOF() {
		return errors.Errorf("load vector has %d entries, want %d", len(f), p.asm.NumDOF())
	}
	copy(p.load, f)
	p.solved = false
	return nil
}

// Invalidate forces the next Solve to reassemble.
func (p *BucklingProblem) Invalidate() { p.solved = false }

// Solve runs the prestress solve and the eigen-analysis.
func (p *BucklingProblem) Solve() error {
	a := p.asm

	p.kRed = a.AssembleK()
	ur, err := factorSolve(p.opts, &p.chol, p.kRed, a.Reduce(p.load))
	if err != nil {
		return errors.Wrapf(err, "buckling problem %s", p.name)
	}
	p.u = a.Expand(ur)
	p.gRed = a.AssembleG(p.u)

	// reduce to the standard problem K⁻¹G φ = μφ with λ = -1/μ
	n := a.NumFree()
	var b mat.Dense
	if err := p.chol.SolveTo(&b, p.gRed); err != nil {
		return errors.Wrapf(err, "buckling problem %s: reduction", p.name)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(&b, mat.EigenRight); !ok {
		return errors.Errorf("buckling problem %s: eigen decomposition failed", p.name)
	}
	vals := eig.Values(nil)
	var vecs mat.CDense
	eig.VectorsTo(&vecs)

	maxMu := 0.0
	for _, v := range vals {
		maxMu = math.Max(maxMu, math.Abs(real(v)))
	}
	if maxMu == 0 {
		return errors.Errorf("buckling problem %s: geometric stiffness vanishes (no prestress?)", p.name)
	}

	type cand struct {
		lambda float64
		col    int
	}
	var cands []cand
	for k, v := range vals {
		re, im := real(v), imag(v)
		if math.Abs(im) > 1e-8*(1+math.Abs(re)) {
			continue
		}
		if math.Abs(re) < 1e-10*maxMu {
			// mode untouched by the geometric stiffness
			continue
		}
		cands = append(cands, cand{lambda: -1 / re, col: k})
	}
	if len(cands) < p.numEigs {
		return errors.Errorf("buckling problem %s: only %d finite eigenvalues, want %d",
			p.name, len(cands), p.numEigs)
	}

	sort.Slice(cands, func(i, j int) bool {
		return math.Abs(cands[i].lambda-p.sigma) < math.Abs(cands[j].lambda-p.sigma)
	})
	sel := cands[:p.numEigs]
	sort.Slice(sel, func(i, j int) bool { return sel[i].lambda < sel[j].lambda })

	p.eigs = p.eigs[:0]
	p.modes = p.modes[:0]
	for _, c := range sel {
		p.eigs = append(p.eigs, c.lambda)
		phi := make([]float64, n)
		for i := range phi {
			phi[i] = real(vecs.At(i, c.col))
		}
		normalizeMode(phi)
		p.modes = append(p.modes, a.Expand(phi))
	}
	p.solved = true

	a.log.Debug("buckling solve done",
		zap.String("problem", p.name),
		zap.Float64("sigma", p.sigma),
		zap.Float64s("eigs", p.eigs))
	return nil
}

// normalizeMode scales to unit 2-norm with the largest entry positive.
func normalizeMode(phi []float64) {
	norm, big := 0.0, 0.0
	sign := 1.0
	for _, v := range phi {
		norm += v * v
		if a := math.Abs(v); a > big {
			big = a
			if v < 0 {
				sign = -1
			} else {
				sign = 1
			}
		}
	}
	s := sign / math.Sqrt(norm)
	for i := range phi {
		phi[i] *= s
	}
}

// NumEigs returns the requested eigenvalue count.
func (p *BucklingProblem) NumEigs() int { return p.numEigs }

// Eigenvalues returns the selected eigenvalues, ascending.
func (p *BucklingProblem) Eigenvalues() []float64 { return p.eigs }

// Mode returns the full-length buckling mode of eigenvalue i.
func (p *BucklingProblem) Mode(i int) []float64 { return p.modes[i] }

// eigIndex parses an eigsb_i function name.
func (p *BucklingProblem) eigIndex(name string) (int, error) {
	if !strings.HasPrefix(name, FuncEigPrefix) {
		return 0, errors.Errorf("unknown function %q", name)
	}
	i, err := strconv.Atoi(name[len(FuncEigPrefix):])
	if err != nil || i < 0 || i >= p.numEigs {
		return 0, errors.Errorf("function %q is out of the eigenvalue range 0..%d", name, p.numEigs-1)
	}
	return i, nil
}

// EvalFunctions evaluates eigsb_i (and mass) functions.
func (p *BucklingProblem) EvalFunctions(names ...string) (map[string]float64, error) {
	if !p.solved {
		if err := p.Solve(); err != nil {
			return nil, err
		}
	}
	out := make(map[string]float64, len(names))
	for _, name := range names {
		if name == FuncMass {
			out[name] = p.asm.totalMass()
			continue
		}
		i, err := p.eigIndex(name)
		if err != nil {
			return nil, err
		}
		out[name] = p.eigs[i]
	}
	return out, nil
}

// EvalSens evaluates adjoint total derivatives of eigsb_i (and mass).
func (p *BucklingProblem) EvalSens(names ...string) (map[string]*Gradient, error) {
	if !p.solved {
		if err := p.Solve(); err != nil {
			return nil, err
		}
	}
	out := make(map[string]*Gradient, len(names))
	for _, name := range names {
		if name == FuncMass {
			out[name] = p.asm.massSens()
			continue
		}
		i, err := p.eigIndex(name)
		if err != nil {
			return nil, err
		}
		g, err := p.eigSens(i)
		if err != nil {
			return nil, errors.Wrapf(err, "sensitivity of %s", name)
		}
		out[name] = g
	}
	return out, nil
}

// eigSens differentiates eigenvalue i. With m = φᵀGφ and s(p,u₀) = φᵀG φ,
//
//	dλ/dp = -(φᵀ(∂K/∂p)φ + λ·∂s/∂p)/m - ψᵀ(∂f/∂p - (∂K/∂p)u₀)
//
// where the prestress adjoint ψ solves Kψ = (λ/m)·∂s/∂u₀.
func (p *BucklingProblem) eigSens(i int) (*Gradient, error) {
	a := p.asm
	lam := p.eigs[i]
	phi := p.modes[i]
	phiR := a.Reduce(phi)

	// m = φᵀGφ
	n := a.NumFree()
	gq := mat.NewVecDense(n, nil)
	gq.MulVec(p.gRed, mat.NewVecDense(n, phiR))
	m := dot(phiR, gq.RawVector().Data)
	if math.Abs(m) < 1e-300 {
		return nil, errors.New("mode has no geometric work, eigenvalue derivative undefined")
	}

	// ∂s/∂u₀ assembled from the elements
	su := make([]float64, a.NumDOF())
	for e, el := range a.elems {
		pe := a.gather(e, phi)
		var du [shell.ElemDOF]float64
		el.GeoWorkDeriv(a.msh.ElemCoords(e), pe[:], &du)
		a.scatterAdd(e, &du, su)
	}

	rhs := make([]float64, a.NumDOF())
	for k, v := range su {
		rhs[k] = lam / m * v
	}
	psiR, err := refineSolve(p.opts, &p.chol, p.kRed, a.Reduce(rhs))
	if err != nil {
		return nil, errors.Wrap(err, "prestress adjoint")
	}
	psi := a.Expand(psiR)

	g := a.newGradient()

	// thickness: analytic ∂K/∂t, G scales linearly with t
	var k1, k2 [shell.ElemDOF * shell.ElemDOF]float64
	var ge [shell.ElemDOF * shell.ElemDOF]float64
	for e, el := range a.elems {
		dv := el.Con.DVIndex()
		if dv < 0 {
			continue
		}
		coords := a.msh.ElemCoords(e)
		us := el.Con.UnitStiffness()
		t := el.Con.Thickness()
		el.StiffnessParts(coords, us, &k1, &k2)

		pe := a.gather(e, phi)
		ue := a.gather(e, p.u)
		se := a.gather(e, psi)

		var t1, t3 float64
		for r := 0; r < shell.ElemDOF; r++ {
			var rowPhi, rowU float64
			for c := 0; c < shell.ElemDOF; c++ {
				dk := k1[r*shell.ElemDOF+c] + 3*t*t*k2[r*shell.ElemDOF+c]
				rowPhi += dk * pe[c]
				rowU += dk * ue[c]
			}
			t1 += pe[r] * rowPhi
			t3 += se[r] * rowU
		}

		el.GeometricStiffness(coords, ue[:], &ge)
		sE := 0.0
		for r := 0; r < shell.ElemDOF; r++ {
			if pe[r] == 0 {
				continue
			}
			row := 0.0
			for c := 0; c < shell.ElemDOF; c++ {
				row += ge[r*shell.ElemDOF+c] * pe[c]
			}
			sE += pe[r] * row
		}

		g.DV[dv] += -(t1+lam*sE/t)/m + t3
	}

	// coordinates: element-level central differences
	for e, el := range a.elems {
		pe := a.gather(e, phi)
		ue := a.gather(e, p.u)
		se := a.gather(e, psi)
		a.elemCoordFD(e, g.Coords, func(c [4][2]float64) float64 {
			kPhi := elemStiffAction(el, c, &pe, &pe)
			kU := elemStiffAction(el, c, &se, &ue)
			var gec [shell.ElemDOF * shell.ElemDOF]float64
			el.GeometricStiffness(c, ue[:], &gec)
			sE := 0.0
			for r := 0; r < shell.ElemDOF; r++ {
				if pe[r] == 0 {
					continue
				}
				row := 0.0
				for cc := 0; cc < shell.ElemDOF; cc++ {
					row += gec[r*shell.ElemDOF+cc] * pe[cc]
				}
				sE += pe[r] * row
			}
			return -(kPhi+lam*sE)/m + kU
		})
	}

	// load: only through the prestress path
	for k := range g.Load {
		g.Load[k] = -psi[k]
	}
	return g, nil
}
