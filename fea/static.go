// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fea

import (
	"math"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/strucopt/constitutive"
	"github.com/curioloop/strucopt/shell"
)

// Function names evaluated by the analysis problems.
const (
	FuncMass       = "mass"
	FuncCompliance = "compliance"
	FuncKSFailure  = "ks_vmfailure"
	// FuncEigPrefix names buckling eigenvalues: eigsb_0, eigsb_1, ...
	FuncEigPrefix = "eigsb_"
)

// Gradient holds the total derivative of one function with respect to the
// three input families of a structural problem.
type Gradient struct {
	DV     []float64 // thickness design variables
	Coords []float64 // node coordinates, xyz per node (z entries zero)
	Load   []float64 // applied load vector, 6 per node
}

// coordStep is the central difference step of semi-analytic coordinate
// sensitivities, applied per element corner coordinate.
const coordStep = 1e-6

// StaticProblem is a linear static analysis Ku = f over an assembled mesh.
type StaticProblem struct {
	name string
	asm  *Assembler
	opts *Options

	load []float64 // full length
	u    []float64 // full length, valid after Solve

	kRed   *mat.SymDense
	chol   mat.Cholesky
	solved bool
}

// NewStaticProblem creates a static problem. A nil opts takes the defaults.
func (a *Assembler) NewStaticProblem(name string, opts *Options) *StaticProblem {
	if opts == nil {
		opts = DefaultOptions()
	} else {
		opts = opts.clone()
	}
	return &StaticProblem{
		name: name,
		asm:  a,
		opts: opts,
		load: make([]float64, a.NumDOF()),
	}
}

// Name returns the problem name.
func (p *StaticProblem) Name() string { return p.name }

// SetOption assigns one named analysis option.
func (p *StaticProblem) SetOption(name string, value any) error {
	return p.opts.Set(name, value)
}

// SetLoad replaces the applied load vector (6 entries per node).
func (p *StaticProblem) SetLoad(f []float64) error {
	if len(f) != p.asm.NumDOF() {
		return errors.Errorf("load vector has %d entries, want %d", len(f), p.asm.NumDOF())
	}
	copy(p.load, f)
	p.solved = false
	return nil
}

// Load returns a copy of the applied load vector.
func (p *StaticProblem) Load() []float64 {
	f := make([]float64, len(p.load))
	copy(f, p.load)
	return f
}

// AddLoad accumulates into the applied load vector.
func (p *StaticProblem) AddLoad(f []float64) error {
	if len(f) != p.asm.NumDOF() {
		return errors.Errorf("load vector has %d entries, want %d", len(f), p.asm.NumDOF())
	}
	for i, v := range f {
		p.load[i] += v
	}
	p.solved = false
	return nil
}

// Invalidate marks the current factorization and solution stale, forcing the
// next Solve to reassemble. Call it after design or coordinate updates.
func (p *StaticProblem) Invalidate() { p.solved = false }

// factorSolve factorizes the reduced stiffness and solves K x = b with
// iterative refinement against the configured residual targets.
func factorSolve(opts *Options, chol *mat.Cholesky, k *mat.SymDense, b []float64) ([]float64, error) {
	if ok := chol.Factorize(k); !ok {
		return nil, errors.New("stiffness is not positive definite (check boundary conditions)")
	}
	return refineSolve(opts, chol, k, b)
}

// refineSolve solves with an existing factorization, refining the residual.
func refineSolve(opts *Options, chol *mat.Cholesky, k *mat.SymDense, b []float64) ([]float64, error) {
	n := len(b)
	bv := mat.NewVecDense(n, b)
	x := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(x, bv); err != nil {
		return nil, errors.Wrap(err, "triangular solve")
	}

	bnorm := mat.Norm(bv, 2)
	tol := math.Max(opts.L2Convergence, opts.L2ConvergenceRel*bnorm)

	var r, dx mat.VecDense
	for it := 0; it < opts.MaxRefineIters; it++ {
		r.MulVec(k, x)
		r.SubVec(bv, &r)
		if mat.Norm(&r, 2) <= tol {
			break
		}
		if err := chol.SolveVecTo(&dx, &r); err != nil {
			return nil, errors.Wrap(err, "refinement solve")
		}
		x.AddVec(x, &dx)
	}

	out := make([]float64, n)
	copy(out, x.RawVector().Data)
	return out, nil
}

// Solve assembles and solves the static system.
func (p *StaticProblem) Solve() error {
	a := p.asm
	p.kRed = a.AssembleK()
	ur, err := factorSolve(p.opts, &p.chol, p.kRed, a.Reduce(p.load))
	if err != nil {
		return errors.Wrapf(err, "static problem %s", p.name)
	}
	p.u = a.Expand(ur)
	p.solved = true
	a.log.Debug("static solve done", zap.String("problem", p.name), zap.Int("ndof", a.NumFree()))
	return nil
}

// Displacement returns the full-length solution vector.
func (p *StaticProblem) Displacement() []float64 { return p.u }

// EvalFunctions evaluates the named functions of the last solution.
func (p *StaticProblem) EvalFunctions(names ...string) (map[string]float64, error) {
	if !p.solved {
		if err := p.Solve(); err != nil {
			return nil, err
		}
	}
	out := make(map[string]float64, len(names))
	for _, name := range names {
		switch name {
		case FuncMass:
			out[name] = p.asm.totalMass()
		case FuncCompliance:
			out[name] = dot(p.load, p.u)
		case FuncKSFailure:
			ks, _, _ := p.ksFailure()
			out[name] = ks
		default:
			return nil, errors.Errorf("unknown function %q", name)
		}
	}
	return out, nil
}

// EvalSens evaluates adjoint total derivatives of the named functions.
func (p *StaticProblem) EvalSens(names ...string) (map[string]*Gradient, error) {
	if !p.solved {
		if err := p.Solve(); err != nil {
			return nil, err
		}
	}
	out := make(map[string]*Gradient, len(names))
	for _, name := range names {
		var g *Gradient
		var err error
		switch name {
		case FuncMass:
			g = p.asm.massSens()
		case FuncCompliance:
			g, err = p.complianceSens()
		case FuncKSFailure:
			g, err = p.ksSens()
		default:
			err = errors.Errorf("unknown function %q", name)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "sensitivity of %s", name)
		}
		out[name] = g
	}
	return out, nil
}

func (a *Assembler) newGradient() *Gradient {
	return &Gradient{
		DV:     make([]float64, a.NDV()),
		Coords: make([]float64, 3*a.NumNodes()),
		Load:   make([]float64, a.NumDOF()),
	}
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i, v := range a {
		s += v * b[i]
	}
	return s
}

// totalMass integrates ρt over the mesh.
func (a *Assembler) totalMass() float64 {
	m := 0.0
	for e, el := range a.elems {
		m += el.Con.ArealMass() * el.Area(a.msh.ElemCoords(e))
	}
	return m
}

// massSens is fully explicit: analytic in the thickness, element-level
// central differences in the corner coordinates.
func (a *Assembler) massSens() *Gradient {
	g := a.newGradient()
	for e, el := range a.elems {
		coords := a.msh.ElemCoords(e)
		if dv := el.Con.DVIndex(); dv >= 0 {
			g.DV[dv] += el.Con.ArealMassDeriv() * el.Area(coords)
		}
		am := el.Con.ArealMass()
		a.elemCoordFD(e, g.Coords, func(c [4][2]float64) float64 {
			return am * el.Area(c)
		})
	}
	return g
}

// elemCoordFD central-differences a per-element scalar over the 8 corner
// coordinates of element e, accumulating into the global coordinate
// gradient (xyz per node, z untouched).
func (a *Assembler) elemCoordFD(e int, out []float64, f func(c [4][2]float64) float64) {
	coords := a.msh.ElemCoords(e)
	for i, n := range a.msh.Elems[e] {
		for d := 0; d < 2; d++ {
			h := coordStep * math.Max(1, math.Abs(coords[i][d]))
			c := coords
			c[i][d] = coords[i][d] + h
			fp := f(c)
			c[i][d] = coords[i][d] - h
			fm := f(c)
			out[3*n+d] += (fp - fm) / (2 * h)
		}
	}
}

// adjointSolve solves K ψ = rhs (full length in, full length out).
func (p *StaticProblem) adjointSolve(rhs []float64) ([]float64, error) {
	pr, err := refineSolve(p.opts, &p.chol, p.kRed, p.asm.Reduce(rhs))
	if err != nil {
		return nil, errors.Wrap(err, "adjoint solve")
	}
	return p.asm.Expand(pr), nil
}

// addDKdtTerm accumulates sign·ψᵀ(∂K/∂t)u over the design variables.
func (a *Assembler) addDKdtTerm(g *Gradient, psi, u []float64, sign float64) {
	var k1, k2 [shell.ElemDOF * shell.ElemDOF]float64
	for e, el := range a.elems {
		dv := el.Con.DVIndex()
		if dv < 0 {
			continue
		}
		us := el.Con.UnitStiffness()
		t := el.Con.Thickness()
		el.StiffnessParts(a.msh.ElemCoords(e), us, &k1, &k2)
		pe := a.gather(e, psi)
		ue := a.gather(e, u)
		s := 0.0
		for i := 0; i < shell.ElemDOF; i++ {
			if pe[i] == 0 {
				continue
			}
			row := 0.0
			for j := 0; j < shell.ElemDOF; j++ {
				row += (k1[i*shell.ElemDOF+j] + 3*t*t*k2[i*shell.ElemDOF+j]) * ue[j]
			}
			s += pe[i] * row
		}
		g.DV[dv] += sign * s
	}
}

// elemStiffAction computes ψeᵀKe(c)ue at perturbed corner coordinates.
func elemStiffAction(el *shell.Quad4, c [4][2]float64, pe, ue *[shell.ElemDOF]float64) float64 {
	var ke [shell.ElemDOF * shell.ElemDOF]float64
	el.Stiffness(c, &ke)
	s := 0.0
	for i := 0; i < shell.ElemDOF; i++ {
		if pe[i] == 0 {
			continue
		}
		row := 0.0
		for j := 0; j < shell.ElemDOF; j++ {
			row += ke[i*shell.ElemDOF+j] * ue[j]
		}
		s += pe[i] * row
	}
	return s
}

// complianceSens differentiates fᵀu. The adjoint equals the solution
// itself, so the load derivative is 2u.
func (p *StaticProblem) complianceSens() (*Gradient, error) {
	a := p.asm
	g := a.newGradient()
	psi := p.u

	a.addDKdtTerm(g, psi, p.u, -1)
	for e, el := range a.elems {
		pe := a.gather(e, psi)
		ue := a.gather(e, p.u)
		a.elemCoordFD(e, g.Coords, func(c [4][2]float64) float64 {
			return -elemStiffAction(el, c, &pe, &ue)
		})
	}
	for i, v := range p.u {
		g.Load[i] = 2 * v
	}
	return g, nil
}

// ksFailure aggregates the per-element surface failure indices with the KS
// functional, returning the aggregate, the softmax weights and the indices.
// Indices come in element order, two per element (top then bottom surface).
func (p *StaticProblem) ksFailure() (ks float64, weights, fail []float64) {
	a := p.asm
	rho := p.opts.KSWeight

	fail = make([]float64, 0, 2*len(a.elems))
	for e, el := range a.elems {
		ue := a.gather(e, p.u)
		eps, kap := el.CentroidStrain(a.msh.ElemCoords(e), ue[:])
		t := el.Con.Thickness()
		ys := el.Con.Material().YS
		top := constitutive.VonMises(el.Con.Stress(eps, kap, t/2)) / ys
		bot := constitutive.VonMises(el.Con.Stress(eps, kap, -t/2)) / ys
		fail = append(fail, top, bot)
	}

	maxf := math.Inf(-1)
	for _, f := range fail {
		maxf = math.Max(maxf, f)
	}
	sum := 0.0
	weights = make([]float64, len(fail))
	for i, f := range fail {
		weights[i] = math.Exp(rho * (f - maxf))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	ks = maxf + math.Log(sum)/rho
	return
}

// ksSurface recovers one surface failure index and its gradient with
// respect to the element displacement.
func ksSurface(el *shell.Quad4, c [4][2]float64, ue *[shell.ElemDOF]float64, z float64) (f float64, df [shell.ElemDOF]float64) {
	bm, bb := el.CentroidB(c)
	var eps, kap [3]float64
	for j := 0; j < shell.ElemDOF; j++ {
		u := ue[j]
		if u == 0 {
			continue
		}
		for r := 0; r < 3; r++ {
			eps[r] += bm[r][j] * u
			kap[r] += bb[r][j] * u
		}
	}
	ys := el.Con.Material().YS
	sig := el.Con.Stress(eps, kap, z)
	f = constitutive.VonMises(sig) / ys
	dvm := constitutive.VonMisesDeriv(sig)
	for j := 0; j < shell.ElemDOF; j++ {
		q := el.Con.QMul([3]float64{
			bm[0][j] + z*bb[0][j],
			bm[1][j] + z*bb[1][j],
			bm[2][j] + z*bb[2][j],
		})
		df[j] = (dvm[0]*q[0] + dvm[1]*q[1] + dvm[2]*q[2]) / ys
	}
	return
}

// ksSens differentiates the KS failure aggregate with the adjoint method.
func (p *StaticProblem) ksSens() (*Gradient, error) {
	a := p.asm
	g := a.newGradient()
	_, weights, _ := p.ksFailure()

	// ∂KS/∂u and the explicit thickness term
	dgdu := make([]float64, a.NumDOF())
	for e, el := range a.elems {
		coords := a.msh.ElemCoords(e)
		ue := a.gather(e, p.u)
		t := el.Con.Thickness()
		ys := el.Con.Material().YS
		for s, z := range [2]float64{t / 2, -t / 2} {
			w := weights[2*e+s]
			if w == 0 {
				continue
			}
			_, df := ksSurface(el, coords, &ue, z)
			for i := range df {
				df[i] *= w
			}
			a.scatterAdd(e, &df, dgdu)

			if dv := el.Con.DVIndex(); dv >= 0 {
				// explicit: σ depends on t through the surface offset z = ±t/2
				eps, kap := el.CentroidStrain(coords, ue[:])
				sig := el.Con.Stress(eps, kap, z)
				dvm := constitutive.VonMisesDeriv(sig)
				qk := el.Con.QMul(kap)
				sgn := 0.5
				if s == 1 {
					sgn = -0.5
				}
				g.DV[dv] += w * sgn * (dvm[0]*qk[0] + dvm[1]*qk[1] + dvm[2]*qk[2]) / ys
			}
		}
	}

	psi, err := p.adjointSolve(dgdu)
	if err != nil {
		return nil, err
	}

	a.addDKdtTerm(g, psi, p.u, -1)
	for e, el := range a.elems {
		pe := a.gather(e, psi)
		ue := a.gather(e, p.u)
		t := el.Con.Thickness()
		wTop, wBot := weights[2*e], weights[2*e+1]
		a.elemCoordFD(e, g.Coords, func(c [4][2]float64) float64 {
			ft, _ := ksSurface(el, c, &ue, t/2)
			fb, _ := ksSurface(el, c, &ue, -t/2)
			return wTop*ft + wBot*fb - elemStiffAction(el, c, &pe, &ue)
		})
	}
	copy(g.Load, psi)
	return g, nil
}
