// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mdo

import (
	"math"
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/strucopt/findiff"
)

type compInst struct {
	path string
	comp Component
}

// Problem is a flattened, runnable component graph.
type Problem struct {
	comps []compInst
	order []int // topological evaluation order

	srcOf   map[string]string // absolute input → absolute output
	rootOut map[string]string // root-visible name → absolute output
	size    map[string]int    // absolute output → vector size
	owner   map[string]int    // absolute output → comps index
	vals    map[string][]float64

	log *zap.Logger
}

// NewProblem flattens the model tree, resolves every connection and
// fixes the evaluation order. A nil logger disables logging.
func NewProblem(root *Group, log *zap.Logger) (*Problem, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Problem{
		srcOf: make(map[string]string),
		size:  make(map[string]int),
		owner: make(map[string]int),
		vals:  make(map[string][]float64),
		log:   log,
	}

	bnd, err := root.flatten("", &p.comps, p.srcOf)
	if err != nil {
		return nil, err
	}
	p.rootOut = bnd.out

	for ci, c := range p.comps {
		for _, v := range c.comp.Outputs() {
			abs := c.path + "." + v.Name
			p.size[abs] = v.Size
			p.owner[abs] = ci
			p.vals[abs] = make([]float64, v.Size)
		}
	}
	for _, c := range p.comps {
		for _, v := range c.comp.Inputs() {
			abs := c.path + "." + v.Name
			src, ok := p.srcOf[abs]
			if !ok {
				return nil, errors.Errorf("input %q is not connected", abs)
			}
			if p.size[src] != v.Size {
				return nil, errors.Errorf("input %q has size %d but source %q has size %d",
					abs, v.Size, src, p.size[src])
			}
		}
	}

	if err := p.sortComps(); err != nil {
		return nil, err
	}
	log.Debug("problem ready",
		zap.Int("components", len(p.comps)),
		zap.Int("connections", len(p.srcOf)))
	return p, nil
}

// sortComps orders the components so every input's producer runs first.
func (p *Problem) sortComps() error {
	n := len(p.comps)
	deg := make([]int, n)
	succ := make([][]int, n)
	for ci, c := range p.comps {
		seen := make(map[int]bool)
		for _, v := range c.comp.Inputs() {
			src := p.srcOf[c.path+"."+v.Name]
			pi := p.owner[src]
			if pi != ci && !seen[pi] {
				seen[pi] = true
				succ[pi] = append(succ[pi], ci)
				deg[ci]++
			}
		}
	}
	var queue []int
	for ci, d := range deg {
		if d == 0 {
			queue = append(queue, ci)
		}
	}
	p.order = p.order[:0]
	for len(queue) > 0 {
		ci := queue[0]
		queue = queue[1:]
		p.order = append(p.order, ci)
		for _, s := range succ[ci] {
			if deg[s]--; deg[s] == 0 {
				queue = append(queue, s)
			}
		}
	}
	if len(p.order) != n {
		return errors.New("the component graph has a cycle")
	}
	return nil
}

// resolve maps a root-visible variable name to its absolute output.
func (p *Problem) resolve(name string) (string, error) {
	if abs, ok := p.rootOut[name]; ok {
		return abs, nil
	}
	// accept absolute input names by following their connection
	if src, ok := p.srcOf[name]; ok {
		return src, nil
	}
	return "", errors.Errorf("unknown variable %q", name)
}

// SetVal overrides the value of an independent output.
func (p *Problem) SetVal(name string, v []float64) error {
	abs, err := p.resolve(name)
	if err != nil {
		return err
	}
	c := p.comps[p.owner[abs]]
	s, ok := c.comp.(Settable)
	if !ok {
		return errors.Errorf("variable %q is computed by %q and cannot be set", name, c.path)
	}
	local := strings.TrimPrefix(abs, c.path+".")
	return s.SetVal(local, v)
}

// GetVal returns a copy of a variable's current value.
func (p *Problem) GetVal(name string) ([]float64, error) {
	abs, err := p.resolve(name)
	if err != nil {
		return nil, err
	}
	v := make([]float64, len(p.vals[abs]))
	copy(v, p.vals[abs])
	return v, nil
}

// gatherIn aliases the current source values of a component's inputs.
func (p *Problem) gatherIn(ci int) map[string][]float64 {
	c := p.comps[ci]
	in := make(map[string][]float64, len(c.comp.Inputs()))
	for _, v := range c.comp.Inputs() {
		in[v.Name] = p.vals[p.srcOf[c.path+"."+v.Name]]
	}
	return in
}

// RunModel evaluates every component in topological order.
func (p *Problem) RunModel() error {
	for _, ci := range p.order {
		c := p.comps[ci]
		out := make(map[string][]float64, len(c.comp.Outputs()))
		for _, v := range c.comp.Outputs() {
			out[v.Name] = p.vals[c.path+"."+v.Name]
		}
		if err := c.comp.Compute(p.gatherIn(ci), out); err != nil {
			return errors.Wrapf(err, "component %q", c.path)
		}
	}
	return nil
}

// compPartials evaluates one component's partial blocks, analytically
// when the component provides them and by central differences otherwise.
func (p *Problem) compPartials(ci int, step float64) (Jacobians, error) {
	c := p.comps[ci]
	in := p.gatherIn(ci)

	if pp, ok := c.comp.(PartialsProvider); ok {
		jac := make(Jacobians)
		if err := pp.ComputePartials(in, jac); err != nil {
			return nil, errors.Wrapf(err, "partials of %q", c.path)
		}
		return jac, nil
	}
	return p.fdPartials(ci, step)
}

// fdPartials approximates one component's partial blocks.
func (p *Problem) fdPartials(ci int, step float64) (Jacobians, error) {
	c := p.comps[ci]
	outs := c.comp.Outputs()
	mTot := 0
	for _, o := range outs {
		mTot += o.Size
	}

	// working copies so differencing never disturbs the model state
	in := make(map[string][]float64)
	for name, v := range p.gatherIn(ci) {
		cp := make([]float64, len(v))
		copy(cp, v)
		in[name] = cp
	}
	out := make(map[string][]float64, len(outs))
	for _, o := range outs {
		out[o.Name] = make([]float64, o.Size)
	}

	jac := make(Jacobians)
	for _, iv := range c.comp.Inputs() {
		spec := findiff.Spec{
			N: iv.Size, M: mTot, Method: findiff.Central, RelStep: step,
			F: func(x, y []float64) error {
				copy(in[iv.Name], x)
				if err := c.comp.Compute(in, out); err != nil {
					return err
				}
				k := 0
				for _, o := range outs {
					k += copy(y[k:], out[o.Name])
				}
				return nil
			},
		}
		full := make([]float64, mTot*iv.Size)
		x0 := make([]float64, iv.Size)
		copy(x0, in[iv.Name])
		if err := spec.Jacobian(x0, full); err != nil {
			return nil, errors.Wrapf(err, "differencing %q of %q", iv.Name, c.path)
		}
		// the closure copies the probe point into the working map;
		// put the nominal values back before the next input
		copy(in[iv.Name], x0)
		row := 0
		for _, o := range outs {
			jac[[2]string{o.Name, iv.Name}] = full[row*iv.Size : (row+o.Size)*iv.Size]
			row += o.Size
		}
	}
	return jac, nil
}

// ComputeTotals propagates derivatives along the evaluation order,
// returning one row-major ofSize×wrtSize block per {of, wrt} pair.
// The model must have been run at the current point.
func (p *Problem) ComputeTotals(of, wrt []string) (map[[2]string][]float64, error) {
	jacs := make(map[int]Jacobians, len(p.comps))
	for _, ci := range p.order {
		j, err := p.compPartials(ci, 0)
		if err != nil {
			return nil, err
		}
		jacs[ci] = j
	}

	totals := make(map[[2]string][]float64)
	for _, w := range wrt {
		wAbs, err := p.resolve(w)
		if err != nil {
			return nil, err
		}
		nw := p.size[wAbs]

		// seed the source, then chain forward
		acc := map[string]*mat.Dense{wAbs: identity(nw)}
		for _, ci := range p.order {
			c := p.comps[ci]
			for _, o := range c.comp.Outputs() {
				oAbs := c.path + "." + o.Name
				if oAbs == wAbs {
					continue
				}
				var sum *mat.Dense
				for _, iv := range c.comp.Inputs() {
					d, ok := acc[p.srcOf[c.path+"."+iv.Name]]
					if !ok {
						continue
					}
					blk, ok := jacs[ci][[2]string{o.Name, iv.Name}]
					if !ok {
						continue
					}
					term := mat.NewDense(o.Size, nw, nil)
					term.Mul(mat.NewDense(o.Size, iv.Size, blk), d)
					if sum == nil {
						sum = term
					} else {
						sum.Add(sum, term)
					}
				}
				if sum != nil {
					acc[oAbs] = sum
				}
			}
		}

		for _, f := range of {
			fAbs, err := p.resolve(f)
			if err != nil {
				return nil, err
			}
			nf := p.size[fAbs]
			blk := make([]float64, nf*nw)
			if d, ok := acc[fAbs]; ok {
				for r := 0; r < nf; r++ {
					copy(blk[r*nw:], d.RawRowView(r))
				}
			}
			totals[[2]string{f, w}] = blk
		}
	}
	return totals, nil
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// Check reports the difference between an analytic and a reference
// derivative block for one {output, input} pair.
type Check struct {
	Component string // empty for total derivative checks
	Of, Wrt   string
	MaxAbsErr float64
	MaxRelErr float64
}

func compareBlocks(an, fd []float64) (maxAbs, maxRel float64) {
	den := 0.0
	for _, v := range fd {
		den = math.Max(den, math.Abs(v))
	}
	for i := range an {
		e := math.Abs(an[i] - fd[i])
		maxAbs = math.Max(maxAbs, e)
	}
	if den > 0 {
		maxRel = maxAbs / den
	} else if maxAbs > 0 {
		maxRel = math.Inf(1)
	}
	return
}

// CheckPartials compares every analytic partial block against central
// differences with the given relative step.
func (p *Problem) CheckPartials(step float64) ([]Check, error) {
	var checks []Check
	for _, ci := range p.order {
		c := p.comps[ci]
		pp, ok := c.comp.(PartialsProvider)
		if !ok {
			continue
		}
		an := make(Jacobians)
		if err := pp.ComputePartials(p.gatherIn(ci), an); err != nil {
			return nil, errors.Wrapf(err, "partials of %q", c.path)
		}
		fd, err := p.fdPartials(ci, step)
		if err != nil {
			return nil, err
		}
		for _, o := range c.comp.Outputs() {
			for _, iv := range c.comp.Inputs() {
				key := [2]string{o.Name, iv.Name}
				a, f := an[key], fd[key]
				if a == nil {
					a = make([]float64, o.Size*iv.Size)
				}
				abs, rel := compareBlocks(a, f)
				checks = append(checks, Check{
					Component: c.path, Of: o.Name, Wrt: iv.Name,
					MaxAbsErr: abs, MaxRelErr: rel,
				})
				p.log.Debug("partial check",
					zap.String("component", c.path),
					zap.String("of", o.Name), zap.String("wrt", iv.Name),
					zap.Float64("absErr", abs), zap.Float64("relErr", rel))
			}
		}
	}
	return checks, nil
}

// CheckTotals compares chain-rule totals against global central
// differences through the full model.
func (p *Problem) CheckTotals(of, wrt []string, step float64) ([]Check, error) {
	if err := p.RunModel(); err != nil {
		return nil, err
	}
	an, err := p.ComputeTotals(of, wrt)
	if err != nil {
		return nil, err
	}

	var checks []Check
	for _, w := range wrt {
		x0, err := p.GetVal(w)
		if err != nil {
			return nil, err
		}
		nw := len(x0)

		fdCols := make(map[string][]float64) // of → ofSize×nw
		for _, f := range of {
			v, err := p.GetVal(f)
			if err != nil {
				return nil, err
			}
			fdCols[f] = make([]float64, len(v)*nw)
		}

		x := make([]float64, nw)
		for i := 0; i < nw; i++ {
			h := step * math.Max(1, math.Abs(x0[i]))
			for s, sign := range []float64{1, -1} {
				copy(x, x0)
				x[i] += sign * h
				if err := p.SetVal(w, x); err != nil {
					return nil, err
				}
				if err := p.RunModel(); err != nil {
					return nil, err
				}
				for _, f := range of {
					v, err := p.GetVal(f)
					if err != nil {
						return nil, err
					}
					for r := range v {
						if s == 0 {
							fdCols[f][r*nw+i] = v[r] / (2 * h)
						} else {
							fdCols[f][r*nw+i] -= v[r] / (2 * h)
						}
					}
				}
			}
		}
		if err := p.SetVal(w, x0); err != nil {
			return nil, err
		}

		for _, f := range of {
			abs, rel := compareBlocks(an[[2]string{f, w}], fdCols[f])
			checks = append(checks, Check{Of: f, Wrt: w, MaxAbsErr: abs, MaxRelErr: rel})
			p.log.Debug("total check",
				zap.String("of", f), zap.String("wrt", w),
				zap.Float64("absErr", abs), zap.Float64("relErr", rel))
		}
	}

	// leave the model evaluated at the restored point
	if err := p.RunModel(); err != nil {
		return nil, err
	}
	return checks, nil
}
