// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curioloop/strucopt/constitutive"
	"github.com/curioloop/strucopt/fea"
	"github.com/curioloop/strucopt/findiff"
	"github.com/curioloop/strucopt/mesh"
)

// testAsm builds a 2×3-component plate with one DV per component.
func testAsm(t *testing.T) *fea.Assembler {
	t.Helper()
	m, err := mesh.Plate(2.0, 1.5, 4, 3, 2, 3)
	require.NoError(t, err)
	mat, err := constitutive.NewMaterial(2780.0, 73.1e9, 0.33, 324.0e6)
	require.NoError(t, err)
	cons := make([]*constitutive.IsoShell, m.NumComps())
	for i := range cons {
		cons[i], err = constitutive.NewIsoShell(mat, 0.01+0.001*float64(i), i, 1e-4, 0.1)
		require.NoError(t, err)
	}
	asm, err := fea.NewAssembler(m, cons, nil)
	require.NoError(t, err)
	return asm
}

// dvGradFD compares the analytic DV Jacobian against central differences
// through the assembler design vector.
func dvGradFD(t *testing.T, asm *fea.Assembler, c Constraint) {
	t.Helper()
	jac := make([]float64, c.Size()*asm.NDV())
	require.NoError(t, c.Gradient(jac))

	spec := findiff.Spec{
		N: asm.NDV(), M: c.Size(), Method: findiff.Central,
		F: func(x, y []float64) error {
			if err := asm.SetDesignVars(x); err != nil {
				return err
			}
			return c.Evaluate(y)
		},
	}
	fd := make([]float64, len(jac))
	x0 := asm.DesignVars()
	require.NoError(t, spec.Jacobian(x0, fd))
	require.NoError(t, asm.SetDesignVars(x0))

	for i := range jac {
		assert.InDelta(t, fd[i], jac[i], 1e-6, "jacobian entry %d", i)
	}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"adjacency", "dv", "panel_length", "panel_width", "volume"}, All())

	asm := testAsm(t)
	c, err := New("volume", asm, Params{Name: "vol", Lower: 0, Upper: 1})
	require.NoError(t, err)
	assert.Equal(t, "vol", c.Name())
	assert.Equal(t, 1, c.Size())

	_, err = New("nope", asm, Params{})
	assert.Error(t, err)
}

func TestDVConstraint(t *testing.T) {
	asm := testAsm(t)

	_, err := NewDV(asm, "bad", nil)
	require.Error(t, err)
	_, err = NewDV(asm, "bad", []DVRow{{Indices: []int{99}, Weights: []float64{1}}})
	require.Error(t, err)

	c, err := NewDV(asm, "dv", []DVRow{
		{Indices: []int{0}, Weights: []float64{1}, Lower: 1e-3, Upper: 0.05},
		{Indices: []int{1, 2}, Weights: []float64{1, -2}, Lower: -1, Upper: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 2, c.Size())

	x := asm.DesignVars()
	vals := make([]float64, 2)
	require.NoError(t, c.Evaluate(vals))
	assert.InDelta(t, x[0], vals[0], 1e-15)
	assert.InDelta(t, x[1]-2*x[2], vals[1], 1e-15)

	lb, ub := c.Bounds()
	assert.Equal(t, []float64{1e-3, -1}, lb)
	assert.Equal(t, []float64{0.05, 1}, ub)

	dvGradFD(t, asm, c)
}

func TestAdjacencyConstraint(t *testing.T) {
	asm := testAsm(t)

	c, err := NewAdjacency(asm, "adj", -2.5e-3, 2.5e-3)
	require.NoError(t, err)
	// 2×3 component grid: 3 vertical + 4 horizontal interfaces
	require.Equal(t, 7, c.Size())

	x := asm.DesignVars()
	vals := make([]float64, c.Size())
	require.NoError(t, c.Evaluate(vals))
	for r, p := range c.pairs {
		assert.InDelta(t, x[p[0]]-x[p[1]], vals[r], 1e-15)
	}

	dvGradFD(t, asm, c)
}

func TestVolumeConstraint(t *testing.T) {
	asm := testAsm(t)

	c, err := NewVolume(asm, "vol", 0, 1)
	require.NoError(t, err)

	vals := make([]float64, 1)
	require.NoError(t, c.Evaluate(vals))
	// Σ t_c·A_c with A_c = 0.5 for every component of the 2×1.5 plate
	want := 0.0
	for i := 0; i < 6; i++ {
		want += (0.01 + 0.001*float64(i)) * 0.5
	}
	assert.InDelta(t, want, vals[0], 1e-12)

	dvGradFD(t, asm, c)

	// coordinate gradient against global differences
	jac := make([]float64, 3*asm.NumNodes())
	require.NoError(t, c.CoordGradient(jac))

	spec := findiff.Spec{
		N: len(jac), M: 1, Method: findiff.Central, RelStep: 1e-6,
		F: func(x, y []float64) error {
			if err := asm.SetCoords(x); err != nil {
				return err
			}
			return c.Evaluate(y)
		},
	}
	fd := make([]float64, len(jac))
	x0 := asm.Coords()
	require.NoError(t, spec.Jacobian(x0, fd))
	require.NoError(t, asm.SetCoords(x0))
	for i := range jac {
		assert.InDelta(t, fd[i], jac[i], 1e-6, "coord entry %d", i)
	}
}

func TestPanelConstraints(t *testing.T) {
	asm := testAsm(t)

	length, err := NewPanelLength(asm, "plen", []float64{1, 1, 1, 1, 1, 1})
	require.NoError(t, err)
	width, err := NewPanelWidth(asm, "pwid", []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5})
	require.NoError(t, err)

	// each panel of the 2×1.5 plate spans 1.0 × 0.5
	vals := make([]float64, 6)
	require.NoError(t, length.Evaluate(vals))
	for i, v := range vals {
		assert.InDelta(t, 0.0, v, 1e-12, "length row %d", i)
	}
	require.NoError(t, width.Evaluate(vals))
	for i, v := range vals {
		assert.InDelta(t, 0.0, v, 1e-12, "width row %d", i)
	}

	lb, ub := length.Bounds()
	assert.Equal(t, make([]float64, 6), lb)
	assert.Equal(t, make([]float64, 6), ub)

	// stretching the mesh by 1% grows every extent by 1%
	coords := asm.Coords()
	for i := 0; i < asm.NumNodes(); i++ {
		coords[3*i] *= 1.01
	}
	require.NoError(t, asm.SetCoords(coords))
	require.NoError(t, length.Evaluate(vals))
	for i, v := range vals {
		assert.InDelta(t, 0.01, v, 1e-12, "stretched row %d", i)
	}

	jac := make([]float64, 6*3*asm.NumNodes())
	require.NoError(t, length.CoordGradient(jac))
	nonzero := 0
	for _, v := range jac {
		if v != 0 {
			nonzero++
		}
	}
	// one +x and one -x entry per component row
	assert.Equal(t, 12, nonzero)

	_, err = NewPanelLength(asm, "bad", []float64{1})
	assert.Error(t, err)
}
