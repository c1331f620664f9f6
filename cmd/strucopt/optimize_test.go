// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curioloop/strucopt/constitutive"
	"github.com/curioloop/strucopt/fea"
	"github.com/curioloop/strucopt/mesh"
)

func plateAsm(t *testing.T, ncx, ncy int) *fea.Assembler {
	t.Helper()
	m, err := mesh.Plate(1.0, 1.0, 2, 2, ncx, ncy)
	require.NoError(t, err)
	mat, err := constitutive.NewMaterial(2780.0, 73.1e9, 0.33, 324.0e6)
	require.NoError(t, err)
	cons := make([]*constitutive.IsoShell, m.NumComps())
	for i := range cons {
		cons[i], err = constitutive.NewIsoShell(mat, 0.01, i, 1e-4, 0.05)
		require.NoError(t, err)
	}
	asm, err := fea.NewAssembler(m, cons, nil)
	require.NoError(t, err)
	return asm
}

func TestAdjacencyConstraints(t *testing.T) {
	// a single component has no interfaces: the constraint is skipped,
	// not an error
	cons, err := adjacencyConstraints(plateAsm(t, 1, 1), 5e-3)
	require.NoError(t, err)
	assert.Empty(t, cons)

	// two side-by-side components share one interface
	cons, err = adjacencyConstraints(plateAsm(t, 2, 1), 5e-3)
	require.NoError(t, err)
	require.Len(t, cons, 1)
	assert.Equal(t, 1, cons[0].Size())
	lb, ub := cons[0].Bounds()
	assert.Equal(t, -5e-3, lb[0])
	assert.Equal(t, 5e-3, ub[0])
}
