// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mesh holds plate meshes, element components, boundary conditions
// and the Nastran-flavored input reader.
package mesh

import (
	"fmt"
	"math"

	"github.com/go-faster/errors"
)

// BC pins a set of nodal degrees of freedom (0..5 for u,v,w,θx,θy,θz).
type BC struct {
	Node int
	DOFs []int
}

// Mesh is a quadrilateral shell mesh in the global XY plane.
// Every element belongs to exactly one named component; components are the
// granularity of thickness design variables and adjacency constraints.
type Mesh struct {
	Coords []float64 // interleaved x,y per node
	Elems  [][4]int  // counter-clockwise connectivity
	CompOf []int     // component id per element
	Comps  []string  // component names
	BCs    []BC
}

// NumNodes returns the node count.
func (m *Mesh) NumNodes() int { return len(m.Coords) / 2 }

// NumElems returns the element count.
func (m *Mesh) NumElems() int { return len(m.Elems) }

// NumComps returns the component count.
func (m *Mesh) NumComps() int { return len(m.Comps) }

// Node returns the coordinates of node i.
func (m *Mesh) Node(i int) (x, y float64) {
	return m.Coords[2*i], m.Coords[2*i+1]
}

// ElemCoords gathers the corner coordinates of element e.
func (m *Mesh) ElemCoords(e int) (c [4][2]float64) {
	for i, n := range m.Elems[e] {
		c[i][0], c[i][1] = m.Coords[2*n], m.Coords[2*n+1]
	}
	return
}

// FixNode pins the listed DOFs of a node.
func (m *Mesh) FixNode(node int, dofs ...int) {
	m.BCs = append(m.BCs, BC{Node: node, DOFs: dofs})
}

// Edge selects one side of the mesh bounding box.
type Edge int

const (
	EdgeXMin Edge = iota
	EdgeXMax
	EdgeYMin
	EdgeYMax
)

// EdgeNodes returns the nodes lying on the given bounding-box edge.
func (m *Mesh) EdgeNodes(e Edge) []int {
	lo := [2]float64{math.Inf(1), math.Inf(1)}
	hi := [2]float64{math.Inf(-1), math.Inf(-1)}
	for i := 0; i < m.NumNodes(); i++ {
		x, y := m.Node(i)
		lo[0], hi[0] = math.Min(lo[0], x), math.Max(hi[0], x)
		lo[1], hi[1] = math.Min(lo[1], y), math.Max(hi[1], y)
	}
	ax, val := 0, lo[0]
	switch e {
	case EdgeXMax:
		val = hi[0]
	case EdgeYMin:
		ax, val = 1, lo[1]
	case EdgeYMax:
		ax, val = 1, hi[1]
	}
	tol := 1e-9 * math.Max(hi[0]-lo[0], hi[1]-lo[1])
	var nodes []int
	for i := 0; i < m.NumNodes(); i++ {
		x, y := m.Node(i)
		c := [2]float64{x, y}
		if math.Abs(c[ax]-val) <= tol {
			nodes = append(nodes, i)
		}
	}
	return nodes
}

// FixEdge pins the listed DOFs of every node on an edge.
func (m *Mesh) FixEdge(e Edge, dofs ...int) {
	for _, n := range m.EdgeNodes(e) {
		m.FixNode(n, dofs...)
	}
}

// Adjacency returns every pair of distinct components sharing at least one
// element edge, each pair listed once with the lower id first.
func (m *Mesh) Adjacency() [][2]int {
	type ekey [2]int
	owner := make(map[ekey]int)
	seen := make(map[[2]int]bool)
	var pairs [][2]int

	for e, conn := range m.Elems {
		comp := m.CompOf[e]
		for i := 0; i < 4; i++ {
			a, b := conn[i], conn[(i+1)%4]
			if a > b {
				a, b = b, a
			}
			k := ekey{a, b}
			if other, ok := owner[k]; ok {
				if other != comp {
					p := [2]int{min(other, comp), max(other, comp)}
					if !seen[p] {
						seen[p] = true
						pairs = append(pairs, p)
					}
				}
			} else {
				owner[k] = comp
			}
		}
	}
	return pairs
}

// Plate builds a structured nx×ny quad mesh of an lx×ly plate with the
// origin at a corner. The elements are split into ncx×ncy rectangular
// component patches; nx must divide evenly by ncx and ny by ncy.
func Plate(lx, ly float64, nx, ny, ncx, ncy int) (*Mesh, error) {
	switch {
	case lx <= 0 || ly <= 0:
		return nil, errors.New("plate dimensions must be positive")
	case nx < 1 || ny < 1:
		return nil, errors.New("element counts must be positive")
	case ncx < 1 || ncy < 1 || nx%ncx != 0 || ny%ncy != 0:
		return nil, errors.Errorf("component grid %d×%d does not divide mesh %d×%d", ncx, ncy, nx, ny)
	}

	m := &Mesh{}
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			m.Coords = append(m.Coords, lx*float64(i)/float64(nx), ly*float64(j)/float64(ny))
		}
	}

	node := func(i, j int) int { return j*(nx+1) + i }
	for cy := 0; cy < ncy; cy++ {
		for cx := 0; cx < ncx; cx++ {
			m.Comps = append(m.Comps, compName(cx, cy))
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			m.Elems = append(m.Elems, [4]int{node(i, j), node(i+1, j), node(i+1, j+1), node(i, j+1)})
			comp := (j/(ny/ncy))*ncx + i/(nx/ncx)
			m.CompOf = append(m.CompOf, comp)
		}
	}
	return m, nil
}

func compName(cx, cy int) string {
	return fmt.Sprintf("PANEL.%d.%d", cx, cy)
}
