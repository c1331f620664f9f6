// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mesh

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// MatCard is a Nastran MAT1 isotropic material card.
type MatCard struct {
	ID      int
	E, G    float64
	Nu, Rho float64
}

// ShellCard is a Nastran PSHELL property card.
type ShellCard struct {
	ID, MID int
	T       float64
}

// Model is the result of reading a Nastran-flavored bulk data file.
// Elements are grouped into one component per PSHELL property, in
// ascending property id order.
type Model struct {
	Mesh      *Mesh
	Materials map[int]MatCard
	Shells    map[int]ShellCard
	PIDs      []int              // component order: PIDs ascending
	Forces    map[int][3]float64 // node → force on (u,v,w)
}

// Loads expands the FORCE cards into a full 6-DOF-per-node load vector.
func (m *Model) Loads() []float64 {
	f := make([]float64, 6*m.Mesh.NumNodes())
	for n, v := range m.Forces {
		f[6*n+0] += v[0]
		f[6*n+1] += v[1]
		f[6*n+2] += v[2]
	}
	return f
}

// ReadBDF reads the subset of Nastran bulk data cards the solver consumes:
// GRID, CQUAD4, PSHELL, MAT1, SPC and FORCE, in small-field or free-field
// format. Unknown cards are skipped.
func ReadBDF(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open bulk data file")
	}
	defer f.Close()
	return ParseBDF(f)
}

type rawQuad struct {
	pid   int
	grids [4]int
}

type rawSPC struct {
	grid int
	dofs string
}

type rawForce struct {
	grid  int
	scale float64
	dir   [3]float64
}

// ParseBDF reads bulk data cards from r. See ReadBDF.
func ParseBDF(r io.Reader) (*Model, error) {

	grids := make(map[int][2]float64)
	var gridIDs []int
	var quads []rawQuad
	var spcs []rawSPC
	var forces []rawForce

	model := &Model{
		Materials: make(map[int]MatCard),
		Shells:    make(map[int]ShellCard),
		Forces:    make(map[int][3]float64),
	}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if t := strings.TrimSpace(text); t == "" || strings.HasPrefix(t, "$") {
			continue
		}
		fields := splitCard(text)
		if len(fields) == 0 {
			continue
		}
		name := strings.ToUpper(strings.TrimSpace(fields[0]))
		var err error
		switch name {
		case "GRID":
			var id int
			var x, y, z float64
			if id, err = cardInt(fields, 1); err == nil {
				x, _ = cardFloat(fields, 3)
				y, _ = cardFloat(fields, 4)
				z, _ = cardFloat(fields, 5)
			}
			if err == nil {
				if z != 0 {
					err = errors.New("only plates in the XY plane are supported")
				} else {
					grids[id] = [2]float64{x, y}
					gridIDs = append(gridIDs, id)
				}
			}
		case "CQUAD4":
			var q rawQuad
			if _, err = cardInt(fields, 1); err == nil {
				q.pid, err = cardInt(fields, 2)
			}
			for i := 0; err == nil && i < 4; i++ {
				q.grids[i], err = cardInt(fields, 3+i)
			}
			if err == nil {
				quads = append(quads, q)
			}
		case "PSHELL":
			var c ShellCard
			if c.ID, err = cardInt(fields, 1); err == nil {
				if c.MID, err = cardInt(fields, 2); err == nil {
					c.T, err = cardFloat(fields, 3)
				}
			}
			if err == nil {
				model.Shells[c.ID] = c
			}
		case "MAT1":
			var c MatCard
			if c.ID, err = cardInt(fields, 1); err == nil {
				c.E, _ = cardFloat(fields, 2)
				c.G, _ = cardFloat(fields, 3)
				c.Nu, _ = cardFloat(fields, 4)
				c.Rho, _ = cardFloat(fields, 5)
			}
			if err == nil {
				model.Materials[c.ID] = c
			}
		case "SPC":
			var s rawSPC
			if _, err = cardInt(fields, 1); err == nil {
				if s.grid, err = cardInt(fields, 2); err == nil {
					s.dofs = strings.TrimSpace(field(fields, 3))
				}
			}
			if err == nil {
				spcs = append(spcs, s)
			}
		case "FORCE":
			var fc rawForce
			if _, err = cardInt(fields, 1); err == nil {
				if fc.grid, err = cardInt(fields, 2); err == nil {
					if fc.scale, err = cardFloat(fields, 4); err == nil {
						fc.dir[0], _ = cardFloat(fields, 5)
						fc.dir[1], _ = cardFloat(fields, 6)
						fc.dir[2], _ = cardFloat(fields, 7)
					}
				}
			}
			if err == nil {
				forces = append(forces, fc)
			}
		}
		if err != nil {
			return nil, errors.Wrapf(err, "%s card at line %d", name, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read bulk data")
	}

	// stable node numbering: ascending grid id
	sort.Ints(gridIDs)
	node := make(map[int]int, len(gridIDs))
	m := &Mesh{}
	for i, id := range gridIDs {
		if _, dup := node[id]; dup {
			return nil, errors.Errorf("duplicate GRID id %d", id)
		}
		node[id] = i
		c := grids[id]
		m.Coords = append(m.Coords, c[0], c[1])
	}

	// one component per property id, ascending
	compOf := make(map[int]int)
	for pid := range model.Shells {
		model.PIDs = append(model.PIDs, pid)
	}
	sort.Ints(model.PIDs)
	for i, pid := range model.PIDs {
		compOf[pid] = i
		m.Comps = append(m.Comps, "PSHELL."+strconv.Itoa(pid))
	}

	for _, q := range quads {
		comp, ok := compOf[q.pid]
		if !ok {
			return nil, errors.Errorf("CQUAD4 references unknown PSHELL %d", q.pid)
		}
		var conn [4]int
		for i, g := range q.grids {
			n, ok := node[g]
			if !ok {
				return nil, errors.Errorf("CQUAD4 references unknown GRID %d", g)
			}
			conn[i] = n
		}
		m.Elems = append(m.Elems, conn)
		m.CompOf = append(m.CompOf, comp)
	}

	for _, s := range spcs {
		n, ok := node[s.grid]
		if !ok {
			return nil, errors.Errorf("SPC references unknown GRID %d", s.grid)
		}
		var dofs []int
		for _, c := range s.dofs {
			if c < '1' || c > '6' {
				return nil, errors.Errorf("SPC component %q is not in 1..6", s.dofs)
			}
			dofs = append(dofs, int(c-'1'))
		}
		m.FixNode(n, dofs...)
	}

	for _, fc := range forces {
		n, ok := node[fc.grid]
		if !ok {
			return nil, errors.Errorf("FORCE references unknown GRID %d", fc.grid)
		}
		v := model.Forces[n]
		for i := range v {
			v[i] += fc.scale * fc.dir[i]
		}
		model.Forces[n] = v
	}

	model.Mesh = m
	return model, nil
}

// splitCard splits a bulk data line into fields: comma-separated free field
// or fixed 8-column small field.
func splitCard(line string) []string {
	if strings.Contains(line, ",") {
		return strings.Split(line, ",")
	}
	var fields []string
	for i := 0; i < len(line); i += 8 {
		end := min(i+8, len(line))
		fields = append(fields, line[i:end])
	}
	return fields
}

func field(fields []string, i int) string {
	if i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func cardInt(fields []string, i int) (int, error) {
	s := field(fields, i)
	if s == "" {
		return 0, errors.Errorf("missing integer field %d", i)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("field %d: %q is not an integer", i, s)
	}
	return v, nil
}

// cardFloat parses a bulk data real, including the Nastran short exponent
// form where "7.31+9" means 7.31e+9. Empty fields read as zero.
func cardFloat(fields []string, i int) (float64, error) {
	s := field(fields, i)
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	// insert the implied exponent marker
	for j := 1; j < len(s); j++ {
		if (s[j] == '+' || s[j] == '-') && s[j-1] != 'e' && s[j-1] != 'E' {
			if v, err := strconv.ParseFloat(s[:j]+"e"+s[j:], 64); err == nil {
				return v, nil
			}
			break
		}
	}
	return 0, errors.Errorf("field %d: %q is not a real", i, s)
}
