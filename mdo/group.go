// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mdo

import (
	"strings"

	"github.com/go-faster/errors"
)

// Group is a named collection of components and nested groups with
// promote-by-name visibility and explicit connections.
type Group struct {
	subs  []subsystem
	conns [][2]string
}

type subsystem struct {
	name     string
	comp     Component // exactly one of comp/group is set
	group    *Group
	promotes []string
}

// NewGroup creates an empty group.
func NewGroup() *Group { return &Group{} }

// Add registers a component subsystem. Promoted variable names become
// visible at this group's level without the subsystem prefix; "*"
// promotes everything.
func (g *Group) Add(name string, c Component, promotes ...string) *Group {
	g.subs = append(g.subs, subsystem{name: name, comp: c, promotes: promotes})
	return g
}

// AddGroup registers a nested group subsystem.
func (g *Group) AddGroup(name string, sub *Group, promotes ...string) *Group {
	g.subs = append(g.subs, subsystem{name: name, group: sub, promotes: promotes})
	return g
}

// Connect wires the output visible as src to the input visible as dst,
// both named relative to this group.
func (g *Group) Connect(src, dst string) *Group {
	g.conns = append(g.conns, [2]string{src, dst})
	return g
}

func promoted(promotes []string, name string) bool {
	for _, p := range promotes {
		if p == "*" || p == name {
			return true
		}
	}
	return false
}

// boundary is the flattened view of one group level: visible names
// mapped to absolute variable names.
type boundary struct {
	out map[string]string   // visible output → absolute output
	in  map[string][]string // visible input → absolute inputs
}

// flatten walks the tree below g, collecting component instances,
// resolving this level's connections and promotion-implied
// connections, and returning the boundary visible to the parent.
func (g *Group) flatten(prefix string, comps *[]compInst, srcOf map[string]string) (boundary, error) {
	bnd := boundary{out: make(map[string]string), in: make(map[string][]string)}

	for _, s := range g.subs {
		path := s.name
		if prefix != "" {
			path = prefix + "." + s.name
		}

		var sub boundary
		switch {
		case s.comp != nil:
			sub = boundary{out: make(map[string]string), in: make(map[string][]string)}
			for _, v := range s.comp.Outputs() {
				sub.out[v.Name] = path + "." + v.Name
			}
			for _, v := range s.comp.Inputs() {
				sub.in[v.Name] = []string{path + "." + v.Name}
			}
			*comps = append(*comps, compInst{path: path, comp: s.comp})
		case s.group != nil:
			var err error
			if sub, err = s.group.flatten(path, comps, srcOf); err != nil {
				return bnd, err
			}
		default:
			return bnd, errors.Errorf("subsystem %q is empty", path)
		}

		for vis, abs := range sub.out {
			name := s.name + "." + vis
			if promoted(s.promotes, vis) {
				name = vis
			}
			if _, dup := bnd.out[name]; dup {
				return bnd, errors.Errorf("output name %q is ambiguous in group %q", name, prefix)
			}
			bnd.out[name] = abs
		}
		for vis, abs := range sub.in {
			name := s.name + "." + vis
			if promoted(s.promotes, vis) {
				name = vis
			}
			bnd.in[name] = append(bnd.in[name], abs...)
		}
	}

	// promoting an input and an output to the same name connects them
	for vis, ins := range bnd.in {
		if strings.Contains(vis, ".") {
			continue
		}
		if src, ok := bnd.out[vis]; ok {
			for _, in := range ins {
				if err := connect(srcOf, src, in); err != nil {
					return bnd, err
				}
			}
		}
	}

	for _, c := range g.conns {
		src, ok := bnd.out[c[0]]
		if !ok {
			return bnd, errors.Errorf("connection source %q not found in group %q", c[0], prefix)
		}
		ins, ok := bnd.in[c[1]]
		if !ok {
			return bnd, errors.Errorf("connection target %q not found in group %q", c[1], prefix)
		}
		for _, in := range ins {
			if err := connect(srcOf, src, in); err != nil {
				return bnd, err
			}
		}
	}
	return bnd, nil
}

func connect(srcOf map[string]string, src, dst string) error {
	if prev, ok := srcOf[dst]; ok && prev != src {
		return errors.Errorf("input %q is fed by both %q and %q", dst, prev, src)
	}
	srcOf[dst] = src
	return nil
}
