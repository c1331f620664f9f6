// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/curioloop/strucopt/constitutive"
	"github.com/curioloop/strucopt/fea"
	"github.com/curioloop/strucopt/internal/config"
	"github.com/curioloop/strucopt/mesh"
	"github.com/curioloop/strucopt/shell"
)

// model is the analysis state every subcommand starts from.
type model struct {
	asm    *fea.Assembler
	static *fea.StaticProblem
	buck   *fea.BucklingProblem
	load   []float64
}

var clampEdges = map[string]mesh.Edge{
	"xmin": mesh.EdgeXMin,
	"xmax": mesh.EdgeXMax,
	"ymin": mesh.EdgeYMin,
	"ymax": mesh.EdgeYMax,
}

// buildMesh loads the bulk data file or generates the configured plate.
func buildMesh(cfg *config.Config) (*mesh.Mesh, []float64, error) {
	if cfg.Mesh.File != "" {
		mdl, err := mesh.ReadBDF(cfg.Mesh.File)
		if err != nil {
			return nil, nil, err
		}
		return mdl.Mesh, mdl.Loads(), nil
	}

	p := cfg.Mesh.Plate
	m, err := mesh.Plate(p.Lx, p.Ly, p.Nx, p.Ny, p.Ncx, p.Ncy)
	if err != nil {
		return nil, nil, err
	}
	edge, ok := clampEdges[cfg.Mesh.ClampEdge]
	if !ok {
		return nil, nil, errors.Errorf("unknown clamp edge %q", cfg.Mesh.ClampEdge)
	}
	m.FixEdge(edge, 0, 1, 2, 3, 4, 5)
	return m, nil, nil
}

// buildModel assembles the configured structure and its problems.
func buildModel(cfg *config.Config, logger *zap.Logger) (*model, error) {
	m, fixed, err := buildMesh(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "mesh")
	}

	mat, err := constitutive.NewMaterial(cfg.Material.Rho, cfg.Material.E, cfg.Material.Nu, cfg.Material.YS)
	if err != nil {
		return nil, errors.Wrap(err, "material")
	}
	cons := make([]*constitutive.IsoShell, m.NumComps())
	for i := range cons {
		cons[i], err = constitutive.NewIsoShell(mat, cfg.Shell.Thickness, i,
			cfg.Shell.MinThickness, cfg.Shell.MaxThickness)
		if err != nil {
			return nil, errors.Wrap(err, "constitutive")
		}
	}

	asm, err := fea.NewAssembler(m, cons, logger)
	if err != nil {
		return nil, err
	}

	load := make([]float64, asm.NumDOF())
	copy(load, fixed)
	for n := 0; n < asm.NumNodes(); n++ {
		load[shell.NodeDOF*n+shell.DOFU] += cfg.Load.Fx
		load[shell.NodeDOF*n+shell.DOFV] += cfg.Load.Fy
		load[shell.NodeDOF*n+shell.DOFW] += cfg.Load.Fz
	}

	opts := fea.DefaultOptions()
	opts.L2Convergence = cfg.Solver.L2Convergence
	opts.L2ConvergenceRel = cfg.Solver.L2ConvergenceRel
	opts.KSWeight = cfg.Solver.KSWeight

	static := asm.NewStaticProblem("static", opts)
	if err := static.SetLoad(load); err != nil {
		return nil, err
	}

	mdl := &model{asm: asm, static: static, load: load}
	if cfg.Buckling.Enabled {
		buck, err := asm.NewBucklingProblem("buckling", cfg.Buckling.Sigma, cfg.Buckling.NumEigs, opts)
		if err != nil {
			return nil, err
		}
		if err := buck.SetLoad(load); err != nil {
			return nil, err
		}
		mdl.buck = buck
	}
	return mdl, nil
}
