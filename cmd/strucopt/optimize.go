// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/curioloop/optimizer/slsqp"
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/curioloop/strucopt/constraints"
	"github.com/curioloop/strucopt/fea"
	"github.com/curioloop/strucopt/internal/config"
	"github.com/curioloop/strucopt/sizing"
)

func optimizeCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Size the shell thicknesses with the configured driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			mdl, err := buildModel(cfg, logger)
			if err != nil {
				return err
			}

			var res *sizing.Result
			switch cfg.Optimize.Driver {
			case "mass":
				res, err = runMassMin(cfg, mdl, logger)
			case "compliance":
				res, err = runComplianceMin(cfg, mdl, logger)
			default:
				return errors.Errorf("unknown driver %q", cfg.Optimize.Driver)
			}
			if err != nil {
				return err
			}

			logger.Info("sizing done",
				zap.Bool("converged", res.OK),
				zap.Float64("objective", res.F),
				zap.Int("iterations", res.Iterations),
				zap.Float64s("thickness", res.X))
			if !res.OK {
				return errors.New("optimizer did not converge")
			}
			return nil
		},
	}
}

// adjacencyConstraints builds the thickness jump constraint when the
// mesh has component interfaces with distinct design variables;
// single-component models skip it instead of failing construction.
func adjacencyConstraints(asm *fea.Assembler, maxJump float64) ([]constraints.Constraint, error) {
	cons := asm.Constitutives()
	linked := false
	for _, p := range asm.Mesh().Adjacency() {
		di, dj := cons[p[0]].DVIndex(), cons[p[1]].DVIndex()
		if di >= 0 && dj >= 0 && di != dj {
			linked = true
			break
		}
	}
	if !linked {
		return nil, nil
	}
	adj, err := constraints.New("adjacency", asm, constraints.Params{
		Name:  "adjacency",
		Lower: -maxJump,
		Upper: maxJump,
	})
	if err != nil {
		return nil, err
	}
	return []constraints.Constraint{adj}, nil
}

func runMassMin(cfg *config.Config, mdl *model, logger *zap.Logger) (*sizing.Result, error) {
	var cons []constraints.Constraint
	if cfg.Optimize.MaxAdjacency > 0 {
		var err error
		cons, err = adjacencyConstraints(mdl.asm, cfg.Optimize.MaxAdjacency)
		if err != nil {
			return nil, err
		}
	}

	driver := &sizing.MassMin{
		Asm:            mdl.asm,
		Static:         mdl.static,
		Buckling:       mdl.buck,
		BucklingMargin: cfg.Optimize.BucklingMargin,
		Constraints:    cons,
		Stop:           slsqp.Termination{MaxIterations: cfg.Optimize.MaxIterations},
		Log:            logger,
	}
	return driver.Run()
}

func runComplianceMin(cfg *config.Config, mdl *model, logger *zap.Logger) (*sizing.Result, error) {
	driver := &sizing.ComplianceMin{
		Asm:         mdl.asm,
		Static:      mdl.static,
		MassPenalty: cfg.Optimize.MassPenalty,
		Log:         logger,
	}
	driver.Stop.MaxIterations = cfg.Optimize.MaxIterations
	return driver.Run()
}
