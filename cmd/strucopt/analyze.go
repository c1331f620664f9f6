// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/curioloop/strucopt/fea"
	"github.com/curioloop/strucopt/internal/config"
)

func analyzeCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Run the static and buckling analysis and report the function values",
		RunE: func(cmd *cobra.Command, args []string) error {
			mdl, err := buildModel(cfg, logger)
			if err != nil {
				return err
			}

			funcs, err := mdl.static.EvalFunctions(fea.FuncMass, fea.FuncCompliance, fea.FuncKSFailure)
			if err != nil {
				return err
			}
			logger.Info("static analysis done",
				zap.Float64("mass", funcs[fea.FuncMass]),
				zap.Float64("compliance", funcs[fea.FuncCompliance]),
				zap.Float64("ksFailure", funcs[fea.FuncKSFailure]))

			if mdl.buck != nil {
				if err := mdl.buck.Solve(); err != nil {
					return err
				}
				eigs := mdl.buck.Eigenvalues()
				fields := make([]zap.Field, 0, len(eigs))
				for i, v := range eigs {
					fields = append(fields, zap.Float64(fmt.Sprintf("%s%d", fea.FuncEigPrefix, i), v))
				}
				logger.Info("buckling analysis done", fields...)
			}
			return nil
		},
	}
}
