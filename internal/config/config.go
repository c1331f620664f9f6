// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the CLI configuration from a YAML file with
// environment variable overrides.
package config

import (
	"github.com/go-faster/errors"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the application configuration.
type Config struct {
	// Environment selects the logging flavor (development, production).
	Environment string `env:"ENVIRONMENT" env-default:"development" yaml:"environment"`

	// Mesh describes the analysis model: a Nastran bulk data file, or a
	// generated rectangular plate when File is empty.
	Mesh struct {
		// File is a bulk data file path (GRID/CQUAD4/PSHELL/MAT1/SPC/FORCE).
		File string `env:"MESH_FILE" yaml:"file"`
		// Plate generates an lx×ly plate of nx×ny elements grouped into
		// ncx×ncy design components.
		Plate struct {
			Lx  float64 `env:"PLATE_LX" env-default:"1.0" yaml:"lx"`
			Ly  float64 `env:"PLATE_LY" env-default:"2.0" yaml:"ly"`
			Nx  int     `env:"PLATE_NX" env-default:"4" yaml:"nx"`
			Ny  int     `env:"PLATE_NY" env-default:"8" yaml:"ny"`
			Ncx int     `env:"PLATE_NCX" env-default:"1" yaml:"ncx"`
			Ncy int     `env:"PLATE_NCY" env-default:"1" yaml:"ncy"`
		} `yaml:"plate"`
		// ClampEdge fully fixes one plate edge: xmin, xmax, ymin or ymax.
		// Only used for generated plates; file meshes carry SPC cards.
		ClampEdge string `env:"MESH_CLAMP_EDGE" env-default:"ymin" yaml:"clampEdge"`
	} `yaml:"mesh"`

	// Material is the isotropic material of every component.
	Material struct {
		Rho float64 `env:"MATERIAL_RHO" env-default:"2780.0" yaml:"rho"`
		E   float64 `env:"MATERIAL_E" env-default:"73.1e9" yaml:"e"`
		Nu  float64 `env:"MATERIAL_NU" env-default:"0.33" yaml:"nu"`
		YS  float64 `env:"MATERIAL_YS" env-default:"324.0e6" yaml:"ys"`
	} `yaml:"material"`

	// Shell sets the initial thickness and its design bounds.
	Shell struct {
		Thickness    float64 `env:"SHELL_THICKNESS" env-default:"0.012" yaml:"thickness"`
		MinThickness float64 `env:"SHELL_MIN_THICKNESS" env-default:"0.002" yaml:"minThickness"`
		MaxThickness float64 `env:"SHELL_MAX_THICKNESS" env-default:"0.05" yaml:"maxThickness"`
	} `yaml:"shell"`

	// Load applies a uniform force per node on top of any FORCE cards.
	Load struct {
		Fx float64 `env:"LOAD_FX" env-default:"0.0" yaml:"fx"`
		Fy float64 `env:"LOAD_FY" env-default:"0.0" yaml:"fy"`
		Fz float64 `env:"LOAD_FZ" env-default:"-1.0" yaml:"fz"`
	} `yaml:"load"`

	// Solver tunes the linear solve and the KS aggregation.
	Solver struct {
		L2Convergence    float64 `env:"SOLVER_L2_CONVERGENCE" env-default:"1e-12" yaml:"l2Convergence"`
		L2ConvergenceRel float64 `env:"SOLVER_L2_CONVERGENCE_REL" env-default:"1e-12" yaml:"l2ConvergenceRel"`
		KSWeight         float64 `env:"SOLVER_KS_WEIGHT" env-default:"80.0" yaml:"ksWeight"`
	} `yaml:"solver"`

	// Buckling enables the linearized buckling analysis.
	Buckling struct {
		Enabled bool    `env:"BUCKLING_ENABLED" env-default:"true" yaml:"enabled"`
		Sigma   float64 `env:"BUCKLING_SIGMA" env-default:"1.0" yaml:"sigma"`
		NumEigs int     `env:"BUCKLING_NUM_EIGS" env-default:"2" yaml:"numEigs"`
	} `yaml:"buckling"`

	// Optimize configures the sizing run.
	Optimize struct {
		// Driver selects the sizing driver: mass or compliance.
		Driver         string  `env:"OPTIMIZE_DRIVER" env-default:"mass" yaml:"driver"`
		MaxIterations  int     `env:"OPTIMIZE_MAX_ITERATIONS" env-default:"100" yaml:"maxIterations"`
		MassPenalty    float64 `env:"OPTIMIZE_MASS_PENALTY" env-default:"0.0" yaml:"massPenalty"`
		BucklingMargin float64 `env:"OPTIMIZE_BUCKLING_MARGIN" env-default:"1.0" yaml:"bucklingMargin"`
		// MaxAdjacency bounds |t_i-t_j| across component interfaces;
		// zero disables the constraint.
		MaxAdjacency float64 `env:"OPTIMIZE_MAX_ADJACENCY" env-default:"0.0" yaml:"maxAdjacency"`
	} `yaml:"optimize"`

	// Check configures the derivative verification report.
	Check struct {
		Step      float64 `env:"CHECK_STEP" env-default:"1e-6" yaml:"step"`
		Tolerance float64 `env:"CHECK_TOLERANCE" env-default:"5e-3" yaml:"tolerance"`
	} `yaml:"check"`
}

// Load reads the YAML config at path, applying environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, errors.Wrap(err, "could not read config")
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied, used
// when no config file is given.
func Default() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "could not read environment")
	}
	return &cfg, nil
}
