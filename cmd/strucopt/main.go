// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package main provides the strucopt CLI. It wires the analyze, check
// and optimize subcommands, loads configuration and initializes logging.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/curioloop/strucopt/internal/config"
)

func setupLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// main sets up the root Cobra command, loads configuration and logging,
// and registers subcommands before executing the CLI.
func main() {
	rootCmd := &cobra.Command{
		Use:   "strucopt",
		Short: "Shell structure analysis and thickness sizing",
	}

	// there is no way to access flags before command execution in cobra.
	// configPath here is parsed using the standard flags package.
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config File Path")

	configPath := flag.String("c", "", "The config file path")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath == "" {
		cfg, err = config.Default()
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		log.Fatal("could not load config: ", err)
	}

	logger, err := setupLogger(cfg.Environment)
	if err != nil {
		log.Fatal("could not create logger: ", err)
	}
	defer func() { _ = logger.Sync() }()

	rootCmd.AddCommand(
		analyzeCommand(cfg, logger),
		checkCommand(cfg, logger),
		optimizeCommand(cfg, logger),
	)

	if err := rootCmd.Execute(); err != nil {
		_ = logger.Sync()
		os.Exit(1)
	}
}
