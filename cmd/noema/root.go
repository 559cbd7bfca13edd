// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/noema-ai/noema/pkg/config"
	"github.com/noema-ai/noema/pkg/logging"
)

var (
	configPath string
	logLevel   string

	cfg      config.Config
	logger   *slog.Logger
	logClose = func() {}

	rootCmd = &cobra.Command{
		Use:   "noema",
		Short: "Neuro-symbolic expression evaluation over pluggable model backends",
		Long: `Noema treats text as symbols and model calls as operators over them.
Expressions compose lazily and evaluate against configured backends,
locally or through a worker session.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				var err error
				path, err = config.DefaultPath()
				if err != nil {
					return err
				}
			}
			loaded, err := config.Load(path)
			if err != nil {
				return err
			}
			cfg = loaded
			configPath = path

			level := cfg.LogLevel
			if logLevel != "" {
				level = logLevel
			}
			logger, logClose = logging.New(logging.Config{
				Level:   level,
				Service: "noema",
			})
			slog.SetDefault(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logClose()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.noema/noema.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.AddCommand(serveCmd, evalCmd, versionCmd)
}
