// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/noema-ai/noema/pkg/protocol"
)

// Overridden at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version, commit, and protocol information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("noema %s (commit %s, protocol v%d, %s)\n",
			version, commit, protocol.Version, runtime.Version())
	},
}
