// SPDX-License-Identifier: MIT
package main

import (
	"beat/cmd"
	applog "beat/internal/log"
	"beat/pkg/build"
)

// main is the entry point for the beat engine.
//
// Startup parses the command line and configuration, the run phase wires
// capture, engine and consumers under one errgroup, and shutdown releases
// every engine handle so capture stops within its bound.
func main() {
	// Development builds run without ldflags.
	if err := build.Initialize(); err != nil {
		if build.Current().Dev() {
			applog.Debugf("Build info incomplete: %v", err)
		} else {
			applog.Warnf("Build info incomplete: %v", err)
		}
	}

	if err := cmd.Execute(); err != nil {
		applog.Fatalf("%v", err)
	}
}
