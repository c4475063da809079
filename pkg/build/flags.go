// SPDX-License-Identifier: MIT
//
// Package build carries the metadata stamped into the binary at link time:
//
//	go build -ldflags "-X beat/pkg/build.buildName=beat -X beat/pkg/build.buildVersion=0.1.0 ..."
//
// A development build has none of them set and reports "beat dev".
package build

import (
	"errors"
	"fmt"
)

// Description is the one-line summary shown by the CLI.
const Description = "Real-time audio beat engine: capture, spectrum bars and energy bands for visualizers"

const unknown = "unknown"

// Info is the build metadata of the running binary.
type Info struct {
	Name    string
	Version string
	Commit  string
	Time    string
}

// String formats the build information for version output.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Dev reports whether the binary was built without a version stamp.
func (i Info) Dev() bool { return i.Version == defaults.Version }

// Set by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var (
	defaults = Info{Name: "beat", Version: "dev", Commit: unknown, Time: unknown}
	current  = defaults
)

// Initialize copies every stamped value over the defaults. Values that were
// not stamped keep their default and are reported together in the error.
func Initialize() error {
	info := defaults
	var errs []error
	for _, f := range []struct {
		name string
		val  string
		dst  *string
	}{
		{"buildName", buildName, &info.Name},
		{"buildVersion", buildVersion, &info.Version},
		{"buildCommit", buildCommit, &info.Commit},
		{"buildTime", buildTime, &info.Time},
	} {
		if f.val == "" {
			errs = append(errs, fmt.Errorf("%s not set", f.name))
			continue
		}
		*f.dst = f.val
	}
	current = info
	return errors.Join(errs...)
}

// Current returns the build information.
func Current() Info { return current }
