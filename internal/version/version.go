// Package version carries build metadata set with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"     // ex: v0.1.0
	Commit    = "none"    // ex: abcd123
	BuildDate = "unknown" // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version()
)

// String is the one-line build summary printed at start and by the CLI.
func String() string {
	return fmt.Sprintf("padherd %s (commit=%s, built=%s, go=%s)", Version, Commit, BuildDate, GoVersion)
}
