// Package version provides build and version information for StudyRAG.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current version, overridable at build time:
// -X github.com/studyrag/studyrag/pkg/version.Version=v0.2.0
var Version = "dev"

// Build information set via ldflags.
var (
	Commit    = "unknown"
	Date      = "unknown"
	GoVersion = runtime.Version()
)

// String returns a formatted version string with build info.
func String() string {
	return fmt.Sprintf("studyrag %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, GoVersion)
}
