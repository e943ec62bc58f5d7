package version

import "fmt"

// Version contains the application version information.
// This should be set via build-time ldflags in production:
// go build -ldflags "-X git.home.luguber.info/inful/loadcore/internal/version.Version=v1.2.0".
var Version = "0.0.0-dev"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by --version.
func String() string {
	return fmt.Sprintf("loadcore %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
