// Package version carries build metadata injected through -ldflags.
package version

// Build-time variables set by ldflags, e.g.
//
//	-X github.com/MeKo-Tech/vioinit/internal/version.Version=v0.3.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns the version, commit and build date.
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}
