// Package version holds build metadata set with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/lmb-freiburg/irocs/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for display.
func String() string {
	sha := GitSHA
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("irocs %s (commit %s, built %s)", Version, sha, BuildTime)
}
