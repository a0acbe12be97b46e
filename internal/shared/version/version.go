// Package version holds build information set through -ldflags:
//
//	go build -ldflags "-X github.com/iscoin/purchase/internal/shared/version.Version=v1.2.0"
package version

import "fmt"

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// String formats the build information for `purchase version` and the startup log.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime)
}
