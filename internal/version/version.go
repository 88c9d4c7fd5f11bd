// Package version carries build metadata set with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

const Name = "peerbridge"

var (
	// Version is the release tag, e.g. v0.3.0.
	Version = "dev"
	// GitCommit is the short commit hash of the build.
	GitCommit = "unknown"
)

// String renders the one-line description printed by the CLI.
func String() string {
	return fmt.Sprintf("%s-%s %s/%s, %s, %s", Name, Version, runtime.GOOS, runtime.GOARCH, runtime.Version(), GitCommit)
}
