// Package version holds the build identity of the reportcompiler binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time:
// go build -ldflags "-X github.com/hpv-information-centre/reportcompiler/internal/version.Version=v1.4.0".
var (
	Version   = "unknown"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String is the --version text. Without ldflags the module version and VCS
// revision recorded by the Go toolchain are used when available.
func String() string {
	v, commit := Version, GitCommit
	if info, ok := debug.ReadBuildInfo(); ok {
		if v == "unknown" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && commit == "unknown" {
				commit = s.Value
			}
		}
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("reportcompiler %s (commit %s, built %s)", v, commit, BuildTime)
}
