// Package version holds build-time version metadata, set via -ldflags.
package version

import "runtime/debug"

var (
	GitRepo   string
	GitBranch string
	GitCommit string
	BuildTime string
)

// Info is a snapshot of the running binary's version metadata.
type Info struct {
	GitRepo   string
	GitBranch string
	GitCommit string
	BuildTime string
	BuildInfo *debug.BuildInfo
}

// Get returns the current binary's version information.
func Get() Info {
	info := Info{
		GitRepo:   GitRepo,
		GitBranch: GitBranch,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
	}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		info.BuildInfo = buildInfo
	}
	return info
}
