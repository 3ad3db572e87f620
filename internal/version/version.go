// Package version reports what binary is running. Release builds set the
// variables with -ldflags "-X"; other builds fall back to the VCS stamp the
// Go toolchain embeds.
package version

import (
	"runtime/debug"
	"sync"
)

var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
}

var (
	once sync.Once
	info BuildInfo
)

// Info returns the build information, resolved once.
func Info() BuildInfo {
	once.Do(func() { info = resolve(debug.ReadBuildInfo) })
	return info
}

func resolve(read func() (*debug.BuildInfo, bool)) BuildInfo {
	out := BuildInfo{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime}

	bi, ok := read()
	if !ok {
		return withUnknowns(out)
	}
	out.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if out.GitCommit == "" {
				out.GitCommit = shortCommit(s.Value)
			}
		case "vcs.time":
			if out.BuildTime == "" {
				out.BuildTime = s.Value
			}
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}
	return withUnknowns(out)
}

func shortCommit(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

func withUnknowns(b BuildInfo) BuildInfo {
	if b.GitCommit == "" {
		b.GitCommit = "unknown"
	}
	if b.BuildTime == "" {
		b.BuildTime = "unknown"
	}
	return b
}
