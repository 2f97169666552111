// Package version reports build metadata for the panel binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	// Version is overridden by ldflags at build time.
	Version = "dev"
	// CommitHash is overridden by ldflags; otherwise read from VCS build info.
	CommitHash = ""
	// BuildTime is overridden by ldflags; otherwise read from VCS build info.
	BuildTime = ""
)

var loadVCS sync.Once

// Info is the structured build description.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get returns the build description, filling commit and time from VCS info when not set.
func Get() Info {
	loadVCS.Do(func() {
		if CommitHash != "" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				CommitHash = setting.Value
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	})
	return Info{Version: Version, Commit: CommitHash, BuildTime: BuildTime, GoVersion: runtime.Version()}
}

// GetInfo returns "version (shortcommit)".
func GetInfo() string {
	info := Get()
	res := info.Version
	if info.Commit != "" {
		short := info.Commit
		if len(short) > 7 {
			short = short[:7]
		}
		res += fmt.Sprintf(" (%s)", short)
	}
	return res
}
