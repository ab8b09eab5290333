// Package config exposes pawwatch build metadata.
package config

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X github.com/good-yellow-bee/pawwatch/pkg/config.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

var (
	buildOnce sync.Once
	build     BuildInfo
)

// GetBuildInfo returns the build metadata. Values not injected by ldflags
// fall back to the VCS stamp the go tool embeds.
func GetBuildInfo() BuildInfo {
	buildOnce.Do(func() {
		build = BuildInfo{
			Version:   Version,
			Commit:    Commit,
			BuildTime: BuildTime,
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		if build.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			build.Version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if build.Commit == "unknown" {
					build.Commit = shortRevision(s.Value)
				}
			case "vcs.time":
				if build.BuildTime == "unknown" {
					build.BuildTime = s.Value
				}
			case "vcs.modified":
				build.Modified = s.Value == "true"
			}
		}
	})
	return build
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// VersionString formats the build metadata for a --version style output.
func VersionString(binary string) string {
	b := GetBuildInfo()
	commit := b.Commit
	if b.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s %s (%s) built at %s with %s %s/%s",
		binary, b.Version, commit, b.BuildTime, b.GoVersion, b.OS, b.Arch)
}

// UserAgent is sent by outbound HTTP clients.
func UserAgent() string {
	return "pawwatch/" + GetBuildInfo().Version
}
