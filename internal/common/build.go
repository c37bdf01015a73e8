package common

import (
	"fmt"
	"runtime/debug"
)

// Version and GitCommit can be set via ldflags at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func GetModuleBuildInfo() (string, string, bool) {
	if Version != "dev" {
		return Version, GitCommit, true
	}

	// Fall back to runtime debug info
	if info, ok := debug.ReadBuildInfo(); ok {
		version := info.Main.Version
		var gitCommit string

		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				gitCommit = setting.Value
				break
			}
		}

		return version, gitCommit, true
	}
	return "", "", false
}

// GetVersion returns a human readable version string.
func GetVersion() string {
	version, gitCommit, ok := GetModuleBuildInfo()
	if !ok {
		return "unknown"
	}
	if len(gitCommit) > 0 {
		return fmt.Sprintf("%s (git: %s)", version, gitCommit)
	}
	return version
}
