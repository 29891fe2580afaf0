// Package misc keeps build information.
package misc

import (
	"runtime/debug"
)

// Set by linker: -X pxvp/misc.version=... -X pxvp/misc.gitHash=...
var (
	version = "dev"
	gitHash = ""
)

const appName = "pxvp"

func GetAppName() string {
	return appName
}

func GetVersion() string {
	return version
}

// GetGitHash returns commit program was built from. When linker did not set
// it, VCS information recorded by the toolchain is used.
func GetGitHash() string {
	if gitHash != "" {
		return gitHash
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
