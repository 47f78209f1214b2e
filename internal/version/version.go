// Package version reports the scenebridge build version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/scenebridge/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/scenebridge/internal/version.Commit=abc123"
//
// When unset they are filled from the VCS stamp in the build info, or fall
// back to "dev".
var (
	// Version is the semantic version of the application
	Version = ""
	// Commit is the git commit hash
	Commit = ""
)

func init() {
	if Version == "" || Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			fromBuildInfo(info)
		}
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromBuildInfo fills unset fields from the vcs.* build settings.
func fromBuildInfo(info *debug.BuildInfo) {
	settings := map[string]string{}
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	if Commit == "" {
		if rev := settings["vcs.revision"]; rev != "" {
			if len(rev) > 7 {
				rev = rev[:7]
			}
			if settings["vcs.modified"] == "true" {
				rev += "-dirty"
			}
			Commit = rev
		}
	}

	if Version == "" {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			Version = v
		} else if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
			Version = "dev-" + t.Format("20060102")
		}
	}
}

// Full returns the version with commit and Go runtime.
func Full() string {
	return fmt.Sprintf("%s (commit: %s, %s %s/%s)", Version, Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
