// Package version reports the build of the wfmarket binary. Values are set
// at link time:
//
//	go build -ldflags "-X github.com/ramonehamilton/wfmarket-companion/internal/version.Version=v0.3.0 \
//	  -X github.com/ramonehamilton/wfmarket-companion/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import "runtime/debug"

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// Commit is the short revision the binary was built from.
	Commit = ""
)

// GetVersion returns the version string, suffixed with the commit when known.
func GetVersion() string {
	commit := Commit
	if commit == "" {
		commit = vcsRevision()
	}
	if commit == "" {
		return Version
	}
	return Version + " (" + commit + ")"
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 7 {
				return s.Value[:7]
			}
			return s.Value
		}
	}
	return ""
}
