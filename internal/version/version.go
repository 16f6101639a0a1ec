// Package version holds build metadata injected via -ldflags, e.g.
//
//	-X mibagent/internal/version.Version=v1.2.3 -X mibagent/internal/version.Commit=abc1234
package version

import "runtime"

var (
	// Version is a SemVer tag like v1.2.3 for releases. Empty for dev builds.
	Version = ""
	// Commit is the short git SHA for the build.
	Commit = ""
	// Date is the UTC build timestamp in RFC3339 format.
	Date = ""
	// Dirty is "dirty" when the working tree had uncommitted changes.
	Dirty = ""
)

// Info is the JSON form served by the HTTP API.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"go_version"`
}

// String returns Version for releases, "dev-<sha>" (with a trailing "*"
// when dirty) for snapshot builds, and "dev" otherwise.
func String() string {
	if Version != "" {
		return Version
	}
	if Commit != "" {
		suffix := Commit
		if Dirty == "dirty" {
			suffix += "*"
		}
		return "dev-" + suffix
	}
	return "dev"
}

// Get returns the build metadata.
func Get() Info {
	return Info{Version: String(), Commit: Commit, Date: Date, GoVersion: runtime.Version()}
}
