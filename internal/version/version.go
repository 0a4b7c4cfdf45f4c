// Package version carries build metadata injected with -ldflags:
//
//	go build -ldflags "-X github.com/smazurov/plexwatch/internal/version.Version=1.2.0 \
//	  -X github.com/smazurov/plexwatch/internal/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the release version.
	Version = "dev"
	// GitCommit is the short commit hash.
	GitCommit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version" example:"1.2.0" doc:"Release version"`
	GitCommit string `json:"git_commit" example:"3f2a9c1" doc:"Commit the binary was built from"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target OS and architecture"`
}

// Get returns version and build information.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns "plexwatch <version> (<commit>)".
func String() string {
	return fmt.Sprintf("plexwatch %s (%s)", Version, GitCommit)
}

// UserAgent is sent with every health probe.
func UserAgent() string {
	return "plexwatch/" + Version
}
