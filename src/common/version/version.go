// Package version holds build-time version information for sketchforge binaries.
package version

import (
	"fmt"
	"runtime"
)

// Info holds version information, usually injected through ldflags
type Info struct {
	// Version is the full version string, e.g. "v1.2.0-4f9f297"
	Version string

	// BuildDate is the ISO 8601 build timestamp
	BuildDate string

	// GitCommit is the short git commit hash
	GitCommit string
}

// Default values for unset version info
var (
	DefaultVersion   = "dev"
	DefaultBuildDate = "unknown"
	DefaultGitCommit = "unknown"
)

// New creates a new Info with default values
func New() *Info {
	return &Info{
		Version:   DefaultVersion,
		BuildDate: DefaultBuildDate,
		GitCommit: DefaultGitCommit,
	}
}

// String returns the version string
func (i *Info) String() string {
	return i.Version
}

// Full returns a detailed multi-line version string
func (i *Info) Full() string {
	return fmt.Sprintf(`%s
  Build Date: %s
  Git Commit: %s
  Go Version: %s`,
		i.Version,
		i.BuildDate,
		i.GitCommit,
		runtime.Version(),
	)
}

// Map returns version info as a map for JSON responses
func (i *Info) Map() map[string]string {
	return map[string]string{
		"version":    i.Version,
		"build_date": i.BuildDate,
		"git_commit": i.GitCommit,
		"go_version": runtime.Version(),
	}
}
