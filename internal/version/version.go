// Package version carries build metadata injected via -ldflags.
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns a single-line version summary for the CLI.
func String() string {
	return "meshmap " + Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
