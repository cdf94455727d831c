// Package version provides build version information for codeqa.
// These variables are set at build time via ldflags.
package version

import "fmt"

// Build information variables - set via ldflags.
// Example: go build -ldflags "-X codeqa/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the semantic version (e.g., "v1.2.3" or "dev" for development builds).
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String renders the full build information on one line.
func String() string {
	return fmt.Sprintf("codeqa %s (commit %s, built %s)", Version, Commit, Date)
}
