// Package version holds build metadata for the searchd binaries, injected
// with -ldflags "-X github.com/kbforge/searchd/internal/version.Version=...".
package version

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the version with its commit, the form the CLI prints.
func String() string {
	return Version + " (" + Commit + ")"
}
