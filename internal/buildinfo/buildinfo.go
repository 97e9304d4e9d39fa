// Package buildinfo carries version metadata injected at link time.
package buildinfo

// Overridden via -ldflags "-X github.com/modoterra/tailcast/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
