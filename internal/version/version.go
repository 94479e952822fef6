// Package version carries build metadata injected at link time.
package version

// Set via -ldflags "-X github.com/reelworks/reelpress/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
)
