// Package version exposes build metadata, overridden at link time via
// -ldflags "-X github.com/paninifs/engine/pkg/version.Version=...".
package version

var (
	Version = "dev"
	Commit  = "unknown"
)
