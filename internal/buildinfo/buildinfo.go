// Package buildinfo carries build identification injected at link time.
package buildinfo

// Set via -ldflags "-X toolv/internal/buildinfo.Version=... -X toolv/internal/buildinfo.Build=...".
var (
	Version = "dev"
	Build   = "unknown"
)
