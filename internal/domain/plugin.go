package domain

import "context"

// Plugin is the capability surface a version backend provides to the
// resolution engine. The script-driven implementation lives in
// internal/infra/plugin; additional backend kinds only need to satisfy this
// interface.
type Plugin interface {
	Name() string
	IsInstalled() bool

	// ListRemoteVersions returns every version the backend knows about, in
	// the backend's order (ascending by convention). It fails when the
	// backend has no listing mechanism at all.
	ListRemoteVersions(ctx context.Context) ([]string, error)

	// LatestStable returns the backend's dedicated latest-stable answer.
	// ok is false when the backend cannot answer without the full list.
	LatestStable(ctx context.Context) (version string, ok bool, err error)

	// ListInstalledVersions reports the versions present under the install
	// root, sorted ascending.
	ListInstalledVersions() ([]string, error)

	ListAliases(ctx context.Context) (map[string]string, error)
	ListLegacyFilenames(ctx context.Context) ([]string, error)
	ParseLegacyFile(ctx context.Context, path string) (string, error)

	ListBinPaths(ctx context.Context, tv ToolVersion) ([]string, error)
	ExecEnv(ctx context.Context, tv ToolVersion) (map[string]string, error)

	InstallVersion(ctx context.Context, tv ToolVersion, pr ProgressReporter) error
	UninstallVersion(ctx context.Context, tv ToolVersion) error
}

// ProgressReporter receives textual status updates from long-running
// operations. Implementations live in internal/infra/progress.
type ProgressReporter interface {
	SetMessage(msg string)
	Finish(msg string)
}

// NopProgress discards all updates.
type NopProgress struct{}

func (NopProgress) SetMessage(string) {}

func (NopProgress) Finish(string) {}
