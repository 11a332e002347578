package domain

import (
	"path/filepath"
)

// Dirs is the on-disk layout every derived tool path hangs off. Plugins,
// caches, installs, and downloads are each keyed by plugin name beneath
// their root.
type Dirs struct {
	Root      string
	Plugins   string
	Cache     string
	Installs  string
	Downloads string
	Shims     string
}

func (d Dirs) PluginPath(name string) string {
	return filepath.Join(d.Plugins, name)
}

func (d Dirs) PluginCachePath(name string) string {
	return filepath.Join(d.Cache, name)
}

func (d Dirs) PluginInstallsPath(name string) string {
	return filepath.Join(d.Installs, name)
}

func (d Dirs) PluginDownloadsPath(name string) string {
	return filepath.Join(d.Downloads, name)
}

// ToolVersion is a resolved, concrete version of a tool together with its
// deterministic on-disk locations.
type ToolVersion struct {
	Request      ToolVersionRequest
	PluginName   string
	Version      string
	InstallPath  string
	CachePath    string
	DownloadPath string
	Opts         *ToolVersionOptions
}

func NewToolVersion(dirs Dirs, req ToolVersionRequest, opts *ToolVersionOptions, version string) ToolVersion {
	pathname := req.Pathname()
	return ToolVersion{
		Request:      req,
		PluginName:   req.Plugin,
		Version:      version,
		InstallPath:  filepath.Join(dirs.Installs, req.Plugin, pathname),
		CachePath:    filepath.Join(dirs.Cache, req.Plugin, pathname),
		DownloadPath: filepath.Join(dirs.Downloads, req.Plugin, pathname),
		Opts:         opts,
	}
}

func (tv ToolVersion) String() string {
	return tv.PluginName + "@" + tv.Version
}

// InstallType names how the version was requested; scripts receive it as
// TOOLV_INSTALL_TYPE/ASDF_INSTALL_TYPE.
func (tv ToolVersion) InstallType() string {
	switch tv.Request.Kind {
	case KindRef:
		return "ref"
	case KindPath:
		return "path"
	case KindSystem:
		return "system"
	default:
		return "version"
	}
}

// InstallVersion is the concrete token scripts receive; ref requests expose
// the bare ref without the ref- prefix.
func (tv ToolVersion) InstallVersion() string {
	if tv.Request.Kind == KindRef {
		return tv.Request.Value
	}
	return tv.Version
}
