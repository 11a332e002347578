package domain

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testDirs(root string) Dirs {
	return Dirs{
		Root:      root,
		Plugins:   filepath.Join(root, "plugins"),
		Cache:     filepath.Join(root, "cache"),
		Installs:  filepath.Join(root, "installs"),
		Downloads: filepath.Join(root, "downloads"),
		Shims:     filepath.Join(root, "shims"),
	}
}

func TestNewToolVersionDerivesPaths(t *testing.T) {
	dirs := testDirs("/data")
	tv := NewToolVersion(dirs, NewVersionRequest("tiny", "1.0.0"), nil, "1.0.0")

	require.Equal(t, "tiny", tv.PluginName)
	require.Equal(t, "1.0.0", tv.Version)
	require.Equal(t, filepath.Join("/data", "installs", "tiny", "1.0.0"), tv.InstallPath)
	require.Equal(t, filepath.Join("/data", "cache", "tiny", "1.0.0"), tv.CachePath)
	require.Equal(t, filepath.Join("/data", "downloads", "tiny", "1.0.0"), tv.DownloadPath)
	require.Equal(t, "tiny@1.0.0", tv.String())
}

func TestToolVersionSamePathnameSharesInstall(t *testing.T) {
	dirs := testDirs("/data")
	a := NewToolVersion(dirs, NewVersionRequest("tiny", "2.1"), nil, "2.1")
	b := NewToolVersion(dirs, NewVersionRequest("tiny", "2.1"), nil, "2.1")
	require.Equal(t, a.InstallPath, b.InstallPath)
}

func TestToolVersionInstallTypeAndVersion(t *testing.T) {
	dirs := testDirs("/data")

	tv := NewToolVersion(dirs, NewVersionRequest("tiny", "1.0.0"), nil, "1.0.0")
	require.Equal(t, "version", tv.InstallType())
	require.Equal(t, "1.0.0", tv.InstallVersion())

	tv = NewToolVersion(dirs, NewPrefixRequest("tiny", "1"), nil, "1.0.0")
	require.Equal(t, "version", tv.InstallType())

	tv = NewToolVersion(dirs, NewRefRequest("tiny", "master"), nil, "ref-master")
	require.Equal(t, "ref", tv.InstallType())
	require.Equal(t, "master", tv.InstallVersion())

	tv = NewToolVersion(dirs, NewPathRequest("tiny", "/opt/tiny"), nil, "path-/opt/tiny")
	require.Equal(t, "path", tv.InstallType())
}
