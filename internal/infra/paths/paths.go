// Package paths resolves the on-disk layout for plugin, cache, install, and
// download roots. Overrides come from TOOLV_* environment variables; the
// defaults follow XDG conventions.
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"toolv/internal/domain"
)

const (
	dataDirEnv   = "TOOLV_DATA_DIR"
	cacheDirEnv  = "TOOLV_CACHE_DIR"
	configDirEnv = "TOOLV_CONFIG_DIR"

	appDirName = "toolv"
)

// Resolve returns the directory layout for this invocation.
func Resolve() domain.Dirs {
	data := strings.TrimSpace(os.Getenv(dataDirEnv))
	if data == "" {
		data = filepath.Join(xdgBase("XDG_DATA_HOME", filepath.Join(".local", "share")), appDirName)
	}
	cache := strings.TrimSpace(os.Getenv(cacheDirEnv))
	if cache == "" {
		cache = filepath.Join(xdgBase("XDG_CACHE_HOME", ".cache"), appDirName)
	}
	return domain.Dirs{
		Root:      data,
		Plugins:   filepath.Join(data, "plugins"),
		Cache:     cache,
		Installs:  filepath.Join(data, "installs"),
		Downloads: filepath.Join(data, "downloads"),
		Shims:     filepath.Join(data, "shims"),
	}
}

// ConfigDir returns the directory holding the settings file, the user
// registry, and the state database.
func ConfigDir() string {
	if dir := strings.TrimSpace(os.Getenv(configDirEnv)); dir != "" {
		return dir
	}
	return filepath.Join(xdgBase("XDG_CONFIG_HOME", ".config"), appDirName)
}

// SettingsFile is the optional yaml settings file consulted after TOOLV_*
// environment variables.
func SettingsFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// RegistryFile is the default location of the user short-name registry.
func RegistryFile() string {
	return filepath.Join(ConfigDir(), "registry.yaml")
}

// StateFile is the plugin-update bookkeeping database.
func StateFile() string {
	return filepath.Join(ConfigDir(), "state.db")
}

func xdgBase(env, homeRelative string) string {
	if base := strings.TrimSpace(os.Getenv(env)); base != "" {
		return base
	}
	if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		return filepath.Join(home, homeRelative)
	}
	if dir, err := os.UserConfigDir(); err == nil && strings.TrimSpace(dir) != "" {
		return dir
	}
	return "."
}
