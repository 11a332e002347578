// Package settings loads runtime settings from defaults, an optional yaml
// file, and TOOLV_* environment variables, in that order of precedence.
package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"toolv/internal/domain"
)

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("settings")}
}

func newSettingsViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix("toolv")
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("jobs", domain.DefaultJobs)
	v.SetDefault("raw", false)
	v.SetDefault("verbose", false)
	v.SetDefault("prefer_stale", false)
	v.SetDefault("always_keep_download", false)
	v.SetDefault("always_keep_install", false)
	v.SetDefault("legacy_version_file", domain.DefaultLegacyVersionFile)
	v.SetDefault("plugin_autoupdate_last_check_duration", domain.DefaultPluginAutoupdateLastCheck)
	v.SetDefault("cache_ttl", domain.DefaultCacheTTL)
	v.SetDefault("trusted_config_paths", []string{})
	v.SetDefault("disable_default_registry", false)
	v.SetDefault("registry_file", "")
	v.SetDefault("disable_self_update_check", false)
	v.SetDefault("log_level", domain.DefaultLogLevel)
}

type rawSettings struct {
	Jobs                              int           `mapstructure:"jobs"`
	Raw                               bool          `mapstructure:"raw"`
	Verbose                           bool          `mapstructure:"verbose"`
	PreferStale                       bool          `mapstructure:"prefer_stale"`
	AlwaysKeepDownload                bool          `mapstructure:"always_keep_download"`
	AlwaysKeepInstall                 bool          `mapstructure:"always_keep_install"`
	LegacyVersionFile                 bool          `mapstructure:"legacy_version_file"`
	PluginAutoupdateLastCheckDuration time.Duration `mapstructure:"plugin_autoupdate_last_check_duration"`
	CacheTTL                          time.Duration `mapstructure:"cache_ttl"`
	TrustedConfigPaths                []string      `mapstructure:"trusted_config_paths"`
	DisableDefaultRegistry            bool          `mapstructure:"disable_default_registry"`
	RegistryFile                      string        `mapstructure:"registry_file"`
	DisableSelfUpdateCheck            bool          `mapstructure:"disable_self_update_check"`
	LogLevel                          string        `mapstructure:"log_level"`
}

// Load builds the effective settings. path points at the optional yaml file;
// a missing file is fine, the defaults and environment still apply.
func (l *Loader) Load(ctx context.Context, path string) (domain.Settings, error) {
	v := newSettingsViper()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			l.logger.Debug("no settings file", zap.String("path", path))
		case err != nil:
			return domain.Settings{}, fmt.Errorf("read settings: %w", err)
		default:
			if err := v.ReadConfig(bytes.NewBuffer(data)); err != nil {
				return domain.Settings{}, fmt.Errorf("parse settings: %w", err)
			}
		}
	}

	var raw rawSettings
	if err := v.Unmarshal(&raw); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	cfg, errs := normalizeSettings(raw)
	if len(errs) > 0 {
		return domain.Settings{}, errors.New(strings.Join(errs, "; "))
	}
	return cfg, ctx.Err()
}

func normalizeSettings(raw rawSettings) (domain.Settings, []string) {
	var errs []string

	jobs := raw.Jobs
	if jobs <= 0 {
		errs = append(errs, "jobs must be > 0")
	}

	if raw.PluginAutoupdateLastCheckDuration < 0 {
		errs = append(errs, "plugin_autoupdate_last_check_duration must be >= 0")
	}
	if raw.CacheTTL < 0 {
		errs = append(errs, "cache_ttl must be >= 0")
	}

	logLevel := strings.ToLower(strings.TrimSpace(raw.LogLevel))
	if logLevel == "" {
		logLevel = domain.DefaultLogLevel
	}
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log_level must be one of debug, info, warn, error")
	}

	var trusted []string
	for _, p := range raw.TrustedConfigPaths {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			trusted = append(trusted, trimmed)
		}
	}

	verbose := raw.Verbose
	if raw.Raw {
		// raw mode implies a single job with script output passed through
		jobs = 1
		verbose = true
	}

	cfg := domain.Settings{
		Jobs:                              jobs,
		Raw:                               raw.Raw,
		Verbose:                           verbose,
		PreferStale:                       raw.PreferStale,
		AlwaysKeepDownload:                raw.AlwaysKeepDownload,
		AlwaysKeepInstall:                 raw.AlwaysKeepInstall,
		LegacyVersionFile:                 raw.LegacyVersionFile,
		PluginAutoupdateLastCheckDuration: raw.PluginAutoupdateLastCheckDuration,
		CacheTTL:                          raw.CacheTTL,
		TrustedConfigPaths:                trusted,
		DisableDefaultRegistry:            raw.DisableDefaultRegistry,
		RegistryFile:                      strings.TrimSpace(raw.RegistryFile),
		DisableSelfUpdateCheck:            raw.DisableSelfUpdateCheck,
		LogLevel:                          logLevel,
	}
	return cfg, errs
}
