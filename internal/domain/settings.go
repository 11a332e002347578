package domain

import "time"

const (
	DefaultJobs                      = 4
	DefaultCacheTTL                  = 24 * time.Hour
	DefaultPluginAutoupdateLastCheck = 7 * 24 * time.Hour
	DefaultLogLevel                  = "info"
	DefaultLegacyVersionFile         = true
	DefaultSelfUpdateCheckInterval   = 24 * time.Hour
)

// Settings is the resolved runtime configuration for one invocation.
type Settings struct {
	Jobs                              int
	Raw                               bool
	Verbose                           bool
	PreferStale                       bool
	AlwaysKeepDownload                bool
	AlwaysKeepInstall                 bool
	LegacyVersionFile                 bool
	PluginAutoupdateLastCheckDuration time.Duration
	CacheTTL                          time.Duration
	DisableDefaultRegistry            bool
	RegistryFile                      string
	TrustedConfigPaths                []string
	DisableSelfUpdateCheck            bool
	LogLevel                          string
}

func DefaultSettings() Settings {
	return Settings{
		Jobs:                              DefaultJobs,
		LegacyVersionFile:                 DefaultLegacyVersionFile,
		PluginAutoupdateLastCheckDuration: DefaultPluginAutoupdateLastCheck,
		CacheTTL:                          DefaultCacheTTL,
		LogLevel:                          DefaultLogLevel,
	}
}

// CacheFreshDuration is the TTL applied to plugin remote-data caches. Zero
// means no TTL, which is what prefer-stale asks for.
func (s Settings) CacheFreshDuration() time.Duration {
	if s.PreferStale {
		return 0
	}
	if s.CacheTTL <= 0 {
		return DefaultCacheTTL
	}
	return s.CacheTTL
}
