package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolv/internal/app/toolset"
	"toolv/internal/domain"
	"toolv/internal/infra/paths"
	"toolv/internal/infra/plugin"
	"toolv/internal/infra/progress"
	"toolv/internal/infra/registry"
	"toolv/internal/infra/settings"
	"toolv/internal/infra/state"
)

// session is the wired-up engine for one command invocation.
type session struct {
	dirs     domain.Dirs
	settings domain.Settings
	logger   *zap.Logger
	store    *state.Store
	plugins  *plugin.Manager
}

func newSession(cmd *cobra.Command, opts *cliOptions) (*session, error) {
	dirs := paths.Resolve()

	cfg, err := settings.NewLoader(opts.logger).Load(cmd.Context(), paths.SettingsFile())
	if err != nil {
		return nil, err
	}
	opts.apply(&cfg)
	if cfg.LogLevel != opts.logLevel {
		opts.logger = newLogger(cfg.LogLevel)
	}

	// A broken state database degrades bookkeeping, not the command.
	store, err := state.Open(paths.StateFile())
	if err != nil {
		opts.logger.Warn("state database unavailable", zap.Error(err))
		store = nil
	}

	mgr := plugin.NewManager(plugin.ManagerOptions{
		Dirs:     dirs,
		Settings: cfg,
		Store:    store,
		Logger:   opts.logger,
	})

	return &session{
		dirs:     dirs,
		settings: cfg,
		logger:   opts.logger,
		store:    store,
		plugins:  mgr,
	}, nil
}

func (s *session) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *session) registry() (*registry.Registry, error) {
	file := s.settings.RegistryFile
	if file == "" {
		file = paths.RegistryFile()
	}
	return registry.Load(file, s.settings.DisableDefaultRegistry)
}

func (s *session) resolver() (*toolset.Resolver, error) {
	plugins, err := s.plugins.All()
	if err != nil {
		return nil, err
	}
	return toolset.NewResolver(toolset.ResolverParams{
		Dirs:     s.dirs,
		Settings: s.settings,
		Plugins:  plugins,
		Logger:   s.logger,
	}), nil
}

func (s *session) installer() (*toolset.Installer, error) {
	plugins, err := s.plugins.All()
	if err != nil {
		return nil, err
	}
	return toolset.NewInstaller(toolset.InstallerParams{
		Dirs:     s.dirs,
		Settings: s.settings,
		Plugins:  plugins,
		Store:    s.store,
		Logger:   s.logger,
		Progress: func(label string) domain.ProgressReporter {
			return progress.NewWriter(os.Stderr, label)
		},
	}), nil
}

// ensurePlugin makes name usable as a backend, cloning it from the registry
// when it is not installed yet.
func (s *session) ensurePlugin(ctx context.Context, name string) error {
	e := s.plugins.Get(name)
	if e.IsInstalled() {
		return nil
	}
	reg, err := s.registry()
	if err != nil {
		return err
	}
	if _, ok := reg.LookupURL(name); !ok {
		return domain.E(domain.CodeNotFound, "cli",
			fmt.Sprintf("plugin %s is not installed and not in the registry", name), nil)
	}
	if err := e.Install(ctx, reg, progress.NewWriter(os.Stderr, name)); err != nil {
		return err
	}
	s.recordEvent(state.EventPluginInstall, name, "")
	return nil
}

func (s *session) recordEvent(eventType, plugin, version string) {
	if s.store == nil {
		return
	}
	if _, err := s.store.RecordEvent(eventType, plugin, version); err != nil {
		s.logger.Debug("journal write failed", zap.Error(err))
	}
}

// parseToolArg splits "tool@version" into a plugin name and a version
// request. A bare tool name means latest.
func parseToolArg(arg string) (string, domain.ToolVersionRequest, error) {
	name, token, found := strings.Cut(arg, "@")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.ToolVersionRequest{}, domain.E(domain.CodeInvalidArgument, "cli",
			"tool name is required in "+strings.TrimSpace(arg), nil)
	}
	if !found || strings.TrimSpace(token) == "" {
		return name, domain.NewVersionRequest(name, "latest"), nil
	}
	req, err := domain.ParseRequest(name, strings.TrimSpace(token))
	if err != nil {
		return "", domain.ToolVersionRequest{}, err
	}
	return name, req, nil
}
