package plugin

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"toolv/internal/domain"
	"toolv/internal/infra/state"
)

// Manager hands out plugin bindings and keeps one instance per name, so
// manifest and cache state is shared within a run.
type Manager struct {
	dirs        domain.Dirs
	settings    domain.Settings
	projectRoot string
	store       *state.Store
	logger      *zap.Logger

	mu       sync.Mutex
	bindings map[string]*External
}

type ManagerOptions struct {
	Dirs        domain.Dirs
	Settings    domain.Settings
	ProjectRoot string
	Store       *state.Store
	Logger      *zap.Logger
}

func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		dirs:        opts.Dirs,
		settings:    opts.Settings,
		projectRoot: opts.ProjectRoot,
		store:       opts.Store,
		logger:      logger.Named("plugins"),
		bindings:    map[string]*External{},
	}
}

// Get returns the binding for name, creating it on first use. The plugin
// does not have to be installed.
func (m *Manager) Get(name string) *External {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.bindings[name]; ok {
		return e
	}
	e := New(Params{
		Name:        name,
		Dirs:        m.dirs,
		Settings:    m.settings,
		ProjectRoot: m.projectRoot,
		Logger:      m.logger,
	})
	m.bindings[name] = e
	return e
}

// Bind pins name to an explicit repository URL for a subsequent Install.
// The binding replaces any cached one for the same name.
func (m *Manager) Bind(name, repoURL string) *External {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := New(Params{
		Name:        name,
		Dirs:        m.dirs,
		Settings:    m.settings,
		ProjectRoot: m.projectRoot,
		RepoURL:     repoURL,
		Logger:      m.logger,
	})
	m.bindings[name] = e
	return e
}

// InstalledPlugins returns bindings for every plugin present on disk,
// sorted by name.
func (m *Manager) InstalledPlugins() ([]*External, error) {
	names, err := Installed(m.dirs)
	if err != nil {
		return nil, err
	}
	out := make([]*External, 0, len(names))
	for _, name := range names {
		out = append(out, m.Get(name))
	}
	return out, nil
}

// All maps installed plugin names to their capability interface, the shape
// the resolver consumes.
func (m *Manager) All() (map[string]domain.Plugin, error) {
	installed, err := m.InstalledPlugins()
	if err != nil {
		return nil, err
	}
	plugins := make(map[string]domain.Plugin, len(installed))
	for _, e := range installed {
		plugins[e.Name()] = e
	}
	return plugins, nil
}

// AutoUpdateAll runs the time-gated update on every installed plugin. A
// plugin that cannot be updated is logged and skipped; stale is usable.
func (m *Manager) AutoUpdateAll(ctx context.Context) {
	installed, err := m.InstalledPlugins()
	if err != nil {
		m.logger.Warn("failed to list installed plugins", zap.Error(err))
		return
	}
	for _, e := range installed {
		if err := e.AutoUpdate(ctx, m.store, m.settings.PluginAutoupdateLastCheckDuration); err != nil {
			m.logger.Warn("plugin autoupdate failed", zap.String("plugin", e.Name()), zap.Error(err))
		}
	}
}
