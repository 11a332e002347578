// Package plugin implements the script-driven tool backend: a git checkout
// under the plugins dir whose bin/ hooks list, install, and describe tool
// versions. Every remote answer flows through a freshness-checked cache so
// repeated invocations stay fast without going stale.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"toolv/internal/domain"
	"toolv/internal/infra/cachefile"
	"toolv/internal/infra/envdiff"
	"toolv/internal/infra/gitrepo"
	"toolv/internal/infra/script"
)

// Params configures one plugin binding. Name and Dirs are required;
// everything else has a workable zero value.
type Params struct {
	Name     string
	Dirs     domain.Dirs
	Settings domain.Settings

	// RepoURL pins the plugin to an explicit repository, bypassing the
	// registry. May carry a "#ref" or "@ref" suffix.
	RepoURL string

	// ProjectRoot, when set, is exported to hook scripts as
	// TOOLV_PROJECT_ROOT.
	ProjectRoot string

	Logger *zap.Logger
}

// External is a script-driven plugin. The zero value is not usable; build
// one with New.
type External struct {
	name        string
	dirs        domain.Dirs
	settings    domain.Settings
	repoURL     string
	projectRoot string
	logger      *zap.Logger

	sm   *script.Manager
	repo *gitrepo.Repo

	remoteVersionsCache *cachefile.Manager[[]string]
	latestStableCache   *cachefile.Manager[string]
	aliasCache          *cachefile.Manager[map[string]string]
	legacyFilenameCache *cachefile.Manager[[]string]

	mu            sync.Mutex
	manifest      *Manifest
	binPathCaches map[string]*cachefile.Manager[[]string]
	execEnvCaches map[string]*cachefile.Manager[map[string]string]
}

var _ domain.Plugin = (*External)(nil)

// New binds a plugin name to its on-disk layout. The plugin does not need to
// be installed yet; capability checks degrade to "nothing available".
func New(p Params) *External {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("plugin").With(zap.String("plugin", p.Name))

	pluginPath := p.Dirs.PluginPath(p.Name)
	sm := script.New(p.Name, pluginPath, p.Settings.Verbose, logger).
		WithEnv("TOOLV_SHIMS_DIR", p.Dirs.Shims)

	e := &External{
		name:          p.Name,
		dirs:          p.Dirs,
		settings:      p.Settings,
		repoURL:       p.RepoURL,
		projectRoot:   p.ProjectRoot,
		logger:        logger,
		sm:            sm,
		repo:          gitrepo.New(pluginPath, logger),
		binPathCaches: map[string]*cachefile.Manager[[]string]{},
		execEnvCaches: map[string]*cachefile.Manager[map[string]string]{},
	}

	cacheDir := p.Dirs.PluginCachePath(p.Name)
	ttl := p.Settings.CacheFreshDuration()
	e.remoteVersionsCache = cachefile.New[[]string](
		filepath.Join(cacheDir, "remote_versions.gob.z"),
		cachefile.WithTTL(ttl),
		cachefile.WithFreshFile(pluginPath),
		cachefile.WithFreshFile(sm.ScriptPath(script.ListAll)),
		cachefile.WithLogger(logger),
	)
	e.latestStableCache = cachefile.New[string](
		filepath.Join(cacheDir, "latest_stable.gob.z"),
		cachefile.WithTTL(ttl),
		cachefile.WithFreshFile(pluginPath),
		cachefile.WithFreshFile(sm.ScriptPath(script.LatestStable)),
		cachefile.WithLogger(logger),
	)
	e.aliasCache = cachefile.New[map[string]string](
		filepath.Join(cacheDir, "aliases.gob.z"),
		cachefile.WithFreshFile(pluginPath),
		cachefile.WithFreshFile(sm.ScriptPath(script.ListAliases)),
		cachefile.WithLogger(logger),
	)
	e.legacyFilenameCache = cachefile.New[[]string](
		filepath.Join(cacheDir, "legacy_filenames.gob.z"),
		cachefile.WithFreshFile(pluginPath),
		cachefile.WithFreshFile(sm.ScriptPath(script.ListLegacyFilenames)),
		cachefile.WithLogger(logger),
	)
	return e
}

func (e *External) Name() string { return e.name }

// Path is the plugin checkout directory.
func (e *External) Path() string { return e.dirs.PluginPath(e.name) }

func (e *External) IsInstalled() bool {
	_, err := os.Stat(e.Path())
	return err == nil
}

// ListRemoteVersions asks list-all for everything the plugin can install.
// Output is whitespace-separated, conventionally oldest first.
func (e *External) ListRemoteVersions(ctx context.Context) ([]string, error) {
	versions, err := e.remoteVersionsCache.Get(ctx, func(ctx context.Context) ([]string, error) {
		out, err := e.sm.Read(ctx, script.ListAll)
		if err != nil {
			return nil, err
		}
		return strings.Fields(out), nil
	})
	if err != nil {
		return nil, domain.E(domain.CodeUnavailable, "plugin.ListRemoteVersions",
			fmt.Sprintf("failed listing remote versions for plugin %s", e.name), err)
	}
	return versions, nil
}

// LatestStable consults the optional latest-stable hook. Plugins without the
// hook answer ok=false with no subprocess spawned; the caller falls back to
// scanning the full version list.
func (e *External) LatestStable(ctx context.Context) (string, bool, error) {
	if !e.sm.ScriptExists(script.LatestStable) {
		return "", false, nil
	}
	v, err := e.latestStableCache.Get(ctx, func(ctx context.Context) (string, error) {
		out, err := e.sm.Read(ctx, script.LatestStable)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(out), nil
	})
	if err != nil {
		return "", false, domain.Wrap(domain.CodeUnavailable, "plugin.LatestStable", "", err)
	}
	if v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// ListInstalledVersions reports the version directories present under the
// plugin's install root, ascending. Symlinked entries are not real installs
// and are skipped.
func (e *External) ListInstalledVersions() ([]string, error) {
	entries, err := os.ReadDir(e.dirs.PluginInstallsPath(e.name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.Wrap(domain.CodeUnavailable, "plugin.ListInstalledVersions", "", err)
	}
	var versions []string
	for _, ent := range entries {
		if strings.HasPrefix(ent.Name(), ".") || !ent.IsDir() {
			continue
		}
		versions = append(versions, ent.Name())
	}
	domain.SortVersions(versions)
	return versions, nil
}

// ListAliases returns the alias table: manifest data when declared,
// otherwise the parsed output of list-aliases. Plugins with neither have no
// aliases.
func (e *External) ListAliases(ctx context.Context) (map[string]string, error) {
	if data := e.loadManifest().ListAliases.Data; len(data) > 0 {
		return maps.Clone(data), nil
	}
	if !e.sm.ScriptExists(script.ListAliases) {
		return nil, nil
	}
	aliases, err := e.aliasCache.Get(ctx, e.fetchAliases)
	if err != nil {
		return nil, domain.Wrap(domain.CodeUnavailable, "plugin.ListAliases", "", err)
	}
	return aliases, nil
}

// fetchAliases parses list-aliases output, one "alias version" pair per
// line. Lines with any other shape are noise from the plugin and skipped.
func (e *External) fetchAliases(ctx context.Context) (map[string]string, error) {
	out, err := e.sm.Read(ctx, script.ListAliases)
	if err != nil {
		return nil, err
	}
	aliases := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		switch len(fields) {
		case 0:
		case 2:
			aliases[fields[0]] = fields[1]
		default:
			e.logger.Debug("invalid alias line", zap.String("line", line))
		}
	}
	return aliases, nil
}

// ListLegacyFilenames returns the version filenames the plugin can read,
// e.g. .nvmrc: manifest data when declared, otherwise the output of
// list-legacy-filenames.
func (e *External) ListLegacyFilenames(ctx context.Context) ([]string, error) {
	if data := e.loadManifest().ListLegacyFilenames.Data; len(data) > 0 {
		return append([]string(nil), data...), nil
	}
	if !e.sm.ScriptExists(script.ListLegacyFilenames) {
		return nil, nil
	}
	names, err := e.legacyFilenameCache.Get(ctx, func(ctx context.Context) ([]string, error) {
		out, err := e.sm.Read(ctx, script.ListLegacyFilenames)
		if err != nil {
			return nil, err
		}
		return strings.Fields(out), nil
	})
	if err != nil {
		return nil, domain.Wrap(domain.CodeUnavailable, "plugin.ListLegacyFilenames", "", err)
	}
	return names, nil
}

// ParseLegacyFile extracts a version from a legacy version file, through
// parse-legacy-file when the plugin has one and a plain read otherwise. The
// answer is cached per file path and invalidated when the file is edited.
func (e *External) ParseLegacyFile(ctx context.Context, path string) (string, error) {
	const op = "plugin.ParseLegacyFile"
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", domain.Wrap(domain.CodeInvalidArgument, op, "", err)
	}
	cachePath := filepath.Join(e.dirs.PluginCachePath(e.name), "legacy", domain.PathHash(abs)+".txt")
	if cached, ok := readLegacyCache(cachePath, abs); ok {
		return cached, nil
	}

	var out string
	if e.sm.ScriptExists(script.ParseLegacyFile) {
		out, err = e.sm.Read(ctx, script.ParseLegacyFile, abs)
	} else {
		var raw []byte
		raw, err = os.ReadFile(abs)
		out = string(raw)
	}
	if err != nil {
		return "", domain.Wrap(domain.CodeUnavailable, op, "", err)
	}
	version := strings.TrimSpace(out)

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err == nil {
		if err := os.WriteFile(cachePath, []byte(version), 0o644); err != nil {
			e.logger.Debug("legacy cache write failed", zap.Error(err))
		}
	}
	return version, nil
}

// readLegacyCache returns the cached parse result unless the legacy file has
// been modified since the cache was written.
func readLegacyCache(cachePath, legacyPath string) (string, bool) {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return "", false
	}
	legacyInfo, err := os.Stat(legacyPath)
	if err == nil && legacyInfo.ModTime().After(cacheInfo.ModTime()) {
		return "", false
	}
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// ListBinPaths resolves the executable directories of an installed version,
// absolute. Plugins without list-bin-paths expose a single bin/ directory.
// System versions resolve from the host PATH and have none.
func (e *External) ListBinPaths(ctx context.Context, tv domain.ToolVersion) ([]string, error) {
	if tv.Request.Kind == domain.KindSystem {
		return nil, nil
	}
	paths, err := e.binPathCache(tv).Get(ctx, func(ctx context.Context) ([]string, error) {
		rel := []string{"bin"}
		if e.sm.ScriptExists(script.ListBinPaths) {
			out, err := e.scriptManagerFor(tv).Read(ctx, script.ListBinPaths)
			if err != nil {
				return nil, err
			}
			rel = strings.Fields(out)
		}
		return lo.Map(rel, func(p string, _ int) string {
			return filepath.Join(tv.InstallPath, p)
		}), nil
	})
	if err != nil {
		return nil, domain.Wrap(domain.CodeUnavailable, "plugin.ListBinPaths", "", err)
	}
	return paths, nil
}

// ExecEnv captures the environment the exec-env hook exports for one
// installed version. Only additions and changes survive; the result is
// cached per version (or per rendered manifest cache key). The hook never
// runs reentrantly: a script shelling back into the manager sees the guard
// variable and gets an empty answer.
func (e *External) ExecEnv(ctx context.Context, tv domain.ToolVersion) (map[string]string, error) {
	if tv.Request.Kind == domain.KindSystem {
		return nil, nil
	}
	if !e.sm.ScriptExists(script.ExecEnv) || os.Getenv(script.ReentrancyGuardVar) != "" {
		return nil, nil
	}
	cache, err := e.execEnvCache(tv)
	if err != nil {
		return nil, err
	}
	env, err := cache.Get(ctx, func(ctx context.Context) (map[string]string, error) {
		diff, err := envdiff.FromBashScript(ctx, e.sm.ScriptPath(script.ExecEnv), e.scriptManagerFor(tv).Env())
		if err != nil {
			return nil, err
		}
		return diff.ToEnv(), nil
	})
	if err != nil {
		return nil, domain.Wrap(domain.CodeUnavailable, "plugin.ExecEnv", "", err)
	}
	return env, nil
}

// InstallVersion runs the download hook when present, then install, with
// script output streamed line-wise to the progress reporter. Directory
// creation, locking, and failure cleanup belong to the caller.
func (e *External) InstallVersion(ctx context.Context, tv domain.ToolVersion, pr domain.ProgressReporter) error {
	if pr == nil {
		pr = domain.NopProgress{}
	}
	sm := e.scriptManagerFor(tv)
	if e.sm.ScriptExists(script.Download) {
		pr.SetMessage("downloading")
		if err := sm.RunByLine(ctx, script.Download, pr); err != nil {
			return domain.Wrap(domain.CodeUnavailable, "plugin.InstallVersion", "", err)
		}
	}
	pr.SetMessage("installing")
	if err := sm.RunByLine(ctx, script.Install, pr); err != nil {
		return domain.Wrap(domain.CodeUnavailable, "plugin.InstallVersion", "", err)
	}
	return nil
}

// UninstallVersion runs the optional uninstall hook. Most plugins have none;
// removing the install directory is the caller's job either way.
func (e *External) UninstallVersion(ctx context.Context, tv domain.ToolVersion) error {
	if !e.sm.ScriptExists(script.Uninstall) {
		return nil
	}
	if _, err := e.scriptManagerFor(tv).Read(ctx, script.Uninstall); err != nil {
		return domain.Wrap(domain.CodeUnavailable, "plugin.UninstallVersion", "", err)
	}
	return nil
}

// scriptManagerFor extends the base hook environment with the per-version
// variables: user options, project root, and the install/download locations
// under both native and asdf-compatible names.
func (e *External) scriptManagerFor(tv domain.ToolVersion) *script.Manager {
	sm := e.sm
	if e.projectRoot != "" {
		sm = sm.WithEnv("TOOLV_PROJECT_ROOT", e.projectRoot)
	}
	tv.Opts.Each(func(key, value string) {
		sm = sm.WithEnv("TOOLV_TOOL_OPTS__"+strings.ToUpper(key), value)
	})
	for _, prefix := range []string{"TOOLV_", "ASDF_"} {
		sm = sm.WithEnv(prefix+"INSTALL_PATH", tv.InstallPath).
			WithEnv(prefix+"DOWNLOAD_PATH", tv.DownloadPath).
			WithEnv(prefix+"INSTALL_TYPE", tv.InstallType()).
			WithEnv(prefix+"INSTALL_VERSION", tv.InstallVersion())
	}
	return sm
}

func (e *External) binPathCache(tv domain.ToolVersion) *cachefile.Manager[[]string] {
	e.mu.Lock()
	defer e.mu.Unlock()
	path := filepath.Join(tv.CachePath, "bin_paths.gob.z")
	if m, ok := e.binPathCaches[path]; ok {
		return m
	}
	m := cachefile.New[[]string](path,
		cachefile.WithFreshFile(e.Path()),
		cachefile.WithFreshFile(tv.InstallPath),
		cachefile.WithLogger(e.logger),
	)
	e.binPathCaches[path] = m
	return m
}

func (e *External) execEnvCache(tv domain.ToolVersion) (*cachefile.Manager[map[string]string], error) {
	filename := "exec_env.gob.z"
	if key, ok, err := e.loadManifest().RenderCacheKey(tv); err != nil {
		return nil, err
	} else if ok {
		filename = "exec_env-" + domain.PathHash(key) + ".gob.z"
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	path := filepath.Join(tv.CachePath, filename)
	if m, ok := e.execEnvCaches[path]; ok {
		return m, nil
	}
	m := cachefile.New[map[string]string](path,
		cachefile.WithFreshFile(e.Path()),
		cachefile.WithFreshFile(tv.InstallPath),
		cachefile.WithFreshFile(e.sm.ScriptPath(script.ExecEnv)),
		cachefile.WithLogger(e.logger),
	)
	e.execEnvCaches[path] = m
	return m, nil
}

// loadManifest reads the manifest once per plugin state. A malformed file is
// logged and treated as absent so one bad plugin cannot brick resolution.
func (e *External) loadManifest() Manifest {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.manifest == nil {
		m, err := LoadManifest(e.Path())
		if err != nil {
			e.logger.Warn("ignoring plugin manifest", zap.Error(err))
			m = Manifest{}
		}
		e.manifest = &m
	}
	return *e.manifest
}

// resetCaches drops every cached answer. Called after the checkout changes.
func (e *External) resetCaches() {
	for _, clear := range []func() error{
		e.remoteVersionsCache.Clear,
		e.latestStableCache.Clear,
		e.aliasCache.Clear,
		e.legacyFilenameCache.Clear,
	} {
		if err := clear(); err != nil {
			e.logger.Debug("cache clear failed", zap.Error(err))
		}
	}
	e.mu.Lock()
	e.manifest = nil
	e.binPathCaches = map[string]*cachefile.Manager[[]string]{}
	e.execEnvCaches = map[string]*cachefile.Manager[map[string]string]{}
	e.mu.Unlock()
}
