// Package toolset turns version requests into concrete tool versions and
// materializes them on disk: the resolution engine, the per-tool request
// lists, and the installer pool that fetches whatever resolution found
// missing.
package toolset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"toolv/internal/domain"
)

// ResolverParams configures a Resolver. Plugins maps plugin name to backend.
// Aliases is the user-level alias table, keyed by plugin then alias; it wins
// over aliases the plugin itself declares.
type ResolverParams struct {
	Dirs     domain.Dirs
	Settings domain.Settings
	Plugins  map[string]domain.Plugin
	Aliases  map[string]map[string]string
	Logger   *zap.Logger
}

// Resolver resolves ToolVersionRequests against plugin version listings.
type Resolver struct {
	dirs     domain.Dirs
	settings domain.Settings
	plugins  map[string]domain.Plugin
	aliases  map[string]map[string]string
	logger   *zap.Logger
}

func NewResolver(p ResolverParams) *Resolver {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	plugins := p.Plugins
	if plugins == nil {
		plugins = map[string]domain.Plugin{}
	}
	return &Resolver{
		dirs:     p.Dirs,
		settings: p.Settings,
		plugins:  plugins,
		aliases:  p.Aliases,
		logger:   logger.Named("resolver"),
	}
}

// Plugin looks up a backend by name.
func (r *Resolver) Plugin(name string) (domain.Plugin, bool) {
	p, ok := r.plugins[name]
	return p, ok
}

// Resolve turns one request into a concrete ToolVersion. System and ref
// requests build directly and never touch a plugin script; path requests
// canonicalize and must exist; version and prefix requests consult the
// plugin's listings. latest forces live answers over installed state.
func (r *Resolver) Resolve(ctx context.Context, req domain.ToolVersionRequest, opts *domain.ToolVersionOptions, latest bool) (domain.ToolVersion, error) {
	switch req.Kind {
	case domain.KindRef, domain.KindSystem:
		return domain.NewToolVersion(r.dirs, req, opts, req.Version()), nil
	case domain.KindPath:
		return r.resolvePath(req, opts)
	}
	plugin, ok := r.plugins[req.Plugin]
	if !ok {
		return domain.ToolVersion{}, &domain.PluginNotInstalledError{Plugin: req.Plugin}
	}
	if req.Kind == domain.KindPrefix {
		return r.resolvePrefix(ctx, plugin, req, req.Value, opts)
	}
	return r.resolveVersion(ctx, plugin, req, opts, latest)
}

func (r *Resolver) resolveVersion(ctx context.Context, plugin domain.Plugin, req domain.ToolVersionRequest, opts *domain.ToolVersionOptions, latest bool) (domain.ToolVersion, error) {
	v, err := r.resolveAlias(ctx, plugin, req.Value)
	if err != nil {
		return domain.ToolVersion{}, err
	}

	// Aliases may map to a sub-specifier rather than a version.
	if scheme, rest, ok := strings.Cut(v, ":"); ok {
		switch scheme {
		case "ref":
			ref := domain.NewRefRequest(req.Plugin, rest)
			return domain.NewToolVersion(r.dirs, ref, opts, ref.Version()), nil
		case "path":
			return r.resolvePath(domain.NewPathRequest(req.Plugin, rest), opts)
		case "prefix":
			return r.resolvePrefix(ctx, plugin, req, rest, opts)
		}
	}

	build := func(version string) domain.ToolVersion {
		return domain.NewToolVersion(r.dirs, req, opts, version)
	}

	// A version that is already on disk resolves without any listing. Stat
	// follows symlinks, so a dangling link does not count as installed.
	if _, err := os.Stat(filepath.Join(r.dirs.Installs, req.Plugin, v)); err == nil {
		return build(v), nil
	}

	if v == "latest" {
		if !latest {
			if iv, ok, err := latestInstalled(plugin); err != nil {
				return domain.ToolVersion{}, err
			} else if ok {
				return build(iv), nil
			}
		}
		if rv, ok, err := r.latestVersion(ctx, plugin, ""); err != nil {
			return domain.ToolVersion{}, err
		} else if ok {
			return build(rv), nil
		}
	}

	if !latest {
		installed, err := plugin.ListInstalledVersions()
		if err != nil {
			return domain.ToolVersion{}, err
		}
		if lo.Contains(domain.MatchingVersions(installed, v), v) {
			return build(v), nil
		}
	}

	remote, err := plugin.ListRemoteVersions(ctx)
	if err != nil {
		return domain.ToolVersion{}, err
	}
	if lo.Contains(domain.MatchingVersions(remote, v), v) {
		return build(v), nil
	}

	if strings.Contains(v, "!-") {
		tv, ok, err := r.resolveBang(ctx, plugin, req, v, opts)
		if err != nil {
			return domain.ToolVersion{}, err
		}
		if ok {
			return tv, nil
		}
	}
	return r.resolvePrefix(ctx, plugin, req, v, opts)
}

// resolveBang handles bang arithmetic: "18.2.3!-0.1" asks for the newest
// version at or below 18.2.3 lowered by 0.1, i.e. the 18.1 line. ok=false
// means nothing matched the computed target and the caller falls back to
// prefix resolution.
func (r *Resolver) resolveBang(ctx context.Context, plugin domain.Plugin, req domain.ToolVersionRequest, v string, opts *domain.ToolVersionOptions) (domain.ToolVersion, bool, error) {
	wanted, sub, _ := strings.Cut(v, "!-")
	if wanted == "latest" {
		lv, ok, err := r.latestVersion(ctx, plugin, "")
		if err != nil {
			return domain.ToolVersion{}, false, err
		}
		if !ok {
			return domain.ToolVersion{}, false, &domain.VersionNotFoundError{Plugin: plugin.Name(), Version: wanted}
		}
		wanted = lv
	} else {
		var err error
		wanted, err = r.resolveAlias(ctx, plugin, wanted)
		if err != nil {
			return domain.ToolVersion{}, false, err
		}
	}
	target, err := domain.VersionSub(wanted, sub)
	if err != nil {
		return domain.ToolVersion{}, false, err
	}
	lv, ok, err := r.latestVersion(ctx, plugin, target)
	if err != nil || !ok {
		return domain.ToolVersion{}, false, err
	}
	return domain.NewToolVersion(r.dirs, req, opts, lv), true, nil
}

// resolvePrefix picks the highest version matching prefix. With no match the
// prefix itself becomes the version, so a requirement can name a release
// before the plugin publishes it. When the remote listing is unreachable the
// installed versions stand in.
func (r *Resolver) resolvePrefix(ctx context.Context, plugin domain.Plugin, req domain.ToolVersionRequest, prefix string, opts *domain.ToolVersionOptions) (domain.ToolVersion, error) {
	versions, err := plugin.ListRemoteVersions(ctx)
	if err != nil {
		r.logger.Debug("remote listing failed, matching against installed versions",
			zap.String("plugin", plugin.Name()), zap.Error(err))
		versions, err = plugin.ListInstalledVersions()
		if err != nil {
			return domain.ToolVersion{}, err
		}
	}
	v := prefix
	if matches := domain.MatchingVersions(versions, prefix); len(matches) > 0 {
		v = matches[len(matches)-1]
	}
	return domain.NewToolVersion(r.dirs, req, opts, v), nil
}

// resolvePath canonicalizes a filesystem install. The path must exist; the
// request is rebuilt around the canonical form so equivalent spellings share
// one identity.
func (r *Resolver) resolvePath(req domain.ToolVersionRequest, opts *domain.ToolVersionOptions) (domain.ToolVersion, error) {
	abs, err := filepath.Abs(req.Value)
	if err == nil {
		abs, err = filepath.EvalSymlinks(abs)
	}
	if err != nil {
		return domain.ToolVersion{}, domain.E(domain.CodeInvalidArgument, "toolset.Resolve",
			fmt.Sprintf("no tool installation at %s", req.Value), err)
	}
	canonical := domain.NewPathRequest(req.Plugin, abs)
	return domain.NewToolVersion(r.dirs, canonical, opts, canonical.Version()), nil
}

// resolveAlias maps v through the user alias table, then the plugin's own,
// returning v unchanged when neither knows it.
func (r *Resolver) resolveAlias(ctx context.Context, plugin domain.Plugin, v string) (string, error) {
	if mapped, ok := r.aliases[plugin.Name()][v]; ok {
		return mapped, nil
	}
	aliases, err := plugin.ListAliases(ctx)
	if err != nil {
		return "", err
	}
	if mapped, ok := aliases[v]; ok {
		return mapped, nil
	}
	return v, nil
}

// latestVersion finds the newest remote version matching query. An empty
// query means "latest stable": the plugin's dedicated answer when it has
// one, otherwise the last stable-looking entry of the full listing.
func (r *Resolver) latestVersion(ctx context.Context, plugin domain.Plugin, query string) (string, bool, error) {
	if query == "" {
		if v, ok, err := plugin.LatestStable(ctx); err != nil {
			return "", false, err
		} else if ok {
			return v, true, nil
		}
		remote, err := plugin.ListRemoteVersions(ctx)
		if err != nil {
			return "", false, err
		}
		v, ok := domain.FindLatestStable(remote)
		return v, ok, nil
	}
	remote, err := plugin.ListRemoteVersions(ctx)
	if err != nil {
		return "", false, err
	}
	matches := domain.MatchingVersions(remote, query)
	if len(matches) == 0 {
		return "", false, nil
	}
	if lo.Contains(matches, query) {
		return query, true, nil
	}
	return matches[len(matches)-1], true, nil
}

// latestInstalled is the newest version present on disk.
func latestInstalled(plugin domain.Plugin) (string, bool, error) {
	installed, err := plugin.ListInstalledVersions()
	if err != nil {
		return "", false, err
	}
	if len(installed) == 0 {
		return "", false, nil
	}
	return installed[len(installed)-1], true, nil
}
