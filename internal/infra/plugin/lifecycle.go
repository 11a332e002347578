package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"toolv/internal/domain"
	"toolv/internal/infra/gitrepo"
	"toolv/internal/infra/registry"
	"toolv/internal/infra/script"
	"toolv/internal/infra/state"
)

var timeNow = time.Now

// Install clones the plugin repository and warms the caches its hooks can
// serve. The source is the bound RepoURL when present, otherwise the
// registry entry for the plugin name; either may carry a ref suffix. An
// existing installation is removed first, so reinstall is idempotent.
func (e *External) Install(ctx context.Context, reg *registry.Registry, pr domain.ProgressReporter) error {
	const op = "plugin.Install"
	if pr == nil {
		pr = domain.NopProgress{}
	}
	url := e.repoURL
	if url == "" && reg != nil {
		url, _ = reg.LookupURL(e.name)
	}
	if url == "" {
		return domain.E(domain.CodeNotFound, op,
			fmt.Sprintf("no repository found for plugin %s", e.name), domain.ErrNoRepositoryURL)
	}
	url, ref := gitrepo.SplitURLAndRef(url)

	if e.IsInstalled() {
		if err := e.Uninstall(domain.NopProgress{}); err != nil {
			return err
		}
	}

	pr.SetMessage("cloning " + url)
	if err := e.repo.Clone(ctx, url); err != nil {
		return domain.Wrap(domain.CodeUnavailable, op, "", err)
	}
	if ref != "" {
		pr.SetMessage("checking out " + ref)
		if _, _, err := e.repo.Update(ctx, ref); err != nil {
			return domain.Wrap(domain.CodeUnavailable, op, "", err)
		}
	}
	e.resetCaches()

	if e.sm.ScriptExists(script.ListAll) {
		pr.SetMessage("loading remote versions")
		if _, err := e.ListRemoteVersions(ctx); err != nil {
			return err
		}
	}
	if e.sm.ScriptExists(script.ListAliases) {
		pr.SetMessage("loading aliases")
		if _, err := e.ListAliases(ctx); err != nil {
			return err
		}
	}
	if e.sm.ScriptExists(script.ListLegacyFilenames) {
		pr.SetMessage("loading legacy filenames")
		if _, err := e.ListLegacyFilenames(ctx); err != nil {
			return err
		}
	}

	sha, err := e.repo.CurrentSHAShort(ctx)
	if err != nil {
		return err
	}
	pr.Finish(url + "#" + sha)
	e.logger.Info("plugin installed", zap.String("url", url), zap.String("sha", sha))
	return nil
}

// Update fast-forwards the plugin checkout to ref, or to its tracking branch
// when ref is empty, and returns the before/after commit SHAs. Symlinked
// plugin dirs belong to the user and non-git dirs cannot be updated; both
// are skipped with a warning rather than failed.
func (e *External) Update(ctx context.Context, ref string) (string, string, error) {
	if fi, err := os.Lstat(e.Path()); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		e.logger.Warn("plugin directory is a symlink, skipping update")
		return "", "", nil
	}
	if !e.repo.IsRepo() {
		e.logger.Warn("plugin directory is not a git repository, skipping update")
		return "", "", nil
	}
	prev, post, err := e.repo.Update(ctx, ref)
	if err != nil {
		return "", "", domain.Wrap(domain.CodeUnavailable, "plugin.Update", "", err)
	}
	if prev != post {
		e.resetCaches()
	}
	return prev, post, nil
}

// AutoUpdate updates the plugin at most once per maxAge, remembering the
// last check in the state store. Errors from the update itself are returned;
// a missing store or non-positive maxAge disables the gate entirely.
func (e *External) AutoUpdate(ctx context.Context, store *state.Store, maxAge time.Duration) error {
	if store == nil || maxAge <= 0 {
		return nil
	}
	if rec, found, err := store.UpdateCheck(e.name); err == nil && found {
		if at, ok := rec.CheckedAt(); ok && timeNow().Sub(at) < maxAge {
			return nil
		}
	}
	_, post, err := e.Update(ctx, "")
	if err != nil {
		return err
	}
	return store.RecordUpdateCheck(e.name, post)
}

// Uninstall removes the plugin checkout along with everything installed or
// downloaded through it. Uninstalling an absent plugin is a no-op.
func (e *External) Uninstall(pr domain.ProgressReporter) error {
	if !e.IsInstalled() {
		return nil
	}
	if pr == nil {
		pr = domain.NopProgress{}
	}
	pr.SetMessage("uninstalling")
	for _, dir := range []string{
		e.dirs.PluginDownloadsPath(e.name),
		e.dirs.PluginInstallsPath(e.name),
		e.Path(),
	} {
		e.logger.Debug("removing directory", zap.String("dir", dir))
		if err := os.RemoveAll(dir); err != nil {
			return domain.E(domain.CodeUnavailable, "plugin.Uninstall",
				fmt.Sprintf("failed to remove directory %s", dir), err)
		}
	}
	e.resetCaches()
	return nil
}

// RemoteURL reports where the plugin comes from: the bound URL when one was
// given, otherwise the checkout's origin remote.
func (e *External) RemoteURL(ctx context.Context) (string, bool) {
	if e.repoURL != "" {
		return e.repoURL, true
	}
	return e.repo.RemoteURL(ctx)
}

// CurrentSHAShort is the abbreviated commit the checkout sits on.
func (e *External) CurrentSHAShort(ctx context.Context) (string, error) {
	return e.repo.CurrentSHAShort(ctx)
}

// Installed lists the plugin names present under the plugins dir, sorted.
// Symlinked directories count; local plugins are commonly linked in.
func Installed(dirs domain.Dirs) ([]string, error) {
	entries, err := os.ReadDir(dirs.Plugins)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.Wrap(domain.CodeUnavailable, "plugin.Installed", "", err)
	}
	var names []string
	for _, ent := range entries {
		name := ent.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		fi, err := os.Stat(filepath.Join(dirs.Plugins, name))
		if err != nil || !fi.IsDir() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
