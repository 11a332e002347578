package toolset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"toolv/internal/domain"
	"toolv/internal/infra/lockfile"
	"toolv/internal/infra/state"
)

// InstallerParams configures an Installer. Store and Progress are optional:
// without a store no journal is written, without a progress factory updates
// are discarded.
type InstallerParams struct {
	Dirs     domain.Dirs
	Settings domain.Settings
	Plugins  map[string]domain.Plugin
	Store    *state.Store
	Logger   *zap.Logger
	Progress func(label string) domain.ProgressReporter
}

// Installer materializes resolved tool versions on disk and removes them
// again. Directory ownership lives here; plugins only run their hooks.
type Installer struct {
	dirs     domain.Dirs
	settings domain.Settings
	plugins  map[string]domain.Plugin
	store    *state.Store
	logger   *zap.Logger
	progress func(label string) domain.ProgressReporter
}

func NewInstaller(p InstallerParams) *Installer {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	progress := p.Progress
	if progress == nil {
		progress = func(string) domain.ProgressReporter { return domain.NopProgress{} }
	}
	plugins := p.Plugins
	if plugins == nil {
		plugins = map[string]domain.Plugin{}
	}
	return &Installer{
		dirs:     p.Dirs,
		settings: p.Settings,
		plugins:  plugins,
		store:    p.Store,
		logger:   logger.Named("installer"),
		progress: progress,
	}
}

// IsInstalled reports whether tv's install directory exists. System versions
// live outside the install tree and always count as installed.
func (ins *Installer) IsInstalled(tv domain.ToolVersion) bool {
	if tv.Request.Kind == domain.KindSystem {
		return true
	}
	_, err := os.Stat(tv.InstallPath)
	return err == nil
}

// Install puts one resolved version on disk: take the advisory lock,
// re-check under it, create the working directories, run the plugin hooks,
// clean up. A failed install is removed again unless the settings ask to
// keep it for inspection.
func (ins *Installer) Install(ctx context.Context, tv domain.ToolVersion) error {
	const op = "toolset.Install"
	if tv.Request.Kind == domain.KindSystem {
		return nil
	}
	plugin, ok := ins.plugins[tv.PluginName]
	if !ok {
		return &domain.PluginNotInstalledError{Plugin: tv.PluginName}
	}

	lock, err := lockfile.Acquire(tv.InstallPath+".lock", func() {
		ins.logger.Warn("waiting for another install to finish", zap.String("tool", tv.String()))
	})
	if err != nil {
		return err
	}
	defer lock.Release()

	if ins.IsInstalled(tv) {
		return nil
	}

	pr := ins.progress(tv.String())
	for _, dir := range []string{tv.InstallPath, tv.DownloadPath, tv.CachePath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.Wrap(domain.CodeUnavailable, op, "failed to create "+dir, err)
		}
	}
	if err := plugin.InstallVersion(ctx, tv, pr); err != nil {
		ins.removeFailed(tv)
		return err
	}
	if !ins.settings.AlwaysKeepDownload {
		ins.removeAll(tv.DownloadPath)
	}
	ins.journal(state.EventToolInstall, tv)
	pr.Finish("installed")
	return nil
}

// Uninstall takes the same advisory lock as Install, runs the plugin's
// uninstall hook, then removes the install and download directories.
// Directories already absent count as removed.
func (ins *Installer) Uninstall(ctx context.Context, tv domain.ToolVersion) error {
	const op = "toolset.Uninstall"
	if tv.Request.Kind == domain.KindSystem {
		return nil
	}
	plugin, ok := ins.plugins[tv.PluginName]
	if !ok {
		return &domain.PluginNotInstalledError{Plugin: tv.PluginName}
	}

	lock, err := lockfile.Acquire(tv.InstallPath+".lock", func() {
		ins.logger.Warn("waiting for another install to finish", zap.String("tool", tv.String()))
	})
	if err != nil {
		return err
	}
	defer lock.Release()

	pr := ins.progress(tv.String())
	pr.SetMessage("uninstalling")
	if err := plugin.UninstallVersion(ctx, tv); err != nil {
		return err
	}
	for _, dir := range []string{tv.InstallPath, tv.DownloadPath} {
		pr.SetMessage("removing " + dir)
		if err := os.RemoveAll(dir); err != nil {
			return domain.Wrap(domain.CodeUnavailable, op, "failed to remove "+dir, err)
		}
	}
	ins.journal(state.EventToolUninstall, tv)
	pr.Finish("removed")
	return nil
}

// InstallMissing installs every resolved version not yet on disk, fanning
// out across plugins with at most jobs installs running at once. Versions of
// one plugin install sequentially, so concurrent workers never touch the
// same plugin's cache files. Raw mode serializes everything.
func (ins *Installer) InstallMissing(ctx context.Context, lists []*ToolVersionList, jobs int) error {
	type task struct {
		plugin   string
		versions []domain.ToolVersion
	}
	var tasks []task
	for _, list := range lists {
		missing := lo.Filter(list.Versions, func(tv domain.ToolVersion, _ int) bool {
			return !ins.IsInstalled(tv)
		})
		if len(missing) > 0 {
			tasks = append(tasks, task{plugin: list.PluginName, versions: missing})
		}
	}
	if len(tasks) == 0 {
		return nil
	}
	if ins.settings.Raw || jobs < 1 {
		jobs = 1
	}

	semaphore := make(chan struct{}, jobs)
	results := make(chan error, len(tasks))
	var wg sync.WaitGroup

	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				results <- ctx.Err()
				return
			}
			defer func() { <-semaphore }()

			for _, tv := range t.versions {
				if err := ins.Install(ctx, tv); err != nil {
					results <- fmt.Errorf("failed to install %s: %w", tv, err)
					return
				}
			}
		}(t)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var errs []error
	for err := range results {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// removeFailed clears what a failed install left behind.
func (ins *Installer) removeFailed(tv domain.ToolVersion) {
	if ins.settings.AlwaysKeepInstall {
		return
	}
	ins.removeAll(tv.InstallPath)
	if !ins.settings.AlwaysKeepDownload {
		ins.removeAll(tv.DownloadPath)
	}
}

func (ins *Installer) removeAll(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		ins.logger.Warn("failed to remove directory", zap.String("dir", dir), zap.Error(err))
	}
}

// journal records an install event when a store is attached. Journal
// failures never fail the operation they describe.
func (ins *Installer) journal(eventType string, tv domain.ToolVersion) {
	if ins.store == nil {
		return
	}
	if _, err := ins.store.RecordEvent(eventType, tv.PluginName, tv.Version); err != nil {
		ins.logger.Debug("journal write failed", zap.Error(err))
	}
}
