package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"toolv/internal/domain"
	"toolv/internal/infra/registry"
	"toolv/internal/infra/script"
	"toolv/internal/infra/state"
)

func needsGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	base := []string{"-c", "user.email=test@example.com", "-c", "user.name=test", "-c", "commit.gpgsign=false"}
	cmd := exec.Command("git", append(base, args...)...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}

// originPlugin builds a local plugin repository to install from. The list-all
// hook appends to counter on every run so tests can observe cache warming.
func originPlugin(t *testing.T, counter string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "origin")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	listAll := fmt.Sprintf("#!/usr/bin/env bash\nprintf x >> %q\necho '1.0.0 2.0.0'\n", counter)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", script.ListAll), []byte(listAll), 0o755))
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

func TestInstallClonesAndWarmsCaches(t *testing.T) {
	needsGit(t)
	needsBash(t)

	dirs := testDirs(t)
	counter := counterFile(dirs)
	origin := originPlugin(t, counter)
	p := New(Params{Name: "tiny", Dirs: dirs, Settings: domain.DefaultSettings(), RepoURL: origin})

	rec := &progressRecorder{}
	require.NoError(t, p.Install(context.Background(), nil, rec))

	require.True(t, p.IsInstalled())
	require.Contains(t, rec.all(), "cloning "+origin)
	require.Contains(t, rec.all(), "loading remote versions")

	sha, err := p.CurrentSHAShort(context.Background())
	require.NoError(t, err)
	require.Equal(t, origin+"#"+sha, rec.finished())

	_, err = os.Stat(filepath.Join(dirs.Cache, "tiny", "remote_versions.gob.z"))
	require.NoError(t, err, "install should warm the remote versions cache")
	require.Equal(t, 1, countCalls(t, counter))

	versions, err := p.ListRemoteVersions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"1.0.0", "2.0.0"}, versions)
	require.Equal(t, 1, countCalls(t, counter), "warmed cache should serve the listing")
}

func TestInstallChecksOutRef(t *testing.T) {
	needsGit(t)
	needsBash(t)

	dirs := testDirs(t)
	origin := originPlugin(t, counterFile(dirs))
	runGit(t, origin, "tag", "v1")
	require.NoError(t, os.WriteFile(filepath.Join(origin, "EXTRA"), []byte("later\n"), 0o644))
	runGit(t, origin, "add", "EXTRA")
	runGit(t, origin, "commit", "-q", "-m", "second")
	tagSHA := strings.TrimSpace(runGit(t, origin, "rev-parse", "--short", "v1"))

	p := New(Params{Name: "tiny", Dirs: dirs, Settings: domain.DefaultSettings(), RepoURL: origin + "#v1"})

	rec := &progressRecorder{}
	require.NoError(t, p.Install(context.Background(), nil, rec))
	require.Contains(t, rec.all(), "checking out v1")

	sha, err := p.CurrentSHAShort(context.Background())
	require.NoError(t, err)
	require.Equal(t, tagSHA, sha)
}

func TestInstallWithoutURLFails(t *testing.T) {
	dirs := testDirs(t)
	p := New(Params{Name: "unknown-tool", Dirs: dirs, Settings: domain.DefaultSettings()})

	err := p.Install(context.Background(), nil, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrNoRepositoryURL))
}

func TestInstallResolvesURLFromRegistry(t *testing.T) {
	needsGit(t)
	needsBash(t)

	dirs := testDirs(t)
	origin := originPlugin(t, counterFile(dirs))

	regFile := filepath.Join(dirs.Root, "registry.yaml")
	require.NoError(t, os.WriteFile(regFile, []byte("tiny: "+origin+"\n"), 0o644))
	reg, err := registry.Load(regFile, true)
	require.NoError(t, err)

	p := New(Params{Name: "tiny", Dirs: dirs, Settings: domain.DefaultSettings()})
	require.NoError(t, p.Install(context.Background(), reg, nil))
	require.True(t, p.IsInstalled())
}

func TestReinstallReplacesCheckout(t *testing.T) {
	needsGit(t)
	needsBash(t)

	dirs := testDirs(t)
	origin := originPlugin(t, counterFile(dirs))
	p := New(Params{Name: "tiny", Dirs: dirs, Settings: domain.DefaultSettings(), RepoURL: origin})

	require.NoError(t, p.Install(context.Background(), nil, nil))
	marker := filepath.Join(dirs.PluginPath("tiny"), "local-edit")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o644))

	require.NoError(t, p.Install(context.Background(), nil, nil))
	_, err := os.Stat(marker)
	require.True(t, errors.Is(err, os.ErrNotExist), "reinstall should start from a fresh clone")
}

func TestUpdatePullsAndInvalidatesCaches(t *testing.T) {
	needsGit(t)
	needsBash(t)

	dirs := testDirs(t)
	counter := counterFile(dirs)
	origin := originPlugin(t, counter)
	p := New(Params{Name: "tiny", Dirs: dirs, Settings: domain.DefaultSettings(), RepoURL: origin})
	require.NoError(t, p.Install(context.Background(), nil, nil))
	require.Equal(t, 1, countCalls(t, counter))

	listAll := fmt.Sprintf("#!/usr/bin/env bash\nprintf x >> %q\necho '1.0.0 2.0.0 3.0.0'\n", counter)
	require.NoError(t, os.WriteFile(filepath.Join(origin, "bin", script.ListAll), []byte(listAll), 0o755))
	runGit(t, origin, "add", ".")
	runGit(t, origin, "commit", "-q", "-m", "add 3.0.0")

	prev, post, err := p.Update(context.Background(), "")
	require.NoError(t, err)
	require.NotEqual(t, prev, post)

	versions, err := p.ListRemoteVersions(context.Background())
	require.NoError(t, err)
	require.Contains(t, versions, "3.0.0")
	require.Equal(t, 2, countCalls(t, counter), "update should invalidate the version cache")
}

func TestUpdateSkipsNonRepoDir(t *testing.T) {
	p, _ := newTestPlugin(t, map[string]string{script.ListAll: "echo 1.0.0\n"})
	require.True(t, p.IsInstalled())

	prev, post, err := p.Update(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, prev)
	require.Empty(t, post)
}

func TestUpdateSkipsSymlinkedPlugin(t *testing.T) {
	dirs := testDirs(t)
	real := filepath.Join(dirs.Root, "local-plugin")
	require.NoError(t, os.MkdirAll(real, 0o755))
	require.NoError(t, os.MkdirAll(dirs.Plugins, 0o755))
	require.NoError(t, os.Symlink(real, dirs.PluginPath("tiny")))

	p := New(Params{Name: "tiny", Dirs: dirs, Settings: domain.DefaultSettings()})
	prev, post, err := p.Update(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, prev)
	require.Empty(t, post)
}

func stubNow(t *testing.T, now time.Time) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = orig })
}

func TestAutoUpdateRunsAtMostOncePerWindow(t *testing.T) {
	needsGit(t)
	needsBash(t)

	dirs := testDirs(t)
	counter := counterFile(dirs)
	origin := originPlugin(t, counter)
	p := New(Params{Name: "tiny", Dirs: dirs, Settings: domain.DefaultSettings(), RepoURL: origin})
	require.NoError(t, p.Install(context.Background(), nil, nil))

	store, err := state.Open(filepath.Join(dirs.Root, "state.db"))
	require.NoError(t, err)
	defer store.Close()

	maxAge := 7 * 24 * time.Hour
	require.NoError(t, p.AutoUpdate(context.Background(), store, maxAge))
	_, found, err := store.UpdateCheck("tiny")
	require.NoError(t, err)
	require.True(t, found, "first auto update should record a check")

	require.NoError(t, os.WriteFile(filepath.Join(origin, "EXTRA"), []byte("later\n"), 0o644))
	runGit(t, origin, "add", "EXTRA")
	runGit(t, origin, "commit", "-q", "-m", "second")

	require.NoError(t, p.AutoUpdate(context.Background(), store, maxAge))
	_, err = os.Stat(filepath.Join(dirs.PluginPath("tiny"), "EXTRA"))
	require.True(t, errors.Is(err, os.ErrNotExist), "gated auto update must not pull")

	stubNow(t, time.Now().Add(8*24*time.Hour))
	require.NoError(t, p.AutoUpdate(context.Background(), store, maxAge))
	_, err = os.Stat(filepath.Join(dirs.PluginPath("tiny"), "EXTRA"))
	require.NoError(t, err, "expired gate should pull the new commit")
}

func TestAutoUpdateDisabledWithoutStore(t *testing.T) {
	dirs := testDirs(t)
	p := New(Params{Name: "tiny", Dirs: dirs, Settings: domain.DefaultSettings()})
	require.NoError(t, p.AutoUpdate(context.Background(), nil, time.Hour))
}

func TestUninstallRemovesEverything(t *testing.T) {
	p, dirs := newTestPlugin(t, map[string]string{script.ListAll: "echo 1.0.0\n"})

	require.NoError(t, os.MkdirAll(filepath.Join(dirs.PluginInstallsPath("tiny"), "1.0.0"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dirs.PluginDownloadsPath("tiny"), "1.0.0"), 0o755))

	rec := &progressRecorder{}
	require.NoError(t, p.Uninstall(rec))
	require.Contains(t, rec.all(), "uninstalling")

	for _, dir := range []string{
		dirs.PluginPath("tiny"),
		dirs.PluginInstallsPath("tiny"),
		dirs.PluginDownloadsPath("tiny"),
	} {
		_, err := os.Stat(dir)
		require.True(t, errors.Is(err, os.ErrNotExist), "%s should be gone", dir)
	}

	require.NoError(t, p.Uninstall(nil), "uninstalling an absent plugin is a no-op")
}

func TestRemoteURLPrefersBoundURL(t *testing.T) {
	dirs := testDirs(t)
	p := New(Params{Name: "tiny", Dirs: dirs, Settings: domain.DefaultSettings(), RepoURL: "https://example.com/tiny.git"})

	url, ok := p.RemoteURL(context.Background())
	require.True(t, ok)
	require.Equal(t, "https://example.com/tiny.git", url)
}

func TestInstalledListsPluginDirs(t *testing.T) {
	dirs := testDirs(t)
	for _, name := range []string{"node", "ruby"} {
		require.NoError(t, os.MkdirAll(dirs.PluginPath(name), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Plugins, "stray-file"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dirs.Plugins, ".hidden"), 0o755))

	local := filepath.Join(dirs.Root, "local-go")
	require.NoError(t, os.MkdirAll(local, 0o755))
	require.NoError(t, os.Symlink(local, dirs.PluginPath("go")))

	names, err := Installed(dirs)
	require.NoError(t, err)
	require.Equal(t, []string{"go", "node", "ruby"}, names)
}

func TestInstalledMissingPluginsDir(t *testing.T) {
	names, err := Installed(testDirs(t))
	require.NoError(t, err)
	require.Empty(t, names)
}
