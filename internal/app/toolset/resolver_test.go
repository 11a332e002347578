package toolset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"toolv/internal/domain"
)

// fakePlugin satisfies domain.Plugin from fixed data, counting calls so
// tests can assert which listings a resolution touched.
type fakePlugin struct {
	name      string
	installed bool
	remote    []string
	remoteErr error
	stable    string
	stableErr error
	onDisk    []string
	onDiskErr error
	aliases   map[string]string
	aliasErr  error

	installErr   error
	uninstallErr error
	installDelay time.Duration
	counter      *gauge

	mu          sync.Mutex
	remoteCalls int
	installs    []string
	uninstalls  []string
}

func newFakePlugin(name string, remote ...string) *fakePlugin {
	return &fakePlugin{name: name, installed: true, remote: remote}
}

func (f *fakePlugin) Name() string      { return f.name }
func (f *fakePlugin) IsInstalled() bool { return f.installed }

func (f *fakePlugin) ListRemoteVersions(context.Context) ([]string, error) {
	f.mu.Lock()
	f.remoteCalls++
	f.mu.Unlock()
	if f.remoteErr != nil {
		return nil, f.remoteErr
	}
	return f.remote, nil
}

func (f *fakePlugin) LatestStable(context.Context) (string, bool, error) {
	if f.stableErr != nil {
		return "", false, f.stableErr
	}
	return f.stable, f.stable != "", nil
}

func (f *fakePlugin) ListInstalledVersions() ([]string, error) {
	return f.onDisk, f.onDiskErr
}

func (f *fakePlugin) ListAliases(context.Context) (map[string]string, error) {
	return f.aliases, f.aliasErr
}

func (f *fakePlugin) ListLegacyFilenames(context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakePlugin) ParseLegacyFile(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	return strings.TrimSpace(string(raw)), err
}

func (f *fakePlugin) ListBinPaths(_ context.Context, tv domain.ToolVersion) ([]string, error) {
	return []string{filepath.Join(tv.InstallPath, "bin")}, nil
}

func (f *fakePlugin) ExecEnv(context.Context, domain.ToolVersion) (map[string]string, error) {
	return nil, nil
}

func (f *fakePlugin) InstallVersion(_ context.Context, tv domain.ToolVersion, _ domain.ProgressReporter) error {
	if f.counter != nil {
		f.counter.enter()
		defer f.counter.exit()
	}
	if f.installDelay > 0 {
		time.Sleep(f.installDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installs = append(f.installs, tv.String())
	return f.installErr
}

func (f *fakePlugin) UninstallVersion(_ context.Context, tv domain.ToolVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uninstalls = append(f.uninstalls, tv.String())
	return f.uninstallErr
}

func (f *fakePlugin) remoteCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteCalls
}

func testDirs(t *testing.T) domain.Dirs {
	t.Helper()
	root := t.TempDir()
	return domain.Dirs{
		Root:      root,
		Plugins:   filepath.Join(root, "plugins"),
		Cache:     filepath.Join(root, "cache"),
		Installs:  filepath.Join(root, "installs"),
		Downloads: filepath.Join(root, "downloads"),
		Shims:     filepath.Join(root, "shims"),
	}
}

func testResolver(t *testing.T, plugins ...*fakePlugin) (*Resolver, domain.Dirs) {
	t.Helper()
	dirs := testDirs(t)
	m := map[string]domain.Plugin{}
	for _, p := range plugins {
		m[p.name] = p
	}
	r := NewResolver(ResolverParams{Dirs: dirs, Settings: domain.DefaultSettings(), Plugins: m})
	return r, dirs
}

func TestResolveExactRemoteMatch(t *testing.T) {
	tiny := newFakePlugin("tiny", "1.0.0", "2.0.0", "3.1.0")
	r, dirs := testResolver(t, tiny)

	req := domain.NewVersionRequest("tiny", "1.0.0")
	got, err := r.Resolve(context.Background(), req, nil, false)
	require.NoError(t, err)

	want := domain.NewToolVersion(dirs, req, nil, "1.0.0")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tool version mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, filepath.Join(dirs.Installs, "tiny", "1.0.0"), got.InstallPath)
	require.Empty(t, tiny.installs)
}

func TestResolveSystemNeverTouchesPlugin(t *testing.T) {
	tiny := newFakePlugin("tiny")
	tiny.remoteErr = errors.New("poisoned")
	r, dirs := testResolver(t, tiny)

	got, err := r.Resolve(context.Background(), domain.NewSystemRequest("tiny"), nil, true)
	require.NoError(t, err)
	require.Equal(t, "system", got.Version)
	require.Equal(t, filepath.Join(dirs.Installs, "tiny", "system"), got.InstallPath)
	require.Zero(t, tiny.remoteCallCount())
}

func TestResolveRef(t *testing.T) {
	r, dirs := testResolver(t, newFakePlugin("tiny"))

	got, err := r.Resolve(context.Background(), domain.NewRefRequest("tiny", "master"), nil, false)
	require.NoError(t, err)
	require.Equal(t, "ref-master", got.Version)
	require.Equal(t, filepath.Join(dirs.Installs, "tiny", "ref-master"), got.InstallPath)
}

func TestResolvePathCanonicalizes(t *testing.T) {
	r, _ := testResolver(t, newFakePlugin("tiny"))

	target := t.TempDir()
	canonical, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(target, link))

	got, err := r.Resolve(context.Background(), domain.NewPathRequest("tiny", link), nil, false)
	require.NoError(t, err)
	require.Equal(t, domain.KindPath, got.Request.Kind)
	require.Equal(t, canonical, got.Request.Value)
	require.Equal(t, "path-"+canonical, got.Version)
}

func TestResolvePathMissingFails(t *testing.T) {
	r, _ := testResolver(t, newFakePlugin("tiny"))

	_, err := r.Resolve(context.Background(), domain.NewPathRequest("tiny", filepath.Join(t.TempDir(), "nope")), nil, false)
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidArgument, code)
}

func TestResolveLatest(t *testing.T) {
	t.Run("nothing installed resolves newest stable", func(t *testing.T) {
		tiny := newFakePlugin("tiny", "1.0.0", "2.0.0", "3.1.0", "4.0.0-beta")
		r, _ := testResolver(t, tiny)

		got, err := r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "latest"), nil, false)
		require.NoError(t, err)
		require.Equal(t, "3.1.0", got.Version)
	})

	t.Run("prefers installed unless live data demanded", func(t *testing.T) {
		tiny := newFakePlugin("tiny", "1.0.0", "2.0.0", "3.1.0")
		tiny.onDisk = []string{"1.0.0", "2.0.0"}
		r, _ := testResolver(t, tiny)

		got, err := r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "latest"), nil, false)
		require.NoError(t, err)
		require.Equal(t, "2.0.0", got.Version)

		got, err = r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "latest"), nil, true)
		require.NoError(t, err)
		require.Equal(t, "3.1.0", got.Version)
	})

	t.Run("dedicated latest-stable answer wins", func(t *testing.T) {
		tiny := newFakePlugin("tiny", "1.0.0", "2.0.0", "3.1.0")
		tiny.stable = "2.0.0"
		r, _ := testResolver(t, tiny)

		got, err := r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "latest"), nil, true)
		require.NoError(t, err)
		require.Equal(t, "2.0.0", got.Version)
	})
}

func TestResolveInstalledDirShortCircuits(t *testing.T) {
	tiny := newFakePlugin("tiny")
	tiny.remoteErr = errors.New("offline")
	r, dirs := testResolver(t, tiny)
	require.NoError(t, os.MkdirAll(filepath.Join(dirs.Installs, "tiny", "9.9.9"), 0o755))

	got, err := r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "9.9.9"), nil, false)
	require.NoError(t, err)
	require.Equal(t, "9.9.9", got.Version)
	require.Zero(t, tiny.remoteCallCount())
}

func TestResolveDanglingSymlinkIsNotInstalled(t *testing.T) {
	tiny := newFakePlugin("tiny", "8.8.8")
	r, dirs := testResolver(t, tiny)
	require.NoError(t, os.MkdirAll(filepath.Join(dirs.Installs, "tiny"), 0o755))
	require.NoError(t, os.Symlink(
		filepath.Join(dirs.Installs, "tiny", "gone"),
		filepath.Join(dirs.Installs, "tiny", "8.8.8")))

	got, err := r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "8.8.8"), nil, false)
	require.NoError(t, err)
	require.Equal(t, "8.8.8", got.Version)
	require.Equal(t, 1, tiny.remoteCallCount())
}

func TestResolveExactInstalledMatch(t *testing.T) {
	tiny := newFakePlugin("tiny", "1.0.0")
	tiny.onDisk = []string{"0.9.0"}
	r, _ := testResolver(t, tiny)

	got, err := r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "0.9.0"), nil, false)
	require.NoError(t, err)
	require.Equal(t, "0.9.0", got.Version)
	require.Zero(t, tiny.remoteCallCount())

	// live mode skips the installed check and goes remote
	got, err = r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "0.9.0"), nil, true)
	require.NoError(t, err)
	require.Equal(t, "0.9.0", got.Version)
	require.Equal(t, 2, tiny.remoteCallCount())
}

func TestResolveAlias(t *testing.T) {
	tiny := newFakePlugin("tiny", "1.0.0", "2.0.0", "3.1.0")
	tiny.aliases = map[string]string{"stable": "1.0.0"}
	r, dirs := testResolver(t, tiny)

	got, err := r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "stable"), nil, false)
	require.NoError(t, err)
	require.Equal(t, "1.0.0", got.Version)
	// install identity follows the request as written, not the alias target
	require.Equal(t, filepath.Join(dirs.Installs, "tiny", "stable"), got.InstallPath)
}

func TestResolveAliasUserTableWins(t *testing.T) {
	tiny := newFakePlugin("tiny", "1.0.0", "2.0.0", "3.1.0")
	tiny.aliases = map[string]string{"stable": "1.0.0"}
	r := NewResolver(ResolverParams{
		Dirs:     testDirs(t),
		Settings: domain.DefaultSettings(),
		Plugins:  map[string]domain.Plugin{"tiny": tiny},
		Aliases:  map[string]map[string]string{"tiny": {"stable": "3.1.0"}},
	})

	got, err := r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "stable"), nil, false)
	require.NoError(t, err)
	require.Equal(t, "3.1.0", got.Version)
}

func TestResolveAliasRedispatch(t *testing.T) {
	tiny := newFakePlugin("tiny", "1.0.0", "1.1.0", "2.0.0")
	tiny.aliases = map[string]string{"nightly": "ref:main", "one": "prefix:1"}
	r, dirs := testResolver(t, tiny)

	got, err := r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "nightly"), nil, false)
	require.NoError(t, err)
	require.Equal(t, domain.KindRef, got.Request.Kind)
	require.Equal(t, "ref-main", got.Version)

	got, err = r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "one"), nil, false)
	require.NoError(t, err)
	require.Equal(t, "1.1.0", got.Version)
	// prefix redispatch keeps the original request identity
	require.Equal(t, domain.KindVersion, got.Request.Kind)
	require.Equal(t, filepath.Join(dirs.Installs, "tiny", "one"), got.InstallPath)
}

func TestResolvePrefix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{"picks highest matching", "1.2", "1.2.5"},
		{"matches at chunk boundaries only", "1", "1.3.0"},
		{"no match falls back to the literal prefix", "9", "9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiny := newFakePlugin("tiny", "1.2.0", "1.2.5", "1.3.0", "11.0.0")
			r, _ := testResolver(t, tiny)

			got, err := r.Resolve(context.Background(), domain.NewPrefixRequest("tiny", tt.prefix), nil, false)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Version)
		})
	}
}

func TestResolvePrefixOfflineFallsBackToInstalled(t *testing.T) {
	tiny := newFakePlugin("tiny")
	tiny.remoteErr = errors.New("offline")
	tiny.onDisk = []string{"1.2.0", "1.2.3"}
	r, _ := testResolver(t, tiny)

	got, err := r.Resolve(context.Background(), domain.NewPrefixRequest("tiny", "1.2"), nil, false)
	require.NoError(t, err)
	require.Equal(t, "1.2.3", got.Version)
}

func TestResolveBang(t *testing.T) {
	tests := []struct {
		name string
		spec string
		want string
	}{
		{"whole component", "18.2.3!-2", "16.1.0"},
		{"fractional", "18.2.3!-0.1", "18.1.0"},
		{"latest as base", "latest!-2", "16.1.0"},
		{"alias as base", "lts!-0.1", "18.1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiny := newFakePlugin("tiny", "16.0.0", "16.1.0", "18.1.0", "18.2.3")
			tiny.aliases = map[string]string{"lts": "18.2.3"}
			r, _ := testResolver(t, tiny)

			got, err := r.Resolve(context.Background(), domain.NewVersionRequest("tiny", tt.spec), nil, false)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Version)
		})
	}
}

func TestResolveBangUnderflowFails(t *testing.T) {
	tiny := newFakePlugin("tiny", "1.0.0")
	r, _ := testResolver(t, tiny)

	_, err := r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "1.0.0!-2"), nil, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "underflows")
}

func TestResolveBangWithoutMatchFallsBack(t *testing.T) {
	tiny := newFakePlugin("tiny", "18.0.0", "18.2.3")
	r, _ := testResolver(t, tiny)

	got, err := r.Resolve(context.Background(), domain.NewVersionRequest("tiny", "18.2.3!-0.1"), nil, false)
	require.NoError(t, err)
	require.Equal(t, "18.2.3!-0.1", got.Version)
}

func TestResolveUnknownPlugin(t *testing.T) {
	r, _ := testResolver(t)

	_, err := r.Resolve(context.Background(), domain.NewVersionRequest("ghost", "1.0.0"), nil, false)
	var notInstalled *domain.PluginNotInstalledError
	require.ErrorAs(t, err, &notInstalled)
	require.Equal(t, "ghost", notInstalled.Plugin)

	// system requests need no plugin at all
	_, err = r.Resolve(context.Background(), domain.NewSystemRequest("ghost"), nil, false)
	require.NoError(t, err)
}
