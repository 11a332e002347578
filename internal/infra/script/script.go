// Package script runs the executable hook scripts a plugin ships under its
// bin/ directory. Every invocation carries the plugin identification
// variables plus a re-entrancy guard so hooks can tell they are being run by
// the tool manager itself.
package script

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"toolv/internal/domain"
)

// Well-known hook names.
const (
	ListAll             = "list-all"
	LatestStable        = "latest-stable"
	ListAliases         = "list-aliases"
	ListLegacyFilenames = "list-legacy-filenames"
	ParseLegacyFile     = "parse-legacy-file"
	Download            = "download"
	Install             = "install"
	Uninstall           = "uninstall"
	ListBinPaths        = "list-bin-paths"
	ExecEnv             = "exec-env"
)

// ReentrancyGuardVar is set for every hook invocation. Hooks that shell back
// out to the tool manager check it to avoid recursing.
const ReentrancyGuardVar = "__TOOLV_SCRIPT"

const errorTailLines = 10

// Manager executes one plugin's hook scripts.
type Manager struct {
	pluginName string
	pluginPath string
	env        map[string]string
	verbose    bool
	logger     *zap.Logger
}

// New creates a Manager for the plugin installed at pluginPath. When verbose
// is set, hook stderr is mirrored to the process stderr as it arrives.
func New(pluginName, pluginPath string, verbose bool, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		pluginName: pluginName,
		pluginPath: pluginPath,
		env: map[string]string{
			"TOOLV_PLUGIN_NAME": pluginName,
			"TOOLV_PLUGIN_PATH": pluginPath,
			ReentrancyGuardVar:  "1",
		},
		verbose: verbose,
		logger:  logger.Named("script"),
	}
}

// WithEnv returns a copy of the Manager with one more environment variable.
// The receiver is left untouched so per-version managers can be derived from
// a shared plugin manager.
func (m *Manager) WithEnv(key, value string) *Manager {
	clone := *m
	clone.env = make(map[string]string, len(m.env)+1)
	for k, v := range m.env {
		clone.env[k] = v
	}
	clone.env[key] = value
	return &clone
}

// Env returns a copy of the variables layered over the process environment
// for every hook.
func (m *Manager) Env() map[string]string {
	env := make(map[string]string, len(m.env))
	for k, v := range m.env {
		env[k] = v
	}
	return env
}

// ScriptPath returns the path of the named hook, whether or not it exists.
func (m *Manager) ScriptPath(name string) string {
	return filepath.Join(m.pluginPath, "bin", name)
}

// ScriptExists reports whether the plugin ships the named hook.
func (m *Manager) ScriptExists(name string) bool {
	info, err := os.Stat(m.ScriptPath(name))
	return err == nil && !info.IsDir()
}

// Read runs the named hook and returns its stdout. Stderr is captured for
// error reporting, and mirrored live when verbose.
func (m *Manager) Read(ctx context.Context, name string, args ...string) (string, error) {
	path := m.ScriptPath(name)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = m.buildEnviron()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if m.verbose {
		cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	m.logger.Debug("running hook", zap.String("plugin", m.pluginName), zap.String("script", name))
	if err := cmd.Run(); err != nil {
		return "", m.scriptError(path, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// RunByLine runs the named hook, forwarding each output line to pr as a
// progress message. On failure the error carries the tail of the output so
// the cause is visible without rerunning.
func (m *Manager) RunByLine(ctx context.Context, name string, pr domain.ProgressReporter, args ...string) error {
	if pr == nil {
		pr = domain.NopProgress{}
	}
	path := m.ScriptPath(name)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = m.buildEnviron()

	tail := &lineTail{limit: errorTailLines}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "script.RunByLine", "failed to pipe stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "script.RunByLine", "failed to pipe stderr", err)
	}
	if err := cmd.Start(); err != nil {
		return m.scriptError(path, err, "")
	}

	var wg sync.WaitGroup
	for _, pipe := range []io.Reader{stdout, stderr} {
		wg.Add(1)
		go func(r io.Reader) {
			defer wg.Done()
			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Text()
				tail.add(line)
				pr.SetMessage(line)
				if m.verbose {
					fmt.Fprintln(os.Stderr, line)
				}
			}
		}(pipe)
	}
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return m.scriptError(path, err, tail.String())
	}
	return nil
}

// Exec runs the named hook with the caller's stdio attached. It is used for
// plugin-provided subcommands where the hook owns the terminal.
func (m *Manager) Exec(ctx context.Context, name string, args ...string) error {
	return m.ExecFile(ctx, m.ScriptPath(name), args...)
}

// ExecFile is Exec for a script outside bin/, such as a plugin-provided
// command under lib/commands/.
func (m *Manager) ExecFile(ctx context.Context, path string, args ...string) error {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = m.buildEnviron()
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return m.scriptError(path, err, "")
	}
	return nil
}

func (m *Manager) scriptError(path string, err error, stderr string) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &domain.ScriptError{
			Script:   path,
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr,
		}
	}
	return domain.Wrap(domain.CodeUnavailable, "script.Manager",
		fmt.Sprintf("failed to run %s", path), err)
}

func (m *Manager) buildEnviron() []string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok {
			merged[name] = value
		}
	}
	for key, value := range m.env {
		merged[key] = value
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	environ := make([]string, 0, len(keys))
	for _, key := range keys {
		environ = append(environ, key+"="+merged[key])
	}
	return environ
}

// lineTail keeps the last few lines of hook output for error messages.
type lineTail struct {
	mu    sync.Mutex
	limit int
	lines []string
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
