// Package envdiff captures the environment changes a sourced bash script
// makes. A single bash process prints its environment, a sentinel line, then
// sources the script and prints the environment again; the two snapshots are
// parsed from the combined output and diffed.
package envdiff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"toolv/internal/domain"
)

const sentinel = "__toolv_env_diff_4cc4597a__"

// Variables the shell mutates on its own. They never appear in a diff.
var ignoredVars = map[string]struct{}{
	"_":      {},
	"SHLVL":  {},
	"PWD":    {},
	"OLDPWD": {},
}

var envNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Diff is the classified difference between two environment snapshots.
type Diff struct {
	Added   map[string]string
	Changed map[string]string
	Removed []string
}

// New diffs the after snapshot against the before snapshot. Shell-managed
// variables are ignored.
func New(before, after map[string]string) *Diff {
	d := &Diff{
		Added:   map[string]string{},
		Changed: map[string]string{},
	}
	for key, value := range after {
		if _, skip := ignoredVars[key]; skip {
			continue
		}
		old, ok := before[key]
		switch {
		case !ok:
			d.Added[key] = value
		case old != value:
			d.Changed[key] = value
		}
	}
	for key := range before {
		if _, skip := ignoredVars[key]; skip {
			continue
		}
		if _, ok := after[key]; !ok {
			d.Removed = append(d.Removed, key)
		}
	}
	sort.Strings(d.Removed)
	return d
}

// FromBashScript sources script in one bash subprocess and returns the
// resulting diff. extraEnv is layered over the current process environment
// for the subprocess. The script's stdout is discarded so it cannot corrupt
// the snapshots; a non-zero exit is reported as a ScriptError carrying the
// captured stderr.
func FromBashScript(ctx context.Context, script string, extraEnv map[string]string) (*Diff, error) {
	const op = "envdiff.FromBashScript"

	prog := fmt.Sprintf("env && echo %s && . \"$0\" >/dev/null && env", sentinel)
	cmd := exec.CommandContext(ctx, "bash", "-c", prog, script)
	cmd.Env = mergeEnviron(extraEnv)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &domain.ScriptError{
				Script:   script,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return nil, domain.Wrap(domain.CodeUnavailable, op, "failed to run bash", err)
	}

	beforeRaw, afterRaw, ok := strings.Cut(stdout.String(), "\n"+sentinel+"\n")
	if !ok {
		return nil, domain.E(domain.CodeUnavailable, op,
			fmt.Sprintf("script %s did not produce both environment snapshots", script), nil)
	}
	return New(ParseEnv(beforeRaw), ParseEnv(afterRaw)), nil
}

// ToEnv returns the additions and changes as one map, ready to overlay on a
// process environment. Removals are not represented.
func (d *Diff) ToEnv() map[string]string {
	env := make(map[string]string, len(d.Added)+len(d.Changed))
	for key, value := range d.Added {
		env[key] = value
	}
	for key, value := range d.Changed {
		env[key] = value
	}
	return env
}

// IsEmpty reports whether the diff carries no changes at all.
func (d *Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// ParseEnv parses `env` output. A line that does not start a new NAME= entry
// is appended to the previous value, which keeps variables holding newlines
// intact.
func ParseEnv(raw string) map[string]string {
	env := map[string]string{}
	lines := strings.Split(raw, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	current := ""
	for _, line := range lines {
		if name, value, ok := strings.Cut(line, "="); ok && envNamePattern.MatchString(name) {
			env[name] = value
			current = name
			continue
		}
		if current == "" {
			continue
		}
		env[current] += "\n" + line
	}
	return env
}

func mergeEnviron(extra map[string]string) []string {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok {
			merged[name] = value
		}
	}
	for key, value := range extra {
		merged[key] = value
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+merged[key])
	}
	return env
}
