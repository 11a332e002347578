package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"toolv/internal/domain"
)

// ExternalCommand is a custom subcommand a plugin ships at
// lib/commands/command-<name>.bash. A hyphenated name becomes nested words,
// so command-env-show.bash surfaces as "<plugin> env show".
type ExternalCommand struct {
	Words []string
	Path  string
}

// Name is the script's command name with hyphens intact.
func (c ExternalCommand) Name() string {
	return strings.Join(c.Words, "-")
}

// ExternalCommands discovers the plugin's custom subcommands, sorted by
// name. Plugins without a lib/commands dir have none.
func (e *External) ExternalCommands() ([]ExternalCommand, error) {
	pattern := filepath.Join(e.Path(), "lib", "commands", "command-*.bash")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "plugin.ExternalCommands", "", err)
	}
	sort.Strings(matches)
	commands := make([]ExternalCommand, 0, len(matches))
	for _, path := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "command-"), ".bash")
		if name == "" {
			continue
		}
		commands = append(commands, ExternalCommand{
			Words: strings.Split(name, "-"),
			Path:  path,
		})
	}
	return commands, nil
}

// RunExternalCommand executes one custom subcommand with inherited stdio.
// The returned error carries the script's exit code for the caller to
// propagate.
func (e *External) RunExternalCommand(ctx context.Context, name string, args ...string) error {
	const op = "plugin.RunExternalCommand"
	if !e.IsInstalled() {
		return &domain.PluginNotInstalledError{Plugin: e.name}
	}
	path := filepath.Join(e.Path(), "lib", "commands", "command-"+name+".bash")
	if _, err := os.Stat(path); err != nil {
		return domain.E(domain.CodeNotFound, op,
			fmt.Sprintf("plugin %s has no command %s", e.name, name), nil)
	}
	return e.sm.ExecFile(ctx, path, args...)
}
