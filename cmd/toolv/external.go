package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"toolv/internal/domain"
	"toolv/internal/infra/paths"
	"toolv/internal/infra/plugin"
)

// reservedCommands are names the CLI claims for itself. A plugin named after
// one of them keeps working, only its custom commands stay hidden.
var reservedCommands = map[string]bool{
	"plugin":     true,
	"plugins":    true,
	"install":    true,
	"i":          true,
	"uninstall":  true,
	"remove":     true,
	"rm":         true,
	"ls":         true,
	"list":       true,
	"ls-remote":  true,
	"latest":     true,
	"where":      true,
	"exec-env":   true,
	"version":    true,
	"help":       true,
	"completion": true,
}

// externalCommands surfaces plugin-provided subcommands at the top level, so
// a plugin shipping lib/commands/command-update.bash answers
// "toolv <plugin> update". Discovery failures hide the plugin's commands
// rather than break the CLI.
func externalCommands(opts *cliOptions) []*cobra.Command {
	dirs := paths.Resolve()
	names, err := plugin.Installed(dirs)
	if err != nil {
		return nil
	}
	cfg := domain.DefaultSettings()

	var cmds []*cobra.Command
	for _, name := range names {
		if reservedCommands[name] {
			continue
		}
		e := plugin.New(plugin.Params{Name: name, Dirs: dirs, Settings: cfg})
		pcs, err := e.ExternalCommands()
		if err != nil || len(pcs) == 0 {
			continue
		}
		cmds = append(cmds, newExternalGroup(opts, name, pcs))
	}
	return cmds
}

func newExternalGroup(opts *cliOptions, name string, pcs []plugin.ExternalCommand) *cobra.Command {
	return &cobra.Command{
		Use:                name,
		Short:              "Commands provided by the " + name + " plugin",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, c := range pcs {
					fmt.Println(name + " " + strings.Join(c.Words, " "))
				}
				return nil
			}
			target, rest := matchExternalCommand(pcs, args)
			if target == nil {
				return domain.E(domain.CodeNotFound, "cli",
					fmt.Sprintf("plugin %s has no command %s", name, args[0]), nil)
			}
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			err = s.plugins.Get(name).RunExternalCommand(cmd.Context(), target.Name(), rest...)
			var scriptErr *domain.ScriptError
			if errors.As(err, &scriptErr) {
				// the command ran with inherited stdio, its own output is
				// already on the terminal
				return exitSilent(scriptErr.ExitCode)
			}
			return err
		},
	}
}

// matchExternalCommand picks the command whose words are the longest prefix
// of args, so "env show --json" prefers command-env-show over command-env.
func matchExternalCommand(pcs []plugin.ExternalCommand, args []string) (*plugin.ExternalCommand, []string) {
	var best *plugin.ExternalCommand
	bestLen := 0
	for i := range pcs {
		words := pcs[i].Words
		if len(words) > len(args) || len(words) <= bestLen {
			continue
		}
		match := true
		for j := range words {
			if args[j] != words[j] {
				match = false
				break
			}
		}
		if match {
			best = &pcs[i]
			bestLen = len(words)
		}
	}
	if best == nil {
		return nil, nil
	}
	return best, args[bestLen:]
}
