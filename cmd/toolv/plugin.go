package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolv/internal/domain"
	"toolv/internal/infra/progress"
	"toolv/internal/infra/state"
)

func newPluginCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plugin",
		Aliases: []string{"plugins"},
		Short:   "Manage plugin backends",
	}
	cmd.AddCommand(
		newPluginAddCmd(opts),
		newPluginRmCmd(opts),
		newPluginUpdateCmd(opts),
		newPluginLsCmd(opts),
		newPluginLsRemoteCmd(opts),
	)
	return cmd
}

func newPluginAddCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> [git-url]",
		Short: "Install a plugin backend from its git repository",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			name := args[0]
			e := s.plugins.Get(name)
			if len(args) == 2 {
				e = s.plugins.Bind(name, args[1])
			}

			reg, err := s.registry()
			if err != nil {
				// only fatal when the registry is the only source of the URL
				if len(args) < 2 {
					return err
				}
				s.logger.Debug("registry unavailable", zap.Error(err))
				reg = nil
			}

			if err := e.Install(cmd.Context(), reg, progress.NewWriter(os.Stderr, name)); err != nil {
				return err
			}
			s.recordEvent(state.EventPluginInstall, name, "")
			return nil
		},
	}
}

func newPluginRmCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Uninstall a plugin backend and everything installed with it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			name := args[0]
			e := s.plugins.Get(name)
			if !e.IsInstalled() {
				return &domain.PluginNotInstalledError{Plugin: name}
			}
			if !opts.yes && !confirm(os.Stdin, os.Stderr,
				fmt.Sprintf("remove plugin %s and all tool versions installed with it?", name)) {
				fmt.Fprintln(os.Stderr, "aborted")
				return nil
			}

			if err := e.Uninstall(progress.NewWriter(os.Stderr, name)); err != nil {
				return err
			}
			if s.store != nil {
				if err := s.store.ForgetPlugin(name); err != nil {
					s.logger.Debug("failed to drop plugin state", zap.Error(err))
				}
			}
			s.recordEvent(state.EventPluginUninstall, name, "")
			return nil
		},
	}
}

func newPluginUpdateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update [name[@ref]...]",
		Short: "Update installed plugin backends (all of them by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			specs := args
			if len(specs) == 0 {
				installed, err := s.plugins.InstalledPlugins()
				if err != nil {
					return err
				}
				for _, e := range installed {
					specs = append(specs, e.Name())
				}
			}

			for _, spec := range specs {
				name, ref, _ := strings.Cut(spec, "@")
				e := s.plugins.Get(name)
				if !e.IsInstalled() {
					return &domain.PluginNotInstalledError{Plugin: name}
				}
				prev, post, err := e.Update(cmd.Context(), ref)
				if err != nil {
					return err
				}
				if post == "" {
					continue // not updatable, already logged
				}
				if prev == post {
					fmt.Printf("%s: already up to date\n", name)
				} else {
					fmt.Printf("%s: %s -> %s\n", name, prev, post)
					s.recordEvent(state.EventPluginUpdate, name, post)
				}
				if s.store != nil {
					if err := s.store.RecordUpdateCheck(name, post); err != nil {
						s.logger.Debug("failed to record update check", zap.Error(err))
					}
				}
			}
			return nil
		},
	}
}

func newPluginLsCmd(opts *cliOptions) *cobra.Command {
	var (
		urls bool
		refs bool
	)
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List installed plugin backends",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			installed, err := s.plugins.InstalledPlugins()
			if err != nil {
				return err
			}
			for _, e := range installed {
				row := []string{e.Name()}
				if urls {
					u, _ := e.RemoteURL(cmd.Context())
					row = append(row, u)
				}
				if refs {
					sha, err := e.CurrentSHAShort(cmd.Context())
					if err != nil {
						sha = "-"
					}
					row = append(row, sha)
				}
				printRow(row...)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&urls, "urls", false, "show source repository urls")
	cmd.Flags().BoolVar(&refs, "refs", false, "show checked out commits")
	return cmd
}

func newPluginLsRemoteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls-remote",
		Short: "List plugin short names known to the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			reg, err := s.registry()
			if err != nil {
				return err
			}
			for _, name := range reg.Names() {
				fmt.Println(name)
			}
			return nil
		},
	}
}
