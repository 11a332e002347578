package main

import (
	"github.com/spf13/cobra"

	"toolv/internal/domain"
)

func newLsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "ls [plugin]",
		Aliases: []string{"list"},
		Short:   "List installed tool versions",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			var names []string
			if len(args) == 1 {
				if !s.plugins.Get(args[0]).IsInstalled() {
					return &domain.PluginNotInstalledError{Plugin: args[0]}
				}
				names = []string{args[0]}
			} else {
				installed, err := s.plugins.InstalledPlugins()
				if err != nil {
					return err
				}
				for _, e := range installed {
					names = append(names, e.Name())
				}
			}

			for _, name := range names {
				versions, err := s.plugins.Get(name).ListInstalledVersions()
				if err != nil {
					return err
				}
				for _, v := range versions {
					printRow(name, v)
				}
			}
			return nil
		},
	}
}
