package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"toolv/internal/domain"
)

func newLsRemoteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls-remote <plugin> [prefix]",
		Short: "List versions available for install",
		Args:  cobra.RangeArgs(1, 2),
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
			versions, err := e.ListRemoteVersions(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 2 {
				versions = domain.MatchingVersions(versions, args[1])
			}
			for _, v := range versions {
				fmt.Println(v)
			}
			return nil
		},
	}
}
