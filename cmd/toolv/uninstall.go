package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"toolv/internal/domain"
)

func newUninstallCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall <tool@version>...",
		Aliases: []string{"remove", "rm"},
		Short:   "Remove installed tool versions",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()

			r, err := s.resolver()
			if err != nil {
				return err
			}
			ins, err := s.installer()
			if err != nil {
				return err
			}

			for _, arg := range args {
				_, req, err := parseToolArg(arg)
				if err != nil {
					return err
				}
				if req.Kind == domain.KindSystem {
					return domain.E(domain.CodeInvalidArgument, "cli",
						"system versions are not managed by toolv", nil)
				}
				tv, err := r.Resolve(ctx, req, nil, false)
				if err != nil {
					return err
				}
				if !ins.IsInstalled(tv) {
					return domain.E(domain.CodeNotFound, "cli",
						fmt.Sprintf("%s is not installed", tv), nil)
				}
				if err := ins.Uninstall(ctx, tv); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
