package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"toolv/internal/domain"
)

func newWhereCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "where <tool@version>",
		Short: "Print the install directory of a resolved tool version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			_, req, err := parseToolArg(args[0])
			if err != nil {
				return err
			}
			r, err := s.resolver()
			if err != nil {
				return err
			}
			tv, err := r.Resolve(cmd.Context(), req, nil, false)
			if err != nil {
				return err
			}
			ins, err := s.installer()
			if err != nil {
				return err
			}
			if !ins.IsInstalled(tv) {
				return domain.E(domain.CodeNotFound, "cli",
					fmt.Sprintf("%s is not installed", tv), nil)
			}
			fmt.Println(tv.InstallPath)
			return nil
		},
	}
}
