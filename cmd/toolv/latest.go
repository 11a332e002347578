package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLatestCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "latest <tool[@prefix]>",
		Short: "Print the latest version matching a tool request",
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
			tv, err := r.Resolve(cmd.Context(), req, nil, true)
			if err != nil {
				return err
			}
			fmt.Println(tv.Version)
			return nil
		},
	}
}
