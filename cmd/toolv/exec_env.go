package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"toolv/internal/domain"
	"toolv/internal/infra/envutil"
)

func newExecEnvCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec-env <tool@version>...",
		Short: "Print shell exports that activate installed tool versions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			r, err := s.resolver()
			if err != nil {
				return err
			}
			ins, err := s.installer()
			if err != nil {
				return err
			}

			env := map[string]string{}
			var binPaths []string
			base := os.Getenv("PATH")

			for _, arg := range args {
				name, req, err := parseToolArg(arg)
				if err != nil {
					return err
				}
				tv, err := r.Resolve(cmd.Context(), req, nil, false)
				if err != nil {
					return err
				}
				if tv.Request.Kind == domain.KindSystem {
					continue
				}
				if !ins.IsInstalled(tv) {
					return domain.E(domain.CodeNotFound, "cli",
						fmt.Sprintf("%s is not installed", tv), nil)
				}

				e := s.plugins.Get(name)
				vars, err := e.ExecEnv(cmd.Context(), tv)
				if err != nil {
					return err
				}
				for k, v := range vars {
					// A script-exported PATH replaces the inherited one as
					// the base the bin dirs are prepended to.
					if k == "PATH" {
						base = v
						continue
					}
					env[k] = v
				}
				bins, err := e.ListBinPaths(cmd.Context(), tv)
				if err != nil {
					return err
				}
				binPaths = append(binPaths, bins...)
			}

			keys := make([]string, 0, len(env))
			for k := range env {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Println(shellExport(k, env[k]))
			}
			fmt.Println(shellExport("PATH", envutil.PrependPath(base, binPaths...)))
			return nil
		},
	}
}
