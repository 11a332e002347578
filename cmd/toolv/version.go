package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolv/internal/buildinfo"
	"toolv/internal/infra/release"
)

func newVersionCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the toolv version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Printf("toolv %s (%s)\n", buildinfo.Version, buildinfo.Build)

			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			if s.settings.DisableSelfUpdateCheck {
				return nil
			}
			res, err := release.NewChecker(s.dirs.Cache, s.logger).Check(cmd.Context())
			if err != nil {
				s.logger.Debug("release check failed", zap.Error(err))
				return nil
			}
			if res.UpdateAvailable && res.Latest != nil {
				fmt.Fprintf(os.Stderr, "toolv %s is available (installed %s): %s\n",
					res.Latest.Version, res.CurrentVersion, res.Latest.URL)
			}
			return nil
		},
	}
}
