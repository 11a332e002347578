package main

import (
	"github.com/spf13/cobra"

	"toolv/internal/app/toolset"
	"toolv/internal/domain"
)

func newInstallCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "install <tool[@version]>...",
		Aliases: []string{"i"},
		Short:   "Resolve and install tool versions",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()

			// make sure every named backend exists before resolving anything
			seen := map[string]bool{}
			for _, arg := range args {
				name, _, err := parseToolArg(arg)
				if err != nil {
					return err
				}
				if seen[name] {
					continue
				}
				seen[name] = true
				if err := s.ensurePlugin(ctx, name); err != nil {
					return err
				}
			}
			s.plugins.AutoUpdateAll(ctx)

			r, err := s.resolver()
			if err != nil {
				return err
			}
			ins, err := s.installer()
			if err != nil {
				return err
			}

			byPlugin := map[string]*toolset.ToolVersionList{}
			var lists []*toolset.ToolVersionList
			for _, arg := range args {
				name, req, err := parseToolArg(arg)
				if err != nil {
					return err
				}
				l, ok := byPlugin[name]
				if !ok {
					l = toolset.NewToolVersionList(name, domain.ToolSource{Kind: domain.SourceArgument})
					byPlugin[name] = l
					lists = append(lists, l)
				}
				l.AddRequest(req, nil)

				tv, err := r.Resolve(ctx, req, nil, true)
				if err != nil {
					return err
				}
				l.Versions = append(l.Versions, tv)
			}

			return ins.InstallMissing(ctx, lists, s.settings.Jobs)
		},
	}
}
