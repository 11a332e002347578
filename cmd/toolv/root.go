package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"toolv/internal/domain"
)

type cliOptions struct {
	jobs     int
	raw      bool
	verbose  bool
	logLevel string
	yes      bool

	jobsSet     bool
	rawSet      bool
	verboseSet  bool
	logLevelSet bool

	logger *zap.Logger
}

func newRootCommand() (*cobra.Command, *cliOptions) {
	opts := &cliOptions{
		jobs:     domain.DefaultJobs,
		logLevel: domain.DefaultLogLevel,
		logger:   zap.NewNop(),
	}

	root := &cobra.Command{
		Use:           "toolv",
		Short:         "Polyglot tool version manager driven by script plugins",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			applyRootFlagBindings(cmd, opts)
			opts.logger = newLogger(opts.logLevel)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().IntVar(&opts.jobs, "jobs", opts.jobs, "parallel install jobs")
	root.PersistentFlags().BoolVar(&opts.raw, "raw", false, "pass script stdio through directly (implies --jobs 1 --verbose)")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "echo plugin script stderr even on success")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.yes, "yes", false, "answer yes to confirmation prompts")

	root.AddCommand(
		newPluginCmd(opts),
		newInstallCmd(opts),
		newUninstallCmd(opts),
		newLsCmd(opts),
		newLsRemoteCmd(opts),
		newLatestCmd(opts),
		newWhereCmd(opts),
		newExecEnvCmd(opts),
		newVersionCmd(opts),
	)
	root.AddCommand(externalCommands(opts)...)

	return root, opts
}

func applyRootFlagBindings(cmd *cobra.Command, opts *cliOptions) {
	flags := cmd.Flags()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "jobs":
			opts.jobs, _ = flags.GetInt("jobs")
			opts.jobsSet = true
		case "raw":
			opts.raw, _ = flags.GetBool("raw")
			opts.rawSet = true
		case "verbose":
			opts.verbose, _ = flags.GetBool("verbose")
			opts.verboseSet = true
		case "log-level":
			opts.logLevel, _ = flags.GetString("log-level")
			opts.logLevelSet = true
		case "yes":
			opts.yes, _ = flags.GetBool("yes")
		}
	})
}

// apply layers explicitly set flags over the loaded settings. Raw mode keeps
// its single-job pass-through semantics no matter where it was switched on.
func (o *cliOptions) apply(cfg *domain.Settings) {
	if o.jobsSet {
		cfg.Jobs = o.jobs
	}
	if o.rawSet {
		cfg.Raw = o.raw
	}
	if o.verboseSet {
		cfg.Verbose = o.verbose
	}
	if o.logLevelSet {
		cfg.LogLevel = o.logLevel
	}
	if cfg.Raw {
		cfg.Jobs = 1
		cfg.Verbose = true
	}
	o.verbose = cfg.Verbose
}
