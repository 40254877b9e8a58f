package main

import (
	"fmt"

	"github.com/cwbudde/chainopt/internal/config"
	"github.com/cwbudde/chainopt/internal/exitcode"
	"github.com/cwbudde/chainopt/internal/observability"
	"github.com/cwbudde/chainopt/internal/options"
	"github.com/cwbudde/chainopt/internal/solver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app carries what the persistent pre-run resolved for the subcommands.
type app struct {
	settingsFile string
	logLevel     string
	settings     *config.Settings
	flags        *options.Flags
	registry     *solver.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{registry: solver.NewRegistry()}

	rootCmd := &cobra.Command{
		Use:   "chainopt <configuration_path>",
		Short: "Execute or optimize a filter chain configuration",
		Long: `chainopt loads a filter chain configuration and either executes it or tunes
selected link parameters with a stochastic solver, saving the configuration
when the solver improves it.

A configuration file named like a subcommand (runs, version) must be given
with a directory prefix, e.g. ./runs.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAction(cmd, args)
		},
	}

	a.flags = options.Bind(rootCmd.Flags())
	rootCmd.PersistentFlags().StringVar(&a.settingsFile, "settings", "", "settings file (default is ./chainopt.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the settings")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		fmt.Fprintln(cmd.ErrOrStderr(), "Failed to parse the command line options!")
		if cmd == rootCmd {
			a.resolver(cmd).PrintUsage(cmd.Flags())
		} else {
			fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
		}
		return exitcode.New(exitcode.OptionParse, err)
	})

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunsCmd(a))
	return rootCmd
}

// setup loads the settings and initializes the global logger.
func (a *app) setup(cmd *cobra.Command) error {
	settings, err := config.Load(viper.New(), a.settingsFile)
	if err != nil {
		observability.InitializeLogger(config.NewDefaultSettings().Logger)
		return exitcode.New(exitcode.Settings, err)
	}
	if a.logLevel != "" {
		settings.Logger.Level = a.logLevel
	}
	a.settings = settings

	observability.InitializeLogger(settings.Logger)
	observability.GetLogger().Debug("Settings loaded",
		zap.String("version", version),
		zap.Duration("render_interval", settings.Optimize.RenderInterval),
		zap.String("store_dir", settings.Store.Dir),
	)
	return nil
}

func (a *app) resolver(cmd *cobra.Command) *options.Resolver {
	return &options.Resolver{
		Registry: a.registry,
		Out:      cmd.OutOrStdout(),
		Err:      cmd.ErrOrStderr(),
	}
}
