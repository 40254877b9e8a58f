package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwbudde/chainopt/internal/chain"
	"github.com/cwbudde/chainopt/internal/exitcode"
	"github.com/cwbudde/chainopt/internal/hints"
	"github.com/cwbudde/chainopt/internal/interrupt"
	"github.com/cwbudde/chainopt/internal/observability"
	"github.com/cwbudde/chainopt/internal/optimize"
	"github.com/cwbudde/chainopt/internal/options"
	"github.com/cwbudde/chainopt/internal/solver"
	"github.com/cwbudde/chainopt/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// runAction resolves the command line, loads the configuration and runs the
// requested action.
func (a *app) runAction(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	progress := solver.NewProgress()
	bridge := interrupt.New(logger)
	bridge.SetProgress(progress)
	bridge.Install()
	defer bridge.Stop()

	action, err := a.resolver(cmd).Resolve(args, cmd.Flags(), a.flags)
	if err != nil {
		return err
	}

	cfg, err := chain.Load(action.ConfigPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Failed to load configuration %s:\n", action.ConfigPath)
		for _, e := range multierr.Errors(err) {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", e)
		}
		return exitcode.New(exitcode.ConfigurationLoad, fmt.Errorf("failed to load configuration %s", action.ConfigPath))
	}
	logger.Info("Configuration loaded", zap.String("path", cfg.Path()), zap.Int("links", cfg.LinkCount()))

	if bridge.Interrupted() {
		return exitcode.Errorf(exitcode.Cancelled, "interrupted while loading the configuration")
	}

	for _, v := range action.Variables {
		if err := cfg.SetVariable(v.Name, v.Value); err != nil {
			return exitcode.New(exitcode.OptionParse, fmt.Errorf("cannot set variable %q: %w", v.Name, err))
		}
		logger.Debug("Variable set", zap.String("name", v.Name), zap.String("value", v.Value))
	}

	switch action.Action {
	case options.ActionExecute:
		return a.execute(cmd.Context(), cmd, cfg, action, bridge)
	case options.ActionOptimize:
		return a.optimize(cmd, cfg, action, progress)
	default:
		return exitcode.Errorf(exitcode.Usage, "no action requested")
	}
}

func (a *app) execute(ctx context.Context, cmd *cobra.Command, cfg *chain.Configuration, action options.Descriptor, bridge *interrupt.Bridge) error {
	if ctx == nil {
		ctx = context.Background()
	}

	executor := chain.NewExecutor(cfg, cmd.OutOrStdout(), observability.GetLogger())
	unregister := bridge.Register(executor)
	err := executor.Run(ctx)
	unregister()

	if errors.Is(err, chain.ErrShutdown) || bridge.Interrupted() {
		return exitcode.Errorf(exitcode.Cancelled, "execution interrupted")
	}
	if err != nil {
		return exitcode.New(exitcode.Execution, err)
	}

	if action.SaveConfiguration {
		if err := cfg.Save(); err != nil {
			return exitcode.New(exitcode.Save, fmt.Errorf("failed to save configuration %s: %w", cfg.Path(), err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to %s\n", cfg.Path())
	}
	return nil
}

func (a *app) optimize(cmd *cobra.Command, cfg *chain.Configuration, action options.Descriptor, progress *solver.Progress) error {
	logger := observability.GetLogger()

	d := &optimize.Driver{
		Solver:         solver.NewDispatcher(a.registry, logger),
		Registry:       a.registry,
		Loader:         hints.NewLoader(logger),
		Out:            cmd.OutOrStdout(),
		RenderInterval: a.settings.Optimize.RenderInterval,
		Seed:           a.settings.Optimize.Seed,
		Logger:         logger,
	}

	if dir := a.settings.Store.Dir; dir != "" {
		records, err := store.NewFSStore(dir, logger)
		if err != nil {
			logger.Warn("Run records disabled", zap.String("dir", dir), zap.Error(err))
		} else {
			d.Records = records
			d.Trace = a.settings.Store.Trace
		}
	}

	return d.Run(cfg, action, progress)
}
