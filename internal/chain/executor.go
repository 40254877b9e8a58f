package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"
)

// ErrShutdown is returned by Run when a shutdown event stopped the chain.
var ErrShutdown = errors.New("filter chain was shut down")

// Executor runs a configuration once: it walks the links in order and then
// reports every objective. A shutdown event stops it before the next link.
type Executor struct {
	cfg      *Configuration
	out      io.Writer
	logger   *zap.Logger
	shutdown chan struct{}
}

// NewExecutor prepares an executor writing its report to out.
func NewExecutor(cfg *Configuration, out io.Writer, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:      cfg,
		out:      out,
		logger:   logger.Named("executor"),
		shutdown: make(chan struct{}, 1),
	}
}

// DeliverShutdown asks a running chain to stop. It never blocks; repeated
// events before the chain observes the first one are coalesced.
func (e *Executor) DeliverShutdown() {
	select {
	case e.shutdown <- struct{}{}:
	default:
	}
}

// Run executes the chain until it completes, ctx is done, or a shutdown
// event arrives.
func (e *Executor) Run(ctx context.Context) error {
	for i := 0; i < e.cfg.LinkCount(); i++ {
		select {
		case <-e.shutdown:
			e.logger.Info("Shutdown received, stopping chain", zap.Int("next_link", i))
			return ErrShutdown
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		link, _ := e.cfg.LinkAt(i)
		e.logger.Debug("Link configured", zap.Int("index", i), zap.String("kind", link.Kind), zap.Strings("parameters", link.ParameterNames()))
	}

	fitness, err := e.cfg.Evaluate()
	if err != nil {
		return fmt.Errorf("failed to evaluate objectives: %w", err)
	}

	names := e.cfg.ObjectiveNames()
	if len(names) == 0 {
		fmt.Fprintln(e.out, "Chain executed, no objectives defined.")
		return nil
	}
	fmt.Fprintln(e.out, "Chain executed, objectives:")
	for i, name := range names {
		if i >= len(fitness) || math.IsNaN(fitness[i]) {
			continue
		}
		fmt.Fprintf(e.out, "  %d %s: %g\n", i, name, fitness[i])
	}
	return nil
}
