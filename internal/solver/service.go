package solver

import (
	"errors"
	"fmt"
	"math/bits"

	"go.uber.org/zap"
)

// Dispatcher implements Service on top of a Registry.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
}

// NewDispatcher creates a Service resolving solver ids through r.
func NewDispatcher(r *Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: r, logger: logger.Named("solver")}
}

// Optimize seeds the search with the current values and the hints, runs the
// selected algorithm and writes the best candidate back if it improved on
// the starting point. On cancellation or failure the starting values are
// restored.
func (d *Dispatcher) Optimize(cfg Configuration, targets []Target, id ID, params Params, hints [][]float64, progress *Progress) (Status, error) {
	desc, ok := d.registry.Lookup(id)
	if !ok {
		return StatusInvalidArgument, fmt.Errorf("unknown solver id %s", FormatID(id))
	}
	if params.PopulationSize < 0 || params.GenerationCount < 0 {
		return StatusInvalidArgument, fmt.Errorf("population size and generation count must be non-negative")
	}

	problem, err := NewProblem(cfg, targets, progress, d.logger)
	if err != nil {
		return StatusInvalidArgument, err
	}

	budget, err := desc.Algorithm.Budget(problem.Dim(), params)
	if err != nil {
		return StatusInvalidArgument, err
	}
	total, carry := bits.Add64(budget, uint64(1+len(hints)), 0)
	if carry != 0 {
		return StatusInvalidArgument, errBudgetOverflow
	}
	progress.SetMax(total)
	d.logger.Info("Starting solver",
		zap.String("solver", desc.Description),
		zap.Int("dimension", problem.Dim()),
		zap.Int("hints", len(hints)),
		zap.Int("population_size", params.PopulationSize),
		zap.Int("generation_count", params.GenerationCount),
	)

	problem.Seed(hints)
	searchErr := desc.Algorithm.Search(problem, params)

	if progress.Cancelled() {
		if err := problem.restore(); err != nil {
			d.logger.Warn("Failed to restore parameters after cancellation", zap.Error(err))
		}
		return StatusCancelled, nil
	}
	if searchErr != nil && !errors.Is(searchErr, errStopped) {
		if err := problem.restore(); err != nil {
			d.logger.Warn("Failed to restore parameters after solver failure", zap.Error(err))
		}
		return StatusFailed, searchErr
	}
	return problem.finish()
}
