package solver

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// minMayflyPopulation is the smallest population mayfly v0.1.0 accepts.
const minMayflyPopulation = 20

// stopSearch unwinds mayfly.Optimize, which has no stop hook of its own.
type stopSearch struct{}

// Mayfly wraps the external Mayfly library. The library works on scalar
// bounds, so the search runs on the unit hypercube and candidates are mapped
// onto the per-dimension parameter bounds before evaluation.
type Mayfly struct{}

func mayflyConfig(dim int, params Params) *mayfly.Config {
	config := mayfly.NewDefaultConfig()
	config.ProblemSize = dim
	config.MaxIterations = params.GenerationCount
	config.NPop = max(params.PopulationSize, minMayflyPopulation)
	config.NPopF = config.NPop
	config.NM = max(1, int(math.Round(0.05*float64(config.NPop))))
	config.LowerBound = 0
	config.UpperBound = 1
	return config
}

// Budget counts the objective calls of a plain velocity-update run: both
// populations once up front, then per generation both populations again plus
// the offspring and the mutants.
func (m *Mayfly) Budget(dim int, params Params) (uint64, error) {
	if params.GenerationCount == 0 || dim == 0 {
		return 0, nil
	}
	c := mayflyConfig(dim, params)
	initial := uint64(c.NPop + c.NPopF)
	perGeneration := initial + uint64(2*(c.NC/2)+c.NM)
	total, ok := mulAdd(uint64(c.MaxIterations), perGeneration, initial)
	if !ok {
		return 0, errBudgetOverflow
	}
	return total, nil
}

// Search runs the Mayfly optimization
func (m *Mayfly) Search(p *Problem, params Params) (err error) {
	if params.GenerationCount == 0 || p.Dim() == 0 {
		return nil
	}

	config := mayflyConfig(p.Dim(), params)
	config.ObjectiveFunc = func(u []float64) float64 {
		if p.Cancelled() {
			panic(stopSearch{})
		}
		return p.Evaluate(p.FromUnit(u))
	}
	config.Rand = rand.New(rand.NewSource(params.Seed))

	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(stopSearch); !ok {
				panic(r)
			}
			err = errStopped
		}
	}()

	if _, err := mayfly.Optimize(config); err != nil {
		return fmt.Errorf("mayfly optimization failed: %w", err)
	}
	return nil
}
