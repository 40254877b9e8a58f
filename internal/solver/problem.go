package solver

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"go.uber.org/zap"
)

// errStopped is returned by an algorithm that noticed cancellation.
var errStopped = errors.New("search stopped")

// errBudgetOverflow is returned when the evaluation count of a search does
// not fit in 64 bits.
var errBudgetOverflow = errors.New("population size times generation count overflows")

// mulAdd returns a*b+c and false when the result does not fit in 64 bits.
func mulAdd(a, b, c uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, false
	}
	sum, carry := bits.Add64(lo, c, 0)
	return sum, carry == 0
}

// Problem is the flattened search space built from the optimize targets:
// each target contributes its value segment, in declaration order.
type Problem struct {
	cfg      Configuration
	targets  []Target
	segments []int
	progress *Progress
	logger   *zap.Logger

	Lower   []float64
	Upper   []float64
	Initial []float64

	initialCost float64
	best        []float64
	bestCost    float64
	bestFitness Fitness
}

// NewProblem reads the bounded parameters of every target from cfg.
func NewProblem(cfg Configuration, targets []Target, progress *Progress, logger *zap.Logger) (*Problem, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("no parameters to optimize")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Problem{
		cfg:         cfg,
		targets:     targets,
		progress:    progress,
		logger:      logger,
		bestCost:    math.Inf(1),
		bestFitness: NaNFitness(),
	}
	for _, t := range targets {
		lower, value, upper, err := cfg.ReadBoundedParameters(t.LinkIndex, t.Name)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t, err)
		}
		if len(lower) != len(value) || len(upper) != len(value) {
			return nil, fmt.Errorf("target %s: bounds and value differ in length", t)
		}
		p.segments = append(p.segments, len(value))
		p.Lower = append(p.Lower, lower...)
		p.Upper = append(p.Upper, upper...)
		p.Initial = append(p.Initial, value...)
	}
	return p, nil
}

// Dim is the length of a candidate vector.
func (p *Problem) Dim() int {
	return len(p.Initial)
}

// Clamp returns a copy of x limited to the parameter bounds.
func (p *Problem) Clamp(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Max(p.Lower[i], math.Min(p.Upper[i], v))
	}
	return out
}

// Cancelled reports whether the shared token asks the search to stop.
func (p *Problem) Cancelled() bool {
	return p.progress.Cancelled()
}

func (p *Problem) apply(x []float64) error {
	offset := 0
	for i, t := range p.targets {
		n := p.segments[i]
		if err := p.cfg.WriteParameterValues(t.LinkIndex, t.Name, x[offset:offset+n]); err != nil {
			return err
		}
		offset += n
	}
	return nil
}

// Evaluate scores candidate x and tracks it when it beats the best so far.
// Once the token is cancelled every call returns +Inf without touching the
// configuration, so a running search drains quickly.
func (p *Problem) Evaluate(x []float64) float64 {
	if p.Cancelled() {
		return math.Inf(1)
	}
	defer p.progress.Advance(1)

	x = p.Clamp(x)
	if err := p.apply(x); err != nil {
		p.logger.Debug("Candidate rejected", zap.Error(err))
		return math.Inf(1)
	}
	fitness, err := p.cfg.Evaluate()
	if err != nil {
		p.logger.Debug("Candidate evaluation failed", zap.Error(err))
		return math.Inf(1)
	}

	cost := fitness.Cost()
	if math.IsNaN(cost) {
		return math.Inf(1)
	}
	if cost < p.bestCost {
		p.bestCost = cost
		p.best = x
		p.bestFitness = fitness
		p.progress.SetBest(fitness)
	}
	return cost
}

// Seed evaluates the current configuration values followed by every hint of
// matching length.
func (p *Problem) Seed(hints [][]float64) {
	p.initialCost = p.Evaluate(p.Initial)
	for i, h := range hints {
		if len(h) != p.Dim() {
			p.logger.Warn("Ignoring hint of wrong dimension", zap.Int("hint", i), zap.Int("len", len(h)), zap.Int("expected", p.Dim()))
			continue
		}
		p.Evaluate(h)
	}
}

// BestFitness returns the fitness of the best candidate seen.
func (p *Problem) BestFitness() Fitness {
	return p.bestFitness
}

// finish writes the winning candidate back, or restores the initial values
// when nothing strictly better than them was found.
func (p *Problem) finish() (Status, error) {
	improved := p.best != nil && p.bestCost < p.initialCost
	values := p.Initial
	if improved {
		values = p.best
	}
	if err := p.apply(values); err != nil {
		return StatusFailed, fmt.Errorf("failed to write parameters back: %w", err)
	}
	if improved {
		p.logger.Info("Solver improved the solution", zap.Float64("initial_cost", p.initialCost), zap.Float64("best_cost", p.bestCost))
		return StatusImproved, nil
	}
	return StatusNotImproved, nil
}

// FromUnit maps a point of the unit hypercube onto the parameter bounds.
func (p *Problem) FromUnit(u []float64) []float64 {
	x := make([]float64, len(u))
	for i, v := range u {
		x[i] = p.Lower[i] + v*(p.Upper[i]-p.Lower[i])
	}
	return x
}

func (p *Problem) restore() error {
	return p.apply(p.Initial)
}
