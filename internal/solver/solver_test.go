package solver

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadConfig is a one-link configuration whose single objective is the
// squared distance of parameter "gain" to a fixed optimum.
type quadConfig struct {
	lower, value, upper []float64
	optimum             []float64
	onEvaluate          func()
}

func newQuadConfig(value, optimum []float64) *quadConfig {
	n := len(value)
	c := &quadConfig{value: append([]float64(nil), value...), optimum: optimum}
	for i := 0; i < n; i++ {
		c.lower = append(c.lower, -10)
		c.upper = append(c.upper, 10)
	}
	return c
}

func (c *quadConfig) LinkCount() int { return 1 }

func (c *quadConfig) ReadBoundedParameters(index int, name string) ([]float64, []float64, []float64, error) {
	if index != 0 || name != "gain" {
		return nil, nil, nil, errors.New("unknown parameter")
	}
	cp := func(s []float64) []float64 { return append([]float64(nil), s...) }
	return cp(c.lower), cp(c.value), cp(c.upper), nil
}

func (c *quadConfig) WriteParameterValues(index int, name string, values []float64) error {
	if index != 0 || name != "gain" {
		return errors.New("unknown parameter")
	}
	copy(c.value, values)
	return nil
}

func (c *quadConfig) Evaluate() (Fitness, error) {
	if c.onEvaluate != nil {
		c.onEvaluate()
	}
	f := NaNFitness()
	f[0] = 0
	for i, v := range c.value {
		d := v - c.optimum[i]
		f[0] += d * d
	}
	return f, nil
}

var gainTarget = []Target{{LinkIndex: 0, Name: "gain"}}

func TestDispatcherHaltonImproves(t *testing.T) {
	cfg := newQuadConfig([]float64{9, -9}, []float64{1, 2})
	progress := NewProgress()
	d := NewDispatcher(NewRegistry(), nil)

	status, err := d.Optimize(cfg, gainTarget, HaltonID, Params{PopulationSize: 20, GenerationCount: 10}, nil, progress)
	require.NoError(t, err)
	assert.Equal(t, StatusImproved, status)

	best := progress.Best(0)
	assert.Less(t, best, 164.0) // initial cost (8^2 + 11^2)
	assert.True(t, math.IsNaN(progress.Best(1)))
	assert.Equal(t, uint64(201), progress.Max())
	assert.Equal(t, progress.Max(), progress.Current())

	// the configuration holds the winning candidate
	cost, _ := cfg.Evaluate()
	assert.InDelta(t, best, cost[0], 1e-12)
}

func TestDispatcherHintReachesOptimum(t *testing.T) {
	cfg := newQuadConfig([]float64{9, -9}, []float64{1, 2})
	progress := NewProgress()
	d := NewDispatcher(NewRegistry(), nil)

	hints := [][]float64{{1, 2}, {3}}
	status, err := d.Optimize(cfg, gainTarget, HaltonID, Params{}, hints, progress)
	require.NoError(t, err)
	assert.Equal(t, StatusImproved, status)
	assert.Equal(t, []float64{1, 2}, cfg.value)
	assert.Equal(t, 0.0, progress.Best(0))
}

func TestDispatcherNotImproved(t *testing.T) {
	cfg := newQuadConfig([]float64{1, 2}, []float64{1, 2})
	d := NewDispatcher(NewRegistry(), nil)

	status, err := d.Optimize(cfg, gainTarget, HaltonID, Params{PopulationSize: 5, GenerationCount: 5}, nil, NewProgress())
	require.NoError(t, err)
	assert.Equal(t, StatusNotImproved, status)
	assert.Equal(t, []float64{1, 2}, cfg.value)
}

func TestDispatcherCancelledRestoresValues(t *testing.T) {
	cfg := newQuadConfig([]float64{9, -9}, []float64{1, 2})
	progress := NewProgress()
	evaluations := 0
	cfg.onEvaluate = func() {
		evaluations++
		if evaluations == 3 {
			progress.Cancel()
		}
	}
	d := NewDispatcher(NewRegistry(), nil)

	status, err := d.Optimize(cfg, gainTarget, HaltonID, Params{PopulationSize: 100, GenerationCount: 100}, nil, progress)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)
	assert.Equal(t, 3, evaluations)
	assert.Equal(t, []float64{9, -9}, cfg.value)
}

func TestMayflyCancelledStopsSearch(t *testing.T) {
	cfg := newQuadConfig([]float64{9, -9}, []float64{1, 2})
	progress := NewProgress()
	evaluations := 0
	cfg.onEvaluate = func() {
		evaluations++
		if evaluations == 3 {
			progress.Cancel()
		}
	}
	d := NewDispatcher(NewRegistry(), nil)

	status, err := d.Optimize(cfg, gainTarget, MayflyID, Params{PopulationSize: 1000, GenerationCount: 2000}, nil, progress)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)
	assert.Equal(t, 3, evaluations)
	assert.Equal(t, uint64(3), progress.Current())
	assert.Equal(t, []float64{9, -9}, cfg.value)
}

func TestDispatcherRejectsOverflowingCounts(t *testing.T) {
	for _, id := range []ID{MayflyID, HaltonID} {
		cfg := newQuadConfig([]float64{9, -9}, []float64{1, 2})
		progress := NewProgress()
		d := NewDispatcher(NewRegistry(), nil)

		huge := 1 << 32
		status, err := d.Optimize(cfg, gainTarget, id, Params{PopulationSize: huge, GenerationCount: huge}, nil, progress)
		assert.ErrorIs(t, err, errBudgetOverflow, FormatID(id))
		assert.Equal(t, StatusInvalidArgument, status)
		assert.Zero(t, progress.Max())
		assert.Zero(t, progress.Current())
		assert.Equal(t, []float64{9, -9}, cfg.value)
	}
}

func TestDispatcherRejectsUnknownSolverAndTarget(t *testing.T) {
	cfg := newQuadConfig([]float64{0}, []float64{0})
	d := NewDispatcher(NewRegistry(), nil)

	status, err := d.Optimize(cfg, gainTarget, ID{}, Params{}, nil, NewProgress())
	assert.Error(t, err)
	assert.Equal(t, StatusInvalidArgument, status)

	status, err = d.Optimize(cfg, []Target{{LinkIndex: 0, Name: "offset"}}, HaltonID, Params{}, nil, NewProgress())
	assert.Error(t, err)
	assert.Equal(t, StatusInvalidArgument, status)
}

func TestMayflyOnQuadratic(t *testing.T) {
	cfg := newQuadConfig([]float64{9, -9, 9}, []float64{0, 0, 0})
	d := NewDispatcher(NewRegistry(), nil)

	progress := NewProgress()
	status, err := d.Optimize(cfg, gainTarget, MayflyID, Params{PopulationSize: 20, GenerationCount: 100, Seed: 42}, nil, progress)
	require.NoError(t, err)
	assert.Equal(t, StatusImproved, status)

	// start value, both populations, then 100 generations of
	// 40 parents, 20 offspring and 1 mutant
	assert.Equal(t, uint64(1+40+100*61), progress.Max())
	assert.Equal(t, progress.Max(), progress.Current())

	cost, _ := cfg.Evaluate()
	assert.Less(t, cost[0], 1.0)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	d, ok := r.Lookup(DefaultID)
	require.True(t, ok)
	assert.Equal(t, MayflyID, d.ID)

	all := r.Descriptors()
	require.Len(t, all, 2)
	assert.Equal(t, MayflyID, all[0].ID)

	id, err := ParseID("{01274B08-F721-42BC-A562-0556714C5685}")
	require.NoError(t, err)
	assert.Equal(t, MayflyID, id)
	assert.Equal(t, "{01274B08-F721-42BC-A562-0556714C5685}", FormatID(id))

	_, err = ParseID("halton")
	assert.Error(t, err)
}

func TestRadicalInverse(t *testing.T) {
	assert.Equal(t, 0.5, radicalInverse(1, 2))
	assert.Equal(t, 0.25, radicalInverse(2, 2))
	assert.Equal(t, 0.75, radicalInverse(3, 2))
	assert.InDelta(t, 1.0/3.0, radicalInverse(1, 3), 1e-15)
	assert.Equal(t, []uint64{2, 3, 5, 7, 11}, firstPrimes(5))
}

func TestFitnessCost(t *testing.T) {
	f := NaNFitness()
	assert.True(t, math.IsInf(f.Cost(), 1))

	f[0], f[3] = 1.5, 2
	assert.Equal(t, 3.5, f.Cost())
}
