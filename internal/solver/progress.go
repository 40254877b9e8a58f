package solver

import (
	"math"
	"sync/atomic"
)

// Fitness holds one value per objective slot; NaN marks an unused slot.
type Fitness [MaxObjectives]float64

// NaNFitness returns a Fitness with every slot unset.
func NaNFitness() Fitness {
	var f Fitness
	for i := range f {
		f[i] = math.NaN()
	}
	return f
}

// Cost reduces a Fitness to the scalar used to rank candidates: the sum of
// all set slots. A fitness without any set slot ranks worst.
func (f Fitness) Cost() float64 {
	sum, set := 0.0, false
	for _, v := range f {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		set = true
	}
	if !set {
		return math.Inf(1)
	}
	return sum
}

// Progress is the token shared between the solver worker, the progress
// renderer and the interrupt handler. The solver writes counters and best
// fitness, the interrupt handler writes only the cancellation flag, and the
// renderer only reads. Every field is a single atomic word so readers get
// per-field snapshots without locking; cross-field consistency is not
// guaranteed and not needed.
type Progress struct {
	current   atomic.Uint64
	max       atomic.Uint64
	best      [MaxObjectives]atomic.Uint64
	cancelled atomic.Bool
}

// NewProgress returns a token with zero counters and unset fitness.
func NewProgress() *Progress {
	p := &Progress{}
	nan := math.Float64bits(math.NaN())
	for i := range p.best {
		p.best[i].Store(nan)
	}
	return p
}

// SetMax sets the expected total of progress units.
func (p *Progress) SetMax(n uint64) {
	p.max.Store(n)
}

func (p *Progress) Max() uint64 {
	return p.max.Load()
}

// Advance adds n completed progress units.
func (p *Progress) Advance(n uint64) {
	p.current.Add(n)
}

func (p *Progress) Current() uint64 {
	return p.current.Load()
}

func (p *Progress) Cancelled() bool {
	return p.cancelled.Load()
}

// Cancel sets the cancellation flag. It does not allocate and never blocks,
// so it is safe to call from the interrupt path.
func (p *Progress) Cancel() { p.cancelled.Store(true) }

// SetBest publishes the fitness of the best candidate found so far.
func (p *Progress) SetBest(f Fitness) {
	for i, v := range f {
		p.best[i].Store(math.Float64bits(v))
	}
}

// Best returns the best fitness value of one objective slot.
func (p *Progress) Best(slot int) float64 {
	return math.Float64frombits(p.best[slot].Load())
}

// BestFitness returns a snapshot of all slots.
func (p *Progress) BestFitness() Fitness {
	var f Fitness
	for i := range f {
		f[i] = p.Best(i)
	}
	return f
}
