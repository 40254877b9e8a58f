package solver

// Halton samples the parameter space along a Halton low-discrepancy
// sequence, one prime base per dimension. GenerationCount*PopulationSize
// points are evaluated; the seed shifts the starting index.
type Halton struct{}

func (h *Halton) Budget(dim int, params Params) (uint64, error) {
	if dim == 0 {
		return 0, nil
	}
	n, ok := mulAdd(uint64(params.GenerationCount), uint64(params.PopulationSize), 0)
	if !ok {
		return 0, errBudgetOverflow
	}
	return n, nil
}

func (h *Halton) Search(p *Problem, params Params) error {
	n, err := h.Budget(p.Dim(), params)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	bases := firstPrimes(p.Dim())
	start := uint64(1)
	if params.Seed > 0 {
		start += uint64(params.Seed % 4096)
	}

	u := make([]float64, p.Dim())
	for i := uint64(0); i < n; i++ {
		if p.Cancelled() {
			return errStopped
		}
		index := start + i
		for d, b := range bases {
			u[d] = radicalInverse(index, b)
		}
		p.Evaluate(p.FromUnit(u))
	}
	return nil
}

// radicalInverse mirrors the base-b digits of i around the radix point.
func radicalInverse(i, base uint64) float64 {
	inv := 1.0 / float64(base)
	f := inv
	r := 0.0
	for i > 0 {
		r += float64(i%base) * f
		i /= base
		f *= inv
	}
	return r
}

func firstPrimes(n int) []uint64 {
	primes := make([]uint64, 0, n)
	for c := uint64(2); len(primes) < n; c++ {
		prime := true
		for _, p := range primes {
			if p*p > c {
				break
			}
			if c%p == 0 {
				prime = false
				break
			}
		}
		if prime {
			primes = append(primes, c)
		}
	}
	return primes
}
