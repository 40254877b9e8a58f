// Package solver holds the optimization side of the console driver: solver
// identifiers and their registry, the shared progress token, and the
// algorithms that tune bounded link parameters of a configuration.
//
// Fitness convention: every objective is minimized, lower is better.
package solver

import (
	"fmt"
)

// MaxObjectives is the fixed number of objective slots tracked per candidate.
const MaxObjectives = 10

// Target identifies one tunable parameter: a link by zero-based index and the
// name of its bounded parameter triple.
type Target struct {
	LinkIndex int
	Name      string
}

func (t Target) String() string {
	return fmt.Sprintf("%d,%s", t.LinkIndex, t.Name)
}

// Configuration is the part of a filter chain configuration that a solver
// reads and mutates. During Optimize the solver is its only user.
type Configuration interface {
	LinkCount() int
	ReadBoundedParameters(index int, name string) (lower, value, upper []float64, err error)
	WriteParameterValues(index int, name string, values []float64) error
	Evaluate() (Fitness, error)
}

// Params carries the search hyperparameters.
type Params struct {
	PopulationSize  int
	GenerationCount int
	Seed            int64
}

// Service runs the solver selected by id against the configuration. The
// configuration is mutated in place only when the returned status is
// StatusImproved. Implementations must return promptly once the progress
// token is cancelled.
type Service interface {
	Optimize(cfg Configuration, targets []Target, id ID, params Params, hints [][]float64, progress *Progress) (Status, error)
}

// Status classifies the outcome of an Optimize call.
type Status int

const (
	StatusImproved Status = iota
	StatusNotImproved
	StatusFailed
	StatusCancelled
	StatusInvalidArgument
)

func (s Status) String() string {
	switch s {
	case StatusImproved:
		return "improved"
	case StatusNotImproved:
		return "not improved"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusInvalidArgument:
		return "invalid argument"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}
