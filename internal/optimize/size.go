// Package optimize runs the optimize action: it sizes the search space,
// merges hint vectors, drives the solver on a worker and renders progress.
package optimize

import (
	"errors"
	"fmt"

	"github.com/cwbudde/chainopt/internal/exitcode"
	"github.com/cwbudde/chainopt/internal/solver"
)

// ErrInvalidArgument is wrapped when a target names a link outside the chain.
var ErrInvalidArgument = errors.New("invalid argument")

// ComputeParameterSize returns the summed length of the value segments of
// all targets, which is the length every hint vector must have. Errors
// carry the exitcode.ConfigurationLink category.
func ComputeParameterSize(cfg solver.Configuration, targets []solver.Target) (int, error) {
	total := 0
	for _, t := range targets {
		if t.LinkIndex < 0 || t.LinkIndex >= cfg.LinkCount() {
			return 0, exitcode.New(exitcode.ConfigurationLink,
				fmt.Errorf("%w: link index %d out of range, the chain has %d links", ErrInvalidArgument, t.LinkIndex, cfg.LinkCount()))
		}
		_, value, _, err := cfg.ReadBoundedParameters(t.LinkIndex, t.Name)
		if err != nil {
			return 0, exitcode.New(exitcode.ConfigurationLink,
				fmt.Errorf("cannot read parameter %q of link %d: %w", t.Name, t.LinkIndex, err))
		}
		total += len(value)
	}
	return total, nil
}
