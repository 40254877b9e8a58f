package store

import (
	"math"
	"time"
)

// Target is a persisted optimize target.
type Target struct {
	LinkIndex int    `json:"linkIndex"`
	Name      string `json:"name"`
}

// Objective is the value of one objective slot. Unset slots are omitted.
type Objective struct {
	Slot  int     `json:"slot"`
	Value float64 `json:"value"`
}

// Objectives converts per-slot values to their persisted form, dropping NaN
// and infinite slots, which JSON cannot carry.
func Objectives(values []float64) []Objective {
	var out []Objective
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, Objective{Slot: i, Value: v})
	}
	return out
}

// Record describes one optimize run.
type Record struct {
	// RunID is the unique identifier of the run
	RunID string `json:"runId"`

	ConfigPath        string `json:"configPath"`
	SolverID          string `json:"solverId"`
	SolverDescription string `json:"solverDescription,omitempty"`
	GenerationCount   int    `json:"generationCount"`
	PopulationSize    int    `json:"populationSize"`

	Targets   []Target `json:"targets"`
	HintCount int      `json:"hintCount"`

	// Status is the solver outcome, empty while the run is in progress
	Status string `json:"status,omitempty"`

	// BestFitness holds the set objective slots of the best candidate
	BestFitness []Objective `json:"bestFitness,omitempty"`

	// Values are the optimized parameter values, concatenated in target order
	Values []float64 `json:"values,omitempty"`

	// Saved reports whether the configuration was written back
	Saved bool `json:"saved"`

	Error string `json:"error,omitempty"`

	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// RecordInfo is record metadata for listings.
type RecordInfo struct {
	RunID      string    `json:"runId"`
	ConfigPath string    `json:"configPath"`
	Status     string    `json:"status"`
	BestCost   float64   `json:"bestCost"`
	StartedAt  time.Time `json:"startedAt"`
}

// ToInfo converts a full Record to RecordInfo. BestCost is the value of the
// first set objective slot, or NaN if none is set.
func (r *Record) ToInfo() RecordInfo {
	best := math.NaN()
	if len(r.BestFitness) > 0 {
		best = r.BestFitness[0].Value
	}
	return RecordInfo{
		RunID:      r.RunID,
		ConfigPath: r.ConfigPath,
		Status:     r.Status,
		BestCost:   best,
		StartedAt:  r.StartedAt,
	}
}

// Validate checks if the record has valid data.
func (r *Record) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.ConfigPath == "" {
		return &ValidationError{Field: "ConfigPath", Reason: "cannot be empty"}
	}
	if len(r.Targets) == 0 {
		return &ValidationError{Field: "Targets", Reason: "cannot be empty"}
	}
	if r.GenerationCount < 0 {
		return &ValidationError{Field: "GenerationCount", Reason: "cannot be negative"}
	}
	if r.PopulationSize < 0 {
		return &ValidationError{Field: "PopulationSize", Reason: "cannot be negative"}
	}
	if r.StartedAt.IsZero() {
		return &ValidationError{Field: "StartedAt", Reason: "cannot be zero"}
	}
	if r.FinishedAt != nil && r.FinishedAt.Before(r.StartedAt) {
		return &ValidationError{Field: "FinishedAt", Reason: "cannot precede StartedAt"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
