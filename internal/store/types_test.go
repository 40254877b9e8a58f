package store

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObjectivesDropsUnset(t *testing.T) {
	got := Objectives([]float64{1, math.NaN(), 3, math.Inf(1)})
	assert.Equal(t, []Objective{{Slot: 0, Value: 1}, {Slot: 2, Value: 3}}, got)
	assert.Empty(t, Objectives([]float64{math.NaN()}))
}

func TestRecordValidate(t *testing.T) {
	started := time.Now()
	earlier := started.Add(-time.Minute)

	tests := []struct {
		name   string
		mutate func(r *Record)
		field  string
	}{
		{"valid", func(r *Record) {}, ""},
		{"empty run id", func(r *Record) { r.RunID = "" }, "RunID"},
		{"empty config path", func(r *Record) { r.ConfigPath = "" }, "ConfigPath"},
		{"no targets", func(r *Record) { r.Targets = nil }, "Targets"},
		{"negative generations", func(r *Record) { r.GenerationCount = -1 }, "GenerationCount"},
		{"negative population", func(r *Record) { r.PopulationSize = -1 }, "PopulationSize"},
		{"zero start", func(r *Record) { r.StartedAt = time.Time{} }, "StartedAt"},
		{"finish before start", func(r *Record) { r.FinishedAt = &earlier }, "FinishedAt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := createTestRecord("run", started)
			tt.mutate(r)
			err := r.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			verr, ok := err.(*ValidationError)
			if assert.True(t, ok) {
				assert.Equal(t, tt.field, verr.Field)
			}
		})
	}
}

func TestToInfoWithoutFitness(t *testing.T) {
	r := createTestRecord("run", time.Now())
	r.BestFitness = nil
	assert.True(t, math.IsNaN(r.ToInfo().BestCost))
}
