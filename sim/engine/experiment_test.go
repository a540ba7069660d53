package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactsim/contactsim/sim"
	"github.com/contactsim/contactsim/sim/agentsmove"
	"github.com/contactsim/contactsim/sim/dialer"
	"github.com/contactsim/contactsim/sim/stopping"
	"github.com/contactsim/contactsim/sim/telemetry"
	"github.com/contactsim/contactsim/sim/trace"
)

// blendModel exercises inbound, outbound and agents-move in one model.
func blendModel() *Model {
	return &Model{
		Inbound: []InboundType{{Name: "sales", ArrivalRate: 0.1, MeanService: 20, MeanPatience: 30, AWT: 10}},
		Outbound: []OutboundType{{
			Name: "survey", ReachProbability: 0.5, DialDelay: 2, MeanService: 30,
			Dialer: dialer.Spec{Kind: dialer.AgentsMove},
		}},
		Groups: []AgentGroup{
			{Name: "in", Size: 2, Role: agentsmove.Inbound, Inbound: []int{0}, Outbound: []int{0}},
			{Name: "out", Size: 2, Role: agentsmove.Outbound, Inbound: []int{0}, Outbound: []int{0}, DialRatio: 1},
		},
		Periods: 2, PeriodDuration: 500, CheckedPeriod: 50, WindowPeriods: 2, DialerEpoch: 10,
		AgentsMove: agentsmove.Config{LowThreshold: 0.8, HighThreshold: 0.9},
	}
}

func newCondition(t *testing.T, pm sim.PerformanceMeasure, level, delta float64, maxReps int) *stopping.Condition {
	t.Helper()
	c, err := stopping.NewCondition(stopping.Config{
		Level:     level,
		Threshold: delta,
		Target:    &stopping.Target{Measure: pm, Row: sim.Last, Column: sim.Last},
		MaxReps:   maxReps,
	})
	require.NoError(t, err)
	return c
}

func observations(t *testing.T, e *Experiment, pm sim.PerformanceMeasure, set int) []float64 {
	t.Helper()
	obs, err := e.Registry().Observations(pm, sim.Last, sim.Last, set)
	require.NoError(t, err)
	return obs
}

func TestExperiment_DeterministicRegardlessOfParallelism(t *testing.T) {
	run := func(parallel int) *Experiment {
		e, err := NewExperiment(ExperimentConfig{
			Model: blendModel(), Seed: 11, InitialReplications: 6, Parallelism: parallel,
			Trace: trace.TraceConfig{Level: trace.TraceLevelDials},
		})
		require.NoError(t, err)
		_, err = e.Run(context.Background())
		require.NoError(t, err)
		return e
	}

	// GIVEN the same seed run sequentially and with 4 workers
	seq, par := run(1), run(4)

	// THEN every folded observation and the merged trace are identical
	for _, pm := range sim.Measures() {
		for set := 0; set < 2; set++ {
			a, errA := seq.Registry().Observations(pm, sim.Last, sim.Last, set)
			b, errB := par.Registry().Observations(pm, sim.Last, sim.Last, set)
			assert.Equal(t, errA == nil, errB == nil)
			assert.Equal(t, a, b, "%s set %d", pm, set)
		}
	}
	assert.Equal(t, seq.Trace().Dials, par.Trace().Dials)
	assert.Equal(t, seq.Trace().Flags, par.Trace().Flags)
	assert.Equal(t, 6, seq.Registry().CompletedSteps())
}

func TestExperiment_InitialOnlyWithoutCondition(t *testing.T) {
	e, err := NewExperiment(ExperimentConfig{Model: blendModel(), Seed: 1, InitialReplications: 3})
	require.NoError(t, err)

	summary, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Replications)
	assert.Equal(t, stopping.ReasonDefaultStop, summary.StopReason)
	assert.Nil(t, summary.Target)
	assert.Len(t, observations(t, e, sim.ServiceLevel, 0), 3)
	_, err = uuid.Parse(summary.RunID)
	assert.NoError(t, err)
	assert.Equal(t, e.ID(), summary.RunID)
}

func TestExperiment_StoppingOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		cond       func(t *testing.T) *stopping.Condition
		maxReps    int
		wantReps   int
		wantReason stopping.Reason
	}{
		{
			name: "threshold far outside the interval stops after the initial batch",
			cond: func(t *testing.T) *stopping.Condition {
				return newCondition(t, sim.RateOfArrivals, 0.95, -1000, 100)
			},
			maxReps: 100, wantReps: 3, wantReason: stopping.ReasonSignificant,
		},
		{
			name: "hard cap reached",
			cond: func(t *testing.T) *stopping.Condition {
				return newCondition(t, sim.RateOfArrivals, 0.95, -1000, 3)
			},
			maxReps: 100, wantReps: 3, wantReason: stopping.ReasonMaxReps,
		},
		{
			name: "engine cap turns defaultNewReps to zero",
			cond: func(t *testing.T) *stopping.Condition {
				return newCondition(t, sim.RateOfArrivals, 0.95, -1000, 100)
			},
			maxReps: 3, wantReps: 3, wantReason: stopping.ReasonDefaultStop,
		},
		{
			name: "wide interval keeps going one replication at a time until the cap",
			cond: func(t *testing.T) *stopping.Condition {
				// arrivals per replication are ~100; at this level the Student
				// interval covers 0 for every n up to 6
				return newCondition(t, sim.RateOfArrivals, 0.9999999, 0, 6)
			},
			maxReps: 100, wantReps: 6, wantReason: stopping.ReasonMaxReps,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN three initial replications
			e, err := NewExperiment(ExperimentConfig{
				Model: blendModel(), Seed: 5, InitialReplications: 3, MaxReplications: tt.maxReps,
				Stopping: tt.cond(t), Trace: trace.TraceConfig{Level: trace.TraceLevelDecisions},
			})
			require.NoError(t, err)

			// WHEN the experiment runs
			summary, err := e.Run(context.Background())

			// THEN it stops where and why expected
			require.NoError(t, err)
			assert.Equal(t, tt.wantReps, summary.Replications)
			assert.Equal(t, tt.wantReason, summary.StopReason)
			assert.Equal(t, tt.wantReason == stopping.ReasonSignificant, summary.Interval != nil,
				"an interval is reported only when the last check built one")
			assert.Len(t, observations(t, e, sim.RateOfArrivals, 0), tt.wantReps)
			stops := e.Trace().Stops
			require.NotEmpty(t, stops)
			assert.Equal(t, string(tt.wantReason), stops[len(stops)-1].Reason)
			assert.Equal(t, 0, stops[len(stops)-1].NewReps)
		})
	}
}

func TestExperiment_UnsupportedTargetFails(t *testing.T) {
	// GIVEN a registry without the target measure
	e, err := NewExperiment(ExperimentConfig{
		Model: blendModel(), Seed: 1, InitialReplications: 2, MaxReplications: 10,
		Measures: []sim.PerformanceMeasure{sim.QueueSize},
		Stopping: newCondition(t, sim.ServiceLevel, 0.95, 0.8, 10),
	})
	require.NoError(t, err)

	// WHEN run THEN the check error surfaces as not supported
	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, sim.ErrNotSupported)
}

func TestExperiment_CancelledContext(t *testing.T) {
	e, err := NewExperiment(ExperimentConfig{Model: blendModel(), Seed: 1, InitialReplications: 4, Parallelism: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, e.Registry().CompletedSteps())
}

func TestExperiment_RecordsMetrics(t *testing.T) {
	m := telemetry.New()
	e, err := NewExperiment(ExperimentConfig{
		Model: blendModel(), Seed: 3, InitialReplications: 2, MaxReplications: 2,
		Stopping: newCondition(t, sim.ServiceLevel, 0.95, 0.8, 10),
		Metrics:  m,
	})
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["contactsim_experiment_replications_total"])
	assert.True(t, names["contactsim_dialer_calls_dialed_total"])
	assert.True(t, names["contactsim_stopping_checks_total"])
}

func TestNewExperiment_Validation(t *testing.T) {
	_, err := NewExperiment(ExperimentConfig{})
	assert.Error(t, err)
	_, err = NewExperiment(ExperimentConfig{Model: blendModel(), InitialReplications: 0})
	assert.Error(t, err)
}
