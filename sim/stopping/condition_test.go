package stopping

import (
	"errors"
	"math"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactsim/contactsim/sim"
	"github.com/contactsim/contactsim/sim/stat"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

var oneCell = sim.Dimensions{InboundTypes: 1, AgentGroups: 1, Periods: 1}

func newCondition(t *testing.T, pm sim.PerformanceMeasure, delta float64, maxReps int) *Condition {
	t.Helper()
	c, err := NewCondition(Config{
		Level:     0.95,
		Threshold: delta,
		Target:    &Target{Measure: pm, Row: sim.Last, Column: sim.Last},
		MaxReps:   maxReps,
	})
	require.NoError(t, err)
	return c
}

// tallyProvider returns a registry whose single rate-of-arrivals cell holds obs,
// with one completed step per observation.
func tallyProvider(t *testing.T, obs ...float64) *sim.Registry {
	t.Helper()
	reg := sim.NewRegistry(oneCell, sim.RateOfArrivals)
	for _, x := range obs {
		require.NoError(t, reg.Add(sim.RateOfArrivals, 0, 0, x))
		reg.IncCompletedSteps()
	}
	return reg
}

func TestCheck_StudentInterval(t *testing.T) {
	tests := []struct {
		name       string
		obs        []float64
		wantReps   int
		wantReason Reason
	}{
		{"threshold inside interval continues", []float64{0.4, 0.5, 0.6}, 1, ReasonInconclusive},
		{"threshold outside interval stops", []float64{0.64, 0.65, 0.66}, 0, ReasonSignificant},
		{"single observation has infinite half-width", []float64{0.9}, 1, ReasonInconclusive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN beta=0.95 and delta=0.5
			c := newCondition(t, sim.RateOfArrivals, 0.5, 100)
			reg := tallyProvider(t, tt.obs...)

			// WHEN the condition is checked
			got, err := c.Check(reg, 1)

			// THEN the decision follows the interval position
			require.NoError(t, err)
			assert.Equal(t, tt.wantReps, got)
			d := c.LastDecision()
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, len(tt.obs), d.Step)
		})
	}
}

func TestCheck_StudentIntervalBounds(t *testing.T) {
	c := newCondition(t, sim.RateOfArrivals, 0.5, 100)
	reg := tallyProvider(t, 0.4, 0.5, 0.6)

	_, err := c.Check(reg, 1)
	require.NoError(t, err)

	// t(0.975, 2) = 4.302653, s = 0.1, n = 3
	iv := c.LastDecision().Interval
	assert.InDelta(t, 0.5, iv.Center, 1e-12)
	assert.InDelta(t, 4.302653*0.1/math.Sqrt(3), iv.HalfWidth, 1e-5)
}

func TestCheck_DefaultNewRepsZeroAlwaysStops(t *testing.T) {
	c := newCondition(t, sim.RateOfArrivals, 0.5, 100)
	reg := tallyProvider(t, 0.4, 0.5, 0.6)

	got, err := c.Check(reg, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
	assert.Equal(t, ReasonDefaultStop, c.LastDecision().Reason)
}

func TestCheck_MaxRepsStopsEvenWhenInconclusive(t *testing.T) {
	// GIVEN three completed steps, maxReps=3 and delta inside the interval
	c := newCondition(t, sim.RateOfArrivals, 0.5, 3)
	reg := tallyProvider(t, 0.4, 0.5, 0.6)

	// WHEN checked with a positive engine proposal
	got, err := c.Check(reg, 5)

	// THEN the cap wins
	require.NoError(t, err)
	assert.Equal(t, 0, got)
	assert.Equal(t, ReasonMaxReps, c.LastDecision().Reason)

	// one step fewer and the interval decides
	require.NoError(t, c.SetMaxReps(4))
	got, err = c.Check(reg, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestCheck_RatioUsesDeltaMethod(t *testing.T) {
	tests := []struct {
		name     string
		pairs    [][2]float64
		wantReps int
	}{
		{"ratio near delta continues", [][2]float64{{4, 10}, {6, 10}, {5, 10}}, 1},
		{"ratio far from delta stops", [][2]float64{{90, 100}, {91, 100}, {89, 100}, {90, 100}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := sim.NewRegistry(oneCell, sim.ServiceLevel)
			for _, p := range tt.pairs {
				require.NoError(t, reg.AddRatio(sim.ServiceLevel, sim.Last, sim.Last, p[0], p[1]))
				reg.IncCompletedSteps()
			}
			c := newCondition(t, sim.ServiceLevel, 0.5, 100)

			got, err := c.Check(reg, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantReps, got)
		})
	}
}

func TestCheck_UnsupportedMeasure(t *testing.T) {
	c := newCondition(t, sim.DialedCalls, 0.5, 100)
	reg := tallyProvider(t, 1, 2)

	_, err := c.Check(reg, 1)
	assert.ErrorIs(t, err, sim.ErrNotSupported)
}

func TestCheck_TargetOutOfRange(t *testing.T) {
	c, err := NewCondition(Config{
		Level:     0.9,
		Threshold: 0,
		Target:    &Target{Measure: sim.RateOfArrivals, Row: 3, Column: 0},
	})
	require.NoError(t, err)
	require.NoError(t, c.SetMaxReps(10))

	_, err = c.Check(tallyProvider(t, 1, 2), 1)
	assert.ErrorIs(t, err, sim.ErrOutOfRange)
}

// opaqueProbe is an accumulator kind the condition does not know.
type opaqueProbe struct{}

func (opaqueProbe) Name() string                 { return "opaque" }
func (opaqueProbe) Count() int                   { return 2 }
func (opaqueProbe) Average() float64             { return 0 }
func (opaqueProbe) NumSets() int                 { return 1 }
func (opaqueProbe) Observations(_ int) []float64 { return []float64{0, 0} }

type opaqueGrid struct{}

func (opaqueGrid) Measure() sim.PerformanceMeasure    { return sim.MaxWaitingTime }
func (opaqueGrid) Rows() int                          { return 1 }
func (opaqueGrid) Columns() int                       { return 1 }
func (opaqueGrid) Probe(_, _ int) (stat.Probe, error) { return opaqueProbe{}, nil }

type opaqueProvider struct{}

func (opaqueProvider) CompletedSteps() int { return 2 }
func (opaqueProvider) StatisticsGrid(_ sim.PerformanceMeasure) (sim.Grid, error) {
	return opaqueGrid{}, nil
}

func TestCheck_UnknownProbeKindIsFatal(t *testing.T) {
	c := newCondition(t, sim.MaxWaitingTime, 0.5, 100)

	got, err := c.Check(opaqueProvider{}, 1)

	assert.Equal(t, 0, got)
	var pke *ProbeKindError
	require.True(t, errors.As(err, &pke))
	assert.Equal(t, sim.MaxWaitingTime, pke.Target.Measure)
	assert.Contains(t, err.Error(), "unsupported accumulator")
}

func TestNewCondition_Validation(t *testing.T) {
	target := &Target{Measure: sim.ServiceLevel, Row: sim.Last, Column: sim.Last}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing target", Config{Level: 0.95}},
		{"level zero", Config{Level: 0, Target: target}},
		{"level one", Config{Level: 1, Target: target}},
		{"NaN threshold", Config{Level: 0.95, Threshold: math.NaN(), Target: target}},
		{"infinite threshold", Config{Level: 0.95, Threshold: math.Inf(1), Target: target}},
		{"negative maxReps", Config{Level: 0.95, Target: target, MaxReps: -1}},
		{"unknown measure", Config{Level: 0.95, Target: &Target{Measure: sim.PerformanceMeasure(99)}}},
		{"row below Last", Config{Level: 0.95, Target: &Target{Measure: sim.ServiceLevel, Row: -2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCondition(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestCondition_Accessors(t *testing.T) {
	c := newCondition(t, sim.ServiceLevel, 0.8, 7)
	assert.Equal(t, 0.95, c.Level())
	assert.Equal(t, 0.8, c.Threshold())
	assert.Equal(t, 7, c.MaxReps())
	assert.Equal(t, sim.ServiceLevel, c.Target().Measure)
	assert.Equal(t, "service-level[-1,-1]", c.Target().String())
}

func TestTarget_CheckCell(t *testing.T) {
	// 2 inbound types and 3 periods: 3 rows and 4 columns with aggregates
	dims := sim.Dimensions{InboundTypes: 2, AgentGroups: 1, Periods: 3}
	tests := []struct {
		name    string
		target  Target
		wantErr bool
	}{
		{"aggregate cell", Target{Measure: sim.ServiceLevel, Row: sim.Last, Column: sim.Last}, false},
		{"aggregate row index", Target{Measure: sim.ServiceLevel, Row: 2, Column: 3}, false},
		{"row past aggregate", Target{Measure: sim.ServiceLevel, Row: 3, Column: sim.Last}, true},
		{"column past aggregate", Target{Measure: sim.ServiceLevel, Row: 0, Column: 4}, true},
		{"row 99", Target{Measure: sim.ServiceLevel, Row: 99, Column: sim.Last}, true},
		{"group measure uses group rows", Target{Measure: sim.Occupancy, Row: 1, Column: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.CheckCell(dims)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, sim.ErrOutOfRange)
			var ie *sim.IndexError
			require.True(t, errors.As(err, &ie))
		})
	}
}

func TestDecision_HasInterval(t *testing.T) {
	c := newCondition(t, sim.RateOfArrivals, 100, 2)

	// GIVEN a check that stops on the replication cap
	_, err := c.Check(tallyProvider(t, 1, 2), 1)
	require.NoError(t, err)

	// THEN no interval was computed
	assert.Equal(t, ReasonMaxReps, c.LastDecision().Reason)
	assert.False(t, c.LastDecision().HasInterval())

	// WHEN the cap is lifted the interval is built
	require.NoError(t, c.SetMaxReps(10))
	_, err = c.Check(tallyProvider(t, 1, 2), 1)
	require.NoError(t, err)
	assert.True(t, c.LastDecision().HasInterval())

	_, err = c.Check(tallyProvider(t, 1, 2), 0)
	require.NoError(t, err)
	assert.False(t, c.LastDecision().HasInterval())
}
