// Package stat provides the statistical accumulators ("probes") that back the
// statistics grid, and the confidence intervals computed from them.
//
// Two probe kinds exist:
//   - Tally: a sample of scalar observations (Student-t interval).
//   - RatioTally: paired (numerator, denominator) observations whose ratio of
//     means is estimated (delta-method interval).
//
// Probes are NOT thread-safe; the engine populates them from one goroutine.
package stat

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Probe is the read side shared by every accumulator kind.
// Observation sets index the stored arrays: a Tally has one set, a RatioTally two.
type Probe interface {
	Name() string
	Count() int
	Average() float64
	NumSets() int
	// Observations returns a copy of the observations in the given set.
	// Callers must check set < NumSets().
	Observations(set int) []float64
}

// Tally collects scalar observations.
type Tally struct {
	name string
	obs  []float64
}

// NewTally creates an empty Tally.
func NewTally(name string) *Tally {
	return &Tally{name: name, obs: make([]float64, 0)}
}

// Name returns the probe label.
func (t *Tally) Name() string { return t.name }

// Add records one observation.
func (t *Tally) Add(x float64) {
	t.obs = append(t.obs, x)
}

// Count returns the number of observations.
func (t *Tally) Count() int { return len(t.obs) }

// NumSets implements Probe.
func (t *Tally) NumSets() int { return 1 }

// Observations implements Probe.
func (t *Tally) Observations(set int) []float64 {
	if set != 0 {
		return nil
	}
	out := make([]float64, len(t.obs))
	copy(out, t.obs)
	return out
}

// Average returns the sample mean, or NaN when empty.
func (t *Tally) Average() float64 {
	if len(t.obs) == 0 {
		return math.NaN()
	}
	return stat.Mean(t.obs, nil)
}

// Variance returns the unbiased sample variance, or NaN with fewer than two observations.
func (t *Tally) Variance() float64 {
	if len(t.obs) < 2 {
		return math.NaN()
	}
	return stat.Variance(t.obs, nil)
}

// StandardDeviation returns sqrt(Variance()).
func (t *Tally) StandardDeviation() float64 {
	return math.Sqrt(t.Variance())
}

// ConfidenceIntervalStudent returns the two-sided Student-t confidence interval
// on the mean at the given level. With fewer than two observations the
// half-width is +Inf.
func (t *Tally) ConfidenceIntervalStudent(level float64) Interval {
	n := len(t.obs)
	if n < 2 {
		return Interval{Center: t.Average(), HalfWidth: math.Inf(1)}
	}
	mean, variance := stat.MeanVariance(t.obs, nil)
	q := studentQuantile(level, float64(n-1))
	return Interval{Center: mean, HalfWidth: q * math.Sqrt(variance/float64(n))}
}
