package stat

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Observation sets of a RatioTally.
const (
	NumeratorSet   = 0
	DenominatorSet = 1
)

// RatioTally collects (numerator, denominator) pairs and estimates the ratio
// of their expectations, e.g. calls served within the acceptable waiting time
// over calls offered.
type RatioTally struct {
	name string
	num  []float64
	den  []float64
}

// NewRatioTally creates an empty RatioTally.
func NewRatioTally(name string) *RatioTally {
	return &RatioTally{name: name, num: make([]float64, 0), den: make([]float64, 0)}
}

func (r *RatioTally) Name() string { return r.name }

// Add records one paired observation.
func (r *RatioTally) Add(num, den float64) {
	r.num = append(r.num, num)
	r.den = append(r.den, den)
}

func (r *RatioTally) Count() int { return len(r.num) }

func (r *RatioTally) NumSets() int { return 2 }

func (r *RatioTally) Observations(set int) []float64 {
	var src []float64
	switch set {
	case NumeratorSet:
		src = r.num
	case DenominatorSet:
		src = r.den
	default:
		return nil
	}
	out := make([]float64, len(src))
	copy(out, src)
	return out
}

// Average returns mean(num)/mean(den); NaN when empty or when the
// denominator mean is zero.
func (r *RatioTally) Average() float64 {
	if len(r.num) == 0 {
		return math.NaN()
	}
	d := stat.Mean(r.den, nil)
	if d == 0 {
		return math.NaN()
	}
	return stat.Mean(r.num, nil) / d
}

// ConfidenceIntervalDelta returns the delta-method confidence interval on the
// ratio of means at the given level:
//
//	s² = (s_x² − 2·r·s_xy + r²·s_y²) / ȳ²,  h = z·s/√n
//
// where z is the standard-normal quantile. With fewer than two observations or
// a zero denominator mean the half-width is +Inf.
func (r *RatioTally) ConfidenceIntervalDelta(level float64) Interval {
	n := len(r.num)
	ratio := r.Average()
	if n < 2 || math.IsNaN(ratio) {
		return Interval{Center: ratio, HalfWidth: math.Inf(1)}
	}
	ybar := stat.Mean(r.den, nil)
	vx := stat.Variance(r.num, nil)
	vy := stat.Variance(r.den, nil)
	cxy := stat.Covariance(r.num, r.den, nil)
	v := (vx - 2*ratio*cxy + ratio*ratio*vy) / (ybar * ybar)
	if v < 0 {
		// rounding on near-degenerate samples
		v = 0
	}
	q := normalQuantile(level)
	return Interval{Center: ratio, HalfWidth: q * math.Sqrt(v/float64(n))}
}
