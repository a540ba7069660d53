package stat

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Interval is a symmetric confidence interval [Center-HalfWidth, Center+HalfWidth].
type Interval struct {
	Center    float64
	HalfWidth float64
}

func (iv Interval) Lower() float64 { return iv.Center - iv.HalfWidth }
func (iv Interval) Upper() float64 { return iv.Center + iv.HalfWidth }

// Contains reports whether x lies in the closed interval.
// An infinite half-width contains every x, even around a NaN center.
func (iv Interval) Contains(x float64) bool {
	if math.IsInf(iv.HalfWidth, 1) {
		return true
	}
	return x >= iv.Lower() && x <= iv.Upper()
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%.6g, %.6g]", iv.Lower(), iv.Upper())
}

// studentQuantile returns the two-sided quantile t_{(1+level)/2, df}.
func studentQuantile(level, df float64) float64 {
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return t.Quantile((1 + level) / 2)
}

// normalQuantile returns the two-sided standard-normal quantile z_{(1+level)/2}.
func normalQuantile(level float64) float64 {
	return distuv.UnitNormal.Quantile((1 + level) / 2)
}
