package engine

import (
	"fmt"
	"math"

	"github.com/contactsim/contactsim/sim"
)

// aggregation is how a measure's per-period counts combine into grid cells.
type aggregation int

const (
	aggSum         aggregation = iota // value = Σnum
	aggTimeAverage                    // value = Σarea / duration
	aggMax                            // value = max num
	aggRatio                          // (Σnum, Σden) pair
)

func aggregationOf(pm sim.PerformanceMeasure) aggregation {
	switch {
	case pm.IsRatio():
		return aggRatio
	case pm == sim.QueueSize:
		return aggTimeAverage
	case pm == sim.MaxWaitingTime:
		return aggMax
	default:
		return aggSum
	}
}

// tableau holds the per-(element, main period) numerator and denominator of
// one measure for one replication.
type tableau struct {
	num [][]float64
	den [][]float64
}

func newTableau(rows, periods int) *tableau {
	t := &tableau{num: make([][]float64, rows), den: make([][]float64, rows)}
	for r := range t.num {
		t.num[r] = make([]float64, periods)
		t.den[r] = make([]float64, periods)
	}
	return t
}

func (t *tableau) add(row, period int, num, den float64) {
	t.num[row][period] += num
	t.den[row][period] += den
}

func (t *tableau) max(row, period int, x float64) {
	if x > t.num[row][period] {
		t.num[row][period] = x
	}
}

// combine reduces the rows×periods block to one cell value.
func (t *tableau) combine(agg aggregation, rows, periods []int) (num, den float64) {
	for _, r := range rows {
		for _, p := range periods {
			switch agg {
			case aggMax:
				num = math.Max(num, t.num[r][p])
			default:
				num += t.num[r][p]
				den += t.den[r][p]
			}
		}
	}
	if agg == aggTimeAverage && len(rows) > 0 {
		// den sums the same duration once per row; the aggregate row is a
		// total queue, not a per-type mean
		den /= float64(len(rows))
	}
	return num, den
}

// Result is the outcome of one replication.
type Result struct {
	Replication int
	dims        sim.Dimensions
	tables      map[sim.PerformanceMeasure]*tableau
}

func newResult(rep int, dims sim.Dimensions) *Result {
	res := &Result{Replication: rep, dims: dims, tables: make(map[sim.PerformanceMeasure]*tableau)}
	for _, pm := range sim.Measures() {
		res.tables[pm] = newTableau(dims.Size(pm.RowDimension()), dims.Periods)
	}
	return res
}

// Count returns the raw numerator of (pm, row, period): a count for count
// measures, a time integral for queue size, a numerator for ratio measures.
func (r *Result) Count(pm sim.PerformanceMeasure, row, period int) float64 {
	return r.tables[pm].num[row][period]
}

// Denominator returns the raw denominator of (pm, row, period).
func (r *Result) Denominator(pm sim.PerformanceMeasure, row, period int) float64 {
	return r.tables[pm].den[row][period]
}

// Total sums the numerator of pm over all rows and periods.
func (r *Result) Total(pm sim.PerformanceMeasure) float64 {
	t := r.tables[pm]
	total := 0.0
	for row := range t.num {
		for _, x := range t.num[row] {
			total += x
		}
	}
	return total
}

// Fold adds one observation per grid cell of every measure reg collects.
// Aggregate rows and columns are computed from the element counts, so a
// ratio aggregate is the ratio of summed counts, not a mean of ratios.
func (r *Result) Fold(reg *sim.Registry) error {
	dims := reg.Dimensions()
	for _, pm := range sim.Measures() {
		if !reg.Supports(pm) {
			continue
		}
		t := r.tables[pm]
		agg := aggregationOf(pm)
		rowSets := axisSets(dims.Size(pm.RowDimension()))
		colSets := axisSets(dims.Periods)
		for ri, rows := range rowSets {
			for ci, cols := range colSets {
				num, den := t.combine(agg, rows, cols)
				var err error
				switch agg {
				case aggRatio:
					err = reg.AddRatio(pm, ri, ci, num, den)
				case aggTimeAverage:
					v := 0.0
					if den > 0 {
						v = num / den
					}
					err = reg.Add(pm, ri, ci, v)
				default:
					err = reg.Add(pm, ri, ci, num)
				}
				if err != nil {
					return fmt.Errorf("folding replication %d: %w", r.Replication, err)
				}
			}
		}
	}
	return nil
}

// axisSets lists the element indices behind each grid index of an axis of
// size n: one singleton per element plus, when n > 1, the aggregate.
func axisSets(n int) [][]int {
	sets := make([][]int, 0, n+1)
	all := make([]int, n)
	for i := 0; i < n; i++ {
		sets = append(sets, []int{i})
		all[i] = i
	}
	if n > 1 {
		sets = append(sets, all)
	}
	return sets
}
