package sim

import (
	"fmt"

	"github.com/contactsim/contactsim/sim/stat"
)

// Last addresses the last row or column of a grid, which holds the aggregate
// (over all types, groups or periods) whenever the axis has more than one element.
const Last = -1

// Grid is a read-only 2-D view of the probes for one performance measure.
type Grid interface {
	Measure() PerformanceMeasure
	Rows() int
	Columns() int
	// Probe returns the accumulator at (row, col). Last is accepted for either index.
	Probe(row, col int) (stat.Probe, error)
}

// StatisticsProvider is what decision evaluators need from the engine.
type StatisticsProvider interface {
	CompletedSteps() int
	// StatisticsGrid returns ErrNotSupported if pm has no statistics in this run.
	StatisticsGrid(pm PerformanceMeasure) (Grid, error)
}

// Matrix holds one probe per (row, column) cell. The probe kind of a cell is
// fixed at construction.
type Matrix struct {
	measure PerformanceMeasure
	rows    int
	cols    int
	probes  []stat.Probe // row-major
}

// NewMatrix allocates a rows×cols matrix of probes for pm: RatioTally cells
// for ratio measures, Tally cells otherwise.
func NewMatrix(pm PerformanceMeasure, rows, cols int) *Matrix {
	m := &Matrix{measure: pm, rows: rows, cols: cols, probes: make([]stat.Probe, rows*cols)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			name := fmt.Sprintf("%s[%d,%d]", pm, r, c)
			if pm.IsRatio() {
				m.probes[r*cols+c] = stat.NewRatioTally(name)
			} else {
				m.probes[r*cols+c] = stat.NewTally(name)
			}
		}
	}
	return m
}

func (m *Matrix) Measure() PerformanceMeasure { return m.measure }
func (m *Matrix) Rows() int                   { return m.rows }
func (m *Matrix) Columns() int                { return m.cols }

// Probe implements Grid.
func (m *Matrix) Probe(row, col int) (stat.Probe, error) {
	r, err := m.resolve("row", row, m.rows)
	if err != nil {
		return nil, err
	}
	c, err := m.resolve("column", col, m.cols)
	if err != nil {
		return nil, err
	}
	return m.probes[r*m.cols+c], nil
}

func (m *Matrix) resolve(axis string, idx, limit int) (int, error) {
	if idx == Last {
		idx = limit - 1
	}
	if idx < 0 || idx >= limit {
		return 0, &IndexError{Measure: m.measure, Axis: axis, Index: idx, Limit: limit}
	}
	return idx, nil
}

// Registry maps performance measures to their matrices and counts completed
// replications. It is the engine-owned, core-readable statistics store.
//
// Thread-safety: NOT thread-safe. Replications run concurrently fold their
// results in from a single goroutine.
type Registry struct {
	dims      Dimensions
	matrices  map[PerformanceMeasure]*Matrix
	completed int
}

// NewRegistry creates matrices for the given measures sized from dims.
func NewRegistry(dims Dimensions, measures ...PerformanceMeasure) *Registry {
	reg := &Registry{dims: dims, matrices: make(map[PerformanceMeasure]*Matrix, len(measures))}
	for _, pm := range measures {
		if !pm.Valid() {
			panic(fmt.Sprintf("NewRegistry: unknown performance measure %d", int(pm)))
		}
		reg.matrices[pm] = NewMatrix(pm, dims.RowsFor(pm), dims.Columns())
	}
	return reg
}

// Dimensions returns the model sizes the registry was built with.
func (r *Registry) Dimensions() Dimensions { return r.dims }

// CompletedSteps implements StatisticsProvider.
func (r *Registry) CompletedSteps() int { return r.completed }

// IncCompletedSteps marks one more replication as folded in.
func (r *Registry) IncCompletedSteps() { r.completed++ }

// Supports reports whether pm is collected.
func (r *Registry) Supports(pm PerformanceMeasure) bool {
	_, ok := r.matrices[pm]
	return ok
}

// StatisticsGrid implements StatisticsProvider.
func (r *Registry) StatisticsGrid(pm PerformanceMeasure) (Grid, error) {
	m, ok := r.matrices[pm]
	if !ok {
		return nil, notSupported(pm)
	}
	return m, nil
}

// NumObservations returns the observation count of one set of one cell.
func (r *Registry) NumObservations(pm PerformanceMeasure, row, col, set int) (int, error) {
	p, err := r.probeSet(pm, row, col, set)
	if err != nil {
		return 0, err
	}
	return len(p.Observations(set)), nil
}

// Observations returns a copy of one observation set of one cell.
func (r *Registry) Observations(pm PerformanceMeasure, row, col, set int) ([]float64, error) {
	p, err := r.probeSet(pm, row, col, set)
	if err != nil {
		return nil, err
	}
	return p.Observations(set), nil
}

func (r *Registry) probeSet(pm PerformanceMeasure, row, col, set int) (stat.Probe, error) {
	m, ok := r.matrices[pm]
	if !ok {
		return nil, notSupported(pm)
	}
	p, err := m.Probe(row, col)
	if err != nil {
		return nil, err
	}
	if set < 0 || set >= p.NumSets() {
		return nil, &IndexError{Measure: pm, Axis: "set", Index: set, Limit: p.NumSets()}
	}
	return p, nil
}

// Add records a scalar observation into a Tally cell.
func (r *Registry) Add(pm PerformanceMeasure, row, col int, x float64) error {
	p, err := r.cell(pm, row, col)
	if err != nil {
		return err
	}
	t, ok := p.(*stat.Tally)
	if !ok {
		return fmt.Errorf("%s[%d,%d] holds %T, not a tally", pm, row, col, p)
	}
	t.Add(x)
	return nil
}

// AddRatio records a (numerator, denominator) pair into a RatioTally cell.
func (r *Registry) AddRatio(pm PerformanceMeasure, row, col int, num, den float64) error {
	p, err := r.cell(pm, row, col)
	if err != nil {
		return err
	}
	rt, ok := p.(*stat.RatioTally)
	if !ok {
		return fmt.Errorf("%s[%d,%d] holds %T, not a ratio tally", pm, row, col, p)
	}
	rt.Add(num, den)
	return nil
}

func (r *Registry) cell(pm PerformanceMeasure, row, col int) (stat.Probe, error) {
	m, ok := r.matrices[pm]
	if !ok {
		return nil, notSupported(pm)
	}
	return m.Probe(row, col)
}
