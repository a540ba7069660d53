// Package stopping decides, after every completed replication or batch,
// whether the experiment should keep simulating.
//
// The condition builds a confidence interval at level beta around the target
// performance measure and stops as soon as the threshold delta lies outside
// it: the estimate is then significantly different from delta and more
// replications would not change that conclusion.
package stopping

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/contactsim/contactsim/sim"
	"github.com/contactsim/contactsim/sim/stat"
)

// Target identifies the cell whose interval is checked. Row and Column
// default to sim.Last, the aggregate cell.
type Target struct {
	Measure sim.PerformanceMeasure
	Row     int
	Column  int
}

func (t Target) String() string {
	return fmt.Sprintf("%s[%d,%d]", t.Measure, t.Row, t.Column)
}

// CheckCell verifies that the target cell exists in a grid of dims. The
// error wraps sim.ErrOutOfRange.
func (t Target) CheckCell(dims sim.Dimensions) error {
	if rows := dims.RowsFor(t.Measure); t.Row != sim.Last && t.Row >= rows {
		return &sim.IndexError{Measure: t.Measure, Axis: "row", Index: t.Row, Limit: rows}
	}
	if cols := dims.Columns(); t.Column != sim.Last && t.Column >= cols {
		return &sim.IndexError{Measure: t.Measure, Axis: "column", Index: t.Column, Limit: cols}
	}
	return nil
}

// Config is the validated input of NewCondition.
type Config struct {
	Level     float64 // beta, in (0,1)
	Threshold float64 // delta
	Target    *Target // required
	MaxReps   int     // hard cap on completed steps, >= 0
}

// Reason explains a Check outcome.
type Reason string

const (
	ReasonDefaultStop  Reason = "default-stop"
	ReasonMaxReps      Reason = "max-reps"
	ReasonSignificant  Reason = "threshold-outside-interval"
	ReasonInconclusive Reason = "threshold-inside-interval"
)

// Decision is the outcome of the most recent Check.
type Decision struct {
	Step     int
	NewReps  int
	Reason   Reason
	Interval stat.Interval // zero unless an interval was computed
}

// HasInterval reports whether the check got as far as building an interval.
func (d Decision) HasInterval() bool {
	return d.Reason == ReasonSignificant || d.Reason == ReasonInconclusive
}

// ProbeKindError reports an accumulator kind the condition cannot build an
// interval for. It means the engine and the configuration disagree; callers
// must abort the experiment rather than retry.
type ProbeKindError struct {
	Target Target
	Probe  stat.Probe
}

func (e *ProbeKindError) Error() string {
	return fmt.Sprintf("stopping condition on %s: unsupported accumulator %T", e.Target, e.Probe)
}

// Condition is the statistical early-stopping evaluator. One instance per
// experiment; not safe for concurrent use.
type Condition struct {
	level     float64
	threshold float64
	target    Target
	maxReps   int
	last      Decision
}

// NewCondition validates cfg and returns a Condition.
func NewCondition(cfg Config) (*Condition, error) {
	c := &Condition{}
	if cfg.Target == nil {
		return nil, errors.New("stopping condition: target measure is required")
	}
	if err := c.SetTarget(*cfg.Target); err != nil {
		return nil, err
	}
	if err := c.SetLevel(cfg.Level); err != nil {
		return nil, err
	}
	if err := c.SetThreshold(cfg.Threshold); err != nil {
		return nil, err
	}
	if err := c.SetMaxReps(cfg.MaxReps); err != nil {
		return nil, err
	}
	return c, nil
}

// SetLevel sets beta; it must lie in (0,1).
func (c *Condition) SetLevel(beta float64) error {
	if !(beta > 0 && beta < 1) {
		return fmt.Errorf("stopping condition: confidence level must be in (0,1), got %g", beta)
	}
	c.level = beta
	return nil
}

// SetThreshold sets delta; it must be finite.
func (c *Condition) SetThreshold(delta float64) error {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return fmt.Errorf("stopping condition: threshold must be finite, got %g", delta)
	}
	c.threshold = delta
	return nil
}

// SetTarget sets the measure and cell to test.
func (c *Condition) SetTarget(t Target) error {
	if !t.Measure.Valid() {
		return fmt.Errorf("stopping condition: unknown performance measure %d", int(t.Measure))
	}
	if t.Row < sim.Last || t.Column < sim.Last {
		return fmt.Errorf("stopping condition: invalid target cell %s", t)
	}
	c.target = t
	return nil
}

// SetMaxReps sets the hard cap on completed steps.
func (c *Condition) SetMaxReps(n int) error {
	if n < 0 {
		return fmt.Errorf("stopping condition: maxReps must be non-negative, got %d", n)
	}
	c.maxReps = n
	return nil
}

func (c *Condition) Level() float64     { return c.level }
func (c *Condition) Threshold() float64 { return c.threshold }
func (c *Condition) Target() Target     { return c.target }
func (c *Condition) MaxReps() int       { return c.maxReps }

// LastDecision returns the outcome of the most recent Check.
func (c *Condition) LastDecision() Decision { return c.last }

// Check returns how many more replications to run: 0 to stop now, 1 to run
// one more and check again. defaultNewReps is the engine's own proposal; 0
// there always stops.
//
// Errors from the statistics provider are returned as-is. A *ProbeKindError
// is fatal.
func (c *Condition) Check(progress sim.StatisticsProvider, defaultNewReps int) (int, error) {
	step := progress.CompletedSteps()
	if defaultNewReps == 0 {
		return c.decide(Decision{Step: step, Reason: ReasonDefaultStop}), nil
	}
	if step >= c.maxReps {
		return c.decide(Decision{Step: step, Reason: ReasonMaxReps}), nil
	}

	grid, err := progress.StatisticsGrid(c.target.Measure)
	if err != nil {
		return 0, fmt.Errorf("stopping condition: %w", err)
	}
	probe, err := grid.Probe(c.target.Row, c.target.Column)
	if err != nil {
		return 0, fmt.Errorf("stopping condition: %w", err)
	}

	var iv stat.Interval
	switch p := probe.(type) {
	case *stat.Tally:
		iv = p.ConfidenceIntervalStudent(c.level)
	case *stat.RatioTally:
		iv = p.ConfidenceIntervalDelta(c.level)
	default:
		return 0, &ProbeKindError{Target: c.target, Probe: probe}
	}

	d := Decision{Step: step, Interval: iv}
	if iv.Contains(c.threshold) {
		d.NewReps, d.Reason = 1, ReasonInconclusive
	} else {
		d.Reason = ReasonSignificant
	}
	logrus.Debugf("stopping: step %d, %s interval %s, delta=%g -> %s",
		step, c.target, iv, c.threshold, d.Reason)
	return c.decide(d), nil
}

func (c *Condition) decide(d Decision) int {
	c.last = d
	return d.NewReps
}
