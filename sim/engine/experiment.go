package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/contactsim/contactsim/sim"
	"github.com/contactsim/contactsim/sim/stat"
	"github.com/contactsim/contactsim/sim/stopping"
	"github.com/contactsim/contactsim/sim/telemetry"
	"github.com/contactsim/contactsim/sim/trace"
)

// ExperimentConfig configures an Experiment.
type ExperimentConfig struct {
	Model    *Model
	Seed     int64
	Measures []sim.PerformanceMeasure // empty collects every measure

	InitialReplications int
	MaxReplications     int // engine cap: defaultNewReps turns 0 once reached
	Parallelism         int // concurrent replications; <= 1 runs sequentially

	Stopping *stopping.Condition // nil runs the initial replications only
	Trace    trace.TraceConfig
	Metrics  *telemetry.Metrics
}

// Summary is the outcome of a completed experiment.
type Summary struct {
	RunID        string
	Replications int
	StopReason   stopping.Reason
	Target       *stopping.Target
	Average      float64        // point estimate of the target, NaN without a target
	Interval     *stat.Interval // nil when the last check computed no interval
	Elapsed      time.Duration
}

// Experiment runs replications of a model, folds their statistics into a
// registry in replication order, and asks the stopping condition after each
// one whether to continue. Results are identical for any Parallelism.
type Experiment struct {
	id    string
	cfg   ExperimentConfig
	key   sim.SimulationKey
	reg   *sim.Registry
	trace *trace.SimulationTrace
}

// NewExperiment validates cfg and allocates the registry.
func NewExperiment(cfg ExperimentConfig) (*Experiment, error) {
	if cfg.Model == nil {
		return nil, errors.New("experiment needs a model")
	}
	if err := cfg.Model.Validate(); err != nil {
		return nil, err
	}
	if cfg.InitialReplications < 1 {
		return nil, fmt.Errorf("initial replications must be at least 1, got %d", cfg.InitialReplications)
	}
	if cfg.MaxReplications < cfg.InitialReplications {
		cfg.MaxReplications = cfg.InitialReplications
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	measures := cfg.Measures
	if len(measures) == 0 {
		measures = sim.Measures()
	}
	id := uuid.NewString()
	if cfg.Trace.RunID == "" {
		cfg.Trace.RunID = id
	}
	return &Experiment{
		id:    id,
		cfg:   cfg,
		key:   sim.NewSimulationKey(cfg.Seed),
		reg:   sim.NewRegistry(cfg.Model.Dimensions(), measures...),
		trace: trace.NewSimulationTrace(cfg.Trace),
	}, nil
}

// ID returns the experiment's run ID.
func (e *Experiment) ID() string { return e.id }

// Registry returns the statistics folded so far.
func (e *Experiment) Registry() *sim.Registry { return e.reg }

// Trace returns the merged decision trace.
func (e *Experiment) Trace() *trace.SimulationTrace { return e.trace }

// Run executes the experiment until the stopping condition, the engine cap or
// ctx ends it. A *stopping.ProbeKindError aborts the run.
func (e *Experiment) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	log := logrus.WithField("run", e.id)
	log.Infof("experiment starting: %d initial replications, parallelism %d", e.cfg.InitialReplications, e.cfg.Parallelism)

	if err := e.runBatch(ctx, e.cfg.InitialReplications); err != nil {
		return nil, err
	}

	reason := stopping.ReasonDefaultStop
	for e.cfg.Stopping != nil {
		defaultNewReps := 0
		if e.reg.CompletedSteps() < e.cfg.MaxReplications {
			defaultNewReps = 1
		}
		n, err := e.cfg.Stopping.Check(e.reg, defaultNewReps)
		if err != nil {
			var pke *stopping.ProbeKindError
			if errors.As(err, &pke) {
				return nil, fmt.Errorf("aborting experiment %s: %w", e.id, err)
			}
			return nil, err
		}
		d := e.cfg.Stopping.LastDecision()
		reason = d.Reason
		e.recordStop(d)
		if n == 0 {
			break
		}
		if err := e.runBatch(ctx, n); err != nil {
			return nil, err
		}
	}

	summary := &Summary{
		RunID:        e.id,
		Replications: e.reg.CompletedSteps(),
		StopReason:   reason,
		Average:      math.NaN(),
		Elapsed:      time.Since(start),
	}
	if e.cfg.Stopping != nil {
		t := e.cfg.Stopping.Target()
		summary.Target = &t
		if d := e.cfg.Stopping.LastDecision(); d.HasInterval() {
			iv := d.Interval
			summary.Interval = &iv
		}
		if grid, err := e.reg.StatisticsGrid(t.Measure); err == nil {
			if p, err := grid.Probe(t.Row, t.Column); err == nil {
				summary.Average = p.Average()
			}
		}
	}
	log.Infof("experiment done: %d replications, stop reason %s, %s",
		summary.Replications, summary.StopReason, summary.Elapsed.Round(time.Millisecond))
	return summary, nil
}

// runBatch runs the next n replications, concurrently up to Parallelism, and
// folds them in replication order.
func (e *Experiment) runBatch(ctx context.Context, n int) error {
	first := e.reg.CompletedSteps()
	results := make([]*Result, n)
	traces := make([]*trace.SimulationTrace, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep := first + i
			began := time.Now()
			s, err := NewSimulator(e.cfg.Model, rep, e.key.ForReplication(rep), e.cfg.Trace, e.cfg.Metrics)
			if err != nil {
				return fmt.Errorf("replication %d: %w", rep, err)
			}
			results[i] = s.Run()
			traces[i] = s.Trace()
			e.cfg.Metrics.ObserveReplication(time.Since(began))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, res := range results {
		if err := res.Fold(e.reg); err != nil {
			return err
		}
		e.reg.IncCompletedSteps()
		e.trace.Append(traces[i])
	}
	logrus.Debugf("run %s: folded replications %d..%d", e.id, first, first+n-1)
	return nil
}

func (e *Experiment) recordStop(d stopping.Decision) {
	e.trace.RecordStop(trace.StopRecord{
		Step:      d.Step,
		Lower:     d.Interval.Lower(),
		Upper:     d.Interval.Upper(),
		Threshold: e.cfg.Stopping.Threshold(),
		NewReps:   d.NewReps,
		Reason:    string(d.Reason),
	})
	e.cfg.Metrics.ObserveStop(string(d.Reason), d.Interval.HalfWidth)
}
