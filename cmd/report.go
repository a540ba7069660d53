package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/contactsim/contactsim/sim"
	"github.com/contactsim/contactsim/sim/engine"
	"github.com/contactsim/contactsim/sim/trace"
)

// MeasureResult is the across-replication estimate of one measure at its
// aggregate cell.
type MeasureResult struct {
	Measure      string   `json:"measure"`
	Estimation   string   `json:"estimation"`
	Observations int      `json:"observations"`
	Average      *float64 `json:"average,omitempty"`
}

// Report is the printable and JSON-serializable outcome of a run. Non-finite
// values are omitted from JSON.
type Report struct {
	RunID        string              `json:"run_id"`
	Replications int                 `json:"replications"`
	StopReason   string              `json:"stop_reason"`
	Target       string              `json:"target,omitempty"`
	Average      *float64            `json:"target_average,omitempty"`
	Lower        *float64            `json:"interval_lower,omitempty"`
	Upper        *float64            `json:"interval_upper,omitempty"`
	ElapsedMs    int64               `json:"elapsed_ms"`
	Measures     []MeasureResult     `json:"measures"`
	Trace        *trace.TraceSummary `json:"trace,omitempty"`
}

func newReport(s *engine.Summary, reg *sim.Registry, ts *trace.TraceSummary) *Report {
	r := &Report{
		RunID:        s.RunID,
		Replications: s.Replications,
		StopReason:   string(s.StopReason),
		ElapsedMs:    s.Elapsed.Milliseconds(),
	}
	if s.Target != nil {
		r.Target = s.Target.String()
		r.Average = finite(s.Average)
		if s.Interval != nil {
			r.Lower = finite(s.Interval.Lower())
			r.Upper = finite(s.Interval.Upper())
		}
	}
	for _, pm := range sim.Measures() {
		grid, err := reg.StatisticsGrid(pm)
		if err != nil {
			continue
		}
		p, err := grid.Probe(sim.Last, sim.Last)
		if err != nil {
			logrus.Warnf("report: %s: %v", pm, err)
			continue
		}
		r.Measures = append(r.Measures, MeasureResult{
			Measure:      pm.String(),
			Estimation:   pm.EstimationType().String(),
			Observations: p.Count(),
			Average:      finite(p.Average()),
		})
	}
	if ts != nil && (ts.DialDecisions > 0 || ts.FlagUpdates > 0 || ts.StopChecks > 0) {
		r.Trace = ts
	}
	return r
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func formatValue(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.6g", *v)
}

// Print writes a human-readable summary to w.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Experiment Summary ===")
	fmt.Fprintf(w, "Run ID               : %s\n", r.RunID)
	fmt.Fprintf(w, "Replications         : %d\n", r.Replications)
	fmt.Fprintf(w, "Stop Reason          : %s\n", r.StopReason)
	if r.Target != "" {
		fmt.Fprintf(w, "Target               : %s\n", r.Target)
		fmt.Fprintf(w, "Target Average       : %s\n", formatValue(r.Average))
		if r.Lower != nil || r.Upper != nil {
			fmt.Fprintf(w, "Confidence Interval  : [%s, %s]\n", formatValue(r.Lower), formatValue(r.Upper))
		}
	}
	fmt.Fprintln(w, "=== Measures (aggregate cell) ===")
	for _, m := range r.Measures {
		fmt.Fprintf(w, "%-22s: %s (%d obs)\n", m.Measure, formatValue(m.Average), m.Observations)
	}
	if r.Trace != nil {
		fmt.Fprintln(w, "=== Decision Trace ===")
		fmt.Fprintf(w, "Dial Decisions       : %d (%d calls, max %d)\n", r.Trace.DialDecisions, r.Trace.CallsDialed, r.Trace.MaxDialed)
		fmt.Fprintf(w, "Flag Updates         : %d (%d changes)\n", r.Trace.FlagUpdates, r.Trace.FlagChanges)
		fmt.Fprintf(w, "Stop Checks          : %d\n", r.Trace.StopChecks)
	}
}

// Save writes the report as indented JSON to path.
func (r *Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing results to %s: %w", path, err)
	}
	return nil
}
