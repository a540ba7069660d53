package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	DialDecisions     int
	CallsDialed       int
	MeanDialed        float64
	MaxDialed         int
	DialsByPolicy     map[string]int // policy name → calls dialed
	FlagUpdates       int
	FlagChanges       int
	OutboundToInbound int // updates that left outboundToInbound set
	InboundToOutbound int // updates that left inboundToOutbound set
	StopChecks        int
	FinalStep         int
	FinalReason       string
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		DialsByPolicy: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.DialDecisions = len(st.Dials)
	for _, d := range st.Dials {
		summary.CallsDialed += d.Dialed
		summary.DialsByPolicy[d.Policy] += d.Dialed
		if d.Dialed > summary.MaxDialed {
			summary.MaxDialed = d.Dialed
		}
	}
	if summary.DialDecisions > 0 {
		summary.MeanDialed = float64(summary.CallsDialed) / float64(summary.DialDecisions)
	}

	summary.FlagUpdates = len(st.Flags)
	for _, f := range st.Flags {
		if f.Changed {
			summary.FlagChanges++
		}
		if f.OutboundToInbound {
			summary.OutboundToInbound++
		}
		if f.InboundToOutbound {
			summary.InboundToOutbound++
		}
	}

	summary.StopChecks = len(st.Stops)
	if n := len(st.Stops); n > 0 {
		summary.FinalStep = st.Stops[n-1].Step
		summary.FinalReason = st.Stops[n-1].Reason
	}

	return summary
}
