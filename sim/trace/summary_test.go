package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_NilTrace(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.DialDecisions)
	assert.NotNil(t, s.DialsByPolicy)
	assert.Equal(t, "", s.FinalReason)
}

func TestSummarize_Aggregates(t *testing.T) {
	// GIVEN a trace with dials, flag updates and stop checks
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDials})
	st.RecordDial(DialRecord{Policy: "DIALXFREE", Dialed: 4})
	st.RecordDial(DialRecord{Policy: "DIALXFREE", Dialed: 0})
	st.RecordDial(DialRecord{Policy: "AGENTSMOVE", Dialed: 5})
	st.RecordFlags(FlagRecord{OutboundToInbound: true, Changed: true})
	st.RecordFlags(FlagRecord{OutboundToInbound: true})
	st.RecordFlags(FlagRecord{InboundToOutbound: true, Changed: true})
	st.RecordStop(StopRecord{Step: 10, NewReps: 1, Reason: "threshold-inside-interval"})
	st.RecordStop(StopRecord{Step: 11, NewReps: 0, Reason: "threshold-outside-interval"})

	// WHEN summarized
	s := Summarize(st)

	// THEN totals match the records
	assert.Equal(t, 3, s.DialDecisions)
	assert.Equal(t, 9, s.CallsDialed)
	assert.InDelta(t, 3.0, s.MeanDialed, 1e-12)
	assert.Equal(t, 5, s.MaxDialed)
	assert.Equal(t, map[string]int{"DIALXFREE": 4, "AGENTSMOVE": 5}, s.DialsByPolicy)
	assert.Equal(t, 3, s.FlagUpdates)
	assert.Equal(t, 2, s.FlagChanges)
	assert.Equal(t, 2, s.OutboundToInbound)
	assert.Equal(t, 1, s.InboundToOutbound)
	assert.Equal(t, 2, s.StopChecks)
	assert.Equal(t, 11, s.FinalStep)
	assert.Equal(t, "threshold-outside-interval", s.FinalReason)
}
