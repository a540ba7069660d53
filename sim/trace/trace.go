package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures stopping checks and agents-move updates.
	TraceLevelDecisions TraceLevel = "decisions"
	// TraceLevelDials additionally captures every dialer decision.
	TraceLevelDials TraceLevel = "dials"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	TraceLevelDials:     true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	RunID string
}

// Enabled reports whether any record is collected.
func (c TraceConfig) Enabled() bool {
	return c.Level == TraceLevelDecisions || c.Level == TraceLevelDials
}

// DialsEnabled reports whether per-epoch dialer decisions are collected.
func (c TraceConfig) DialsEnabled() bool { return c.Level == TraceLevelDials }

// SimulationTrace collects decision records during an experiment. A
// replication records into its own trace; the experiment appends them in
// replication order.
type SimulationTrace struct {
	Config TraceConfig
	Dials  []DialRecord
	Flags  []FlagRecord
	Stops  []StopRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config: config,
		Dials:  make([]DialRecord, 0),
		Flags:  make([]FlagRecord, 0),
		Stops:  make([]StopRecord, 0),
	}
}

// RecordDial appends a dialer decision record when dial tracing is on.
func (st *SimulationTrace) RecordDial(record DialRecord) {
	if st == nil || !st.Config.DialsEnabled() {
		return
	}
	st.Dials = append(st.Dials, record)
}

// RecordFlags appends an agents-move record.
func (st *SimulationTrace) RecordFlags(record FlagRecord) {
	if st == nil || !st.Config.Enabled() {
		return
	}
	st.Flags = append(st.Flags, record)
}

// RecordStop appends a stopping-check record.
func (st *SimulationTrace) RecordStop(record StopRecord) {
	if st == nil || !st.Config.Enabled() {
		return
	}
	st.Stops = append(st.Stops, record)
}

// Append moves the records of other to the end of st.
func (st *SimulationTrace) Append(other *SimulationTrace) {
	if st == nil || other == nil {
		return
	}
	st.Dials = append(st.Dials, other.Dials...)
	st.Flags = append(st.Flags, other.Flags...)
	st.Stops = append(st.Stops, other.Stops...)
}
