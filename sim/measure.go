package sim

import (
	"fmt"
	"sort"
)

// EstimationType tags how a performance measure is estimated, which in turn
// decides which confidence-interval method is valid for it.
type EstimationType int

const (
	// RawStatistic has no expectation: one observation per replication or batch.
	RawStatistic EstimationType = iota
	// Expectation is a simple average.
	Expectation
	// FunctionOfExpectations is a ratio of two averages (e.g. service level).
	FunctionOfExpectations
	// ExpectationOfFunction is the average of a per-observation ratio.
	ExpectationOfFunction
)

func (e EstimationType) String() string {
	switch e {
	case RawStatistic:
		return "raw-statistic"
	case Expectation:
		return "expectation"
	case FunctionOfExpectations:
		return "function-of-expectations"
	case ExpectationOfFunction:
		return "expectation-of-function"
	default:
		return fmt.Sprintf("EstimationType(%d)", int(e))
	}
}

// Dimension names the model axis a measure's rows run over.
type Dimension int

const (
	AllContactTypes Dimension = iota
	InboundTypes
	OutboundTypes
	AgentGroups
)

// PerformanceMeasure identifies a category of measurable quantity.
type PerformanceMeasure int

const (
	ServiceLevel PerformanceMeasure = iota
	RateOfArrivals
	RateOfAbandonment
	RateOfServices
	AbandonmentRatio
	WaitingTime
	QueueSize
	Occupancy
	DialedCalls
	MismatchRate
	BadCallRate
	MaxWaitingTime
)

// measureInfo is the fixed per-measure metadata.
type measureInfo struct {
	name       string
	estimation EstimationType
	rows       Dimension
}

// measureTable is the single source of truth for measure metadata.
// Entries are never mutated at runtime.
var measureTable = map[PerformanceMeasure]measureInfo{
	ServiceLevel:      {"service-level", FunctionOfExpectations, InboundTypes},
	RateOfArrivals:    {"rate-of-arrivals", Expectation, AllContactTypes},
	RateOfAbandonment: {"rate-of-abandonment", Expectation, InboundTypes},
	RateOfServices:    {"rate-of-services", Expectation, AllContactTypes},
	AbandonmentRatio:  {"abandonment-ratio", FunctionOfExpectations, InboundTypes},
	WaitingTime:       {"waiting-time", FunctionOfExpectations, InboundTypes},
	QueueSize:         {"queue-size", Expectation, InboundTypes},
	Occupancy:         {"occupancy", FunctionOfExpectations, AgentGroups},
	DialedCalls:       {"dialed-calls", Expectation, OutboundTypes},
	MismatchRate:      {"mismatch-rate", FunctionOfExpectations, OutboundTypes},
	BadCallRate:       {"bad-call-rate", FunctionOfExpectations, InboundTypes},
	MaxWaitingTime:    {"max-waiting-time", RawStatistic, InboundTypes},
}

// measuresByName is derived from measureTable at init.
var measuresByName = func() map[string]PerformanceMeasure {
	m := make(map[string]PerformanceMeasure, len(measureTable))
	for pm, info := range measureTable {
		m[info.name] = pm
	}
	return m
}()

func (pm PerformanceMeasure) String() string {
	if info, ok := measureTable[pm]; ok {
		return info.name
	}
	return fmt.Sprintf("PerformanceMeasure(%d)", int(pm))
}

// Valid reports whether pm belongs to the catalog.
func (pm PerformanceMeasure) Valid() bool {
	_, ok := measureTable[pm]
	return ok
}

// EstimationType returns the measure's estimation tag.
func (pm PerformanceMeasure) EstimationType() EstimationType {
	return measureTable[pm].estimation
}

// RowDimension returns the model axis the measure's rows run over.
func (pm PerformanceMeasure) RowDimension() Dimension {
	return measureTable[pm].rows
}

// IsRatio reports whether cells of this measure hold ratio-of-means probes.
func (pm PerformanceMeasure) IsRatio() bool {
	return measureTable[pm].estimation == FunctionOfExpectations
}

// ParsePerformanceMeasure resolves a measure from its configuration name.
func ParsePerformanceMeasure(name string) (PerformanceMeasure, error) {
	pm, ok := measuresByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown performance measure %q; valid measures: %v", name, PerformanceMeasureNames())
	}
	return pm, nil
}

// PerformanceMeasureNames returns all catalog names, sorted.
func PerformanceMeasureNames() []string {
	names := make([]string, 0, len(measuresByName))
	for n := range measuresByName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Measures returns every catalog measure in declaration order.
func Measures() []PerformanceMeasure {
	out := make([]PerformanceMeasure, 0, len(measureTable))
	for pm := ServiceLevel; pm <= MaxWaitingTime; pm++ {
		out = append(out, pm)
	}
	return out
}

// Dimensions holds the model sizes grids are bounds-checked against.
type Dimensions struct {
	InboundTypes  int
	OutboundTypes int
	AgentGroups   int
	Periods       int // main periods
}

// Size returns the number of elements along d.
func (d Dimensions) Size(dim Dimension) int {
	switch dim {
	case AllContactTypes:
		return d.InboundTypes + d.OutboundTypes
	case InboundTypes:
		return d.InboundTypes
	case OutboundTypes:
		return d.OutboundTypes
	case AgentGroups:
		return d.AgentGroups
	default:
		return 0
	}
}

// RowsFor returns the grid row count for pm: one row per element plus an
// aggregate row when there is more than one element.
func (d Dimensions) RowsFor(pm PerformanceMeasure) int {
	return withAggregate(d.Size(pm.RowDimension()))
}

// Columns returns the grid column count: one per main period plus an
// aggregate column when there is more than one period.
func (d Dimensions) Columns() int {
	return withAggregate(d.Periods)
}

func withAggregate(n int) int {
	if n > 1 {
		return n + 1
	}
	return n
}
