// Package engine is the reference discrete-event contact-center simulator
// that drives the decision core: it owns simulated time, invokes the dialer
// policies at decision epochs, feeds the agents-move controller at every
// checked-period close, folds replication statistics into a sim.Registry,
// and consults the stopping condition between replications.
//
// Times in a Model are seconds; the event loop runs on integer milliseconds.
package engine

import (
	"fmt"
	"math"

	"github.com/contactsim/contactsim/sim"
	"github.com/contactsim/contactsim/sim/agentsmove"
	"github.com/contactsim/contactsim/sim/dialer"
)

// ticksPerSecond converts model seconds to event-loop ticks.
const ticksPerSecond = 1000

func ticks(seconds float64) int64 {
	return int64(math.Round(seconds * ticksPerSecond))
}

func seconds(t int64) float64 {
	return float64(t) / ticksPerSecond
}

// InboundType describes one inbound contact type.
type InboundType struct {
	Name         string
	ArrivalRate  float64 // Poisson rate, contacts per second
	MeanService  float64 // exponential, seconds
	MeanPatience float64 // exponential, seconds; 0 means callers never abandon
	AWT          float64 // acceptable waiting time, seconds
}

// OutboundType describes one outbound call type and its dialer.
type OutboundType struct {
	Name             string
	ReachProbability float64 // probability a dialed call reaches the right party
	DialDelay        float64 // seconds from dial to result
	MeanService      float64 // exponential, seconds
	Dialer           dialer.Spec
	MinTotalFree     int // s_t,k
	MinTargetFree    int // s_d,k
}

// AgentGroup is a pool of identical agents.
type AgentGroup struct {
	Name      string
	Size      int
	Role      agentsmove.Role
	Inbound   []int   // inbound type indices the group is skilled for
	Outbound  []int   // outbound type indices the group is skilled for
	DialRatio float64 // AGENTSMOVE calls per free agent while working outbound
}

// Model is a complete, validated contact-center description.
type Model struct {
	Inbound        []InboundType
	Outbound       []OutboundType
	Groups         []AgentGroup
	Periods        int     // main periods
	PeriodDuration float64 // seconds
	CheckedPeriod  float64 // d_D, seconds
	WindowPeriods  int     // P_D
	DialerEpoch    float64 // seconds between dialer decisions
	AgentsMove     agentsmove.Config
}

// Dimensions returns the grid sizes of the model.
func (m *Model) Dimensions() sim.Dimensions {
	return sim.Dimensions{
		InboundTypes:  len(m.Inbound),
		OutboundTypes: len(m.Outbound),
		AgentGroups:   len(m.Groups),
		Periods:       m.Periods,
	}
}

// Horizon returns the simulated length of one replication.
func (m *Model) Horizon() float64 {
	return float64(m.Periods) * m.PeriodDuration
}

// UsesAgentsMove reports whether any outbound type is dialed by AGENTSMOVE.
func (m *Model) UsesAgentsMove() bool {
	for _, o := range m.Outbound {
		if o.Dialer.Kind == dialer.AgentsMove {
			return true
		}
	}
	return false
}

// Validate checks the structural rules a Model built in code must satisfy.
// Bundles are validated before they are converted, so this mostly guards
// programmatic construction.
func (m *Model) Validate() error {
	if len(m.Inbound)+len(m.Outbound) == 0 {
		return fmt.Errorf("model needs at least one contact type")
	}
	if len(m.Groups) == 0 {
		return fmt.Errorf("model needs at least one agent group")
	}
	if m.Periods < 1 {
		return fmt.Errorf("periods must be at least 1, got %d", m.Periods)
	}
	if !(m.PeriodDuration > 0) || !(m.CheckedPeriod > 0) {
		return fmt.Errorf("period_duration and checked_period must be positive")
	}
	if m.WindowPeriods < 1 {
		return fmt.Errorf("window_periods must be at least 1, got %d", m.WindowPeriods)
	}
	if len(m.Outbound) > 0 && !(m.DialerEpoch > 0) {
		return fmt.Errorf("dialer_epoch must be positive when outbound types exist")
	}
	for i, in := range m.Inbound {
		if in.ArrivalRate < 0 || !(in.MeanService > 0) || in.MeanPatience < 0 || in.AWT < 0 {
			return fmt.Errorf("inbound[%d] %q: rates and durations must be non-negative, mean_service positive", i, in.Name)
		}
	}
	for i, out := range m.Outbound {
		if out.ReachProbability < 0 || out.ReachProbability > 1 {
			return fmt.Errorf("outbound[%d] %q: reach_probability must be in [0,1]", i, out.Name)
		}
		if out.DialDelay < 0 || !(out.MeanService > 0) {
			return fmt.Errorf("outbound[%d] %q: dial_delay must be non-negative, mean_service positive", i, out.Name)
		}
	}
	for i, g := range m.Groups {
		if g.Size < 0 {
			return fmt.Errorf("group[%d] %q: size must be non-negative", i, g.Name)
		}
		for _, k := range g.Inbound {
			if k < 0 || k >= len(m.Inbound) {
				return fmt.Errorf("group[%d] %q: inbound skill %d out of range", i, g.Name, k)
			}
		}
		for _, k := range g.Outbound {
			if k < 0 || k >= len(m.Outbound) {
				return fmt.Errorf("group[%d] %q: outbound skill %d out of range", i, g.Name, k)
			}
		}
	}
	if m.UsesAgentsMove() && m.AgentsMove.LowThreshold > m.AgentsMove.HighThreshold {
		return fmt.Errorf("agents_move: low_threshold %g exceeds high_threshold %g",
			m.AgentsMove.LowThreshold, m.AgentsMove.HighThreshold)
	}
	return nil
}
