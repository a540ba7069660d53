package engine

import (
	"container/heap"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/contactsim/contactsim/sim"
	"github.com/contactsim/contactsim/sim/agentsmove"
	"github.com/contactsim/contactsim/sim/dialer"
	"github.com/contactsim/contactsim/sim/telemetry"
	"github.com/contactsim/contactsim/sim/trace"
	"github.com/contactsim/contactsim/sim/window"
)

// contact is one inbound contact while it waits.
type contact struct {
	callType int
	arrival  int64
	done     bool // served or abandoned
}

// group is the live state of one agent group.
type group struct {
	free int
	busy int
}

// Simulator runs one replication. It owns its policies, windows, controller
// and RNG partition; nothing is shared with other replications.
//
// Thread-safety: NOT thread-safe.
type Simulator struct {
	model *Model
	rep   int

	clock        int64
	lastAdvance  int64
	horizon      int64
	periodTicks  int64
	checkedTicks int64
	epochTicks   int64
	period       int

	events EventQueue
	seq    int64

	arrivalsRNG *rand.Rand
	serviceRNG  *rand.Rand
	patienceRNG *rand.Rand
	dialerRNG   *rand.Rand

	groups []group
	queues [][]*contact // FIFO per inbound type

	policies   []dialer.Policy
	ctrl       *agentsmove.Controller // nil unless an outbound type uses AGENTSMOVE
	badCalls   *window.Window
	mismatches []*window.Window
	slNum      float64 // service level counts of the open checked period
	slDen      float64

	result  *Result
	trace   *trace.SimulationTrace
	metrics *telemetry.Metrics
}

// NewSimulator prepares replication rep of model with RNG key key. traceCfg
// and metrics may be zero/nil.
func NewSimulator(model *Model, rep int, key sim.SimulationKey, traceCfg trace.TraceConfig, metrics *telemetry.Metrics) (*Simulator, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	rng := sim.NewPartitionedRNG(key)
	s := &Simulator{
		model:        model,
		rep:          rep,
		horizon:      ticks(model.Horizon()),
		periodTicks:  ticks(model.PeriodDuration),
		checkedTicks: ticks(model.CheckedPeriod),
		epochTicks:   ticks(model.DialerEpoch),
		arrivalsRNG:  rng.ForSubsystem(sim.SubsystemArrivals),
		serviceRNG:   rng.ForSubsystem(sim.SubsystemService),
		patienceRNG:  rng.ForSubsystem(sim.SubsystemPatience),
		dialerRNG:    rng.ForSubsystem(sim.SubsystemDialer),
		groups:       make([]group, len(model.Groups)),
		queues:       make([][]*contact, len(model.Inbound)),
		result:       newResult(rep, model.Dimensions()),
		metrics:      metrics,
	}
	if traceCfg.Enabled() {
		s.trace = trace.NewSimulationTrace(traceCfg)
	}
	if s.checkedTicks <= 0 || s.periodTicks <= 0 || (len(model.Outbound) > 0 && s.epochTicks <= 0) {
		return nil, fmt.Errorf("durations below one millisecond are not supported")
	}
	for i, g := range model.Groups {
		s.groups[i].free = g.Size
	}

	var err error
	if s.badCalls, err = window.New(model.WindowPeriods); err != nil {
		return nil, err
	}
	if model.UsesAgentsMove() {
		cfg := model.AgentsMove
		cfg.Periods = model.WindowPeriods
		if s.ctrl, err = agentsmove.NewController(cfg); err != nil {
			return nil, err
		}
	}
	s.mismatches = make([]*window.Window, len(model.Outbound))
	s.policies = make([]dialer.Policy, len(model.Outbound))
	for k, out := range model.Outbound {
		if s.mismatches[k], err = window.New(model.WindowPeriods); err != nil {
			return nil, err
		}
		if s.policies[k], err = dialer.New(out.Dialer, s.ctrl, s.groupStates); err != nil {
			return nil, fmt.Errorf("outbound %q: %w", out.Name, err)
		}
	}
	return s, nil
}

// Run executes the replication to the horizon and returns its counts.
func (s *Simulator) Run() *Result {
	for k := range s.model.Inbound {
		s.scheduleArrival(k)
	}
	if len(s.model.Outbound) > 0 {
		s.schedule(&DialerEpochEvent{time: 0})
	}
	s.schedule(&CheckedPeriodEndEvent{time: s.checkedTicks})
	if s.periodTicks < s.horizon {
		s.schedule(&PeriodEndEvent{time: s.periodTicks})
	}

	for s.events.Len() > 0 {
		entry := heap.Pop(&s.events).(eventEntry)
		ev := entry.event
		if ev.Timestamp() >= s.horizon {
			break
		}
		s.advance(ev.Timestamp())
		ev.Execute(s)
	}
	s.advance(s.horizon)

	logrus.Debugf("replication %d: %d contacts still queued at horizon", s.rep, s.queued())
	return s.result
}

// Trace returns the replication's decision trace, nil when tracing is off.
func (s *Simulator) Trace() *trace.SimulationTrace { return s.trace }

// Controller returns the agents-move controller, nil when no outbound type
// uses AGENTSMOVE.
func (s *Simulator) Controller() *agentsmove.Controller { return s.ctrl }

// Clock returns the current simulated time in ticks.
func (s *Simulator) Clock() int64 { return s.clock }

// advance moves the clock to t, integrating queue lengths and busy agents.
func (s *Simulator) advance(t int64) {
	if t > s.lastAdvance {
		dt := seconds(t - s.lastAdvance)
		p := s.currentPeriod()
		for k, q := range s.queues {
			s.result.tables[sim.QueueSize].add(k, p, float64(len(q))*dt, dt)
		}
		for g, st := range s.groups {
			s.result.tables[sim.Occupancy].add(g, p, float64(st.busy)*dt, float64(st.busy+st.free)*dt)
		}
		s.lastAdvance = t
	}
	s.clock = t
}

func (s *Simulator) currentPeriod() int {
	if s.period >= s.model.Periods {
		return s.model.Periods - 1
	}
	return s.period
}

func (s *Simulator) queued() int {
	n := 0
	for _, q := range s.queues {
		n += len(q)
	}
	return n
}

// === Inbound ===

func (s *Simulator) scheduleArrival(k int) {
	rate := s.model.Inbound[k].ArrivalRate
	if rate <= 0 {
		return
	}
	gap := ticks(s.arrivalsRNG.ExpFloat64() / rate)
	s.schedule(&ArrivalEvent{time: s.clock + gap, callType: k})
}

func (s *Simulator) arrive(k int) {
	p := s.currentPeriod()
	s.result.tables[sim.RateOfArrivals].add(k, p, 1, 0)
	c := &contact{callType: k, arrival: s.clock}
	if g := s.pickGroup(k, agentsmove.Inbound); g >= 0 {
		s.serveInbound(c, g)
		return
	}
	s.queues[k] = append(s.queues[k], c)
	if patience := s.model.Inbound[k].MeanPatience; patience > 0 {
		s.schedule(&AbandonEvent{
			time:    s.clock + ticks(s.patienceRNG.ExpFloat64()*patience),
			contact: c,
		})
	}
}

func (s *Simulator) abandon(c *contact) {
	if c.done {
		return
	}
	c.done = true
	q := s.queues[c.callType]
	for i, other := range q {
		if other == c {
			s.queues[c.callType] = append(q[:i], q[i+1:]...)
			break
		}
	}
	k, p := c.callType, s.currentPeriod()
	wait := seconds(s.clock - c.arrival)
	s.result.tables[sim.RateOfAbandonment].add(k, p, 1, 0)
	s.result.tables[sim.AbandonmentRatio].add(k, p, 1, 1)
	s.result.tables[sim.ServiceLevel].add(k, p, 0, 1)
	s.result.tables[sim.BadCallRate].add(k, p, 1, 1)
	s.result.tables[sim.MaxWaitingTime].max(k, p, wait)
	s.slDen++
	s.badCalls.Record(1, 1)
}

// serveInbound starts serving c with an agent of group g.
func (s *Simulator) serveInbound(c *contact, g int) {
	c.done = true
	k, p := c.callType, s.currentPeriod()
	in := s.model.Inbound[k]
	wait := seconds(s.clock - c.arrival)
	good := wait <= in.AWT

	s.result.tables[sim.RateOfServices].add(k, p, 1, 0)
	s.result.tables[sim.AbandonmentRatio].add(k, p, 0, 1)
	s.result.tables[sim.WaitingTime].add(k, p, wait, 1)
	s.result.tables[sim.MaxWaitingTime].max(k, p, wait)
	if good {
		s.result.tables[sim.ServiceLevel].add(k, p, 1, 1)
		s.result.tables[sim.BadCallRate].add(k, p, 0, 1)
		s.slNum++
		s.badCalls.Record(0, 1)
	} else {
		s.result.tables[sim.ServiceLevel].add(k, p, 0, 1)
		s.result.tables[sim.BadCallRate].add(k, p, 1, 1)
		s.badCalls.Record(1, 1)
	}
	s.slDen++
	s.startService(g, in.MeanService)
}

func (s *Simulator) startService(g int, mean float64) {
	s.groups[g].free--
	s.groups[g].busy++
	s.schedule(&ServiceEndEvent{
		time:  s.clock + ticks(s.serviceRNG.ExpFloat64()*mean),
		group: g,
	})
}

func (s *Simulator) release(g int) {
	s.groups[g].busy--
	s.groups[g].free++
	s.dispatch(g)
}

// dispatch hands queued inbound contacts to free agents of g, oldest first
// across the types g may serve.
func (s *Simulator) dispatch(g int) {
	for s.groups[g].free > 0 {
		best := -1
		for _, k := range s.model.Groups[g].Inbound {
			if len(s.queues[k]) == 0 || !s.eligible(g, agentsmove.Inbound) {
				continue
			}
			if best < 0 || s.queues[k][0].arrival < s.queues[best][0].arrival {
				best = k
			}
		}
		if best < 0 {
			return
		}
		c := s.queues[best][0]
		s.queues[best] = s.queues[best][1:]
		s.serveInbound(c, g)
	}
}

// === Outbound ===

// dial evaluates the policy of outbound type k and launches the calls.
func (s *Simulator) dial(k int) {
	out := s.model.Outbound[k]
	ctx := dialer.DecisionContext{
		Clock:         s.clock,
		TotalFree:     s.totalFree(),
		TargetFree:    s.targetFree(k),
		MinTotalFree:  out.MinTotalFree,
		MinTargetFree: out.MinTargetFree,
		Rates:         s,
	}
	n := s.policies[k].Decide(ctx, k)
	policy := s.policies[k].Kind().String()

	s.metrics.ObserveDial(policy, n)
	s.trace.RecordDial(trace.DialRecord{
		Replication:  s.rep,
		Clock:        s.clock,
		CallType:     k,
		Policy:       policy,
		TotalFree:    ctx.TotalFree,
		TargetFree:   ctx.TargetFree,
		BadCallRate:  s.BadCallRate(),
		MismatchRate: s.MismatchRate(k),
		Dialed:       n,
	})

	if n == 0 {
		return
	}
	s.result.tables[sim.DialedCalls].add(k, s.currentPeriod(), float64(n), 0)
	delay := ticks(out.DialDelay)
	for i := 0; i < n; i++ {
		reached := s.dialerRNG.Float64() < out.ReachProbability
		s.schedule(&DialResultEvent{time: s.clock + delay, callType: k, reached: reached})
	}
}

// dialResult handles one dialed call. A reached party with no eligible free
// agent is a mismatch and the call is lost.
func (s *Simulator) dialResult(k int, reached bool) {
	p := s.currentPeriod()
	if !reached {
		s.result.tables[sim.MismatchRate].add(k, p, 0, 1)
		s.mismatches[k].Record(0, 1)
		return
	}
	row := len(s.model.Inbound) + k
	s.result.tables[sim.RateOfArrivals].add(row, p, 1, 0)
	g := s.pickGroup(k, agentsmove.Outbound)
	if g < 0 {
		s.result.tables[sim.MismatchRate].add(k, p, 1, 1)
		s.mismatches[k].Record(1, 1)
		return
	}
	s.result.tables[sim.MismatchRate].add(k, p, 0, 1)
	s.mismatches[k].Record(0, 1)
	s.result.tables[sim.RateOfServices].add(row, p, 1, 0)
	s.startService(g, s.model.Outbound[k].MeanService)
}

// BadCallRate implements dialer.RateSource over the closed checked periods
// in the window.
func (s *Simulator) BadCallRate() float64 { return s.badCalls.Rate() }

// MismatchRate implements dialer.RateSource.
func (s *Simulator) MismatchRate(k int) float64 {
	if k < 0 || k >= len(s.mismatches) {
		return 0
	}
	return s.mismatches[k].Rate()
}

// groupStates is the AGENTSMOVE view of the groups skilled for outbound type k.
func (s *Simulator) groupStates(k int) []dialer.GroupState {
	var out []dialer.GroupState
	for g, cfg := range s.model.Groups {
		if !hasSkill(cfg.Outbound, k) {
			continue
		}
		out = append(out, dialer.GroupState{Role: cfg.Role, Free: s.groups[g].free, DialRatio: cfg.DialRatio})
	}
	return out
}

// === Routing ===

// eligible reports whether group g may currently take work of direction dir.
// Without an agents-move controller, skills alone decide.
func (s *Simulator) eligible(g int, dir agentsmove.Role) bool {
	if s.ctrl == nil {
		return true
	}
	return s.ctrl.CanServe(s.model.Groups[g].Role, dir)
}

// pickGroup returns the eligible group skilled for type k with the most free
// agents, lowest index on ties, or -1.
func (s *Simulator) pickGroup(k int, dir agentsmove.Role) int {
	best := -1
	for g, cfg := range s.model.Groups {
		skills := cfg.Inbound
		if dir == agentsmove.Outbound {
			skills = cfg.Outbound
		}
		if s.groups[g].free == 0 || !hasSkill(skills, k) || !s.eligible(g, dir) {
			continue
		}
		if best < 0 || s.groups[g].free > s.groups[best].free {
			best = g
		}
	}
	return best
}

func (s *Simulator) totalFree() int {
	n := 0
	for _, g := range s.groups {
		n += g.free
	}
	return n
}

func (s *Simulator) targetFree(k int) int {
	n := 0
	for g, cfg := range s.model.Groups {
		if hasSkill(cfg.Outbound, k) && s.eligible(g, agentsmove.Outbound) {
			n += s.groups[g].free
		}
	}
	return n
}

func hasSkill(skills []int, k int) bool {
	for _, s := range skills {
		if s == k {
			return true
		}
	}
	return false
}

// === Checked periods ===

// closeCheckedPeriod rolls the rate windows and feeds the period's global
// service level to the controller. A period without finished inbound contacts
// has service level 1.
func (s *Simulator) closeCheckedPeriod() {
	s.badCalls.Close()
	for _, w := range s.mismatches {
		w.Close()
	}
	sl := window.Sample{Num: s.slNum, Den: s.slDen}.Ratio(1)
	s.slNum, s.slDen = 0, 0

	if s.ctrl == nil {
		return
	}
	changed := s.ctrl.Observe(sl)
	oi, io := s.ctrl.RoutingFlags()
	s.metrics.ObserveFlags(oi, io, changed)
	s.trace.RecordFlags(trace.FlagRecord{
		Replication:       s.rep,
		Clock:             s.clock,
		ServiceLevel:      sl,
		WindowMean:        s.ctrl.MeanServiceLevel(),
		OutboundToInbound: oi,
		InboundToOutbound: io,
		Changed:           changed,
	})
	if changed {
		// agents moved to inbound work pick up waiting contacts right away
		for g := range s.groups {
			s.dispatch(g)
		}
	}
}
