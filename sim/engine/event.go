package engine

import "container/heap"

// Event is one scheduled occurrence in a replication.
type Event interface {
	Timestamp() int64
	Priority() int
	Execute(*Simulator)
}

// Priorities break timestamp ties: period boundaries first, so counts land
// in the period they belong to, then releases of agents before new demand.
const (
	priorityPeriodEnd = iota
	priorityCheckedPeriodEnd
	priorityServiceEnd
	priorityAbandon
	priorityDialResult
	priorityArrival
	priorityDialerEpoch
)

// eventEntry wraps an Event with a sequence ID for deterministic FIFO
// tie-breaking when timestamp and priority are equal.
type eventEntry struct {
	event Event
	seqID int64
}

// EventQueue is a min-heap ordered by (Timestamp, Priority, seqID).
// Implements heap.Interface.
type EventQueue []eventEntry

func (q EventQueue) Len() int { return len(q) }

func (q EventQueue) Less(i, j int) bool {
	if q[i].event.Timestamp() != q[j].event.Timestamp() {
		return q[i].event.Timestamp() < q[j].event.Timestamp()
	}
	if q[i].event.Priority() != q[j].event.Priority() {
		return q[i].event.Priority() < q[j].event.Priority()
	}
	return q[i].seqID < q[j].seqID
}

func (q EventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *EventQueue) Push(x any) {
	*q = append(*q, x.(eventEntry))
}

func (q *EventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// schedule pushes e with the next sequence ID.
func (s *Simulator) schedule(e Event) {
	s.seq++
	heap.Push(&s.events, eventEntry{event: e, seqID: s.seq})
}

// === Events ===

// PeriodEndEvent closes a main period.
type PeriodEndEvent struct{ time int64 }

func (e *PeriodEndEvent) Timestamp() int64 { return e.time }
func (e *PeriodEndEvent) Priority() int     { return priorityPeriodEnd }

func (e *PeriodEndEvent) Execute(s *Simulator) {
	s.period++
	if next := e.time + s.periodTicks; next < s.horizon {
		s.schedule(&PeriodEndEvent{time: next})
	}
}

// CheckedPeriodEndEvent closes a checked period: windows are rolled and the
// agents-move controller sees the period's service level.
type CheckedPeriodEndEvent struct{ time int64 }

func (e *CheckedPeriodEndEvent) Timestamp() int64 { return e.time }
func (e *CheckedPeriodEndEvent) Priority() int     { return priorityCheckedPeriodEnd }

func (e *CheckedPeriodEndEvent) Execute(s *Simulator) {
	s.closeCheckedPeriod()
	s.schedule(&CheckedPeriodEndEvent{time: e.time + s.checkedTicks})
}

// ArrivalEvent is an inbound contact arriving.
type ArrivalEvent struct {
	time     int64
	callType int
}

func (e *ArrivalEvent) Timestamp() int64 { return e.time }
func (e *ArrivalEvent) Priority() int     { return priorityArrival }

func (e *ArrivalEvent) Execute(s *Simulator) {
	s.arrive(e.callType)
	s.scheduleArrival(e.callType)
}

// AbandonEvent fires when a queued caller's patience runs out.
type AbandonEvent struct {
	time    int64
	contact *contact
}

func (e *AbandonEvent) Timestamp() int64 { return e.time }
func (e *AbandonEvent) Priority() int     { return priorityAbandon }

func (e *AbandonEvent) Execute(s *Simulator) {
	s.abandon(e.contact)
}

// ServiceEndEvent releases an agent.
type ServiceEndEvent struct {
	time  int64
	group int
}

func (e *ServiceEndEvent) Timestamp() int64 { return e.time }
func (e *ServiceEndEvent) Priority() int     { return priorityServiceEnd }

func (e *ServiceEndEvent) Execute(s *Simulator) {
	s.release(e.group)
}

// DialResultEvent is the outcome of one dialed outbound call.
type DialResultEvent struct {
	time     int64
	callType int
	reached  bool
}

func (e *DialResultEvent) Timestamp() int64 { return e.time }
func (e *DialResultEvent) Priority() int     { return priorityDialResult }

func (e *DialResultEvent) Execute(s *Simulator) {
	s.dialResult(e.callType, e.reached)
}

// DialerEpochEvent is a decision epoch: every outbound type's policy decides
// how many calls to launch now.
type DialerEpochEvent struct{ time int64 }

func (e *DialerEpochEvent) Timestamp() int64 { return e.time }
func (e *DialerEpochEvent) Priority() int     { return priorityDialerEpoch }

func (e *DialerEpochEvent) Execute(s *Simulator) {
	for k := range s.model.Outbound {
		s.dial(k)
	}
	s.schedule(&DialerEpochEvent{time: e.time + s.epochTicks})
}
