// Package dialer decides, at every decision epoch, how many outbound calls of
// a given type to place immediately.
//
// The policies form a closed set (PolicyKind). Four of them are instances of
// one parametrized rule
//
//	dial round(κ·Ndf_k) + c   if Ntf ≥ s_t,k and Ndf_k ≥ s_d,k, else 0
//
// with (κ, c) fixed per kind; the rate-gated kind adds bad-call and mismatch
// rate checks on top of it; AGENTSMOVE delegates balancing to an
// agentsmove.Controller.
package dialer

import (
	"fmt"
	"math"
	"sort"
)

// PolicyKind is the closed set of dialer policies.
type PolicyKind int

const (
	DialXFree PolicyKind = iota
	DialOne
	Dial1XFree
	Dial2XFree
	DialFreeBadCallMismatchRates
	AgentsMove
)

// kindInfo is the per-kind metadata. fixed=false means (κ, c) come from configuration.
type kindInfo struct {
	name  string
	kappa float64
	c     int
	fixed bool
}

var kindTable = map[PolicyKind]kindInfo{
	DialXFree:                    {name: "DIALXFREE"},
	DialOne:                      {name: "DIALONE", kappa: 0, c: 1, fixed: true},
	Dial1XFree:                   {name: "DIAL1XFREE", kappa: 1, c: 1, fixed: true},
	Dial2XFree:                   {name: "DIAL2XFREE", kappa: 2, c: 0, fixed: true},
	DialFreeBadCallMismatchRates: {name: "DIALFREE_BADCALLMISMATCHRATES"},
	AgentsMove:                   {name: "AGENTSMOVE"},
}

func (k PolicyKind) String() string {
	if info, ok := kindTable[k]; ok {
		return info.name
	}
	return fmt.Sprintf("PolicyKind(%d)", int(k))
}

// FixedParams returns the built-in (κ, c) of the kind and whether it has them.
func (k PolicyKind) FixedParams() (kappa float64, c int, ok bool) {
	info := kindTable[k]
	return info.kappa, info.c, info.fixed
}

// ParsePolicyKind resolves a kind from its configuration name.
func ParsePolicyKind(name string) (PolicyKind, error) {
	for k, info := range kindTable {
		if info.name == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown dialer policy %q; valid policies: %v", name, PolicyKindNames())
}

// PolicyKindNames returns the configuration names of every kind, sorted.
func PolicyKindNames() []string {
	names := make([]string, 0, len(kindTable))
	for _, info := range kindTable {
		names = append(names, info.name)
	}
	sort.Strings(names)
	return names
}

// RateSource supplies windowed rates for one outbound call type, computed over
// the last P_D checked periods.
type RateSource interface {
	// BadCallRate is the fraction of inbound contacts that waited past the
	// acceptable waiting time or abandoned.
	BadCallRate() float64
	// MismatchRate is the fraction of dialed calls of the type that reached
	// the customer but found no matching free agent.
	MismatchRate(callType int) float64
}

// DecisionContext is the per-epoch snapshot a policy decides from.
type DecisionContext struct {
	Clock         int64
	TotalFree     int        // Ntf(t): free agents over all groups
	TargetFree    int        // Ndf_k(t): free agents able to serve type k
	MinTotalFree  int        // s_t,k(t)
	MinTargetFree int        // s_d,k(t)
	Rates         RateSource // required by the rate-gated policy only
}

// FreeAgentCondition reports Ntf ≥ s_t,k AND Ndf_k ≥ s_d,k. A negative
// threshold is always satisfied.
func (ctx DecisionContext) FreeAgentCondition() bool {
	return (ctx.MinTotalFree < 0 || ctx.TotalFree >= ctx.MinTotalFree) &&
		(ctx.MinTargetFree < 0 || ctx.TargetFree >= ctx.MinTargetFree)
}

// Policy decides how many outbound calls of a type to place now.
// Decide never returns a negative count.
type Policy interface {
	Kind() PolicyKind
	Decide(ctx DecisionContext, callType int) int
}

// Parametrized implements DIALXFREE, DIALONE, DIAL1XFREE and DIAL2XFREE.
type Parametrized struct {
	kind  PolicyKind
	kappa float64
	c     int
}

// NewParametrized creates a parametrized-rule policy. Kinds with built-in
// parameters ignore kappa and c.
func NewParametrized(kind PolicyKind, kappa float64, c int) (*Parametrized, error) {
	switch kind {
	case DialXFree, DialOne, Dial1XFree, Dial2XFree:
	default:
		return nil, fmt.Errorf("%s is not a parametrized dialer policy", kind)
	}
	if k, cc, ok := kind.FixedParams(); ok {
		kappa, c = k, cc
	}
	if err := validateParams(kappa, c); err != nil {
		return nil, err
	}
	return &Parametrized{kind: kind, kappa: kappa, c: c}, nil
}

func (p *Parametrized) Kind() PolicyKind { return p.kind }

// Params returns (κ, c).
func (p *Parametrized) Params() (float64, int) { return p.kappa, p.c }

// Decide implements Policy.
func (p *Parametrized) Decide(ctx DecisionContext, _ int) int {
	if !ctx.FreeAgentCondition() {
		return 0
	}
	return dialCount(p.kappa, p.c, ctx.TargetFree)
}

// dialCount returns round(κ·ndf)+c with half-up rounding. With ndf=0 the
// result is c: c acts as a floor.
func dialCount(kappa float64, c, ndf int) int {
	return int(math.Floor(kappa*float64(ndf)+0.5)) + c
}

func validateParams(kappa float64, c int) error {
	if kappa < 0 || math.IsNaN(kappa) || math.IsInf(kappa, 0) {
		return fmt.Errorf("dialer kappa must be a finite non-negative number, got %g", kappa)
	}
	if c < 0 {
		return fmt.Errorf("dialer constant c must be non-negative, got %d", c)
	}
	return nil
}
