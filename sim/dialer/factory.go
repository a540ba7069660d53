package dialer

import (
	"fmt"

	"github.com/contactsim/contactsim/sim/agentsmove"
)

// Spec is the validated, name-resolved description of one outbound type's policy.
type Spec struct {
	Kind              PolicyKind
	Kappa             float64 // DIALXFREE and the rate-gated kind only
	C                 int     // DIALXFREE and the rate-gated kind only
	BadCallThreshold  float64 // rate-gated kind only
	MismatchThreshold float64 // rate-gated kind only
}

// New builds the policy described by spec. ctrl and groups are used by
// AGENTSMOVE only and may be nil for other kinds.
func New(spec Spec, ctrl *agentsmove.Controller, groups GroupSource) (Policy, error) {
	switch spec.Kind {
	case DialXFree, DialOne, Dial1XFree, Dial2XFree:
		return NewParametrized(spec.Kind, spec.Kappa, spec.C)
	case DialFreeBadCallMismatchRates:
		return NewRateGated(spec.Kappa, spec.C, spec.BadCallThreshold, spec.MismatchThreshold)
	case AgentsMove:
		return NewAgentsMove(ctrl, groups)
	default:
		return nil, fmt.Errorf("unhandled dialer policy %s", spec.Kind)
	}
}
