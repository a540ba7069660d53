package dialer

import (
	"fmt"

	"github.com/contactsim/contactsim/sim/agentsmove"
)

// GroupState is the per-agent-group part of an AGENTSMOVE decision. Role and
// DialRatio come from external group configuration.
type GroupState struct {
	Role      agentsmove.Role
	Free      int     // free agents of the group able to serve the call type
	DialRatio float64 // calls dialed per free agent while the group works outbound
}

// GroupSource returns the current per-group state for an outbound call type.
type GroupSource func(callType int) []GroupState

// AgentsMovePolicy implements AGENTSMOVE. It dials round(DialRatio·Free) for
// every group currently assigned to outbound work, as decided by the
// agents-move controller.
type AgentsMovePolicy struct {
	ctrl   *agentsmove.Controller
	groups GroupSource
}

// NewAgentsMove creates the policy around a controller shared by all outbound
// types of one replication.
func NewAgentsMove(ctrl *agentsmove.Controller, groups GroupSource) (*AgentsMovePolicy, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("AGENTSMOVE requires an agents-move controller")
	}
	if groups == nil {
		return nil, fmt.Errorf("AGENTSMOVE requires a group state source")
	}
	return &AgentsMovePolicy{ctrl: ctrl, groups: groups}, nil
}

func (p *AgentsMovePolicy) Kind() PolicyKind { return AgentsMove }

// Controller returns the shared agents-move controller.
func (p *AgentsMovePolicy) Controller() *agentsmove.Controller { return p.ctrl }

// RoutingFlags delegates to the controller.
func (p *AgentsMovePolicy) RoutingFlags() (outboundToInbound, inboundToOutbound bool) {
	return p.ctrl.RoutingFlags()
}

// Decide implements Policy.
func (p *AgentsMovePolicy) Decide(_ DecisionContext, callType int) int {
	total := 0
	for _, g := range p.groups(callType) {
		if g.Free <= 0 || g.DialRatio <= 0 || !p.ctrl.Dials(g.Role) {
			continue
		}
		total += dialCount(g.DialRatio, 0, g.Free)
	}
	return total
}
