package agentsmove

import "fmt"

// Role is the kind of work an agent group is dedicated to. Inbound and
// Outbound also name the direction of a contact.
type Role int

const (
	Inbound Role = iota
	Outbound
	Blend
)

var roleNames = map[Role]string{Inbound: "inbound", Outbound: "outbound", Blend: "blend"}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole resolves a role from its configuration name.
func ParseRole(name string) (Role, error) {
	for r, n := range roleNames {
		if n == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown agent group role %q; valid roles: [blend inbound outbound]", name)
}

// CanServe reports whether a group with the given role may take a contact of
// the given direction under the current flags:
//   - blend groups and groups of the contact's own direction always may;
//   - outbound groups take inbound contacts while outboundToInbound is set;
//   - inbound groups take outbound contacts while inboundToOutbound is set.
func (c *Controller) CanServe(role, contact Role) bool {
	if role == Blend || role == contact {
		return true
	}
	if contact == Inbound {
		return c.outboundToInbound
	}
	return c.inboundToOutbound
}

// Dials reports whether a group with the given role currently generates
// outbound calls: outbound groups stop while they are moved to inbound work,
// inbound groups start while they are moved to outbound work.
func (c *Controller) Dials(role Role) bool {
	switch role {
	case Outbound:
		return !c.outboundToInbound
	case Inbound:
		return c.inboundToOutbound
	default:
		return true
	}
}
