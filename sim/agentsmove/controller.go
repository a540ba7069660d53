// Package agentsmove implements the controller that balances agents between
// inbound and outbound work from a sliding window of service levels.
//
// Once per checked period the controller appends the global service level of
// the period just completed, keeps the last P_D samples, and recomputes two
// routing flags from the window mean SL:
//
//	SL < s1       → outboundToInbound = true,  inboundToOutbound = false
//	SL > s2       → outboundToInbound = false, inboundToOutbound = true
//	s1 ≤ SL ≤ s2  → both false
//
// The flags are not latched across periods; any lag comes from the window.
package agentsmove

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/contactsim/contactsim/sim/window"
)

// Config holds the controller thresholds and window length.
type Config struct {
	LowThreshold  float64 // s1
	HighThreshold float64 // s2
	Periods       int     // P_D
}

// Controller is the agents-move state machine. One instance per replication.
type Controller struct {
	cfg    Config
	window *window.Window

	outboundToInbound bool
	inboundToOutbound bool
	lastMean          float64
}

// NewController validates cfg and returns a controller with both flags off
// and an empty window.
func NewController(cfg Config) (*Controller, error) {
	if cfg.LowThreshold > cfg.HighThreshold {
		return nil, fmt.Errorf("agents-move thresholds: s1=%g must not exceed s2=%g", cfg.LowThreshold, cfg.HighThreshold)
	}
	w, err := window.New(cfg.Periods)
	if err != nil {
		return nil, fmt.Errorf("agents-move window: %w", err)
	}
	return &Controller{cfg: cfg, window: w}, nil
}

// Observe feeds the service level of the checked period just completed and
// recomputes the routing flags. Returns true when either flag changed.
func (c *Controller) Observe(serviceLevel float64) bool {
	c.window.Push(window.Sample{Num: serviceLevel, Den: 1})
	mean, _ := c.window.MeanRatio()
	c.lastMean = mean

	prevOI, prevIO := c.outboundToInbound, c.inboundToOutbound
	switch {
	case mean < c.cfg.LowThreshold:
		c.outboundToInbound, c.inboundToOutbound = true, false
	case mean > c.cfg.HighThreshold:
		c.outboundToInbound, c.inboundToOutbound = false, true
	default:
		c.outboundToInbound, c.inboundToOutbound = false, false
	}

	changed := prevOI != c.outboundToInbound || prevIO != c.inboundToOutbound
	if changed {
		logrus.Debugf("agents-move: window SL=%.4f over %d periods -> outboundToInbound=%v inboundToOutbound=%v",
			mean, c.window.Len(), c.outboundToInbound, c.inboundToOutbound)
	}
	return changed
}

// RoutingFlags returns the flags read by agent-group assignment.
func (c *Controller) RoutingFlags() (outboundToInbound, inboundToOutbound bool) {
	return c.outboundToInbound, c.inboundToOutbound
}

// MeanServiceLevel returns the window mean computed by the last Observe call
// (0 before the first).
func (c *Controller) MeanServiceLevel() float64 { return c.lastMean }

// Len returns the number of samples in the window.
func (c *Controller) Len() int { return c.window.Len() }

// Config returns the controller configuration.
func (c *Controller) Config() Config { return c.cfg }
