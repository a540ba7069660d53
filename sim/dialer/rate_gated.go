package dialer

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// RateGated implements DIALFREE_BADCALLMISMATCHRATES: the parametrized rule,
// doubled while the mismatch rate is low, and suppressed while the bad-call
// rate is high.
type RateGated struct {
	kappa             float64
	c                 int
	badCallThreshold  float64
	mismatchThreshold float64
}

// NewRateGated creates a rate-gated policy.
func NewRateGated(kappa float64, c int, badCallThreshold, mismatchThreshold float64) (*RateGated, error) {
	if err := validateParams(kappa, c); err != nil {
		return nil, err
	}
	// a zero threshold would suppress every dial, since rates are never negative
	if badCallThreshold <= 0 || badCallThreshold > 1 {
		return nil, fmt.Errorf("bad-call rate threshold must be in (0,1], got %g", badCallThreshold)
	}
	if mismatchThreshold < 0 || mismatchThreshold > 1 {
		return nil, fmt.Errorf("mismatch rate threshold must be in [0,1], got %g", mismatchThreshold)
	}
	return &RateGated{
		kappa:             kappa,
		c:                 c,
		badCallThreshold:  badCallThreshold,
		mismatchThreshold: mismatchThreshold,
	}, nil
}

func (p *RateGated) Kind() PolicyKind { return DialFreeBadCallMismatchRates }

// Thresholds returns the bad-call and mismatch rate thresholds.
func (p *RateGated) Thresholds() (badCall, mismatch float64) {
	return p.badCallThreshold, p.mismatchThreshold
}

// Decide implements Policy. A nil RateSource reads as zero rates.
func (p *RateGated) Decide(ctx DecisionContext, callType int) int {
	if !ctx.FreeAgentCondition() {
		return 0
	}
	var badCall, mismatch float64
	if ctx.Rates != nil {
		badCall = ctx.Rates.BadCallRate()
		mismatch = ctx.Rates.MismatchRate(callType)
	}
	if badCall >= p.badCallThreshold {
		logrus.Debugf("[tick %07d] dialer type %d: bad-call rate %.4f >= %.4f, not dialing",
			ctx.Clock, callType, badCall, p.badCallThreshold)
		return 0
	}
	d := dialCount(p.kappa, p.c, ctx.TargetFree)
	if mismatch < p.mismatchThreshold {
		return 2 * d
	}
	return d
}
