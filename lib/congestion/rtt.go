package congestion

import (
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/go-i2p/go-circuit/lib/circerr"
)

// clockJumpRatio is how far apart two consecutive raw RTT samples may be
// before the monotonic clock is considered to have jumped.
const clockJumpRatio = 5000

// RTTEstimator keeps the N-EWMA and minimum round trip time of a hop.
// Samples come from the time between sending a SENDME-point DATA cell and
// receiving the SENDME that acknowledges it.
type RTTEstimator struct {
	params RTTParams

	// sendmeExpectedFrom holds the send time (time.Time) of every
	// outstanding SENDME point, oldest first.
	sendmeExpectedFrom *linkedlistqueue.Queue

	lastRTT time.Duration
	ewmaRTT time.Duration
	minRTT  time.Duration
	maxRTT  time.Duration

	clockStalled bool
}

// NewRTTEstimator returns an estimator with no samples.
func NewRTTEstimator(params RTTParams) *RTTEstimator {
	return &RTTEstimator{
		params:             params,
		sendmeExpectedFrom: linkedlistqueue.New(),
	}
}

// ExpectSendme records that a SENDME point was sent at now.
func (r *RTTEstimator) ExpectSendme(now time.Time) {
	r.sendmeExpectedFrom.Enqueue(now)
}

// Outstanding returns the number of SENDMEs still expected.
func (r *RTTEstimator) Outstanding() int {
	return r.sendmeExpectedFrom.Size()
}

// Update consumes the oldest expected SENDME and folds the resulting sample
// into the estimates. cwnd may be nil for algorithms without a window; the
// EWMA then uses its steady-state cap.
func (r *RTTEstimator) Update(now time.Time, state State, cwnd *CongestionWindow) error {
	v, ok := r.sendmeExpectedFrom.Dequeue()
	if !ok {
		return circerr.Protocolf("congestion", "SENDME received with no SENDME point outstanding")
	}
	sentAt, ok := v.(time.Time)
	if !ok {
		return circerr.Bugf("congestion", "RTT queue holds %T", v)
	}

	raw := now.Sub(sentAt)
	if raw < 0 {
		raw = 0
	}
	if r.isClockStalled(raw) {
		return nil
	}

	if raw > r.maxRTT {
		r.maxRTT = raw
	}
	r.lastRTT = raw

	n := r.ewmaN(state, cwnd)
	r.ewmaRTT = nEWMA(r.ewmaRTT, raw, n)

	switch {
	case r.minRTT == 0:
		r.minRTT = r.ewmaRTT
	case cwnd != nil && cwnd.Get() == cwnd.Min() && !state.InSlowStart():
		// Stuck at the floor: our min RTT may be stale, pull it toward the EWMA.
		lo, hi := r.minRTT, r.ewmaRTT
		if lo > hi {
			lo, hi = hi, lo
		}
		r.minRTT = lo + (hi-lo)*time.Duration(r.params.ResetPct)/100
	case r.ewmaRTT < r.minRTT:
		r.minRTT = r.ewmaRTT
	}
	return nil
}

// isClockStalled decides whether raw is usable and records the verdict. A
// zero sample means the clock did not advance; a sample wildly out of
// proportion with the previous one means it jumped.
func (r *RTTEstimator) isClockStalled(raw time.Duration) bool {
	switch {
	case raw == 0:
		r.clockStalled = true
	case r.lastRTT == 0:
		r.clockStalled = false
	case r.lastRTT > raw*clockJumpRatio || raw > r.lastRTT*clockJumpRatio:
		r.clockStalled = true
	default:
		r.clockStalled = false
	}
	return r.clockStalled
}

func (r *RTTEstimator) ewmaN(state State, cwnd *CongestionWindow) uint32 {
	var n uint32
	switch {
	case state.InSlowStart():
		n = r.params.EWMASlowStartMax
	case cwnd == nil:
		n = r.params.EWMAMax
	default:
		n = cwnd.UpdateRate(state) * r.params.EWMACwndPct / 100
		if n > r.params.EWMAMax {
			n = r.params.EWMAMax
		}
	}
	if n < 2 {
		n = 2
	}
	return n
}

// nEWMA is the N-EWMA smoothing from proposal 324: 2/(N+1) weight for the
// new sample.
func nEWMA(prev, cur time.Duration, n uint32) time.Duration {
	if prev == 0 {
		return cur
	}
	return (2*cur + time.Duration(n-1)*prev) / time.Duration(n+1)
}

// ClockStalled reports whether the last sample was rejected as a clock stall
// or jump.
func (r *RTTEstimator) ClockStalled() bool { return r.clockStalled }

// EWMA returns the smoothed RTT, zero before the first sample.
func (r *RTTEstimator) EWMA() time.Duration { return r.ewmaRTT }

// Min returns the minimum RTT, zero before the first sample.
func (r *RTTEstimator) Min() time.Duration { return r.minRTT }

// Max returns the largest accepted sample.
func (r *RTTEstimator) Max() time.Duration { return r.maxRTT }

// Last returns the last accepted sample.
func (r *RTTEstimator) Last() time.Duration { return r.lastRTT }
