package congestion

import (
	"github.com/go-i2p/logger"
)

// Vegas is the delay-based congestion control algorithm of proposal 324.
//
// In slow start the window grows by one SENDME increment per SENDME while
// the estimated queue stays below gamma; any congestion signal clamps the
// window to bdp+gamma and moves to steady state for good. In steady state the
// window moves at most once per update interval, down when the queue exceeds
// beta (or the channel is blocked), sharply down when it exceeds delta, and up
// when the window is full and the queue is below alpha.
type Vegas struct {
	params VegasParams
	cwnd   *CongestionWindow
	bdp    BDPEstimator

	inflight uint32
	cadence  sendmeCadence

	// sendmeUntilUpdate counts down the SENDMEs left before the next
	// steady-state window update.
	sendmeUntilUpdate uint32

	// sendmePerCwnd counts SENDMEs since the full flag was last reset.
	sendmePerCwnd uint32
}

// NewVegas returns a Vegas instance in slow start.
func NewVegas(params VegasParams, cwnd CwndParams) *Vegas {
	w := NewCongestionWindow(cwnd)
	return &Vegas{
		params:            params,
		cwnd:              w,
		cadence:           sendmeCadence{every: cwnd.SendmeInc},
		sendmeUntilUpdate: w.UpdateRate(SlowStart),
	}
}

func (v *Vegas) UsesStreamSendme() bool { return false }

func (v *Vegas) UsesXonXoff() bool { return true }

func (v *Vegas) CanSend() bool { return v.inflight < v.cwnd.Get() }

func (v *Vegas) IsNextCellSendme() bool { return v.cadence.next() }

func (v *Vegas) OnDataSent() {
	v.inflight++
	v.cadence.sent()
}

func (v *Vegas) Inflight() uint32 { return v.inflight }

func (v *Vegas) Cwnd() *CongestionWindow { return v.cwnd }

// BDP returns the last bandwidth-delay product estimate.
func (v *Vegas) BDP() uint32 { return v.bdp.Get() }

// OnSendmeReceived runs one Vegas update.
func (v *Vegas) OnSendmeReceived(state *State, rtt *RTTEstimator, sig Signals) error {
	if v.sendmeUntilUpdate > 0 {
		v.sendmeUntilUpdate--
	}
	v.sendmePerCwnd++

	v.bdp.Update(v.cwnd, rtt, sig)
	v.cwnd.EvalFullness(v.inflight)

	queueUse := uint32(0)
	if v.cwnd.Get() > v.bdp.Get() {
		queueUse = v.cwnd.Get() - v.bdp.Get()
	}

	if state.InSlowStart() {
		v.slowStart(state, queueUse, sig)
	} else if v.sendmeUntilUpdate == 0 {
		v.steady(queueUse, sig)
	}

	if v.sendmeUntilUpdate == 0 {
		v.sendmeUntilUpdate = v.cwnd.UpdateRate(*state)
	}
	if v.sendmePerCwnd >= v.cwnd.SendmePerCwnd() {
		v.sendmePerCwnd = 0
		v.cwnd.ResetFull()
	}

	if v.inflight > v.cwnd.SendmeInc() {
		v.inflight -= v.cwnd.SendmeInc()
	} else {
		v.inflight = 0
	}
	return nil
}

func (v *Vegas) slowStart(state *State, queueUse uint32, sig Signals) {
	if queueUse < v.params.Gamma && !sig.ChannelBlocked {
		if v.cwnd.IsFull() {
			inc := v.cwnd.RFC3742SlowStartInc(v.params.SlowStartCap)
			// Growth weaker than steady state: nothing left to gain here.
			if uint64(inc)*uint64(v.cwnd.SendmePerCwnd()) <= uint64(v.cwnd.Increment())*uint64(v.cwnd.IncrementRate()) {
				v.exitSlowStart(state, "slow_start_increment_exhausted")
			}
		}
	} else {
		v.cwnd.Set(uint32(min(uint64(v.bdp.Get())+uint64(v.params.Gamma), uint64(^uint32(0)))))
		v.exitSlowStart(state, "congestion_signal")
	}

	if v.cwnd.Get() >= v.params.SlowStartMax {
		v.cwnd.Set(v.params.SlowStartMax)
		v.exitSlowStart(state, "slow_start_max_reached")
	}
}

func (v *Vegas) steady(queueUse uint32, sig Signals) {
	switch {
	case queueUse > v.params.Delta:
		target := uint64(v.bdp.Get()) + uint64(v.params.Delta)
		if target > uint64(v.cwnd.Increment()) {
			target -= uint64(v.cwnd.Increment())
		} else {
			target = 0
		}
		v.cwnd.Set(uint32(min(target, uint64(^uint32(0)))))
	case queueUse > v.params.Beta || sig.ChannelBlocked:
		v.cwnd.Dec()
	case v.cwnd.IsFull() && queueUse < v.params.Alpha:
		v.cwnd.Inc()
	}
}

func (v *Vegas) exitSlowStart(state *State, reason string) {
	if !state.InSlowStart() {
		return
	}
	*state = Steady
	log.WithFields(logger.Fields{
		"at":     "Vegas.exitSlowStart",
		"reason": reason,
		"cwnd":   v.cwnd.Get(),
		"bdp":    v.bdp.Get(),
	}).Debug("congestion control left slow start")
}
