package congestion

import "math"

// BDPEstimator estimates the bandwidth-delay product of a hop, in cells.
type BDPEstimator struct {
	bdp uint32
}

// Get returns the last estimate.
func (b *BDPEstimator) Get() uint32 { return b.bdp }

// Update recomputes the estimate. With a usable RTT the estimate is
// cwnd * minRTT / ewmaRTT. With a stalled clock the RTTs are meaningless, so
// the estimate falls back to the window itself, less whatever sits in the
// outbound queue when the channel is blocked. The arithmetic saturates; it
// may over or underestimate but never overflows.
func (b *BDPEstimator) Update(cwnd *CongestionWindow, rtt *RTTEstimator, sig Signals) {
	if rtt.ClockStalled() {
		if sig.ChannelBlocked {
			v := uint32(0)
			if cwnd.Get() > sig.OutboundQueueLen {
				v = cwnd.Get() - sig.OutboundQueueLen
			}
			if v < cwnd.Min() {
				v = cwnd.Min()
			}
			b.bdp = v
		} else {
			b.bdp = cwnd.Get()
		}
		return
	}

	minUsec := uint64(math.MaxUint32)
	ewmaUsec := uint64(math.MaxUint32)
	if rtt.Min() > 0 && rtt.EWMA() > 0 {
		minUsec = uint64(rtt.Min().Microseconds())
		ewmaUsec = uint64(rtt.EWMA().Microseconds())
	}
	if ewmaUsec == 0 {
		b.bdp = cwnd.Get()
		return
	}
	v := uint64(cwnd.Get()) * minUsec / ewmaUsec
	if v > math.MaxUint32 {
		v = math.MaxUint32
	}
	b.bdp = uint32(v)
}
