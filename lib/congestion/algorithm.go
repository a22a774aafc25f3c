package congestion

// Algorithm is a congestion control algorithm for one hop.
type Algorithm interface {
	// UsesStreamSendme reports whether streams on this hop keep SENDME windows.
	UsesStreamSendme() bool

	// UsesXonXoff reports whether streams on this hop use XON/XOFF.
	UsesXonXoff() bool

	// CanSend reports whether another DATA cell may leave now.
	CanSend() bool

	// IsNextCellSendme reports whether the next DATA cell sent will be one
	// the peer acknowledges with a SENDME.
	IsNextCellSendme() bool

	// OnDataSent accounts for one DATA cell sent.
	OnDataSent()

	// OnSendmeReceived applies one SENDME. The RTT estimator has already
	// consumed the sample belonging to it.
	OnSendmeReceived(state *State, rtt *RTTEstimator, sig Signals) error

	// Inflight returns the number of unacknowledged DATA cells.
	Inflight() uint32

	// Cwnd returns the congestion window, or nil if the algorithm has none.
	Cwnd() *CongestionWindow
}

// sendmeCadence counts DATA cells toward the next SENDME point. It is kept
// apart from the in-flight count so that SENDME points stay evenly spaced
// even while the window shrinks under cells already in flight.
type sendmeCadence struct {
	every uint32
	count uint32
}

func (c *sendmeCadence) next() bool {
	return c.count+1 == c.every
}

func (c *sendmeCadence) sent() {
	c.count++
	if c.count == c.every {
		c.count = 0
	}
}
