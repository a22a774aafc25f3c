package congestion

// State is the phase of a congestion control algorithm. The transition is
// one-way: once Steady, an algorithm never returns to SlowStart.
type State int

const (
	SlowStart State = iota
	Steady
)

// InSlowStart reports whether s is SlowStart.
func (s State) InSlowStart() bool {
	return s == SlowStart
}

func (s State) String() string {
	if s == SlowStart {
		return "slow_start"
	}
	return "steady"
}

// Signals are the congestion signals observed on the outbound channel when
// a SENDME is processed.
type Signals struct {
	// ChannelBlocked is set when the link to the next hop refuses more cells.
	ChannelBlocked bool

	// OutboundQueueLen is the number of cells waiting on that link.
	OutboundQueueLen uint32
}
