package congestion

import (
	"time"

	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Controller is the congestion control state of one hop: the algorithm, the
// RTT estimator feeding it, SENDME authentication, and the receive side
// SENDME cadence.
type Controller struct {
	kind  config.Algorithm
	algo  Algorithm
	state State
	rtt   *RTTEstimator
	tags  *sendmeValidator

	recvSendmeEvery uint32
	recvCount       uint32
}

// NewController builds the controller selected by cfg.Algorithm. onion picks
// the onion service Vegas thresholds.
func NewController(cfg config.CongestionDefaults, onion bool) *Controller {
	c := &Controller{
		kind:  cfg.Algorithm,
		state: SlowStart,
		rtt:   NewRTTEstimator(RTTParamsFromConfig(cfg.RTT)),
		tags:  newSendmeValidator(),
	}
	switch cfg.Algorithm {
	case config.AlgorithmFixedWindow:
		c.algo = NewFixedWindow(cfg.Fixed.CircWindowStart, cfg.Fixed.CircWindowInc)
		c.recvSendmeEvery = cfg.Fixed.CircWindowInc
	default:
		c.kind = config.AlgorithmVegas
		c.algo = NewVegas(VegasParamsFromConfig(cfg, onion), CwndParamsFromConfig(cfg.Cwnd))
		c.recvSendmeEvery = cfg.Cwnd.SendmeInc
	}
	return c
}

// Algorithm returns the underlying algorithm.
func (c *Controller) Algorithm() Algorithm { return c.algo }

// State returns the algorithm phase.
func (c *Controller) State() State { return c.state }

// UsesXonXoff reports whether streams on this hop use XON/XOFF.
func (c *Controller) UsesXonXoff() bool { return c.algo.UsesXonXoff() }

// UsesStreamSendme reports whether streams on this hop keep SENDME windows.
func (c *Controller) UsesStreamSendme() bool { return c.algo.UsesStreamSendme() }

// CanSend reports whether another DATA cell may leave now.
func (c *Controller) CanSend() bool { return c.algo.CanSend() }

// IsNextCellSendme reports whether the next DATA cell is a SENDME point.
func (c *Controller) IsNextCellSendme() bool { return c.algo.IsNextCellSendme() }

// NoteDataSent accounts for one DATA cell handed to the sender.
func (c *Controller) NoteDataSent() { c.algo.OnDataSent() }

// NoteSendmePoint records the send time and authentication tag of a DATA
// cell that IsNextCellSendme flagged.
func (c *Controller) NoteSendmePoint(now time.Time, tag []byte) {
	c.rtt.ExpectSendme(now)
	c.tags.record(tag)
}

// HandleSendme applies a circuit-level SENDME received at now.
func (c *Controller) HandleSendme(now time.Time, tag []byte, sig Signals) error {
	if err := c.tags.validate(tag); err != nil {
		return err
	}
	if err := c.rtt.Update(now, c.state, c.algo.Cwnd()); err != nil {
		return err
	}
	before := c.state
	if err := c.algo.OnSendmeReceived(&c.state, c.rtt, sig); err != nil {
		return err
	}
	if before != c.state {
		log.WithFields(logger.Fields{
			"at":     "Controller.HandleSendme",
			"reason": "state_transition",
			"from":   before.String(),
			"to":     c.state.String(),
		}).Debug("congestion state changed")
	}
	return nil
}

// NoteDataReceived accounts for one DATA cell received from the hop and
// reports whether a SENDME is now owed to it.
func (c *Controller) NoteDataReceived() bool {
	c.recvCount++
	if c.recvCount < c.recvSendmeEvery {
		return false
	}
	c.recvCount = 0
	return true
}

// Snapshot is a read-only view of a controller for metrics and queries.
type Snapshot struct {
	Algorithm    config.Algorithm
	State        State
	Cwnd         uint32
	Inflight     uint32
	Full         bool
	BDP          uint32
	EWMARTT      time.Duration
	MinRTT       time.Duration
	ClockStalled bool
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		Algorithm:    c.kind,
		State:        c.state,
		Inflight:     c.algo.Inflight(),
		EWMARTT:      c.rtt.EWMA(),
		MinRTT:       c.rtt.Min(),
		ClockStalled: c.rtt.ClockStalled(),
	}
	if w := c.algo.Cwnd(); w != nil {
		s.Cwnd = w.Get()
		s.Full = w.IsFull()
	}
	if v, ok := c.algo.(*Vegas); ok {
		s.BDP = v.BDP()
	}
	return s
}
