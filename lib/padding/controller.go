package padding

import (
	"time"

	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/logger"
)

// EventKind is something the circuit must do on behalf of a padding machine.
type EventKind int

const (
	// EventSendPadding asks for a padding cell to Hop. With Replace, a data
	// cell already queued for Hop may be sent instead; with Bypass, the
	// cell may cross an active block.
	EventSendPadding EventKind = iota
	// EventStartBlocking stops data to Hop and beyond.
	EventStartBlocking
	// EventStopBlocking lifts the block set by Hop.
	EventStopBlocking
)

// Event is one padding instruction for the circuit.
type Event struct {
	Kind       EventKind
	Hop        relay.HopNum
	Replace    bool
	Bypass     bool
	Bypassable bool
}

// Controller holds the padding backends of every hop of a circuit. It is
// driven by a single goroutine.
type Controller struct {
	backends   [relay.MaxHops]Backend
	blocking   Bits
	bypassable Bits
	timer      *Timer
}

// NewController returns a controller with no backends.
func NewController() *Controller {
	return &Controller{timer: NewTimer()}
}

// SetBackend installs b for hop, or removes the hop's backend when b is nil.
// Removing a backend lifts any block it held.
func (c *Controller) SetBackend(now time.Time, hop relay.HopNum, b Backend) {
	c.backends[hop] = b
	if b == nil {
		c.blocking.Clear(hop)
		c.bypassable.Clear(hop)
	}
	log.WithFields(logger.Fields{
		"at":      "Controller.SetBackend",
		"reason":  "backend_changed",
		"hop":     hop.String(),
		"enabled": b != nil,
	}).Debug("padding backend updated")
	c.rearm()
}

// HasBackend reports whether hop runs padding.
func (c *Controller) HasBackend(hop relay.HopNum) bool {
	return c.backends[hop] != nil
}

// ReportSent reports a data cell sent to hop. Every hop up to and including
// it sees normal traffic.
func (c *Controller) ReportSent(now time.Time, hop relay.HopNum) {
	c.reportUpTo(now, hop, NormalSent, NormalSent)
}

// ReportReceived reports a data cell received from hop.
func (c *Controller) ReportReceived(now time.Time, hop relay.HopNum) {
	c.reportUpTo(now, hop, NormalRecv, NormalRecv)
}

// ReportPaddingSent reports a padding cell sent to hop. Hops before it
// relay an ordinary cell.
func (c *Controller) ReportPaddingSent(now time.Time, hop relay.HopNum) {
	c.reportUpTo(now, hop, NormalSent, PaddingSent)
}

// ReportPaddingReceived reports a padding cell received from hop.
func (c *Controller) ReportPaddingReceived(now time.Time, hop relay.HopNum) {
	c.reportUpTo(now, hop, NormalRecv, PaddingRecv)
}

// ReportPaddingReplaced reports that a data cell to hop took the place of a
// padding cell: normal traffic for every hop, and padding for hop itself.
func (c *Controller) ReportPaddingReplaced(now time.Time, hop relay.HopNum) {
	c.ReportSent(now, hop)
	if b := c.backends[hop]; b != nil {
		b.ReportEvents(now, []TriggerEvent{Broadcast(PaddingSent)})
	}
	c.rearm()
}

func (c *Controller) reportUpTo(now time.Time, hop relay.HopNum, lower, target TriggerKind) {
	for h := relay.HopNum(0); h <= hop && h.Valid(); h++ {
		b := c.backends[h]
		if b == nil {
			continue
		}
		kind := lower
		if h == hop {
			kind = target
		}
		b.ReportEvents(now, []TriggerEvent{Broadcast(kind)})
	}
	c.rearm()
}

// Next collects the actions due by now from every backend, updates the
// blocking state and rearms the timer.
func (c *Controller) Next(now time.Time) []Event {
	var out []Event
	for i, b := range c.backends {
		if b == nil {
			continue
		}
		hop := relay.HopNum(i)
		for _, a := range b.TakeDueActions(now) {
			switch a.Kind {
			case SendPadding:
				out = append(out, Event{Kind: EventSendPadding, Hop: hop, Replace: a.Replace, Bypass: a.Bypass})
			case StartBlocking:
				// A hop stays bypassable only while every block on it is.
				strict := c.blocking.Has(hop) && !c.bypassable.Has(hop)
				c.blocking.Set(hop)
				if a.Bypass && !strict {
					c.bypassable.Set(hop)
				} else {
					c.bypassable.Clear(hop)
				}
				out = append(out, Event{Kind: EventStartBlocking, Hop: hop, Bypassable: c.bypassable.Has(hop)})
			case StopBlocking:
				c.blocking.Clear(hop)
				c.bypassable.Clear(hop)
				out = append(out, Event{Kind: EventStopBlocking, Hop: hop})
			}
		}
	}
	c.timer.SetRead()
	c.rearm()
	return out
}

// Timer returns the merged wakeup timer. Call Next when it fires.
func (c *Controller) Timer() *Timer { return c.timer }

// BlockingBoundary returns the lowest blocked hop and whether that block
// can be bypassed. ok is false when no hop is blocking.
func (c *Controller) BlockingBoundary() (hop relay.HopNum, bypassable, ok bool) {
	hop, ok = c.blocking.Lowest()
	if !ok {
		return 0, false, false
	}
	return hop, c.bypassable.Has(hop), true
}

// Blocked reports whether a cell to hop is held back by a block. Bypass
// cells cross bypassable blocks.
func (c *Controller) Blocked(hop relay.HopNum, bypass bool) bool {
	boundary, bypassable, ok := c.BlockingBoundary()
	if !ok || hop < boundary {
		return false
	}
	return !(bypass && bypassable)
}

func (c *Controller) rearm() {
	var earliest time.Time
	for _, b := range c.backends {
		if b == nil {
			continue
		}
		if t := b.NextWakeup(); !t.IsZero() && (earliest.IsZero() || t.Before(earliest)) {
			earliest = t
		}
	}
	c.timer.Reset(earliest)
}
