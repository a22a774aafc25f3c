package circuit

import (
	"sync"
	"time"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/congestion"
	"github.com/go-i2p/go-circuit/lib/relay"
)

// Hop is the circuit state kept for one relay of the path.
type Hop struct {
	num relay.HopNum
	cc  *congestion.Controller

	// Channels of the hop's stream reactor.
	in   chan relay.Msg
	ctl  chan streamCtl
	wake chan struct{}
}

func newHop(num relay.HopNum, cc *congestion.Controller) *Hop {
	return &Hop{
		num:  num,
		cc:   cc,
		in:   make(chan relay.Msg),
		ctl:  make(chan streamCtl),
		wake: make(chan struct{}, 1),
	}
}

// Num returns the position of the hop in the circuit.
func (h *Hop) Num() relay.HopNum { return h.num }

func (h *Hop) poke() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// HopList is the mutex-guarded list of hops shared by the forward reactor,
// the backward reactor and the stream reactors. Every method holds the lock
// for one short, non-blocking critical section.
type HopList struct {
	mu   sync.Mutex
	hops []*Hop

	// The lowest hop blocked by padding. Data for it and every later hop
	// is held back.
	blocking bool
	blockHop relay.HopNum
}

// NewHopList returns an empty list.
func NewHopList() *HopList {
	return &HopList{}
}

// Len returns the number of hops.
func (l *HopList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hops)
}

func (l *HopList) add(h *Hop) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if int(h.num) != len(l.hops) {
		return circerr.Bugf("circuit", "adding %s to a %d hop list", h.num, len(l.hops))
	}
	l.hops = append(l.hops, h)
	return nil
}

func (l *HopList) lookup(hop relay.HopNum) (*Hop, error) {
	if int(hop) >= len(l.hops) {
		return nil, circerr.Bugf("circuit", "no %s on a %d hop circuit", hop, len(l.hops))
	}
	return l.hops[hop], nil
}

// Get returns hop.
func (l *HopList) Get(hop relay.HopNum) (*Hop, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lookup(hop)
}

func (l *HopList) withController(hop relay.HopNum, f func(cc *congestion.Controller) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, err := l.lookup(hop)
	if err != nil {
		return err
	}
	return f(h.cc)
}

// canSendData reports whether a DATA cell may go to hop now: its congestion
// window has room and padding does not block it.
func (l *HopList) canSendData(hop relay.HopNum) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, err := l.lookup(hop)
	if err != nil {
		return false
	}
	if l.blocking && hop >= l.blockHop {
		return false
	}
	return h.cc.CanSend()
}

// claimData accounts one DATA cell to hop and reports whether the peer will
// answer it with a SENDME. It fails with ErrWouldBlock when padding blocks
// the hop or its congestion window is full, leaving the window untouched.
func (l *HopList) claimData(hop relay.HopNum) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, err := l.lookup(hop)
	if err != nil {
		return false, err
	}
	if l.blocking && hop >= l.blockHop {
		return false, circerr.WouldBlockf("circuit", "data to %s is blocked by padding", hop)
	}
	if !h.cc.CanSend() {
		return false, circerr.WouldBlockf("circuit", "congestion window of %s is full", hop)
	}
	point := h.cc.IsNextCellSendme()
	h.cc.NoteDataSent()
	return point, nil
}

func (l *HopList) noteSendmePoint(hop relay.HopNum, now time.Time, tag []byte) error {
	return l.withController(hop, func(cc *congestion.Controller) error {
		cc.NoteSendmePoint(now, tag)
		return nil
	})
}

func (l *HopList) handleSendme(hop relay.HopNum, now time.Time, tag []byte, sig congestion.Signals) (congestion.Snapshot, error) {
	var snap congestion.Snapshot
	err := l.withController(hop, func(cc *congestion.Controller) error {
		if err := cc.HandleSendme(now, tag, sig); err != nil {
			return err
		}
		snap = cc.Snapshot()
		return nil
	})
	return snap, err
}

// noteDataReceived reports whether a circuit SENDME is owed to hop after
// one more DATA cell from it.
func (l *HopList) noteDataReceived(hop relay.HopNum) (bool, error) {
	var owed bool
	err := l.withController(hop, func(cc *congestion.Controller) error {
		owed = cc.NoteDataReceived()
		return nil
	})
	return owed, err
}

func (l *HopList) usesStreamSendme(hop relay.HopNum) bool {
	var sendme bool
	_ = l.withController(hop, func(cc *congestion.Controller) error {
		sendme = cc.UsesStreamSendme()
		return nil
	})
	return sendme
}

// Snapshot returns the congestion state of hop.
func (l *HopList) Snapshot(hop relay.HopNum) (congestion.Snapshot, error) {
	var snap congestion.Snapshot
	err := l.withController(hop, func(cc *congestion.Controller) error {
		snap = cc.Snapshot()
		return nil
	})
	return snap, err
}

// setBlocking records the padding blocking boundary and reports whether it
// moved.
func (l *HopList) setBlocking(hop relay.HopNum, blocking bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !blocking {
		hop = 0
	}
	changed := l.blocking != blocking || l.blockHop != hop
	l.blocking, l.blockHop = blocking, hop
	return changed
}

func (l *HopList) wake(hop relay.HopNum) {
	if h, err := l.Get(hop); err == nil {
		h.poke()
	}
}

func (l *HopList) wakeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, h := range l.hops {
		h.poke()
	}
}
