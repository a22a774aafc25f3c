package streams

import (
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/flowctrl"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// OpenEntry is an open stream.
type OpenEntry struct {
	// Outbound holds messages waiting to be sent to the peer.
	Outbound *Queue
	// Inbound receives messages from the peer for the stream's user.
	Inbound *Queue
	// Flow gates outbound DATA.
	Flow    *flowctrl.Stream
	Checker CmdChecker

	dropped  uint32
	priority uint64
}

// Dropped returns the number of DATA cells discarded because nobody was
// reading the stream any more.
func (e *OpenEntry) Dropped() uint32 { return e.dropped }

// ClosedKind tells which side closed a stream first.
type ClosedKind int

const (
	// EndReceived: the peer sent END; we are waiting for the local side to
	// let go of the stream.
	EndReceived ClosedKind = iota
	// EndSent: we sent END; the half-stream checks traffic until the
	// peer's END.
	EndSent
)

// ClosedEntry is a stream that one side has ended.
type ClosedEntry struct {
	Kind ClosedKind
	Half *HalfStream
}

// Entry is the result of a lookup: exactly one of Open and Closed is set.
type Entry struct {
	Open   *OpenEntry
	Closed *ClosedEntry
}

// Found reports whether the lookup hit anything.
func (e Entry) Found() bool { return e.Open != nil || e.Closed != nil }

// TerminateReason says why a stream is being terminated locally.
type TerminateReason int

const (
	// StreamTargetClosed: the local user dropped the stream.
	StreamTargetClosed TerminateReason = iota
	// ExplicitEnd: the local user asked for an END to be sent.
	ExplicitEnd
)

func (r TerminateReason) String() string {
	if r == ExplicitEnd {
		return "explicit_end"
	}
	return "stream_target_closed"
}

// readyKey orders streams by priority stamp, then id.
type readyKey struct {
	priority uint64
	id       relay.StreamID
}

func readyKeyComparator(a, b interface{}) int {
	ka, kb := a.(readyKey), b.(readyKey)
	switch {
	case ka.priority < kb.priority:
		return -1
	case ka.priority > kb.priority:
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	}
	return 0
}

// Map is the stream table of one hop. It is owned by a single goroutine.
type Map struct {
	open   map[relay.StreamID]*OpenEntry
	closed map[relay.StreamID]*ClosedEntry

	// order holds every open stream keyed by readyKey.
	order        *redblacktree.Tree
	nextPriority uint64

	probeAttempts int
}

// NewMap returns an empty table.
func NewMap(cfg config.ReactorDefaults) *Map {
	return &Map{
		open:          make(map[relay.StreamID]*OpenEntry),
		closed:        make(map[relay.StreamID]*ClosedEntry),
		order:         redblacktree.NewWith(readyKeyComparator),
		probeAttempts: cfg.StreamIDProbeAttempts,
	}
}

// Len returns the number of streams in the table, open or closed.
func (m *Map) Len() int { return len(m.open) + len(m.closed) }

// OpenLen returns the number of open streams.
func (m *Map) OpenLen() int { return len(m.open) }

func (m *Map) inUse(id relay.StreamID) bool {
	_, o := m.open[id]
	_, c := m.closed[id]
	return o || c
}

// AddEntry allocates an id for e and inserts it. The search starts at a
// random id and probes upward, wrapping past 65535 and skipping 0.
func (m *Map) AddEntry(e *OpenEntry) (relay.StreamID, error) {
	id := relay.StreamID(rand.Intn(0xFFFF) + 1)
	for i := 0; i < m.probeAttempts; i++ {
		if !m.inUse(id) {
			m.insert(id, e)
			return id, nil
		}
		id++
		if id == 0 {
			id = 1
		}
	}
	log.WithFields(logger.Fields{
		"at":       "Map.AddEntry",
		"reason":   "stream_ids_exhausted",
		"open":     len(m.open),
		"closed":   len(m.closed),
		"attempts": m.probeAttempts,
	}).Warn("no free stream id")
	return 0, circerr.Exhaustedf("streams", "no free stream id after %d attempts", m.probeAttempts)
}

// AddEntryWithID inserts e under a caller-chosen id.
func (m *Map) AddEntryWithID(id relay.StreamID, e *OpenEntry) error {
	if id.IsZero() {
		return circerr.Bugf("streams", "stream id 0 addresses the circuit")
	}
	if m.inUse(id) {
		return circerr.Protocolf("streams", "stream id %s already in use", id)
	}
	m.insert(id, e)
	return nil
}

func (m *Map) insert(id relay.StreamID, e *OpenEntry) {
	e.priority = m.stamp()
	m.open[id] = e
	m.order.Put(readyKey{e.priority, id}, id)
}

func (m *Map) stamp() uint64 {
	p := m.nextPriority
	m.nextPriority++
	return p
}

// Get looks id up.
func (m *Map) Get(id relay.StreamID) Entry {
	if e, ok := m.open[id]; ok {
		return Entry{Open: e}
	}
	if c, ok := m.closed[id]; ok {
		return Entry{Closed: c}
	}
	return Entry{}
}

func (m *Map) removeOpen(id relay.StreamID) *OpenEntry {
	e, ok := m.open[id]
	if !ok {
		return nil
	}
	delete(m.open, id)
	m.order.Remove(readyKey{e.priority, id})
	return e
}

// Terminate closes id on our side and reports whether an END must be sent.
// An open stream becomes a half-stream whose receive window is reduced by
// the cells dropped while it was being torn down. A stream the peer already
// ended is simply forgotten and needs no END.
func (m *Map) Terminate(id relay.StreamID, why TerminateReason) (bool, error) {
	if e, ok := m.open[id]; ok {
		var window *flowctrl.Window
		if e.Flow != nil {
			window = e.Flow.Window()
		}
		// A failed consume leaves the stream open and the map unchanged.
		if window != nil && e.dropped > 0 {
			if err := window.Consume(e.dropped); err != nil {
				return false, err
			}
		}
		m.removeOpen(id)
		e.Outbound.Close()
		e.Inbound.Close()
		m.closed[id] = &ClosedEntry{Kind: EndSent, Half: NewHalfStream(e.Checker, window)}
		log.WithFields(logger.Fields{
			"at":      "Map.Terminate",
			"reason":  why.String(),
			"stream":  id,
			"dropped": e.dropped,
		}).Debug("stream half-closed")
		return true, nil
	}

	c, ok := m.closed[id]
	if !ok {
		return false, circerr.Bugf("streams", "terminate of unknown stream %s", id)
	}
	if c.Kind == EndSent {
		return false, circerr.Bugf("streams", "second END for stream %s", id)
	}
	delete(m.closed, id)
	return false, nil
}

// HandleEnd applies an END received from the peer. An open stream moves to
// EndReceived until the local side lets go; a stream we already ended is
// removed entirely.
func (m *Map) HandleEnd(id relay.StreamID) error {
	if e := m.removeOpen(id); e != nil {
		e.Outbound.Close()
		e.Inbound.Close()
		m.closed[id] = &ClosedEntry{Kind: EndReceived}
		return nil
	}
	c, ok := m.closed[id]
	if !ok {
		return circerr.Protocolf("streams", "END on unknown stream %s", id)
	}
	if c.Kind == EndReceived {
		return circerr.Protocolf("streams", "two ENDs received on stream %s", id)
	}
	delete(m.closed, id)
	return nil
}

// RecordDropped counts a DATA cell discarded for an open stream.
func (m *Map) RecordDropped(id relay.StreamID) error {
	e, ok := m.open[id]
	if !ok {
		return circerr.Bugf("streams", "dropped cell on stream %s that is not open", id)
	}
	e.dropped++
	return nil
}

// Gate decides whether msg may be sent now on top of the stream's own flow
// control. It is consulted only for messages that count toward windows.
type Gate func(msg relay.Msg) bool

// NextReady returns the first stream, in round-robin order, whose next
// outbound message may be sent at now. DATA must pass both the stream's
// flow control and gate.
func (m *Map) NextReady(now time.Time, gate Gate) (relay.StreamID, relay.Msg, bool) {
	it := m.order.Iterator()
	for it.Next() {
		id := it.Value().(relay.StreamID)
		e := m.open[id]
		msg, ok := e.Outbound.Peek()
		if !ok {
			continue
		}
		if msg.Cmd.CountsTowardWindows() {
			if e.Flow != nil && !e.Flow.CanSend(now, len(msg.Body)) {
				continue
			}
			if gate != nil && !gate(msg) {
				continue
			}
		}
		return id, msg, true
	}
	return 0, relay.Msg{}, false
}

// NextWakeup returns the earliest time a stream blocked only by its rate
// limit becomes sendable, or the zero time if none is.
func (m *Map) NextWakeup(now time.Time) time.Time {
	var earliest time.Time
	for _, e := range m.open {
		msg, ok := e.Outbound.Peek()
		if !ok || !msg.Cmd.CountsTowardWindows() || e.Flow == nil {
			continue
		}
		at := e.Flow.ReadyAt(now, len(msg.Body))
		if at.IsZero() || !at.After(now) {
			continue
		}
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
	}
	return earliest
}

// Take removes the next outbound message of id and moves the stream to the
// back of the round-robin order.
func (m *Map) Take(id relay.StreamID) (relay.Msg, bool) {
	e, ok := m.open[id]
	if !ok {
		return relay.Msg{}, false
	}
	msg, ok := e.Outbound.Pop()
	if !ok {
		return relay.Msg{}, false
	}
	m.order.Remove(readyKey{e.priority, id})
	e.priority = m.stamp()
	m.order.Put(readyKey{e.priority, id}, id)
	return msg, true
}

// OpenIDs returns the ids of all open streams.
func (m *Map) OpenIDs() []relay.StreamID {
	ids := make([]relay.StreamID, 0, len(m.open))
	for id := range m.open {
		ids = append(ids, id)
	}
	return ids
}

// Finished returns the open streams whose user closed the outbound side and
// whose queued messages have all been sent. They are ready to terminate.
func (m *Map) Finished() []relay.StreamID {
	var ids []relay.StreamID
	for id, e := range m.open {
		if e.Outbound.Closed() && e.Outbound.Len() == 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
