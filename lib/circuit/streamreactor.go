package circuit

import (
	"context"
	"time"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/flowctrl"
	"github.com/go-i2p/go-circuit/lib/metrics"
	"github.com/go-i2p/go-circuit/lib/padding"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/go-circuit/lib/streams"
	"github.com/go-i2p/logger"
)

type streamCtlKind int

const (
	ctlBegin streamCtlKind = iota
	ctlClose
)

// streamCtl is a request from the Reactor to a stream reactor.
type streamCtl struct {
	kind   streamCtlKind
	target []byte
	id     relay.StreamID

	begin chan<- beginResult
	done  chan<- error
}

type beginResult struct {
	stream *Stream
	err    error
}

// readyMsg is a message a stream reactor offers the backward reactor. The
// backward reactor answers every offer it receives on claimed, and the
// stream reactor commits it only on true.
type readyMsg struct {
	hop     relay.HopNum
	msg     relay.Msg
	pending bool
	claimed chan<- bool
}

// recvState tracks what the user has read from a stream's inbound queue.
type recvState struct {
	pushedCells, deliveredCells uint32
	pushedBytes, deliveredBytes uint64
}

// streamReactor services the stream table of one hop.
type streamReactor struct {
	hop   *Hop
	cfg   config.ConfigDefaults
	hops  *HopList
	table *streams.Map
	ready   chan<- readyMsg
	claimed chan bool
	timer   *padding.Timer

	// Messages sent ahead of stream data: BEGIN, END, XON, XOFF and
	// stream SENDMEs.
	pending []relay.Msg

	handles    map[relay.StreamID]*Stream
	recv       map[relay.StreamID]*recvState
	connecting map[relay.StreamID]chan<- beginResult
}

func newStreamReactor(h *Hop, cfg config.ConfigDefaults, hops *HopList, ready chan<- readyMsg) *streamReactor {
	return &streamReactor{
		hop:        h,
		cfg:        cfg,
		hops:       hops,
		table:      streams.NewMap(cfg.Reactor),
		ready:      ready,
		claimed:    make(chan bool, 1),
		timer:      padding.NewTimer(),
		handles:    make(map[relay.StreamID]*Stream),
		recv:       make(map[relay.StreamID]*recvState),
		connecting: make(map[relay.StreamID]chan<- beginResult),
	}
}

func (r *streamReactor) run(ctx context.Context) error {
	defer r.timer.Stop()
	for {
		now := time.Now()
		if err := r.housekeep(now); err != nil {
			return r.fail(err)
		}

		var ready chan<- readyMsg
		next, ok := r.next(now)
		if ok {
			ready = r.ready
		}
		r.timer.Reset(r.table.NextWakeup(now))

		select {
		case <-ctx.Done():
			r.abandon()
			return circerr.Shutdownf("circuit", "stream reactor of %s stopped", r.hop.num)
		case c := <-r.hop.ctl:
			r.handleCtl(c)
		case msg := <-r.hop.in:
			if err := r.handleMsg(time.Now(), msg); err != nil {
				return r.fail(err)
			}
		case <-r.hop.wake:
		case <-r.timer.Chan():
			r.timer.SetRead()
		case ready <- next:
			if !r.awaitClaim(ctx) {
				continue
			}
			if err := r.commit(time.Now(), next); err != nil {
				return r.fail(err)
			}
		}
	}
}

func (r *streamReactor) fail(err error) error {
	log.WithFields(logger.Fields{
		"at":     "streamReactor.run",
		"reason": "stream_reactor_failed",
		"hop":    r.hop.num.String(),
	}).WithError(err).Warn("stream reactor stopping")
	r.abandon()
	return err
}

// abandon fails pending BEGINs and closes every stream so users blocked on
// them return.
func (r *streamReactor) abandon() {
	for id, reply := range r.connecting {
		reply <- beginResult{err: circerr.Shutdownf("circuit", "circuit closed before stream %s connected", id)}
		delete(r.connecting, id)
	}
	for _, s := range r.handles {
		s.out.Close()
		s.in.Close()
	}
}

// next picks what to offer the backward reactor: pending control messages
// first, then the next stream in round-robin order.
func (r *streamReactor) next(now time.Time) (readyMsg, bool) {
	if len(r.pending) > 0 {
		return readyMsg{hop: r.hop.num, msg: r.pending[0], pending: true, claimed: r.claimed}, true
	}
	_, msg, ok := r.table.NextReady(now, func(relay.Msg) bool {
		return r.hops.canSendData(r.hop.num)
	})
	if !ok {
		return readyMsg{}, false
	}
	return readyMsg{hop: r.hop.num, msg: msg, claimed: r.claimed}, true
}

// awaitClaim waits for the backward reactor's answer to an offer it took.
// A refused offer stays queued and is made again once the hop can send.
func (r *streamReactor) awaitClaim(ctx context.Context) bool {
	select {
	case ok := <-r.claimed:
		return ok
	case <-ctx.Done():
		return false
	}
}

func (r *streamReactor) commit(now time.Time, rm readyMsg) error {
	if rm.pending {
		r.pending = r.pending[1:]
		return nil
	}
	id := rm.msg.StreamID
	if _, ok := r.table.Take(id); !ok {
		return circerr.Bugf("circuit", "offered message of stream %s vanished", id)
	}
	if !rm.msg.Cmd.CountsTowardWindows() {
		return nil
	}
	if e := r.table.Get(id).Open; e != nil && e.Flow != nil {
		e.Flow.NoteDataSent(now, len(rm.msg.Body))
	}
	return nil
}

func (r *streamReactor) handleCtl(c streamCtl) {
	switch c.kind {
	case ctlBegin:
		s, err := r.begin(c.target)
		if err != nil {
			c.begin <- beginResult{err: err}
			return
		}
		r.connecting[s.id] = c.begin
	case ctlClose:
		c.done <- r.closeStream(c.id)
	}
}

func (r *streamReactor) begin(target []byte) (*Stream, error) {
	flow := flowctrl.NewStream(r.cfg, r.hops.usesStreamSendme(r.hop.num), r.cfg.Reactor.ClientSide)
	e := &streams.OpenEntry{
		Outbound: streams.NewQueue(r.cfg.Reactor.StreamQueueDepth),
		Inbound:  streams.NewQueue(0),
		Flow:     flow,
		Checker:  streams.NewDataChecker(),
	}
	id, err := r.table.AddEntry(e)
	if err != nil {
		return nil, err
	}
	s := newStream(r.hop, id, e)
	r.handles[id] = s
	r.recv[id] = &recvState{}
	r.pending = append(r.pending, relay.NewMsg(relay.CmdBegin, id, target))
	metrics.OpenStreams(r.hop.num, r.table.OpenLen())
	log.WithFields(logger.Fields{
		"at":     "streamReactor.begin",
		"reason": "stream_opened",
		"hop":    r.hop.num.String(),
		"stream": id,
	}).Debug("sending BEGIN")
	return s, nil
}

func (r *streamReactor) closeStream(id relay.StreamID) error {
	sendEnd, err := r.table.Terminate(id, streams.ExplicitEnd)
	if err != nil {
		return err
	}
	if sendEnd {
		r.pending = append(r.pending, relay.NewEnd(id, relay.EndReasonDone))
	}
	r.forget(id, circerr.Shutdownf("circuit", "stream %s closed before it connected", id))
	return nil
}

func (r *streamReactor) forget(id relay.StreamID, connectErr error) {
	if reply, ok := r.connecting[id]; ok {
		reply <- beginResult{err: connectErr}
		delete(r.connecting, id)
	}
	delete(r.handles, id)
	delete(r.recv, id)
	metrics.OpenStreams(r.hop.num, r.table.OpenLen())
}

// housekeep terminates streams the user let go of, and emits the stream
// SENDMEs and XONs owed for what the user read.
func (r *streamReactor) housekeep(now time.Time) error {
	for _, id := range r.table.Finished() {
		sendEnd, err := r.table.Terminate(id, streams.StreamTargetClosed)
		if err != nil {
			return err
		}
		if sendEnd {
			r.pending = append(r.pending, relay.NewEnd(id, relay.EndReasonDone))
		}
		r.forget(id, circerr.Shutdownf("circuit", "stream %s closed before it connected", id))
	}

	for id, s := range r.handles {
		ent := r.table.Get(id)
		if ent.Closed != nil && ent.Closed.Kind == streams.EndReceived && s.closed.Load() {
			if _, err := r.table.Terminate(id, streams.StreamTargetClosed); err != nil {
				return err
			}
			r.forget(id, nil)
			continue
		}
		if ent.Open != nil {
			r.account(now, id, ent.Open)
		}
	}
	return nil
}

func (r *streamReactor) account(now time.Time, id relay.StreamID, e *streams.OpenEntry) {
	st := r.recv[id]
	if st == nil || e.Flow == nil {
		return
	}
	cells := st.pushedCells - uint32(e.Inbound.Len())
	bytes := st.pushedBytes - e.Inbound.Bytes()
	newCells, newBytes := cells-st.deliveredCells, bytes-st.deliveredBytes
	st.deliveredCells, st.deliveredBytes = cells, bytes

	if w := e.Flow.Window(); w != nil {
		for i := uint32(0); i < newCells; i++ {
			if w.NoteDataDelivered() {
				r.pending = append(r.pending, relay.NewSendme(id, nil))
			}
		}
	}
	if x := e.Flow.XonXoff(); x != nil {
		if newBytes > 0 {
			x.NoteDrained(now, int(newBytes))
		}
		if msg, ok := x.MaybeXon(id, e.Inbound.Bytes()); ok {
			r.pending = append(r.pending, msg)
		}
	}
}

func (r *streamReactor) handleMsg(now time.Time, msg relay.Msg) error {
	id := msg.StreamID
	ent := r.table.Get(id)
	switch {
	case ent.Open != nil:
		return r.handleOpen(id, ent.Open, msg)
	case ent.Closed != nil && ent.Closed.Kind == streams.EndSent:
		status, err := ent.Closed.Half.Handle(msg)
		if err != nil {
			return err
		}
		if status == streams.StatusClosed {
			return r.table.HandleEnd(id)
		}
		return nil
	case ent.Closed != nil:
		return circerr.Protocolf("circuit", "%s on stream %s after its END", msg.Cmd, id)
	default:
		return circerr.Protocolf("circuit", "%s on unknown stream %s of %s", msg.Cmd, id, r.hop.num)
	}
}

func (r *streamReactor) handleOpen(id relay.StreamID, e *streams.OpenEntry, msg relay.Msg) error {
	if _, err := e.Checker.Check(msg); err != nil {
		return err
	}
	switch msg.Cmd {
	case relay.CmdEnd:
		reason := relay.ParseEnd(msg.Body)
		log.WithFields(logger.Fields{
			"at":         "streamReactor.handleOpen",
			"reason":     "end_received",
			"hop":        r.hop.num.String(),
			"stream":     id,
			"end_reason": reason,
		}).Debug("peer ended stream")
		if reply, ok := r.connecting[id]; ok {
			reply <- beginResult{err: circerr.Shutdownf("circuit", "stream %s refused with reason %d", id, reason)}
			delete(r.connecting, id)
		}
		return r.table.HandleEnd(id)
	case relay.CmdConnected:
		if reply, ok := r.connecting[id]; ok {
			reply <- beginResult{stream: r.handles[id]}
			delete(r.connecting, id)
		}
		return nil
	case relay.CmdSendme, relay.CmdXon, relay.CmdXoff:
		return e.Flow.HandleMsg(msg)
	case relay.CmdData:
		return r.deliver(id, e, msg)
	}
	return nil
}

func (r *streamReactor) deliver(id relay.StreamID, e *streams.OpenEntry, msg relay.Msg) error {
	if err := e.Inbound.Push(msg); err != nil {
		if !circerr.IsShutdown(err) {
			return err
		}
		metrics.CellDropped(r.hop.num)
		return r.table.RecordDropped(id)
	}
	if w := e.Flow.Window(); w != nil {
		if err := w.NoteDataReceived(); err != nil {
			return err
		}
	}
	if st := r.recv[id]; st != nil {
		st.pushedCells++
		st.pushedBytes += uint64(len(msg.Body))
	}
	if x := e.Flow.XonXoff(); x != nil {
		if xoff, ok := x.MaybeXoff(id, e.Inbound.Bytes()); ok {
			r.pending = append(r.pending, xoff)
		}
	}
	return nil
}
