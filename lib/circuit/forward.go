package circuit

import (
	"context"
	"time"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/logger"
)

type eventKind int

const (
	// evSendme carries a circuit SENDME received from hop.
	evSendme eventKind = iota
	// evOweSendme asks for a circuit SENDME to hop carrying tag.
	evOweSendme
	// evReceived reports a cell received from hop for padding.
	evReceived
	// evPaddingReceived reports a DROP received from hop.
	evPaddingReceived
)

// event flows from the forward reactor to the backward reactor.
type event struct {
	kind eventKind
	hop  relay.HopNum
	tag  []byte
	at   time.Time
}

// forward owns the inbound cell source.
type forward struct {
	hops    *HopList
	crypto  Crypto
	source  Source
	handler MsgHandler
	events  chan<- event
}

func (f *forward) run(ctx context.Context) error {
	for {
		cell, err := f.source.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil || circerr.IsShutdown(err) {
				return circerr.Shutdownf("circuit", "forward reactor stopped: %v", err)
			}
			return err
		}
		if err := f.handleCell(ctx, cell); err != nil {
			log.WithFields(logger.Fields{
				"at":     "forward.run",
				"reason": "inbound_cell_rejected",
			}).WithError(err).Warn("forward reactor stopping")
			return err
		}
	}
}

func (f *forward) handleCell(ctx context.Context, cell relay.Cell) error {
	hop, tag, err := f.crypto.Open(cell)
	if err != nil {
		return err
	}
	msg, err := relay.Decode(cell)
	if err != nil {
		return err
	}
	now := time.Now()

	if msg.StreamID.IsZero() {
		switch msg.Cmd {
		case relay.CmdSendme:
			sendmeTag, err := relay.ParseSendme(msg.Body)
			if err != nil {
				return err
			}
			return f.emit(ctx, event{kind: evSendme, hop: hop, tag: sendmeTag, at: now})
		case relay.CmdDrop:
			f.report(event{kind: evPaddingReceived, hop: hop, at: now})
			return nil
		case relay.CmdData:
			return circerr.Protocolf("circuit", "DATA on stream 0 from %s", hop)
		default:
			return f.handler(hop, msg)
		}
	}

	h, err := f.hops.Get(hop)
	if err != nil {
		return err
	}
	select {
	case h.in <- msg:
	case <-ctx.Done():
		return circerr.Shutdownf("circuit", "forward reactor stopped")
	}
	if msg.Cmd.CountsTowardWindows() {
		owed, err := f.hops.noteDataReceived(hop)
		if err != nil {
			return err
		}
		if owed {
			if err := f.emit(ctx, event{kind: evOweSendme, hop: hop, tag: tag, at: now}); err != nil {
				return err
			}
		}
	}
	f.report(event{kind: evReceived, hop: hop, at: now})
	return nil
}

// emit hands ev to the backward reactor, waiting for room.
func (f *forward) emit(ctx context.Context, ev event) error {
	select {
	case f.events <- ev:
		return nil
	case <-ctx.Done():
		return circerr.Shutdownf("circuit", "forward reactor stopped")
	}
}

// report hands ev to the backward reactor if it has room. Padding machines
// tolerate a lost traffic report.
func (f *forward) report(ev event) {
	select {
	case f.events <- ev:
	default:
	}
}
