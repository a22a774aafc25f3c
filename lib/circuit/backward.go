package circuit

import (
	"context"
	"errors"
	"time"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/congestion"
	"github.com/go-i2p/go-circuit/lib/metrics"
	"github.com/go-i2p/go-circuit/lib/padding"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/logger"
)

type backwardCtlKind int

const (
	ctlSendCircuitMsg backwardCtlKind = iota
	ctlSetPadding
)

// backwardCtl is a request from the Reactor to the backward reactor.
type backwardCtl struct {
	kind     backwardCtlKind
	hop      relay.HopNum
	msg      relay.Msg
	machines []*padding.Machine
	done     chan<- error
}

// backward owns the outbound cell sink and the padding controller.
type backward struct {
	cfg    config.ConfigDefaults
	hops   *HopList
	crypto Crypto
	sink   Sink
	pad    *padding.Controller

	ready  <-chan readyMsg
	events <-chan event
	ctl    <-chan backwardCtl
}

func (b *backward) run(ctx context.Context) error {
	defer b.pad.Timer().Stop()
	for {
		// Offers are only taken when the sink has room, so sending one
		// never waits on the link.
		var ready <-chan readyMsg
		var writable <-chan struct{}
		if b.sink.Blocked() {
			writable = b.sink.Writable()
		} else {
			ready = b.ready
		}

		var err error
		select {
		case <-ctx.Done():
			return circerr.Shutdownf("circuit", "backward reactor stopped")
		case c := <-b.ctl:
			b.handleCtl(ctx, c)
		case ev := <-b.events:
			err = b.handleEvent(ctx, ev)
		case rm := <-ready:
			_, err = b.takeReady(ctx, time.Now(), rm, false)
		case <-b.pad.Timer().Chan():
			err = b.runPadding(ctx, time.Now())
		case <-writable:
		}
		if err != nil {
			log.WithFields(logger.Fields{
				"at":     "backward.run",
				"reason": "backward_reactor_failed",
			}).WithError(err).Warn("backward reactor stopping")
			return err
		}
	}
}

// sendCell encodes, seals and writes msg for hop, returning its SENDME tag.
func (b *backward) sendCell(ctx context.Context, hop relay.HopNum, msg relay.Msg) ([]byte, error) {
	cell, err := relay.Encode(msg)
	if err != nil {
		return nil, err
	}
	tag, err := b.crypto.Seal(hop, cell)
	if err != nil {
		return nil, err
	}
	if err := b.sink.Send(ctx, cell); err != nil {
		if ctx.Err() != nil || circerr.IsShutdown(err) {
			return nil, circerr.Shutdownf("circuit", "sink closed: %v", err)
		}
		return nil, err
	}
	return tag, nil
}

// claim answers an offer from a stream reactor. DATA is accounted to the
// hop's congestion window here, against the blocking boundary and window as
// they stand when the cell is written.
func (b *backward) claim(rm readyMsg) (sendmePoint, ok bool, err error) {
	if rm.pending || !rm.msg.Cmd.CountsTowardWindows() {
		rm.claimed <- true
		return false, true, nil
	}
	sendmePoint, err = b.hops.claimData(rm.hop)
	if err != nil {
		rm.claimed <- false
		if errors.Is(err, circerr.ErrWouldBlock) {
			log.WithFields(logger.Fields{
				"at":     "backward.claim",
				"reason": "stale_offer",
				"hop":    rm.hop.String(),
				"stream": rm.msg.StreamID.String(),
			}).WithError(err).Debug("refusing data offer")
			return false, false, nil
		}
		return false, false, err
	}
	rm.claimed <- true
	return sendmePoint, true, nil
}

// takeReady claims an offer and writes it. It reports whether the message
// was sent. replaced marks a data cell sent in place of padding.
func (b *backward) takeReady(ctx context.Context, now time.Time, rm readyMsg, replaced bool) (bool, error) {
	sendmePoint, ok, err := b.claim(rm)
	if err != nil || !ok {
		return false, err
	}
	return true, b.sendReady(ctx, now, rm, sendmePoint, replaced)
}

func (b *backward) sendReady(ctx context.Context, now time.Time, rm readyMsg, sendmePoint, replaced bool) error {
	tag, err := b.sendCell(ctx, rm.hop, rm.msg)
	if err != nil {
		return err
	}
	if sendmePoint {
		if err := b.hops.noteSendmePoint(rm.hop, now, tag); err != nil {
			return err
		}
	}
	if replaced {
		b.pad.ReportPaddingReplaced(now, rm.hop)
	} else {
		b.pad.ReportSent(now, rm.hop)
	}
	return nil
}

func (b *backward) handleEvent(ctx context.Context, ev event) error {
	switch ev.kind {
	case evSendme:
		sig := congestion.Signals{ChannelBlocked: b.sink.Blocked(), OutboundQueueLen: b.sink.QueueLen()}
		snap, err := b.hops.handleSendme(ev.hop, ev.at, ev.tag, sig)
		if err != nil {
			return err
		}
		metrics.SendmeReceived(ev.hop)
		metrics.ObserveCongestion(ev.hop, snap)
		b.hops.wake(ev.hop)
	case evOweSendme:
		if _, err := b.sendCell(ctx, ev.hop, relay.NewSendme(0, ev.tag)); err != nil {
			return err
		}
		b.pad.ReportSent(time.Now(), ev.hop)
	case evReceived:
		b.pad.ReportReceived(ev.at, ev.hop)
	case evPaddingReceived:
		b.pad.ReportPaddingReceived(ev.at, ev.hop)
	}
	return nil
}

func (b *backward) handleCtl(ctx context.Context, c backwardCtl) {
	switch c.kind {
	case ctlSendCircuitMsg:
		c.done <- b.sendCircuitMsg(ctx, c.hop, c.msg)
	case ctlSetPadding:
		c.done <- b.setPadding(time.Now(), c.hop, c.machines)
	}
}

func (b *backward) sendCircuitMsg(ctx context.Context, hop relay.HopNum, msg relay.Msg) error {
	if !msg.StreamID.IsZero() || msg.Cmd.CountsTowardWindows() {
		return circerr.Bugf("circuit", "%s on stream %s is not a circuit message", msg.Cmd, msg.StreamID)
	}
	if _, err := b.hops.Get(hop); err != nil {
		return err
	}
	if _, err := b.sendCell(ctx, hop, msg); err != nil {
		return err
	}
	b.pad.ReportSent(time.Now(), hop)
	return nil
}

// setPadding installs machines on hop, or removes its padding when there
// are none.
func (b *backward) setPadding(now time.Time, hop relay.HopNum, machines []*padding.Machine) error {
	if _, err := b.hops.Get(hop); err != nil {
		return err
	}
	if len(machines) == 0 {
		b.pad.SetBackend(now, hop, nil)
		b.syncBlocking()
		return nil
	}
	rt, err := padding.NewRuntime(hop, machines, b.cfg.Padding)
	if err != nil {
		return err
	}
	b.pad.SetBackend(now, hop, rt)
	b.syncBlocking()
	return nil
}

func (b *backward) runPadding(ctx context.Context, now time.Time) error {
	events := b.pad.Next(now)
	b.syncBlocking()
	for _, ev := range events {
		if ev.Kind != padding.EventSendPadding {
			continue
		}
		if err := b.sendPadding(ctx, now, ev); err != nil {
			return err
		}
	}
	return nil
}

func (b *backward) sendPadding(ctx context.Context, now time.Time, ev padding.Event) error {
	if b.pad.Blocked(ev.Hop, ev.Bypass) {
		log.WithFields(logger.Fields{
			"at":     "backward.sendPadding",
			"reason": "padding_blocked",
			"hop":    ev.Hop.String(),
		}).Debug("dropping padding behind a block")
		return nil
	}
	if ev.Replace {
		select {
		case rm := <-b.ready:
			sent, err := b.takeReady(ctx, now, rm, rm.hop == ev.Hop)
			if err != nil {
				return err
			}
			if sent && rm.hop == ev.Hop {
				return nil
			}
		default:
		}
	}
	if _, err := b.sendCell(ctx, ev.Hop, relay.NewDrop()); err != nil {
		return err
	}
	b.pad.ReportPaddingSent(now, ev.Hop)
	metrics.PaddingSent(ev.Hop)
	return nil
}

// syncBlocking copies the padding blocking boundary into the hop list and
// wakes the stream reactors when it moved.
func (b *backward) syncBlocking() {
	hop, _, ok := b.pad.BlockingBoundary()
	if b.hops.setBlocking(hop, ok) {
		b.hops.wakeAll()
	}
}
