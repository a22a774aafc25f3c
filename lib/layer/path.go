package layer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.GetGoI2PLogger()

// CellLink is the link a Path talks to the client over.
type CellLink interface {
	Send(ctx context.Context, cell relay.Cell) error
	Recv(ctx context.Context) (relay.Cell, error)
}

// PathOptions configures the behaviour of every simulated hop.
type PathOptions struct {
	// SendmeInc is the number of DATA cells acknowledged by one circuit
	// SENDME.
	SendmeInc uint32
	// StreamSendmeInc, when non-zero, makes hops send a stream SENDME
	// every that many DATA cells on a stream.
	StreamSendmeInc uint32
	// Latency delays every reply.
	Latency time.Duration
}

// HopStats counts what one simulated hop saw.
type HopStats struct {
	DataCells    atomic.Uint64
	PaddingCells atomic.Uint64
	Sendmes      atomic.Uint64
	Streams      atomic.Uint64
}

type endpoint struct {
	hop       *RelayHop
	dataCount uint32
	streams   map[relay.StreamID]uint32
	stats     HopStats
}

// Path simulates the relays of a circuit. Every hop acts as an echo server:
// it accepts BEGIN, echoes DATA, answers END, and acknowledges DATA with
// authenticated circuit SENDMEs.
type Path struct {
	opts PathOptions
	eps  []*endpoint
}

// NewPath returns a path with no hops.
func NewPath(opts PathOptions) *Path {
	return &Path{opts: opts}
}

// AddHop appends a hop sharing k with the client.
func (p *Path) AddHop(k Keys) error {
	h, err := NewRelayHop(k)
	if err != nil {
		return err
	}
	p.eps = append(p.eps, &endpoint{hop: h, streams: make(map[relay.StreamID]uint32)})
	return nil
}

// Stats returns the counters of hop.
func (p *Path) Stats(hop relay.HopNum) *HopStats {
	return &p.eps[hop].stats
}

type delayed struct {
	due  time.Time
	cell relay.Cell
}

// Run serves the client until ctx ends or the link fails.
func (p *Path) Run(ctx context.Context, l CellLink) error {
	g, ctx := errgroup.WithContext(ctx)
	out := make(chan delayed, 64)

	g.Go(func() error {
		defer close(out)
		for {
			cell, err := l.Recv(ctx)
			if err != nil {
				return err
			}
			replies, err := p.handleCell(cell)
			if err != nil {
				return err
			}
			for _, r := range replies {
				select {
				case out <- delayed{due: time.Now().Add(p.opts.Latency), cell: r}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	})

	g.Go(func() error {
		for d := range out {
			if wait := time.Until(d.due); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := l.Send(ctx, d.cell); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	log.WithFields(logger.Fields{
		"at":     "Path.Run",
		"reason": "path_stopped",
		"hops":   len(p.eps),
	}).WithError(err).Debug("simulated path stopped")
	return err
}

func (p *Path) handleCell(cell relay.Cell) ([]relay.Cell, error) {
	for h, ep := range p.eps {
		tag, ok, err := ep.hop.Unwrap(cell)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		msg, err := relay.Decode(cell)
		if err != nil {
			return nil, err
		}
		var out []relay.Cell
		for _, reply := range p.respond(ep, msg, tag) {
			c, err := relay.Encode(reply)
			if err != nil {
				return nil, err
			}
			ep.hop.Originate(c)
			for j := h - 1; j >= 0; j-- {
				p.eps[j].hop.Wrap(c)
			}
			out = append(out, c)
		}
		return out, nil
	}
	return nil, circerr.Protocolf("layer", "cell not recognized by any of %d simulated hops", len(p.eps))
}

func (p *Path) respond(ep *endpoint, msg relay.Msg, tag []byte) []relay.Msg {
	var out []relay.Msg
	switch msg.Cmd {
	case relay.CmdBegin:
		ep.streams[msg.StreamID] = 0
		ep.stats.Streams.Add(1)
		out = append(out, relay.NewMsg(relay.CmdConnected, msg.StreamID, nil))
	case relay.CmdResolve:
		out = append(out, relay.NewMsg(relay.CmdResolved, msg.StreamID, nil))
	case relay.CmdData:
		ep.stats.DataCells.Add(1)
		if n, open := ep.streams[msg.StreamID]; open {
			out = append(out, relay.NewData(msg.StreamID, msg.Body))
			n++
			if p.opts.StreamSendmeInc > 0 && n%p.opts.StreamSendmeInc == 0 {
				out = append(out, relay.NewSendme(msg.StreamID, nil))
			}
			ep.streams[msg.StreamID] = n
		}
		ep.dataCount++
		if p.opts.SendmeInc > 0 && ep.dataCount%p.opts.SendmeInc == 0 {
			out = append(out, relay.NewSendme(0, tag))
		}
	case relay.CmdEnd:
		if _, open := ep.streams[msg.StreamID]; open {
			delete(ep.streams, msg.StreamID)
			out = append(out, relay.NewEnd(msg.StreamID, relay.EndReasonDone))
		}
	case relay.CmdDrop:
		ep.stats.PaddingCells.Add(1)
	case relay.CmdSendme:
		ep.stats.Sendmes.Add(1)
	}
	return out
}
