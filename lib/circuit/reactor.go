package circuit

import (
	"context"
	"errors"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/congestion"
	"github.com/go-i2p/go-circuit/lib/layer"
	"github.com/go-i2p/go-circuit/lib/metrics"
	"github.com/go-i2p/go-circuit/lib/padding"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.GetGoI2PLogger()

// eventDepth bounds the forward to backward event channel.
const eventDepth = 8

type commandKind int

const (
	cmdShutdown commandKind = iota
	cmdCloseStream
)

// command is checked before any control message.
type command struct {
	kind commandKind
	hop  relay.HopNum
	id   relay.StreamID
	done chan<- error
}

type ctlMsgKind int

const (
	msgBeginStream ctlMsgKind = iota
	msgSendCircuitMsg
	msgAddHop
	msgSetPadding
	msgCongestion
)

// ctlMsg is a data-affecting request. Each carries its own reply channel.
type ctlMsg struct {
	kind     ctlMsgKind
	hop      relay.HopNum
	target   []byte
	msg      relay.Msg
	keys     layer.Keys
	machines []*padding.Machine

	begin chan<- beginResult
	added chan<- addHopResult
	snap  chan<- snapshotResult
	done  chan<- error
}

type addHopResult struct {
	hop relay.HopNum
	err error
}

type snapshotResult struct {
	snap congestion.Snapshot
	err  error
}

// Reactor runs one circuit. Create it with NewReactor and call Run once.
type Reactor struct {
	cfg    config.ConfigDefaults
	hops   *HopList
	crypto Crypto

	fwd *forward
	bwd *backward

	cmds   chan command
	msgs   chan ctlMsg
	bwdCtl chan backwardCtl
	ready  chan readyMsg
	done   chan struct{}
}

// NewReactor returns a reactor for a circuit with no hops yet, with the
// handles that control it.
func NewReactor(opts Options) (*Reactor, *Handle, *ShutdownHandle, error) {
	if err := opts.check(); err != nil {
		return nil, nil, nil, err
	}
	hops := NewHopList()
	events := make(chan event, eventDepth)
	r := &Reactor{
		cfg:    opts.Config,
		hops:   hops,
		crypto: opts.Crypto,
		cmds:   make(chan command),
		msgs:   make(chan ctlMsg),
		bwdCtl: make(chan backwardCtl),
		ready:  make(chan readyMsg),
		done:   make(chan struct{}),
	}
	r.fwd = &forward{
		hops:    hops,
		crypto:  opts.Crypto,
		source:  opts.Source,
		handler: opts.Handler,
		events:  events,
	}
	r.bwd = &backward{
		cfg:    opts.Config,
		hops:   hops,
		crypto: opts.Crypto,
		sink:   opts.Sink,
		pad:    padding.NewController(),
		ready:  r.ready,
		events: events,
		ctl:    r.bwdCtl,
	}
	h := &Handle{cmds: r.cmds, msgs: r.msgs, done: r.done}
	return r, h, &ShutdownHandle{cmds: r.cmds, done: r.done}, nil
}

// Hops returns the hop list of the circuit.
func (r *Reactor) Hops() *HopList { return r.hops }

// Run drives the circuit until it is shut down, ctx ends, or any of its
// goroutines fails. A requested shutdown returns nil; a failure returns the
// error that caused it.
func (r *Reactor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	halves := make(chan error, 2)
	g.Go(func() error {
		err := r.fwd.run(gctx)
		halves <- err
		return err
	})
	g.Go(func() error {
		err := r.bwd.run(gctx)
		halves <- err
		return err
	})

	err := r.loop(gctx, g, halves)
	cancel()
	close(r.done)
	if werr := g.Wait(); isFailure(werr) && !isFailure(err) {
		err = werr
	}
	log.WithFields(logger.Fields{
		"at":     "Reactor.Run",
		"reason": "reactor_stopped",
		"hops":   r.hops.Len(),
	}).WithError(err).Debug("circuit reactor stopped")
	return err
}

// isFailure tells an error that explains a teardown from the shutdown
// errors it causes in the other goroutines.
func isFailure(err error) bool {
	return err != nil && !circerr.IsShutdown(err) && !errors.Is(err, context.Canceled)
}

func (r *Reactor) loop(ctx context.Context, g *errgroup.Group, halves <-chan error) error {
	for {
		select {
		case c := <-r.cmds:
			if stop := r.handleCommand(ctx, c); stop {
				return nil
			}
			continue
		default:
		}
		select {
		case m := <-r.msgs:
			r.handleMsg(ctx, g, m)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return circerr.Shutdownf("circuit", "reactor context done")
		case c := <-r.cmds:
			if stop := r.handleCommand(ctx, c); stop {
				return nil
			}
		case m := <-r.msgs:
			r.handleMsg(ctx, g, m)
		case err := <-halves:
			if isFailure(err) {
				return err
			}
			return circerr.Shutdownf("circuit", "reactor half exited: %v", err)
		}
	}
}

func (r *Reactor) handleCommand(ctx context.Context, c command) bool {
	switch c.kind {
	case cmdShutdown:
		log.WithFields(logger.Fields{
			"at":     "Reactor.handleCommand",
			"reason": "shutdown_requested",
		}).Debug("shutting circuit down")
		return true
	case cmdCloseStream:
		if err := r.toStreams(ctx, c.hop, streamCtl{kind: ctlClose, id: c.id, done: c.done}); err != nil {
			c.done <- err
		}
	}
	return false
}

func (r *Reactor) handleMsg(ctx context.Context, g *errgroup.Group, m ctlMsg) {
	switch m.kind {
	case msgBeginStream:
		if err := r.toStreams(ctx, m.hop, streamCtl{kind: ctlBegin, target: m.target, begin: m.begin}); err != nil {
			m.begin <- beginResult{err: err}
		}
	case msgSendCircuitMsg:
		if err := r.toBackward(ctx, backwardCtl{kind: ctlSendCircuitMsg, hop: m.hop, msg: m.msg, done: m.done}); err != nil {
			m.done <- err
		}
	case msgSetPadding:
		if err := r.toBackward(ctx, backwardCtl{kind: ctlSetPadding, hop: m.hop, machines: m.machines, done: m.done}); err != nil {
			m.done <- err
		}
	case msgAddHop:
		hop, err := r.addHop(ctx, g, m.keys)
		m.added <- addHopResult{hop: hop, err: err}
	case msgCongestion:
		snap, err := r.hops.Snapshot(m.hop)
		m.snap <- snapshotResult{snap: snap, err: err}
	}
}

func (r *Reactor) toStreams(ctx context.Context, hop relay.HopNum, c streamCtl) error {
	h, err := r.hops.Get(hop)
	if err != nil {
		return err
	}
	select {
	case h.ctl <- c:
		return nil
	case <-ctx.Done():
		return circerr.Shutdownf("circuit", "reactor stopping")
	}
}

func (r *Reactor) toBackward(ctx context.Context, c backwardCtl) error {
	select {
	case r.bwdCtl <- c:
		return nil
	case <-ctx.Done():
		return circerr.Shutdownf("circuit", "reactor stopping")
	}
}

// addHop extends the circuit by one hop and starts its stream reactor.
func (r *Reactor) addHop(ctx context.Context, g *errgroup.Group, keys layer.Keys) (relay.HopNum, error) {
	num, err := r.crypto.AddHop(keys)
	if err != nil {
		return 0, err
	}
	cc := congestion.NewController(r.cfg.Congestion, r.cfg.Reactor.OnionService)
	h := newHop(num, cc)
	if err := r.hops.add(h); err != nil {
		return 0, err
	}
	sr := newStreamReactor(h, r.cfg, r.hops, r.ready)
	g.Go(func() error { return sr.run(ctx) })
	metrics.ObserveCongestion(num, cc.Snapshot())
	log.WithFields(logger.Fields{
		"at":        "Reactor.addHop",
		"reason":    "circuit_extended",
		"hop":       num.String(),
		"algorithm": string(r.cfg.Congestion.Algorithm),
	}).Debug("hop added")
	return num, nil
}
