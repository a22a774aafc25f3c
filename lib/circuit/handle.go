package circuit

import (
	"context"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/congestion"
	"github.com/go-i2p/go-circuit/lib/layer"
	"github.com/go-i2p/go-circuit/lib/padding"
	"github.com/go-i2p/go-circuit/lib/relay"
)

// Handle controls a running Reactor. Requests carry their own reply
// channel; a caller whose ctx ends stops waiting for the reply without
// cancelling the request.
type Handle struct {
	cmds chan<- command
	msgs chan<- ctlMsg
	done <-chan struct{}
}

// Done is closed once the reactor has stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

func errStopped() error {
	return circerr.Shutdownf("circuit", "reactor is not running")
}

func (h *Handle) send(ctx context.Context, m ctlMsg) error {
	select {
	case h.msgs <- m:
		return nil
	case <-h.done:
		return errStopped()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) sendCommand(ctx context.Context, c command) error {
	select {
	case h.cmds <- c:
		return nil
	case <-h.done:
		return errStopped()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func wait[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-done:
		select {
		case v := <-reply:
			return v, nil
		default:
		}
		return zero, errStopped()
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// AddHop extends the circuit by a hop sharing keys with us.
func (h *Handle) AddHop(ctx context.Context, keys layer.Keys) (relay.HopNum, error) {
	reply := make(chan addHopResult, 1)
	if err := h.send(ctx, ctlMsg{kind: msgAddHop, keys: keys, added: reply}); err != nil {
		return 0, err
	}
	res, err := wait(ctx, h.done, reply)
	if err != nil {
		return 0, err
	}
	return res.hop, res.err
}

// BeginStream opens a stream exiting at hop and waits for it to connect.
func (h *Handle) BeginStream(ctx context.Context, hop relay.HopNum, target []byte) (*Stream, error) {
	reply := make(chan beginResult, 1)
	if err := h.send(ctx, ctlMsg{kind: msgBeginStream, hop: hop, target: target, begin: reply}); err != nil {
		return nil, err
	}
	res, err := wait(ctx, h.done, reply)
	if err != nil {
		return nil, err
	}
	return res.stream, res.err
}

// CloseStream ends stream id of hop right away, discarding whatever it
// still had queued.
func (h *Handle) CloseStream(ctx context.Context, hop relay.HopNum, id relay.StreamID) error {
	reply := make(chan error, 1)
	if err := h.sendCommand(ctx, command{kind: cmdCloseStream, hop: hop, id: id, done: reply}); err != nil {
		return err
	}
	res, err := wait(ctx, h.done, reply)
	if err != nil {
		return err
	}
	return res
}

// SendCircuitMsg sends a stream 0 message to hop.
func (h *Handle) SendCircuitMsg(ctx context.Context, hop relay.HopNum, msg relay.Msg) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, ctlMsg{kind: msgSendCircuitMsg, hop: hop, msg: msg, done: reply}); err != nil {
		return err
	}
	res, err := wait(ctx, h.done, reply)
	if err != nil {
		return err
	}
	return res
}

// SetPadding runs machines on hop, replacing its previous padding. No
// machines turns padding off.
func (h *Handle) SetPadding(ctx context.Context, hop relay.HopNum, machines ...*padding.Machine) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, ctlMsg{kind: msgSetPadding, hop: hop, machines: machines, done: reply}); err != nil {
		return err
	}
	res, err := wait(ctx, h.done, reply)
	if err != nil {
		return err
	}
	return res
}

// Congestion returns the congestion state of hop.
func (h *Handle) Congestion(ctx context.Context, hop relay.HopNum) (congestion.Snapshot, error) {
	reply := make(chan snapshotResult, 1)
	if err := h.send(ctx, ctlMsg{kind: msgCongestion, hop: hop, snap: reply}); err != nil {
		return congestion.Snapshot{}, err
	}
	res, err := wait(ctx, h.done, reply)
	if err != nil {
		return congestion.Snapshot{}, err
	}
	return res.snap, res.err
}

// Shutdown stops the reactor and waits for it to finish.
func (h *Handle) Shutdown(ctx context.Context) error {
	if err := h.sendCommand(ctx, command{kind: cmdShutdown}); err != nil {
		if circerr.IsShutdown(err) {
			return nil
		}
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShutdownHandle can only stop the reactor. Hand it to code that must not
// otherwise touch the circuit.
type ShutdownHandle struct {
	cmds chan<- command
	done <-chan struct{}
}

// Terminate asks the reactor to stop. It returns once the request was taken
// or the reactor had already stopped.
func (s *ShutdownHandle) Terminate() {
	select {
	case s.cmds <- command{kind: cmdShutdown}:
	case <-s.done:
	}
}
