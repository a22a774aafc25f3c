package circuit

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/go-circuit/lib/streams"
)

// Stream is the user side of an open stream. Send, Recv and Close may be
// called from any goroutine.
type Stream struct {
	hop relay.HopNum
	id  relay.StreamID

	out  *streams.Queue
	in   *streams.Queue
	wake chan struct{}

	closed atomic.Bool
}

func newStream(h *Hop, id relay.StreamID, e *streams.OpenEntry) *Stream {
	return &Stream{hop: h.num, id: id, out: e.Outbound, in: e.Inbound, wake: h.wake}
}

// ID returns the stream id.
func (s *Stream) ID() relay.StreamID { return s.id }

// Hop returns the hop the stream exits from.
func (s *Stream) Hop() relay.HopNum { return s.hop }

func (s *Stream) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Send queues p as DATA messages, waiting while the outbound queue is full.
func (s *Stream) Send(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		n := min(len(p), relay.MaxBodyLen)
		msg := relay.NewData(s.id, p[:n])
		for {
			err := s.out.Push(msg)
			if err == nil {
				break
			}
			if !errors.Is(err, circerr.ErrWouldBlock) {
				return err
			}
			select {
			case <-s.out.Writable():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		s.poke()
		p = p[n:]
	}
	return nil
}

// Recv returns the payload of the next DATA message, or io.EOF once the
// stream is closed and drained.
func (s *Stream) Recv(ctx context.Context) ([]byte, error) {
	for {
		if msg, ok := s.in.Pop(); ok {
			s.poke()
			return msg.Body, nil
		}
		if s.in.Closed() {
			return nil, io.EOF
		}
		select {
		case <-s.in.Readable():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close lets go of the stream. Data already queued is still sent, then an
// END follows. Data arriving afterwards is dropped.
func (s *Stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.out.Close()
	s.in.Close()
	s.poke()
	return nil
}
