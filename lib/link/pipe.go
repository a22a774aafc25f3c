package link

import (
	"context"
	"sync"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// End is one side of a Pipe.
type End struct {
	name string
	out  chan relay.Cell
	in   chan relay.Cell

	closeOnce sync.Once
	closed    chan struct{}
	space     chan struct{}
	peer      *End
}

// Pipe returns two connected ends, each able to queue capacity cells
// toward the other before Send blocks.
func Pipe(capacity int) (*End, *End) {
	ab := make(chan relay.Cell, capacity)
	ba := make(chan relay.Cell, capacity)
	a := &End{name: "a", out: ab, in: ba, closed: make(chan struct{}), space: make(chan struct{}, 1)}
	b := &End{name: "b", out: ba, in: ab, closed: make(chan struct{}), space: make(chan struct{}, 1)}
	a.peer, b.peer = b, a
	return a, b
}

// Send queues cell for the peer, waiting while the queue is full.
func (e *End) Send(ctx context.Context, cell relay.Cell) error {
	select {
	case <-e.closed:
		return circerr.Shutdownf("link", "send on closed link")
	case <-e.peer.closed:
		return circerr.Shutdownf("link", "peer closed link")
	default:
	}
	select {
	case e.out <- cell:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.closed:
		return circerr.Shutdownf("link", "send on closed link")
	case <-e.peer.closed:
		return circerr.Shutdownf("link", "peer closed link")
	}
}

// Recv waits for the next cell from the peer. Cells already queued are
// still delivered after the peer closes.
func (e *End) Recv(ctx context.Context) (relay.Cell, error) {
	select {
	case cell := <-e.in:
		return e.took(cell), nil
	default:
	}
	select {
	case cell := <-e.in:
		return e.took(cell), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.closed:
		return nil, circerr.Shutdownf("link", "recv on closed link")
	case <-e.peer.closed:
		select {
		case cell := <-e.in:
			return e.took(cell), nil
		default:
		}
		return nil, circerr.Shutdownf("link", "peer closed link")
	}
}

func (e *End) took(cell relay.Cell) relay.Cell {
	select {
	case e.peer.space <- struct{}{}:
	default:
	}
	return cell
}

// Blocked reports whether the outbound queue is full.
func (e *End) Blocked() bool {
	return len(e.out) == cap(e.out)
}

// Writable is signalled whenever the peer takes a cell off the outbound
// queue. Wait on it while Blocked reports true.
func (e *End) Writable() <-chan struct{} { return e.space }

// QueueLen returns the number of cells waiting for the peer.
func (e *End) QueueLen() uint32 {
	return uint32(len(e.out))
}

// Close shuts this end down. The peer sees the link as closed.
func (e *End) Close() error {
	e.closeOnce.Do(func() {
		log.WithFields(logger.Fields{
			"at":     "End.Close",
			"reason": "link_closed",
			"end":    e.name,
			"queued": len(e.out),
		}).Debug("closing in-memory link")
		close(e.closed)
	})
	return nil
}
