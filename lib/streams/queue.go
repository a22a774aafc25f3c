package streams

import (
	"sync"

	"github.com/emirpasic/gods/queues"
	cb "github.com/emirpasic/gods/queues/circularbuffer"
	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/relay"
)

// Queue is a FIFO of relay messages shared between a stream's user and the
// reactor that services it. A bounded queue refuses pushes once full; an
// unbounded one (limit 0) only tracks how many body bytes it holds.
type Queue struct {
	mu     sync.Mutex
	q      queues.Queue
	limit  int
	bytes  uint64
	closed bool

	readable chan struct{}
	writable chan struct{}
}

// NewQueue returns an empty queue holding at most limit messages, or any
// number of them when limit is 0.
func NewQueue(limit int) *Queue {
	var q queues.Queue
	if limit > 0 {
		q = cb.New(limit)
	} else {
		q = linkedlistqueue.New()
	}
	return &Queue{
		q:        q,
		limit:    limit,
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

// Push appends msg. It fails with a would-block error when the queue is full
// and with a shutdown error once the queue is closed.
func (q *Queue) Push(msg relay.Msg) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return circerr.Shutdownf("streams", "push on closed stream queue")
	}
	if q.limit > 0 && q.q.Size() >= q.limit {
		return circerr.WouldBlockf("streams", "stream queue full (%d messages)", q.limit)
	}
	q.q.Enqueue(msg)
	q.bytes += uint64(len(msg.Body))
	notify(q.readable)
	return nil
}

// Peek returns the oldest message without removing it.
func (q *Queue) Peek() (relay.Msg, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.q.Peek()
	if !ok {
		return relay.Msg{}, false
	}
	return v.(relay.Msg), true
}

// Pop removes and returns the oldest message.
func (q *Queue) Pop() (relay.Msg, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.q.Dequeue()
	if !ok {
		return relay.Msg{}, false
	}
	msg := v.(relay.Msg)
	q.bytes -= uint64(len(msg.Body))
	notify(q.writable)
	if !q.q.Empty() {
		notify(q.readable)
	}
	return msg, true
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.q.Size()
}

// Bytes returns the total body size of the queued messages.
func (q *Queue) Bytes() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

// Close refuses further pushes. Messages already queued can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	notify(q.readable)
	notify(q.writable)
}

// Closed reports whether Close was called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Readable is signalled after a push and on close.
func (q *Queue) Readable() <-chan struct{} { return q.readable }

// Writable is signalled after a pop and on close.
func (q *Queue) Writable() <-chan struct{} { return q.writable }

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
