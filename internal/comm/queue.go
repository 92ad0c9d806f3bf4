package comm

import (
	"sync"
	"time"

	"github.com/railab/nxslib-go/internal/proto"
)

// frameQueue is an unbounded, thread-safe FIFO of decoded frames with a
// bounded-time blocking dequeue, grounded directly on the original source's
// use of Python's queue.Queue in nxslib/comm.py (_q / _q_stream): the
// receive pipeline enqueues but never drops (spec §3 Ownership), and the
// command/ACK layer and stream dispatcher dequeue with a timeout instead of
// blocking forever (spec §5 Suspension points).
type frameQueue struct {
	mu     sync.Mutex
	items  []proto.Frame
	notify chan struct{}
}

func newFrameQueue() *frameQueue {
	return &frameQueue{notify: make(chan struct{}, 1)}
}

// push appends fr to the tail and wakes one waiter if any is parked.
func (q *frameQueue) push(fr proto.Frame) {
	q.mu.Lock()
	q.items = append(q.items, fr)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *frameQueue) tryPop() (proto.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return proto.Frame{}, false
	}
	fr := q.items[0]
	q.items = q.items[1:]
	return fr, true
}

// popWait dequeues the head frame, waiting up to timeout for one to arrive.
// Returns ok=false on timeout, mirroring queue.Queue.get(timeout=...).
func (q *frameQueue) popWait(timeout time.Duration) (proto.Frame, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if fr, ok := q.tryPop(); ok {
			return fr, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return proto.Frame{}, false
		}
		select {
		case <-q.notify:
		case <-time.After(remaining):
			return proto.Frame{}, false
		}
	}
}

// len reports the current queue depth, for metrics gauges.
func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// drain discards every buffered frame, best-effort, used at stream_stop and
// disconnect (spec §4.9).
func (q *frameQueue) drain() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
