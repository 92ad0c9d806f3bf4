// Package nxslib is the public NxScope client: a Handler that connects to a
// device over any internal/transport.Transport, drives the command/ACK
// layer in internal/comm, and fans stream samples out to subscriber queues.
package nxslib

import (
	"fmt"
	"sync"
	"time"

	"github.com/railab/nxslib-go/internal/comm"
	"github.com/railab/nxslib-go/internal/metrics"
	"github.com/railab/nxslib-go/internal/proto"
)

// Batch is one channel's samples delivered from a single decoded STREAM
// frame, the unit a subscriber queue receives (spec §4.6 "one put per
// channel per frame").
type Batch struct {
	Chan    uint8
	Samples []proto.Sample
}

// SampleQueue is an unbounded, thread-safe FIFO of Batches with a
// bounded-time blocking Get, returned by Handler.StreamSub. Grounded on the
// original source's nxscope.py stream_sub (a plain queue.Queue per
// subscriber); kept as its own small type here rather than reusing
// internal/comm's unexported frameQueue because this one is part of the
// public API surface and carries Batch, not proto.Frame.
type SampleQueue struct {
	mu     sync.Mutex
	items  []Batch
	notify chan struct{}
}

func newSampleQueue() *SampleQueue {
	return &SampleQueue{notify: make(chan struct{}, 1)}
}

func (q *SampleQueue) push(b Batch) {
	q.mu.Lock()
	q.items = append(q.items, b)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *SampleQueue) tryPop() (Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Batch{}, false
	}
	b := q.items[0]
	q.items = q.items[1:]
	return b, true
}

// Get dequeues the next batch, waiting up to timeout for one to arrive.
func (q *SampleQueue) Get(timeout time.Duration) (Batch, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if b, ok := q.tryPop(); ok {
			return b, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Batch{}, false
		}
		select {
		case <-q.notify:
		case <-time.After(remaining):
			return Batch{}, false
		}
	}
}

// Registry is the per-channel subscriber list of spec §4.7: registry
// length equals chmax, subscribe appends a new queue to registry[chan],
// unsubscribe searches every channel's list (idempotent), and all three
// operations (sub/unsub/publish) serialize on one lock. Grounded on the
// teacher's internal/hub/hub.go (Client/Hub add-remove-broadcast shape),
// generalized from "one global client set" to "one subscriber list per
// channel", and from a drop/kick backpressure policy to the spec's
// never-drop guarantee.
type Registry struct {
	mu   sync.Mutex
	subs [][]*SampleQueue
}

// NewRegistry builds an empty registry sized for chmax channels.
func NewRegistry(chmax int) *Registry {
	return &Registry{subs: make([][]*SampleQueue, chmax)}
}

// Sub creates a new queue and registers it against chanID. Returns
// comm.ErrInvalidArgument if chanID is out of range, matching the original
// source's nxscope.py stream_sub, which raises on an unknown channel rather
// than subscribing it.
func (r *Registry) Sub(chanID uint8) (*SampleQueue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(chanID) >= len(r.subs) {
		return nil, fmt.Errorf("%w: channel %d out of range [0,%d)", comm.ErrInvalidArgument, chanID, len(r.subs))
	}
	q := newSampleQueue()
	r.subs[chanID] = append(r.subs[chanID], q)
	return q, nil
}

// Unsub removes q from whichever channel list contains it. Unknown queues
// are silently ignored, and a second Unsub of an already-removed queue is a
// no-op (spec §8 scenario 8).
func (r *Registry) Unsub(q *SampleQueue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, list := range r.subs {
		for j, cand := range list {
			if cand == q {
				r.subs[i] = append(list[:j], list[j+1:]...)
				return
			}
		}
	}
}

// Publish enqueues samples as one Batch to every subscriber of chanID. The
// handler enqueues but never drops (spec §3 Ownership), matching the
// unbounded SampleQueue above.
func (r *Registry) Publish(chanID uint8, samples []proto.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(chanID) >= len(r.subs) {
		return
	}
	batch := Batch{Chan: chanID, Samples: samples}
	for _, q := range r.subs[chanID] {
		q.push(batch)
	}
	metrics.SetSubscriberFanout(len(r.subs[chanID]))
}
