// Package threadrunner is a generic OS-thread worker, grounded on the
// original source's ThreadCommon: a target function run in a loop on its own
// goroutine until a stop flag is observed, with idempotent start/stop.
package threadrunner

import "sync"

// Runner drives a target function on its own goroutine until Stop is called.
// Start is idempotent (a second call while running is a no-op); Stop joins
// the goroutine and clears the handle so the Runner can be started again.
type Runner struct {
	// Init runs once before the loop begins, on the worker goroutine. Optional.
	Init func()
	// Target runs repeatedly until Stop is requested. Required.
	Target func()
	// Final runs once after the loop exits, on the worker goroutine. Optional.
	Final func()

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// Start launches the worker goroutine. Calling Start while already running
// is a no-op, matching thread_start's unconditional-but-idempotent-in-effect
// behavior (the original always spawns a fresh thread; here a second Start
// before Stop is simply ignored rather than leaking a duplicate goroutine).
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	r.running = true
	stopCh := r.stopCh
	done := r.done
	go r.loop(stopCh, done)
}

func (r *Runner) loop(stopCh, done chan struct{}) {
	defer close(done)
	if r.Init != nil {
		r.Init()
	}
	for {
		select {
		case <-stopCh:
			if r.Final != nil {
				r.Final()
			}
			return
		default:
			r.Target()
		}
	}
}

// Stop requests the loop exit and blocks until it has, then clears the
// handle so the Runner is ready for another Start. Calling Stop when not
// running is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh := r.stopCh
	done := r.done
	r.running = false
	r.mu.Unlock()

	close(stopCh)
	<-done
}

// Running reports whether the worker goroutine is currently active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
