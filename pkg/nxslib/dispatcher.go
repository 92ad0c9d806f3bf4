package nxslib

import (
	"sync/atomic"
	"time"

	"github.com/railab/nxslib-go/internal/comm"
	"github.com/railab/nxslib-go/internal/metrics"
	"github.com/railab/nxslib-go/internal/proto"
	"github.com/railab/nxslib-go/internal/threadrunner"
)

// dispatcher is the stream worker of spec §4.6: dequeue, decode, count
// overflow, group samples by channel filtered on the enabled snapshot, and
// fan each channel's samples out through the registry. Grounded on the
// original source's nxscope.py _stream_thread.
type dispatcher struct {
	comm           *comm.CommHandler
	registry       *Registry
	userTypes      map[uint8]proto.UserType
	dequeueTimeout time.Duration

	// overflow is the handler-owned counter of spec §3: the number of STREAM
	// frames received with the OVERFLOW flag set since stream start. Points
	// at Handler.overflowCount, which StreamStart resets to zero.
	overflow *atomic.Uint32

	runner *threadrunner.Runner
}

func newDispatcher(c *comm.CommHandler, reg *Registry, userTypes map[uint8]proto.UserType, dequeueTimeout time.Duration, overflow *atomic.Uint32) *dispatcher {
	d := &dispatcher{
		comm:           c,
		registry:       reg,
		userTypes:      userTypes,
		dequeueTimeout: dequeueTimeout,
		overflow:       overflow,
	}
	d.runner = &threadrunner.Runner{Target: d.tickOnce}
	return d
}

func (d *dispatcher) start() { d.runner.Start() }
func (d *dispatcher) stop()  { d.runner.Stop() }

func (d *dispatcher) tickOnce() {
	fr, ok := d.comm.StreamDequeue(d.dequeueTimeout)
	if !ok {
		return
	}

	dev := d.comm.Device()
	if dev == nil {
		return
	}

	sp, err := proto.DecodeStream(fr.Payload, dev, d.userTypes)
	if err != nil {
		metrics.IncFrameError(metrics.ErrKindProtocol)
		return
	}
	if sp.Flags.IsOverflow() {
		metrics.IncOverflow()
		d.overflow.Add(1)
	}

	grouped := make(map[uint8][]proto.Sample)
	for _, s := range sp.Samples {
		if !d.comm.ChIsEnabled(int(s.Chan)) {
			continue
		}
		grouped[s.Chan] = append(grouped[s.Chan], s)
	}
	for chanID, samples := range grouped {
		d.registry.Publish(chanID, samples)
	}
}
