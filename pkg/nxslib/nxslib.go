package nxslib

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/railab/nxslib-go/internal/comm"
	"github.com/railab/nxslib-go/internal/device"
	"github.com/railab/nxslib-go/internal/logging"
	"github.com/railab/nxslib-go/internal/proto"
	"github.com/railab/nxslib-go/internal/transport"
)

// Handler is the public NxScope client of spec §3/§6: it wraps the
// command/ACK layer in internal/comm with a subscriber registry and stream
// dispatcher, and is the type applications construct and drive. Grounded on
// the original source's nxslib/nxscope.py NxscopeHandler.
type Handler struct {
	comm *comm.CommHandler

	ackTimeout       time.Duration
	handshakeRetries int
	dequeueTimeout   time.Duration
	logger           *slog.Logger
	userTypes        map[uint8]proto.UserType

	registry      *Registry
	dispatcher    *dispatcher
	overflowCount atomic.Uint32
}

// New builds a Handler over t, not yet connected.
func New(t transport.Transport, opts ...Option) *Handler {
	h := &Handler{
		ackTimeout:       defaultAckTimeout,
		handshakeRetries: defaultHandshakeRetries,
		dequeueTimeout:   defaultStreamDequeueTimeout,
		logger:           logging.L(),
		userTypes:        make(map[uint8]proto.UserType),
	}
	for _, o := range opts {
		o(h)
	}

	h.comm = comm.NewCommHandler(t,
		comm.WithAckTimeout(h.ackTimeout),
		comm.WithHandshakeRetries(h.handshakeRetries),
		comm.WithLogger(h.logger),
		comm.WithStreamHooks(h.startDispatcher, h.stopDispatcher),
	)
	return h
}

func (h *Handler) startDispatcher() {
	h.dispatcher = newDispatcher(h.comm, h.registry, h.userTypes, h.dequeueTimeout, &h.overflowCount)
	h.dispatcher.start()
}

func (h *Handler) stopDispatcher() {
	if h.dispatcher != nil {
		h.dispatcher.stop()
		h.dispatcher = nil
	}
}

// Connect runs the device handshake and rebuilds the subscriber registry
// sized for the discovered channel count, discarding any subscriptions from
// a previous session. Idempotent while already connected (spec §4.9).
// Grounded on the original source's nxscope.py connect(), which likewise
// reinitializes _sub_q to chmax empty lists on every successful connect.
func (h *Handler) Connect() error {
	wasConnected := h.comm.HandlerState() == comm.HandlerConnected
	if err := h.comm.Connect(); err != nil {
		return err
	}
	if !wasConnected {
		if dev := h.comm.Device(); dev != nil {
			h.registry = NewRegistry(int(dev.ChMax))
		}
	}
	return nil
}

// Disconnect tears the session down. Idempotent while already disconnected.
func (h *Handler) Disconnect() error {
	return h.comm.Disconnect()
}

// Close permanently shuts down the handler's write funnel; use for final
// teardown, not between reconnects.
func (h *Handler) Close() {
	h.comm.Close()
}

// StreamStart commits pending channel configuration and starts streaming,
// launching the dispatcher. Resets OverflowCount to zero (spec §3: the
// overflow counter is "reset on each stream start"). No-op while already
// streaming.
func (h *Handler) StreamStart() error {
	if h.comm.StreamState() == comm.StreamStreaming {
		return nil
	}
	h.overflowCount.Store(0)
	return h.comm.StreamStart()
}

// StreamStop stops streaming and the dispatcher. No-op while idle.
func (h *Handler) StreamStop() error {
	return h.comm.StreamStop()
}

// OverflowCount reports the number of STREAM frames received with the
// OVERFLOW flag set since the last StreamStart (spec §3/§4.6).
func (h *Handler) OverflowCount() uint32 {
	return h.overflowCount.Load()
}

// StreamSub subscribes to chanID's samples, returning a queue the caller
// drains with SampleQueue.Get. Fails with comm.ErrNotConnected before the
// first successful Connect.
func (h *Handler) StreamSub(chanID uint8) (*SampleQueue, error) {
	if h.registry == nil {
		return nil, comm.ErrNotConnected
	}
	return h.registry.Sub(chanID)
}

// StreamUnsub unsubscribes q. Idempotent; unknown or already-unsubscribed
// queues are silently ignored (spec §8 scenario 8).
func (h *Handler) StreamUnsub(q *SampleQueue) {
	if h.registry != nil {
		h.registry.Unsub(q)
	}
}

// ChEnable marks the given channel indices enabled in the pending snapshot,
// optionally committing immediately with ChannelsWrite.
func (h *Handler) ChEnable(writeNow bool, idx ...int) error {
	if err := h.comm.ChEnable(idx...); err != nil {
		return err
	}
	return h.maybeWrite(writeNow)
}

// ChDisable marks the given channel indices disabled in the pending
// snapshot, optionally committing immediately.
func (h *Handler) ChDisable(writeNow bool, idx ...int) error {
	if err := h.comm.ChDisable(idx...); err != nil {
		return err
	}
	return h.maybeWrite(writeNow)
}

// ChEnableAll marks every channel enabled in the pending snapshot,
// optionally committing immediately.
func (h *Handler) ChEnableAll(writeNow bool) error {
	if err := h.comm.ChEnableAll(); err != nil {
		return err
	}
	return h.maybeWrite(writeNow)
}

// ChDisableAll marks every channel disabled in the pending snapshot,
// optionally committing immediately.
func (h *Handler) ChDisableAll(writeNow bool) error {
	if err := h.comm.ChDisableAll(); err != nil {
		return err
	}
	return h.maybeWrite(writeNow)
}

// ChDivider sets the divider for the given channel indices in the pending
// snapshot, optionally committing immediately.
func (h *Handler) ChDivider(writeNow bool, d int, idx ...int) error {
	if err := h.comm.ChDivider(d, idx...); err != nil {
		return err
	}
	return h.maybeWrite(writeNow)
}

// ChannelsDefaultCfg resets every channel's pending snapshot to disabled
// with divider 0, optionally committing immediately.
func (h *Handler) ChannelsDefaultCfg(writeNow bool) error {
	if err := h.comm.ChannelsDefaultCfg(); err != nil {
		return err
	}
	return h.maybeWrite(writeNow)
}

func (h *Handler) maybeWrite(writeNow bool) error {
	if !writeNow {
		return nil
	}
	return h.ChannelsWrite()
}

// ChannelsWrite commits the pending enable/divider snapshots to the device.
func (h *Handler) ChannelsWrite() error {
	return h.comm.ChannelsWrite()
}

// DevChannelGet returns channel i's immutable metadata.
func (h *Handler) DevChannelGet(i uint8) (device.Channel, bool) {
	return h.comm.DevChannelGet(i)
}

// Device returns the current device record, or nil before connect.
func (h *Handler) Device() *device.Device {
	return h.comm.Device()
}

// HandlerState reports the connection lifecycle state.
func (h *Handler) HandlerState() comm.HandlerState {
	return h.comm.HandlerState()
}

// StreamState reports the stream lifecycle state.
func (h *Handler) StreamState() comm.StreamState {
	return h.comm.StreamState()
}
