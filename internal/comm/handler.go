// Package comm implements the NxScope communication state machine: receive
// pipeline, connect/disconnect handshake, command/ACK correlation,
// configuration commit, and the handler/stream lifecycles (spec §4.3-§4.9).
// Grounded on the teacher's internal/server package (option-constructed
// handler owning a transport and a funneled writer) and the original
// source's nxslib/comm.py CommHandler.
package comm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/railab/nxslib-go/internal/device"
	"github.com/railab/nxslib-go/internal/logging"
	"github.com/railab/nxslib-go/internal/metrics"
	"github.com/railab/nxslib-go/internal/proto"
	"github.com/railab/nxslib-go/internal/transport"
)

const (
	defaultAckTimeout       = time.Second
	defaultHandshakeRetries = 5
	asyncTxBuffer           = 64
)

// CommHandler is the handler lifecycle object of spec §4.4/§4.9: it owns
// the transport, the receive pipeline, the write funnel, the device
// record, and the channel-state snapshots.
type CommHandler struct {
	transport transport.Transport
	receiver  *Receiver
	asyncTx   *transport.AsyncTx

	ackTimeout       time.Duration
	handshakeRetries int

	logger *slog.Logger

	lifecycle lifecycle

	// mu guards dev/state assignment (connect/disconnect boundaries); the
	// channel-state read/write traffic itself is serialized by
	// device.State's own mutex, per spec §5 lock ordering (channel-state
	// lock is never held across a blocking wait here).
	mu    sync.Mutex
	dev   *device.Device
	state *device.State

	onStreamStart func()
	onStreamStop  func()
}

// Option configures a CommHandler at construction time.
type Option func(*CommHandler)

// WithAckTimeout overrides the default 1s control-path dequeue timeout.
func WithAckTimeout(d time.Duration) Option {
	return func(h *CommHandler) { h.ackTimeout = d }
}

// WithHandshakeRetries overrides the default connect retry budget (5).
func WithHandshakeRetries(n int) Option {
	return func(h *CommHandler) { h.handshakeRetries = n }
}

// WithLogger overrides the default package logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *CommHandler) { h.logger = l }
}

// WithStreamHooks registers callbacks: onStart runs right after START(true)
// is ACKed, before the lifecycle transitions to Streaming; onStop runs right
// after START(false) is sent, whatever its ACK outcome, before the lifecycle
// transitions to Idle. pkg/nxslib
// uses these to launch and stop its stream dispatcher without this package
// needing to know about subscriber registries.
func WithStreamHooks(onStart, onStop func()) Option {
	return func(h *CommHandler) {
		h.onStreamStart = onStart
		h.onStreamStop = onStop
	}
}

// NewCommHandler builds a handler over t, not yet connected.
func NewCommHandler(t transport.Transport, opts ...Option) *CommHandler {
	h := &CommHandler{
		transport:        t,
		ackTimeout:       defaultAckTimeout,
		handshakeRetries: defaultHandshakeRetries,
		logger:           logging.L(),
	}
	for _, o := range opts {
		o(h)
	}
	h.receiver = NewReceiver(t, h.isDeviceReady)
	h.asyncTx = transport.NewAsyncTx(context.Background(), asyncTxBuffer, func(p []byte) error {
		_, err := t.Write(p)
		return err
	}, transport.Hooks{
		OnError: func(err error) { h.logger.Error("comm_write_error", "error", err) },
	})
	return h
}

func (h *CommHandler) isDeviceReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dev != nil
}

// Device returns the current device record, or nil before connect / after
// disconnect.
func (h *CommHandler) Device() *device.Device {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dev
}

// HandlerState reports the connection lifecycle state.
func (h *CommHandler) HandlerState() HandlerState { return h.lifecycle.Handler() }

// StreamState reports the stream lifecycle state.
func (h *CommHandler) StreamState() StreamState { return h.lifecycle.Stream() }

// Close permanently shuts down the write funnel. Unlike Disconnect (which
// leaves the handler reconnectable), Close is for final teardown when the
// handler itself is being discarded.
func (h *CommHandler) Close() {
	h.asyncTx.Close()
}

// StreamDequeue pops the next unsolicited STREAM frame, waiting up to
// timeout. pkg/nxslib's dispatcher uses this instead of reaching into the
// receiver's unexported queue type directly.
func (h *CommHandler) StreamDequeue(timeout time.Duration) (proto.Frame, bool) {
	return h.receiver.Stream().popWait(timeout)
}

func (h *CommHandler) writeFrame(id proto.FrameID, payload []byte) error {
	wire, err := proto.FrameCreate(id, payload)
	if err != nil {
		return err
	}
	return h.asyncTx.SendFrame(wire)
}

// sendCommand writes a command frame and awaits its correlated ACK.
func (h *CommHandler) sendCommand(id proto.FrameID, payload []byte) (proto.Ack, error) {
	if err := h.writeFrame(id, payload); err != nil {
		return proto.Ack{}, err
	}
	return h.awaitAck()
}

// awaitAck implements spec §4.4 ACK correlation: the next control-queue
// frame after a request is assumed to be its reply; when ACK_SUPPORT is
// absent (or no device record exists yet) a success is synthesised.
func (h *CommHandler) awaitAck() (proto.Ack, error) {
	dev := h.Device()
	if dev == nil || !dev.Flags.AckSupport() {
		return proto.Ack{OK: true}, nil
	}
	fr, ok := h.receiver.Control().popWait(h.ackTimeout)
	if !ok {
		metrics.IncAckTimeout()
		return proto.Ack{}, fmt.Errorf("%w: ack", ErrTimeout)
	}
	if fr.ID != proto.IDAck {
		return proto.Ack{}, fmt.Errorf("%w: expected ACK got %s", ErrProtocol, fr.ID)
	}
	return proto.DecodeAck(fr.Payload)
}

// StreamStart commits pending configuration, sends START, and (via the
// registered hook) launches the stream dispatcher. Re-entry while already
// Streaming is a no-op (spec §4.9).
func (h *CommHandler) StreamStart() error {
	if h.lifecycle.Stream() == StreamStreaming {
		return nil
	}
	h.lifecycle.setStream(StreamStarting)

	if err := h.ChannelsWrite(); err != nil {
		h.lifecycle.setStream(StreamIdle)
		return err
	}
	ack, err := h.sendCommand(proto.IDStart, proto.EncodeStart(true))
	if err != nil {
		h.lifecycle.setStream(StreamIdle)
		return err
	}
	if !ack.OK {
		h.lifecycle.setStream(StreamIdle)
		return fmt.Errorf("%w: start retcode=%d", ErrProtocol, ack.RetCode)
	}
	if h.onStreamStart != nil {
		h.onStreamStart()
	}
	h.lifecycle.setStream(StreamStreaming)
	return nil
}

// StreamStop sends START(false), stops the dispatcher via its hook, and
// discards any STREAM frames left in the stream queue. stop from Idle is a
// no-op (spec §4.9).
func (h *CommHandler) StreamStop() error {
	if h.lifecycle.Stream() == StreamIdle {
		return nil
	}
	h.lifecycle.setStream(StreamStopping)

	ack, err := h.sendCommand(proto.IDStart, proto.EncodeStart(false))
	if h.onStreamStop != nil {
		h.onStreamStop()
	}
	h.receiver.Stream().drain()
	h.lifecycle.setStream(StreamIdle)

	if err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("%w: stop retcode=%d", ErrProtocol, ack.RetCode)
	}
	return nil
}
