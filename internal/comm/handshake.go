package comm

import (
	"fmt"

	"github.com/railab/nxslib-go/internal/device"
	"github.com/railab/nxslib-go/internal/metrics"
	"github.com/railab/nxslib-go/internal/proto"
)

// Connect runs the spec §4.4 handshake: defensive STOP, drain, CMNINFO,
// optional RX-DMA flush, drain, then one CHINFO round trip per channel.
// Grounded on the original source's nxslib/comm.py CommHandler._start /
// _devinfo_get, bounded to HandshakeRetries attempts instead of the
// original's unbounded per-channel retry loop (spec §9 "systems-language
// port" note: OS threads + bounded dequeues, nothing unbounded).
func (h *CommHandler) Connect() error {
	if h.lifecycle.Handler() == HandlerConnected {
		h.logger.Warn("connect_already_connected")
		return nil
	}
	h.lifecycle.setHandler(HandlerConnecting)

	if err := h.transport.Start(); err != nil {
		h.lifecycle.setHandler(HandlerDisconnected)
		return fmt.Errorf("connect: transport start: %w", err)
	}
	h.receiver.Start()
	// Defensive STOP: device may already be mid-stream from a previous
	// session. h.dev is still nil here so awaitAck short-circuits to a
	// synthesized success instead of actually waiting.
	_, _ = h.sendCommand(proto.IDStart, proto.EncodeStart(false))
	h.receiver.DropAll()

	var dev *device.Device
	var en []bool
	var div []uint8
	var err error
	for attempt := 0; attempt < h.handshakeRetries; attempt++ {
		if attempt > 0 {
			metrics.IncHandshakeRetry()
		}
		dev, en, div, err = h.devInfoGet()
		if err == nil {
			break
		}
	}
	if err != nil {
		h.lifecycle.setHandler(HandlerDisconnected)
		return fmt.Errorf("%w: connect handshake: %v", ErrTimeout, err)
	}

	h.mu.Lock()
	h.dev = dev
	h.state = device.NewState(en, div)
	h.mu.Unlock()

	h.lifecycle.setHandler(HandlerConnected)
	return nil
}

// Disconnect tears the session down: stops the receive worker, drops
// buffered bytes and queued frames, stops the transport, and clears the
// device record. The write funnel keeps running (Close shuts it down).
// Disconnecting from Disconnected is a no-op (spec §4.9).
func (h *CommHandler) Disconnect() error {
	if h.lifecycle.Handler() == HandlerDisconnected {
		return nil
	}
	h.lifecycle.setHandler(HandlerDisconnecting)

	h.receiver.Stop()
	h.receiver.DropAll()
	h.transport.Stop()

	h.mu.Lock()
	h.dev = nil
	h.state = nil
	h.mu.Unlock()

	h.lifecycle.setHandler(HandlerDisconnected)
	return nil
}

// devInfoGet performs one CMNINFO + full CHINFO sweep attempt.
func (h *CommHandler) devInfoGet() (*device.Device, []bool, []uint8, error) {
	ci, err := h.cmnInfoGet()
	if err != nil {
		return nil, nil, nil, err
	}

	if ci.RxPadding > 0 {
		h.logger.Info("rxpadding_flush", "n", ci.RxPadding)
		if _, err := h.transport.Write(make([]byte, ci.RxPadding)); err != nil {
			return nil, nil, nil, err
		}
	}
	h.receiver.DropAll()

	channels := make([]device.Channel, ci.ChMax)
	en := make([]bool, ci.ChMax)
	div := make([]uint8, ci.ChMax)
	for i := uint8(0); i < ci.ChMax; i++ {
		ch, e, d, err := h.chInfoGet(i)
		if err != nil {
			return nil, nil, nil, err
		}
		channels[i] = ch
		en[i] = e
		div[i] = d
		h.logger.Info("chinfo", "chan", i, "name", ch.Name, "dtype", ch.DType())
	}

	dev := &device.Device{
		ChMax:     ci.ChMax,
		Flags:     ci.Flags,
		RxPadding: ci.RxPadding,
		Channels:  channels,
	}
	return dev, en, div, nil
}

func (h *CommHandler) cmnInfoGet() (proto.CmnInfo, error) {
	if err := h.writeFrame(proto.IDCmnInfo, proto.EncodeCmnInfo()); err != nil {
		return proto.CmnInfo{}, err
	}
	fr, ok := h.receiver.Control().popWait(h.ackTimeout)
	if !ok {
		return proto.CmnInfo{}, fmt.Errorf("%w: cmninfo", ErrTimeout)
	}
	if fr.ID != proto.IDCmnInfo {
		return proto.CmnInfo{}, fmt.Errorf("%w: expected CMNINFO got %s", ErrProtocol, fr.ID)
	}
	return proto.DecodeCmnInfo(fr.Payload)
}

func (h *CommHandler) chInfoGet(chanID uint8) (device.Channel, bool, uint8, error) {
	if err := h.writeFrame(proto.IDChInfo, proto.EncodeChInfo(chanID)); err != nil {
		return device.Channel{}, false, 0, err
	}
	fr, ok := h.receiver.Control().popWait(h.ackTimeout)
	if !ok {
		return device.Channel{}, false, 0, fmt.Errorf("%w: chinfo chan=%d", ErrTimeout, chanID)
	}
	if fr.ID != proto.IDChInfo {
		return device.Channel{}, false, 0, fmt.Errorf("%w: expected CHINFO got %s", ErrProtocol, fr.ID)
	}
	return proto.DecodeChInfo(fr.Payload, chanID)
}
