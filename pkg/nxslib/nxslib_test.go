package nxslib

import (
	"testing"
	"time"

	"github.com/railab/nxslib-go/internal/transport"
)

func newConnectedTestHandler(t *testing.T) (*Handler, *transport.Dummy) {
	t.Helper()
	dev := transport.NewDummy(0)
	dev.Start()
	t.Cleanup(dev.Stop)

	h := New(dev, WithAckTimeout(2*time.Second), WithStreamDequeueTimeout(200*time.Millisecond))
	if err := h.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return h, dev
}

func TestHandler_ConnectBuildsRegistry(t *testing.T) {
	h, _ := newConnectedTestHandler(t)
	defer h.Disconnect()

	if h.Device() == nil || h.Device().ChMax != 10 {
		t.Fatalf("device = %+v, want chmax=10", h.Device())
	}
	if h.registry == nil {
		t.Fatalf("registry not built after connect")
	}
}

func TestHandler_StreamEndToEndDelivery(t *testing.T) {
	h, _ := newConnectedTestHandler(t)
	defer h.Disconnect()

	q, err := h.StreamSub(0)
	if err != nil {
		t.Fatalf("StreamSub: %v", err)
	}

	if err := h.ChEnable(true, 0); err != nil {
		t.Fatalf("ChEnable: %v", err)
	}
	if err := h.StreamStart(); err != nil {
		t.Fatalf("StreamStart: %v", err)
	}
	defer h.StreamStop()

	b, ok := q.Get(2 * time.Second)
	if !ok {
		t.Fatalf("no batch delivered for chan0 within deadline")
	}
	if b.Chan != 0 || len(b.Samples) == 0 {
		t.Fatalf("batch = %+v, want non-empty samples for chan 0", b)
	}
}

func TestHandler_StreamDoesNotDeliverDisabledChannel(t *testing.T) {
	h, _ := newConnectedTestHandler(t)
	defer h.Disconnect()

	// chan1 never enabled.
	q, err := h.StreamSub(1)
	if err != nil {
		t.Fatalf("StreamSub: %v", err)
	}

	if err := h.ChEnable(true, 0); err != nil {
		t.Fatalf("ChEnable: %v", err)
	}
	if err := h.StreamStart(); err != nil {
		t.Fatalf("StreamStart: %v", err)
	}
	defer h.StreamStop()

	if _, ok := q.Get(300 * time.Millisecond); ok {
		t.Fatalf("disabled channel 1 should not receive samples")
	}
}

func TestHandler_StreamUnsubStopsDelivery(t *testing.T) {
	h, _ := newConnectedTestHandler(t)
	defer h.Disconnect()

	q, err := h.StreamSub(0)
	if err != nil {
		t.Fatalf("StreamSub: %v", err)
	}
	h.StreamUnsub(q)
	h.StreamUnsub(q) // idempotent

	if err := h.ChEnable(true, 0); err != nil {
		t.Fatalf("ChEnable: %v", err)
	}
	if err := h.StreamStart(); err != nil {
		t.Fatalf("StreamStart: %v", err)
	}
	defer h.StreamStop()

	if _, ok := q.Get(300 * time.Millisecond); ok {
		t.Fatalf("unsubscribed queue should not receive samples")
	}
}

func TestHandler_ChannelsDefaultCfgResetsState(t *testing.T) {
	h, _ := newConnectedTestHandler(t)
	defer h.Disconnect()

	if err := h.ChEnableAll(true); err != nil {
		t.Fatalf("ChEnableAll: %v", err)
	}
	if err := h.ChannelsDefaultCfg(true); err != nil {
		t.Fatalf("ChannelsDefaultCfg: %v", err)
	}

	for i := 0; i < 10; i++ {
		if h.comm.ChIsEnabled(i) || h.comm.ChDivGet(i) != 0 {
			t.Fatalf("chan %d not reset: en=%v div=%d", i, h.comm.ChIsEnabled(i), h.comm.ChDivGet(i))
		}
	}
	ch, ok := h.DevChannelGet(0)
	if !ok || ch.Name != "chan0" {
		t.Fatalf("chan0 = %+v ok=%v", ch, ok)
	}
}
