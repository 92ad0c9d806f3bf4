package transport

import (
	"testing"
	"time"

	"github.com/railab/nxslib-go/internal/proto"
)

func readFrame(t *testing.T, d *Dummy, wantID proto.FrameID) proto.Frame {
	t.Helper()
	buf := make([]byte, 4096)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		n, err := d.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n == 0 {
			continue
		}
		fr, err := proto.FrameDecode(buf[:n])
		if err != nil {
			t.Fatalf("FrameDecode: %v", err)
		}
		if fr.ID != wantID {
			t.Fatalf("got frame id %v, want %v", fr.ID, wantID)
		}
		return fr
	}
	t.Fatalf("timed out waiting for frame id %v", wantID)
	return proto.Frame{}
}

func TestDummy_CmnInfoRoundTrip(t *testing.T) {
	d := NewDummy(16)
	d.Start()
	defer d.Stop()

	wire, err := proto.FrameCreate(proto.IDCmnInfo, proto.EncodeCmnInfo())
	if err != nil {
		t.Fatalf("FrameCreate: %v", err)
	}
	if _, err := d.Write(wire); err != nil {
		t.Fatalf("Write: %v", err)
	}
	fr := readFrame(t, d, proto.IDCmnInfo)
	ci, err := proto.DecodeCmnInfo(fr.Payload)
	if err != nil {
		t.Fatalf("DecodeCmnInfo: %v", err)
	}
	if ci.ChMax != 10 {
		t.Fatalf("chmax = %d, want 10", ci.ChMax)
	}
	if !ci.Flags.DividerSupport() || !ci.Flags.AckSupport() {
		t.Fatalf("flags = %v, want both capabilities", ci.Flags)
	}
	if ci.RxPadding != 16 {
		t.Fatalf("rxpadding = %d, want 16", ci.RxPadding)
	}
}

func TestDummy_ChInfoRoundTrip(t *testing.T) {
	d := NewDummy(0)
	d.Start()
	defer d.Stop()

	wire, _ := proto.FrameCreate(proto.IDChInfo, proto.EncodeChInfo(0))
	if _, err := d.Write(wire); err != nil {
		t.Fatalf("Write: %v", err)
	}
	fr := readFrame(t, d, proto.IDChInfo)
	ch, en, div, err := proto.DecodeChInfo(fr.Payload, 0)
	if err != nil {
		t.Fatalf("DecodeChInfo: %v", err)
	}
	if ch.Name != "chan0" {
		t.Fatalf("name = %q, want chan0", ch.Name)
	}
	if en {
		t.Fatalf("expected channel initially disabled")
	}
	if div != 0 {
		t.Fatalf("div = %d, want 0", div)
	}
}

func TestDummy_EnableAndStream(t *testing.T) {
	d := NewDummy(0)
	d.Start()
	defer d.Stop()

	// Enable channel 0 only (SINGLE set-frame).
	enableBody := []byte{0x00, 0x00, 0x01}
	wire, _ := proto.FrameCreate(proto.IDEnable, enableBody)
	if _, err := d.Write(wire); err != nil {
		t.Fatalf("Write enable: %v", err)
	}
	readFrame(t, d, proto.IDAck)

	startWire, _ := proto.FrameCreate(proto.IDStart, proto.EncodeStart(true))
	if _, err := d.Write(startWire); err != nil {
		t.Fatalf("Write start: %v", err)
	}
	readFrame(t, d, proto.IDAck)

	fr := readFrame(t, d, proto.IDStream)
	sp, err := proto.DecodeStream(fr.Payload, d.Device(), nil)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if len(sp.Samples) == 0 {
		t.Fatalf("expected at least one sample once streaming")
	}
	for _, s := range sp.Samples {
		if s.Chan != 0 {
			t.Fatalf("unexpected sample from channel %d, only channel 0 is enabled", s.Chan)
		}
	}
}

func TestDummy_DropAll(t *testing.T) {
	d := NewDummy(0)
	d.qRead <- []byte{0x01}
	d.qWrite <- []byte{0x02}
	d.DropAll()
	if len(d.qRead) != 0 || len(d.qWrite) != 0 {
		t.Fatalf("expected both queues drained")
	}
}
