package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/railab/nxslib-go/internal/proto"
)

func TestDummyBridge_RoundTrip(t *testing.T) {
	dev := NewDummy(0)
	dev.Start()
	defer dev.Stop()

	bridge := NewDummyBridge(dev, PolicyDrop)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bridge.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := bridge.Addr()
	go func() { _ = bridge.Run(ctx) }()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	wire, _ := proto.FrameCreate(proto.IDCmnInfo, proto.EncodeCmnInfo())
	if _, err := conn.Write(wire); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 4096)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	fr, err := proto.FrameDecode(buf[:n])
	if err != nil {
		t.Fatalf("FrameDecode: %v", err)
	}
	if fr.ID != proto.IDCmnInfo {
		t.Fatalf("got frame id %v, want IDCmnInfo", fr.ID)
	}
}
