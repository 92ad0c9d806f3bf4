package comm

import (
	"sync"
	"testing"
	"time"

	"github.com/railab/nxslib-go/internal/proto"
)

// scriptedTransport replays a fixed sequence of Read chunks, then reports
// (0, nil) timeouts forever, matching the Transport contract.
type scriptedTransport struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (s *scriptedTransport) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chunks) == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	n := copy(p, chunk)
	return n, nil
}
func (s *scriptedTransport) Start() error                 { return nil }
func (s *scriptedTransport) Stop()                        {}
func (s *scriptedTransport) Write(p []byte) (int, error) { return len(p), nil }
func (s *scriptedTransport) DropAll()                     {}
func (s *scriptedTransport) Close() error                 { return nil }

func TestReceiver_RoutesControlAndStream(t *testing.T) {
	cmnWire, _ := proto.FrameCreate(proto.IDCmnInfo, proto.EncodeCmnInfo())
	streamWire, _ := proto.FrameCreate(proto.IDStream, []byte{0x00})

	tr := &scriptedTransport{chunks: [][]byte{cmnWire, streamWire}}
	r := NewReceiver(tr, func() bool { return true })
	r.Start()
	defer r.Stop()

	fr, ok := r.Control().popWait(time.Second)
	if !ok || fr.ID != proto.IDCmnInfo {
		t.Fatalf("control queue: got %v ok=%v, want IDCmnInfo", fr.ID, ok)
	}
	sfr, ok := r.Stream().popWait(time.Second)
	if !ok || sfr.ID != proto.IDStream {
		t.Fatalf("stream queue: got %v ok=%v, want IDStream", sfr.ID, ok)
	}
}

func TestReceiver_DropsAckBeforeDeviceReady(t *testing.T) {
	ackWire, _ := proto.FrameCreate(proto.IDAck, proto.EncodeAck(0))
	tr := &scriptedTransport{chunks: [][]byte{ackWire}}
	r := NewReceiver(tr, func() bool { return false })
	r.Start()
	defer r.Stop()

	if _, ok := r.Control().popWait(200 * time.Millisecond); ok {
		t.Fatalf("expected ACK to be dropped before device ready")
	}
}

func TestReceiver_ResyncsPastGarbageAndCorruption(t *testing.T) {
	good, _ := proto.FrameCreate(proto.IDCmnInfo, proto.EncodeCmnInfo())
	corrupt := append([]byte(nil), good...)
	corrupt[len(corrupt)-1] ^= 0xFF // flip a CRC byte

	garbage := []byte{0x00, 0x01, 0x02}
	chunk := append(garbage, corrupt...)
	chunk = append(chunk, good...)

	tr := &scriptedTransport{chunks: [][]byte{chunk}}
	r := NewReceiver(tr, func() bool { return true })
	r.Start()
	defer r.Stop()

	fr, ok := r.Control().popWait(time.Second)
	if !ok || fr.ID != proto.IDCmnInfo {
		t.Fatalf("got %v ok=%v, want IDCmnInfo after resync", fr.ID, ok)
	}
}

func TestReceiver_WaitsForSplitFrame(t *testing.T) {
	good, _ := proto.FrameCreate(proto.IDCmnInfo, proto.EncodeCmnInfo())
	mid := len(good) / 2
	tr := &scriptedTransport{chunks: [][]byte{good[:mid], good[mid:]}}
	r := NewReceiver(tr, func() bool { return true })
	r.Start()
	defer r.Stop()

	fr, ok := r.Control().popWait(time.Second)
	if !ok || fr.ID != proto.IDCmnInfo {
		t.Fatalf("got %v ok=%v, want IDCmnInfo once split frame reassembles", fr.ID, ok)
	}
}
