package transport

import (
	"math/rand"
	"sync"
	"time"

	"github.com/railab/nxslib-go/internal/device"
	"github.com/railab/nxslib-go/internal/proto"
	"github.com/railab/nxslib-go/internal/threadrunner"
)

// Generator produces per-channel sample data for the dummy device, grounded
// on the original source's IDeviceChannelFunc (intf/dummy.py).
type Generator interface {
	Reset()
	// Get returns the next sample's values and optional metadata. ok is
	// false when this tick produces nothing to emit (e.g. a low-rate
	// generator skipping most ticks).
	Get(tick int) (values []float64, text string, meta []byte, ok bool)
}

// randomGen emits one uniform random float per tick.
type randomGen struct{}

func (randomGen) Reset() {}
func (randomGen) Get(int) ([]float64, string, []byte, bool) {
	return []float64{rand.Float64()}, "", nil, true
}

// triangleGen counts 0..1000 and wraps.
type triangleGen struct{ cntr int }

func (g *triangleGen) Reset() { g.cntr = 0 }
func (g *triangleGen) Get(int) ([]float64, string, []byte, bool) {
	g.cntr++
	if g.cntr > 1000 {
		g.cntr = 0
	}
	return []float64{float64(g.cntr)}, "", nil, true
}

// bounceGen counts up then down between -1000 and 1000.
type bounceGen struct {
	cntr int
	sign int
}

func newBounceGen() *bounceGen { return &bounceGen{sign: 1} }
func (g *bounceGen) Reset()    { g.cntr, g.sign = 0, 1 }
func (g *bounceGen) Get(int) ([]float64, string, []byte, bool) {
	g.cntr += g.sign
	if g.cntr > 1000 || g.cntr < -1000 {
		g.sign *= -1
	}
	return []float64{float64(g.cntr)}, "", nil, true
}

// vectorRandomGen emits n independent uniform randoms per tick.
type vectorRandomGen struct{ n int }

func (g vectorRandomGen) Reset() {}
func (g vectorRandomGen) Get(int) ([]float64, string, []byte, bool) {
	out := make([]float64, g.n)
	for i := range out {
		out[i] = rand.Float64()
	}
	return out, "", nil, true
}

// staticGen always emits the same fixed vector.
type staticGen struct{ values []float64 }

func (g staticGen) Reset() {}
func (g staticGen) Get(int) ([]float64, string, []byte, bool) {
	return g.values, "", nil, true
}

// stringGen emits "hello" once every 10000 ticks, nothing otherwise.
type stringGen struct{ cntr int }

func (g *stringGen) Reset() { g.cntr = 0 }
func (g *stringGen) Get(int) ([]float64, string, []byte, bool) {
	if g.cntr%10000 == 0 {
		g.cntr++
		return nil, "hello", nil, true
	}
	g.cntr++
	return nil, "", nil, false
}

// countingMetaGen emits a fixed vector with an incrementing one-byte counter
// in the metadata field, wrapping at 255.
type countingMetaGen struct {
	values []float64
	cntr   uint8
}

func (g *countingMetaGen) Reset() { g.cntr = 0 }
func (g *countingMetaGen) Get(int) ([]float64, string, []byte, bool) {
	meta := []byte{g.cntr}
	g.cntr++
	return g.values, "", meta, true
}

// metaOnlyGen emits no channel data, only a fixed metadata payload, for a
// dtype NONE channel that carries side-channel information in its meta field.
type metaOnlyGen struct{ meta []byte }

func (g metaOnlyGen) Reset() {}
func (g metaOnlyGen) Get(int) ([]float64, string, []byte, bool) {
	return nil, "", g.meta, true
}

// DefaultChannels builds the standard 10-channel dummy device layout,
// grounded on intf/dummy.py's DUMMY_DEV_CHANNELS.
func DefaultChannels() ([]device.Channel, []Generator) {
	channels := []device.Channel{
		{ID: 0, Type: byte(device.TypeFloat), VDim: 1, Name: "chan0"},
		{ID: 1, Type: byte(device.TypeFloat), VDim: 1, Name: "chan1"},
		{ID: 2, Type: byte(device.TypeFloat), VDim: 1, Name: "chan2"},
		{ID: 3, Type: byte(device.TypeFloat), VDim: 2, Name: "chan3"},
		{ID: 4, Type: byte(device.TypeFloat), VDim: 3, Name: "chan4"},
		{ID: 5, Type: byte(device.TypeFloat), VDim: 3, Name: "chan5"},
		{ID: 6, Type: byte(device.TypeChar), VDim: 64, Name: "chan6"},
		{ID: 7, Type: byte(device.TypeInt8), VDim: 3, MLen: 1, Name: "chan7"},
		{ID: 8, Type: byte(device.TypeNone), VDim: 0, MLen: 16, Name: "chan8"},
		{ID: 9, Type: byte(device.TypeUndef), VDim: 0, Name: ""},
	}
	generators := []Generator{
		randomGen{},
		&triangleGen{},
		newBounceGen(),
		vectorRandomGen{n: 2},
		vectorRandomGen{n: 3},
		staticGen{values: []float64{1.0, 0.0, -1.0}},
		&stringGen{},
		&countingMetaGen{values: []float64{1, 0, -1}},
		metaOnlyGen{meta: append([]byte("hello"), make([]byte, 11)...)},
		nil, // UNDEF: never enabled, never sampled
	}
	return channels, generators
}

// Dummy is an in-process loopback NxScope device: it implements Transport
// directly (no real bytes cross a socket) and replies to the host's
// CMNINFO/CHINFO/ENABLE/DIV/START requests exactly as a real device would,
// grounded on the original source's intf/dummy.py DummyDev.
type Dummy struct {
	dev        *device.Device
	state      *device.State
	generators []Generator
	userTypes  map[uint8]proto.UserType

	streamSleep time.Duration
	streamSnum  int
	tick        int

	qWrite chan []byte // host -> device (Write enqueues here)
	qRead  chan []byte // device -> host (Read dequeues here)

	readMu  sync.Mutex
	pending []byte // unread remainder of the last qRead item, if it didn't fit in p

	streaming bool
	runner    *threadrunner.Runner
}

// NewDummy builds a loopback dummy device with the default 10-channel
// layout. rxpadding is the number of NUL bytes the handshake must flush
// after CMNINFO (spec §4.4), mirroring the original's configurable rxpadding.
func NewDummy(rxpadding uint8) *Dummy {
	channels, generators := DefaultChannels()
	en := make([]bool, len(channels))
	div := make([]uint8, len(channels))
	d := &Dummy{
		dev: &device.Device{
			ChMax:     uint8(len(channels)),
			Flags:     device.FlagDividerSupport | device.FlagAckSupport,
			RxPadding: rxpadding,
			Channels:  channels,
		},
		state:       device.NewState(en, div),
		generators:  generators,
		streamSleep: time.Millisecond,
		streamSnum:  100,
		qWrite:      make(chan []byte, 256),
		qRead:       make(chan []byte, 4096),
	}
	d.runner = &threadrunner.Runner{Target: d.tickOnce}
	return d
}

// Start launches the device's background processing goroutine. Idempotent.
func (d *Dummy) Start() error {
	d.runner.Start()
	return nil
}

// Stop halts processing and drains both queues.
func (d *Dummy) Stop() {
	d.runner.Stop()
	d.DropAll()
}

// Device exposes the simulated device metadata, for tests that want to
// assert against it directly.
func (d *Dummy) Device() *device.Device { return d.dev }

func (d *Dummy) tickOnce() {
	select {
	case frame := <-d.qWrite:
		d.handleFrame(frame)
	default:
	}

	if d.streaming {
		d.emitStream(d.streamSnum)
		time.Sleep(d.streamSleep)
	} else {
		time.Sleep(time.Millisecond)
	}
}

func (d *Dummy) handleFrame(wire []byte) {
	fr, err := proto.FrameDecode(wire)
	if err != nil {
		return
	}
	switch fr.ID {
	case proto.IDCmnInfo:
		d.enqueueReply(proto.IDCmnInfo, proto.EncodeCmnInfoReply(d.dev.ChMax, d.dev.Flags, d.dev.RxPadding))
	case proto.IDChInfo:
		if len(fr.Payload) < 1 {
			return
		}
		ch, ok := d.dev.ChannelGet(fr.Payload[0])
		if !ok {
			return
		}
		en := d.state.IsEnabled(int(ch.ID))
		div := d.state.DivGet(int(ch.ID))
		d.enqueueReply(proto.IDChInfo, proto.EncodeChInfoReply(ch, en, div))
	case proto.IDEnable:
		out, err := proto.DecodeSet(fr.Payload, int(d.dev.ChMax))
		if err != nil {
			return
		}
		// A SINGLE set-frame changes only its own channel.
		single := proto.SetFlag(fr.Payload[0]) == proto.SetSingle
		for i, v := range out {
			if single && i != int(fr.Payload[1]) {
				continue
			}
			if v != 0 {
				d.state.Enable(i)
			} else {
				d.state.Disable(i)
			}
		}
		d.state.CommitEnable()
		d.ackIfSupported()
	case proto.IDDiv:
		out, err := proto.DecodeSet(fr.Payload, int(d.dev.ChMax))
		if err != nil {
			return
		}
		single := proto.SetFlag(fr.Payload[0]) == proto.SetSingle
		for i, v := range out {
			if single && i != int(fr.Payload[1]) {
				continue
			}
			d.state.SetDivider(v, i)
		}
		d.state.CommitDivider()
		d.ackIfSupported()
	case proto.IDStart:
		if len(fr.Payload) < 1 {
			return
		}
		d.streaming = fr.Payload[0] != 0
		d.ackIfSupported()
	}
}

func (d *Dummy) ackIfSupported() {
	if !d.dev.Flags.AckSupport() {
		return
	}
	d.enqueueReply(proto.IDAck, proto.EncodeAck(0))
}

func (d *Dummy) enqueueReply(id proto.FrameID, payload []byte) {
	wire, err := proto.FrameCreate(id, payload)
	if err != nil {
		return
	}
	select {
	case d.qRead <- wire:
	default:
	}
}

// emitStream samples every enabled channel snum times and pushes one STREAM
// reply carrying all passes, matching the original's "one stream_data_get call covers
// snum rounds of the full channel set" batching.
func (d *Dummy) emitStream(snum int) {
	var samples []proto.Sample
	for pass := 0; pass < snum; pass++ {
		d.tick++
		for i, ch := range d.dev.Channels {
			if !ch.IsValid() || !d.state.IsEnabled(i) {
				continue
			}
			gen := d.generators[i]
			if gen == nil {
				continue
			}
			values, text, meta, ok := gen.Get(d.tick)
			if !ok {
				continue
			}
			s := proto.Sample{Chan: ch.ID, DType: ch.DType(), VDim: ch.VDim, MLen: ch.MLen}
			if ch.DType() == device.TypeChar || ch.DType() == device.TypeWChar {
				s.Text = text
			} else {
				data := make([]any, len(values))
				for k, v := range values {
					data[k] = v
				}
				s.Data = data
			}
			if len(meta) > 0 {
				s.Meta = make([]any, len(meta))
				for k, b := range meta {
					s.Meta[k] = float64(b)
				}
			}
			samples = append(samples, s)
		}
	}
	if len(samples) == 0 {
		return
	}
	wire := encodeStreamPayload(samples)
	frame, err := proto.FrameCreate(proto.IDStream, wire)
	if err != nil {
		return
	}
	select {
	case d.qRead <- frame:
	default:
		// Overflow: the real device's queue would also be unbounded in the
		// original, but the in-process bridge keeps a bounded buffer; drop
		// this batch rather than blocking the simulated device thread.
	}
}

func encodeStreamPayload(samples []proto.Sample) []byte {
	out := []byte{0x00} // flags: no overflow
	for _, s := range samples {
		ch := device.Channel{ID: s.Chan, Type: byte(s.DType), VDim: s.VDim, MLen: s.MLen}
		var meta []byte
		for _, m := range s.Meta {
			if f, ok := m.(float64); ok {
				meta = append(meta, byte(uint8(f)))
			}
		}
		if s.DType == device.TypeChar || s.DType == device.TypeWChar {
			out = append(out, proto.EncodeStreamCharSample(ch, s.Text, meta)...)
			continue
		}
		values := make([]float64, len(s.Data))
		for i, v := range s.Data {
			if f, ok := v.(float64); ok {
				values[i] = f
			}
		}
		out = append(out, proto.EncodeStreamSample(ch, values, meta)...)
	}
	return out
}

// Read implements Transport: it blocks briefly for an outgoing reply/stream
// frame and returns (0, nil) on timeout, matching the "never blocks
// indefinitely" contract. A qRead item larger than p is handed out across
// multiple Read calls rather than truncated, since qRead items are opaque
// byte blobs (one stream frame carries all snum passes of an emitStream
// call and can exceed len(p)) and a byte
// transport must never drop unread bytes.
func (d *Dummy) Read(p []byte) (int, error) {
	d.readMu.Lock()
	defer d.readMu.Unlock()

	if len(d.pending) == 0 {
		select {
		case data := <-d.qRead:
			d.pending = data
		case <-time.After(defaultReadTimeout):
			return 0, nil
		}
	}

	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// Write implements Transport: it enqueues the wire frame for the device's
// background goroutine to process on its next tick.
func (d *Dummy) Write(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	select {
	case d.qWrite <- cp:
	default:
	}
	return len(p), nil
}

// DropAll discards buffered bytes in both directions, including any
// not-yet-consumed remainder from a prior truncated Read.
func (d *Dummy) DropAll() {
	d.readMu.Lock()
	d.pending = nil
	d.readMu.Unlock()
	for {
		select {
		case <-d.qWrite:
		case <-d.qRead:
		default:
			return
		}
	}
}

func (d *Dummy) Close() error {
	d.Stop()
	return nil
}

var _ Transport = (*Dummy)(nil)
