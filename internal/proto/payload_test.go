package proto

import (
	"bytes"
	"testing"

	"github.com/railab/nxslib-go/internal/device"
)

func TestEncodeDecodeSet_Single(t *testing.T) {
	d := device.BoolDiff{Kind: device.DiffSingle, Index: 3, Value: true}
	body := EncodeEnableFromDiff(d)
	if !bytes.Equal(body, []byte{byte(SetSingle), 3, 1}) {
		t.Fatalf("body = %x", body)
	}
	out, err := DecodeSet(body, 5)
	if err != nil {
		t.Fatalf("DecodeSet: %v", err)
	}
	want := []byte{0, 0, 0, 1, 0}
	if !bytes.Equal(out, want) {
		t.Fatalf("out = %v, want %v", out, want)
	}
}

func TestEncodeDecodeSet_All(t *testing.T) {
	d := device.BoolDiff{Kind: device.DiffAll, Value: true}
	body := EncodeEnableFromDiff(d)
	if !bytes.Equal(body, []byte{byte(SetAll), 0, 1}) {
		t.Fatalf("body = %x", body)
	}
	out, err := DecodeSet(body, 4)
	if err != nil {
		t.Fatalf("DecodeSet: %v", err)
	}
	want := []byte{1, 1, 1, 1}
	if !bytes.Equal(out, want) {
		t.Fatalf("out = %v, want %v", out, want)
	}
}

func TestEncodeDecodeSet_Bulk(t *testing.T) {
	d := device.BoolDiff{Kind: device.DiffBulk, All: []bool{true, false, true}}
	body := EncodeEnableFromDiff(d)
	if !bytes.Equal(body, []byte{byte(SetBulk), 0, 1, 0, 1}) {
		t.Fatalf("body = %x", body)
	}
	out, err := DecodeSet(body, 3)
	if err != nil {
		t.Fatalf("DecodeSet: %v", err)
	}
	want := []byte{1, 0, 1}
	if !bytes.Equal(out, want) {
		t.Fatalf("out = %v, want %v", out, want)
	}
}

func TestEncodeDivFromDiff_Single(t *testing.T) {
	d := device.IntDiff{Kind: device.DiffSingle, Index: 2, Value: 7}
	body := EncodeDivFromDiff(d)
	if !bytes.Equal(body, []byte{byte(SetSingle), 2, 7}) {
		t.Fatalf("body = %x", body)
	}
}

// Scenario 4 of the wire examples: enabling channel 1 alone on a 3-channel
// device produces body 00 01 01 (SINGLE, chan 1, value 1).
func TestEnableFromDiff_ScenarioFour(t *testing.T) {
	s := device.NewState([]bool{false, false, false}, []uint8{0, 0, 0})
	s.Enable(1)
	d := s.EnableDiff()
	body := EncodeEnableFromDiff(d)
	want := []byte{0x00, 0x01, 0x01}
	if !bytes.Equal(body, want) {
		t.Fatalf("body = %x, want %x", body, want)
	}
}

// Scenario 2: CMNINFO reply 0A 03 10 -> chmax=10 flags=0b11 rxpadding=16.
func TestDecodeCmnInfo_ScenarioTwo(t *testing.T) {
	ci, err := DecodeCmnInfo([]byte{0x0A, 0x03, 0x10})
	if err != nil {
		t.Fatalf("DecodeCmnInfo: %v", err)
	}
	if ci.ChMax != 10 || ci.Flags != 3 || ci.RxPadding != 16 {
		t.Fatalf("got %+v", ci)
	}
	if !ci.Flags.DividerSupport() || !ci.Flags.AckSupport() {
		t.Fatalf("flags should report both capabilities set: %+v", ci.Flags)
	}
}

func TestDecodeCmnInfo_Short(t *testing.T) {
	if _, err := DecodeCmnInfo([]byte{0x0A, 0x03}); err == nil {
		t.Fatalf("expected error on short payload")
	}
}

// Scenario 3: CHINFO reply 01 0A 01 00 00 'c' 'h' '0' for channel 0 ->
// en=true type=10 vdim=1 div=0 mlen=0 name="ch0".
func TestDecodeChInfo_ScenarioThree(t *testing.T) {
	payload := []byte{0x01, 0x0A, 0x01, 0x00, 0x00, 'c', 'h', '0'}
	ch, en, div, err := DecodeChInfo(payload, 0)
	if err != nil {
		t.Fatalf("DecodeChInfo: %v", err)
	}
	if !en {
		t.Fatalf("en = false, want true")
	}
	if div != 0 {
		t.Fatalf("div = %d, want 0", div)
	}
	if ch.ID != 0 || ch.DType() != device.TypeFloat || ch.VDim != 1 || ch.MLen != 0 || ch.Name != "ch0" {
		t.Fatalf("got %+v", ch)
	}
}

func TestDecodeChInfo_NameWithoutNUL(t *testing.T) {
	payload := []byte{0x00, 0x02, 0x01, 0x00, 0x00, 'a', 'b'}
	ch, en, _, err := DecodeChInfo(payload, 5)
	if err != nil {
		t.Fatalf("DecodeChInfo: %v", err)
	}
	if en {
		t.Fatalf("en = true, want false")
	}
	if ch.Name != "ab" {
		t.Fatalf("name = %q, want ab", ch.Name)
	}
}

func TestDecodeAck(t *testing.T) {
	ok, err := DecodeAck([]byte{0, 0, 0, 0})
	if err != nil || !ok.OK || ok.RetCode != 0 {
		t.Fatalf("got %+v, err %v", ok, err)
	}
	bad, err := DecodeAck([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if err != nil || bad.OK || bad.RetCode != -1 {
		t.Fatalf("got %+v, err %v", bad, err)
	}
}

// Scenario 5: STREAM payload 00 01 00 00 80 3F decodes to one FLOAT sample on
// channel 1 with value 1.0 and no metadata.
func TestDecodeStream_ScenarioFive(t *testing.T) {
	dev := &device.Device{
		Channels: []device.Channel{
			{},
			{ID: 1, Type: byte(device.TypeFloat), VDim: 1, MLen: 0, Name: "ch1"},
		},
	}
	payload := []byte{0x00, 0x01, 0x00, 0x00, 0x80, 0x3F}
	sp, err := DecodeStream(payload, dev, nil)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if sp.Flags.IsOverflow() {
		t.Fatalf("unexpected overflow flag")
	}
	if len(sp.Samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(sp.Samples))
	}
	s := sp.Samples[0]
	if s.Chan != 1 || len(s.Data) != 1 {
		t.Fatalf("got %+v", s)
	}
	if v, ok := s.Data[0].(float64); !ok || v != 1.0 {
		t.Fatalf("data[0] = %v, want 1.0", s.Data[0])
	}
}

// Scenario 6: flags byte 0x01 reports an overflow condition.
func TestDecodeStream_ScenarioSix_Overflow(t *testing.T) {
	dev := &device.Device{Channels: []device.Channel{}}
	sp, err := DecodeStream([]byte{0x01}, dev, nil)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if !sp.Flags.IsOverflow() {
		t.Fatalf("expected overflow flag set")
	}
	if len(sp.Samples) != 0 {
		t.Fatalf("expected no samples, got %d", len(sp.Samples))
	}
}

func TestStreamSample_RoundTrip_FixedPoint(t *testing.T) {
	cases := []struct {
		name string
		dt   device.ChannelType
		val  float64
	}{
		{"uint8", device.TypeUint8, 200},
		{"int8", device.TypeInt8, -5},
		{"uint16", device.TypeUint16, 40000},
		{"int16", device.TypeInt16, -1234},
		{"float", device.TypeFloat, 3.5},
		{"double", device.TypeDouble, -2.25},
		{"ub8", device.TypeUB8, 1.5},
		{"b8", device.TypeB8, -1.5},
		{"ub16", device.TypeUB16, 2.25},
		{"b16", device.TypeB16, -2.25},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ch := device.Channel{ID: 4, Type: byte(c.dt), VDim: 1, MLen: 0}
			wire := EncodeStreamSample(ch, []float64{c.val}, nil)
			dev := &device.Device{Channels: []device.Channel{{}, {}, {}, {}, ch}}
			sp, err := DecodeStream(append([]byte{0x00}, wire...), dev, nil)
			if err != nil {
				t.Fatalf("DecodeStream: %v", err)
			}
			if len(sp.Samples) != 1 {
				t.Fatalf("samples = %d", len(sp.Samples))
			}
			got := sp.Samples[0].Data[0].(float64)
			if diff := got - c.val; diff < -0.01 || diff > 0.01 {
				t.Fatalf("got %v, want %v", got, c.val)
			}
		})
	}
}

func TestStreamSample_CharRoundTrip(t *testing.T) {
	ch := device.Channel{ID: 2, Type: byte(device.TypeChar), VDim: 5, MLen: 0}
	wire := EncodeStreamCharSample(ch, "hi", nil)
	dev := &device.Device{Channels: []device.Channel{{}, {}, ch}}
	sp, err := DecodeStream(append([]byte{0x00}, wire...), dev, nil)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if sp.Samples[0].Text != "hi" {
		t.Fatalf("text = %q, want hi", sp.Samples[0].Text)
	}
}

func TestStreamSample_WithMeta(t *testing.T) {
	ch := device.Channel{ID: 1, Type: byte(device.TypeUint8), VDim: 1, MLen: 2}
	wire := EncodeStreamSample(ch, []float64{42}, []byte{0x34, 0x12})
	dev := &device.Device{Channels: []device.Channel{{}, ch}}
	sp, err := DecodeStream(append([]byte{0x00}, wire...), dev, nil)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	s := sp.Samples[0]
	if s.Data[0].(float64) != 42 {
		t.Fatalf("data = %v", s.Data)
	}
	if len(s.Meta) != 1 || s.Meta[0].(float64) != 0x1234 {
		t.Fatalf("meta = %v", s.Meta)
	}
}

func TestStreamSample_VDimGreaterThanOne(t *testing.T) {
	ch := device.Channel{ID: 3, Type: byte(device.TypeUint16), VDim: 3, MLen: 0}
	wire := EncodeStreamSample(ch, []float64{1, 2, 3}, nil)
	dev := &device.Device{Channels: []device.Channel{{}, {}, {}, ch}}
	sp, err := DecodeStream(append([]byte{0x00}, wire...), dev, nil)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	s := sp.Samples[0]
	if len(s.Data) != 3 {
		t.Fatalf("data len = %d, want 3", len(s.Data))
	}
	for i, want := range []float64{1, 2, 3} {
		if s.Data[i].(float64) != want {
			t.Fatalf("data[%d] = %v, want %v", i, s.Data[i], want)
		}
	}
}

func TestDecodeStream_UnknownChannel(t *testing.T) {
	dev := &device.Device{Channels: []device.Channel{}}
	if _, err := DecodeStream([]byte{0x00, 0x05, 0x00}, dev, nil); err == nil {
		t.Fatalf("expected error for out-of-range channel")
	}
}

func TestUserType_Decode(t *testing.T) {
	ch := device.Channel{ID: 1, Type: byte(device.TypeUserFirst), VDim: 1, MLen: 0}
	ut := UserType{Format: "hB", Kind: KindComplex, SubKinds: []Kind{KindNum, KindNum}}
	userTypes := map[uint8]UserType{uint8(device.TypeUserFirst): ut}
	// h = int16 LE (-1), B = uint8 (9)
	payload := []byte{0x00, 0x01, 0xFF, 0xFF, 0x09}
	dev := &device.Device{Channels: []device.Channel{{}, ch}}
	sp, err := DecodeStream(payload, dev, userTypes)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	s := sp.Samples[0]
	if len(s.Data) != 2 {
		t.Fatalf("data = %v", s.Data)
	}
	if s.Data[0].(float64) != -1 || s.Data[1].(float64) != 9 {
		t.Fatalf("data = %v", s.Data)
	}
}

func TestUserType_MissingTable(t *testing.T) {
	ch := device.Channel{ID: 1, Type: byte(device.TypeUserFirst), VDim: 1, MLen: 0}
	dev := &device.Device{Channels: []device.Channel{{}, ch}}
	if _, err := DecodeStream([]byte{0x00, 0x01, 0x00}, dev, nil); err == nil {
		t.Fatalf("expected error when no user type registered")
	}
}
