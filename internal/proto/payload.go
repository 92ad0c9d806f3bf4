package proto

import (
	"encoding/binary"
	"math"

	"github.com/railab/nxslib-go/internal/device"
)

// ---------------------------------------------------------------------
// Request payloads (host -> device)
// ---------------------------------------------------------------------

// EncodeStart builds a START request payload: one boolean byte.
func EncodeStart(start bool) []byte {
	if start {
		return []byte{1}
	}
	return []byte{0}
}

// EncodeCmnInfo builds a CMNINFO request payload: empty.
func EncodeCmnInfo() []byte { return nil }

// EncodeChInfo builds a CHINFO request payload: one channel-id byte.
func EncodeChInfo(chan_ uint8) []byte { return []byte{chan_} }

func setFrameHeader(flag SetFlag, chanID uint8) []byte {
	return []byte{byte(flag), chanID}
}

// encodeSetSingle builds the SINGLE-flag ENABLE/DIV body for one channel.
func encodeSetSingle(chanID uint8, value byte) []byte {
	return append(setFrameHeader(SetSingle, chanID), value)
}

func encodeSetAll(value byte) []byte {
	return append(setFrameHeader(SetAll, 0), value)
}

func encodeSetBulk(values []byte) []byte {
	return append(setFrameHeader(SetBulk, 0), values...)
}

// EncodeEnableFromDiff builds the ENABLE request body for a device.BoolDiff,
// choosing SINGLE/ALL/BULK per the commit-minimality invariant (spec §8).
func EncodeEnableFromDiff(d device.BoolDiff) []byte {
	switch d.Kind {
	case device.DiffSingle:
		return encodeSetSingle(uint8(d.Index), boolByte(d.Value))
	case device.DiffAll:
		return encodeSetAll(boolByte(d.Value))
	default:
		out := make([]byte, len(d.All))
		for i, v := range d.All {
			out[i] = boolByte(v)
		}
		return encodeSetBulk(out)
	}
}

// EncodeDivFromDiff builds the DIV request body for a device.IntDiff.
func EncodeDivFromDiff(d device.IntDiff) []byte {
	switch d.Kind {
	case device.DiffSingle:
		return encodeSetSingle(uint8(d.Index), d.Value)
	case device.DiffAll:
		return encodeSetAll(d.Value)
	default:
		return encodeSetBulk(d.All)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------
// Set-frame decode (used by tests and the dummy device to interpret what the
// host just sent)
// ---------------------------------------------------------------------

// DecodeSet decodes an ENABLE/DIV request body into a full per-channel
// vector of chmax bytes, the inverse of Encode*FromDiff.
func DecodeSet(body []byte, chmax int) ([]byte, error) {
	if len(body) < 2 {
		return nil, ErrProtocol
	}
	flag := SetFlag(body[0])
	chanID := body[1]
	rest := body[2:]
	out := make([]byte, chmax)
	switch flag {
	case SetSingle:
		if len(rest) < 1 || int(chanID) >= chmax {
			return nil, ErrProtocol
		}
		out[chanID] = rest[0]
	case SetAll:
		if len(rest) < 1 {
			return nil, ErrProtocol
		}
		for i := range out {
			out[i] = rest[0]
		}
	case SetBulk:
		if len(rest) < chmax {
			return nil, ErrProtocol
		}
		copy(out, rest[:chmax])
	default:
		return nil, ErrProtocol
	}
	return out, nil
}

// ---------------------------------------------------------------------
// Reply payloads (device -> host)
// ---------------------------------------------------------------------

// CmnInfo is the decoded CMNINFO reply.
type CmnInfo struct {
	ChMax     uint8
	Flags     device.Flags
	RxPadding uint8
}

// DecodeCmnInfo parses a CMNINFO reply: chmax(1) flags(1) rxpadding(1).
func DecodeCmnInfo(payload []byte) (CmnInfo, error) {
	if len(payload) < 3 {
		return CmnInfo{}, ErrProtocol
	}
	return CmnInfo{
		ChMax:     payload[0],
		Flags:     device.Flags(payload[1]),
		RxPadding: payload[2],
	}, nil
}

// DecodeChInfo parses a CHINFO reply:
// en(1) type(1) vdim(1) div(1) mlen(1) name(rest, NUL-terminated or not).
func DecodeChInfo(payload []byte, chanID uint8) (device.Channel, bool, uint8, error) {
	if len(payload) < 5 {
		return device.Channel{}, false, 0, ErrProtocol
	}
	en := payload[0] != 0
	typ := payload[1]
	vdim := payload[2]
	div := payload[3]
	mlen := payload[4]
	name := ""
	if len(payload) > 5 {
		raw := payload[5:]
		if i := indexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}
		name = string(raw)
	}
	return device.Channel{
		ID:   chanID,
		Type: typ,
		VDim: vdim,
		Name: name,
		MLen: mlen,
	}, en, div, nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// Ack is the decoded ACK reply.
type Ack struct {
	OK      bool
	RetCode int32
}

// DecodeAck parses an ACK reply: retcode LE i32.
func DecodeAck(payload []byte) (Ack, error) {
	if len(payload) < 4 {
		return Ack{}, ErrProtocol
	}
	ret := int32(binary.LittleEndian.Uint32(payload[:4]))
	return Ack{OK: ret == 0, RetCode: ret}, nil
}

// EncodeAck builds an ACK reply payload: retcode LE i32.
func EncodeAck(retCode int32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(retCode))
	return out
}

// EncodeCmnInfoReply builds a CMNINFO reply payload from a device snapshot.
func EncodeCmnInfoReply(chmax uint8, flags device.Flags, rxpadding uint8) []byte {
	return []byte{chmax, byte(flags), rxpadding}
}

// EncodeChInfoReply builds a CHINFO reply payload for one channel, given its
// current enabled/divider state.
func EncodeChInfoReply(ch device.Channel, en bool, div uint8) []byte {
	out := make([]byte, 0, 5+len(ch.Name)+1)
	out = append(out, boolByte(en), ch.Type, ch.VDim, div, ch.MLen)
	out = append(out, []byte(ch.Name)...)
	out = append(out, 0)
	return out
}

// ---------------------------------------------------------------------
// Stream sample codec
// ---------------------------------------------------------------------

// Kind classifies how a dtype's values decode, for user-defined types.
type Kind int

const (
	KindNone Kind = iota
	KindNum
	KindChar
	KindComplex
)

// UserType is a host-registered decoder for dtype in [20,31].
type UserType struct {
	// Format is a struct-style per-value format string; only the byte
	// widths "bBhHiIqQfd" are understood, one verb per sub-value.
	Format string
	Kind   Kind
	// SubKinds describes each decoded sub-value's kind for COMPLEX types.
	SubKinds []Kind
}

func (u UserType) width() int {
	w := 0
	for _, c := range u.Format {
		w += formatWidth(c)
	}
	return w
}

func formatWidth(c rune) int {
	switch c {
	case 'b', 'B':
		return 1
	case 'h', 'H':
		return 2
	case 'i', 'I', 'f':
		return 4
	case 'q', 'Q', 'd':
		return 8
	default:
		return 0
	}
}

// Sample is one decoded stream sample.
type Sample struct {
	Chan  uint8
	DType device.ChannelType
	VDim  uint8
	MLen  uint8
	Data  []any
	Meta  []any
	Text  string // populated instead of Data for CHAR/WCHAR
}

// StreamPayload is a decoded STREAM reply.
type StreamPayload struct {
	Flags   StreamFlag
	Samples []Sample
}

// builtin's width and scale describe the wire layout of the built-in numeric
// dtypes, grounded on the original source's dsfmt_get table.
type builtin struct {
	width int
	scale float64 // 0 means unscaled (floats, ints with scale 1 collapse to 0 too)
	kind  Kind
}

var builtinTable = map[device.ChannelType]builtin{
	device.TypeNone:   {0, 0, KindNone},
	device.TypeUint8:  {1, 0, KindNum},
	device.TypeInt8:   {1, 0, KindNum},
	device.TypeUint16: {2, 0, KindNum},
	device.TypeInt16:  {2, 0, KindNum},
	device.TypeUint32: {4, 0, KindNum},
	device.TypeInt32:  {4, 0, KindNum},
	device.TypeUint64: {8, 0, KindNum},
	device.TypeInt64:  {8, 0, KindNum},
	device.TypeFloat:  {4, 0, KindNum},
	device.TypeDouble: {8, 0, KindNum},
	device.TypeUB8:    {2, 256, KindNum},
	device.TypeB8:     {2, 256, KindNum},
	device.TypeUB16:   {4, 65536, KindNum},
	device.TypeB16:    {4, 65536, KindNum},
	device.TypeUB32:   {8, 4294967296, KindNum},
	device.TypeB32:    {8, 4294967296, KindNum},
	device.TypeChar:   {1, 0, KindChar},
	device.TypeWChar:  {1, 0, KindChar},
}

// decodeBuiltinValue returns the raw (unscaled) decoded integer/float. The
// caller divides by builtin.scale when scale > 0, so fixed-point scaling
// happens exactly once.
func decodeBuiltinValue(dt device.ChannelType, raw []byte) any {
	switch dt {
	case device.TypeUint8:
		return float64(raw[0])
	case device.TypeInt8:
		return float64(int8(raw[0]))
	case device.TypeUint16:
		return float64(binary.LittleEndian.Uint16(raw))
	case device.TypeInt16:
		return float64(int16(binary.LittleEndian.Uint16(raw)))
	case device.TypeUint32:
		return float64(binary.LittleEndian.Uint32(raw))
	case device.TypeInt32:
		return float64(int32(binary.LittleEndian.Uint32(raw)))
	case device.TypeUint64:
		return float64(binary.LittleEndian.Uint64(raw))
	case device.TypeInt64:
		return float64(int64(binary.LittleEndian.Uint64(raw)))
	case device.TypeFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))
	case device.TypeDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(raw))
	case device.TypeUB8:
		return float64(binary.LittleEndian.Uint16(raw))
	case device.TypeB8:
		return float64(int16(binary.LittleEndian.Uint16(raw)))
	case device.TypeUB16:
		return float64(binary.LittleEndian.Uint32(raw))
	case device.TypeB16:
		return float64(int32(binary.LittleEndian.Uint32(raw)))
	case device.TypeUB32:
		return float64(binary.LittleEndian.Uint64(raw))
	case device.TypeB32:
		return float64(int64(binary.LittleEndian.Uint64(raw)))
	default:
		return nil
	}
}

// encodeBuiltinValue is the inverse of decodeBuiltinValue, used by the dummy
// device to produce wire-correct stream frames in tests.
func encodeBuiltinValue(dt device.ChannelType, v float64, out []byte) {
	switch dt {
	case device.TypeUint8:
		out[0] = byte(uint8(v))
	case device.TypeInt8:
		out[0] = byte(int8(v))
	case device.TypeUint16:
		binary.LittleEndian.PutUint16(out, uint16(v))
	case device.TypeInt16:
		binary.LittleEndian.PutUint16(out, uint16(int16(v)))
	case device.TypeUint32:
		binary.LittleEndian.PutUint32(out, uint32(v))
	case device.TypeInt32:
		binary.LittleEndian.PutUint32(out, uint32(int32(v)))
	case device.TypeUint64:
		binary.LittleEndian.PutUint64(out, uint64(v))
	case device.TypeInt64:
		binary.LittleEndian.PutUint64(out, uint64(int64(v)))
	case device.TypeFloat:
		binary.LittleEndian.PutUint32(out, math.Float32bits(float32(v)))
	case device.TypeDouble:
		binary.LittleEndian.PutUint64(out, math.Float64bits(v))
	case device.TypeUB8:
		binary.LittleEndian.PutUint16(out, uint16(v))
	case device.TypeB8:
		binary.LittleEndian.PutUint16(out, uint16(int16(v)))
	case device.TypeUB16:
		binary.LittleEndian.PutUint32(out, uint32(v))
	case device.TypeB16:
		binary.LittleEndian.PutUint32(out, uint32(int32(v)))
	case device.TypeUB32:
		binary.LittleEndian.PutUint64(out, uint64(v))
	case device.TypeB32:
		binary.LittleEndian.PutUint64(out, uint64(int64(v)))
	}
}

func metaWidth(mlen uint8) int { return int(mlen) }

func decodeMeta(mlen uint8, raw []byte) []any {
	switch mlen {
	case 0:
		return nil
	case 1:
		return []any{float64(raw[0])}
	case 2:
		return []any{float64(binary.LittleEndian.Uint16(raw))}
	case 4:
		return []any{float64(binary.LittleEndian.Uint32(raw))}
	case 8:
		return []any{float64(binary.LittleEndian.Uint64(raw))}
	default:
		out := make([]any, len(raw))
		for i, b := range raw {
			out[i] = b
		}
		return out
	}
}

// DecodeStream parses a STREAM reply payload given the device's channel
// table (for per-channel dtype/vdim/mlen) and an optional user-type table.
// A payload that runs past its declared length is an ErrProtocol; the caller
// (pkg/nxslib's stream dispatcher) drops the frame. The receive pipeline has
// already consumed the frame's bytes by then, so no byte-level resync follows.
func DecodeStream(payload []byte, dev *device.Device, userTypes map[uint8]UserType) (StreamPayload, error) {
	if len(payload) < 1 {
		return StreamPayload{}, ErrProtocol
	}
	flags := StreamFlag(payload[0])
	i := 1
	var samples []Sample
	for i < len(payload) {
		chanID := payload[i]
		i++
		ch, ok := dev.ChannelGet(chanID)
		if !ok {
			return StreamPayload{}, ErrProtocol
		}
		sample, n, err := decodeOneSample(ch, payload[i:], userTypes)
		if err != nil {
			return StreamPayload{}, err
		}
		i += n
		samples = append(samples, sample)
	}
	return StreamPayload{Flags: flags, Samples: samples}, nil
}

func decodeOneSample(ch device.Channel, rest []byte, userTypes map[uint8]UserType) (Sample, int, error) {
	dt := ch.DType()
	n := 0
	sample := Sample{Chan: ch.ID, DType: dt, VDim: ch.VDim, MLen: ch.MLen}

	if dt.IsUser() {
		ut, ok := userTypes[uint8(dt)]
		if !ok {
			return Sample{}, 0, ErrProtocol
		}
		width := ut.width()
		if len(rest) < width {
			return Sample{}, 0, ErrProtocol
		}
		data, err := decodeUserValues(ut, rest[:width])
		if err != nil {
			return Sample{}, 0, err
		}
		sample.Data = data
		n += width
	} else {
		b, ok := builtinTable[dt]
		if !ok {
			return Sample{}, 0, ErrProtocol
		}
		if dt == device.TypeChar || dt == device.TypeWChar {
			vdim := int(ch.VDim)
			if len(rest) < vdim {
				return Sample{}, 0, ErrProtocol
			}
			raw := rest[:vdim]
			if j := indexByte(raw, 0); j >= 0 {
				sample.Text = string(raw[:j])
			} else {
				sample.Text = string(raw)
			}
			n += vdim
		} else {
			vdim := int(ch.VDim)
			total := b.width * vdim
			if len(rest) < total {
				return Sample{}, 0, ErrProtocol
			}
			data := make([]any, vdim)
			for k := 0; k < vdim; k++ {
				raw := rest[k*b.width : (k+1)*b.width]
				v := decodeBuiltinValue(dt, raw)
				if b.scale > 0 {
					v = v.(float64) / b.scale
				}
				data[k] = v
			}
			sample.Data = data
			n += total
		}
	}

	mw := metaWidth(ch.MLen)
	if len(rest) < n+mw {
		return Sample{}, 0, ErrProtocol
	}
	sample.Meta = decodeMeta(ch.MLen, rest[n:n+mw])
	n += mw

	return sample, n, nil
}

func decodeUserValues(ut UserType, raw []byte) ([]any, error) {
	out := make([]any, 0, len(ut.Format))
	off := 0
	for _, c := range ut.Format {
		w := formatWidth(c)
		if w == 0 || off+w > len(raw) {
			return nil, ErrProtocol
		}
		out = append(out, decodeFormatValue(c, raw[off:off+w]))
		off += w
	}
	return out, nil
}

func decodeFormatValue(c rune, raw []byte) any {
	switch c {
	case 'b':
		return float64(int8(raw[0]))
	case 'B':
		return float64(raw[0])
	case 'h':
		return float64(int16(binary.LittleEndian.Uint16(raw)))
	case 'H':
		return float64(binary.LittleEndian.Uint16(raw))
	case 'i':
		return float64(int32(binary.LittleEndian.Uint32(raw)))
	case 'I':
		return float64(binary.LittleEndian.Uint32(raw))
	case 'q':
		return float64(int64(binary.LittleEndian.Uint64(raw)))
	case 'Q':
		return float64(binary.LittleEndian.Uint64(raw))
	case 'f':
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))
	case 'd':
		return math.Float64frombits(binary.LittleEndian.Uint64(raw))
	default:
		return nil
	}
}

// EncodeStreamSample writes one wire sample (chan + value bytes + meta) for
// the dummy device / tests. vdim is taken from ch.VDim for builtin types.
func EncodeStreamSample(ch device.Channel, values []float64, meta []byte) []byte {
	dt := ch.DType()
	var body []byte
	if b, known := builtinTable[dt]; known && dt != device.TypeChar && dt != device.TypeWChar {
		body = make([]byte, b.width*int(ch.VDim))
		for k, v := range values {
			if k >= int(ch.VDim) {
				break
			}
			vv := v
			if b.scale > 0 {
				vv = v * b.scale
			}
			encodeBuiltinValue(dt, vv, body[k*b.width:(k+1)*b.width])
		}
	}
	out := make([]byte, 0, 1+len(body)+len(meta))
	out = append(out, ch.ID)
	out = append(out, body...)
	out = append(out, meta...)
	return out
}

// EncodeStreamCharSample writes one CHAR/WCHAR wire sample.
func EncodeStreamCharSample(ch device.Channel, text string, meta []byte) []byte {
	raw := []byte(text)
	if len(raw) < int(ch.VDim) {
		padded := make([]byte, ch.VDim)
		copy(padded, raw)
		raw = padded
	} else {
		raw = raw[:ch.VDim]
	}
	out := make([]byte, 0, 1+len(raw)+len(meta))
	out = append(out, ch.ID)
	out = append(out, raw...)
	out = append(out, meta...)
	return out
}
