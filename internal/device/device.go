package device

import "fmt"

// Channel is the immutable, device-reported metadata for one channel. The
// mutable enabled/divider state lives in State, not here.
type Channel struct {
	ID   uint8
	Type uint8 // raw type byte: low 5 bits dtype, bit 7 critical, bits 5-6 reserved
	VDim uint8
	Name string
	MLen uint8
}

// DType extracts the channel's data type from the raw type byte.
func (c Channel) DType() ChannelType { return ChannelType(c.Type & 0x1F) }

// Critical reports whether bit 7 of the type byte is set.
func (c Channel) Critical() bool { return c.Type&0x80 != 0 }

// IsValid reports dtype != UNDEF.
func (c Channel) IsValid() bool { return c.DType() != TypeUndef }

// IsNumerical reports IsValid and dtype not in {NONE, CHAR, WCHAR}.
func (c Channel) IsNumerical() bool {
	if !c.IsValid() {
		return false
	}
	switch c.DType() {
	case TypeNone, TypeChar, TypeWChar:
		return false
	default:
		return true
	}
}

func (c Channel) String() string {
	return fmt.Sprintf("Channel(id=%d dtype=%d vdim=%d mlen=%d name=%q)",
		c.ID, c.DType(), c.VDim, c.MLen, c.Name)
}

// Device is the immutable record of device capabilities and channel
// metadata, populated once at connect and cleared at disconnect.
type Device struct {
	ChMax     uint8
	Flags     Flags
	RxPadding uint8
	Channels  []Channel
}

// ChannelGet returns channel i, or false if out of range.
func (d *Device) ChannelGet(i uint8) (Channel, bool) {
	if d == nil || int(i) >= len(d.Channels) {
		return Channel{}, false
	}
	return d.Channels[i], true
}

func (d *Device) String() string {
	if d == nil {
		return "Device(none)"
	}
	return fmt.Sprintf("Device(chmax=%d flags=%02b rxpadding=%d)", d.ChMax, d.Flags, d.RxPadding)
}
