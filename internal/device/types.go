// Package device holds the NxScope device/channel metadata model and the
// per-channel enabled/divider state machine (the "now" vs "new" snapshots of
// spec §4.5).
package device

// ChannelType is the low 5 bits of a channel's type byte (dtype).
type ChannelType uint8

const (
	TypeUndef ChannelType = 0
	TypeNone  ChannelType = 1
	TypeUint8 ChannelType = 2
	TypeInt8  ChannelType = 3
	TypeUint16 ChannelType = 4
	TypeInt16  ChannelType = 5
	TypeUint32 ChannelType = 6
	TypeInt32  ChannelType = 7
	TypeUint64 ChannelType = 8
	TypeInt64  ChannelType = 9
	TypeFloat  ChannelType = 10
	TypeDouble ChannelType = 11
	TypeUB8  ChannelType = 12
	TypeB8   ChannelType = 13
	TypeUB16 ChannelType = 14
	TypeB16  ChannelType = 15
	TypeUB32 ChannelType = 16
	TypeB32  ChannelType = 17
	TypeChar  ChannelType = 18
	TypeWChar ChannelType = 19
	// dtypes TypeUserFirst..TypeUserLast (20..31) are host-registered user types.
	TypeUserFirst ChannelType = 20
	TypeUserLast  ChannelType = 31
)

// IsUser reports whether dtype falls in the user-defined range [20,31].
func (t ChannelType) IsUser() bool { return t >= TypeUserFirst && t <= TypeUserLast }

// Flags are device capability bits reported in the CMNINFO reply.
type Flags uint8

const (
	FlagDividerSupport Flags = 1 << 0
	FlagAckSupport     Flags = 1 << 1
)

func (f Flags) DividerSupport() bool { return f&FlagDividerSupport != 0 }
func (f Flags) AckSupport() bool     { return f&FlagAckSupport != 0 }
