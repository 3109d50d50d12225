package ie

import "errors"

var (
	// ErrOverrun is returned when an IE's declared length overruns the
	// frame; spec.md §4.2 says such a message must be rejected.
	ErrOverrun = errors.New("ie: declared length overruns frame")
	ErrShort   = errors.New("ie: not enough bytes for this IE")
)

// ChannelID is the decoded Channel Identifier IE (spec.md §4.3).
type ChannelID struct {
	PRI         bool // interface type: true=PRI, false=BRI/other
	Exclusive   bool // true=exclusive, false=preferred
	DS1Explicit bool
	DS1         uint8
	HasChannel  bool // a single channel number or slotmap follows
	ChannelNo   int  // -1 if SlotMap is used instead
	SlotMap     uint32
}

// DecodeChannelID follows the Q.931 bit layout in spec.md §4.3, not the
// operator-precedence bug recorded in spec.md §9 ("follow the Q.931 spec
// rather than copy the source").
func DecodeChannelID(data []byte) (ChannelID, error) {
	if len(data) < 1 {
		return ChannelID{}, ErrShort
	}
	var c ChannelID
	c.PRI = data[0]&0x20 != 0
	if data[0]&3 != 1 {
		return ChannelID{}, errors.New("ie: unexpected channel selection")
	}
	c.Exclusive = data[0]&0x08 != 0
	c.DS1Explicit = data[0]&0x40 != 0
	c.ChannelNo = -1

	pos := 1
	if c.DS1Explicit {
		if len(data) <= pos {
			return ChannelID{}, ErrShort
		}
		c.DS1 = data[pos] & 0x7f
		pos++
	}
	if pos < len(data) {
		b := data[pos]
		if b&0x0f != 3 {
			return ChannelID{}, errors.New("ie: unexpected channel type")
		}
		if b&0x60 != 0 {
			return ChannelID{}, errors.New("ie: invalid CCITT coding")
		}
		pos++
		c.HasChannel = true
		if b&0x10 != 0 {
			if len(data) < pos+3 {
				return ChannelID{}, ErrShort
			}
			c.SlotMap = uint32(data[pos])<<16 | uint32(data[pos+1])<<8 | uint32(data[pos+2])
		} else {
			if len(data) <= pos {
				return ChannelID{}, ErrShort
			}
			c.ChannelNo = int(data[pos] & 0x7f)
		}
	}
	return c, nil
}

// EncodeChannelID serializes c into wire form.
func EncodeChannelID(c ChannelID) []byte {
	b0 := byte(0x81) // Ext=1, IntID=0(implicit), CCITT=0, spare=0, sel=01
	if c.PRI {
		b0 |= 0x20
	}
	if c.Exclusive {
		b0 |= 0x08
	}
	out := []byte{b0}
	if c.DS1Explicit {
		out[0] |= 0x40
		out = append(out, 0x80|c.DS1)
	}
	if !c.HasChannel {
		return out
	}
	if c.ChannelNo >= 0 {
		out = append(out, 0x83, 0x80|byte(c.ChannelNo))
	} else {
		out = append(out, 0x93,
			byte(c.SlotMap>>16), byte(c.SlotMap>>8), byte(c.SlotMap))
	}
	return out
}

// BearerCapability is the decoded Bearer Capability IE.
type BearerCapability struct {
	TransferCapability uint8
	TransferMode       uint8 // circuit vs packet, spec.md TRANS_MODE_*
	TransferRate       uint8
	Multiplier         uint8
	Layer1             uint8
	RateAdaption       bool
	Layer2             uint8
	Layer3             uint8
	Packet             bool
}

// DecodeBearerCapability decodes octets 3..6+ of the IE.
func DecodeBearerCapability(data []byte) (BearerCapability, error) {
	if len(data) < 2 {
		return BearerCapability{}, ErrShort
	}
	var bc BearerCapability
	bc.TransferCapability = data[0] & 0x1f
	bc.TransferMode = data[1] & 0x7f
	bc.Packet = bc.TransferMode == 0x40
	pos := 2
	if !bc.Packet {
		if pos >= len(data) {
			return bc, ErrShort
		}
		bc.Layer1 = data[pos] & 0x1f
		bc.RateAdaption = data[pos]&0x7f == 0x21
		pos++
		if bc.RateAdaption && pos < len(data) {
			pos++ // rate adaption octet, not modelled further
		}
	} else {
		if pos+1 >= len(data) {
			return bc, ErrShort
		}
		bc.Layer2 = data[pos] & 0x1f
		pos++
		bc.Layer3 = data[pos] & 0x1f
		pos++
	}
	return bc, nil
}

// EncodeBearerCapability serializes bc, applying the 4ESS 3.1kHz-audio
// substitution when att4ess is set (spec.md §4.3).
func EncodeBearerCapability(bc BearerCapability, att4ess bool) []byte {
	cap := bc.TransferCapability
	if att4ess && cap == 0x10 {
		cap = 0x08 // 4ESS substitutes its own code for 3.1kHz audio
	}
	out := []byte{0x80 | cap, 0x80 | bc.TransferMode}
	if !bc.Packet && bc.TransferMode != 0x40 {
		out = append(out, 0x80|bc.Layer1)
	} else {
		out = append(out, 0x80|bc.Layer2, 0x80|bc.Layer3)
	}
	return out
}

// DecodeCause decodes the Cause IE octets.
func DecodeCause(data []byte) (coding, location uint8, value uint8, diag []byte, err error) {
	if len(data) < 2 {
		return 0, 0, 0, nil, ErrShort
	}
	coding = (data[0] >> 5) & 3
	location = data[0] & 0xf
	value = data[1] & 0x7f
	if len(data) > 2 {
		diag = append([]byte(nil), data[2:]...)
	}
	return coding, location, value, diag, nil
}

// EncodeCause serializes the Cause IE.
func EncodeCause(coding, location, value uint8, diag []byte) []byte {
	out := []byte{0x80 | coding<<5 | location, 0x80 | value}
	return append(out, diag...)
}

// Number is a decoded Calling/Called Party Number IE.
type Number struct {
	TypeOfNumber  uint8
	NumberingPlan uint8
	Presentation  uint8 // calling only; 0 if not carried
	Screening     uint8
	HasPresentation bool
	Digits        string
}

// DecodeNumber handles both Calling (presentation octet present) and Called
// (no presentation octet) per spec.md §4.3.
func DecodeNumber(data []byte, hasPresentation bool) (Number, error) {
	if len(data) < 1 {
		return Number{}, ErrShort
	}
	var n Number
	n.TypeOfNumber = (data[0] >> 4) & 7
	n.NumberingPlan = data[0] & 0xf
	pos := 1
	if hasPresentation {
		if data[0]&0x80 == 0 {
			if len(data) < 2 {
				return Number{}, ErrShort
			}
			n.Presentation = (data[1] >> 5) & 3
			n.Screening = data[1] & 3
			n.HasPresentation = true
			pos = 2
		}
	}
	n.Digits = string(data[pos:])
	return n, nil
}

// EncodeNumber serializes n.
func EncodeNumber(n Number, hasPresentation bool) []byte {
	out := []byte{0x80 | n.TypeOfNumber<<4 | n.NumberingPlan}
	if hasPresentation {
		out[0] &^= 0x80
		out = append(out, 0x80|n.Presentation<<5|n.Screening)
	}
	return append(out, []byte(n.Digits)...)
}

// DecodeProgress decodes the Progress Indicator IE.
func DecodeProgress(data []byte) (coding, location, indicator uint8, err error) {
	if len(data) < 2 {
		return 0, 0, 0, ErrShort
	}
	return (data[0] >> 5) & 3, data[0] & 0xf, data[1] & 0x7f, nil
}

// EncodeProgress serializes the Progress Indicator IE.
func EncodeProgress(coding, location, indicator uint8) []byte {
	return []byte{0x80 | coding<<5 | location, 0x80 | indicator}
}

// DecodeRestartIndicator decodes the single-octet restart class.
func DecodeRestartIndicator(data []byte) (uint8, error) {
	if len(data) < 1 {
		return 0, ErrShort
	}
	return data[0] & 7, nil
}

// EncodeRestartIndicator serializes the restart indicator class.
func EncodeRestartIndicator(class uint8) []byte {
	return []byte{0x80 | class}
}
