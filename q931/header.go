package q931

import (
	"errors"

	"github.com/ispbx/goisdn/q931/ie"
)

var (
	errShortHeader   = errors.New("q931: frame shorter than header")
	errBadCRLength   = errors.New("q931: call reference length out of range")
	errIEOverrun     = errors.New("q931: information element length overruns frame")
)

// RawIE is one undecoded IE as it appears on the wire.
type RawIE struct {
	ID   ie.ID
	Data []byte
}

// Message is a decoded Q.931 frame: header, call reference and raw IEs.
// IE semantics are resolved by the call engine via the ie registry.
type Message struct {
	ProtoDiscriminator uint8
	FromOriginator     bool
	CallRef            uint16 // 15 bits
	Type               MsgType
	IEs                []RawIE
}

// DecodeHeader parses the Q.931 message header, call reference and the flat
// list of IEs that follow. It returns ServiceAck-typed messages for the
// AT&T maintenance discriminator without interpreting the rest of the frame
// (spec.md §4.2, §9).
func DecodeHeader(raw []byte) (Message, error) {
	if len(raw) < 3 {
		return Message{}, errShortHeader
	}
	var m Message
	m.ProtoDiscriminator = raw[0]
	if m.ProtoDiscriminator == ProtoMaintenance {
		m.Type = ServiceAck
		return m, nil
	}

	crLen := int(raw[1] & 0x0f)
	if crLen > 3 {
		return Message{}, errBadCRLength
	}
	pos := 2
	if len(raw) < pos+crLen+1 {
		return Message{}, errShortHeader
	}
	if crLen > 0 {
		m.FromOriginator = raw[pos]&0x80 != 0
		m.CallRef = uint16(raw[pos] & 0x7f)
		for i := 1; i < crLen; i++ {
			m.CallRef = m.CallRef<<8 | uint16(raw[pos+i])
		}
	}
	pos += crLen
	m.Type = MsgType(raw[pos])
	pos++

	for pos < len(raw) {
		id := ie.ID(raw[pos])
		if id&0x80 != 0 {
			// single-octet IE: identifier top bit set, no length/data
			m.IEs = append(m.IEs, RawIE{ID: id})
			pos++
			continue
		}
		d := ie.Lookup(id)
		if d != nil && d.Single {
			m.IEs = append(m.IEs, RawIE{ID: id})
			pos++
			continue
		}
		if pos+1 >= len(raw) {
			return Message{}, errShortHeader
		}
		length := int(raw[pos+1])
		if pos+2+length > len(raw) {
			return Message{}, errIEOverrun
		}
		m.IEs = append(m.IEs, RawIE{ID: id, Data: append([]byte(nil), raw[pos+2:pos+2+length]...)})
		pos += 2 + length
	}
	return m, nil
}

// crLenFor picks the shortest call-reference length (1..3) that fits cref.
func crLenFor(cref uint16) int {
	switch {
	case cref < 0x80:
		return 1
	case cref < 0x8000:
		return 2
	default:
		return 3
	}
}

// EncodeHeader serializes the header, call reference and IEs back to wire
// form. An IE whose ID has the top bit set, or whose Data is nil, is written
// as its identifier octet alone, without a length octet.
func EncodeHeader(m Message) []byte {
	crLen := crLenFor(m.CallRef)
	out := make([]byte, 0, 8+32*len(m.IEs))
	out = append(out, ProtoQ931, byte(crLen))

	crBytes := make([]byte, crLen)
	v := m.CallRef
	for i := crLen - 1; i >= 0; i-- {
		crBytes[i] = byte(v)
		v >>= 8
	}
	if m.FromOriginator {
		crBytes[0] |= 0x80
	}
	out = append(out, crBytes...)
	out = append(out, byte(m.Type))

	for _, r := range m.IEs {
		if r.ID&0x80 != 0 || r.Data == nil {
			out = append(out, byte(r.ID))
			continue
		}
		out = append(out, byte(r.ID), byte(len(r.Data)))
		out = append(out, r.Data...)
	}
	return out
}

// ReflectServiceAck builds the AT&T maintenance reflection frame: the frame
// is copied verbatim, protocol discriminator included, and only the low bit
// of its fourth octet (index 3) is toggled, mimicking the peer's own format
// rather than reinterpreting it as Q.931 (spec.md §9 open questions).
func ReflectServiceAck(raw []byte) []byte {
	out := append([]byte(nil), raw...)
	if len(out) > 3 {
		out[3] ^= 0x01
	}
	return out
}
