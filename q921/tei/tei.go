// Package tei implements the PTMP terminal-endpoint-identifier management
// entity: request/assign/check/remove exchanges between network and
// terminal sides, carried in SAPI=63 U-frame UI frames per spec.md §6.1.
package tei

import "fmt"

// Message types of the TEI management entity, companion to Q.921 §5.3.
type MsgType uint8

const (
	Request  MsgType = 1
	Assigned MsgType = 2
	Denied   MsgType = 3
	CheckReq MsgType = 4
	CheckRes MsgType = 5
	Remove   MsgType = 6
	Verify   MsgType = 7
)

func (m MsgType) String() string {
	switch m {
	case Request:
		return "TEI_IDENTITY_REQUEST"
	case Assigned:
		return "TEI_IDENTITY_ASSIGNED"
	case Denied:
		return "TEI_IDENTITY_DENIED"
	case CheckReq:
		return "TEI_IDENTITY_CHECK_REQUEST"
	case CheckRes:
		return "TEI_IDENTITY_CHECK_RESPONSE"
	case Remove:
		return "TEI_IDENTITY_REMOVE"
	case Verify:
		return "TEI_IDENTITY_VERIFY"
	default:
		return fmt.Sprintf("tei(%d)", uint8(m))
	}
}

// managementEntity is the fixed byte identifying this as a layer management
// entity frame, per spec.md §6.1.
const managementEntity = 0x0f

// FirstDynamic is the lowest dynamically assignable TEI (0..63 are fixed
// TEIs, administered out of band).
const FirstDynamic = 64

// LastDynamic is the highest dynamically assignable TEI, one below the
// broadcast group TEI 127.
const LastDynamic = 126

// Message is a decoded TEI management frame.
type Message struct {
	Type MsgType
	Ri   uint16 // reference number echoed by the requester
	Ai   uint8  // TEI value, or 127 for "any"/broadcast
}

// Encode serializes m into the UI-frame information field (the management
// entity byte, Ri, message type, and Ai<<1|1).
func Encode(m Message) []byte {
	return []byte{
		managementEntity,
		byte(m.Ri >> 8), byte(m.Ri),
		byte(m.Type),
		m.Ai<<1 | 1,
	}
}

// Decode parses the information field of a SAPI=63 UI frame.
func Decode(raw []byte) (Message, bool) {
	if len(raw) < 5 || raw[0] != managementEntity {
		return Message{}, false
	}
	return Message{
		Ri:   uint16(raw[1])<<8 | uint16(raw[2]),
		Type: MsgType(raw[3]),
		Ai:   raw[4] >> 1,
	}, true
}

// Sender transmits an encoded TEI management frame as a SAPI=63 UI frame.
type Sender interface {
	SendManagement(raw []byte)
}

// Assignee is notified when a TEI has been confirmed for one of its links.
type Assignee interface {
	TEIAssigned(tei uint8, ri uint16)
	TEIRemoved(tei uint8)
}

// Manager is the network-side TEI allocator for PTMP links: it tracks which
// dynamic TEIs are in use and answers identity requests. It sends no check
// requests, and check responses are accepted without further action.
// User-side TEI negotiation (sending the request, awaiting assignment) is
// driven directly by q921.Link and does not need this type.
type Manager struct {
	send     Sender
	assignee Assignee
	inUse    map[uint8]bool
	next     uint8 // round-robin cursor over [FirstDynamic, LastDynamic]
}

// NewManager returns a network-side TEI manager. assignee is notified of
// assignments it didn't directly request (i.e. every assignment, since the
// manager is shared across subchannels).
func NewManager(send Sender, assignee Assignee) *Manager {
	return &Manager{send: send, assignee: assignee, inUse: make(map[uint8]bool), next: FirstDynamic}
}

// Receive handles an inbound TEI management message.
func (m *Manager) Receive(msg Message) {
	switch msg.Type {
	case Request:
		tei := m.allocate()
		if tei == 0 {
			m.send.SendManagement(Encode(Message{Type: Denied, Ri: msg.Ri, Ai: 127}))
			return
		}
		m.inUse[tei] = true
		m.send.SendManagement(Encode(Message{Type: Assigned, Ri: msg.Ri, Ai: tei}))
		m.assignee.TEIAssigned(tei, msg.Ri)
	case CheckRes:
		// terminal confirms it still holds msg.Ai; nothing to do beyond
		// bookkeeping, which the manager already has.
	case Remove:
		if msg.Ai == TEIBroadcast {
			for tei := range m.inUse {
				delete(m.inUse, tei)
				m.assignee.TEIRemoved(tei)
			}
			return
		}
		if m.inUse[msg.Ai] {
			delete(m.inUse, msg.Ai)
			m.assignee.TEIRemoved(msg.Ai)
		}
	}
}

// TEIBroadcast mirrors q921.TEIBroadcast to avoid an import cycle.
const TEIBroadcast = 127

// allocate returns a free dynamic TEI by scanning forward from the last one
// handed out, or 0 if the range is exhausted. Round-robin (rather than
// always restarting at FirstDynamic) avoids immediately reassigning a TEI
// whose REMOVE is still in flight to the terminal that just gave it up.
func (m *Manager) allocate() uint8 {
	span := uint8(LastDynamic - FirstDynamic + 1)
	if m.next < FirstDynamic || m.next > LastDynamic {
		m.next = FirstDynamic
	}
	start := m.next
	for i := uint8(0); i < span; i++ {
		tei := FirstDynamic + (start-FirstDynamic+i)%span
		if !m.inUse[tei] {
			m.next = tei + 1
			return tei
		}
	}
	return 0
}

// ForceReassign broadcasts a TEI-remove for an unrecognised TEI seen on a
// SABME, forcing the peer to re-request one (spec.md §4.4 "Multi-instance
// on one device").
func (m *Manager) ForceReassign() {
	m.send.SendManagement(Encode(Message{Type: Remove, Ai: TEIBroadcast}))
}
