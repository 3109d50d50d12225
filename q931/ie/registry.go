// Package ie implements the Q.931 Information Element wire framing and the
// registry that dispatches each IE identifier to its dump/receive/transmit
// handlers, per spec.md §3.4 and §4.3.
package ie

import "fmt"

// ID identifies an information element. The top bit, when set on the wire,
// marks a single-octet (length-less) IE; single-octet IDs here keep that
// bit (Shift 0x90, SendingComplete 0xa1, ...), and Descriptor.Single marks
// them as well.
type ID uint8

const (
	Shift                  ID = 0x90
	MoreData               ID = 0xa0
	SendingComplete        ID = 0xa1
	CongestionLevel        ID = 0xb0
	RepeatIndicator        ID = 0xd0
	Segmented              ID = 0x00
	BearerCapability       ID = 0x04
	CauseIE                ID = 0x08
	CallIdentity           ID = 0x10
	CallState              ID = 0x14
	ChannelIdent           ID = 0x18
	Facility               ID = 0x1c
	Progress               ID = 0x1e
	NetworkSpecificFac     ID = 0x20
	NotificationIndicator  ID = 0x27
	DisplayIE              ID = 0x28
	DateTime               ID = 0x29
	KeypadFacility         ID = 0x2c
	SignalIE               ID = 0x34
	InformationRate        ID = 0x40
	TransitDelay           ID = 0x42
	TransDelaySelect       ID = 0x43
	BinaryParameters       ID = 0x44
	WindowSize             ID = 0x45
	ClosedUserGroup        ID = 0x47
	ReverseChargeIndicator ID = 0x4a
	CallingPartyNumber     ID = 0x6c
	CallingPartySubaddr    ID = 0x6d
	CalledPartyNumber      ID = 0x70
	CalledPartySubaddr     ID = 0x71
	RedirectingNumber      ID = 0x74
	RedirectingSubaddr     ID = 0x75
	TransitNetSelect       ID = 0x78
	RestartIndicator       ID = 0x79
	LowLayerCompat         ID = 0x7c
	HighLayerCompat        ID = 0x7d
	UserUser               ID = 0x7e
)

func (id ID) String() string {
	if d, ok := registry[id]; ok {
		return d.Name
	}
	return fmt.Sprintf("IE(%#02x)", uint8(id))
}

// Result codes returned by Transmit handlers, spec.md §4.3.
const (
	TxOmit = 0  // IE not applicable to this call
	TxFail = -1 // composition failed
)

// Receive decodes one IE's bytes into the call-side representation owned by
// the caller (typically a *q931.Call). It returns an error if the contents
// are invalid, nil otherwise.
type Receive func(call interface{}, msgType uint8, data []byte) error

// Transmit composes one IE into buf and returns the number of bytes
// written, TxOmit, or TxFail.
type Transmit func(call interface{}, msgType uint8, buf []byte) int

// Dump renders an IE's bytes for debug/trace output.
type Dump func(data []byte) string

// Descriptor is one entry in the IE registry: an identifier plus its three
// handlers, mirroring original_source/q931.c's ie2str table (spec.md §4.3,
// §9 design notes "function-pointer IE table").
type Descriptor struct {
	ID      ID
	Name    string
	Single  bool // single-octet (length-less) IE
	Dump    Dump
	Receive Receive
	Transmit Transmit
}

var registry = map[ID]*Descriptor{}

// Register adds or replaces a descriptor. Add-on encoders (ROSE/facility for
// AOC, CC, MWI, name presentation — spec.md §1) call this from their own
// package's init().
func Register(d *Descriptor) { registry[d.ID] = d }

// Lookup returns the descriptor for id, or nil if no handler is registered.
func Lookup(id ID) *Descriptor { return registry[id] }

func init() {
	Register(&Descriptor{ID: SendingComplete, Name: "Sending Complete", Single: true})
	Register(&Descriptor{ID: Shift, Name: "Locking/Non-locking Shift", Single: true})
	Register(&Descriptor{ID: CongestionLevel, Name: "Congestion Level", Single: true})
	Register(&Descriptor{ID: RepeatIndicator, Name: "Repeat Indicator", Single: true})
	Register(&Descriptor{ID: MoreData, Name: "More Data", Single: true})
}
