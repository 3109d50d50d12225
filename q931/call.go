package q931

import (
	"errors"

	"github.com/ispbx/goisdn/q931/ie"
	"github.com/ispbx/goisdn/timer"
)

// CallState is an ITU Q.931 call state, spec.md §2.
type CallState int

const (
	StateNull CallState = iota
	StateCallInitiated
	StateOverlapSending
	StateOutgoingCallProceeding
	StateCallDelivered
	StateCallPresent
	StateCallReceived
	StateConnectRequest
	StateIncomingCallProceeding
	StateActive
	StateDisconnectRequest
	StateDisconnectIndication
	StateSuspendRequest
	StateResumeRequest
	StateReleaseRequest
	StateOverlapReceiving
	StateCallAbort
)

func (s CallState) String() string {
	names := [...]string{
		"Null", "Call-Initiated", "Overlap-Sending", "Outgoing-Call-Proceeding",
		"Call-Delivered", "Call-Present", "Call-Received", "Connect-Request",
		"Incoming-Call-Proceeding", "Active", "Disconnect-Request",
		"Disconnect-Indication", "Suspend-Request", "Resume-Request",
		"Release-Request", "Overlap-Receiving", "Call-Abort",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// ChannelSelection is the resolved B-channel selection for a call, spec.md
// §3.3.
type ChannelSelection struct {
	ie.ChannelID
}

// BearerCapability mirrors ie.BearerCapability at the call-record level.
type BearerCapability = ie.BearerCapability

// Party describes a calling or called number.
type Party struct {
	Number        string
	NumberingPlan uint8
	TypeOfNumber  uint8
	Presentation  uint8
}

// Apdu is a queued facility blob riding on the next outgoing message of a
// given type, spec.md §3.3.
type Apdu struct {
	OnMsgType MsgType
	Payload   []byte
}

// Call is one call record, keyed by call reference.
type Call struct {
	CallRef        uint16
	FromOriginator bool

	Alive      bool
	Proceeding bool

	Channel  ChannelSelection
	Bearer   BearerCapability
	Progress struct {
		Present   bool
		Location  uint8
		Coding    uint8
		Indicator uint8
	}
	Cause struct {
		Present  bool
		Location uint8
		Coding   uint8
		Value    Cause
	}
	Caller Party
	Called Party

	RestartIndicator uint8

	OurState  CallState
	PeerState CallState

	NonISDN bool
	ATT4ESS bool // bearer-capability substitution for this call's controller

	t303, t305, t308, t310, t316 timer.ID

	Pending []Apdu

	// SubCalls holds per-TEI fan-out records for a PTMP NT broadcast
	// SETUP (spec.md §4.5 "Multipoint fan-out"); nil otherwise.
	SubCalls map[uint8]*Call
	PRIWinnerTEI uint8
	IsSubCall    bool
}

// Reset clears the fields a fresh SETUP is about to repopulate, per spec.md
// §4.5 "pre-handle" — avoids stale values lingering from a prior message on
// the same reused record.
func (c *Call) Reset() {
	c.Channel = ChannelSelection{}
	c.Bearer = BearerCapability{}
	c.Progress.Present = false
	c.Cause.Present = false
}

var (
	ErrPoolFull    = errors.New("q931: no free call reference")
	ErrNoSuchCall  = errors.New("q931: no call with that reference")
)

// Pool owns every live call record for one controller, and allocates call
// references, spec.md §3.1/§4.5. PTMP subchannels each have their own Pool.
type Pool struct {
	calls map[uint16]*Call
	next  uint16
}

// NewPool returns an empty call pool.
func NewPool() *Pool {
	return &Pool{calls: make(map[uint16]*Call)}
}

// Allocate returns a new call reference not colliding with any live call,
// by incrementing a counter mod 32768 (non-zero), spec.md §4.5. CR=0 is
// reserved for the dummy/global call reference.
func (p *Pool) Allocate() (uint16, error) {
	for i := 0; i < 32767; i++ {
		p.next++
		if p.next == 0 || p.next > 32767 {
			p.next = 1
		}
		if _, live := p.calls[p.next]; !live {
			return p.next, nil
		}
	}
	return 0, ErrPoolFull
}

// New creates and registers a call record for cref.
func (p *Pool) New(cref uint16, fromOriginator bool) *Call {
	c := &Call{CallRef: cref, FromOriginator: fromOriginator, Alive: true, OurState: StateNull, PeerState: StateNull}
	p.calls[cref] = c
	return c
}

// Lookup returns the call for cref, or nil.
func (p *Pool) Lookup(cref uint16) *Call { return p.calls[cref] }

// Destroy cancels a call's timers (via wheel) and removes it from the pool.
// Per spec.md §5 "Cancellation", the caller passes the wheel so every
// per-call timer id can be cancelled before the record is dropped.
func (p *Pool) Destroy(wheel *timer.Wheel, c *Call) {
	wheel.Cancel(c.t303)
	wheel.Cancel(c.t305)
	wheel.Cancel(c.t308)
	wheel.Cancel(c.t310)
	wheel.Cancel(c.t316)
	c.Pending = nil
	c.Alive = false
	delete(p.calls, c.CallRef)
}

// Live reports the number of live calls, for collision-avoidance tests.
func (p *Pool) Live() int { return len(p.calls) }
