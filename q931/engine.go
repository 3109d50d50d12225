// Package q931 implements the ITU Q.931 call-control state machines: per-
// call lifecycle, channel selection, message composition/parsing through
// the IE registry, call-reference allocation, and per-call timers.
package q931

import (
	"time"

	"github.com/ispbx/goisdn/q931/ie"
	"github.com/ispbx/goisdn/timer"
)

// Transmitter is the Q.921 collaborator that carries a composed Q.931
// message as an I-frame payload (spec.md §2 "Outbound").
type Transmitter interface {
	Transmit(now time.Time, payload []byte) error
}

// Engine is one call-control instance for a D-channel (or subchannel). It
// owns no timers or frames of its own beyond what is listed in spec.md
// §3.1/§3.3; the shared Wheel may be the master controller's.
type Engine struct {
	Pool    *Pool
	Wheel   *timer.Wheel
	Timers  Timers
	Network bool // local role: true=network, false=user/CPE
	Switch  Switch
	dial    dialect

	tx     Transmitter
	events []Event
}

// NewEngine constructs a call engine bound to a shared pool, timer wheel
// and Q.921 transmitter.
func NewEngine(pool *Pool, wheel *timer.Wheel, sw Switch, network bool, tx Transmitter) *Engine {
	return &Engine{
		Pool: pool, Wheel: wheel, Timers: DefaultTimers(),
		Switch: sw, dial: dialectFor(sw), Network: network, tx: tx,
	}
}

func (e *Engine) pushEvent(ev Event) { e.events = append(e.events, ev) }

// NotifyLinkUp and NotifyLinkDown relay Q.921 link status into the event
// queue (EventDchanUp/EventDchanDown, spec.md §3.5); the q921.Deliverer
// adapter in package pri calls these from Link.up.
func (e *Engine) NotifyLinkUp()   { e.pushEvent(Event{Kind: EventDchanUp}) }
func (e *Engine) NotifyLinkDown() { e.pushEvent(Event{Kind: EventDchanDown}) }

// PopEvent returns and removes the oldest queued event, matching the
// controller's "one pending event at a time" slot (spec.md §3.1); the
// controller drains this every poll cycle.
func (e *Engine) PopEvent() (Event, bool) {
	if len(e.events) == 0 {
		return Event{}, false
	}
	ev := e.events[0]
	e.events = e.events[1:]
	return ev, true
}

func channelNumber(c *Call) int {
	if c.Channel.HasChannel && c.Channel.ChannelNo >= 0 {
		return c.Channel.ChannelNo
	}
	return -1
}

// ---- outbound API, spec.md §4.5 ----

// NewCall allocates a call reference and an originator-side record.
func (e *Engine) NewCall() (*Call, error) {
	cref, err := e.Pool.Allocate()
	if err != nil {
		return nil, err
	}
	c := e.Pool.New(cref, true)
	c.ATT4ESS = e.dial.att4ess
	return c, nil
}

// SetupRequest composes and transmits a SETUP for an originating call.
func (e *Engine) SetupRequest(now time.Time, c *Call, bearer BearerCapability, channel ChannelSelection, caller, called Party) error {
	c.Bearer = bearer
	c.Channel = channel
	c.Caller = caller
	c.Called = called
	c.OurState = StateCallInitiated
	if err := e.send(now, c, Setup, e.setupIEs()); err != nil {
		return err
	}
	c.t303 = e.Wheel.Schedule(now, e.Timers.T303, e.onT303, c)
	return nil
}

func (e *Engine) setupIEs() []ie.ID {
	ids := []ie.ID{ie.BearerCapability, ie.ChannelIdent, ie.CallingPartyNumber, ie.CalledPartyNumber}
	if e.dial.sendingComplete {
		ids = append(ids, ie.SendingComplete)
	}
	return ids
}

func (e *Engine) onT303(now time.Time, user interface{}) {
	c := user.(*Call)
	if !c.Alive || c.OurState != StateCallInitiated {
		return
	}
	c.Cause.Present = true
	c.Cause.Value = CauseRecoveryOnTimerExpire
	e.pushEvent(Event{Kind: EventHangup, CallRef: c.CallRef, Cause: CauseRecoveryOnTimerExpire})
	e.Pool.Destroy(e.Wheel, c)
}

// Proceeding sends CALL_PROCEEDING for an inbound call.
func (e *Engine) Proceeding(now time.Time, c *Call) error {
	c.Proceeding = true
	c.OurState = StateIncomingCallProceeding
	return e.send(now, c, CallProceeding, []ie.ID{ie.ChannelIdent})
}

// Alerting sends ALERTING (optionally with in-band progress info).
func (e *Engine) Alerting(now time.Time, c *Call, inBandInfo bool) error {
	c.OurState = StateCallReceived
	ids := []ie.ID{}
	if inBandInfo {
		c.Progress.Present = true
		c.Progress.Indicator = 0x08 // Q931_INBAND_AVAILABLE
		ids = append(ids, ie.Progress)
	}
	return e.send(now, c, Alerting, ids)
}

// Answer sends CONNECT for an inbound call. On a non-ISDN line, most
// switches expect a progress indicator on the CONNECT; DMS-100 is the
// exception (spec.md §6.2 dialect table).
func (e *Engine) Answer(now time.Time, c *Call, nonISDN bool) error {
	c.NonISDN = nonISDN
	c.OurState = StateConnectRequest
	var ids []ie.ID
	if nonISDN && !e.dial.noConnectProgress {
		c.Progress.Present = true
		c.Progress.Indicator = 0x08 // in-band information now available
		ids = append(ids, ie.Progress)
	}
	return e.send(now, c, Connect, ids)
}

// Information carries overlap-sending digits.
func (e *Engine) Information(now time.Time, c *Call, digit byte) error {
	c.Called.Number += string(digit)
	return e.send(now, c, Information, []ie.ID{ie.CalledPartyNumber})
}

// Hangup tears a call down with the given cause, choosing DISCONNECT,
// RELEASE or RELEASE_COMPLETE depending on lifecycle phase (spec.md §4.5).
func (e *Engine) Hangup(now time.Time, c *Call, cause Cause) error {
	c.Cause.Present = true
	c.Cause.Value = cause
	switch {
	case c.OurState == StateCallPresent || c.OurState == StateCallInitiated:
		c.OurState = StateNull
		err := e.send(now, c, ReleaseComplete, []ie.ID{ie.CauseIE})
		e.Pool.Destroy(e.Wheel, c)
		return err
	case c.OurState == StateDisconnectIndication:
		c.OurState = StateReleaseRequest
		err := e.send(now, c, Release, []ie.ID{ie.CauseIE})
		c.t308 = e.Wheel.Schedule(now, e.Timers.T308, e.onT308, c)
		return err
	default:
		c.OurState = StateDisconnectRequest
		err := e.send(now, c, Disconnect, []ie.ID{ie.CauseIE})
		c.t305 = e.Wheel.Schedule(now, e.Timers.T305, e.onT305, c)
		return err
	}
}

func (e *Engine) onT305(now time.Time, user interface{}) {
	c := user.(*Call)
	if !c.Alive {
		return
	}
	c.OurState = StateReleaseRequest
	e.send(now, c, Release, []ie.ID{ie.CauseIE})
	c.t308 = e.Wheel.Schedule(now, e.Timers.T308, e.onT308, c)
}

func (e *Engine) onT308(now time.Time, user interface{}) {
	c := user.(*Call)
	if !c.Alive {
		return
	}
	e.pushEvent(Event{Kind: EventHangup, CallRef: c.CallRef, Cause: CauseRecoveryOnTimerExpire})
	e.Pool.Destroy(e.Wheel, c)
}

// Reset issues RESTART with restart class 7 (all interfaces) when
// restartAll is set, else class 0 (indicated channels); it takes no channel
// argument and sends no Channel Identification IE. It waits for
// RESTART_ACKNOWLEDGE under T316; on T316 expiry it emits a Hangup with
// cause 102 and drops the dummy record without resending RESTART.
func (e *Engine) Reset(now time.Time, restartAll bool) error {
	c := e.Pool.New(0, true)
	c.IsSubCall = true // dummy record, not a real call
	if restartAll {
		c.RestartIndicator = 7
	}
	err := e.send(now, c, Restart, []ie.ID{ie.RestartIndicator, ie.ChannelIdent})
	c.t316 = e.Wheel.Schedule(now, e.Timers.T316, e.onT316, c)
	return err
}

func (e *Engine) onT316(now time.Time, user interface{}) {
	c := user.(*Call)
	e.pushEvent(Event{Kind: EventHangup, CallRef: 0, Cause: CauseRecoveryOnTimerExpire})
	e.Pool.Destroy(e.Wheel, c)
}

// ---- wire composition ----

func (e *Engine) send(now time.Time, c *Call, msgType MsgType, ids []ie.ID) error {
	var ies []RawIE
	var buf [260]byte
	for _, id := range ids {
		d := ie.Lookup(id)
		if d == nil {
			continue
		}
		if d.Single {
			ies = append(ies, RawIE{ID: id})
			continue
		}
		n := d.Transmit(c, uint8(msgType), buf[:])
		if n == ie.TxOmit || n == ie.TxFail {
			continue
		}
		ies = append(ies, RawIE{ID: id, Data: append([]byte(nil), buf[:n]...)})
	}
	raw := EncodeHeader(Message{ProtoDiscriminator: ProtoQ931, FromOriginator: c.FromOriginator, CallRef: c.CallRef, Type: msgType, IEs: ies})
	return e.tx.Transmit(now, raw)
}

// ---- inbound dispatch ----

// Deliver decodes and dispatches one verified L3 payload handed up by
// Q.921, per spec.md §4.5 "Inbound message handling".
func (e *Engine) Deliver(now time.Time, payload []byte) {
	msg, err := DecodeHeader(payload)
	if err != nil {
		// wire-format error: log and discard, spec.md §7 tier 1
		e.pushEvent(Event{Kind: EventConfigError, Message: err.Error()})
		return
	}
	if msg.Type == ServiceAck {
		// AT&T maintenance quirk: reflect verbatim, never interpret.
		e.tx.Transmit(now, ReflectServiceAck(payload))
		return
	}
	e.handle(now, msg)
}

func (e *Engine) handle(now time.Time, msg Message) {
	c := e.Pool.Lookup(msg.CallRef)

	switch msg.Type {
	case Setup:
		e.handleSetup(now, msg)
		return
	case Restart:
		e.handleRestart(now, msg)
		return
	}

	if c == nil {
		// Q.850 "invalid call reference" — spec.md §7 tier 2.
		e.pushEvent(Event{Kind: EventConfigError, Message: ErrNoSuchCall.Error()})
		return
	}

	for _, raw := range msg.IEs {
		e.dispatchIE(c, msg.Type, raw)
	}

	switch msg.Type {
	case CallProceeding:
		c.OurState = StateOutgoingCallProceeding
		c.t310 = e.Wheel.Schedule(now, e.Timers.T310, e.onT310, c)
		ev := Event{Kind: EventProceeding, CallRef: c.CallRef, Channel: channelNumber(c)}
		e.pushEvent(ev)
	case Progress:
		c.OurState = StateOutgoingCallProceeding
		e.pushEvent(Event{Kind: EventProgress, CallRef: c.CallRef, Channel: channelNumber(c)})
	case Alerting:
		c.OurState = StateCallReceived
		e.Wheel.Cancel(c.t310)
		e.pushEvent(Event{Kind: EventRinging, CallRef: c.CallRef, Channel: channelNumber(c)})
	case Connect:
		c.OurState = StateActive
		e.Wheel.Cancel(c.t303)
		e.Wheel.Cancel(c.t310)
		e.pushEvent(Event{Kind: EventAnswer, CallRef: c.CallRef, Channel: channelNumber(c)})
		e.send(now, c, ConnectAcknowledge, nil)
	case ConnectAcknowledge:
		c.OurState = StateActive
	case SetupAcknowledge:
		c.OurState = StateOverlapSending
		e.Wheel.Cancel(c.t303)
		e.pushEvent(Event{Kind: EventSetupAck, CallRef: c.CallRef, Channel: channelNumber(c)})
	case Disconnect:
		c.OurState = StateDisconnectIndication
		e.Wheel.Cancel(c.t303)
		e.Wheel.Cancel(c.t310)
		e.pushEvent(Event{Kind: EventHangup, CallRef: c.CallRef, Cause: c.Cause.Value})
		e.send(now, c, Release, nil)
		c.t308 = e.Wheel.Schedule(now, e.Timers.T308, e.onT308, c)
	case Release:
		e.Wheel.Cancel(c.t308)
		if c.Alive && c.OurState != StateReleaseRequest {
			e.pushEvent(Event{Kind: EventHangup, CallRef: c.CallRef, Cause: c.Cause.Value})
		} else {
			e.pushEvent(Event{Kind: EventHangupAck, CallRef: c.CallRef})
		}
		e.send(now, c, ReleaseComplete, nil)
		e.Pool.Destroy(e.Wheel, c)
	case ReleaseComplete:
		e.Wheel.Cancel(c.t305)
		e.Wheel.Cancel(c.t308)
		if c.Alive {
			e.pushEvent(Event{Kind: EventHangup, CallRef: c.CallRef, Cause: c.Cause.Value})
		}
		e.Pool.Destroy(e.Wheel, c)
	case Status, StatusEnquiry:
		e.handleStatus(now, c, msg)
	case Information:
		e.pushEvent(Event{Kind: EventInfoReceived, CallRef: c.CallRef, Digits: c.Called.Number})
	case Notify:
		e.pushEvent(Event{Kind: EventNotify, CallRef: c.CallRef})
	case RestartAcknowledge:
		e.Wheel.Cancel(c.t316)
		e.pushEvent(Event{Kind: EventRestartAck, CallRef: c.CallRef, Channel: channelNumber(c)})
		e.Pool.Destroy(e.Wheel, c)
	}
}

func (e *Engine) onT310(now time.Time, user interface{}) {
	c := user.(*Call)
	if !c.Alive {
		return
	}
	e.pushEvent(Event{Kind: EventHangup, CallRef: c.CallRef, Cause: CauseRecoveryOnTimerExpire})
	e.send(now, c, Release, []ie.ID{ie.CauseIE})
	e.Pool.Destroy(e.Wheel, c)
}

func (e *Engine) handleStatus(now time.Time, c *Call, msg Message) {
	// Update peer-call-state from the Call State IE if present; compare and
	// recover per cause, otherwise ignore (spec.md §4.5).
	for _, raw := range msg.IEs {
		if raw.ID == ie.CallState && len(raw.Data) > 0 {
			c.PeerState = CallState(raw.Data[0] & 0x3f)
		}
	}
	if c.Cause.Present && c.Cause.Value == CauseWrongCallState {
		e.send(now, c, ReleaseComplete, []ie.ID{ie.CauseIE})
		e.Pool.Destroy(e.Wheel, c)
	}
}

func (e *Engine) dispatchIE(c *Call, msgType MsgType, raw RawIE) {
	d := ie.Lookup(raw.ID)
	if d == nil || d.Receive == nil {
		return // unknown/unhandled IE: skipped, spec.md §4.3
	}
	d.Receive(c, uint8(msgType), raw.Data)
}

func (e *Engine) handleSetup(now time.Time, msg Message) {
	c := e.Pool.Lookup(msg.CallRef)
	if c == nil {
		c = e.Pool.New(msg.CallRef, msg.FromOriginator)
		c.ATT4ESS = e.dial.att4ess
	}
	c.Reset()
	for _, raw := range msg.IEs {
		e.dispatchIE(c, msg.Type, raw)
	}

	if !e.bearerSupported(c.Bearer) {
		c.Cause.Present = true
		c.Cause.Value = CauseBearerCapNotImpl
		e.send(now, c, ReleaseComplete, []ie.ID{ie.CauseIE})
		e.Pool.Destroy(e.Wheel, c)
		return
	}

	if e.glareConflict(c) {
		c.Cause.Present = true
		c.Cause.Value = CauseReqChanUnavailable
		e.send(now, c, ReleaseComplete, []ie.ID{ie.CauseIE})
		e.Pool.Destroy(e.Wheel, c)
		return
	}

	c.OurState = StateCallPresent
	e.pushEvent(Event{
		Kind: EventRing, CallRef: c.CallRef, Channel: channelNumber(c),
		Caller: c.Caller, Called: c.Called, Bearer: c.Bearer,
	})
}

// bearerSupported applies the switch-variant restriction named in spec.md
// §4.5 "Reject with cause 65 if bearer unsupported on this switch variant".
func (e *Engine) bearerSupported(bc BearerCapability) bool {
	// every variant modelled here supports speech/3.1kHz audio/unrestricted
	// digital; packet mode is rejected on the legacy circuit-only variants.
	if bc.Packet {
		switch e.Switch {
		case SwitchLucent5E, SwitchATT4ESS:
			return false
		}
	}
	return true
}

// glareConflict implements spec.md §8 scenario 3: an inbound SETUP
// requesting the same exclusive channel as a live, locally originated call
// still in Call-Initiated is rejected; the local call is unaffected.
func (e *Engine) glareConflict(inbound *Call) bool {
	if !inbound.Channel.Exclusive || !inbound.Channel.HasChannel {
		return false
	}
	for _, c := range e.Pool.calls {
		if c == inbound || !c.Alive {
			continue
		}
		if c.OurState == StateCallInitiated && c.Channel.Exclusive &&
			c.Channel.HasChannel && c.Channel.ChannelNo == inbound.Channel.ChannelNo {
			return true
		}
	}
	return false
}

func (e *Engine) handleRestart(now time.Time, msg Message) {
	c := e.Pool.New(0, msg.FromOriginator)
	c.IsSubCall = true
	for _, raw := range msg.IEs {
		e.dispatchIE(c, msg.Type, raw)
	}

	channel := channelNumber(c)
	if c.RestartIndicator == 7 || c.RestartIndicator == 6 {
		channel = -1
		for _, live := range e.Pool.calls {
			if live.Alive && !live.IsSubCall {
				e.Pool.Destroy(e.Wheel, live)
			}
		}
	}

	e.send(now, c, RestartAcknowledge, []ie.ID{ie.RestartIndicator, ie.ChannelIdent})
	e.pushEvent(Event{Kind: EventRestart, Channel: channel})
	e.Pool.Destroy(e.Wheel, c)
}
