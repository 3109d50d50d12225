package q921

import (
	"math/rand"
	"time"

	"github.com/ispbx/goisdn/q921/tei"
	"github.com/ispbx/goisdn/timer"
)

// State is a Q.921 data-link state, named per ITU Q.921 figure 4.
type State int

const (
	StateTEIUnassigned State = iota
	StateAssignAwaitingTEI
	StateEstablishAwaitingTEI
	StateTEIAssigned
	StateAwaitingEstablishment
	StateAwaitingRelease
	StateMultiFrameEstablished
	StateTimerRecovery
)

func (s State) String() string {
	switch s {
	case StateTEIUnassigned:
		return "TEI_UNASSIGNED"
	case StateAssignAwaitingTEI:
		return "ASSIGN_AWAITING_TEI"
	case StateEstablishAwaitingTEI:
		return "ESTABLISH_AWAITING_TEI"
	case StateTEIAssigned:
		return "TEI_ASSIGNED"
	case StateAwaitingEstablishment:
		return "AWAITING_ESTABLISHMENT"
	case StateAwaitingRelease:
		return "AWAITING_RELEASE"
	case StateMultiFrameEstablished:
		return "MULTI_FRAME_ESTABLISHED"
	case StateTimerRecovery:
		return "TIMER_RECOVERY"
	default:
		return "unknown"
	}
}

// Role distinguishes network and user/CPE ends; PTP vs PTMP determines how
// link loss is recovered (restart vs. drop to TEI_ASSIGNED).
type Role int

const (
	RoleNetwork Role = iota
	RoleUser
)

// Defaults per spec.md §4.4.
const (
	DefaultWindow = 7
	DefaultN200   = 3
	DefaultN202   = 3
	DefaultT200   = 1 * time.Second
	DefaultT203   = 10 * time.Second
	DefaultT202   = 2 * time.Second

	seqModulo = 128
)

// Deliverer receives verified, in-order L3 payloads and link status changes.
// The Q.931 engine implements this.
type Deliverer interface {
	Deliver(payload []byte)
	LinkUp()
	LinkDown()
}

// Sender writes an encoded Q.921 frame to the device. Implemented by the
// controller, which owns the actual file descriptor.
type Sender interface {
	SendFrame(raw []byte)
}

type queuedIFrame struct {
	ns      uint8
	payload []byte
}

// Link is one Q.921 engine instance for a (SAPI, TEI) pair.
type Link struct {
	SAPI uint8
	TEI  uint8
	Role Role
	PTMP bool // point-to-multipoint (BRI); PTP link loss triggers restart

	Window int
	N200   int
	N202   int
	T200d  time.Duration
	T203d  time.Duration
	T202d  time.Duration

	state State

	vs, va, vr uint8 // V(S), V(A), V(R)
	rc         int   // retransmit counter

	peerRxBusy       bool
	ownRxBusy        bool
	rejectException  bool
	acknowledgePend  bool
	l3Initiated      bool

	queue []queuedIFrame // ordered, not-yet-acked-or-not-yet-sent I-frames
	sent  int            // count of queue entries already transmitted (head)

	t200, t203, t202 timer.ID

	wheel   *timer.Wheel
	send    Sender
	up      Deliverer
	teiSend tei.Sender // nil on the network side; TEI assignment is driven by tei.Manager there

	// teRequestRi is the Ri used for the outstanding TEI request, set only
	// while state is ASSIGN/ESTABLISH_AWAITING_TEI.
	teRequestRi uint16

	onError func(error) // optional diagnostic hook; nil is fine
}

// NewLink constructs a Link bound to the given timer wheel, frame sender and
// L3 deliverer, with spec.md §4.4 defaults. teiSend is used only on the
// user/CPE side to carry outbound TEI_IDENTITY_REQUEST frames; pass nil on
// the network side, where tei.Manager answers requests directly.
func NewLink(sapi, teiVal uint8, role Role, ptmp bool, wheel *timer.Wheel, send Sender, up Deliverer, teiSend tei.Sender) *Link {
	l := &Link{
		SAPI: sapi, TEI: teiVal, Role: role, PTMP: ptmp,
		Window: DefaultWindow, N200: DefaultN200, N202: DefaultN202,
		T200d: DefaultT200, T203d: DefaultT203, T202d: DefaultT202,
		wheel: wheel, send: send, up: up, teiSend: teiSend,
	}
	if ptmp && teiVal == TEIBroadcast {
		l.state = StateTEIUnassigned
	} else {
		l.state = StateTEIAssigned
	}
	return l
}

// SetErrorHook registers a callback for protocol-level anomalies that have
// no dedicated Deliverer signal (e.g. an N(R) outside [V(A), V(S)]).
func (l *Link) SetErrorHook(fn func(error)) { l.onError = fn }

func (l *Link) reportError(err error) {
	if l.onError != nil {
		l.onError(err)
	}
}

// State returns the current data-link state, for diagnostics.
func (l *Link) State() State { return l.state }

// Start requests data-link establishment (DL-ESTABLISH.request). On a
// point-to-point link, or one with a TEI already assigned, this sends
// SABME immediately. On PTMP without a TEI it only requests one and moves
// to ASSIGN_AWAITING_TEI; when the TEI arrives the link goes to
// TEI_ASSIGNED and reports LinkUp without sending SABME.
func (l *Link) Start(now time.Time) {
	l.l3Initiated = true
	switch l.state {
	case StateTEIUnassigned:
		l.requestTEI(now)
		l.state = StateAssignAwaitingTEI
	case StateTEIAssigned:
		l.sendSABME(now)
		l.state = StateAwaitingEstablishment
	}
}

func (l *Link) requestTEI(now time.Time) {
	l.rc = 0
	l.teRequestRi = uint16(rand.Intn(1 << 16))
	if l.teiSend != nil {
		l.teiSend.SendManagement(tei.Encode(tei.Message{Type: tei.Request, Ri: l.teRequestRi, Ai: TEIBroadcast}))
	}
	l.t202 = l.wheel.Schedule(now, l.T202d, l.onT202, nil)
}

// ReceiveTEIManagement handles a SAPI=63 management frame addressed to this
// link's outstanding request, matching it by Ri before acting on it (spec.md
// §6.1). Frames for a different Ri (another terminal's request) are ignored.
func (l *Link) ReceiveTEIManagement(now time.Time, msg tei.Message) {
	if l.state != StateAssignAwaitingTEI && l.state != StateEstablishAwaitingTEI {
		return
	}
	if msg.Ri != l.teRequestRi {
		return
	}
	switch msg.Type {
	case tei.Assigned:
		l.TEIAssigned(now, msg.Ai)
	case tei.Denied:
		l.reportError(errTEIDenied)
	}
}

func (l *Link) onT202(now time.Time, _ interface{}) {
	if l.state != StateAssignAwaitingTEI && l.state != StateEstablishAwaitingTEI {
		return
	}
	l.rc++
	if l.rc >= l.N202 {
		// give up; application sees DchanDown via the controller's TEI path
		l.up.LinkDown()
		return
	}
	rc := l.rc
	l.requestTEI(now)
	l.rc = rc // requestTEI resets rc; keep counting retries
}

// TEIAssigned is called by the TEI manager once this link's TEI is
// confirmed. Ri must match the outstanding request.
func (l *Link) TEIAssigned(now time.Time, tei uint8) {
	switch l.state {
	case StateAssignAwaitingTEI:
		l.TEI = tei
		l.wheel.Cancel(l.t202)
		l.state = StateTEIAssigned
		l.up.LinkUp()
	case StateEstablishAwaitingTEI:
		l.TEI = tei
		l.wheel.Cancel(l.t202)
		l.sendSABME(now)
		l.state = StateAwaitingEstablishment
	}
}

func (l *Link) sendSABME(now time.Time) {
	l.send.SendFrame(Encode(Frame{SAPI: l.SAPI, TEI: l.TEI, CR: l.Role == RoleUser, Kind: KindU, UFunc: USABME, PF: true}))
	l.rc = 0
	l.armT200(now)
}

func (l *Link) armT200(now time.Time) {
	l.wheel.Cancel(l.t200)
	l.t200 = l.wheel.Schedule(now, l.T200d, l.onT200, nil)
}

func (l *Link) armT203(now time.Time) {
	l.wheel.Cancel(l.t203)
	l.t203 = l.wheel.Schedule(now, l.T203d, l.onT203, nil)
}

func (l *Link) stopT200() { l.wheel.Cancel(l.t200); l.t200 = 0 }
func (l *Link) stopT203() { l.wheel.Cancel(l.t203); l.t203 = 0 }

func (l *Link) onT200(now time.Time, _ interface{}) {
	switch l.state {
	case StateAwaitingEstablishment:
		l.rc++
		if l.rc >= l.N200 {
			l.queue = l.queue[:0]
			l.sent = 0
			wasL3Initiated := l.l3Initiated
			l.state = StateTEIAssigned
			l.l3Initiated = false
			l.up.LinkDown()
			if !l.PTMP && wasL3Initiated {
				l.Start(now)
			}
			return
		}
		rc := l.rc
		l.sendSABME(now)
		l.rc = rc // sendSABME resets rc; keep counting retransmits

	case StateMultiFrameEstablished:
		l.sendRR(now, true)
		l.rc = 0
		l.state = StateTimerRecovery
		l.armT200(now)

	case StateTimerRecovery:
		l.rc++
		if l.rc < l.N200 {
			l.sendRR(now, true)
			l.armT200(now)
			return
		}
		// MDL-ERROR: establish-data-link
		l.establishDataLink(now)

	case StateAwaitingRelease:
		l.sendDISC(now)
	}
}

func (l *Link) onT203(now time.Time, _ interface{}) {
	if l.state != StateMultiFrameEstablished {
		return
	}
	l.sendRR(now, true)
	l.rc = 0
	l.state = StateTimerRecovery
	l.armT200(now)
}

func (l *Link) establishDataLink(now time.Time) {
	l.stopT203()
	l.sendSABME(now)
	l.state = StateAwaitingEstablishment
}

func (l *Link) sendRR(now time.Time, pf bool) {
	sfunc := SRR
	if l.ownRxBusy {
		sfunc = SRNR
	}
	l.send.SendFrame(Encode(Frame{SAPI: l.SAPI, TEI: l.TEI, CR: l.Role == RoleUser, Kind: KindS, SFunc: sfunc, NR: l.vr, PF: pf}))
}

// SetLocalBusy implements the DL-layer receiver-not-ready half of flow
// control: when the application can't accept more I-frames it calls this
// with busy=true, and the link starts reporting RNR instead of RR until
// busy is cleared (spec.md §4.4 "local congestion").
func (l *Link) SetLocalBusy(now time.Time, busy bool) {
	if l.ownRxBusy == busy {
		return
	}
	l.ownRxBusy = busy
	if l.state == StateMultiFrameEstablished || l.state == StateTimerRecovery {
		l.sendRR(now, !busy)
	}
}

func (l *Link) sendREJ(now time.Time) {
	l.send.SendFrame(Encode(Frame{SAPI: l.SAPI, TEI: l.TEI, CR: l.Role == RoleUser, Kind: KindS, SFunc: SREJ, NR: l.vr}))
}

func (l *Link) sendDISC(now time.Time) {
	l.send.SendFrame(Encode(Frame{SAPI: l.SAPI, TEI: l.TEI, CR: l.Role == RoleUser, Kind: KindU, UFunc: UDISC, PF: true}))
	l.armT200(now)
}

// Receive handles one decoded inbound frame (already matched to this
// (SAPI, TEI) by the controller's dispatch).
func (l *Link) Receive(now time.Time, f Frame) {
	switch f.Kind {
	case KindU:
		l.receiveU(now, f)
	case KindI:
		l.receiveI(now, f)
	case KindS:
		l.receiveS(now, f)
	}
}

func (l *Link) receiveU(now time.Time, f Frame) {
	switch f.UFunc {
	case USABME:
		switch l.state {
		case StateTEIAssigned, StateAwaitingEstablishment, StateMultiFrameEstablished, StateTimerRecovery:
			l.send.SendFrame(Encode(Frame{SAPI: l.SAPI, TEI: l.TEI, CR: l.Role == RoleUser, Kind: KindU, UFunc: UUA, PF: f.PF}))
			l.vs, l.va, l.vr = 0, 0, 0
			l.queue = l.queue[:0]
			l.sent = 0
			l.rejectException = false
			l.acknowledgePend = false
			l.stopT200()
			l.armT203(now)
			wasUp := l.state == StateMultiFrameEstablished || l.state == StateTimerRecovery
			l.state = StateMultiFrameEstablished
			if !wasUp {
				l.up.LinkUp()
			}
		}
	case UUA:
		if f.PF && (l.state == StateAwaitingEstablishment) {
			l.vs, l.va, l.vr = 0, 0, 0
			l.queue = l.queue[:0]
			l.sent = 0
			l.stopT200()
			l.armT203(now)
			l.state = StateMultiFrameEstablished
			l.up.LinkUp()
		} else if l.state == StateAwaitingRelease {
			l.stopT200()
			l.state = StateTEIAssigned
		}
	case UDISC:
		l.send.SendFrame(Encode(Frame{SAPI: l.SAPI, TEI: l.TEI, CR: l.Role == RoleUser, Kind: KindU, UFunc: UUA, PF: f.PF}))
		l.stopT200()
		l.stopT203()
		wasUp := l.state == StateMultiFrameEstablished || l.state == StateTimerRecovery
		l.state = StateTEIAssigned
		if wasUp {
			l.up.LinkDown()
		}
	case UDM:
		if l.state == StateAwaitingEstablishment && !f.PF {
			// peer not ready; ignore, let T200 keep retrying
			return
		}
		wasUp := l.state == StateMultiFrameEstablished || l.state == StateTimerRecovery
		l.stopT200()
		l.stopT203()
		l.state = StateTEIAssigned
		if wasUp {
			l.up.LinkDown()
		}
	}
}

func (l *Link) receiveI(now time.Time, f Frame) {
	if l.state != StateMultiFrameEstablished && l.state != StateTimerRecovery {
		return
	}
	if !l.updateVA(now, f.NR) {
		return
	}
	if l.ownRxBusy {
		if f.PF {
			l.sendRR(now, true)
		}
		return
	}

	if f.NS == l.vr {
		l.vr = (l.vr + 1) % seqModulo
		l.rejectException = false
		l.up.Deliver(f.Payload)
		if f.PF || l.acknowledgePend {
			l.sendRR(now, f.PF)
			l.acknowledgePend = false
		} else {
			l.acknowledgePend = true
		}
	} else if !l.rejectException {
		l.sendREJ(now)
		l.rejectException = true
	} else if f.PF {
		l.sendRR(now, true)
	}
}

func (l *Link) receiveS(now time.Time, f Frame) {
	if l.state != StateMultiFrameEstablished && l.state != StateTimerRecovery {
		return
	}
	switch f.SFunc {
	case SRR, SRNR:
		l.peerRxBusy = f.SFunc == SRNR
		if !l.updateVA(now, f.NR) {
			return
		}
		if f.PF && l.state == StateTimerRecovery {
			l.stopT200()
			l.state = StateMultiFrameEstablished
			if len(l.queue) > l.sent {
				l.flushWindow(now)
			} else {
				l.armT203(now)
			}
		}
	case SREJ:
		l.peerRxBusy = false
		if !l.updateVA(now, f.NR) {
			return
		}
		l.sent = 0 // retransmit everything still queued from NR
		l.flushWindow(now)
		if f.PF && l.state == StateTimerRecovery {
			l.state = StateMultiFrameEstablished
		}
	}
}

// updateVA validates and applies an incoming N(R); returns false (and drives
// establish-data-link) if it is outside [V(A), V(S)].
func (l *Link) updateVA(now time.Time, nr uint8) bool {
	if !inWindow(l.va, l.vs, nr) {
		l.reportError(errSeqNoOutOfRange)
		l.establishDataLink(now)
		return false
	}
	if nr == l.va {
		return true
	}
	acked := seqDistance(l.va, nr)
	l.queue = l.queue[acked:]
	if l.sent > int(acked) {
		l.sent -= int(acked)
	} else {
		l.sent = 0
	}
	l.va = nr
	if l.va == l.vs && len(l.queue) == 0 {
		l.stopT200()
		l.armT203(now)
	} else {
		l.armT200(now)
	}
	return true
}

func inWindow(va, vs, nr uint8) bool {
	// nr must lie in [va, vs] modulo seqModulo, inclusive.
	return seqDistance(va, nr) <= seqDistance(va, vs)
}

func seqDistance(from, to uint8) uint8 {
	return uint8((int(to) - int(from) + seqModulo) % seqModulo)
}

// Transmit queues an L3 payload for I-frame transmission. It is sent
// immediately if the window allows, otherwise it waits for an ACK to free a
// slot.
func (l *Link) Transmit(now time.Time, payload []byte) error {
	if l.state != StateMultiFrameEstablished && l.state != StateTimerRecovery {
		return errUnexpectedInState
	}
	l.queue = append(l.queue, queuedIFrame{ns: l.vs, payload: payload})
	l.vs = (l.vs + 1) % seqModulo
	l.flushWindow(now)
	return nil
}

func (l *Link) flushWindow(now time.Time) {
	if l.peerRxBusy {
		return
	}
	for l.sent < len(l.queue) && seqDistance(l.va, nsAt(l.queue, l.sent, l.vs)) < uint8(l.Window) {
		qf := l.queue[l.sent]
		l.send.SendFrame(Encode(Frame{SAPI: l.SAPI, TEI: l.TEI, CR: l.Role == RoleUser, Kind: KindI, NS: qf.ns, NR: l.vr, Payload: qf.payload}))
		l.sent++
		l.armT200(now)
	}
	l.stopT203()
}

func nsAt(queue []queuedIFrame, i int, vs uint8) uint8 {
	if i < len(queue) {
		return queue[i].ns
	}
	return vs
}

// DL-RELEASE.request: tear the multi-frame session down cleanly.
func (l *Link) Stop(now time.Time) {
	if l.state == StateMultiFrameEstablished || l.state == StateTimerRecovery {
		l.stopT203()
		l.sendDISC(now)
		l.state = StateAwaitingRelease
	}
}

// Outstanding reports the number of I-frames sent-but-unacked: (V(S)-V(A)) mod 128.
func (l *Link) Outstanding() uint8 { return seqDistance(l.va, l.vs) }
