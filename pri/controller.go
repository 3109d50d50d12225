// Package pri wires the Q.921 data-link, TEI management and Q.931
// call-control engines into one synchronously-driven D-channel controller,
// per spec.md §2 "System overview" and §5 "Concurrency".
package pri

import (
	"io"
	"time"

	"github.com/ispbx/goisdn/q921"
	"github.com/ispbx/goisdn/q921/tei"
	"github.com/ispbx/goisdn/q931"
	"github.com/ispbx/goisdn/timer"
)

// DeviceIO is the raw D-channel device handle: one HDLC frame per logical
// Read/Write, framing and checksum already handled below this layer (spec.md
// §6 "External interfaces").
type DeviceIO interface {
	io.Reader
	io.Writer
}

// Controller is one D-channel's protocol stack: a Q.921 link, the shared
// Q.931 call pool/timer wheel/engine, and — on a PTMP network master — one
// SubChannels entry per TEI the peer has been assigned (spec.md §3.1).
type Controller struct {
	Role   q921.Role
	PTMP   bool
	Switch q931.Switch

	dev    DeviceIO
	reader *frameReader
	log    Logger
	clock  func() time.Time

	Wheel  *timer.Wheel
	Pool   *q931.Pool
	Engine *q931.Engine
	Link   *q921.Link

	teiMgr *tei.Manager // non-nil only on a PTMP network-side master

	// SubChannels holds one Controller per TEI a PTMP network master has
	// assigned, each with its own Link, Engine and call Pool, sharing this
	// master's Wheel and device (spec.md §4.5 "Multipoint fan-out"). Call
	// records are not shared between subchannels or with the master's Pool.
	SubChannels []*Controller

	parent *Controller // non-nil on a SubChannels entry
}

// Option customizes a Controller at construction time.
type Option func(*Controller)

// WithLogger overrides the default no-op Logger.
func WithLogger(l Logger) Option { return func(c *Controller) { c.log = l } }

// WithClock overrides the default time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.clock = now } }

// WithTimerOverride replaces one or more of the Q.931 per-call timer
// defaults (spec.md §6.2 "per-timer override by index"). It has no effect on
// a PTMP network master, which has no Engine of its own; apply it to each
// SubChannels entry instead, or call it again after a TEI is assigned.
func WithTimerOverride(t q931.Timers) Option {
	return func(c *Controller) {
		if c.Engine != nil {
			c.Engine.Timers = t
		}
	}
}

// New constructs a point-to-point Controller: a PRI trunk, or a BRI line
// whose TEI is administered out of band (spec.md §4.4 "PTP").
func New(dev DeviceIO, role q921.Role, sw q931.Switch, opts ...Option) *Controller {
	return newController(dev, role, sw, false, 0, opts...)
}

// NewPTMPNetwork constructs a PTMP network-side master Controller. It has no
// Q.921 link or Q.931 calls of its own — its only job is TEI management;
// inbound SETUPs are fanned out to a SubChannels entry per attached
// terminal, created as TEIs are assigned (spec.md §4.5 "Multipoint").
func NewPTMPNetwork(dev DeviceIO, sw q931.Switch, opts ...Option) *Controller {
	c := &Controller{
		Role: q921.RoleNetwork, PTMP: true, Switch: sw,
		dev: dev, reader: newFrameReader(dev), log: nopLogger{}, clock: time.Now,
		Wheel: timer.New(0), Pool: q931.NewPool(),
	}
	for _, o := range opts {
		o(c)
	}
	c.teiMgr = tei.NewManager(&teiFrameSender{c}, &teiAssignee{c})
	return c
}

// NewPTMPUser constructs a PTMP terminal-side Controller: the Q.921 link
// starts TEI-unassigned and requests one from the network when Start runs.
func NewPTMPUser(dev DeviceIO, sw q931.Switch, opts ...Option) *Controller {
	return newController(dev, q921.RoleUser, sw, true, q921.TEIBroadcast, opts...)
}

func newController(dev DeviceIO, role q921.Role, sw q931.Switch, ptmp bool, startTEI uint8, opts ...Option) *Controller {
	c := &Controller{
		Role: role, PTMP: ptmp, Switch: sw,
		dev: dev, reader: newFrameReader(dev), log: nopLogger{}, clock: time.Now,
		Wheel: timer.New(0), Pool: q931.NewPool(),
	}

	var teiSend tei.Sender
	if role == q921.RoleUser && ptmp {
		teiSend = &teiFrameSender{c}
	}
	c.Link = q921.NewLink(q921.SAPICallCtrl, startTEI, role, ptmp, c.Wheel, &frameSender{c}, &linkDeliverer{c}, teiSend)
	c.Engine = q931.NewEngine(c.Pool, c.Wheel, sw, role == q921.RoleNetwork, c.Link)
	for _, o := range opts {
		o(c)
	}
	return c
}

// newSubChannel builds a network-side per-TEI Controller sharing the
// master's Wheel, device and switch configuration.
func (c *Controller) newSubChannel(assignedTEI uint8) *Controller {
	sub := &Controller{
		Role: c.Role, PTMP: true, Switch: c.Switch,
		dev: c.dev, log: c.log, clock: c.clock,
		Wheel: c.Wheel, Pool: q931.NewPool(), parent: c,
	}
	sub.Link = q921.NewLink(q921.SAPICallCtrl, assignedTEI, c.Role, true, c.Wheel, &frameSender{c}, &linkDeliverer{sub}, nil)
	sub.Engine = q931.NewEngine(sub.Pool, sub.Wheel, c.Switch, true, sub.Link)
	return sub
}

// Start issues DL-ESTABLISH.request on this controller's Q.921 link. A PTMP
// network master has no link of its own and ignores Start: it waits
// passively for terminals to request a TEI.
func (c *Controller) Start() {
	if c.Link != nil {
		c.Link.Start(c.clock())
	}
}

// Stop issues DL-RELEASE.request.
func (c *Controller) Stop() {
	if c.Link != nil {
		c.Link.Stop(c.clock())
	}
	for _, sub := range c.SubChannels {
		sub.Stop()
	}
}

// ScheduleNext reports the duration until the next timer deadline across
// this controller and its subchannels, for sizing a poll/select timeout
// (spec.md §5 "ScheduleNext/ScheduleRun").
func (c *Controller) ScheduleNext() (time.Duration, bool) {
	when, ok := c.Wheel.Next()
	if !ok {
		return 0, false
	}
	now := c.clock()
	if when.Before(now) {
		return 0, true
	}
	return when.Sub(now), true
}

// ScheduleRun fires every timer due by now. Subchannels share the master's
// Wheel, so one call drives the whole PTMP group.
func (c *Controller) ScheduleRun() { c.Wheel.Run(c.clock()) }

// ReadFrame blocks on the device for one frame and dispatches it: TEI
// management (SAPI 63) to the TEI manager or the requesting Link, call
// control (SAPI 0) to the matching Link by TEI. It returns io.EOF (or
// another device error) unchanged so the caller's poll loop can react.
func (c *Controller) ReadFrame() error {
	raw, err := c.reader.readFrame()
	if err != nil {
		return err
	}
	f, err := q921.Decode(raw)
	if err != nil {
		c.log.Warn("q921 frame decode failed", "err", err)
		return nil
	}
	now := c.clock()

	if f.SAPI == q921.SAPIL2Mgmt {
		msg, ok := tei.Decode(f.Payload)
		if !ok {
			return nil
		}
		if c.teiMgr != nil {
			c.teiMgr.Receive(msg)
		} else if c.Link != nil {
			c.Link.ReceiveTEIManagement(now, msg)
		}
		return nil
	}

	link := c.linkFor(f.TEI)
	if link == nil {
		if c.teiMgr != nil && f.Kind == q921.KindU && f.UFunc == q921.USABME {
			// SABME from a TEI we never assigned: force the terminal to
			// re-request one (spec.md §4.4 "Multi-instance on one device").
			c.teiMgr.ForceReassign()
		}
		return nil
	}
	link.Receive(now, f)
	return nil
}

func (c *Controller) linkFor(teiVal uint8) *q921.Link {
	if c.Link != nil && c.Link.TEI == teiVal {
		return c.Link
	}
	for _, sub := range c.SubChannels {
		if sub.Link.TEI == teiVal {
			return sub.Link
		}
	}
	return nil
}

// CheckEvent drains the oldest pending Q.931 event from this controller or
// any of its subchannels, in subchannel order (spec.md §3.1 "one pending
// event at a time").
func (c *Controller) CheckEvent() (q931.Event, bool) {
	if c.Engine != nil {
		if ev, ok := c.Engine.PopEvent(); ok {
			return ev, true
		}
	}
	for _, sub := range c.SubChannels {
		if ev, ok := sub.Engine.PopEvent(); ok {
			return ev, true
		}
	}
	return q931.Event{}, false
}

// frameSender writes an encoded Q.921 frame to the device, length-prefixed
// to match frameReader's framing.
type frameSender struct{ ctrl *Controller }

func (s *frameSender) SendFrame(raw []byte) {
	if _, err := s.ctrl.dev.Write(encodeFrame(raw)); err != nil {
		s.ctrl.log.Error("device write failed", "err", err)
	}
}

// linkDeliverer bridges a Q.921 Link's (payload-only, status-only) callbacks
// to the time-stamped Q.931 Engine API.
type linkDeliverer struct{ ctrl *Controller }

func (d *linkDeliverer) Deliver(payload []byte) { d.ctrl.Engine.Deliver(d.ctrl.clock(), payload) }
func (d *linkDeliverer) LinkUp()                { d.ctrl.Engine.NotifyLinkUp() }
func (d *linkDeliverer) LinkDown()              { d.ctrl.Engine.NotifyLinkDown() }

// teiFrameSender wraps a TEI management message in a SAPI=63 UI frame.
type teiFrameSender struct{ ctrl *Controller }

func (s *teiFrameSender) SendManagement(raw []byte) {
	f := q921.Frame{
		SAPI: q921.SAPIL2Mgmt, TEI: q921.TEIBroadcast,
		CR: s.ctrl.Role == q921.RoleUser, Kind: q921.KindU, UFunc: q921.UUI, Payload: raw,
	}
	s.ctrl.dev.Write(encodeFrame(q921.Encode(f)))
}

// teiAssignee spawns a SubChannels entry for every TEI the network-side
// Manager hands out, and tears it down on REMOVE.
type teiAssignee struct{ ctrl *Controller }

func (a *teiAssignee) TEIAssigned(assignedTEI uint8, _ uint16) {
	for _, sub := range a.ctrl.SubChannels {
		if sub.Link.TEI == assignedTEI {
			return
		}
	}
	sub := a.ctrl.newSubChannel(assignedTEI)
	a.ctrl.SubChannels = append(a.ctrl.SubChannels, sub)
	sub.Link.TEIAssigned(a.ctrl.clock(), assignedTEI)
}

func (a *teiAssignee) TEIRemoved(removedTEI uint8) {
	kept := a.ctrl.SubChannels[:0]
	for _, sub := range a.ctrl.SubChannels {
		if sub.Link.TEI == removedTEI {
			continue
		}
		kept = append(kept, sub)
	}
	a.ctrl.SubChannels = kept
}
