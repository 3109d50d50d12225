package q931

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispbx/goisdn/q931/ie"
	"github.com/ispbx/goisdn/timer"
)

// fakeTransmitter stands in for a q921.Link: it captures every composed
// Q.931 message instead of framing it onto a data link.
type fakeTransmitter struct {
	sent []Message
	fail bool
}

func (tx *fakeTransmitter) Transmit(now time.Time, payload []byte) error {
	msg, err := DecodeHeader(payload)
	if err != nil {
		return err
	}
	tx.sent = append(tx.sent, msg)
	return nil
}

func (tx *fakeTransmitter) last() Message { return tx.sent[len(tx.sent)-1] }

func newTestEngine(network bool) (*Engine, *fakeTransmitter, *timer.Wheel) {
	tx := &fakeTransmitter{}
	w := timer.New(64)
	e := NewEngine(NewPool(), w, SwitchEuroISDNE1, network, tx)
	return e, tx, w
}

func TestBasicInboundCall(t *testing.T) {
	// spec.md §8 scenario 1: SETUP arrives, we answer, peer hangs up cleanly.
	e, tx, w := newTestEngine(true)
	now := time.Unix(1_700_000_000, 0)

	setup := Message{
		ProtoDiscriminator: ProtoQ931, CallRef: 7, FromOriginator: true, Type: Setup,
		IEs: []RawIE{
			{ID: ie.BearerCapability, Data: ie.EncodeBearerCapability(ie.BearerCapability{TransferCapability: 0x10, TransferMode: 0x10, Layer1: 0x02}, false)},
			{ID: ie.CalledPartyNumber, Data: ie.EncodeNumber(ie.Number{Digits: "5551000"}, false)},
		},
	}
	e.Deliver(now, EncodeHeader(setup))

	ev, ok := e.PopEvent()
	require.True(t, ok)
	assert.Equal(t, EventRing, ev.Kind)
	assert.Equal(t, uint16(7), ev.CallRef)

	c := e.Pool.Lookup(7)
	require.NotNil(t, c)
	require.NoError(t, e.Proceeding(now, c))
	require.NoError(t, e.Alerting(now, c, false))
	require.NoError(t, e.Answer(now, c, false))
	assert.Equal(t, Connect, tx.last().Type)

	// peer acknowledges, then hangs up
	e.Deliver(now, EncodeHeader(Message{ProtoDiscriminator: ProtoQ931, CallRef: 7, Type: ConnectAcknowledge}))
	assert.Equal(t, StateActive, c.OurState)

	disc := Message{ProtoDiscriminator: ProtoQ931, CallRef: 7, Type: Disconnect, IEs: []RawIE{{ID: ie.CauseIE, Data: ie.EncodeCause(0, 0, uint8(CauseNormalClearing), nil)}}}
	e.Deliver(now, EncodeHeader(disc))
	ev, ok = e.PopEvent()
	require.True(t, ok)
	assert.Equal(t, EventHangup, ev.Kind)
	assert.Equal(t, Release, tx.last().Type)

	rel := Message{ProtoDiscriminator: ProtoQ931, CallRef: 7, Type: ReleaseComplete}
	e.Deliver(now, EncodeHeader(rel))
	assert.Nil(t, e.Pool.Lookup(7))
	w.Run(now.Add(time.Hour)) // no leaked timers fire
}

func TestOutboundCallRejected(t *testing.T) {
	// spec.md §8 scenario 2: our SETUP is refused.
	e, tx, _ := newTestEngine(false)
	now := time.Unix(1_700_000_000, 0)

	c, err := e.NewCall()
	require.NoError(t, err)
	require.NoError(t, e.SetupRequest(now, c, BearerCapability{TransferCapability: 0x10, TransferMode: 0x10}, ChannelSelection{}, Party{}, Party{Number: "911"}))
	assert.Equal(t, Setup, tx.last().Type)

	rel := Message{ProtoDiscriminator: ProtoQ931, CallRef: c.CallRef, Type: ReleaseComplete, IEs: []RawIE{{ID: ie.CauseIE, Data: ie.EncodeCause(0, 0, uint8(CauseUserBusy), nil)}}}
	e.Deliver(now, EncodeHeader(rel))

	ev, ok := e.PopEvent()
	require.True(t, ok)
	assert.Equal(t, EventHangup, ev.Kind)
	assert.Equal(t, CauseUserBusy, ev.Cause)
	assert.Nil(t, e.Pool.Lookup(c.CallRef))
}

func TestGlareRejectsInboundOnExclusiveChannelInUse(t *testing.T) {
	// spec.md §8 scenario 3: a locally originated Call-Initiated call on an
	// exclusive channel wins; the conflicting inbound SETUP is rejected.
	e, tx, _ := newTestEngine(true)
	now := time.Unix(1_700_000_000, 0)

	local, err := e.NewCall()
	require.NoError(t, err)
	local.Channel = ChannelSelection{ie.ChannelID{HasChannel: true, Exclusive: true, ChannelNo: 4}}
	local.OurState = StateCallInitiated

	setup := Message{
		ProtoDiscriminator: ProtoQ931, CallRef: 99, FromOriginator: true, Type: Setup,
		IEs: []RawIE{
			{ID: ie.BearerCapability, Data: ie.EncodeBearerCapability(ie.BearerCapability{TransferMode: 0x10}, false)},
			{ID: ie.ChannelIdent, Data: ie.EncodeChannelID(ie.ChannelID{HasChannel: true, Exclusive: true, ChannelNo: 4})},
		},
	}
	e.Deliver(now, EncodeHeader(setup))

	assert.Equal(t, ReleaseComplete, tx.last().Type)
	assert.Nil(t, e.Pool.Lookup(99))
	assert.True(t, local.Alive, "the local call must survive the glare")
}

func TestInboundSetupBearerUnsupportedRejected(t *testing.T) {
	e, tx, _ := newTestEngine(true)
	e.Switch = SwitchATT4ESS
	e.dial = dialectFor(SwitchATT4ESS)
	now := time.Unix(1_700_000_000, 0)

	setup := Message{
		ProtoDiscriminator: ProtoQ931, CallRef: 5, FromOriginator: true, Type: Setup,
		IEs: []RawIE{{ID: ie.BearerCapability, Data: ie.EncodeBearerCapability(ie.BearerCapability{TransferMode: 0x40, Layer2: 2, Layer3: 6}, false)}},
	}
	e.Deliver(now, EncodeHeader(setup))

	assert.Equal(t, ReleaseComplete, tx.last().Type)
	found := false
	for _, raw := range tx.last().IEs {
		if raw.ID == ie.CauseIE {
			_, _, val, _, err := ie.DecodeCause(raw.Data)
			require.NoError(t, err)
			assert.Equal(t, uint8(CauseBearerCapNotImpl), val)
			found = true
		}
	}
	assert.True(t, found, "expected a Cause IE on the rejection")
}

func TestT303TimeoutAbandonsOutboundCall(t *testing.T) {
	e, _, w := newTestEngine(false)
	now := time.Unix(1_700_000_000, 0)

	c, err := e.NewCall()
	require.NoError(t, err)
	require.NoError(t, e.SetupRequest(now, c, BearerCapability{}, ChannelSelection{}, Party{}, Party{Number: "1"}))

	w.Run(now.Add(DefaultT303 + time.Second))
	ev, ok := e.PopEvent()
	require.True(t, ok)
	assert.Equal(t, EventHangup, ev.Kind)
	assert.Equal(t, CauseRecoveryOnTimerExpire, ev.Cause)
	assert.Nil(t, e.Pool.Lookup(c.CallRef))
}

func TestSetupAcknowledgeMovesToOverlapSending(t *testing.T) {
	e, _, w := newTestEngine(false)
	now := time.Unix(1_700_000_000, 0)

	c, err := e.NewCall()
	require.NoError(t, err)
	require.NoError(t, e.SetupRequest(now, c, BearerCapability{}, ChannelSelection{}, Party{}, Party{Number: "911"}))

	e.Deliver(now, EncodeHeader(Message{ProtoDiscriminator: ProtoQ931, CallRef: c.CallRef, Type: SetupAcknowledge}))

	ev, ok := e.PopEvent()
	require.True(t, ok)
	assert.Equal(t, EventSetupAck, ev.Kind)
	assert.Equal(t, StateOverlapSending, c.OurState)

	w.Run(now.Add(DefaultT303 + time.Second))
	_, ok = e.PopEvent()
	assert.False(t, ok, "T303 must be cancelled once SETUP ACKNOWLEDGE arrives")
}

func TestRestartAcknowledgeReleasesDummyCall(t *testing.T) {
	e, tx, w := newTestEngine(false)
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, e.Reset(now, true))
	assert.Equal(t, Restart, tx.last().Type)

	e.Deliver(now, EncodeHeader(Message{ProtoDiscriminator: ProtoQ931, CallRef: 0, Type: RestartAcknowledge}))
	ev, ok := e.PopEvent()
	require.True(t, ok)
	assert.Equal(t, EventRestartAck, ev.Kind)
	assert.Nil(t, e.Pool.Lookup(0))

	w.Run(now.Add(DefaultT316 + time.Second))
	_, ok = e.PopEvent()
	assert.False(t, ok, "T316 must be cancelled once RESTART ACKNOWLEDGE arrives")
}

func TestRestartAcknowledgesAndClearsCalls(t *testing.T) {
	e, tx, _ := newTestEngine(true)
	now := time.Unix(1_700_000_000, 0)

	live, err := e.NewCall()
	require.NoError(t, err)
	live.OurState = StateActive

	restart := Message{
		ProtoDiscriminator: ProtoQ931, CallRef: 0, Type: Restart,
		IEs: []RawIE{{ID: ie.RestartIndicator, Data: ie.EncodeRestartIndicator(7)}},
	}
	e.Deliver(now, EncodeHeader(restart))

	assert.Equal(t, RestartAcknowledge, tx.last().Type)
	ev, ok := e.PopEvent()
	require.True(t, ok)
	assert.Equal(t, EventRestart, ev.Kind)
	assert.False(t, live.Alive, "a global restart must clear every live call")
}

func TestMaintenanceDiscriminatorIsReflectedNotParsed(t *testing.T) {
	// spec.md §9: AT&T protocol discriminator 0x03 must never reach handle().
	e, tx, _ := newTestEngine(true)
	now := time.Unix(1_700_000_000, 0)

	raw := []byte{ProtoMaintenance, 0x01, 0x02, 0x03, 0x04}
	e.Deliver(now, raw)

	require.Len(t, tx.sent, 1)
	assert.Equal(t, ServiceAck, tx.last().Type)
	_, ok := e.PopEvent()
	assert.False(t, ok, "maintenance reflection produces no application event")
}
