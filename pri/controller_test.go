package pri

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispbx/goisdn/device"
	"github.com/ispbx/goisdn/q921"
	"github.com/ispbx/goisdn/q931"
)

// pumpReads drains ReadFrame in the background until the device closes or
// the test ends; panics are never expected on the golden path this exercises.
func pumpReads(t *testing.T, c *Controller) {
	t.Helper()
	go func() {
		for {
			if err := c.ReadFrame(); err != nil {
				return
			}
		}
	}()
}

// waitEvent polls CheckEvent until one arrives or the deadline passes.
func waitEvent(t *testing.T, c *Controller, timeout time.Duration) (q931.Event, bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.ScheduleRun()
		if ev, ok := c.CheckEvent(); ok {
			return ev, true
		}
		time.Sleep(time.Millisecond)
	}
	return q931.Event{}, false
}

func TestPointToPointLinkEstablishesAndDeliversEvents(t *testing.T) {
	netDev, userDev := device.NewLoopbackPair()
	defer netDev.Close()
	defer userDev.Close()

	net := New(netDev, q921.RoleNetwork, q931.SwitchEuroISDNE1)
	user := New(userDev, q921.RoleUser, q931.SwitchEuroISDNE1)

	pumpReads(t, net)
	pumpReads(t, user)

	net.Start()
	user.Start()

	ev, ok := waitEvent(t, net, time.Second)
	require.True(t, ok, "network side should see DchanUp")
	assert.Equal(t, q931.EventDchanUp, ev.Kind)

	ev, ok = waitEvent(t, user, time.Second)
	require.True(t, ok, "user side should see DchanUp")
	assert.Equal(t, q931.EventDchanUp, ev.Kind)
}

func TestPointToPointOutboundCallRingsThenAnswers(t *testing.T) {
	netDev, userDev := device.NewLoopbackPair()
	defer netDev.Close()
	defer userDev.Close()

	net := New(netDev, q921.RoleNetwork, q931.SwitchEuroISDNE1)
	user := New(userDev, q921.RoleUser, q931.SwitchEuroISDNE1)

	pumpReads(t, net)
	pumpReads(t, user)
	net.Start()
	user.Start()

	_, ok := waitEvent(t, net, time.Second)
	require.True(t, ok)
	_, ok = waitEvent(t, user, time.Second)
	require.True(t, ok)

	call, err := user.Engine.NewCall()
	require.NoError(t, err)
	bearer := q931.BearerCapability{TransferCapability: 0x10, TransferMode: 0x10, Layer1: 0x02}
	require.NoError(t, user.Engine.SetupRequest(user.clock(), call, bearer, q931.ChannelSelection{}, q931.Party{}, q931.Party{Number: "5550100"}))

	ev, ok := waitEvent(t, net, time.Second)
	require.True(t, ok, "network side should see the inbound Ring")
	assert.Equal(t, q931.EventRing, ev.Kind)
	assert.Equal(t, "5550100", ev.Called.Number)

	netCall := net.Engine.Pool.Lookup(ev.CallRef)
	require.NotNil(t, netCall)
	require.NoError(t, net.Engine.Proceeding(net.clock(), netCall))
	require.NoError(t, net.Engine.Alerting(net.clock(), netCall, false))

	ev, ok = waitEvent(t, user, time.Second)
	require.True(t, ok, "caller should see Proceeding")
	assert.Equal(t, q931.EventProceeding, ev.Kind)

	ev, ok = waitEvent(t, user, time.Second)
	require.True(t, ok, "caller should see Ringing")
	assert.Equal(t, q931.EventRinging, ev.Kind)

	require.NoError(t, net.Engine.Answer(net.clock(), netCall, false))
	ev, ok = waitEvent(t, user, time.Second)
	require.True(t, ok, "caller should see Answer")
	assert.Equal(t, q931.EventAnswer, ev.Kind)
}
