package tei

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := Message{Type: Assigned, Ri: 0xbeef, Ai: 70}
	got, ok := Decode(Encode(m))
	require.True(t, ok)
	assert.Equal(t, m, got)
}

func TestDecodeRejectsWrongEntity(t *testing.T) {
	raw := Encode(Message{Type: Request, Ri: 1, Ai: TEIBroadcast})
	raw[0] = 0x00
	_, ok := Decode(raw)
	assert.False(t, ok)
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	_, ok := Decode([]byte{managementEntity, 0, 1})
	assert.False(t, ok)
}

type fakeSender struct{ sent [][]byte }

func (s *fakeSender) SendManagement(raw []byte) { s.sent = append(s.sent, raw) }

type fakeAssignee struct {
	assigned []uint8
	removed  []uint8
}

func (a *fakeAssignee) TEIAssigned(tei uint8, ri uint16) { a.assigned = append(a.assigned, tei) }
func (a *fakeAssignee) TEIRemoved(tei uint8)             { a.removed = append(a.removed, tei) }

func TestManagerAssignsFirstFreeTEI(t *testing.T) {
	send := &fakeSender{}
	assignee := &fakeAssignee{}
	m := NewManager(send, assignee)

	m.Receive(Message{Type: Request, Ri: 1, Ai: TEIBroadcast})
	require.Len(t, assignee.assigned, 1)
	assert.Equal(t, uint8(FirstDynamic), assignee.assigned[0])

	require.Len(t, send.sent, 1)
	reply, ok := Decode(send.sent[0])
	require.True(t, ok)
	assert.Equal(t, Assigned, reply.Type)
	assert.Equal(t, uint16(1), reply.Ri)
}

func TestManagerDeniesWhenExhausted(t *testing.T) {
	send := &fakeSender{}
	assignee := &fakeAssignee{}
	m := NewManager(send, assignee)

	for i := FirstDynamic; i <= LastDynamic; i++ {
		m.Receive(Message{Type: Request, Ri: uint16(i), Ai: TEIBroadcast})
	}
	assert.Len(t, assignee.assigned, LastDynamic-FirstDynamic+1)

	send.sent = nil
	m.Receive(Message{Type: Request, Ri: 999, Ai: TEIBroadcast})
	require.Len(t, send.sent, 1)
	reply, ok := Decode(send.sent[0])
	require.True(t, ok)
	assert.Equal(t, Denied, reply.Type)
}

func TestManagerRemoveFreesTEI(t *testing.T) {
	send := &fakeSender{}
	assignee := &fakeAssignee{}
	m := NewManager(send, assignee)

	m.Receive(Message{Type: Request, Ri: 1, Ai: TEIBroadcast})
	assigned := assignee.assigned[0]

	m.Receive(Message{Type: Remove, Ai: assigned})
	require.Len(t, assignee.removed, 1)
	assert.Equal(t, assigned, assignee.removed[0])
}

func TestManagerForceReassignBroadcastsRemove(t *testing.T) {
	send := &fakeSender{}
	m := NewManager(send, &fakeAssignee{})

	m.ForceReassign()
	require.Len(t, send.sent, 1)
	msg, ok := Decode(send.sent[0])
	require.True(t, ok)
	assert.Equal(t, Remove, msg.Type)
	assert.Equal(t, uint8(TEIBroadcast), msg.Ai)
}
