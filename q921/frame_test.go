package q921

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDecodeEncodeIFrame(t *testing.T) {
	f := Frame{SAPI: SAPICallCtrl, CR: true, TEI: 64, Kind: KindI, NS: 3, NR: 5, PF: true, Payload: []byte{1, 2, 3}}
	raw := Encode(f)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, f.SAPI, got.SAPI)
	assert.Equal(t, f.TEI, got.TEI)
	assert.Equal(t, f.Kind, got.Kind)
	assert.Equal(t, f.NS, got.NS)
	assert.Equal(t, f.NR, got.NR)
	assert.Equal(t, f.PF, got.PF)
	assert.Equal(t, f.Payload, got.Payload)
}

func TestDecodeEncodeSFrame(t *testing.T) {
	f := Frame{SAPI: SAPICallCtrl, TEI: 0, Kind: KindS, SFunc: SREJ, NR: 9, PF: false}
	got, err := Decode(Encode(f))
	require.NoError(t, err)
	assert.Equal(t, KindS, got.Kind)
	assert.Equal(t, SREJ, got.SFunc)
	assert.Equal(t, uint8(9), got.NR)
}

func TestDecodeEncodeUFrameWithPayload(t *testing.T) {
	// SAPI=63 TEI-management carrier: UI frames must round-trip their payload.
	f := Frame{SAPI: SAPIL2Mgmt, TEI: TEIBroadcast, Kind: KindU, UFunc: UUI, Payload: []byte{0x0f, 1, 0x12, 0x34, 0x7e}}
	got, err := Decode(Encode(f))
	require.NoError(t, err)
	assert.Equal(t, UUI, got.UFunc)
	assert.Equal(t, f.Payload, got.Payload)
}

func TestDecodeEncodeUFrameNoPayload(t *testing.T) {
	f := Frame{SAPI: SAPICallCtrl, TEI: 5, Kind: KindU, UFunc: USABME, PF: true}
	raw := Encode(f)
	assert.Len(t, raw, 3)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, USABME, got.UFunc)
	assert.Nil(t, got.Payload)
}

func TestDecodeEncodeUFrameEveryFunction(t *testing.T) {
	// every U-frame modifier this engine sends must survive encode/decode,
	// not just the ones already covered by handshake/teardown tests.
	for _, uf := range []UFunction{USABME, UUA, UDISC, UDM, UUI} {
		f := Frame{SAPI: SAPICallCtrl, TEI: 5, Kind: KindU, UFunc: uf}
		got, err := Decode(Encode(f))
		require.NoError(t, err)
		assert.Equal(t, uf, got.UFunc, "U-function %s round-trip", uf)
	}
}

func TestDecodeShortFrame(t *testing.T) {
	_, err := Decode([]byte{1, 2})
	assert.Error(t, err)
}

func TestDecodeTooLongFrame(t *testing.T) {
	_, err := Decode(make([]byte, maxFrame+1))
	assert.ErrorIs(t, err, errFrameTooLong)
}

func TestEncodeDecodeRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := Frame{
			SAPI: uint8(rapid.IntRange(0, 63).Draw(t, "sapi")),
			CR:   rapid.Bool().Draw(t, "cr"),
			TEI:  uint8(rapid.IntRange(0, 127).Draw(t, "tei")),
			Kind: KindI,
			NS:   uint8(rapid.IntRange(0, 127).Draw(t, "ns")),
			NR:   uint8(rapid.IntRange(0, 127).Draw(t, "nr")),
			PF:   rapid.Bool().Draw(t, "pf"),
			Payload: rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(t, "payload"),
		}
		got, err := Decode(Encode(f))
		require.NoError(t, err)
		assert.Equal(t, f.NS, got.NS)
		assert.Equal(t, f.NR, got.NR)
		assert.Equal(t, f.Payload, got.Payload)
	})
}
