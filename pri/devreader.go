package pri

import (
	"encoding/binary"
	"io"

	"github.com/cloudwego/gopkg/bufiox"
)

// frameReader pulls discrete, length-prefixed D-channel frames off a device
// stream using a zero-copy buffered reader. The 2-byte big-endian length
// prefix mirrors the framing a D-channel adapter's kernel driver hands back
// to user space (spec.md §6 "DeviceIO"); the HDLC flag/FCS/bit-unstuffing
// itself happens below this layer, on the device side.
type frameReader struct {
	r   bufiox.Reader
	buf []byte
}

func newFrameReader(rd io.Reader) *frameReader {
	return &frameReader{r: bufiox.NewDefaultReader(rd)}
}

// readFrame returns the next frame's bytes, valid until the next call.
func (fr *frameReader) readFrame() ([]byte, error) {
	hdr, err := fr.r.Next(2)
	if err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(hdr))
	payload, err := fr.r.Next(n)
	if err != nil {
		return nil, err
	}
	if cap(fr.buf) < n {
		fr.buf = make([]byte, n)
	}
	fr.buf = fr.buf[:n]
	copy(fr.buf, payload)
	fr.r.Release(nil)
	return fr.buf, nil
}

// encodeFrame prefixes raw with the same 2-byte length header readFrame
// expects on the peer end of a symmetric device.
func encodeFrame(raw []byte) []byte {
	out := make([]byte, 2+len(raw))
	binary.BigEndian.PutUint16(out, uint16(len(raw)))
	copy(out[2:], raw)
	return out
}
