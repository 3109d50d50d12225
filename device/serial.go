// Package device provides pri.DeviceIO implementations: a real D-channel
// TTY adapter and an in-memory loopback for tests (spec.md §6 "External
// interfaces").
package device

import (
	"time"

	serial "github.com/daedaluz/goserial"
)

// Serial wraps a raw D-channel TTY (e.g. a HDLC-mode UART exposed by an ISA
// or PCI PRI card's kernel driver) as a pri.DeviceIO. Framing, FCS and
// bit-stuffing are handled by the driver below the /dev node; this type only
// owns the file descriptor.
type Serial struct {
	port *serial.Port
}

// OpenSerial opens path (e.g. "/dev/ttyPRI0") and puts it into raw mode, no
// timeout on reads — ReadFrame's caller is expected to block until a whole
// frame arrives, matching the teacher's synchronous poll-driven D-channel
// read loop.
func OpenSerial(path string) (*Serial, error) {
	opts := serial.NewOptions().SetReadTimeout(-1)
	p, err := serial.Open(path, opts)
	if err != nil {
		return nil, err
	}
	if err := p.MakeRaw(); err != nil {
		p.Close()
		return nil, err
	}
	return &Serial{port: p}, nil
}

// OpenSerialTimeout is like OpenSerial but bounds each Read, so a caller can
// interleave device polling with its own timer wheel instead of blocking
// forever (spec.md §5 "ScheduleNext/ScheduleRun").
func OpenSerialTimeout(path string, timeout time.Duration) (*Serial, error) {
	opts := serial.NewOptions().SetReadTimeout(timeout)
	p, err := serial.Open(path, opts)
	if err != nil {
		return nil, err
	}
	if err := p.MakeRaw(); err != nil {
		p.Close()
		return nil, err
	}
	return &Serial{port: p}, nil
}

func (s *Serial) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *Serial) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *Serial) Close() error                { return s.port.Close() }
