package spi

import (
	"errors"
	"sync"
)

// LoopbackHandler produces the receive buffer for one simulated
// transfer. tx is the padded transmit buffer exactly as it would reach
// the wire. The returned slice is copied into the receive buffer; a
// short or nil return leaves the remainder zeroed.
type LoopbackHandler func(tx []byte) []byte

// Loopback returns an already-open Device backed by handler instead of
// a kernel driver. A nil handler echoes the transmit buffer, which
// matches a board with MOSI wired to MISO.
//
// The loopback starts out with the same defaults a typical spidev node
// reports: mode 0, 8 bits per word, 1 MHz. It exists for tests and for
// running the console without hardware.
func Loopback(handler LoopbackHandler, opts ...Option) *Device {
	if handler == nil {
		handler = func(tx []byte) []byte { return tx }
	}
	lb := &loopbackTransport{
		handler: handler,
		mode:    uint8(Mode0),
		bits:    8,
		speedHz: 1000000,
	}

	d := New(opts...)
	d.mu.Lock()
	// attach cannot fail here: the loopback readbacks never error.
	d.attach(lb, "loopback")
	d.mu.Unlock()
	return d
}

var errLoopbackClosed = errors.New("loopback closed")

// loopbackTransport records everything the Device hands down, so tests
// can verify padding and per-transfer parameters.
type loopbackTransport struct {
	handler LoopbackHandler

	mu      sync.Mutex
	mode    uint8
	bits    uint8
	speedHz uint32
	closed  bool
	sent    [][]byte
	params  []xferParams
}

func (l *loopbackTransport) readMode() (uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode, nil
}

func (l *loopbackTransport) readBitsPerWord() (uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bits, nil
}

func (l *loopbackTransport) readMaxSpeedHz() (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.speedHz, nil
}

func (l *loopbackTransport) writeMode(v uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mode = v
	return nil
}

func (l *loopbackTransport) writeBitsPerWord(v uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bits = v
	return nil
}

func (l *loopbackTransport) writeMaxSpeedHz(v uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.speedHz = v
	return nil
}

func (l *loopbackTransport) message(tx, rx []byte, p xferParams) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errLoopbackClosed
	}
	sent := make([]byte, len(tx))
	copy(sent, tx)
	l.sent = append(l.sent, sent)
	l.params = append(l.params, p)
	l.mu.Unlock()

	copy(rx, l.handler(sent))
	return nil
}

func (l *loopbackTransport) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// lastSent returns the most recent padded transmit buffer, or nil.
func (l *loopbackTransport) lastSent() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sent) == 0 {
		return nil
	}
	return l.sent[len(l.sent)-1]
}

// lastParams returns the parameters of the most recent transfer.
func (l *loopbackTransport) lastParams() xferParams {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.params) == 0 {
		return xferParams{}
	}
	return l.params[len(l.params)-1]
}
