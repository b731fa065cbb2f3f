// Package spi provides access to Linux spidev character devices
// (/dev/spidevB.D). A Device wraps one open device node and performs
// full-duplex transfers through the kernel's SPI_IOC_MESSAGE ioctl.
//
// Because the device node is opened read-write, callers usually need
// root permissions (or a udev rule granting access to the spidev group).
package spi

import (
	"fmt"
	"sync"
)

// transport is the backend a Device drives. The real backend issues
// spidev ioctls against an open file descriptor; the loopback backend
// answers from memory for tests and simulation.
type transport interface {
	readMode() (uint8, error)
	readBitsPerWord() (uint8, error)
	readMaxSpeedHz() (uint32, error)
	writeMode(uint8) error
	writeBitsPerWord(uint8) error
	writeMaxSpeedHz(uint32) error
	message(tx, rx []byte, p xferParams) error
	close() error
}

// xferParams are the per-message parameters handed to the backend.
type xferParams struct {
	speedHz    uint32
	delayUsecs uint16
	bits       uint8
	csChange   bool
}

// Mode holds the SPI mode flags from linux/spi/spidev.h. The low two
// bits select clock phase and polarity, the rest are feature flags.
type Mode uint8

const (
	CPHA Mode = 0x01
	CPOL Mode = 0x02

	Mode0 Mode = 0
	Mode1 Mode = CPHA
	Mode2 Mode = CPOL
	Mode3 Mode = CPOL | CPHA

	CSHigh    Mode = 0x04
	LSBFirst  Mode = 0x08
	ThreeWire Mode = 0x10
	Loop      Mode = 0x20
	NoCS      Mode = 0x40
	Ready     Mode = 0x80
)

// DefaultMaxTransfer is the default ceiling for a single transfer. It
// matches the kernel's default spidev buffer size (bufsiz module
// parameter), so larger transfers would fail in the driver anyway.
const DefaultMaxTransfer = 4096

// Device represents one spidev node. The zero value is not usable;
// create instances with New, Open or Loopback.
//
// A Device is safe for concurrent use: a per-instance mutex serializes
// Open, Close, Transfer and the setting accessors. The underlying
// descriptor is exclusively owned by the Device holding it.
type Device struct {
	mu          sync.Mutex
	tr          transport
	path        string
	mode        Mode
	bits        uint8
	speedHz     uint32
	maxTransfer int
}

// New returns a Device in the unopened state.
func New(opts ...Option) *Device {
	d := &Device{maxTransfer: DefaultMaxTransfer}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Open creates a Device and immediately connects it to
// /dev/spidev{bus}.{device}.
func Open(bus, device int, opts ...Option) (*Device, error) {
	d := New(opts...)
	if err := d.Open(bus, device); err != nil {
		return nil, err
	}
	return d, nil
}

// Open connects the Device to /dev/spidev{bus}.{device} and reads back
// the current mode, word size and maximum clock rate from the driver.
// These become the defaults for subsequent transfers.
//
// Opening an already-open Device fails with ErrAlreadyOpen; close it
// first if the intent is to switch nodes. If any of the readbacks
// fails, the descriptor is closed again and the Device stays unopened.
func (d *Device) Open(bus, device int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tr != nil {
		return fmt.Errorf("%s: %w", d.path, ErrAlreadyOpen)
	}
	if bus < 0 || device < 0 {
		return fmt.Errorf("invalid spidev address %d.%d: bus and device must not be negative", bus, device)
	}

	path := fmt.Sprintf("/dev/spidev%d.%d", bus, device)
	tr, err := openTransport(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	return d.attach(tr, path)
}

// attach completes initialization against an opened backend. The
// caller must hold d.mu. On readback failure the backend is closed and
// the Device is left unopened.
func (d *Device) attach(tr transport, path string) error {
	mode, err := tr.readMode()
	if err != nil {
		tr.close()
		return fmt.Errorf("read spi mode of %s: %w", path, err)
	}
	bits, err := tr.readBitsPerWord()
	if err != nil {
		tr.close()
		return fmt.Errorf("read bits per word of %s: %w", path, err)
	}
	speed, err := tr.readMaxSpeedHz()
	if err != nil {
		tr.close()
		return fmt.Errorf("read max speed of %s: %w", path, err)
	}

	d.tr = tr
	d.path = path
	d.mode = Mode(mode)
	d.bits = bits
	d.speedHz = speed
	return nil
}

// Close releases the device node. Closing an unopened Device is a
// no-op. Even when the close syscall itself fails, the in-memory state
// is reset so the Device never references a dead descriptor.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tr == nil {
		return nil
	}

	err := d.tr.close()
	path := d.path
	d.tr = nil
	d.path = ""
	d.mode = 0
	d.bits = 0
	d.speedHz = 0

	if err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// Transfer performs one full-duplex SPI transaction and returns the
// received bytes.
//
// The transfer length is the larger of len(tx) and the value given via
// WithMinResponse; tx is zero-padded up to that length, which is how a
// caller reads N bytes from a peripheral by clocking out N dummy
// bytes. The result always has exactly the transfer length.
//
// Clock rate and word size default to the values read back when the
// device was opened; WithSpeedHz, WithBitsPerWord, WithDelay and
// WithCSChange override them for this call only.
func (d *Device) Transfer(tx []byte, opts ...TransferOption) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tr == nil {
		return nil, ErrNotOpen
	}

	cfg := transferConfig{
		xferParams: xferParams{speedHz: d.speedHz, bits: d.bits},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.minResponse < 0 {
		return nil, fmt.Errorf("minimum response length %d: %w", cfg.minResponse, ErrNegativeLength)
	}

	length := len(tx)
	if cfg.minResponse > length {
		length = cfg.minResponse
	}
	if length == 0 {
		return []byte{}, nil
	}
	if length > d.maxTransfer {
		return nil, fmt.Errorf("transfer of %d bytes exceeds the %d byte limit of %s: %w",
			length, d.maxTransfer, d.path, ErrTransferTooLong)
	}

	txBuf := make([]byte, length)
	copy(txBuf, tx)
	rx := make([]byte, length)

	if err := d.tr.message(txBuf, rx, cfg.xferParams); err != nil {
		return nil, fmt.Errorf("transfer on %s: %w", d.path, err)
	}
	return rx, nil
}

// SetMode writes the SPI mode flags to the driver and updates the
// cached value on success.
func (d *Device) SetMode(m Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tr == nil {
		return ErrNotOpen
	}
	if err := d.tr.writeMode(uint8(m)); err != nil {
		return fmt.Errorf("set spi mode on %s: %w", d.path, err)
	}
	d.mode = m
	return nil
}

// SetBitsPerWord writes the word size to the driver and updates the
// cached value on success. 0 selects the driver default (8 bits).
func (d *Device) SetBitsPerWord(bits uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tr == nil {
		return ErrNotOpen
	}
	if err := d.tr.writeBitsPerWord(bits); err != nil {
		return fmt.Errorf("set bits per word on %s: %w", d.path, err)
	}
	d.bits = bits
	return nil
}

// SetMaxSpeedHz writes the maximum clock rate to the driver and
// updates the cached value on success.
func (d *Device) SetMaxSpeedHz(hz uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tr == nil {
		return ErrNotOpen
	}
	if err := d.tr.writeMaxSpeedHz(hz); err != nil {
		return fmt.Errorf("set max speed on %s: %w", d.path, err)
	}
	d.speedHz = hz
	return nil
}

// IsOpen reports whether the Device currently holds an open backend.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tr != nil
}

// Path returns the device node path, or "" while unopened.
func (d *Device) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// Mode returns the SPI mode cached from the most recent readback or
// SetMode call. Only meaningful while the Device is open.
func (d *Device) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// BitsPerWord returns the cached word size.
func (d *Device) BitsPerWord() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bits
}

// MaxSpeedHz returns the cached maximum clock rate.
func (d *Device) MaxSpeedHz() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speedHz
}

// MaxTransfer returns the per-transfer length ceiling of this Device.
func (d *Device) MaxTransfer() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxTransfer
}
