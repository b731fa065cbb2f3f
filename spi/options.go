package spi

import (
	"math"
	"time"
)

// Option configures a Device at construction time.
type Option func(*Device)

// WithMaxTransfer sets the per-transfer length ceiling. Transfers
// larger than this fail with ErrTransferTooLong instead of being
// handed to the driver. Values <= 0 keep DefaultMaxTransfer.
func WithMaxTransfer(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.maxTransfer = n
		}
	}
}

// TransferOption adjusts a single Transfer call.
type TransferOption func(*transferConfig)

type transferConfig struct {
	xferParams
	minResponse int
}

// WithMinResponse requests at least n received bytes. When n exceeds
// len(tx), the transmit buffer is zero-padded up to n so the bus is
// clocked long enough to shift n bytes in.
func WithMinResponse(n int) TransferOption {
	return func(c *transferConfig) {
		c.minResponse = n
	}
}

// WithSpeedHz overrides the clock rate for this transfer. The default
// is the rate read back from the driver when the device was opened.
func WithSpeedHz(hz uint32) TransferOption {
	return func(c *transferConfig) {
		c.speedHz = hz
	}
}

// WithBitsPerWord overrides the word size for this transfer.
func WithBitsPerWord(bits uint8) TransferOption {
	return func(c *transferConfig) {
		c.bits = bits
	}
}

// WithDelay inserts a pause after the transfer, before chip-select is
// released. The driver takes microseconds in a 16-bit field; larger
// values are clamped.
func WithDelay(d time.Duration) TransferOption {
	return func(c *transferConfig) {
		us := d.Microseconds()
		if us < 0 {
			us = 0
		}
		if us > math.MaxUint16 {
			us = math.MaxUint16
		}
		c.delayUsecs = uint16(us)
	}
}

// WithCSChange deasserts chip-select between this transfer and the
// next message on the bus.
func WithCSChange() TransferOption {
	return func(c *transferConfig) {
		c.csChange = true
	}
}
