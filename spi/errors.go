package spi

import "errors"

// Sentinel errors for programmatic checks with errors.Is. OS-level
// failures (open, readback, transfer, close) are returned as wrapped
// errors carrying the device path, the failed operation and the
// underlying errno.
var (
	// ErrNotOpen is returned when an operation requires an open device.
	ErrNotOpen = errors.New("spi: device not open")

	// ErrAlreadyOpen is returned by Open on a Device that already holds
	// an open descriptor. Re-opening never silently leaks the old one.
	ErrAlreadyOpen = errors.New("spi: device already open")

	// ErrTransferTooLong is returned when the requested transfer length
	// exceeds the Device's maximum (see WithMaxTransfer).
	ErrTransferTooLong = errors.New("spi: transfer exceeds maximum length")

	// ErrNegativeLength is returned for a negative minimum response length.
	ErrNegativeLength = errors.New("spi: negative response length")

	// ErrShortTransfer is returned when the driver reports fewer bytes
	// transferred than requested. The receive buffer is discarded in
	// that case rather than handed to the caller.
	ErrShortTransfer = errors.New("spi: short transfer")

	// ErrUnsupported is returned by Open on platforms without spidev.
	ErrUnsupported = errors.New("spi: spidev is only available on linux")
)
