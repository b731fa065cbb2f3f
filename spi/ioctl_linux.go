//go:build linux

package spi

// The ioctl request encoding below replicates the _IOC macros from
// asm-generic/ioctl.h, and spiIOCTransfer mirrors struct
// spi_ioc_transfer from linux/spi/spidev.h. Field order and padding
// must match the kernel exactly; TestTransferStructSize guards the
// total size.

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
	iocRead  = 2

	spiIOCMagic = 'k'
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<iocDirShift | spiIOCMagic<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

func ior(nr, size uintptr) uintptr { return ioc(iocRead, nr, size) }
func iow(nr, size uintptr) uintptr { return ioc(iocWrite, nr, size) }

var (
	spiIOCRdMode        = ior(1, 1)
	spiIOCWrMode        = iow(1, 1)
	spiIOCRdBitsPerWord = ior(3, 1)
	spiIOCWrBitsPerWord = iow(3, 1)
	spiIOCRdMaxSpeedHz  = ior(4, 4)
	spiIOCWrMaxSpeedHz  = iow(4, 4)
)

// spiIOCMessage encodes SPI_IOC_MESSAGE(n): one request carrying n
// transfer segments back to back.
func spiIOCMessage(n uintptr) uintptr {
	return iow(0, n*unsafe.Sizeof(spiIOCTransfer{}))
}

// spiIOCTransfer is the wire image of struct spi_ioc_transfer.
type spiIOCTransfer struct {
	txBuf          uint64
	rxBuf          uint64
	length         uint32
	speedHz        uint32
	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNBits        uint8
	rxNBits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

// openTransport opens the device node read-write and wraps its
// descriptor. Mode and speed queries happen in Device.attach.
func openTransport(path string) (transport, error) {
	f, err := os.OpenFile(path, os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, err
	}
	return &fdTransport{f: f}, nil
}

// fdTransport issues spidev ioctls against an open file descriptor.
type fdTransport struct {
	f *os.File
}

func (t *fdTransport) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, t.f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (t *fdTransport) readMode() (uint8, error) {
	var v uint8
	if err := t.ioctl(spiIOCRdMode, unsafe.Pointer(&v)); err != nil {
		return 0, err
	}
	return v, nil
}

func (t *fdTransport) readBitsPerWord() (uint8, error) {
	var v uint8
	if err := t.ioctl(spiIOCRdBitsPerWord, unsafe.Pointer(&v)); err != nil {
		return 0, err
	}
	return v, nil
}

func (t *fdTransport) readMaxSpeedHz() (uint32, error) {
	var v uint32
	if err := t.ioctl(spiIOCRdMaxSpeedHz, unsafe.Pointer(&v)); err != nil {
		return 0, err
	}
	return v, nil
}

func (t *fdTransport) writeMode(v uint8) error {
	return t.ioctl(spiIOCWrMode, unsafe.Pointer(&v))
}

func (t *fdTransport) writeBitsPerWord(v uint8) error {
	return t.ioctl(spiIOCWrBitsPerWord, unsafe.Pointer(&v))
}

func (t *fdTransport) writeMaxSpeedHz(v uint32) error {
	return t.ioctl(spiIOCWrMaxSpeedHz, unsafe.Pointer(&v))
}

func (t *fdTransport) message(tx, rx []byte, p xferParams) error {
	msg := spiIOCTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(len(tx)),
		speedHz:     p.speedHz,
		delayUsecs:  p.delayUsecs,
		bitsPerWord: p.bits,
	}
	if p.csChange {
		msg.csChange = 1
	}

	n, _, errno := unix.Syscall(unix.SYS_IOCTL, t.f.Fd(), spiIOCMessage(1), uintptr(unsafe.Pointer(&msg)))
	runtime.KeepAlive(tx)
	runtime.KeepAlive(rx)

	if errno != 0 {
		return errno
	}
	// SPI_IOC_MESSAGE returns the number of bytes moved.
	if int(n) < len(tx) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortTransfer, n, len(tx))
	}
	return nil
}

func (t *fdTransport) close() error {
	return t.f.Close()
}
