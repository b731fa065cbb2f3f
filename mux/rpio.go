package mux

import (
	"github.com/stianeikeland/go-rpio/v4"
)

// rpioDriver talks to the BCM283x GPIO block through /dev/gpiomem.
type rpioDriver struct{}

func newPinDriver() pinDriver {
	return &rpioDriver{}
}

func (r *rpioDriver) open() error {
	return rpio.Open()
}

func (r *rpioDriver) output(pin int) {
	rpio.Pin(pin).Output()
}

func (r *rpioDriver) write(pin int, high bool) {
	if high {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
}

func (r *rpioDriver) close() error {
	return rpio.Close()
}
