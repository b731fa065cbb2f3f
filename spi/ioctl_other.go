//go:build !linux

package spi

// The package compiles everywhere so that consumers (and the loopback
// backend) can be built and tested on any platform, but real device
// nodes only exist on Linux.

func openTransport(string) (transport, error) {
	return nil, ErrUnsupported
}
