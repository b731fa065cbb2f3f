// Package mux drives a GPIO demultiplexer sitting in front of the SPI
// chip-select line. Boards with more peripherals than chip selects
// route CS through a demux; pulling the steering pins low or high
// before a transfer picks which peripheral sees it.
package mux

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"lautenbacher.net/spidev/config"
)

// pinDriver abstracts the GPIO access so the multiplexer logic can be
// exercised without a Raspberry Pi. The one real implementation sits
// in rpio.go.
type pinDriver interface {
	open() error
	output(pin int)
	write(pin int, high bool)
	close() error
}

type pinset struct {
	low  []int
	high []int
}

// Multiplexer selects one of several named GPIO steering
// configurations. It is safe for concurrent use.
type Multiplexer struct {
	mu      sync.Mutex
	targets map[string]pinset
	active  string
	started bool
	pins    pinDriver
}

// New builds a multiplexer from the configured target map. It does not
// touch the hardware until Start.
func New(cfg map[string]config.MuxGPIOConfig) *Multiplexer {
	targets := make(map[string]pinset, len(cfg))
	for name, gpio := range cfg {
		targets[name] = pinset{
			low:  append([]int{}, gpio.Low...),
			high: append([]int{}, gpio.High...),
		}
	}
	return &Multiplexer{
		targets: targets,
		pins:    newPinDriver(),
	}
}

// Start claims the GPIO pins and puts them into output mode. A
// multiplexer with no targets starts successfully and stays inert.
func (m *Multiplexer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("multiplexer already started")
	}
	if len(m.targets) == 0 {
		m.started = true
		return nil
	}

	if err := m.pins.open(); err != nil {
		return fmt.Errorf("opening gpio: %w", err)
	}
	for _, ps := range m.targets {
		for _, pin := range ps.low {
			m.pins.output(pin)
		}
		for _, pin := range ps.high {
			m.pins.output(pin)
		}
	}
	m.started = true
	return nil
}

// Select steers the demux to the named target. The pin writes happen
// immediately, so the next transfer on the bus reaches that target.
func (m *Multiplexer) Select(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return fmt.Errorf("multiplexer not started")
	}
	ps, ok := m.targets[name]
	if !ok {
		return fmt.Errorf("unknown multiplexer target %q", name)
	}

	for _, pin := range ps.low {
		m.pins.write(pin, false)
	}
	for _, pin := range ps.high {
		m.pins.write(pin, true)
	}
	m.active = name
	slog.Debug("Multiplexer target selected", "target", name)
	return nil
}

// Active returns the most recently selected target name, or "".
func (m *Multiplexer) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Names returns the configured target names in sorted order.
func (m *Multiplexer) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := maps.Keys(m.targets)
	sort.Strings(names)
	return names
}

// Stop releases the GPIO pins. The multiplexer can be started again
// afterwards.
func (m *Multiplexer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}
	if len(m.targets) > 0 {
		if err := m.pins.close(); err != nil {
			slog.Error("Error closing gpio", "error", err)
		}
	}
	m.started = false
	m.active = ""
}
