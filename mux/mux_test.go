package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lautenbacher.net/spidev/config"
)

// fakePins records GPIO operations instead of touching hardware.
type fakePins struct {
	opened  bool
	closed  bool
	outputs []int
	levels  map[int]bool
}

func (f *fakePins) open() error {
	f.opened = true
	f.levels = make(map[int]bool)
	return nil
}

func (f *fakePins) output(pin int) {
	f.outputs = append(f.outputs, pin)
}

func (f *fakePins) write(pin int, high bool) {
	f.levels[pin] = high
}

func (f *fakePins) close() error {
	f.closed = true
	return nil
}

func testTargets() map[string]config.MuxGPIOConfig {
	return map[string]config.MuxGPIOConfig{
		"adc": {Low: []int{17}, High: []int{22, 23}},
		"dac": {Low: []int{22, 23}, High: []int{17}},
	}
}

func newTestMux(t *testing.T) (*Multiplexer, *fakePins) {
	m := New(testTargets())
	pins := &fakePins{}
	m.pins = pins
	return m, pins
}

func TestStartClaimsAllPins(t *testing.T) {
	m, pins := newTestMux(t)

	assert.NoError(t, m.Start())
	assert.True(t, pins.opened)
	assert.ElementsMatch(t, []int{17, 22, 23, 17, 22, 23}, pins.outputs,
		"every configured pin goes into output mode")
}

func TestSelectSetsLevels(t *testing.T) {
	m, pins := newTestMux(t)
	assert.NoError(t, m.Start())

	assert.NoError(t, m.Select("adc"))
	assert.Equal(t, "adc", m.Active())
	assert.False(t, pins.levels[17])
	assert.True(t, pins.levels[22])
	assert.True(t, pins.levels[23])

	assert.NoError(t, m.Select("dac"))
	assert.Equal(t, "dac", m.Active())
	assert.True(t, pins.levels[17])
	assert.False(t, pins.levels[22])
	assert.False(t, pins.levels[23])
}

func TestSelectUnknownTarget(t *testing.T) {
	m, _ := newTestMux(t)
	assert.NoError(t, m.Start())

	err := m.Select("nope")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown multiplexer target")
	assert.Empty(t, m.Active())
}

func TestSelectBeforeStart(t *testing.T) {
	m, _ := newTestMux(t)
	assert.Error(t, m.Select("adc"))
}

func TestStartTwice(t *testing.T) {
	m, _ := newTestMux(t)
	assert.NoError(t, m.Start())
	assert.Error(t, m.Start())
}

func TestStopReleasesPins(t *testing.T) {
	m, pins := newTestMux(t)
	assert.NoError(t, m.Start())
	assert.NoError(t, m.Select("adc"))

	m.Stop()
	assert.True(t, pins.closed)
	assert.Empty(t, m.Active())

	assert.Error(t, m.Select("adc"), "a stopped multiplexer rejects selection")
}

func TestEmptyMultiplexer(t *testing.T) {
	m := New(nil)
	pins := &fakePins{}
	m.pins = pins

	assert.NoError(t, m.Start(), "no targets means nothing to claim")
	assert.False(t, pins.opened)
	assert.Empty(t, m.Names())
	m.Stop()
	assert.False(t, pins.closed)
}

func TestNamesSorted(t *testing.T) {
	m, _ := newTestMux(t)
	assert.Equal(t, []string{"adc", "dac"}, m.Names())
}
